package category

// Override is extra material a specific package needs in its environment
type Override struct {
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Addons     []string `json:"addons,omitempty" yaml:"addons,omitempty"`
}

// OverrideSet holds the name-keyed and category-keyed override tables.
// Packages is keyed by package name; Categories maps a category to
// packages added to the ignore list whenever that category is installed.
type OverrideSet struct {
	Packages   map[string]Override `json:"packages,omitempty" yaml:"packages,omitempty"`
	Categories map[string][]string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Merge returns a new set holding the entries of o plus those of extra.
// Entries for the same key are concatenated, never replaced.
func (o OverrideSet) Merge(extra OverrideSet) OverrideSet {
	merged := o.clone()
	for name, ov := range extra.Packages {
		cur := merged.Packages[name]
		cur.Categories = append(cur.Categories, ov.Categories...)
		cur.Addons = append(cur.Addons, ov.Addons...)
		merged.Packages[name] = cur
	}
	for c, ignore := range extra.Categories {
		merged.Categories[c] = append(merged.Categories[c], ignore...)
	}
	return merged
}

func (o OverrideSet) clone() OverrideSet {
	c := OverrideSet{
		Packages:   make(map[string]Override, len(o.Packages)),
		Categories: make(map[string][]string, len(o.Categories)),
	}
	for name, ov := range o.Packages {
		c.Packages[name] = Override{
			Categories: append([]string(nil), ov.Categories...),
			Addons:     append([]string(nil), ov.Addons...),
		}
	}
	for k, v := range o.Categories {
		c.Categories[k] = append([]string(nil), v...)
	}
	return c
}
