// Package category decides which distribution categories, addon packages
// and ignored packages a build environment needs for a given package.
//
// A package in category C gets the version's base prefix plus every
// category up to and including C in a fixed priority order. That
// approximates a dependency closure without computing one. Per-package
// and per-category override tables then add (never remove) entries.
package category

import (
	"sort"

	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Options configures a Resolver
type Options struct {
	// Ignore seeds every profile's ignore list. Nil means DefaultIgnore.
	Ignore []string

	// Addons are added to every profile after the table defaults.
	Addons []string

	// Overrides are merged on top of the built-in override tables.
	Overrides OverrideSet
}

// Resolver maps a changed package to the EnvironmentProfile needed to
// build it. It holds no mutable state.
type Resolver struct {
	ignore []string
	addons []string
	legacy OverrideSet
	modern OverrideSet
}

// NewResolver creates a resolver
func NewResolver(opts Options) *Resolver {
	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}
	return &Resolver{
		ignore: append([]string(nil), ignore...),
		addons: append([]string(nil), opts.Addons...),
		legacy: legacyOverrides.Merge(opts.Overrides),
		modern: modernOverrides.Merge(opts.Overrides),
	}
}

// Resolve returns the profile for entry on the given target major version.
// Identical inputs always produce identical output.
func (r *Resolver) Resolve(entry types.ChangeEntry, major int) types.EnvironmentProfile {
	table := TableFor(major)
	overrides := r.legacy
	if major >= ModernMajor {
		overrides = r.modern
	}

	categories := newOrderedSet()
	categories.add(table.Prefix...)
	if !table.inPrefix(entry.Category) {
		for _, c := range table.Priority {
			categories.add(c)
			if c == entry.Category {
				break
			}
		}
	}

	addons := newOrderedSet()
	addons.add(table.DefaultAddons...)
	addons.add(r.addons...)

	if ov, ok := overrides.Packages[entry.Name]; ok {
		categories.add(ov.Categories...)
		addons.add(ov.Addons...)
	}

	ordered := table.sort(categories.values())

	ignore := newOrderedSet()
	ignore.add(r.ignore...)
	for _, c := range ordered {
		ignore.add(overrides.Categories[c]...)
	}

	return types.EnvironmentProfile{
		Categories: ordered,
		Addons:     addons.values(),
		Ignore:     ignore.values(),
	}
}

// sort orders categories by table rank; unknown categories keep their
// relative order after the known ones
func (t Table) sort(categories []string) []string {
	out := append([]string(nil), categories...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := t.Rank(out[i]), t.Rank(out[j])
		if ri < 0 {
			return false
		}
		if rj < 0 {
			return true
		}
		return ri < rj
	})
	return out
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if v == "" || s.seen[v] {
			continue
		}
		s.seen[v] = true
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) values() []string {
	if len(s.items) == 0 {
		return []string{}
	}
	return append([]string(nil), s.items...)
}
