package category

// Table is the category layout of one generation of the distribution.
// Prefix is always installed; Priority is walked in order up to and
// including the package's own category.
type Table struct {
	Prefix        []string
	Priority      []string
	DefaultAddons []string
}

// ModernMajor is the first major version using the modern table
const ModernMajor = 8

var legacyTable = Table{
	Prefix: []string{"00_base", "01_minimum"},
	Priority: []string{
		"02_x11", "03_xclassics", "04_xapps", "05_ext",
		"06_xfce", "07_kde", "11_mate", "08_tex",
	},
	DefaultAddons: []string{"plamo/05_ext/devel2.txz/git", "plamo/02_x11/expat"},
}

var modernTable = Table{
	Prefix: []string{"00_base", "01_minimum", "02_devel", "10_printing"},
	Priority: []string{
		"03_libs", "04_x11", "05_ext", "06_xapps", "07_multimedia",
		"08_daemon", "11_xfce", "12_mate", "13_kde", "14_lof", "09_tex",
	},
}

var legacyOverrides = OverrideSet{
	Packages: map[string]Override{
		"grub": {
			Addons: []string{"plamo/02_x11/freetype", "plamo/05_ext/system.txz/efibootmgr"},
		},
		"gobject_introspection": {
			Categories: []string{"02_x11"},
		},
		"sqlite": {
			Addons: []string{"plamo/05_ext/devel2.txz/tcl"},
		},
		"qt5": {
			Categories: []string{"05_ext"},
		},
		"source_highlight": {
			Addons: []string{"plamo/05_ext/devel2.txz/boost"},
		},
	},
	Categories: map[string][]string{
		"06_xfce": {"gimp"},
		"07_kde":  {"libreoffice"},
		"08_tex":  {"texlive_doc"},
	},
}

var modernOverrides = OverrideSet{
	Packages: map[string]Override{
		"grub": {
			Addons: []string{"plamo/03_libs/freetype", "plamo/05_ext/efibootmgr"},
		},
		"gobject_introspection": {
			Categories: []string{"04_x11"},
		},
		"sqlite": {
			Addons: []string{"plamo/02_devel/tcl"},
		},
		"qt5": {
			Categories: []string{"07_multimedia"},
		},
		"source_highlight": {
			Addons: []string{"plamo/03_libs/boost"},
		},
	},
	Categories: map[string][]string{
		"11_xfce": {"gimp"},
		"13_kde":  {"libreoffice"},
		"09_tex":  {"texlive_doc"},
	},
}

// DefaultIgnore is excluded from every environment
var DefaultIgnore = []string{"firefox", "thunderbird", "kernel", "kmod"}

// TableFor returns the category table for a target major version
func TableFor(major int) Table {
	if major >= ModernMajor {
		return modernTable
	}
	return legacyTable
}

// DefaultOverrides returns the built-in override tables for a major version
func DefaultOverrides(major int) OverrideSet {
	if major >= ModernMajor {
		return modernOverrides.clone()
	}
	return legacyOverrides.clone()
}

// Known reports whether c appears in the table for major
func Known(major int, c string) bool {
	return TableFor(major).Rank(c) >= 0
}

// Ordered returns every category of the table in priority order
func (t Table) Ordered() []string {
	all := make([]string, 0, len(t.Prefix)+len(t.Priority))
	all = append(all, t.Prefix...)
	return append(all, t.Priority...)
}

// Rank returns the position of c in Ordered, or -1 when c is unknown
func (t Table) Rank(c string) int {
	for i, v := range t.Ordered() {
		if v == c {
			return i
		}
	}
	return -1
}

func (t Table) inPrefix(c string) bool {
	for _, v := range t.Prefix {
		if v == c {
			return true
		}
	}
	return false
}
