package category_test

import (
	"reflect"
	"testing"

	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

func entry(t *testing.T, path string) types.ChangeEntry {
	t.Helper()
	e, err := types.ParseChangeEntry(path)
	if err != nil {
		t.Fatalf("bad path %q: %v", path, err)
	}
	return e
}

func TestResolve_BaseCategoryYieldsPrefix(t *testing.T) {
	r := category.NewResolver(category.Options{})

	tests := []struct {
		path  string
		major int
		want  []string
	}{
		{"plamo/00_base/glibc", 7, []string{"00_base", "01_minimum"}},
		{"plamo/01_minimum/bash", 7, []string{"00_base", "01_minimum"}},
		{"plamo/00_base/glibc", 8, []string{"00_base", "01_minimum", "02_devel", "10_printing"}},
		{"plamo/02_devel/gcc", 8, []string{"00_base", "01_minimum", "02_devel", "10_printing"}},
		{"plamo/10_printing/cups", 8, []string{"00_base", "01_minimum", "02_devel", "10_printing"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := r.Resolve(entry(t, tt.path), tt.major)
			if !reflect.DeepEqual(got.Categories, tt.want) {
				t.Errorf("categories = %v, want %v", got.Categories, tt.want)
			}
		})
	}
}

func TestResolve_WalksPriorityUpToOwnCategory(t *testing.T) {
	r := category.NewResolver(category.Options{})

	tests := []struct {
		path  string
		major int
		want  []string
	}{
		{
			path:  "plamo/03_libs/zlib",
			major: 8,
			want:  []string{"00_base", "01_minimum", "02_devel", "10_printing", "03_libs"},
		},
		{
			path:  "plamo/02_x11/libX11",
			major: 7,
			want:  []string{"00_base", "01_minimum", "02_x11"},
		},
		{
			path:  "plamo/11_mate/caja",
			major: 7,
			want: []string{"00_base", "01_minimum", "02_x11", "03_xclassics", "04_xapps",
				"05_ext", "06_xfce", "07_kde", "11_mate"},
		},
		{
			path:  "plamo/08_tex/texlive",
			major: 6,
			want: []string{"00_base", "01_minimum", "02_x11", "03_xclassics", "04_xapps",
				"05_ext", "06_xfce", "07_kde", "11_mate", "08_tex"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := r.Resolve(entry(t, tt.path), tt.major)
			if !reflect.DeepEqual(got.Categories, tt.want) {
				t.Errorf("categories = %v, want %v", got.Categories, tt.want)
			}
		})
	}
}

func TestResolve_NoCategoryAfterOwn(t *testing.T) {
	r := category.NewResolver(category.Options{})
	table := category.TableFor(8)

	for i, c := range table.Priority {
		got := r.Resolve(types.ChangeEntry{Path: "plamo/" + c + "/pkg", Category: c, Name: "pkg"}, 8)
		for _, later := range table.Priority[i+1:] {
			for _, have := range got.Categories {
				if have == later {
					t.Errorf("package in %s unexpectedly got later category %s", c, later)
				}
			}
		}
	}
}

func TestResolve_IsPure(t *testing.T) {
	r := category.NewResolver(category.Options{Addons: []string{"plamo/05_ext/ccache"}})
	e := entry(t, "plamo/06_xfce/thunar")

	first := r.Resolve(e, 7)
	for i := 0; i < 10; i++ {
		if got := r.Resolve(e, 7); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d returned %+v, want %+v", i, got, first)
		}
	}

	// Resolving other packages in between must not leak state.
	r.Resolve(entry(t, "plamo/03_libs/sqlite"), 8)
	if got := r.Resolve(e, 7); !reflect.DeepEqual(got, first) {
		t.Fatalf("resolution changed after unrelated call: %+v", got)
	}
}

func TestResolve_NameOverrides(t *testing.T) {
	r := category.NewResolver(category.Options{})

	sqlite := r.Resolve(entry(t, "plamo/03_libs/sqlite"), 8)
	if !contains(sqlite.Addons, "plamo/02_devel/tcl") {
		t.Errorf("expected tcl addon for sqlite, got %v", sqlite.Addons)
	}

	gi := r.Resolve(entry(t, "plamo/03_libs/gobject_introspection"), 8)
	want := []string{"00_base", "01_minimum", "02_devel", "10_printing", "03_libs", "04_x11"}
	if !reflect.DeepEqual(gi.Categories, want) {
		t.Errorf("categories = %v, want %v", gi.Categories, want)
	}

	// Substrings do not match: overrides are keyed by exact name.
	sqliteOdbc := r.Resolve(entry(t, "plamo/03_libs/sqliteodbc"), 8)
	if contains(sqliteOdbc.Addons, "plamo/02_devel/tcl") {
		t.Errorf("unexpected override for sqliteodbc: %v", sqliteOdbc.Addons)
	}
}

func TestResolve_OverridesOnlyAdd(t *testing.T) {
	plain := category.NewResolver(category.Options{})
	extra := category.NewResolver(category.Options{
		Overrides: category.OverrideSet{
			Packages: map[string]category.Override{
				"zlib": {Categories: []string{"05_ext"}, Addons: []string{"plamo/03_libs/minizip"}},
			},
			Categories: map[string][]string{
				"03_libs": {"rust"},
			},
		},
	})

	for _, path := range []string{"plamo/03_libs/zlib", "plamo/05_ext/git", "plamo/00_base/glibc"} {
		e := entry(t, path)
		base := plain.Resolve(e, 8)
		more := extra.Resolve(e, 8)

		for _, c := range base.Categories {
			if !contains(more.Categories, c) {
				t.Errorf("%s: override removed category %s", path, c)
			}
		}
		for _, a := range base.Addons {
			if !contains(more.Addons, a) {
				t.Errorf("%s: override removed addon %s", path, a)
			}
		}
		for _, i := range base.Ignore {
			if !contains(more.Ignore, i) {
				t.Errorf("%s: override removed ignored package %s", path, i)
			}
		}
	}

	zlib := extra.Resolve(entry(t, "plamo/03_libs/zlib"), 8)
	want := []string{"00_base", "01_minimum", "02_devel", "10_printing", "03_libs", "05_ext"}
	if !reflect.DeepEqual(zlib.Categories, want) {
		t.Errorf("categories = %v, want %v", zlib.Categories, want)
	}
	if !contains(zlib.Ignore, "rust") {
		t.Errorf("expected category override in ignore list, got %v", zlib.Ignore)
	}
}

func TestResolve_IgnoreSeededWithDefault(t *testing.T) {
	r := category.NewResolver(category.Options{})

	got := r.Resolve(entry(t, "plamo/07_kde/kate"), 7)
	for _, pkg := range category.DefaultIgnore {
		if !contains(got.Ignore, pkg) {
			t.Errorf("expected default ignore %s in %v", pkg, got.Ignore)
		}
	}
	if !contains(got.Ignore, "libreoffice") || !contains(got.Ignore, "gimp") {
		t.Errorf("expected kde and xfce ignore additions, got %v", got.Ignore)
	}
	if got.Ignore[0] != "firefox" {
		t.Errorf("expected default ignore list first, got %v", got.Ignore)
	}
}

func TestResolve_NoDuplicates(t *testing.T) {
	r := category.NewResolver(category.Options{
		Addons: []string{"plamo/05_ext/devel2.txz/git"},
		Overrides: category.OverrideSet{
			Packages: map[string]category.Override{
				"thunar": {Categories: []string{"02_x11", "06_xfce"}},
			},
		},
	})

	got := r.Resolve(entry(t, "plamo/06_xfce/thunar"), 7)
	seen := map[string]bool{}
	for _, c := range got.Categories {
		if seen[c] {
			t.Errorf("duplicate category %s in %v", c, got.Categories)
		}
		seen[c] = true
	}
	count := 0
	for _, a := range got.Addons {
		if a == "plamo/05_ext/devel2.txz/git" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected git addon once, got %d in %v", count, got.Addons)
	}
}

func TestResolve_DefaultAddonsByVersion(t *testing.T) {
	r := category.NewResolver(category.Options{})

	legacy := r.Resolve(entry(t, "plamo/05_ext/vim"), 7)
	if !contains(legacy.Addons, "plamo/02_x11/expat") {
		t.Errorf("expected legacy default addons, got %v", legacy.Addons)
	}

	modern := r.Resolve(entry(t, "plamo/05_ext/vim"), 8)
	if len(modern.Addons) != 0 {
		t.Errorf("expected no default addons for modern target, got %v", modern.Addons)
	}
}

func TestOverrideSet_Merge(t *testing.T) {
	base := category.DefaultOverrides(8)
	merged := base.Merge(category.OverrideSet{
		Packages: map[string]category.Override{"sqlite": {Addons: []string{"plamo/03_libs/icu"}}},
	})

	if got := merged.Packages["sqlite"].Addons; len(got) != 2 {
		t.Errorf("expected merged addons to be concatenated, got %v", got)
	}
	if got := base.Packages["sqlite"].Addons; len(got) != 1 {
		t.Errorf("merge mutated the receiver: %v", got)
	}
}

func TestKnown(t *testing.T) {
	if !category.Known(8, "03_libs") {
		t.Error("03_libs should be known for 8")
	}
	if category.Known(7, "03_libs") {
		t.Error("03_libs should not be known for 7")
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
