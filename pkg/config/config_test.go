package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/config"
	"github.com/plamolinux/pkgbuild/pkg/types"
	"github.com/spf13/viper"
)

func newViper(t *testing.T, values map[string]interface{}) *viper.Viper {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := config.FromViper(newViper(t, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CompareBranch != "updatepkg" {
		t.Errorf("expected compare branch updatepkg, got %s", cfg.CompareBranch)
	}
	if cfg.BaselineBranch != "master" {
		t.Errorf("expected baseline master, got %s", cfg.BaselineBranch)
	}
	if cfg.Release.Major != 6 {
		t.Errorf("expected major 6, got %d", cfg.Release.Major)
	}
	if len(cfg.Archs) != 2 || cfg.Archs[0] != "x86" || cfg.Archs[1] != "x86_64" {
		t.Errorf("unexpected archs %v", cfg.Archs)
	}
	if !cfg.DisableNetwork {
		t.Error("expected network to be disabled by default")
	}
	if cfg.Keep || cfg.Install || cfg.RecreateOnWiden {
		t.Error("expected keep, install and recreate-on-widen to be off")
	}
	if cfg.LXCPath != "/var/lib/lxc" {
		t.Errorf("expected /var/lib/lxc, got %s", cfg.LXCPath)
	}
	if cfg.LocalRepo() != "Plamo-src" {
		t.Errorf("expected Plamo-src, got %s", cfg.LocalRepo())
	}
}

func TestFromViper_Env(t *testing.T) {
	t.Setenv("PKGBUILD_RELEASE", "8.0")
	t.Setenv("PKGBUILD_MIRROR_HOST", "mirror.example.org")

	cfg, err := config.FromViper(newViper(t, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Release.Major != 8 {
		t.Errorf("expected major 8, got %d", cfg.Release.Major)
	}
	if cfg.MirrorHost != "mirror.example.org" {
		t.Errorf("expected mirror host from env, got %s", cfg.MirrorHost)
	}
}

func TestFromViper_ListSplitting(t *testing.T) {
	cfg, err := config.FromViper(newViper(t, map[string]interface{}{
		config.KeyArch:  []string{"x86_64"},
		config.KeyAddon: []string{"plamo/05_ext/foo, plamo/05_ext/bar"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Archs) != 1 || cfg.Archs[0] != "x86_64" {
		t.Errorf("unexpected archs %v", cfg.Archs)
	}
	if len(cfg.Addons) != 2 || cfg.Addons[1] != "plamo/05_ext/bar" {
		t.Errorf("unexpected addons %v", cfg.Addons)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"bad release", map[string]interface{}{config.KeyRelease: "current"}},
		{"same branches", map[string]interface{}{config.KeyBranch: "master"}},
		{"no arch", map[string]interface{}{config.KeyArch: []string{}}},
		{"duplicate arch", map[string]interface{}{config.KeyArch: []string{"x86", "x86"}}},
		{"relative source dir", map[string]interface{}{config.KeySourceDir: "Plamo-src"}},
		{"empty remote", map[string]interface{}{config.KeyRemote: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromViper(newViper(t, tt.values))
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidate_OverrideCategories(t *testing.T) {
	base := config.Config{
		CompareBranch:  "updatepkg",
		BaselineBranch: "master",
		Repository:     "Plamo-src",
		RemoteURL:      "https://example.org/src.git",
		SourceDir:      "/Plamo-src",
		LXCPath:        "/var/lib/lxc",
		Archs:          []string{"x86_64"},
		Release:        types.Release{ID: "8.0", Major: 8},
	}

	good := base
	good.Overrides = category.OverrideSet{
		Packages: map[string]category.Override{"zlib": {Categories: []string{"05_ext"}}},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := base
	bad.Overrides = category.OverrideSet{
		Packages: map[string]category.Override{"zlib": {Categories: []string{"99_nope"}}},
	}
	if err := bad.Validate(); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	badIgnore := base
	badIgnore.Overrides = category.OverrideSet{
		Categories: map[string][]string{"03_xclassics": {"xterm"}},
	}
	if err := badIgnore.Validate(); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for legacy category on 8.x, got %v", err)
	}
}

func TestLoadOverrides_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	data := `{"packages":{"Qt5":{"categories":["04_x11"],"addons":["plamo/05_ext/foo"]}},"categories":{"13_kde":["kate"]}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := config.LoadOverrides(path)
	if err != nil {
		t.Fatalf("failed to load overrides: %v", err)
	}
	ov, ok := set.Packages["Qt5"]
	if !ok {
		t.Fatalf("expected key Qt5 to keep its case, got %v", set.Packages)
	}
	if len(ov.Categories) != 1 || ov.Categories[0] != "04_x11" {
		t.Errorf("unexpected categories %v", ov.Categories)
	}
	if got := set.Categories["13_kde"]; len(got) != 1 || got[0] != "kate" {
		t.Errorf("unexpected category ignore %v", got)
	}
}

func TestLoadOverrides_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	data := `packages:
  grub:
    categories: [05_ext]
categories:
  11_xfce: [parole]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := config.LoadOverrides(path)
	if err != nil {
		t.Fatalf("failed to load overrides: %v", err)
	}
	if got := set.Packages["grub"].Categories; len(got) != 1 || got[0] != "05_ext" {
		t.Errorf("unexpected grub categories %v", got)
	}
	if got := set.Categories["11_xfce"]; len(got) != 1 || got[0] != "parole" {
		t.Errorf("unexpected ignore list %v", got)
	}
}

func TestLoadOverrides_Errors(t *testing.T) {
	if _, err := config.LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "broken")
	if err := os.WriteFile(path, []byte("packages: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.LoadOverrides(path); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFromViper_OverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	if err := os.WriteFile(path, []byte("packages:\n  zlib:\n    categories: [99_nope]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.FromViper(newViper(t, map[string]interface{}{
		config.KeyRelease:   "8.0",
		config.KeyOverrides: path,
	}))
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
