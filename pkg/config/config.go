// Package config builds the immutable run configuration from flags,
// environment variables and an optional config file
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/types"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables bound to options
const EnvPrefix = "PKGBUILD"

// Option keys, shared by flags, environment variables and config files
const (
	KeyBranch          = "branch"
	KeyBaseline        = "baseline"
	KeyBaseDir         = "basedir"
	KeyRepository      = "repository"
	KeyRemote          = "remote"
	KeySourceDir       = "source-dir"
	KeyKeep            = "keep"
	KeyArch            = "arch"
	KeyRelease         = "release"
	KeyFSType          = "fstype"
	KeyInstall         = "install"
	KeyAddon           = "addon"
	KeyContainerLog    = "ct-log-level"
	KeyMirrorHost      = "mirror-host"
	KeyMirrorPath      = "mirror-path"
	KeyLXCPath         = "lxcpath"
	KeyDisableNetwork  = "disable-network"
	KeyRecreateOnWiden = "recreate-on-widen"
	KeyNotify          = "notify"
	KeyOverrides       = "overrides"
	KeyLogFile         = "log-file"
	KeyVerbosity       = "verbosity"
	KeyOutputDir       = "output-dir"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the run configuration. It is built once and passed by value
// to component constructors.
type Config struct {
	CompareBranch  string
	BaselineBranch string
	BaseDir        string
	Repository     string
	RemoteURL      string

	// SourceDir is where the package source tree lives inside each
	// build environment.
	SourceDir string

	Keep            bool
	Archs           []string
	Release         types.Release
	FSType          string
	Install         bool
	Addons          []string
	ContainerLog    string
	MirrorHost      string
	MirrorPath      string
	LXCPath         string
	DisableNetwork  bool
	RecreateOnWiden bool
	Notify          bool

	// OutputDir receives collected artifacts; defaults to the working
	// directory.
	OutputDir string

	Overrides category.OverrideSet
	LogFile   string
	Verbosity string
}

// Defaults returns the default value of every option
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		KeyBranch:          "updatepkg",
		KeyBaseline:        "master",
		KeyBaseDir:         ".",
		KeyRepository:      "Plamo-src",
		KeyRemote:          "https://github.com/plamolinux/Plamo-src.git",
		KeySourceDir:       "/Plamo-src",
		KeyKeep:            false,
		KeyArch:            []string{"x86", "x86_64"},
		KeyRelease:         "6.x",
		KeyFSType:          "dir",
		KeyInstall:         false,
		KeyAddon:           []string{},
		KeyContainerLog:    "INFO",
		KeyMirrorHost:      "repository.plamolinux.org",
		KeyMirrorPath:      "/pub/linux/Plamo",
		KeyLXCPath:         "/var/lib/lxc",
		KeyDisableNetwork:  true,
		KeyRecreateOnWiden: false,
		KeyNotify:          false,
		KeyOverrides:       "",
		KeyLogFile:         "",
		KeyVerbosity:       "info",
		KeyOutputDir:       ".",
	}
}

// SetDefaults registers Defaults with v and enables PKGBUILD_* variables
func SetDefaults(v *viper.Viper) {
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// FromViper reads every option from v, loads the override file if one is
// named, and validates the result
func FromViper(v *viper.Viper) (Config, error) {
	release, err := types.ParseRelease(v.GetString(KeyRelease))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := Config{
		CompareBranch:   v.GetString(KeyBranch),
		BaselineBranch:  v.GetString(KeyBaseline),
		BaseDir:         v.GetString(KeyBaseDir),
		Repository:      v.GetString(KeyRepository),
		RemoteURL:       v.GetString(KeyRemote),
		SourceDir:       v.GetString(KeySourceDir),
		Keep:            v.GetBool(KeyKeep),
		Archs:           splitList(v.GetStringSlice(KeyArch)),
		Release:         release,
		FSType:          v.GetString(KeyFSType),
		Install:         v.GetBool(KeyInstall),
		Addons:          splitList(v.GetStringSlice(KeyAddon)),
		ContainerLog:    v.GetString(KeyContainerLog),
		MirrorHost:      v.GetString(KeyMirrorHost),
		MirrorPath:      v.GetString(KeyMirrorPath),
		LXCPath:         v.GetString(KeyLXCPath),
		DisableNetwork:  v.GetBool(KeyDisableNetwork),
		RecreateOnWiden: v.GetBool(KeyRecreateOnWiden),
		Notify:          v.GetBool(KeyNotify),
		OutputDir:       v.GetString(KeyOutputDir),
		LogFile:         v.GetString(KeyLogFile),
		Verbosity:       v.GetString(KeyVerbosity),
	}

	if path := v.GetString(KeyOverrides); path != "" {
		overrides, err := LoadOverrides(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Overrides = *overrides
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration before any work is done
func (c Config) Validate() error {
	required := map[string]string{
		KeyBranch:     c.CompareBranch,
		KeyBaseline:   c.BaselineBranch,
		KeyRepository: c.Repository,
		KeyRemote:     c.RemoteURL,
		KeySourceDir:  c.SourceDir,
		KeyLXCPath:    c.LXCPath,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidConfig, key)
		}
	}

	if c.CompareBranch == c.BaselineBranch {
		return fmt.Errorf("%w: branch and baseline are both %q", ErrInvalidConfig, c.CompareBranch)
	}

	if len(c.Archs) == 0 {
		return fmt.Errorf("%w: no architectures given", ErrInvalidConfig)
	}
	seen := make(map[string]bool)
	for _, a := range c.Archs {
		if seen[a] {
			return fmt.Errorf("%w: architecture %q given twice", ErrInvalidConfig, a)
		}
		seen[a] = true
	}

	if !filepath.IsAbs(c.SourceDir) {
		return fmt.Errorf("%w: source-dir %q must be absolute", ErrInvalidConfig, c.SourceDir)
	}

	if c.Release.Major <= 0 {
		return fmt.Errorf("%w: release is not set", ErrInvalidConfig)
	}

	for name, ov := range c.Overrides.Packages {
		for _, cat := range ov.Categories {
			if !category.Known(c.Release.Major, cat) {
				return fmt.Errorf("%w: override for %s names unknown category %q", ErrInvalidConfig, name, cat)
			}
		}
	}
	for cat := range c.Overrides.Categories {
		if !category.Known(c.Release.Major, cat) {
			return fmt.Errorf("%w: ignore override for unknown category %q", ErrInvalidConfig, cat)
		}
	}

	return nil
}

// LocalRepo is the host path of the cloned source tree
func (c Config) LocalRepo() string {
	return filepath.Join(c.BaseDir, c.Repository)
}

// StateDir is where pkgbuild keeps logs and environment records
func (c Config) StateDir() string {
	return filepath.Join(c.BaseDir, ".pkgbuild")
}

// splitList accepts both repeated flags and comma/space separated values
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, f)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
