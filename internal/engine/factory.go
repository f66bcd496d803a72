package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/plamolinux/pkgbuild/pkg/artifact"
	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/config"
	"github.com/plamolinux/pkgbuild/pkg/container"
	"github.com/plamolinux/pkgbuild/pkg/executor"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/notifier"
	"github.com/plamolinux/pkgbuild/pkg/pipeline"
	"github.com/plamolinux/pkgbuild/pkg/state"
	"github.com/plamolinux/pkgbuild/pkg/vcs"
)

// DependencyFactory builds the collaborators of an Orchestrator from a
// run configuration
type DependencyFactory struct {
	config  config.Config
	logger  logger.Logger
	runtime container.Runtime
	diff    vcs.DiffSource
	sleep   container.SleepFunc
}

// NewDependencyFactory creates a factory for cfg
func NewDependencyFactory(cfg config.Config, log logger.Logger) *DependencyFactory {
	return &DependencyFactory{config: cfg, logger: log}
}

// WithRuntime replaces the LXC runtime
func (f *DependencyFactory) WithRuntime(rt container.Runtime) *DependencyFactory {
	f.runtime = rt
	return f
}

// WithDiffSource replaces the host repository as the source of changes
func (f *DependencyFactory) WithDiffSource(src vcs.DiffSource) *DependencyFactory {
	f.diff = src
	return f
}

// WithSleep replaces the wait between network probes
func (f *DependencyFactory) WithSleep(fn container.SleepFunc) *DependencyFactory {
	f.sleep = fn
	return f
}

// Options returns the orchestrator options of the configuration
func (f *DependencyFactory) Options() Options {
	return Options{
		Baseline:        f.config.BaselineBranch,
		Compare:         f.config.CompareBranch,
		Archs:           f.config.Archs,
		Release:         f.config.Release,
		Keep:            f.config.Keep,
		Install:         f.config.Install,
		RecreateOnWiden: f.config.RecreateOnWiden,
	}
}

// CreateDefaults creates every dependency
func (f *DependencyFactory) CreateDefaults() (Dependencies, error) {
	rt, err := f.createRuntime()
	if err != nil {
		return Dependencies{}, err
	}
	manager := f.createManager(rt)

	return Dependencies{
		Changes:      vcs.NewChangeSetResolver(f.createDiffSource(), f.logger),
		Profiles:     f.createProfileResolver(),
		Environments: manager,
		Pipeline:     f.createPipeline(manager),
		Collector:    artifact.NewCollector(rt, f.config.SourceDir, f.config.OutputDir, f.config.Release.Major, f.logger),
		State:        state.NewStateManager(f.config.StateDir(), f.logger),
		Notifier:     notifier.New(notifier.Config{Enabled: f.config.Notify}, f.logger),
	}, nil
}

// CreateWithOverrides creates every dependency and replaces those set in
// overrides
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) (Dependencies, error) {
	deps, err := f.CreateDefaults()
	if err != nil {
		return Dependencies{}, err
	}

	if overrides.Changes != nil {
		deps.Changes = overrides.Changes
	}
	if overrides.Profiles != nil {
		deps.Profiles = overrides.Profiles
	}
	if overrides.Environments != nil {
		deps.Environments = overrides.Environments
	}
	if overrides.Pipeline != nil {
		deps.Pipeline = overrides.Pipeline
	}
	if overrides.Collector != nil {
		deps.Collector = overrides.Collector
	}
	if overrides.State != nil {
		deps.State = overrides.State
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	return deps, nil
}

func (f *DependencyFactory) createRuntime() (container.Runtime, error) {
	if f.runtime != nil {
		return f.runtime, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return container.NewLXC(executor.NewRunner(f.logger), f.config.LXCPath, home, f.logger), nil
}

func (f *DependencyFactory) createManager(rt container.Runtime) *container.Manager {
	m := container.NewManager(rt, container.ManagerConfig{
		Release:        f.config.Release.ID,
		FSType:         f.config.FSType,
		MirrorHost:     f.config.MirrorHost,
		MirrorPath:     f.config.MirrorPath,
		LogLevel:       f.config.ContainerLog,
		DisableNetwork: f.config.DisableNetwork,
		ProbeHost:      probeHost(f.config.RemoteURL, f.config.MirrorHost),
	}, f.logger)
	if f.sleep != nil {
		m.SetSleep(f.sleep)
	}
	return m
}

func (f *DependencyFactory) createPipeline(env pipeline.Environment) *pipeline.Runner {
	return pipeline.NewRunner(env, pipeline.Options{
		SourceDir: f.config.SourceDir,
		RemoteURL: f.config.RemoteURL,
		LogDir:    filepath.Join(f.config.StateDir(), "logs"),
	}, f.logger)
}

func (f *DependencyFactory) createProfileResolver() *category.Resolver {
	return category.NewResolver(category.Options{
		Addons:    f.config.Addons,
		Overrides: f.config.Overrides,
	})
}

func (f *DependencyFactory) createDiffSource() vcs.DiffSource {
	if f.diff != nil {
		return f.diff
	}
	return &hostRepository{
		opts: vcs.Options{
			Path:      f.config.LocalRepo(),
			RemoteURL: f.config.RemoteURL,
			Baseline:  f.config.BaselineBranch,
			Compare:   f.config.CompareBranch,
		},
		logger: f.logger,
	}
}

// hostRepository syncs the host clone before the first diff
type hostRepository struct {
	opts   vcs.Options
	logger logger.Logger
	repo   *vcs.Repository
}

func (h *hostRepository) ChangedDirectories(ctx context.Context, base, compare string) ([]string, error) {
	if h.repo == nil {
		repo, err := vcs.Sync(ctx, h.opts, h.logger)
		if err != nil {
			return nil, err
		}
		h.repo = repo
	}
	return h.repo.ChangedDirectories(ctx, base, compare)
}

// probeHost is the host the source clone talks to: the host of remote, or
// fallback when remote is a local path or scp-style address without one
func probeHost(remote, fallback string) string {
	if u, err := url.Parse(remote); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return fallback
}
