package engine

import (
	"context"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/state"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// ChangeResolver lists the packages that differ between two references.
// Implemented by vcs.ChangeSetResolver.
type ChangeResolver interface {
	Resolve(ctx context.Context, baseline, compare string) ([]types.ChangeEntry, error)
}

// ProfileResolver computes the environment a package needs.
// Implemented by category.Resolver.
type ProfileResolver interface {
	Resolve(entry types.ChangeEntry, major int) types.EnvironmentProfile
}

// EnvironmentManager owns the per-architecture build environments.
// Implemented by container.Manager.
type EnvironmentManager interface {
	Ensure(ctx context.Context, arch string, profile func() types.EnvironmentProfile) (*types.ContainerHandle, error)
	Destroy(ctx context.Context, h *types.ContainerHandle) error
}

// PipelineRunner builds one job inside a running environment.
// Implemented by pipeline.Runner.
type PipelineRunner interface {
	Run(ctx context.Context, job types.Job, h *types.ContainerHandle) types.PipelineOutcome
	Install(ctx context.Context, job types.Job, h *types.ContainerHandle, files []string) error
}

// ArtifactCollector copies built packages to the host.
// Implemented by artifact.Collector.
type ArtifactCollector interface {
	Collect(ctx context.Context, job types.Job, h *types.ContainerHandle) ([]types.FileTransfer, error)
}

// StateStore persists what is known about kept environments.
// Implemented by state.StateManager.
type StateStore interface {
	IsLocked(arch string) (bool, error)
	Claim(h *types.ContainerHandle, release string) (*state.EnvironmentRecord, error)
	RecordBuild(arch, job string) error
	Remove(arch string) error
	StartHeartbeat(ctx context.Context)
	StopHeartbeat()
	Release() error
}

// RunNotifier reports the end of a run.
// Implemented by notifier.RunNotifier.
type RunNotifier interface {
	NotifyRunSuccess(built, skipped int, duration time.Duration)
	NotifyRunFailure(job string, err error)
}

// Dependencies holds the collaborators of an Orchestrator. State and
// Notifier are optional.
type Dependencies struct {
	Changes      ChangeResolver
	Profiles     ProfileResolver
	Environments EnvironmentManager
	Pipeline     PipelineRunner
	Collector    ArtifactCollector
	State        StateStore
	Notifier     RunNotifier
}
