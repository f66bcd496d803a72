// Package engine drives a build run: it resolves the change-set, plans
// jobs and takes each one through environment setup, the build pipeline,
// artifact collection and teardown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/artifact"
	pcontext "github.com/plamolinux/pkgbuild/pkg/context"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/pipeline"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Phases reported in FatalError.Stage besides the pipeline steps
const (
	PhaseChanges     = "changes"
	PhaseLock        = "lock"
	PhaseEnvironment = "environment"
	PhaseInstall     = pipeline.StepInstall
	PhaseDestroy     = "destroy"
)

// ErrLocked is returned when another live run holds an environment
var ErrLocked = errors.New("environment in use by another run")

// Options controls a run
type Options struct {
	Baseline string
	Compare  string
	Archs    []string
	Release  types.Release

	// Keep leaves environments running for the following jobs instead
	// of destroying them after each successful build.
	Keep bool

	// Install installs collected packages into the environment.
	Install bool

	// RecreateOnWiden destroys a reused environment whose profile does
	// not cover the next job.
	RecreateOnWiden bool
}

// Orchestrator runs every job of a change-set, one at a time
type Orchestrator struct {
	deps    Dependencies
	opts    Options
	logger  logger.Logger
	claimed map[string]*types.ContainerHandle
}

// New creates an Orchestrator. Changes, Profiles, Environments, Pipeline
// and Collector are required.
func New(opts Options, deps Dependencies, log logger.Logger) *Orchestrator {
	if deps.Changes == nil {
		panic("ChangeResolver dependency is required")
	}
	if deps.Profiles == nil {
		panic("ProfileResolver dependency is required")
	}
	if deps.Environments == nil {
		panic("EnvironmentManager dependency is required")
	}
	if deps.Pipeline == nil {
		panic("PipelineRunner dependency is required")
	}
	if deps.Collector == nil {
		panic("ArtifactCollector dependency is required")
	}

	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		logger:  log,
		claimed: make(map[string]*types.ContainerHandle),
	}
}

// Run builds the change-set between the baseline and compare references.
// The returned Report covers every job that started, also on failure. A
// Fatal condition returns a *FatalError; collection failures let the run
// finish and return an error wrapping ErrIncomplete.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx = pcontext.EnrichContext(ctx)

	report := &Report{}
	err := o.run(ctx, report)
	report.Duration = time.Since(start)

	log := logger.WithContext(ctx, o.logger)
	if err != nil {
		log.Error("Run failed", logger.WithError(err))
	} else {
		log.Success(report.String())
	}
	o.notify(report, err)
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, report *Report) error {
	if err := o.checkLocks(); err != nil {
		return err
	}

	entries, err := o.deps.Changes.Resolve(ctx, o.opts.Baseline, o.opts.Compare)
	if err != nil {
		return &FatalError{Stage: PhaseChanges, Err: err}
	}
	report.Changes = len(entries)
	if len(entries) == 0 {
		o.logger.Info(fmt.Sprintf("No package changes between %s and %s", o.opts.Baseline, o.opts.Compare))
		return nil
	}

	jobs := Plan(entries, o.opts.Archs, o.opts.Release.Major, o.opts.Baseline, o.opts.Compare)
	o.logger.Info(fmt.Sprintf("Building %d job(s) for %d changed package(s)", len(jobs), len(entries)))

	if o.deps.State != nil {
		o.deps.State.StartHeartbeat(ctx)
		defer func() {
			o.deps.State.StopHeartbeat()
			if err := o.deps.State.Release(); err != nil {
				o.logger.Warn("Failed to release environment records", logger.WithError(err))
			}
		}()
	}

	incomplete := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return &FatalError{Stage: PhaseEnvironment, Job: job.String(), Err: err}
		}

		res, err := o.runJob(ctx, job)
		report.Jobs = append(report.Jobs, res)
		if err != nil {
			return err
		}
		if res.CollectErr != nil {
			incomplete++
		}
	}

	if incomplete > 0 {
		return fmt.Errorf("%w: artifacts of %d job(s) were not collected", ErrIncomplete, incomplete)
	}
	return nil
}

func (o *Orchestrator) checkLocks() error {
	if o.deps.State == nil {
		return nil
	}
	for _, arch := range o.opts.Archs {
		locked, err := o.deps.State.IsLocked(arch)
		if err != nil {
			return &FatalError{Stage: PhaseLock, Err: err}
		}
		if locked {
			return &FatalError{Stage: PhaseLock, Err: fmt.Errorf("%w: %s", ErrLocked, arch)}
		}
	}
	return nil
}

func (o *Orchestrator) runJob(ctx context.Context, job types.Job) (JobResult, error) {
	log := o.logger.WithTarget(job.String())
	res := JobResult{Job: job.String()}
	needed := o.deps.Profiles.Resolve(job.Package, o.opts.Release.Major)

	h, err := o.environment(ctx, job, needed, log)
	if err != nil {
		return res, &FatalError{Stage: PhaseEnvironment, Job: job.String(), Err: err}
	}

	outcome := o.deps.Pipeline.Run(ctx, job, h)
	res.Outcome = outcome.Kind
	res.Stage = outcome.Stage
	res.Reason = outcome.Reason
	switch outcome.Kind {
	case types.OutcomeSkipped:
		return res, nil
	case types.OutcomeFatal:
		return res, &FatalError{Stage: outcome.Stage, Job: job.String(), Err: outcome.Err}
	}

	transfers, err := o.deps.Collector.Collect(ctx, job, h)
	res.Artifacts = artifact.Copied(transfers)
	if err != nil {
		res.CollectErr = err
		log.Error("Artifact collection incomplete", logger.WithError(err))
	}

	if o.opts.Install && len(res.Artifacts) > 0 {
		if err := o.deps.Pipeline.Install(ctx, job, h, res.Artifacts); err != nil {
			return res, &FatalError{Stage: PhaseInstall, Job: job.String(), Err: err}
		}
	}

	if o.deps.State != nil {
		if err := o.deps.State.RecordBuild(job.Arch, job.String()); err != nil {
			log.Warn("Failed to record build", logger.WithError(err))
		}
	}

	if o.opts.Keep {
		return res, nil
	}
	if err := o.deps.Environments.Destroy(ctx, h); err != nil {
		return res, &FatalError{Stage: PhaseDestroy, Job: job.String(), Err: err}
	}
	o.forget(job.Arch)
	return res, nil
}

// environment returns a running environment for job. A reused environment
// keeps the profile it was created with; when that profile does not cover
// needed it is either used as is with a warning or recreated.
func (o *Orchestrator) environment(ctx context.Context, job types.Job, needed types.EnvironmentProfile, log logger.Logger) (*types.ContainerHandle, error) {
	profile := func() types.EnvironmentProfile { return needed }

	h, err := o.deps.Environments.Ensure(ctx, job.Arch, profile)
	if err != nil {
		return nil, err
	}
	o.claim(h)

	if h.Profile == nil || h.Profile.Covers(needed) {
		return h, nil
	}

	missing := h.Profile.Missing(needed)
	if !o.opts.RecreateOnWiden {
		log.Warn(fmt.Sprintf("Environment %s was created for a narrower profile", h.Name),
			logger.WithField("missing", strings.Join(missing, " ")))
		return h, nil
	}

	log.Info(fmt.Sprintf("Recreating environment %s", h.Name),
		logger.WithField("missing", strings.Join(missing, " ")))
	if err := o.deps.Environments.Destroy(ctx, h); err != nil {
		return nil, err
	}
	o.forget(job.Arch)

	h, err = o.deps.Environments.Ensure(ctx, job.Arch, profile)
	if err != nil {
		return nil, err
	}
	o.claim(h)
	return h, nil
}

// claim records h once per handle and fills in a profile remembered from
// an earlier run
func (o *Orchestrator) claim(h *types.ContainerHandle) {
	if o.deps.State == nil || o.claimed[h.Arch] == h {
		return
	}
	rec, err := o.deps.State.Claim(h, o.opts.Release.ID)
	if err != nil {
		o.logger.Warn("Failed to record environment", logger.WithField("name", h.Name), logger.WithError(err))
		return
	}
	o.claimed[h.Arch] = h
	if h.Profile == nil && rec.Profile != nil {
		h.Profile = rec.Profile
	}
}

func (o *Orchestrator) forget(arch string) {
	delete(o.claimed, arch)
	if o.deps.State == nil {
		return
	}
	if err := o.deps.State.Remove(arch); err != nil {
		o.logger.Warn("Failed to remove environment record", logger.WithField("arch", arch), logger.WithError(err))
	}
}

func (o *Orchestrator) notify(report *Report, err error) {
	if o.deps.Notifier == nil {
		return
	}
	if err != nil {
		var fatal *FatalError
		job := ""
		if errors.As(err, &fatal) {
			job = fatal.Job
		}
		o.deps.Notifier.NotifyRunFailure(job, err)
		return
	}
	o.deps.Notifier.NotifyRunSuccess(len(report.Built()), len(report.Skipped()), report.Duration)
}
