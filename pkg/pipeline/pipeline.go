// Package pipeline runs the fixed build sequence for one package inside a
// running build environment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	pcontext "github.com/plamolinux/pkgbuild/pkg/context"
	"github.com/plamolinux/pkgbuild/pkg/executor"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/types"
	"github.com/plamolinux/pkgbuild/pkg/vcs"
)

// Step names reported in outcomes and logs
const (
	StepCleanup    = "cleanup"
	StepSource     = "source"
	StepCompare    = "compare"
	StepPackageDir = "package-dir"
	StepRecipe     = "recipe"
	StepInstall    = "install"
)

// Recipe stages, in execution order
const (
	StageDownload  = "download"
	StageConfigure = "configure"
	StageBuild     = "build"
	StagePackage   = "package"
)

// Stages lists the recipe stages in the order they run
var Stages = []string{StageDownload, StageConfigure, StageBuild, StagePackage}

// recipeVerbs maps a stage to the argument the recipe script expects
var recipeVerbs = map[string]string{
	StageDownload:  "download",
	StageConfigure: "config",
	StageBuild:     "build",
	StagePackage:   "package",
}

// RecipePattern matches build recipe files in a package directory
const RecipePattern = vcs.RecipePrefix + "*"

var (
	// ErrStageFailed is wrapped by Fatal outcomes of the recipe stages
	ErrStageFailed = errors.New("recipe stage failed")

	// ErrInstallFailed is returned when built packages cannot be installed
	ErrInstallFailed = errors.New("package install failed")
)

// Environment executes commands inside a build environment
type Environment interface {
	Exec(ctx context.Context, h *types.ContainerHandle, argv []string, out io.Writer) (*executor.Result, error)
	WaitNetwork(ctx context.Context, h *types.ContainerHandle) error
}

// Options configures the runner
type Options struct {
	// SourceDir is the source tree location inside the environment
	SourceDir string
	RemoteURL string

	// LogDir receives one build log per job; empty disables build logs
	LogDir string
}

// Runner executes the build pipeline
type Runner struct {
	env    Environment
	opts   Options
	logger logger.Logger
}

// NewRunner creates a pipeline runner
func NewRunner(env Environment, opts Options, log logger.Logger) *Runner {
	return &Runner{env: env, opts: opts, logger: log}
}

// PackageDir returns the package directory inside the environment
func (r *Runner) PackageDir(job types.Job) string {
	return path.Join(r.opts.SourceDir, job.Package.Path)
}

// Run executes every step for job. A missing package directory or recipe
// ends the job with a Skipped outcome. A failed source sync or recipe stage
// is Fatal. Stale artifact cleanup failures are only logged.
func (r *Runner) Run(ctx context.Context, job types.Job, h *types.ContainerHandle) types.PipelineOutcome {
	startTime := time.Now()
	ctx = pcontext.WithJob(ctx, job.String())
	log := r.logger.WithTarget(job.String())

	var out io.Writer
	logFile, err := r.prepareLogFile(job)
	if err != nil {
		log.Warn(fmt.Sprintf("Failed to create build log: %v", err))
	}
	if logFile != nil {
		out = logFile
		defer logFile.Close()
	}

	r.logToFile(out, fmt.Sprintf("\n=== %s started at %s ===\n", job, startTime.Format("2006-01-02 15:04:05")))

	outcome := r.run(ctx, job, h, out, log)

	duration := time.Since(startTime)
	r.logToFile(out, fmt.Sprintf("\n=== %s %s after %s ===\n", job, outcome, duration.Round(time.Second)))

	switch outcome.Kind {
	case types.OutcomeSucceeded:
		log.Success(fmt.Sprintf("Built in %s", duration.Round(time.Second)))
	case types.OutcomeSkipped:
		log.Warn(fmt.Sprintf("Skipped: %s", outcome.Reason), logger.WithField("step", outcome.Stage))
	case types.OutcomeFatal:
		log.Error("Build failed", logger.WithField("step", outcome.Stage), logger.WithError(outcome.Err))
	}
	return outcome
}

func (r *Runner) run(ctx context.Context, job types.Job, h *types.ContainerHandle, logFile io.Writer, log logger.Logger) types.PipelineOutcome {
	pkgDir := r.PackageDir(job)
	src := r.opts.SourceDir

	r.cleanup(pcontext.WithStage(ctx, StepCleanup), h, pkgDir, log)

	if err := r.syncSource(pcontext.WithStage(ctx, StepSource), job, h, logFile); err != nil {
		return types.Fatal(StepSource, err)
	}

	sctx := pcontext.WithStage(ctx, StepCompare)
	for _, argv := range [][]string{
		{"git", "-C", src, "fetch", "origin", job.CompareRef},
		{"git", "-C", src, "checkout", job.CompareRef},
		{"git", "-C", src, "pull", "--ff-only", "origin", job.CompareRef},
	} {
		if _, err := r.env.Exec(sctx, h, argv, logFile); err != nil {
			return types.Fatal(StepCompare, fmt.Errorf("%w: %s: %v", vcs.ErrSyncFailed, strings.Join(argv[3:], " "), err))
		}
	}

	ok, err := r.probe(pcontext.WithStage(ctx, StepPackageDir), h, []string{"test", "-d", pkgDir})
	if err != nil {
		return types.Fatal(StepPackageDir, err)
	}
	if !ok {
		return types.Skipped(StepPackageDir, fmt.Sprintf("%s does not exist on %s", job.Package.Path, job.CompareRef))
	}

	recipe, err := r.findRecipe(pcontext.WithStage(ctx, StepRecipe), h, pkgDir)
	if err != nil {
		return types.Fatal(StepRecipe, err)
	}
	if recipe == "" {
		return types.Skipped(StepRecipe, fmt.Sprintf("no %s in %s", RecipePattern, job.Package.Path))
	}
	log.Debug("Using recipe", logger.WithField("recipe", recipe))

	for _, stage := range Stages {
		stageCtx := pcontext.WithStartTime(pcontext.WithStage(ctx, stage), time.Now())
		argv := []string{"sh", "-c", `cd "$1" && exec "./$2" "$3"`, "sh", pkgDir, recipe, recipeVerbs[stage]}

		log.Info(fmt.Sprintf("Running %s stage", stage))
		r.logToFile(logFile, fmt.Sprintf("\n--- %s ---\n", stage))

		res, err := r.env.Exec(stageCtx, h, argv, logFile)
		if err != nil {
			exitCode := -1
			if res != nil {
				exitCode = res.ExitCode
			}
			return types.Fatal(stage, fmt.Errorf("%w: %s %s (exit %d): %v", ErrStageFailed, recipe, stage, exitCode, err))
		}
		logger.WithContext(stageCtx, log).Debug("Stage finished")
	}

	return types.Succeeded(recipe)
}

// cleanup removes work directories and packages left by an earlier build
func (r *Runner) cleanup(ctx context.Context, h *types.ContainerHandle, pkgDir string, log logger.Logger) {
	argv := []string{"find", pkgDir, "-maxdepth", "1",
		"(", "-name", "work", "-o", "-name", "*.txz", ")",
		"-exec", "rm", "-rf", "{}", "+"}
	if _, err := r.env.Exec(ctx, h, argv, nil); err != nil {
		log.Warn("Failed to remove stale build files", logger.WithError(err))
	}
}

// syncSource makes sure the source tree exists inside the environment and
// is on an up to date baseline branch
func (r *Runner) syncSource(ctx context.Context, job types.Job, h *types.ContainerHandle, out io.Writer) error {
	src := r.opts.SourceDir

	present, err := r.probe(ctx, h, []string{"test", "-d", path.Join(src, ".git")})
	if err != nil {
		return err
	}

	if !present {
		if err := r.env.WaitNetwork(ctx, h); err != nil {
			return err
		}
		if _, err := r.env.Exec(ctx, h, []string{"git", "clone", r.opts.RemoteURL, src}, out); err != nil {
			return fmt.Errorf("%w: clone %s: %v", vcs.ErrSyncFailed, r.opts.RemoteURL, err)
		}
		return nil
	}

	for _, argv := range [][]string{
		{"git", "-C", src, "checkout", job.BaselineRef},
		{"git", "-C", src, "pull", "--ff-only", "origin", job.BaselineRef},
	} {
		if _, err := r.env.Exec(ctx, h, argv, out); err != nil {
			return fmt.Errorf("%w: %s: %v", vcs.ErrSyncFailed, strings.Join(argv[3:], " "), err)
		}
	}
	return nil
}

// probe runs a test command. A non-zero exit is a negative answer; only a
// command that could not be run is an error.
func (r *Runner) probe(ctx context.Context, h *types.ContainerHandle, argv []string) (bool, error) {
	_, err := r.env.Exec(ctx, h, argv, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, executor.ErrCommandFailed):
		return false, nil
	default:
		return false, err
	}
}

// findRecipe returns the file name of the package's recipe, or "" if none
func (r *Runner) findRecipe(ctx context.Context, h *types.ContainerHandle, pkgDir string) (string, error) {
	argv := []string{"find", pkgDir, "-maxdepth", "1", "-type", "f", "-name", RecipePattern}
	res, err := r.env.Exec(ctx, h, argv, nil)
	if err != nil {
		if errors.Is(err, executor.ErrCommandFailed) {
			return "", nil
		}
		return "", err
	}

	var recipes []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			recipes = append(recipes, path.Base(line))
		}
	}
	if len(recipes) == 0 {
		return "", nil
	}
	sort.Strings(recipes)
	return recipes[0], nil
}

// Install installs built packages into the running environment so later
// jobs can build against them. paths are file names inside the package
// directory.
func (r *Runner) Install(ctx context.Context, job types.Job, h *types.ContainerHandle, files []string) error {
	if len(files) == 0 {
		return nil
	}
	ctx = pcontext.WithStage(pcontext.WithJob(ctx, job.String()), StepInstall)

	argv := []string{"updatepkg", "-f"}
	for _, f := range files {
		argv = append(argv, path.Join(r.PackageDir(job), path.Base(f)))
	}
	if _, err := r.env.Exec(ctx, h, argv, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInstallFailed, job, err)
	}
	r.logger.WithTarget(job.String()).Info(fmt.Sprintf("Installed %d package(s) into %s", len(files), h.Name))
	return nil
}

// prepareLogFile opens the build log of job for appending
func (r *Runner) prepareLogFile(job types.Job) (*os.File, error) {
	if r.opts.LogDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(r.opts.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(r.LogPath(job), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logFile, nil
}

// LogPath returns the build log path of job
func (r *Runner) LogPath(job types.Job) string {
	return filepath.Join(r.opts.LogDir, fmt.Sprintf("%s-%s.log", job.Package.Name, job.Arch))
}

func (r *Runner) logToFile(w io.Writer, message string) {
	if w != nil {
		_, _ = io.WriteString(w, message)
	}
}
