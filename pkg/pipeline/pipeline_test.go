package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/container"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/mocks"
	"github.com/plamolinux/pkgbuild/pkg/pipeline"
	"github.com/plamolinux/pkgbuild/pkg/types"
	"github.com/plamolinux/pkgbuild/pkg/vcs"
)

const (
	remote = "https://github.com/plamolinux/Plamo-src.git"
	pkgDir = "/Plamo-src/plamo/03_libs/zlib"
	recipe = "PlamoBuild.zlib-1.3.1"
)

var zlibJob = types.Job{
	Package:     types.ChangeEntry{Path: "plamo/03_libs/zlib", Category: "03_libs", Name: "zlib"},
	Arch:        "x86_64",
	BaselineRef: "master",
	CompareRef:  "updatepkg",
}

type fixture struct {
	rt     *mocks.FakeRuntime
	mgr    *container.Manager
	h      *types.ContainerHandle
	runner *pipeline.Runner
}

func newFixture(t *testing.T, logDir string) *fixture {
	t.Helper()

	rt := mocks.NewFakeRuntime()
	rt.On("-name "+pipeline.RecipePattern, 0, pkgDir+"/"+recipe+"\n")

	mgr := container.NewManager(rt, container.ManagerConfig{ProbeHost: "repository.plamolinux.org"}, logger.Discard())
	mgr.SetSleep(func(context.Context, time.Duration) error { return nil })

	h, err := mgr.Ensure(context.Background(), "x86_64", func() types.EnvironmentProfile {
		return types.EnvironmentProfile{Categories: []string{"00_base"}}
	})
	if err != nil {
		t.Fatal(err)
	}

	runner := pipeline.NewRunner(mgr, pipeline.Options{
		SourceDir: "/Plamo-src",
		RemoteURL: remote,
		LogDir:    logDir,
	}, logger.Discard())
	return &fixture{rt: rt, mgr: mgr, h: h, runner: runner}
}

func (f *fixture) run() types.PipelineOutcome {
	return f.runner.Run(context.Background(), zlibJob, f.h)
}

func stageCalls(calls []string) []string {
	var stages []string
	for _, c := range calls {
		if strings.HasPrefix(c, "sh -c") {
			fields := strings.Fields(c)
			stages = append(stages, fields[len(fields)-1])
		}
	}
	return stages
}

func TestRunner_Succeeds(t *testing.T) {
	f := newFixture(t, "")
	outcome := f.run()

	if outcome.Kind != types.OutcomeSucceeded {
		t.Fatalf("expected success, got %s", outcome)
	}
	if outcome.Recipe != recipe {
		t.Errorf("expected recipe %s, got %s", recipe, outcome.Recipe)
	}

	got := stageCalls(f.rt.Calls())
	want := []string{"download", "config", "build", "package"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected stages %v, got %v", want, got)
	}

	calls := f.rt.Calls()
	if !strings.HasPrefix(calls[0], "find "+pkgDir+" -maxdepth 1 (") {
		t.Errorf("expected cleanup first, got %q", calls[0])
	}
	if f.rt.CallCount("git clone") != 0 || f.rt.CallCount("getent") != 0 {
		t.Error("present source tree must not be cloned")
	}
	if f.rt.CallCount("git -C /Plamo-src pull --ff-only origin master") != 1 {
		t.Error("baseline must be updated")
	}
	if f.rt.CallCount("git -C /Plamo-src fetch origin updatepkg") != 1 {
		t.Error("compare branch must be fetched")
	}
	if f.rt.CallCount("git -C /Plamo-src pull --ff-only origin updatepkg") != 1 {
		t.Error("compare branch must be fast-forwarded")
	}

	stage := calls[len(calls)-1]
	wantStage := `sh -c cd "$1" && exec "./$2" "$3" sh ` + pkgDir + " " + recipe + " package"
	if stage != wantStage {
		t.Errorf("expected %q, got %q", wantStage, stage)
	}
}

func TestRunner_ClonesMissingSource(t *testing.T) {
	f := newFixture(t, "")
	f.rt.On("test -d /Plamo-src/.git", 1, "")

	if outcome := f.run(); outcome.Kind != types.OutcomeSucceeded {
		t.Fatalf("expected success, got %s", outcome)
	}

	calls := strings.Join(f.rt.Calls(), "\n")
	probe := strings.Index(calls, "getent hosts repository.plamolinux.org")
	clone := strings.Index(calls, "git clone "+remote+" /Plamo-src")
	if probe < 0 || clone < 0 || probe > clone {
		t.Errorf("expected network probe before clone:\n%s", calls)
	}
	if f.rt.CallCount("pull --ff-only origin master") != 0 {
		t.Error("fresh clone must not pull the baseline")
	}
}

func TestRunner_NetworkTimeoutIsFatal(t *testing.T) {
	f := newFixture(t, "")
	f.rt.On("test -d /Plamo-src/.git", 1, "")
	f.rt.On("getent", 2, "")

	outcome := f.run()
	if outcome.Kind != types.OutcomeFatal || outcome.Stage != pipeline.StepSource {
		t.Fatalf("expected fatal at source, got %s", outcome)
	}
	if !errors.Is(outcome.Err, container.ErrNetworkTimeout) {
		t.Errorf("expected ErrNetworkTimeout, got %v", outcome.Err)
	}
	if f.rt.CallCount("getent") != container.DefaultMaxAttempts {
		t.Errorf("expected %d probes, got %d", container.DefaultMaxAttempts, f.rt.CallCount("getent"))
	}
}

func TestRunner_SyncFailuresAreFatal(t *testing.T) {
	tests := []struct {
		name  string
		match string
		step  string
	}{
		{"baseline checkout", "checkout master", pipeline.StepSource},
		{"baseline pull", "pull --ff-only origin master", pipeline.StepSource},
		{"compare fetch", "fetch origin updatepkg", pipeline.StepCompare},
		{"compare checkout", "checkout updatepkg", pipeline.StepCompare},
		{"compare pull", "pull --ff-only origin updatepkg", pipeline.StepCompare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			f.rt.On(tt.match, 1, "")

			outcome := f.run()
			if outcome.Kind != types.OutcomeFatal || outcome.Stage != tt.step {
				t.Fatalf("expected fatal at %s, got %s", tt.step, outcome)
			}
			if !errors.Is(outcome.Err, vcs.ErrSyncFailed) {
				t.Errorf("expected ErrSyncFailed, got %v", outcome.Err)
			}
			if len(stageCalls(f.rt.Calls())) != 0 {
				t.Error("no recipe stage may run after a sync failure")
			}
		})
	}
}

func TestRunner_MissingPackageDirIsSkipped(t *testing.T) {
	f := newFixture(t, "")
	f.rt.On("test -d "+pkgDir, 1, "")

	outcome := f.run()
	if outcome.Kind != types.OutcomeSkipped || outcome.Stage != pipeline.StepPackageDir {
		t.Fatalf("expected skipped at package-dir, got %s", outcome)
	}
	if len(stageCalls(f.rt.Calls())) != 0 {
		t.Error("no recipe stage may run for a missing package")
	}
}

func TestRunner_MissingRecipeIsSkipped(t *testing.T) {
	f := newFixture(t, "")
	f.rt.On("-name "+pipeline.RecipePattern, 0, "")

	outcome := f.run()
	if outcome.Kind != types.OutcomeSkipped || outcome.Stage != pipeline.StepRecipe {
		t.Fatalf("expected skipped at recipe, got %s", outcome)
	}
}

func TestRunner_PicksFirstRecipe(t *testing.T) {
	f := newFixture(t, "")
	f.rt.On("-name "+pipeline.RecipePattern, 0,
		pkgDir+"/PlamoBuild.zlib-1.3.1\n"+pkgDir+"/PlamoBuild.zlib-1.2.13\n")

	outcome := f.run()
	if outcome.Recipe != "PlamoBuild.zlib-1.2.13" {
		t.Errorf("expected sorted first recipe, got %s", outcome.Recipe)
	}
}

func TestRunner_StageFailureIsFatal(t *testing.T) {
	tests := []struct {
		stage string
		verb  string
		ran   int
	}{
		{pipeline.StageDownload, "download", 1},
		{pipeline.StageConfigure, "config", 2},
		{pipeline.StageBuild, "build", 3},
		{pipeline.StagePackage, "package", 4},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			f := newFixture(t, "")
			f.rt.On(recipe+" "+tt.verb, 2, "")

			outcome := f.run()
			if outcome.Kind != types.OutcomeFatal || outcome.Stage != tt.stage {
				t.Fatalf("expected fatal at %s, got %s", tt.stage, outcome)
			}
			if !errors.Is(outcome.Err, pipeline.ErrStageFailed) {
				t.Errorf("expected ErrStageFailed, got %v", outcome.Err)
			}
			if got := len(stageCalls(f.rt.Calls())); got != tt.ran {
				t.Errorf("expected %d stages to run, got %d", tt.ran, got)
			}
		})
	}
}

func TestRunner_CleanupFailureIsAdvisory(t *testing.T) {
	f := newFixture(t, "")
	f.rt.On("-exec rm -rf", 1, "")

	if outcome := f.run(); outcome.Kind != types.OutcomeSucceeded {
		t.Fatalf("expected success, got %s", outcome)
	}
}

func TestRunner_WritesBuildLog(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	f := newFixture(t, logDir)
	f.rt.On(recipe+" build", 0, "compiling zlib\n")

	if outcome := f.run(); outcome.Kind != types.OutcomeSucceeded {
		t.Fatalf("expected success, got %s", outcome)
	}

	data, err := os.ReadFile(filepath.Join(logDir, "zlib-x86_64.log"))
	if err != nil {
		t.Fatalf("build log missing: %v", err)
	}
	for _, want := range []string{"--- download ---", "--- package ---", "compiling zlib", "succeeded"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in build log:\n%s", want, data)
		}
	}
}

func TestRunner_Install(t *testing.T) {
	f := newFixture(t, "")
	err := f.runner.Install(context.Background(), zlibJob, f.h, []string{"/tmp/out/zlib-1.3.1-x86_64-B1.txz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "updatepkg -f " + pkgDir + "/zlib-1.3.1-x86_64-B1.txz"
	if f.rt.CallCount(want) != 1 {
		t.Errorf("expected %q in %v", want, f.rt.Calls())
	}

	f.rt.On("updatepkg", 1, "")
	err = f.runner.Install(context.Background(), zlibJob, f.h, []string{"zlib-1.3.1-x86_64-B1.txz"})
	if !errors.Is(err, pipeline.ErrInstallFailed) {
		t.Errorf("expected ErrInstallFailed, got %v", err)
	}
}
