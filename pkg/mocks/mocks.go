// Package mocks provides test doubles for the command runner and the
// container runtime.
package mocks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/plamolinux/pkgbuild/pkg/container"
	"github.com/plamolinux/pkgbuild/pkg/executor"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Response is a scripted command result
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string

	// Err, when set, is returned as a start failure (exit code -1).
	Err error
}

type rule struct {
	match string
	fn    func(argv []string) Response
}

// Script maps command lines to responses. A rule matches when its text is
// a substring of the space-joined argv; the most recently added matching
// rule wins. Unmatched commands succeed with no output.
type Script struct {
	mu    sync.Mutex
	rules []rule
	calls [][]string
}

// On answers every command containing match with exit code and stdout
func (s *Script) On(match string, exitCode int, stdout string) {
	s.OnFunc(match, func([]string) Response {
		return Response{ExitCode: exitCode, Stdout: stdout}
	})
}

// OnFunc answers every command containing match with fn's response
func (s *Script) OnFunc(match string, fn func(argv []string) Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{match: match, fn: fn})
}

// Calls returns every command line seen so far
func (s *Script) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, argv := range s.calls {
		out[i] = strings.Join(argv, " ")
	}
	return out
}

// CallCount returns how many command lines contained match
func (s *Script) CallCount(match string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c, match) {
			n++
		}
	}
	return n
}

func (s *Script) respond(argv []string, out io.Writer) (*executor.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), argv...))
	line := strings.Join(argv, " ")
	var fn func([]string) Response
	for i := len(s.rules) - 1; i >= 0; i-- {
		if strings.Contains(line, s.rules[i].match) {
			fn = s.rules[i].fn
			break
		}
	}
	s.mu.Unlock()

	resp := Response{}
	if fn != nil {
		resp = fn(argv)
	}

	res := &executor.Result{Argv: argv, ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr}
	if out != nil {
		_, _ = io.WriteString(out, resp.Stdout+resp.Stderr)
	}
	switch {
	case resp.Err != nil:
		res.ExitCode = -1
		return res, resp.Err
	case resp.ExitCode != 0:
		return res, fmt.Errorf("%w: %s exited with status %d", executor.ErrCommandFailed, argv[0], resp.ExitCode)
	}
	return res, nil
}

// Runner is a scripted executor.Runner
type Runner struct {
	Script
	cmdMu    sync.Mutex
	commands []executor.Command
}

// NewRunner creates a Runner with no rules
func NewRunner() *Runner {
	return &Runner{}
}

// Run records cmd and returns the scripted result
func (r *Runner) Run(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return &executor.Result{Argv: cmd.Argv(), ExitCode: -1}, err
	}
	r.cmdMu.Lock()
	r.commands = append(r.commands, cmd)
	r.cmdMu.Unlock()
	return r.respond(cmd.Argv(), cmd.Output)
}

// Commands returns the commands run so far, including their environment
func (r *Runner) Commands() []executor.Command {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	return append([]executor.Command(nil), r.commands...)
}

type fakeContainer struct {
	running bool
	files   map[string]map[string]string
}

// FakeRuntime is an in-memory container.Runtime. Exec calls go through
// the embedded Script; lifecycle calls are recorded in Events.
type FakeRuntime struct {
	Script

	mu         sync.Mutex
	containers map[string]*fakeContainer
	specs      map[string]container.CreateSpec
	events     []string

	createError  error
	startError   error
	stopError    error
	destroyError error
	pullErrors   map[string]error
}

// NewFakeRuntime creates a runtime with no environments
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		containers: make(map[string]*fakeContainer),
		specs:      make(map[string]container.CreateSpec),
		pullErrors: make(map[string]error),
	}
}

// AddExisting registers an environment left over from an earlier run
func (f *FakeRuntime) AddExisting(name string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = &fakeContainer{running: running, files: map[string]map[string]string{}}
}

// AddFile places a file inside an environment for PullFiles
func (f *FakeRuntime) AddFile(name, filePath, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		c = &fakeContainer{files: map[string]map[string]string{}}
		f.containers[name] = c
	}
	dir, base := path.Split(filePath)
	dir = path.Clean(dir)
	if c.files[dir] == nil {
		c.files[dir] = map[string]string{}
	}
	c.files[dir][base] = content
}

// SetCreateError sets the error to return from Create
func (f *FakeRuntime) SetCreateError(err error) { f.createError = err }

// SetStartError sets the error to return from Start
func (f *FakeRuntime) SetStartError(err error) { f.startError = err }

// SetStopError sets the error to return from Stop
func (f *FakeRuntime) SetStopError(err error) { f.stopError = err }

// SetDestroyError sets the error to return from Destroy
func (f *FakeRuntime) SetDestroyError(err error) { f.destroyError = err }

// SetPullError makes copying the named file fail
func (f *FakeRuntime) SetPullError(file string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullErrors[file] = err
}

// Events returns the lifecycle calls made so far, e.g. "create pkgbuild_x86"
func (f *FakeRuntime) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// CreateSpec returns the spec the named environment was last created
// with, also after it has been destroyed
func (f *FakeRuntime) CreateSpec(name string) (container.CreateSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	spec, ok := f.specs[name]
	return spec, ok
}

func (f *FakeRuntime) record(event string) {
	f.events = append(f.events, event)
}

func (f *FakeRuntime) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.containers[name]
	return ok, nil
}

func (f *FakeRuntime) Create(_ context.Context, name string, spec container.CreateSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create " + name)
	if f.createError != nil {
		return f.createError
	}
	if _, ok := f.containers[name]; ok {
		return fmt.Errorf("container %s already exists", name)
	}
	f.containers[name] = &fakeContainer{files: map[string]map[string]string{}}
	f.specs[name] = spec
	return nil
}

func (f *FakeRuntime) Start(_ context.Context, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start " + name)
	if f.startError != nil {
		return f.startError
	}
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("container %s does not exist", name)
	}
	if c.running {
		return fmt.Errorf("container %s already running", name)
	}
	c.running = true
	return nil
}

func (f *FakeRuntime) IsRunning(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	return ok && c.running, nil
}

func (f *FakeRuntime) Stop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop " + name)
	if f.stopError != nil {
		return f.stopError
	}
	if c, ok := f.containers[name]; ok {
		c.running = false
	}
	return nil
}

func (f *FakeRuntime) Destroy(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("destroy " + name)
	if f.destroyError != nil {
		return f.destroyError
	}
	c, ok := f.containers[name]
	if !ok {
		return fmt.Errorf("container %s does not exist", name)
	}
	if c.running {
		return fmt.Errorf("container %s is running", name)
	}
	delete(f.containers, name)
	return nil
}

func (f *FakeRuntime) Exec(ctx context.Context, name string, argv []string, out io.Writer) (*executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return &executor.Result{Argv: argv, ExitCode: -1}, err
	}
	running, _ := f.IsRunning(ctx, name)
	if !running {
		return &executor.Result{Argv: argv, ExitCode: -1}, fmt.Errorf("container %s is not running", name)
	}
	return f.respond(argv, out)
}

func (f *FakeRuntime) PullFiles(_ context.Context, name, dir, pattern, destDir string) ([]types.FileTransfer, error) {
	f.mu.Lock()
	c, ok := f.containers[name]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("container %s does not exist", name)
	}
	var names []string
	for base := range c.files[path.Clean(dir)] {
		matched, err := path.Match(pattern, base)
		if err != nil {
			f.mu.Unlock()
			return nil, err
		}
		if matched {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	contents := make([]string, len(names))
	for i, n := range names {
		contents[i] = c.files[path.Clean(dir)][n]
	}
	pullErrors := f.pullErrors
	f.mu.Unlock()

	transfers := make([]types.FileTransfer, 0, len(names))
	for i, n := range names {
		t := types.FileTransfer{Source: path.Join(dir, n), Dest: filepath.Join(destDir, n)}
		if err, ok := pullErrors[n]; ok {
			t.Err = err
		} else {
			t.Err = os.WriteFile(t.Dest, []byte(contents[i]), 0o644)
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}
