// Package executor runs external commands from argument vectors and reports
// their exit status, captured output and duration.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/logger"
)

// ErrCommandFailed is wrapped by Run when a command exits non-zero
var ErrCommandFailed = errors.New("command failed")

// Command is a program and its arguments. No shell is involved.
type Command struct {
	Program string
	Args    []string

	// Dir is the working directory; empty means the caller's.
	Dir string

	// Env is appended to the current environment.
	Env map[string]string

	// Output, when set, additionally receives stdout and stderr as they
	// are produced.
	Output io.Writer
}

// Cmd builds a Command from a program and arguments
func Cmd(program string, args ...string) Command {
	return Command{Program: program, Args: args}
}

// Argv returns the full argument vector
func (c Command) Argv() []string {
	return append([]string{c.Program}, c.Args...)
}

// String renders the command for logs, quoting arguments with spaces
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, a := range c.Argv() {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result holds the outcome of one command execution
type Result struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited zero
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Runner executes commands
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as local processes
type ExecRunner struct {
	logger logger.Logger
}

// NewRunner creates a Runner backed by os/exec
func NewRunner(log logger.Logger) *ExecRunner {
	if log == nil {
		log = logger.Discard()
	}
	return &ExecRunner{logger: log}
}

// Run executes cmd and waits for it to finish. The returned Result is never
// nil. A non-zero exit wraps ErrCommandFailed; a process that could not be
// started reports exit code -1.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir

	if len(cmd.Env) > 0 {
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		c.Env = os.Environ()
		for _, k := range keys {
			c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, cmd.Env[k]))
		}
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Output != nil {
		out := &lockedWriter{w: cmd.Output}
		c.Stdout = io.MultiWriter(&stdout, out)
		c.Stderr = io.MultiWriter(&stderr, out)
	}

	start := time.Now()
	err := c.Run()

	result := &Result{
		Argv:     cmd.Argv(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		err = fmt.Errorf("%w: %s exited with status %d", ErrCommandFailed, cmd.Program, result.ExitCode)
	default:
		result.ExitCode = -1
		err = fmt.Errorf("failed to run %s: %w", cmd.Program, err)
	}

	r.logger.Debug("exec",
		logger.WithField("cmd", cmd.String()),
		logger.WithField("exit_code", result.ExitCode),
		logger.WithField("duration", result.Duration.Round(time.Millisecond)))

	return result, err
}

// lockedWriter serializes the stdout and stderr copy goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
