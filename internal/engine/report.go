package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/types"
)

// ErrIncomplete is returned when every job ran but some artifacts could not
// be collected
var ErrIncomplete = errors.New("run incomplete")

// FatalError aborts a run. Stage names the pipeline step or orchestration
// phase that failed; Job is empty for failures outside any job.
type FatalError struct {
	Stage string
	Job   string
	Err   error
}

func (e *FatalError) Error() string {
	if e.Job == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Job, e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// JobResult is the final state of one job
type JobResult struct {
	Job       string
	Outcome   types.OutcomeKind
	Stage     string
	Reason    string
	Artifacts []string

	// CollectErr is set when the job built but collection failed
	CollectErr error `json:"-"`
}

// Report summarizes a run
type Report struct {
	Changes  int
	Jobs     []JobResult
	Duration time.Duration
}

// Built returns the jobs that completed their package stage
func (r *Report) Built() []JobResult {
	return r.filter(func(j JobResult) bool { return j.Outcome == types.OutcomeSucceeded })
}

// Skipped returns the jobs that ended without building
func (r *Report) Skipped() []JobResult {
	return r.filter(func(j JobResult) bool { return j.Outcome == types.OutcomeSkipped })
}

// Artifacts returns the host paths of every collected package
func (r *Report) Artifacts() []string {
	var out []string
	for _, j := range r.Jobs {
		out = append(out, j.Artifacts...)
	}
	return out
}

// CollectFailures returns the jobs whose artifacts were not all collected
func (r *Report) CollectFailures() []JobResult {
	return r.filter(func(j JobResult) bool { return j.CollectErr != nil })
}

func (r *Report) filter(keep func(JobResult) bool) []JobResult {
	var out []JobResult
	for _, j := range r.Jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	return out
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d package(s) changed, %d built, %d skipped, %d artifact(s) in %s",
		r.Changes, len(r.Built()), len(r.Skipped()), len(r.Artifacts()), r.Duration.Round(time.Second))
	for _, j := range r.Skipped() {
		fmt.Fprintf(&b, "\n  skipped %s at %s: %s", j.Job, j.Stage, j.Reason)
	}
	for _, j := range r.CollectFailures() {
		fmt.Fprintf(&b, "\n  incomplete %s: %v", j.Job, j.CollectErr)
	}
	return b.String()
}
