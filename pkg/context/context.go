// Package context carries run and job tracing values on a context.Context
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

// Context keys for run tracing
const (
	runIDKey ctxKey = iota
	jobKey
	stageKey
	startTimeKey
)

const (
	unknownRun   = "unknown-run"
	unknownJob   = "unknown-job"
	unknownStage = "unknown-stage"
)

// WithRunID adds a run ID to the context, generating one when empty
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return unknownRun
}

// WithJob adds the current job ("zlib@x86_64") to the context
func WithJob(parent context.Context, job string) context.Context {
	return context.WithValue(parent, jobKey, job)
}

// GetJob retrieves the current job from context
func GetJob(ctx context.Context) string {
	if job, ok := ctx.Value(jobKey).(string); ok && job != "" {
		return job
	}
	return unknownJob
}

// WithStage adds the current pipeline stage to the context
func WithStage(parent context.Context, stage string) context.Context {
	return context.WithValue(parent, stageKey, stage)
}

// GetStage retrieves the current pipeline stage from context
func GetStage(ctx context.Context) string {
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		return stage
	}
	return unknownStage
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetDuration returns the time elapsed since the start time in context,
// or zero when none was recorded
func GetDuration(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return "run_" + uuid.New().String()
}

// EnrichContext adds a run ID (if missing) and a start time
func EnrichContext(parent context.Context) context.Context {
	ctx := parent
	if GetRunID(ctx) == unknownRun {
		ctx = WithRunID(ctx, GenerateRunID())
	}
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns the tracing values present in ctx
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if id := GetRunID(ctx); id != unknownRun {
		fields["run_id"] = id
	}
	if job := GetJob(ctx); job != unknownJob {
		fields["job"] = job
	}
	if stage := GetStage(ctx); stage != unknownStage {
		fields["stage"] = stage
	}
	if d := GetDuration(ctx); d > 0 {
		fields["duration_ms"] = d.Milliseconds()
	}
	return fields
}
