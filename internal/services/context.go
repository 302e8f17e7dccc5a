package services

import "context"

type contextKey string

const (
	runIDKey contextKey = "run_id"
	jobIDKey contextKey = "job_id"
	tapeKey  contextKey = "tape"
)

// WithRunID annotates context with the batch run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJobID annotates context with the render job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the render job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTape annotates context with the tape name being processed.
func WithTape(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, tapeKey, name)
}

// TapeFromContext returns the tape name if present.
func TapeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(tapeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
