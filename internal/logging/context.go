package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (artifact_lost, degraded_entered, ...).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldArtifact is the delivery filename of a capture.
	FieldArtifact = "artifact"
	// FieldAttempt is the 1-based attempt number within a retry policy.
	FieldAttempt = "attempt"
	// FieldWorker identifies an upload worker.
	FieldWorker = "worker"
	// FieldReason explains a state transition.
	FieldReason = "reason"
	// FieldSessionID identifies one daemon run.
	FieldSessionID = "session_id"
	// FieldDevice is the camera's configured device id.
	FieldDevice = "device_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey int

const (
	artifactKey contextKey = iota
	requestIDKey
)

// WithArtifact returns a context carrying the artifact name being processed.
func WithArtifact(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, artifactKey, strings.TrimSpace(name))
}

// WithRequestID returns a context carrying an upload correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(id))
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if name, ok := ctx.Value(artifactKey).(string); ok && name != "" {
		fields = append(fields, slog.String(FieldArtifact, name))
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return logger.With(args...)
}
