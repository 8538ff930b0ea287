package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across dataq.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldDatasetID = "dataset_id"
	FieldJobID     = "job_id"
	FieldOwnerID   = "owner_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"
	FieldModel     = "model"

	// Operations
	FieldStage     = "stage"
	FieldOperation = "op"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	// Counts and sizes
	FieldRows    = "rows"
	FieldColumns = "columns"
	FieldIssues  = "issues"
	FieldScore   = "score"
	FieldSize    = "size"
	FieldRef     = "ref"

	// Status
	FieldStatus = "status"
)

// Context keys for propagating logging context
type contextKey string

const (
	datasetIDKey contextKey = "logger_dataset_id"
	jobIDKey     contextKey = "logger_job_id"
	requestIDKey contextKey = "logger_request_id"
)

// WithDatasetID adds a dataset ID to the context for logging
func WithDatasetID(ctx context.Context, datasetID string) context.Context {
	return context.WithValue(ctx, datasetIDKey, datasetID)
}

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// DatasetIDFromContext returns the dataset ID stored by WithDatasetID, or "".
func DatasetIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(datasetIDKey).(string)
	return id
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(datasetIDKey).(string); ok && id != "" {
		fields = append(fields, FieldDatasetID, id)
	}
	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}

	return fields
}

// FromContext returns base with the fields carried by ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	svc := pipeline.NewService(store, blobs, logger.ComponentLogger("pipeline"), ...)
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
