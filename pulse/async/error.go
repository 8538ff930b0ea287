package async

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/dataq/db"
	"github.com/teranos/dataq/errors"
)

// MaxRetries is the maximum number of retry attempts for failed jobs
const MaxRetries = 2

// ErrorCode represents the classification of an error
type ErrorCode string

const (
	ErrorCodeParseError      ErrorCode = "parse_error"
	ErrorCodeEmptyDataset    ErrorCode = "empty_dataset"
	ErrorCodeNotFound        ErrorCode = "not_found"
	ErrorCodeConflict        ErrorCode = "conflict"
	ErrorCodeValidationError ErrorCode = "validation_error"
	ErrorCodeNetworkError    ErrorCode = "network_error"
	ErrorCodeDatabaseError   ErrorCode = "database_error"
	ErrorCodeAIError         ErrorCode = "ai_error"
	ErrorCodeTimeout         ErrorCode = "timeout"
	ErrorCodeUnknown         ErrorCode = "unknown"
)

// ErrorContext provides structured error information for job failures
type ErrorContext struct {
	Stage     string    // Where the error occurred
	Code      ErrorCode // Error classification
	Message   string    // Human-readable message
	Retryable bool      // Can the job be retried?
}

// ClassifyError categorizes a handler error. Marked dataq errors are
// classified by kind; anything else falls back to message patterns.
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Code: ErrorCodeUnknown, Message: "unknown error"}
	}

	ec := ErrorContext{Stage: stage, Message: err.Error()}

	switch {
	case errors.Is(err, errors.ErrParse):
		ec.Code = ErrorCodeParseError
	case errors.Is(err, errors.ErrEmptyDataset):
		ec.Code = ErrorCodeEmptyDataset
	case errors.Is(err, errors.ErrNotFound):
		ec.Code = ErrorCodeNotFound
	case errors.IsAny(err, errors.ErrJobInProgress, errors.ErrNotReady):
		ec.Code = ErrorCodeConflict
	case errors.IsAny(err, errors.ErrInvalidRequest, errors.ErrPlanValidation):
		ec.Code = ErrorCodeValidationError
	case errors.Is(err, errors.ErrLLMTimeout):
		ec.Code = ErrorCodeTimeout
		ec.Retryable = true
	case errors.Is(err, errors.ErrLLMUnavailable):
		ec.Code = ErrorCodeAIError
		ec.Retryable = true
	case errors.Is(err, context.DeadlineExceeded):
		ec.Code = ErrorCodeTimeout
		ec.Retryable = true
	case db.IsBusy(err), errors.Is(err, sql.ErrConnDone):
		ec.Code = ErrorCodeDatabaseError
		ec.Retryable = true
	default:
		classifyMessage(&ec)
	}
	return ec
}

func classifyMessage(ec *ErrorContext) {
	msg := strings.ToLower(ec.Message)
	switch {
	case strings.Contains(msg, "database is locked") || strings.Contains(msg, "sql"):
		ec.Code = ErrorCodeDatabaseError
		ec.Retryable = true
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "no such host"):
		ec.Code = ErrorCodeNetworkError
		ec.Retryable = true
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		ec.Code = ErrorCodeTimeout
		ec.Retryable = true
	case strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid"):
		ec.Code = ErrorCodeValidationError
	default:
		ec.Code = ErrorCodeUnknown
		ec.Retryable = true
	}
}

// RetryableError re-queues job for another attempt when retries remain and
// returns the wrapped error. Once MaxRetries is exhausted it returns a final
// error and leaves the job for the caller to fail.
func RetryableError(queue *Queue, job *Job, operation string, err error, log *zap.SugaredLogger) (requeued bool, _ error) {
	if job.RetryCount < MaxRetries {
		job.RetryCount++
		job.Error = errors.Wrapf(err, "%s (retry %d/%d)", operation, job.RetryCount, MaxRetries).Error()
		job.Requeue()
		if updateErr := queue.UpdateJob(job); updateErr != nil {
			log.Warnw("Failed to update job for retry",
				"error", updateErr,
			)
			return false, errors.Wrap(err, "retry not scheduled")
		}
		log.Infow("꩜ Retry scheduled",
			"retry_count", job.RetryCount,
			"max_retries", MaxRetries,
			"operation", operation,
		)
		return true, errors.Wrap(err, "retriable")
	}
	log.Warnw("꩜ Max retries exceeded",
		"max_retries", MaxRetries,
		"operation", operation,
	)
	return false, errors.Wrapf(err, "%s after %d retries", operation, MaxRetries)
}
