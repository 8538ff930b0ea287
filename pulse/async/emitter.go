package async

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/dataq/pulse"
)

// JobProgressEmitter implements pulse.ProgressEmitter for a running job.
// Progress is persisted through the queue, which also fans it out to
// subscribers.
type JobProgressEmitter struct {
	job   *Job
	queue *Queue
	log   *zap.SugaredLogger // job_id pre-configured
}

var _ pulse.ProgressEmitter = (*JobProgressEmitter)(nil)

// NewJobProgressEmitter creates a new progress emitter for an async job.
func NewJobProgressEmitter(job *Job, queue *Queue, log *zap.SugaredLogger) *JobProgressEmitter {
	return &JobProgressEmitter{job: job, queue: queue, log: log}
}

// EmitStage records the stage transition
func (e *JobProgressEmitter) EmitStage(stage, message string) {
	e.log.Debugw(message, "stage", stage)
	if err := e.queue.UpdateJob(e.job); err != nil {
		e.log.Warnw("Failed to update job for stage",
			"stage", stage,
			"error", err,
		)
	}
}

// EmitProgress persists current out of total
func (e *JobProgressEmitter) EmitProgress(current, total int) {
	if total > 0 {
		e.job.Progress.Total = total
	}
	e.job.UpdateProgress(current)
	if err := e.queue.UpdateJob(e.job); err != nil {
		e.log.Warnw("Failed to update job progress",
			"current", current,
			"error", err,
		)
	}
}

// EmitError logs the classified error. The job row is updated by the worker
// once it decides between retry and failure.
func (e *JobProgressEmitter) EmitError(stage string, err error) {
	ec := ClassifyError(stage, err)
	e.log.Errorw("Job error",
		"stage", stage,
		"error_code", ec.Code,
		"error", err,
		"retryable", ec.Retryable,
	)
}

// EmitInfo logs informational messages.
func (e *JobProgressEmitter) EmitInfo(message string) {
	e.log.Info(message)
}

type emitterKey struct{}

// WithEmitter attaches e to ctx for the job handler
func WithEmitter(ctx context.Context, e pulse.ProgressEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFromContext returns the job's emitter, or a no-op outside a worker
func EmitterFromContext(ctx context.Context) pulse.ProgressEmitter {
	if e, ok := ctx.Value(emitterKey{}).(pulse.ProgressEmitter); ok {
		return e
	}
	return pulse.NopEmitter{}
}
