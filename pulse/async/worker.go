package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
)

const (
	// MaxOrphanedJobsToRecover limits how many orphaned jobs are re-queued on start
	MaxOrphanedJobsToRecover = 1000

	maxConsecutiveErrors = 5
	maxBackoff           = 30 * time.Second
)

// pulseLogger wraps zap.SugaredLogger with methods that make the worker
// lifecycle easy to spot in the log:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often an idle worker checks for jobs
	StopTimeout  time.Duration `json:"stop_timeout"`  // How long Stop waits for running jobs
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      2,
		PollInterval: 500 * time.Millisecond,
		StopTimeout:  30 * time.Second,
	}
}

// WorkerPool manages a pool of workers that process async jobs
type WorkerPool struct {
	queue         *Queue
	registry      *HandlerRegistry
	config        WorkerPoolConfig
	parentCtx     context.Context // Parent context from which worker context is derived
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	activeWorkers int
	logger        pulseLogger
	mu            sync.Mutex
}

// NewWorkerPool creates a worker pool bound to ctx. Register handlers on
// Registry() before calling Start. Cancelling ctx stops the workers.
func NewWorkerPool(ctx context.Context, db *sql.DB, cfg WorkerPoolConfig, logger *zap.SugaredLogger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	defaults := DefaultWorkerPoolConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaults.StopTimeout
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		queue:     NewQueue(db),
		registry:  NewHandlerRegistry(),
		config:    cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    pulseLogger{logger.Named("pulse")},
	}
}

// Start recovers orphaned jobs and launches the workers
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// Context cancelled by a previous Stop: derive a fresh one before spawning workers
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	ctx := wp.ctx
	wp.mu.Unlock()

	// ✿ Opening: jobs left running by a crash go back to the queue
	if n, err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", "error", err)
	} else if n > 0 {
		wp.logger.Starting("Recovered orphaned jobs from previous run", "count", n)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", wp.config.Workers)
	}

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
	wp.logger.Pulse("꩜ Worker pool started", "workers", wp.config.Workers, "poll_interval", wp.config.PollInterval)
}

// recoverOrphanedJobs re-queues jobs still marked running. Only safe before
// workers start: at that point no job can be legitimately running.
func (wp *WorkerPool) recoverOrphanedJobs() (int, error) {
	running := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(&running, MaxOrphanedJobsToRecover)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list running jobs")
	}

	recovered := 0
	for _, job := range orphaned {
		job.Requeue()
		job.Error = ""
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		wp.logger.Starting("Recovered orphaned job", "job_id", job.ID, "handler", job.HandlerName)
		recovered++
	}
	return recovered, nil
}

// Stop cancels the workers and waits up to StopTimeout for running jobs.
// ❀ Closing: a job interrupted by cancellation is re-queued, not failed.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	wp.cancel()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Pulse("❀ Worker pool stopped - all workers exited cleanly")
	case <-time.After(wp.config.StopTimeout):
		wp.logger.Closing("Worker pool stop timed out - jobs may still be running", "timeout", wp.config.StopTimeout)
	}
}

// worker polls the queue until ctx is cancelled
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// drain: keep going while jobs are available
		for {
			ran, err := wp.processNextJob(ctx)
			if err == nil {
				if errorCount > 0 {
					wp.logger.Infow("Worker recovered from errors",
						"worker_id", id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoff = time.Second
				if ran && ctx.Err() == nil {
					continue
				}
				break
			}

			if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) {
				return
			}
			errorCount++
			wp.logger.Errorw("Worker error processing job",
				"worker_id", id,
				"error", err,
				"consecutive_errors", errorCount)

			if errorCount >= maxConsecutiveErrors {
				wp.logger.Warnw("Worker backing off due to consecutive errors",
					"worker_id", id,
					"backoff", backoff,
					"consecutive_errors", errorCount)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxBackoff)
			}
			break
		}
	}
}

// processNextJob runs one job. ran is false when the queue was empty.
func (wp *WorkerPool) processNextJob(ctx context.Context) (ran bool, err error) {
	if ctx.Err() != nil {
		return false, nil
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	log := wp.logger.With("job_id", job.ID, "handler", job.HandlerName, "source", job.Source)
	emitter := NewJobProgressEmitter(job, wp.queue, log)
	start := time.Now()

	execErr := wp.registry.Execute(WithEmitter(ctx, emitter), job)
	if execErr == nil {
		log.Infow("Job completed", "duration_ms", time.Since(start).Milliseconds())
		return true, wp.queue.CompleteJob(job)
	}

	// ❀ Closing: interrupted by shutdown, run it again next start
	if ctx.Err() != nil {
		wp.logger.Closing("Job cancelled during execution, re-queuing", "job_id", job.ID)
		job.Requeue()
		if err := wp.queue.UpdateJob(job); err != nil {
			log.Errorw("Failed to re-queue cancelled job", "error", err)
		}
		return true, nil
	}

	ec := ClassifyError(job.HandlerName, execErr)
	emitter.EmitError(ec.Stage, execErr)
	if ec.Retryable {
		requeued, finalErr := RetryableError(wp.queue, job, job.HandlerName, execErr, log)
		if requeued {
			return true, nil
		}
		execErr = finalErr
	}
	log.Warnw("Job failed",
		"error_code", ec.Code,
		"error", execErr,
		"duration_ms", time.Since(start).Milliseconds())
	return true, wp.queue.FailJob(job, execErr)
}

// Queue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Registry returns the handler registry. Register handlers before Start:
//
//	pool := async.NewWorkerPool(ctx, db, poolCfg, logger)
//	pool.Registry().Register(pipeline.NewProcessHandler(svc))
//	pool.Start()
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.config.Workers
}
