package async

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/dataq/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue wraps the job store and fans out job updates to subscribers
type Queue struct {
	store       *Store
	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store:       NewStore(db),
		subscribers: make([]chan *Job, 0),
	}
}

// Store returns the underlying store
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		err = errors.WithDetail(err, fmt.Sprintf("Source: %s", job.Source))
		return err
	}

	q.notifySubscribers(job)
	return nil
}

// Dequeue claims the next queued job and marks it as running.
// Returns nil when the queue is empty.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.ClaimNext()
	if err != nil {
		return nil, errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil, nil
	}

	q.notifySubscribers(job)
	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// UpdateJob updates a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}

	q.notifySubscribers(job)
	return nil
}

// CompleteJob marks a job as completed
func (q *Queue) CompleteJob(job *Job) error {
	job.Complete()
	return q.UpdateJob(job)
}

// FailJob marks a job as failed with an error
func (q *Queue) FailJob(job *Job, jobErr error) error {
	job.Fail(jobErr)
	if err := q.UpdateJob(job); err != nil {
		return errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
	}
	return nil
}

// CancelJob cancels a queued job. Running and finished jobs are left alone.
func (q *Queue) CancelJob(id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", id)
	}
	if job.Status != JobStatusQueued {
		err := errors.Newf("job %s is not queued (status: %s)", id, job.Status)
		return errors.Mark(err, errors.ErrJobInProgress)
	}

	job.Cancel(reason)
	if err := q.store.UpdateJob(job); err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", id)
	}

	q.notifySubscribers(job)
	return nil
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListJobs(status, limit)
}

// ListActiveJobs returns all queued and running jobs
func (q *Queue) ListActiveJobs(limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListActiveJobs(limit)
}

// FindActiveJobBySourceAndHandler finds a queued or running job for source.
// Returns nil if none.
func (q *Queue) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.FindActiveJobBySourceAndHandler(source, handlerName)
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it themselves
// after unsubscribing if needed. This prevents double-close panics.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a snapshot of job to all subscribers.
// REQUIRES: q.mu must be held by caller.
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	snapshot := *job
	for _, ch := range q.subscribers {
		select {
		case ch <- &snapshot:
		default:
			// Channel full, skip (non-blocking)
		}
	}
}

// Cleanup removes old finished jobs
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
		Cancelled: counts[JobStatusCancelled],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
