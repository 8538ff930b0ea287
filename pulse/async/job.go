// Package async provides persisted asynchronous job processing for dataq.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/dataq/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the job will not run again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Progress represents job progress information
type Progress struct {
	Current int `json:"current,omitempty"` // Completed stages
	Total   int `json:"total,omitempty"`   // Total stages
}

// Percentage calculates progress as a percentage (0-100)
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Job is one persisted unit of background work.
//
// The infrastructure is domain-agnostic: HandlerName routes the job to a
// registered JobHandler, which decodes its own Payload. Source names the
// entity the job works on (a dataset id) and is used for deduplication.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Source      string          `json:"source"`
	Status      JobStatus       `json:"status"`
	Progress    Progress        `json:"progress,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"` // Number of retry attempts (max MaxRetries)
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob creates a queued job for handlerName.
//
// Example:
//
//	payload, _ := json.Marshal(ProcessPayload{DatasetID: id})
//	job, _ := async.NewJob("dataset.process", id, payload, 4)
func NewJob(handlerName, source string, payload json.RawMessage, totalStages int) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}

	now := time.Now().UTC()
	return &Job{
		ID:          uuid.NewString(),
		HandlerName: handlerName,
		Payload:     payload,
		Source:      source,
		Status:      JobStatusQueued,
		Progress:    Progress{Current: 0, Total: totalStages},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Error = ""
	j.Progress.Current = j.Progress.Total
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Requeue puts the job back in the queue for another attempt
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.StartedAt = nil
	j.UpdatedAt = time.Now().UTC()
}

// UpdateProgress updates the job's progress
func (j *Job) UpdateProgress(current int) {
	j.Progress.Current = current
	j.UpdatedAt = time.Now().UTC()
}

// DecodePayload unmarshals the job payload into v
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return errors.Newf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return errors.Wrapf(err, "failed to decode payload of job %s", j.ID)
	}
	return nil
}
