package async

import (
	"database/sql"
	"time"

	"github.com/teranos/dataq/errors"
)

// Store handles persistence of async jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new async job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO async_jobs (
			id, handler_name, payload, source, status,
			progress_current, progress_total,
			error, retry_count,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		job.ID,
		job.HandlerName,
		nullString(string(job.Payload)),
		job.Source,
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		nullString(job.Error),
		job.RetryCount,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM async_jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE async_jobs
		SET payload = ?,
		    status = ?,
		    progress_current = ?,
		    progress_total = ?,
		    error = ?,
		    retry_count = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		nullString(string(job.Payload)),
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		nullString(job.Error),
		job.RetryCount,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	return nil
}

// ClaimNext marks the oldest queued job running and returns it. The claim is a
// conditional update, so two pollers never run the same job. Returns nil when
// nothing is queued.
func (s *Store) ClaimNext() (*Job, error) {
	for {
		query := `SELECT ` + jobSelectColumns + `
			FROM async_jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			LIMIT 1`
		job, err := scanJob(s.db.QueryRow(query))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to find queued job")
		}

		job.Start()
		result, err := s.db.Exec(`
			UPDATE async_jobs
			SET status = ?, started_at = ?, updated_at = ?
			WHERE id = ? AND status = 'queued'`,
			job.Status, job.StartedAt, job.UpdatedAt, job.ID,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to claim job %s", job.ID)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get rows affected")
		}
		if n == 1 {
			return job, nil
		}
		// another worker won the race; look again
	}
}

// ListJobs returns jobs newest first, optionally filtered by status
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var query string
	var args []any

	baseQuery := `SELECT ` + jobSelectColumns + ` FROM async_jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []any{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []any{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListActiveJobs returns jobs that are queued or running
func (s *Store) ListActiveJobs(limit int) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + `
		FROM async_jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

// scanJobs scans every row; it does not close rows
func scanJobs(rows *sql.Rows, what string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", what)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs in each status
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM async_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM async_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	return nil
}

// CleanupOldJobs removes finished jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		DELETE FROM async_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// FindActiveJobBySourceAndHandler finds a queued or running job for source and handlerName.
// Returns nil if there is none.
func (s *Store) FindActiveJobBySourceAndHandler(source string, handlerName string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + `
		FROM async_jobs
		WHERE source = ?
		  AND handler_name = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1`

	job, err := scanJob(s.db.QueryRow(query, source, handlerName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No active job found - this is not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job by source and handler")
	}
	return job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
