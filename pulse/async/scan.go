package async

import (
	"database/sql"
)

// jobScanArgs holds the nullable columns of a job row
type jobScanArgs struct {
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// jobScanTargets returns scan destinations in jobSelectColumns order
func jobScanTargets(job *Job, args *jobScanArgs) []any {
	return []any{
		&job.ID,
		&job.HandlerName,
		&args.Payload,
		&job.Source,
		&job.Status,
		&job.Progress.Current,
		&job.Progress.Total,
		&args.ErrorMsg,
		&job.RetryCount,
		&job.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&job.UpdatedAt,
	}
}

func (args *jobScanArgs) apply(job *Job) {
	if args.Payload.Valid {
		job.Payload = []byte(args.Payload.String)
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}
	if args.StartedAt.Valid {
		t := args.StartedAt.Time
		job.StartedAt = &t
	}
	if args.CompletedAt.Valid {
		t := args.CompletedAt.Time
		job.CompletedAt = &t
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans a single job from a *sql.Row or *sql.Rows
func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var args jobScanArgs
	if err := row.Scan(jobScanTargets(&job, &args)...); err != nil {
		return nil, err
	}
	args.apply(&job)
	return &job, nil
}

// jobSelectColumns is the column list matching jobScanTargets
const jobSelectColumns = `id, handler_name, payload, source, status,
		progress_current, progress_total,
		error, retry_count,
		created_at, started_at, completed_at, updated_at`
