package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/teranos/dataq/errors"
)

// Store persists datasets, reports and cleaning jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a pipeline store over db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const datasetColumns = `id, owner_id, filename, size_bytes, artifact_ref, status, error, created_at, updated_at`

const reportColumns = `dataset_id, revision, quality_score, row_count, column_count, sampled,
	columns_json, issues_json, llm_summary, plan_source, cleaning_plan_json,
	plan_rejection_json, cleaned_artifact_ref, cleaning_effects_json, created_at, updated_at`

const cleaningColumns = `id, dataset_id, report_revision, status, cleaned_artifact_ref,
	rows_before, rows_after, cleaned_score, effects_json, error, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateDataset inserts a new dataset row
func (s *Store) CreateDataset(ctx context.Context, d *Dataset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Filename, d.SizeBytes, d.ArtifactRef,
		d.Status, nullString(d.Error), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create dataset %s", d.ID)
	}
	return nil
}

// GetDataset loads a dataset by id regardless of owner
func (s *Store) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)
	d, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("dataset not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get dataset %s", id)
	}
	return d, nil
}

// ListDatasets returns an owner's datasets, newest first
func (s *Store) ListDatasets(ctx context.Context, ownerID string) ([]*Dataset, error) {
	return s.queryDatasets(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE owner_id = ? ORDER BY created_at DESC, id`,
		ownerID)
}

// ListDatasetsByStatus returns every dataset currently in status
func (s *Store) ListDatasetsByStatus(ctx context.Context, status Status) ([]*Dataset, error) {
	return s.queryDatasets(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE status = ? ORDER BY created_at`,
		status)
}

func (s *Store) queryDatasets(ctx context.Context, query string, args ...interface{}) ([]*Dataset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query datasets")
	}
	defer rows.Close()

	var out []*Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan dataset")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate datasets")
	}
	return out, nil
}

// TransitionStatus moves a dataset to `to` only if its current status is one
// of `from`. It reports whether the row changed.
func (s *Store) TransitionStatus(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, errors.AssertionFailedf("TransitionStatus requires at least one source status")
	}
	args := []interface{}{to, time.Now().UTC(), id}
	for _, f := range from {
		args = append(args, f)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")

	res, err := s.db.ExecContext(ctx, `
		UPDATE datasets SET status = ?, error = NULL, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to update status of dataset %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n == 1, nil
}

// FailDataset marks a dataset failed with a human-readable reason
func (s *Store) FailDataset(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE datasets SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, reason, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark dataset %s failed", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("dataset not found: %s", id)
	}
	return nil
}

// CommitReport replaces the dataset's report with r as the next revision and
// marks the dataset ready, in one transaction. Summary, plan, rejection and
// cleaned artifact of the prior revision are cleared.
func (s *Store) CommitReport(ctx context.Context, r *Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin report transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var prev int
	err = tx.QueryRowContext(ctx, `SELECT revision FROM reports WHERE dataset_id = ?`, r.DatasetID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(err, "failed to read report revision for %s", r.DatasetID)
	}
	err = nil

	columnsJSON, err := json.Marshal(r.Columns)
	if err != nil {
		return errors.Wrap(err, "failed to encode column profiles")
	}
	issuesJSON, err := json.Marshal(r.Issues)
	if err != nil {
		return errors.Wrap(err, "failed to encode issues")
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, NULL, NULL, NULL, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			revision = excluded.revision,
			quality_score = excluded.quality_score,
			row_count = excluded.row_count,
			column_count = excluded.column_count,
			sampled = excluded.sampled,
			columns_json = excluded.columns_json,
			issues_json = excluded.issues_json,
			llm_summary = NULL,
			plan_source = NULL,
			cleaning_plan_json = NULL,
			plan_rejection_json = NULL,
			cleaned_artifact_ref = NULL,
			cleaning_effects_json = NULL,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		r.DatasetID, prev+1, r.QualityScore, r.RowCount, r.ColumnCount, r.Sampled,
		string(columnsJSON), string(issuesJSON), now, now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to write report for %s", r.DatasetID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE datasets SET status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		StatusReady, now, r.DatasetID)
	if err != nil {
		return errors.Wrapf(err, "failed to mark dataset %s ready", r.DatasetID)
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit report")
	}

	r.Revision = prev + 1
	r.LLMSummary, r.PlanSource = "", ""
	r.CleaningPlan, r.PlanRejection = nil, nil
	r.CleanedArtifactRef, r.CleaningEffects = "", nil
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

// GetReport loads the current report of a dataset
func (s *Store) GetReport(ctx context.Context, datasetID string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE dataset_id = ?`, datasetID)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("report not found for dataset %s", datasetID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get report for %s", datasetID)
	}
	return r, nil
}

// SaveExplanation merges an explain result into the report at revision.
// A revision mismatch means the report was replaced underneath the caller.
func (s *Store) SaveExplanation(ctx context.Context, r *Report) error {
	planJSON, err := marshalOptional(r.CleaningPlan)
	if err != nil {
		return errors.Wrap(err, "failed to encode cleaning plan")
	}
	rejectionJSON, err := marshalOptional(r.PlanRejection)
	if err != nil {
		return errors.Wrap(err, "failed to encode plan rejection")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET llm_summary = ?, plan_source = ?, cleaning_plan_json = ?,
			plan_rejection_json = ?, updated_at = ?
		WHERE dataset_id = ? AND revision = ?`,
		nullString(r.LLMSummary), nullString(r.PlanSource), planJSON, rejectionJSON, now,
		r.DatasetID, r.Revision)
	if err != nil {
		return errors.Wrapf(err, "failed to save explanation for %s", r.DatasetID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrNotReady, "report for %s is no longer at revision %d", r.DatasetID, r.Revision)
	}
	r.UpdatedAt = now
	return nil
}

// CreateCleaningJob inserts a cleaning job row
func (s *Store) CreateCleaningJob(ctx context.Context, j *CleaningJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cleaning_jobs (`+cleaningColumns+`)
		VALUES (?, ?, ?, ?, NULL, NULL, NULL, NULL, NULL, NULL, ?, NULL)`,
		j.ID, j.DatasetID, j.ReportRevision, j.Status, j.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to create cleaning job for %s", j.DatasetID)
	}
	return nil
}

// CompleteCleaning records a finished cleaning job and points the report at
// its artifact, in one transaction
func (s *Store) CompleteCleaning(ctx context.Context, j *CleaningJob) (err error) {
	effectsJSON, err := json.Marshal(j.Effects)
	if err != nil {
		return errors.Wrap(err, "failed to encode cleaning effects")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin cleaning transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE cleaning_jobs SET status = ?, cleaned_artifact_ref = ?, rows_before = ?,
			rows_after = ?, cleaned_score = ?, effects_json = ?, error = NULL, completed_at = ?
		WHERE id = ?`,
		CleaningCompleted, j.CleanedArtifactRef, j.RowsBefore, j.RowsAfter,
		j.CleanedScore, string(effectsJSON), now, j.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to complete cleaning job %s", j.ID)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE reports SET cleaned_artifact_ref = ?, cleaning_effects_json = ?, updated_at = ?
		WHERE dataset_id = ? AND revision = ?`,
		j.CleanedArtifactRef, string(effectsJSON), now, j.DatasetID, j.ReportRevision)
	if err != nil {
		return errors.Wrapf(err, "failed to attach cleaned artifact to %s", j.DatasetID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = errors.Wrapf(errors.ErrNotReady, "report for %s is no longer at revision %d", j.DatasetID, j.ReportRevision)
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit cleaning job")
	}
	j.Status = CleaningCompleted
	j.CompletedAt = &now
	return nil
}

// FailCleaning marks a cleaning job failed
func (s *Store) FailCleaning(ctx context.Context, j *CleaningJob, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE cleaning_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		CleaningFailed, reason, now, j.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to mark cleaning job %s failed", j.ID)
	}
	j.Status = CleaningFailed
	j.Error = reason
	j.CompletedAt = &now
	return nil
}

// LatestCleaningJob returns the most recent cleaning job of a dataset
func (s *Store) LatestCleaningJob(ctx context.Context, datasetID string) (*CleaningJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cleaningColumns+` FROM cleaning_jobs
		WHERE dataset_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, datasetID)
	j, err := scanCleaningJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no cleaning job for dataset %s", datasetID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get cleaning job for %s", datasetID)
	}
	return j, nil
}

// CountByStatus returns the number of datasets in each status
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM datasets GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count datasets")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan dataset count")
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var d Dataset
	var errMsg sql.NullString
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.SizeBytes, &d.ArtifactRef,
		&d.Status, &errMsg, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Error = errMsg.String
	return &d, nil
}

func scanReport(row rowScanner) (*Report, error) {
	var r Report
	var columnsJSON, issuesJSON string
	var summary, source, planJSON, rejectionJSON, cleanedRef, effectsJSON sql.NullString

	if err := row.Scan(&r.DatasetID, &r.Revision, &r.QualityScore, &r.RowCount, &r.ColumnCount,
		&r.Sampled, &columnsJSON, &issuesJSON, &summary, &source, &planJSON,
		&rejectionJSON, &cleanedRef, &effectsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	r.LLMSummary = summary.String
	r.PlanSource = source.String
	r.CleanedArtifactRef = cleanedRef.String

	if err := json.Unmarshal([]byte(columnsJSON), &r.Columns); err != nil {
		return nil, errors.Wrap(err, "failed to decode column profiles")
	}
	if err := json.Unmarshal([]byte(issuesJSON), &r.Issues); err != nil {
		return nil, errors.Wrap(err, "failed to decode issues")
	}
	if err := unmarshalOptional(planJSON, &r.CleaningPlan); err != nil {
		return nil, errors.Wrap(err, "failed to decode cleaning plan")
	}
	if err := unmarshalOptional(rejectionJSON, &r.PlanRejection); err != nil {
		return nil, errors.Wrap(err, "failed to decode plan rejection")
	}
	if err := unmarshalOptional(effectsJSON, &r.CleaningEffects); err != nil {
		return nil, errors.Wrap(err, "failed to decode cleaning effects")
	}
	return &r, nil
}

func scanCleaningJob(row rowScanner) (*CleaningJob, error) {
	var j CleaningJob
	var ref, effectsJSON, errMsg sql.NullString
	var before, after sql.NullInt64
	var score sql.NullFloat64
	var completed sql.NullTime

	if err := row.Scan(&j.ID, &j.DatasetID, &j.ReportRevision, &j.Status, &ref,
		&before, &after, &score, &effectsJSON, &errMsg, &j.CreatedAt, &completed); err != nil {
		return nil, err
	}

	j.CleanedArtifactRef = ref.String
	j.Error = errMsg.String
	if before.Valid {
		v := int(before.Int64)
		j.RowsBefore = &v
	}
	if after.Valid {
		v := int(after.Int64)
		j.RowsAfter = &v
	}
	if score.Valid {
		j.CleanedScore = &score.Float64
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	if err := unmarshalOptional(effectsJSON, &j.Effects); err != nil {
		return nil, errors.Wrap(err, "failed to decode cleaning effects")
	}
	return &j, nil
}

// marshalOptional encodes v, storing NULL for empty slices
func marshalOptional[T any](v []T) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalOptional(s sql.NullString, v interface{}) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
