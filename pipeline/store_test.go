package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/errors"
	testdb "github.com/teranos/dataq/internal/testing"
	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/clean"
	"github.com/teranos/dataq/quality/plan"
)

func seedDataset(t *testing.T, s *Store, id string, status Status) *Dataset {
	t.Helper()
	now := time.Now().UTC()
	d := &Dataset{
		ID:          id,
		OwnerID:     owner,
		Filename:    id + ".csv",
		SizeBytes:   42,
		ArtifactRef: "file://uploads/" + id + ".csv",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateDataset(context.Background(), d))
	return d
}

func sampleReport(id string) *Report {
	return &Report{
		DatasetID:    id,
		QualityScore: 87.5,
		RowCount:     10,
		ColumnCount:  2,
		Columns: []quality.ColumnProfile{
			{Name: "age", Type: quality.TypeNumeric, NullCount: 3},
			{Name: "city", Type: quality.TypeCategorical},
		},
		Issues: []quality.Issue{
			{Type: quality.IssueMissingValues, Column: "age", Severity: quality.SeverityMedium, Count: 3, Ratio: 0.3},
		},
	}
}

func TestStore_TransitionStatus(t *testing.T) {
	s := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()
	seedDataset(t, s, "ds-1", StatusUploaded)

	ok, err := s.TransitionStatus(ctx, "ds-1", StatusProcessing, StatusUploaded, StatusReady, StatusFailed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionStatus(ctx, "ds-1", StatusProcessing, StatusUploaded, StatusReady, StatusFailed)
	require.NoError(t, err)
	assert.False(t, ok, "second swap out of processing must lose")

	ok, err = s.TransitionStatus(ctx, "missing", StatusProcessing, StatusUploaded)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.TransitionStatus(ctx, "ds-1", StatusReady)
	assert.Error(t, err)
}

func TestStore_FailDataset(t *testing.T) {
	s := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()
	seedDataset(t, s, "ds-1", StatusProcessing)

	require.NoError(t, s.FailDataset(ctx, "ds-1", "line 3: bare quote"))
	d, err := s.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, d.Status)
	assert.Equal(t, "line 3: bare quote", d.Error)

	assert.True(t, errors.IsNotFoundError(s.FailDataset(ctx, "missing", "x")))

	// Leaving failed clears the reason
	ok, err := s.TransitionStatus(ctx, "ds-1", StatusProcessing, StatusFailed)
	require.NoError(t, err)
	require.True(t, ok)
	d, err = s.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Empty(t, d.Error)
}

func TestStore_CommitReportRevisions(t *testing.T) {
	s := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()
	seedDataset(t, s, "ds-1", StatusProcessing)

	r := sampleReport("ds-1")
	require.NoError(t, s.CommitReport(ctx, r))
	assert.Equal(t, 1, r.Revision)

	d, err := s.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, d.Status)

	r.LLMSummary = "Ages are missing."
	r.PlanSource = PlanSourceLLM
	r.CleaningPlan = []plan.Raw{{OperationType: "drop-duplicates"}}
	require.NoError(t, s.SaveExplanation(ctx, r))

	next := sampleReport("ds-1")
	next.QualityScore = 90
	require.NoError(t, s.CommitReport(ctx, next))
	assert.Equal(t, 2, next.Revision)

	got, err := s.GetReport(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Revision)
	assert.Equal(t, 90.0, got.QualityScore)
	assert.Empty(t, got.LLMSummary)
	assert.Nil(t, got.CleaningPlan)
	assert.Equal(t, r.Columns, got.Columns)
	assert.Equal(t, r.Issues, got.Issues)
}

func TestStore_SaveExplanation(t *testing.T) {
	s := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()
	seedDataset(t, s, "ds-1", StatusProcessing)
	r := sampleReport("ds-1")
	require.NoError(t, s.CommitReport(ctx, r))

	r.LLMSummary = "Ages are missing."
	r.PlanSource = PlanSourceLLM
	r.PlanRejection = []plan.Violation{{Index: 0, OperationType: "explode", Reason: `unknown operation type "explode"`}}
	require.NoError(t, s.SaveExplanation(ctx, r))

	got, err := s.GetReport(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "Ages are missing.", got.LLMSummary)
	assert.Equal(t, PlanSourceLLM, got.PlanSource)
	assert.Nil(t, got.CleaningPlan)
	assert.Equal(t, r.PlanRejection, got.PlanRejection)

	stale := *got
	stale.Revision = 7
	err = s.SaveExplanation(ctx, &stale)
	assert.True(t, errors.Is(err, errors.ErrNotReady), "got %v", err)
}

func TestStore_Cleaning(t *testing.T) {
	s := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()
	seedDataset(t, s, "ds-1", StatusProcessing)
	r := sampleReport("ds-1")
	require.NoError(t, s.CommitReport(ctx, r))

	_, err := s.LatestCleaningJob(ctx, "ds-1")
	assert.True(t, errors.IsNotFoundError(err))

	first := &CleaningJob{ID: "c-1", DatasetID: "ds-1", ReportRevision: 1, Status: CleaningRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateCleaningJob(ctx, first))
	require.NoError(t, s.FailCleaning(ctx, first, "disk full"))

	before, after, score := 10, 8, 96.5
	second := &CleaningJob{ID: "c-2", DatasetID: "ds-1", ReportRevision: 1, Status: CleaningRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateCleaningJob(ctx, second))
	second.CleanedArtifactRef = "file://cleaned/ds-1.csv"
	second.RowsBefore, second.RowsAfter, second.CleanedScore = &before, &after, &score
	second.Effects = []clean.Effect{{Index: 0, Operation: "drop-duplicates", RowsAffected: 2}}
	require.NoError(t, s.CompleteCleaning(ctx, second))

	latest, err := s.LatestCleaningJob(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "c-2", latest.ID)
	assert.Equal(t, CleaningCompleted, latest.Status)
	assert.Equal(t, 8, *latest.RowsAfter)
	assert.Equal(t, 96.5, *latest.CleanedScore)
	assert.Equal(t, second.Effects, latest.Effects)
	assert.NotNil(t, latest.CompletedAt)

	got, err := s.GetReport(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "file://cleaned/ds-1.csv", got.CleanedArtifactRef)
	assert.Equal(t, second.Effects, got.CleaningEffects)

	// A job against a replaced revision must not touch the new report
	require.NoError(t, s.CommitReport(ctx, sampleReport("ds-1")))
	third := &CleaningJob{ID: "c-3", DatasetID: "ds-1", ReportRevision: 1, Status: CleaningRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateCleaningJob(ctx, third))
	third.CleanedArtifactRef = "file://cleaned/ds-1.csv"
	err = s.CompleteCleaning(ctx, third)
	assert.True(t, errors.Is(err, errors.ErrNotReady), "got %v", err)

	got, err = s.GetReport(ctx, "ds-1")
	require.NoError(t, err)
	assert.Empty(t, got.CleanedArtifactRef)
}

func TestStore_CountByStatus(t *testing.T) {
	s := NewStore(testdb.CreateMigratedTestDB(t))
	seedDataset(t, s, "a", StatusUploaded)
	seedDataset(t, s, "b", StatusUploaded)
	seedDataset(t, s, "c", StatusFailed)

	counts, err := s.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusUploaded: 2, StatusFailed: 1}, counts)
}

func TestStore_CommitReportRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT revision FROM reports").
		WithArgs("ds-1").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(3))
	mock.ExpectExec("INSERT INTO reports").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE datasets SET status").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	r := sampleReport("ds-1")
	err = s.CommitReport(context.Background(), r)
	assert.ErrorContains(t, err, "failed to mark dataset ds-1 ready")
	assert.Equal(t, 0, r.Revision, "revision only advances on commit")

	assert.NoError(t, mock.ExpectationsWereMet())
}
