package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
	testdb "github.com/teranos/dataq/internal/testing"
)

func TestTrackUsage_AndStats(t *testing.T) {
	db := testdb.CreateMigratedTestDB(t)
	tr := NewUsageTracker(db, nil)
	ctx := context.Background()

	now := time.Now()
	resp := now.Add(1500 * time.Millisecond)
	msg := "status 503"

	ok := &ModelUsage{
		OperationType:     "explain",
		EntityType:        "dataset",
		EntityID:          "ds-1",
		Provider:          "gemini",
		ModelName:         "gemini-1.5-flash",
		PromptBytes:       1200,
		ResponseBytes:     300,
		RequestTimestamp:  now,
		ResponseTimestamp: &resp,
		Success:           true,
	}
	require.NoError(t, tr.TrackUsage(ctx, ok))
	assert.Equal(t, int64(1), ok.ID)

	failed := &ModelUsage{
		OperationType:    "explain",
		Provider:         "openrouter",
		ModelName:        "openai/gpt-4o-mini",
		PromptBytes:      800,
		RequestTimestamp: now.Add(time.Second),
		Success:          false,
		ErrorMessage:     &msg,
	}
	require.NoError(t, tr.TrackUsage(ctx, failed))

	stats, err := tr.GetUsageStats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.SuccessfulRequests)
	assert.Equal(t, 0.5, stats.SuccessRate)
	assert.Equal(t, int64(2000), stats.PromptBytes)
	assert.Equal(t, int64(300), stats.ResponseBytes)
	assert.Equal(t, 2, stats.UniqueModels)

	stats, err = tr.GetUsageStats(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.SuccessRate)

	breakdown, err := tr.GetModelBreakdown(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "gemini", breakdown[0].Provider)
	assert.Equal(t, 0, breakdown[0].FailedCount)
	require.NotNil(t, breakdown[0].AvgResponseTimeMs)
	assert.InDelta(t, 1500, *breakdown[0].AvgResponseTimeMs, 5)
	assert.Equal(t, 1, breakdown[1].FailedCount)
	assert.Nil(t, breakdown[1].AvgResponseTimeMs)

	recent, err := tr.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "openrouter", recent[0].Provider)
	require.NotNil(t, recent[0].ErrorMessage)
	assert.Equal(t, msg, *recent[0].ErrorMessage)
	assert.Equal(t, "ds-1", recent[1].EntityID)
	assert.NotNil(t, recent[1].ResponseTimestamp)
}

func TestTrackUsage_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO llm_usage").
		WillReturnError(errors.New("disk I/O error"))

	err = NewUsageTracker(db, nil).TrackUsage(context.Background(), &ModelUsage{
		OperationType:    "explain",
		Provider:         "gemini",
		ModelName:        "m",
		RequestTimestamp: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record llm usage")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsageStats_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT(.+)FROM llm_usage").WillReturnError(errors.New("no such table"))

	_, err = NewUsageTracker(db, nil).GetUsageStats(context.Background(), time.Now())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubGenerator struct {
	text string
	err  error
}

func (s stubGenerator) Generate(context.Context, string) (string, error) { return s.text, s.err }
func (s stubGenerator) Name() string                                   { return "stub" }
func (s stubGenerator) Model() string                                  { return "stub-1" }

func TestWrap_RecordsCalls(t *testing.T) {
	db := testdb.CreateMigratedTestDB(t)
	tr := NewUsageTracker(db, zap.NewNop().Sugar())

	ctx := WithCall(context.Background(), Call{OperationType: "explain", EntityType: "dataset", EntityID: "ds-9"})

	text, err := Wrap(stubGenerator{text: "hello"}, tr).Generate(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = Wrap(stubGenerator{err: errors.New("boom")}, tr).Generate(context.Background(), "p")
	require.Error(t, err)

	recent, err := tr.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	var okRow, failRow ModelUsage
	for _, u := range recent {
		if u.Success {
			okRow = u
		} else {
			failRow = u
		}
	}
	assert.Equal(t, "explain", okRow.OperationType)
	assert.Equal(t, "ds-9", okRow.EntityID)
	assert.Equal(t, "stub", okRow.Provider)
	assert.Equal(t, "stub-1", okRow.ModelName)
	assert.Equal(t, 6, okRow.PromptBytes)
	assert.Equal(t, 5, okRow.ResponseBytes)

	assert.Equal(t, "generate", failRow.OperationType)
	require.NotNil(t, failRow.ErrorMessage)
	assert.Equal(t, "boom", *failRow.ErrorMessage)
}

func TestWrap_TrackingFailureDoesNotFailCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("INSERT INTO llm_usage").WillReturnError(errors.New("database is locked"))

	text, err := Wrap(stubGenerator{text: "fine"}, NewUsageTracker(db, nil)).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "fine", text)
}

func TestWrap_NilTracker(t *testing.T) {
	g := stubGenerator{text: "x"}
	assert.Equal(t, g, Wrap(g, nil))
}
