package async

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/errors"
	testdb "github.com/teranos/dataq/internal/testing"
)

func newTestJob(t *testing.T, source string) *Job {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"dataset_id": source})
	require.NoError(t, err)
	job, err := NewJob("dataset.process", source, payload, 4)
	require.NoError(t, err)
	return job
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	job := newTestJob(t, "ds-1")
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "dataset.process", got.HandlerName)
	assert.JSONEq(t, `{"dataset_id":"ds-1"}`, string(got.Payload))
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Equal(t, 4, got.Progress.Total)
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, got.Error)

	_, err = store.GetJob("missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_Update(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	job := newTestJob(t, "ds-1")
	require.NoError(t, store.CreateJob(job))

	job.Start()
	job.UpdateProgress(3)
	job.Fail(errors.New("boom"))
	job.RetryCount = 2
	require.NoError(t, store.UpdateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 3, got.Progress.Current)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)

	ghost := newTestJob(t, "ds-x")
	assert.True(t, errors.Is(store.UpdateJob(ghost), errors.ErrNotFound))
}

func TestStore_ClaimNextOldestFirst(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	first := newTestJob(t, "ds-1")
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	second := newTestJob(t, "ds-2")
	require.NoError(t, store.CreateJob(second))
	require.NoError(t, store.CreateJob(first))

	claimed, err := store.ClaimNext()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, JobStatusRunning, claimed.Status)

	claimed, err = store.ClaimNext()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)

	claimed, err = store.ClaimNext()
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestStore_ListAndCount(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	for i, status := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusCompleted} {
		job := newTestJob(t, "ds")
		job.Status = status
		job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateJob(job))
	}

	all, err := store.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.True(t, !all[0].CreatedAt.Before(all[3].CreatedAt), "newest first")

	completed := JobStatusCompleted
	done, err := store.ListJobs(&completed, 10)
	require.NoError(t, err)
	assert.Len(t, done, 2)

	active, err := store.ListActiveJobs(10)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, map[JobStatus]int{
		JobStatusQueued:    1,
		JobStatusRunning:   1,
		JobStatusCompleted: 2,
	}, counts)
}

func TestStore_FindActiveJobBySourceAndHandler(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	found, err := store.FindActiveJobBySourceAndHandler("ds-1", "dataset.process")
	require.NoError(t, err)
	assert.Nil(t, found)

	job := newTestJob(t, "ds-1")
	require.NoError(t, store.CreateJob(job))

	found, err = store.FindActiveJobBySourceAndHandler("ds-1", "dataset.process")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)

	job.Complete()
	require.NoError(t, store.UpdateJob(job))
	found, err = store.FindActiveJobBySourceAndHandler("ds-1", "dataset.process")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStore_DeleteAndCleanup(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	old := newTestJob(t, "ds-1")
	old.Complete()
	old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.CreateJob(old))

	fresh := newTestJob(t, "ds-2")
	fresh.Complete()
	require.NoError(t, store.CreateJob(fresh))

	queued := newTestJob(t, "ds-3")
	queued.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.CreateJob(queued))

	n, err := store.CleanupOldJobs(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.DeleteJob(fresh.ID))
	assert.True(t, errors.Is(store.DeleteJob(fresh.ID), errors.ErrNotFound))
}

func TestStore_DatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("INSERT INTO async_jobs").WillReturnError(errors.New("disk I/O error"))
	err = store.CreateJob(newTestJob(t, "ds-1"))
	assert.ErrorContains(t, err, "failed to create job")

	mock.ExpectQuery("SELECT .* FROM async_jobs").WillReturnError(errors.New("database is locked"))
	_, err = store.ClaimNext()
	assert.ErrorContains(t, err, "failed to find queued job")

	assert.NoError(t, mock.ExpectationsWereMet())
}
