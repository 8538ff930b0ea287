package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/errors"
	testdb "github.com/teranos/dataq/internal/testing"
)

func testPoolConfig(workers int) WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      workers,
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  2 * time.Second,
	}
}

// waitForStatus polls until the job reaches status or the deadline passes
func waitForStatus(t *testing.T, q *Queue, id string, status JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == status
	}, 3*time.Second, 10*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestWorkerPool_RunsJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), testPoolConfig(2), nil)

	var calls atomic.Int32
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		EmitterFromContext(ctx).EmitProgress(1, 2)
		calls.Add(1)
		return nil
	}})
	pool.Start()
	defer pool.Stop()

	ids := make([]string, 3)
	for i := range ids {
		job := newTestJob(t, "ds")
		require.NoError(t, pool.Queue().Enqueue(job))
		ids[i] = job.ID
	}

	for _, id := range ids {
		job := waitForStatus(t, pool.Queue(), id, JobStatusCompleted)
		assert.Equal(t, job.Progress.Total, job.Progress.Current)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkerPool_TerminalErrorFailsImmediately(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), testPoolConfig(1), nil)

	var calls atomic.Int32
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return errors.Mark(errors.New("row 2 has 5 fields, header has 3"), errors.ErrParse)
	}})
	pool.Start()
	defer pool.Stop()

	job := newTestJob(t, "ds-1")
	require.NoError(t, pool.Queue().Enqueue(job))

	failed := waitForStatus(t, pool.Queue(), job.ID, JobStatusFailed)
	assert.Contains(t, failed.Error, "row 2 has 5 fields")
	assert.Equal(t, 0, failed.RetryCount)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorkerPool_RetriesTransientErrors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), testPoolConfig(1), nil)

	var calls atomic.Int32
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		if calls.Add(1) < 2 {
			return errors.New("database is locked")
		}
		return nil
	}})
	pool.Start()
	defer pool.Stop()

	job := newTestJob(t, "ds-1")
	require.NoError(t, pool.Queue().Enqueue(job))

	done := waitForStatus(t, pool.Queue(), job.ID, JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorkerPool_GivesUpAfterMaxRetries(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), testPoolConfig(1), nil)

	var calls atomic.Int32
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return errors.New("connection reset by peer")
	}})
	pool.Start()
	defer pool.Stop()

	job := newTestJob(t, "ds-1")
	require.NoError(t, pool.Queue().Enqueue(job))

	failed := waitForStatus(t, pool.Queue(), job.ID, JobStatusFailed)
	assert.Equal(t, MaxRetries, failed.RetryCount)
	assert.Contains(t, failed.Error, "after 2 retries")
	assert.Equal(t, int32(MaxRetries+1), calls.Load())
}

func TestWorkerPool_RecoversOrphanedJobs(t *testing.T) {
	db := testdb.CreateMigratedTestDB(t)

	// a job left running by a crashed process
	q := NewQueue(db)
	orphan := newTestJob(t, "ds-1")
	require.NoError(t, q.Enqueue(orphan))
	claimed, err := q.Dequeue()
	require.NoError(t, err)
	require.Equal(t, orphan.ID, claimed.ID)

	pool := NewWorkerPool(context.Background(), db, testPoolConfig(1), nil)
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		return nil
	}})
	pool.Start()
	defer pool.Stop()

	waitForStatus(t, pool.Queue(), orphan.ID, JobStatusCompleted)
}

func TestWorkerPool_StopRequeuesInterruptedJob(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), testPoolConfig(1), nil)

	started := make(chan struct{})
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	pool.Start()

	job := newTestJob(t, "ds-1")
	require.NoError(t, pool.Queue().Enqueue(job))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	begin := time.Now()
	pool.Stop()
	assert.Less(t, time.Since(begin), 2*time.Second)

	got, err := pool.Queue().GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestWorkerPool_StopTimeout(t *testing.T) {
	cfg := testPoolConfig(1)
	cfg.StopTimeout = 50 * time.Millisecond
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), cfg, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		close(started)
		<-release // ignores cancellation
		return nil
	}})
	pool.Start()
	require.NoError(t, pool.Queue().Enqueue(newTestJob(t, "ds-1")))
	<-started

	begin := time.Now()
	pool.Stop()
	assert.Less(t, time.Since(begin), time.Second)
	close(release)
}

func TestWorkerPool_RestartAfterStop(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), testPoolConfig(1), nil)
	pool.Registry().Register(HandlerFunc{HandlerName: "dataset.process", Fn: func(ctx context.Context, job *Job) error {
		return nil
	}})

	pool.Start()
	pool.Stop()
	pool.Start()
	defer pool.Stop()

	job := newTestJob(t, "ds-1")
	require.NoError(t, pool.Queue().Enqueue(job))
	waitForStatus(t, pool.Queue(), job.ID, JobStatusCompleted)
}

func TestNewWorkerPool_Defaults(t *testing.T) {
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), WorkerPoolConfig{Workers: 3}, nil)
	assert.Equal(t, 3, pool.Workers())
	assert.Equal(t, DefaultWorkerPoolConfig().PollInterval, pool.config.PollInterval)
	assert.Equal(t, DefaultWorkerPoolConfig().StopTimeout, pool.config.StopTimeout)
	assert.NotNil(t, pool.Registry())
}
