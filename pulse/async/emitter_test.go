package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	testdb "github.com/teranos/dataq/internal/testing"
	"github.com/teranos/dataq/pulse"
)

func TestJobProgressEmitter_PersistsProgress(t *testing.T) {
	q := NewQueue(testdb.CreateMigratedTestDB(t))
	job := newTestJob(t, "ds-1")
	require.NoError(t, q.Enqueue(job))

	e := NewJobProgressEmitter(job, q, zap.NewNop().Sugar())
	e.EmitStage("profile", "Profiling columns")
	e.EmitProgress(2, 0)

	got, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress.Current)
	assert.Equal(t, 4, got.Progress.Total)

	e.EmitProgress(1, 8)
	got, err = q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Progress.Total)

	// logging only
	e.EmitError("profile", assert.AnError)
	e.EmitInfo("done")
}

func TestEmitterFromContext(t *testing.T) {
	assert.Equal(t, pulse.NopEmitter{}, EmitterFromContext(context.Background()))

	e := &JobProgressEmitter{}
	ctx := WithEmitter(context.Background(), e)
	assert.Same(t, e, EmitterFromContext(ctx))
}
