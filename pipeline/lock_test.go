package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_TryLock(t *testing.T) {
	k := newKeyedMutex()

	unlock, ok := k.TryLock("a")
	require.True(t, ok)
	assert.True(t, k.Held("a"))

	_, ok = k.TryLock("a")
	assert.False(t, ok, "same id must be rejected while held")

	unlockB, ok := k.TryLock("b")
	require.True(t, ok, "different ids do not contend")
	unlockB()

	unlock()
	unlock() // releasing twice is harmless
	assert.False(t, k.Held("a"))
	assert.Empty(t, k.held)

	unlock, ok = k.TryLock("a")
	require.True(t, ok)
	unlock()
}

func TestKeyedMutex_LockWaits(t *testing.T) {
	k := newKeyedMutex()
	unlock, ok := k.TryLock("a")
	require.True(t, ok)

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		release := k.Lock("a")
		acquired.Store(true)
		release()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load())

	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock never acquired after release")
	}
	assert.True(t, acquired.Load())
}

func TestKeyedMutex_Serializes(t *testing.T) {
	k := newKeyedMutex()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := k.Lock("ds")
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}
