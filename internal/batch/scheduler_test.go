package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultsKeepSubmissionOrder(t *testing.T) {
	s := New(Config{Workers: 8, Parallel: true})

	var mu sync.Mutex
	var completionOrder []int

	errs := s.Run(context.Background(), 20, func(_ context.Context, i int) error {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		mu.Lock()
		completionOrder = append(completionOrder, i)
		mu.Unlock()
		return fmt.Errorf("task %d", i)
	})

	require.Len(t, errs, 20)
	for i, err := range errs {
		assert.EqualError(t, err, fmt.Sprintf("task %d", i))
	}
	assert.Len(t, completionOrder, 20)
}

func TestPartialFailure(t *testing.T) {
	s := New(Config{Workers: 4, Parallel: true})
	boom := errors.New("transcription failed")

	errs := s.Run(context.Background(), 5, func(_ context.Context, i int) error {
		if i == 1 || i == 3 {
			return boom
		}
		return nil
	})

	require.Len(t, errs, 5)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
	assert.ErrorIs(t, errs[3], boom)
	assert.NoError(t, errs[4])
}

func TestConcurrencyBound(t *testing.T) {
	s := New(Config{Workers: 3, Parallel: true})

	var current, peak int32
	errs := s.Run(context.Background(), 30, func(_ context.Context, _ int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, peak, int32(3))
}

func TestSequentialWhenParallelDisabled(t *testing.T) {
	s := New(Config{Workers: 8, Parallel: false})
	assert.Equal(t, 1, s.Workers())

	var current, peak int32
	s.Run(context.Background(), 10, func(_ context.Context, _ int) error {
		n := atomic.AddInt32(&current, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		atomic.AddInt32(&current, -1)
		return nil
	})
	assert.Equal(t, int32(1), peak)
}

func TestAutoWorkerCount(t *testing.T) {
	s := New(Config{Workers: 0, Parallel: true})
	assert.Equal(t, runtime.NumCPU(), s.Workers())
}

func TestChunksDrainSequentially(t *testing.T) {
	s := New(Config{Workers: 4, ChunkSize: 3, Parallel: true})

	var firstChunkDone int32
	errs := s.Run(context.Background(), 6, func(_ context.Context, i int) error {
		if i < 3 {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&firstChunkDone, 1)
			return nil
		}
		if atomic.LoadInt32(&firstChunkDone) != 3 {
			return errors.New("second chunk started before first drained")
		}
		return nil
	})

	for i, err := range errs {
		assert.NoError(t, err, "task %d", i)
	}
}

func TestPanicFailsOnlyItsSlot(t *testing.T) {
	s := New(Config{Workers: 2, Parallel: true})

	errs := s.Run(context.Background(), 3, func(_ context.Context, i int) error {
		if i == 1 {
			panic("corrupt audio header")
		}
		return nil
	})

	assert.NoError(t, errs[0])
	require.Error(t, errs[1])
	assert.Contains(t, errs[1].Error(), "panicked")
	assert.Contains(t, errs[1].Error(), "corrupt audio header")
	assert.NoError(t, errs[2])
}

func TestCancellationMarksRemaining(t *testing.T) {
	s := New(Config{Workers: 1, Parallel: false, ChunkSize: 1})
	ctx, cancel := context.WithCancel(context.Background())

	errs := s.Run(ctx, 5, func(_ context.Context, i int) error {
		if i == 1 {
			cancel()
		}
		return nil
	})

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	for i := 2; i < 5; i++ {
		require.Error(t, errs[i], "task %d", i)
		assert.Contains(t, errs[i].Error(), "cancelled")
		assert.ErrorIs(t, errs[i], context.Canceled)
	}
}

func TestEmptyBatch(t *testing.T) {
	s := New(Config{Parallel: true})
	errs := s.Run(context.Background(), 0, func(_ context.Context, _ int) error {
		t.Fatal("must not run")
		return nil
	})
	assert.Empty(t, errs)
}
