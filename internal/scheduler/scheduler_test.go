package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(Config{MaxConcurrent: 4})
	t.Cleanup(s.Close)
	return s
}

func TestSubmit_ReturnsResult(t *testing.T) {
	s := newTestScheduler(t)

	result, err := s.Run(context.Background(), LibraryKey(uuid.New()), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestSameKey_StrictFIFO(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	var mu sync.Mutex
	var order []int

	tasks := make([]*Task, 0, 50)
	for i := 0; i < 50; i++ {
		i := i
		task, err := s.Submit(key, func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	for _, task := range tasks {
		_, err := task.Wait(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, order, 50)
	for i, got := range order {
		assert.Equal(t, i, got, "execution order must equal submission order")
	}
}

func TestSameKey_WriteVisibleToLaterRead(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	var state atomic.Int64
	write, err := s.Submit(key, func(ctx context.Context) (any, error) {
		time.Sleep(10 * time.Millisecond)
		state.Store(7)
		return nil, nil
	})
	require.NoError(t, err)

	read, err := s.Submit(key, func(ctx context.Context) (any, error) {
		return state.Load(), nil
	})
	require.NoError(t, err)

	_, err = write.Wait(context.Background())
	require.NoError(t, err)
	got, err := read.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), got, "a read enqueued after a write sees its effect")
}

func TestDistinctKeys_RunConcurrently(t *testing.T) {
	s := newTestScheduler(t)

	var running atomic.Int64
	var peak atomic.Int64
	barrier := make(chan struct{})

	var tasks []*Task
	for i := 0; i < 3; i++ {
		task, err := s.Submit(LibraryKey(uuid.New()), func(ctx context.Context) (any, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-barrier
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	// Give all three queues time to start their task.
	assert.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, time.Millisecond)
	close(barrier)
	for _, task := range tasks {
		_, err := task.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), peak.Load())
}

func TestFailingTask_DoesNotBlockQueue(t *testing.T) {
	s := newTestScheduler(t)
	key := DocumentKey(uuid.New())

	failing, err := s.Submit(key, func(ctx context.Context) (any, error) {
		return nil, vecerr.NotFound("document", "gone")
	})
	require.NoError(t, err)
	following, err := s.Submit(key, func(ctx context.Context) (any, error) {
		return "survived", nil
	})
	require.NoError(t, err)

	_, err = failing.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, vecerr.KindNotFound, vecerr.KindOf(err))

	got, err := following.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "survived", got)
}

func TestPanickingTask_SurfacesInternalError(t *testing.T) {
	s := newTestScheduler(t)
	key := ChunkKey(uuid.New())

	panicking, err := s.Submit(key, func(ctx context.Context) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)
	following, err := s.Submit(key, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = panicking.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, vecerr.KindInternal, vecerr.KindOf(err))

	_, err = following.Wait(context.Background())
	require.NoError(t, err)
}

func TestCancel_PendingTask(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	release := make(chan struct{})
	blocker, err := s.Submit(key, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	victim, err := s.Submit(key, func(ctx context.Context) (any, error) {
		t.Error("cancelled task must not run")
		return nil, nil
	})
	require.NoError(t, err)

	assert.True(t, victim.Cancel())
	_, err = victim.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, vecerr.KindCancelled, vecerr.KindOf(err))

	close(release)
	_, err = blocker.Wait(context.Background())
	require.NoError(t, err)
}

func TestCancel_RunningTaskRefused(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	started := make(chan struct{})
	release := make(chan struct{})
	task, err := s.Submit(key, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "finished", nil
	})
	require.NoError(t, err)

	<-started
	assert.False(t, task.Cancel(), "running tasks are not interruptible")
	close(release)

	got, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "finished", got)
}

func TestWait_Timeout(t *testing.T) {
	s := newTestScheduler(t)

	release := make(chan struct{})
	task, err := s.Submit(LibraryKey(uuid.New()), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = task.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, vecerr.KindTimeout, vecerr.KindOf(err))

	// The task still commits after the waiter gave up.
	close(release)
	_, err = task.Wait(context.Background())
	require.NoError(t, err)
}

func TestQueueState_ReleasedWhenDrained(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	task, err := s.Submit(key, func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = task.Wait(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.QueueLen(key) == 0 && len(s.Stats()) == 0
	}, time.Second, time.Millisecond, "drained keys release their queue state")
}

func TestStats_ReportsDepth(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	release := make(chan struct{})
	first, err := s.Submit(key, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	second, err := s.Submit(key, func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		stats := s.Stats()
		return len(stats) == 1 && stats[0].Depth == 1 && stats[0].Running
	}, time.Second, time.Millisecond)

	close(release)
	for _, task := range []*Task{first, second} {
		_, err := task.Wait(context.Background())
		require.NoError(t, err)
	}
}

func TestClose_RejectsNewWork(t *testing.T) {
	s := New(Config{})
	s.Close()

	_, err := s.Submit(LibraryKey(uuid.New()), func(ctx context.Context) (any, error) { return nil, nil })
	require.Error(t, err)
	assert.Equal(t, vecerr.KindCancelled, vecerr.KindOf(err))
}

func TestTenConcurrentSubmitters_AllApply(t *testing.T) {
	s := newTestScheduler(t)
	key := LibraryKey(uuid.New())

	// Ten submitters race to append to a shared slice guarded only by
	// the per-key ordering.
	var applied []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Run(context.Background(), key, func(ctx context.Context) (any, error) {
				applied = append(applied, i)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// All ten effects applied, no lost updates.
	assert.Len(t, applied, 10)
	seen := make(map[int]bool)
	for _, v := range applied {
		seen[v] = true
	}
	assert.Len(t, seen, 10)
}
