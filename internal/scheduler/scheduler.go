// Package scheduler provides a keyed FIFO operation queue: tasks under
// the same (kind, id) key execute strictly in submission order, one at a
// time, while tasks under different keys run concurrently up to a global
// worker bound. It is the only synchronization point for index mutations;
// the index structures themselves carry no locks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// Kind names the resource class of a queue key.
type Kind string

const (
	KindLibrary  Kind = "library"
	KindDocument Kind = "document"
	KindChunk    Kind = "chunk"
)

// Key identifies one serialization domain.
type Key struct {
	Kind Kind
	ID   uuid.UUID
}

// String renders the key as "kind:id".
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}

// LibraryKey builds a library-scoped key.
func LibraryKey(id uuid.UUID) Key { return Key{Kind: KindLibrary, ID: id} }

// DocumentKey builds a document-scoped key.
func DocumentKey(id uuid.UUID) Key { return Key{Kind: KindDocument, ID: id} }

// ChunkKey builds a chunk-scoped key.
func ChunkKey(id uuid.UUID) Key { return Key{Kind: KindChunk, ID: id} }

// TaskFunc is the unit of scheduled work.
type TaskFunc func(ctx context.Context) (any, error)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task is a handle to a submitted operation.
type Task struct {
	key Key
	fn  TaskFunc

	mu     sync.Mutex
	state  taskState
	result any
	err    error
	done   chan struct{}

	sched *Scheduler
}

// Wait blocks until the task completes and returns its result or error.
// If ctx expires first, Wait returns a Timeout error; the task itself is
// not interrupted and may still commit.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, vecerr.Timeout("timed out waiting for "+t.key.String(), ctx.Err())
		}
		return nil, vecerr.Cancelled("abandoned waiting for " + t.key.String())
	}
}

// Cancel removes the task from its queue if it has not started.
// Returns true on success; a running or finished task reports false.
func (t *Task) Cancel() bool {
	return t.sched.cancel(t)
}

// complete records the outcome and releases waiters.
func (t *Task) complete(result any, err error) {
	t.mu.Lock()
	t.state = taskDone
	t.result = result
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// KeyStats describes one active queue for introspection.
type KeyStats struct {
	Key           Key       `json:"key"`
	Depth         int       `json:"depth"`
	Running       bool      `json:"running"`
	LastProcessed time.Time `json:"last_processed"`
}

// Config tunes the scheduler.
type Config struct {
	// MaxConcurrent bounds tasks running at once across all keys.
	// Zero means DefaultMaxConcurrent.
	MaxConcurrent int

	// Logger receives task failure logs. Nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultMaxConcurrent is the default global worker bound.
const DefaultMaxConcurrent = 8

// Scheduler dispatches tasks across per-key FIFO queues. Queue state for
// a key exists only while work is pending; drained keys are released.
type Scheduler struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu            sync.Mutex
	queues        map[Key]*keyQueue
	lastProcessed map[Key]time.Time
	closed        bool

	wg sync.WaitGroup
}

type keyQueue struct {
	pending []*Task
	running bool
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sem:           semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:        logger,
		queues:        make(map[Key]*keyQueue),
		lastProcessed: make(map[Key]time.Time),
	}
}

// Submit enqueues fn under key and returns a handle. Submission order
// equals execution order per key. The returned task must be Waited on to
// observe the result; errors are surfaced only to the submitter.
func (s *Scheduler) Submit(key Key, fn TaskFunc) (*Task, error) {
	task := &Task{
		key:   key,
		fn:    fn,
		done:  make(chan struct{}),
		sched: s,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, vecerr.Cancelled("scheduler is shut down")
	}
	q, ok := s.queues[key]
	if !ok {
		q = &keyQueue{}
		s.queues[key] = q
	}
	q.pending = append(q.pending, task)
	if !q.running {
		q.running = true
		s.wg.Add(1)
		go s.drain(key)
	}
	s.mu.Unlock()

	return task, nil
}

// Run submits fn and waits for its completion in one call.
func (s *Scheduler) Run(ctx context.Context, key Key, fn TaskFunc) (any, error) {
	task, err := s.Submit(key, fn)
	if err != nil {
		return nil, err
	}
	return task.Wait(ctx)
}

// drain executes the queue for key until it empties, then releases the
// key's state.
func (s *Scheduler) drain(key Key) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q.pending) == 0 {
			q.running = false
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		s.mu.Unlock()

		task.mu.Lock()
		if task.state == taskCancelled {
			task.mu.Unlock()
			continue
		}
		task.state = taskRunning
		task.mu.Unlock()

		// The semaphore bounds global parallelism; queue order within
		// the key is already fixed at this point.
		_ = s.sem.Acquire(context.Background(), 1)
		result, err := s.execute(task)
		s.sem.Release(1)

		if err != nil {
			s.logger.Warn("scheduled task failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()))
		}

		s.mu.Lock()
		s.lastProcessed[key] = time.Now().UTC()
		s.mu.Unlock()

		task.complete(result, err)
	}
}

// execute runs one task, converting panics into internal errors so a
// failing task never takes down its queue.
func (s *Scheduler) execute(task *Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = vecerr.InternalError(fmt.Sprintf("task panic: %v", r), nil)
			s.logger.Error("scheduled task panicked",
				slog.String("key", task.key.String()),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	return task.fn(context.Background())
}

// cancel removes a pending task from its queue.
func (s *Scheduler) cancel(t *Task) bool {
	s.mu.Lock()

	t.mu.Lock()
	if t.state != taskPending {
		t.mu.Unlock()
		s.mu.Unlock()
		return false
	}
	t.state = taskCancelled
	t.mu.Unlock()

	if q, ok := s.queues[t.key]; ok {
		for i, pending := range q.pending {
			if pending == t {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	t.mu.Lock()
	t.state = taskCancelled
	t.err = vecerr.Cancelled("task cancelled before start")
	t.mu.Unlock()
	close(t.done)
	return true
}

// QueueLen returns the number of pending tasks for key.
func (s *Scheduler) QueueLen(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[key]; ok {
		return len(q.pending)
	}
	return 0
}

// Stats snapshots all active queues.
func (s *Scheduler) Stats() []KeyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]KeyStats, 0, len(s.queues))
	for key, q := range s.queues {
		out = append(out, KeyStats{
			Key:           key,
			Depth:         len(q.pending),
			Running:       q.running,
			LastProcessed: s.lastProcessed[key],
		})
	}
	return out
}

// Close stops accepting submissions and waits for all queues to drain.
// Running and already-queued tasks complete normally.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
}
