package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultTaskQueueSize = 256
	defaultTaskWorkers   = 2
	defaultTaskTimeout   = 10 * time.Second
)

// task is one unit of background work.
type task struct {
	name string
	fn   func(ctx context.Context) error
}

// TaskQueue runs best-effort side effects (access tracking, corroboration,
// relationship analysis) off the chat-response path. Tasks are dropped with
// a log line when the queue is full rather than blocking the caller.
type TaskQueue struct {
	tasks   chan task
	workers int
	timeout time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewTaskQueue(size, workers int) *TaskQueue {
	if size <= 0 {
		size = defaultTaskQueueSize
	}
	if workers <= 0 {
		workers = defaultTaskWorkers
	}
	return &TaskQueue{
		tasks:   make(chan task, size),
		workers: workers,
		timeout: defaultTaskTimeout,
	}
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (q *TaskQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	log.Printf("engine: task queue started with %d workers", q.workers)
}

// Stop drains in-flight tasks and shuts the workers down.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel := q.cancel
	q.mu.Unlock()

	close(q.tasks)
	q.wg.Wait()
	cancel()
	log.Printf("engine: task queue stopped")
}

// Submit enqueues a task. Returns false when the queue is full or stopped;
// the task is dropped, not retried.
func (q *TaskQueue) Submit(name string, fn func(ctx context.Context) error) bool {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		log.Printf("engine: task %q dropped, queue not running", name)
		return false
	}

	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		log.Printf("engine: task %q dropped, queue full", name)
		return false
	}
}

func (q *TaskQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for t := range q.tasks {
		taskCtx, cancel := context.WithTimeout(ctx, q.timeout)
		if err := t.fn(taskCtx); err != nil {
			log.Printf("engine: background task %q failed: %v", t.name, err)
		}
		cancel()
	}
}
