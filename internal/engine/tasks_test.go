package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskQueueRunsSubmittedTasks(t *testing.T) {
	q := NewTaskQueue(8, 2)
	q.Start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if !q.Submit("count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}) {
			t.Fatal("submit rejected with room in the queue")
		}
	}

	q.Stop()
	if got := ran.Load(); got != 5 {
		t.Errorf("expected 5 tasks run, got %d", got)
	}
}

func TestTaskQueueRejectsWhenStopped(t *testing.T) {
	q := NewTaskQueue(8, 1)
	if q.Submit("early", func(ctx context.Context) error { return nil }) {
		t.Error("submit must fail before Start")
	}

	q.Start()
	q.Stop()
	if q.Submit("late", func(ctx context.Context) error { return nil }) {
		t.Error("submit must fail after Stop")
	}
}

func TestTaskQueueDropsWhenFull(t *testing.T) {
	q := NewTaskQueue(1, 1)
	q.Start()
	defer q.Stop()

	block := make(chan struct{})
	q.Submit("blocker", func(ctx context.Context) error {
		<-block
		return nil
	})

	// Give the worker time to pick up the blocker, then fill the buffer.
	time.Sleep(50 * time.Millisecond)
	q.Submit("buffered", func(ctx context.Context) error { return nil })

	if q.Submit("overflow", func(ctx context.Context) error { return nil }) {
		t.Error("submit must drop when the queue is full")
	}
	close(block)
}

// Task failures are logged, never propagated; the queue keeps working.
func TestTaskQueueSurvivesFailures(t *testing.T) {
	q := NewTaskQueue(8, 1)
	q.Start()

	var ran atomic.Int32
	q.Submit("failing", func(ctx context.Context) error {
		return fmt.Errorf("boom")
	})
	q.Submit("after", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	q.Stop()
	if ran.Load() != 1 {
		t.Error("queue must keep processing after a task failure")
	}
}

func TestTaskQueueStartIdempotent(t *testing.T) {
	q := NewTaskQueue(4, 1)
	q.Start()
	q.Start()
	q.Stop()
	q.Stop()
}
