package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, Job{SessionID: "s1"}) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j := <-q.Dequeue(dctx)
	if j.SessionID != "s1" {
		t.Errorf("expected s1, got %q", j.SessionID)
	}
	if j.RequestedAt.IsZero() {
		t.Error("expected enqueue to stamp the request time")
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if !q.Enqueue(ctx, Job{SessionID: id}) {
			t.Fatalf("expected enqueue of %s to succeed", id)
		}
	}
	if q.Enqueue(ctx, Job{SessionID: "s3"}) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, Job{SessionID: "s1"}) {
		t.Error("expected enqueue with a cancelled context to fail")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, Job{SessionID: "s1"})
	q.Enqueue(ctx, Job{SessionID: "s2"})

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, Job{SessionID: "s3"}) {
		t.Error("expected enqueue after close to fail")
	}

	var got []string
	for j := range q.Dequeue(ctx) {
		got = append(got, j.SessionID)
	}
	if len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Errorf("expected queued jobs to drain in order after close, got %v", got)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 8, 50
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if !q.Enqueue(ctx, Job{SessionID: fmt.Sprintf("s%d-%d", id, j)}) {
					t.Errorf("enqueue %d-%d failed", id, j)
				}
			}
		}(i)
	}
	wg.Wait()
	_ = q.Close()

	seen := make(map[string]bool)
	done := make(chan struct{})
	go func() {
		for j := range q.Dequeue(ctx) {
			seen[j.SessionID] = true
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out draining queue")
	}
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct jobs, got %d", producers*perProducer, len(seen))
	}
}
