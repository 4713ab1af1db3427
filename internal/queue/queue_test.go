package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueLimitsConcurrency(t *testing.T) {
	q := New(2)
	ctx := context.Background()

	p1, err := q.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	p2, err := q.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	if got := q.AvailablePermits(); got != 0 {
		t.Errorf("AvailablePermits() = %d, want 0", got)
	}

	p1.Release()
	if got := q.AvailablePermits(); got != 1 {
		t.Errorf("AvailablePermits() after one release = %d, want 1", got)
	}

	p2.Release()
	if got := q.AvailablePermits(); got != 2 {
		t.Errorf("AvailablePermits() after both released = %d, want 2", got)
	}
}

func TestQueueDefaultConcurrency(t *testing.T) {
	q := New(0)
	if q.MaxConcurrent() != 3 {
		t.Errorf("MaxConcurrent() = %d, want 3 (default)", q.MaxConcurrent())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	q := New(1)
	p, err := q.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release()
	p.Release()
	if got := q.AvailablePermits(); got != 1 {
		t.Errorf("AvailablePermits() after double-release = %d, want 1", got)
	}
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	q := New(1)
	p1, err := q.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		p2, err := q.Acquire(context.Background())
		if err != nil {
			t.Errorf("acquire 2: %v", err)
			return
		}
		close(acquired)
		p2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while the first permit was held")
	case <-time.After(50 * time.Millisecond):
	}

	p1.Release()
	wg.Wait()
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	q := New(1)
	p, err := q.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Acquire(ctx); err == nil {
		t.Error("expected Acquire to fail once the context deadline passed")
	}
}

// TestAtMostMaxConcurrentHeld is the spec's "at most max_concurrent permits
// held at once" property, checked under concurrent load.
func TestAtMostMaxConcurrentHeld(t *testing.T) {
	const maxConcurrent = 4
	q := New(maxConcurrent)

	var active, maxSeen int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := q.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer p.Release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen > maxConcurrent {
		t.Errorf("observed %d concurrently-held permits, want <= %d", maxSeen, maxConcurrent)
	}
}
