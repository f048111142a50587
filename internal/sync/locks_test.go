package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"
	"time"
)

func TestSyncLock_MutualExclusion(t *testing.T) {
	lock := NewSyncLock()
	ctx := context.Background()

	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("Failed to acquire unheld lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := lock.Acquire(ctx); err != nil {
			t.Errorf("Second acquire failed: %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Second acquire should block while the lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Second acquire should succeed after release")
	}
	lock.Release()
}

func TestSyncLock_AcquireCancellable(t *testing.T) {
	lock := NewSyncLock()
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	defer lock.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := lock.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	var mu gosync.Mutex
	events := make([]string, 0, 4)
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	first := km.lock("movies/42")
	record("held")

	done := make(chan struct{})
	go func() {
		unlock := km.lock("movies/42")
		record("reacquired")
		unlock()
		close(done)
	}()

	// A different key must not block.
	other := km.lock("movies/43")
	record("other-key")
	other()

	record("releasing")
	first()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"held", "other-key", "releasing", "reacquired"} {
		if events[i] != want {
			t.Fatalf("Unexpected event order: %v", events)
		}
	}
}

func TestKeyedMutex_ReapsReleasedKeys(t *testing.T) {
	km := newKeyedMutex()

	var wg gosync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("movies/%d", i%8)
			for j := 0; j < 10; j++ {
				unlock := km.lock(key)
				unlock()
			}
		}(i)
	}
	wg.Wait()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Errorf("Expected released keys to be reaped, %d entries remain", len(km.locks))
	}
}
