package blocktree

import (
	"sync"
	"testing"
	"time"
)

func TestHub_WatchAndClose(t *testing.T) {
	hub := NewHub()

	// Initially empty
	if hub.WatcherCount() != 0 {
		t.Errorf("expected 0 watchers, got %d", hub.WatcherCount())
	}

	w1 := NewWatcher(0, 10)
	hub.Watch(w1)
	w2 := NewWatcher(0, 10)
	hub.Watch(w2)

	if hub.WatcherCount() != 2 {
		t.Errorf("expected 2 watchers, got %d", hub.WatcherCount())
	}

	w1.Close()
	if hub.WatcherCount() != 1 {
		t.Errorf("expected 1 watcher after close, got %d", hub.WatcherCount())
	}

	// Close is idempotent
	w1.Close()
	if hub.WatcherCount() != 1 {
		t.Errorf("expected 1 watcher after double close, got %d", hub.WatcherCount())
	}

	w2.Close()
	if hub.WatcherCount() != 0 {
		t.Errorf("expected 0 watchers, got %d", hub.WatcherCount())
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()

	w := NewWatcher(0, 10)
	hub.Watch(w)
	defer w.Close()

	hub.Broadcast(&Notification{
		Commit:  1,
		Changes: []BlockChange{{Kind: ChangeCreated, ID: "a", Origin: OriginLocal}},
	})

	select {
	case n := <-w.Events():
		if n.Commit != 1 {
			t.Errorf("expected commit 1, got %d", n.Commit)
		}
		if len(n.Changes) != 1 || n.Changes[0].ID != "a" {
			t.Errorf("unexpected changes: %+v", n.Changes)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected to receive notification")
	}
}

func TestHub_Broadcast_SkipsEarlierCommits(t *testing.T) {
	hub := NewHub()

	// Watcher registered after commit 2: it must only see commit 3+.
	w := NewWatcher(2, 10)
	hub.Watch(w)
	defer w.Close()

	hub.Broadcast(&Notification{Commit: 1})
	hub.Broadcast(&Notification{Commit: 2})
	hub.Broadcast(&Notification{Commit: 3})

	select {
	case n := <-w.Events():
		if n.Commit != 3 {
			t.Errorf("expected first delivered commit 3, got %d", n.Commit)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected to receive commit 3")
	}

	select {
	case n := <-w.Events():
		t.Errorf("unexpected extra notification for commit %d", n.Commit)
	default:
	}
}

func TestHub_Broadcast_SlowConsumerFails(t *testing.T) {
	// Short timeout for testing
	hub := NewHubWithTimeout(50 * time.Millisecond)

	// Buffer of one, never drained.
	w := NewWatcher(0, 1)
	hub.Watch(w)

	hub.Broadcast(&Notification{Commit: 1})

	// Buffer is now full; the next broadcast should time out and fail
	// the watch.
	done := make(chan bool)
	go func() {
		hub.Broadcast(&Notification{Commit: 2})
		done <- true
	}()

	select {
	case <-done:
		// Broadcast completed (after timeout)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("broadcast should complete after timeout")
	}

	if !w.IsFailed() {
		t.Error("watcher should be failed after timeout")
	}
	if hub.WatcherCount() != 0 {
		t.Errorf("expected 0 watchers after failure, got %d", hub.WatcherCount())
	}

	select {
	case <-w.Failed():
	default:
		t.Error("Failed channel should be closed")
	}

	// The buffered event drains, then the closed channel reports done.
	if n, ok := <-w.Events(); !ok || n.Commit != 1 {
		t.Errorf("expected buffered commit 1, got %v (ok=%v)", n, ok)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("events channel should be closed after failure")
	}
}

func TestHub_Broadcast_FastConsumerSucceeds(t *testing.T) {
	hub := NewHubWithTimeout(50 * time.Millisecond)

	w := NewWatcher(0, 10)
	hub.Watch(w)
	defer w.Close()

	for i := 1; i <= 5; i++ {
		hub.Broadcast(&Notification{Commit: int64(i)})

		select {
		case n := <-w.Events():
			if n.Commit != int64(i) {
				t.Errorf("expected commit %d, got %d", i, n.Commit)
			}
		case <-time.After(100 * time.Millisecond):
			t.Error("expected to receive notification")
		}
	}

	if w.IsFailed() {
		t.Error("watcher should not be failed")
	}
	if hub.WatcherCount() != 1 {
		t.Errorf("expected 1 watcher, got %d", hub.WatcherCount())
	}
}

func TestWatcher_CloseIsSynchronous(t *testing.T) {
	hub := NewHub()

	w := NewWatcher(0, 1)
	hub.Watch(w)
	w.Close()

	// After Close returns, broadcasts must not touch the watcher.
	hub.Broadcast(&Notification{Commit: 1})

	if _, ok := <-w.Events(); ok {
		t.Error("events channel should be closed after Close")
	}
	if w.IsFailed() {
		t.Error("an explicitly closed watcher is not failed")
	}
}

func TestWatcher_CloseBeforeWatch(t *testing.T) {
	w := NewWatcher(0, 1)
	w.Close()

	if _, ok := <-w.Events(); ok {
		t.Error("events channel should be closed")
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()

	w1 := NewWatcher(0, 10)
	w2 := NewWatcher(0, 10)
	hub.Watch(w1)
	hub.Watch(w2)

	hub.CloseAll()

	if hub.WatcherCount() != 0 {
		t.Errorf("expected 0 watchers after CloseAll, got %d", hub.WatcherCount())
	}
	if !w1.IsFailed() || !w2.IsFailed() {
		t.Error("expected both watchers failed after CloseAll")
	}
}

func TestHub_Concurrent(t *testing.T) {
	// Short timeout so an unlucky buffer overflow cannot stall the test.
	hub := NewHubWithTimeout(10 * time.Millisecond)

	var wg sync.WaitGroup
	const numGoroutines = 10
	const numOps = 100

	// Concurrent watch/close
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				w := NewWatcher(0, 10)
				hub.Watch(w)
				w.Close()
			}
		}()
	}

	// Concurrent broadcasts
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				hub.Broadcast(&Notification{Commit: int64(j)})
			}
		}()
	}

	wg.Wait()

	if hub.WatcherCount() != 0 {
		t.Errorf("expected 0 watchers after concurrent ops, got %d", hub.WatcherCount())
	}
}
