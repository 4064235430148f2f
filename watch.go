package blocktree

import (
	"sync"
	"time"
)

// DefaultBroadcastTimeout is how long a broadcast waits on a watcher's
// events channel before failing the watch.
const DefaultBroadcastTimeout = 5 * time.Second

// DefaultWatchBuffer is the default capacity of a watcher's events
// channel.
const DefaultWatchBuffer = 256

// Hub is a store's notification registry. It is mutated by both the
// commit path (Broadcast) and the subscription path (Watch/Close); one
// lock covers both so a registration is never lost mid-commit.
type Hub struct {
	mu               sync.Mutex
	watchers         map[*Watcher]struct{}
	broadcastTimeout time.Duration
}

// NewHub creates a Hub with the default broadcast timeout.
func NewHub() *Hub {
	return NewHubWithTimeout(DefaultBroadcastTimeout)
}

// NewHubWithTimeout creates a Hub with a custom broadcast timeout.
func NewHubWithTimeout(timeout time.Duration) *Hub {
	return &Hub{
		watchers:         make(map[*Watcher]struct{}),
		broadcastTimeout: timeout,
	}
}

// Watch registers a watcher. Registration must happen in the same
// critical section as the backlog snapshot it pairs with; the store
// arranges that by calling Watch under its mutation lock.
func (h *Hub) Watch(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w.hub = h
	h.watchers[w] = struct{}{}
}

// Broadcast delivers one commit's notification to every watcher. A
// watcher that does not read within the broadcast timeout is failed:
// removed from the hub, its Failed channel closed, its events channel
// closed. Watchers registered at or after the notification's commit are
// skipped.
func (h *Hub) Broadcast(n *Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var failed []*Watcher
	for w := range h.watchers {
		if n.Commit <= w.after {
			continue
		}
		select {
		case w.events <- n:
		case <-time.After(h.broadcastTimeout):
			failed = append(failed, w)
		}
	}
	for _, w := range failed {
		delete(h.watchers, w)
		w.fail()
	}
}

// WatcherCount returns the number of active watchers.
func (h *Hub) WatcherCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// CloseAll fails every registered watcher. Called when the store shuts
// down.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		delete(h.watchers, w)
		w.fail()
	}
}

func (h *Hub) unwatch(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers, w)
	w.closeEvents()
}

// Watcher is one live subscription. Events yields one Notification per
// commit after the watcher's registration point; the channel is closed
// when the watcher is closed or failed. Failed is closed if the hub
// drops the watcher (slow consumer or store shutdown).
type Watcher struct {
	events chan *Notification
	failed chan struct{}
	hub    *Hub
	after  int64

	failOnce  sync.Once
	closeOnce sync.Once
}

// NewWatcher creates an unregistered watcher that ignores commits at or
// before the after commit number. bufferSize bounds how far the
// consumer may lag before the hub fails the watch.
func NewWatcher(after int64, bufferSize int) *Watcher {
	if bufferSize <= 0 {
		bufferSize = DefaultWatchBuffer
	}
	return &Watcher{
		events: make(chan *Notification, bufferSize),
		failed: make(chan struct{}),
		after:  after,
	}
}

// Events returns the notification channel.
func (w *Watcher) Events() <-chan *Notification {
	return w.events
}

// Failed returns a channel closed when the hub drops the watcher.
func (w *Watcher) Failed() <-chan struct{} {
	return w.failed
}

// IsFailed reports whether the watch has been failed.
func (w *Watcher) IsFailed() bool {
	select {
	case <-w.failed:
		return true
	default:
		return false
	}
}

// Close synchronously unregisters the watcher and closes its events
// channel. After Close returns no further delivery is attempted and no
// event buffer is retained. Close is idempotent and safe to call
// concurrently with broadcasts.
func (w *Watcher) Close() {
	if w.hub != nil {
		w.hub.unwatch(w)
		return
	}
	w.closeEvents()
}

// fail is called with the hub lock held.
func (w *Watcher) fail() {
	w.failOnce.Do(func() { close(w.failed) })
	w.closeEvents()
}

// closeEvents is called with the hub lock held (or before registration),
// so no broadcast send can be in flight.
func (w *Watcher) closeEvents() {
	w.closeOnce.Do(func() { close(w.events) })
}
