package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/filter"
	"github.com/blocktree-io/blocktree/system/blockd/api"
)

// maxLineBytes bounds a single request line. Content is free-form, so
// the limit is generous.
const maxLineBytes = 16 * 1024 * 1024

// Session represents a bidirectional session with a client.
// It handles parsing requests, dispatching to handlers, and sending
// responses/events.
type Session struct {
	ID    string
	conn  io.ReadWriteCloser
	store blocktree.Store
	log   *slog.Logger

	// Backend name (returned in hello response)
	backend string

	// Watch state
	watchMu sync.RWMutex
	watches map[string]*blocktree.Watcher // name -> live watcher

	// Communication channels
	outgoing chan *api.SessionResponse // responses and events to send
	done     chan struct{}             // signals session shutdown

	// Shutdown coordination
	closeOnce    sync.Once
	closeOutOnce sync.Once
}

// SessionConfig contains configuration for creating a session.
type SessionConfig struct {
	Store          blocktree.Store
	Log            *slog.Logger
	Backend        string // backend name reported in hello (default "memory")
	OutgoingBuffer int    // buffer size for outgoing channel (default 100)
}

// NewSession creates a new session for the given connection.
func NewSession(id string, conn io.ReadWriteCloser, cfg *SessionConfig) *Session {
	bufSize := cfg.OutgoingBuffer
	if bufSize <= 0 {
		bufSize = 100
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	backend := cfg.Backend
	if backend == "" {
		backend = BackendMemory
	}
	return &Session{
		ID:       id,
		conn:     conn,
		store:    cfg.Store,
		log:      log.With("session", id),
		backend:  backend,
		watches:  make(map[string]*blocktree.Watcher),
		outgoing: make(chan *api.SessionResponse, bufSize),
		done:     make(chan struct{}),
	}
}

// Run starts the session and blocks until it completes.
// It spawns reader and writer goroutines and waits for completion.
func (s *Session) Run() error {
	var wg sync.WaitGroup

	// Goroutine to close connection when done is signaled.
	// This unblocks the reader if it's stuck in a blocking read.
	wg.Go(func() {
		<-s.done
		s.conn.Close()
	})

	// Writer goroutine
	wg.Go(func() {
		s.writer()
	})

	// Reader runs in the main goroutine
	err := s.reader()

	// Signal shutdown (safe to call multiple times)
	s.closeOnce.Do(func() {
		close(s.done)
	})

	// Clean up watches; closing a watcher ends its forwarder
	s.cleanupWatches()

	// Close outgoing to stop writer (safe to call multiple times)
	s.closeOutOnce.Do(func() {
		close(s.outgoing)
	})

	// Wait for writer to finish
	wg.Wait()

	return err
}

// Close signals the session to shut down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.conn.Close()
}

// reader reads and processes newline-delimited JSON requests.
// It exits when the connection is closed (either by client disconnect
// or session shutdown).
func (s *Session) reader() error {
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req api.SessionRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(nil, api.ErrCodeInvalidMessage, fmt.Sprintf("failed to parse request: %v", err))
			continue
		}

		s.dispatch(&req)
	}

	if err := scanner.Err(); err != nil {
		// Check if this is a "use of closed connection" error from shutdown
		select {
		case <-s.done:
			return nil // Clean shutdown
		default:
		}
		return fmt.Errorf("read error: %w", err)
	}
	return nil
}

// writer sends outgoing responses and events.
func (s *Session) writer() {
	for resp := range s.outgoing {
		data, err := json.Marshal(resp)
		if err != nil {
			s.log.Error("failed to encode response", "error", err)
			continue
		}

		// Write with newline delimiter
		if _, err := s.conn.Write(append(data, '\n')); err != nil {
			s.log.Error("failed to write response", "error", err)
			return
		}
	}
}

// dispatch routes a request to the appropriate handler.
func (s *Session) dispatch(req *api.SessionRequest) {
	switch {
	case req.Hello != nil:
		s.handleHello(req.ID, req.Hello)
	case req.Create != nil:
		s.handleCreate(req.ID, req.Create)
	case req.Update != nil:
		s.handleUpdate(req.ID, req.Update)
	case req.Delete != nil:
		s.handleDelete(req.ID, req.Delete)
	case req.Move != nil:
		s.handleMove(req.ID, req.Move)
	case req.Get != nil:
		s.handleGet(req.ID, req.Get)
	case req.List != nil:
		s.handleList(req.ID, req.List)
	case req.Version != nil:
		s.handleVersion(req.ID)
	case req.Watch != nil:
		s.handleWatch(req.ID, req.Watch)
	case req.Unwatch != nil:
		s.handleUnwatch(req.ID, req.Unwatch)
	default:
		s.sendError(req.ID, api.ErrCodeInvalidMessage, "no operation specified")
	}
}

// handleHello handles hello handshake.
func (s *Session) handleHello(id *string, req *api.Hello) {
	s.log.Debug("hello", "clientId", req.ClientID)
	s.send(api.NewHelloResponse(id, s.ID, s.backend, s.store.CurrentVersion().String()))
}

// handleCreate handles create (block insert) requests.
func (s *Session) handleCreate(id *string, req *api.CreateRequest) {
	if len(req.Blocks) == 0 {
		s.sendError(id, api.ErrCodeInvalidMessage, "create needs at least one block")
		return
	}

	blocks, err := s.store.CreateBlocks(req.Blocks)
	if err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	s.send(api.NewCreateResponse(id, blocks, s.store.CurrentVersion().String()))
}

// handleUpdate handles content update requests.
func (s *Session) handleUpdate(id *string, req *api.UpdateRequest) {
	block, err := s.store.UpdateBlock(req.ID, req.Content)
	if err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	s.send(api.NewUpdateResponse(id, block, s.store.CurrentVersion().String()))
}

// handleDelete handles delete requests. Each deletion cascades to the
// block's descendants.
func (s *Session) handleDelete(id *string, req *api.DeleteRequest) {
	if len(req.IDs) == 0 {
		s.sendError(id, api.ErrCodeInvalidMessage, "delete needs at least one id")
		return
	}

	if err := s.store.DeleteBlocks(req.IDs); err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	s.send(api.NewDeleteResponse(id, s.store.CurrentVersion().String()))
}

// handleMove handles move requests.
func (s *Session) handleMove(id *string, req *api.MoveRequest) {
	if err := s.store.MoveBlock(req.ID, req.ParentID, req.At); err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	block, err := s.store.GetBlock(req.ID)
	if err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	s.send(api.NewMoveResponse(id, block, s.store.CurrentVersion().String()))
}

// handleGet handles get requests.
func (s *Session) handleGet(id *string, req *api.GetRequest) {
	if len(req.IDs) == 0 {
		s.sendError(id, api.ErrCodeInvalidMessage, "get needs at least one id")
		return
	}

	blocks, err := s.store.GetBlocks(req.IDs)
	if err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	s.send(api.NewGetResponse(id, blocks))
}

// handleList handles list requests.
func (s *Session) handleList(id *string, req *api.ListRequest) {
	tr := blocktree.TraversalAllButRoot
	if req.Traversal != nil {
		tr = *req.Traversal
	}

	var flt *filter.Filter
	if req.Filter != "" {
		var err error
		flt, err = filter.Compile(req.Filter)
		if err != nil {
			s.sendError(id, api.ErrCodeInvalidFilter, err.Error())
			return
		}
	}

	// Walk from the root so every block's depth is known from its
	// parent's by the time it is reached; the requested traversal then
	// selects what is returned.
	walk := blocktree.Traversal{MinDepth: 0, MaxDepth: tr.MaxDepth}
	depths := make(map[string]int)
	blocks := []*blocktree.Block{}
	var matchErr error
	for b := range s.store.AllBlocks(walk) {
		depth := 0
		if !b.IsRoot() {
			depth = depths[b.ParentID] + 1
		}
		depths[b.ID] = depth
		if !tr.Includes(depth) {
			continue
		}
		if flt != nil {
			ok, err := flt.Match(b, depth)
			if err != nil {
				matchErr = err
				break
			}
			if !ok {
				continue
			}
		}
		blocks = append(blocks, b)
	}
	if matchErr != nil {
		s.sendError(id, api.ErrCodeInvalidFilter, matchErr.Error())
		return
	}

	s.send(api.NewListResponse(id, blocks))
}

// handleVersion handles version requests.
func (s *Session) handleVersion(id *string) {
	s.send(api.NewVersionResponse(id, s.store.CurrentVersion().String()))
}

// handleWatch handles watch requests.
func (s *Session) handleWatch(id *string, req *api.WatchRequest) {
	name := req.Name
	if name == "" {
		s.sendError(id, api.ErrCodeInvalidWatch, "watch name is required")
		return
	}

	// Check if already watching
	s.watchMu.RLock()
	_, exists := s.watches[name]
	s.watchMu.RUnlock()

	if exists {
		s.sendError(id, api.ErrCodeAlreadyWatching, fmt.Sprintf("already watching %q", name))
		return
	}

	var flt *filter.Filter
	if req.Filter != "" {
		var err error
		flt, err = filter.Compile(req.Filter)
		if err != nil {
			s.sendError(id, api.ErrCodeInvalidFilter, err.Error())
			return
		}
	}

	// No since token means watching from the current version: the
	// backlog is empty and the replay complete marker arrives at once.
	since := s.store.CurrentVersion()
	if req.Since != "" {
		var err error
		since, err = blocktree.ParseVersion(req.Since)
		if err != nil {
			s.sendError(id, api.ErrCodeInvalidWatch, fmt.Sprintf("bad since token: %v", err))
			return
		}
	}

	backlog, watcher, err := s.store.WatchChangesSince(since)
	if err != nil {
		s.sendError(id, api.ErrorCodeFor(err), err.Error())
		return
	}

	// Store watcher
	s.watchMu.Lock()
	s.watches[name] = watcher
	s.watchMu.Unlock()

	// Send watch confirmation; it is queued ahead of the backlog.
	s.send(api.NewWatchResponse(id, name))

	// Start event forwarder goroutine
	go s.forwardEvents(name, backlog, watcher, flt)
}

// forwardEvents forwards backlog and live events from a watcher to the
// session's outgoing channel. The store guarantees no gap and no
// duplication between the backlog and the watcher, so the forwarder
// simply sends the backlog, marks replay complete, and then drains the
// watcher until it is closed.
func (s *Session) forwardEvents(name string, backlog []blocktree.BlockChange, watcher *blocktree.Watcher, flt *filter.Filter) {
	if changes := s.filterChanges(backlog, flt); len(changes) > 0 {
		s.send(api.NewChangesEvent(name, 0, changes))
	}
	s.send(api.NewReplayCompleteEvent(name))

	for {
		select {
		case <-s.done:
			return
		case <-watcher.Failed():
			// Watch failed (slow consumer)
			s.log.Warn("watch failed (slow consumer)", "watch", name)
			s.failWatch(name, watcher, api.ErrCodeSessionClosed, fmt.Sprintf("watch %q failed: slow consumer", name))
			return
		case n, ok := <-watcher.Events():
			if !ok {
				return
			}
			changes := s.filterChanges(n.Changes, flt)
			if len(changes) == 0 {
				continue
			}
			s.send(api.NewChangesEvent(name, n.Commit, changes))
		}
	}
}

// filterChanges applies a watch filter to a change batch. Deletions
// always pass: there is no block left to inspect. A filter that fails
// at eval time drops the change and logs.
func (s *Session) filterChanges(changes []blocktree.BlockChange, flt *filter.Filter) []blocktree.BlockChange {
	if flt == nil {
		return changes
	}
	kept := make([]blocktree.BlockChange, 0, len(changes))
	for _, ch := range changes {
		if ch.Kind == blocktree.ChangeDeleted || ch.Data == nil {
			kept = append(kept, ch)
			continue
		}
		// Depth is best effort: the block may have moved or vanished
		// since the change was committed.
		depth := 0
		if chain, err := s.store.AncestorChain(ch.ID); err == nil {
			depth = len(chain)
		}
		ok, err := flt.Match(ch.Data, depth)
		if err != nil {
			s.log.Warn("watch filter failed", "id", ch.ID, "error", err)
			continue
		}
		if ok {
			kept = append(kept, ch)
		}
	}
	return kept
}

// handleUnwatch handles unwatch requests.
func (s *Session) handleUnwatch(id *string, req *api.UnwatchRequest) {
	name := req.Name

	s.watchMu.Lock()
	watcher, exists := s.watches[name]
	if exists {
		delete(s.watches, name)
	}
	s.watchMu.Unlock()

	if !exists {
		s.sendError(id, api.ErrCodeNotWatching, fmt.Sprintf("not watching %q", name))
		return
	}

	// Closing the watcher ends the forwarder; no events are delivered
	// past this point.
	watcher.Close()

	s.send(api.NewUnwatchResponse(id, name))
}

// cleanupWatches removes all watches on session close.
func (s *Session) cleanupWatches() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for name, watcher := range s.watches {
		watcher.Close()
		delete(s.watches, name)
	}
}

// send queues a response for sending.
func (s *Session) send(resp *api.SessionResponse) {
	select {
	case s.outgoing <- resp:
	case <-s.done:
	}
}

// sendError sends an error response.
func (s *Session) sendError(id *string, code, message string) {
	s.send(api.NewErrorResponse(id, code, message))
}

// failWatch terminates a watch, sending an error to the client and
// cleaning up.
func (s *Session) failWatch(name string, watcher *blocktree.Watcher, code, message string) {
	s.send(api.NewErrorResponse(nil, code, message))
	watcher.Close()
	s.watchMu.Lock()
	delete(s.watches, name)
	s.watchMu.Unlock()
}
