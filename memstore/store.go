package memstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/blocktree-io/blocktree"
)

var errClosed = errors.New("store is closed")

// Store is the in-memory reference backend. The zero value is not
// usable; call New.
type Store struct {
	mu       sync.Mutex
	epoch    []byte
	seq      int64
	blocks   map[string]*blocktree.Block
	children map[string][]string
	log      *blocktree.Log
	hub      *blocktree.Hub
	closed   bool
}

var _ blocktree.Store = (*Store)(nil)

// New creates an empty store containing only the root block.
func New() *Store {
	now := time.Now().UnixMilli()
	id := ulid.Make()
	s := &Store{
		epoch:    id.Bytes(),
		blocks:   make(map[string]*blocktree.Block),
		children: make(map[string][]string),
		log:      blocktree.NewLog(),
		hub:      blocktree.NewHub(),
	}
	s.blocks[blocktree.RootID] = &blocktree.Block{
		ID:        blocktree.RootID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s
}

// CreateBlock creates one block; see Store.CreateBlocks for batch
// semantics. Creating an existing id returns the existing block with no
// event and no version bump.
func (s *Store) CreateBlock(id, parentID, content string) (*blocktree.Block, error) {
	out, err := s.CreateBlocks([]blocktree.NewBlock{{ID: id, ParentID: parentID, Content: content}})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// CreateBlocks creates a batch of blocks in argument order as one
// commit. The batch is validated in full before any block is created; a
// later element may name an earlier element as its parent.
func (s *Store) CreateBlocks(blocks []blocktree.NewBlock) ([]*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &blocktree.BackendError{Op: "create", Err: errClosed}
	}

	// Validation pass: no mutation happens unless every element passes.
	pending := make(map[string]bool)
	for _, nb := range blocks {
		if nb.ID != "" && (s.blocks[nb.ID] != nil || pending[nb.ID]) {
			continue // idempotent re-create
		}
		parent := normalizeParent(nb.ParentID)
		if s.blocks[parent] == nil && !pending[parent] {
			return nil, &blocktree.InvalidParentError{ParentID: parent}
		}
		if nb.ID != "" {
			pending[nb.ID] = true
		}
	}

	now := time.Now().UnixMilli()
	out := make([]*blocktree.Block, len(blocks))
	var changes []blocktree.BlockChange
	for i, nb := range blocks {
		if nb.ID != "" && s.blocks[nb.ID] != nil {
			out[i] = s.getLocked(nb.ID)
			continue
		}
		id := nb.ID
		if id == "" {
			id = s.nextIDLocked()
		}
		parent := normalizeParent(nb.ParentID)
		b := &blocktree.Block{
			ID:        id,
			ParentID:  parent,
			Content:   nb.Content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.blocks[id] = b
		s.children[parent] = append(s.children[parent], id)
		changes = append(changes, blocktree.BlockChange{
			Kind:   blocktree.ChangeCreated,
			ID:     id,
			Data:   b.Clone(),
			Origin: blocktree.OriginLocal,
		})
		out[i] = s.getLocked(id)
	}
	s.commitLocked(changes)
	return out, nil
}

// UpdateBlock replaces a block's content.
func (s *Store) UpdateBlock(id, content string) (*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &blocktree.BackendError{Op: "update", Err: errClosed}
	}
	b := s.blocks[id]
	if b == nil || id == blocktree.RootID {
		return nil, &blocktree.NotFoundError{ID: id}
	}
	b.Content = content
	b.UpdatedAt = time.Now().UnixMilli()
	s.commitLocked([]blocktree.BlockChange{{
		Kind:   blocktree.ChangeUpdated,
		ID:     id,
		Data:   b.Clone(),
		Origin: blocktree.OriginLocal,
	}})
	return s.getLocked(id), nil
}

// DeleteBlock deletes a block and all of its descendants.
func (s *Store) DeleteBlock(id string) error {
	return s.DeleteBlocks([]string{id})
}

// DeleteBlocks deletes a batch of subtrees as one commit. Every named id
// must exist when the call starts; ids consumed by an earlier cascade in
// the same batch are skipped.
func (s *Store) DeleteBlocks(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &blocktree.BackendError{Op: "delete", Err: errClosed}
	}
	for _, id := range ids {
		if s.blocks[id] == nil || id == blocktree.RootID {
			return &blocktree.NotFoundError{ID: id}
		}
	}

	var changes []blocktree.BlockChange
	for _, id := range ids {
		b := s.blocks[id]
		if b == nil {
			continue // removed by an earlier cascade
		}
		s.removeChildLocked(b.ParentID, id)
		for _, did := range s.preorderLocked(id) {
			delete(s.blocks, did)
			delete(s.children, did)
			changes = append(changes, blocktree.BlockChange{
				Kind:   blocktree.ChangeDeleted,
				ID:     did,
				Origin: blocktree.OriginLocal,
			})
		}
	}
	s.commitLocked(changes)
	return nil
}

// MoveBlock moves a block under a new parent at the given position.
func (s *Store) MoveBlock(id, newParentID string, at int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &blocktree.BackendError{Op: "move", Err: errClosed}
	}
	b := s.blocks[id]
	if b == nil || id == blocktree.RootID {
		return &blocktree.NotFoundError{ID: id}
	}
	parent := normalizeParent(newParentID)
	if s.blocks[parent] == nil {
		return &blocktree.NotFoundError{ID: parent}
	}
	if s.wouldCycleLocked(id, parent) {
		return &blocktree.CycleError{ID: id, NewParentID: parent}
	}

	s.removeChildLocked(b.ParentID, id)
	order := s.children[parent]
	if at < 0 || at > len(order) {
		at = len(order)
	}
	order = append(order, "")
	copy(order[at+1:], order[at:])
	order[at] = id
	s.children[parent] = order

	b.ParentID = parent
	b.UpdatedAt = time.Now().UnixMilli()
	s.commitLocked([]blocktree.BlockChange{{
		Kind:   blocktree.ChangeUpdated,
		ID:     id,
		Data:   b.Clone(),
		Origin: blocktree.OriginLocal,
	}})
	return nil
}

// GetBlock returns one block with Children populated.
func (s *Store) GetBlock(id string) (*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks[id] == nil {
		return nil, &blocktree.NotFoundError{ID: id}
	}
	return s.getLocked(id), nil
}

// GetBlocks returns the named blocks in argument order.
func (s *Store) GetBlocks(ids []string) ([]*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*blocktree.Block, len(ids))
	for i, id := range ids {
		if s.blocks[id] == nil {
			return nil, &blocktree.NotFoundError{ID: id}
		}
		out[i] = s.getLocked(id)
	}
	return out, nil
}

// ListChildren returns a block's children in sibling order.
func (s *Store) ListChildren(parentID string) ([]*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := normalizeParent(parentID)
	if s.blocks[parent] == nil {
		return nil, &blocktree.NotFoundError{ID: parent}
	}
	order := s.children[parent]
	out := make([]*blocktree.Block, len(order))
	for i, id := range order {
		out[i] = s.getLocked(id)
	}
	return out, nil
}

// AncestorChain returns parent ids from the block's parent up to and
// including the root.
func (s *Store) AncestorChain(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blocks[id]
	if b == nil {
		return nil, &blocktree.NotFoundError{ID: id}
	}
	var chain []string
	for b.ParentID != "" {
		chain = append(chain, b.ParentID)
		b = s.blocks[b.ParentID]
	}
	return chain, nil
}

// AllBlocks yields blocks in pre-order, filtered by the traversal. The
// sequence is a snapshot of the tree at the time of the call.
func (s *Store) AllBlocks(tr blocktree.Traversal) iter.Seq[*blocktree.Block] {
	return func(yield func(*blocktree.Block) bool) {
		for _, b := range s.snapshotBlocks(tr) {
			if !yield(b) {
				return
			}
		}
	}
}

// CurrentVersion returns the token for the store's latest commit.
func (s *Store) CurrentVersion() blocktree.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionLocked()
}

// WatchChangesSince returns the backlog of changes after since and a
// live watcher for subsequent commits. The backlog snapshot and the
// watcher registration happen atomically with respect to writers.
func (s *Store) WatchChangesSince(since blocktree.Version) ([]blocktree.BlockChange, *blocktree.Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, &blocktree.BackendError{Op: "watch", Err: errClosed}
	}

	var backlog []blocktree.BlockChange
	if since.IsZero() {
		// From the beginning: the current tree as created events.
		for _, id := range s.preorderLocked(blocktree.RootID) {
			if id == blocktree.RootID {
				continue
			}
			backlog = append(backlog, blocktree.BlockChange{
				Kind:   blocktree.ChangeCreated,
				ID:     id,
				Data:   s.blocks[id].Clone(),
				Origin: blocktree.OriginRemote,
			})
		}
	} else {
		commit, err := s.decodeVersionLocked(since)
		if err != nil {
			return nil, nil, err
		}
		for _, ch := range s.log.Since(commit) {
			ch.Data = ch.Data.Clone()
			backlog = append(backlog, ch)
		}
	}

	w := blocktree.NewWatcher(s.log.LastCommit(), 0)
	s.hub.Watch(w)
	return backlog, w, nil
}

// Close fails all live watchers and rejects further mutations. Reads
// against the final state remain usable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.CloseAll()
	return nil
}

// Clone returns a deep copy of the store sharing no mutable state with
// the original. Watcher registrations are not cloned: the copy starts
// with an empty hub.
func (s *Store) Clone() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Store{
		epoch:    bytes.Clone(s.epoch),
		seq:      s.seq,
		blocks:   make(map[string]*blocktree.Block, len(s.blocks)),
		children: make(map[string][]string, len(s.children)),
		log:      s.log.Clone(),
		hub:      blocktree.NewHub(),
		closed:   s.closed,
	}
	for id, b := range s.blocks {
		c.blocks[id] = b.Clone()
	}
	for id, order := range s.children {
		c.children[id] = append([]string(nil), order...)
	}
	return c
}

func normalizeParent(parentID string) string {
	if parentID == "" {
		return blocktree.RootID
	}
	return parentID
}

// commitLocked appends one entry to the log and broadcasts it. A batch
// with no changes commits nothing.
func (s *Store) commitLocked(changes []blocktree.BlockChange) {
	if len(changes) == 0 {
		return
	}
	commit := s.log.Append(changes)
	s.hub.Broadcast(&blocktree.Notification{Commit: commit, Changes: changes})
}

// getLocked returns a clone of an existing block with Children
// populated.
func (s *Store) getLocked(id string) *blocktree.Block {
	b := s.blocks[id].Clone()
	if order := s.children[id]; len(order) > 0 {
		b.Children = append([]string(nil), order...)
	}
	return b
}

func (s *Store) nextIDLocked() string {
	for {
		s.seq++
		id := fmt.Sprintf("local://%d", s.seq)
		if s.blocks[id] == nil {
			return id
		}
	}
}

func (s *Store) removeChildLocked(parentID, id string) {
	order := s.children[parentID]
	for i, cid := range order {
		if cid == id {
			s.children[parentID] = append(order[:i], order[i+1:]...)
			return
		}
	}
}

// preorderLocked returns ids of the subtree rooted at id, pre-order,
// including id itself.
func (s *Store) preorderLocked(id string) []string {
	out := []string{id}
	for _, cid := range s.children[id] {
		out = append(out, s.preorderLocked(cid)...)
	}
	return out
}

// wouldCycleLocked reports whether parenting id under newParentID would
// make id its own ancestor.
func (s *Store) wouldCycleLocked(id, newParentID string) bool {
	for cur := newParentID; cur != ""; {
		if cur == id {
			return true
		}
		b := s.blocks[cur]
		if b == nil {
			return false
		}
		cur = b.ParentID
	}
	return false
}

func (s *Store) snapshotBlocks(tr blocktree.Traversal) []*blocktree.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*blocktree.Block
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if depth > tr.MaxDepth {
			return
		}
		if tr.Includes(depth) {
			out = append(out, s.getLocked(id))
		}
		for _, cid := range s.children[id] {
			walk(cid, depth+1)
		}
	}
	walk(blocktree.RootID, 0)
	return out
}

func (s *Store) versionLocked() blocktree.Version {
	v := make([]byte, len(s.epoch)+8)
	copy(v, s.epoch)
	binary.BigEndian.PutUint64(v[len(s.epoch):], uint64(s.log.LastCommit()))
	return v
}

func (s *Store) decodeVersionLocked(v blocktree.Version) (int64, error) {
	if len(v) != len(s.epoch)+8 || !bytes.Equal(v[:len(s.epoch)], s.epoch) {
		return 0, &blocktree.BackendError{Op: "decode version", Err: errors.New("token was not issued by this store")}
	}
	commit := int64(binary.BigEndian.Uint64(v[len(s.epoch):]))
	if !s.log.Contains(commit) {
		return 0, &blocktree.BackendError{Op: "decode version", Err: fmt.Errorf("commit %d out of log range", commit)}
	}
	return commit, nil
}
