package crdtstore

import (
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/blocktree-io/blocktree"
)

var errClosed = errors.New("store is closed")

// Option configures a store at construction time.
type Option func(*options)

type options struct {
	actor  string
	logger *slog.Logger
}

// WithActor pins the replica's actor id; the default is a fresh ULID.
// Open ignores it and uses the actor recorded in the database.
func WithActor(actor string) Option {
	return func(o *options) { o.actor = actor }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.actor == "" {
		o.actor = ulid.Make().String()
	}
	return o
}

// Store is one CRDT replica of a block tree. It implements
// blocktree.Store and additionally exchanges update blobs with peer
// replicas (ExportUpdates/ApplyUpdates/Merge).
type Store struct {
	mu     sync.Mutex
	logger *slog.Logger

	actor    string
	lamport  uint64
	epoch    []byte
	openedAt int64

	st     *state
	vw     *view
	viewOK bool

	// updates holds every applied blob: updates[actor][i] is seq i+1.
	// pending buffers out-of-order arrivals until their predecessors.
	updates map[string][][]byte
	pending map[string]map[uint64][]byte

	log *blocktree.Log
	hub *blocktree.Hub

	db     db
	closed bool
}

var _ blocktree.Store = (*Store)(nil)

// New creates an in-memory replica with no persistence.
func New(opts ...Option) *Store {
	return newStore(buildOptions(opts), nil)
}

func newStore(o options, d db) *Store {
	return &Store{
		logger:   o.logger,
		actor:    o.actor,
		epoch:    ulid.Make().Bytes(),
		openedAt: time.Now().UnixMilli(),
		st:       newState(),
		updates:  make(map[string][][]byte),
		pending:  make(map[string]map[uint64][]byte),
		log:      blocktree.NewLog(),
		hub:      blocktree.NewHub(),
		db:       d,
	}
}

// Actor returns the replica's actor id.
func (s *Store) Actor() string {
	return s.actor
}

// CreateBlock creates one block; creating an existing id returns the
// existing block with no event and no version bump.
func (s *Store) CreateBlock(id, parentID, content string) (*blocktree.Block, error) {
	out, err := s.CreateBlocks([]blocktree.NewBlock{{ID: id, ParentID: parentID, Content: content}})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// CreateBlocks creates a batch in argument order as one update and one
// commit. The batch is validated in full before any op is minted.
func (s *Store) CreateBlocks(blocks []blocktree.NewBlock) ([]*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &blocktree.BackendError{Op: "create", Err: errClosed}
	}

	pending := make(map[string]bool)
	for _, nb := range blocks {
		if nb.ID != "" && (s.aliveLocked(nb.ID) || pending[nb.ID]) {
			continue // idempotent re-create
		}
		parent := normalizeParent(nb.ParentID)
		if parent != blocktree.RootID && !s.aliveLocked(parent) && !pending[parent] {
			return nil, &blocktree.InvalidParentError{ParentID: parent}
		}
		if nb.ID != "" {
			pending[nb.ID] = true
		}
	}

	now := time.Now().UnixMilli()
	v := s.viewLocked()
	lastAnchor := make(map[string]OpID)
	seeded := make(map[string]bool)
	minted := make(map[string]bool)
	ids := make([]string, len(blocks))
	var ops []op
	for i, nb := range blocks {
		if nb.ID != "" && (s.aliveLocked(nb.ID) || minted[nb.ID]) {
			ids[i] = nb.ID
			continue
		}
		id := nb.ID
		if id == "" {
			id = "local://" + uuid.NewString()
		}
		parent := normalizeParent(nb.ParentID)
		if !seeded[parent] {
			lastAnchor[parent] = anchorFor(v, v.children[parent], len(v.children[parent]))
			seeded[parent] = true
		}
		oid := s.nextOpIDLocked()
		ops = append(ops, op{
			Kind:    opCreate,
			ID:      oid,
			BlockID: id,
			Parent:  parent,
			After:   lastAnchor[parent],
			Content: nb.Content,
			At:      now,
		})
		lastAnchor[parent] = oid
		minted[id] = true
		ids[i] = id
	}

	if len(ops) > 0 {
		if err := s.commitUpdateLocked(ops); err != nil {
			return nil, &blocktree.BackendError{Op: "create", Err: err}
		}
		changes := make([]blocktree.BlockChange, len(ops))
		for i, o := range ops {
			changes[i] = blocktree.BlockChange{
				Kind:   blocktree.ChangeCreated,
				ID:     o.BlockID,
				Data:   s.eventBlockLocked(o.BlockID),
				Origin: blocktree.OriginLocal,
			}
		}
		s.commitLocked(changes)
	}

	out := make([]*blocktree.Block, len(blocks))
	for i := range blocks {
		out[i] = s.getLocked(ids[i])
	}
	return out, nil
}

// UpdateBlock replaces a block's content.
func (s *Store) UpdateBlock(id, content string) (*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &blocktree.BackendError{Op: "update", Err: errClosed}
	}
	if id == blocktree.RootID || !s.aliveLocked(id) {
		return nil, &blocktree.NotFoundError{ID: id}
	}

	ops := []op{{
		Kind:    opUpdate,
		ID:      s.nextOpIDLocked(),
		BlockID: id,
		Content: content,
		At:      time.Now().UnixMilli(),
	}}
	if err := s.commitUpdateLocked(ops); err != nil {
		return nil, &blocktree.BackendError{Op: "update", Err: err}
	}
	s.commitLocked([]blocktree.BlockChange{{
		Kind:   blocktree.ChangeUpdated,
		ID:     id,
		Data:   s.eventBlockLocked(id),
		Origin: blocktree.OriginLocal,
	}})
	return s.getLocked(id), nil
}

// DeleteBlock deletes a block and all of its descendants.
func (s *Store) DeleteBlock(id string) error {
	return s.DeleteBlocks([]string{id})
}

// DeleteBlocks deletes a batch of subtrees as one update and one
// commit. Every named id must exist when the call starts; ids consumed
// by an earlier cascade in the same batch are skipped.
func (s *Store) DeleteBlocks(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &blocktree.BackendError{Op: "delete", Err: errClosed}
	}
	for _, id := range ids {
		if id == blocktree.RootID || !s.aliveLocked(id) {
			return &blocktree.NotFoundError{ID: id}
		}
	}

	now := time.Now().UnixMilli()
	v := s.viewLocked()
	gone := make(map[string]bool)
	var ops []op
	for _, id := range ids {
		if gone[id] {
			continue
		}
		for _, did := range subtreePreorder(v, id) {
			if gone[did] {
				continue
			}
			gone[did] = true
			ops = append(ops, op{
				Kind:    opDelete,
				ID:      s.nextOpIDLocked(),
				BlockID: did,
				At:      now,
			})
		}
	}
	if err := s.commitUpdateLocked(ops); err != nil {
		return &blocktree.BackendError{Op: "delete", Err: err}
	}
	changes := make([]blocktree.BlockChange, len(ops))
	for i, o := range ops {
		changes[i] = blocktree.BlockChange{
			Kind:   blocktree.ChangeDeleted,
			ID:     o.BlockID,
			Origin: blocktree.OriginLocal,
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
	if id == blocktree.RootID || !s.aliveLocked(id) {
		return &blocktree.NotFoundError{ID: id}
	}
	parent := normalizeParent(newParentID)
	if parent != blocktree.RootID && !s.aliveLocked(parent) {
		return &blocktree.NotFoundError{ID: parent}
	}
	v := s.viewLocked()
	for cur := parent; cur != blocktree.RootID; cur = v.parent[cur] {
		if cur == id {
			return &blocktree.CycleError{ID: id, NewParentID: parent}
		}
	}

	// Position among the new parent's children with the moved block
	// taken out.
	sibs := make([]string, 0, len(v.children[parent]))
	for _, c := range v.children[parent] {
		if c != id {
			sibs = append(sibs, c)
		}
	}
	if at < 0 || at > len(sibs) {
		at = len(sibs)
	}

	var removed []OpID
	if eid, ok := v.elem[id]; ok {
		removed = []OpID{eid}
	}
	ops := []op{{
		Kind:    opMove,
		ID:      s.nextOpIDLocked(),
		BlockID: id,
		Parent:  parent,
		After:   anchorFor(v, sibs, at),
		Removed: removed,
		At:      time.Now().UnixMilli(),
	}}
	if err := s.commitUpdateLocked(ops); err != nil {
		return &blocktree.BackendError{Op: "move", Err: err}
	}
	s.commitLocked([]blocktree.BlockChange{{
		Kind:   blocktree.ChangeUpdated,
		ID:     id,
		Data:   s.eventBlockLocked(id),
		Origin: blocktree.OriginLocal,
	}})
	return nil
}

// GetBlock returns one block with Children populated.
func (s *Store) GetBlock(id string) (*blocktree.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != blocktree.RootID && !s.aliveLocked(id) {
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
		if id != blocktree.RootID && !s.aliveLocked(id) {
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
	if parent != blocktree.RootID && !s.aliveLocked(parent) {
		return nil, &blocktree.NotFoundError{ID: parent}
	}
	v := s.viewLocked()
	order := v.children[parent]
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
	if id == blocktree.RootID {
		return nil, nil
	}
	if !s.aliveLocked(id) {
		return nil, &blocktree.NotFoundError{ID: id}
	}
	v := s.viewLocked()
	var chain []string
	for cur := v.parent[id]; ; cur = v.parent[cur] {
		chain = append(chain, cur)
		if cur == blocktree.RootID {
			return chain, nil
		}
	}
}

// AllBlocks yields blocks in pre-order, filtered by the traversal. The
// sequence is a snapshot of the merged view at the time of the call.
func (s *Store) AllBlocks(tr blocktree.Traversal) iter.Seq[*blocktree.Block] {
	return func(yield func(*blocktree.Block) bool) {
		for _, b := range s.snapshotBlocks(tr) {
			if !yield(b) {
				return
			}
		}
	}
}

// Close fails all live watchers, closes the database if the store is
// persistent, and rejects further mutations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.CloseAll()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return &blocktree.BackendError{Op: "close", Err: err}
		}
	}
	return nil
}

func normalizeParent(parentID string) string {
	if parentID == "" {
		return blocktree.RootID
	}
	return parentID
}

func (s *Store) aliveLocked(id string) bool {
	rec := s.st.blocks[id]
	return rec != nil && rec.alive()
}

func (s *Store) viewLocked() *view {
	if !s.viewOK {
		s.vw = s.st.buildView()
		s.viewOK = true
	}
	return s.vw
}

func (s *Store) nextOpIDLocked() OpID {
	s.lamport++
	return OpID{Lamport: s.lamport, Actor: s.actor}
}

// commitUpdateLocked seals ops into the next own update, persists the
// blob, and applies it. On a persistence failure nothing is applied.
func (s *Store) commitUpdateLocked(ops []op) error {
	if len(ops) == 0 {
		return nil
	}
	seq := uint64(len(s.updates[s.actor])) + 1
	u := &update{Actor: s.actor, Seq: seq, Ops: ops}
	blob, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	if err := s.persistBlobLocked(u.Actor, u.Seq, blob); err != nil {
		return err
	}
	for _, o := range ops {
		s.st.apply(o)
	}
	s.updates[s.actor] = append(s.updates[s.actor], blob)
	s.viewOK = false
	return nil
}

func (s *Store) commitLocked(changes []blocktree.BlockChange) {
	if len(changes) == 0 {
		return
	}
	commit := s.log.Append(changes)
	s.hub.Broadcast(&blocktree.Notification{Commit: commit, Changes: changes})
}

// getLocked returns a snapshot of an alive block (or the root) with
// Children populated.
func (s *Store) getLocked(id string) *blocktree.Block {
	v := s.viewLocked()
	var b *blocktree.Block
	if id == blocktree.RootID {
		b = &blocktree.Block{ID: blocktree.RootID, CreatedAt: s.openedAt, UpdatedAt: s.openedAt}
	} else {
		rec := s.st.blocks[id]
		b = &blocktree.Block{
			ID:        id,
			ParentID:  v.parent[id],
			Content:   rec.content.Value,
			CreatedAt: rec.createdAt,
			UpdatedAt: rec.updatedAt,
		}
	}
	if order := v.children[id]; len(order) > 0 {
		b.Children = append([]string(nil), order...)
	}
	return b
}

// eventBlockLocked is getLocked without Children, the shape carried in
// change events.
func (s *Store) eventBlockLocked(id string) *blocktree.Block {
	v := s.viewLocked()
	rec := s.st.blocks[id]
	return &blocktree.Block{
		ID:        id,
		ParentID:  v.parent[id],
		Content:   rec.content.Value,
		CreatedAt: rec.createdAt,
		UpdatedAt: rec.updatedAt,
	}
}

func (s *Store) snapshotBlocks(tr blocktree.Traversal) []*blocktree.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewLocked()
	var out []*blocktree.Block
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if depth > tr.MaxDepth {
			return
		}
		if tr.Includes(depth) {
			out = append(out, s.getLocked(id))
		}
		for _, c := range v.children[id] {
			walk(c, depth+1)
		}
	}
	walk(blocktree.RootID, 0)
	return out
}

// anchorFor returns the element to insert after so the new element
// renders at index at of children: the winning element of the nearest
// positioned child before at, or the head when there is none.
func anchorFor(v *view, children []string, at int) OpID {
	if at > len(children) {
		at = len(children)
	}
	for i := at - 1; i >= 0; i-- {
		if eid, ok := v.elem[children[i]]; ok {
			return eid
		}
	}
	return OpID{}
}

// subtreePreorder returns id and its descendants depth-first.
func subtreePreorder(v *view, id string) []string {
	out := []string{id}
	for _, c := range v.children[id] {
		out = append(out, subtreePreorder(v, c)...)
	}
	return out
}
