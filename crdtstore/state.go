package crdtstore

import (
	"sort"

	"github.com/blocktree-io/blocktree"
)

// pendingElem is an order element waiting for its anchor.
type pendingElem struct {
	parent string
	elem   element
}

// state is the merged CRDT state of one replica. Ops apply in per-actor
// seq order (the store enforces that); cross-actor dependencies that
// have not arrived yet are buffered here and flushed when they do.
type state struct {
	blocks map[string]*record
	lists  map[string]*seqList

	// elemParent locates the list an element lives in, for tombstones.
	elemParent map[OpID]string

	waitingBlock  map[string][]op          // block id -> ops awaiting its record
	waitingAnchor map[OpID][]pendingElem   // anchor -> elements awaiting it
	waitingRemove map[OpID]bool            // tombstones for unseen elements
}

func newState() *state {
	return &state{
		blocks:        make(map[string]*record),
		lists:         make(map[string]*seqList),
		elemParent:    make(map[OpID]string),
		waitingBlock:  make(map[string][]op),
		waitingAnchor: make(map[OpID][]pendingElem),
		waitingRemove: make(map[OpID]bool),
	}
}

func (s *state) list(parent string) *seqList {
	l := s.lists[parent]
	if l == nil {
		l = newSeqList()
		s.lists[parent] = l
	}
	return l
}

// apply folds one op into the state. Application is idempotent and
// order-tolerant: ops referencing unseen blocks, anchors, or elements
// are buffered and flushed when the dependency arrives.
func (s *state) apply(o op) {
	switch o.Kind {
	case opCreate:
		rec := s.blocks[o.BlockID]
		if rec == nil {
			rec = &record{}
			s.blocks[o.BlockID] = rec
		}
		rec.parent.write(o.Parent, o.ID)
		rec.content.write(o.Content, o.ID)
		rec.deleted.write(false, o.ID)
		rec.noteCreate(o.ID, o.At)
		rec.touch(o.At)
		s.insertElem(o.Parent, element{id: o.ID, after: o.After, blockID: o.BlockID})
		s.flushBlock(o.BlockID)

	case opUpdate:
		rec := s.blocks[o.BlockID]
		if rec == nil {
			s.waitingBlock[o.BlockID] = append(s.waitingBlock[o.BlockID], o)
			return
		}
		rec.content.write(o.Content, o.ID)
		rec.touch(o.At)

	case opMove:
		rec := s.blocks[o.BlockID]
		if rec == nil {
			s.waitingBlock[o.BlockID] = append(s.waitingBlock[o.BlockID], o)
			return
		}
		rec.parent.write(o.Parent, o.ID)
		rec.touch(o.At)
		for _, rid := range o.Removed {
			s.removeElem(rid)
		}
		s.insertElem(o.Parent, element{id: o.ID, after: o.After, blockID: o.BlockID})

	case opDelete:
		rec := s.blocks[o.BlockID]
		if rec == nil {
			s.waitingBlock[o.BlockID] = append(s.waitingBlock[o.BlockID], o)
			return
		}
		rec.deleted.write(true, o.ID)
		rec.touch(o.At)
	}
}

// insertElem adds an order element to parent's list, buffering on a
// missing anchor, then flushes anything that was waiting on it.
func (s *state) insertElem(parent string, e element) {
	if !s.list(parent).insert(e) {
		s.waitingAnchor[e.after] = append(s.waitingAnchor[e.after], pendingElem{parent: parent, elem: e})
		return
	}
	s.elemParent[e.id] = parent
	if s.waitingRemove[e.id] {
		delete(s.waitingRemove, e.id)
		s.list(parent).tombstone(e.id)
	}
	// Flush elements anchored on the one that just landed.
	queue := s.waitingAnchor[e.id]
	if len(queue) > 0 {
		delete(s.waitingAnchor, e.id)
		for _, p := range queue {
			s.insertElem(p.parent, p.elem)
		}
	}
}

// removeElem tombstones an element wherever it lives, buffering if it
// has not arrived yet.
func (s *state) removeElem(id OpID) {
	parent, ok := s.elemParent[id]
	if !ok {
		s.waitingRemove[id] = true
		return
	}
	s.lists[parent].tombstone(id)
}

// flushBlock re-applies ops that were waiting for a block record.
func (s *state) flushBlock(blockID string) {
	queue := s.waitingBlock[blockID]
	if len(queue) == 0 {
		return
	}
	delete(s.waitingBlock, blockID)
	for _, o := range queue {
		s.apply(o)
	}
}

// view is the effective tree read out of the merged state: orphans
// adopted by the root, cycles re-rooted, stale order elements filtered.
type view struct {
	parent   map[string]string   // alive block id -> effective parent
	children map[string][]string // parent id (incl. root) -> ordered children
	elem     map[string]OpID     // alive positioned block id -> winning element
}

// buildView resolves the merged state into a forest. The result is a
// pure function of the state, so converged replicas render identical
// trees.
func (s *state) buildView() *view {
	alive := make(map[string]bool, len(s.blocks))
	for id, rec := range s.blocks {
		if rec.alive() {
			alive[id] = true
		}
	}

	// Effective parent: the register value if it resolves to the root
	// or a live block, else the root (orphan adoption).
	parent := make(map[string]string, len(alive))
	for id := range alive {
		p := s.blocks[id].parent.Value
		if p == "" {
			p = blocktree.RootID
		}
		if p != blocktree.RootID && !alive[p] {
			p = blocktree.RootID
		}
		parent[id] = p
	}

	// Concurrent cross-replica moves can weave a cycle, leaving its
	// members unreachable from the root. Re-root the smallest
	// unreachable id and repeat until the forest invariant holds.
	for {
		unreachable := unreachableFromRoot(alive, parent)
		if len(unreachable) == 0 {
			break
		}
		sort.Strings(unreachable)
		parent[unreachable[0]] = blocktree.RootID
	}

	children := make(map[string][]string)
	elemFor := make(map[string]OpID)
	positioned := make(map[string]bool)
	for p, l := range s.lists {
		if p != blocktree.RootID && !alive[p] {
			continue
		}
		// A block moved back and forth can own several live elements in
		// one list; the newest one holds its position.
		winner := make(map[string]OpID)
		for _, eid := range l.walk() {
			e := l.elems[eid]
			if e.removed || !alive[e.blockID] || parent[e.blockID] != p {
				continue
			}
			if w, ok := winner[e.blockID]; !ok || w.Less(eid) {
				winner[e.blockID] = eid
			}
		}
		for _, eid := range l.walk() {
			e := l.elems[eid]
			if w, ok := winner[e.blockID]; ok && w == eid {
				children[p] = append(children[p], e.blockID)
				elemFor[e.blockID] = eid
				positioned[e.blockID] = true
			}
		}
	}

	// Blocks without a visible element (adopted orphans, or positions
	// whose anchor has not arrived) sort after the positioned children,
	// by id.
	loose := make(map[string][]string)
	for id := range alive {
		if !positioned[id] {
			p := parent[id]
			loose[p] = append(loose[p], id)
		}
	}
	for p, ids := range loose {
		sort.Strings(ids)
		children[p] = append(children[p], ids...)
	}

	return &view{parent: parent, children: children, elem: elemFor}
}

// unreachableFromRoot returns the alive ids whose effective-parent chain
// never reaches the root.
func unreachableFromRoot(alive map[string]bool, parent map[string]string) []string {
	var out []string
	for id := range alive {
		seen := map[string]bool{}
		cur := id
		for cur != blocktree.RootID && !seen[cur] {
			seen[cur] = true
			cur = parent[cur]
		}
		if cur != blocktree.RootID {
			out = append(out, id)
		}
	}
	return out
}

// preorder returns block ids depth-first from the root, root excluded.
func (v *view) preorder() []string {
	var out []string
	var walk func(string)
	walk = func(id string) {
		for _, c := range v.children[id] {
			out = append(out, c)
			walk(c)
		}
	}
	walk(blocktree.RootID)
	return out
}
