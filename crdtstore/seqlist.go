package crdtstore

import "sort"

// element is one entry in a parent's order list. Elements are never
// removed, only tombstoned; filtering happens at read time.
type element struct {
	id      OpID
	after   OpID // anchor element; zero = list head
	blockID string
	removed bool
}

// seqList is the replicated sequence of one parent's children: an RGA
// whose elements anchor after one another. Same-anchor siblings order
// newest first, so a run of local inserts at one index lands where the
// caller asked, and concurrent inserts at the same anchor interleave
// deterministically.
type seqList struct {
	elems map[OpID]*element
	kids  map[OpID][]OpID // anchor -> same-anchor elements, descending

	order []OpID
	dirty bool
}

func newSeqList() *seqList {
	return &seqList{
		elems: make(map[OpID]*element),
		kids:  make(map[OpID][]OpID),
	}
}

// insert places e in the list. It reports false when the anchor is not
// known yet; the caller buffers the element until the anchor arrives.
// Re-inserting a known element id is a no-op.
func (l *seqList) insert(e element) bool {
	if _, dup := l.elems[e.id]; dup {
		return true
	}
	if !e.after.IsZero() {
		if _, known := l.elems[e.after]; !known {
			return false
		}
	}
	el := e
	l.elems[e.id] = &el

	sibs := l.kids[e.after]
	pos := sort.Search(len(sibs), func(i int) bool { return sibs[i].Less(e.id) })
	sibs = append(sibs, OpID{})
	copy(sibs[pos+1:], sibs[pos:])
	sibs[pos] = e.id
	l.kids[e.after] = sibs

	l.dirty = true
	return true
}

// tombstone marks an element removed. It reports false when the element
// is not known yet.
func (l *seqList) tombstone(id OpID) bool {
	e, ok := l.elems[id]
	if !ok {
		return false
	}
	e.removed = true
	return true
}

// walk returns every element id in list order, tombstones included. The
// order is a depth-first expansion of the anchor tree, rebuilt lazily.
func (l *seqList) walk() []OpID {
	if l.dirty || l.order == nil {
		out := make([]OpID, 0, len(l.elems))
		var dfs func(OpID)
		dfs = func(anchor OpID) {
			for _, id := range l.kids[anchor] {
				out = append(out, id)
				dfs(id)
			}
		}
		dfs(OpID{})
		l.order = out
		l.dirty = false
	}
	return l.order
}
