// Package storetest checks that every backend behaves like the
// reference backend.
//
// A Harness replays one operation sequence against a memstore reference
// and a system under test, translating backend-generated ids between
// the two id spaces, and fails on the first observable difference:
// diverging tree renders, diverging error kinds, or diverging watcher
// deliveries. Step draws weighted random operations for property runs
// (pgregory.net/rapid); the named scenario tests drive the same harness
// deterministically.
package storetest

import (
	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/memstore"
)

// TB is the failure surface the harness reports to. Both *testing.T and
// *rapid.T satisfy it.
type TB interface {
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Harness drives a reference store and a system under test through the
// same operations. Ids generated by the backends differ, so every id
// crossing the boundary goes through a translation map; explicit ids
// and the root id pass through unchanged.
type Harness struct {
	t        TB
	ref      *memstore.Store
	sut      blocktree.Store
	toSut    map[string]string
	toRef    map[string]string
	watchers []*watcherPair
	step     int
}

type watcherPair struct {
	name string
	ref  *blocktree.Watcher
	sut  *blocktree.Watcher
}

// NewHarness pairs a fresh reference store with the given system under
// test. Close releases both.
func NewHarness(t TB, sut blocktree.Store) *Harness {
	return &Harness{
		t:     t,
		ref:   memstore.New(),
		sut:   sut,
		toSut: make(map[string]string),
		toRef: make(map[string]string),
	}
}

// Close closes every watcher pair, the reference, and the system under
// test.
func (h *Harness) Close() {
	for _, wp := range h.watchers {
		wp.ref.Close()
		wp.sut.Close()
	}
	h.watchers = nil
	h.ref.Close()
	h.sut.Close()
}

func (h *Harness) sutID(refID string) string {
	if id, ok := h.toSut[refID]; ok {
		return id
	}
	return refID
}

func (h *Harness) refIDOf(sutID string) string {
	if id, ok := h.toRef[sutID]; ok {
		return id
	}
	return sutID
}

// CreateBlock applies the create to both stores. A generated id pair is
// recorded in the translation maps.
func (h *Harness) CreateBlock(id, parentID, content string) {
	rb, refErr := h.ref.CreateBlock(id, parentID, content)
	sb, sutErr := h.sut.CreateBlock(h.sutID(id), h.sutID(parentID), content)
	h.checkErrs("CreateBlock", refErr, sutErr)
	if refErr == nil {
		if id == "" {
			h.toSut[rb.ID] = sb.ID
			h.toRef[sb.ID] = rb.ID
		}
		h.checkBlockPair("CreateBlock", rb, sb)
	}
	h.verify("CreateBlock")
}

// CreateBlocks applies one batch create to both stores.
func (h *Harness) CreateBlocks(batch []blocktree.NewBlock) {
	sutBatch := make([]blocktree.NewBlock, len(batch))
	for i, nb := range batch {
		sutBatch[i] = blocktree.NewBlock{
			ID:       h.sutID(nb.ID),
			ParentID: h.sutID(nb.ParentID),
			Content:  nb.Content,
		}
	}
	refOut, refErr := h.ref.CreateBlocks(batch)
	sutOut, sutErr := h.sut.CreateBlocks(sutBatch)
	h.checkErrs("CreateBlocks", refErr, sutErr)
	if refErr == nil {
		if len(refOut) != len(sutOut) {
			h.t.Fatalf("CreateBlocks: reference returned %d blocks, sut %d", len(refOut), len(sutOut))
			return
		}
		for i, rb := range refOut {
			if batch[i].ID == "" {
				h.toSut[rb.ID] = sutOut[i].ID
				h.toRef[sutOut[i].ID] = rb.ID
			}
			h.checkBlockPair("CreateBlocks", rb, sutOut[i])
		}
	}
	h.verify("CreateBlocks")
}

// UpdateBlock applies the update to both stores.
func (h *Harness) UpdateBlock(id, content string) {
	rb, refErr := h.ref.UpdateBlock(id, content)
	sb, sutErr := h.sut.UpdateBlock(h.sutID(id), content)
	h.checkErrs("UpdateBlock", refErr, sutErr)
	if refErr == nil {
		h.checkBlockPair("UpdateBlock", rb, sb)
	}
	h.verify("UpdateBlock")
}

// DeleteBlock applies the delete to both stores.
func (h *Harness) DeleteBlock(id string) {
	refErr := h.ref.DeleteBlock(id)
	sutErr := h.sut.DeleteBlock(h.sutID(id))
	h.checkErrs("DeleteBlock", refErr, sutErr)
	h.verify("DeleteBlock")
}

// DeleteBlocks applies one batch delete to both stores.
func (h *Harness) DeleteBlocks(ids []string) {
	sutIDs := make([]string, len(ids))
	for i, id := range ids {
		sutIDs[i] = h.sutID(id)
	}
	refErr := h.ref.DeleteBlocks(ids)
	sutErr := h.sut.DeleteBlocks(sutIDs)
	h.checkErrs("DeleteBlocks", refErr, sutErr)
	h.verify("DeleteBlocks")
}

// MoveBlock applies the move to both stores.
func (h *Harness) MoveBlock(id, newParentID string, at int) {
	refErr := h.ref.MoveBlock(id, newParentID, at)
	sutErr := h.sut.MoveBlock(h.sutID(id), h.sutID(newParentID), at)
	h.checkErrs("MoveBlock", refErr, sutErr)
	h.verify("MoveBlock")
}

// WatchChanges opens a watcher pair at the current version of each
// store; both backlogs must be empty.
func (h *Harness) WatchChanges(name string) {
	refBL, refW, refErr := h.ref.WatchChangesSince(h.ref.CurrentVersion())
	if refErr != nil {
		h.t.Fatalf("watch %s: reference error %v", name, refErr)
		return
	}
	sutBL, sutW, sutErr := h.sut.WatchChangesSince(h.sut.CurrentVersion())
	if sutErr != nil {
		h.t.Fatalf("watch %s: sut error %v", name, sutErr)
		return
	}
	if len(refBL) != 0 || len(sutBL) != 0 {
		h.t.Fatalf("watch %s: backlogs at the current version must be empty, got %d and %d",
			name, len(refBL), len(sutBL))
	}
	h.watchers = append(h.watchers, &watcherPair{name: name, ref: refW, sut: sutW})
}

// UnwatchChanges closes the i-th watcher pair.
func (h *Harness) UnwatchChanges(i int) {
	if len(h.watchers) == 0 {
		return
	}
	i %= len(h.watchers)
	wp := h.watchers[i]
	wp.ref.Close()
	wp.sut.Close()
	h.watchers = append(h.watchers[:i], h.watchers[i+1:]...)
}

// CloneProbe verifies the reference store's Clone is a deep copy by
// mutating the clone and checking the original is untouched.
func (h *Harness) CloneProbe() {
	before := Render(h.ref)
	c := h.ref.Clone()
	if _, err := c.CreateBlock("", "", "probe"); err != nil {
		h.t.Fatalf("clone probe: create on clone: %v", err)
	}
	if alive := h.aliveRefIDs(); len(alive) > 0 {
		if _, err := c.UpdateBlock(alive[0], "probe edit"); err != nil {
			h.t.Fatalf("clone probe: update on clone: %v", err)
		}
	}
	if got := Render(h.ref); got != before {
		h.t.Fatalf("clone mutation leaked into the original:\n%s", LineDiff(before, got))
	}
	c.Close()
}

// aliveRefIDs returns the reference store's non-root block ids in
// deterministic pre-order.
func (h *Harness) aliveRefIDs() []string {
	var ids []string
	for b := range h.ref.AllBlocks(blocktree.TraversalAllButRoot) {
		ids = append(ids, b.ID)
	}
	return ids
}

func (h *Harness) checkErrs(op string, refErr, sutErr error) {
	if kindOf(refErr) != kindOf(sutErr) {
		h.t.Fatalf("%s: reference error %v, sut error %v", op, refErr, sutErr)
	}
}

func kindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case blocktree.IsNotFound(err):
		return "not_found"
	case blocktree.IsInvalidParent(err):
		return "invalid_parent"
	case blocktree.IsCycle(err):
		return "cycle"
	default:
		return "backend"
	}
}

func (h *Harness) checkBlockPair(op string, rb, sb *blocktree.Block) {
	if rb.Content != sb.Content {
		h.t.Errorf("%s: content %q vs %q", op, rb.Content, sb.Content)
	}
	if got := h.refIDOf(sb.ParentID); got != rb.ParentID {
		h.t.Errorf("%s: parent %q vs %q", op, rb.ParentID, got)
	}
}

// verify renders both trees and drains every watcher pair; any
// difference fails the run.
func (h *Harness) verify(op string) {
	h.step++
	want := Render(h.ref)
	got := renderTranslated(h.sut, h.refIDOf)
	if want != got {
		h.t.Fatalf("%s: trees diverged at step %d:\n%s", op, h.step, LineDiff(want, got))
		return
	}
	for _, wp := range h.watchers {
		refCh := drainWatcher(wp.ref)
		sutCh := drainWatcher(wp.sut)
		if len(refCh) != len(sutCh) {
			h.t.Fatalf("%s: watcher %s: %d reference changes vs %d sut changes",
				op, wp.name, len(refCh), len(sutCh))
			return
		}
		for i := range refCh {
			want := h.summarize(refCh[i], false)
			got := h.summarize(sutCh[i], true)
			if want != got {
				h.t.Fatalf("%s: watcher %s change %d: %+v vs %+v", op, wp.name, i, want, got)
				return
			}
		}
	}
}

func drainWatcher(w *blocktree.Watcher) []blocktree.BlockChange {
	var out []blocktree.BlockChange
	for {
		select {
		case n, ok := <-w.Events():
			if !ok {
				return out
			}
			out = append(out, n.Changes...)
		default:
			return out
		}
	}
}

// changeKey is the comparable projection of one change: position in the
// feed plus everything watchers can observe about it.
type changeKey struct {
	Kind    blocktree.ChangeKind
	ID      string
	Parent  string
	Content string
	Origin  blocktree.ChangeOrigin
}

func (h *Harness) summarize(ch blocktree.BlockChange, translate bool) changeKey {
	k := changeKey{Kind: ch.Kind, ID: ch.ID, Origin: ch.Origin}
	if ch.Data != nil {
		k.Parent = ch.Data.ParentID
		k.Content = ch.Data.Content
	}
	if translate {
		k.ID = h.refIDOf(k.ID)
		k.Parent = h.refIDOf(k.Parent)
	}
	return k
}
