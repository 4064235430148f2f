package crdtstore

import (
	"slices"
	"strings"
	"testing"

	"github.com/blocktree-io/blocktree"
)

func mustCreate(t *testing.T, s *Store, id, parentID, content string) *blocktree.Block {
	t.Helper()
	b, err := s.CreateBlock(id, parentID, content)
	if err != nil {
		t.Fatalf("CreateBlock(%q, %q) error = %v", id, parentID, err)
	}
	return b
}

func childIDs(t *testing.T, s *Store, parentID string) []string {
	t.Helper()
	children, err := s.ListChildren(parentID)
	if err != nil {
		t.Fatalf("ListChildren(%q) error = %v", parentID, err)
	}
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids
}

func mustMerge(t *testing.T, a, b *Store) {
	t.Helper()
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
}

func TestCreateBlock(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	b := mustCreate(t, s, "a", "", "hello")
	if b.ParentID != blocktree.RootID {
		t.Errorf("expected parent %q, got %q", blocktree.RootID, b.ParentID)
	}
	if b.Content != "hello" {
		t.Errorf("expected content hello, got %q", b.Content)
	}

	mustCreate(t, s, "b", "a", "child")
	got, err := s.GetBlock("a")
	if err != nil {
		t.Fatalf("GetBlock(a) error = %v", err)
	}
	if !slices.Equal(got.Children, []string{"b"}) {
		t.Errorf("expected children [b], got %v", got.Children)
	}

	if _, err := s.CreateBlock("x", "missing", "y"); !blocktree.IsInvalidParent(err) {
		t.Errorf("expected InvalidParentError, got %v", err)
	}
}

func TestCreateBlock_Idempotent(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "a", "", "original")
	v := s.CurrentVersion()

	b := mustCreate(t, s, "a", "", "ignored")
	if b.Content != "original" {
		t.Errorf("expected existing content, got %q", b.Content)
	}
	if !s.CurrentVersion().Equal(v) {
		t.Error("idempotent re-create must not bump the version")
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"a"}) {
		t.Errorf("expected single child a, got %v", got)
	}
}

func TestCreateBlock_ReviveDeletedID(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "a", "", "first life")
	if err := s.DeleteBlock("a"); err != nil {
		t.Fatalf("DeleteBlock() error = %v", err)
	}

	// A deleted id is free for re-use, like in a plain tree.
	b := mustCreate(t, s, "a", "", "second life")
	if b.Content != "second life" {
		t.Errorf("expected new content, got %q", b.Content)
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"a"}) {
		t.Errorf("expected [a], got %v", got)
	}
}

func TestCreateBlock_GeneratedIDs(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	b1 := mustCreate(t, s, "", "", "x")
	b2 := mustCreate(t, s, "", "", "y")
	if !strings.HasPrefix(b1.ID, "local://") || !strings.HasPrefix(b2.ID, "local://") {
		t.Errorf("expected local:// ids, got %q, %q", b1.ID, b2.ID)
	}
	if b1.ID == b2.ID {
		t.Error("generated ids must be unique")
	}
}

func TestCreateBlocks_Batch(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	out, err := s.CreateBlocks([]blocktree.NewBlock{
		{ID: "a", Content: "parent"},
		{ID: "b", ParentID: "a", Content: "child"},
		{ID: "c", Content: "sibling"},
	})
	if err != nil {
		t.Fatalf("CreateBlocks() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(out))
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("expected [a c] at top level, got %v", got)
	}
	if got := childIDs(t, s, "a"); !slices.Equal(got, []string{"b"}) {
		t.Errorf("expected [b] under a, got %v", got)
	}

	// Validation-first: a bad element rejects the whole batch.
	_, err = s.CreateBlocks([]blocktree.NewBlock{
		{ID: "d", Content: "fine"},
		{ID: "e", ParentID: "missing", Content: "bad"},
	})
	if !blocktree.IsInvalidParent(err) {
		t.Fatalf("expected InvalidParentError, got %v", err)
	}
	if _, err := s.GetBlock("d"); !blocktree.IsNotFound(err) {
		t.Errorf("expected batch to be rejected whole, got %v", err)
	}
}

func TestUpdateBlock(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "a", "", "before")
	b, err := s.UpdateBlock("a", "after")
	if err != nil {
		t.Fatalf("UpdateBlock() error = %v", err)
	}
	if b.Content != "after" {
		t.Errorf("expected content after, got %q", b.Content)
	}

	if _, err := s.UpdateBlock("missing", "x"); !blocktree.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if _, err := s.UpdateBlock(blocktree.RootID, "x"); !blocktree.IsNotFound(err) {
		t.Errorf("expected NotFoundError for root update, got %v", err)
	}
}

func TestDeleteBlock_Recursive(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "R", "", "top")
	mustCreate(t, s, "C1", "R", "first")
	mustCreate(t, s, "C2", "R", "second")
	mustCreate(t, s, "G", "C1", "grand")

	v := s.CurrentVersion()
	if err := s.DeleteBlock("R"); err != nil {
		t.Fatalf("DeleteBlock(R) error = %v", err)
	}
	for _, id := range []string{"R", "C1", "C2", "G"} {
		if _, err := s.GetBlock(id); !blocktree.IsNotFound(err) {
			t.Errorf("expected %s deleted, got %v", id, err)
		}
	}

	backlog, w, err := s.WatchChangesSince(v)
	if err != nil {
		t.Fatalf("WatchChangesSince() error = %v", err)
	}
	defer w.Close()
	wantIDs := []string{"R", "C1", "G", "C2"}
	if len(backlog) != len(wantIDs) {
		t.Fatalf("expected %d deleted events, got %d", len(wantIDs), len(backlog))
	}
	for i, ch := range backlog {
		if ch.Kind != blocktree.ChangeDeleted || ch.ID != wantIDs[i] {
			t.Errorf("event %d: got (%s, %s), want (deleted, %s)", i, ch.Kind, ch.ID, wantIDs[i])
		}
	}
}

func TestMoveBlock(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "a", "", "1")
	mustCreate(t, s, "b", "", "2")
	mustCreate(t, s, "c", "", "3")

	if err := s.MoveBlock("c", "", 0); err != nil {
		t.Fatalf("MoveBlock(c, root, 0) error = %v", err)
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"c", "a", "b"}) {
		t.Errorf("expected [c a b], got %v", got)
	}

	if err := s.MoveBlock("c", "", 1); err != nil {
		t.Fatalf("MoveBlock(c, root, 1) error = %v", err)
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"a", "c", "b"}) {
		t.Errorf("expected [a c b], got %v", got)
	}

	// Clamp and append forms.
	if err := s.MoveBlock("a", "", 99); err != nil {
		t.Fatalf("MoveBlock(a, root, 99) error = %v", err)
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"c", "b", "a"}) {
		t.Errorf("expected [c b a], got %v", got)
	}
	if err := s.MoveBlock("c", "", blocktree.AtEnd); err != nil {
		t.Fatalf("MoveBlock(c, root, AtEnd) error = %v", err)
	}
	if got := childIDs(t, s, ""); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("expected [b a c], got %v", got)
	}

	// Reparent.
	if err := s.MoveBlock("b", "a", 0); err != nil {
		t.Fatalf("MoveBlock(b, a, 0) error = %v", err)
	}
	if got := childIDs(t, s, "a"); !slices.Equal(got, []string{"b"}) {
		t.Errorf("expected [b] under a, got %v", got)
	}
}

func TestMoveBlock_CycleDetected(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "A", "", "a")
	mustCreate(t, s, "B", "A", "b")

	if err := s.MoveBlock("A", "B", 0); !blocktree.IsCycle(err) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if err := s.MoveBlock("A", "A", 0); !blocktree.IsCycle(err) {
		t.Errorf("expected CycleError for self-parent, got %v", err)
	}
	if got := childIDs(t, s, "A"); !slices.Equal(got, []string{"B"}) {
		t.Errorf("tree changed after failed moves: %v", got)
	}
}

func TestAllBlocksAndAncestors(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "a", "", "1")
	mustCreate(t, s, "b", "a", "2")
	mustCreate(t, s, "c", "", "3")

	var ids []string
	for b := range s.AllBlocks(blocktree.TraversalAll) {
		ids = append(ids, b.ID)
	}
	if !slices.Equal(ids, []string{blocktree.RootID, "a", "b", "c"}) {
		t.Errorf("TraversalAll: got %v", ids)
	}

	ids = ids[:0]
	for b := range s.AllBlocks(blocktree.TraversalAllButRoot) {
		ids = append(ids, b.ID)
	}
	if !slices.Equal(ids, []string{"a", "b", "c"}) {
		t.Errorf("TraversalAllButRoot: got %v", ids)
	}

	chain, err := s.AncestorChain("b")
	if err != nil {
		t.Fatalf("AncestorChain(b) error = %v", err)
	}
	if !slices.Equal(chain, []string{"a", blocktree.RootID}) {
		t.Errorf("expected [a %s], got %v", blocktree.RootID, chain)
	}
}

func TestWatchChangesSince_SameEpoch(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	v0 := s.CurrentVersion()
	mustCreate(t, s, "x", "", "one")

	backlog, w, err := s.WatchChangesSince(v0)
	if err != nil {
		t.Fatalf("WatchChangesSince(v0) error = %v", err)
	}
	defer w.Close()
	if len(backlog) != 1 || backlog[0].ID != "x" || backlog[0].Kind != blocktree.ChangeCreated {
		t.Fatalf("expected backlog [created x], got %+v", backlog)
	}

	// Next commit arrives live, exactly once.
	mustCreate(t, s, "y", "", "two")
	select {
	case n := <-w.Events():
		if len(n.Changes) != 1 || n.Changes[0].ID != "y" {
			t.Fatalf("expected live created y, got %+v", n.Changes)
		}
	default:
		t.Fatal("expected a live notification")
	}
	select {
	case n := <-w.Events():
		t.Fatalf("unexpected duplicate notification: %+v", n)
	default:
	}
}

func TestWatchChangesSince_Beginning(t *testing.T) {
	s := New(WithActor("a1"))
	defer s.Close()

	mustCreate(t, s, "a", "", "1")
	mustCreate(t, s, "b", "a", "2")

	backlog, w, err := s.WatchChangesSince(nil)
	if err != nil {
		t.Fatalf("WatchChangesSince(nil) error = %v", err)
	}
	defer w.Close()

	wantIDs := []string{"a", "b"}
	if len(backlog) != len(wantIDs) {
		t.Fatalf("expected %d changes, got %d", len(wantIDs), len(backlog))
	}
	for i, ch := range backlog {
		if ch.Kind != blocktree.ChangeCreated || ch.ID != wantIDs[i] {
			t.Errorf("change %d: got (%s, %s), want (created, %s)", i, ch.Kind, ch.ID, wantIDs[i])
		}
		if ch.Origin != blocktree.OriginRemote {
			t.Errorf("change %d: expected remote origin, got %s", i, ch.Origin)
		}
	}
}
