package storetest

import (
	"testing"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/crdtstore"
	"github.com/blocktree-io/blocktree/memstore"
)

// suts returns a fresh system under test per backend; the harness pairs
// each with its own reference instance.
func suts() []struct {
	name string
	s    blocktree.Store
} {
	return []struct {
		name string
		s    blocktree.Store
	}{
		{"memstore", memstore.New()},
		{"crdtstore", crdtstore.New(crdtstore.WithActor("scn"))},
	}
}

func TestRecursiveDeleteEmptiesSubtree(t *testing.T) {
	for _, tc := range suts() {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHarness(t, tc.s)
			defer h.Close()

			h.WatchChanges("w")
			h.CreateBlock("R", "", "top")
			h.CreateBlock("C1", "R", "first")
			h.CreateBlock("C2", "R", "second")
			h.DeleteBlock("R")

			if got, want := Render(h.ref), blocktree.RootID+"\n"; got != want {
				t.Errorf("expected an empty tree, got:\n%s", got)
			}
		})
	}
}

func TestMoveUnderDescendantRejected(t *testing.T) {
	for _, tc := range suts() {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHarness(t, tc.s)
			defer h.Close()

			h.CreateBlock("A", "", "parent")
			h.CreateBlock("B", "A", "child")
			// Both stores must reject with the same error kind; the
			// harness fails on any disagreement.
			h.MoveBlock("A", "B", 0)
			h.MoveBlock("A", "A", 0)

			chain, err := h.ref.AncestorChain("B")
			if err != nil {
				t.Fatalf("AncestorChain(B) error = %v", err)
			}
			if len(chain) != 2 || chain[0] != "A" {
				t.Errorf("tree changed after rejected moves: %v", chain)
			}
		})
	}
}

func TestWatchBacklogBoundary(t *testing.T) {
	for _, tc := range suts() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.s
			defer s.Close()

			backlog, w1, err := s.WatchChangesSince(s.CurrentVersion())
			if err != nil {
				t.Fatalf("WatchChangesSince() error = %v", err)
			}
			defer w1.Close()
			if len(backlog) != 0 {
				t.Fatalf("expected empty backlog, got %+v", backlog)
			}

			if _, err := s.CreateBlock("X", "", "one"); err != nil {
				t.Fatalf("CreateBlock(X) error = %v", err)
			}
			got := drainWatcher(w1)
			if len(got) != 1 || got[0].Kind != blocktree.ChangeCreated || got[0].ID != "X" {
				t.Fatalf("expected live created X, got %+v", got)
			}
			if got[0].Origin != blocktree.OriginLocal {
				t.Errorf("expected local origin, got %s", got[0].Origin)
			}

			// A second watcher at the new version owes nothing.
			backlog, w2, err := s.WatchChangesSince(s.CurrentVersion())
			if err != nil {
				t.Fatalf("WatchChangesSince() error = %v", err)
			}
			defer w2.Close()
			if len(backlog) != 0 {
				t.Fatalf("expected empty backlog at current version, got %+v", backlog)
			}

			if _, err := s.CreateBlock("Y", "", "two"); err != nil {
				t.Fatalf("CreateBlock(Y) error = %v", err)
			}
			for _, w := range []*blocktree.Watcher{w1, w2} {
				got := drainWatcher(w)
				if len(got) != 1 || got[0].ID != "Y" {
					t.Fatalf("expected exactly one created Y, got %+v", got)
				}
			}
		})
	}
}

func TestConcurrentEditSurvivesParentDelete(t *testing.T) {
	r1 := crdtstore.New(crdtstore.WithActor("d1"))
	defer r1.Close()
	r2 := crdtstore.New(crdtstore.WithActor("d2"))
	defer r2.Close()

	if _, err := r1.CreateBlock("R", "", "shared"); err != nil {
		t.Fatalf("CreateBlock(R) error = %v", err)
	}
	if err := r1.Merge(r2); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if _, err := r1.CreateBlock("X", "R", "kept"); err != nil {
		t.Fatalf("CreateBlock(X) error = %v", err)
	}
	if err := r2.DeleteBlock("R"); err != nil {
		t.Fatalf("DeleteBlock(R) error = %v", err)
	}
	if err := r1.Merge(r2); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if got1, got2 := Render(r1), Render(r2); got1 != got2 {
		t.Fatalf("replicas diverged:\n%s", LineDiff(got1, got2))
	}
	for _, s := range []*crdtstore.Store{r1, r2} {
		x, err := s.GetBlock("X")
		if err != nil {
			t.Fatalf("%s: GetBlock(X) error = %v", s.Actor(), err)
		}
		if x.ParentID != blocktree.RootID {
			t.Errorf("%s: expected X adopted by the root, got parent %q", s.Actor(), x.ParentID)
		}
		if _, err := s.GetBlock("R"); !blocktree.IsNotFound(err) {
			t.Errorf("%s: expected R gone, got %v", s.Actor(), err)
		}
	}
}
