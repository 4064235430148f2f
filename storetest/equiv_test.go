package storetest

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/crdtstore"
	"github.com/blocktree-io/blocktree/memstore"
)

func testStoreEquivalence(t *rapid.T) {
	h := NewHarness(t, crdtstore.New(crdtstore.WithActor("sut")))
	defer h.Close()

	h.WatchChanges("w0")
	steps := rapid.IntRange(1, 40).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		h.Step(t)
	}
}

func TestStoreEquivalence(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testStoreEquivalence)
}

func FuzzStoreEquivalence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testStoreEquivalence))
}

// The reference against a second reference instance exercises the
// harness itself: any failure here is a harness bug, not a backend bug.
func testReferenceSelfCheck(t *rapid.T) {
	h := NewHarness(t, memstore.New())
	defer h.Close()

	steps := rapid.IntRange(1, 30).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		h.Step(t)
	}
}

func TestReferenceSelfCheck(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testReferenceSelfCheck)
}

// Two replicas taking independent local edits, merging at random
// points, must render identical trees after a final merge, and the
// merged tree must still be a forest.
func testReplicaConvergence(t *rapid.T) {
	r1 := crdtstore.New(crdtstore.WithActor("ca"))
	defer r1.Close()
	r2 := crdtstore.New(crdtstore.WithActor("cb"))
	defer r2.Close()
	replicas := []*crdtstore.Store{r1, r2}

	steps := rapid.IntRange(1, 40).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		s := replicas[rapid.IntRange(0, 1).Draw(t, "replica")]
		applyRandomOp(t, s)
		if rapid.IntRange(0, 4).Draw(t, "sync") == 0 {
			if err := r1.Merge(r2); err != nil {
				t.Fatalf("merge: %v", err)
			}
		}
	}
	if err := r1.Merge(r2); err != nil {
		t.Fatalf("final merge: %v", err)
	}

	got1, got2 := Render(r1), Render(r2)
	if got1 != got2 {
		t.Fatalf("replicas diverged after merge:\n%s", LineDiff(got1, got2))
	}
	for b := range r1.AllBlocks(blocktree.TraversalAllButRoot) {
		chain, err := r1.AncestorChain(b.ID)
		if err != nil {
			t.Fatalf("AncestorChain(%s): %v", b.ID, err)
		}
		if len(chain) == 0 || chain[len(chain)-1] != blocktree.RootID {
			t.Fatalf("ancestor chain for %s does not reach the root: %v", b.ID, chain)
		}
	}
}

func TestReplicaConvergence(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testReplicaConvergence)
}

func FuzzReplicaConvergence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testReplicaConvergence))
}

// applyRandomOp performs one local edit on s. Ids come from a small
// shared pool so replicas collide on ids, which the merge must resolve.
func applyRandomOp(t *rapid.T, s *crdtstore.Store) {
	var alive []string
	for b := range s.AllBlocks(blocktree.TraversalAllButRoot) {
		alive = append(alive, b.ID)
	}
	op := rapid.SampledFrom([]string{"create", "create", "create", "update", "delete", "move"}).Draw(t, "op")
	if len(alive) == 0 {
		op = "create"
	}
	switch op {
	case "create":
		parents := append([]string{blocktree.RootID}, alive...)
		parent := rapid.SampledFrom(parents).Draw(t, "parent")
		id := rapid.StringMatching(`n[0-9]`).Draw(t, "id")
		if _, err := s.CreateBlock(id, parent, contentGen.Draw(t, "content")); err != nil {
			t.Fatalf("CreateBlock(%s): %v", id, err)
		}
	case "update":
		id := rapid.SampledFrom(alive).Draw(t, "id")
		if _, err := s.UpdateBlock(id, contentGen.Draw(t, "content")); err != nil {
			t.Fatalf("UpdateBlock(%s): %v", id, err)
		}
	case "delete":
		id := rapid.SampledFrom(alive).Draw(t, "id")
		if err := s.DeleteBlock(id); err != nil {
			t.Fatalf("DeleteBlock(%s): %v", id, err)
		}
	case "move":
		id := rapid.SampledFrom(alive).Draw(t, "id")
		parents := append([]string{blocktree.RootID}, alive...)
		parent := rapid.SampledFrom(parents).Draw(t, "parent")
		at := rapid.IntRange(blocktree.AtEnd, len(alive)).Draw(t, "at")
		err := s.MoveBlock(id, parent, at)
		if err != nil && !blocktree.IsCycle(err) {
			t.Fatalf("MoveBlock(%s, %s): %v", id, parent, err)
		}
	}
}
