package crdtstore

import (
	"sort"

	"github.com/blocktree-io/blocktree"
)

// VersionVector returns the replica's current frontier: the highest
// update sequence applied per actor.
func (s *Store) VersionVector() VersionVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionVectorLocked()
}

func (s *Store) versionVectorLocked() VersionVector {
	vv := make(VersionVector, len(s.updates))
	for a, blobs := range s.updates {
		vv[a] = uint64(len(blobs))
	}
	return vv
}

// ExportUpdates returns every applied update blob not covered by since,
// per-actor in sequence order, actors in lexical order. This is what a
// peer at frontier since needs to catch up; the blobs are opaque to the
// transport.
func (s *Store) ExportUpdates(since VersionVector) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	actors := make([]string, 0, len(s.updates))
	for a := range s.updates {
		actors = append(actors, a)
	}
	sort.Strings(actors)
	var out [][]byte
	for _, a := range actors {
		blobs := s.updates[a]
		for i := since[a]; i < uint64(len(blobs)); i++ {
			out = append(out, blobs[i])
		}
	}
	return out
}

// ApplyUpdate applies one update blob from a peer. Duplicates are
// no-ops; an update arriving ahead of its per-actor order is buffered
// until the gap closes. Observable changes surface as one remote-origin
// commit.
func (s *Store) ApplyUpdate(blob []byte) error {
	return s.ApplyUpdates([][]byte{blob})
}

// ApplyUpdates applies a batch of update blobs as one commit. Merging
// never fails on conflicts; only undecodable blobs and persistence
// failures are errors.
func (s *Store) ApplyUpdates(blobs [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &blocktree.BackendError{Op: "merge", Err: errClosed}
	}
	before := s.viewSnapLocked()

	applied := 0
	for _, blob := range blobs {
		u, err := decodeUpdate(blob)
		if err != nil {
			return &blocktree.BackendError{Op: "merge", Err: err}
		}
		n, err := s.ingestLocked(u, blob)
		applied += n
		if err != nil {
			return err
		}
	}
	if applied == 0 {
		return nil
	}
	after := s.viewSnapLocked()
	changes := s.diffLocked(before, after)
	s.commitLocked(changes)
	s.logger.Debug("merged updates", "applied", applied, "changes", len(changes))
	return nil
}

// Merge exchanges updates with another replica in both directions. On
// return each store has applied everything the other had.
func (s *Store) Merge(other *Store) error {
	if err := s.ApplyUpdates(other.ExportUpdates(s.VersionVector())); err != nil {
		return err
	}
	return other.ApplyUpdates(s.ExportUpdates(other.VersionVector()))
}

// ingestLocked applies one decoded update if it is next in its actor's
// sequence, then drains buffered successors. It reports how many
// updates were applied.
func (s *Store) ingestLocked(u *update, blob []byte) (int, error) {
	have := uint64(len(s.updates[u.Actor]))
	switch {
	case u.Seq <= have:
		return 0, nil // already applied
	case u.Seq > have+1:
		if s.pending[u.Actor] == nil {
			s.pending[u.Actor] = make(map[uint64][]byte)
		}
		s.pending[u.Actor][u.Seq] = blob
		return 0, nil
	}

	n := 0
	for {
		if err := s.persistBlobLocked(u.Actor, u.Seq, blob); err != nil {
			s.viewOK = false
			return n, &blocktree.BackendError{Op: "merge", Err: err}
		}
		for _, o := range u.Ops {
			s.st.apply(o)
			// Future local ops must order after everything merged.
			if o.ID.Lamport > s.lamport {
				s.lamport = o.ID.Lamport
			}
		}
		s.updates[u.Actor] = append(s.updates[u.Actor], blob)
		n++

		next, ok := s.pending[u.Actor][u.Seq+1]
		if !ok {
			break
		}
		delete(s.pending[u.Actor], u.Seq+1)
		nu, err := decodeUpdate(next)
		if err != nil {
			s.viewOK = false
			return n, &blocktree.BackendError{Op: "merge", Err: err}
		}
		u, blob = nu, next
	}
	s.viewOK = false
	return n, nil
}

// viewSnap is a comparable image of the effective tree, the input to
// merge-event diffing.
type viewSnap map[string]snapEntry

type snapEntry struct {
	parent  string
	content string
	elem    OpID
}

func (s *Store) viewSnapLocked() viewSnap {
	return snapshotView(s.viewLocked(), s.st)
}

func snapshotView(v *view, st *state) viewSnap {
	snap := make(viewSnap, len(v.parent))
	for id, p := range v.parent {
		snap[id] = snapEntry{
			parent:  p,
			content: st.blocks[id].content.Value,
			elem:    v.elem[id],
		}
	}
	return snap
}

// diffLocked renders the net difference between two tree images as
// remote-origin events: created ordered by creating op (parents land
// before their children), then updated and deleted ordered by id. A
// reposition without a field change still counts as updated.
func (s *Store) diffLocked(before, after viewSnap) []blocktree.BlockChange {
	var created, updated, deleted []string
	for id, entry := range after {
		prev, ok := before[id]
		switch {
		case !ok:
			created = append(created, id)
		case prev != entry:
			updated = append(updated, id)
		}
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	sort.Slice(created, func(i, j int) bool {
		return s.st.blocks[created[i]].createID.Less(s.st.blocks[created[j]].createID)
	})
	sort.Strings(updated)
	sort.Strings(deleted)

	changes := make([]blocktree.BlockChange, 0, len(created)+len(updated)+len(deleted))
	for _, id := range created {
		changes = append(changes, blocktree.BlockChange{
			Kind:   blocktree.ChangeCreated,
			ID:     id,
			Data:   s.eventBlockLocked(id),
			Origin: blocktree.OriginRemote,
		})
	}
	for _, id := range updated {
		changes = append(changes, blocktree.BlockChange{
			Kind:   blocktree.ChangeUpdated,
			ID:     id,
			Data:   s.eventBlockLocked(id),
			Origin: blocktree.OriginRemote,
		})
	}
	for _, id := range deleted {
		changes = append(changes, blocktree.BlockChange{
			Kind:   blocktree.ChangeDeleted,
			ID:     id,
			Origin: blocktree.OriginRemote,
		})
	}
	return changes
}
