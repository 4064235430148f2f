package crdtstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/blocktree-io/blocktree"
)

const epochLen = 16

// token is the decoded form of a Version issued by this backend: the
// issuing open's epoch, the feed commit at issue time, and the update
// frontier. Same-epoch tokens resume by exact feed replay; tokens from
// an earlier open of the same history resume from the frontier.
type token struct {
	epoch  []byte
	commit int64
	vv     VersionVector
}

func encodeToken(t token) blocktree.Version {
	actors := make([]string, 0, len(t.vv))
	for a := range t.vv {
		actors = append(actors, a)
	}
	sort.Strings(actors)

	b := make([]byte, 0, epochLen+8+len(actors)*24)
	b = append(b, t.epoch...)
	b = binary.BigEndian.AppendUint64(b, uint64(t.commit))
	for _, a := range actors {
		b = binary.AppendUvarint(b, uint64(len(a)))
		b = append(b, a...)
		b = binary.BigEndian.AppendUint64(b, t.vv[a])
	}
	return blocktree.Version(b)
}

func decodeToken(v blocktree.Version) (*token, error) {
	if len(v) < epochLen+8 {
		return nil, errors.New("version token too short")
	}
	t := &token{
		epoch:  append([]byte(nil), v[:epochLen]...),
		commit: int64(binary.BigEndian.Uint64(v[epochLen : epochLen+8])),
		vv:     make(VersionVector),
	}
	rest := v[epochLen+8:]
	for len(rest) > 0 {
		n, used := binary.Uvarint(rest)
		if used <= 0 {
			return nil, errors.New("malformed version token")
		}
		rest = rest[used:]
		if n > uint64(len(rest)) || uint64(len(rest))-n < 8 {
			return nil, errors.New("malformed version token")
		}
		actor := string(rest[:n])
		rest = rest[n:]
		t.vv[actor] = binary.BigEndian.Uint64(rest[:8])
		rest = rest[8:]
	}
	return t, nil
}

// CurrentVersion returns the token for the store's current point in
// history.
func (s *Store) CurrentVersion() blocktree.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encodeToken(token{
		epoch:  s.epoch,
		commit: s.log.LastCommit(),
		vv:     s.versionVectorLocked(),
	})
}

// WatchChangesSince returns the backlog of changes after since plus a
// live watcher. A zero since delivers the current tree as created
// events. A token from this open replays the feed exactly; a token from
// an earlier open of the same persistent store yields the net
// difference between its frontier and now.
func (s *Store) WatchChangesSince(since blocktree.Version) ([]blocktree.BlockChange, *blocktree.Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, &blocktree.BackendError{Op: "watch", Err: errClosed}
	}

	var backlog []blocktree.BlockChange
	switch {
	case since.IsZero():
		v := s.viewLocked()
		for _, id := range v.preorder() {
			backlog = append(backlog, blocktree.BlockChange{
				Kind:   blocktree.ChangeCreated,
				ID:     id,
				Data:   s.eventBlockLocked(id),
				Origin: blocktree.OriginRemote,
			})
		}
	default:
		t, err := decodeToken(since)
		if err != nil {
			return nil, nil, &blocktree.BackendError{Op: "watch", Err: err}
		}
		if bytes.Equal(t.epoch, s.epoch) {
			if !s.log.Contains(t.commit) {
				return nil, nil, &blocktree.BackendError{Op: "watch", Err: fmt.Errorf("commit %d out of log range", t.commit)}
			}
			for _, ch := range s.log.Since(t.commit) {
				ch.Data = ch.Data.Clone()
				backlog = append(backlog, ch)
			}
		} else {
			backlog, err = s.frontierBacklogLocked(t.vv)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	w := blocktree.NewWatcher(s.log.LastCommit(), 0)
	s.hub.Watch(w)
	return backlog, w, nil
}

// frontierBacklogLocked rebuilds the tree as the given frontier saw it
// and diffs it against the current tree.
func (s *Store) frontierBacklogLocked(vv VersionVector) ([]blocktree.BlockChange, error) {
	st := newState()
	for actor, seq := range vv {
		blobs := s.updates[actor]
		if uint64(len(blobs)) < seq {
			return nil, &blocktree.BackendError{
				Op:  "watch",
				Err: fmt.Errorf("version frontier references unknown history for actor %s", actor),
			}
		}
		for i := uint64(0); i < seq; i++ {
			u, err := decodeUpdate(blobs[i])
			if err != nil {
				return nil, &blocktree.BackendError{Op: "watch", Err: err}
			}
			for _, o := range u.Ops {
				st.apply(o)
			}
		}
	}
	before := snapshotView(st.buildView(), st)
	after := s.viewSnapLocked()
	return s.diffLocked(before, after), nil
}
