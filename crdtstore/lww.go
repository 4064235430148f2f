package crdtstore

// reg is a last-writer-wins string register. Writes win strictly by
// OpID, so re-applying an op is a no-op.
type reg struct {
	Value string
	ID    OpID
}

func (r *reg) write(v string, id OpID) bool {
	if !r.ID.Less(id) {
		return false
	}
	r.Value, r.ID = v, id
	return true
}

// flag is a last-writer-wins boolean register (the deleted tombstone).
type flag struct {
	Value bool
	ID    OpID
}

func (f *flag) write(v bool, id OpID) bool {
	if !f.ID.Less(id) {
		return false
	}
	f.Value, f.ID = v, id
	return true
}

// record is the replicated payload for one block id.
type record struct {
	parent  reg
	content reg
	deleted flag

	// createID is the smallest create op observed for this id; it is
	// the same on every replica once converged, making createdAt and
	// merge-event ordering stable.
	createID  OpID
	createdAt int64
	updatedAt int64
}

func (r *record) alive() bool {
	return !r.deleted.Value
}

// touch folds an op's wallclock into the display timestamps.
func (r *record) touch(at int64) {
	if at > r.updatedAt {
		r.updatedAt = at
	}
}

// noteCreate records the creating op, keeping the smallest one.
func (r *record) noteCreate(id OpID, at int64) {
	if r.createID.IsZero() || id.Less(r.createID) {
		r.createID = id
		r.createdAt = at
	}
}
