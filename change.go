package blocktree

// ChangeKind discriminates the BlockChange union.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeOrigin distinguishes self-inflicted edits from changes merged in
// from other replicas, so subscribers can suppress echo of their own
// writes.
type ChangeOrigin string

const (
	OriginLocal  ChangeOrigin = "local"
	OriginRemote ChangeOrigin = "remote"
)

// BlockChange describes one observed mutation. Data carries the block
// state after the change and is nil for deletions. A change touching
// several fields of one block collapses to a single updated event.
type BlockChange struct {
	Kind   ChangeKind   `json:"kind"`
	ID     string       `json:"id"`
	Data   *Block       `json:"data,omitempty"`
	Origin ChangeOrigin `json:"origin"`
}

// Notification is the batch of changes committed by one mutating
// operation, in deterministic order.
type Notification struct {
	Commit  int64         `json:"commit"`
	Changes []BlockChange `json:"changes"`
}
