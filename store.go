package blocktree

import "iter"

// Store is the uniform contract over every backend. All operations are
// synchronous and atomic with respect to other operations on the same
// instance; concurrent callers are queued, never interleaved
// mid-operation.
type Store interface {
	// CreateBlock creates a block under parentID (empty targets the
	// root) at the end of the parent's child order. An empty id lets
	// the backend assign one. Fails with InvalidParentError if the
	// parent does not resolve. Creating an id that already exists
	// returns the existing block unchanged: no duplicate, no event,
	// no version bump.
	CreateBlock(id, parentID, content string) (*Block, error)

	// CreateBlocks creates a batch in argument order as one commit.
	// The whole batch is validated before any block is created.
	CreateBlocks(blocks []NewBlock) ([]*Block, error)

	// UpdateBlock replaces a block's content. Position is unchanged.
	UpdateBlock(id, content string) (*Block, error)

	// DeleteBlock deletes a block and, recursively and pre-order, all
	// of its descendants, as one commit.
	DeleteBlock(id string) error

	// DeleteBlocks deletes a batch of blocks (each cascading to its
	// descendants) as one commit. Ids already removed by an earlier
	// cascade in the same batch are skipped.
	DeleteBlocks(ids []string) error

	// MoveBlock moves a block under newParentID at position at,
	// clamped to [0, len] of the new parent's children post-removal;
	// at < 0 (AtEnd) appends. Fails with CycleError if newParentID is
	// the block itself or one of its descendants.
	MoveBlock(id, newParentID string, at int) error

	// GetBlock returns one block with its Children populated.
	GetBlock(id string) (*Block, error)

	// GetBlocks returns the named blocks in argument order.
	GetBlocks(ids []string) ([]*Block, error)

	// ListChildren returns a block's children in sibling order.
	ListChildren(parentID string) ([]*Block, error)

	// AncestorChain returns parent ids from the block's parent up to
	// and including the root; empty for the root itself.
	AncestorChain(id string) ([]string, error)

	// AllBlocks yields blocks in deterministic pre-order (root first,
	// then children in sibling order, depth-first), filtered by the
	// traversal. Each call starts a fresh traversal over the state at
	// iteration time.
	AllBlocks(tr Traversal) iter.Seq[*Block]

	// CurrentVersion returns the token for the store's current point
	// in history.
	CurrentVersion() Version

	// WatchChangesSince returns every change after since up to now, in
	// commit order, plus a live watcher for subsequent commits. There
	// is no gap and no duplication between the two phases. A zero
	// since delivers the current tree as created events with remote
	// origin. The caller must drain the watcher and Close it.
	WatchChangesSince(since Version) ([]BlockChange, *Watcher, error)

	// Close releases the store's resources. Live watchers are failed.
	Close() error
}
