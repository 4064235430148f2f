package blocktree

import "math"

// RootID is the id of the synthetic root block present in every store.
// Top-level blocks have ParentID == RootID. The root itself is readable
// but cannot be updated, deleted, or moved.
const RootID = "__root__"

// AtEnd is the position passed to MoveBlock to append the block to the
// end of the new parent's children.
const AtEnd = -1

// Block is one node of the tree.
//
// ParentID is RootID for top-level blocks and empty only on the root
// block itself. Children holds child ids in sibling order; it is
// populated on reads and ignored on writes (order is maintained by the
// move/create operations, not by assigning Children).
type Block struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parentId"`
	Content   string   `json:"content"`
	Children  []string `json:"children,omitempty"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

// IsRoot reports whether b is the synthetic root block.
func (b *Block) IsRoot() bool {
	return b.ID == RootID
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	if b.Children != nil {
		c.Children = make([]string, len(b.Children))
		copy(c.Children, b.Children)
	}
	return &c
}

// NewBlock describes one block to create in a CreateBlocks batch.
// An empty ID lets the backend assign one; an empty ParentID targets
// the root.
type NewBlock struct {
	ID       string `json:"id,omitempty"`
	ParentID string `json:"parentId,omitempty"`
	Content  string `json:"content"`
}

// Traversal selects which depths AllBlocks yields. The root block is at
// depth 0, its children at depth 1, and so on.
type Traversal struct {
	MinDepth int `json:"minDepth"`
	MaxDepth int `json:"maxDepth"`
}

var (
	// TraversalAll yields every block including the root.
	TraversalAll = Traversal{MinDepth: 0, MaxDepth: math.MaxInt}

	// TraversalAllButRoot yields every block except the root.
	TraversalAllButRoot = Traversal{MinDepth: 1, MaxDepth: math.MaxInt}

	// TraversalTopLevel yields only the root's direct children.
	TraversalTopLevel = Traversal{MinDepth: 1, MaxDepth: 1}
)

// Includes reports whether a block at the given depth is part of the
// traversal.
func (t Traversal) Includes(depth int) bool {
	return depth >= t.MinDepth && depth <= t.MaxDepth
}
