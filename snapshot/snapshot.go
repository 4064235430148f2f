// Package snapshot converts a block tree to and from a portable
// document form.
//
// A Doc nests blocks the way the tree nests them, keeps sibling order,
// and drops everything volatile (timestamps, version tokens), so two
// replicas holding the same tree export byte-identical documents. Docs
// encode to JSON or YAML and diff/patch as JSON (see patch.go).
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/blocktree-io/blocktree"
)

// Node is one block in a document, with its subtree nested beneath it.
type Node struct {
	ID       string  `json:"id"`
	Content  string  `json:"content,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Doc is a whole exported tree. Blocks holds the top-level blocks in
// sibling order.
type Doc struct {
	Blocks []*Node `json:"blocks"`
}

// Len returns the number of blocks in the document.
func (d *Doc) Len() int {
	var n int
	var count func(nodes []*Node)
	count = func(nodes []*Node) {
		n += len(nodes)
		for _, c := range nodes {
			count(c.Children)
		}
	}
	count(d.Blocks)
	return n
}

// Validate checks that every node has an id and no id repeats.
func (d *Doc) Validate() error {
	seen := make(map[string]bool)
	var walk func(nodes []*Node) error
	walk = func(nodes []*Node) error {
		for _, n := range nodes {
			if n.ID == "" {
				return fmt.Errorf("snapshot: node with empty id")
			}
			if n.ID == blocktree.RootID {
				return fmt.Errorf("snapshot: node uses the reserved root id")
			}
			if seen[n.ID] {
				return fmt.Errorf("snapshot: duplicate id %q", n.ID)
			}
			seen[n.ID] = true
			if err := walk(n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(d.Blocks)
}

// Export captures the store's current tree as a document.
func Export(s blocktree.Store) (*Doc, error) {
	blocks, err := exportChildren(s, blocktree.RootID)
	if err != nil {
		return nil, fmt.Errorf("export snapshot: %w", err)
	}
	return &Doc{Blocks: blocks}, nil
}

func exportChildren(s blocktree.Store, parentID string) ([]*Node, error) {
	children, err := s.ListChildren(parentID)
	if err != nil {
		return nil, err
	}
	var nodes []*Node
	for _, c := range children {
		kids, err := exportChildren(s, c.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Node{ID: c.ID, Content: c.Content, Children: kids})
	}
	return nodes, nil
}

// Import recreates the document's blocks in the store, ids preserved,
// as a single batch. Ids that already exist in the store are left
// untouched by the batch-create idempotency rule.
func Import(s blocktree.Store, d *Doc) error {
	if err := d.Validate(); err != nil {
		return err
	}
	var batch []blocktree.NewBlock
	var walk func(nodes []*Node, parentID string)
	walk = func(nodes []*Node, parentID string) {
		for _, n := range nodes {
			batch = append(batch, blocktree.NewBlock{
				ID:       n.ID,
				ParentID: parentID,
				Content:  n.Content,
			})
			walk(n.Children, n.ID)
		}
	}
	walk(d.Blocks, blocktree.RootID)
	if len(batch) == 0 {
		return nil
	}
	if _, err := s.CreateBlocks(batch); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

// Encode renders the document as indented JSON.
func Encode(d *Doc) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses and validates a JSON document.
func Decode(data []byte) (*Doc, error) {
	d := &Doc{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// EncodeYAML renders the document as YAML.
func EncodeYAML(d *Doc) ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeYAML parses and validates a YAML document.
func DecodeYAML(data []byte) (*Doc, error) {
	d := &Doc{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
