// Package filter compiles boolean block-filter expressions.
//
// Filters are expr-lang programs evaluated against one block at a time.
// The environment exposes id, parent_id, content, depth and child_count,
// so expressions like
//
//	content contains "todo" && depth < 3
//
// work from the CLI and the daemon's list and watch operations.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/blocktree-io/blocktree"
)

// Env is the variable set one block contributes to a filter run.
type Env struct {
	ID         string `expr:"id"`
	ParentID   string `expr:"parent_id"`
	Content    string `expr:"content"`
	Depth      int    `expr:"depth"`
	ChildCount int    `expr:"child_count"`
}

// Filter is a compiled filter expression, safe for concurrent use.
type Filter struct {
	src string
	prg *vm.Program
}

// Compile builds a filter from src. Unknown identifiers and non-boolean
// results are compile errors.
func Compile(src string) (*Filter, error) {
	prg, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return &Filter{src: src, prg: prg}, nil
}

// String returns the source the filter was compiled from.
func (f *Filter) String() string { return f.src }

// Match evaluates the filter against b at the given tree depth.
func (f *Filter) Match(b *blocktree.Block, depth int) (bool, error) {
	out, err := expr.Run(f.prg, Env{
		ID:         b.ID,
		ParentID:   b.ParentID,
		Content:    b.Content,
		Depth:      depth,
		ChildCount: len(b.Children),
	})
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.src, err)
	}
	v, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q: returned %T, want bool", f.src, out)
	}
	return v, nil
}
