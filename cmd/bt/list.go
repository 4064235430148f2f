package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"
	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/filter"
)

func ls(cfg *LsConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Ls.Parse(cc, args)
	if err != nil {
		return err
	}
	var flt *filter.Filter
	if cfg.Filter != "" {
		flt, err = filter.Compile(cfg.Filter)
		if err != nil {
			return fmt.Errorf("%w: %v", cli.ErrUsage, err)
		}
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	maxDepth := cfg.Depth
	if maxDepth <= 0 {
		maxDepth = math.MaxInt
	}
	return lsChildren(cc.Out, st, blocktree.RootID, 1, maxDepth, flt, cfg.colored(cc.Out))
}

func lsChildren(w io.Writer, st blocktree.Store, parentID string, depth, maxDepth int, flt *filter.Filter, colored bool) error {
	if depth > maxDepth {
		return nil
	}
	children, err := st.ListChildren(parentID)
	if err != nil {
		return err
	}
	for _, child := range children {
		show := true
		if flt != nil {
			show, err = flt.Match(child, depth)
			if err != nil {
				return err
			}
		}
		if show {
			id := child.ID
			if colored {
				id = color.CyanString("%s", id)
			}
			indent := strings.Repeat("  ", depth-1)
			if _, err := fmt.Fprintf(w, "%s%s  %s\n", indent, id, child.Content); err != nil {
				return err
			}
		}
		if err := lsChildren(w, st, child.ID, depth+1, maxDepth, flt, colored); err != nil {
			return err
		}
	}
	return nil
}
