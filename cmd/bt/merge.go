package main

import (
	"fmt"

	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree/crdtstore"
)

func merge(cfg *MergeConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Merge.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: merge takes one argument, the source store directory", cli.ErrUsage)
	}
	dst, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer dst.Close()
	src, err := crdtstore.Open(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	updates := src.ExportUpdates(dst.VersionVector())
	if err := dst.ApplyUpdates(updates); err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "applied %d updates from %s (actor %s)\n", len(updates), args[0], src.Actor())
	return nil
}
