package main

import (
	"fmt"

	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree/crdtstore"
)

func initStore(cfg *InitConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Init.Parse(cc, args)
	if err != nil {
		return err
	}
	dir, err := cfg.storeDir()
	if err != nil {
		return err
	}
	var opts []crdtstore.Option
	if cfg.Actor != "" {
		opts = append(opts, crdtstore.WithActor(cfg.Actor))
	}
	st, err := crdtstore.Create(dir, opts...)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Fprintf(cc.Out, "initialized store in %s (actor %s)\n", dir, st.Actor())
	return nil
}

func create(cfg *CreateConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Create.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: create takes one argument, the block content", cli.ErrUsage)
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	block, err := st.CreateBlock(cfg.ID, cfg.Parent, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "%s\n", block.ID)
	return nil
}

func update(cfg *UpdateConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Update.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: update takes two arguments: <id> <content>", cli.ErrUsage)
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	if _, err := st.UpdateBlock(args[0], args[1]); err != nil {
		return err
	}
	return nil
}

func deleteBlocks(cfg *DeleteConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Delete.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: delete takes at least one block id", cli.ErrUsage)
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return st.DeleteBlocks(args)
}

func move(cfg *MoveConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Move.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: move takes two arguments: <id> <newparent>", cli.ErrUsage)
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return st.MoveBlock(args[0], args[1], cfg.At)
}

func get(cfg *GetConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Get.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: get takes at least one block id", cli.ErrUsage)
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	blocks, err := st.GetBlocks(args)
	if err != nil {
		return err
	}
	return printJSON(cc.Out, blocks)
}

func version(cfg *VersionConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Version.Parse(cc, args)
	if err != nil {
		return err
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Fprintf(cc.Out, "%s\n", st.CurrentVersion())
	return nil
}
