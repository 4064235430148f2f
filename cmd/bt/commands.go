package main

import (
	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree"
)

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	sOpts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	opts := append(sOpts, &cli.Opt{
		Name:        "o",
		Description: "output file (default stdout)",
		Type:        cli.NamedFuncOpt(cfg.outOpt, "(filepath)"),
	})

	return cli.NewCommandAt(&cfg.Main, "bt").
		WithSynopsis("bt [opts] command [opts]").
		WithDescription("bt is a tool for working with block tree stores.").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return btMain(cfg, cc, args)
		}).
		WithSubs(
			InitCommand(cfg),
			CreateCommand(cfg),
			UpdateCommand(cfg),
			DeleteCommand(cfg),
			MoveCommand(cfg),
			GetCommand(cfg),
			LsCommand(cfg),
			WatchCommand(cfg),
			ExportCommand(cfg),
			ImportCommand(cfg),
			DiffCommand(cfg),
			PatchCommand(cfg),
			MergeCommand(cfg),
			VersionCommand(cfg),
			ServeCommand(cfg))
}

func InitCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &InitConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Init, "init").
		WithSynopsis("init [-actor <id>]").
		WithDescription("initialize a store in the store directory").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return initStore(cfg, cc, args)
		})
}

func CreateCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &CreateConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	cmd := cli.NewCommand("create").
		WithAliases("c", "cr").
		WithSynopsis("create [-id <id>] [-parent <id>] <content>").
		WithDescription("create a block").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return create(cfg, cc, args)
		})
	cfg.Create = cmd
	return cmd
}

func UpdateCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &UpdateConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("update").
		WithAliases("u", "up").
		WithSynopsis("update <id> <content>").
		WithDescription("replace the content of a block").
		WithRun(func(cc *cli.Context, args []string) error {
			return update(cfg, cc, args)
		})
	cfg.Update = cmd
	return cmd
}

func DeleteCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DeleteConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("delete").
		WithAliases("rm", "del").
		WithSynopsis("delete <id> [<id> ...]").
		WithDescription("delete blocks and their descendants").
		WithRun(func(cc *cli.Context, args []string) error {
			return deleteBlocks(cfg, cc, args)
		})
	cfg.Delete = cmd
	return cmd
}

func MoveCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &MoveConfig{MainConfig: mainCfg, At: blocktree.AtEnd}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	cmd := cli.NewCommand("move").
		WithAliases("mv").
		WithSynopsis("move [-at <pos>] <id> <newparent>").
		WithDescription("move a block under a new parent").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return move(cfg, cc, args)
		})
	cfg.Move = cmd
	return cmd
}

func GetCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &GetConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("get").
		WithAliases("g", "ge").
		WithSynopsis("get <id> [<id> ...]").
		WithDescription("print blocks as JSON").
		WithRun(func(cc *cli.Context, args []string) error {
			return get(cfg, cc, args)
		})
	cfg.Get = cmd
	return cmd
}

func LsCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &LsConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Ls, "ls").
		WithAliases("l", "list").
		WithSynopsis("ls [-depth <n>] [-filter <expr>]").
		WithDescription("list the block tree").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return ls(cfg, cc, args)
		})
}

func WatchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &WatchConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Watch, "watch").
		WithAliases("w", "wa").
		WithSynopsis("watch [-since <token>] [-filter <expr>]").
		WithDescription("print block changes as they happen").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return watch(cfg, cc, args)
		})
}

func ExportCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ExportConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Export, "export").
		WithAliases("ex").
		WithSynopsis("export [-format json|yaml]").
		WithDescription("write a snapshot of the tree").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return export(cfg, cc, args)
		})
}

func ImportCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ImportConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Import, "import").
		WithAliases("im").
		WithSynopsis("import [-format json|yaml] <snapshot>").
		WithDescription("load a snapshot into the store").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return importDoc(cfg, cc, args)
		})
}

func DiffCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &DiffConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	cmd := cli.NewCommand("diff").
		WithAliases("d", "di").
		WithSynopsis("diff <snapshot-a> <snapshot-b>").
		WithDescription("diff two snapshots as a merge patch").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return diff(cfg, cc, args)
		})
	cfg.Diff = cmd
	return cmd
}

func PatchCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &PatchConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	cmd := cli.NewCommand("patch").
		WithAliases("p", "pa").
		WithSynopsis("patch [-rfc6902] <snapshot> <patchfile>").
		WithDescription("apply a patch to a snapshot").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return patch(cfg, cc, args)
		})
	cfg.Patch = cmd
	return cmd
}

func MergeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &MergeConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("merge").
		WithAliases("m", "me").
		WithSynopsis("merge <srcdir>").
		WithDescription("pull updates from another replica into the store").
		WithRun(func(cc *cli.Context, args []string) error {
			return merge(cfg, cc, args)
		})
	cfg.Merge = cmd
	return cmd
}

func VersionCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &VersionConfig{MainConfig: mainCfg}
	cmd := cli.NewCommand("version").
		WithAliases("v", "ver").
		WithSynopsis("version").
		WithDescription("print the current version token of the store").
		WithRun(func(cc *cli.Context, args []string) error {
			return version(cfg, cc, args)
		})
	cfg.Version = cmd
	return cmd
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve [-config <file>] [-addr <addr>] [-backend memory|crdt] [-data <dir>]").
		WithDescription("run the blockd block tree server").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}
