package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/scott-cotton/cli"

	"github.com/mattn/go-isatty"

	"github.com/blocktree-io/blocktree/crdtstore"
)

type MainConfig struct {
	Store string `cli:"name=store desc='store directory (defaults to $BT_STORE)'"`

	Out      string
	CloseOut func() error

	Main *cli.Command
}

func (cfg *MainConfig) outOpt(cc *cli.Context, a string) (any, error) {
	cfg.Out = a
	if a == "-" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.Out, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	cc.Out = f
	cfg.CloseOut = f.Close
	return nil, nil
}

// storeDir resolves the store directory from the -store flag, falling
// back to the BT_STORE environment variable.
func (cfg *MainConfig) storeDir() (string, error) {
	if cfg.Store != "" {
		return cfg.Store, nil
	}
	if dir := os.Getenv("BT_STORE"); dir != "" {
		return dir, nil
	}
	return "", fmt.Errorf("%w: no store directory: use -store or set BT_STORE", cli.ErrUsage)
}

// openStore opens the replica in the resolved store directory.  The
// directory must already hold a store: see 'bt init'.
func (cfg *MainConfig) openStore() (*crdtstore.Store, error) {
	dir, err := cfg.storeDir()
	if err != nil {
		return nil, err
	}
	return crdtstore.Open(dir)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

type InitConfig struct {
	*MainConfig
	Actor string `cli:"name=actor desc='actor id for this replica (default random)'"`

	Init *cli.Command
}

type ServeConfig struct {
	*MainConfig
	ConfigFile string `cli:"name=config desc='configuration file (json)'"`
	Addr       string `cli:"name=addr desc='TCP listen address'"`
	Backend    string `cli:"name=backend desc='store backend: memory or crdt'"`
	DataDir    string `cli:"name=data desc='data directory for the crdt backend'"`
	Actor      string `cli:"name=actor desc='actor id when initializing a new crdt store'"`

	Serve *cli.Command
}

type CreateConfig struct {
	*MainConfig
	ID     string `cli:"name=id desc='block id (default generated)'"`
	Parent string `cli:"name=parent desc='parent block id (default root)'"`

	Create *cli.Command
}

type UpdateConfig struct {
	*MainConfig
	Update *cli.Command
}

type DeleteConfig struct {
	*MainConfig
	Delete *cli.Command
}

type MoveConfig struct {
	*MainConfig
	At int `cli:"name=at desc='sibling position, counted from 0 (default append)'"`

	Move *cli.Command
}

type GetConfig struct {
	*MainConfig
	Get *cli.Command
}

type LsConfig struct {
	*MainConfig
	Filter string `cli:"name=filter desc='filter expression'"`
	Depth  int    `cli:"name=depth desc='descend at most this many levels (default unlimited)'"`
	Color  bool   `cli:"name=color desc='force colored ids'"`

	Ls *cli.Command
}

func (cfg *LsConfig) colored(w io.Writer) bool {
	if cfg.Color {
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

type WatchConfig struct {
	*MainConfig
	Since  string `cli:"name=since desc='replay changes after this version token'"`
	Filter string `cli:"name=filter desc='filter expression'"`

	Watch *cli.Command
}

type ExportConfig struct {
	*MainConfig
	Format string `cli:"name=format desc='snapshot format: json or yaml'"`

	Export *cli.Command
}

type ImportConfig struct {
	*MainConfig
	Format string `cli:"name=format desc='snapshot format: json or yaml'"`

	Import *cli.Command
}

type DiffConfig struct {
	*MainConfig
	Format string `cli:"name=format desc='snapshot format: json or yaml'"`

	Diff *cli.Command
}

type PatchConfig struct {
	*MainConfig
	Format  string `cli:"name=format desc='snapshot format: json or yaml'"`
	RFC6902 bool   `cli:"name=rfc6902 desc='treat the patch file as RFC 6902 operations'"`

	Patch *cli.Command
}

type MergeConfig struct {
	*MainConfig
	Merge *cli.Command
}

type VersionConfig struct {
	*MainConfig
	Version *cli.Command
}
