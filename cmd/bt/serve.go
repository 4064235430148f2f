package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/crdtstore"
	"github.com/blocktree-io/blocktree/memstore"
	"github.com/blocktree-io/blocktree/system/blockd/server"
)

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}

	// Start gops agent for debugging
	if err := agent.Listen(agent.Options{}); err != nil {
		fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
	}

	// Load configuration
	serverConfig := server.DefaultConfig()
	if cfg.ConfigFile != "" {
		serverConfig, err = server.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cfg.Addr != "" {
		serverConfig.Addr = cfg.Addr
	}
	if cfg.Backend != "" {
		serverConfig.Backend = cfg.Backend
	}
	if cfg.DataDir != "" {
		serverConfig.DataDir = cfg.DataDir
	}
	if err := serverConfig.Validate(); err != nil {
		return err
	}

	store, err := buildStore(serverConfig, cfg.Actor)
	if err != nil {
		return err
	}
	defer store.Close()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintf(cc.Out, "\nShutting down...\n")
		cancel()
	}()

	srv := server.New(&server.Spec{
		Config: serverConfig,
		Store:  store,
	})
	if err := srv.StartTCP(serverConfig.Addr); err != nil {
		return fmt.Errorf("failed to start TCP listener: %w", err)
	}
	fmt.Fprintf(cc.Out, "blockd listening on %s (%s backend)\n", srv.TCPAddr(), serverConfig.Backend)
	defer srv.StopTCP()

	<-ctx.Done()
	return nil
}

// buildStore constructs the configured backend.  A crdt data directory
// that does not hold a store yet is initialized in place.
func buildStore(cfg *server.Config, actor string) (blocktree.Store, error) {
	switch cfg.Backend {
	case server.BackendMemory:
		return memstore.New(), nil
	case server.BackendCRDT:
		st, err := crdtstore.Open(cfg.DataDir)
		if err == nil {
			return st, nil
		}
		var opts []crdtstore.Option
		if actor != "" {
			opts = append(opts, crdtstore.WithActor(actor))
		}
		if st, cerr := crdtstore.Create(cfg.DataDir, opts...); cerr == nil {
			return st, nil
		}
		return nil, err
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
