package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/filter"
)

func watch(cfg *WatchConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Watch.Parse(cc, args)
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

	since := st.CurrentVersion()
	if cfg.Since != "" {
		since, err = blocktree.ParseVersion(cfg.Since)
		if err != nil {
			return fmt.Errorf("%w: bad since token: %v", cli.ErrUsage, err)
		}
	}
	backlog, watcher, err := st.WatchChangesSince(since)
	if err != nil {
		return err
	}
	defer watcher.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := printChanges(cc.Out, st, backlog, flt); err != nil {
		return err
	}
	for {
		select {
		case <-sigCh:
			return nil
		case <-watcher.Failed():
			return fmt.Errorf("watch failed: consumer too slow")
		case n, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if err := printChanges(cc.Out, st, n.Changes, flt); err != nil {
				return err
			}
		}
	}
}

func printChanges(w io.Writer, st blocktree.Store, changes []blocktree.BlockChange, flt *filter.Filter) error {
	for _, ch := range changes {
		if flt != nil && ch.Kind != blocktree.ChangeDeleted && ch.Data != nil {
			// Depth is best effort: the block may have moved since
			// the change was committed.
			depth := 0
			if chain, err := st.AncestorChain(ch.ID); err == nil {
				depth = len(chain)
			}
			ok, err := flt.Match(ch.Data, depth)
			if err != nil || !ok {
				continue
			}
		}
		data, err := json.Marshal(ch)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}
