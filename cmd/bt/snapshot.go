package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scott-cotton/cli"

	"github.com/blocktree-io/blocktree/snapshot"
)

// snapshotFormat resolves the snapshot codec from a -format flag,
// falling back to the extension of path.
func snapshotFormat(flag, path string) (string, error) {
	switch flag {
	case "json", "yaml":
		return flag, nil
	case "":
	default:
		return "", fmt.Errorf("%w: unknown format %q", cli.ErrUsage, flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "json", nil
	}
}

func encodeDoc(doc *snapshot.Doc, format string) ([]byte, error) {
	if format == "yaml" {
		return snapshot.EncodeYAML(doc)
	}
	return snapshot.Encode(doc)
}

func readDoc(path, formatFlag string) (*snapshot.Doc, error) {
	format, err := snapshotFormat(formatFlag, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc *snapshot.Doc
	if format == "yaml" {
		doc, err = snapshot.DecodeYAML(data)
	} else {
		doc, err = snapshot.Decode(data)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return doc, nil
}

func export(cfg *ExportConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Export.Parse(cc, args)
	if err != nil {
		return err
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	doc, err := snapshot.Export(st)
	if err != nil {
		return err
	}
	format, err := snapshotFormat(cfg.Format, cfg.Out)
	if err != nil {
		return err
	}
	data, err := encodeDoc(doc, format)
	if err != nil {
		return err
	}
	_, err = cc.Out.Write(data)
	return err
}

func importDoc(cfg *ImportConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Import.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: import takes one argument, a snapshot file", cli.ErrUsage)
	}
	doc, err := readDoc(args[0], cfg.Format)
	if err != nil {
		return err
	}
	st, err := cfg.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	if err := snapshot.Import(st, doc); err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "imported %d blocks\n", doc.Len())
	return nil
}

func diff(cfg *DiffConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Diff.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: diff takes two snapshot files", cli.ErrUsage)
	}
	a, err := readDoc(args[0], cfg.Format)
	if err != nil {
		return err
	}
	b, err := readDoc(args[1], cfg.Format)
	if err != nil {
		return err
	}
	patch, err := snapshot.Diff(a, b)
	if err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "%s\n", patch)
	return nil
}

func patch(cfg *PatchConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Patch.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: patch takes two arguments: <snapshot> <patchfile>", cli.ErrUsage)
	}
	doc, err := readDoc(args[0], cfg.Format)
	if err != nil {
		return err
	}
	patchData, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	patched, err := snapshot.ApplyPatch(doc, patchData, cfg.RFC6902)
	if err != nil {
		return err
	}
	format, err := snapshotFormat(cfg.Format, args[0])
	if err != nil {
		return err
	}
	data, err := encodeDoc(patched, format)
	if err != nil {
		return err
	}
	_, err = cc.Out.Write(data)
	return err
}
