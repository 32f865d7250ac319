package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"xdao.co/pora/config"
	"xdao.co/pora/hashtree"
	"xdao.co/pora/storage/bundle"
	"xdao.co/pora/storage/registry"
)

func cmdBundle(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-pora bundle export|import ...")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], in, out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func openProofs(sf *storeFlags, errOut io.Writer) (*config.Stores, int) {
	cfg, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return nil, 2
	}
	if err := sf.initLog(cfg, errOut); err != nil {
		fmt.Fprintf(errOut, "log: %v\n", err)
		return nil, 2
	}
	stores, err := cfg.Open(registry.UsageCLI)
	if err != nil {
		fmt.Fprintf(errOut, "open backends: %v\n", err)
		return nil, 1
	}
	if stores.Proofs == nil {
		_ = stores.Close()
		fmt.Fprintln(errOut, "no backend provides outboards")
		return nil, 2
	}
	return stores, 0
}

func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var outPath string
	var index bool
	fs.StringVar(&outPath, "out", "", "Write the bundle to this file (default stdout)")
	fs.BoolVar(&index, "index", true, "Include index.json")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-pora bundle export [--out <file>] <root>...")
		return 2
	}
	roots := make([]hashtree.Hash, 0, fs.NArg())
	for _, a := range fs.Args() {
		r, err := hashtree.ParseHash(a)
		if err != nil {
			fmt.Fprintf(errOut, "invalid root %q: %v\n", a, err)
			return 2
		}
		roots = append(roots, r)
	}

	stores, code := openProofs(sf, errOut)
	if code != 0 {
		return code
	}
	defer stores.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var buf bytes.Buffer
	if err := bundle.Export(ctx, &buf, stores.Proofs, roots, bundle.ExportOptions{IncludeIndex: index}); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		if _, err := out.Write(buf.Bytes()); err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
		return 0
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(errOut, "write bundle: %v\n", err)
		return 1
	}
	return 0
}

func cmdBundleImport(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ignoreUnknown bool
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip entries that are not outboards")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-pora bundle import <file|->")
		return 2
	}
	b, err := readInput(fs.Arg(0), in)
	if err != nil {
		fmt.Fprintf(errOut, "read bundle: %v\n", err)
		return 1
	}

	stores, code := openProofs(sf, errOut)
	if code != 0 {
		return code
	}
	defer stores.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	roots, err := bundle.ImportWithOptions(ctx, bytes.NewReader(b), stores.Proofs, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
	for _, r := range roots {
		fmt.Fprintf(out, "imported: %s\n", r)
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
