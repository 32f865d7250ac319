package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"xdao.co/pora/challenge"
	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/oracle"
	"xdao.co/pora/storage/registry"
)

func cmdAudit(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var req model.Request
	var requestPath string
	var rounds int
	var seed uint64

	fs.StringVar(&req.ContentKey, "content-key", "", "Content key (CID) of the audited object")
	fs.StringVar(&req.RootHash, "root", "", "Committed root hash (64 hex chars)")
	fs.Uint64Var(&req.Size, "size", 0, "Committed content size in bytes")
	fs.StringVar(&req.DealID, "deal", "", "Deal id to resolve from the commitment store")
	fs.StringVar(&requestPath, "request", "", "Read a JSON request from this file (- for stdin)")
	fs.IntVar(&rounds, "rounds", 0, "Independent challenges per audit (overrides config)")
	fs.Uint64Var(&seed, "seed", 0, "Deterministic challenge seed (0 uses a random source)")
	sf := addStoreFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if requestPath == "" && req.DealID == "" && (req.ContentKey == "" || req.RootHash == "") {
		fmt.Fprintln(errOut, "missing request: use --content-key/--root/--size, --deal or --request")
		return 2
	}

	cfg, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 2
	}
	if rounds > 0 {
		cfg.Audit.Rounds = rounds
	}
	if err := sf.initLog(cfg, errOut); err != nil {
		fmt.Fprintf(errOut, "log: %v\n", err)
		return 2
	}

	stores, err := cfg.Open(registry.UsageCLI)
	if err != nil {
		fmt.Fprintf(errOut, "open backends: %v\n", err)
		return 1
	}
	defer stores.Close()
	if err := stores.RequireAuditStores(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	signer, err := cfg.Signer()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	coord := &oracle.Coordinator{
		Content:     stores.Content,
		Proofs:      stores.Proofs,
		Parallelism: cfg.Audit.Parallelism,
		Logger:      slog.Default(),
	}
	if seed != 0 {
		coord.Random = challenge.NewSeededSource(seed)
	} else {
		src, err := challenge.NewSource()
		if err != nil {
			fmt.Fprintf(errOut, "random source: %v\n", err)
			return 1
		}
		coord.Random = src
	}
	h := &oracle.Handler{
		Coordinator: coord,
		Commitments: stores.Commitments,
		Signer:      signer,
		Rounds:      cfg.Audit.Rounds,
		Logger:      slog.Default(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Audit.TimeoutDuration())
	defer cancel()

	var resp model.Response
	if requestPath != "" {
		b, err := readInput(requestPath, in)
		if err != nil {
			fmt.Fprintf(errOut, "read request: %v\n", err)
			return 1
		}
		if resp, err = h.ServeJSON(ctx, bytes.NewReader(b), out); err != nil {
			fmt.Fprintf(errOut, "write response: %v\n", err)
			return 1
		}
	} else {
		resp = h.Handle(ctx, req)
		if err := writeJSON(out, resp); err != nil {
			fmt.Fprintf(errOut, "write response: %v\n", err)
			return 1
		}
	}
	if resp.Verified == nil || !*resp.Verified {
		return 1
	}
	return 0
}

func storeOutboard(sf *storeFlags, root hashtree.Hash, ob []byte, out io.Writer, errOut io.Writer) int {
	stores, code := openProofs(sf, errOut)
	if code != 0 {
		return code
	}
	defer stores.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if stores.Replicas != nil {
		names, err := stores.Replicas.PutAll(ctx, root, ob)
		for _, n := range names {
			fmt.Fprintf(out, "stored: %s\n", n)
		}
		if err != nil {
			fmt.Fprintf(errOut, "store outboard: %v\n", err)
			return 1
		}
		return 0
	}
	if err := stores.Proofs.PutOutboard(ctx, root, ob); err != nil {
		fmt.Fprintf(errOut, "store outboard: %v\n", err)
		return 1
	}
	slog.Info("stored outboard", "root", root.String(), "bytes", len(ob))
	return 0
}
