package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/pora/cidutil"
	"xdao.co/pora/config"
	"xdao.co/pora/hashtree"
	plog "xdao.co/pora/internal/log"
	"xdao.co/pora/model"
	"xdao.co/pora/receipt"
	"xdao.co/pora/storage/registry"

	_ "xdao.co/pora/storage/grpcstore"
	_ "xdao.co/pora/storage/ipfs"
	_ "xdao.co/pora/storage/localfs"
	_ "xdao.co/pora/storage/s3store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "audit":
		return cmdAudit(args[1:], in, out, errOut)
	case "encode":
		return cmdEncode(args[1:], out, errOut)
	case "root":
		return cmdRoot(args[1:], out, errOut)
	case "verify-receipt":
		return cmdVerifyReceipt(args[1:], in, out, errOut)
	case "backends":
		return cmdBackends(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], in, out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-pora: proof-of-retrievability oracle CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-pora audit [--config <pora.yaml>] [--backend <name> --<name>-<option> ...] (--content-key <key> --root <hex> --size <n> | --deal <id> | --request <file|->) [--rounds <n>] [--seed <n>]")
	fmt.Fprintln(w, "  xdao-pora encode [--out <file>] [--config <pora.yaml>] [--backend <name> ...] [--store] <file>")
	fmt.Fprintln(w, "  xdao-pora root <file>")
	fmt.Fprintln(w, "  xdao-pora verify-receipt <file|->")
	fmt.Fprintln(w, "  xdao-pora backends")
	fmt.Fprintln(w, "  xdao-pora bundle export [--out <file>] [--backend <name> ...] <root>...")
	fmt.Fprintln(w, "  xdao-pora bundle import [--ignore-unknown] [--backend <name> ...] <file|->")
	fmt.Fprintln(w, "  xdao-pora key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-pora key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-pora key list")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - audit prints the JSON response and exits 0 only when the holder verified")
	fmt.Fprintln(w, "  - encode prints the root hash and its CID; --store writes the outboard to the configured proof stores")
	fmt.Fprintln(w, "  - keys live under ~/.xdao/pora/keys/<name> (0600 seed files)")
}

// storeFlags selects backends from a config file, a single --backend, or
// both. Backend option flags override the file.
type storeFlags struct {
	config   string
	backend  string
	logLevel string
	logJSON  bool
	reg      *registry.Flags
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	sf := &storeFlags{}
	fs.StringVar(&sf.config, "config", "", "YAML config file")
	fs.StringVar(&sf.backend, "backend", "", "Storage backend to open in addition to the config ("+strings.Join(registry.Names(registry.UsageCLI), ", ")+")")
	fs.StringVar(&sf.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	fs.BoolVar(&sf.logJSON, "log-json", false, "Log JSON instead of text")
	sf.reg = registry.RegisterFlags(fs, registry.UsageCLI)
	return sf
}

func (sf *storeFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if sf.config != "" {
		var err error
		if cfg, err = config.Load(sf.config); err != nil {
			return nil, err
		}
	}
	found := false
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		b.Options = sf.reg.Options(b.Name, b.Options)
		if sf.backend != "" && b.Ident() == sf.backend {
			found = true
		}
	}
	if sf.backend != "" && !found {
		cfg.Backends = append(cfg.Backends, config.BackendConfig{
			Name:    sf.backend,
			Options: sf.reg.Options(sf.backend, nil),
		})
	}
	if sf.logLevel != "" {
		cfg.Log.Level = sf.logLevel
	}
	if sf.logJSON {
		cfg.Log.JSON = true
	}
	return cfg, cfg.Validate()
}

func (sf *storeFlags) initLog(cfg *config.Config, errOut io.Writer) error {
	_, err := plog.Init(plog.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Stderr: errOut})
	return err
}

func cmdEncode(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var outPath string
	var store bool
	fs.StringVar(&outPath, "out", "", "Write the outboard to this file")
	fs.BoolVar(&store, "store", false, "Write the outboard to the configured proof stores")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-pora encode [--out <file>] [--store] <file>")
		return 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read content: %v\n", err)
		return 1
	}
	if len(data) == 0 {
		fmt.Fprintln(errOut, "cannot encode empty content")
		return 1
	}
	ob, root := hashtree.Encode(data)

	if outPath != "" {
		if err := os.WriteFile(outPath, ob, 0o644); err != nil {
			fmt.Fprintf(errOut, "write outboard: %v\n", err)
			return 1
		}
	}
	if store {
		if code := storeOutboard(sf, root, ob, out, errOut); code != 0 {
			return code
		}
	}
	return printRoot(out, errOut, root, uint64(len(data)))
}

func cmdRoot(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("root", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-pora root <file>")
		return 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read content: %v\n", err)
		return 1
	}
	return printRoot(out, errOut, hashtree.Root(data), uint64(len(data)))
}

func printRoot(out io.Writer, errOut io.Writer, root hashtree.Hash, size uint64) int {
	id, err := cidutil.RootCID(root)
	if err != nil {
		fmt.Fprintf(errOut, "root cid: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "root: %s\n", root)
	fmt.Fprintf(out, "cid: %s\n", id)
	fmt.Fprintf(out, "size: %d\n", size)
	return 0
}

func cmdVerifyReceipt(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify-receipt", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-pora verify-receipt <file|->")
		return 2
	}
	b, err := readInput(fs.Arg(0), in)
	if err != nil {
		fmt.Fprintf(errOut, "read receipt: %v\n", err)
		return 1
	}

	// Accept either a bare signed receipt or a whole audit response.
	var resp model.Response
	if err := json.Unmarshal(b, &resp); err != nil {
		fmt.Fprintf(errOut, "invalid receipt JSON: %v\n", err)
		return 1
	}
	var sr model.SignedReceipt
	if resp.Receipt != nil {
		sr = *resp.Receipt
	} else if err := json.Unmarshal(b, &sr); err != nil {
		fmt.Fprintf(errOut, "invalid receipt JSON: %v\n", err)
		return 1
	}

	r, err := receipt.Verify(sr)
	if err != nil {
		fmt.Fprintf(errOut, "invalid receipt: %v\n", err)
		return 1
	}
	if err := writeJSON(out, r); err != nil {
		fmt.Fprintf(errOut, "write: %v\n", err)
		return 1
	}
	return 0
}

func cmdBackends(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("backends", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	for _, b := range registry.List(registry.UsageCLI) {
		fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		for _, o := range b.Options {
			def := ""
			if o.Default != "" {
				def = " (default " + o.Default + ")"
			}
			fmt.Fprintf(out, "  --%s-%s\t%s%s\n", b.Name, o.Name, o.Usage, def)
		}
	}
	return 0
}

func readInput(path string, in io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
