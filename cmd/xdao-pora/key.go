package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"

	"xdao.co/pora/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-pora key: local receipt signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-pora key init --name <name> [--seed-hex <64hex>] [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  xdao-pora key derive --from <name> --role <role> [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  xdao-pora key list")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "All subcommands accept --dir to use a key store other than ~/.xdao/pora/keys.")
}

func openKeyStore(dir string, errOut io.Writer) (*keys.KeyStore, bool) {
	ks, err := keys.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

// publicKey renders the public key a seed yields under sigAlg.
func publicKey(sigAlg string, seed []byte) (string, error) {
	s, err := keys.NewSigner(sigAlg, seed, "sha256")
	if err != nil {
		return "", err
	}
	return s.PublicKey(), nil
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var dir string
	var name string
	var seedHex string
	var alg string
	var force bool

	fs.StringVar(&dir, "dir", "", "Key store directory")
	fs.StringVar(&name, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional seed as 64 hex chars (for reproducible setups)")
	fs.StringVar(&alg, "alg", "ed25519", "Signature algorithm used to display the public key")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, keys.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}
	pub, err := publicKey(alg, seed)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --alg: %v\n", err)
		return 2
	}

	ks, ok := openKeyStore(dir, errOut)
	if !ok {
		return 1
	}
	path, err := ks.InitRoot(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var dir string
	var from string
	var role string
	var alg string
	var force bool

	fs.StringVar(&dir, "dir", "", "Key store directory")
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. receipts)")
	fs.StringVar(&alg, "alg", "ed25519", "Signature algorithm used to display the public key")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, ok := openKeyStore(dir, errOut)
	if !ok {
		return 1
	}
	path, err := ks.DeriveRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	seed, err := ks.LoadSeed(keys.SeedSource{Name: from, Role: role})
	if err != nil {
		fmt.Fprintf(errOut, "read role key: %v\n", err)
		return 1
	}
	pub, err := publicKey(alg, seed)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --alg: %v\n", err)
		return 2
	}
	fmt.Fprintf(out, "Created role key: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var dir string
	fs.StringVar(&dir, "dir", "", "Key store directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, ok := openKeyStore(dir, errOut)
	if !ok {
		return 1
	}
	entries, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Name)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}
