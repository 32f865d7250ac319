package ipfs

import (
	"fmt"
	"time"

	"xdao.co/pora/storage"
	"xdao.co/pora/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Content from a local Kubo repo via the ipfs CLI",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Options: []registry.Option{
			{Name: "bin", Default: "ipfs", Usage: "path to the ipfs binary"},
			{Name: "ipfs-path", Usage: "IPFS_PATH for the ipfs binary"},
		},
		Open: func(opts map[string]string) (storage.Backend, error) {
			return storage.Backend{Content: New(Options{Bin: opts["bin"], RepoPath: opts["ipfs-path"]})}, nil
		},
	})
	registry.MustRegister(registry.Backend{
		Name:        "kubo",
		Description: "Content from a Kubo node over its HTTP RPC API",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Options: []registry.Option{
			{Name: "url", Default: "http://127.0.0.1:5001", Usage: "Kubo RPC API address"},
			{Name: "timeout", Default: "30s", Usage: "per-request timeout"},
		},
		Open: func(opts map[string]string) (storage.Backend, error) {
			timeout, err := time.ParseDuration(opts["timeout"])
			if err != nil {
				return storage.Backend{}, fmt.Errorf("kubo: timeout: %w", err)
			}
			rpc, err := NewRPC(RPCOptions{URL: opts["url"], Timeout: timeout})
			if err != nil {
				return storage.Backend{}, err
			}
			return storage.Backend{Content: rpc}, nil
		},
	})
}
