package grpcstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/pora/storage"
	"xdao.co/pora/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "ProofStore gRPC client (talks to xdao-proofd)",
		Usage:       registry.UsageCLI,
		Options: []registry.Option{
			{Name: "target", Usage: "gRPC target host:port"},
			{Name: "dial-timeout", Default: "5s", Usage: "dial timeout"},
			{Name: "timeout", Default: "0s", Usage: "per-RPC timeout (0 disables)"},
			{Name: "max-msg-bytes", Default: "0", Usage: "max gRPC message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: func(opts map[string]string) (storage.Backend, error) {
			target := strings.TrimSpace(opts["target"])
			if target == "" {
				return storage.Backend{}, fmt.Errorf("grpc: missing target")
			}
			dialTimeout, err := time.ParseDuration(opts["dial-timeout"])
			if err != nil {
				return storage.Backend{}, fmt.Errorf("grpc: dial-timeout: %w", err)
			}
			timeout, err := time.ParseDuration(opts["timeout"])
			if err != nil {
				return storage.Backend{}, fmt.Errorf("grpc: timeout: %w", err)
			}
			maxMsg, err := strconv.Atoi(opts["max-msg-bytes"])
			if err != nil {
				return storage.Backend{}, fmt.Errorf("grpc: max-msg-bytes: %w", err)
			}
			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return storage.Backend{}, err
			}
			client.Timeout = timeout
			return storage.Backend{
				Content:     client,
				Outboards:   client,
				Commitments: client,
				Close:       client.Close,
			}, nil
		},
	})
}
