package s3store

import (
	"context"
	"time"

	"xdao.co/pora/storage"
	"xdao.co/pora/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "s3",
		Description: "S3 buckets for content, outboards (obao/<root>) and deal metadata",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Options: []registry.Option{
			{Name: "bucket", Usage: "outboard bucket"},
			{Name: "content-bucket", Usage: "content bucket"},
			{Name: "meta-bucket", Usage: "deal metadata bucket"},
			{Name: "region", Usage: "AWS region (default from environment)"},
			{Name: "endpoint", Usage: "S3-compatible endpoint URL"},
			{Name: "prefix", Usage: "object key prefix"},
		},
		Open: func(opts map[string]string) (storage.Backend, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			client, err := NewClient(ctx, ClientOptions{Region: opts["region"], Endpoint: opts["endpoint"]})
			if err != nil {
				return storage.Backend{}, err
			}
			return open(client, opts)
		},
	})
}

func open(api API, opts map[string]string) (storage.Backend, error) {
	s, err := New(api, Options{
		ContentBucket:  opts["content-bucket"],
		OutboardBucket: opts["bucket"],
		MetaBucket:     opts["meta-bucket"],
		Prefix:         opts["prefix"],
	})
	if err != nil {
		return storage.Backend{}, err
	}
	var b storage.Backend
	if opts["content-bucket"] != "" {
		b.Content = s
	}
	if opts["bucket"] != "" {
		b.Outboards = s
	}
	if opts["meta-bucket"] != "" {
		b.Commitments = s
	}
	return b, nil
}
