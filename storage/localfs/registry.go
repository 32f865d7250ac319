package localfs

import (
	"xdao.co/pora/storage"
	"xdao.co/pora/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem content, outboards and deal metadata",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		Options: []registry.Option{
			{Name: "dir", Usage: "content directory"},
			{Name: "obao-dir", Usage: "outboard directory (files named by hex root)"},
			{Name: "meta-dir", Usage: "deal metadata directory (<deal id>.json)"},
		},
		Open: func(opts map[string]string) (storage.Backend, error) {
			s, err := New(Options{
				ContentDir:  opts["dir"],
				OutboardDir: opts["obao-dir"],
				MetaDir:     opts["meta-dir"],
			})
			if err != nil {
				return storage.Backend{}, err
			}
			var b storage.Backend
			if opts["dir"] != "" {
				b.Content = s
			}
			if opts["obao-dir"] != "" {
				b.Outboards = s
			}
			if opts["meta-dir"] != "" {
				b.Commitments = s
			}
			return b, nil
		},
	})
}
