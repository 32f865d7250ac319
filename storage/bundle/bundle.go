// Package bundle moves outboards between proof stores as deterministic TAR
// archives. Every outboard is checked against the root it is filed under on
// both export and import.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

// ErrRootMismatch reports an outboard whose top node does not hash to the
// root it is filed under.
var ErrRootMismatch = errors.New("bundle: outboard does not match its root")

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex adds index.json listing each root with its content size.
	IncludeIndex bool
}

// Export writes a TAR bundle holding the outboards of roots, read from store.
//
// The bundle bytes are deterministic: entry order is lexicographic by root and
// TAR headers are normalized.
func Export(ctx context.Context, w io.Writer, store storage.OutboardStore, roots []hashtree.Hash, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("bundle: nil outboard store")
	}

	uniq := make(map[string]hashtree.Hash, len(roots))
	for _, r := range roots {
		if r.IsZero() {
			return fmt.Errorf("bundle: zero root")
		}
		uniq[r.String()] = r
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(names))
	for _, s := range names {
		buf, err := store.GetOutboard(ctx, uniq[s])
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		size, err := check(uniq[s], buf)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		if err := writeFile(tw, "obao/"+s, buf); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{Root: s, Size: size, Bytes: len(buf)})
	}

	if opts.IncludeIndex {
		b, err := json.Marshal(indexJSON{Version: FormatVersion, Format: "bao-outboard", Outboards: entries})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips entries other than outboards and the index.
	// The default is to fail on them.
	IgnoreUnknown bool
}

// Import reads a bundle from r and writes its outboards to store. It returns
// the roots written, in bundle order.
func Import(ctx context.Context, r io.Reader, store storage.OutboardStore) ([]hashtree.Hash, error) {
	return ImportWithOptions(ctx, r, store, ImportOptions{})
}

// ImportWithOptions is Import with explicit options.
func ImportWithOptions(ctx context.Context, r io.Reader, store storage.OutboardStore, opts ImportOptions) ([]hashtree.Hash, error) {
	if store == nil {
		return nil, fmt.Errorf("bundle: nil outboard store")
	}

	tr := tar.NewReader(r)
	seen := map[hashtree.Hash]struct{}{}
	var imported []hashtree.Hash
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			continue
		}
		hexRoot, ok := strings.CutPrefix(name, "obao/")
		if !ok {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		root, err := hashtree.ParseHash(hexRoot)
		if err != nil {
			return imported, fmt.Errorf("bundle: entry %s: %w", name, err)
		}
		if _, dup := seen[root]; dup {
			return imported, fmt.Errorf("bundle: duplicate outboard entry: %s", hexRoot)
		}
		seen[root] = struct{}{}

		buf, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		if _, err := check(root, buf); err != nil {
			return imported, fmt.Errorf("bundle: %s: %w", hexRoot, err)
		}
		if err := store.PutOutboard(ctx, root, buf); err != nil {
			return imported, fmt.Errorf("bundle: %s: %w", hexRoot, err)
		}
		imported = append(imported, root)
	}
}

// check validates buf as a well-formed outboard for root and returns the
// content size its header records. Outboards of a single chunk carry no node
// to compare and are checked for shape only.
func check(root hashtree.Hash, buf []byte) (uint64, error) {
	size, err := hashtree.DecodeHeader(buf)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("%w: empty content", hashtree.ErrCorruptOutboard)
	}
	ob, err := hashtree.ParseOutboard(buf, size)
	if err != nil {
		return 0, err
	}
	if got, ok := ob.Root(); ok && got != root {
		return 0, ErrRootMismatch
	}
	return size, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	Format    string       `json:"format"`
	Outboards []indexEntry `json:"outboards"`
}

type indexEntry struct {
	Root  string `json:"root"`
	Size  uint64 `json:"size"`
	Bytes int    `json:"bytes"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
