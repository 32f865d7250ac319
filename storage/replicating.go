package storage

import (
	"context"
	"fmt"
	"io"

	"xdao.co/pora/hashtree"
)

// NamedOutboardStore associates an OutboardStore with a stable backend name.
//
// This is used for multi-backend ingestion where callers need per-backend
// results for reporting.
type NamedOutboardStore struct {
	Name  string
	Store OutboardStore
}

// ReplicatingOutboardStore writes outboards to all configured stores.
//
// Reads fall back in order. Writes go to every store and stop at the first
// failure. The buffer is checked to be a well-formed outboard before any
// store sees it.
type ReplicatingOutboardStore struct {
	Stores []NamedOutboardStore
}

var (
	_ OutboardStore  = ReplicatingOutboardStore{}
	_ OutboardReader = ReplicatingOutboardStore{}
)

// PutAll writes buf to all stores and returns the names written, in order.
func (r ReplicatingOutboardStore) PutAll(ctx context.Context, root hashtree.Hash, buf []byte) ([]string, error) {
	size, err := hashtree.DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if _, err := hashtree.ParseOutboard(buf, size); err != nil {
		return nil, err
	}
	if len(r.Stores) == 0 {
		return nil, fmt.Errorf("storage: ReplicatingOutboardStore has no stores")
	}

	written := make([]string, 0, len(r.Stores))
	for _, s := range r.Stores {
		if s.Store == nil {
			return written, fmt.Errorf("storage: nil outboard store for backend %q", s.Name)
		}
		if err := s.Store.PutOutboard(ctx, root, buf); err != nil {
			return written, fmt.Errorf("storage: backend %q: %w", s.Name, err)
		}
		written = append(written, s.Name)
	}
	return written, nil
}

func (r ReplicatingOutboardStore) PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error {
	_, err := r.PutAll(ctx, root, buf)
	return err
}

func (r ReplicatingOutboardStore) GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error) {
	for _, s := range r.Stores {
		if s.Store == nil {
			continue
		}
		b, err := s.Store.GetOutboard(ctx, root)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// OpenOutboard serves ranged reads from the first store holding root.
func (r ReplicatingOutboardStore) OpenOutboard(ctx context.Context, root hashtree.Hash) (io.ReaderAt, int64, error) {
	for _, s := range r.Stores {
		if s.Store == nil {
			continue
		}
		ra, n, err := OpenOutboard(ctx, s.Store, root)
		if err == nil {
			return ra, n, nil
		}
		if !IsNotFound(err) {
			return nil, 0, err
		}
	}
	return nil, 0, ErrNotFound
}
