package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
)

// MultiFetcher provides deterministic, ordered fallback across content
// backends. Only ErrNotFound moves on to the next backend; any other error is
// returned as is.
type MultiFetcher struct {
	Fetchers []RangeFetcher
}

func (m MultiFetcher) FetchRange(ctx context.Context, contentKey string, offset uint64, length uint32) ([]byte, error) {
	if len(m.Fetchers) == 0 {
		return nil, errors.New("storage: MultiFetcher has no backends")
	}
	for _, f := range m.Fetchers {
		b, err := f.FetchRange(ctx, contentKey, offset, length)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// MultiOutboardStore provides ordered fallback for reads across outboard
// stores. Put is defined to write only to the first store.
type MultiOutboardStore struct {
	Stores []OutboardStore
}

var (
	_ OutboardStore  = MultiOutboardStore{}
	_ OutboardReader = MultiOutboardStore{}
)

func (m MultiOutboardStore) GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error) {
	for _, s := range m.Stores {
		b, err := s.GetOutboard(ctx, root)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (m MultiOutboardStore) PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error {
	if len(m.Stores) == 0 {
		return errors.New("storage: MultiOutboardStore has no stores")
	}
	return m.Stores[0].PutOutboard(ctx, root, buf)
}

// OpenOutboard serves ranged reads from the first store holding root. Stores
// without ranged access are read in full.
func (m MultiOutboardStore) OpenOutboard(ctx context.Context, root hashtree.Hash) (io.ReaderAt, int64, error) {
	for _, s := range m.Stores {
		r, n, err := OpenOutboard(ctx, s, root)
		if err == nil {
			return r, n, nil
		}
		if !IsNotFound(err) {
			return nil, 0, err
		}
	}
	return nil, 0, ErrNotFound
}

// OpenOutboard opens a ranged reader on s when it supports one and falls back
// to fetching the whole buffer otherwise.
func OpenOutboard(ctx context.Context, s OutboardStore, root hashtree.Hash) (io.ReaderAt, int64, error) {
	if r, ok := s.(OutboardReader); ok {
		return r.OpenOutboard(ctx, root)
	}
	b, err := s.GetOutboard(ctx, root)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(b), int64(len(b)), nil
}

// MultiCommitmentStore looks deals up in order.
type MultiCommitmentStore struct {
	Stores []CommitmentStore
}

func (m MultiCommitmentStore) GetCommitment(ctx context.Context, dealID string) (model.Deal, error) {
	for _, s := range m.Stores {
		d, err := s.GetCommitment(ctx, dealID)
		if err == nil {
			return d, nil
		}
		if !IsNotFound(err) {
			return model.Deal{}, err
		}
	}
	return model.Deal{}, ErrNotFound
}
