package storage

import (
	"context"
	"io"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
)

// RangeFetcher retrieves byte ranges of stored content.
//
// Contract:
// - FetchRange MUST return ErrNotFound when the content key is unknown.
// - A range running past the end of the content is returned short, not padded.
// - Implementations MUST be safe for concurrent use.
type RangeFetcher interface {
	FetchRange(ctx context.Context, contentKey string, offset uint64, length uint32) ([]byte, error)
}

// OutboardStore holds outboard buffers keyed by the root they commit to.
//
// Contract:
//   - GetOutboard MUST return ErrNotFound when no outboard exists for root.
//   - PutOutboard MUST be idempotent; an existing outboard with different bytes
//     is ErrImmutable.
type OutboardStore interface {
	GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error)
	PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error
}

// OutboardReader is implemented by outboard stores that can serve ranged
// reads, so an audit reads only the nodes on one path.
type OutboardReader interface {
	// OpenOutboard returns a reader over the whole outboard and its length.
	// Reads use ctx. If the reader implements io.Closer the caller closes it.
	OpenOutboard(ctx context.Context, root hashtree.Hash) (io.ReaderAt, int64, error)
}

// CommitmentStore resolves deal identifiers to ingestion-time metadata.
type CommitmentStore interface {
	GetCommitment(ctx context.Context, dealID string) (model.Deal, error)
}

// Backend is an opened storage backend. Any of its parts may be nil when the
// backend does not provide that role.
type Backend struct {
	Content     RangeFetcher
	Outboards   OutboardStore
	Commitments CommitmentStore

	// Close releases backend resources. It may be nil.
	Close func() error
}

// CloseBackend calls b.Close when set.
func CloseBackend(b Backend) error {
	if b.Close == nil {
		return nil
	}
	return b.Close()
}

// ReadRange reads length bytes at offset from r, returning a short slice at
// end of input rather than an error. Backends serving files and objects share
// it.
func ReadRange(r io.ReaderAt, size int64, offset uint64, length uint32) ([]byte, error) {
	if size < 0 || offset >= uint64(size) {
		return []byte{}, nil
	}
	n := uint64(length)
	if rem := uint64(size) - offset; n > rem {
		n = rem
	}
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:got], nil
}
