// Package verifier checks a retrieved chunk against a committed root using
// its verification path. It performs no I/O.
package verifier

import (
	"errors"
	"fmt"

	"xdao.co/pora/hashtree"
)

var (
	ErrSizeMismatch = errors.New("verifier: chunk length does not match its position")
	ErrInvalidSlice = errors.New("verifier: slice position is inconsistent")
)

// Slice is one retrieved chunk plus the path that binds it to a root.
type Slice struct {
	Bytes       []byte
	Index       uint64
	TotalChunks uint64
	Size        uint64
	Path        hashtree.Path
}

// Verify reports whether s hashes up to root. A tampered chunk or path yields
// (false, nil). Errors are reserved for slices whose shape cannot belong to
// content of s.Size bytes at all.
func Verify(s Slice, root hashtree.Hash) (bool, error) {
	if s.Size == 0 || s.TotalChunks != hashtree.ChunkCount(s.Size) {
		return false, fmt.Errorf("%w: %d chunks for %d bytes", ErrInvalidSlice, s.TotalChunks, s.Size)
	}
	want, err := hashtree.ChunkLen(s.Index, s.Size)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSlice, err)
	}
	if uint64(len(s.Bytes)) != uint64(want) {
		return false, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(s.Bytes), want)
	}

	sides := hashtree.Sides(s.Index, s.TotalChunks)
	if len(sides) != len(s.Path) {
		return false, nil
	}
	for i, step := range s.Path {
		if step.Side != sides[i] {
			return false, nil
		}
	}
	return Fold(s.Bytes, s.Index, s.Path) == root, nil
}

// Fold hashes chunk at index and combines it with each path step in order.
// The root flag is applied to the final combination only, or to the leaf when
// the path is empty.
func Fold(chunk []byte, index uint64, path hashtree.Path) hashtree.Hash {
	cur := hashtree.HashLeaf(chunk, index, len(path) == 0)
	for i, step := range path {
		last := i == len(path)-1
		if step.Side == hashtree.Left {
			cur = hashtree.HashParent(cur, step.Sibling, last)
		} else {
			cur = hashtree.HashParent(step.Sibling, cur, last)
		}
	}
	return cur
}
