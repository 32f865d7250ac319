// Package challenge selects the chunk-aligned byte range an audit asks a
// holder to produce.
package challenge

import (
	crand "crypto/rand"
	"errors"
	"math/rand/v2"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
)

var ErrEmptyContent = errors.New("challenge: content size is zero")

// RandomSource supplies uniform integers in [0, n). *rand.Rand from
// math/rand/v2 satisfies it.
type RandomSource interface {
	Uint64N(n uint64) uint64
}

// NewSource returns a ChaCha8 generator seeded from crypto/rand. Holders must
// not be able to predict which chunk is asked for next.
func NewSource() (*rand.Rand, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, err
	}
	return rand.New(rand.NewChaCha8(seed)), nil
}

// NewSeededSource returns a deterministic generator for tests and replays.
func NewSeededSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Select picks one chunk uniformly from content of the given size.
func Select(size uint64, rnd RandomSource) (model.Challenge, error) {
	if size == 0 {
		return model.Challenge{}, model.WrapError(model.KindInvalidInput, "cannot challenge empty content", ErrEmptyContent)
	}
	total := hashtree.ChunkCount(size)
	index := rnd.Uint64N(total)
	length, err := hashtree.ChunkLen(index, size)
	if err != nil {
		// Only reachable with a RandomSource that ignores its bound.
		return model.Challenge{}, model.WrapError(model.KindInternalOverflow, "random source out of range", err)
	}
	return model.Challenge{
		ChunkIndex:  index,
		TotalChunks: total,
		Offset:      index * hashtree.ChunkSize,
		Length:      length,
	}, nil
}
