package hashtree

import (
	"math"
	"math/bits"

	"lukechampine.com/blake3/guts"
)

const (
	// ChunkSize is the leaf size in bytes. The final chunk may be shorter.
	ChunkSize = guts.ChunkSize
	// HashSize is the size of a chaining value.
	HashSize = 32
	// NodeSize is the size of one outboard entry: left and right child hashes.
	NodeSize = 2 * HashSize
	// HeaderSize is the little-endian content length prefix of an outboard.
	HeaderSize = 8
)

// ChunkCount returns ceil(size / ChunkSize).
func ChunkCount(size uint64) uint64 {
	n := size / ChunkSize
	if size%ChunkSize != 0 {
		n++
	}
	return n
}

// ChunkLen returns the length of chunk index in content of the given size.
func ChunkLen(index, size uint64) (uint32, error) {
	total := ChunkCount(size)
	if index >= total {
		return 0, ErrChunkIndex
	}
	if index < total-1 {
		return ChunkSize, nil
	}
	return uint32(size - index*ChunkSize), nil
}

// LeftChunks returns how many of k chunks belong to the left subtree: the
// largest power of two strictly less than k. It returns 0 for k <= 1.
func LeftChunks(k uint64) uint64 {
	if k <= 1 {
		return 0
	}
	return 1 << (bits.Len64(k-1) - 1)
}

// nodesSize returns the byte length of the pre-order node entries for a tree
// of total chunks.
func nodesSize(total uint64) (uint64, error) {
	if total <= 1 {
		return 0, nil
	}
	hi, lo := bits.Mul64(total-1, NodeSize)
	if hi != 0 || lo > math.MaxInt64-HeaderSize {
		return 0, ErrOverflow
	}
	return lo, nil
}

// OutboardSize returns the exact outboard length for content of size bytes.
func OutboardSize(size uint64) (uint64, error) {
	n, err := nodesSize(ChunkCount(size))
	if err != nil {
		return 0, err
	}
	return HeaderSize + n, nil
}

// Depth returns the number of path steps from chunk index to the root.
func Depth(index, total uint64) int {
	return len(Sides(index, total))
}

// Sides returns, from leaf to root, the side each node on the path from chunk
// index occupies under its parent.
func Sides(index, total uint64) []Side {
	var sides []Side
	var start uint64
	for k := total; k > 1; {
		l := LeftChunks(k)
		if index < start+l {
			sides = append(sides, Left)
			k = l
		} else {
			sides = append(sides, Right)
			start += l
			k -= l
		}
	}
	for i, j := 0, len(sides)-1; i < j; i, j = i+1, j-1 {
		sides[i], sides[j] = sides[j], sides[i]
	}
	return sides
}
