package hashtree

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3/guts"
)

// Hash is a 32-byte BLAKE3 chaining value or root digest.
type Hash [HashSize]byte

// ParseHash decodes a 64-character hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("hashtree: hash must be %d hex characters, got %d", 2*HashSize, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("hashtree: invalid hash hex: %w", err)
	}
	return h, nil
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashLeaf returns the chaining value of one chunk. index is the chunk's
// position in the content and feeds the BLAKE3 chunk counter. isRoot must be
// true only when the chunk is the entire content.
func HashLeaf(chunk []byte, index uint64, isRoot bool) Hash {
	n := guts.CompressChunk(chunk, &guts.IV, index, 0)
	if isRoot {
		n.Flags |= guts.FlagRoot
	}
	return fromWords(guts.ChainingValue(n))
}

// HashParent returns the chaining value of an internal node over its two
// children. isRoot must be true only for the top of the tree.
func HashParent(left, right Hash, isRoot bool) Hash {
	var flags uint32
	if isRoot {
		flags = guts.FlagRoot
	}
	n := guts.ParentNode(left.words(), right.words(), &guts.IV, flags)
	return fromWords(guts.ChainingValue(n))
}

// Root computes the tree root of data from scratch.
func Root(data []byte) Hash {
	return subtreeRoot(data, 0, true)
}

func subtreeRoot(data []byte, counter uint64, isRoot bool) Hash {
	if len(data) <= ChunkSize {
		return HashLeaf(data, counter, isRoot)
	}
	left := LeftChunks(ChunkCount(uint64(len(data))))
	split := left * ChunkSize
	l := subtreeRoot(data[:split], counter, false)
	r := subtreeRoot(data[split:], counter+left, false)
	return HashParent(l, r, isRoot)
}

func (h Hash) words() (w [8]uint32) {
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(h[4*i:])
	}
	return w
}

func fromWords(w [8]uint32) (h Hash) {
	for i, v := range w {
		binary.LittleEndian.PutUint32(h[4*i:], v)
	}
	return h
}
