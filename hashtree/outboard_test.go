package hashtree

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"lukechampine.com/blake3/bao"
)

// fold recomputes the root from a leaf and its path.
func fold(leaf Hash, path Path) Hash {
	cur := leaf
	for i, s := range path {
		isRoot := i == len(path)-1
		if s.Side == Left {
			cur = HashParent(cur, s.Sibling, isRoot)
		} else {
			cur = HashParent(s.Sibling, cur, isRoot)
		}
	}
	return cur
}

func TestExtractPathEveryChunk(t *testing.T) {
	for _, n := range testSizes {
		if n == 0 {
			continue
		}
		data := testContent(n)
		buf, root := Encode(data)
		ob, err := ParseOutboard(buf, uint64(n))
		if err != nil {
			t.Fatalf("size %d: ParseOutboard: %v", n, err)
		}
		total := ChunkCount(uint64(n))
		for i := uint64(0); i < total; i++ {
			path, err := ob.Path(i)
			if err != nil {
				t.Fatalf("size %d chunk %d: Path: %v", n, i, err)
			}
			if len(path) != Depth(i, total) {
				t.Fatalf("size %d chunk %d: path length %d, depth %d", n, i, len(path), Depth(i, total))
			}
			end := min((i+1)*ChunkSize, uint64(n))
			chunk := data[i*ChunkSize : end]
			leaf := HashLeaf(chunk, i, total == 1)
			var got Hash
			if len(path) == 0 {
				got = leaf
			} else {
				got = fold(leaf, path)
			}
			if got != root {
				t.Fatalf("size %d chunk %d: folded root %s, want %s", n, i, got, root)
			}
			// Cross-check the chunk against the reference Bao verifier.
			if !bao.VerifyChunk(chunk, buf, 0, i*ChunkSize, root) {
				t.Fatalf("size %d chunk %d: bao.VerifyChunk rejected", n, i)
			}
		}
	}
}

func TestSingleChunkEmptyPath(t *testing.T) {
	data := testContent(700)
	buf, root := Encode(data)
	if len(buf) != HeaderSize {
		t.Fatalf("single chunk outboard length %d, want %d", len(buf), HeaderSize)
	}
	ob, err := ParseOutboard(buf, 700)
	if err != nil {
		t.Fatalf("ParseOutboard: %v", err)
	}
	path, err := ob.Path(0)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if len(path) != 0 {
		t.Fatalf("path length %d, want 0", len(path))
	}
	if HashLeaf(data, 0, true) != root {
		t.Fatalf("root-flagged leaf does not equal root")
	}
}

func TestOutboardRoot(t *testing.T) {
	for _, n := range []int{1024, 1025, 2048, 5000, 65537} {
		buf, root := Encode(testContent(n))
		ob, err := ParseOutboard(buf, uint64(n))
		if err != nil {
			t.Fatalf("size %d: ParseOutboard: %v", n, err)
		}
		got, ok := ob.Root()
		if n <= ChunkSize {
			if ok {
				t.Fatalf("size %d: single chunk outboard reported a root", n)
			}
			continue
		}
		if !ok || got != root {
			t.Fatalf("size %d: Root() = %s, %v; want %s", n, got, ok, root)
		}
	}
}

func TestParseOutboardRejectsCorrupt(t *testing.T) {
	data := testContent(10000)
	buf, _ := Encode(data)

	if _, err := ParseOutboard(buf[:len(buf)-1], 10000); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("short buffer: got %v want ErrCorruptOutboard", err)
	}
	if _, err := ParseOutboard(append(append([]byte(nil), buf...), 0), 10000); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("long buffer: got %v want ErrCorruptOutboard", err)
	}
	if _, err := ParseOutboard(buf, 9999); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("header mismatch: got %v want ErrCorruptOutboard", err)
	}
	if _, err := ParseOutboard(buf[:3], 10000); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("truncated header: got %v want ErrCorruptOutboard", err)
	}
}

func TestExtractPathShortBuffer(t *testing.T) {
	data := testContent(10000)
	buf, _ := Encode(data)
	nodes := buf[HeaderSize : len(buf)-NodeSize]
	if _, err := ExtractPath(nodes, 9, ChunkCount(10000)); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("got %v want ErrCorruptOutboard", err)
	}
	// The ranged reader only fails when it touches a missing entry.
	if _, err := ReadPath(bytes.NewReader(nodes), 0, ChunkCount(10000)); err != nil {
		t.Fatalf("ReadPath for a path within the buffer: %v", err)
	}
	if _, err := ReadPath(bytes.NewReader(nodes), 9, ChunkCount(10000)); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("ReadPath past end: got %v want ErrCorruptOutboard", err)
	}
}

func TestExtractPathOverflow(t *testing.T) {
	_, err := ExtractPath(nil, 0, math.MaxUint64)
	if !errors.Is(err, ErrCorruptOutboard) || !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v want ErrCorruptOutboard and ErrOverflow", err)
	}
}

func TestExtractPathIndexOutOfRange(t *testing.T) {
	buf, _ := Encode(testContent(2500))
	if _, err := ExtractPath(buf[HeaderSize:], 3, 3); !errors.Is(err, ErrChunkIndex) {
		t.Fatalf("got %v want ErrChunkIndex", err)
	}
}

func TestReadOutboardPath(t *testing.T) {
	data := testContent(5000)
	buf, root := Encode(data)
	path, err := ReadOutboardPath(bytes.NewReader(buf), int64(len(buf)), 5000, 4)
	if err != nil {
		t.Fatalf("ReadOutboardPath: %v", err)
	}
	leaf := HashLeaf(data[4*ChunkSize:], 4, false)
	if fold(leaf, path) != root {
		t.Fatalf("ranged path does not reproduce root")
	}
	if _, err := ReadOutboardPath(bytes.NewReader(buf), int64(len(buf)), 5001, 4); !errors.Is(err, ErrCorruptOutboard) {
		t.Fatalf("size mismatch: got %v want ErrCorruptOutboard", err)
	}
}
