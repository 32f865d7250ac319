package hashtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"lukechampine.com/blake3/bao"
)

// Side records which child of its parent a node on a verification path is.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// Step is one level of a verification path: the hash of the sibling that was
// not traversed and the side occupied by the node that was.
type Step struct {
	Sibling Hash
	Side    Side
}

// Path is a verification path ordered from the leaf up to the root.
type Path []Step

// Outboard is a parsed outboard buffer whose header and length have been
// checked against a declared content size.
type Outboard struct {
	Size  uint64
	Nodes []byte
}

// Encode builds the outboard encoding and root of data. It is the ingestion
// side of the format; audits only ever read outboards.
func Encode(data []byte) ([]byte, Hash) {
	buf, root := bao.EncodeBuf(data, 0, true)
	return buf, Hash(root)
}

// DecodeHeader returns the content length recorded in an outboard header.
func DecodeHeader(buf []byte) (uint64, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptOutboard, len(buf))
	}
	return binary.LittleEndian.Uint64(buf[:HeaderSize]), nil
}

// ParseOutboard validates buf as the outboard of content with the declared
// size. The header must record size and the buffer length must equal
// OutboardSize(size) exactly.
func ParseOutboard(buf []byte, size uint64) (Outboard, error) {
	want, err := OutboardSize(size)
	if err != nil {
		return Outboard{}, err
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		return Outboard{}, err
	}
	if got != size {
		return Outboard{}, fmt.Errorf("%w: header records %d bytes, declared size is %d", ErrCorruptOutboard, got, size)
	}
	if uint64(len(buf)) != want {
		return Outboard{}, fmt.Errorf("%w: length %d, want %d", ErrCorruptOutboard, len(buf), want)
	}
	return Outboard{Size: size, Nodes: buf[HeaderSize:]}, nil
}

// Root returns the root committed by the outboard's top node entry. An
// outboard of a single chunk has no entries and reports false.
func (o Outboard) Root() (Hash, bool) {
	if len(o.Nodes) < NodeSize {
		return Hash{}, false
	}
	var left, right Hash
	copy(left[:], o.Nodes[:HashSize])
	copy(right[:], o.Nodes[HashSize:NodeSize])
	return HashParent(left, right, true), true
}

// Path extracts the verification path for chunk index.
func (o Outboard) Path(index uint64) (Path, error) {
	return ExtractPath(o.Nodes, index, ChunkCount(o.Size))
}

// ExtractPath walks the pre-order node entries from the root down to chunk
// index and returns the sibling hashes it passed, ordered leaf to root. nodes
// excludes the header. A tree of one chunk yields an empty path.
func ExtractPath(nodes []byte, index, total uint64) (Path, error) {
	need, err := nodesSize(total)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptOutboard, err)
	}
	if uint64(len(nodes)) < need {
		return nil, fmt.Errorf("%w: %d node bytes for %d chunks, want %d", ErrCorruptOutboard, len(nodes), total, need)
	}
	return ReadPath(bytes.NewReader(nodes), index, total)
}

// ReadPath is the ranged form of ExtractPath: it reads only the entries on
// the path from r, which must be positioned at the first node entry.
func ReadPath(r io.ReaderAt, index, total uint64) (Path, error) {
	if index >= total {
		return nil, fmt.Errorf("%w: chunk %d of %d", ErrChunkIndex, index, total)
	}
	if _, err := nodesSize(total); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptOutboard, err)
	}

	var (
		path  Path
		entry [NodeSize]byte
		off   uint64
		start uint64
	)
	for k := total; k > 1; {
		n, err := r.ReadAt(entry[:], int64(off))
		if n < NodeSize {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("%w: node at offset %d: %w", ErrCorruptOutboard, off, err)
		}
		var left, right Hash
		copy(left[:], entry[:HashSize])
		copy(right[:], entry[HashSize:])

		l := LeftChunks(k)
		if index < start+l {
			path = append(path, Step{Sibling: right, Side: Left})
			off += NodeSize
			k = l
		} else {
			path = append(path, Step{Sibling: left, Side: Right})
			off += NodeSize * l
			start += l
			k -= l
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// ReadOutboardPath checks the header and length of a ranged outboard of
// length bytes against size and extracts the path for chunk index, reading
// only the header and the entries on the path.
func ReadOutboardPath(r io.ReaderAt, length int64, size, index uint64) (Path, error) {
	want, err := OutboardSize(size)
	if err != nil {
		return nil, err
	}
	if length < 0 || uint64(length) != want {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrCorruptOutboard, length, want)
	}
	var hdr [HeaderSize]byte
	if n, err := r.ReadAt(hdr[:], 0); n < HeaderSize {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: header: %w", ErrCorruptOutboard, err)
	}
	if got := binary.LittleEndian.Uint64(hdr[:]); got != size {
		return nil, fmt.Errorf("%w: header records %d bytes, declared size is %d", ErrCorruptOutboard, got, size)
	}
	nodes := io.NewSectionReader(r, HeaderSize, length-HeaderSize)
	return ReadPath(nodes, index, ChunkCount(size))
}
