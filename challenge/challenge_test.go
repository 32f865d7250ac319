package challenge

import (
	"errors"
	"testing"

	"xdao.co/pora/model"
)

// fixedSource replays a list of indexes.
type fixedSource struct {
	next []uint64
	seen []uint64
}

func (f *fixedSource) Uint64N(n uint64) uint64 {
	f.seen = append(f.seen, n)
	v := f.next[0]
	f.next = f.next[1:]
	return v
}

func TestSelectEmptyContent(t *testing.T) {
	src := &fixedSource{}
	_, err := Select(0, src)
	if !model.IsKind(err, model.KindInvalidInput) {
		t.Fatalf("got %v want InvalidInput", err)
	}
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("got %v want ErrEmptyContent", err)
	}
	if len(src.seen) != 0 {
		t.Fatalf("random source consulted for empty content")
	}
}

func TestSelectScenario2500(t *testing.T) {
	want := []model.Challenge{
		{ChunkIndex: 0, TotalChunks: 3, Offset: 0, Length: 1024},
		{ChunkIndex: 1, TotalChunks: 3, Offset: 1024, Length: 1024},
		{ChunkIndex: 2, TotalChunks: 3, Offset: 2048, Length: 452},
	}
	src := &fixedSource{next: []uint64{0, 1, 2}}
	for _, w := range want {
		got, err := Select(2500, src)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if got != w {
			t.Fatalf("got %+v want %+v", got, w)
		}
	}
	for _, n := range src.seen {
		if n != 3 {
			t.Fatalf("random source asked for [0,%d), want [0,3)", n)
		}
	}
}

func TestSelectExactMultiple(t *testing.T) {
	src := &fixedSource{next: []uint64{3}}
	got, err := Select(4096, src)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Offset != 3072 || got.Length != 1024 {
		t.Fatalf("last chunk of exact multiple: %+v", got)
	}
}

func TestSelectSingleChunk(t *testing.T) {
	got, err := Select(17, NewSeededSource(1))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := model.Challenge{ChunkIndex: 0, TotalChunks: 1, Offset: 0, Length: 17}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestSelectSeededIsDeterministicAndInRange(t *testing.T) {
	a, b := NewSeededSource(42), NewSeededSource(42)
	seen := map[uint64]bool{}
	for i := 0; i < 200; i++ {
		ca, err := Select(2500, a)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		cb, _ := Select(2500, b)
		if ca != cb {
			t.Fatalf("seeded sources diverged at %d: %+v vs %+v", i, ca, cb)
		}
		if ca.Offset%1024 != 0 || ca.Offset > 2048 {
			t.Fatalf("offset %d not chunk aligned within content", ca.Offset)
		}
		seen[ca.Offset] = true
	}
	if len(seen) != 3 {
		t.Fatalf("200 draws covered offsets %v, want all of {0,1024,2048}", seen)
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource()
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, err := Select(1<<20, src); err != nil {
		t.Fatalf("Select: %v", err)
	}
}
