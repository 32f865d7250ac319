package testkit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/storage"
)

// NewFetcher constructs a fresh content backend holding exactly content
// (key -> bytes). The backend MUST be isolated from other tests.
type NewFetcher func(t *testing.T, content map[string][]byte) storage.RangeFetcher

// NewOutboardStore constructs a fresh, empty outboard store for a test.
type NewOutboardStore func(t *testing.T) storage.OutboardStore

// NewCommitmentStore constructs a commitment store holding exactly deals.
type NewCommitmentStore func(t *testing.T, deals map[string]model.Deal) storage.CommitmentStore

// RunFetcherConformance checks the RangeFetcher contract. key names the stored
// object and missing a well-formed key the backend does not hold.
func RunFetcherConformance(t *testing.T, key, missing string, newFetcher NewFetcher) {
	t.Helper()
	fx := NewFixture(key, 2500)
	ctx := context.Background()

	t.Run("FullAndMiddleRanges", func(t *testing.T) {
		f := newFetcher(t, map[string][]byte{key: fx.Data})
		cases := []struct {
			offset uint64
			length uint32
		}{
			{0, 1024},
			{1024, 1024},
			{2048, 452},
			{100, 7},
		}
		for _, tc := range cases {
			got, err := f.FetchRange(ctx, key, tc.offset, tc.length)
			if err != nil {
				t.Fatalf("FetchRange(%d,%d): %v", tc.offset, tc.length, err)
			}
			want := fx.Data[tc.offset : tc.offset+uint64(tc.length)]
			if !bytes.Equal(got, want) {
				t.Fatalf("FetchRange(%d,%d): bytes mismatch", tc.offset, tc.length)
			}
		}
	})

	t.Run("ShortAtEnd", func(t *testing.T) {
		f := newFetcher(t, map[string][]byte{key: fx.Data})
		got, err := f.FetchRange(ctx, key, 2048, 1024)
		if err != nil {
			t.Fatalf("FetchRange: %v", err)
		}
		if !bytes.Equal(got, fx.Data[2048:]) {
			t.Fatalf("got %d bytes want the 452-byte tail", len(got))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newFetcher(t, map[string][]byte{key: fx.Data})
		_, err := f.FetchRange(ctx, missing, 0, 1024)
		if !storage.IsNotFound(err) {
			t.Fatalf("missing key: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		f := newFetcher(t, map[string][]byte{key: fx.Data})
		var wg sync.WaitGroup
		errs := make(chan error, 3)
		for i := uint64(0); i < 3; i++ {
			wg.Add(1)
			go func(i uint64) {
				defer wg.Done()
				got, err := f.FetchRange(ctx, key, i*hashtree.ChunkSize, hashtree.ChunkSize)
				if err != nil {
					errs <- err
					return
				}
				end := min(uint64(len(fx.Data)), (i+1)*hashtree.ChunkSize)
				if !bytes.Equal(got, fx.Data[i*hashtree.ChunkSize:end]) {
					errs <- errors.New("concurrent fetch returned wrong bytes")
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}
	})
}

// RunOutboardConformance checks the OutboardStore contract, plus the ranged
// contract when the store implements storage.OutboardReader.
func RunOutboardConformance(t *testing.T, newStore NewOutboardStore) {
	t.Helper()
	ctx := context.Background()
	fx := NewFixture("outboard", 9000)

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutOutboard(ctx, fx.Root, fx.Outboard); err != nil {
			t.Fatalf("PutOutboard: %v", err)
		}
		got, err := s.GetOutboard(ctx, fx.Root)
		if err != nil {
			t.Fatalf("GetOutboard: %v", err)
		}
		if !bytes.Equal(got, fx.Outboard) {
			t.Fatalf("GetOutboard bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutOutboard(ctx, fx.Root, fx.Outboard); err != nil {
			t.Fatalf("PutOutboard(1): %v", err)
		}
		if err := s.PutOutboard(ctx, fx.Root, fx.Outboard); err != nil {
			t.Fatalf("PutOutboard(2): %v", err)
		}
	})

	t.Run("RejectOverwrite", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutOutboard(ctx, fx.Root, fx.Outboard); err != nil {
			t.Fatalf("PutOutboard: %v", err)
		}
		other := append([]byte(nil), fx.Outboard...)
		other[len(other)-1] ^= 0xff
		if err := s.PutOutboard(ctx, fx.Root, other); !errors.Is(err, storage.ErrImmutable) {
			t.Fatalf("overwrite: got err=%v want ErrImmutable", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetOutboard(ctx, fx.Root); !storage.IsNotFound(err) {
			t.Fatalf("missing outboard: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("RangedPath", func(t *testing.T) {
		s := newStore(t)
		r, ok := s.(storage.OutboardReader)
		if !ok {
			t.Skip("store has no ranged reads")
		}
		if err := s.PutOutboard(ctx, fx.Root, fx.Outboard); err != nil {
			t.Fatalf("PutOutboard: %v", err)
		}
		ra, n, err := r.OpenOutboard(ctx, fx.Root)
		if err != nil {
			t.Fatalf("OpenOutboard: %v", err)
		}
		if closer, ok := ra.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		ob, err := hashtree.ParseOutboard(fx.Outboard, uint64(len(fx.Data)))
		if err != nil {
			t.Fatalf("ParseOutboard: %v", err)
		}
		for i := uint64(0); i < hashtree.ChunkCount(uint64(len(fx.Data))); i++ {
			want, err := ob.Path(i)
			if err != nil {
				t.Fatalf("Path(%d): %v", i, err)
			}
			got, err := hashtree.ReadOutboardPath(ra, n, uint64(len(fx.Data)), i)
			if err != nil {
				t.Fatalf("ReadOutboardPath(%d): %v", i, err)
			}
			if len(got) != len(want) {
				t.Fatalf("chunk %d: ranged path has %d steps want %d", i, len(got), len(want))
			}
			for j := range got {
				if got[j] != want[j] {
					t.Fatalf("chunk %d step %d differs", i, j)
				}
			}
		}
		if _, _, err := r.OpenOutboard(ctx, hashtree.Hash{1}); !storage.IsNotFound(err) {
			t.Fatalf("missing ranged outboard: got err=%v want ErrNotFound", err)
		}
	})
}

// RunCommitmentConformance checks the CommitmentStore contract.
func RunCommitmentConformance(t *testing.T, newStore NewCommitmentStore) {
	t.Helper()
	ctx := context.Background()
	fx := NewFixture("bafy-deal-content", 2500)
	s := newStore(t, map[string]model.Deal{"deal-1": fx.Deal()})

	got, err := s.GetCommitment(ctx, "deal-1")
	if err != nil {
		t.Fatalf("GetCommitment: %v", err)
	}
	if got != fx.Deal() {
		t.Fatalf("GetCommitment = %+v want %+v", got, fx.Deal())
	}
	if _, err := s.GetCommitment(ctx, "deal-2"); !storage.IsNotFound(err) {
		t.Fatalf("missing deal: got err=%v want ErrNotFound", err)
	}
}
