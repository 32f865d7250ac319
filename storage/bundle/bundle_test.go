package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/storage"
	"xdao.co/pora/storage/bundle"
	"xdao.co/pora/storage/testkit"
)

func loaded(sizes ...int) (*testkit.Memory, []hashtree.Hash) {
	mem := testkit.NewMemory()
	var roots []hashtree.Hash
	for _, n := range sizes {
		fx := testkit.NewFixture("k", n)
		mem.Load(fx)
		roots = append(roots, fx.Root)
	}
	return mem, roots
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	mem, roots := loaded(3000, 700, 9000)

	var outA, outB bytes.Buffer
	if err := bundle.Export(ctx, &outA, mem, roots, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	reversed := []hashtree.Hash{roots[2], roots[1], roots[0], roots[1]}
	if err := bundle.Export(ctx, &outB, mem, reversed, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}

	tr := tar.NewReader(bytes.NewReader(outA.Bytes()))
	var names []string
	var index []byte
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, h.Name)
		if h.Name == "index.json" {
			if index, err = io.ReadAll(tr); err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(names) != 4 || names[3] != "index.json" {
		t.Fatalf("entries %v", names)
	}
	var idx struct {
		Version   int `json:"version"`
		Outboards []struct {
			Root string `json:"root"`
			Size uint64 `json:"size"`
		} `json:"outboards"`
	}
	if err := json.Unmarshal(index, &idx); err != nil {
		t.Fatalf("index: %v", err)
	}
	if idx.Version != bundle.FormatVersion || len(idx.Outboards) != 3 {
		t.Fatalf("index %s", index)
	}
	for i := 1; i < len(idx.Outboards); i++ {
		if idx.Outboards[i-1].Root >= idx.Outboards[i].Root {
			t.Fatalf("index not sorted: %s", index)
		}
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, roots := loaded(1, 1025, 70000)

	var buf bytes.Buffer
	if err := bundle.Export(ctx, &buf, src, roots, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst := testkit.NewMemory()
	got, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("imported %d outboards", len(got))
	}
	for _, r := range roots {
		want, _ := src.GetOutboard(ctx, r)
		have, err := dst.GetOutboard(ctx, r)
		if err != nil || !bytes.Equal(have, want) {
			t.Fatalf("root %s: %v", r, err)
		}
	}
}

func TestBundle_ExportMissingRoot(t *testing.T) {
	mem, _ := loaded(2000)
	other := testkit.NewFixture("x", 4000).Root
	err := bundle.Export(context.Background(), io.Discard, mem, []hashtree.Hash{other}, bundle.ExportOptions{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundle_ImportRejectsRootMismatch(t *testing.T) {
	a := testkit.NewFixture("a", 3000)
	b := testkit.NewFixture("b", 5000)

	// Filed under b's root but holding a's outboard.
	bundleBytes := makeDeterministicTar(t, "obao/"+b.Root.String(), a.Outboard)
	_, err := bundle.Import(context.Background(), bytes.NewReader(bundleBytes), testkit.NewMemory())
	if !errors.Is(err, bundle.ErrRootMismatch) {
		t.Fatalf("expected ErrRootMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsMalformed(t *testing.T) {
	fx := testkit.NewFixture("a", 3000)
	cases := []struct {
		name    string
		entry   string
		content []byte
	}{
		{"truncated", "obao/" + fx.Root.String(), fx.Outboard[:len(fx.Outboard)-1]},
		{"bad root", "obao/xyz", fx.Outboard},
		{"unknown entry", "blocks/abc", []byte("x")},
		{"escaping path", "../obao/" + fx.Root.String(), fx.Outboard},
	}
	for _, tc := range cases {
		b := makeDeterministicTar(t, tc.entry, tc.content)
		if _, err := bundle.Import(context.Background(), bytes.NewReader(b), testkit.NewMemory()); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	b := makeDeterministicTar(t, "blocks/abc", []byte("x"))
	got, err := bundle.ImportWithOptions(context.Background(), bytes.NewReader(b), testkit.NewMemory(), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil || len(got) != 0 {
		t.Fatalf("IgnoreUnknown: %v, %d imported", err, len(got))
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
