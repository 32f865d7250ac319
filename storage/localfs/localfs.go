package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/storage"
)

// Store is a local filesystem backend.
//
// Content objects live under ContentDir keyed by content key, outboards under
// OutboardDir named by the lowercase hex root, and deal metadata under MetaDir
// as <deal id>.json. Objects are written once and never modified. Any of the
// directories may be empty, disabling that role.
type Store struct {
	contentDir  string
	outboardDir string
	metaDir     string
}

var (
	_ storage.RangeFetcher    = (*Store)(nil)
	_ storage.OutboardStore   = (*Store)(nil)
	_ storage.OutboardReader  = (*Store)(nil)
	_ storage.CommitmentStore = (*Store)(nil)
)

type Options struct {
	ContentDir  string
	OutboardDir string
	MetaDir     string
}

// New constructs a filesystem store. Configured directories are created if
// needed.
func New(opts Options) (*Store, error) {
	if opts.ContentDir == "" && opts.OutboardDir == "" && opts.MetaDir == "" {
		return nil, errors.New("localfs: at least one directory is required")
	}
	for _, dir := range []string{opts.ContentDir, opts.OutboardDir, opts.MetaDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{contentDir: opts.ContentDir, outboardDir: opts.OutboardDir, metaDir: opts.MetaDir}, nil
}

// PutContent stores data under key.
func (s *Store) PutContent(key string, data []byte) error {
	path, err := s.contentPath(key)
	if err != nil {
		return err
	}
	return writeOnce(path, data)
}

func (s *Store) FetchRange(ctx context.Context, key string, offset uint64, length uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.contentPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return storage.ReadRange(f, st.Size(), offset, length)
}

func (s *Store) PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.outboardPath(root)
	if err != nil {
		return err
	}
	return writeOnce(path, buf)
}

func (s *Store) GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.outboardPath(root)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// OpenOutboard returns the outboard file. The caller closes it.
func (s *Store) OpenOutboard(ctx context.Context, root hashtree.Hash) (io.ReaderAt, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	path, err := s.outboardPath(root)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, storage.ErrNotFound
		}
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

// PutDeal records deal metadata.
func (s *Store) PutDeal(id string, d model.Deal) error {
	path, err := s.metaPath(id)
	if err != nil {
		return err
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return writeOnce(path, b)
}

func (s *Store) GetCommitment(ctx context.Context, dealID string) (model.Deal, error) {
	if err := ctx.Err(); err != nil {
		return model.Deal{}, err
	}
	path, err := s.metaPath(dealID)
	if err != nil {
		return model.Deal{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Deal{}, storage.ErrNotFound
		}
		return model.Deal{}, err
	}
	var d model.Deal
	if err := json.Unmarshal(b, &d); err != nil {
		return model.Deal{}, fmt.Errorf("localfs: deal %q: %w", dealID, err)
	}
	return d, nil
}

func (s *Store) contentPath(key string) (string, error) {
	if s.contentDir == "" {
		return "", fmt.Errorf("%w: content directory not configured", storage.ErrUnsupported)
	}
	if err := checkName(key); err != nil {
		return "", err
	}
	if len(key) < 2 {
		return filepath.Join(s.contentDir, key), nil
	}
	return filepath.Join(s.contentDir, key[:2], key), nil
}

func (s *Store) outboardPath(root hashtree.Hash) (string, error) {
	if s.outboardDir == "" {
		return "", fmt.Errorf("%w: outboard directory not configured", storage.ErrUnsupported)
	}
	return filepath.Join(s.outboardDir, root.String()), nil
}

func (s *Store) metaPath(id string) (string, error) {
	if s.metaDir == "" {
		return "", fmt.Errorf("%w: metadata directory not configured", storage.ErrUnsupported)
	}
	if err := checkName(id); err != nil {
		return "", err
	}
	return filepath.Join(s.metaDir, id+".json"), nil
}

// checkName keeps keys inside their directory.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidKey, name)
	}
	return nil
}

// writeOnce creates path with data. An existing file with the same bytes is
// success; different bytes are storage.ErrImmutable.
func writeOnce(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil || !bytes.Equal(existing, data) {
				return storage.ErrImmutable
			}
			return nil
		}
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
