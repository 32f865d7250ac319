package testkit

import (
	"bytes"
	"context"
	"sync"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/storage"
)

// Memory is an in-process backend holding content, outboards and deals. It
// is the reference implementation the conformance suites are checked
// against and doubles as a fixture for oracle tests.
type Memory struct {
	mu        sync.RWMutex
	content   map[string][]byte
	outboards map[hashtree.Hash][]byte
	deals     map[string]model.Deal
}

var (
	_ storage.RangeFetcher    = (*Memory)(nil)
	_ storage.OutboardStore   = (*Memory)(nil)
	_ storage.CommitmentStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		content:   map[string][]byte{},
		outboards: map[hashtree.Hash][]byte{},
		deals:     map[string]model.Deal{},
	}
}

// Backend exposes m in every role.
func (m *Memory) Backend() storage.Backend {
	return storage.Backend{Content: m, Outboards: m, Commitments: m}
}

func (m *Memory) PutContent(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[key] = append([]byte(nil), data...)
}

func (m *Memory) PutDeal(id string, d model.Deal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals[id] = d
}

func (m *Memory) FetchRange(ctx context.Context, key string, offset uint64, length uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.content[key]
	m.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return storage.ReadRange(bytes.NewReader(data), int64(len(data)), offset, length)
}

func (m *Memory) GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.outboards[root]
	m.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.outboards[root]; ok {
		if !bytes.Equal(existing, buf) {
			return storage.ErrImmutable
		}
		return nil
	}
	m.outboards[root] = append([]byte(nil), buf...)
	return nil
}

func (m *Memory) GetCommitment(ctx context.Context, dealID string) (model.Deal, error) {
	if err := ctx.Err(); err != nil {
		return model.Deal{}, err
	}
	m.mu.RLock()
	d, ok := m.deals[dealID]
	m.mu.RUnlock()
	if !ok {
		return model.Deal{}, storage.ErrNotFound
	}
	return d, nil
}

// Fixture is content of a known size with its outboard and root.
type Fixture struct {
	Key      string
	Data     []byte
	Outboard []byte
	Root     hashtree.Hash
}

// NewFixture builds deterministic content of size bytes.
func NewFixture(key string, size int) Fixture {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*31 + i>>10)
	}
	ob, root := hashtree.Encode(data)
	return Fixture{Key: key, Data: data, Outboard: ob, Root: root}
}

// Commitment returns the fixture's commitment.
func (f Fixture) Commitment() model.Commitment {
	return model.Commitment{Root: f.Root, Size: uint64(len(f.Data))}
}

// Deal returns deal metadata describing the fixture.
func (f Fixture) Deal() model.Deal {
	return model.Deal{ContentKey: f.Key, Hash: f.Root.String(), Size: uint64(len(f.Data))}
}

// Load stores the fixture's content and outboard in m.
func (m *Memory) Load(f Fixture) {
	m.PutContent(f.Key, f.Data)
	m.mu.Lock()
	m.outboards[f.Root] = append([]byte(nil), f.Outboard...)
	m.mu.Unlock()
}
