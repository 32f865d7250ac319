package config

import (
	"errors"
	"fmt"

	"xdao.co/pora/keys"
	"xdao.co/pora/storage"
	"xdao.co/pora/storage/registry"
)

// Stores is the opened storage stack, one store per role. A role no
// configured backend provides is nil.
type Stores struct {
	Content     storage.RangeFetcher
	Proofs      storage.OutboardStore
	Commitments storage.CommitmentStore

	// Replicas is set when proofs.write_policy is "all".
	Replicas *storage.ReplicatingOutboardStore

	backends []storage.Backend
}

// Close releases every opened backend in reverse order and returns the first
// error.
func (s *Stores) Close() error {
	var firstErr error
	for i := len(s.backends) - 1; i >= 0; i-- {
		if err := storage.CloseBackend(s.backends[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.backends = nil
	return firstErr
}

type opened struct {
	id string
	b  storage.Backend
}

// Open opens every configured backend through the registry and assembles
// the role stores. Backend packages must be linked into the binary.
func (c *Config) Open(usage registry.Usage) (*Stores, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &Stores{}
	all := make([]opened, 0, len(c.Backends))
	byID := make(map[string]storage.Backend, len(c.Backends))
	for _, bc := range c.Backends {
		b, err := registry.Open(bc.Name, usage, bc.Options)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("config: backend %q: %w", bc.Ident(), err)
		}
		s.backends = append(s.backends, b)
		all = append(all, opened{id: bc.Ident(), b: b})
		byID[bc.Ident()] = b
	}

	pick := func(role string, ids []string, has func(storage.Backend) bool) ([]opened, error) {
		if len(ids) == 0 {
			var out []opened
			for _, o := range all {
				if has(o.b) {
					out = append(out, o)
				}
			}
			return out, nil
		}
		out := make([]opened, 0, len(ids))
		for _, id := range ids {
			b := byID[id]
			if !has(b) {
				return nil, fmt.Errorf("config: backend %q does not provide %s", id, role)
			}
			out = append(out, opened{id: id, b: b})
		}
		return out, nil
	}

	content, err := pick("content", c.Content, func(b storage.Backend) bool { return b.Content != nil })
	if err == nil {
		s.Content = fetcherOf(content)
	}
	var proofs []opened
	if err == nil {
		proofs, err = pick("proofs", c.Proofs.Use, func(b storage.Backend) bool { return b.Outboards != nil })
	}
	if err == nil {
		s.Proofs, s.Replicas = outboardsOf(proofs, c.Proofs.WritePolicy)
	}
	var deals []opened
	if err == nil {
		deals, err = pick("commitments", c.Commitments, func(b storage.Backend) bool { return b.Commitments != nil })
	}
	if err == nil {
		s.Commitments = commitmentsOf(deals)
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func fetcherOf(bs []opened) storage.RangeFetcher {
	switch len(bs) {
	case 0:
		return nil
	case 1:
		return bs[0].b.Content
	}
	m := storage.MultiFetcher{}
	for _, o := range bs {
		m.Fetchers = append(m.Fetchers, o.b.Content)
	}
	return m
}

func outboardsOf(bs []opened, policy string) (storage.OutboardStore, *storage.ReplicatingOutboardStore) {
	if len(bs) == 0 {
		return nil, nil
	}
	if policy == "all" {
		r := &storage.ReplicatingOutboardStore{}
		for _, o := range bs {
			r.Stores = append(r.Stores, storage.NamedOutboardStore{Name: o.id, Store: o.b.Outboards})
		}
		return *r, r
	}
	if len(bs) == 1 {
		return bs[0].b.Outboards, nil
	}
	m := storage.MultiOutboardStore{}
	for _, o := range bs {
		m.Stores = append(m.Stores, o.b.Outboards)
	}
	return m, nil
}

func commitmentsOf(bs []opened) storage.CommitmentStore {
	switch len(bs) {
	case 0:
		return nil
	case 1:
		return bs[0].b.Commitments
	}
	m := storage.MultiCommitmentStore{}
	for _, o := range bs {
		m.Stores = append(m.Stores, o.b.Commitments)
	}
	return m
}

// Signer loads the receipt signing key. It returns nil when signing is not
// configured.
func (c *Config) Signer() (keys.Signer, error) {
	if !c.Signing.Enabled() {
		return nil, nil
	}
	ks, err := keys.OpenKeyStore(c.Signing.KeyDir)
	if err != nil {
		return nil, err
	}
	seed, err := ks.LoadSeed(keys.SeedSource{
		SeedHex: c.Signing.SeedHex,
		KeyFile: c.Signing.KeyFile,
		Name:    c.Signing.Key,
		Role:    c.Signing.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("config: signing key: %w", err)
	}
	s, err := keys.NewSigner(c.Signing.Alg, seed, c.Signing.Hash)
	if err != nil {
		return nil, fmt.Errorf("config: signing key: %w", err)
	}
	return s, nil
}

var (
	ErrNoContent = errors.New("config: no backend provides content")
	ErrNoProofs  = errors.New("config: no backend provides outboards")
)

// RequireAuditStores checks that s can serve audits.
func (s *Stores) RequireAuditStores() error {
	if s.Content == nil {
		return ErrNoContent
	}
	if s.Proofs == nil {
		return ErrNoProofs
	}
	return nil
}
