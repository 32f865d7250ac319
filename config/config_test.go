package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"xdao.co/pora/keys"
	"xdao.co/pora/storage"
	"xdao.co/pora/storage/registry"
	"xdao.co/pora/storage/testkit"
)

// Test backends: "cfgtest-all" provides every role from one shared memory
// store per name option; "cfgtest-content" provides content only.
var (
	memMu  sync.Mutex
	mems   = map[string]*testkit.Memory{}
	closed = map[string]int{}
)

func memFor(name string) *testkit.Memory {
	memMu.Lock()
	defer memMu.Unlock()
	m, ok := mems[name]
	if !ok {
		m = testkit.NewMemory()
		mems[name] = m
	}
	return m
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:    "cfgtest-all",
		Usage:   registry.UsageCLI,
		Options: []registry.Option{{Name: "name", Default: "default"}},
		Open: func(opts map[string]string) (storage.Backend, error) {
			name := opts["name"]
			b := memFor(name).Backend()
			b.Close = func() error {
				memMu.Lock()
				closed[name]++
				memMu.Unlock()
				return nil
			}
			return b, nil
		},
	})
	registry.MustRegister(registry.Backend{
		Name:    "cfgtest-content",
		Usage:   registry.UsageCLI,
		Options: []registry.Option{{Name: "name"}},
		Open: func(opts map[string]string) (storage.Backend, error) {
			return storage.Backend{Content: memFor(opts["name"])}, nil
		},
	})
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(empty): %v", err)
	}
	if cfg.Audit.Rounds != 1 || cfg.Audit.Parallelism != 4 || cfg.Audit.TimeoutDuration().Seconds() != 30 {
		t.Fatalf("audit defaults %+v", cfg.Audit)
	}
	if cfg.Proofs.WritePolicy != "first" || cfg.Log.Level != "warn" {
		t.Fatalf("defaults %+v", cfg)
	}
	if cfg.Signing.Enabled() {
		t.Fatalf("signing enabled by default")
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "audit:\n  roundz: 3\n",
		"duplicate id":      "backends:\n  - name: a\n  - name: a\n",
		"missing name":      "backends:\n  - id: x\n",
		"unknown reference": "backends:\n  - name: a\ncontent: [b]\n",
		"write policy":      "proofs:\n  write_policy: some\n",
		"bad timeout":       "audit:\n  timeout: soon\n",
		"negative rounds":   "audit:\n  rounds: -1\n",
	}
	for name, in := range cases {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("%s: Parse accepted %q", name, in)
		}
	}
}

func TestLoad_ExpandsVariables(t *testing.T) {
	t.Setenv("PORA_TEST_DIR", "/srv/pora")
	path := filepath.Join(t.TempDir(), "pora.yaml")
	in := `
backends:
  - name: localfs
    options:
      dir: ${PORA_TEST_DIR}/content
signing:
  key_file: ${PORA_TEST_DIR}/oracle.seed
audit:
  rounds: 5
  timeout: 2m
`
	if err := os.WriteFile(path, []byte(in), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Backends[0].Options["dir"]; got != "/srv/pora/content" {
		t.Fatalf("dir = %q", got)
	}
	if cfg.Signing.KeyFile != "/srv/pora/oracle.seed" || !cfg.Signing.Enabled() {
		t.Fatalf("signing %+v", cfg.Signing)
	}
	if cfg.Audit.Rounds != 5 || cfg.Audit.Parallelism != 4 || cfg.Audit.TimeoutDuration().Minutes() != 2 {
		t.Fatalf("audit %+v", cfg.Audit)
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("Load(\"\") succeeded")
	}
}

func TestOpen_Roles(t *testing.T) {
	cfg, err := Parse([]byte(`
backends:
  - name: cfgtest-all
    id: primary
    options: {name: roles-a}
  - name: cfgtest-all
    id: secondary
    options: {name: roles-b}
  - name: cfgtest-content
    options: {name: roles-c}
proofs:
  use: [primary, secondary]
commitments: [secondary]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := cfg.Open(registry.UsageCLI)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RequireAuditStores(); err != nil {
		t.Fatalf("RequireAuditStores: %v", err)
	}
	if m, ok := s.Content.(storage.MultiFetcher); !ok || len(m.Fetchers) != 3 {
		t.Fatalf("content = %T", s.Content)
	}
	if m, ok := s.Proofs.(storage.MultiOutboardStore); !ok || len(m.Stores) != 2 {
		t.Fatalf("proofs = %T", s.Proofs)
	}
	if s.Replicas != nil {
		t.Fatalf("replicas set under write_policy first")
	}

	// Deals resolve from the secondary store only.
	fx := testkit.NewFixture("k", 100)
	memFor("roles-b").PutDeal("d", fx.Deal())
	if d, err := s.Commitments.GetCommitment(context.Background(), "d"); err != nil || d != fx.Deal() {
		t.Fatalf("GetCommitment = %+v, %v", d, err)
	}

	// Content falls back across backends.
	memFor("roles-c").PutContent("only-c", []byte("hello"))
	if b, err := s.Content.FetchRange(context.Background(), "only-c", 1, 3); err != nil || string(b) != "ell" {
		t.Fatalf("FetchRange = %q, %v", b, err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	memMu.Lock()
	defer memMu.Unlock()
	if closed["roles-a"] != 1 || closed["roles-b"] != 1 {
		t.Fatalf("closed %v", closed)
	}
}

func TestOpen_ReplicatingProofs(t *testing.T) {
	cfg, err := Parse([]byte(`
backends:
  - {name: cfgtest-all, id: a, options: {name: rep-a}}
  - {name: cfgtest-all, id: b, options: {name: rep-b}}
proofs:
  write_policy: all
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := cfg.Open(registry.UsageCLI)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.Replicas == nil || len(s.Replicas.Stores) != 2 {
		t.Fatalf("replicas = %+v", s.Replicas)
	}
	fx := testkit.NewFixture("k", 3000)
	names, err := s.Replicas.PutAll(context.Background(), fx.Root, fx.Outboard)
	if err != nil || strings.Join(names, ",") != "a,b" {
		t.Fatalf("PutAll = %v, %v", names, err)
	}
	if _, err := memFor("rep-b").GetOutboard(context.Background(), fx.Root); err != nil {
		t.Fatalf("replica b: %v", err)
	}
	if _, ok := s.Proofs.(storage.OutboardReader); !ok {
		t.Fatalf("replicating proofs do not serve ranged reads")
	}
}

func TestOpen_Errors(t *testing.T) {
	cfg, err := Parse([]byte("backends:\n  - name: cfgtest-content\n    options: {name: e}\nproofs:\n  use: [cfgtest-content]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := cfg.Open(registry.UsageCLI); err == nil || !strings.Contains(err.Error(), "does not provide proofs") {
		t.Fatalf("content-only backend as proofs: %v", err)
	}

	cfg, err = Parse([]byte("backends:\n  - name: no-such-backend\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := cfg.Open(registry.UsageCLI); err == nil {
		t.Fatalf("unknown backend opened")
	}

	cfg, err = Parse([]byte("backends:\n  - name: cfgtest-content\n    options: {name: e2}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := cfg.Open(registry.UsageCLI)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RequireAuditStores(); !errors.Is(err, ErrNoProofs) {
		t.Fatalf("got %v want ErrNoProofs", err)
	}
}

func TestSigner(t *testing.T) {
	cfg := Default()
	if s, err := cfg.Signer(); s != nil || err != nil {
		t.Fatalf("disabled signing = %v, %v", s, err)
	}

	dir := t.TempDir()
	ks, err := keys.OpenKeyStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	if _, err := ks.InitRoot("oracle", seed, false); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	if _, err := ks.DeriveRole("oracle", "receipts", false); err != nil {
		t.Fatalf("DeriveRole: %v", err)
	}

	cfg.Signing = SigningConfig{KeyDir: dir, Key: "oracle", Role: "receipts", Alg: "dilithium3", Hash: "sha3-256"}
	s, err := cfg.Signer()
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	if s.Alg() != "dilithium3+sha3-256" {
		t.Fatalf("alg %q", s.Alg())
	}

	cfg.Signing.Key = "missing"
	if _, err := cfg.Signer(); err == nil {
		t.Fatalf("missing key loaded")
	}
}
