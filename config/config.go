// Package config loads the oracle's YAML configuration: which storage
// backends to open, which of them serve each role, how receipts are signed
// and how audits run.
//
// Example:
//
//	log:
//	  level: info
//	backends:
//	  - name: localfs
//	    id: local
//	    options:
//	      dir: /var/lib/pora/content
//	      obao-dir: /var/lib/pora/obao
//	  - name: s3
//	    options:
//	      bucket: pora-obao
//	      meta-bucket: pora-deals
//	content: [local]
//	proofs:
//	  write_policy: all
//	  use: [local, s3]
//	commitments: [s3]
//	signing:
//	  key: oracle
//	  role: receipts
//	audit:
//	  rounds: 3
//	  timeout: 30s
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the whole configuration file.
type Config struct {
	Log      LogConfig       `yaml:"log"`
	Backends []BackendConfig `yaml:"backends"`

	// Content and Commitments list backend ids in fallback order. Empty
	// means every configured backend that provides the role.
	Content     []string    `yaml:"content"`
	Proofs      ProofConfig `yaml:"proofs"`
	Commitments []string    `yaml:"commitments"`

	Signing SigningConfig `yaml:"signing"`
	Audit   AuditConfig   `yaml:"audit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// BackendConfig opens one registered storage backend.
type BackendConfig struct {
	// Name is the registry backend name (localfs, s3, ipfs, kubo, grpc).
	Name string `yaml:"name"`
	// ID is an optional alias roles refer to. If empty, Name is used.
	ID      string            `yaml:"id"`
	Options map[string]string `yaml:"options"`
}

// Ident returns the id roles use to refer to b.
func (b BackendConfig) Ident() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// ProofConfig selects outboard stores.
//
// WritePolicy values:
//   - "first" (default): ingestion writes only to the first store; reads fall
//     back in order
//   - "all": ingestion writes to every store (see storage.ReplicatingOutboardStore)
type ProofConfig struct {
	WritePolicy string   `yaml:"write_policy"`
	Use         []string `yaml:"use"`
}

// SigningConfig selects the receipt signing key. A zero value disables
// receipts.
type SigningConfig struct {
	// KeyDir is the key store directory (defaults to ~/.xdao/pora/keys).
	KeyDir  string `yaml:"key_dir"`
	Key     string `yaml:"key"`
	Role    string `yaml:"role"`
	KeyFile string `yaml:"key_file"`
	SeedHex string `yaml:"seed_hex"`
	// Alg is ed25519 or dilithium3; Hash is sha256, sha512 or sha3-256.
	Alg  string `yaml:"alg"`
	Hash string `yaml:"hash"`
}

// Enabled reports whether any key source is configured.
func (s SigningConfig) Enabled() bool {
	return s.Key != "" || s.KeyFile != "" || s.SeedHex != ""
}

type AuditConfig struct {
	Rounds      int    `yaml:"rounds"`
	Parallelism int    `yaml:"parallelism"`
	Timeout     string `yaml:"timeout"`
}

// TimeoutDuration parses Timeout. Validate has already rejected bad values.
func (a AuditConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(a.Timeout)
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "warn"},
		Proofs:  ProofConfig{WritePolicy: "first"},
		Signing: SigningConfig{Alg: "ed25519", Hash: "sha256"},
		Audit:   AuditConfig{Rounds: 1, Parallelism: 4, Timeout: "30s"},
	}
}

// Load reads path over Default and validates the result. Unknown keys are
// errors.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: empty config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML (or JSON) configuration over Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandVariables expands ${HOME} and other environment references in
// backend options and key paths.
func (c *Config) expandVariables() {
	for i := range c.Backends {
		for k, v := range c.Backends[i].Options {
			c.Backends[i].Options[k] = os.ExpandEnv(v)
		}
	}
	c.Signing.KeyDir = os.ExpandEnv(c.Signing.KeyDir)
	c.Signing.KeyFile = os.ExpandEnv(c.Signing.KeyFile)
}

// Validate checks cross references and fills defaults for zero values.
func (c *Config) Validate() error {
	ids := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("config: backend name is required")
		}
		id := b.Ident()
		if _, ok := ids[id]; ok {
			return fmt.Errorf("config: duplicate backend id %q", id)
		}
		ids[id] = struct{}{}
	}
	for role, refs := range map[string][]string{
		"content":     c.Content,
		"proofs":      c.Proofs.Use,
		"commitments": c.Commitments,
	} {
		for _, id := range refs {
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("config: %s refers to unknown backend %q", role, id)
			}
		}
	}

	switch c.Proofs.WritePolicy {
	case "":
		c.Proofs.WritePolicy = "first"
	case "first", "all":
	default:
		return fmt.Errorf("config: invalid write_policy %q", c.Proofs.WritePolicy)
	}

	if c.Signing.Alg == "" {
		c.Signing.Alg = "ed25519"
	}
	if c.Signing.Hash == "" {
		c.Signing.Hash = "sha256"
	}

	if c.Audit.Rounds == 0 {
		c.Audit.Rounds = 1
	}
	if c.Audit.Parallelism == 0 {
		c.Audit.Parallelism = 4
	}
	if c.Audit.Timeout == "" {
		c.Audit.Timeout = "30s"
	}
	if c.Audit.Rounds < 0 || c.Audit.Parallelism < 0 {
		return errors.New("config: audit rounds and parallelism must be positive")
	}
	if d, err := time.ParseDuration(c.Audit.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("config: invalid audit timeout %q", c.Audit.Timeout)
	}
	return nil
}
