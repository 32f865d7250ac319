package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps oracle seeds on the local filesystem:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
//
// Each file holds a hex seed and a trailing newline.
type KeyStore struct {
	Directory string
}

// KeyEntry lists one identity and its derived roles.
type KeyEntry struct {
	Name  string
	Roles []string
}

func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "pora", "keys"), nil
}

// OpenKeyStore returns a store rooted at dir, or at DefaultDirectory when dir
// is empty.
func OpenKeyStore(dir string) (*KeyStore, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDirectory(); err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: dir}, nil
}

func checkIdent(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("invalid character %q in %s", c, kind)
		}
	}
	return nil
}

func CheckKeyName(name string) error { return checkIdent("key name", name) }

func CheckRole(role string) error { return checkIdent("role", role) }

// ParseSeedHex decodes a 32-byte seed, tolerating surrounding space and a
// 0x prefix.
func ParseSeedHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(b))
	}
	return b, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Directory, name, "roles", role+".key")
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(b))
}

// InitRoot stores seed as the root seed of name and returns the file path.
func (ks *KeyStore) InitRoot(name string, seed []byte, overwrite bool) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	path := ks.rootPath(name)
	return path, writeSeed(path, seed, overwrite)
}

// DeriveRole derives and stores the role seed for name.
func (ks *KeyStore) DeriveRole(name, role string, overwrite bool) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	root, err := readSeed(ks.rootPath(name))
	if err != nil {
		return "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", err
	}
	path := ks.rolePath(name, role)
	return path, writeSeed(path, seed, overwrite)
}

// SeedSource names where a signing seed comes from. The first non-empty
// field wins: SeedHex, then KeyFile, then Name (with optional Role).
type SeedSource struct {
	SeedHex string
	KeyFile string
	Name    string
	Role    string
}

func (s SeedSource) IsZero() bool { return s == SeedSource{} }

// LoadSeed resolves src against the store.
func (ks *KeyStore) LoadSeed(src SeedSource) ([]byte, error) {
	switch {
	case src.SeedHex != "":
		return ParseSeedHex(src.SeedHex)
	case src.KeyFile != "":
		return readSeed(src.KeyFile)
	case src.Name != "":
		if err := CheckKeyName(src.Name); err != nil {
			return nil, err
		}
		if src.Role == "" {
			return readSeed(ks.rootPath(src.Name))
		}
		if err := CheckRole(src.Role); err != nil {
			return nil, err
		}
		return readSeed(ks.rolePath(src.Name, src.Role))
	default:
		return nil, errors.New("no signer provided")
	}
}

// List returns identities and their roles, sorted.
func (ks *KeyStore) List() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []KeyEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		entry := KeyEntry{Name: e.Name()}
		roles, _ := os.ReadDir(filepath.Join(ks.Directory, e.Name(), "roles"))
		for _, r := range roles {
			if !r.IsDir() && strings.HasSuffix(r.Name(), ".key") {
				entry.Roles = append(entry.Roles, strings.TrimSuffix(r.Name(), ".key"))
			}
		}
		sort.Strings(entry.Roles)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
