package keys

import (
	"crypto/sha256"
	"fmt"
)

// SeedSize is the length of root and role seeds.
const SeedSize = 32

// DeriveRoleSeed deterministically derives a role-specific seed from a root
// seed. The same root and role always yield the same seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-pora-keys-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:" + role))
	return h.Sum(nil), nil
}
