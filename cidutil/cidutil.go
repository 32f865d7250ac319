package cidutil

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	_ "github.com/multiformats/go-multihash/register/blake3"

	"xdao.co/pora/hashtree"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// CIDv1RawBLAKE3 returns a CIDv1 (raw + blake3-256) derived from data. Its
// digest equals the hash tree root of data.
func CIDv1RawBLAKE3(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.BLAKE3, hashtree.HashSize)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// RootCID wraps a committed root as a raw blake3 CID.
func RootCID(root hashtree.Hash) (cid.Cid, error) {
	mh, err := multihash.Encode(root[:], multihash.BLAKE3)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// RootFromCID recovers the root of a blake3 CID.
func RootFromCID(id cid.Cid) (hashtree.Hash, error) {
	var root hashtree.Hash
	if !id.Defined() {
		return root, fmt.Errorf("cidutil: undefined cid")
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return root, err
	}
	if dec.Code != multihash.BLAKE3 || len(dec.Digest) != hashtree.HashSize {
		return root, fmt.Errorf("cidutil: %s is not a 32-byte blake3 cid", id)
	}
	copy(root[:], dec.Digest)
	return root, nil
}

// ParseContentKey validates a content key. Keys that parse as CIDs are
// normalized to their canonical string form; other non-empty keys (object
// names, paths) are returned unchanged.
func ParseContentKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("cidutil: empty content key")
	}
	if id, err := cid.Decode(key); err == nil {
		return id.String(), nil
	}
	return key, nil
}
