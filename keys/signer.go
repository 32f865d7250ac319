package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

var ErrBadSignature = errors.New("keys: signature does not verify")

// Signer signs receipt payloads.
type Signer interface {
	// Alg is "<signature alg>+<hash alg>", e.g. "ed25519+sha256".
	Alg() string
	// PublicKey is "<signature alg>:<base64 public key>".
	PublicKey() string
	Sign(message []byte) ([]byte, error)
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

type ed25519Signer struct {
	priv    ed25519.PrivateKey
	hashAlg string
}

// NewEd25519Signer returns a signer for the Ed25519 key with the given seed.
func NewEd25519Signer(seed []byte, hashAlg string) (Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if _, err := digestFor(hashAlg, nil); err != nil {
		return nil, err
	}
	return &ed25519Signer{priv: ed25519.NewKeyFromSeed(seed), hashAlg: hashAlg}, nil
}

func (s *ed25519Signer) Alg() string { return "ed25519+" + s.hashAlg }

func (s *ed25519Signer) PublicKey() string {
	return "ed25519:" + base64.StdEncoding.EncodeToString(s.priv.Public().(ed25519.PublicKey))
}

func (s *ed25519Signer) Sign(message []byte) ([]byte, error) {
	digest, err := digestFor(s.hashAlg, message)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(s.priv, digest), nil
}

type dilithium3Signer struct {
	pk      *mode3.PublicKey
	sk      *mode3.PrivateKey
	hashAlg string
}

// NewDilithium3Signer returns a post-quantum signer whose keypair is expanded
// from a 32-byte seed.
func NewDilithium3Signer(seed []byte, hashAlg string) (Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("dilithium3 seed must be %d bytes, got %d", mode3.SeedSize, len(seed))
	}
	if _, err := digestFor(hashAlg, nil); err != nil {
		return nil, err
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pk, sk := mode3.NewKeyFromSeed(&s)
	return &dilithium3Signer{pk: pk, sk: sk, hashAlg: hashAlg}, nil
}

func (s *dilithium3Signer) Alg() string { return "dilithium3+" + s.hashAlg }

func (s *dilithium3Signer) PublicKey() string {
	return "dilithium3:" + base64.StdEncoding.EncodeToString(s.pk.Bytes())
}

func (s *dilithium3Signer) Sign(message []byte) ([]byte, error) {
	digest, err := digestFor(s.hashAlg, message)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.sk, digest, sig)
	return sig, nil
}

// NewSigner builds a signer for sigAlg ("ed25519" or "dilithium3").
func NewSigner(sigAlg string, seed []byte, hashAlg string) (Signer, error) {
	switch sigAlg {
	case "ed25519":
		return NewEd25519Signer(seed, hashAlg)
	case "dilithium3":
		return NewDilithium3Signer(seed, hashAlg)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm: %q", sigAlg)
	}
}

// Verify checks sig over message for publicKey under alg, both in the forms
// produced by Signer.
func Verify(publicKey, alg string, message, sig []byte) error {
	sigAlg, hashAlg, ok := strings.Cut(alg, "+")
	if !ok {
		return fmt.Errorf("invalid algorithm %q", alg)
	}
	keyAlg, enc, ok := strings.Cut(publicKey, ":")
	if !ok {
		return fmt.Errorf("invalid public key encoding")
	}
	if keyAlg != sigAlg {
		return fmt.Errorf("public key is %s, signature is %s", keyAlg, sigAlg)
	}
	pub, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return fmt.Errorf("invalid public key base64: %w", err)
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return err
	}

	switch sigAlg {
	case "ed25519":
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("invalid ed25519 public key length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return ErrBadSignature
		}
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return ErrBadSignature
		}
	default:
		return fmt.Errorf("unsupported signature algorithm: %q", sigAlg)
	}
	return nil
}
