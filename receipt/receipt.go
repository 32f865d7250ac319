// Package receipt produces signed, content-addressed records of audit
// outcomes so a third party can check what the oracle answered.
package receipt

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"xdao.co/pora/cidutil"
	"xdao.co/pora/hashtree"
	"xdao.co/pora/keys"
	"xdao.co/pora/model"
)

// Version is the receipt schema version.
const Version = 1

var (
	ErrCIDMismatch  = errors.New("receipt: cid does not match payload")
	ErrKeyMismatch  = errors.New("receipt: payload names a different oracle key")
	ErrNotCanonical = errors.New("receipt: payload is not canonically encoded")
)

// Receipt is the signed body. Field keys are small integers so the encoding
// is compact and independent of Go field names.
type Receipt struct {
	Version    int               `cbor:"1,keyasint" json:"version"`
	RequestID  string            `cbor:"2,keyasint" json:"requestId"`
	ContentKey string            `cbor:"3,keyasint" json:"contentKey"`
	Root       hashtree.Hash     `cbor:"4,keyasint" json:"rootHash"`
	Size       uint64            `cbor:"5,keyasint" json:"size"`
	Challenges []model.Challenge `cbor:"6,keyasint" json:"challenges"`
	Verified   bool              `cbor:"7,keyasint" json:"verified"`
	Error      model.ErrorKind   `cbor:"8,keyasint,omitempty" json:"error,omitempty"`
	// IssuedAt is informational; zero omits it.
	IssuedAt  string `cbor:"9,keyasint,omitempty" json:"issuedAt,omitempty"`
	OracleKey string `cbor:"10,keyasint" json:"oracleKey"`
}

// SetIssuedAt records t in RFC 3339 UTC.
func (r *Receipt) SetIssuedAt(t time.Time) {
	if t.IsZero() {
		r.IssuedAt = ""
		return
	}
	r.IssuedAt = t.UTC().Format(time.RFC3339)
}

// Encode returns the canonical bytes of r.
func Encode(r Receipt) ([]byte, error) {
	return encMode.Marshal(r)
}

// Decode parses a payload and rejects non-canonical encodings.
func Decode(payload []byte) (Receipt, error) {
	var r Receipt
	if err := decMode.Unmarshal(payload, &r); err != nil {
		return Receipt{}, err
	}
	again, err := Encode(r)
	if err != nil {
		return Receipt{}, err
	}
	if !bytes.Equal(again, payload) {
		return Receipt{}, ErrNotCanonical
	}
	return r, nil
}

// CID returns the content identifier of a payload (CIDv1 raw + blake3).
func CID(payload []byte) (string, error) {
	id, err := cidutil.CIDv1RawBLAKE3(payload)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Sign stamps r with the signer's key, encodes it and signs the encoding.
func Sign(r Receipt, s keys.Signer) (model.SignedReceipt, error) {
	r.Version = Version
	r.OracleKey = s.PublicKey()
	payload, err := Encode(r)
	if err != nil {
		return model.SignedReceipt{}, err
	}
	id, err := CID(payload)
	if err != nil {
		return model.SignedReceipt{}, err
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return model.SignedReceipt{}, err
	}
	return model.SignedReceipt{
		Payload:   payload,
		CID:       id,
		Alg:       s.Alg(),
		PublicKey: s.PublicKey(),
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Verify checks a signed receipt end to end and returns its body.
func Verify(sr model.SignedReceipt) (Receipt, error) {
	id, err := CID(sr.Payload)
	if err != nil {
		return Receipt{}, err
	}
	if id != sr.CID {
		return Receipt{}, ErrCIDMismatch
	}
	sig, err := base64.StdEncoding.DecodeString(sr.Signature)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipt: signature base64: %w", err)
	}
	if err := keys.Verify(sr.PublicKey, sr.Alg, sr.Payload, sig); err != nil {
		return Receipt{}, err
	}
	r, err := Decode(sr.Payload)
	if err != nil {
		return Receipt{}, err
	}
	if r.OracleKey != sr.PublicKey {
		return Receipt{}, ErrKeyMismatch
	}
	return r, nil
}
