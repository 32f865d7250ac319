package model

import (
	"fmt"

	"xdao.co/pora/hashtree"
)

// Commitment is the root digest and declared size a holder claims to store.
// It is created at ingestion time and never modified.
type Commitment struct {
	Root hashtree.Hash `json:"rootHash"`
	Size uint64        `json:"size"`
}

// Validate rejects commitments the oracle cannot audit.
func (c Commitment) Validate() error {
	if c.Size == 0 {
		return NewError(KindInvalidInput, "commitment size must be positive")
	}
	return nil
}

// TotalChunks returns the number of leaves in the commitment's tree.
func (c Commitment) TotalChunks() uint64 { return hashtree.ChunkCount(c.Size) }

// Deal is the ingestion-time metadata for one stored object: where the
// content lives and what it was committed to.
type Deal struct {
	ContentKey string `json:"cid"`
	Hash       string `json:"hash"`
	Size       uint64 `json:"size"`
}

func (d Deal) Commitment() (Commitment, error) {
	root, err := hashtree.ParseHash(d.Hash)
	if err != nil {
		return Commitment{}, WrapError(KindInvalidInput, "deal hash", err)
	}
	c := Commitment{Root: root, Size: d.Size}
	return c, c.Validate()
}

// Challenge is one chunk-aligned byte range selected for an audit.
type Challenge struct {
	ChunkIndex  uint64 `json:"chunkIndex"`
	TotalChunks uint64 `json:"totalChunks"`
	Offset      uint64 `json:"offset"`
	Length      uint32 `json:"length"`
}

func (c Challenge) String() string {
	return fmt.Sprintf("chunk %d/%d [%d,+%d)", c.ChunkIndex, c.TotalChunks, c.Offset, c.Length)
}

// VerificationResult is the answer to one audit. Valid=false means the holder
// failed the challenge; infrastructure faults are reported as errors instead.
type VerificationResult struct {
	Valid     bool      `json:"valid"`
	Challenge Challenge `json:"challenge"`
}

// Request asks the oracle to audit one commitment. Either ContentKey,
// RootHash and Size are set, or DealID names stored deal metadata.
type Request struct {
	ContentKey string `json:"contentKey,omitempty"`
	RootHash   string `json:"rootHash,omitempty"`
	Size       uint64 `json:"size,omitempty"`
	DealID     string `json:"dealId,omitempty"`
}

// Response carries either Verified or Error.
type Response struct {
	RequestID string         `json:"requestId"`
	Verified  *bool          `json:"verified,omitempty"`
	Error     ErrorKind      `json:"error,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Receipt   *SignedReceipt `json:"receipt,omitempty"`
}

// SignedReceipt is an attributable record of one audit outcome. Payload is
// the canonical receipt encoding and CID is derived from it.
type SignedReceipt struct {
	Payload   []byte `json:"payload"`
	CID       string `json:"cid"`
	Alg       string `json:"alg"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}
