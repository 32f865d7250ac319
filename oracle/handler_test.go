package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"xdao.co/pora/keys"
	"xdao.co/pora/model"
	"xdao.co/pora/receipt"
	"xdao.co/pora/storage/testkit"
)

func newHandler(mem *testkit.Memory) *Handler {
	return &Handler{
		Coordinator:  newCoordinator(mem, 9),
		Commitments:  mem,
		NewRequestID: func() string { return "req-1" },
	}
}

func TestHandle_ExplicitCommitment(t *testing.T) {
	fx := testkit.NewFixture("k", 6000)
	mem := testkit.NewMemory()
	mem.Load(fx)

	resp := newHandler(mem).Handle(context.Background(), model.Request{
		ContentKey: fx.Key,
		RootHash:   fx.Root.String(),
		Size:       6000,
	})
	if resp.RequestID != "req-1" {
		t.Fatalf("request id %q", resp.RequestID)
	}
	if resp.Error != "" || resp.Verified == nil || !*resp.Verified {
		t.Fatalf("response %+v", resp)
	}
	if resp.Receipt != nil {
		t.Fatalf("receipt attached without a signer")
	}
}

func TestHandle_DealLookup(t *testing.T) {
	fx := testkit.NewFixture("k", 3000)
	mem := testkit.NewMemory()
	mem.Load(fx)
	mem.PutDeal("deal-1", fx.Deal())

	h := newHandler(mem)
	resp := h.Handle(context.Background(), model.Request{DealID: "deal-1"})
	if resp.Verified == nil || !*resp.Verified {
		t.Fatalf("response %+v", resp)
	}

	resp = h.Handle(context.Background(), model.Request{DealID: "deal-2"})
	if resp.Error != model.KindInvalidInput || resp.Verified != nil {
		t.Fatalf("unknown deal: %+v", resp)
	}

	h.Commitments = nil
	resp = h.Handle(context.Background(), model.Request{DealID: "deal-1"})
	if resp.Error != model.KindInvalidInput {
		t.Fatalf("no commitment store: %+v", resp)
	}
}

func TestHandle_InvalidRequests(t *testing.T) {
	fx := testkit.NewFixture("k", 3000)
	mem := testkit.NewMemory()
	mem.Load(fx)
	h := newHandler(mem)

	cases := []struct {
		name string
		req  model.Request
	}{
		{"short root", model.Request{ContentKey: "k", RootHash: "abcd", Size: 3000}},
		{"non-hex root", model.Request{ContentKey: "k", RootHash: strings.Repeat("zz", 32), Size: 3000}},
		{"zero size", model.Request{ContentKey: "k", RootHash: fx.Root.String()}},
		{"no content key", model.Request{RootHash: fx.Root.String(), Size: 3000}},
	}
	for _, tc := range cases {
		resp := h.Handle(context.Background(), tc.req)
		if resp.Error != model.KindInvalidInput || resp.Verified != nil || resp.Detail == "" {
			t.Fatalf("%s: %+v", tc.name, resp)
		}
	}
}

func TestHandle_FailureKinds(t *testing.T) {
	fx := testkit.NewFixture("k", 3000)
	mem := testkit.NewMemory()
	mem.PutContent(fx.Key, fx.Data)
	h := newHandler(mem)

	resp := h.Handle(context.Background(), model.Request{ContentKey: fx.Key, RootHash: fx.Root.String(), Size: 3000})
	if resp.Error != model.KindProofStorageFailure || resp.Verified != nil {
		t.Fatalf("missing outboard: %+v", resp)
	}

	resp = h.Handle(context.Background(), model.Request{ContentKey: "absent", RootHash: fx.Root.String(), Size: 3000})
	if resp.Error != model.KindRetrievalFailure && resp.Error != model.KindProofStorageFailure {
		t.Fatalf("missing content and outboard: %+v", resp)
	}
}

func TestHandle_RejectedHolder(t *testing.T) {
	fx := testkit.NewFixture("k", 2048)
	mem := testkit.NewMemory()
	mem.Load(fx)
	bad := bytes.Repeat([]byte{0xee}, 2048)
	mem.PutContent(fx.Key, bad)

	resp := newHandler(mem).Handle(context.Background(), model.Request{ContentKey: fx.Key, RootHash: fx.Root.String(), Size: 2048})
	if resp.Error != "" || resp.Verified == nil || *resp.Verified {
		t.Fatalf("response %+v", resp)
	}
}

func TestHandle_SignedReceipt(t *testing.T) {
	fx := testkit.NewFixture("k", 9000)
	mem := testkit.NewMemory()
	mem.Load(fx)
	signer, err := keys.NewSigner("ed25519", bytes.Repeat([]byte{7}, keys.SeedSize), "sha256")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h := newHandler(mem)
	h.Signer = signer
	h.Rounds = 3
	h.Now = func() time.Time { return issued }

	resp := h.Handle(context.Background(), model.Request{ContentKey: fx.Key, RootHash: fx.Root.String(), Size: 9000})
	if resp.Verified == nil || !*resp.Verified || resp.Receipt == nil {
		t.Fatalf("response %+v", resp)
	}
	r, err := receipt.Verify(*resp.Receipt)
	if err != nil {
		t.Fatalf("receipt.Verify: %v", err)
	}
	if r.RequestID != "req-1" || r.ContentKey != fx.Key || r.Root != fx.Root || r.Size != 9000 {
		t.Fatalf("receipt body %+v", r)
	}
	if !r.Verified || r.Error != "" || len(r.Challenges) != 3 {
		t.Fatalf("receipt outcome %+v", r)
	}
	if r.IssuedAt != "2026-03-01T12:00:00Z" || r.OracleKey != signer.PublicKey() {
		t.Fatalf("receipt stamp %q %q", r.IssuedAt, r.OracleKey)
	}

	// Failed audits are receipted too.
	resp = h.Handle(context.Background(), model.Request{ContentKey: "absent", RootHash: fx.Root.String(), Size: 9000})
	if resp.Receipt == nil {
		t.Fatalf("no receipt for a failed audit")
	}
	r, err = receipt.Verify(*resp.Receipt)
	if err != nil {
		t.Fatalf("receipt.Verify: %v", err)
	}
	if r.Verified || r.Error != model.KindRetrievalFailure || len(r.Challenges) != 0 {
		t.Fatalf("failed receipt %+v", r)
	}

	// Rejected requests never reach an audit and carry no receipt.
	resp = h.Handle(context.Background(), model.Request{ContentKey: "k", RootHash: "nope", Size: 1})
	if resp.Receipt != nil {
		t.Fatalf("receipt attached to a rejected request")
	}
}

func TestServeJSON(t *testing.T) {
	fx := testkit.NewFixture("k", 1500)
	mem := testkit.NewMemory()
	mem.Load(fx)
	h := newHandler(mem)

	in := `{"contentKey":"k","rootHash":"` + fx.Root.String() + `","size":1500}`
	var out bytes.Buffer
	got, err := h.ServeJSON(context.Background(), strings.NewReader(in), &out)
	if err != nil {
		t.Fatalf("ServeJSON: %v", err)
	}
	if got.Verified == nil || !*got.Verified {
		t.Fatalf("returned response %+v", got)
	}
	var resp map[string]any
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("response JSON: %v", err)
	}
	if resp["requestId"] != "req-1" || resp["verified"] != true {
		t.Fatalf("response %s", out.String())
	}
	if _, ok := resp["error"]; ok {
		t.Fatalf("error field on success: %s", out.String())
	}

	out.Reset()
	if _, err := h.ServeJSON(context.Background(), strings.NewReader(`{"contentKey":"k","bogus":1}`), &out); err != nil {
		t.Fatalf("ServeJSON: %v", err)
	}
	resp = nil
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("response JSON: %v", err)
	}
	if resp["error"] != string(model.KindInvalidInput) {
		t.Fatalf("unknown field: %s", out.String())
	}
	if _, ok := resp["verified"]; ok {
		t.Fatalf("verified field on failure: %s", out.String())
	}
}

func TestHandle_NoCoordinator(t *testing.T) {
	fx := testkit.NewFixture("k", 3000)
	mem := testkit.NewMemory()
	mem.Load(fx)
	signer, err := keys.NewSigner("ed25519", bytes.Repeat([]byte{7}, keys.SeedSize), "sha256")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	h := &Handler{Commitments: mem, Signer: signer, NewRequestID: func() string { return "req-1" }}

	resp := h.Handle(context.Background(), model.Request{ContentKey: fx.Key, RootHash: fx.Root.String(), Size: 3000})
	if resp.Error != model.KindInvalidInput || resp.Verified != nil || resp.Receipt != nil {
		t.Fatalf("response %+v", resp)
	}
}
