package oracle

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/keys"
	"xdao.co/pora/model"
	"xdao.co/pora/receipt"
	"xdao.co/pora/storage"
)

// Handler answers oracle requests. Every request gets a response; failures
// are reported in Response.Error rather than returned.
type Handler struct {
	Coordinator *Coordinator

	// Commitments resolves Request.DealID. Nil rejects requests that name a
	// deal.
	Commitments storage.CommitmentStore

	// Signer, when set, attaches a signed receipt to every audited request.
	Signer keys.Signer

	// Rounds is the number of independent challenges per request. Zero means
	// one. The request is verified only if every round is.
	Rounds int

	NewRequestID func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// Handle resolves req to a commitment, audits it and reports the outcome.
func (h *Handler) Handle(ctx context.Context, req model.Request) model.Response {
	resp := model.Response{RequestID: h.requestID()}
	log := h.logger().With("request_id", resp.RequestID)

	commitment, key, err := h.resolve(ctx, req)
	if err != nil {
		log.Info("request rejected", "error", err)
		return fail(resp, err)
	}
	log = log.With("root", commitment.Root.String(), "content_key", key)
	if h.Coordinator == nil {
		err := model.NewError(model.KindInvalidInput, "handler has no coordinator")
		log.Error("request rejected", "error", err)
		return fail(resp, err)
	}

	results, auditErr := h.Coordinator.AuditRounds(ctx, commitment, key, h.rounds())
	if auditErr != nil {
		resp = fail(resp, auditErr)
		log.Warn("audit failed", "error_kind", resp.Error, "error", auditErr)
	} else {
		verified := true
		for _, r := range results {
			verified = verified && r.Valid
		}
		resp.Verified = &verified
		log.Info("audit complete", "verified", verified, "rounds", len(results))
	}

	if h.Signer != nil {
		sr, err := h.sign(resp, commitment, key, results)
		if err != nil {
			log.Error("sign receipt", "error", err)
		} else {
			resp.Receipt = &sr
		}
	}
	return resp
}

// ServeJSON reads one JSON request from r, handles it and writes the JSON
// response to w. A malformed request is answered with InvalidInput. The
// response is also returned so callers can act on the outcome.
func (h *Handler) ServeJSON(ctx context.Context, r io.Reader, w io.Writer) (model.Response, error) {
	var req model.Request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var resp model.Response
	if err := dec.Decode(&req); err != nil {
		resp = fail(model.Response{RequestID: h.requestID()}, model.WrapError(model.KindInvalidInput, "decode request", err))
	} else {
		resp = h.Handle(ctx, req)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return resp, enc.Encode(resp)
}

func (h *Handler) resolve(ctx context.Context, req model.Request) (model.Commitment, string, error) {
	if req.DealID != "" {
		if h.Commitments == nil {
			return model.Commitment{}, "", model.NewError(model.KindInvalidInput, "deal lookup is not configured")
		}
		deal, err := h.Commitments.GetCommitment(ctx, req.DealID)
		if err != nil {
			if storage.IsNotFound(err) {
				return model.Commitment{}, "", model.WrapError(model.KindInvalidInput, "unknown deal "+req.DealID, err)
			}
			return model.Commitment{}, "", model.WrapError(model.KindProofStorageFailure, "deal lookup", err)
		}
		c, err := deal.Commitment()
		if err != nil {
			return model.Commitment{}, "", err
		}
		return c, deal.ContentKey, nil
	}

	root, err := hashtree.ParseHash(req.RootHash)
	if err != nil {
		return model.Commitment{}, "", model.WrapError(model.KindInvalidInput, "rootHash", err)
	}
	c := model.Commitment{Root: root, Size: req.Size}
	if err := c.Validate(); err != nil {
		return model.Commitment{}, "", err
	}
	if req.ContentKey == "" {
		return model.Commitment{}, "", model.NewError(model.KindInvalidInput, "contentKey is required")
	}
	return c, req.ContentKey, nil
}

func (h *Handler) sign(resp model.Response, c model.Commitment, key string, results []model.VerificationResult) (model.SignedReceipt, error) {
	r := receipt.Receipt{
		RequestID:  resp.RequestID,
		ContentKey: key,
		Root:       c.Root,
		Size:       c.Size,
		Verified:   resp.Verified != nil && *resp.Verified,
		Error:      resp.Error,
	}
	for _, res := range results {
		r.Challenges = append(r.Challenges, res.Challenge)
	}
	r.SetIssuedAt(h.now())
	return receipt.Sign(r, h.Signer)
}

// fail records err on resp. Errors without a kind are context or transport
// failures while reaching the holder.
func fail(resp model.Response, err error) model.Response {
	kind := model.KindOf(err)
	if kind == "" {
		kind = model.KindRetrievalFailure
	}
	resp.Error = kind
	resp.Detail = err.Error()
	return resp
}

func (h *Handler) requestID() string {
	if h.NewRequestID != nil {
		return h.NewRequestID()
	}
	return uuid.NewString()
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) rounds() int {
	if h.Rounds > 0 {
		return h.Rounds
	}
	return 1
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return discard
}
