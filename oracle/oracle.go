// Package oracle runs retrievability audits: it challenges a holder for one
// random chunk of committed content, fetches the chunk and its proof
// concurrently, and checks the pair against the committed root.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"xdao.co/pora/challenge"
	"xdao.co/pora/cidutil"
	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/storage"
	"xdao.co/pora/verifier"
)

// DefaultParallelism bounds concurrent audits in AuditRounds when
// Coordinator.Parallelism is unset.
const DefaultParallelism = 4

// State names a step of one audit. Transitions are logged at debug level.
type State string

const (
	StateSelecting      State = "selecting"
	StateFetchingBoth   State = "fetching"
	StateExtractingPath State = "extracting_path"
	StateVerifying      State = "verifying"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Coordinator audits commitments against a content fetcher and an outboard
// store. It is safe for concurrent use.
type Coordinator struct {
	Content storage.RangeFetcher
	Proofs  storage.OutboardStore

	// Random picks challenged chunks. When nil, the first audit installs a
	// generator of its own from challenge.NewSource.
	Random challenge.RandomSource

	// Parallelism bounds AuditRounds. Zero means DefaultParallelism.
	Parallelism int

	Logger *slog.Logger

	mu sync.Mutex
}

// Audit runs one challenge against the content behind contentKey.
//
// A holder that fails the challenge yields Valid=false with a nil error.
// Errors are *model.Error values tagged with the failing stage, except that a
// cancelled ctx is returned as ctx.Err().
func (c *Coordinator) Audit(ctx context.Context, commitment model.Commitment, contentKey string) (model.VerificationResult, error) {
	log := c.logger().With(
		"root", commitment.Root.String(),
		"content_key", contentKey,
		"size", commitment.Size,
	)
	res, err := c.audit(ctx, log, commitment, contentKey)
	if err != nil {
		log.Debug("audit", "state", StateFailed, "error_kind", model.KindOf(err), "error", err)
		return res, err
	}
	log.Debug("audit", "state", StateDone, "valid", res.Valid)
	return res, nil
}

func (c *Coordinator) audit(ctx context.Context, log *slog.Logger, commitment model.Commitment, contentKey string) (model.VerificationResult, error) {
	log.Debug("audit", "state", StateSelecting)
	if c.Content == nil || c.Proofs == nil {
		return model.VerificationResult{}, model.NewError(model.KindInvalidInput, "coordinator needs a content fetcher and an outboard store")
	}
	if err := commitment.Validate(); err != nil {
		return model.VerificationResult{}, err
	}
	key, err := cidutil.ParseContentKey(contentKey)
	if err != nil {
		return model.VerificationResult{}, model.WrapError(model.KindInvalidInput, "content key", err)
	}
	if _, err := hashtree.OutboardSize(commitment.Size); err != nil {
		return model.VerificationResult{}, model.WrapError(model.KindInternalOverflow, "outboard addressing", err)
	}
	ch, err := c.selectChallenge(commitment.Size)
	if err != nil {
		return model.VerificationResult{}, err
	}
	res := model.VerificationResult{Challenge: ch}
	log = log.With("chunk_index", ch.ChunkIndex, "offset", ch.Offset, "length", ch.Length)

	log.Debug("audit", "state", StateFetchingBoth)
	var (
		chunk    []byte
		outboard []byte
		path     hashtree.Path
		ranged   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := c.Content.FetchRange(gctx, key, ch.Offset, ch.Length)
		if err != nil {
			return model.WrapError(model.KindRetrievalFailure, "fetch chunk", err)
		}
		chunk = b
		return nil
	})
	g.Go(func() error {
		if r, ok := c.Proofs.(storage.OutboardReader); ok {
			p, err := readPath(gctx, r, commitment, ch.ChunkIndex)
			if err != nil {
				return model.WrapError(model.KindProofStorageFailure, "read outboard path", err)
			}
			path, ranged = p, true
			return nil
		}
		b, err := c.Proofs.GetOutboard(gctx, commitment.Root)
		if err != nil {
			return model.WrapError(model.KindProofStorageFailure, "fetch outboard", err)
		}
		outboard = b
		return nil
	})
	werr := g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if werr != nil {
		return res, werr
	}

	if uint64(len(chunk)) != uint64(ch.Length) {
		return res, model.NewError(model.KindSizeMismatch, sizeDetail(len(chunk), ch.Length))
	}

	total := commitment.TotalChunks()
	depth := hashtree.Depth(ch.ChunkIndex, total)
	log.Debug("audit", "state", StateExtractingPath, "ranged", ranged, "depth", depth)
	if !ranged {
		ob, err := hashtree.ParseOutboard(outboard, commitment.Size)
		if err != nil {
			return res, model.WrapError(model.KindProofStorageFailure, "parse outboard", err)
		}
		if path, err = ob.Path(ch.ChunkIndex); err != nil {
			return res, model.WrapError(model.KindProofStorageFailure, "extract path", err)
		}
	}

	if len(path) != depth {
		return res, model.NewError(model.KindProofStorageFailure, fmt.Sprintf("path has %d steps, chunk %d of %d sits at depth %d", len(path), ch.ChunkIndex, total, depth))
	}

	log.Debug("audit", "state", StateVerifying, "path_len", len(path))
	ok, err := verifier.Verify(verifier.Slice{
		Bytes:       chunk,
		Index:       ch.ChunkIndex,
		TotalChunks: total,
		Size:        commitment.Size,
		Path:        path,
	}, commitment.Root)
	switch {
	case errors.Is(err, verifier.ErrSizeMismatch):
		return res, model.WrapError(model.KindSizeMismatch, "verify", err)
	case err != nil:
		return res, model.WrapError(model.KindInvalidInput, "verify", err)
	}
	res.Valid = ok
	return res, nil
}

// AuditRounds runs rounds independent audits of the same commitment, at most
// Parallelism at a time, and returns every result in round order. The first
// error cancels the remaining rounds.
func (c *Coordinator) AuditRounds(ctx context.Context, commitment model.Commitment, contentKey string, rounds int) ([]model.VerificationResult, error) {
	if rounds <= 0 {
		return nil, model.NewError(model.KindInvalidInput, "rounds must be positive")
	}
	results := make([]model.VerificationResult, rounds)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism())
	for i := range rounds {
		g.Go(func() error {
			res, err := c.Audit(gctx, commitment, contentKey)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return results, nil
}

func (c *Coordinator) selectChallenge(size uint64) (model.Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Random == nil {
		src, err := challenge.NewSource()
		if err != nil {
			return model.Challenge{}, model.WrapError(model.KindInvalidInput, "seed random source", err)
		}
		c.Random = src
	}
	return challenge.Select(size, c.Random)
}

func (c *Coordinator) parallelism() int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	return DefaultParallelism
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return discard
}

// readPath extracts one path through a ranged outboard reader, touching only
// the header and the path's entries.
func readPath(ctx context.Context, r storage.OutboardReader, commitment model.Commitment, index uint64) (hashtree.Path, error) {
	ra, n, err := r.OpenOutboard(ctx, commitment.Root)
	if err != nil {
		return nil, err
	}
	if cl, ok := ra.(io.Closer); ok {
		defer cl.Close()
	}
	return hashtree.ReadOutboardPath(ra, n, commitment.Size, index)
}

func sizeDetail(got int, want uint32) string {
	return fmt.Sprintf("holder returned %d bytes, challenge asked for %d", got, want)
}

var discard = slog.New(slog.DiscardHandler)
