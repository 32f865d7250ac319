package ipfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/pora/storage"
)

// CLI is a content fetcher backed by the local Kubo "ipfs" CLI.
//
// Properties:
//   - Reads ranges with `ipfs cat --offset --length`, so only the challenged
//     chunk is transferred out of the node.
//   - Best-effort: relies on an external "ipfs" binary (configurable).
//
// This adapter is not authoritative. Reachability is not validity; the
// verifier decides whether returned bytes belong to the commitment.
type CLI struct {
	bin string
	env []string
}

var _ storage.RangeFetcher = (*CLI)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// RepoPath sets IPFS_PATH for the command when non-empty.
	RepoPath string
	// Env optionally overrides the command environment.
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *CLI {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	env := opts.Env
	if opts.RepoPath != "" {
		if env == nil {
			env = os.Environ()
		}
		env = append(append([]string(nil), env...), "IPFS_PATH="+opts.RepoPath)
	}
	return &CLI{bin: bin, env: env}
}

func (c *CLI) FetchRange(ctx context.Context, key string, offset uint64, length uint32) ([]byte, error) {
	id, err := parseCID(key)
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx,
		"cat",
		"--offset="+strconv.FormatUint(offset, 10),
		"--length="+strconv.FormatUint(uint64(length), 10),
		id.String(),
	)
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func parseCID(key string) (cid.Cid, error) {
	id, err := cid.Decode(strings.TrimSpace(key))
	if err != nil || !id.Defined() {
		return cid.Undef, fmt.Errorf("%w: %q is not a cid", storage.ErrInvalidKey, key)
	}
	return id, nil
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no link named")
}
