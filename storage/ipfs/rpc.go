package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xdao.co/pora/storage"
)

// RPC fetches content ranges from a Kubo node over its HTTP RPC API
// (POST /api/v0/cat).
type RPC struct {
	base   *url.URL
	client *http.Client
}

var _ storage.RangeFetcher = (*RPC)(nil)

type RPCOptions struct {
	// URL is the RPC API address, e.g. http://127.0.0.1:5001.
	URL string
	// Timeout bounds each request when non-zero.
	Timeout time.Duration
	// Client overrides the HTTP client.
	Client *http.Client
}

func NewRPC(opts RPCOptions) (*RPC, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("ipfs: rpc url is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ipfs: rpc url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ipfs: rpc url %q must be http or https", opts.URL)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &RPC{base: u, client: client}, nil
}

// rpcError is the JSON body Kubo returns with non-200 responses.
type rpcError struct {
	Message string
	Code    int
	Type    string
}

func (r *RPC) FetchRange(ctx context.Context, key string, offset uint64, length uint32) ([]byte, error) {
	id, err := parseCID(key)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("arg", id.String())
	q.Set("offset", strconv.FormatUint(offset, 10))
	q.Set("length", strconv.FormatUint(uint64(length), 10))
	endpoint := r.base.JoinPath("api", "v0", "cat")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs: rpc cat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e rpcError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(body, &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(body))
		}
		err := fmt.Errorf("ipfs: rpc cat: %s: %s", resp.Status, e.Message)
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, int64(length)))
	if err != nil {
		return nil, fmt.Errorf("ipfs: rpc cat: %w", err)
	}
	return b, nil
}
