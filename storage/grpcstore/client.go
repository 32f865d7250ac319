package grpcstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/storage"
)

// Client implements the storage contracts over a ProofStore gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client ProofStoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var (
	_ storage.RangeFetcher    = (*Client)(nil)
	_ storage.OutboardStore   = (*Client)(nil)
	_ storage.OutboardReader  = (*Client)(nil)
	_ storage.CommitmentStore = (*Client)(nil)
)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewProofStoreClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) FetchRange(ctx context.Context, key string, offset uint64, length uint32) ([]byte, error) {
	in, err := structpb.NewStruct(map[string]any{
		"key":    key,
		"offset": strconv.FormatUint(offset, 10),
		"length": strconv.FormatUint(uint64(length), 10),
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.FetchRange(ctx, in)
	if err != nil {
		return nil, fromStatus(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.GetOutboard(ctx, wrapperspb.String(root.String()))
	if err != nil {
		return nil, fromStatus(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error {
	in, err := structpb.NewStruct(map[string]any{
		"root":     root.String(),
		"outboard": base64.StdEncoding.EncodeToString(buf),
	})
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err = c.client.PutOutboard(ctx, in)
	return fromStatus(err)
}

// OpenOutboard returns a reader issuing one ReadOutboard RPC per ReadAt.
func (c *Client) OpenOutboard(ctx context.Context, root hashtree.Hash) (io.ReaderAt, int64, error) {
	rctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.StatOutboard(rctx, wrapperspb.String(root.String()))
	if err != nil {
		return nil, 0, fromStatus(err)
	}
	return &remoteOutboard{ctx: ctx, c: c, root: root}, reply.GetValue(), nil
}

func (c *Client) GetCommitment(ctx context.Context, dealID string) (model.Deal, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.GetCommitment(ctx, wrapperspb.String(dealID))
	if err != nil {
		return model.Deal{}, fromStatus(err)
	}
	size, err := strconv.ParseUint(stringField(reply, "size"), 10, 64)
	if err != nil {
		return model.Deal{}, fmt.Errorf("grpcstore: deal %q size: %w", dealID, err)
	}
	return model.Deal{
		ContentKey: stringField(reply, "cid"),
		Hash:       stringField(reply, "hash"),
		Size:       size,
	}, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

type remoteOutboard struct {
	ctx  context.Context
	c    *Client
	root hashtree.Hash
}

func (r *remoteOutboard) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("grpcstore: negative offset")
	}
	in, err := structpb.NewStruct(map[string]any{
		"root":   r.root.String(),
		"offset": strconv.FormatInt(off, 10),
		"length": strconv.Itoa(len(p)),
	})
	if err != nil {
		return 0, err
	}
	ctx, cancel := r.c.ctx(r.ctx)
	defer cancel()

	reply, err := r.c.client.ReadOutboard(ctx, in)
	if err != nil {
		return 0, fromStatus(err)
	}
	n := copy(p, reply.GetValue())
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
