// Package s3store keeps content, outboards and deal metadata in S3 (or any
// S3-compatible object store).
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/model"
	"xdao.co/pora/storage"
)

// API is the subset of the S3 client the store uses (injectable for testing).
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options selects buckets per role. An empty bucket disables the role.
type Options struct {
	ContentBucket  string
	OutboardBucket string
	MetaBucket     string
	// Prefix is prepended to every object key.
	Prefix string
}

// Store maps the storage contracts onto S3 objects:
//
//	content:   <ContentBucket>/<prefix><content key>
//	outboards: <OutboardBucket>/<prefix>obao/<hex root>
//	deals:     <MetaBucket>/<prefix><deal id>   (JSON {cid, hash, size})
type Store struct {
	api  API
	opts Options
}

var (
	_ storage.RangeFetcher    = (*Store)(nil)
	_ storage.OutboardStore   = (*Store)(nil)
	_ storage.OutboardReader  = (*Store)(nil)
	_ storage.CommitmentStore = (*Store)(nil)
)

func New(api API, opts Options) (*Store, error) {
	if api == nil {
		return nil, errors.New("s3store: nil client")
	}
	if opts.ContentBucket == "" && opts.OutboardBucket == "" && opts.MetaBucket == "" {
		return nil, errors.New("s3store: at least one bucket is required")
	}
	return &Store{api: api, opts: opts}, nil
}

// ClientOptions configures the S3 client built by NewClient.
type ClientOptions struct {
	Region string
	// Endpoint overrides the service endpoint (MinIO, localstack). Path-style
	// addressing is used when set.
	Endpoint string
}

// NewClient loads the default AWS configuration from the environment.
func NewClient(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *Store) FetchRange(ctx context.Context, key string, offset uint64, length uint32) ([]byte, error) {
	if s.opts.ContentBucket == "" {
		return nil, fmt.Errorf("%w: content bucket not configured", storage.ErrUnsupported)
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: empty content key", storage.ErrInvalidKey)
	}
	if length == 0 {
		return []byte{}, nil
	}
	b, err := s.getRange(ctx, s.opts.ContentBucket, s.opts.Prefix+key, offset, uint64(length))
	if isInvalidRange(err) {
		// Offset at or past the end of the object.
		return []byte{}, nil
	}
	return b, err
}

func (s *Store) GetOutboard(ctx context.Context, root hashtree.Hash) ([]byte, error) {
	bucket, key, err := s.outboardKey(root)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, bucket, key)
}

func (s *Store) PutOutboard(ctx context.Context, root hashtree.Hash, buf []byte) error {
	bucket, key, err := s.outboardKey(root)
	if err != nil {
		return err
	}
	return s.putOnce(ctx, bucket, key, buf)
}

// OpenOutboard returns a reader issuing one ranged GET per ReadAt.
func (s *Store) OpenOutboard(ctx context.Context, root hashtree.Hash) (io.ReaderAt, int64, error) {
	bucket, key, err := s.outboardKey(root)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, 0, mapErr(err)
	}
	return &objectReader{ctx: ctx, s: s, bucket: bucket, key: key}, aws.ToInt64(out.ContentLength), nil
}

// PutContent uploads content under key.
func (s *Store) PutContent(ctx context.Context, key string, data []byte) error {
	if s.opts.ContentBucket == "" {
		return fmt.Errorf("%w: content bucket not configured", storage.ErrUnsupported)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty content key", storage.ErrInvalidKey)
	}
	return s.putOnce(ctx, s.opts.ContentBucket, s.opts.Prefix+key, data)
}

// PutDeal records deal metadata.
func (s *Store) PutDeal(ctx context.Context, id string, d model.Deal) error {
	if s.opts.MetaBucket == "" {
		return fmt.Errorf("%w: metadata bucket not configured", storage.ErrUnsupported)
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.putOnce(ctx, s.opts.MetaBucket, s.opts.Prefix+id, b)
}

func (s *Store) GetCommitment(ctx context.Context, dealID string) (model.Deal, error) {
	if s.opts.MetaBucket == "" {
		return model.Deal{}, fmt.Errorf("%w: metadata bucket not configured", storage.ErrUnsupported)
	}
	if strings.TrimSpace(dealID) == "" {
		return model.Deal{}, fmt.Errorf("%w: empty deal id", storage.ErrInvalidKey)
	}
	b, err := s.get(ctx, s.opts.MetaBucket, s.opts.Prefix+dealID)
	if err != nil {
		return model.Deal{}, err
	}
	var d model.Deal
	if err := json.Unmarshal(b, &d); err != nil {
		return model.Deal{}, fmt.Errorf("s3store: deal %q: %w", dealID, err)
	}
	return d, nil
}

func (s *Store) outboardKey(root hashtree.Hash) (string, string, error) {
	if s.opts.OutboardBucket == "" {
		return "", "", fmt.Errorf("%w: outboard bucket not configured", storage.ErrUnsupported)
	}
	return s.opts.OutboardBucket, s.opts.Prefix + "obao/" + root.String(), nil
}

func (s *Store) get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, mapErr(err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *Store) getRange(ctx context.Context, bucket, key string, offset, n uint64) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+n-1)),
	})
	if err != nil {
		return nil, mapErr(err)
	}
	defer out.Body.Close()
	return io.ReadAll(io.LimitReader(out.Body, int64(n)))
}

// putOnce writes an object only if the key is free. An existing object with
// the same bytes is success; different bytes are storage.ErrImmutable.
func (s *Store) putOnce(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
	})
	if err == nil {
		return nil
	}
	if !hasCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
		return err
	}
	existing, gerr := s.get(ctx, bucket, key)
	if gerr != nil || !bytes.Equal(existing, data) {
		return storage.ErrImmutable
	}
	return nil
}

type objectReader struct {
	ctx    context.Context
	s      *Store
	bucket string
	key    string
}

func (r *objectReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("s3store: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	b, err := r.s.getRange(r.ctx, r.bucket, r.key, uint64(off), uint64(len(p)))
	if isInvalidRange(err) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	n := copy(p, b)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func mapErr(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) || hasCode(err, "NoSuchKey", "NotFound") {
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}
	return err
}

func isInvalidRange(err error) bool {
	return err != nil && hasCode(err, "InvalidRange")
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}
