package grpcstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/pora/hashtree"
	"xdao.co/pora/storage"
)

// maxRange caps one FetchRange or ReadOutboard reply.
const maxRange = 4 << 20

// Server exposes a storage.Backend over the ProofStore gRPC service. Roles the
// backend lacks answer Unimplemented.
type Server struct {
	UnimplementedProofStoreServer
	Backend storage.Backend
}

func (s *Server) FetchRange(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Backend.Content == nil {
		return nil, status.Error(codes.Unimplemented, "no content backend")
	}
	key := stringField(in, "key")
	offset, length, err := rangeFields(in)
	if err != nil {
		return nil, err
	}
	b, err := s.Backend.Content.FetchRange(ctx, key, offset, length)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) GetOutboard(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	store, root, err := s.outboards(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := store.GetOutboard(ctx, root)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) PutOutboard(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	store, root, err := s.outboards(stringField(in, "root"))
	if err != nil {
		return nil, err
	}
	buf, err := base64.StdEncoding.DecodeString(stringField(in, "outboard"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "outboard: %v", err)
	}
	size, err := hashtree.DecodeHeader(buf)
	if err == nil {
		_, err = hashtree.ParseOutboard(buf, size)
	}
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := store.PutOutboard(ctx, root, buf); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) StatOutboard(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	store, root, err := s.outboards(in.GetValue())
	if err != nil {
		return nil, err
	}
	r, n, err := storage.OpenOutboard(ctx, store, root)
	if err != nil {
		return nil, toStatus(err)
	}
	closeReader(r)
	return wrapperspb.Int64(n), nil
}

func (s *Server) ReadOutboard(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	store, root, err := s.outboards(stringField(in, "root"))
	if err != nil {
		return nil, err
	}
	offset, length, err := rangeFields(in)
	if err != nil {
		return nil, err
	}
	r, n, err := storage.OpenOutboard(ctx, store, root)
	if err != nil {
		return nil, toStatus(err)
	}
	defer closeReader(r)
	b, err := storage.ReadRange(r, n, offset, length)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) GetCommitment(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s == nil || s.Backend.Commitments == nil {
		return nil, status.Error(codes.Unimplemented, "no commitment backend")
	}
	d, err := s.Backend.Commitments.GetCommitment(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"cid":  d.ContentKey,
		"hash": d.Hash,
		"size": strconv.FormatUint(d.Size, 10),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) outboards(rootHex string) (storage.OutboardStore, hashtree.Hash, error) {
	if s == nil || s.Backend.Outboards == nil {
		return nil, hashtree.Hash{}, status.Error(codes.Unimplemented, "no outboard backend")
	}
	root, err := hashtree.ParseHash(rootHex)
	if err != nil {
		return nil, hashtree.Hash{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.Backend.Outboards, root, nil
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func rangeFields(in *structpb.Struct) (uint64, uint32, error) {
	offset, err := strconv.ParseUint(stringField(in, "offset"), 10, 64)
	if err != nil {
		return 0, 0, status.Errorf(codes.InvalidArgument, "offset: %v", err)
	}
	length, err := strconv.ParseUint(stringField(in, "length"), 10, 32)
	if err != nil {
		return 0, 0, status.Errorf(codes.InvalidArgument, "length: %v", err)
	}
	if length > maxRange {
		return 0, 0, status.Error(codes.InvalidArgument, fmt.Sprintf("length %d exceeds %d", length, maxRange))
	}
	return offset, uint32(length), nil
}

func closeReader(r io.ReaderAt) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
