package grpcstore

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
//
// We use protobuf well-known types (wrappers, Struct, Empty) so this package
// does not require a protoc/codegen toolchain. Struct requests carry 64-bit
// integers as decimal strings.
const ServiceName = "xdao.pora.storage.v1.ProofStore"

// ProofStoreServer is the server API for the ProofStore service.
type ProofStoreServer interface {
	// FetchRange takes {key, offset, length}.
	FetchRange(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	// GetOutboard takes a hex root.
	GetOutboard(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// PutOutboard takes {root, outboard (base64)}.
	PutOutboard(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// StatOutboard returns the outboard length for a hex root.
	StatOutboard(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	// ReadOutboard takes {root, offset, length}.
	ReadOutboard(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	// GetCommitment takes a deal id and returns {cid, hash, size}.
	GetCommitment(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedProofStoreServer can be embedded to have forward compatible implementations.
type UnimplementedProofStoreServer struct{}

func (UnimplementedProofStoreServer) FetchRange(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method FetchRange not implemented")
}
func (UnimplementedProofStoreServer) GetOutboard(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOutboard not implemented")
}
func (UnimplementedProofStoreServer) PutOutboard(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method PutOutboard not implemented")
}
func (UnimplementedProofStoreServer) StatOutboard(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method StatOutboard not implemented")
}
func (UnimplementedProofStoreServer) ReadOutboard(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ReadOutboard not implemented")
}
func (UnimplementedProofStoreServer) GetCommitment(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCommitment not implemented")
}

// RegisterProofStoreServer registers the ProofStore service on a gRPC server.
func RegisterProofStoreServer(s grpc.ServiceRegistrar, srv ProofStoreServer) {
	s.RegisterService(&ProofStore_ServiceDesc, srv)
}

// ProofStoreClient is the client API for the ProofStore service.
type ProofStoreClient interface {
	FetchRange(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	GetOutboard(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	PutOutboard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	StatOutboard(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	ReadOutboard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	GetCommitment(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type proofStoreClient struct{ cc grpc.ClientConnInterface }

func NewProofStoreClient(cc grpc.ClientConnInterface) ProofStoreClient {
	return &proofStoreClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *proofStoreClient) FetchRange(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "FetchRange", in, opts)
}

func (c *proofStoreClient) GetOutboard(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "GetOutboard", in, opts)
}

func (c *proofStoreClient) PutOutboard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "PutOutboard", in, opts)
}

func (c *proofStoreClient) StatOutboard(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	return invoke[wrapperspb.Int64Value](ctx, c.cc, "StatOutboard", in, opts)
}

func (c *proofStoreClient) ReadOutboard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "ReadOutboard", in, opts)
}

func (c *proofStoreClient) GetCommitment(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "GetCommitment", in, opts)
}

// unary adapts a typed server method to the handler signature of
// grpc.MethodDesc.
func unary[Req any, Resp any](method string, call func(ProofStoreServer, context.Context, *Req) (Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProofStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ProofStoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ProofStore_ServiceDesc is the grpc.ServiceDesc for the ProofStore service.
var ProofStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProofStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FetchRange", Handler: unary("FetchRange", ProofStoreServer.FetchRange)},
		{MethodName: "GetOutboard", Handler: unary("GetOutboard", ProofStoreServer.GetOutboard)},
		{MethodName: "PutOutboard", Handler: unary("PutOutboard", ProofStoreServer.PutOutboard)},
		{MethodName: "StatOutboard", Handler: unary("StatOutboard", ProofStoreServer.StatOutboard)},
		{MethodName: "ReadOutboard", Handler: unary("ReadOutboard", ProofStoreServer.ReadOutboard)},
		{MethodName: "GetCommitment", Handler: unary("GetCommitment", ProofStoreServer.GetCommitment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proofstore.proto",
}
