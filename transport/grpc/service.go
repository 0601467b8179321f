// Package grpc implements the remote-mode wire transport for the runtime
// facade (§4.7, §6): a narrow, hand-maintained ToolHost service whose
// request and response messages are generic structpb.Struct payloads built
// from the invocation protocol's named fields. There is no protoc-codegen
// step in this module's scope (§1 excludes "RPC server bindings and their
// code-generated message types" as an external collaborator), so the
// service descriptor below is written by hand the way protoc-gen-go-grpc
// would otherwise generate it.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/toolid"
)

// serviceName is the fully qualified gRPC service name.
const serviceName = "toolhost.v1.ToolHost"

// Backend is the local runtime surface the server adapts to the wire.
// Satisfied structurally by *hostruntime.Local; this package does not
// import hostruntime to avoid a dependency cycle (hostruntime's remote
// mode imports this package for Client).
type Backend interface {
	ListTools(ctx context.Context) ([]toolid.Descriptor, error)
	SearchTools(ctx context.Context, queryEmbedding []float32, topK int) ([]toolid.Descriptor, error)
	CallTool(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	Drain(ctx context.Context) error
}

// Server adapts a Backend to the ToolHost gRPC service.
type Server struct {
	backend Backend
}

// NewServer wraps backend for gRPC serving.
func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// RegisterToolHostServer registers srv with s under the ToolHost service
// descriptor.
func RegisterToolHostServer(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

// ListTools handles the wire-level ListTools RPC.
func (s *Server) ListTools(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	descriptors, err := s.backend.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return descriptorsToStruct(descriptors)
}

// SearchTools handles the wire-level SearchTools RPC.
func (s *Server) SearchTools(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	embedding, topK := structToSearchQuery(req)
	descriptors, err := s.backend.SearchTools(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}
	return descriptorsToStruct(descriptors)
}

// CallTool handles the wire-level CallTool RPC.
func (s *Server) CallTool(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	invocation, err := structToRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.backend.CallTool(ctx, invocation)
	if err != nil {
		return nil, err
	}
	return responseToStruct(resp)
}

// Drain handles the wire-level Drain RPC.
func (s *Server) Drain(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.backend.Drain(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListTools", Handler: listToolsHandler},
		{MethodName: "SearchTools", Handler: searchToolsHandler},
		{MethodName: "CallTool", Handler: callToolHandler},
		{MethodName: "Drain", Handler: drainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "toolhost.proto",
}

func listToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).ListTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListTools"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).ListTools(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func searchToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).SearchTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SearchTools"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).SearchTools(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func callToolHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).CallTool(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CallTool"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).CallTool(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func drainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Drain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Drain"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).Drain(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
