package streamproto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	StreamManager_CreateMaterializedView_FullMethodName = "/streamddl.stream.v1.StreamManager/CreateMaterializedView"
	StreamManager_DropMaterializedView_FullMethodName   = "/streamddl.stream.v1.StreamManager/DropMaterializedView"
	StreamManager_ListDataflows_FullMethodName          = "/streamddl.stream.v1.StreamManager/ListDataflows"
)

type StreamManagerClient interface {
	CreateMaterializedView(ctx context.Context, in *CreateMaterializedViewRequest, opts ...grpc.CallOption) (*CreateMaterializedViewResponse, error)
	DropMaterializedView(ctx context.Context, in *DropMaterializedViewRequest, opts ...grpc.CallOption) (*DropMaterializedViewResponse, error)
	ListDataflows(ctx context.Context, in *ListDataflowsRequest, opts ...grpc.CallOption) (*ListDataflowsResponse, error)
}

type streamManagerClient struct {
	cc grpc.ClientConnInterface
}

func NewStreamManagerClient(cc grpc.ClientConnInterface) StreamManagerClient {
	return &streamManagerClient{cc: cc}
}

func (c *streamManagerClient) CreateMaterializedView(ctx context.Context, in *CreateMaterializedViewRequest, opts ...grpc.CallOption) (*CreateMaterializedViewResponse, error) {
	out := new(CreateMaterializedViewResponse)
	if err := c.cc.Invoke(ctx, StreamManager_CreateMaterializedView_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *streamManagerClient) DropMaterializedView(ctx context.Context, in *DropMaterializedViewRequest, opts ...grpc.CallOption) (*DropMaterializedViewResponse, error) {
	out := new(DropMaterializedViewResponse)
	if err := c.cc.Invoke(ctx, StreamManager_DropMaterializedView_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *streamManagerClient) ListDataflows(ctx context.Context, in *ListDataflowsRequest, opts ...grpc.CallOption) (*ListDataflowsResponse, error) {
	out := new(ListDataflowsResponse)
	if err := c.cc.Invoke(ctx, StreamManager_ListDataflows_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type StreamManagerServer interface {
	CreateMaterializedView(context.Context, *CreateMaterializedViewRequest) (*CreateMaterializedViewResponse, error)
	DropMaterializedView(context.Context, *DropMaterializedViewRequest) (*DropMaterializedViewResponse, error)
	ListDataflows(context.Context, *ListDataflowsRequest) (*ListDataflowsResponse, error)
	mustEmbedUnimplementedStreamManagerServer()
}

type UnimplementedStreamManagerServer struct{}

func (UnimplementedStreamManagerServer) CreateMaterializedView(context.Context, *CreateMaterializedViewRequest) (*CreateMaterializedViewResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateMaterializedView not implemented")
}
func (UnimplementedStreamManagerServer) DropMaterializedView(context.Context, *DropMaterializedViewRequest) (*DropMaterializedViewResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DropMaterializedView not implemented")
}
func (UnimplementedStreamManagerServer) ListDataflows(context.Context, *ListDataflowsRequest) (*ListDataflowsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListDataflows not implemented")
}
func (UnimplementedStreamManagerServer) mustEmbedUnimplementedStreamManagerServer() {}

func RegisterStreamManagerServer(s grpc.ServiceRegistrar, srv StreamManagerServer) {
	s.RegisterService(&StreamManager_ServiceDesc, srv)
}

func _StreamManager_CreateMaterializedView_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateMaterializedViewRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StreamManagerServer).CreateMaterializedView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StreamManager_CreateMaterializedView_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StreamManagerServer).CreateMaterializedView(ctx, req.(*CreateMaterializedViewRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StreamManager_DropMaterializedView_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DropMaterializedViewRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StreamManagerServer).DropMaterializedView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StreamManager_DropMaterializedView_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StreamManagerServer).DropMaterializedView(ctx, req.(*DropMaterializedViewRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StreamManager_ListDataflows_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListDataflowsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StreamManagerServer).ListDataflows(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StreamManager_ListDataflows_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StreamManagerServer).ListDataflows(ctx, req.(*ListDataflowsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var StreamManager_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "streamddl.stream.v1.StreamManager",
	HandlerType: (*StreamManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateMaterializedView", Handler: _StreamManager_CreateMaterializedView_Handler},
		{MethodName: "DropMaterializedView", Handler: _StreamManager_DropMaterializedView_Handler},
		{MethodName: "ListDataflows", Handler: _StreamManager_ListDataflows_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/stream/proto/stream_manager.proto",
}
