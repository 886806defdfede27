package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const SERVICE_NAME = "mediaflow.v1.WorkerService"

// WorkerServiceServer is the protocol out-of-process workers speak. Messages
// are structpb.Struct values carrying the same fields as the REST API.
type WorkerServiceServer interface {
	Poll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Start(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Complete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Fail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv WorkerServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WorkerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + SERVICE_NAME + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(WorkerServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var WorkerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SERVICE_NAME,
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Poll", WorkerServiceServer.Poll),
		handler("Start", WorkerServiceServer.Start),
		handler("Complete", WorkerServiceServer.Complete),
		handler("Fail", WorkerServiceServer.Fail),
		handler("Cancel", WorkerServiceServer.Cancel),
		handler("Get", WorkerServiceServer.Get),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mediaflow/v1/worker.proto",
}

func RegisterWorkerServiceServer(s grpc.ServiceRegistrar, srv WorkerServiceServer) {
	s.RegisterService(&WorkerService_ServiceDesc, srv)
}

// WorkerServiceClient is the worker side of WorkerService.
type WorkerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerServiceClient(cc grpc.ClientConnInterface) *WorkerServiceClient {
	return &WorkerServiceClient{cc: cc}
}

func (c *WorkerServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+SERVICE_NAME+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WorkerServiceClient) Poll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Poll", in, opts...)
}

func (c *WorkerServiceClient) Start(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Start", in, opts...)
}

func (c *WorkerServiceClient) Complete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Complete", in, opts...)
}

func (c *WorkerServiceClient) Fail(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Fail", in, opts...)
}

func (c *WorkerServiceClient) Cancel(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Cancel", in, opts...)
}

func (c *WorkerServiceClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Get", in, opts...)
}
