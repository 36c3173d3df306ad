package policy

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payloads are google.protobuf.Struct messages so the Python server can
// build them from plain dicts.
const (
	serviceName         = "policy.v1.PolicyService"
	loadMethod          = "/policy.v1.PolicyService/Load"
	createTasksMethod   = "/policy.v1.PolicyService/CreateTasks"
	sampleActionsMethod = "/policy.v1.PolicyService/SampleActions"
)

// #region client-interface
// PolicyServiceClient is the client API for policy.v1.PolicyService.
type PolicyServiceClient interface {
	Load(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CreateTasks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SampleActions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type policyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPolicyServiceClient binds a PolicyServiceClient to a connection.
func NewPolicyServiceClient(cc grpc.ClientConnInterface) PolicyServiceClient {
	return &policyServiceClient{cc: cc}
}

func (c *policyServiceClient) Load(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, loadMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *policyServiceClient) CreateTasks(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, createTasksMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *policyServiceClient) SampleActions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, sampleActionsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-interface

// #region server-interface
// PolicyServiceServer is the server API for policy.v1.PolicyService.
type PolicyServiceServer interface {
	Load(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SampleActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPolicyServiceServer registers srv on s.
func RegisterPolicyServiceServer(s grpc.ServiceRegistrar, srv PolicyServiceServer) {
	s.RegisterService(&policyServiceDesc, srv)
}

type unaryCall func(PolicyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PolicyServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PolicyServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var policyServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PolicyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Load",
			Handler:    unaryHandler(loadMethod, PolicyServiceServer.Load),
		},
		{
			MethodName: "CreateTasks",
			Handler:    unaryHandler(createTasksMethod, PolicyServiceServer.CreateTasks),
		},
		{
			MethodName: "SampleActions",
			Handler:    unaryHandler(sampleActionsMethod, PolicyServiceServer.SampleActions),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "policy/v1/policy.proto",
}

// #endregion server-interface
