// Package proto declares the caresync.v1.ObjectStore gRPC service. Every
// request and response is a google.protobuf.Struct, so the service works
// with the stock proto codec and needs no generated message types.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "caresync.v1.ObjectStore"

const (
	MethodPing          = "/" + ServiceName + "/Ping"
	MethodQuery         = "/" + ServiceName + "/Query"
	MethodSave          = "/" + ServiceName + "/Save"
	MethodUpdate        = "/" + ServiceName + "/Update"
	MethodTombstone     = "/" + ServiceName + "/Tombstone"
	MethodDelete        = "/" + ServiceName + "/Delete"
	MethodLinkVersion   = "/" + ServiceName + "/LinkVersion"
	MethodLoadVector    = "/" + ServiceName + "/LoadVector"
	MethodAdvanceVector = "/" + ServiceName + "/AdvanceVector"
)

// ObjectStoreServer is the server API for the ObjectStore service.
type ObjectStoreServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Tombstone(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LinkVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadVector(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdvanceVector(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ObjectStoreServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ObjectStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ObjectStoreServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ObjectStore_ServiceDesc is the grpc.ServiceDesc for the ObjectStore service.
var ObjectStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ObjectStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: handler(MethodPing, ObjectStoreServer.Ping)},
		{MethodName: "Query", Handler: handler(MethodQuery, ObjectStoreServer.Query)},
		{MethodName: "Save", Handler: handler(MethodSave, ObjectStoreServer.Save)},
		{MethodName: "Update", Handler: handler(MethodUpdate, ObjectStoreServer.Update)},
		{MethodName: "Tombstone", Handler: handler(MethodTombstone, ObjectStoreServer.Tombstone)},
		{MethodName: "Delete", Handler: handler(MethodDelete, ObjectStoreServer.Delete)},
		{MethodName: "LinkVersion", Handler: handler(MethodLinkVersion, ObjectStoreServer.LinkVersion)},
		{MethodName: "LoadVector", Handler: handler(MethodLoadVector, ObjectStoreServer.LoadVector)},
		{MethodName: "AdvanceVector", Handler: handler(MethodAdvanceVector, ObjectStoreServer.AdvanceVector)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "caresync/v1/objectstore.proto",
}

func RegisterObjectStoreServer(s grpc.ServiceRegistrar, srv ObjectStoreServer) {
	s.RegisterService(&ObjectStore_ServiceDesc, srv)
}

// ObjectStoreClient is the client API for the ObjectStore service.
type ObjectStoreClient interface {
	Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Tombstone(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LinkVersion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LoadVector(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	AdvanceVector(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type objectStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewObjectStoreClient(cc grpc.ClientConnInterface) ObjectStoreClient {
	return &objectStoreClient{cc: cc}
}

func (c *objectStoreClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPing, in, opts)
}

func (c *objectStoreClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodQuery, in, opts)
}

func (c *objectStoreClient) Save(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSave, in, opts)
}

func (c *objectStoreClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodUpdate, in, opts)
}

func (c *objectStoreClient) Tombstone(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodTombstone, in, opts)
}

func (c *objectStoreClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDelete, in, opts)
}

func (c *objectStoreClient) LinkVersion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodLinkVersion, in, opts)
}

func (c *objectStoreClient) LoadVector(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodLoadVector, in, opts)
}

func (c *objectStoreClient) AdvanceVector(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAdvanceVector, in, opts)
}
