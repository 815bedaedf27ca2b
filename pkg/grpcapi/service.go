// Package grpcapi exposes a device session over gRPC and provides a client
// implementing session.Session against it.
//
// Messages are google.protobuf.Struct values so no generated code is
// needed; the service descriptor below is what protoc-gen-go-grpc would
// emit for:
//
//	service DeviceSession {
//	  rpc ListRecords(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc UpdateRecord(google.protobuf.Struct) returns (google.protobuf.Empty);
//	  rpc FindModify(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "rosctl.v1.DeviceSession"

const (
	listRecordsMethod  = "/" + serviceName + "/ListRecords"
	updateRecordMethod = "/" + serviceName + "/UpdateRecord"
	findModifyMethod   = "/" + serviceName + "/FindModify"
)

// DeviceSessionServer is the server side of the DeviceSession service.
type DeviceSessionServer interface {
	ListRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateRecord(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	FindModify(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDeviceSessionServer registers srv with a gRPC server.
func RegisterDeviceSessionServer(s grpc.ServiceRegistrar, srv DeviceSessionServer) {
	s.RegisterService(&deviceSessionServiceDesc, srv)
}

var deviceSessionServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DeviceSessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRecords", Handler: listRecordsHandler},
		{MethodName: "UpdateRecord", Handler: updateRecordHandler},
		{MethodName: "FindModify", Handler: findModifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rosctl/v1/session.proto",
}

func listRecordsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceSessionServer).ListRecords(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRecordsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceSessionServer).ListRecords(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func updateRecordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceSessionServer).UpdateRecord(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: updateRecordMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceSessionServer).UpdateRecord(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func findModifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceSessionServer).FindModify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: findModifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeviceSessionServer).FindModify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
