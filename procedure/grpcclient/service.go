// Package grpcclient wires the procedure.Client boundary to a real gRPC
// transport, grounded on the dial/heartbeat shape of the teacher's
// client.Client. The wire message is google.golang.org/protobuf's
// well-known structpb.Struct rather than a generated message type, since
// a stored-procedure call is already just "a name and a list of untyped
// arguments" - exactly what a Struct already represents - so there is
// nothing a dedicated .proto/protoc-gen-go pass would buy beyond what
// structpb already provides.
package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "ingest.ProcedureService"
const callProcedureMethod = "/" + serviceName + "/CallProcedure"

// ProcedureServiceServer is implemented by anything that can execute a
// stored procedure call arriving over the wire and hand back a response.
type ProcedureServiceServer interface {
	CallProcedure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func _ProcedureService_CallProcedure_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProcedureServiceServer).CallProcedure(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callProcedureMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProcedureServiceServer).CallProcedure(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var procedureServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ProcedureServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CallProcedure",
			Handler:    _ProcedureService_CallProcedure_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "procedure_service.proto",
}

// RegisterProcedureServiceServer registers srv to handle CallProcedure
// RPCs on s.
func RegisterProcedureServiceServer(s grpc.ServiceRegistrar, srv ProcedureServiceServer) {
	s.RegisterService(&procedureServiceDesc, srv)
}

// callProcedureRPC invokes the CallProcedure method against conn without
// a generated client stub - grpc.ClientConn.Invoke works against any
// proto.Message, and structpb.Struct already is one.
func callProcedureRPC(ctx context.Context, conn *grpc.ClientConn, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, callProcedureMethod, req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
