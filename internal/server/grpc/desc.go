package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rootine.v1.Rootine"

// rootineServer is the handler type checked by grpc.Server.RegisterService.
type rootineServer interface {
	Me(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unary builds a method whose request and response bodies are google.protobuf.Struct.
func unary(name string, h handlerFunc) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return h(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the Rootine API.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*rootineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", (*Server).Register),
		unary("Login", (*Server).Login),
		unary("Me", (*Server).Me),
		unary("GetUser", (*Server).GetUser),
		unary("UpdateUser", (*Server).UpdateUser),
		unary("DeleteUser", (*Server).DeleteUser),
		unary("ListUsers", (*Server).ListUsers),
		unary("ListRoutines", (*Server).ListRoutines),
		unary("GetRoutine", (*Server).GetRoutine),
		unary("CreateRoutine", (*Server).CreateRoutine),
		unary("UpdateRoutine", (*Server).UpdateRoutine),
		unary("DeleteRoutine", (*Server).DeleteRoutine),
		unary("ActivateRoutine", (*Server).ActivateRoutine),
		unary("GenerateRoutine", (*Server).GenerateRoutine),
		unary("ListTasks", (*Server).ListTasks),
		unary("GetTask", (*Server).GetTask),
		unary("CreateTask", (*Server).CreateTask),
		unary("UpdateTask", (*Server).UpdateTask),
		unary("DeleteTask", (*Server).DeleteTask),
		unary("ReorderTasks", (*Server).ReorderTasks),
	},
	Metadata: "rootine/v1/rootine.proto",
}

// publicMethods are reachable without a bearer token.
var publicMethods = map[string]bool{
	"/" + ServiceName + "/Register": true,
	"/" + ServiceName + "/Login":    true,
}

// Register attaches srv to gs.
func Register(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&ServiceDesc, srv)
}
