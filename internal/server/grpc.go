package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/kconf/internal/events"
	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/rpc"
)

// ConfigServiceServer is the server API for kconf.v1.ConfigService. Requests
// are google.protobuf.Struct with the fields
//
//	namespace  "global" (default) or "user"
//	user_id    required for the user namespace
//	key        the key within the namespace
//	value      document to write (Set, Update), required
//	default    document stored on a miss (Get)
//	prefix     path prefix (List)
//
// and every response is a google.protobuf.Value. Documents are JSON text in
// string Values (see rpc.EncodeDocument); a null Value means no document.
type ConfigServiceServer interface {
	Get(context.Context, *structpb.Struct) (*structpb.Value, error)
	Set(context.Context, *structpb.Struct) (*structpb.Value, error)
	Update(context.Context, *structpb.Struct) (*structpb.Value, error)
	List(context.Context, *structpb.Struct) (*structpb.Value, error)
	Health(context.Context, *structpb.Struct) (*structpb.Value, error)
}

// ConfigServiceDesc describes kconf.v1.ConfigService for grpc.ServiceRegistrar.
var ConfigServiceDesc = grpc.ServiceDesc{
	ServiceName: rpc.ServiceName,
	HandlerType: (*ConfigServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(rpc.MethodGet, ConfigServiceServer.Get),
		unaryMethod(rpc.MethodSet, ConfigServiceServer.Set),
		unaryMethod(rpc.MethodUpdate, ConfigServiceServer.Update),
		unaryMethod(rpc.MethodList, ConfigServiceServer.List),
		unaryMethod(rpc.MethodHealth, ConfigServiceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kconf/v1/config.proto",
}

func unaryMethod(name string, call func(ConfigServiceServer, context.Context, *structpb.Struct) (*structpb.Value, error)) grpc.MethodDesc {
	fullMethod := rpc.FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConfigServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ConfigServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the ConfigService and the standard health service, and returns the server
// ready to serve.
func NewGRPCServer(cs *ConfigServer, authToken string, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(cs.logger),
			LoggingInterceptor(cs.logger),
			AuthInterceptor(authToken),
		),
	}, opts...)
	srv := grpc.NewServer(opts...)

	srv.RegisterService(&ConfigServiceDesc, cs)
	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

func targetFromStruct(in *structpb.Struct) target {
	f := in.GetFields()
	ns := f[rpc.FieldNamespace].GetStringValue()
	if ns == "" {
		ns = events.NamespaceGlobal
	}
	return target{
		Namespace: ns,
		UserID:    f[rpc.FieldUserID].GetStringValue(),
		Key:       f[rpc.FieldKey].GetStringValue(),
	}
}

func (s *ConfigServer) Get(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	def, err := rpc.DecodeDocument(in.GetFields()[rpc.FieldDefault])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "default: %v", err)
	}
	out, err := s.read(ctx, targetFromStruct(in), def)
	if err != nil {
		return nil, grpcError("get", err)
	}
	return rpc.EncodeDocument(out), nil
}

func (s *ConfigServer) Set(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return s.grpcWrite(ctx, in, model.ModeReplace)
}

func (s *ConfigServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return s.grpcWrite(ctx, in, model.ModeMerge)
}

func (s *ConfigServer) grpcWrite(ctx context.Context, in *structpb.Struct, mode model.WriteMode) (*structpb.Value, error) {
	field, ok := in.GetFields()[rpc.FieldValue]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	value, err := rpc.DecodeDocument(field)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "value: %v", err)
	}
	out, err := s.write(ctx, targetFromStruct(in), value, mode)
	if err != nil {
		return nil, grpcError(string(mode), err)
	}
	return rpc.EncodeDocument(out), nil
}

// List returns a list of {id, path, value} structs.
func (s *ConfigServer) List(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	entries, err := s.list(ctx, in.GetFields()[rpc.FieldPrefix].GetStringValue())
	if err != nil {
		return nil, grpcError("list", err)
	}
	items := make([]*structpb.Value, 0, len(entries))
	for _, e := range entries {
		items = append(items, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"id":    structpb.NewStringValue(e.ID),
			"path":  structpb.NewStringValue(e.Path),
			"value": rpc.EncodeDocument(e.Value),
		}}))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: items}), nil
}

func (s *ConfigServer) Health(_ context.Context, _ *structpb.Struct) (*structpb.Value, error) {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue("ok"),
	}}), nil
}

func grpcError(op string, err error) error {
	switch classify(err) {
	case kindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case kindUnavailable:
		return status.Errorf(codes.Unavailable, "failed to %s: store unavailable", op)
	default:
		return status.Errorf(codes.Internal, "failed to %s: %v", op, err)
	}
}
