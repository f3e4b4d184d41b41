package remote

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/forest-guardian/index-composite/internal/export"
)

const serviceName = "indexcomposite.v1.Platform"

// Backend executes the requests received over gRPC.
type Backend interface {
	ExportImage(ctx context.Context, task export.ImageTask) (export.Job, error)
	ExportTable(ctx context.Context, task export.TableTask) (export.Job, error)
	Status(ctx context.Context, id string) (export.Job, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Backend)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExportImage", Handler: unary("ExportImage", exportImage)},
		{MethodName: "ExportTable", Handler: unary("ExportTable", exportTable)},
		{MethodName: "Status", Handler: unary("Status", jobStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "indexcomposite/v1/platform.proto",
}

func Register(s *grpc.Server, b Backend) {
	s.RegisterService(&serviceDesc, b)
}

type handler func(ctx context.Context, b Backend, req *structpb.Struct) (export.Job, error)

func unary(method string, h handler) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + serviceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, in any) (any, error) {
			job, err := h(ctx, srv.(Backend), in.(*structpb.Struct))
			if err != nil {
				slog.Warn("request failed", "method", method, "error", err)
				return nil, toStatus(err)
			}
			return toStruct(job)
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
	}
}

func exportImage(ctx context.Context, b Backend, req *structpb.Struct) (export.Job, error) {
	var task export.ImageTask
	if err := fromStruct(req, &task); err != nil {
		return export.Job{}, err
	}
	return b.ExportImage(ctx, task)
}

func exportTable(ctx context.Context, b Backend, req *structpb.Struct) (export.Job, error) {
	var task export.TableTask
	if err := fromStruct(req, &task); err != nil {
		return export.Job{}, err
	}
	return b.ExportTable(ctx, task)
}

func jobStatus(ctx context.Context, b Backend, req *structpb.Struct) (export.Job, error) {
	var r statusRequest
	if err := fromStruct(req, &r); err != nil {
		return export.Job{}, err
	}
	return b.Status(ctx, r.ID)
}

// Server hosts a Backend on a TCP listener.
type Server struct {
	backend    Backend
	grpcServer *grpc.Server
}

func NewServer(b Backend) *Server {
	s := &Server{backend: b, grpcServer: grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
	)}
	Register(s.grpcServer, b)
	return s
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	slog.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
