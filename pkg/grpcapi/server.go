package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/session"
)

// Server serves a session.Session over gRPC.
type Server struct {
	sess    session.Session
	addr    string
	engine  *findmodify.Engine
	metrics *Metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithEngine enables the FindModify method. Without an engine it returns
// Unimplemented.
func WithEngine(e *findmodify.Engine) ServerOption {
	return func(s *Server) {
		s.engine = e
	}
}

// WithServerMetrics counts handled requests.
func WithServerMetrics(m *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a server for sess listening on addr.
func NewServer(addr string, sess session.Session, opts ...ServerOption) *Server {
	s := &Server{sess: sess, addr: addr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the gRPC server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gRPC listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	var opts []grpc.ServerOption
	if s.metrics != nil {
		opts = append(opts, grpc.UnaryInterceptor(s.metrics.UnaryServerInterceptor()))
	}
	srv := grpc.NewServer(opts...)
	RegisterDeviceSessionServer(srv, s)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	srv.GracefulStop()
	return nil
}

// ListRecords implements DeviceSessionServer.
func (s *Server) ListRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := req.GetFields()["path"].GetStringValue()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}
	records, err := s.sess.ListRecords(ctx, path)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, len(records))
	for i, rec := range records {
		list[i] = map[string]any(rec)
	}
	out, err := structpb.NewStruct(map[string]any{"records": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode records: %v", err)
	}
	return out, nil
}

// UpdateRecord implements DeviceSessionServer.
func (s *Server) UpdateRecord(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	path := fields["path"].GetStringValue()
	id := fields["id"].GetStringValue()
	if path == "" || id == "" {
		return nil, status.Error(codes.InvalidArgument, "path and id are required")
	}
	changes := decodeMap(fields["changes"].GetStructValue().AsMap())
	if err := s.sess.UpdateRecord(ctx, path, id, changes); err != nil {
		slog.Warn("remote update rejected", "path", path, "id", id, "err", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrNoSuchRecord):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// decodeMap restores integer values, which google.protobuf.Value carries
// as doubles.
func decodeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = decodeValue(v)
	}
	return m
}

func decodeValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return decodeMap(v)
	case []any:
		for i := range v {
			v[i] = decodeValue(v[i])
		}
		return v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) > 1<<53 {
			return v
		}
		return int(v)
	default:
		return v
	}
}

func decodeRecord(s *structpb.Struct) entry.Record {
	return entry.Record(decodeMap(s.AsMap()))
}
