package grpc

import (
	"context"
	"fmt"

	"github.com/yungtweek/mockllm/internal/logger"
	"github.com/yungtweek/mockllm/internal/mock"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RemoteResolver is a callback resolver backed by a mockllm.v1.Resolver
// service in another process.
type RemoteResolver struct {
	*mock.CallbackResolver
	addr   string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// DialResolver connects to addr and checks that the resolver service
// reports SERVING before returning. Extra options are appended to the
// default insecure transport.
func DialResolver(ctx context.Context, addr string, opts ...grpc.DialOption) (*RemoteResolver, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial resolver %s: %w", addr, err)
	}

	r := &RemoteResolver{
		addr:   addr,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}
	r.CallbackResolver = mock.NewCallbackResolver("remote:"+addr, mock.Dynamic(r.call))

	if err := r.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Log.Infow("[grpc] remote resolver ready", "addr", addr)
	return r, nil
}

// Ping asks the remote health service about the resolver service.
func (r *RemoteResolver) Ping(ctx context.Context) error {
	resp, err := r.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ResolverServiceName})
	if err != nil {
		return fmt.Errorf("resolver %s health check: %w", r.addr, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("resolver %s is %s", r.addr, resp.GetStatus())
	}
	return nil
}

func (r *RemoteResolver) call(ctx context.Context, headers map[string]string, body map[string]any) (any, error) {
	hs := make(map[string]any, len(headers))
	for k, v := range headers {
		hs[k] = v
	}
	req, err := structpb.NewStruct(map[string]any{"headers": hs, "body": body})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := r.conn.Invoke(ctx, resolveMethod, req, out); err != nil {
		st := status.Convert(err)
		return nil, fmt.Errorf("remote %s: %s: %w", st.Code(), st.Message(), err)
	}
	return out.AsMap(), nil
}

func (r *RemoteResolver) Close() error {
	return r.conn.Close()
}
