// Package grpc carries resolutions between mockllm processes. A process can
// serve its own resolver as mockllm.v1.Resolver, and another process can use
// that service as its callback resolver.
package grpc

import (
	"context"
	"time"

	"github.com/yungtweek/mockllm/internal/logger"
	"github.com/yungtweek/mockllm/internal/mock"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ResolverServiceName = "mockllm.v1.Resolver"
	resolveMethod       = "/" + ResolverServiceName + "/Resolve"
)

// ResolverServer is the server API of mockllm.v1.Resolver.
//
// Request: {"headers": {name: value}, "body": <chat request>}.
// Response: {"content": string, "reasoning"?: string, "usage"?: object}.
type ResolverServer interface {
	Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// The messages are well-known Struct types, so the descriptor is written by
// hand instead of generated.
var resolverServiceDesc = grpc.ServiceDesc{
	ServiceName: ResolverServiceName,
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Resolve",
		Handler:    resolveHandler,
	}},
	Metadata: "mockllm/v1/resolver.proto",
}

func RegisterResolverServer(s grpc.ServiceRegistrar, srv ResolverServer) {
	s.RegisterService(&resolverServiceDesc, srv)
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResolverServer).Resolve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ResolverService serves a local mock.Resolver over gRPC. Latency is not
// applied here; the calling process simulates it.
type ResolverService struct {
	resolver mock.Resolver
}

func NewResolverService(r mock.Resolver) *ResolverService {
	return &ResolverService{resolver: r}
}

func (s *ResolverService) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	peerAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		peerAddr = p.Addr.String()
	}

	in := req.AsMap()
	body, _ := in["body"].(map[string]any)
	headers := map[string]string{}
	if hm, ok := in["headers"].(map[string]any); ok {
		for k, v := range hm {
			if sv, ok := v.(string); ok {
				headers[k] = sv
			}
		}
	}

	res, err := s.resolver.Resolve(ctx, headers, body)
	var p mock.Payload
	if err == nil {
		p, err = mock.Normalize(res)
	}
	if err != nil {
		kind := mock.ErrorKind(err)
		logger.Log.Warnw("[grpc][Resolve] failed", "peer", peerAddr, "kind", kind, "err", err)
		return nil, status.Error(statusCode(kind), err.Error())
	}

	out := map[string]any{"content": p.Content}
	if p.Reasoning != nil {
		out["reasoning"] = *p.Reasoning
	}
	if p.Usage != nil {
		out["usage"] = p.Usage
	}
	resp, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode resolution: %v", err)
	}

	logger.Log.Infow("[grpc][Resolve] done", "peer", peerAddr, "latency", time.Since(start))
	return resp, nil
}

func statusCode(kind string) codes.Code {
	switch kind {
	case "config":
		return codes.FailedPrecondition
	case "canceled":
		return codes.Canceled
	default:
		return codes.Internal
	}
}
