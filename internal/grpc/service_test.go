package grpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungtweek/mockllm/internal/config"
	"github.com/yungtweek/mockllm/internal/mock"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startServer serves r over an in-memory listener and returns the server
// and a dial option that reaches it.
func startServer(t *testing.T, r mock.Resolver) (*Server, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", NewResolverService(r))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return srv, dialer
}

func dial(t *testing.T, opt grpc.DialOption) *RemoteResolver {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rr, err := DialResolver(ctx, "passthrough:///bufnet", opt)
	if err != nil {
		t.Fatalf("DialResolver: %v", err)
	}
	t.Cleanup(func() { _ = rr.Close() })
	return rr
}

func userBody(prompt string) map[string]any {
	return map[string]any{
		"model":    "mock-llm",
		"messages": []any{map[string]any{"role": "user", "content": prompt}},
	}
}

func TestRemoteResolveRoundTrip(t *testing.T) {
	var gotHeaders map[string]string
	var gotBody map[string]any
	local := mock.NewCallbackResolver("local", func(_ context.Context, h map[string]string, b map[string]any) (mock.Resolution, error) {
		gotHeaders, gotBody = h, b
		return mock.ContentReasoningUsage{
			Content:   "answer",
			Reasoning: "why",
			Usage:     map[string]any{"input_tokens": 3, "output_tokens": 1},
		}, nil
	})
	_, opt := startServer(t, local)
	remote := dial(t, opt)

	res, err := remote.Resolve(context.Background(), map[string]string{"authorization": "Bearer x"}, userBody("hi"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p, err := mock.Normalize(res)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.Content != "answer" {
		t.Fatalf("content = %q", p.Content)
	}
	if p.Reasoning == nil || *p.Reasoning != "why" {
		t.Fatalf("reasoning = %v", p.Reasoning)
	}
	if p.Usage["input_tokens"] != float64(3) || p.Usage["output_tokens"] != float64(1) {
		t.Fatalf("usage = %v", p.Usage)
	}

	if gotHeaders["authorization"] != "Bearer x" {
		t.Fatalf("headers not forwarded: %v", gotHeaders)
	}
	if mock.ExtractPrompt(gotBody) != "hi" {
		t.Fatalf("body not forwarded: %v", gotBody)
	}
	if remote.Name() != "remote:passthrough:///bufnet" {
		t.Fatalf("name = %q", remote.Name())
	}
}

func TestRemoteContentOnlyHasNoUsage(t *testing.T) {
	local := mock.NewCallbackResolver("local", func(context.Context, map[string]string, map[string]any) (mock.Resolution, error) {
		return mock.ContentOnly(""), nil
	})
	_, opt := startServer(t, local)

	res, err := dial(t, opt).Resolve(context.Background(), nil, userBody("x"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p, _ := mock.Normalize(res)
	if p.Content != "" || p.Usage != nil || p.Reasoning != nil {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestRemoteErrorsBecomeResolverErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.yml")
	if err := os.WriteFile(path, []byte("responses:\n  a: b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := config.NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	_, opt := startServer(t, mock.NewTableResolver(store))
	remote := dial(t, opt)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	_, err = remote.Resolve(context.Background(), nil, userBody("a"))

	var re *mock.ResolverError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolverError, got %T %v", err, err)
	}
	if re.Resolver != remote.Name() {
		t.Fatalf("resolver name = %q", re.Resolver)
	}
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", status.Code(err))
	}
	if mock.ErrorKind(err) != "resolver" {
		t.Fatalf("kind = %q", mock.ErrorKind(err))
	}
}

func TestServerRejectsInvalidLocalResult(t *testing.T) {
	bad := mock.NewCallbackResolver("bad", mock.Dynamic(func(context.Context, map[string]string, map[string]any) (any, error) {
		return 42, nil
	}))
	_, opt := startServer(t, bad)

	_, err := dial(t, opt).Resolve(context.Background(), nil, userBody("x"))
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v (%v)", status.Code(err), err)
	}
}

func TestDialFailsWhenNotServing(t *testing.T) {
	srv, opt := startServer(t, mock.NewCallbackResolver("x", func(context.Context, map[string]string, map[string]any) (mock.Resolution, error) {
		return mock.ContentOnly("x"), nil
	}))
	srv.health.SetServingStatus(ResolverServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := DialResolver(ctx, "passthrough:///bufnet", opt); err == nil {
		t.Fatalf("expected dial to fail for NOT_SERVING resolver")
	}
}

func TestRemoteResolverDrivesEngine(t *testing.T) {
	fn, ok := mock.LookupCallback("example")
	if !ok {
		t.Fatal("example callback not registered")
	}
	_, opt := startServer(t, mock.NewCallbackResolver("example", fn))

	eng := mock.NewEngine(dial(t, opt), mock.WithEstimator(mock.EstimatorFunc(mock.WordCount)))
	if eng.Mode() != "callback" {
		t.Fatalf("mode = %q", eng.Mode())
	}
	res, err := eng.Resolve(context.Background(), nil, userBody("hello"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Payload.Content != "Hello! How can I help you today?" {
		t.Fatalf("content = %q", res.Payload.Content)
	}
}
