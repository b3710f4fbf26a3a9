package mock

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/yungtweek/mockllm/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/yungtweek/mockllm/internal/mock")

// Engine ties a Resolver to normalization, latency and chunking. One Engine
// serves every request of the process.
type Engine struct {
	resolver  Resolver
	estimator Estimator
	settings  config.Settings
	chunkSize int
	jitter    func() float64
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Engine)

// WithEstimator replaces the tiktoken based token estimator.
func WithEstimator(est Estimator) Option {
	return func(e *Engine) { e.estimator = est }
}

// WithSettings sets the latency used when the resolver has no config file.
func WithSettings(s config.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithChunkSize sets the streaming chunk size in runes; 0 streams single
// characters.
func WithChunkSize(n int) Option {
	return func(e *Engine) { e.chunkSize = n }
}

// WithJitter replaces the jitter source of character streaming.
func WithJitter(fn func() float64) Option {
	return func(e *Engine) { e.jitter = fn }
}

// WithSleep replaces the wait used for simulated latency.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

func NewEngine(r Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: r,
		settings: config.DefaultSettings(),
		sleep:    SleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.estimator == nil {
		e.estimator = NewTiktokenEstimator()
	}
	return e
}

func (e *Engine) Estimator() Estimator { return e.estimator }

// Mode is "table" for the config file resolver and "callback" otherwise.
func (e *Engine) Mode() string {
	if _, ok := e.resolver.(*TableResolver); ok {
		return "table"
	}
	return "callback"
}

// TableSize reports the number of table entries, or -1 in callback mode.
func (e *Engine) TableSize() int {
	if t, ok := e.resolver.(*TableResolver); ok {
		return t.Size()
	}
	return -1
}

// Result is a resolved request: the payload plus the latency settings that
// were current when it was resolved.
type Result struct {
	Payload Payload
	Latency Latency
}

// Resolve runs the resolver and normalizes its output.
func (e *Engine) Resolve(ctx context.Context, headers map[string]string, body map[string]any) (Result, error) {
	ctx, span := tracer.Start(ctx, "mock.Resolve", trace.WithAttributes(
		attribute.String("mockllm.mode", e.Mode()),
	))
	defer span.End()

	raw, settings, err := e.resolve(ctx, headers, body)
	if err == nil {
		var p Payload
		if p, err = Normalize(raw); err == nil {
			span.SetAttributes(
				attribute.Int("mockllm.content_runes", len([]rune(p.Content))),
				attribute.Bool("mockllm.usage_override", p.Usage != nil),
			)
			return Result{Payload: p, Latency: e.latency(settings)}, nil
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, ErrorKind(err))
	return Result{}, err
}

// settingsResolver is a resolver that carries its own latency settings.
// Both values must come from the same config snapshot.
type settingsResolver interface {
	ResolveSettings(ctx context.Context, headers map[string]string, body map[string]any) (Resolution, config.Settings, error)
}

func (e *Engine) resolve(ctx context.Context, headers map[string]string, body map[string]any) (Resolution, config.Settings, error) {
	if sr, ok := e.resolver.(settingsResolver); ok {
		return sr.ResolveSettings(ctx, headers, body)
	}
	raw, err := e.resolver.Resolve(ctx, headers, body)
	return raw, e.settings, err
}

func (e *Engine) latency(s config.Settings) Latency {
	l := NewLatency(s)
	l.Jitter = e.jitter
	return l
}

// Wait applies the whole-response delay of a non-streaming reply.
func (e *Engine) Wait(ctx context.Context, res Result) error {
	if !res.Latency.Enabled {
		return nil
	}
	return e.sleep(ctx, res.Latency.WholeResponse(res.Payload.Content))
}

// Chunks streams the result's content with per-chunk delays.
func (e *Engine) Chunks(ctx context.Context, res Result) iter.Seq[string] {
	em := Emitter{Latency: res.Latency, Sleep: e.sleep}
	return em.Chunks(ctx, res.Payload.Content, e.chunkSize)
}

// ErrorKind classifies an error from Resolve for logs and metrics.
func ErrorKind(err error) string {
	var cfgErr *config.Error
	var resErr *ResolverError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "config"
	case errors.As(err, &resErr):
		return "resolver"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
