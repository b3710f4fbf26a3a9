package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungtweek/mockllm/internal/config"
	mgrpc "github.com/yungtweek/mockllm/internal/grpc"
	"github.com/yungtweek/mockllm/internal/logger"
	"github.com/yungtweek/mockllm/internal/metrics"
	"github.com/yungtweek/mockllm/internal/mock"
	"github.com/yungtweek/mockllm/internal/server"
)

const (
	dialTimeout     = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// buildResolver picks the single resolver of the process: a registered
// callback, then a remote resolver, then the config file table.
func buildResolver(ctx context.Context, cfg config.Config, m *metrics.Collector) (mock.Resolver, func() error, error) {
	nop := func() error { return nil }

	switch {
	case cfg.ResponseModule != "":
		fn, ok := mock.LookupCallback(cfg.ResponseModule)
		if !ok {
			return nil, nil, fmt.Errorf("unknown response module %q (registered: %s)",
				cfg.ResponseModule, strings.Join(mock.Callbacks(), ", "))
		}
		logger.Log.Infow("[mockllm] using response module", "module", cfg.ResponseModule)
		return mock.NewCallbackResolver(cfg.ResponseModule, fn), nop, nil

	case cfg.ResolverAddr != "":
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		r, err := mgrpc.DialResolver(dctx, cfg.ResolverAddr)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil

	default:
		path := cfg.ResolvedConfigFile()
		store, err := config.NewStore(path, config.WithReloadHook(m.ConfigReload))
		if err != nil {
			return nil, nil, err
		}
		logger.Log.Infow("[mockllm] using config file", "path", path)
		return mock.NewTableResolver(store), nop, nil
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector()
	resolver, closeResolver, err := buildResolver(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() { _ = closeResolver() }()

	eng := mock.NewEngine(resolver,
		mock.WithSettings(cfg.Settings()),
		mock.WithChunkSize(cfg.ChunkSize),
	)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng, m).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcSrv *mgrpc.Server
	if cfg.GRPCPort > 0 {
		grpcSrv = mgrpc.NewGRPCServer(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort)), mgrpc.NewResolverService(resolver))
	}

	logger.Log.Infow("[mockllm] starting",
		"addr", addr,
		"mode", eng.Mode(),
		"grpcPort", cfg.GRPCPort,
		"chunkSize", cfg.ChunkSize,
		"lagEnabled", cfg.LagEnabled,
		"lagFactor", cfg.LagFactor,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(grpcSrv.Run)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("[mockllm] shutting down...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
