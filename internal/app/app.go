// Package app wires configuration into a running marketpulse pipeline:
// universe source and cache, quote providers, breadth engine, refresher, and
// the HTTP and gRPC listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/api"
	"marketpulse/internal/breadth"
	"marketpulse/internal/config"
	"marketpulse/internal/gather"
	"marketpulse/internal/httpapi"
	"marketpulse/internal/metrics"
	"marketpulse/internal/quotes"
	"marketpulse/internal/tables"
	"marketpulse/internal/universe"
)

// App holds the assembled components.
type App struct {
	Config    *config.Config
	Source    *universe.Source
	Universe  universe.Fetcher
	Engine    *breadth.Engine
	Refresher *gather.Refresher
	Metrics   *metrics.Collector

	redis *redis.Client
	log   *slog.Logger
}

// New builds the pipeline described by cfg. m may be nil.
func New(ctx context.Context, cfg *config.Config, m *metrics.Collector, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.Quotes.CallTimeout}

	src, err := universe.NewSource(tables.NewRouter(tables.NewHTMLProvider(nil)), universe.Options{
		URL:      cfg.Universe.ReferenceURL,
		Columns:  cfg.Universe.Columns,
		Suffix:   cfg.Universe.Suffix,
		Fallback: cfg.Universe.Fallback,
	})
	if err != nil {
		return nil, fmt.Errorf("creating universe source: %w", err)
	}
	cache := universe.NewCache(src, cfg.Universe.CacheTTL, nil)

	a := &App{Config: cfg, Source: src, Universe: cache, Metrics: m, log: log}

	if addr := cfg.Universe.Redis.Addr; addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Universe.Redis.Password,
			DB:       cfg.Universe.Redis.DB,
		})
		backend := universe.NewRedisBackend(a.redis, cfg.Universe.Redis.Key)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := backend.Ping(pingCtx)
		cancel()
		if err != nil {
			// Shared caching is optional; run with the local cache only.
			log.Warn("redis unavailable, universe cache is process-local", "addr", addr, "error", err)
			a.redis.Close()
			a.redis = nil
		} else {
			cache.WithBackend(backend)
			log.Info("universe cache shared via redis", "addr", addr, "key", cfg.Universe.Redis.Key)
		}
	}

	provider, err := quotes.New(cfg, httpClient)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating quote provider: %w", err)
	}

	a.Engine = breadth.NewEngine(provider, breadth.Options{
		Lookback:    cfg.Quotes.LookbackSessions,
		CallTimeout: cfg.Quotes.CallTimeout,
		Workers:     cfg.Quotes.Workers,
		Metrics:     m,
		Logger:      log,
	})
	a.Refresher = gather.NewRefresher(cache, a.Engine, cfg.Refresh.Interval, m)
	return a, nil
}

// Close releases external connections.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// Serve runs the refresher, the HTTP server and (when a gRPC port is
// configured) the gRPC server until ctx is cancelled, then shuts them down.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewBreadthServer(a.Refresher, a.Metrics, a.log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *api.Server
	var grpcLis net.Listener
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr(), err)
		}
		grpcLis = lis
		grpcServer = api.NewServer(a.Refresher, a.log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Refresher.Run(gctx)
	})
	g.Go(func() error {
		a.log.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcServer != nil {
		g.Go(func() error {
			if err := grpcServer.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", "error", err)
		}
		if grpcServer != nil {
			if err := grpcServer.Shutdown(shutdownCtx); err != nil {
				a.log.Error("grpc shutdown error", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}
