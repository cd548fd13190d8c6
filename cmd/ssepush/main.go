package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	pushhttp "github.com/Strob0t/ssepush/internal/adapter/http"
	pushnats "github.com/Strob0t/ssepush/internal/adapter/nats"
	"github.com/Strob0t/ssepush/internal/adapter/natskv"
	pushotel "github.com/Strob0t/ssepush/internal/adapter/otel"
	"github.com/Strob0t/ssepush/internal/adapter/ristretto"
	"github.com/Strob0t/ssepush/internal/adapter/tiered"
	"github.com/Strob0t/ssepush/internal/config"
	"github.com/Strob0t/ssepush/internal/logger"
	"github.com/Strob0t/ssepush/internal/middleware"
	"github.com/Strob0t/ssepush/internal/port/cache"
	"github.com/Strob0t/ssepush/internal/port/messagequeue"
	"github.com/Strob0t/ssepush/internal/resilience"
	"github.com/Strob0t/ssepush/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"otel", cfg.OTEL.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := pushotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(flushCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := pushotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	var dedupe cache.Cache = l1

	// --- Services ---

	registry := service.NewRegistry(service.RegistryOptions{
		Retry:            cfg.Stream.Retry,
		HandshakeMessage: cfg.Stream.HandshakeMessage,
		Metrics:          metrics,
	})
	if err := metrics.ObserveConnections(registry.UserCount); err != nil {
		return fmt.Errorf("otel connections gauge: %w", err)
	}
	if err := metrics.ObserveLogDrops(closeLog.Dropped); err != nil {
		return fmt.Errorf("otel log drops: %w", err)
	}
	dispatcher := service.NewDispatcher(registry, cfg.Push.MaxParallel, metrics)

	var queue messagequeue.Subscriber
	if cfg.NATS.URL != "" {
		q, err := pushnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		}()

		if cfg.NATS.KVBucket != "" {
			kv, err := q.KeyValue(ctx, cfg.NATS.KVBucket, cfg.Cache.IdempotencyTTL)
			if err != nil {
				return fmt.Errorf("nats kv: %w", err)
			}
			breaker := resilience.NewBreaker("nats-kv", cfg.NATS.BreakerFailures, cfg.NATS.BreakerTimeout)
			dedupe = tiered.New(l1, natskv.New(kv), cfg.Cache.IdempotencyTTL, breaker)
			slog.Info("shared dedupe enabled", "bucket", cfg.NATS.KVBucket)
		}

		triggers := service.NewTriggerService(dispatcher, dedupe, cfg.Cache.IdempotencyTTL)
		cancelTriggers, err := triggers.Start(ctx, q)
		if err != nil {
			return fmt.Errorf("push triggers: %w", err)
		}
		defer cancelTriggers()
		queue = q
	} else {
		slog.Info("nats disabled, push triggers only over HTTP")
	}

	// --- HTTP ---

	limiter, stopLimiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	defer stopLimiter()

	handlers := &pushhttp.Handlers{
		Registry:   registry,
		Pusher:     dispatcher,
		Stream:     cfg.Stream,
		PushConfig: cfg.Push,
		Queue:      queue,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(pushhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pushhttp.SecurityHeaders)
	r.Use(pushhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(pushotel.HTTPMiddleware(cfg.OTEL.ServiceName, "/health"))

	pushhttp.MountRoutes(r, handlers, pushhttp.RouteMiddleware{
		ConnectLimit: limiter.Handler,
		Idempotency:  middleware.Idempotency(dedupe, cfg.Cache.IdempotencyTTL),
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		// Streams stay open indefinitely; each event write sets its own deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server", "connections", registry.UserCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Closing the streams first lets their handlers return, so Shutdown
	// does not wait on open event streams.
	registry.Close(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}
