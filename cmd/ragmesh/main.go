package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	rmhttp "github.com/ragmesh/ragmesh/internal/adapter/http"
	rmnats "github.com/ragmesh/ragmesh/internal/adapter/nats"
	"github.com/ragmesh/ragmesh/internal/adapter/natskv"
	"github.com/ragmesh/ragmesh/internal/adapter/otel"
	"github.com/ragmesh/ragmesh/internal/adapter/postgres"
	"github.com/ragmesh/ragmesh/internal/adapter/rag"
	"github.com/ragmesh/ragmesh/internal/adapter/ristretto"
	"github.com/ragmesh/ragmesh/internal/adapter/tiered"
	"github.com/ragmesh/ragmesh/internal/config"
	"github.com/ragmesh/ragmesh/internal/logger"
	"github.com/ragmesh/ragmesh/internal/middleware"
	"github.com/ragmesh/ragmesh/internal/port/cache"
	"github.com/ragmesh/ragmesh/internal/port/messagequeue"
	"github.com/ragmesh/ragmesh/internal/secrets"
	"github.com/ragmesh/ragmesh/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	// Secrets that may surface in connection strings or debug output. The
	// vault knows their values so log lines can be scrubbed before emission.
	vault, err := secrets.NewVault(secrets.EnvLoader(
		"DATABASE_URL",
		"RAGMESH_JWT_SECRET",
		"RAGMESH_ENCRYPTION_KEY",
	))
	if err != nil {
		return fmt.Errorf("secret vault: %w", err)
	}

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pool_max_instances", cfg.Pool.MaxInstances,
		"postgres_dsn", vault.RedactString(cfg.Postgres.DSN),
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS is optional; without it pool and membership events are not
	// published and the shared key-cache tier is skipped. An unreachable
	// broker degrades the same way instead of failing startup.
	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		nq, err := rmnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, events and shared key cache disabled", "error", err)
		} else {
			defer func() { _ = nq.Close() }()
			queue = nq
			slog.Info("nats connected")
		}
	}

	// OTLP metrics are optional; an empty endpoint leaves the no-op provider.
	otelShutdown, err := otel.InitMetrics(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var keyCache cache.Cache
	if ristrettoCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20); err == nil {
		keyCache = ristrettoCache
	} else {
		slog.Warn("api key cache disabled", "error", err)
	}

	// With NATS available, layer a shared KV bucket under the local cache so
	// key resolutions and revocations propagate across nodes.
	if nq, ok := queue.(*rmnats.Queue); ok && keyCache != nil {
		kv, err := nq.KeyValue(ctx, "ragmesh_apikeys", cfg.Auth.KeyCacheTTL)
		if err != nil {
			slog.Warn("api key l2 cache disabled", "error", err)
		} else {
			keyCache = tiered.New(keyCache, natskv.New(kv), cfg.Auth.KeyCacheTTL)
		}
	}

	var box *secrets.Box
	if cfg.Secrets.EncryptionKey != "" {
		box, err = secrets.NewBox(cfg.Secrets.EncryptionKey)
		if err != nil {
			return fmt.Errorf("secrets: %w", err)
		}
	} else {
		slog.Warn("no encryption key configured, provider secrets cannot be stored")
	}

	// --- Services ---

	store := postgres.NewStore(pool)
	docStore := postgres.NewDocStore(pool)

	authSvc := service.NewAuthService(store, &cfg.Auth, keyCache, metrics)
	accessSvc := service.NewAccessService(store, queue, &cfg.Auth)
	tenantSvc := service.NewTenantService(store)
	providerSvc := service.NewProviderService(store, accessSvc, box)

	factory := rag.NewFactory(docStore, box, cfg.Breaker, log)
	poolSvc := service.NewPoolService(factory, cfg.Pool, queue, metrics, log)
	ragSvc := service.NewRAGService(poolSvc, accessSvc, providerSvc, metrics)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	poolSvc.StartSweeper(sweepCtx)
	authSvc.StartRefreshTokenCleanup(sweepCtx, time.Hour)

	// --- HTTP ---

	handlers := &rmhttp.Handlers{
		Auth:      authSvc,
		Access:    accessSvc,
		Tenants:   tenantSvc,
		Providers: providerSvc,
		RAG:       ragSvc,
		ReadyCheck: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopLimiter()

	r := chi.NewRouter()

	r.Use(rmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rmhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(rmhttp.Logger)
	r.Use(otel.HTTPMiddleware("ragmesh"))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(authSvc))

	rmhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}

	// Flush and close every pooled engine instance before the process exits.
	poolSvc.Shutdown(shutdownCtx)

	return nil
}
