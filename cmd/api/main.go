package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/faceid/internal/api"
	"github.com/saturnino-fabrica-de-software/faceid/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/database"
	"github.com/saturnino-fabrica-de-software/faceid/internal/face"
	"github.com/saturnino-fabrica-de-software/faceid/internal/imagestore"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
	"github.com/saturnino-fabrica-de-software/faceid/internal/ratelimit"
	"github.com/saturnino-fabrica-de-software/faceid/internal/repository"
	"github.com/saturnino-fabrica-de-software/faceid/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(os.Stdout, cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting FaceID API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreDriver),
		slog.String("provider", cfg.ProviderType),
		slog.Float64("threshold", cfg.SimilarityThreshold),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pool, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	images, err := imagestore.NewFileStore(cfg.FacesStoragePath)
	if err != nil {
		return fmt.Errorf("failed to open image store: %w", err)
	}

	embeddingProvider, err := face.NewEmbeddingProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	engine, err := service.NewMatchEngine(store, service.MatchConfig{
		Threshold: cfg.SimilarityThreshold,
		Strict:    cfg.MatchStrict,
	}, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create match engine: %w", err)
	}

	enrollment := service.NewEnrollmentService(store, images, embeddingProvider, service.EnrollmentConfig{
		EmbeddingTimeout: cfg.EmbeddingTimeout,
		RollbackTimeout:  cfg.RollbackTimeout,
	}, m, logger)

	recognition := service.NewRecognitionService(embeddingProvider, engine, service.RecognitionConfig{
		EnforceDetection: cfg.RecognizeEnforceDetection,
		EmbeddingTimeout: cfg.EmbeddingTimeout,
	}, m, logger)

	deps := &api.Dependencies{
		Enroller:   enrollment,
		Recognizer: recognition,
		Store:      store,
		Gatherer:   reg,
		Audit:      audit.NewSlogLogger(logger),
	}

	var limiter *ratelimit.RateLimiter
	if pool != nil && cfg.RecognizeRateLimit > 0 {
		limiter = ratelimit.NewRateLimiter(pool, cfg.RateLimitWindow, cfg.RecognizeRateLimit)
		deps.RecognizeLimiter = limiter
		deps.RecognizeLimitWindow = cfg.RateLimitWindow
		logger.Info("recognition rate limit enabled",
			slog.Int("limit", cfg.RecognizeRateLimit),
			slog.Duration("window", cfg.RateLimitWindow),
		)
	}

	router := api.NewRouter(logger, deps)
	router.Setup()

	aggregator := metrics.NewAggregator(store, m, logger, time.Minute)

	logger.Info("services ready",
		slog.String("provider", embeddingProvider.Name()),
		slog.String("images", images.Root()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		aggregator.Start(gctx)
		return nil
	})

	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, 10*time.Minute, logger)
			return nil
		})
	}

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("shutdown signal received")
		}

		logger.Info("shutting down server...")
		if err := router.Shutdown(); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// identityStore is what the services and the aggregator need from a store
type identityStore interface {
	service.IdentityStore
	metrics.IdentityCounter
	Ping(ctx context.Context) error
}

// openStore returns the pool alongside the store when the driver is postgres
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identityStore, *pgxpool.Pool, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory identity store; enrollments are lost on restart")
		return repository.NewMemoryIdentityStore(), nil, func() {}, nil

	default:
		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("connected to database")
		return repository.NewIdentityRepository(pool), pool, pool.Close, nil
	}
}
