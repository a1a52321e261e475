package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/api"
	"github.com/Harshitk-cp/healthmem/internal/buildconfig"
	"github.com/Harshitk-cp/healthmem/internal/config"
	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/embedding"
	"github.com/Harshitk-cp/healthmem/internal/llm"
	"github.com/Harshitk-cp/healthmem/internal/localstore"
	"github.com/Harshitk-cp/healthmem/internal/memclient"
	"github.com/Harshitk-cp/healthmem/internal/service"
	"github.com/Harshitk-cp/healthmem/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.LogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting healthmem",
		zap.String("version", buildconfig.Version()),
		zap.String("commit", buildconfig.Commit()))

	ctx := context.Background()

	backend, pruner, closeBackend, err := newBackend(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize memory backend", zap.String("backend", config.MemoryBackend()), zap.Error(err))
	}
	defer closeBackend()

	var summarizer domain.Summarizer
	llmProvider := config.LLMProvider()
	summarizer, err = llm.NewClient(llmProvider, config.LLMAPIKey())
	if err != nil {
		// Oversized history falls back to truncation without a summarizer.
		logger.Warn("LLM client initialization failed", zap.String("provider", llmProvider), zap.Error(err))
		summarizer = nil
	} else {
		logger.Info("LLM client initialized", zap.String("provider", llmProvider))
	}

	app := api.NewApp(api.Deps{
		Backend:    backend,
		Summarizer: summarizer,
		Pruner:     pruner,
	}, logger)

	// Start background services
	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// newBackend builds the memory backend selected by MEMORY_BACKEND. The
// pruner is nil for backends that manage their own retention.
func newBackend(ctx context.Context, logger *zap.Logger) (domain.MemoryBackend, service.TurnPruner, func(), error) {
	noop := func() {}

	switch backend := config.MemoryBackend(); backend {
	case config.BackendPostgres:
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			return nil, nil, noop, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, noop, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to database")

		b := store.NewBackend(pool, newEmbedder(logger), logger)
		return b, b, pool.Close, nil

	case config.BackendRemote:
		c, err := memclient.New(memclient.Config{
			BaseURL: config.MemoryServiceURL(),
			APIKey:  config.MemoryServiceAPIKey(),
			RPS:     config.MemoryServiceRPS(),
			Burst:   config.MemoryServiceBurst(),
		}, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		logger.Info("using remote memory service", zap.String("url", config.MemoryServiceURL()))
		return c, nil, noop, nil

	case config.BackendLocal:
		s := localstore.New(newEmbedder(logger), logger)
		logger.Warn("using in-process memory backend; data is lost on restart")
		return s, s, noop, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown memory backend: %s (valid options: postgres, remote, local)", backend)
	}
}

// newEmbedder falls back to the deterministic mock so local and database
// backends still run without an embedding API key.
func newEmbedder(logger *zap.Logger) domain.EmbeddingClient {
	provider := config.EmbeddingProvider()
	client, err := embedding.NewClient(provider, config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("Embedding client initialization failed, using mock embeddings",
			zap.String("provider", provider), zap.Error(err))
		return embedding.NewMockClient(embedding.DefaultDimensions)
	}
	logger.Info("Embedding client initialized", zap.String("provider", provider))
	return client
}
