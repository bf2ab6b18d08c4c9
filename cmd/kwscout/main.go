package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/marketlens/kwscout/internal/config"
	"github.com/marketlens/kwscout/internal/db"
	dbRedis "github.com/marketlens/kwscout/internal/db/redis"
	dbSqlite "github.com/marketlens/kwscout/internal/db/sqlite"
	"github.com/marketlens/kwscout/internal/domain"
	"github.com/marketlens/kwscout/internal/index"
	logpkg "github.com/marketlens/kwscout/internal/logger"
	"github.com/marketlens/kwscout/internal/metrics"
	checkpointrepo "github.com/marketlens/kwscout/internal/repository/checkpoint"
	"github.com/marketlens/kwscout/internal/repository/embcache"
	keywordsrepo "github.com/marketlens/kwscout/internal/repository/keywords"
	"github.com/marketlens/kwscout/internal/retry"
	geminiGen "github.com/marketlens/kwscout/internal/transport/gemini"
	"github.com/marketlens/kwscout/internal/transport/httpapi"
	openaiTransport "github.com/marketlens/kwscout/internal/transport/openai"
	collectuc "github.com/marketlens/kwscout/internal/usecase/collect"
	existenceuc "github.com/marketlens/kwscout/internal/usecase/existence"
	expanduc "github.com/marketlens/kwscout/internal/usecase/expand"
	healthuc "github.com/marketlens/kwscout/internal/usecase/health"
	scoreuc "github.com/marketlens/kwscout/internal/usecase/score"
	seedsuc "github.com/marketlens/kwscout/internal/usecase/seeds"
	"github.com/marketlens/kwscout/internal/version"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kwscout API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Create database store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	case "sqlite":
		store, err = dbSqlite.NewStore(dbSqlite.Config{
			Path: cfg.Database.Path,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterPipelineMetrics()

	// Embedder chain: OpenAI -> cached
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store,
		time.Duration(cfg.Embedding.CacheTTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	generator, genChecker, err := buildGenerator(ctx, cfg.Generation, logger)
	if err != nil {
		logger.Fatal("Failed to create text generator", zap.Error(err))
	}
	logger.Info("Text generator created",
		zap.String("provider", cfg.Generation.Provider),
		zap.String("model", cfg.Generation.Model),
	)

	// Reference corpus index — load and embed at startup so the first run
	// does not pay the initialization latency.
	corpus := index.New(index.NewSnapshotSource(cfg.Corpus.SnapshotDir), embedder, logger)
	if err := corpus.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize corpus index", zap.Error(err))
	}
	logger.Info("Corpus index ready", zap.Int("size", corpus.Size()))

	// Repositories
	keywordRepo := keywordsrepo.New(store)
	checkpointRepo := checkpointrepo.New(store, time.Duration(cfg.Pipeline.CheckpointTTLSec)*time.Second)

	retryCfg := retry.Config{MaxAttempts: cfg.Pipeline.RetryAttempts}

	// Use case services
	seedSvc := seedsuc.New(generator, embedder, seedsuc.Options{
		SeedCount:   cfg.Pipeline.SeedCount,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		Retry:       retryCfg,
	}, logger)
	expandSvc := expanduc.New(generator, cfg.Generation.MaxTokens, cfg.Generation.Temperature, logger)
	existenceSvc := existenceuc.New(corpus, keywordRepo, retryCfg, logger)
	collectSvc := collectuc.New(seedSvc, expandSvc, existenceSvc, checkpointRepo, embedder,
		collectuc.Options{
			SeedBatchSize:      cfg.Pipeline.SeedBatchSize,
			SeedTimeout:        time.Duration(cfg.Pipeline.SeedTimeoutSec) * time.Second,
			KeywordsPerSeed:    cfg.Pipeline.KeywordsPerSeed,
			SelectionOvershoot: cfg.Pipeline.SelectionOvershot,
			Retry:              retryCfg,
		}, logger)
	scoreSvc := scoreuc.New(keywordRepo, retryCfg, logger)
	healthSvc := healthuc.New(store, baseEmbedder, genChecker, corpus)

	server := httpapi.NewServer(
		collectorAdapter{collectSvc}, checkpointRepo, scoreSvc,
		corpus, cfg.Pipeline.SimilarityCutoff, healthSvc, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// collectorAdapter bridges the collect usecase to the transport's narrower
// parameter struct.
type collectorAdapter struct {
	svc *collectuc.Service
}

func (a collectorAdapter) Run(
	ctx context.Context, p httpapi.RunParams, onProgress func(domain.Snapshot),
) (*domain.CollectionProgress, error) {
	return a.svc.Run(ctx, collectuc.Params{
		RunID:  p.RunID,
		Pitch:  p.Pitch,
		Facets: p.Facets,
		Target: p.Target,
	}, onProgress)
}

func (a collectorAdapter) Resume(
	ctx context.Context, runID string, onProgress func(domain.Snapshot),
) (*domain.CollectionProgress, error) {
	return a.svc.Resume(ctx, runID, onProgress)
}

// buildGenerator picks the generation provider. The second return is the
// provider's health check, nil when unsupported.
func buildGenerator(
	ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger,
) (domain.TextGenerator, healthuc.ProviderChecker, error) {
	switch cfg.Provider {
	case "openai":
		gen := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Provider: "openai",
			Logger:   logger,
		})
		return gen, gen, nil
	case "gemini":
		gen, err := geminiGen.NewGenerator(ctx, &geminiGen.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			RequestsPerMinute: cfg.RequestsPerMinute,
			Logger:            logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini generator: %w", err)
		}
		return gen, gen, nil
	default:
		return nil, nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
