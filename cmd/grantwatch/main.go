package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/grantwatch/retrieval/internal/config"
	"github.com/grantwatch/retrieval/internal/db"
	dbRedis "github.com/grantwatch/retrieval/internal/db/redis"
	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/index"
	logpkg "github.com/grantwatch/retrieval/internal/logger"
	"github.com/grantwatch/retrieval/internal/metrics"
	"github.com/grantwatch/retrieval/internal/repository/embcache"
	"github.com/grantwatch/retrieval/internal/repository/metadata"
	chiTransport "github.com/grantwatch/retrieval/internal/transport/chi"
	localEmb "github.com/grantwatch/retrieval/internal/transport/local"
	openaiTransport "github.com/grantwatch/retrieval/internal/transport/openai"
	embeddinguc "github.com/grantwatch/retrieval/internal/usecase/embedding"
	healthuc "github.com/grantwatch/retrieval/internal/usecase/health"
	ingestuc "github.com/grantwatch/retrieval/internal/usecase/ingest"
	retrievaluc "github.com/grantwatch/retrieval/internal/usecase/retrieval"
	routeruc "github.com/grantwatch/retrieval/internal/usecase/router"
	"github.com/grantwatch/retrieval/internal/version"
)

func main() {
	// .env is optional; real environments set variables directly.
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

	logger.Info("Starting GrantWatch retrieval service",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()

	ctx := context.Background()

	// Optional Redis embedding cache.
	var cacheStore db.Store
	if len(cfg.Cache.Addrs) > 0 {
		cacheStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cacheStore.Close()

		readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := cacheStore.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	embedder := buildEmbedder(cfg, cacheStore, logger)

	// Load persisted state. Missing snapshots mean "run ingestion first".
	vectorIndex, metaStore := loadState(cfg, logger)

	retrievalSvc := retrievaluc.New(embedder, vectorIndex, metaStore, logger).
		WithOverfetch(cfg.Search.OverfetchFactor, cfg.Search.FilterMargin)

	if err := retrievalSvc.CheckConsistency(); err != nil {
		// Orphans self-heal at query time; surface the drift for operators.
		logger.Warn("Persisted state is inconsistent", zap.Error(err))
	}

	snap := &snapshotter{
		index:        vectorIndex,
		meta:         metaStore,
		indexPath:    cfg.Storage.IndexPath(),
		metadataPath: cfg.Storage.MetadataPath(),
	}
	ingestSvc := ingestuc.New(embedder, vectorIndex, metaStore, snap, logger).
		WithBatching(cfg.Ingest.SubBatchSize, cfg.Ingest.Parallelism)

	var summarizer routeruc.Summarizer
	if cfg.Summarizer.Model != "" {
		apiKey := cfg.Summarizer.APIKey
		if apiKey == "" {
			apiKey = cfg.Embedding.APIKey
		}
		summarizer = openaiTransport.NewSummarizer(&openaiTransport.SummarizerConfig{
			APIKey:  apiKey,
			BaseURL: cfg.Summarizer.BaseURL,
			Model:   cfg.Summarizer.Model,
			Timeout: time.Duration(cfg.Summarizer.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	}

	workflows := map[string]routeruc.Workflow{
		routeruc.WorkflowDeadlineAlerts: routeruc.NewDeadlineAlerts(
			metaStore, time.Duration(cfg.Workflows.DeadlineAlertDays)*24*time.Hour,
		),
	}
	routerSvc := routeruc.New(retrievalSvc, metaStore, summarizer, workflows, logger).
		WithSearchDefaults(cfg.Search.DefaultTopK, cfg.Search.SimilarityThreshold).
		WithRetryBackoff(time.Duration(cfg.Summarizer.RetryBackoffMS) * time.Millisecond)

	var embChecker healthuc.EmbeddingChecker
	if hc, ok := any(embedder).(domain.HealthChecker); ok {
		embChecker = hc
	}
	var cachePinger healthuc.CachePinger
	if cacheStore != nil {
		cachePinger = cacheStore
	}
	healthSvc := healthuc.New(retrievalSvc, embChecker, cachePinger)

	server := chiTransport.NewServer(retrievalSvc, ingestSvc, routerSvc, healthSvc,
		chiTransport.SearchDefaults{
			TopK:     cfg.Search.DefaultTopK,
			MaxTopK:  cfg.Search.MaxTopK,
			MinScore: cfg.Search.SimilarityThreshold,
		})

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// Flush final snapshots so restarts resume from the latest state.
	if vectorIndex.Len() > 0 {
		if err := snap.Flush(shutdownCtx); err != nil {
			logger.Error("Failed to flush snapshots on shutdown", zap.Error(err))
		}
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: provider -> cached -> instrumented.
func buildEmbedder(cfg config.Config, cacheStore db.Store, logger *zap.Logger) *embeddinguc.InstrumentedEmbedder {
	var base domain.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Provider:   cfg.Embedding.Provider,
			Logger:     logger,
		})
	default:
		base = localEmb.NewEmbedder(cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}

	embedder := base
	if cacheStore != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(base, cacheStore, cfg.Embedding.Model, ttl,
			metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, logger,
	)
}

// loadState loads the vector index and metadata snapshots, starting empty when
// none exist. Incompatible snapshots (model or dimension change) are fatal:
// the operator must reindex.
func loadState(cfg config.Config, logger *zap.Logger) (*index.Flat, *metadata.Store) {
	model := cfg.Embedding.Model
	dim := cfg.Embedding.Dimensions

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		logger.Fatal("Failed to create storage dir", zap.Error(err))
	}

	vectorIndex, err := index.Load(cfg.Storage.IndexPath(), model, dim)
	switch {
	case err == nil:
		logger.Info("Loaded vector index snapshot",
			zap.String("path", cfg.Storage.IndexPath()),
			zap.Int("live_entries", vectorIndex.Len()),
		)
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("No vector index snapshot, starting empty; run ingestion first")
		vectorIndex, err = index.New(model, dim)
		if err != nil {
			logger.Fatal("Failed to create vector index", zap.Error(err))
		}
	default:
		logger.Fatal("Failed to load vector index snapshot", zap.Error(err))
	}

	metaStore, err := metadata.Load(cfg.Storage.MetadataPath(), model, dim)
	switch {
	case err == nil:
		logger.Info("Loaded metadata snapshot",
			zap.String("path", cfg.Storage.MetadataPath()),
			zap.Int("records", metaStore.Len()),
		)
	case errors.Is(err, fs.ErrNotExist):
		metaStore = metadata.New(model, dim)
	default:
		logger.Fatal("Failed to load metadata snapshot", zap.Error(err))
	}

	metrics.IndexEntriesLive.Set(float64(vectorIndex.Len()))
	return vectorIndex, metaStore
}

// snapshotter persists both stores together after ingestion and at shutdown.
type snapshotter struct {
	index        *index.Flat
	meta         *metadata.Store
	indexPath    string
	metadataPath string
}

func (s *snapshotter) Flush(_ context.Context) error {
	// Index first: a crash between the two writes then leaves orphan
	// vectors, which retrieval drops, rather than records without one.
	if err := s.index.Save(s.indexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := s.meta.Save(s.metadataPath); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line -- one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
