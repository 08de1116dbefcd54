package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/scrapfeed/scrapfeed/internal/config"
	logpkg "github.com/scrapfeed/scrapfeed/internal/logger"
	"github.com/scrapfeed/scrapfeed/internal/metrics"
	feedrepo "github.com/scrapfeed/scrapfeed/internal/repository/feed"
	postrepo "github.com/scrapfeed/scrapfeed/internal/repository/post"
	"github.com/scrapfeed/scrapfeed/internal/repository/sqlite"
	userrepo "github.com/scrapfeed/scrapfeed/internal/repository/user"
	"github.com/scrapfeed/scrapfeed/internal/search"
	"github.com/scrapfeed/scrapfeed/internal/search/redisearch"
	"github.com/scrapfeed/scrapfeed/internal/search/sqlitevec"
	chiTransport "github.com/scrapfeed/scrapfeed/internal/transport/chi"
	openaiTransport "github.com/scrapfeed/scrapfeed/internal/transport/openai"
	"github.com/scrapfeed/scrapfeed/internal/usecase/ingest"
	"github.com/scrapfeed/scrapfeed/internal/usecase/preference"
	"github.com/scrapfeed/scrapfeed/internal/usecase/recommend"
	"github.com/scrapfeed/scrapfeed/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting scrapfeed API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("engine_driver", cfg.Engine.Driver),
		zap.String("sqlite_path", cfg.SQLite.Path),
	)

	db, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		logger.Fatal("Failed to open sqlite store", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	engine, pingers, closeEngine, err := buildSearchEngine(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to create search engine", zap.Error(err))
	}
	defer closeEngine()

	if err := engine.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure search index", zap.Error(err))
	}
	logger.Info("Search index ready")

	// Register domain metrics explicitly (no init())
	metrics.RegisterSearchMetrics()
	metrics.RegisterEmbeddingMetrics()

	// Repositories
	users := userrepo.New(db)
	feeds := feedrepo.New(db)
	posts := postrepo.New(db)

	// Providers
	providerCfg := openaiTransport.Config{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
	}
	embedder := openaiTransport.NewEmbedder(providerCfg, cfg.Embedding.Model, cfg.Engine.Dimension)
	summarizer := openaiTransport.NewSummarizer(providerCfg, cfg.Summary.Model, cfg.Summary.MaxTokens)

	// Use case services
	cascade := search.NewCascade(engine, search.DefaultStrategies(),
		time.Duration(cfg.Engine.RequestTimeoutSec)*time.Second, logger)
	preferenceSvc := preference.NewService(users, posts, logger)
	recommendSvc := recommend.NewService(engine, cascade, users, logger)
	ingestSvc := ingest.NewService(summarizer, embedder, posts, engine, ingest.Options{
		FetchTimeout:    time.Duration(cfg.Ingest.FetchTimeoutSec) * time.Second,
		TaskTimeout:     time.Duration(cfg.Ingest.TaskTimeoutSec) * time.Second,
		MaxContentChars: cfg.Ingest.MaxContentChars,
	}, logger)

	server := chiTransport.NewServer(
		users, feeds, recommendSvc, engine, preferenceSvc, ingestSvc, pingers, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.TokenAuthMiddleware(users))
	r.Use(metrics.Middleware())
	server.Register(r)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildSearchEngine creates the engine selected by engine.driver. Lives here,
// not in the search package, so the backends stay free of each other.
func buildSearchEngine(
	ctx context.Context, cfg config.Config, db *sql.DB, logger *zap.Logger,
) (search.Engine, map[string]chiTransport.Pinger, func(), error) {
	pingers := map[string]chiTransport.Pinger{"sqlite": dbPinger{db}}

	switch cfg.Engine.Driver {
	case "redisearch":
		engine, err := redisearch.New(redisearch.Config{
			Addrs:           cfg.Redis.Addrs,
			Username:        cfg.Redis.Username,
			Password:        cfg.Redis.Password,
			KeyPrefix:       cfg.Engine.KeyPrefix,
			Dimension:       cfg.Engine.Dimension,
			KeywordLimit:    cfg.Engine.KeywordLimit,
			HNSWM:           cfg.Engine.HNSWM,
			HNSWEFConstruct: cfg.Engine.HNSWEFConstruct,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redisearch: %w", err)
		}
		if err := engine.WaitForReady(ctx,
			time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			engine.Close()
			return nil, nil, nil, fmt.Errorf("redisearch not ready: %w", err)
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Redis.Addrs))
		pingers["redis"] = engine
		return engine, pingers, engine.Close, nil

	case "sqlitevec":
		engine, err := sqlitevec.New(sqlitevec.Config{
			Path:         cfg.SQLite.Path,
			Dimension:    cfg.Engine.Dimension,
			KeywordLimit: cfg.Engine.KeywordLimit,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlitevec: %w", err)
		}
		pingers["search"] = engine
		return engine, pingers, func() { _ = engine.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown engine driver %q", cfg.Engine.Driver)
	}
}

// dbPinger adapts *sql.DB to the health-check interface.
type dbPinger struct {
	db *sql.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain
// text stacktrace.
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

// wideEventMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
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
