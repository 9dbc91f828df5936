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

	"jurismemo-backend/config"
	"jurismemo-backend/embedding"
	"jurismemo-backend/grounding"
	"jurismemo-backend/handlers"
	"jurismemo-backend/llm"
	"jurismemo-backend/observability"
	"jurismemo-backend/repository"
	"jurismemo-backend/retrieval"
	"jurismemo-backend/service"
	"jurismemo-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "jurismemo-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingSettings(serviceName))
	if err != nil {
		fatal("Failed to initialize tracing", err)
	}
	defer shutdownTracing(context.Background())

	// Initialize database connections
	db, err := initPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("Failed to initialize Postgres", err)
	}
	defer db.Close()

	// Initialize embedding provider, with Redis cache when configured
	providerOpts := []embedding.ProviderOption{embedding.WithModel(cfg.Embedding.Model)}
	if cfg.Redis.URL != "" {
		rdb, err := initRedis(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("Redis unavailable, embedding cache disabled", "error", err)
		} else {
			defer rdb.Close()
			ttl := time.Duration(cfg.Embedding.CacheTTLSeconds) * time.Second
			providerOpts = append(providerOpts, embedding.WithCache(embedding.NewRedisCache(rdb, ttl)))
			slog.Info("Embedding cache enabled", "ttl", ttl)
		}
	}
	if cfg.Embedding.APIToken == "" {
		slog.Warn("DEEP_INFRA_API_TOKEN not set")
	}
	provider := embedding.NewProvider(cfg.Embedding.APIToken, cfg.Embedding.BaseURL, providerOpts...)

	generator, closeGenerator, err := initGenerator(ctx, cfg)
	if err != nil {
		fatal("Failed to initialize language model", err)
	}
	defer closeGenerator()

	splitter, err := grounding.NewPunktSplitter(cfg.Evaluation.Language)
	if err != nil {
		fatal("Failed to load sentence splitter", err)
	}

	logStore, closeLogStore, err := initLogStore(cfg, db)
	if err != nil {
		fatal("Failed to initialize evaluation log store", err)
	}
	defer closeLogStore()

	archive, err := storage.NewStorage(ctx, cfg.StorageSettings())
	if err != nil {
		fatal("Failed to initialize storage", err)
	}
	if archive == nil {
		slog.Info("Evaluation report archive disabled")
	} else {
		slog.Info("Storage initialized", "type", cfg.Storage.Type)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize repositories
	chunkRepo := repository.NewChunkRepository(db)
	memoRepo := repository.NewMemoRepository(db, cfg.AppEnv)

	retriever := retrieval.NewRetriever(chunkRepo,
		retrieval.WithMatchThreshold(cfg.Retrieval.MatchThreshold),
		retrieval.WithMatchCount(cfg.Retrieval.MatchCount),
	)

	// Initialize services
	memoService := service.NewMemoService(
		service.MemoWithEmbedder(provider),
		service.MemoWithRetriever(retriever),
		service.MemoWithChunkLister(chunkRepo),
		service.MemoWithGenerator(generator),
		service.MemoWithMemoStore(memoRepo),
		service.MemoWithMetrics(metrics),
		service.MemoWithRetrievalLimits(cfg.Retrieval.TopK, cfg.Retrieval.MaxPerSource),
		service.MemoWithTemperature(cfg.Generation.Temperature),
	)

	evaluationService := service.NewEvaluationService(
		service.EvaluationWithEvaluator(grounding.NewEvaluator(provider, splitter)),
		service.EvaluationWithLogStore(logStore),
		service.EvaluationWithArchive(archive, cfg.Storage.Prefix),
		service.EvaluationWithMetrics(metrics),
	)

	// Initialize handlers
	memoHandler := handlers.NewMemoHandler(memoService)
	evaluationHandler := handlers.NewEvaluationHandler(evaluationService,
		handlers.EvaluationHandlerWithDefaults(cfg.Evaluation.Metric, cfg.Evaluation.Threshold),
	)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterRoutes(r, memoHandler, evaluationHandler, handlers.NewIPRateLimiter(cfg.RateLimit.PerMinute))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "memo_table", repository.MemoTableName(cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Enable pgvector extension
	_, err = pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		slog.Warn("Failed to create pgvector extension; this may be normal if it is already installed or requires superuser privileges", "error", err)
	} else {
		slog.Info("pgvector extension enabled")
	}

	slog.Info("Postgres connection established with pgvector support")
	return pool, nil
}

func initRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// initGenerator builds the OpenAI backend and, when a key is configured, the
// Gemini backend behind a model router
func initGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, func(), error) {
	if cfg.Generation.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set")
	}
	openai := llm.NewOpenAIClient(cfg.Generation.OpenAIKey, cfg.Generation.OpenAIBaseURL, cfg.Generation.Model)

	var anthropic llm.Generator
	if cfg.Generation.AnthropicKey != "" {
		anthropic = llm.NewAnthropicClient(cfg.Generation.AnthropicKey, "", cfg.Generation.ClaudeModel)
	} else {
		slog.Info("ANTHROPIC_API_KEY not set, claude models unavailable")
	}

	if cfg.Generation.GeminiKey == "" {
		slog.Info("GEMINI_API_KEY not set, gemini models unavailable")
		return llm.NewRouter(openai, nil, anthropic), func() {}, nil
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg.Generation.GeminiKey, cfg.Generation.GeminiModel)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Gemini client initialized", "model", cfg.Generation.GeminiModel)

	return llm.NewRouter(openai, gemini, anthropic), func() { gemini.Close() }, nil
}

func initLogStore(cfg *config.Config, db *pgxpool.Pool) (service.EvaluationLogStore, func(), error) {
	if cfg.Evaluation.LogStore == "sqlite" {
		store, err := repository.NewSQLiteLogStore(cfg.Evaluation.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Evaluation logs stored in SQLite", "path", cfg.Evaluation.SQLitePath)
		return store, func() { store.Close() }, nil
	}
	return repository.NewEvaluationLogRepository(db), func() {}, nil
}
