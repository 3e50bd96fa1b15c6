package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
	"github.com/shoplens-ai/shoplens-engine/pkg/config"
	"github.com/shoplens-ai/shoplens-engine/pkg/database"
	"github.com/shoplens-ai/shoplens-engine/pkg/handlers"
	"github.com/shoplens-ai/shoplens-engine/pkg/llm"
	"github.com/shoplens-ai/shoplens-engine/pkg/logging"
	"github.com/shoplens-ai/shoplens-engine/pkg/mcp"
	mcpauth "github.com/shoplens-ai/shoplens-engine/pkg/mcp/auth"
	"github.com/shoplens-ai/shoplens-engine/pkg/mcp/tools"
	"github.com/shoplens-ai/shoplens-engine/pkg/middleware"
	"github.com/shoplens-ai/shoplens-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("mongo_database", cfg.Mongo.Database),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Bool("cache_enabled", cfg.Redis.Host != ""),
		zap.String("version", cfg.Version))

	ctx := context.Background()

	client, err := database.NewMongoClient(ctx, &cfg.Mongo)
	if err != nil {
		logger.Fatal("Failed to connect to document store", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Warn("Failed to disconnect from document store", zap.Error(err))
		}
	}()

	store := docstore.NewMongoStore(client, cfg.Mongo.Database,
		time.Duration(cfg.Mongo.TimeoutSeconds)*time.Second, logger)

	// Nil when no Redis host is configured; the answer cache degrades to a no-op.
	cache, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("Failed to close Redis client", zap.Error(err))
			}
		}()
	}

	// Nil clients are tolerated downstream: the generative tier falls back to
	// its keyword heuristic and the semantic tier stays cold.
	llmClient, err := llm.NewFromConfig(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	embedder, err := llm.NewEmbeddingClientFromConfig(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create embedding client", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(&auth.VerifierConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		HMACSecret:         cfg.Auth.HMACSecret,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create token verifier", zap.Error(err))
	}
	defer verifier.Close()

	authService := auth.NewAuthService(verifier, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	schema := services.NewSchemaService(store, logger)
	extractor := services.NewParameterExtractor()

	pattern := services.NewPatternClassifier(cfg.Router.DefaultResultLimit, logger)
	generative := services.NewGenerativeClassifier(llmClient, schema,
		time.Duration(cfg.Router.GenerativeTimeoutSeconds)*time.Second,
		cfg.Router.GenerativeMaxRetries, cfg.Router.DefaultResultLimit, logger)
	semantic := services.NewSemanticClassifier(embedder, cfg.AI.EmbeddingModel,
		cfg.Router.SemanticThreshold, cfg.Router.DefaultResultLimit, logger)

	router := services.NewRouter(
		[]services.Classifier{pattern, generative, semantic},
		services.RouterPolicy{EscalationThreshold: cfg.Router.ConfidenceThreshold},
		logger)

	executor := services.NewToolExecutor(store, cfg.Router.MaxResultDocs, logger)
	formatter := services.NewResponseFormatter(llmClient, cfg.AI.EnhanceAnswers, cfg.Router.DisplayLimit, logger)
	answerCache := services.NewAnswerCache(cache, cfg.Redis.KeyPrefix,
		time.Duration(cfg.Redis.AnswerTTLMinutes)*time.Minute, logger)

	orchestrator := services.NewOrchestrator(extractor, router, executor, formatter,
		answerCache, pattern, cfg.Router.EnableComplexQueries, logger)

	if cfg.Router.WarmEmbeddings {
		// Best effort in the background; the tier warms itself on first
		// use if this fails or the endpoint is slow to come up.
		go func() {
			warmCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			defer cancel()
			if err := semantic.Warm(warmCtx); err != nil {
				logger.Warn("Failed to warm example embeddings", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, store, cache, logger)
	healthHandler.RegisterRoutes(mux)

	queryHandler := handlers.NewQueryHandler(orchestrator, logger)
	queryHandler.RegisterRoutes(mux, authMiddleware)

	toolLogger := mcp.NewToolCallLogger(logger)
	mcpServer := mcp.NewServer("shoplens-engine", cfg.Version, toolLogger.Hooks(), logger)
	tools.RegisterAnalyticsTools(mcpServer.MCP(), &tools.AnalyticsToolDeps{
		Orchestrator: orchestrator,
		Schema:       schema,
		Logger:       logger,
	})
	tools.RegisterHealthTool(mcpServer.MCP(), &tools.HealthToolDeps{
		Version: cfg.Version,
		Store:   store,
		Cache:   cache,
		Logger:  logger,
	})

	mcpAuth := mcpauth.NewMiddleware(authService, logger)
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpAuth.RequireShop()(mcpServer.NewStreamableHTTPServer())))

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Forced shutdown", zap.Error(err))
		}
	}()

	logger.Info("Starting shoplens-engine",
		zap.String("addr", srv.Addr),
		zap.String("version", cfg.Version),
		zap.Bool("tls", cfg.TLSCertPath != ""))

	if cfg.TLSCertPath != "" {
		err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
