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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"groundedtheory.dev/core/common/arangodb"
	"groundedtheory.dev/core/common/id"
	"groundedtheory.dev/core/common/llm"
	"groundedtheory.dev/core/common/logger"
	"groundedtheory.dev/core/common/otel"
	"groundedtheory.dev/core/core/config"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/coding"
	"groundedtheory.dev/core/internal/http/handler"
	httprouter "groundedtheory.dev/core/internal/http/router"
	"groundedtheory.dev/core/internal/orchestrator"
	"groundedtheory.dev/core/internal/queue"
	"groundedtheory.dev/core/internal/ratelimit"
	"groundedtheory.dev/core/internal/store/graph"
	"groundedtheory.dev/core/internal/store/relational"
	"groundedtheory.dev/core/internal/store/vector"
	"groundedtheory.dev/core/internal/theory"
	"groundedtheory.dev/core/internal/theory/judge"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	// Best-effort .env loading for local development; production supplies
	// real environment variables.
	_ = godotenv.Load()

	cfg := config.Load()
	for _, issue := range cfg.Issues {
		slog.WarnContext(ctx, "config issue", "field", issue.Field, "value", issue.Value, "reason", issue.Reason)
	}

	// OTel must init before logger (logger uses the OTel provider in production).
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "core server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	arangoClient, err := arangodb.New(ctx, cfg.Graph)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create arangodb client", "error", err)
		os.Exit(1)
	}
	defer arangoClient.Close()
	if err := arangoClient.EnsureDatabase(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb database", "error", err)
		os.Exit(1)
	}
	if err := arangoClient.EnsureCollections(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb collections", "error", err)
		os.Exit(1)
	}
	if err := arangoClient.EnsureGraph(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb graph", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "arangodb connected", "database", cfg.Graph.Database)
	graphStore := graph.New(arangoClient)

	vectorStore, err := vector.New(vector.Config{
		URL:        cfg.Vector.URL,
		APIKey:     cfg.Vector.APIKey,
		Dimensions: cfg.Vector.Dimensions,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create qdrant client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "qdrant connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	gateway, err := llm.NewGateway(llm.GatewayConfig{
		Reasoning: llm.StageConfig(cfg.ReasoningLLM),
		Router:    llm.StageConfig(cfg.RouterLLM),
		Fast:      llm.StageConfig(cfg.FastLLM),
		Embedding: llm.StageConfig(cfg.EmbeddingLLM),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm gateway", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm gateway ready",
		"reasoning_model", cfg.ReasoningLLM.Model,
		"router_model", cfg.RouterLLM.Model,
		"fast_model", cfg.FastLLM.Model)

	codingEngine := coding.New(database, graphStore, vectorStore, gateway, coding.Config{
		FragmentConcurrency: cfg.Concurrency.CodingFragmentConcurrency,
	})

	theoryEngine := theory.New(theory.Dependencies{
		DB:      database,
		Graph:   graphStore,
		Vector:  vectorStore,
		Gateway: gateway,
		Coding:  codingEngine,
		Config: theory.Config{
			TopCentralCategories:  cfg.Concurrency.TopCentralCategories,
			InterviewConcurrency:  cfg.Concurrency.TheoryInterviewConcurrency,
			ReasoningModel:        cfg.ReasoningLLM.Model,
			ReasoningContextLimit: cfg.Budget.ReasoningContextLimit,
			RouterModel:           cfg.RouterLLM.Model,
			RouterContextLimit:    cfg.Budget.RouterContextLimit,
			FastModel:             cfg.FastLLM.Model,
			FastContextLimit:      cfg.Budget.FastContextLimit,
			MarginTokens:          int(float64(cfg.Budget.MaxPromptTokens) * cfg.Budget.StageMargin),
			MaxDegradeSteps:       cfg.Budget.MaxDegradeSteps,
			Judge: judge.Config{
				MaxUnknownConstructRatio: cfg.Judge.MaxUnknownConstructRatio,
				ProhibitedTerms:          cfg.Judge.ProhibitedTerms,
				MinPropositions:          cfg.Judge.MinPropositions,
				BalanceMinEvidence:       cfg.Judge.BalanceMinEvidence,
				MaxSharePerInterview:     cfg.Judge.ConcentrationRatio,
				MinInterviews:            cfg.Judge.MinInterviews,
				AdaptiveRatio:            cfg.Judge.AdaptiveRatio,
			},
			Policy: judge.PolicyConfig{
				WindowSize:              cfg.Judge.Rollout.WindowSize,
				MinTheoriesToPromote:    cfg.Judge.Rollout.MinTheoriesToPromote,
				PromoteMaxBadRuns:       cfg.Judge.Rollout.PromoteMaxBadRuns,
				DemoteMinBadRuns:        cfg.Judge.Rollout.DemoteMinBadRuns,
				CooldownRuns:            cfg.Judge.Rollout.CooldownRuns,
				MaxModeChangesPerWindow: cfg.Judge.Rollout.MaxModeChangesPerWindow,
				AdaptiveMinInterviews:   cfg.Judge.Rollout.AdaptiveMinInterviews,
			},
			JudgeWarnOnly: cfg.Judge.WarnOnly,
			ProjectClaims: true,
		},
	})

	taskStore := orchestrator.NewStore(redisClient, cfg.Task.StatusTTL)
	projectLock := orchestrator.NewProjectLock(redisClient, cfg.Task.LockTTL)

	var producer queue.Producer
	useExternalQueue := getEnvBool("CORE_USE_EXTERNAL_QUEUE", false)
	if useExternalQueue {
		producer = queue.NewRedisProducer(redisClient)
	}

	orch := orchestrator.New(taskStore, projectLock, producer, codingEngine, theoryEngine, orchestrator.Config{
		LockTTL:          cfg.Task.LockTTL,
		LockRefresh:      cfg.Task.LockRefresh,
		StatusTTL:        cfg.Task.StatusTTL,
		PollInterval:     cfg.Task.PollInterval,
		UseExternalQueue: useExternalQueue,
	})

	relationalStores := relational.NewStores(database.Pool())

	chatLimiter := ratelimit.NewFallback(
		ratelimit.NewRedis(redisClient, nil),
		ratelimit.NewLocal(nil),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}

	httprouter.Setup(router,
		handler.NewTheoryHandler(orch),
		handler.NewCodingHandler(orch, relationalStores.Fragments()),
		httprouter.Config{
			RateLimiter:     chatLimiter,
			ChatWindow:      time.Minute,
			ChatMaxRequests: cfg.RateLimit.ChatRequestsPerMinute,
			HealthCheckDeps: func(ctx context.Context) map[string]bool {
				return map[string]bool{
					"postgres": database.Pool().Ping(ctx) == nil,
					"redis":    redisClient.Ping(ctx).Err() == nil,
				}
			},
		})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return value == "1" || value == "true"
}

const banner = `
  ____                           _          _   _
 / ___|_ __ ___  _   _ _ __   __| | ___  __| | | |_ ___  ___  _ __ _   _
| |  _| '__/ _ \| | | | '_ \ / _` + "`" + ` |/ _ \/ _` + "`" + ` | | __/ _ \/ _ \| '__| | | |
| |_| | | | (_) | |_| | | | | (_| |  __/ (_| | | ||  __/ (_) | |  | |_| |
 \____|_|  \___/ \__,_|_| |_|\__,_|\___|\__,_|  \__\___|\___/|_|   \__, |
                                                                    |___/
`
