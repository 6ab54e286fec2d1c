package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"groundedtheory.dev/core/common/arangodb"
	"groundedtheory.dev/core/common/id"
	"groundedtheory.dev/core/common/llm"
	"groundedtheory.dev/core/common/logger"
	"groundedtheory.dev/core/common/otel"
	"groundedtheory.dev/core/core/config"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/coding"
	"groundedtheory.dev/core/internal/orchestrator"
	"groundedtheory.dev/core/internal/queue"
	"groundedtheory.dev/core/internal/store/graph"
	"groundedtheory.dev/core/internal/store/vector"
	"groundedtheory.dev/core/internal/theory"
	"groundedtheory.dev/core/internal/theory/judge"
)

const (
	maxAttempts        = 3
	streamDiscoverTick = 15 * time.Second
)

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	cfg := config.Load()
	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	}

	slog.InfoContext(ctx, "core worker starting", "env", cfg.Env)

	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	arangoClient, err := arangodb.New(ctx, cfg.Graph)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create arangodb client", "error", err)
		os.Exit(1)
	}
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
	orch := orchestrator.New(taskStore, projectLock, nil, codingEngine, theoryEngine, orchestrator.Config{
		LockTTL:      cfg.Task.LockTTL,
		LockRefresh:  cfg.Task.LockRefresh,
		StatusTTL:    cfg.Task.StatusTTL,
		PollInterval: cfg.Task.PollInterval,
	})

	hostname, _ := os.Hostname()
	consumerName := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fleet := newConsumerFleet(redisClient, orch, consumerName)
	fleet.discoverAndSpawn(ctx)

	discoverTicker := time.NewTicker(streamDiscoverTick)
	defer discoverTicker.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-discoverTicker.C:
				fleet.discoverAndSpawn(ctx)
			}
		}
	}()

	slog.InfoContext(ctx, "worker running", "consumer", consumerName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown...")
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		wg.Wait()
		fleet.wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		slog.InfoContext(ctx, "graceful shutdown completed")
	case <-time.After(30 * time.Second):
		slog.WarnContext(ctx, "shutdown timeout exceeded, forcing exit")
	}

	database.Close()
	if err := redisClient.Close(); err != nil {
		slog.ErrorContext(ctx, "redis close error", "error", err)
	}
	if err := arangoClient.Close(); err != nil {
		slog.ErrorContext(ctx, "arangodb close error", "error", err)
	}
	if telemetry != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

// consumerFleet fans one consumer goroutine out per active project stream,
// discovered periodically rather than configured up front, since projects
// come and go independently of worker deploys.
type consumerFleet struct {
	client       *redis.Client
	orch         *orchestrator.Orchestrator
	consumerName string

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func newConsumerFleet(client *redis.Client, orch *orchestrator.Orchestrator, consumerName string) *consumerFleet {
	return &consumerFleet{
		client:       client,
		orch:         orch,
		consumerName: consumerName,
		running:      make(map[string]struct{}),
	}
}

func (f *consumerFleet) discoverAndSpawn(ctx context.Context) {
	streams, err := queue.DiscoverProjectStreams(ctx, f.client)
	if err != nil {
		slog.ErrorContext(ctx, "failed to discover project streams", "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stream := range streams {
		if _, ok := f.running[stream]; ok {
			continue
		}
		consumer, err := queue.NewRedisConsumer(f.client, queue.ConsumerConfig{
			Stream:       stream,
			Group:        "core-workers",
			Consumer:     f.consumerName,
			DLQStream:    stream + ":dlq",
			BatchSize:    10,
			Block:        5 * time.Second,
			MaxAttempts:  maxAttempts,
			RequeueDelay: time.Second,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create consumer", "stream", stream, "error", err)
			continue
		}

		f.running[stream] = struct{}{}
		f.wg.Add(1)
		go func(stream string) {
			defer f.wg.Done()
			runLoop(ctx, consumer, f.orch)
			f.mu.Lock()
			delete(f.running, stream)
			f.mu.Unlock()
		}(stream)

		slog.InfoContext(ctx, "spawned consumer for project stream", "stream", stream)
	}
}

func (f *consumerFleet) wait() { f.wg.Wait() }

func runLoop(ctx context.Context, consumer *queue.RedisConsumer, orch *orchestrator.Orchestrator) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "core.worker.loop"})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			messages, err := consumer.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "failed to read from stream", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for _, msg := range messages {
				if ctx.Err() != nil {
					return
				}
				processOne(ctx, consumer, orch, msg)
			}
		}
	}
}

func processOne(ctx context.Context, consumer *queue.RedisConsumer, orch *orchestrator.Orchestrator, msg queue.Message) {
	msgCtx := logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: &msg.ProjectID,
		TaskID:    &msg.TaskID,
		Component: "core.worker.processor",
	})

	requeue, dlqReason := processMessageSafe(msgCtx, orch, msg)
	if dlqReason != "" {
		if err := consumer.SendDLQ(msgCtx, msg, dlqReason); err != nil {
			slog.ErrorContext(msgCtx, "failed to send to DLQ", "error", err)
		}
		return
	}
	if requeue {
		if err := consumer.Requeue(msgCtx, msg, "project lock held"); err != nil {
			slog.ErrorContext(msgCtx, "failed to requeue", "error", err)
		}
		return
	}
	if err := consumer.Ack(msgCtx, msg); err != nil {
		slog.WarnContext(msgCtx, "failed to ack message", "error", err)
	}
}

// processMessageSafe runs the orchestrator's dispatched pipeline for one
// message, recovering a panic as a DLQ-worthy failure so one bad message
// never takes the consumer loop down. requeue is set only for lock
// contention, which is expected to clear on its own; everything else either
// succeeds or exhausts retries inside the orchestrator's own task record.
func processMessageSafe(ctx context.Context, orch *orchestrator.Orchestrator, msg queue.Message) (requeue bool, dlqReason string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic recovered processing message",
				"panic", rec, "stack", string(debug.Stack()))
			dlqReason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	if msg.TaskID == "" {
		dlqReason = "message missing task_id"
		return
	}

	orch.Run(ctx, msg.TaskID, msg.TaskType, msg.ProjectID, msg.InterviewID)

	task, found, err := orch.Status(ctx, msg.TaskID)
	if err != nil {
		slog.WarnContext(ctx, "failed to read back task status", "error", err)
		return
	}
	if found && task.Status == orchestrator.StatusFailed && task.ErrorCode == "LOCKED" {
		if msg.Attempt < maxAttempts {
			requeue = true
			return
		}
		dlqReason = "project lock held past max attempts"
	}
	return
}

const banner = `
__        __         _
\ \      / /__  _ __| | _____ _ __
 \ \ /\ / / _ \| '__| |/ / _ \ '__|
  \ V  V / (_) | |  |   <  __/ |
   \_/\_/ \___/|_|  |_|\_\___|_|
`
