package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"groundedtheory.dev/core/common/arangodb"
	"groundedtheory.dev/core/core/db"
)

// ConfigIssue records a profile default that was explicitly overridden to a
// value the profile considers unsafe. Surfaced at startup rather than
// silently honored.
type ConfigIssue struct {
	Field  string
	Value  string
	Reason string
}

// Config holds all application configuration.
type Config struct {
	Env  string // development, staging, production
	Port string

	DB     db.Config
	Graph  arangodb.Config
	Redis  RedisConfig
	Vector VectorConfig

	ReasoningLLM LLMConfig // central-category / saturation stage
	RouterLLM    LLMConfig // straussian-paradigm stage, model-routed
	FastLLM      LLMConfig // repair calls, judge-adjacent classification
	EmbeddingLLM LLMConfig

	OTel OTelConfig

	Budget      BudgetConfig
	Judge       JudgeConfig
	Concurrency ConcurrencyConfig
	Task        TaskConfig
	RateLimit   RateLimitConfig

	Issues []ConfigIssue
}

type RedisConfig struct {
	URL string
}

type VectorConfig struct {
	URL        string
	APIKey     string
	Dimensions int
}

type LLMConfig struct {
	Provider string // "openai", "anthropic", "mock"
	APIKey   string
	BaseURL  string
	Model    string
}

func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "mock" && c.APIKey != ""
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	enabled        bool
}

func (c OTelConfig) Enabled() bool { return c.enabled && c.Endpoint != "" }

// BudgetConfig configures the token budgeter: per-model context
// windows, the margin held back from each, and how many degrade steps a
// stage may take before giving up.
type BudgetConfig struct {
	MaxPromptTokens       int
	StageMargin           float64 // fraction of max reserved as headroom before degrading
	MaxDegradeSteps       int
	ReasoningContextLimit int
	RouterContextLimit    int
	FastContextLimit      int
}

// JudgeConfig configures the theory judge's validation thresholds and
// rollout policy.
type JudgeConfig struct {
	WarnOnly                 bool
	MaxUnknownConstructRatio float64
	ProhibitedTerms          []string
	MinPropositions          int
	BalanceMinEvidence       int
	MinInterviews            int
	ConcentrationRatio       float64 // max share of evidence from a single interview
	AdaptiveRatio            float64

	Rollout RolloutConfig
}

// RolloutConfig tunes the judge's strict/warn-only rollout meta-validator,
// layered on top of the per-run thresholds above.
type RolloutConfig struct {
	WindowSize              int
	MinTheoriesToPromote    int
	PromoteMaxBadRuns       int
	DemoteMinBadRuns        int
	CooldownRuns            int
	MaxModeChangesPerWindow int
	AdaptiveMinInterviews   int
}

// ConcurrencyConfig bounds parallel work across the coding and theory engines.
type ConcurrencyConfig struct {
	CodingFragmentConcurrency  int
	TheoryInterviewConcurrency int
	TopCentralCategories       int
}

// TaskConfig bounds the task orchestrator's lifecycle.
type TaskConfig struct {
	LockTTL      time.Duration
	LockRefresh  time.Duration
	StatusTTL    time.Duration
	PollInterval time.Duration
}

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	ChatRequestsPerMinute int
	ContactLeadsPerHour   int
}

// Load loads configuration from environment variables, applying
// environment-profile defaults first and letting explicit env vars override.
func Load() Config {
	env := getEnv("CORE_ENV", "development")
	prof := profileDefaults(env)

	cfg := Config{
		Env:  env,
		Port: getEnv("PORT", "8080"),
		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Graph: arangodb.Config{
			URL:      getEnv("ARANGO_URL", "http://localhost:8529"),
			Username: getEnv("ARANGO_USER", "root"),
			Password: getEnv("ARANGO_PASSWORD", ""),
			Database: getEnv("ARANGO_DATABASE", "groundedtheory"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Vector: VectorConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6334"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Dimensions: getEnvInt("QDRANT_DIMENSIONS", 1536),
		},
		ReasoningLLM: loadLLMConfig("REASONING", "gpt-5-codex"),
		RouterLLM:    loadLLMConfig("ROUTER", "gpt-4o"),
		FastLLM:      loadLLMConfig("FAST", "gpt-4o-mini"),
		EmbeddingLLM: loadLLMConfig("EMBEDDING", "text-embedding-3-small"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "groundedtheory-core"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			enabled:        getEnvBool("OTEL_ENABLED", prof.otelEnabled),
		},
		Budget: BudgetConfig{
			MaxPromptTokens:       getEnvInt("BUDGET_MAX_PROMPT_TOKENS", 24_000),
			StageMargin:           getEnvFloat("BUDGET_STAGE_MARGIN", 0.15),
			MaxDegradeSteps:       getEnvInt("BUDGET_MAX_DEGRADE_STEPS", 4),
			ReasoningContextLimit: getEnvInt("REASONING_LLM_CONTEXT_LIMIT", 128_000),
			RouterContextLimit:    getEnvInt("ROUTER_LLM_CONTEXT_LIMIT", 128_000),
			FastContextLimit:      getEnvInt("FAST_LLM_CONTEXT_LIMIT", 128_000),
		},
		Judge: JudgeConfig{
			WarnOnly:                 getEnvBool("JUDGE_WARN_ONLY", prof.judgeWarnOnly),
			MaxUnknownConstructRatio: getEnvFloat("JUDGE_MAX_UNKNOWN_CONSTRUCT_RATIO", 0.4),
			ProhibitedTerms:          splitEnvList("JUDGE_PROHIBITED_TERMS", ""),
			MinPropositions:          getEnvInt("JUDGE_MIN_PROPOSITIONS", 5),
			BalanceMinEvidence:       getEnvInt("JUDGE_BALANCE_MIN_EVIDENCE", 2),
			MinInterviews:            getEnvInt("JUDGE_MIN_INTERVIEWS", 3),
			ConcentrationRatio:       getEnvFloat("JUDGE_CONCENTRATION_RATIO", 0.6),
			AdaptiveRatio:            getEnvFloat("JUDGE_ADAPTIVE_RATIO", 0.5),
			Rollout: RolloutConfig{
				WindowSize:              getEnvInt("JUDGE_ROLLOUT_WINDOW_SIZE", 10),
				MinTheoriesToPromote:    getEnvInt("JUDGE_ROLLOUT_MIN_THEORIES_TO_PROMOTE", 5),
				PromoteMaxBadRuns:       getEnvInt("JUDGE_ROLLOUT_PROMOTE_MAX_BAD_RUNS", 0),
				DemoteMinBadRuns:        getEnvInt("JUDGE_ROLLOUT_DEMOTE_MIN_BAD_RUNS", 2),
				CooldownRuns:            getEnvInt("JUDGE_ROLLOUT_COOLDOWN_RUNS", 3),
				MaxModeChangesPerWindow: getEnvInt("JUDGE_ROLLOUT_MAX_MODE_CHANGES_PER_WINDOW", 2),
				AdaptiveMinInterviews:   getEnvInt("JUDGE_ROLLOUT_ADAPTIVE_MIN_INTERVIEWS", 1),
			},
		},
		Concurrency: ConcurrencyConfig{
			CodingFragmentConcurrency:  getEnvInt("CODING_FRAGMENT_CONCURRENCY", 8),
			TheoryInterviewConcurrency: getEnvInt("THEORY_INTERVIEW_CONCURRENCY", 3),
			TopCentralCategories:       getEnvInt("THEORY_TOP_CATEGORIES", 5),
		},
		Task: TaskConfig{
			LockTTL:      getEnvDuration("TASK_LOCK_TTL", 5*time.Minute),
			LockRefresh:  getEnvDuration("TASK_LOCK_REFRESH", 90*time.Second),
			StatusTTL:    getEnvDuration("TASK_STATUS_TTL", 24*time.Hour),
			PollInterval: getEnvDuration("TASK_POLL_INTERVAL", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			ChatRequestsPerMinute: getEnvInt("RATELIMIT_CHAT_PER_MINUTE", 20),
			ContactLeadsPerHour:   getEnvInt("RATELIMIT_CONTACT_PER_HOUR", 5),
		},
	}

	cfg.Issues = prof.validate(cfg)

	return cfg
}

func loadLLMConfig(prefix, defaultModel string) LLMConfig {
	return LLMConfig{
		Provider: getEnv(prefix+"_LLM_PROVIDER", "mock"),
		APIKey:   getEnv(prefix+"_LLM_API_KEY", ""),
		BaseURL:  getEnv(prefix+"_LLM_BASE_URL", ""),
		Model:    getEnv(prefix+"_LLM_MODEL", defaultModel),
	}
}

// buildDSN constructs the database connection string from individual env vars.
func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "groundedtheory")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

// IsProduction returns true if running in production environment.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

type profile struct {
	otelEnabled   bool
	judgeWarnOnly bool
	validate      func(Config) []ConfigIssue
}

func profileDefaults(env string) profile {
	switch env {
	case "production":
		return profile{
			otelEnabled:   true,
			judgeWarnOnly: false,
			validate: func(c Config) []ConfigIssue {
				var issues []ConfigIssue
				if c.Judge.WarnOnly {
					issues = append(issues, ConfigIssue{
						Field:  "JUDGE_WARN_ONLY",
						Value:  "true",
						Reason: "production profile expects the judge to enforce strict validation",
					})
				}
				if !c.OTel.Enabled() {
					issues = append(issues, ConfigIssue{
						Field:  "OTEL_EXPORTER_OTLP_ENDPOINT",
						Value:  "",
						Reason: "production profile expects tracing/logging export to be configured",
					})
				}
				return issues
			},
		}
	case "staging":
		return profile{
			otelEnabled:   true,
			judgeWarnOnly: true,
			validate:      func(Config) []ConfigIssue { return nil },
		}
	default:
		return profile{
			otelEnabled:   false,
			judgeWarnOnly: true,
			validate:      func(Config) []ConfigIssue { return nil },
		}
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// splitEnvList reads a comma-separated env var into a trimmed, non-empty
// slice. An unset var returns fallback split the same way; a var that is
// set to an empty string returns nil.
func splitEnvList(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
