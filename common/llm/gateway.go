package llm

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// Usage mirrors the provider-reported token accounting for one gateway call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// RouteResult is returned by Gateway.Route, which additionally reports which
// model actually served the call (model-router stages may pick among
// several configured models).
type RouteResult struct {
	Text  string
	Model string
	Usage Usage
}

// Gateway is the stateless facade the coding and theory engines call.
// It never interprets the returned text: JSON parsing of `reason`/
// `route` output is the caller's responsibility via the robust decoder in
// internal/jsondecode/jsondecode.go.
type Gateway interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Reason sends a single system/user turn to the gateway's reasoning
	// model and returns raw text.
	Reason(ctx context.Context, systemPrompt, userPrompt string, maxOutputTokens int) (string, Usage, error)
	// Route sends a single system/user turn to the model selected for task,
	// reporting back which model actually served it.
	Route(ctx context.Context, task, systemPrompt, userPrompt string, maxOutputTokens int) (RouteResult, error)
	// Fast sends a single system/user turn to the cheap/low-latency model
	// reserved for saturation analysis and repair calls.
	Fast(ctx context.Context, systemPrompt, userPrompt string, maxOutputTokens int) (string, Usage, error)
}

// StageConfig names the provider/model backing one gateway role.
type StageConfig struct {
	Provider string // "openai", "anthropic", "mock"
	APIKey   string
	BaseURL  string
	Model    string
}

func (c StageConfig) enabled() bool { return c.Provider != "" && c.Provider != "mock" && c.APIKey != "" }

// GatewayConfig wires one AgentClient per role. RouterStages lets Route pick
// among multiple named models for model-router tasks (e.g. "paradigm" vs
// "repair"); when a task isn't listed it falls back to Router.
type GatewayConfig struct {
	Reasoning    StageConfig
	Router       StageConfig
	Fast         StageConfig
	Embedding    StageConfig
	RouterStages map[string]StageConfig
}

type gateway struct {
	reasoning AgentClient
	router    AgentClient
	fast      AgentClient
	routes    map[string]AgentClient
	embedCfg  StageConfig
	http      *http.Client
}

// NewGateway builds the production Gateway. Any role left unconfigured (or
// set to provider "mock") is backed by the deterministic mock so the rest of
// the pipeline can run in local/test environments without credentials.
func NewGateway(cfg GatewayConfig) (Gateway, error) {
	g := &gateway{
		routes:   map[string]AgentClient{},
		embedCfg: cfg.Embedding,
		http:     &http.Client{Timeout: 30 * time.Second},
	}

	reasoning, err := newStageClient(cfg.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("reasoning stage: %w", err)
	}
	g.reasoning = reasoning

	router, err := newStageClient(cfg.Router)
	if err != nil {
		return nil, fmt.Errorf("router stage: %w", err)
	}
	g.router = router

	fast, err := newStageClient(cfg.Fast)
	if err != nil {
		return nil, fmt.Errorf("fast stage: %w", err)
	}
	g.fast = fast

	for task, sc := range cfg.RouterStages {
		client, err := newStageClient(sc)
		if err != nil {
			return nil, fmt.Errorf("router stage %q: %w", task, err)
		}
		g.routes[task] = client
	}

	return g, nil
}

func newStageClient(cfg StageConfig) (AgentClient, error) {
	if !cfg.enabled() {
		return newMockAgentClient(cfg.Model), nil
	}
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	default:
		return newOpenAIClient(Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	}
}

func (g *gateway) Reason(ctx context.Context, systemPrompt, userPrompt string, maxOutputTokens int) (string, Usage, error) {
	resp, err := g.reasoning.ChatWithTools(ctx, AgentRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("reason: %w", err)
	}
	return resp.Content, Usage{PromptTokens: resp.PromptTokens, CompletionTokens: resp.CompletionTokens}, nil
}

func (g *gateway) Route(ctx context.Context, task, systemPrompt, userPrompt string, maxOutputTokens int) (RouteResult, error) {
	client := g.router
	if c, ok := g.routes[task]; ok {
		client = c
	}

	resp, err := client.ChatWithTools(ctx, AgentRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return RouteResult{}, fmt.Errorf("route %s: %w", task, err)
	}
	return RouteResult{
		Text:  resp.Content,
		Model: client.Model(),
		Usage: Usage{PromptTokens: resp.PromptTokens, CompletionTokens: resp.CompletionTokens},
	}, nil
}

func (g *gateway) Fast(ctx context.Context, systemPrompt, userPrompt string, maxOutputTokens int) (string, Usage, error) {
	resp, err := g.fast.ChatWithTools(ctx, AgentRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("fast: %w", err)
	}
	return resp.Content, Usage{PromptTokens: resp.PromptTokens, CompletionTokens: resp.CompletionTokens}, nil
}

// embeddingHTTPRequest/Response mirror the OpenAI-compatible embeddings
// wire format. A direct HTTP call (rather than the chat SDK) keeps this
// narrow surface independent of whichever chat transport each stage uses.
type embeddingHTTPRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingHTTPResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (g *gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !g.embedCfg.enabled() {
		return mockEmbeddings(texts), nil
	}

	base := g.embedCfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	body, err := json.Marshal(embeddingHTTPRequest{Model: g.embedCfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.embedCfg.APIKey)

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding request failed (status=%d): %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed embeddingHTTPResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}

	slog.DebugContext(ctx, "embeddings generated",
		"model", g.embedCfg.Model,
		"count", len(texts),
		"duration_ms", time.Since(start).Milliseconds())

	// Some providers reorder results; use Index to place them, falling back
	// to input order when Index is unset (legacy providers always omit it).
	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx == 0 && len(parsed.Data) == len(texts) && i != 0 {
			idx = i
		}
		if idx < 0 || idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// mockEmbeddings deterministically derives a low-dimensional vector from a
// text's hash so local tests exercise real cosine-distance math without a
// network call.
func mockEmbeddings(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = mockEmbedding(t)
	}
	return out
}

const mockEmbeddingDims = 32

func mockEmbedding(text string) []float32 {
	sum := sha1.Sum([]byte(text))
	vec := make([]float32, mockEmbeddingDims)
	var norm float64
	for i := range vec {
		b := sum[i%len(sum):]
		var v uint32
		if len(b) >= 4 {
			v = binary.BigEndian.Uint32(b[:4])
		} else {
			v = uint32(b[0])
		}
		f := float64(v)/float64(^uint32(0))*2 - 1
		vec[i] = float32(f)
		norm += f * f
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
