// Package vector is the Qdrant-backed semantic-evidence store. It is a
// derived projection: every fragment with embedding_synced=true in the
// relational store has a matching point here, keyed by the same id, so
// repeated syncs upsert rather than duplicate.
package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const legacyIDField = "_original_id"

// SourceType distinguishes the two kinds of points a project's collection
// holds: fragment evidence and, once claim projection runs, claim text.
type SourceType string

const (
	SourceFragment SourceType = "fragment"
	SourceClaim    SourceType = "claim"
)

// Point is one embedding plus the payload the theory engine filters and
// reads back on retrieval.
type Point struct {
	ID          string
	Vector      []float32
	ProjectID   string
	OwnerID     string
	InterviewID string
	FragmentID  string // set when SourceType == SourceFragment
	ClaimID     string // set when SourceType == SourceClaim
	SourceType  SourceType
	CreatedAt   time.Time
	CategoryID  string
	TheoryID    string
	Codes       []string
	Text        string
}

type SearchHit struct {
	ID         string
	Score      float32
	FragmentID string
	ClaimID    string
	Text       string
	CategoryID string
}

type Store struct {
	client     *qdrant.Client
	dimensions int
	retries    int
}

type Config struct {
	URL        string
	APIKey     string
	Dimensions int
}

func New(cfg Config) (*Store, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}

	// Long-lived idle connections between pipeline runs get dropped by
	// intermediate proxies; keepalive pings keep the channel usable.
	qcfg := &qdrant.Config{
		Host: host,
		Port: portNum,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: true,
			}),
		},
	}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if cfg.APIKey != "" {
		qcfg.APIKey = cfg.APIKey
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &Store{client: client, dimensions: cfg.Dimensions, retries: 3}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// CollectionName names a project's collection. One collection per project
// keeps cross-tenant filtering a non-issue instead of a query-time concern.
func CollectionName(projectID string) string {
	return fmt.Sprintf("project_%s_fragments", projectID)
}

// EnsureCollection creates the project's collection if absent. Safe to call
// on every upsert; CollectionExists makes this a no-op after the first call.
func (s *Store) EnsureCollection(ctx context.Context, projectID string) error {
	name := CollectionName(projectID)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimensions <= 0 {
		return fmt.Errorf("vector store requires dimensions > 0")
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// UpsertBatch writes every point in one request and retries transient
// failures with backoff, since graph/vector sync failures must log and
// continue rather than abort the relational transaction that already
// committed.
func (s *Store) UpsertBatch(ctx context.Context, projectID string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, projectID); err != nil {
		return err
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := map[string]any{
			"project_id":  p.ProjectID,
			"owner_id":    p.OwnerID,
			"source_type": string(p.SourceType),
			"created_at":  p.CreatedAt.Format(time.RFC3339),
			"text":        p.Text,
		}
		if p.InterviewID != "" {
			payload["interview_id"] = p.InterviewID
		}
		if p.FragmentID != "" {
			payload["fragment_id"] = p.FragmentID
		}
		if p.ClaimID != "" {
			payload["claim_id"] = p.ClaimID
		}
		if p.CategoryID != "" {
			payload["category_id"] = p.CategoryID
		}
		if p.TheoryID != "" {
			payload["theory_id"] = p.TheoryID
		}
		if len(p.Codes) > 0 {
			codes := make([]any, len(p.Codes))
			for i, c := range p.Codes {
				codes[i] = c
			}
			payload["codes"] = codes
		}

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)

		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	collection := CollectionName(projectID)
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qpoints,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return fmt.Errorf("upsert %d points into %s after %d attempts: %w", len(points), collection, s.retries, lastErr)
}

// SearchOptions scope a similarity search to a project, source type and,
// for legacy collections synced before tenancy scoping landed, tolerate a
// single retry without the scoping filter.
type SearchOptions struct {
	ProjectID        string
	OwnerID          string // when set, results are additionally owner-scoped
	SourceType       SourceType
	TopK             int
	AllowLegacyRetry bool
}

func (s *Store) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]SearchHit, error) {
	name := CollectionName(opts.ProjectID)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		// No embeddings synced yet for this project; empty evidence, not
		// an error, lets the theory engine degrade gracefully.
		return nil, nil
	}

	hits, err := s.search(ctx, name, vector, opts, true)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && opts.AllowLegacyRetry {
		return s.search(ctx, name, vector, opts, false)
	}
	return hits, nil
}

func (s *Store) search(ctx context.Context, collection string, vector []float32, opts SearchOptions, scoped bool) ([]SearchHit, error) {
	top := opts.TopK
	if top <= 0 {
		top = 10
	}
	limit := uint64(top)

	var filter *qdrant.Filter
	if scoped {
		must := []*qdrant.Condition{qdrant.NewMatch("project_id", opts.ProjectID)}
		if opts.OwnerID != "" {
			must = append(must, qdrant.NewMatch("owner_id", opts.OwnerID))
		}
		if opts.SourceType != "" {
			must = append(must, qdrant.NewMatch("source_type", string(opts.SourceType)))
		}
		filter = &qdrant.Filter{Must: must}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, hit := range results {
		h := SearchHit{ID: hit.Id.GetUuid(), Score: hit.Score}
		if hit.Payload != nil {
			if v, ok := hit.Payload["fragment_id"]; ok {
				h.FragmentID = v.GetStringValue()
			}
			if v, ok := hit.Payload["claim_id"]; ok {
				h.ClaimID = v.GetStringValue()
			}
			if v, ok := hit.Payload["text"]; ok {
				h.Text = v.GetStringValue()
			}
			if v, ok := hit.Payload["category_id"]; ok {
				h.CategoryID = v.GetStringValue()
			}
			if v, ok := hit.Payload[legacyIDField]; ok && h.FragmentID == "" && h.ClaimID == "" {
				h.FragmentID = v.GetStringValue()
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	name := CollectionName(projectID)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		return nil
	}
	return s.client.DeleteCollection(ctx, name)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 200 * time.Millisecond
	if d > 3*time.Second {
		d = 3 * time.Second
	}
	return d
}
