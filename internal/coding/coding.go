// Package coding implements the coding engine: turning one interview's
// fragments into extracted codes and the links that connect them, then
// projecting the result into the graph and vector stores.
//
// The run shape is: build input, call the model, mutate storage, then
// best-effort sync downstream projections without letting their failure
// unwind the authoritative write.
package coding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"groundedtheory.dev/core/common/llm"
	"groundedtheory.dev/core/common/logger"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/errs"
	"groundedtheory.dev/core/internal/jsondecode"
	"groundedtheory.dev/core/internal/model"
	"groundedtheory.dev/core/internal/store/graph"
	"groundedtheory.dev/core/internal/store/relational"
	"groundedtheory.dev/core/internal/store/vector"
)

// syncTimeout bounds each best-effort projection step so a hung graph or
// vector endpoint can't stall a run whose relational write already
// committed.
const syncTimeout = 20 * time.Second

// Config tunes the engine's behavior.
type Config struct {
	FragmentConcurrency int // CODING_FRAGMENT_CONCURRENCY
}

// Engine runs auto_code_interview against a fixed set of stores.
type Engine struct {
	db      *db.DB
	graph   *graph.Store
	vector  *vector.Store
	gateway llm.Gateway
	cfg     Config
}

func New(database *db.DB, g *graph.Store, v *vector.Store, gateway llm.Gateway, cfg Config) *Engine {
	if cfg.FragmentConcurrency <= 0 {
		cfg.FragmentConcurrency = 8
	}
	return &Engine{db: database, graph: g, vector: v, gateway: gateway, cfg: cfg}
}

// classification is one fragment's Phase A result.
type classification struct {
	fragment model.Fragment
	codes    []extractedCode
}

type extractedCode struct {
	Label        string  `json:"label"`
	Definition   string  `json:"definition"`
	Confidence   float64 `json:"confidence"`
	EvidenceText string  `json:"evidence_text"`
}

// AutoCodeInterview runs the full coding pass for one interview: parallel
// classification, sequential mutation, then best-effort projection sync.
func (e *Engine) AutoCodeInterview(ctx context.Context, projectID, interviewID string) error {
	stores := relational.NewStores(e.db.Pool())

	project, err := stores.Projects().GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return fmt.Errorf("%w: project %s", errs.ErrNotFound, projectID)
		}
		return fmt.Errorf("load project: %w", err)
	}

	interview, err := stores.Interviews().GetByID(ctx, interviewID)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return fmt.Errorf("%w: interview %s", errs.ErrNotFound, interviewID)
		}
		return fmt.Errorf("load interview: %w", err)
	}

	fragments, err := stores.Fragments().ListByInterview(ctx, interviewID)
	if err != nil {
		return fmt.Errorf("list fragments: %w", err)
	}
	if len(fragments) == 0 {
		slog.WarnContext(ctx, "interview has no fragments, skipping auto-coding",
			"project_id", projectID, "interview_id", interviewID, "error", errs.ErrEmptyInterview)
		return nil
	}

	existingCodes, err := stores.Codes().ListByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("list existing codes: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID:   logger.Ptr(projectID),
		InterviewID: logger.Ptr(interviewID),
		Component:   "core.coding.engine",
	})

	classifications := e.classifyFragments(ctx, project, fragments, existingCodes)

	var touchedCodes []model.Code
	var links []model.CodeFragmentLink

	err = e.db.WithTx(ctx, func(tx pgx.Tx) error {
		txStores := relational.NewStores(tx)
		codeByLabel := make(map[string]model.Code, len(existingCodes))
		for _, c := range existingCodes {
			codeByLabel[normalizeLabel(c.Label)] = c
		}

		for _, c := range classifications {
			for _, ec := range c.codes {
				label := strings.TrimSpace(ec.Label)
				if label == "" {
					continue
				}
				key := normalizeLabel(label)
				code, ok := codeByLabel[key]
				if !ok {
					created, err := txStores.Codes().GetOrCreate(ctx, project.ID, label, ec.Definition, "ai")
					if err != nil {
						return fmt.Errorf("%w: get-or-create code %q: %v", errs.ErrStoreFatal, label, err)
					}
					code = created
					codeByLabel[key] = code
					touchedCodes = append(touchedCodes, code)
				}

				start, end := findEvidenceSpan(c.fragment.Text, ec.EvidenceText)
				links = append(links, model.CodeFragmentLink{
					CodeID:     code.ID,
					FragmentID: c.fragment.ID,
					Confidence: ec.Confidence,
					Source:     model.LinkSourceAI,
					CharStart:  start,
					CharEnd:    end,
					LinkedAt:   time.Now(),
				})
			}
		}

		if len(links) > 0 {
			if _, err := txStores.CodeFragmentLinks().CreateBatch(ctx, links); err != nil {
				return fmt.Errorf("%w: batch insert links: %v", errs.ErrStoreFatal, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.syncProjections(ctx, project, uuid.NewString(), interview, fragments, touchedCodes, links, stores)

	return nil
}

// classifyFragments runs Phase A: bounded-concurrency parallel LLM
// classification. A fragment whose call fails or whose response can't be
// decoded contributes an empty code list rather than aborting the run.
func (e *Engine) classifyFragments(ctx context.Context, project model.Project, fragments []model.Fragment, existingCodes []model.Code) []classification {
	results := make([]classification, len(fragments))
	sem := make(chan struct{}, e.cfg.FragmentConcurrency)
	var wg sync.WaitGroup

	for i, f := range fragments {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f model.Fragment) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = classification{
				fragment: f,
				codes:    e.classifyFragment(ctx, project, f, existingCodes),
			}
		}(i, f)
	}
	wg.Wait()

	return results
}

type codingResponse struct {
	ExtractedCodes []json.RawMessage `json:"extracted_codes"`
}

func (e *Engine) classifyFragment(ctx context.Context, project model.Project, fragment model.Fragment, existingCodes []model.Code) []extractedCode {
	systemPrompt, userPrompt := buildCodingPrompt(project, fragment, existingCodes)

	raw, _, err := e.gateway.Reason(ctx, systemPrompt, userPrompt, 1500)
	if err != nil {
		slog.WarnContext(ctx, "coding classification call failed, skipping fragment",
			"fragment_id", fragment.ID, "error", err)
		return nil
	}

	var resp codingResponse
	if err := jsondecode.Decode(raw, &resp); err != nil {
		slog.WarnContext(ctx, "coding classification response undecodable, skipping fragment",
			"fragment_id", fragment.ID, "error", err)
		return nil
	}

	codes := make([]extractedCode, 0, len(resp.ExtractedCodes))
	for _, item := range resp.ExtractedCodes {
		var obj extractedCode
		if err := json.Unmarshal(item, &obj); err == nil && obj.Label != "" {
			codes = append(codes, obj)
			continue
		}
		// Tolerate a bare string entry: just the code label, no metadata.
		var label string
		if err := json.Unmarshal(item, &label); err == nil && strings.TrimSpace(label) != "" {
			codes = append(codes, extractedCode{Label: label, Confidence: 0.6})
		}
	}
	return codes
}

// syncProjections runs Phase C: embeddings + vector upsert, then graph sync.
// Either failing logs and continues; the relational write already committed.
func (e *Engine) syncProjections(ctx context.Context, project model.Project, runID string, interview model.Interview, fragments []model.Fragment, codes []model.Code, links []model.CodeFragmentLink, stores *relational.Stores) {
	e.syncEmbeddings(ctx, project, interview.ID, fragments, links, stores)

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := e.graph.SyncInterviewCoding(syncCtx, project.ID, runID, interview, fragments, codes, links); err != nil {
		slog.WarnContext(ctx, "graph sync failed, continuing", "interview_id", interview.ID, "error", err)
	}
}

func (e *Engine) syncEmbeddings(ctx context.Context, project model.Project, interviewID string, fragments []model.Fragment, links []model.CodeFragmentLink, stores *relational.Stores) {
	embedCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}

	vectors, err := e.gateway.Embed(embedCtx, texts)
	if err != nil {
		slog.WarnContext(ctx, "embedding generation failed, continuing", "interview_id", interviewID, "error", err)
		return
	}

	codesByFragment := make(map[string][]string, len(links))
	for _, l := range links {
		codesByFragment[l.FragmentID] = append(codesByFragment[l.FragmentID], l.CodeID)
	}

	points := make([]vector.Point, 0, len(fragments))
	synced := make([]string, 0, len(fragments))
	now := time.Now()
	// Handle zip truncation: a provider may return fewer vectors than
	// requested texts, or leave trailing slots nil.
	for i, f := range fragments {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		points = append(points, vector.Point{
			ID:          f.ID,
			Vector:      vectors[i],
			ProjectID:   project.ID,
			OwnerID:     project.OwnerID,
			InterviewID: interviewID,
			FragmentID:  f.ID,
			SourceType:  vector.SourceFragment,
			CreatedAt:   now,
			Codes:       codesByFragment[f.ID],
			Text:        f.Text,
		})
		synced = append(synced, f.ID)
	}

	if len(points) == 0 {
		return
	}

	vecCtx, vecCancel := context.WithTimeout(ctx, syncTimeout)
	defer vecCancel()
	if err := e.vector.UpsertBatch(vecCtx, project.ID, points); err != nil {
		slog.WarnContext(ctx, "vector upsert failed, continuing", "interview_id", interviewID, "error", err)
		return
	}

	if err := stores.Fragments().MarkEmbeddingSynced(ctx, synced); err != nil {
		slog.WarnContext(ctx, "marking fragments embedding_synced failed", "interview_id", interviewID, "error", err)
	}
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// findEvidenceSpan locates evidence in text, exact match first and falling
// back to a case-insensitive search.
func findEvidenceSpan(text, evidence string) (*int, *int) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return nil, nil
	}
	if idx := strings.Index(text, evidence); idx >= 0 {
		start, end := idx, idx+len(evidence)
		return &start, &end
	}
	if idx := strings.Index(strings.ToLower(text), strings.ToLower(evidence)); idx >= 0 {
		start, end := idx, idx+len(evidence)
		return &start, &end
	}
	return nil, nil
}
