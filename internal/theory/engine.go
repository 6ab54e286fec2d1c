// Package theory implements the theory engine: the staged pipeline
// that turns a project's categories and coded evidence into a persisted,
// versioned grounded theory. The algorithm mirrors the coding engine's
// "classify, mutate, project" shape, stretched across more stages: taxonomy
// sync, network metrics, semantic evidence retrieval, a three-step budgeted
// reasoning chain, best-effort repair, validation, and persistence.
package theory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"groundedtheory.dev/core/common/arangodb"
	"groundedtheory.dev/core/common/llm"
	"groundedtheory.dev/core/common/logger"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/budget"
	"groundedtheory.dev/core/internal/coding"
	"groundedtheory.dev/core/internal/errs"
	"groundedtheory.dev/core/internal/jsondecode"
	"groundedtheory.dev/core/internal/model"
	"groundedtheory.dev/core/internal/store/graph"
	"groundedtheory.dev/core/internal/store/relational"
	"groundedtheory.dev/core/internal/store/vector"
	"groundedtheory.dev/core/internal/theory/judge"
)

const (
	centralCategoryMaxTokens = 900
	paradigmMaxTokens        = 4000
	saturationMaxTokens      = 700
	evidencePerCategory      = 6

	// paradigmFragmentChars{Ceiling,Floor,Step} bound the fragment_chars
	// degrade step: the first trip caps snippets at the ceiling, each
	// subsequent trip lowers the cap by Step down to Floor.
	paradigmFragmentCharsCeiling = 2000
	paradigmFragmentCharsFloor   = 200
	paradigmFragmentCharsStep    = 400
)

// Config tunes the pipeline. Model/context-limit fields feed the token
// budgeter; the rest shape how much of the graph/vector surface each
// stage sees.
type Config struct {
	TopCentralCategories int
	EvidencePerCategory  int
	InterviewConcurrency int

	ReasoningModel        string
	ReasoningContextLimit int
	RouterModel           string
	RouterContextLimit    int
	FastModel             string
	FastContextLimit      int
	MarginTokens          int
	MaxDegradeSteps       int

	Judge  judge.Config
	Policy judge.PolicyConfig

	// JudgeWarnOnly pins the judge to warn-only mode regardless of what the
	// rollout policy would decide; findings are still persisted.
	JudgeWarnOnly bool

	// ProjectClaims gates step 9 (claim projection into the graph/vector
	// stores). Defaulting this on is an Open Question resolution; see
	// DESIGN.md.
	ProjectClaims bool
}

// Dependencies are the stores and gateway GenerateTheory is wired against.
type Dependencies struct {
	DB      *db.DB
	Graph   *graph.Store
	Vector  *vector.Store
	Gateway llm.Gateway
	Coding  *coding.Engine
	Config  Config
}

type Engine struct {
	deps Dependencies
}

func New(deps Dependencies) *Engine {
	if deps.Config.TopCentralCategories <= 0 {
		deps.Config.TopCentralCategories = 5
	}
	if deps.Config.EvidencePerCategory <= 0 {
		deps.Config.EvidencePerCategory = evidencePerCategory
	}
	if deps.Config.InterviewConcurrency <= 0 {
		deps.Config.InterviewConcurrency = 3
	}
	return &Engine{deps: deps}
}

// GenerateTheory runs the full pipeline for one project: preflight, taxonomy
// sync, network metrics, semantic evidence, the three-stage reasoning chain,
// repair, judge, persist, and (best-effort) claim projection.
func (e *Engine) GenerateTheory(ctx context.Context, projectID string) (model.Theory, error) {
	start := time.Now()
	stores := relational.NewStores(e.deps.DB.Pool())

	project, err := stores.Projects().GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return model.Theory{}, fmt.Errorf("%w: project %s", errs.ErrNotFound, projectID)
		}
		return model.Theory{}, fmt.Errorf("load project: %w", err)
	}

	categories, codes, err := e.preflight(ctx, stores, project)
	if err != nil {
		return model.Theory{}, err
	}

	if err := e.deps.Graph.SyncTaxonomy(ctx, projectID, categories, codes); err != nil {
		return model.Theory{}, fmt.Errorf("sync taxonomy: %w", err)
	}

	degrees, err := e.deps.Graph.CentralCandidates(ctx, projectID, e.deps.Config.TopCentralCategories)
	if err != nil {
		return model.Theory{}, fmt.Errorf("central candidates: %w", err)
	}
	coocc, err := e.deps.Graph.CoOccurrence(ctx, projectID)
	if err != nil {
		slog.WarnContext(ctx, "co-occurrence sync failed, continuing without it", "error", err)
	}

	categoryByID := make(map[string]model.Category, len(categories))
	categoryByName := make(map[string]string, len(categories))
	categoryNameByID := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryByID[c.ID] = c
		categoryByName[normalize(c.Name)] = c.ID
		categoryNameByID[c.ID] = c.Name
	}
	candidates := make([]model.Category, 0, len(degrees))
	for _, d := range degrees {
		if c, ok := categoryByID[d.CategoryID]; ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		candidates = categories
	}

	evidence, err := e.semanticEvidence(ctx, project, candidates)
	if err != nil {
		slog.WarnContext(ctx, "semantic evidence retrieval failed, continuing with no evidence", "error", err)
	}

	interviews, err := stores.Interviews().ListByProject(ctx, projectID)
	if err != nil {
		return model.Theory{}, fmt.Errorf("list interviews: %w", err)
	}
	completed := 0
	for _, iv := range interviews {
		if iv.Status == model.InterviewCompleted {
			completed++
		}
	}
	fragmentInterview := e.fragmentIndex(ctx, stores, interviews)

	centralCategory, centralSteps, err := e.runCentralCategoryStage(ctx, project, candidates, coocc, categoryNameByID)
	if err != nil {
		return model.Theory{}, fmt.Errorf("central_category stage: %w", err)
	}
	if !centralCategory.IsCentral {
		if err := stores.Categories().SetCentral(ctx, centralCategory.ID, true); err != nil {
			slog.WarnContext(ctx, "marking central category failed, continuing", "category_id", centralCategory.ID, "error", err)
		}
	}

	paradigm, confidenceScore, paradigmSteps, err := e.runParadigmStage(ctx, project, centralCategory, candidates, evidence)
	if err != nil {
		return model.Theory{}, fmt.Errorf("paradigm stage: %w", err)
	}

	evidenceJSON, _ := json.Marshal(evidence)
	paradigmBefore := toModelJSON(paradigm, confidenceScore)
	paradigm, repairsApplied := e.repairLoop(ctx, paradigm, string(evidenceJSON))

	satResp, saturationSteps := e.runSaturationStage(ctx, paradigm, confidenceScore)

	knownNames := make([]string, 0, len(categories))
	for _, c := range categories {
		knownNames = append(knownNames, c.Name)
	}
	availableEvidenceIDs := make(map[string]bool, len(fragmentInterview))
	for fragID := range fragmentInterview {
		availableEvidenceIDs[fragID] = true
	}

	existingTheories, err := stores.Theories().ListByProject(ctx, projectID)
	if err != nil {
		return model.Theory{}, fmt.Errorf("list existing theories: %w", err)
	}

	judgeCfg := e.deps.Config.Judge
	judgeCfg.MinInterviews = judge.EffectiveMinInterviews(judgeCfg.MinInterviews, completed, e.deps.Config.Policy.AdaptiveMinInterviews)

	findings := judge.Validate(paradigm, knownNames, fragmentInterview, availableEvidenceIDs, completed, judgeCfg)

	history, currentState := rolloutHistory(existingTheories)
	nextState := judge.Evaluate(history, currentState, e.deps.Config.Policy)
	if e.deps.Config.JudgeWarnOnly {
		nextState.Mode = judge.ModeWarnOnly
	}

	blocking := countBlocking(findings)

	// Strict-mode failure gets one targeted repair pass, keyed off the
	// finding codes the judge actually returned, then re-judge. Only a
	// second, still-blocking verdict fails the run.
	if nextState.Mode == judge.ModeStrict && blocking > 0 {
		var targeted []string
		paradigm, targeted = e.targetedRepair(ctx, paradigm, findings, string(evidenceJSON))
		repairsApplied = append(repairsApplied, targeted...)

		findings = judge.Validate(paradigm, knownNames, fragmentInterview, availableEvidenceIDs, completed, judgeCfg)
		blocking = countBlocking(findings)

		if blocking > 0 {
			return model.Theory{}, fmt.Errorf("%w: %d blocking finding(s) after repair", errs.ErrJudgeFailed, blocking)
		}
	}

	paradigmAfter := toModelJSON(paradigm, confidenceScore)

	fields := logger.GetLogFields(ctx)
	var taskID string
	if fields.TaskID != nil {
		taskID = *fields.TaskID
	}

	validation := map[string]any{
		"findings":     findingsToJSON(findings),
		"passed":       blocking == 0,
		"rollout_mode": string(nextState.Mode),
		"rollout_state": map[string]any{
			"mode":                   string(nextState.Mode),
			"cooldown_remaining":     nextState.CooldownRemaining,
			"mode_changes_in_window": nextState.ModeChangesInWindow,
		},
		"network_metrics_summary": map[string]any{
			"central_candidates":  len(candidates),
			"co_occurrence_pairs": len(coocc),
		},
		"budget_debug": map[string]any{
			"central_category_steps": centralSteps,
			"paradigm_steps":         paradigmSteps,
			"saturation_steps":       saturationSteps,
		},
		"gap_analysis": map[string]any{
			"readiness_score":           satResp.ReadinessScore,
			"identified_gaps":           satResp.IdentifiedGaps,
			"theoretical_sampling_plan": satResp.TheoreticalSamplingPlan,
		},
		"paradigm_validation": map[string]any{
			"before":              paradigmBefore,
			"after":               paradigmAfter,
			"repairs_applied":     repairsApplied,
			"evidence_index_used": evidenceIndexUsed(evidence),
		},
		"pipeline_runtime": map[string]any{
			"task_id":        taskID,
			"prompt_version": promptVersion,
			"template_key":   project.DomainTemplate,
			"request": map[string]any{
				"project_id": projectID,
				"elapsed_ms": time.Since(start).Milliseconds(),
			},
		},
	}

	theory := model.Theory{
		ProjectID:       projectID,
		Version:         len(existingTheories) + 1,
		ModelJSON:       toModelJSON(paradigm, confidenceScore),
		Propositions:    toModelPropositions(paradigm.Propositions),
		Validation:      validation,
		Gaps:            satResp.IdentifiedGaps,
		ConfidenceScore: confidenceScore,
		Status:          model.TheoryCompleted,
	}

	created, err := stores.Theories().Create(ctx, theory)
	if err != nil {
		return model.Theory{}, fmt.Errorf("persist theory: %w", err)
	}

	if e.deps.Config.ProjectClaims {
		claims := buildClaims(created.ID, projectID, paradigm, categoryByName)
		e.projectClaims(ctx, project, claims)
	}

	return created, nil
}

// preflight loads categories/codes, bootstrapping them when too few exist to
// reason about, per "gates theory generation until at least two categories
// exist or can be bootstrapped" (errs.ErrInsufficientCategories).
func (e *Engine) preflight(ctx context.Context, stores *relational.Stores, project model.Project) ([]model.Category, []model.Code, error) {
	categories, err := stores.Categories().ListByProject(ctx, project.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list categories: %w", err)
	}
	codes, err := stores.Codes().ListByProject(ctx, project.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list codes: %w", err)
	}

	if len(categories) < 2 {
		e.autoCodeUncodedInterviews(ctx, stores, project.ID)
		codes, err = stores.Codes().ListByProject(ctx, project.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list codes: %w", err)
		}
	}

	if len(categories) < 2 && len(codes) > 0 {
		categories, err = e.bootstrapCategories(ctx, stores, project.ID, codes)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap categories: %w", err)
		}
	}

	if len(categories) < 2 {
		diag := errs.Diagnostic{Codes: len(codes), Categories: len(categories)}
		if interviews, ivErr := stores.Interviews().ListByProject(ctx, project.ID); ivErr == nil {
			diag.Interviews = len(interviews)
		}
		return nil, nil, fmt.Errorf("%w: project %s has %d categories, %d codes, %d interviews",
			errs.ErrInsufficientCategories, project.ID, diag.Categories, diag.Codes, diag.Interviews)
	}
	return categories, codes, nil
}

func (e *Engine) autoCodeUncodedInterviews(ctx context.Context, stores *relational.Stores, projectID string) {
	interviews, err := stores.Interviews().ListByProject(ctx, projectID)
	if err != nil {
		slog.WarnContext(ctx, "list interviews for preflight auto-coding failed", "error", err)
		return
	}

	sem := make(chan struct{}, e.deps.Config.InterviewConcurrency)
	var wg sync.WaitGroup
	for _, iv := range interviews {
		if iv.Status != model.InterviewCompleted {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(interviewID string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := e.deps.Coding.AutoCodeInterview(ctx, projectID, interviewID); err != nil {
				slog.WarnContext(ctx, "preflight auto-coding failed, continuing", "interview_id", interviewID, "error", err)
			}
		}(iv.ID)
	}
	wg.Wait()
}

// bootstrapCategories creates one category per distinct code label when a
// project has codes but no taxonomy yet.
func (e *Engine) bootstrapCategories(ctx context.Context, stores *relational.Stores, projectID string, codes []model.Code) ([]model.Category, error) {
	created := make(map[string]model.Category, len(codes))
	for _, c := range codes {
		key := normalize(c.Label)
		cat, ok := created[key]
		if !ok {
			var err error
			cat, err = stores.Categories().Create(ctx, model.Category{
				ProjectID:  projectID,
				Name:       c.Label,
				Definition: fmt.Sprintf("Bootstrapped from code %q.", c.Label),
			})
			if err != nil {
				return nil, fmt.Errorf("create category %q: %w", c.Label, err)
			}
			created[key] = cat
		}
		catID := cat.ID
		if err := stores.Codes().SetCategory(ctx, c.ID, &catID); err != nil {
			slog.WarnContext(ctx, "set code category failed during bootstrap", "code_id", c.ID, "error", err)
		}
	}

	categories := make([]model.Category, 0, len(created))
	for _, cat := range created {
		categories = append(categories, cat)
	}
	return categories, nil
}

func (e *Engine) semanticEvidence(ctx context.Context, project model.Project, candidates []model.Category) ([]EvidenceSnippet, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = fmt.Sprintf("%s. %s", c.Name, c.Definition)
	}
	vectors, err := e.deps.Gateway.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidate categories: %w", err)
	}

	perCategory := e.deps.Config.EvidencePerCategory
	var evidence []EvidenceSnippet
	for i, c := range candidates {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		hits, err := e.deps.Vector.Search(ctx, vectors[i], vector.SearchOptions{
			ProjectID: project.ID, OwnerID: project.OwnerID,
			SourceType: vector.SourceFragment, TopK: perCategory, AllowLegacyRetry: true,
		})
		if err != nil {
			slog.WarnContext(ctx, "semantic evidence search failed, continuing", "category_id", c.ID, "error", err)
			continue
		}
		for _, h := range hits {
			if h.FragmentID == "" {
				continue
			}
			evidence = append(evidence, EvidenceSnippet{FragmentID: h.FragmentID, CategoryID: c.ID, Text: h.Text})
		}
	}
	return evidence, nil
}

func (e *Engine) fragmentIndex(ctx context.Context, stores *relational.Stores, interviews []model.Interview) map[string]string {
	index := make(map[string]string)
	for _, iv := range interviews {
		fragments, err := stores.Fragments().ListByInterview(ctx, iv.ID)
		if err != nil {
			slog.WarnContext(ctx, "list fragments for coverage index failed", "interview_id", iv.ID, "error", err)
			continue
		}
		for _, f := range fragments {
			index[f.ID] = iv.ID
		}
	}
	return index
}

type centralCategoryResponse struct {
	SelectedCentralCategory string `json:"selected_central_category"`
}

func (e *Engine) runCentralCategoryStage(ctx context.Context, project model.Project, candidates []model.Category, coocc []arangodb.CoOccurrence, categoryNameByID map[string]string) (model.Category, []budget.Step, error) {
	categories := categorySummaries(candidates)
	pairs := coOccurrenceSummaries(coocc, categoryNameByID)

	build := func() []budget.Message {
		system, user := buildPrompt("central_category", project.DomainTemplate, CentralCategoryPayload{
			Categories: categories,
			Network:    NetworkSummary{CoOccurrences: pairs},
		})
		return []budget.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
	}
	// Fixed degrade priority for this stage: categories before network_top
	// (a dropped candidate category costs less than losing the co-occurrence
	// network).
	degrade := func() (string, bool) {
		if len(categories) > 2 {
			categories = categories[:len(categories)-1]
			return "categories: dropped one candidate category", true
		}
		if len(pairs) > 0 {
			pairs = pairs[:len(pairs)-1]
			return "network_top: dropped one co-occurrence pair", true
		}
		return "", false
	}

	result, err := budget.Run(budget.Request{
		Build:           build,
		Model:           e.deps.Config.ReasoningModel,
		ContextLimit:    e.deps.Config.ReasoningContextLimit,
		MaxOutputTokens: centralCategoryMaxTokens,
		MarginTokens:    e.deps.Config.MarginTokens,
		Degrade:         degrade,
		MaxSteps:        e.deps.Config.MaxDegradeSteps,
	})
	if err != nil {
		return model.Category{}, result.Steps, err
	}

	raw, _, err := e.deps.Gateway.Reason(ctx, result.Messages[0].Content, result.Messages[1].Content, centralCategoryMaxTokens)
	if err != nil {
		return model.Category{}, result.Steps, fmt.Errorf("%w: %v", errs.ErrLLMError, err)
	}

	var resp centralCategoryResponse
	if err := jsondecode.Decode(raw, &resp); err != nil {
		return model.Category{}, result.Steps, fmt.Errorf("undecodable central_category response: %w", err)
	}

	return pickCentralCategory(resp.SelectedCentralCategory, candidates), result.Steps, nil
}

func pickCentralCategory(name string, candidates []model.Category) model.Category {
	target := normalize(name)
	for _, c := range candidates {
		if normalize(c.Name) == target {
			return c
		}
	}
	return candidates[0]
}

func (e *Engine) runParadigmStage(ctx context.Context, project model.Project, central model.Category, candidates []model.Category, evidence []EvidenceSnippet) (judge.Paradigm, float64, []budget.Step, error) {
	other := make([]model.Category, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != central.ID {
			other = append(other, c)
		}
	}
	otherSummaries := categorySummaries(other)

	// Fixed degrade priority for this stage, in order: frags_per_cat,
	// fragment_chars, categories, strip_evidence_stage2.
	fragsPerCat := e.deps.Config.EvidencePerCategory
	if fragsPerCat <= 0 {
		fragsPerCat = evidencePerCategory
	}
	fragChars := 0
	stripEvidence := false

	build := func() []budget.Message {
		snippets := capEvidencePerCategory(evidence, fragsPerCat)
		if fragChars > 0 {
			snippets = truncateEvidenceText(snippets, fragChars)
		}
		if stripEvidence {
			snippets = nil
		}
		system, user := buildPrompt("paradigm", project.DomainTemplate, ParadigmPayload{
			CentralCategory: categorySummary(central),
			OtherCategories: otherSummaries,
			Evidence:        snippets,
		})
		return []budget.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
	}
	degrade := func() (string, bool) {
		if fragsPerCat > 1 {
			fragsPerCat--
			return fmt.Sprintf("frags_per_cat: reduced to %d", fragsPerCat), true
		}
		if fragChars == 0 {
			fragChars = paradigmFragmentCharsCeiling
			return fmt.Sprintf("fragment_chars: capped at %d", fragChars), true
		}
		if fragChars > paradigmFragmentCharsFloor {
			fragChars -= paradigmFragmentCharsStep
			if fragChars < paradigmFragmentCharsFloor {
				fragChars = paradigmFragmentCharsFloor
			}
			return fmt.Sprintf("fragment_chars: capped at %d", fragChars), true
		}
		if len(otherSummaries) > 1 {
			otherSummaries = otherSummaries[:len(otherSummaries)-1]
			return "categories: dropped one other category", true
		}
		if !stripEvidence && len(evidence) > 0 {
			stripEvidence = true
			return "strip_evidence_stage2: removed all evidence from paradigm payload", true
		}
		return "", false
	}

	result, err := budget.Run(budget.Request{
		Build:           build,
		Model:           e.deps.Config.RouterModel,
		ContextLimit:    e.deps.Config.RouterContextLimit,
		MaxOutputTokens: paradigmMaxTokens,
		MarginTokens:    e.deps.Config.MarginTokens,
		Degrade:         degrade,
		MaxSteps:        e.deps.Config.MaxDegradeSteps,
	})
	if err != nil {
		return judge.Paradigm{}, 0, result.Steps, err
	}

	routed, err := e.deps.Gateway.Route(ctx, "paradigm", result.Messages[0].Content, result.Messages[1].Content, paradigmMaxTokens)
	if err != nil {
		return judge.Paradigm{}, 0, result.Steps, fmt.Errorf("%w: %v", errs.ErrLLMError, err)
	}

	var raw rawParadigm
	if err := jsondecode.Decode(routed.Text, &raw); err != nil {
		return judge.Paradigm{}, 0, result.Steps, fmt.Errorf("undecodable paradigm response: %w", err)
	}

	return normalizeParadigm(raw), raw.ConfidenceScore, result.Steps, nil
}

type saturationResponse struct {
	ReadinessScore          float64  `json:"readiness_score"`
	IdentifiedGaps          []string `json:"identified_gaps"`
	TheoreticalSamplingPlan string   `json:"theoretical_sampling_plan"`
}

// runSaturationStage is best-effort: a failure here degrades to an empty
// gap analysis rather than failing the whole run, since saturation is
// informational and never gates the judge.
func (e *Engine) runSaturationStage(ctx context.Context, p judge.Paradigm, confidenceScore float64) (saturationResponse, []budget.Step) {
	// Fixed degrade priority for this stage: strip_evidence_stage3, the last
	// rung of the overall ladder.
	stripEvidence := false

	build := func() []budget.Message {
		var paradigmJSON []byte
		if stripEvidence {
			paradigmJSON, _ = json.Marshal(toModelJSONStripped(p, confidenceScore))
		} else {
			paradigmJSON, _ = json.Marshal(toModelJSON(p, confidenceScore))
		}
		system, user := buildPrompt("saturation", "generic", SaturationPayload{ParadigmJSON: string(paradigmJSON)})
		return []budget.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
	}
	degrade := func() (string, bool) {
		if !stripEvidence {
			stripEvidence = true
			return "strip_evidence_stage3: removed evidence_ids from saturation payload", true
		}
		return "", false
	}

	result, err := budget.Run(budget.Request{
		Build:           build,
		Model:           e.deps.Config.FastModel,
		ContextLimit:    e.deps.Config.FastContextLimit,
		MaxOutputTokens: saturationMaxTokens,
		MarginTokens:    e.deps.Config.MarginTokens,
		Degrade:         degrade,
		MaxSteps:        1,
	})
	if err != nil {
		slog.WarnContext(ctx, "saturation budget exceeded, skipping gap analysis", "error", err)
		return saturationResponse{}, result.Steps
	}

	raw, _, err := e.deps.Gateway.Fast(ctx, result.Messages[0].Content, result.Messages[1].Content, saturationMaxTokens)
	if err != nil {
		slog.WarnContext(ctx, "saturation call failed, skipping gap analysis", "error", err)
		return saturationResponse{}, result.Steps
	}

	var resp saturationResponse
	if err := jsondecode.Decode(raw, &resp); err != nil {
		slog.WarnContext(ctx, "saturation response undecodable, skipping gap analysis", "error", err)
		return saturationResponse{}, result.Steps
	}
	return resp, result.Steps
}

func categorySummaries(cats []model.Category) []CategorySummary {
	out := make([]CategorySummary, 0, len(cats))
	for _, c := range cats {
		out = append(out, categorySummary(c))
	}
	return out
}

func categorySummary(c model.Category) CategorySummary {
	return CategorySummary{ID: c.ID, Name: c.Name, Definition: c.Definition}
}

func coOccurrenceSummaries(coocc []arangodb.CoOccurrence, nameByID map[string]string) []CoOccurrenceSummary {
	out := make([]CoOccurrenceSummary, 0, len(coocc))
	for _, c := range coocc {
		out = append(out, CoOccurrenceSummary{
			CategoryA: categoryDisplayName(c.CategoryA, nameByID),
			CategoryB: categoryDisplayName(c.CategoryB, nameByID),
			Count:     c.Count,
		})
	}
	return out
}

func categoryDisplayName(id string, nameByID map[string]string) string {
	if name, ok := nameByID[id]; ok {
		return name
	}
	return id
}

func toModelPropositions(props []judge.Proposition) []model.Proposition {
	out := make([]model.Proposition, 0, len(props))
	for _, p := range props {
		out = append(out, model.Proposition{Text: p.Text, EvidenceIDs: p.EvidenceIDs})
	}
	return out
}

func countBlocking(findings []judge.Finding) int {
	n := 0
	for _, f := range findings {
		if !f.Warning {
			n++
		}
	}
	return n
}

func findingsToJSON(findings []judge.Finding) []map[string]any {
	out := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		out = append(out, map[string]any{
			"code": string(f.Code), "message": f.Message, "warning": f.Warning,
		})
	}
	return out
}

// rolloutHistory reconstructs the judge rollout policy's inputs from prior
// theories' persisted Validation blobs: each theory's "passed" flag feeds
// the window history, and the newest theory's "rollout_state" seeds the
// current state.
func rolloutHistory(theories []model.Theory) ([]judge.RunResult, judge.State) {
	history := make([]judge.RunResult, 0, len(theories))
	for _, t := range theories {
		if passed, ok := t.Validation["passed"].(bool); ok {
			history = append(history, judge.RunResult{Passed: passed})
		}
	}

	var state judge.State
	if len(theories) > 0 {
		state = parseRolloutState(theories[len(theories)-1].Validation["rollout_state"])
	}
	return history, state
}

func parseRolloutState(raw any) judge.State {
	m, ok := raw.(map[string]any)
	if !ok {
		return judge.State{}
	}
	var state judge.State
	if mode, ok := m["mode"].(string); ok {
		state.Mode = judge.Mode(mode)
	}
	if cd, ok := m["cooldown_remaining"].(float64); ok {
		state.CooldownRemaining = int(cd)
	}
	if mc, ok := m["mode_changes_in_window"].(float64); ok {
		state.ModeChangesInWindow = int(mc)
	}
	return state
}
