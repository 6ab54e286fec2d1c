package theory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"groundedtheory.dev/core/internal/model"
	"groundedtheory.dev/core/internal/store/vector"
	"groundedtheory.dev/core/internal/theory/judge"
)

// buildClaims derives one Claim per paradigm item, in section order, with a
// stable id so re-projecting an unchanged theory converges.
// Every evidence id is recorded as supporting; the paradigm stages don't yet
// distinguish contradicting evidence, so ContradictingFragments is always
// empty (see DESIGN.md).
func buildClaims(theoryID, projectID string, p judge.Paradigm, categoryByName map[string]string) []model.Claim {
	var claims []model.Claim

	add := func(section string, items []judge.Item) {
		for i, item := range items {
			claims = append(claims, model.Claim{
				ID:                  model.ClaimID(theoryID, section, i, item.Name),
				TheoryID:            theoryID,
				ProjectID:           projectID,
				Section:             section,
				Order:               i,
				Text:                item.Name,
				CategoryID:          categoryByName[normalize(item.Name)],
				SupportingFragments: item.EvidenceIDs,
			})
		}
	}

	add("conditions", p.Conditions)
	add("context", p.Context)
	add("intervening_conditions", p.InterveningConditions)
	add("actions", p.Actions)

	for i, c := range p.Consequences {
		claims = append(claims, model.Claim{
			ID:                  model.ClaimID(theoryID, "consequences", i, c.Name),
			TheoryID:            theoryID,
			ProjectID:           projectID,
			Section:             "consequences",
			Order:               i,
			Text:                c.Name,
			CategoryID:          categoryByName[normalize(c.Name)],
			SupportingFragments: c.EvidenceIDs,
		})
	}

	for i, pr := range p.Propositions {
		claims = append(claims, model.Claim{
			ID:                  model.ClaimID(theoryID, "propositions", i, pr.Text),
			TheoryID:            theoryID,
			ProjectID:           projectID,
			Section:             "propositions",
			Order:               i,
			Text:                pr.Text,
			SupportingFragments: pr.EvidenceIDs,
		})
	}

	return claims
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// syncTimeout bounds each best-effort claim projection step, mirroring the
// coding engine's per-step timeout on its own projection sync.
const syncTimeout = 20 * time.Second

// projectClaims syncs claims into the graph store and, best-effort, upserts
// claim-text embeddings into the vector store with source_type="claim".
// Both failures log and continue; claim projection never fails the theory
// that was already persisted.
func (e *Engine) projectClaims(ctx context.Context, project model.Project, claims []model.Claim) {
	if len(claims) == 0 {
		return
	}

	graphCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := e.deps.Graph.SyncClaims(graphCtx, project.ID, claims); err != nil {
		slog.WarnContext(ctx, "claim graph sync failed, continuing", "error", err)
	}

	texts := make([]string, len(claims))
	for i, c := range claims {
		texts[i] = c.Text
	}

	embedCtx, embedCancel := context.WithTimeout(ctx, syncTimeout)
	defer embedCancel()
	vectors, err := e.deps.Gateway.Embed(embedCtx, texts)
	if err != nil {
		slog.WarnContext(ctx, "claim embedding failed, continuing", "error", err)
		return
	}

	now := time.Now()
	points := make([]vector.Point, 0, len(claims))
	for i, c := range claims {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		points = append(points, vector.Point{
			ID:         c.ID,
			Vector:     vectors[i],
			ProjectID:  project.ID,
			OwnerID:    project.OwnerID,
			ClaimID:    c.ID,
			SourceType: vector.SourceClaim,
			CreatedAt:  now,
			CategoryID: c.CategoryID,
			TheoryID:   c.TheoryID,
			Text:       c.Text,
		})
	}
	if len(points) == 0 {
		return
	}

	vecCtx, vecCancel := context.WithTimeout(ctx, syncTimeout)
	defer vecCancel()
	if err := e.deps.Vector.UpsertBatch(vecCtx, project.ID, points); err != nil {
		slog.WarnContext(ctx, "claim vector upsert failed, continuing", "error", err)
	}
}
