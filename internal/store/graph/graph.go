// Package graph wraps common/arangodb.Client with domain-shaped operations
// consumed by the coding and theory engines. It is a derived projection of
// the relational store: every method here is safe to re-run against the
// same input and converges to the same graph state.
package graph

import (
	"context"
	"fmt"

	"groundedtheory.dev/core/common/arangodb"
	"groundedtheory.dev/core/internal/model"
)

type Store struct {
	client arangodb.Client
}

func New(client arangodb.Client) *Store {
	return &Store{client: client}
}

// SyncInterviewCoding projects one interview's coding pass: the interview
// node, its fragments, the codes touched, and the edges linking them. It is
// called once per auto_code_interview run, after the relational commit.
func (s *Store) SyncInterviewCoding(ctx context.Context, projectID, runID string, interview model.Interview, fragments []model.Fragment, codes []model.Code, links []model.CodeFragmentLink) error {
	if err := s.client.UpsertNodes(ctx, arangodb.NodeProject, []arangodb.Node{
		{ID: projectID, Kind: arangodb.NodeProject, Properties: map[string]any{"project_id": projectID}},
	}); err != nil {
		return fmt.Errorf("sync project node: %w", err)
	}

	nodes := []arangodb.Node{
		{
			ID:   interview.ID,
			Kind: arangodb.NodeInterview,
			Properties: map[string]any{
				"project_id": projectID,
				"status":     string(interview.Status),
				"word_count": interview.WordCount,
			},
		},
	}
	for _, f := range fragments {
		nodes = append(nodes, arangodb.Node{
			ID:   f.ID,
			Kind: arangodb.NodeFragment,
			Properties: map[string]any{
				"project_id":   projectID,
				"interview_id": f.InterviewID,
				"text":         f.Text,
			},
		})
	}
	for _, c := range codes {
		nodes = append(nodes, arangodb.Node{
			ID:   c.ID,
			Kind: arangodb.NodeCode,
			Properties: map[string]any{
				"project_id": projectID,
				"label":      c.Label,
				"created_by": c.CreatedBy,
			},
		})
	}
	if err := s.client.UpsertNodes(ctx, arangodb.NodeInterview, nodes[:1]); err != nil {
		return fmt.Errorf("sync interview node: %w", err)
	}
	if len(fragments) > 0 {
		if err := s.client.UpsertNodes(ctx, arangodb.NodeFragment, nodes[1:1+len(fragments)]); err != nil {
			return fmt.Errorf("sync fragment nodes: %w", err)
		}
	}
	if len(codes) > 0 {
		if err := s.client.UpsertNodes(ctx, arangodb.NodeCode, nodes[1+len(fragments):]); err != nil {
			return fmt.Errorf("sync code nodes: %w", err)
		}
	}

	if err := s.client.UpsertEdges(ctx, arangodb.EdgeHasInterview, []arangodb.Edge{{
		From: projectID, To: interview.ID,
		FromKind: arangodb.NodeProject, ToKind: arangodb.NodeInterview,
		Kind: arangodb.EdgeHasInterview,
	}}); err != nil {
		return fmt.Errorf("sync has_interview edge: %w", err)
	}

	hasCode := make([]arangodb.Edge, 0, len(codes))
	for _, c := range codes {
		hasCode = append(hasCode, arangodb.Edge{
			From: projectID, To: c.ID,
			FromKind: arangodb.NodeProject, ToKind: arangodb.NodeCode,
			Kind: arangodb.EdgeHasCode,
		})
	}
	if len(hasCode) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeHasCode, hasCode); err != nil {
			return fmt.Errorf("sync has_code edges: %w", err)
		}
	}

	hasFragment := make([]arangodb.Edge, 0, len(fragments))
	for _, f := range fragments {
		hasFragment = append(hasFragment, arangodb.Edge{
			From: interview.ID, To: f.ID,
			FromKind: arangodb.NodeInterview, ToKind: arangodb.NodeFragment,
			Kind: arangodb.EdgeHasFragment,
		})
	}
	if len(hasFragment) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeHasFragment, hasFragment); err != nil {
			return fmt.Errorf("sync has_fragment edges: %w", err)
		}
	}

	// CODED_AS is the current edge; APPLIES_TO is kept in parallel for
	// readers that haven't migrated off the pre-taxonomy edge name yet.
	codedAs := make([]arangodb.Edge, 0, len(links))
	appliesTo := make([]arangodb.Edge, 0, len(links))
	for _, l := range links {
		props := map[string]any{
			"confidence": l.Confidence,
			"source":     string(l.Source),
			"run_id":     runID,
			"ts":         l.LinkedAt.UnixMilli(),
		}
		if l.CharStart != nil {
			props["char_start"] = *l.CharStart
		}
		if l.CharEnd != nil {
			props["char_end"] = *l.CharEnd
		}
		codedAs = append(codedAs, arangodb.Edge{
			From: l.CodeID, To: l.FragmentID,
			FromKind: arangodb.NodeCode, ToKind: arangodb.NodeFragment,
			Kind: arangodb.EdgeCodedAs, Properties: props,
		})
		appliesTo = append(appliesTo, arangodb.Edge{
			From: l.CodeID, To: l.FragmentID,
			FromKind: arangodb.NodeCode, ToKind: arangodb.NodeFragment,
			Kind: arangodb.EdgeAppliesTo,
			Properties: map[string]any{"confidence": l.Confidence, "source": string(l.Source)},
		})
	}
	if len(codedAs) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeCodedAs, codedAs); err != nil {
			return fmt.Errorf("sync coded_as edges: %w", err)
		}
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeAppliesTo, appliesTo); err != nil {
			return fmt.Errorf("sync applies_to edges: %w", err)
		}
	}
	return nil
}

// SyncTaxonomy projects categories and the HAS_CATEGORY/CONTAINS edges that
// place codes under them. Called at the start of theory generation so graph
// metrics reflect the latest human or AI category assignments.
func (s *Store) SyncTaxonomy(ctx context.Context, projectID string, categories []model.Category, codes []model.Code) error {
	nodes := make([]arangodb.Node, 0, len(categories))
	for _, c := range categories {
		nodes = append(nodes, arangodb.Node{
			ID:   c.ID,
			Kind: arangodb.NodeCategory,
			Properties: map[string]any{
				"project_id": projectID,
				"name":       c.Name,
				"is_central": c.IsCentral,
			},
		})
	}
	if len(nodes) > 0 {
		if err := s.client.UpsertNodes(ctx, arangodb.NodeCategory, nodes); err != nil {
			return fmt.Errorf("sync category nodes: %w", err)
		}
		hasCategory := make([]arangodb.Edge, 0, len(categories))
		for _, c := range categories {
			hasCategory = append(hasCategory, arangodb.Edge{
				From: projectID, To: c.ID,
				FromKind: arangodb.NodeProject, ToKind: arangodb.NodeCategory,
				Kind: arangodb.EdgeHasCategory,
			})
		}
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeHasCategory, hasCategory); err != nil {
			return fmt.Errorf("sync has_category edges: %w", err)
		}
	}

	var contains []arangodb.Edge
	for _, c := range codes {
		if c.CategoryID == nil {
			continue
		}
		contains = append(contains, arangodb.Edge{
			From: *c.CategoryID, To: c.ID,
			FromKind: arangodb.NodeCategory, ToKind: arangodb.NodeCode,
			Kind: arangodb.EdgeContains,
		})
	}
	if len(contains) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeContains, contains); err != nil {
			return fmt.Errorf("sync contains edges: %w", err)
		}
	}
	return nil
}

// CentralCandidates returns categories ranked by graph centrality, richest
// first. Used by the theory engine to pick the candidate pool handed to the
// central-category reasoning stage.
func (s *Store) CentralCandidates(ctx context.Context, projectID string, top int) ([]arangodb.CategoryDegree, error) {
	degrees, err := s.client.CategoryMetrics(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("category metrics: %w", err)
	}
	rankByDegree(degrees)
	if top > 0 && len(degrees) > top {
		degrees = degrees[:top]
	}
	return degrees, nil
}

// CoOccurrence materializes and returns category co-occurrence edges for
// semantic-evidence retrieval and saturation analysis.
func (s *Store) CoOccurrence(ctx context.Context, projectID string) ([]arangodb.CoOccurrence, error) {
	return s.client.SyncCoOccurrence(ctx, projectID)
}

// SyncClaims projects the claims derived from a persisted theory: claim
// nodes plus ABOUT (claim->category), SUPPORTED_BY and CONTRADICTED_BY
// (claim->fragment) edges. Claim ids are stable (model.ClaimID), so
// re-running this against an unchanged theory converges rather than
// duplicating edges.
func (s *Store) SyncClaims(ctx context.Context, projectID string, claims []model.Claim) error {
	nodes := make([]arangodb.Node, 0, len(claims))
	for _, c := range claims {
		nodes = append(nodes, arangodb.Node{
			ID:   c.ID,
			Kind: arangodb.NodeClaim,
			Properties: map[string]any{
				"project_id": projectID,
				"theory_id":  c.TheoryID,
				"section":    c.Section,
				"order":      c.Order,
				"text":       c.Text,
			},
		})
	}
	if len(nodes) > 0 {
		if err := s.client.UpsertNodes(ctx, arangodb.NodeClaim, nodes); err != nil {
			return fmt.Errorf("sync claim nodes: %w", err)
		}
		hasClaim := make([]arangodb.Edge, 0, len(claims))
		for _, c := range claims {
			hasClaim = append(hasClaim, arangodb.Edge{
				From: projectID, To: c.ID,
				FromKind: arangodb.NodeProject, ToKind: arangodb.NodeClaim,
				Kind: arangodb.EdgeHasClaim,
			})
		}
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeHasClaim, hasClaim); err != nil {
			return fmt.Errorf("sync has_claim edges: %w", err)
		}
	}

	var about, supportedBy, contradictedBy []arangodb.Edge
	for _, c := range claims {
		if c.CategoryID != "" {
			about = append(about, arangodb.Edge{
				From: c.ID, To: c.CategoryID,
				FromKind: arangodb.NodeClaim, ToKind: arangodb.NodeCategory,
				Kind: arangodb.EdgeAbout,
			})
		}
		for _, fragID := range c.SupportingFragments {
			supportedBy = append(supportedBy, arangodb.Edge{
				From: c.ID, To: fragID,
				FromKind: arangodb.NodeClaim, ToKind: arangodb.NodeFragment,
				Kind: arangodb.EdgeSupportedBy,
			})
		}
		for _, fragID := range c.ContradictingFragments {
			contradictedBy = append(contradictedBy, arangodb.Edge{
				From: c.ID, To: fragID,
				FromKind: arangodb.NodeClaim, ToKind: arangodb.NodeFragment,
				Kind: arangodb.EdgeContradictedBy,
			})
		}
	}
	if len(about) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeAbout, about); err != nil {
			return fmt.Errorf("sync about edges: %w", err)
		}
	}
	if len(supportedBy) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeSupportedBy, supportedBy); err != nil {
			return fmt.Errorf("sync supported_by edges: %w", err)
		}
	}
	if len(contradictedBy) > 0 {
		if err := s.client.UpsertEdges(ctx, arangodb.EdgeContradictedBy, contradictedBy); err != nil {
			return fmt.Errorf("sync contradicted_by edges: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	return s.client.DeleteProject(ctx, projectID)
}

// rankByDegree sorts highest-degree first, comparing by PageRank when both
// entries have HasAlgoMetrics set and by the plain code/fragment degree count
// otherwise. CategoryMetrics never sets HasAlgoMetrics, so in practice the
// degree count decides.
func rankByDegree(degrees []arangodb.CategoryDegree) {
	for i := 1; i < len(degrees); i++ {
		for j := i; j > 0 && less(degrees[j], degrees[j-1]); j-- {
			degrees[j], degrees[j-1] = degrees[j-1], degrees[j]
		}
	}
}

func less(a, b arangodb.CategoryDegree) bool {
	if a.HasAlgoMetrics && b.HasAlgoMetrics {
		return a.PageRank > b.PageRank
	}
	return (a.CodeDegree + a.FragmentDegree) > (b.CodeDegree + b.FragmentDegree)
}
