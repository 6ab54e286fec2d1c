package theory

import (
	"testing"

	"groundedtheory.dev/core/common/arangodb"
	"groundedtheory.dev/core/internal/model"
	"groundedtheory.dev/core/internal/theory/judge"
)

func TestPickCentralCategoryMatchesCaseInsensitively(t *testing.T) {
	candidates := []model.Category{
		{ID: "c1", Name: "Resource Scarcity"},
		{ID: "c2", Name: "Trust Building"},
	}
	picked := pickCentralCategory("trust building", candidates)
	if picked.ID != "c2" {
		t.Fatalf("expected c2, got %s", picked.ID)
	}
}

func TestPickCentralCategoryFallsBackToFirstOnNoMatch(t *testing.T) {
	candidates := []model.Category{{ID: "c1", Name: "Resource Scarcity"}}
	picked := pickCentralCategory("something else entirely", candidates)
	if picked.ID != "c1" {
		t.Fatalf("expected fallback to c1, got %s", picked.ID)
	}
}

func TestCategoryDisplayNameFallsBackToID(t *testing.T) {
	nameByID := map[string]string{"c1": "Resource Scarcity"}
	if got := categoryDisplayName("c1", nameByID); got != "Resource Scarcity" {
		t.Fatalf("expected resolved name, got %q", got)
	}
	if got := categoryDisplayName("unknown", nameByID); got != "unknown" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}

func TestCoOccurrenceSummariesResolveNames(t *testing.T) {
	coocc := []arangodb.CoOccurrence{{CategoryA: "c1", CategoryB: "c2", Count: 4}}
	nameByID := map[string]string{"c1": "Resource Scarcity", "c2": "Trust Building"}
	out := coOccurrenceSummaries(coocc, nameByID)
	if len(out) != 1 || out[0].CategoryA != "Resource Scarcity" || out[0].CategoryB != "Trust Building" {
		t.Fatalf("unexpected summaries: %+v", out)
	}
}

func TestBuildClaimsOneClaimPerItemWithStableIDs(t *testing.T) {
	p := judge.Paradigm{
		SelectedCentralCategory: "Trust Building",
		Conditions:              []judge.Item{{Name: "Resource Scarcity", EvidenceIDs: []string{"f1"}}},
		Consequences: []judge.ConsequenceItem{
			{Item: judge.Item{Name: "Reduced Turnover", EvidenceIDs: []string{"f2"}}, Type: "social", Horizon: "largo_plazo"},
		},
		Propositions: []judge.Proposition{{Text: "Trust reduces friction.", EvidenceIDs: []string{"f1", "f2"}}},
	}
	categoryByName := map[string]string{"resource scarcity": "cat-1"}

	claims := buildClaims("theory-1", "proj-1", p, categoryByName)
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}

	again := buildClaims("theory-1", "proj-1", p, categoryByName)
	for i := range claims {
		if claims[i].ID != again[i].ID {
			t.Fatalf("claim id not stable across runs: %s vs %s", claims[i].ID, again[i].ID)
		}
	}

	if claims[0].CategoryID != "cat-1" {
		t.Fatalf("expected conditions claim to resolve category id, got %q", claims[0].CategoryID)
	}
	if claims[2].Section != "propositions" || claims[2].CategoryID != "" {
		t.Fatalf("expected propositions claim to carry no category id, got %+v", claims[2])
	}
}

func TestBuildClaimsEmptyParadigmProducesNoClaims(t *testing.T) {
	claims := buildClaims("theory-1", "proj-1", judge.Paradigm{}, nil)
	if len(claims) != 0 {
		t.Fatalf("expected no claims, got %d", len(claims))
	}
}

func TestRolloutHistorySkipsTheoriesWithoutPassedFlag(t *testing.T) {
	theories := []model.Theory{
		{Validation: map[string]any{"passed": true}},
		{Validation: map[string]any{}},
		{Validation: map[string]any{
			"passed": false,
			"rollout_state": map[string]any{
				"mode":                   "strict",
				"cooldown_remaining":     float64(2),
				"mode_changes_in_window": float64(1),
			},
		}},
	}

	history, state := rolloutHistory(theories)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if state.Mode != judge.ModeStrict || state.CooldownRemaining != 2 || state.ModeChangesInWindow != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestRolloutHistoryEmptyForNoPriorTheories(t *testing.T) {
	history, state := rolloutHistory(nil)
	if len(history) != 0 {
		t.Fatalf("expected no history, got %d", len(history))
	}
	if state.Mode != "" {
		t.Fatalf("expected zero-value state, got %+v", state)
	}
}
