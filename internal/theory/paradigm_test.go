package theory

import (
	"testing"

	"groundedtheory.dev/core/internal/theory/judge"
)

func TestNormalizeParadigmAliasesLegacyKeys(t *testing.T) {
	raw := rawParadigm{
		SelectedCentralCategory: "Trust",
		CausalConditions:        []rawItem{{Name: "scarcity", EvidenceIDs: []string{"f1"}}},
		ActionStrategies:        []rawItem{{Name: "negotiate", EvidenceIDs: []string{"f1"}}},
	}
	p := normalizeParadigm(raw)
	if len(p.Conditions) != 1 || p.Conditions[0].Name != "scarcity" {
		t.Fatalf("expected causal_conditions aliased to conditions, got %+v", p.Conditions)
	}
	if len(p.Actions) != 1 || p.Actions[0].Name != "negotiate" {
		t.Fatalf("expected action_strategies aliased to actions, got %+v", p.Actions)
	}
}

func TestCapEvidencePerCategoryEnforcesCeilingPerCategory(t *testing.T) {
	evidence := []EvidenceSnippet{
		{FragmentID: "f1", CategoryID: "c1"},
		{FragmentID: "f2", CategoryID: "c1"},
		{FragmentID: "f3", CategoryID: "c1"},
		{FragmentID: "f4", CategoryID: "c2"},
	}
	out := capEvidencePerCategory(evidence, 2)
	if len(out) != 3 {
		t.Fatalf("expected 2 from c1 + 1 from c2, got %d: %+v", len(out), out)
	}
	c1Count := 0
	for _, e := range out {
		if e.CategoryID == "c1" {
			c1Count++
		}
	}
	if c1Count != 2 {
		t.Fatalf("expected c1 capped at 2, got %d", c1Count)
	}
}

func TestCapEvidencePerCategoryZeroDropsEverything(t *testing.T) {
	evidence := []EvidenceSnippet{{FragmentID: "f1", CategoryID: "c1"}}
	if out := capEvidencePerCategory(evidence, 0); out != nil {
		t.Fatalf("expected nil for a zero cap, got %+v", out)
	}
}

func TestTruncateEvidenceTextCapsLength(t *testing.T) {
	evidence := []EvidenceSnippet{
		{FragmentID: "f1", Text: "a very long fragment of evidence text that exceeds the cap"},
		{FragmentID: "f2", Text: "short"},
	}
	out := truncateEvidenceText(evidence, 10)
	if len(out[0].Text) != 10 {
		t.Fatalf("expected long text truncated to 10 chars, got %q", out[0].Text)
	}
	if out[1].Text != "short" {
		t.Fatalf("expected short text untouched, got %q", out[1].Text)
	}
}

func TestToModelJSONStrippedOmitsEvidenceIDs(t *testing.T) {
	p := judge.Paradigm{
		SelectedCentralCategory: "Trust",
		Conditions:              []judge.Item{{Name: "scarcity", EvidenceIDs: []string{"f1", "f2"}}},
		Consequences: []judge.ConsequenceItem{
			{Item: judge.Item{Name: "lost income", EvidenceIDs: []string{"f1"}}, Type: "material", Horizon: "corto_plazo"},
		},
		Propositions: []judge.Proposition{{Text: "x causes y", EvidenceIDs: []string{"f1"}}},
	}

	stripped := toModelJSONStripped(p, 0.7)

	conditions, ok := stripped["conditions"].([]string)
	if !ok || len(conditions) != 1 || conditions[0] != "scarcity" {
		t.Fatalf("expected conditions as bare names, got %#v", stripped["conditions"])
	}

	consequences, ok := stripped["consequences"].([]map[string]any)
	if !ok || len(consequences) != 1 {
		t.Fatalf("expected one consequence map, got %#v", stripped["consequences"])
	}
	if _, hasEvidence := consequences[0]["evidence_ids"]; hasEvidence {
		t.Fatalf("expected no evidence_ids key in stripped consequence, got %#v", consequences[0])
	}

	propositions, ok := stripped["propositions"].([]string)
	if !ok || len(propositions) != 1 || propositions[0] != "x causes y" {
		t.Fatalf("expected propositions as bare text, got %#v", stripped["propositions"])
	}
}

func TestEvidenceIndexUsedDedupesAndDropsBlankIDs(t *testing.T) {
	evidence := []EvidenceSnippet{
		{FragmentID: "f1"},
		{FragmentID: "f1"},
		{FragmentID: "f2"},
		{FragmentID: ""},
	}
	out := evidenceIndexUsed(evidence)
	if len(out) != 2 || out[0] != "f1" || out[1] != "f2" {
		t.Fatalf("expected [f1 f2], got %v", out)
	}
}
