package theory

import (
	"context"
	"testing"

	"groundedtheory.dev/core/common/llm"
	"groundedtheory.dev/core/internal/theory/judge"
)

type fakeGateway struct {
	fastFn func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error)
}

func (f *fakeGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }
func (f *fakeGateway) Reason(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}
func (f *fakeGateway) Route(ctx context.Context, task, system, user string, maxTokens int) (llm.RouteResult, error) {
	return llm.RouteResult{}, nil
}
func (f *fakeGateway) Fast(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
	return f.fastFn(ctx, system, user, maxTokens)
}

func TestRepairLoopAppliesConsequencesAndPropositions(t *testing.T) {
	e := &Engine{deps: Dependencies{Gateway: &fakeGateway{
		fastFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			switch {
			case contains(user, "Add consequence items"):
				return `{"consequences":[{"name":"lost income","evidence_ids":["f1"],"type":"material","horizon":"corto_plazo"}]}`, llm.Usage{}, nil
			case contains(user, "Add or complete propositions"):
				return `{"propositions":[{"text":"x leads to y","evidence_ids":["f1"]}]}`, llm.Usage{}, nil
			default:
				return `{}`, llm.Usage{}, nil
			}
		},
	}}}

	p := judge.Paradigm{
		SelectedCentralCategory: "Trust",
		Context:                 []judge.Item{{Name: "ctx", EvidenceIDs: []string{"f1"}}},
		InterveningConditions:   []judge.Item{{Name: "int", EvidenceIDs: []string{"f1"}}},
	}

	updated, applied := e.repairLoop(context.Background(), p, `[]`)
	if len(applied) != 2 || applied[0] != "consequences" || applied[1] != "propositions" {
		t.Fatalf("expected [consequences propositions], got %v", applied)
	}
	if len(updated.Consequences) != 1 || len(updated.Propositions) != 1 {
		t.Fatalf("expected repaired sections to be merged, got %+v", updated)
	}
}

func TestRepairLoopSkipsWhenNothingMissing(t *testing.T) {
	called := false
	e := &Engine{deps: Dependencies{Gateway: &fakeGateway{
		fastFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			called = true
			return `{}`, llm.Usage{}, nil
		},
	}}}

	p := judge.Paradigm{
		Context:               []judge.Item{{Name: "ctx", EvidenceIDs: []string{"f1"}}},
		InterveningConditions:  []judge.Item{{Name: "int", EvidenceIDs: []string{"f1"}}},
		Propositions: []judge.Proposition{
			{Text: "a", EvidenceIDs: []string{"f1"}},
			{Text: "b", EvidenceIDs: []string{"f1"}},
			{Text: "c", EvidenceIDs: []string{"f1"}},
			{Text: "d", EvidenceIDs: []string{"f1"}},
			{Text: "e", EvidenceIDs: []string{"f1"}},
		},
		Consequences: []judge.ConsequenceItem{
			{Item: judge.Item{Name: "n1", EvidenceIDs: []string{"f1"}}, Type: "material", Horizon: "corto_plazo"},
			{Item: judge.Item{Name: "n2", EvidenceIDs: []string{"f1"}}, Type: "material", Horizon: "largo_plazo"},
			{Item: judge.Item{Name: "n3", EvidenceIDs: []string{"f1"}}, Type: "social", Horizon: "corto_plazo"},
			{Item: judge.Item{Name: "n4", EvidenceIDs: []string{"f1"}}, Type: "social", Horizon: "largo_plazo"},
			{Item: judge.Item{Name: "n5", EvidenceIDs: []string{"f1"}}, Type: "institutional", Horizon: "corto_plazo"},
			{Item: judge.Item{Name: "n6", EvidenceIDs: []string{"f1"}}, Type: "institutional", Horizon: "largo_plazo"},
		},
	}

	_, applied := e.repairLoop(context.Background(), p, `[]`)
	if len(applied) != 0 {
		t.Fatalf("expected no repairs to fire, got %v", applied)
	}
	if called {
		t.Fatal("expected no gateway call when nothing is missing")
	}
}

func TestTargetedRepairNoFindingsIsNoop(t *testing.T) {
	e := &Engine{}
	p := judge.Paradigm{SelectedCentralCategory: "Trust"}
	updated, applied := e.targetedRepair(context.Background(), p, nil, `[]`)
	if len(applied) != 0 {
		t.Fatalf("expected no repairs applied, got %v", applied)
	}
	if updated.SelectedCentralCategory != "Trust" {
		t.Fatal("expected paradigm unchanged")
	}
}

func TestTargetedRepairAppliesFixForBlockingCode(t *testing.T) {
	e := &Engine{deps: Dependencies{Gateway: &fakeGateway{
		fastFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			if !contains(user, "UNKNOWN_CONSTRUCTS") {
				t.Fatalf("expected instruction to name the blocking code, got %q", user)
			}
			return `{"conditions":[{"name":"Resource Scarcity","evidence_ids":["f1"]}]}`, llm.Usage{}, nil
		},
	}}}

	findings := []judge.Finding{{Code: judge.CodeUnknownConstructs, Message: "too many unknown constructs"}}
	updated, applied := e.targetedRepair(context.Background(), judge.Paradigm{}, findings, `[]`)
	if len(applied) != 1 || applied[0] != "unknown_constructs" {
		t.Fatalf("expected [unknown_constructs], got %v", applied)
	}
	if len(updated.Conditions) != 1 {
		t.Fatalf("expected patch merged in, got %+v", updated)
	}
}

func TestTargetedRepairIgnoresWarningFindings(t *testing.T) {
	called := false
	e := &Engine{deps: Dependencies{Gateway: &fakeGateway{
		fastFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			called = true
			return `{}`, llm.Usage{}, nil
		},
	}}}

	findings := []judge.Finding{{Code: judge.CodeCoverageConcentration, Message: "concentrated", Warning: true}}
	_, applied := e.targetedRepair(context.Background(), judge.Paradigm{}, findings, `[]`)
	if len(applied) != 0 {
		t.Fatalf("expected no repairs applied for a warning-only finding, got %v", applied)
	}
	if called {
		t.Fatal("expected no gateway call when every finding is a warning")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestBlockingCodesDedupesAndSkipsWarnings(t *testing.T) {
	findings := []judge.Finding{
		{Code: judge.CodeEvidenceMissing, Message: "a"},
		{Code: judge.CodeEvidenceMissing, Message: "b"},
		{Code: judge.CodeCoverageConcentration, Message: "c", Warning: true},
	}
	codes := blockingCodes(findings)
	if len(codes) != 1 || codes[0] != judge.CodeEvidenceMissing {
		t.Fatalf("expected one deduped code, got %v", codes)
	}
}
