package coding

import (
	"context"
	"testing"

	"groundedtheory.dev/core/common/llm"
	"groundedtheory.dev/core/internal/model"
)

type fakeGateway struct {
	reasonFn func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error)
}

func (f *fakeGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) { return nil, nil }

func (f *fakeGateway) Reason(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
	return f.reasonFn(ctx, system, user, maxTokens)
}

func (f *fakeGateway) Route(ctx context.Context, task, system, user string, maxTokens int) (llm.RouteResult, error) {
	return llm.RouteResult{}, nil
}

func (f *fakeGateway) Fast(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
	return "", llm.Usage{}, nil
}

func TestFindEvidenceSpanExactMatch(t *testing.T) {
	text := "The participant said it was overwhelming at first."
	start, end := findEvidenceSpan(text, "overwhelming at first")
	if start == nil || end == nil {
		t.Fatal("expected a match")
	}
	if text[*start:*end] != "overwhelming at first" {
		t.Fatalf("got %q", text[*start:*end])
	}
}

func TestFindEvidenceSpanCaseInsensitiveFallback(t *testing.T) {
	text := "Feeling OVERWHELMED was common."
	start, end := findEvidenceSpan(text, "overwhelmed")
	if start == nil || end == nil {
		t.Fatal("expected a case-insensitive match")
	}
	if *end-*start != len("overwhelmed") {
		t.Fatalf("unexpected span length: %d", *end-*start)
	}
}

func TestFindEvidenceSpanNoMatch(t *testing.T) {
	start, end := findEvidenceSpan("unrelated text", "nowhere to be found")
	if start != nil || end != nil {
		t.Fatal("expected no match")
	}
}

func TestFindEvidenceSpanEmptyEvidence(t *testing.T) {
	start, end := findEvidenceSpan("some text", "  ")
	if start != nil || end != nil {
		t.Fatal("expected no match for blank evidence")
	}
}

func TestNormalizeLabel(t *testing.T) {
	if normalizeLabel("  Burnout Risk  ") != "burnout risk" {
		t.Fatal("expected trimmed, lowercased label")
	}
}

func TestClassifyFragmentParsesObjectEntries(t *testing.T) {
	e := &Engine{gateway: &fakeGateway{
		reasonFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			return `{"extracted_codes":[{"label":"burnout","definition":"exhaustion from overwork","confidence":0.8,"evidence_text":"exhausted"}]}`, llm.Usage{}, nil
		},
	}}
	project := model.Project{DomainTemplate: "generic"}
	fragment := model.Fragment{ID: "f1", Text: "I felt exhausted every day."}

	codes := e.classifyFragment(context.Background(), project, fragment, nil)
	if len(codes) != 1 {
		t.Fatalf("expected 1 code, got %d", len(codes))
	}
	if codes[0].Label != "burnout" {
		t.Fatalf("unexpected label: %q", codes[0].Label)
	}
}

func TestClassifyFragmentToleratesBareStringEntries(t *testing.T) {
	e := &Engine{gateway: &fakeGateway{
		reasonFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			return `{"extracted_codes":["burnout","isolation"]}`, llm.Usage{}, nil
		},
	}}
	project := model.Project{DomainTemplate: "generic"}
	fragment := model.Fragment{ID: "f1", Text: "text"}

	codes := e.classifyFragment(context.Background(), project, fragment, nil)
	if len(codes) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(codes))
	}
	if codes[0].Confidence != 0.6 {
		t.Fatalf("expected default confidence for bare strings, got %v", codes[0].Confidence)
	}
}

func TestClassifyFragmentDegradesOnGatewayError(t *testing.T) {
	e := &Engine{gateway: &fakeGateway{
		reasonFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			return "", llm.Usage{}, errReasonFailed
		},
	}}
	project := model.Project{DomainTemplate: "generic"}
	fragment := model.Fragment{ID: "f1", Text: "text"}

	codes := e.classifyFragment(context.Background(), project, fragment, nil)
	if codes != nil {
		t.Fatalf("expected nil codes on gateway failure, got %v", codes)
	}
}

func TestClassifyFragmentDegradesOnUndecodableResponse(t *testing.T) {
	e := &Engine{gateway: &fakeGateway{
		reasonFn: func(ctx context.Context, system, user string, maxTokens int) (string, llm.Usage, error) {
			return "not json at all and no braces here", llm.Usage{}, nil
		},
	}}
	project := model.Project{DomainTemplate: "generic"}
	fragment := model.Fragment{ID: "f1", Text: "text"}

	codes := e.classifyFragment(context.Background(), project, fragment, nil)
	if codes != nil {
		t.Fatalf("expected nil codes on undecodable response, got %v", codes)
	}
}

func TestBuildCodingPromptIncludesKnownCodes(t *testing.T) {
	project := model.Project{DomainTemplate: "education"}
	fragment := model.Fragment{Text: "some fragment text"}
	existing := []model.Code{{Label: "engagement"}, {Label: "dropout risk"}}

	system, user := buildCodingPrompt(project, fragment, existing)
	if !contains(system, "engagement") || !contains(system, "dropout risk") {
		t.Fatalf("expected known codes in system prompt: %s", system)
	}
	if !contains(system, "education") {
		t.Fatalf("expected domain template in system prompt: %s", system)
	}
	if !contains(user, "some fragment text") {
		t.Fatalf("expected fragment text in user prompt: %s", user)
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

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errReasonFailed = sentinelErr("reasoning call failed")
