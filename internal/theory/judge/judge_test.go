package judge_test

import (
	"testing"

	"groundedtheory.dev/core/internal/theory/judge"
)

func cleanParadigm() judge.Paradigm {
	ev := []string{"f1"}
	return judge.Paradigm{
		SelectedCentralCategory: "burnout",
		Conditions:              []judge.Item{{Name: "burnout", EvidenceIDs: ev}},
		Context:                 []judge.Item{{Name: "burnout", EvidenceIDs: ev}},
		InterveningConditions:   []judge.Item{{Name: "burnout", EvidenceIDs: ev}},
		Actions:                 []judge.Item{{Name: "burnout", EvidenceIDs: ev}},
		Consequences: []judge.ConsequenceItem{
			{Item: judge.Item{Name: "exhaustion", EvidenceIDs: ev}, Type: "material", Horizon: "corto_plazo"},
			{Item: judge.Item{Name: "exhaustion", EvidenceIDs: ev}, Type: "material", Horizon: "largo_plazo"},
			{Item: judge.Item{Name: "exhaustion", EvidenceIDs: ev}, Type: "social", Horizon: "corto_plazo"},
			{Item: judge.Item{Name: "exhaustion", EvidenceIDs: ev}, Type: "social", Horizon: "largo_plazo"},
			{Item: judge.Item{Name: "exhaustion", EvidenceIDs: ev}, Type: "institutional", Horizon: "corto_plazo"},
			{Item: judge.Item{Name: "exhaustion", EvidenceIDs: ev}, Type: "institutional", Horizon: "largo_plazo"},
		},
		Propositions: []judge.Proposition{
			{Text: "p1", EvidenceIDs: ev}, {Text: "p2", EvidenceIDs: ev}, {Text: "p3", EvidenceIDs: ev},
			{Text: "p4", EvidenceIDs: ev}, {Text: "p5", EvidenceIDs: ev},
		},
	}
}

func baseConfig() judge.Config {
	return judge.Config{
		MaxUnknownConstructRatio: 0.4,
		MinPropositions:          5,
		BalanceMinEvidence:       1,
		MaxSharePerInterview:     0.6,
		MinInterviews:            1,
	}
}

func TestValidateCleanParadigmHasNoErrorFindings(t *testing.T) {
	p := cleanParadigm()
	known := []string{"burnout"}
	fragToInterview := map[string]string{"f1": "i1"}
	available := map[string]bool{"f1": true}

	findings := judge.Validate(p, known, fragToInterview, available, 1, baseConfig())
	for _, f := range findings {
		if !f.Warning {
			t.Fatalf("unexpected error-level finding on clean paradigm: %+v", f)
		}
	}
}

func TestValidateFlagsUnknownConstructs(t *testing.T) {
	p := cleanParadigm()
	findings := judge.Validate(p, []string{"something else entirely"}, map[string]string{"f1": "i1"}, map[string]bool{"f1": true}, 1, baseConfig())
	if !hasCode(findings, judge.CodeUnknownConstructs) {
		t.Fatal("expected UNKNOWN_CONSTRUCTS finding")
	}
}

func TestValidateFlagsDomainSanity(t *testing.T) {
	p := cleanParadigm()
	p.Propositions[0].Text = "this theory follows grounded theory methodology per Strauss and Corbin"
	cfg := baseConfig()
	cfg.ProhibitedTerms = []string{"grounded theory methodology"}
	findings := judge.Validate(p, []string{"burnout"}, map[string]string{"f1": "i1"}, map[string]bool{"f1": true}, 1, cfg)
	if !hasCode(findings, judge.CodeDomainSanity) {
		t.Fatal("expected DOMAIN_SANITY finding")
	}
}

func TestValidateFlagsMissingPropositionEvidence(t *testing.T) {
	p := cleanParadigm()
	p.Propositions[0].EvidenceIDs = nil
	findings := judge.Validate(p, []string{"burnout"}, map[string]string{"f1": "i1"}, map[string]bool{"f1": true}, 1, baseConfig())
	if !hasCode(findings, judge.CodePropositionsInvalid) {
		t.Fatal("expected PROPOSITIONS_INVALID finding")
	}
}

func TestValidateFlagsEvidenceMissing(t *testing.T) {
	p := cleanParadigm()
	findings := judge.Validate(p, []string{"burnout"}, map[string]string{"f1": "i1"}, map[string]bool{}, 1, baseConfig())
	if !hasCode(findings, judge.CodeEvidenceMissing) {
		t.Fatal("expected EVIDENCE_MISSING finding")
	}
}

func TestValidateFlagsCoverageMinInterviews(t *testing.T) {
	p := cleanParadigm()
	cfg := baseConfig()
	cfg.MinInterviews = 3
	findings := judge.Validate(p, []string{"burnout"}, map[string]string{"f1": "i1"}, map[string]bool{"f1": true}, 3, cfg)
	if !hasCode(findings, judge.CodeCoverageMinInterviews) {
		t.Fatal("expected COVERAGE_MIN_INTERVIEWS finding")
	}
}

func TestValidateBalanceConsequencesDegradesToWarningBelowMinEvidence(t *testing.T) {
	p := cleanParadigm()
	p.Consequences = p.Consequences[:1] // drop most cells, leaving thin evidence
	cfg := baseConfig()
	cfg.BalanceMinEvidence = 100
	findings := judge.Validate(p, []string{"burnout"}, map[string]string{"f1": "i1"}, map[string]bool{"f1": true}, 1, cfg)
	f := findByCode(findings, judge.CodeBalanceConsequences)
	if f == nil {
		t.Fatal("expected BALANCE_CONSEQUENCES finding")
	}
	if !f.Warning {
		t.Fatal("expected BALANCE_CONSEQUENCES to degrade to warning when evidence is thin")
	}
}

func hasCode(findings []judge.Finding, code judge.Code) bool {
	return findByCode(findings, code) != nil
}

func findByCode(findings []judge.Finding, code judge.Code) *judge.Finding {
	for i := range findings {
		if findings[i].Code == code {
			return &findings[i]
		}
	}
	return nil
}

func TestEvaluatePromotesAfterCleanWindow(t *testing.T) {
	history := []judge.RunResult{{Passed: true}, {Passed: true}, {Passed: true}}
	cfg := judge.PolicyConfig{WindowSize: 5, MinTheoriesToPromote: 3, PromoteMaxBadRuns: 0, DemoteMinBadRuns: 2, CooldownRuns: 2, MaxModeChangesPerWindow: 3}
	state := judge.Evaluate(history, judge.State{Mode: judge.ModeWarnOnly}, cfg)
	if state.Mode != judge.ModeStrict {
		t.Fatalf("expected promotion to strict, got %s", state.Mode)
	}
}

func TestEvaluateDemotesAfterBadRuns(t *testing.T) {
	history := []judge.RunResult{{Passed: false}, {Passed: false}, {Passed: true}}
	cfg := judge.PolicyConfig{WindowSize: 5, MinTheoriesToPromote: 3, PromoteMaxBadRuns: 0, DemoteMinBadRuns: 2, CooldownRuns: 2, MaxModeChangesPerWindow: 3}
	state := judge.Evaluate(history, judge.State{Mode: judge.ModeStrict}, cfg)
	if state.Mode != judge.ModeWarnOnly {
		t.Fatalf("expected demotion to warn_only, got %s", state.Mode)
	}
	if state.CooldownRemaining != cfg.CooldownRuns {
		t.Fatalf("expected cooldown to be set, got %d", state.CooldownRemaining)
	}
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	history := []judge.RunResult{{Passed: true}, {Passed: true}, {Passed: true}}
	cfg := judge.PolicyConfig{WindowSize: 5, MinTheoriesToPromote: 1, PromoteMaxBadRuns: 0, DemoteMinBadRuns: 1, CooldownRuns: 2, MaxModeChangesPerWindow: 5}
	state := judge.Evaluate(history, judge.State{Mode: judge.ModeWarnOnly, CooldownRemaining: 2}, cfg)
	if state.Mode != judge.ModeWarnOnly {
		t.Fatal("expected mode to stay unchanged during cooldown")
	}
	if state.CooldownRemaining != 1 {
		t.Fatalf("expected cooldown to tick down by one, got %d", state.CooldownRemaining)
	}
}

func TestEffectiveMinInterviewsScalesDownForSmallProjects(t *testing.T) {
	if got := judge.EffectiveMinInterviews(5, 2, 1); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := judge.EffectiveMinInterviews(5, 10, 1); got != 5 {
		t.Fatalf("expected configured minimum 5, got %d", got)
	}
}
