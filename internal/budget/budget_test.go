package budget_test

import (
	"errors"
	"strings"
	"testing"

	"groundedtheory.dev/core/internal/budget"
	"groundedtheory.dev/core/internal/errs"
)

func TestRunAcceptsWithoutDegrading(t *testing.T) {
	req := budget.Request{
		Build: func() []budget.Message {
			return []budget.Message{{Role: "user", Content: "short prompt"}}
		},
		Model:           "gpt-4o-mini",
		ContextLimit:    10_000,
		MaxOutputTokens: 500,
		MarginTokens:    100,
		MaxSteps:        3,
	}

	result, err := budget.Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(result.Steps))
	}
	if !result.Steps[0].Fit {
		t.Fatal("expected first step to fit")
	}
}

func TestRunDegradesUntilItFits(t *testing.T) {
	chars := 20_000
	degradeCalls := 0

	req := budget.Request{
		Build: func() []budget.Message {
			return []budget.Message{{Role: "user", Content: strings.Repeat("a", chars)}}
		},
		Model:           "gpt-4o-mini",
		ContextLimit:    1_000,
		MaxOutputTokens: 100,
		MarginTokens:    50,
		MaxSteps:        5,
		Degrade: func() (string, bool) {
			degradeCalls++
			chars /= 2
			return "halved payload", true
		},
	}

	result, err := budget.Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degradeCalls == 0 {
		t.Fatal("expected at least one degrade call")
	}
	estimated := budget.EstimateTokens(result.Messages, req.Model)
	if estimated+req.MaxOutputTokens+req.MarginTokens > req.ContextLimit {
		t.Fatalf("invariant violated: %d + %d + %d > %d", estimated, req.MaxOutputTokens, req.MarginTokens, req.ContextLimit)
	}
}

func TestRunExhaustsStepsAndFails(t *testing.T) {
	req := budget.Request{
		Build: func() []budget.Message {
			return []budget.Message{{Role: "user", Content: strings.Repeat("a", 100_000)}}
		},
		Model:           "gpt-4o-mini",
		ContextLimit:    100,
		MaxOutputTokens: 10,
		MarginTokens:    5,
		MaxSteps:        2,
		Degrade: func() (string, bool) {
			return "no-op reduction", true
		},
	}

	_, err := budget.Run(req)
	if !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestRunStopsWhenDegradeExhausted(t *testing.T) {
	calls := 0
	req := budget.Request{
		Build: func() []budget.Message {
			return []budget.Message{{Role: "user", Content: strings.Repeat("a", 100_000)}}
		},
		Model:           "gpt-4o-mini",
		ContextLimit:    100,
		MaxOutputTokens: 10,
		MarginTokens:    5,
		MaxSteps:        5,
		Degrade: func() (string, bool) {
			calls++
			return "", false
		},
	}

	_, err := budget.Run(req)
	if !errors.Is(err, errs.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected degrade to be consulted exactly once before giving up, got %d", calls)
	}
}
