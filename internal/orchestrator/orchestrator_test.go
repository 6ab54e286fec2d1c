package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"groundedtheory.dev/core/common/id"
	"groundedtheory.dev/core/internal/errs"
)

func TestMain(m *testing.M) {
	_ = id.Init(99)
	os.Exit(m.Run())
}

func TestErrorCodeMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errs.ErrNotFound, "NOT_FOUND"},
		{errs.ErrInsufficientCategories, "INSUFFICIENT_CATEGORIES"},
		{errs.ErrBudgetExceeded, "BUDGET_EXCEEDED"},
		{errs.ErrLLMTimeout, "LLM_TIMEOUT"},
		{errs.ErrLLMError, "LLM_ERROR"},
		{errs.ErrJudgeFailed, "JUDGE_FAILED"},
		{errs.ErrStoreTransient, "STORE_TRANSIENT"},
		{errs.ErrStoreFatal, "STORE_FATAL"},
		{errs.ErrLocked, "LOCKED"},
		{errors.New("something else"), "INTERNAL_ERROR"},
	}

	for _, c := range cases {
		if got := errorCode(c.err); got != c.want {
			t.Errorf("errorCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestErrorCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("loading project: %w", errs.ErrNotFound)
	if got := errorCode(wrapped); got != "NOT_FOUND" {
		t.Fatalf("expected wrapped sentinel to resolve to NOT_FOUND, got %q", got)
	}
}

func TestNewTaskIDIsPrefixedAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		tid := newTaskID()
		if !strings.HasPrefix(tid, "task_") {
			t.Fatalf("expected task_ prefix, got %q", tid)
		}
		if seen[tid] {
			t.Fatalf("duplicate task id generated: %q", tid)
		}
		seen[tid] = true
	}
}
