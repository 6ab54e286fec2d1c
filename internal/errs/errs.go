// Package errs is the stable error-code taxonomy consumed by the
// orchestrator and surfaced to API clients. Each sentinel wraps into
// component errors with %w so callers can still errors.Is/As them.
package errs

import "errors"

var (
	// ErrNotFound covers missing projects/interviews/tasks. No recovery; 404.
	ErrNotFound = errors.New("NOT_FOUND")

	// ErrEmptyInterview is a soft success for the coding engine: no fragments
	// to code, nothing to do.
	ErrEmptyInterview = errors.New("EMPTY_INTERVIEW")

	// ErrInsufficientCategories gates theory generation until at least two
	// categories exist or can be bootstrapped.
	ErrInsufficientCategories = errors.New("INSUFFICIENT_CATEGORIES")

	// ErrLocked is returned when a per-project lock is already held.
	ErrLocked = errors.New("LOCKED")

	// ErrBudgetExceeded means the budgeter ran out of degrade steps.
	ErrBudgetExceeded = errors.New("BUDGET_EXCEEDED")

	// ErrLLMTimeout / ErrLLMError are transient gateway failures.
	ErrLLMTimeout = errors.New("LLM_TIMEOUT")
	ErrLLMError   = errors.New("LLM_ERROR")

	// ErrJudgeFailed means strict-mode validation failed after repair.
	ErrJudgeFailed = errors.New("JUDGE_FAILED")

	// ErrStoreTransient covers retryable graph/vector failures; callers log
	// and continue rather than abort.
	ErrStoreTransient = errors.New("STORE_TRANSIENT")

	// ErrStoreFatal covers relational failures; callers roll back.
	ErrStoreFatal = errors.New("STORE_FATAL")

	// ErrRateLimited is returned by the quota limiter.
	ErrRateLimited = errors.New("RATE_LIMITED")
)

// Diagnostic carries extra counts alongside ErrInsufficientCategories so
// the task record can report what was actually found.
type Diagnostic struct {
	Interviews int
	Codes      int
	Categories int
}
