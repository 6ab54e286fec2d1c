// Package budget implements the token budgeter: given a message
// builder and a context window, it iteratively calls a caller-supplied
// degrade hook until the built payload fits, or gives up after a bounded
// number of steps. The budgeter is pure and side-effect-free; it never
// calls an LLM itself.
package budget

import (
	"fmt"
	"math"

	"groundedtheory.dev/core/internal/errs"
)

// perMessageOverhead approximates the few tokens each chat message costs
// beyond its raw text (role marker, separators), mirroring the constant
// OpenAI's own token-counting cookbook uses for chat-format messages.
const perMessageOverhead = 4

// Message is the minimal shape the estimator needs; callers adapt their own
// richer message types into this before calling Run.
type Message struct {
	Role    string
	Content string
}

// DegradeFunc performs one reduction step (e.g. drop a category, shrink a
// fragment) and returns a human-readable description of what it did. It
// returns ok=false when no further reduction is possible.
type DegradeFunc func() (description string, ok bool)

// BuildFunc re-renders the messages to send, reflecting whatever degrade
// steps have been applied so far.
type BuildFunc func() []Message

// Request describes one budgeted call.
type Request struct {
	Build           BuildFunc
	Model           string
	ContextLimit    int
	MaxOutputTokens int
	MarginTokens    int
	Degrade         DegradeFunc
	MaxSteps        int
}

// Step records one iteration of the budgeter's loop for the debug trail
// persisted alongside a theory, so degradation decisions stay inspectable
// after the fact.
type Step struct {
	Step                  int
	EstimatedInputTokens  int
	Fit                   bool
	DegradationApplied    string
}

// Result is what a successful Run returns.
type Result struct {
	Messages             []Message
	EstimatedInputTokens int
	Steps                []Step
}

// Run builds messages, estimates their input-token cost, and degrades the
// payload via req.Degrade until it fits within req.ContextLimit (leaving
// room for req.MaxOutputTokens and req.MarginTokens), or returns
// errs.ErrBudgetExceeded after req.MaxSteps degradations.
func Run(req Request) (Result, error) {
	if req.MaxSteps < 0 {
		req.MaxSteps = 0
	}

	var steps []Step
	messages := req.Build()

	for step := 0; ; step++ {
		estimated := EstimateTokens(messages, req.Model)
		fits := estimated+req.MaxOutputTokens+req.MarginTokens <= req.ContextLimit

		s := Step{Step: step, EstimatedInputTokens: estimated, Fit: fits}

		if fits {
			steps = append(steps, s)
			return Result{Messages: messages, EstimatedInputTokens: estimated, Steps: steps}, nil
		}

		if step >= req.MaxSteps || req.Degrade == nil {
			steps = append(steps, s)
			return Result{Steps: steps}, fmt.Errorf("%w: after %d steps, %d tokens still over limit %d",
				errs.ErrBudgetExceeded, step+1, estimated+req.MaxOutputTokens+req.MarginTokens-req.ContextLimit, req.ContextLimit)
		}

		desc, ok := req.Degrade()
		if !ok {
			steps = append(steps, s)
			return Result{Steps: steps}, fmt.Errorf("%w: no further degradation available after %d steps", errs.ErrBudgetExceeded, step+1)
		}
		s.DegradationApplied = desc
		steps = append(steps, s)

		messages = req.Build()
	}
}

// EstimateTokens estimates the input-token cost of messages for model,
// preferring an actual tokenizer and falling back to a character-count
// heuristic when none is available for the model.
func EstimateTokens(messages []Message, model string) int {
	if enc, ok := tokenizerFor(model); ok {
		total := 0
		for _, m := range messages {
			total += len(enc.Encode(m.Content, nil, nil)) + perMessageOverhead
		}
		return total
	}

	total := 0
	for _, m := range messages {
		total += int(math.Ceil(float64(len(m.Content))/4)) + perMessageOverhead
	}
	return total
}
