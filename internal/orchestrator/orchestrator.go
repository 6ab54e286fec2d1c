package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"groundedtheory.dev/core/common/id"
	"groundedtheory.dev/core/common/logger"
	"groundedtheory.dev/core/internal/errs"
	"groundedtheory.dev/core/internal/model"
	"groundedtheory.dev/core/internal/queue"
)

// CodingRunner is the subset of internal/coding.Engine the orchestrator
// dispatches auto_code tasks to.
type CodingRunner interface {
	AutoCodeInterview(ctx context.Context, projectID, interviewID string) error
}

// TheoryRunner is the subset of internal/theory.Engine the orchestrator
// dispatches generate_theory tasks to.
type TheoryRunner interface {
	GenerateTheory(ctx context.Context, projectID string) (model.Theory, error)
}

// Config tunes the orchestrator's lifecycle.
type Config struct {
	LockTTL          time.Duration
	LockRefresh      time.Duration
	StatusTTL        time.Duration
	PollInterval     time.Duration
	UseExternalQueue bool // dispatch onto the Redis stream instead of an in-process goroutine
}

// Orchestrator is the task lifecycle owner: it allocates task ids,
// persists status records, acquires the per-project lock, and runs the
// pipeline either in-process or via a broker-backed worker — the pipeline
// entrypoint (CodingRunner/TheoryRunner) is identical either way, so the
// in-process vs broker-backed choice stays a runtime toggle the pipeline
// never sees.
type Orchestrator struct {
	store    *Store
	lock     *ProjectLock
	producer queue.Producer // nil when UseExternalQueue is false
	coding   CodingRunner
	theory   TheoryRunner
	cfg      Config
}

func New(store *Store, lock *ProjectLock, producer queue.Producer, coding CodingRunner, theory TheoryRunner, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.LockRefresh <= 0 {
		cfg.LockRefresh = 90 * time.Second
	}
	return &Orchestrator{store: store, lock: lock, producer: producer, coding: coding, theory: theory, cfg: cfg}
}

func newTaskID() string {
	return "task_" + strconv.FormatInt(id.New(), 36)
}

// EnqueueAutoCode starts an auto_code_interview run under a new task record.
func (o *Orchestrator) EnqueueAutoCode(ctx context.Context, projectID, ownerID, interviewID string) (Task, error) {
	return o.enqueue(ctx, queue.TaskTypeAutoCode, projectID, ownerID, interviewID)
}

// EnqueueGenerateTheory starts a generate_theory run under a new task
// record. A project whose lock is already held is rejected up front with
// errs.ErrLocked so the duplicate submitter gets a 409 instead of a task
// that fails on its first step.
func (o *Orchestrator) EnqueueGenerateTheory(ctx context.Context, projectID, ownerID string) (Task, error) {
	if held, err := o.lock.Held(ctx, projectID); err == nil && held {
		return Task{}, errs.ErrLocked
	}
	return o.enqueue(ctx, queue.TaskTypeGenerateTheory, projectID, ownerID, "")
}

// RunAutoCodeSync creates a task record and runs it synchronously on the
// caller's goroutine, for the small-interview path that answers a plain
// 200 instead of a dispatched 202. It never touches the producer
// or spawns a goroutine; the caller already blocks.
func (o *Orchestrator) RunAutoCodeSync(ctx context.Context, projectID, ownerID, interviewID string) Task {
	t := o.newRecord(ctx, projectID, ownerID)
	o.Run(ctx, t.TaskID, queue.TaskTypeAutoCode, projectID, interviewID)
	result, _, _ := o.store.Get(ctx, t.TaskID)
	return result
}

func (o *Orchestrator) newRecord(ctx context.Context, projectID, ownerID string) Task {
	now := time.Now()
	t := Task{
		TaskID:    newTaskID(),
		Status:    StatusQueued,
		Progress:  0,
		Message:   "queued",
		ProjectID: projectID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.Put(ctx, t); err != nil {
		slog.ErrorContext(ctx, "failed to persist queued task", "error", err)
	}
	return t
}

func (o *Orchestrator) enqueue(ctx context.Context, taskType queue.TaskType, projectID, ownerID, interviewID string) (Task, error) {
	t := o.newRecord(ctx, projectID, ownerID)

	if o.cfg.UseExternalQueue {
		if o.producer == nil {
			return Task{}, fmt.Errorf("external queue enabled but no producer configured")
		}
		stream := queue.ProjectStreamName(projectID)
		if err := o.producer.Enqueue(ctx, stream, queue.EventMessage{
			TaskID:      t.TaskID,
			TaskType:    taskType,
			ProjectID:   projectID,
			OwnerID:     ownerID,
			InterviewID: interviewID,
		}); err != nil {
			return Task{}, fmt.Errorf("dispatching to broker: %w", err)
		}
		return t, nil
	}

	// In-process dispatch: runs detached from the request context so the
	// HTTP handler can return 202 immediately.
	go o.Run(context.Background(), t.TaskID, taskType, projectID, interviewID)

	return t, nil
}

// Status returns the current task record for polling clients.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (Task, bool, error) {
	return o.store.Get(ctx, taskID)
}

// PollInterval is the server-suggested backoff, surfaced as
// next_poll_seconds in the status response.
func (o *Orchestrator) PollInterval() time.Duration { return o.cfg.PollInterval }

// Run executes one dispatched task end to end: acquire the per-project
// lock, run the pipeline with mark_step/refresh_lock callbacks, and persist
// the terminal task state. Called directly for in-process dispatch, and
// from the worker's message processor for broker-backed dispatch — same
// entrypoint either way.
func (o *Orchestrator) Run(ctx context.Context, taskID string, taskType queue.TaskType, projectID, interviewID string) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: &projectID,
		TaskID:    &taskID,
		Component: "core.orchestrator",
	})

	token, ok, err := o.lock.Acquire(ctx, projectID)
	if err != nil {
		o.fail(ctx, taskID, projectID, err, "LOCK_ERROR")
		return
	}
	if !ok {
		slog.WarnContext(ctx, "project lock held, task rejected", "task_type", taskType)
		o.fail(ctx, taskID, projectID, errs.ErrLocked, "LOCKED")
		return
	}
	defer func() {
		if relErr := o.lock.Release(ctx, projectID, token); relErr != nil {
			slog.WarnContext(ctx, "failed to release project lock", "error", relErr)
		}
	}()

	stopRefresh := o.startLockRefresh(ctx, projectID, token)
	defer stopRefresh()

	if err := o.updateRunning(ctx, taskID, projectID, "starting", 0); err != nil {
		slog.WarnContext(ctx, "failed to persist running state", "error", err)
	}

	markStep := func(step string, progress int) {
		if mErr := o.updateRunning(ctx, taskID, projectID, step, progress); mErr != nil {
			slog.WarnContext(ctx, "failed to persist progress", "error", mErr, "step", step)
		}
	}

	switch taskType {
	case queue.TaskTypeAutoCode:
		markStep("coding", 10)
		if err := o.coding.AutoCodeInterview(ctx, projectID, interviewID); err != nil {
			o.fail(ctx, taskID, projectID, err, errorCode(err))
			return
		}
		o.complete(ctx, taskID, projectID, map[string]any{"interview_id": interviewID, "status": "coded"})

	case queue.TaskTypeGenerateTheory:
		markStep("generating_theory", 10)
		theory, err := o.theory.GenerateTheory(ctx, projectID)
		if err != nil {
			o.fail(ctx, taskID, projectID, err, errorCode(err))
			return
		}
		o.complete(ctx, taskID, projectID, map[string]any{
			"theory_id":        theory.ID,
			"version":          theory.Version,
			"confidence_score": theory.ConfidenceScore,
			"status":           string(theory.Status),
		})

	default:
		o.fail(ctx, taskID, projectID, fmt.Errorf("unsupported task type %q", taskType), "UNSUPPORTED_TASK_TYPE")
	}
}

// startLockRefresh refreshes the project lock on cfg.LockRefresh cadence
// until the returned stop function is called, so the lock never expires
// under a still-running pipeline.
func (o *Orchestrator) startLockRefresh(ctx context.Context, projectID, token string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.cfg.LockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if ok, err := o.lock.Refresh(ctx, projectID, token); err != nil {
					slog.WarnContext(ctx, "lock refresh failed", "error", err)
				} else if !ok {
					slog.WarnContext(ctx, "lock refresh lost ownership; a newer run may now hold it")
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func (o *Orchestrator) updateRunning(ctx context.Context, taskID, projectID, step string, progress int) error {
	t, ok, err := o.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		t = Task{TaskID: taskID, ProjectID: projectID, CreatedAt: time.Now()}
	}
	t.Status = StatusRunning
	t.Step = step
	t.Progress = progress
	t.Message = step
	t.UpdatedAt = time.Now()
	return o.store.Put(ctx, t)
}

func (o *Orchestrator) complete(ctx context.Context, taskID, projectID string, result map[string]any) {
	t, ok, _ := o.store.Get(ctx, taskID)
	if !ok {
		t = Task{TaskID: taskID, ProjectID: projectID, CreatedAt: time.Now()}
	}
	t.Status = StatusCompleted
	t.Progress = 100
	t.Message = "completed"
	t.Result = result
	t.UpdatedAt = time.Now()
	if err := o.store.Put(ctx, t); err != nil {
		slog.ErrorContext(ctx, "failed to persist completed task", "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, taskID, projectID string, err error, code string) {
	t, ok, _ := o.store.Get(ctx, taskID)
	if !ok {
		t = Task{TaskID: taskID, ProjectID: projectID, CreatedAt: time.Now()}
	}
	t.Status = StatusFailed
	t.Message = "failed"
	t.Error = err.Error()
	t.ErrorCode = code
	t.UpdatedAt = time.Now()
	if putErr := o.store.Put(ctx, t); putErr != nil {
		slog.ErrorContext(ctx, "failed to persist failed task", "error", putErr)
	}
	slog.ErrorContext(ctx, "task failed", "error", err, "error_code", code)
}

// errorCode maps an engine error to the stable code surfaced on
// the task record for programmatic client handling.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, errs.ErrInsufficientCategories):
		return "INSUFFICIENT_CATEGORIES"
	case errors.Is(err, errs.ErrBudgetExceeded):
		return "BUDGET_EXCEEDED"
	case errors.Is(err, errs.ErrLLMTimeout):
		return "LLM_TIMEOUT"
	case errors.Is(err, errs.ErrLLMError):
		return "LLM_ERROR"
	case errors.Is(err, errs.ErrJudgeFailed):
		return "JUDGE_FAILED"
	case errors.Is(err, errs.ErrStoreTransient):
		return "STORE_TRANSIENT"
	case errors.Is(err, errs.ErrStoreFatal):
		return "STORE_FATAL"
	case errors.Is(err, errs.ErrLocked):
		return "LOCKED"
	default:
		return "INTERNAL_ERROR"
	}
}
