package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestStorePutGetInProcessOnly(t *testing.T) {
	s := NewStore(nil, time.Minute)
	ctx := context.Background()

	task := Task{TaskID: "task_1", Status: StatusQueued, ProjectID: "proj_1"}
	if err := s.Put(ctx, task); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.Get(ctx, "task_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected task to be found")
	}
	if got.Status != StatusQueued || got.ProjectID != "proj_1" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore(nil, time.Minute)
	_, ok, err := s.Get(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected no error for a missing key without a redis mirror, got %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestStorePutOverwrites(t *testing.T) {
	s := NewStore(nil, time.Minute)
	ctx := context.Background()

	_ = s.Put(ctx, Task{TaskID: "t", Status: StatusQueued})
	_ = s.Put(ctx, Task{TaskID: "t", Status: StatusCompleted, Progress: 100})

	got, _, _ := s.Get(ctx, "t")
	if got.Status != StatusCompleted || got.Progress != 100 {
		t.Fatalf("expected the later write to win, got %+v", got)
	}
}
