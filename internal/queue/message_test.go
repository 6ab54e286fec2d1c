package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestParseMessageRoundTrip(t *testing.T) {
	original := Message{
		TaskID:      "task_abc",
		TaskType:    TaskTypeAutoCode,
		ProjectID:   "proj-1",
		OwnerID:     "owner-1",
		InterviewID: "iv-1",
		Attempt:     2,
		TraceID:     "deadbeef",
	}

	parsed, err := ParseMessage(redis.XMessage{ID: "1-0", Values: messageValues(original, original.Attempt)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.TaskID != original.TaskID ||
		parsed.TaskType != original.TaskType ||
		parsed.ProjectID != original.ProjectID ||
		parsed.OwnerID != original.OwnerID ||
		parsed.InterviewID != original.InterviewID ||
		parsed.Attempt != original.Attempt ||
		parsed.TraceID != original.TraceID {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, original)
	}
}

func TestParseMessageRejectsAutoCodeWithoutInterview(t *testing.T) {
	values := map[string]any{
		"task_id":    "task_abc",
		"task_type":  string(TaskTypeAutoCode),
		"project_id": "proj-1",
	}
	if _, err := ParseMessage(redis.XMessage{ID: "1-0", Values: values}); err == nil {
		t.Fatal("expected error for auto_code message without interview_id")
	}
}

func TestParseMessageRejectsUnknownTaskType(t *testing.T) {
	values := map[string]any{
		"task_type":  "reticulate_splines",
		"project_id": "proj-1",
	}
	if _, err := ParseMessage(redis.XMessage{ID: "1-0", Values: values}); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}

func TestParseMessageDefaultsAttemptToOne(t *testing.T) {
	values := map[string]any{
		"task_type":  string(TaskTypeGenerateTheory),
		"project_id": "proj-1",
	}
	parsed, err := ParseMessage(redis.XMessage{ID: "1-0", Values: values})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Attempt != 1 {
		t.Fatalf("expected attempt to default to 1, got %d", parsed.Attempt)
	}
}

func TestProjectStreamNameIsPerProject(t *testing.T) {
	a := ProjectStreamName("p1")
	b := ProjectStreamName("p2")
	if a == b {
		t.Fatal("expected distinct streams per project")
	}
	if a != "theory-tasks:project-p1" {
		t.Fatalf("unexpected stream name %q", a)
	}
}
