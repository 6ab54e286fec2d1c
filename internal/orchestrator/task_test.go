package orchestrator

import (
	"testing"
	"time"
)

func TestNextPollSecondsTerminalStates(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed} {
		task := Task{Status: status}
		if got := task.NextPollSeconds(5 * time.Second); got != 0 {
			t.Fatalf("status=%s: expected 0 poll seconds, got %d", status, got)
		}
	}
}

func TestNextPollSecondsInFlight(t *testing.T) {
	task := Task{Status: StatusRunning}
	if got := task.NextPollSeconds(3 * time.Second); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestNextPollSecondsFallsBackWhenUnset(t *testing.T) {
	task := Task{Status: StatusQueued}
	if got := task.NextPollSeconds(0); got != 2 {
		t.Fatalf("expected fallback of 2, got %d", got)
	}
}
