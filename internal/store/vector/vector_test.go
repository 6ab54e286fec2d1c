package vector

import (
	"testing"
	"time"
)

func TestCollectionNameShape(t *testing.T) {
	got := CollectionName("4f2c9a1e-0000-0000-0000-000000000001")
	want := "project_4f2c9a1e-0000-0000-0000-000000000001_fragments"
	if got != want {
		t.Fatalf("CollectionName = %q, want %q", got, want)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	if backoff(0) != 200*time.Millisecond {
		t.Fatalf("attempt 0: got %v", backoff(0))
	}
	if backoff(1) != 400*time.Millisecond {
		t.Fatalf("attempt 1: got %v", backoff(1))
	}
	if backoff(10) != 3*time.Second {
		t.Fatalf("expected cap at 3s, got %v", backoff(10))
	}
}
