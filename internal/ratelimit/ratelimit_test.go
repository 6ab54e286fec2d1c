package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterAllowsUpToMax(t *testing.T) {
	now := time.Now()
	l := NewLocal(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, NamespaceChat, "1.2.3.4", "sess-1", time.Minute, 3)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("check %d: expected allowed, got exceeded", i)
		}
	}

	res, err := l.Check(ctx, NamespaceChat, "1.2.3.4", "sess-1", time.Minute, 3)
	if err != nil {
		t.Fatalf("4th check: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected 4th request to exceed the window")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %v", res.RetryAfter)
	}
}

func TestLocalLimiterWindowSlides(t *testing.T) {
	clock := time.Now()
	l := NewLocal(func() time.Time { return clock })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, err := l.Check(ctx, NamespaceContact, "9.9.9.9", "sess-2", time.Minute, 2); err != nil || !res.Allowed {
			t.Fatalf("seed request %d failed: res=%+v err=%v", i, res, err)
		}
	}

	if res, _ := l.Check(ctx, NamespaceContact, "9.9.9.9", "sess-2", time.Minute, 2); res.Allowed {
		t.Fatalf("expected window exhausted before advancing the clock")
	}

	clock = clock.Add(2 * time.Minute)
	res, err := l.Check(ctx, NamespaceContact, "9.9.9.9", "sess-2", time.Minute, 2)
	if err != nil {
		t.Fatalf("post-slide check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected the window to have slid past the old hits")
	}
}

func TestLocalLimiterKeysAreIndependent(t *testing.T) {
	now := time.Now()
	l := NewLocal(func() time.Time { return now })
	ctx := context.Background()

	if res, _ := l.Check(ctx, NamespaceChat, "1.1.1.1", "a", time.Minute, 1); !res.Allowed {
		t.Fatalf("session a should be allowed")
	}
	if res, _ := l.Check(ctx, NamespaceChat, "1.1.1.1", "b", time.Minute, 1); !res.Allowed {
		t.Fatalf("session b should be allowed independently of session a")
	}
}

// stubFailLimiter always errors, to exercise Fallback.
type stubFailLimiter struct{}

func (stubFailLimiter) Check(context.Context, Namespace, string, string, time.Duration, int) (Result, error) {
	return Result{}, errStub
}

var errStub = errFake{}

type errFake struct{}

func (errFake) Error() string { return "stub redis failure" }

func TestFallbackUsesLocalOnPrimaryError(t *testing.T) {
	now := time.Now()
	local := NewLocal(func() time.Time { return now })
	fb := NewFallback(stubFailLimiter{}, local)

	res, err := fb.Check(context.Background(), NamespaceChat, "5.5.5.5", "s", time.Minute, 1)
	if err != nil {
		t.Fatalf("expected fallback to absorb the primary error, got %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected fallback's first request to be allowed")
	}
}
