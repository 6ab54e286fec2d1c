package model

import "testing"

func TestClaimIDStableForIdenticalInputs(t *testing.T) {
	a := ClaimID("theory-1", "propositions", 0, "trust reduces friction")
	b := ClaimID("theory-1", "propositions", 0, "trust reduces friction")
	if a != b {
		t.Fatalf("expected identical ids, got %q and %q", a, b)
	}
}

func TestClaimIDVariesByEveryComponent(t *testing.T) {
	base := ClaimID("theory-1", "propositions", 0, "text")
	variants := []string{
		ClaimID("theory-2", "propositions", 0, "text"),
		ClaimID("theory-1", "conditions", 0, "text"),
		ClaimID("theory-1", "propositions", 1, "text"),
		ClaimID("theory-1", "propositions", 0, "other text"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with base id %q", i, base)
		}
	}
}
