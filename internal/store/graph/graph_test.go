package graph

import (
	"testing"

	"groundedtheory.dev/core/common/arangodb"
)

func TestRankByDegreePlainCounts(t *testing.T) {
	degrees := []arangodb.CategoryDegree{
		{CategoryID: "low", CodeDegree: 1, FragmentDegree: 1},
		{CategoryID: "high", CodeDegree: 5, FragmentDegree: 9},
		{CategoryID: "mid", CodeDegree: 3, FragmentDegree: 2},
	}
	rankByDegree(degrees)
	if degrees[0].CategoryID != "high" || degrees[1].CategoryID != "mid" || degrees[2].CategoryID != "low" {
		t.Fatalf("unexpected order: %v %v %v", degrees[0].CategoryID, degrees[1].CategoryID, degrees[2].CategoryID)
	}
}

func TestRankByDegreePrefersPageRankWhenBothHaveAlgoMetrics(t *testing.T) {
	degrees := []arangodb.CategoryDegree{
		{CategoryID: "a", CodeDegree: 10, PageRank: 0.1, HasAlgoMetrics: true},
		{CategoryID: "b", CodeDegree: 1, PageRank: 0.9, HasAlgoMetrics: true},
	}
	rankByDegree(degrees)
	if degrees[0].CategoryID != "b" {
		t.Fatalf("expected pagerank to outrank raw degree, got %q first", degrees[0].CategoryID)
	}
}

func TestRankByDegreeStableForEmptyAndSingle(t *testing.T) {
	rankByDegree(nil)
	one := []arangodb.CategoryDegree{{CategoryID: "only"}}
	rankByDegree(one)
	if one[0].CategoryID != "only" {
		t.Fatal("single-element ranking changed the slice")
	}
}
