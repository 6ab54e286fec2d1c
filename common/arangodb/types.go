package arangodb

// NodeKind enumerates the graph node collections the grounded-theory schema
// writes into. Each kind maps 1:1 onto a document collection.
type NodeKind string

const (
	NodeProject  NodeKind = "projects"
	NodeInterview NodeKind = "interviews"
	NodeFragment NodeKind = "fragments"
	NodeCode     NodeKind = "codes"
	NodeCategory NodeKind = "categories"
	NodeClaim    NodeKind = "claims"
)

// EdgeKind enumerates the graph edge collections.
type EdgeKind string

const (
	EdgeHasInterview  EdgeKind = "has_interview"
	EdgeHasFragment   EdgeKind = "has_fragment"
	EdgeHasCode       EdgeKind = "has_code"
	EdgeHasCategory   EdgeKind = "has_category"
	EdgeHasClaim      EdgeKind = "has_claim"
	EdgeContains      EdgeKind = "contains"       // Category -> Code
	EdgeAppliesTo     EdgeKind = "applies_to"     // Code -> Fragment (legacy, kept alongside CODED_AS)
	EdgeCodedAs       EdgeKind = "coded_as"        // Code -> Fragment, auditable
	EdgeCoOccursWith  EdgeKind = "co_occurs_with"  // Category <-> Category
	EdgeAbout         EdgeKind = "about"           // Claim -> Category
	EdgeSupportedBy   EdgeKind = "supported_by"    // Claim -> Fragment
	EdgeContradictedBy EdgeKind = "contradicted_by" // Claim -> Fragment
)

// Node is a generic document payload for any node collection. Fields beyond
// ID/Kind are free-form and merged into the stored document.
type Node struct {
	ID         string
	Kind       NodeKind
	Properties map[string]any
}

// Edge is a generic edge payload. FromKind/ToKind select the `_from`/`_to`
// collection prefixes.
type Edge struct {
	From       string
	To         string
	FromKind   NodeKind
	ToKind     NodeKind
	Kind       EdgeKind
	Properties map[string]any
}

// CategoryDegree captures per-category network metrics computed from
// fragment/code overlap. PageRank, GDSDegree and HasAlgoMetrics are read by
// graph ranking but are not populated by Client.CategoryMetrics.
type CategoryDegree struct {
	CategoryID      string
	CodeDegree      int
	FragmentDegree  int
	PageRank        float64
	GDSDegree       float64
	HasAlgoMetrics  bool
}

// CoOccurrence describes a CO_OCCURS_WITH edge between two categories.
type CoOccurrence struct {
	CategoryA string
	CategoryB string
	Count     int
	Weight    float64
}

// EvidenceFragment is a fragment surfaced as semantic evidence for a claim
// or category, carrying enough context for prompt assembly without a second
// round-trip to the relational store.
type EvidenceFragment struct {
	FragmentID  string
	InterviewID string
	Text        string
	CodeIDs     []string
}
