package model

import "time"

// Project is the tenancy root. It owns every other entity by composition;
// deleting a project cascades across all three stores.
type Project struct {
	ID             string
	TenantID       string
	OwnerID        string
	DomainTemplate string // generic, education, ngo, government, market_research
	Language       string
	CreatedAt      time.Time
}

// InterviewStatus is the transcription/ingestion lifecycle of an Interview.
// Only StatusCompleted interviews feed the coding pipeline.
type InterviewStatus string

const (
	InterviewPending    InterviewStatus = "pending"
	InterviewProcessing InterviewStatus = "processing"
	InterviewRetrying   InterviewStatus = "retrying"
	InterviewCompleted  InterviewStatus = "completed"
	InterviewFailed     InterviewStatus = "failed"
)

type Interview struct {
	ID        string
	ProjectID string
	Status    InterviewStatus
	FullText  string
	WordCount int
	Language  string
}

// Fragment is a contiguous, addressable slice of an interview's transcript.
// Offsets are monotone and non-overlapping within an interview when both
// StartOffset/EndOffset are set.
type Fragment struct {
	ID              string
	InterviewID     string
	Text            string
	StartOffset     int
	EndOffset       int
	ParagraphIndex  *int
	StartMS         *int
	EndMS           *int
	SpeakerID       *string
	EmbeddingSynced bool
}

type Code struct {
	ID         string
	ProjectID  string
	Label      string // unique case-insensitive, trimmed, within the project
	Definition string
	CategoryID *string
	CreatedBy  string // "ai", "human"
}

// LinkSource describes who produced a Code<->Fragment link.
type LinkSource string

const (
	LinkSourceAI     LinkSource = "ai"
	LinkSourceHuman  LinkSource = "human"
	LinkSourceHybrid LinkSource = "hybrid"
)

// CodeFragmentLink is the many-to-many join between Code and Fragment.
type CodeFragmentLink struct {
	CodeID     string
	FragmentID string
	Confidence float64 // [0,1]
	Source     LinkSource
	CharStart  *int
	CharEnd    *int
	LinkedAt   time.Time
}

type Category struct {
	ID         string
	ProjectID  string
	Name       string
	Definition string
	IsCentral  bool
}

type TheoryStatus string

const (
	TheoryDraft     TheoryStatus = "draft"
	TheoryCompleted TheoryStatus = "completed"
)

// Theory is a versioned, persisted grounded-theory artifact for a project.
type Theory struct {
	ID              string
	ProjectID       string
	Version         int
	ModelJSON       map[string]any // the normalised paradigm
	Propositions    []Proposition
	Validation      map[string]any // full provenance: gap_analysis, network_metrics_summary, budget_debug, paradigm_validation, pipeline_runtime
	Gaps            []string
	ConfidenceScore float64
	Status          TheoryStatus
	CreatedAt       time.Time
}

type Proposition struct {
	Text        string   `json:"text"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// Claim is a derived, graph-only projection of one paradigm item. Its id is
// UUIDv5(theory_id, section, order, text), so re-projecting identical
// input is idempotent.
type Claim struct {
	ID                  string
	TheoryID            string
	ProjectID           string
	Section             string // conditions, context, intervening_conditions, actions, consequences, propositions
	Order               int
	Text                string
	CategoryID          string   // ABOUT target
	SupportingFragments []string // SUPPORTED_BY targets
	ContradictingFragments []string // CONTRADICTED_BY targets
}
