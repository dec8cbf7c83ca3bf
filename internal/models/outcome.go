package models

import (
	"time"
)

// OutcomeKind buckets a finished pipeline run.
type OutcomeKind string

const (
	OutcomeMatched    OutcomeKind = "matched"
	OutcomeNotMatched OutcomeKind = "no-match"
	OutcomeErrored    OutcomeKind = "errored"
)

// ExtractionResult is the structured output of the information extraction
// stage. Succeeded=false means EnhancedDescription is a labeled fallback and
// must never be treated as a real extraction.
type ExtractionResult struct {
	EnhancedDescription string   `json:"enhanced_description"`
	RequiredSkills      []string `json:"required_skills"`
	Succeeded           bool     `json:"succeeded"`
}

// EvidenceSnippet is one ranked result from the capability knowledge base.
type EvidenceSnippet struct {
	SourceID       string  `json:"source_id"`
	Title          string  `json:"title"`
	Snippet        string  `json:"snippet"`
	RelevanceScore float64 `json:"relevance_score"`
	Location       string  `json:"location"`
}

// Citation points at an evidence snippet the scoring model relied on. A
// citation is only kept when its SourceID matches a snippet actually returned
// by retrieval.
type Citation struct {
	SourceID string `json:"source_id"`
	Locator  string `json:"locator"`
	Excerpt  string `json:"excerpt"`
}

// MatchAssessment is the scoring stage's validated output. Score is always in
// [0.0, 1.0]; with no evidence it is forced to 0.0 regardless of what the
// model returned.
type MatchAssessment struct {
	Score           float64    `json:"score"`
	Rationale       string     `json:"rationale"`
	CompanySkills   []string   `json:"company_skills"`
	PastPerformance []string   `json:"past_performance"`
	Citations       []Citation `json:"citations"`
	Succeeded       bool       `json:"succeeded"`
}

// ProcessingOutcome is the persisted result of one (record, date) run.
// Redelivery of the same record on the same date overwrites it.
type ProcessingOutcome struct {
	RecordID      string            `json:"record_id"`
	Kind          OutcomeKind       `json:"kind"`
	Assessment    *MatchAssessment  `json:"assessment,omitempty"`
	Extraction    *ExtractionResult `json:"extraction,omitempty"`
	Evidence      []EvidenceSnippet `json:"evidence,omitempty"`
	FailureKind   string            `json:"failure_kind,omitempty"`
	FailedStage   string            `json:"failed_stage,omitempty"`
	FailureDetail string            `json:"failure_detail,omitempty"`
	ProcessedAt   time.Time         `json:"processed_at"`
}

// RunSummaryEntry is the lightweight per-record aggregate consumed by the
// log-aggregation job on its own schedule.
type RunSummaryEntry struct {
	RunID      string      `json:"run_id"`
	RecordID   string      `json:"record_id"`
	Kind       OutcomeKind `json:"kind"`
	Score      float64     `json:"score"`
	DurationMS int64       `json:"duration_ms"`
	StartedAt  time.Time   `json:"started_at"`
}
