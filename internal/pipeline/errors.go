package pipeline

import "fmt"

// FailureKind is the error taxonomy carried on every Errored outcome.
type FailureKind string

const (
	FailureDataAccess    FailureKind = "DataAccess"
	FailureExtraction    FailureKind = "ExtractionFailure"
	FailureRetrieval     FailureKind = "RetrievalFailure"
	FailureScoring       FailureKind = "ScoringFailure"
	FailureConfiguration FailureKind = "ConfigurationError"
)

// Stage names as recorded on outcomes.
const (
	StageLoad     = "load"
	StageExtract  = "extract"
	StageRetrieve = "retrieve"
	StageScore    = "score"
	StageWrite    = "write"
)

// StageFailure is an escalated per-stage error. It is written into the
// Errored outcome, never discarded.
type StageFailure struct {
	Kind  FailureKind
	Stage string
	Err   error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("%s at stage %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *StageFailure) Unwrap() error {
	return f.Err
}

func failure(kind FailureKind, stage string, err error) *StageFailure {
	return &StageFailure{Kind: kind, Stage: stage, Err: err}
}
