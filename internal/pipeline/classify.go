package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/models"
)

// OutcomeWriter persists categorized outcomes and run summaries under
// deterministic keys, so redelivered records overwrite their earlier writes.
type OutcomeWriter interface {
	PutOutcome(ctx context.Context, date time.Time, outcome *models.ProcessingOutcome) (string, error)
	PutRunSummary(ctx context.Context, date time.Time, entry *models.RunSummaryEntry) (string, error)
}

// Classifier buckets finished runs against the threshold and writes the
// outcome plus its run-summary entry.
type Classifier struct {
	writer    OutcomeWriter
	threshold float64
	logger    *zap.Logger
}

func NewClassifier(writer OutcomeWriter, threshold float64, logger *zap.Logger) *Classifier {
	return &Classifier{writer: writer, threshold: threshold, logger: logger}
}

// Classify applies the threshold rule to a successful assessment.
func (c *Classifier) Classify(assessment models.MatchAssessment) models.OutcomeKind {
	if assessment.Score >= c.threshold {
		return models.OutcomeMatched
	}
	return models.OutcomeNotMatched
}

// Write persists the outcome and appends the run summary. The summary score
// is zero for errored runs.
func (c *Classifier) Write(ctx context.Context, date, startedAt time.Time, outcome *models.ProcessingOutcome) error {
	key, err := c.writer.PutOutcome(ctx, date, outcome)
	if err != nil {
		return failure(FailureDataAccess, StageWrite, err)
	}

	var score float64
	if outcome.Assessment != nil {
		score = outcome.Assessment.Score
	}
	entry := &models.RunSummaryEntry{
		RunID:      uuid.NewString(),
		RecordID:   outcome.RecordID,
		Kind:       outcome.Kind,
		Score:      score,
		DurationMS: time.Since(startedAt).Milliseconds(),
		StartedAt:  startedAt,
	}
	if _, err := c.writer.PutRunSummary(ctx, date, entry); err != nil {
		return failure(FailureDataAccess, StageWrite, err)
	}

	c.logger.Info("outcome written",
		zap.String("record_id", outcome.RecordID),
		zap.String("kind", string(outcome.Kind)),
		zap.Float64("score", score),
		zap.String("key", key),
	)
	return nil
}
