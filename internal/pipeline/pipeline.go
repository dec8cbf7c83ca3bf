package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/models"
)

// Pipeline runs one opportunity record through the strict sequential chain:
// load, extract, retrieve, score, classify and write. Each run owns its data
// exclusively, so concurrent Process calls need no coordination beyond the
// keyed writes.
type Pipeline struct {
	loader         *Loader
	extractor      *Extractor
	retriever      *Retriever
	scorer         *Scorer
	classifier     *Classifier
	interCallDelay time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

func New(loader *Loader, extractor *Extractor, retriever *Retriever, scorer *Scorer, classifier *Classifier, interCallDelay time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		loader:         loader,
		extractor:      extractor,
		retriever:      retriever,
		scorer:         scorer,
		classifier:     classifier,
		interCallDelay: interCallDelay,
		logger:         logger,
		now:            time.Now,
	}
}

// Process evaluates one record end to end and persists the outcome. Stage
// failures become Errored outcomes written through the same channel as
// successes; only a failure to write the outcome itself is returned as a
// bare error.
func (p *Pipeline) Process(ctx context.Context, recordID, recordKey string) (*models.ProcessingOutcome, error) {
	startedAt := p.now()
	runDate := startedAt.UTC()

	p.logger.Info("processing record",
		zap.String("record_id", recordID),
		zap.String("record_key", recordKey),
	)

	opp, attachments, err := p.loader.Load(ctx, recordKey)
	if err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, nil, nil)
	}
	if opp.SolicitationNumber != "" {
		recordID = opp.SolicitationNumber
	}

	// The budget is checked between stages; a new stage (especially a new
	// model call) is never started once the budget is gone.
	if err := budgetLeft(ctx, FailureExtraction, StageExtract); err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, nil, nil)
	}

	extraction, err := p.extractor.Extract(ctx, opp, attachments)
	if err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, &extraction, nil)
	}

	if err := budgetLeft(ctx, FailureRetrieval, StageRetrieve); err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, &extraction, nil)
	}

	evidence, err := p.retriever.Retrieve(ctx, extraction)
	if err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, &extraction, nil)
	}

	if err := budgetLeft(ctx, FailureScoring, StageScore); err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, &extraction, evidence)
	}

	// Pause between the two model invocations to respect provider rate
	// limits. Separate from retry backoff.
	if err := p.pause(ctx); err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, failure(FailureScoring, StageScore, err), &extraction, evidence)
	}

	assessment, err := p.scorer.Score(ctx, extraction, evidence)
	if err != nil {
		return p.writeErrored(ctx, runDate, startedAt, recordID, err, &extraction, evidence)
	}

	outcome := &models.ProcessingOutcome{
		RecordID:    recordID,
		Kind:        p.classifier.Classify(assessment),
		Assessment:  &assessment,
		Extraction:  &extraction,
		Evidence:    evidence,
		ProcessedAt: p.now(),
	}
	if err := p.classifier.Write(ctx, runDate, startedAt, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (p *Pipeline) pause(ctx context.Context) error {
	if p.interCallDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.interCallDelay):
		return nil
	}
}

// budgetLeft declines to start the named stage when the record budget is
// already exhausted.
func budgetLeft(ctx context.Context, kind FailureKind, stage string) error {
	if err := ctx.Err(); err != nil {
		return failure(kind, stage, fmt.Errorf("record budget exhausted before stage: %w", err))
	}
	return nil
}

// writeErrored records an escalated stage failure as an Errored outcome. The
// write uses a background-derived context so an exhausted record budget does
// not also lose the outcome.
func (p *Pipeline) writeErrored(ctx context.Context, runDate, startedAt time.Time, recordID string, stageErr error, extraction *models.ExtractionResult, evidence []models.EvidenceSnippet) (*models.ProcessingOutcome, error) {
	var sf *StageFailure
	if !errors.As(stageErr, &sf) {
		sf = failure(FailureDataAccess, StageLoad, stageErr)
	}

	p.logger.Error("record errored",
		zap.String("record_id", recordID),
		zap.String("failure_kind", string(sf.Kind)),
		zap.String("stage", sf.Stage),
		zap.Error(sf.Err),
	)

	outcome := &models.ProcessingOutcome{
		RecordID:      recordID,
		Kind:          models.OutcomeErrored,
		Extraction:    extraction,
		Evidence:      evidence,
		FailureKind:   string(sf.Kind),
		FailedStage:   sf.Stage,
		FailureDetail: sf.Err.Error(),
		ProcessedAt:   p.now(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.classifier.Write(writeCtx, runDate, startedAt, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}
