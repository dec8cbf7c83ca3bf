package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/models"
	"github.com/david/bid-matcher/internal/retry"
)

// EvidenceSearcher is the knowledge-retrieval service surface. An empty
// result slice with a nil error means the company has nothing on file for
// the query, which is a legitimate answer.
type EvidenceSearcher interface {
	Search(ctx context.Context, query string, topN int) ([]models.EvidenceSnippet, error)
}

// Retriever queries the capability knowledge base with the extracted
// requirements.
type Retriever struct {
	searcher EvidenceSearcher
	topN     int
	policy   retry.Policy
	logger   *zap.Logger
}

func NewRetriever(searcher EvidenceSearcher, topN int, policy retry.Policy, logger *zap.Logger) *Retriever {
	// Retrieval errors are connectivity or service failures; all are worth
	// retrying except an aborted run.
	policy.IsTransient = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return &Retriever{searcher: searcher, topN: topN, policy: policy, logger: logger}
}

// Retrieve returns ranked evidence for the extraction's skill list. Zero
// snippets propagates as a valid empty slice; only a service error that
// survives retries becomes a stage failure.
func (r *Retriever) Retrieve(ctx context.Context, extraction models.ExtractionResult) ([]models.EvidenceSnippet, error) {
	query := buildRetrievalQuery(extraction)

	evidence, _, err := retry.DoWithResult(ctx, r.policy, "kb.search", func() ([]models.EvidenceSnippet, error) {
		return r.searcher.Search(ctx, query, r.topN)
	})
	if err != nil {
		return nil, failure(FailureRetrieval, StageRetrieve, err)
	}

	r.logger.Info("capability evidence retrieved",
		zap.Int("snippets", len(evidence)),
		zap.Int("top_n", r.topN),
	)
	return evidence, nil
}

func buildRetrievalQuery(extraction models.ExtractionResult) string {
	if len(extraction.RequiredSkills) > 0 {
		return strings.Join(extraction.RequiredSkills, ", ")
	}
	// No skill list came back; fall back to the enhanced description so the
	// search still has something to embed.
	return extraction.EnhancedDescription
}
