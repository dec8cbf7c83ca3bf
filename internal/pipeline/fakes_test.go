package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/david/bid-matcher/internal/models"
	"github.com/david/bid-matcher/internal/retry"
	"go.uber.org/zap"
)

// fakeLLM replays scripted responses or errors in order. The last script
// entry repeats once the script is exhausted.
type fakeLLM struct {
	mu      sync.Mutex
	script  []fakeLLMTurn
	calls   int
	prompts []string
}

type fakeLLMTurn struct {
	resp string
	err  error
}

func (f *fakeLLM) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, userPrompt)
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	turn := f.script[idx]
	return turn.resp, turn.err
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSource struct {
	record      *models.Opportunity
	recordErr   error
	attachments map[string][]byte
	attErr      map[string]error
}

func (f *fakeSource) GetRecord(ctx context.Context, key string) (*models.Opportunity, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.record, nil
}

func (f *fakeSource) GetAttachment(ctx context.Context, key string) ([]byte, error) {
	if err, ok := f.attErr[key]; ok {
		return nil, err
	}
	data, ok := f.attachments[key]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found", key)
	}
	return data, nil
}

type fakeSearcher struct {
	snippets []models.EvidenceSnippet
	err      error
	errCount int // fail this many times before succeeding
	calls    int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topN int) ([]models.EvidenceSnippet, error) {
	f.calls++
	if f.err != nil && (f.errCount == 0 || f.calls <= f.errCount) {
		return nil, f.err
	}
	return f.snippets, nil
}

// fakeWriter stores outcomes under the same deterministic key shape the real
// store uses, so overwrite-on-redelivery is observable.
type fakeWriter struct {
	mu        sync.Mutex
	outcomes  map[string]*models.ProcessingOutcome
	summaries map[string]*models.RunSummaryEntry
	putErr    error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		outcomes:  make(map[string]*models.ProcessingOutcome),
		summaries: make(map[string]*models.RunSummaryEntry),
	}
}

func (f *fakeWriter) PutOutcome(ctx context.Context, date time.Time, outcome *models.ProcessingOutcome) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%s.json", date.Format("2006-01-02"), outcome.Kind, outcome.RecordID)
	f.outcomes[key] = outcome
	return key, nil
}

func (f *fakeWriter) PutRunSummary(ctx context.Context, date time.Time, entry *models.RunSummaryEntry) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/runs/%s.json", date.Format("2006-01-02"), entry.RecordID)
	f.summaries[key] = entry
	return key, nil
}

func testPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2.0,
		Logger:      zap.NewNop(),
	}
}

func testPipeline(llm *fakeLLM, source *fakeSource, searcher *fakeSearcher, writer *fakeWriter, threshold float64) *Pipeline {
	logger := zap.NewNop()
	loader := NewLoader(source, 5, 12000, 8000, logger)
	extractor := NewExtractor(llm, "extract-model", testPolicy(3), logger)
	retriever := NewRetriever(searcher, 5, testPolicy(3), logger)
	scorer := NewScorer(llm, "score-model", testPolicy(3), logger)
	classifier := NewClassifier(writer, threshold, logger)
	return New(loader, extractor, retriever, scorer, classifier, 0, logger)
}

func validExtractionJSON() string {
	return `{"enhanced_description": "BUSINESS SUMMARY\nPurpose: cloud migration services.", "required_skills": ["cloud migration", "devsecops"]}`
}
