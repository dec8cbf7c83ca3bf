package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestRetrieveEmptyResultIsValid(t *testing.T) {
	searcher := &fakeSearcher{snippets: nil}
	retriever := NewRetriever(searcher, 5, testPolicy(3), zap.NewNop())

	evidence, err := retriever.Retrieve(context.Background(), testExtraction())
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(evidence) != 0 {
		t.Errorf("got %d snippets, want 0", len(evidence))
	}
	if searcher.calls != 1 {
		t.Errorf("calls = %d, want 1 (empty result must not be retried)", searcher.calls)
	}
}

func TestRetrieveServiceErrorBecomesStageFailure(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("connection refused")}
	retriever := NewRetriever(searcher, 5, testPolicy(3), zap.NewNop())

	_, err := retriever.Retrieve(context.Background(), testExtraction())
	var sf *StageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("expected StageFailure, got %v", err)
	}
	if sf.Kind != FailureRetrieval || sf.Stage != StageRetrieve {
		t.Errorf("got kind=%s stage=%s", sf.Kind, sf.Stage)
	}
	if searcher.calls != 3 {
		t.Errorf("calls = %d, want 3 (retries before escalation)", searcher.calls)
	}
}

func TestRetrieveRecoversAfterTransientError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("timeout"), errCount: 2, snippets: testEvidence}
	retriever := NewRetriever(searcher, 5, testPolicy(3), zap.NewNop())

	evidence, err := retriever.Retrieve(context.Background(), testExtraction())
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(evidence) != 3 {
		t.Errorf("got %d snippets, want 3", len(evidence))
	}
}

func TestBuildRetrievalQuery(t *testing.T) {
	withSkills := testExtraction()
	if q := buildRetrievalQuery(withSkills); q != "cloud migration" {
		t.Errorf("query = %q, want skills join", q)
	}

	noSkills := testExtraction()
	noSkills.RequiredSkills = nil
	if q := buildRetrievalQuery(noSkills); q != noSkills.EnhancedDescription {
		t.Errorf("query = %q, want enhanced description fallback", q)
	}
}
