package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/kb"
	"github.com/david/bid-matcher/internal/models"
	"github.com/david/bid-matcher/internal/queue"
)

type fakeOutcomeReader struct {
	outcomes  []models.ProcessingOutcome
	summaries []models.RunSummaryEntry
}

func (f *fakeOutcomeReader) ListOutcomes(ctx context.Context, date time.Time, kind models.OutcomeKind) ([]models.ProcessingOutcome, error) {
	return f.outcomes, nil
}

func (f *fakeOutcomeReader) ListRunSummaries(ctx context.Context, date time.Time) ([]models.RunSummaryEntry, error) {
	return f.summaries, nil
}

type fakePublisher struct {
	published []queue.MatchRequest
}

func (f *fakePublisher) PublishMatchRequest(ctx context.Context, req queue.MatchRequest) error {
	f.published = append(f.published, req)
	return nil
}

type fakeIndexer struct {
	docs []kb.Document
}

func (f *fakeIndexer) AddDocument(ctx context.Context, doc kb.Document) error {
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeIndexer) Count(ctx context.Context) (int, error) {
	return len(f.docs), nil
}

func testServer() (*Server, *fakePublisher, *fakeIndexer) {
	reader := &fakeOutcomeReader{
		outcomes: []models.ProcessingOutcome{{RecordID: "SOL-1", Kind: models.OutcomeMatched}},
	}
	publisher := &fakePublisher{}
	indexer := &fakeIndexer{}
	s := NewServer(config.ServerConfig{AdminSecret: "s3cret"}, reader, publisher, indexer, zap.NewNop())
	return s, publisher, indexer
}

func TestHealth(t *testing.T) {
	s, _, _ := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestListOutcomes(t *testing.T) {
	s, _, _ := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/outcomes?date=2026-08-31&category=matched", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Count    int    `json:"count"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 1 || body.Category != "matched" {
		t.Errorf("body = %+v", body)
	}
}

func TestListOutcomesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"bad date", "/api/v1/outcomes?date=yesterday"},
		{"bad category", "/api/v1/outcomes?category=maybe"},
	}

	s, _, _ := testServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()
			s.Echo.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTriggerMatchRequiresAdminSecret(t *testing.T) {
	s, publisher, _ := testServer()
	body := strings.NewReader(`{"record_id": "SOL-1", "record_key": "2026-08-31/records/SOL-1.json"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without secret = %d, want 401", rec.Code)
	}
	if len(publisher.published) != 0 {
		t.Error("request published without authorization")
	}
}

func TestTriggerMatchPublishes(t *testing.T) {
	s, publisher, _ := testServer()
	body := strings.NewReader(`{"record_id": "SOL-1", "record_key": "2026-08-31/records/SOL-1.json"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "s3cret")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(publisher.published) != 1 || publisher.published[0].RecordKey != "2026-08-31/records/SOL-1.json" {
		t.Errorf("published = %+v", publisher.published)
	}
}

func TestAddCapability(t *testing.T) {
	s, _, indexer := testServer()
	body := strings.NewReader(`{"source_id": "cap-100", "title": "Network ops", "body": "Operated a NOC for 5 years"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/capabilities", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", "s3cret")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(indexer.docs) != 1 || indexer.docs[0].SourceID != "cap-100" {
		t.Errorf("docs = %+v", indexer.docs)
	}
}
