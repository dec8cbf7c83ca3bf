package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/models"
)

func TestTruncateEnd(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		max           int
		want          string
		wantTruncated bool
	}{
		{"under cap", "short text", 100, "short text", false},
		{"exactly cap", "12345", 5, "12345", false},
		{"over cap keeps leading content", "leading content trailing content", 15, "leading content", true},
		{"zero cap disables truncation", "anything", 0, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := truncateEnd(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("truncateEnd() = %q, want %q", got, tt.want)
			}
			if truncated != tt.wantTruncated {
				t.Errorf("truncated = %v, want %v", truncated, tt.wantTruncated)
			}
		})
	}
}

func TestLoaderTruncatesOversizedAttachments(t *testing.T) {
	big1 := strings.Repeat("a", 200) + strings.Repeat("z", 200)
	big2 := strings.Repeat("b", 500)
	source := &fakeSource{
		record: &models.Opportunity{
			SolicitationNumber: "SOL-1",
			Description:        "desc",
			Attachments: []models.AttachmentRef{
				{Name: "one.txt", ObjectKey: "k1", ContentType: "text/plain"},
				{Name: "two.txt", ObjectKey: "k2", ContentType: "text/plain"},
			},
		},
		attachments: map[string][]byte{"k1": []byte(big1), "k2": []byte(big2)},
	}
	loader := NewLoader(source, 5, 12000, 100, zap.NewNop())

	_, contents, err := loader.Load(context.Background(), "records/SOL-1.json")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("got %d attachments, want 2", len(contents))
	}
	for _, c := range contents {
		if len(c.Text) != 100 {
			t.Errorf("attachment %s length = %d, want 100", c.Name, len(c.Text))
		}
		if !c.Truncated {
			t.Errorf("attachment %s not flagged truncated", c.Name)
		}
	}
	// Leading content must survive, not the tail.
	if !strings.HasPrefix(contents[0].Text, "aaa") || strings.Contains(contents[0].Text, "z") {
		t.Errorf("truncation did not keep leading content: %q", contents[0].Text[:10])
	}
}

func TestLoaderSkipsExcessAttachments(t *testing.T) {
	record := &models.Opportunity{SolicitationNumber: "SOL-2", Description: "d"}
	atts := map[string][]byte{}
	for _, k := range []string{"k1", "k2", "k3", "k4"} {
		record.Attachments = append(record.Attachments, models.AttachmentRef{Name: k, ObjectKey: k, ContentType: "text/plain"})
		atts[k] = []byte("content")
	}
	source := &fakeSource{record: record, attachments: atts}
	loader := NewLoader(source, 2, 12000, 8000, zap.NewNop())

	_, contents, err := loader.Load(context.Background(), "records/SOL-2.json")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(contents) != 2 {
		t.Errorf("got %d attachments, want 2 (cap)", len(contents))
	}
}

func TestLoaderMissingAttachmentIsNotFatal(t *testing.T) {
	source := &fakeSource{
		record: &models.Opportunity{
			SolicitationNumber: "SOL-3",
			Description:        "d",
			Attachments: []models.AttachmentRef{
				{Name: "gone.pdf", ObjectKey: "missing", ContentType: "application/pdf"},
				{Name: "here.txt", ObjectKey: "k1", ContentType: "text/plain"},
			},
		},
		attachments: map[string][]byte{"k1": []byte("hello")},
		attErr:      map[string]error{"missing": errors.New("object not found")},
	}
	loader := NewLoader(source, 5, 12000, 8000, zap.NewNop())

	opp, contents, err := loader.Load(context.Background(), "records/SOL-3.json")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if opp == nil {
		t.Fatal("record is nil")
	}
	if len(contents) != 1 || contents[0].Name != "here.txt" {
		t.Errorf("expected only the readable attachment, got %+v", contents)
	}
}

func TestLoaderRecordNotFoundIsDataAccess(t *testing.T) {
	source := &fakeSource{recordErr: errors.New("no such key")}
	loader := NewLoader(source, 5, 12000, 8000, zap.NewNop())

	_, _, err := loader.Load(context.Background(), "records/nope.json")
	var sf *StageFailure
	if !errors.As(err, &sf) {
		t.Fatalf("expected StageFailure, got %v", err)
	}
	if sf.Kind != FailureDataAccess || sf.Stage != StageLoad {
		t.Errorf("got kind=%s stage=%s, want DataAccess/load", sf.Kind, sf.Stage)
	}
}

func TestExtractHTMLText(t *testing.T) {
	html := `<html><body><script>evil()</script><h1>Statement of Work</h1><p>The contractor shall provide services.</p></body></html>`
	text, err := extractHTMLText([]byte(html))
	if err != nil {
		t.Fatalf("extractHTMLText() error: %v", err)
	}
	if !strings.Contains(text, "Statement of Work") || !strings.Contains(text, "contractor shall") {
		t.Errorf("missing expected text: %q", text)
	}
	if strings.Contains(text, "evil") {
		t.Errorf("script content leaked: %q", text)
	}
}
