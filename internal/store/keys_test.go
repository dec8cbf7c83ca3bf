package store

import (
	"testing"
	"time"

	"github.com/david/bid-matcher/internal/models"
)

func TestOutcomeKey(t *testing.T) {
	date := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		kind     models.OutcomeKind
		recordID string
		want     string
	}{
		{"matched", models.OutcomeMatched, "SOL-2026-001", "2026-08-31/matched/SOL-2026-001.json"},
		{"no match", models.OutcomeNotMatched, "SOL-2026-002", "2026-08-31/no-match/SOL-2026-002.json"},
		{"errored", models.OutcomeErrored, "SOL-2026-003", "2026-08-31/errored/SOL-2026-003.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutcomeKey(date, tt.kind, tt.recordID)
			if got != tt.want {
				t.Errorf("OutcomeKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcomeKeyStableAcrossRetries(t *testing.T) {
	// The time-of-day must not leak into the key: a redelivery later in the
	// same day has to overwrite the original object.
	morning := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 31, 22, 45, 0, 0, time.UTC)

	k1 := OutcomeKey(morning, models.OutcomeMatched, "SOL-2026-001")
	k2 := OutcomeKey(evening, models.OutcomeMatched, "SOL-2026-001")
	if k1 != k2 {
		t.Errorf("keys differ across same-day runs: %q vs %q", k1, k2)
	}
}

func TestRunSummaryKey(t *testing.T) {
	date := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	got := RunSummaryKey(date, "SOL-2026-001")
	want := "2026-08-31/runs/SOL-2026-001.json"
	if got != want {
		t.Errorf("RunSummaryKey() = %q, want %q", got, want)
	}
}

func TestPrefixes(t *testing.T) {
	date := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	if got := OutcomePrefix(date, models.OutcomeErrored); got != "2026-08-31/errored/" {
		t.Errorf("OutcomePrefix() = %q", got)
	}
	if got := RunSummaryPrefix(date); got != "2026-08-31/runs/" {
		t.Errorf("RunSummaryPrefix() = %q", got)
	}
}
