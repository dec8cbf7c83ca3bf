package store

import (
	"fmt"
	"time"

	"github.com/david/bid-matcher/internal/models"
)

// Object keys are derived deterministically from the run date, the outcome
// bucket, and the record id. Reprocessing a record on the same day always
// lands on the same key, so redeliveries overwrite instead of duplicating.

const dateLayout = "2006-01-02"

// OutcomeKey returns the key for a record's full processing outcome, e.g.
// "2026-08-31/matched/SOL-2026-001.json".
func OutcomeKey(date time.Time, kind models.OutcomeKind, recordID string) string {
	return fmt.Sprintf("%s/%s/%s.json", date.Format(dateLayout), kind, recordID)
}

// RunSummaryKey returns the key for a record's run summary entry, e.g.
// "2026-08-31/runs/SOL-2026-001.json".
func RunSummaryKey(date time.Time, recordID string) string {
	return fmt.Sprintf("%s/runs/%s.json", date.Format(dateLayout), recordID)
}

// OutcomePrefix returns the listing prefix for one day and category.
func OutcomePrefix(date time.Time, kind models.OutcomeKind) string {
	return fmt.Sprintf("%s/%s/", date.Format(dateLayout), kind)
}

// RunSummaryPrefix returns the listing prefix for one day's run summaries.
func RunSummaryPrefix(date time.Time) string {
	return fmt.Sprintf("%s/runs/", date.Format(dateLayout))
}
