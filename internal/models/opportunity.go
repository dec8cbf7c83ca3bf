package models

import (
	"time"
)

// Opportunity is the canonical opportunity record as written to the object
// store by the daily retrieval job. Immutable once loaded; a single pipeline
// run owns its copy exclusively.
type Opportunity struct {
	SolicitationNumber string          `json:"solicitation_number"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	AgencyName         string          `json:"agency_name"`
	NoticeType         string          `json:"notice_type"` // solicitation, presolicitation, sources_sought
	NAICSCode          string          `json:"naics_code"`
	SetAside           string          `json:"set_aside"`
	PostedAt           *time.Time      `json:"posted_at"`
	ResponseDeadline   *time.Time      `json:"response_deadline"`
	PointOfContact     PointOfContact  `json:"point_of_contact"`
	PlaceOfPerformance string          `json:"place_of_performance"`
	Attachments        []AttachmentRef `json:"attachments"`
}

type PointOfContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// AttachmentRef points at an attachment object stored under the record's
// prefix in the object store.
type AttachmentRef struct {
	Name        string `json:"name"`
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type"` // application/pdf, text/html, text/plain
}

// AttachmentContent is the text extracted from one attachment, already
// truncated to the configured cap. Loaded, used, and discarded within a run.
type AttachmentContent struct {
	Name      string
	Text      string
	Truncated bool
}
