package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	rpdf "rsc.io/pdf"

	"github.com/david/bid-matcher/internal/models"
)

// RecordSource reads opportunity objects and their attachments.
type RecordSource interface {
	GetRecord(ctx context.Context, key string) (*models.Opportunity, error)
	GetAttachment(ctx context.Context, key string) ([]byte, error)
}

// Loader fetches one opportunity record and extracts text from its
// attachments, enforcing the configured count and length caps.
type Loader struct {
	source              RecordSource
	maxAttachments      int
	maxDescriptionChars int
	maxAttachmentChars  int
	logger              *zap.Logger
}

func NewLoader(source RecordSource, maxAttachments, maxDescriptionChars, maxAttachmentChars int, logger *zap.Logger) *Loader {
	return &Loader{
		source:              source,
		maxAttachments:      maxAttachments,
		maxDescriptionChars: maxDescriptionChars,
		maxAttachmentChars:  maxAttachmentChars,
		logger:              logger,
	}
}

// Load returns the record with its description truncated to the cap, plus
// whatever attachment text was obtainable. Missing attachments are logged
// and skipped; only a missing or malformed record object is fatal.
func (l *Loader) Load(ctx context.Context, recordKey string) (*models.Opportunity, []models.AttachmentContent, error) {
	opp, err := l.source.GetRecord(ctx, recordKey)
	if err != nil {
		return nil, nil, failure(FailureDataAccess, StageLoad, err)
	}

	opp.Description, _ = truncateEnd(opp.Description, l.maxDescriptionChars)

	refs := opp.Attachments
	if len(refs) > l.maxAttachments {
		l.logger.Warn("skipping excess attachments",
			zap.String("record_id", opp.SolicitationNumber),
			zap.Int("total", len(refs)),
			zap.Int("max", l.maxAttachments),
		)
		refs = refs[:l.maxAttachments]
	}

	var contents []models.AttachmentContent
	for _, ref := range refs {
		data, err := l.source.GetAttachment(ctx, ref.ObjectKey)
		if err != nil {
			l.logger.Warn("attachment unavailable, continuing without it",
				zap.String("record_id", opp.SolicitationNumber),
				zap.String("attachment", ref.Name),
				zap.Error(err),
			)
			continue
		}

		text, err := extractAttachmentText(data, ref.ContentType)
		if err != nil {
			l.logger.Warn("attachment text extraction failed, continuing without it",
				zap.String("record_id", opp.SolicitationNumber),
				zap.String("attachment", ref.Name),
				zap.Error(err),
			)
			continue
		}

		text, truncated := truncateEnd(text, l.maxAttachmentChars)
		contents = append(contents, models.AttachmentContent{
			Name:      ref.Name,
			Text:      text,
			Truncated: truncated,
		})
	}

	return opp, contents, nil
}

// truncateEnd caps s at max characters, always keeping the leading content.
func truncateEnd(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max], true
}

func extractAttachmentText(data []byte, contentType string) (string, error) {
	switch {
	case strings.Contains(contentType, "pdf"):
		return extractPDFText(data)
	case strings.Contains(contentType, "html"):
		return extractHTMLText(data)
	default:
		return strings.ToValidUTF8(string(data), ""), nil
	}
}

// extractPDFText pulls text fragments page by page. The parser panics on
// some malformed files, so failures are converted to errors.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

func extractHTMLText(content []byte) (string, error) {
	sanitized := bluemonday.UGCPolicy().SanitizeBytes(content)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(sanitized))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style").Remove()

	text := strings.TrimSpace(doc.Text())
	// Collapse runs of blank lines left behind by stripped markup.
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n"), nil
}
