package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/ai"
	"github.com/david/bid-matcher/internal/models"
	"github.com/david/bid-matcher/internal/retry"
)

// extractionFallbackDescription is the labeled fallback stored when every
// extraction attempt fails. Downstream consumers key off the "manual review
// required" marker; it must never look like a real extraction.
const extractionFallbackDescription = "AUTOMATED EXTRACTION FAILED - manual review required. " +
	"The structured summary could not be generated for this opportunity; " +
	"refer to the original record text."

const extractSystemPrompt = `You are an expert government-contract analyst. You summarize opportunity records into a fixed-section structured description for bid/no-bid decisions. Respond only with JSON.`

// Extractor turns raw opportunity text plus attachments into the structured
// enhanced description and skill list.
type Extractor struct {
	llm    ai.LLM
	model  string
	policy retry.Policy
	logger *zap.Logger
}

func NewExtractor(llm ai.LLM, model string, policy retry.Policy, logger *zap.Logger) *Extractor {
	policy.IsTransient = func(err error) bool {
		return ai.IsTransient(err) || errors.Is(err, errUnparsable)
	}
	return &Extractor{llm: llm, model: model, policy: policy, logger: logger}
}

type rawExtraction struct {
	EnhancedDescription string   `json:"enhanced_description"`
	RequiredSkills      []string `json:"required_skills"`
}

// Extract invokes the model with retries. On exhaustion it returns the
// labeled fallback result alongside the stage failure, so the Errored
// outcome still carries what was attempted.
func (e *Extractor) Extract(ctx context.Context, opp *models.Opportunity, attachments []models.AttachmentContent) (models.ExtractionResult, error) {
	prompt := buildExtractionPrompt(opp, attachments)

	result, _, err := retry.DoWithResult(ctx, e.policy, "llm.extract", func() (models.ExtractionResult, error) {
		resp, err := e.llm.Complete(ctx, e.model, extractSystemPrompt, prompt)
		if err != nil {
			return models.ExtractionResult{}, err
		}

		var raw rawExtraction
		if err := parseJSONResponse(resp, &raw); err != nil {
			return models.ExtractionResult{}, err
		}
		if strings.TrimSpace(raw.EnhancedDescription) == "" {
			return models.ExtractionResult{}, fmt.Errorf("%w: empty enhanced_description", errUnparsable)
		}

		return models.ExtractionResult{
			EnhancedDescription: raw.EnhancedDescription,
			RequiredSkills:      raw.RequiredSkills,
			Succeeded:           true,
		}, nil
	})
	if err != nil {
		e.logger.Error("extraction failed after retries",
			zap.String("record_id", opp.SolicitationNumber),
			zap.Error(err),
		)
		fallback := models.ExtractionResult{
			EnhancedDescription: extractionFallbackDescription,
			Succeeded:           false,
		}
		return fallback, failure(FailureExtraction, StageExtract, err)
	}

	return result, nil
}

func buildExtractionPrompt(opp *models.Opportunity, attachments []models.AttachmentContent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "OPPORTUNITY %s\nTITLE: %s\nAGENCY: %s\nNOTICE TYPE: %s\nNAICS: %s\nSET-ASIDE: %s\n\nDESCRIPTION:\n%s\n",
		opp.SolicitationNumber, opp.Title, opp.AgencyName, opp.NoticeType, opp.NAICSCode, opp.SetAside, opp.Description)

	for _, att := range attachments {
		fmt.Fprintf(&b, "\nATTACHMENT %q:\n%s\n", att.Name, att.Text)
	}

	b.WriteString(`
Produce a JSON object with this exact format:
{
  "enhanced_description": "BUSINESS SUMMARY\nPurpose: ...\nUnique Project Information: ...\nWork Description: ...\nRequired Technical Capability: ...\n\nNON-TECHNICAL SUMMARY\nClearances: ...\nEvaluation Criteria: ...\nSecurity: ...\nCompliance: ...",
  "required_skills": ["skill 1", "skill 2"]
}

Rules:
1. Fill every section; write "Not specified" where the record is silent.
2. required_skills lists concrete technical capabilities the government asks for, most important first.
3. Use only information present in the record and attachments above.
4. RESPOND ONLY WITH JSON.`)

	return b.String()
}
