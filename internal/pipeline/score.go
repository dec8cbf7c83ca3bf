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

// noEvidenceRationale is the standard statement written whenever retrieval
// returned nothing, regardless of what the model claimed.
const noEvidenceRationale = "No capability evidence available: the knowledge base returned no relevant past performance or capability records for this opportunity."

// errScoreOutOfRange marks a model score outside [0,1]. Retried like an
// unparsable response; if it survives retries it is a scoring failure, never
// clamped and trusted.
var errScoreOutOfRange = errors.New("model score out of range")

const scoreSystemPrompt = `You are a capture manager assessing whether the company should bid on a government opportunity. Judge fit STRICTLY from the capability evidence provided. Never assert a capability that is not present in the evidence. Respond only with JSON.`

// Scorer produces the validated match assessment.
type Scorer struct {
	llm    ai.LLM
	model  string
	policy retry.Policy
	logger *zap.Logger
}

func NewScorer(llm ai.LLM, model string, policy retry.Policy, logger *zap.Logger) *Scorer {
	policy.IsTransient = func(err error) bool {
		return ai.IsTransient(err) || errors.Is(err, errUnparsable) || errors.Is(err, errScoreOutOfRange)
	}
	return &Scorer{llm: llm, model: model, policy: policy, logger: logger}
}

type rawAssessment struct {
	Score           *float64          `json:"score"`
	Rationale       string            `json:"rationale"`
	CompanySkills   []string          `json:"company_skills"`
	PastPerformance []string          `json:"past_performance"`
	Citations       []models.Citation `json:"citations"`
}

// Score invokes the model and applies the deterministic guards: the empty
// evidence override, citation validation against the retrieved snippets, and
// the score range check. The guards run on every response; prompt compliance
// is never assumed.
func (s *Scorer) Score(ctx context.Context, extraction models.ExtractionResult, evidence []models.EvidenceSnippet) (models.MatchAssessment, error) {
	prompt := buildScoringPrompt(extraction, evidence)

	assessment, _, err := retry.DoWithResult(ctx, s.policy, "llm.score", func() (models.MatchAssessment, error) {
		resp, err := s.llm.Complete(ctx, s.model, scoreSystemPrompt, prompt)
		if err != nil {
			return models.MatchAssessment{}, err
		}

		var raw rawAssessment
		if err := parseJSONResponse(resp, &raw); err != nil {
			return models.MatchAssessment{}, err
		}
		if raw.Score == nil {
			return models.MatchAssessment{}, fmt.Errorf("%w: missing score", errUnparsable)
		}
		if *raw.Score < 0.0 || *raw.Score > 1.0 {
			return models.MatchAssessment{}, fmt.Errorf("%w: %v", errScoreOutOfRange, *raw.Score)
		}

		return models.MatchAssessment{
			Score:           *raw.Score,
			Rationale:       raw.Rationale,
			CompanySkills:   raw.CompanySkills,
			PastPerformance: raw.PastPerformance,
			Citations:       raw.Citations,
			Succeeded:       true,
		}, nil
	})
	if err != nil {
		s.logger.Error("scoring failed after retries", zap.Error(err))
		return models.MatchAssessment{Succeeded: false}, failure(FailureScoring, StageScore, err)
	}

	return applyEvidenceGuards(assessment, evidence), nil
}

// applyEvidenceGuards enforces the grounding rules after the model has
// answered. With no evidence the score is forced to zero; citations that
// point at sources retrieval never returned are dropped.
func applyEvidenceGuards(assessment models.MatchAssessment, evidence []models.EvidenceSnippet) models.MatchAssessment {
	if len(evidence) == 0 {
		assessment.Score = 0.0
		assessment.Rationale = noEvidenceRationale
		assessment.CompanySkills = nil
		assessment.PastPerformance = nil
		assessment.Citations = nil
		return assessment
	}

	known := make(map[string]bool, len(evidence))
	for _, sn := range evidence {
		known[sn.SourceID] = true
	}

	valid := make([]models.Citation, 0, len(assessment.Citations))
	for _, c := range assessment.Citations {
		if known[c.SourceID] {
			valid = append(valid, c)
		}
	}
	assessment.Citations = valid
	return assessment
}

func buildScoringPrompt(extraction models.ExtractionResult, evidence []models.EvidenceSnippet) string {
	var b strings.Builder

	b.WriteString("OPPORTUNITY REQUIREMENTS:\n")
	b.WriteString(extraction.EnhancedDescription)
	if len(extraction.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "\n\nREQUIRED SKILLS: %s\n", strings.Join(extraction.RequiredSkills, ", "))
	}

	b.WriteString("\nCOMPANY CAPABILITY EVIDENCE:\n")
	if len(evidence) == 0 {
		b.WriteString("(none on file)\n")
	}
	for i, sn := range evidence {
		fmt.Fprintf(&b, "[%d] source_id=%s title=%q relevance=%.2f\n%s\n\n", i+1, sn.SourceID, sn.Title, sn.RelevanceScore, sn.Snippet)
	}

	b.WriteString(`
Produce a JSON object with this exact format:
{
  "score": 0.0,
  "rationale": "why the company does or does not fit, grounded in the evidence",
  "company_skills": ["skill demonstrated in the evidence"],
  "past_performance": ["relevant past project from the evidence"],
  "citations": [{"source_id": "...", "locator": "...", "excerpt": "verbatim text from that evidence entry"}]
}

Rules:
1. score is a number between 0.0 and 1.0.
2. Every citation's source_id must be one of the evidence source_ids above.
3. If the evidence does not demonstrate a required capability, say so; do not assume it.
4. With no evidence on file, score 0.0.
5. RESPOND ONLY WITH JSON.`)

	return b.String()
}
