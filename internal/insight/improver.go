package insight

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/entity"
)

const (
	improveTemperature = 0.7
	improveMaxTokens   = 250

	// DefaultImproveThreshold is the minimum acceptable overall score; insights
	// below it are regenerated.
	DefaultImproveThreshold = 3.8
	// DefaultImproveAttempts bounds regeneration attempts per insight.
	DefaultImproveAttempts = 2

	weaknessCutoff = 3.5
)

// ImproveInsight regenerates a poorly scored insight, steering the model with
// the judge's feedback and the identified weak dimensions.
func (c *Client) ImproveInsight(ctx context.Context, contractor *entity.Contractor, oldInsight, feedback, weaknesses string) (string, error) {
	req := chatRequest{
		Model: c.insightModel,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are a B2B sales intelligence analyst. Generate concise, actionable, personalized insights for roofing material distributors.",
			},
			{Role: "user", Content: buildImprovePrompt(contractor, oldInsight, feedback, weaknesses)},
		},
		Temperature: improveTemperature,
		MaxTokens:   improveMaxTokens,
	}

	content, err := c.chatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("improve insight: %w", err)
	}
	return content, nil
}

// IdentifyWeaknesses turns judge scores into a targeted improvement directive.
// Every dimension below 3.5 is named; when all pass, the single lowest one is.
func IdentifyWeaknesses(eval *entity.InsightEvaluation) string {
	if eval == nil {
		return "improve overall quality"
	}

	var issues []string
	if eval.Accuracy < weaknessCutoff {
		issues = append(issues, "be more accurate and fact-based, referencing specific contractor data")
	}
	if eval.Actionability < weaknessCutoff {
		issues = append(issues, "provide clearer action items and specific materials/services the contractor might need")
	}
	if eval.Personalization < weaknessCutoff {
		issues = append(issues, "make it more personalized to this contractor's unique strengths and specializations")
	}
	if eval.Conciseness < weaknessCutoff {
		issues = append(issues, "be more concise and avoid repetitive language")
	}

	if len(issues) == 0 {
		lowest := eval.Accuracy
		issue := "improve factual accuracy"
		if eval.Actionability < lowest {
			lowest = eval.Actionability
			issue = "add more actionable insights"
		}
		if eval.Personalization < lowest {
			lowest = eval.Personalization
			issue = "increase personalization"
		}
		if eval.Conciseness < lowest {
			issue = "improve conciseness"
		}
		issues = append(issues, issue)
	}

	return strings.Join(issues, ", ")
}

func buildImprovePrompt(c *entity.Contractor, oldInsight, feedback, weaknesses string) string {
	var b strings.Builder
	b.WriteString("The previous sales insight for this contractor scored poorly. Generate an IMPROVED version.\n\n")
	b.WriteString("CONTRACTOR INFO:\n")
	fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	fmt.Fprintf(&b, "- Location: %s\n", stringOr(c.Location, "Unknown"))
	fmt.Fprintf(&b, "- Rating: %s stars (%d reviews)\n", ratingOr(c.Rating, "N/A"), intOr(c.ReviewsCount))
	fmt.Fprintf(&b, "- Certifications: %s\n", certsOr(c.Certifications, "None listed"))
	fmt.Fprintf(&b, "- Description: %s\n\n", truncate(stringOr(c.Description, "No description provided"), 500))
	fmt.Fprintf(&b, "PREVIOUS INSIGHT (LOW QUALITY):\n%s\n\n", oldInsight)
	fmt.Fprintf(&b, "EVALUATION FEEDBACK:\n%s\n\n", feedback)
	fmt.Fprintf(&b, "IMPROVEMENT AREAS:\nYou need to %s.\n\n", weaknesses)
	b.WriteString(`REQUIREMENTS:
1. Write 2-3 sentences focused on B2B sales for roofing material distributors
2. Reference specific contractor strengths (rating, certifications, experience)
3. Identify what materials they likely need (asphalt shingles, metal, flat roof systems, etc.)
4. Suggest concrete next steps for sales engagement
5. Be personalized to THIS contractor - avoid generic language
6. Keep it professional, concise, and scannable

Generate the IMPROVED insight now:`)
	return b.String()
}

// ImproverStore is the persistence slice the improvement pass needs.
type ImproverStore interface {
	ListLowQualityEvaluations(ctx context.Context, threshold float64, limit int) ([]entity.Contractor, error)
	AttachInsight(ctx context.Context, profileURL, insight string, eval *entity.InsightEvaluation) error
}

// ImproverClient regenerates and re-judges insights.
type ImproverClient interface {
	ImproveInsight(ctx context.Context, c *entity.Contractor, oldInsight, feedback, weaknesses string) (string, error)
	EvaluateInsight(ctx context.Context, c *entity.Contractor, insight string) (*entity.InsightEvaluation, error)
}

var _ ImproverClient = (*Client)(nil)

// ImproveResult summarises one improvement pass.
type ImproveResult struct {
	Examined int `json:"examined"`
	Improved int `json:"improved"`
}

// Improver finds low-scoring insights and regenerates them until they clear
// the threshold or attempts run out.
type Improver struct {
	store       ImproverStore
	client      ImproverClient
	threshold   float64
	maxAttempts int
	logger      *zap.Logger
}

// NewImprover wires an improvement pass. Zero threshold/attempts fall back to
// the defaults.
func NewImprover(store ImproverStore, client ImproverClient, threshold float64, maxAttempts int, logger *zap.Logger) *Improver {
	if threshold <= 0 {
		threshold = DefaultImproveThreshold
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultImproveAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Improver{
		store:       store,
		client:      client,
		threshold:   threshold,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Run improves every stored insight scoring below the threshold. Failures are
// contained to the record they occur on.
func (imp *Improver) Run(ctx context.Context) (ImproveResult, error) {
	var result ImproveResult

	candidates, err := imp.store.ListLowQualityEvaluations(ctx, imp.threshold, 0)
	if err != nil {
		return result, fmt.Errorf("find low quality insights: %w", err)
	}
	result.Examined = len(candidates)
	imp.logger.Info("improvement pass started",
		zap.Int("candidates", len(candidates)), zap.Float64("threshold", imp.threshold))

	for i := range candidates {
		contractor := &candidates[i]
		if imp.improveOne(ctx, contractor) {
			result.Improved++
		}
	}

	imp.logger.Info("improvement pass complete",
		zap.Int("examined", result.Examined), zap.Int("improved", result.Improved))
	return result, nil
}

func (imp *Improver) improveOne(ctx context.Context, contractor *entity.Contractor) bool {
	if contractor.Insight == nil || *contractor.Insight == "" {
		imp.logger.Warn("no insight to improve", zap.String("name", contractor.Name))
		return false
	}

	oldInsight := *contractor.Insight
	feedback := "Score too low"
	if contractor.Evaluation != nil && contractor.Evaluation.Feedback != nil {
		feedback = *contractor.Evaluation.Feedback
	}
	weaknesses := IdentifyWeaknesses(contractor.Evaluation)

	for attempt := 1; attempt <= imp.maxAttempts; attempt++ {
		newInsight, err := imp.client.ImproveInsight(ctx, contractor, oldInsight, feedback, weaknesses)
		if err != nil {
			imp.logger.Error("regeneration failed",
				zap.String("name", contractor.Name), zap.Int("attempt", attempt), zap.Error(err))
			return false
		}

		eval, err := imp.client.EvaluateInsight(ctx, contractor, newInsight)
		if err != nil {
			imp.logger.Error("re-evaluation failed",
				zap.String("name", contractor.Name), zap.Int("attempt", attempt), zap.Error(err))
			return false
		}

		if eval.Overall >= imp.threshold {
			if err := imp.store.AttachInsight(ctx, contractor.ProfileURL, newInsight, eval); err != nil {
				imp.logger.Error("failed to store improved insight",
					zap.String("name", contractor.Name), zap.Error(err))
				return false
			}
			imp.logger.Info("insight improved",
				zap.String("name", contractor.Name), zap.Float64("score", eval.Overall))
			return true
		}

		// Feed the fresh judgement into the next attempt.
		oldInsight = newInsight
		if eval.Feedback != nil {
			feedback = *eval.Feedback
		}
		weaknesses = IdentifyWeaknesses(eval)
	}

	imp.logger.Warn("could not clear threshold",
		zap.String("name", contractor.Name), zap.Int("attempts", imp.maxAttempts))
	return false
}
