// Package insight talks to the OpenAI chat-completions API to generate sales
// insights for stored contractors and to score them with a judge model.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/refresh"
)

const (
	insightTemperature = 0.7
	insightMaxTokens   = 200
	judgeTemperature   = 0.3
	judgeMaxTokens     = 400
)

// Client generates and evaluates insights through the chat-completions API.
type Client struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	insightModel string
	judgeModel   string
	logger       *zap.Logger
}

// NewClient builds an OpenAI-backed insight client.
func NewClient(httpClient *http.Client, baseURL, apiKey, insightModel, judgeModel string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:       httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		insightModel: insightModel,
		judgeModel:   judgeModel,
		logger:       logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

// GenerateInsight produces a 2-3 sentence sales insight for the contractor.
func (c *Client) GenerateInsight(ctx context.Context, contractor *entity.Contractor) (string, error) {
	req := chatRequest{
		Model: c.insightModel,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are a B2B sales intelligence analyst helping roofing material distributors identify promising contractor leads. Generate concise, actionable insights based on contractor data.",
			},
			{Role: "user", Content: buildInsightPrompt(contractor)},
		},
		Temperature: insightTemperature,
		MaxTokens:   insightMaxTokens,
	}

	content, err := c.chatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate insight: %w", err)
	}
	return content, nil
}

// judgeResult mirrors the judge's required JSON structure.
type judgeResult struct {
	Accuracy        float64 `json:"accuracy"`
	Actionability   float64 `json:"actionability"`
	Personalization float64 `json:"personalization"`
	Conciseness     float64 `json:"conciseness"`
	Feedback        string  `json:"feedback"`
}

// EvaluateInsight scores an insight with the judge model. The overall score
// weights accuracy 40%, actionability 30%, personalization 20%, conciseness
// 10%, rounded to two decimals.
func (c *Client) EvaluateInsight(ctx context.Context, contractor *entity.Contractor, insightText string) (*entity.InsightEvaluation, error) {
	req := chatRequest{
		Model: c.judgeModel,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You are an expert evaluator of B2B sales intelligence content.\n" +
					"Your job is to assess the quality of AI-generated sales insights for roofing material distributors.\n" +
					"You must return ONLY valid JSON with numeric scores and brief feedback.",
			},
			{Role: "user", Content: buildEvaluationPrompt(contractor, insightText)},
		},
		Temperature:    judgeTemperature,
		MaxTokens:      judgeMaxTokens,
		ResponseFormat: map[string]any{"type": "json_object"},
	}

	content, err := c.chatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("evaluate insight: %w", err)
	}

	var result judgeResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("parse judge response: %w", err)
	}

	overall := result.Accuracy*0.40 +
		result.Actionability*0.30 +
		result.Personalization*0.20 +
		result.Conciseness*0.10

	now := time.Now().UTC()
	eval := &entity.InsightEvaluation{
		Accuracy:        result.Accuracy,
		Actionability:   result.Actionability,
		Personalization: result.Personalization,
		Conciseness:     result.Conciseness,
		Overall:         math.Round(overall*100) / 100,
		EvaluatedAt:     &now,
	}
	if result.Feedback != "" {
		eval.Feedback = &result.Feedback
	}
	return eval, nil
}

// chatCompletion posts one request and returns the first choice's content.
func (c *Client) chatCompletion(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func buildInsightPrompt(c *entity.Contractor) string {
	var b strings.Builder
	b.WriteString("Generate a brief sales insight (2-3 sentences) for this roofing contractor:\n\n")
	fmt.Fprintf(&b, "Contractor: %s\n", c.Name)
	fmt.Fprintf(&b, "Location: %s\n", stringOr(c.Location, "Unknown"))
	fmt.Fprintf(&b, "Rating: %s stars (%d reviews)\n", ratingOr(c.Rating, "N/A"), intOr(c.ReviewsCount))
	fmt.Fprintf(&b, "Certifications: %s\n", certsOr(c.Certifications, "None listed"))
	fmt.Fprintf(&b, "Description: %s\n\n", truncate(stringOr(c.Description, "No description provided"), 500))
	b.WriteString("Focus on:\n")
	b.WriteString("- Their reputation and market standing\n")
	b.WriteString("- Quality indicators (rating, certifications, experience)\n")
	b.WriteString("- Potential as a B2B customer for roofing materials\n")
	b.WriteString("- Any unique strengths or specializations\n\n")
	b.WriteString("Keep it professional and concise.")
	return b.String()
}

func buildEvaluationPrompt(c *entity.Contractor, insightText string) string {
	var b strings.Builder
	b.WriteString("Evaluate this AI-generated sales insight on a scale of 1-5 for each dimension.\n\n")
	b.WriteString("CONTRACTOR DATA:\n")
	fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	fmt.Fprintf(&b, "- Location: %s\n", stringOr(c.Location, "Unknown"))
	fmt.Fprintf(&b, "- Rating: %s stars (%d reviews)\n", ratingOr(c.Rating, "N/A"), intOr(c.ReviewsCount))
	fmt.Fprintf(&b, "- Certifications: %s\n", certsOr(c.Certifications, "None"))
	fmt.Fprintf(&b, "- Description: %s\n\n", truncate(stringOr(c.Description, "N/A"), 300))
	fmt.Fprintf(&b, "GENERATED INSIGHT:\n%s\n\n", insightText)
	b.WriteString(`EVALUATION CRITERIA:

1. **Accuracy & Relevance (1-5)**
   - Does it use correct contractor data (name, rating, certifications)?
   - Is all information factually accurate?
   - Is it relevant to B2B roofing materials sales?

2. **Actionability (1-5)**
   - Does it provide clear next steps for sales team?
   - Does it identify specific materials/services the contractor might need?
   - Does it suggest concrete engagement approaches?

3. **Personalization (1-5)**
   - Is it tailored to this contractor's specialization?
   - Does it reference unique strengths (rating, experience, certifications)?
   - Does it avoid generic template language?

4. **Conciseness (1-5)**
   - Is it appropriately brief (under 200 words)?
   - Does it avoid fluff and repetition?
   - Is it scannable for busy salespeople?

Return your evaluation as JSON with this exact structure:
{
    "accuracy": <score 1-5>,
    "actionability": <score 1-5>,
    "personalization": <score 1-5>,
    "conciseness": <score 1-5>,
    "feedback": "<1-2 sentence summary of strengths and weaknesses>"
}`)
	return b.String()
}

func stringOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func ratingOr(v *float64, fallback string) string {
	if v == nil {
		return fallback
	}
	return fmt.Sprintf("%.1f", *v)
}

func intOr(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func certsOr(certs []string, fallback string) string {
	if len(certs) == 0 {
		return fallback
	}
	return strings.Join(certs, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var (
	_ refresh.InsightGenerator = (*Client)(nil)
	_ refresh.InsightEvaluator = (*Client)(nil)
)
