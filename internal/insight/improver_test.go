package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/octobees/contractor-intel/internal/entity"
)

func testEvaluation(acc, act, pers, conc, overall float64) *entity.InsightEvaluation {
	now := time.Now().UTC()
	return &entity.InsightEvaluation{
		Accuracy:        acc,
		Actionability:   act,
		Personalization: pers,
		Conciseness:     conc,
		Overall:         overall,
		Feedback:        strPtr("Too generic."),
		EvaluatedAt:     &now,
	}
}

func TestImproveInsight(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(chatResponse("Much sharper insight."))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "k", "gpt-4o-mini", "gpt-4o", nil)
	text, err := client.ImproveInsight(context.Background(), testContractor(),
		"Bland old insight.", "Too generic.", "increase personalization")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Much sharper insight." {
		t.Fatalf("unexpected insight: %q", text)
	}

	if captured["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %v", captured["model"])
	}
	if captured["temperature"] != 0.7 {
		t.Fatalf("unexpected temperature: %v", captured["temperature"])
	}
	if captured["max_tokens"] != float64(250) {
		t.Fatalf("unexpected max_tokens: %v", captured["max_tokens"])
	}

	user := captured["messages"].([]any)[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "PREVIOUS INSIGHT (LOW QUALITY):\nBland old insight.") {
		t.Fatalf("prompt missing previous insight: %s", user)
	}
	if !strings.Contains(user, "EVALUATION FEEDBACK:\nToo generic.") {
		t.Fatalf("prompt missing feedback: %s", user)
	}
	if !strings.Contains(user, "You need to increase personalization.") {
		t.Fatalf("prompt missing improvement areas: %s", user)
	}
}

func TestIdentifyWeaknesses_BelowCutoff(t *testing.T) {
	eval := testEvaluation(3.0, 4.0, 2.5, 4.5, 3.4)
	got := IdentifyWeaknesses(eval)

	if !strings.Contains(got, "be more accurate and fact-based") {
		t.Fatalf("expected accuracy weakness, got %q", got)
	}
	if !strings.Contains(got, "more personalized") {
		t.Fatalf("expected personalization weakness, got %q", got)
	}
	if strings.Contains(got, "clearer action items") || strings.Contains(got, "more concise") {
		t.Fatalf("passing dimensions must not be listed: %q", got)
	}
}

func TestIdentifyWeaknesses_AllPassing(t *testing.T) {
	// Every dimension clears 3.5, so only the single lowest one is targeted.
	eval := testEvaluation(4.0, 3.6, 4.5, 4.0, 3.9)
	if got := IdentifyWeaknesses(eval); got != "add more actionable insights" {
		t.Fatalf("expected lowest-dimension fallback, got %q", got)
	}
}

func TestIdentifyWeaknesses_NilEvaluation(t *testing.T) {
	if got := IdentifyWeaknesses(nil); got != "improve overall quality" {
		t.Fatalf("unexpected fallback: %q", got)
	}
}

type fakeImproverStore struct {
	candidates []entity.Contractor
	listErr    error
	attachErr  error

	attached map[string]string
}

func (f *fakeImproverStore) ListLowQualityEvaluations(_ context.Context, _ float64, _ int) ([]entity.Contractor, error) {
	return f.candidates, f.listErr
}

func (f *fakeImproverStore) AttachInsight(_ context.Context, profileURL, insight string, _ *entity.InsightEvaluation) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	if f.attached == nil {
		f.attached = map[string]string{}
	}
	f.attached[profileURL] = insight
	return nil
}

type fakeImproverClient struct {
	improveCalls int
	improveErr   error
	evalScores   []float64
	evalErr      error
	evalCalls    int
}

func (f *fakeImproverClient) ImproveInsight(_ context.Context, _ *entity.Contractor, _, _, _ string) (string, error) {
	f.improveCalls++
	if f.improveErr != nil {
		return "", f.improveErr
	}
	return "Regenerated insight.", nil
}

func (f *fakeImproverClient) EvaluateInsight(_ context.Context, _ *entity.Contractor, _ string) (*entity.InsightEvaluation, error) {
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	score := f.evalScores[f.evalCalls]
	f.evalCalls++
	return testEvaluation(score, score, score, score, score), nil
}

func lowQualityContractor(url string) entity.Contractor {
	c := *testContractor()
	c.ProfileURL = url
	c.Insight = strPtr("Bland old insight.")
	c.Evaluation = testEvaluation(3.0, 3.2, 3.1, 4.0, 3.2)
	return c
}

func TestImproverRun_FirstAttemptClears(t *testing.T) {
	store := &fakeImproverStore{candidates: []entity.Contractor{lowQualityContractor("https://example.com/a")}}
	client := &fakeImproverClient{evalScores: []float64{4.2}}

	result, err := NewImprover(store, client, 0, 0, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Examined != 1 || result.Improved != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.attached["https://example.com/a"] != "Regenerated insight." {
		t.Fatalf("improved insight must be persisted: %+v", store.attached)
	}
	if client.improveCalls != 1 {
		t.Fatalf("expected a single regeneration, got %d", client.improveCalls)
	}
}

func TestImproverRun_SecondAttemptClears(t *testing.T) {
	store := &fakeImproverStore{candidates: []entity.Contractor{lowQualityContractor("https://example.com/a")}}
	client := &fakeImproverClient{evalScores: []float64{3.5, 4.0}}

	result, err := NewImprover(store, client, 0, 0, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Improved != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.improveCalls != 2 {
		t.Fatalf("expected two regenerations, got %d", client.improveCalls)
	}
}

func TestImproverRun_AttemptsExhausted(t *testing.T) {
	store := &fakeImproverStore{candidates: []entity.Contractor{lowQualityContractor("https://example.com/a")}}
	client := &fakeImproverClient{evalScores: []float64{3.0, 3.2}}

	result, err := NewImprover(store, client, 0, 0, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Examined != 1 || result.Improved != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.improveCalls != 2 {
		t.Fatalf("attempts must stop at the cap, got %d", client.improveCalls)
	}
	if len(store.attached) != 0 {
		t.Fatalf("a still-failing insight must not be persisted: %+v", store.attached)
	}
}

func TestImproverRun_FaultIsolation(t *testing.T) {
	store := &fakeImproverStore{candidates: []entity.Contractor{
		lowQualityContractor("https://example.com/a"),
		func() entity.Contractor {
			c := lowQualityContractor("https://example.com/b")
			c.Insight = nil
			return c
		}(),
		lowQualityContractor("https://example.com/c"),
	}}
	client := &fakeImproverClient{evalScores: []float64{4.2, 4.2}}

	result, err := NewImprover(store, client, 0, 0, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Examined != 3 || result.Improved != 2 {
		t.Fatalf("insightless record must be skipped without aborting: %+v", result)
	}
}

func TestImproverRun_ListFailure(t *testing.T) {
	store := &fakeImproverStore{listErr: errors.New("db down")}
	client := &fakeImproverClient{}

	if _, err := NewImprover(store, client, 0, 0, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected list failure to propagate")
	}
}
