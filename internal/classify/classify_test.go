package classify

import (
	"strings"
	"testing"

	"github.com/octobees/contractor-intel/internal/entity"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func storedContractor() *entity.Contractor {
	return &entity.Contractor{
		ID:           1,
		Name:         "Matute Roofing",
		Phone:        strPtr("+1 (212) 555-0100"),
		Rating:       floatPtr(4.0),
		ReviewsCount: intPtr(100),
		ProfileURL:   "https://example.com/contractors/matute-roofing-1113654",
	}
}

func observation() entity.Listing {
	return entity.Listing{
		Name:         "Matute Roofing",
		Phone:        strPtr("(212) 555-0100"),
		Rating:       floatPtr(4.0),
		ReviewsCount: intPtr(100),
		ProfileURL:   "https://example.com/contractors/matute-roofing-1113654",
	}
}

func TestClassify_NewRecord(t *testing.T) {
	d := Classify(nil, observation())
	if d.Outcome != OutcomeNew {
		t.Fatalf("expected new, got %s (%s)", d.Outcome, d.Reason)
	}
}

func TestClassify_PhoneChange(t *testing.T) {
	obs := observation()
	obs.Phone = strPtr("(973) 555-0199")
	d := Classify(storedContractor(), obs)
	if d.Outcome != OutcomeRescrapeFull || d.Reason != "phone changed" {
		t.Fatalf("expected phone-change rescrape, got %+v", d)
	}

	// Raw observed phone equal to the stored canonical form after
	// normalisation must not trigger.
	d = Classify(storedContractor(), observation())
	if d.Outcome != OutcomeMetadataOnly {
		t.Fatalf("expected metadata-only for same phone, got %+v", d)
	}
}

func TestClassify_ProfileURLChange(t *testing.T) {
	obs := observation()
	obs.ProfileURL = "https://example.com/contractors/matute-roofing-9999999"
	d := Classify(storedContractor(), obs)
	if d.Outcome != OutcomeRescrapeFull || d.Reason != "profile URL changed" {
		t.Fatalf("expected URL-change rescrape, got %+v", d)
	}
}

func TestClassify_RatingBoundary(t *testing.T) {
	// 4.0 -> 4.3 is exactly 0.3 and must not trigger, float noise or not.
	obs := observation()
	obs.Rating = floatPtr(4.3)
	if d := Classify(storedContractor(), obs); d.Outcome != OutcomeMetadataOnly {
		t.Fatalf("delta 0.30 must not rescrape, got %+v", d)
	}

	obs.Rating = floatPtr(4.31)
	d := Classify(storedContractor(), obs)
	if d.Outcome != OutcomeRescrapeFull {
		t.Fatalf("delta 0.31 must rescrape, got %+v", d)
	}
	if !strings.Contains(d.Reason, "0.31") || !strings.Contains(d.Reason, "4.0") {
		t.Fatalf("reason should carry delta and before/after values: %q", d.Reason)
	}

	// Direction does not matter.
	obs.Rating = floatPtr(3.6)
	if d := Classify(storedContractor(), obs); d.Outcome != OutcomeRescrapeFull {
		t.Fatalf("delta -0.4 must rescrape, got %+v", d)
	}
}

func TestClassify_ReviewsBoundary(t *testing.T) {
	cases := []struct {
		reviews int
		want    Outcome
	}{
		{109, OutcomeMetadataOnly}, // +9
		{110, OutcomeRescrapeFull}, // +10
		{95, OutcomeMetadataOnly},  // -5
		{94, OutcomeRescrapeFull},  // -6
	}
	for _, tc := range cases {
		obs := observation()
		obs.ReviewsCount = intPtr(tc.reviews)
		if d := Classify(storedContractor(), obs); d.Outcome != tc.want {
			t.Fatalf("reviews %d: expected %s, got %+v", tc.reviews, tc.want, d)
		}
	}
}

func TestClassify_MissingOptionalFields(t *testing.T) {
	// A sparse observation must never panic and must not trigger any rule.
	obs := entity.Listing{
		Name:       "Matute Roofing",
		ProfileURL: "https://example.com/contractors/matute-roofing-1113654",
	}
	d := Classify(storedContractor(), obs)
	if d.Outcome != OutcomeMetadataOnly || d.Reason != "no significant changes" {
		t.Fatalf("expected metadata-only for sparse observation, got %+v", d)
	}

	// Stored record missing rating/reviews likewise skips those rules.
	stored := storedContractor()
	stored.Rating = nil
	stored.ReviewsCount = nil
	full := observation()
	full.Rating = floatPtr(1.0)
	full.ReviewsCount = intPtr(500)
	if d := Classify(stored, full); d.Outcome != OutcomeMetadataOnly {
		t.Fatalf("expected metadata-only when stored side is sparse, got %+v", d)
	}
}
