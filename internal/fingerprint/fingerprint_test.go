package fingerprint

import (
	"testing"

	"github.com/octobees/contractor-intel/internal/entity"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func sampleListing() entity.Listing {
	return entity.Listing{
		Name:         "Matute Roofing",
		Phone:        strPtr("+1 (212) 555-0100"),
		City:         strPtr("New York"),
		Rating:       floatPtr(4.8),
		ReviewsCount: intPtr(120),
		Description:  strPtr("Full-service roofing contractor."),
		ProfileURL:   "https://example.com/contractors/matute-roofing-1113654",
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute(sampleListing())
	b := Compute(sampleListing())
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char hex digest, got %q", a)
	}
}

func TestCompute_DetectsFieldChange(t *testing.T) {
	base := Compute(sampleListing())

	changed := sampleListing()
	changed.Description = strPtr("Now also doing gutters.")
	if Compute(changed) == base {
		t.Fatalf("expected description change to alter hash")
	}

	changed = sampleListing()
	changed.ReviewsCount = intPtr(121)
	if Compute(changed) == base {
		t.Fatalf("expected reviews change to alter hash")
	}
}

func TestCompute_IgnoresExcludedFields(t *testing.T) {
	base := Compute(sampleListing())

	withCerts := sampleListing()
	withCerts.Certifications = []string{"GAF Master Elite"}
	if Compute(withCerts) != base {
		t.Fatalf("certifications must not participate in the hash")
	}

	otherURL := sampleListing()
	otherURL.ProfileURL = "https://example.com/contractors/other-42"
	if Compute(otherURL) != base {
		t.Fatalf("profile URL must not participate in the hash")
	}
}

func TestCompute_NilOptionalFields(t *testing.T) {
	minimal := entity.Listing{Name: "Bare Minimum Roofing", ProfileURL: "https://example.com/c/1"}
	a := Compute(minimal)
	b := Compute(minimal)
	if a != b || a == "" {
		t.Fatalf("expected stable hash for minimal listing, got %q / %q", a, b)
	}
}
