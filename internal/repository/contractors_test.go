package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/octobees/contractor-intel/internal/entity"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

type stubContractorRows struct {
	called bool
}

func (s *stubContractorRows) Close()                                       {}
func (s *stubContractorRows) Err() error                                   { return nil }
func (s *stubContractorRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (s *stubContractorRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (s *stubContractorRows) Next() bool {
	if s.called {
		return false
	}
	s.called = true
	return true
}

func (s *stubContractorRows) Scan(dest ...any) error {
	if !s.called {
		return errors.New("scan called before next")
	}
	now := time.Now()

	*dest[0].(*int64) = 7
	*dest[1].(*sql.NullString) = sql.NullString{String: "1113654", Valid: true}
	*dest[2].(*string) = "Matute Roofing"
	*dest[3].(*sql.NullString) = sql.NullString{String: "+1 (212) 555-0100", Valid: true}
	*dest[4].(*sql.NullString) = sql.NullString{String: "New York", Valid: true}
	*dest[5].(*sql.NullFloat64) = sql.NullFloat64{Float64: 3.2, Valid: true}
	*dest[6].(*sql.NullFloat64) = sql.NullFloat64{Float64: 4.8, Valid: true}
	*dest[7].(*sql.NullInt64) = sql.NullInt64{Int64: 120, Valid: true}
	*dest[8].(*string) = "https://example.com/contractors/matute-roofing-1113654"
	*dest[9].(*sql.NullString) = sql.NullString{String: "Full-service roofing.", Valid: true}
	*dest[10].(*[]byte) = []byte(`["GAF Master Elite"]`)
	*dest[11].(*sql.NullString) = sql.NullString{String: "Strong residential lead.", Valid: true}
	*dest[12].(*sql.NullFloat64) = sql.NullFloat64{Float64: 4.0, Valid: true}
	*dest[13].(*sql.NullFloat64) = sql.NullFloat64{Float64: 4.5, Valid: true}
	*dest[14].(*sql.NullFloat64) = sql.NullFloat64{Float64: 3.5, Valid: true}
	*dest[15].(*sql.NullFloat64) = sql.NullFloat64{Float64: 5.0, Valid: true}
	*dest[16].(*sql.NullFloat64) = sql.NullFloat64{Float64: 4.2, Valid: true}
	*dest[17].(*sql.NullString) = sql.NullString{String: "Concise and specific.", Valid: true}
	*dest[18].(*sql.NullTime) = sql.NullTime{Time: now, Valid: true}
	*dest[19].(*sql.NullString) = sql.NullString{String: "abc123", Valid: true}
	*dest[20].(*time.Time) = now
	*dest[21].(*time.Time) = now
	*dest[22].(*time.Time) = now
	return nil
}

func (s *stubContractorRows) Values() ([]any, error) { return nil, nil }
func (s *stubContractorRows) RawValues() [][]byte    { return nil }
func (s *stubContractorRows) Conn() *pgx.Conn        { return nil }

func TestScanContractors(t *testing.T) {
	rows, err := scanContractors(&stubContractorRows{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 contractor, got %d", len(rows))
	}

	c := rows[0]
	if c.ID != 7 || c.Name != "Matute Roofing" {
		t.Fatalf("unexpected contractor: %+v", c)
	}
	if c.ExternalID == nil || *c.ExternalID != "1113654" {
		t.Fatalf("expected external id set, got %+v", c.ExternalID)
	}
	if c.Phone == nil || *c.Phone != "+1 (212) 555-0100" {
		t.Fatalf("unexpected phone: %+v", c.Phone)
	}
	if len(c.Certifications) != 1 || c.Certifications[0] != "GAF Master Elite" {
		t.Fatalf("unexpected certifications: %v", c.Certifications)
	}
	if c.Evaluation == nil || c.Evaluation.Overall != 4.2 || c.Evaluation.EvaluatedAt == nil {
		t.Fatalf("expected evaluation populated, got %+v", c.Evaluation)
	}
	if c.ContentHash == nil || *c.ContentHash != "abc123" {
		t.Fatalf("unexpected content hash: %+v", c.ContentHash)
	}
}

func TestUpsert_RequiresProfileURL(t *testing.T) {
	repo := &PGXContractorsRepository{}
	if _, _, err := repo.Upsert(context.Background(), entity.Listing{Name: "No URL Roofing"}); err == nil {
		t.Fatalf("expected error for missing profile URL")
	}
}

func TestBatchUpsert_Empty(t *testing.T) {
	repo := NewPGXContractorsRepository(nil, nil)
	res, err := repo.BatchUpsert(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 0 || res.New != 0 || res.Failed != 0 {
		t.Fatalf("expected zero summary, got %+v", res)
	}
}

func TestPrepareListing(t *testing.T) {
	prep, err := prepareListing(entity.Listing{
		Name:           "Matute Roofing",
		Phone:          strPtr("(212) 555-0100"),
		City:           strPtr("New York"),
		Rating:         floatPtr(4.8),
		ReviewsCount:   intPtr(120),
		ProfileURL:     "https://example.com/contractors/matute-roofing-1113654",
		Certifications: []string{"Certifications & Awards\nGAF Master Elite\nGAF Master Elite"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prep.Phone == nil || *prep.Phone != "+1 (212) 555-0100" {
		t.Fatalf("expected normalised phone, got %+v", prep.Phone)
	}
	if len(prep.Certifications) != 1 || prep.Certifications[0] != "GAF Master Elite" {
		t.Fatalf("expected cleaned certifications, got %v", prep.Certifications)
	}
	if prep.ExternalID == nil || *prep.ExternalID != "1113654" {
		t.Fatalf("expected numeric external id, got %+v", prep.ExternalID)
	}
	if prep.Hash == "" {
		t.Fatalf("expected content hash")
	}
}

func TestPrepareListing_IdempotentHash(t *testing.T) {
	listing := entity.Listing{
		Name:       "Matute Roofing",
		Phone:      strPtr("212.555.0100"),
		ProfileURL: "https://example.com/contractors/matute-roofing-1113654",
	}

	a, err := prepareListing(listing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := prepareListing(listing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Hash != b.Hash {
		t.Fatalf("hash must be stable for identical input: %s vs %s", a.Hash, b.Hash)
	}

	// Differently formatted but equivalent phones normalise to the same hash.
	listing.Phone = strPtr("(212) 555-0100")
	c, err := prepareListing(listing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Hash != a.Hash {
		t.Fatalf("equivalent phone formats must hash identically")
	}
}

func TestPrepareListing_MissingProfileURL(t *testing.T) {
	if _, err := prepareListing(entity.Listing{Name: "X"}); err == nil {
		t.Fatalf("expected error for missing profile URL")
	}
}

func TestExtractExternalID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/contractors/matute-roofing-1113654", "1113654"},
		{"https://example.com/contractors/matute-roofing-1113654/", "1113654"},
		{"https://example.com/contractors/no-numeric-suffix", "https://example.com/contractors/no-numeric-suffix"},
		{"https://example.com/plain", "https://example.com/plain"},
	}
	for _, tc := range cases {
		got := extractExternalID(tc.url)
		if got == nil || *got != tc.want {
			t.Fatalf("extractExternalID(%q) = %v, want %q", tc.url, got, tc.want)
		}
	}
}
