package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/octobees/contractor-intel/internal/config"
	"github.com/octobees/contractor-intel/internal/refresh"
)

func TestFetchListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scrape/listing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req["zipcode"] != "10013" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"listings": []map[string]any{
					{
						"name":          "Matute Roofing",
						"phone":         "(212) 555-0100",
						"city":          "New York",
						"rating":        4.8,
						"reviews_count": 120,
						"profile_url":   "https://example.com/contractors/matute-roofing-1113654",
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, config.RateLimitConfig{}, nil)
	listings, err := client.FetchListing(context.Background(), refresh.SearchQuery{Zipcode: "10013", Distance: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	l := listings[0]
	if l.Name != "Matute Roofing" || l.ProfileURL == "" {
		t.Fatalf("unexpected listing: %+v", l)
	}
	if l.Rating == nil || *l.Rating != 4.8 {
		t.Fatalf("unexpected rating: %+v", l.Rating)
	}
}

func TestFetchListing_WorkerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"error": "session expired"})
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, config.RateLimitConfig{}, nil)
	if _, err := client.FetchListing(context.Background(), refresh.SearchQuery{Zipcode: "10013"}); err == nil {
		t.Fatalf("expected worker error to propagate")
	}
}

func TestFetchListing_EnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "zipcode not recognised"})
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, config.RateLimitConfig{}, nil)
	if _, err := client.FetchListing(context.Background(), refresh.SearchQuery{Zipcode: "00000"}); err == nil {
		t.Fatalf("expected envelope error to propagate")
	}
}

func TestFetchProfileDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scrape/profile" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"description":    "Full-service roofing.",
				"certifications": []string{"GAF Master Elite"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, config.RateLimitConfig{}, nil)
	detail, err := client.FetchProfileDetail(context.Background(), "https://example.com/contractors/matute-roofing-1113654")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Description == nil || *detail.Description != "Full-service roofing." {
		t.Fatalf("unexpected description: %+v", detail.Description)
	}
	if len(detail.Certifications) != 1 {
		t.Fatalf("unexpected certifications: %v", detail.Certifications)
	}
}

func TestFetchProfileDetail_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	}))
	defer server.Close()

	// 2 requests per second with burst 2: the third call must block for about
	// half a second.
	client := NewClient(server.Client(), server.URL,
		config.RateLimitConfig{Requests: 2, Interval: time.Second}, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.FetchProfileDetail(context.Background(), "https://example.com/contractors/x-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("expected third call to be throttled, took %v", elapsed)
	}
}

func TestFetchProfileDetail_EmptyURL(t *testing.T) {
	client := NewClient(&http.Client{}, "http://worker", config.RateLimitConfig{}, nil)
	if _, err := client.FetchProfileDetail(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}
