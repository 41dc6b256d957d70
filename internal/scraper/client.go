// Package scraper speaks JSON to the external scraping worker. The worker owns
// the browser session; this client only posts search parameters and decodes
// the observed records.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/octobees/contractor-intel/internal/config"
	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/refresh"
)

// Client implements refresh.ListingFetcher against the worker's HTTP API.
// Detail-page fetches go through a token bucket so the worker's session is
// never hammered; listing fetches are one request per pass and stay unlimited.
type Client struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient builds a worker client. A nil http.Client gets a sensible timeout;
// listing and profile scrapes are slow on the worker side, so it is generous.
func NewClient(client *http.Client, baseURL string, detailLimit config.RateLimitConfig, logger *zap.Logger) *Client {
	if baseURL == "" {
		panic("baseURL must not be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	burst := 1
	if detailLimit.Requests > 0 && detailLimit.Interval > 0 {
		limit = rate.Every(detailLimit.Interval / time.Duration(detailLimit.Requests))
		burst = detailLimit.Requests
	}

	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

type listingRequest struct {
	Zipcode    string `json:"zipcode"`
	Distance   int    `json:"distance"`
	MaxResults int    `json:"max_results,omitempty"`
}

type listingResponse struct {
	Listings []entity.Listing `json:"listings"`
}

// FetchListing asks the worker for one search-results pass.
func (c *Client) FetchListing(ctx context.Context, query refresh.SearchQuery) ([]entity.Listing, error) {
	payload := listingRequest{
		Zipcode:    query.Zipcode,
		Distance:   query.Distance,
		MaxResults: query.MaxResults,
	}

	var result listingResponse
	if err := c.postJSON(ctx, "/scrape/listing", payload, &result); err != nil {
		return nil, err
	}

	c.logger.Debug("listing fetched",
		zap.String("zipcode", query.Zipcode),
		zap.Int("count", len(result.Listings)))
	return result.Listings, nil
}

type profileRequest struct {
	ProfileURL string `json:"profile_url"`
}

// FetchProfileDetail asks the worker for one profile page. The call blocks on
// the token bucket first, so callers can loop over records freely.
func (c *Client) FetchProfileDetail(ctx context.Context, profileURL string) (*entity.ProfileDetail, error) {
	if profileURL == "" {
		return nil, fmt.Errorf("profile URL must not be empty")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	var result entity.ProfileDetail
	if err := c.postJSON(ctx, "/scrape/profile", profileRequest{ProfileURL: profileURL}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// postJSON posts the payload and decodes the worker's {data, error} envelope
// into out.
func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("worker error: %s", extractWorkerError(resp.Body))
	}

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && err != io.EOF {
		return fmt.Errorf("could not decode worker response: %w", err)
	}
	if envelope.Error != "" {
		return fmt.Errorf("worker error: %s", envelope.Error)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("could not decode worker data: %w", err)
	}
	return nil
}

// extractWorkerError pulls a human-readable message out of a non-2xx body.
func extractWorkerError(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "unknown worker error"
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(raw))
}

var _ refresh.ListingFetcher = (*Client)(nil)
