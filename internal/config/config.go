package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// Config aggregates application-wide configuration values.
type Config struct {
	DatabaseURL      string
	Port             string
	LogLevel         string
	ScraperBaseURL   string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	InsightModel     string
	JudgeModel       string
	EvaluateInsights bool
	Zipcodes         []string
	RadiusMiles      int
	MaxResults       int
	RefreshCron      string
	RateLimitRefresh RateLimitConfig
	RateLimitDetail  RateLimitConfig
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ScraperBaseURL:   getEnv("SCRAPER_BASE_URL", "http://scraper:9000"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		InsightModel:     getEnv("INSIGHT_MODEL", "gpt-4o-mini"),
		JudgeModel:       getEnv("JUDGE_MODEL", "gpt-4o"),
		EvaluateInsights: getEnv("EVALUATE_INSIGHTS", "false") == "true",
		Zipcodes:         splitList(getEnv("REFRESH_ZIPCODES", "10013")),
		RefreshCron:      os.Getenv("REFRESH_CRON"),
	}

	radius, err := strconv.Atoi(getEnv("REFRESH_RADIUS_MILES", "25"))
	if err != nil || radius <= 0 {
		return nil, fmt.Errorf("invalid REFRESH_RADIUS_MILES value: %q", getEnv("REFRESH_RADIUS_MILES", "25"))
	}
	cfg.RadiusMiles = radius

	maxResults, err := strconv.Atoi(getEnv("REFRESH_MAX_RESULTS", "0"))
	if err != nil || maxResults < 0 {
		return nil, fmt.Errorf("invalid REFRESH_MAX_RESULTS value: %q", getEnv("REFRESH_MAX_RESULTS", "0"))
	}
	cfg.MaxResults = maxResults

	refreshRL, err := parseRateLimit(getEnv("RATE_LIMIT_REFRESH", "2/min"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REFRESH value: %w", err)
	}
	cfg.RateLimitRefresh = refreshRL

	detailRL, err := parseRateLimit(getEnv("RATE_LIMIT_DETAIL_FETCH", "30/min"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_DETAIL_FETCH value: %w", err)
	}
	cfg.RateLimitDetail = detailRL

	return cfg, nil
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, fmt.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, fmt.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	default:
		return RateLimitConfig{}, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
