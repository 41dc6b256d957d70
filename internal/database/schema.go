package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the catalogue tables when they do not exist yet.
// contractors is keyed naturally by profile_url (unique), with a secondary
// unique key on external_id; scrape_runs is append-only, one row per pass.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contractors (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT UNIQUE,
		name TEXT NOT NULL,
		phone TEXT,
		location TEXT,
		distance NUMERIC(5,2),
		rating NUMERIC(2,1) CHECK (rating >= 0 AND rating <= 5),
		reviews_count INTEGER CHECK (reviews_count >= 0),
		profile_url TEXT UNIQUE NOT NULL,
		description TEXT,
		certifications JSONB,
		insight TEXT,
		eval_accuracy DOUBLE PRECISION,
		eval_actionability DOUBLE PRECISION,
		eval_personalization DOUBLE PRECISION,
		eval_conciseness DOUBLE PRECISION,
		eval_overall DOUBLE PRECISION,
		eval_feedback TEXT,
		eval_at TIMESTAMPTZ,
		content_hash TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contractors_rating_desc ON contractors (rating DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_contractors_location ON contractors (location)`,
	`CREATE INDEX IF NOT EXISTS idx_contractors_updated_at_desc ON contractors (updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id UUID PRIMARY KEY,
		zipcode TEXT NOT NULL,
		distance INTEGER,
		contractors_found INTEGER,
		contractors_new INTEGER,
		contractors_updated INTEGER,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_runs_started_at_desc ON scrape_runs (started_at DESC)`,
}

// EnsureSchema applies the DDL so the binaries are self-contained against a
// fresh database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
