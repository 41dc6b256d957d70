package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/contractor-intel/internal/entity"
)

var (
	// ErrRunNotFound is returned when no scrape run matches the id.
	ErrRunNotFound = errors.New("scrape run not found")
	// ErrRunNotRunning guards terminal-state immutability: completed and
	// failed runs accept no further transitions.
	ErrRunNotRunning = errors.New("scrape run is not in running state")
)

// RunTotals carries the aggregate counters written on completion.
type RunTotals struct {
	Found   int
	New     int
	Updated int
}

// RunsRepository tracks the lifecycle of scrape runs.
type RunsRepository interface {
	Start(ctx context.Context, zipcode string, distance int) (*entity.ScrapeRun, error)
	Complete(ctx context.Context, id uuid.UUID, totals RunTotals) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ScrapeRun, error)
	List(ctx context.Context, limit int) ([]entity.ScrapeRun, error)
}

// PGXRunsRepository implements RunsRepository with pgx.
type PGXRunsRepository struct {
	pool pgxPool
}

// NewPGXRunsRepository instantiates a runs repository.
func NewPGXRunsRepository(pool *pgxpool.Pool) *PGXRunsRepository {
	return &PGXRunsRepository{pool: pool}
}

const runColumns = `
	id, zipcode, distance, contractors_found, contractors_new,
	contractors_updated, started_at, completed_at, status, error_message`

// Start persists a new run in running state immediately, so a crash mid-run
// stays observable.
func (r *PGXRunsRepository) Start(ctx context.Context, zipcode string, distance int) (*entity.ScrapeRun, error) {
	if zipcode == "" {
		return nil, fmt.Errorf("zipcode must not be empty")
	}

	run := entity.ScrapeRun{
		ID:       uuid.New(),
		Zipcode:  zipcode,
		Distance: distance,
		Status:   entity.RunStatusRunning,
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (id, zipcode, distance, started_at, status)
		VALUES ($1, $2, $3, NOW(), $4)
		RETURNING started_at`,
		run.ID, run.Zipcode, run.Distance, run.Status)
	if err := row.Scan(&run.StartedAt); err != nil {
		return nil, fmt.Errorf("start scrape run: %w", err)
	}

	return &run, nil
}

// Complete moves a running run to completed and writes the aggregates.
func (r *PGXRunsRepository) Complete(ctx context.Context, id uuid.UUID, totals RunTotals) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			contractors_found = $2,
			contractors_new = $3,
			contractors_updated = $4,
			completed_at = NOW(),
			status = $5
		WHERE id = $1 AND status = $6`,
		id, totals.Found, totals.New, totals.Updated,
		entity.RunStatusCompleted, entity.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("complete scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// Fail moves a running run to failed, capturing the error text.
func (r *PGXRunsRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			completed_at = NOW(),
			status = $2,
			error_message = $3
		WHERE id = $1 AND status = $4`,
		id, entity.RunStatusFailed, message, entity.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("fail scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotRunning
	}
	return nil
}

// Get fetches a single run by id.
func (r *PGXRunsRepository) Get(ctx context.Context, id uuid.UUID) (*entity.ScrapeRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+runColumns+` FROM scrape_runs WHERE id = $1`, id)
	return scanRun(row)
}

// List returns the most recent runs, newest first.
func (r *PGXRunsRepository) List(ctx context.Context, limit int) ([]entity.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `SELECT`+runColumns+` FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []entity.ScrapeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrape runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*entity.ScrapeRun, error) {
	var (
		run          entity.ScrapeRun
		distance     sql.NullInt64
		found        sql.NullInt64
		newCount     sql.NullInt64
		updated      sql.NullInt64
		completedAt  sql.NullTime
		status       string
		errorMessage sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.Zipcode,
		&distance,
		&found,
		&newCount,
		&updated,
		&run.StartedAt,
		&completedAt,
		&status,
		&errorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("scan scrape run: %w", err)
	}

	run.Status = entity.RunStatus(status)
	if distance.Valid {
		run.Distance = int(distance.Int64)
	}
	run.ContractorsFound = nullIntToPtr(found)
	run.ContractorsNew = nullIntToPtr(newCount)
	run.ContractorsUpd = nullIntToPtr(updated)
	if completedAt.Valid {
		ts := completedAt.Time
		run.CompletedAt = &ts
	}
	run.ErrorMessage = nullStringToPtr(errorMessage)

	return &run, nil
}

func nullIntToPtr(value sql.NullInt64) *int {
	if value.Valid {
		cast := int(value.Int64)
		return &cast
	}
	return nil
}
