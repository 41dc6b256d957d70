package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/dto"
	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/fingerprint"
	"github.com/octobees/contractor-intel/internal/normalize"
)

var (
	// ErrContractorNotFound is returned when no row matches the profile URL.
	ErrContractorNotFound = errors.New("contractor not found")
	// ErrDuplicateProfileURL surfaces a unique-constraint race between two runs
	// inserting the same profile URL.
	ErrDuplicateProfileURL = errors.New("contractor profile URL already exists")
)

// UpsertOutcome reports what an upsert actually did to the stored row.
type UpsertOutcome string

const (
	UpsertInserted  UpsertOutcome = "inserted"
	UpsertUpdated   UpsertOutcome = "updated"
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// BatchResult summarises a batch upsert. Updated means the store detected a
// real field change, not merely that the row was looked up.
type BatchResult struct {
	Total     int
	New       int
	Updated   int
	Unchanged int
	Failed    int
}

// MetadataResult summarises a metadata-only pass.
type MetadataResult struct {
	Updated   int
	Unchanged int
	Failed    int
}

// CatalogStats aggregates the dashboard counters over the whole catalogue.
type CatalogStats struct {
	TotalContractors int64               `json:"total_contractors"`
	AverageRating    float64             `json:"average_rating"`
	TopContractors   []entity.Contractor `json:"top_contractors"`
}

// ContractorsRepository describes persistence operations for contractors.
type ContractorsRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Contractor, error)
	FindByProfileURL(ctx context.Context, profileURL string) (*entity.Contractor, error)
	Upsert(ctx context.Context, listing entity.Listing) (*entity.Contractor, UpsertOutcome, error)
	BatchUpsert(ctx context.Context, listings []entity.Listing) (BatchResult, error)
	UpdateMetadataOnly(ctx context.Context, listings []entity.Listing) (MetadataResult, error)
	AttachInsight(ctx context.Context, profileURL, insight string, eval *entity.InsightEvaluation) error
	List(ctx context.Context, filter dto.ListFilter) ([]entity.Contractor, error)
	ListLowQualityEvaluations(ctx context.Context, threshold float64, limit int) ([]entity.Contractor, error)
	Stats(ctx context.Context) (CatalogStats, error)
	Locations(ctx context.Context) ([]string, error)
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ pgxPool = (*pgxpool.Pool)(nil)

// PGXContractorsRepository implements ContractorsRepository using pgx.
type PGXContractorsRepository struct {
	pool   pgxPool
	logger *zap.Logger
}

// NewPGXContractorsRepository wires a pgx backed repository.
func NewPGXContractorsRepository(pool *pgxpool.Pool, logger *zap.Logger) *PGXContractorsRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGXContractorsRepository{pool: pool, logger: logger}
}

const contractorColumns = `
	id, external_id, name, phone, location, distance, rating, reviews_count,
	profile_url, description, certifications, insight,
	eval_accuracy, eval_actionability, eval_personalization, eval_conciseness,
	eval_overall, eval_feedback, eval_at,
	content_hash, created_at, updated_at, last_scraped_at`

// FindByID fetches a contractor by its surrogate id.
func (r *PGXContractorsRepository) FindByID(ctx context.Context, id int64) (*entity.Contractor, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+contractorColumns+` FROM contractors WHERE id = $1`, id)
	return scanContractor(row)
}

// FindByProfileURL fetches a contractor by its natural key.
func (r *PGXContractorsRepository) FindByProfileURL(ctx context.Context, profileURL string) (*entity.Contractor, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+contractorColumns+` FROM contractors WHERE profile_url = $1`, profileURL)
	return scanContractor(row)
}

// Upsert inserts or updates one contractor inside a scoped transaction.
// The incoming listing is normalised and fingerprinted first; when the hash
// matches the stored one the row is left completely untouched.
func (r *PGXContractorsRepository) Upsert(ctx context.Context, listing entity.Listing) (*entity.Contractor, UpsertOutcome, error) {
	prep, err := prepareListing(listing)
	if err != nil {
		return nil, "", err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT`+contractorColumns+` FROM contractors WHERE profile_url = $1 FOR UPDATE`, prep.ProfileURL)
	existing, err := scanContractor(row)
	if err != nil && !errors.Is(err, ErrContractorNotFound) {
		return nil, "", err
	}

	if existing == nil {
		stored, err := r.insertContractor(ctx, tx, prep)
		if err != nil {
			return nil, "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, "", fmt.Errorf("commit insert: %w", err)
		}
		return stored, UpsertInserted, nil
	}

	if existing.ContentHash != nil && *existing.ContentHash == prep.Hash {
		if err := tx.Commit(ctx); err != nil {
			return nil, "", fmt.Errorf("commit unchanged lookup: %w", err)
		}
		return existing, UpsertUnchanged, nil
	}

	stored, err := r.updateContractor(ctx, tx, prep)
	if err != nil {
		return nil, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit update: %w", err)
	}
	return stored, UpsertUpdated, nil
}

func (r *PGXContractorsRepository) insertContractor(ctx context.Context, tx pgx.Tx, prep preparedListing) (*entity.Contractor, error) {
	certsJSON, err := json.Marshal(prep.Certifications)
	if err != nil {
		return nil, fmt.Errorf("marshal certifications: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO contractors (
			external_id, name, phone, location, distance, rating, reviews_count,
			profile_url, description, certifications, content_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
		RETURNING`+contractorColumns,
		prep.ExternalID,
		prep.Name,
		prep.Phone,
		prep.City,
		prep.Distance,
		prep.Rating,
		prep.ReviewsCount,
		prep.ProfileURL,
		prep.Description,
		string(certsJSON),
		prep.Hash,
	)

	stored, err := scanContractor(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("insert contractor %q: %w", prep.Name, ErrDuplicateProfileURL)
		}
		return nil, fmt.Errorf("insert contractor %q: %w", prep.Name, err)
	}
	return stored, nil
}

func (r *PGXContractorsRepository) updateContractor(ctx context.Context, tx pgx.Tx, prep preparedListing) (*entity.Contractor, error) {
	certsJSON, err := json.Marshal(prep.Certifications)
	if err != nil {
		return nil, fmt.Errorf("marshal certifications: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE contractors SET
			external_id = $2,
			name = $3,
			phone = $4,
			location = $5,
			distance = $6,
			rating = $7,
			reviews_count = $8,
			description = $9,
			certifications = $10::jsonb,
			content_hash = $11,
			updated_at = NOW(),
			last_scraped_at = NOW()
		WHERE profile_url = $1
		RETURNING`+contractorColumns,
		prep.ProfileURL,
		prep.ExternalID,
		prep.Name,
		prep.Phone,
		prep.City,
		prep.Distance,
		prep.Rating,
		prep.ReviewsCount,
		prep.Description,
		string(certsJSON),
		prep.Hash,
	)

	stored, err := scanContractor(row)
	if err != nil {
		return nil, fmt.Errorf("update contractor %q: %w", prep.Name, err)
	}
	return stored, nil
}

// BatchUpsert applies Upsert to each listing independently. A failure on one
// record is logged and skipped; the rest of the batch continues.
func (r *PGXContractorsRepository) BatchUpsert(ctx context.Context, listings []entity.Listing) (BatchResult, error) {
	result := BatchResult{Total: len(listings)}

	for _, listing := range listings {
		_, outcome, err := r.Upsert(ctx, listing)
		if err != nil {
			result.Failed++
			r.logger.Error("batch upsert: record failed",
				zap.String("name", listing.Name),
				zap.String("profile_url", listing.ProfileURL),
				zap.Error(err))
			continue
		}

		switch outcome {
		case UpsertInserted:
			result.New++
		case UpsertUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	r.logger.Info("batch upsert complete",
		zap.Int("total", result.Total),
		zap.Int("new", result.New),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed))
	return result, nil
}

// UpdateMetadataOnly refreshes only rating, reviews count and distance for the
// given listings, bumping last_scraped_at and leaving content_hash untouched.
// A record counts as updated only when at least one of the three fields
// actually changed value.
func (r *PGXContractorsRepository) UpdateMetadataOnly(ctx context.Context, listings []entity.Listing) (MetadataResult, error) {
	var result MetadataResult

	for _, listing := range listings {
		if listing.ProfileURL == "" {
			continue
		}

		changed, err := r.updateMetadataRecord(ctx, listing)
		if err != nil {
			result.Failed++
			r.logger.Error("metadata update: record failed",
				zap.String("name", listing.Name),
				zap.String("profile_url", listing.ProfileURL),
				zap.Error(err))
			continue
		}

		if changed {
			result.Updated++
		} else {
			result.Unchanged++
		}
	}

	return result, nil
}

func (r *PGXContractorsRepository) updateMetadataRecord(ctx context.Context, listing entity.Listing) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin metadata tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT`+contractorColumns+` FROM contractors WHERE profile_url = $1 FOR UPDATE`, listing.ProfileURL)
	existing, err := scanContractor(row)
	if err != nil {
		return false, err
	}

	rating, reviews, distance := existing.Rating, existing.ReviewsCount, existing.Distance
	changed := false
	if listing.Rating != nil && !floatEq(existing.Rating, listing.Rating) {
		rating = listing.Rating
		changed = true
	}
	if listing.ReviewsCount != nil && !intEq(existing.ReviewsCount, listing.ReviewsCount) {
		reviews = listing.ReviewsCount
		changed = true
	}
	if listing.Distance != nil && !floatEq(existing.Distance, listing.Distance) {
		distance = listing.Distance
		changed = true
	}

	query := `UPDATE contractors SET rating = $2, reviews_count = $3, distance = $4, last_scraped_at = NOW() WHERE profile_url = $1`
	if changed {
		query = `UPDATE contractors SET rating = $2, reviews_count = $3, distance = $4, last_scraped_at = NOW(), updated_at = NOW() WHERE profile_url = $1`
	}
	if _, err := tx.Exec(ctx, query, listing.ProfileURL, rating, reviews, distance); err != nil {
		return false, fmt.Errorf("update metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit metadata update: %w", err)
	}
	return changed, nil
}

// AttachInsight stores a generated insight (and optional judge scores) on the
// contractor. The content hash deliberately excludes insights, so this never
// affects change detection.
func (r *PGXContractorsRepository) AttachInsight(ctx context.Context, profileURL, insight string, eval *entity.InsightEvaluation) error {
	var tag pgconn.CommandTag
	var err error

	if eval == nil {
		tag, err = r.pool.Exec(ctx,
			`UPDATE contractors SET insight = $2, updated_at = NOW() WHERE profile_url = $1`,
			profileURL, insight)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE contractors SET
				insight = $2,
				eval_accuracy = $3,
				eval_actionability = $4,
				eval_personalization = $5,
				eval_conciseness = $6,
				eval_overall = $7,
				eval_feedback = $8,
				eval_at = NOW(),
				updated_at = NOW()
			WHERE profile_url = $1`,
			profileURL, insight,
			eval.Accuracy, eval.Actionability, eval.Personalization, eval.Conciseness,
			eval.Overall, eval.Feedback)
	}
	if err != nil {
		return fmt.Errorf("attach insight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContractorNotFound
	}
	return nil
}

// List retrieves contractors matching the filter, sorted by rating by default.
func (r *PGXContractorsRepository) List(ctx context.Context, filter dto.ListFilter) ([]entity.Contractor, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT` + contractorColumns + ` FROM contractors`)

	var (
		clauses []string
		args    []any
		idx     = 1
	)

	if filter.Q != "" {
		pattern := fmt.Sprintf("%%%s%%", filter.Q)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", idx, idx+1))
		args = append(args, pattern, pattern)
		idx += 2
	}
	if filter.Location != "" {
		clauses = append(clauses, fmt.Sprintf("LOWER(location) = LOWER($%d)", idx))
		args = append(args, filter.Location)
		idx++
	}
	if filter.MinRating != nil {
		clauses = append(clauses, fmt.Sprintf("rating >= $%d", idx))
		args = append(args, *filter.MinRating)
		idx++
	}
	if filter.Phone != "" {
		clauses = append(clauses, fmt.Sprintf("phone = $%d", idx))
		args = append(args, filter.Phone)
		idx++
	}

	if len(clauses) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(clauses, " AND "))
	}

	orderClause := "rating DESC NULLS LAST, reviews_count DESC NULLS LAST, name ASC"
	if strings.EqualFold(filter.Sort, "recent") {
		orderClause = "updated_at DESC, rating DESC NULLS LAST, name ASC"
	}
	query.WriteString(" ORDER BY ")
	query.WriteString(orderClause)

	if filter.Limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	} else {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		perPage := filter.PerPage
		if perPage <= 0 {
			perPage = 20
		}
		if perPage > 100 {
			perPage = 100
		}
		offset := (page - 1) * perPage
		query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1))
		args = append(args, perPage, offset)
	}

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list contractors: %w", err)
	}
	defer rows.Close()

	return scanContractors(rows)
}

// ListLowQualityEvaluations returns contractors whose insight scored below the
// threshold, worst first, for the improvement pass.
func (r *PGXContractorsRepository) ListLowQualityEvaluations(ctx context.Context, threshold float64, limit int) ([]entity.Contractor, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+contractorColumns+`
		FROM contractors
		WHERE eval_overall IS NOT NULL AND eval_overall < $1 AND insight IS NOT NULL
		ORDER BY eval_overall ASC
		LIMIT $2`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("list low quality evaluations: %w", err)
	}
	defer rows.Close()

	return scanContractors(rows)
}

/// Stats aggregates the dashboard counters: catalogue size, average rating and
// the five-star contractors with the most reviews.
func (r *PGXContractorsRepository) Stats(ctx context.Context) (CatalogStats, error) {
	var stats CatalogStats

	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(ROUND(AVG(rating)::numeric, 2), 0)
		FROM contractors`)
	if err := row.Scan(&stats.TotalContractors, &stats.AverageRating); err != nil {
		return CatalogStats{}, fmt.Errorf("aggregate contractor stats: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+contractorColumns+`
		FROM contractors
		WHERE rating = 5.0
		ORDER BY reviews_count DESC NULLS LAST
		LIMIT 10`)
	if err != nil {
		return CatalogStats{}, fmt.Errorf("list top contractors: %w", err)
	}
	defer rows.Close()

	top, err := scanContractors(rows)
	if err != nil {
		return CatalogStats{}, err
	}
	stats.TopContractors = top

	return stats, nil
}

// Locations returns the distinct non-empty locations in the catalogue, sorted.
func (r *PGXContractorsRepository) Locations(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT location
		FROM contractors
		WHERE location IS NOT NULL AND location <> ''
		ORDER BY location ASC`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locations, nil
}

// preparedListing is a listing after normalisation, ready for persistence.
type preparedListing struct {
	entity.Listing
	ExternalID *string
	Hash       string
}

// prepareListing normalises phone and certifications, derives the external id
// and computes the content hash over the normalised fields.
func prepareListing(l entity.Listing) (preparedListing, error) {
	if l.ProfileURL == "" {
		return preparedListing{}, fmt.Errorf("profile_url is required")
	}

	if l.Phone != nil {
		cleaned := normalize.Phone(*l.Phone)
		l.Phone = &cleaned
	}
	l.Certifications = normalize.Certifications(l.Certifications)

	return preparedListing{
		Listing:    l,
		ExternalID: extractExternalID(l.ProfileURL),
		Hash:       fingerprint.Compute(l),
	}, nil
}

// extractExternalID pulls the trailing numeric suffix out of a profile URL,
// e.g. .../matute-roofing-1113654 -> 1113654. Falls back to the full URL when
// no such suffix exists.
func extractExternalID(profileURL string) *string {
	trimmed := strings.TrimRight(profileURL, "/")
	parts := strings.Split(trimmed, "/")
	last := parts[len(parts)-1]

	if i := strings.LastIndex(last, "-"); i >= 0 {
		candidate := last[i+1:]
		if candidate != "" && isDigits(candidate) {
			return &candidate
		}
	}
	return &profileURL
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func floatEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func scanContractor(row pgx.Row) (*entity.Contractor, error) {
	var (
		c            entity.Contractor
		externalID   sql.NullString
		phone        sql.NullString
		location     sql.NullString
		distance     sql.NullFloat64
		rating       sql.NullFloat64
		reviews      sql.NullInt64
		description  sql.NullString
		certsJSON    []byte
		insight      sql.NullString
		evalAccuracy sql.NullFloat64
		evalAction   sql.NullFloat64
		evalPerson   sql.NullFloat64
		evalConcise  sql.NullFloat64
		evalOverall  sql.NullFloat64
		evalFeedback sql.NullString
		evalAt       sql.NullTime
		contentHash  sql.NullString
	)

	err := row.Scan(
		&c.ID,
		&externalID,
		&c.Name,
		&phone,
		&location,
		&distance,
		&rating,
		&reviews,
		&c.ProfileURL,
		&description,
		&certsJSON,
		&insight,
		&evalAccuracy,
		&evalAction,
		&evalPerson,
		&evalConcise,
		&evalOverall,
		&evalFeedback,
		&evalAt,
		&contentHash,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.LastScrapedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractorNotFound
		}
		return nil, fmt.Errorf("scan contractor: %w", err)
	}

	c.ExternalID = nullStringToPtr(externalID)
	c.Phone = nullStringToPtr(phone)
	c.Location = nullStringToPtr(location)
	c.Description = nullStringToPtr(description)
	c.Insight = nullStringToPtr(insight)
	c.ContentHash = nullStringToPtr(contentHash)
	if distance.Valid {
		val := distance.Float64
		c.Distance = &val
	}
	if rating.Valid {
		val := rating.Float64
		c.Rating = &val
	}
	if reviews.Valid {
		cast := int(reviews.Int64)
		c.ReviewsCount = &cast
	}
	if len(certsJSON) > 0 {
		if err := json.Unmarshal(certsJSON, &c.Certifications); err != nil {
			return nil, fmt.Errorf("unmarshal certifications: %w", err)
		}
	}
	if evalOverall.Valid {
		eval := entity.InsightEvaluation{
			Accuracy:        evalAccuracy.Float64,
			Actionability:   evalAction.Float64,
			Personalization: evalPerson.Float64,
			Conciseness:     evalConcise.Float64,
			Overall:         evalOverall.Float64,
			Feedback:        nullStringToPtr(evalFeedback),
		}
		if evalAt.Valid {
			ts := evalAt.Time
			eval.EvaluatedAt = &ts
		}
		c.Evaluation = &eval
	}

	return &c, nil
}

func scanContractors(rows pgx.Rows) ([]entity.Contractor, error) {
	var contractors []entity.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, err
		}
		contractors = append(contractors, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contractors: %w", err)
	}
	return contractors, nil
}

func nullStringToPtr(value sql.NullString) *string {
	if value.Valid {
		val := value.String
		return &val
	}
	return nil
}
