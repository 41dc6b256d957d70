// Package refresh drives one incremental refresh pass: fetch the lightweight
// listing, classify every record against the catalogue, then do only the work
// each record needs (full detail scrape, metadata touch-up, or nothing).
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/classify"
	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/repository"
)

// ErrRefreshInProgress is returned when a pass is already running. The
// upstream fetcher is a stateful single-session resource, so passes never
// overlap.
var ErrRefreshInProgress = errors.New("a refresh pass is already in progress")

// SearchQuery identifies one refresh target.
type SearchQuery struct {
	Zipcode    string
	Distance   int
	MaxResults int
}

// Stats aggregates what a pass did.
type Stats struct {
	TotalFound        int `json:"total_found"`
	NewContractors    int `json:"new_contractors"`
	ProfilesRescraped int `json:"profiles_rescraped"`
	UpdatedMetadata   int `json:"updated_metadata"`
	Unchanged         int `json:"unchanged"`
}

// Add accumulates another pass's stats, for multi-zipcode schedules.
func (s *Stats) Add(other Stats) {
	s.TotalFound += other.TotalFound
	s.NewContractors += other.NewContractors
	s.ProfilesRescraped += other.ProfilesRescraped
	s.UpdatedMetadata += other.UpdatedMetadata
	s.Unchanged += other.Unchanged
}

// ListingFetcher is the external collaborator that observes records. Listing
// fetch failure is fatal to a pass; detail fetch failure only skips the one
// record.
type ListingFetcher interface {
	FetchListing(ctx context.Context, query SearchQuery) ([]entity.Listing, error)
	FetchProfileDetail(ctx context.Context, profileURL string) (*entity.ProfileDetail, error)
}

// InsightGenerator produces sales-insight text for a stored contractor.
// Errors are non-fatal: the record simply proceeds without an insight.
type InsightGenerator interface {
	GenerateInsight(ctx context.Context, c *entity.Contractor) (string, error)
}

// InsightEvaluator scores a generated insight. Optional.
type InsightEvaluator interface {
	EvaluateInsight(ctx context.Context, c *entity.Contractor, insight string) (*entity.InsightEvaluation, error)
}

// Orchestrator runs refresh passes one at a time.
type Orchestrator struct {
	contractors repository.ContractorsRepository
	runs        repository.RunsRepository
	fetcher     ListingFetcher
	insights    InsightGenerator
	evaluator   InsightEvaluator
	logger      *zap.Logger

	mu sync.Mutex
}

// NewOrchestrator wires an orchestrator. The evaluator may be nil.
func NewOrchestrator(
	contractors repository.ContractorsRepository,
	runs repository.RunsRepository,
	fetcher ListingFetcher,
	insights InsightGenerator,
	evaluator InsightEvaluator,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		contractors: contractors,
		runs:        runs,
		fetcher:     fetcher,
		insights:    insights,
		evaluator:   evaluator,
		logger:      logger,
	}
}

type rescrapeItem struct {
	listing entity.Listing
	reason  string
}

// Run performs one incremental refresh pass for the query. The run row is
// persisted in running state before any fetching starts; a listing-level
// failure marks it failed and is returned to the caller. Per-record failures
// are logged and skipped so a long pass that dies partway keeps everything
// persisted so far.
func (o *Orchestrator) Run(ctx context.Context, query SearchQuery) (Stats, error) {
	if !o.mu.TryLock() {
		return Stats{}, ErrRefreshInProgress
	}
	defer o.mu.Unlock()

	var stats Stats

	run, err := o.runs.Start(ctx, query.Zipcode, query.Distance)
	if err != nil {
		return stats, fmt.Errorf("start run: %w", err)
	}
	log := o.logger.With(zap.String("run_id", run.ID.String()), zap.String("zipcode", query.Zipcode))

	listings, err := o.fetcher.FetchListing(ctx, query)
	if err != nil {
		o.finalizeFailed(ctx, run, log, err)
		return stats, fmt.Errorf("fetch listing: %w", err)
	}
	stats.TotalFound = len(listings)
	log.Info("listing fetched", zap.Int("total_found", stats.TotalFound))

	newBucket, rescrapeBucket, metadataBucket := o.classifyListings(ctx, listings, log)

	for _, listing := range newBucket {
		if o.processProfile(ctx, listing, "new contractor", log) {
			stats.NewContractors++
		}
	}

	for _, item := range rescrapeBucket {
		if o.processProfile(ctx, item.listing, item.reason, log) {
			stats.ProfilesRescraped++
		}
	}

	if len(metadataBucket) > 0 {
		meta, err := o.contractors.UpdateMetadataOnly(ctx, metadataBucket)
		if err != nil {
			o.finalizeFailed(ctx, run, log, err)
			return stats, fmt.Errorf("update metadata: %w", err)
		}
		stats.UpdatedMetadata = meta.Updated
		stats.Unchanged = meta.Unchanged
	}

	if err := o.runs.Complete(ctx, run.ID, repository.RunTotals{
		Found:   stats.TotalFound,
		New:     stats.NewContractors,
		Updated: stats.ProfilesRescraped + stats.UpdatedMetadata,
	}); err != nil {
		// The records are already persisted, but the run row would stay in
		// running state forever if this were swallowed.
		log.Error("failed to complete run", zap.Error(err))
		return stats, fmt.Errorf("complete run: %w", err)
	}

	log.Info("refresh pass complete",
		zap.Int("total_found", stats.TotalFound),
		zap.Int("new", stats.NewContractors),
		zap.Int("rescraped", stats.ProfilesRescraped),
		zap.Int("metadata_updated", stats.UpdatedMetadata),
		zap.Int("unchanged", stats.Unchanged))
	return stats, nil
}

// classifyListings buckets every observed listing. Lookup failures are
// per-record: the listing is skipped and the pass continues.
func (o *Orchestrator) classifyListings(ctx context.Context, listings []entity.Listing, log *zap.Logger) ([]entity.Listing, []rescrapeItem, []entity.Listing) {
	var (
		newBucket      []entity.Listing
		rescrapeBucket []rescrapeItem
		metadataBucket []entity.Listing
	)

	for _, listing := range listings {
		if listing.ProfileURL == "" {
			continue
		}

		existing, err := o.contractors.FindByProfileURL(ctx, listing.ProfileURL)
		if err != nil && !errors.Is(err, repository.ErrContractorNotFound) {
			log.Error("classification lookup failed, skipping record",
				zap.String("name", listing.Name), zap.Error(err))
			continue
		}

		decision := classify.Classify(existing, listing)
		switch decision.Outcome {
		case classify.OutcomeNew:
			log.Info("new contractor found", zap.String("name", listing.Name))
			newBucket = append(newBucket, listing)
		case classify.OutcomeRescrapeFull:
			log.Info("will re-scrape profile",
				zap.String("name", listing.Name), zap.String("reason", decision.Reason))
			rescrapeBucket = append(rescrapeBucket, rescrapeItem{listing: listing, reason: decision.Reason})
		default:
			metadataBucket = append(metadataBucket, listing)
		}
	}

	return newBucket, rescrapeBucket, metadataBucket
}

// processProfile does the expensive path for one record: detail fetch, an
// immediate upsert, then insight generation. Returns true when the store
// reported a real insert or update. Every failure is contained to this record.
func (o *Orchestrator) processProfile(ctx context.Context, listing entity.Listing, reason string, log *zap.Logger) bool {
	detail, err := o.fetcher.FetchProfileDetail(ctx, listing.ProfileURL)
	if err != nil {
		log.Error("profile fetch failed, skipping record",
			zap.String("name", listing.Name), zap.Error(err))
		return false
	}
	listing.AttachDetail(detail)

	stored, outcome, err := o.contractors.Upsert(ctx, listing)
	if err != nil {
		log.Error("upsert failed, skipping record",
			zap.String("name", listing.Name), zap.Error(err))
		return false
	}
	log.Info("profile scraped",
		zap.String("name", listing.Name),
		zap.String("reason", reason),
		zap.String("outcome", string(outcome)))

	o.generateInsight(ctx, stored, log)

	return outcome != repository.UpsertUnchanged
}

// generateInsight asks the insight service for talking points and attaches
// them to the stored record. Failures never propagate past the record.
func (o *Orchestrator) generateInsight(ctx context.Context, stored *entity.Contractor, log *zap.Logger) {
	if o.insights == nil || stored == nil {
		return
	}

	insight, err := o.insights.GenerateInsight(ctx, stored)
	if err != nil {
		log.Error("insight generation failed", zap.String("name", stored.Name), zap.Error(err))
		return
	}
	if insight == "" {
		return
	}

	var eval *entity.InsightEvaluation
	if o.evaluator != nil {
		eval, err = o.evaluator.EvaluateInsight(ctx, stored, insight)
		if err != nil {
			log.Error("insight evaluation failed", zap.String("name", stored.Name), zap.Error(err))
			eval = nil
		}
	}

	if err := o.contractors.AttachInsight(ctx, stored.ProfileURL, insight, eval); err != nil {
		log.Error("failed to attach insight", zap.String("name", stored.Name), zap.Error(err))
		return
	}
	log.Info("insight generated", zap.String("name", stored.Name))
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, run *entity.ScrapeRun, log *zap.Logger, cause error) {
	log.Error("refresh pass failed", zap.Error(cause))
	if err := o.runs.Fail(ctx, run.ID, cause.Error()); err != nil {
		log.Error("failed to mark run failed", zap.Error(err))
	}
}
