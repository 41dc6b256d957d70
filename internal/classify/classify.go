// Package classify decides how much work a fresh listing observation needs:
// nothing, a metadata touch-up, or a full profile re-scrape.
package classify

import (
	"fmt"
	"math"

	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/normalize"
)

// Outcome is the classification of one observed listing.
type Outcome string

const (
	OutcomeNew          Outcome = "new"
	OutcomeRescrapeFull Outcome = "rescrape_full"
	OutcomeMetadataOnly Outcome = "metadata_only"
	// OutcomeUnchanged is never produced by Classify itself: the upsert store
	// downgrades metadata-only records to unchanged when none of the
	// lightweight fields actually moved.
	OutcomeUnchanged Outcome = "unchanged"
)

// Decision pairs an outcome with a human-readable reason. The reason exists
// for logs and run audits only; nothing branches on it.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Change thresholds for an existing record. A rating drift of exactly 0.3
// does not trigger; review deltas in [-5, 10) do not trigger.
const (
	ratingThreshold = 0.3
	reviewsIncrease = 10
	reviewsDecrease = -5
)

// Classify compares a lightweight observation with the stored record.
// It is pure and total: absent optional fields simply fail to trigger their
// rule. Only New, RescrapeFull and MetadataOnly are ever returned here.
func Classify(existing *entity.Contractor, observed entity.Listing) Decision {
	if existing == nil {
		return Decision{Outcome: OutcomeNew, Reason: "first observation of profile URL"}
	}

	if observed.Phone != nil && *observed.Phone != "" {
		observedPhone := normalize.Phone(*observed.Phone)
		if existing.Phone == nil || *existing.Phone != observedPhone {
			return Decision{Outcome: OutcomeRescrapeFull, Reason: "phone changed"}
		}
	}

	// Defensive: only reachable if the lookup key itself is unstable.
	if observed.ProfileURL != "" && observed.ProfileURL != existing.ProfileURL {
		return Decision{Outcome: OutcomeRescrapeFull, Reason: "profile URL changed"}
	}

	if observed.Rating != nil && existing.Rating != nil {
		// Round before comparing so one-decimal ratings do not trip the
		// threshold through float noise (4.0 -> 4.3 is exactly 0.3).
		delta := math.Round(math.Abs(*observed.Rating-*existing.Rating)*100) / 100
		if delta > ratingThreshold {
			return Decision{
				Outcome: OutcomeRescrapeFull,
				Reason:  fmt.Sprintf("rating changed by %.2f (from %.1f to %.1f)", delta, *existing.Rating, *observed.Rating),
			}
		}
	}

	if observed.ReviewsCount != nil && existing.ReviewsCount != nil {
		delta := *observed.ReviewsCount - *existing.ReviewsCount
		if delta >= reviewsIncrease {
			return Decision{
				Outcome: OutcomeRescrapeFull,
				Reason:  fmt.Sprintf("reviews increased by %d (from %d to %d)", delta, *existing.ReviewsCount, *observed.ReviewsCount),
			}
		}
		if delta < reviewsDecrease {
			return Decision{
				Outcome: OutcomeRescrapeFull,
				Reason:  fmt.Sprintf("reviews decreased by %d", -delta),
			}
		}
	}

	return Decision{Outcome: OutcomeMetadataOnly, Reason: "no significant changes"}
}
