// Package fingerprint computes the content hash used for change detection.
//
// The digest covers only the fields whose drift should count as a real change:
// name, phone, location, rating, reviews count and description. Certifications
// and generated insights are deliberately excluded so that noisy certification
// scraping does not churn the hash; a certifications-only change therefore
// does not mark a record updated on its own (pending product-owner review).
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/octobees/contractor-intel/internal/entity"
)

// Compute returns the hex digest of the listing's canonical field subset.
// Callers pass listings whose phone has already been normalised so that the
// hash is stable across observations of the same record. MD5 is sufficient
// here: the hash only detects change, it is not a security boundary.
func Compute(l entity.Listing) string {
	key := map[string]any{
		"name":          l.Name,
		"phone":         l.Phone,
		"location":      l.City,
		"rating":        l.Rating,
		"reviews_count": l.ReviewsCount,
		"description":   l.Description,
	}

	// json.Marshal writes map keys in sorted order, so the serialisation is
	// deterministic for identical input.
	encoded, err := json.Marshal(key)
	if err != nil {
		// Only primitives above; Marshal cannot fail for them.
		panic(err)
	}

	sum := md5.Sum(encoded)
	return hex.EncodeToString(sum[:])
}
