package entity

import "time"

// Contractor represents one harvested organisation in the catalogue.
// profile_url is the sole natural key: at most one row per URL exists.
type Contractor struct {
	ID             int64              `json:"id"`
	ExternalID     *string            `json:"external_id,omitempty"`
	Name           string             `json:"name"`
	Phone          *string            `json:"phone,omitempty"`
	Location       *string            `json:"location,omitempty"`
	Distance       *float64           `json:"distance,omitempty"`
	Rating         *float64           `json:"rating,omitempty"`
	ReviewsCount   *int               `json:"reviews_count,omitempty"`
	ProfileURL     string             `json:"profile_url"`
	Description    *string            `json:"description,omitempty"`
	Certifications []string           `json:"certifications,omitempty"`
	Insight        *string            `json:"insight,omitempty"`
	Evaluation     *InsightEvaluation `json:"evaluation,omitempty"`
	ContentHash    *string            `json:"content_hash,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	LastScrapedAt  time.Time          `json:"last_scraped_at"`
}

// InsightEvaluation holds judge scores for a generated insight (1-5 scale).
type InsightEvaluation struct {
	Accuracy        float64    `json:"accuracy"`
	Actionability   float64    `json:"actionability"`
	Personalization float64    `json:"personalization"`
	Conciseness     float64    `json:"conciseness"`
	Overall         float64    `json:"overall"`
	Feedback        *string    `json:"feedback,omitempty"`
	EvaluatedAt     *time.Time `json:"evaluated_at,omitempty"`
}

// Listing is the lightweight observation of a contractor taken from a search
// results page, before any detail-page visit. Description and Certifications
// stay nil until a full profile fetch fills them in.
type Listing struct {
	Name           string   `json:"name"`
	Phone          *string  `json:"phone,omitempty"`
	City           *string  `json:"city,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	ReviewsCount   *int     `json:"reviews_count,omitempty"`
	Distance       *float64 `json:"distance,omitempty"`
	ProfileURL     string   `json:"profile_url"`
	Description    *string  `json:"description,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// ProfileDetail is the expensive part of a contractor observation, retrieved
// from the profile page itself.
type ProfileDetail struct {
	Description    *string  `json:"description,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// AttachDetail copies a profile fetch result onto the listing.
func (l *Listing) AttachDetail(d *ProfileDetail) {
	if d == nil {
		return
	}
	l.Description = d.Description
	l.Certifications = d.Certifications
}
