package entity

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a scrape run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// ScrapeRun tracks one refresh pass end to end. Rows are append-only: a run
// moves running -> completed or running -> failed and is immutable after that.
type ScrapeRun struct {
	ID               uuid.UUID  `json:"id"`
	Zipcode          string     `json:"zipcode"`
	Distance         int        `json:"distance"`
	ContractorsFound *int       `json:"contractors_found,omitempty"`
	ContractorsNew   *int       `json:"contractors_new,omitempty"`
	ContractorsUpd   *int       `json:"contractors_updated,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           RunStatus  `json:"status"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
}
