package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/repository"
)

const recentRunsInStats = 5

// StatsHandler serves catalogue-wide aggregates and filter vocabularies.
type StatsHandler struct {
	contractors repository.ContractorsRepository
	runs        repository.RunsRepository
}

// NewStatsHandler creates a new handler instance.
func NewStatsHandler(contractors repository.ContractorsRepository, runs repository.RunsRepository) *StatsHandler {
	return &StatsHandler{contractors: contractors, runs: runs}
}

type statsResponse struct {
	TotalContractors int64               `json:"total_contractors"`
	AverageRating    float64             `json:"average_rating"`
	TopContractors   []entity.Contractor `json:"top_contractors"`
	RecentScrapeRuns []entity.ScrapeRun  `json:"recent_scrape_runs"`
}

// Stats handles GET /stats requests.
func (h *StatsHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	catalog, err := h.contractors.Stats(ctx)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to compute stats")
	}

	recent, err := h.runs.List(ctx, recentRunsInStats)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to list recent runs")
	}

	return Success(c, http.StatusOK, "stats retrieved", statsResponse{
		TotalContractors: catalog.TotalContractors,
		AverageRating:    catalog.AverageRating,
		TopContractors:   catalog.TopContractors,
		RecentScrapeRuns: recent,
	})
}

// Locations handles GET /locations requests.
func (h *StatsHandler) Locations(c echo.Context) error {
	locations, err := h.contractors.Locations(c.Request().Context())
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to list locations")
	}
	return Success(c, http.StatusOK, "locations retrieved", locations)
}
