package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/octobees/contractor-intel/internal/repository"
)

// RunsHandler exposes scrape-run history endpoints.
type RunsHandler struct {
	runs repository.RunsRepository
}

// NewRunsHandler creates a new handler instance.
func NewRunsHandler(runs repository.RunsRepository) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// List handles GET /runs requests, newest first.
func (h *RunsHandler) List(c echo.Context) error {
	limit := parseIntDefault(c.QueryParam("limit"), 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	runs, err := h.runs.List(c.Request().Context(), limit)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to list runs")
	}
	return Success(c, http.StatusOK, "runs retrieved", runs)
}

// Get handles GET /runs/:id requests.
func (h *RunsHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid run id")
	}

	run, err := h.runs.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return Error(c, http.StatusNotFound, "run not found")
		}
		return Error(c, http.StatusInternalServerError, "failed to load run")
	}
	return Success(c, http.StatusOK, "run retrieved", run)
}
