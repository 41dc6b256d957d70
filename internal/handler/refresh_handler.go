package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/refresh"
)

// RefreshRunner abstracts the orchestrator for the HTTP surface.
type RefreshRunner interface {
	Run(ctx context.Context, query refresh.SearchQuery) (refresh.Stats, error)
}

// RefreshHandler triggers refresh passes over HTTP.
type RefreshHandler struct {
	runner   RefreshRunner
	defaults refresh.SearchQuery
	logger   *zap.Logger
}

// NewRefreshHandler creates a new handler instance. The defaults fill any
// field the request body leaves empty.
func NewRefreshHandler(runner RefreshRunner, defaults refresh.SearchQuery, logger *zap.Logger) *RefreshHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshHandler{runner: runner, defaults: defaults, logger: logger}
}

type refreshRequest struct {
	Zipcode    string `json:"zipcode"`
	Distance   int    `json:"distance"`
	MaxResults int    `json:"max_results"`
	Async      bool   `json:"async"`
}

// Trigger handles POST /refresh requests. A synchronous call blocks until the
// pass finishes and returns its stats; async requests return 202 immediately
// and the pass runs detached from the request context.
func (h *RefreshHandler) Trigger(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	query := h.defaults
	if req.Zipcode != "" {
		query.Zipcode = req.Zipcode
	}
	if req.Distance > 0 {
		query.Distance = req.Distance
	}
	if req.MaxResults > 0 {
		query.MaxResults = req.MaxResults
	}
	if query.Zipcode == "" {
		return Error(c, http.StatusBadRequest, "zipcode is required")
	}

	if req.Async {
		go func() {
			if _, err := h.runner.Run(context.Background(), query); err != nil {
				h.logger.Error("background refresh failed",
					zap.String("zipcode", query.Zipcode), zap.Error(err))
			}
		}()
		return Success(c, http.StatusAccepted, "refresh started", map[string]string{"zipcode": query.Zipcode})
	}

	stats, err := h.runner.Run(c.Request().Context(), query)
	if err != nil {
		if errors.Is(err, refresh.ErrRefreshInProgress) {
			return Error(c, http.StatusConflict, "a refresh pass is already in progress")
		}
		return Error(c, http.StatusBadGateway, "refresh pass failed")
	}
	return Success(c, http.StatusOK, "refresh complete", stats)
}
