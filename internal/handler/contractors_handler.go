package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/octobees/contractor-intel/internal/dto"
	"github.com/octobees/contractor-intel/internal/repository"
	"github.com/octobees/contractor-intel/internal/service"
)

// ContractorsHandler exposes contractor catalogue endpoints.
type ContractorsHandler struct {
	service *service.ContractorsService
}

// NewContractorsHandler creates a new handler instance.
func NewContractorsHandler(service *service.ContractorsService) *ContractorsHandler {
	return &ContractorsHandler{service: service}
}

// List handles GET /contractors requests.
func (h *ContractorsHandler) List(c echo.Context) error {
	filter := dto.ListFilter{
		Q:        strings.TrimSpace(c.QueryParam("q")),
		Location: strings.TrimSpace(c.QueryParam("location")),
		Phone:    strings.TrimSpace(c.QueryParam("phone")),
		Sort:     strings.TrimSpace(c.QueryParam("sort")),
		Page:     parseIntDefault(c.QueryParam("page"), 1),
		PerPage:  parseIntDefault(c.QueryParam("per_page"), 20),
	}

	if minRatingStr := strings.TrimSpace(c.QueryParam("min_rating")); minRatingStr != "" {
		minRating, err := strconv.ParseFloat(minRatingStr, 64)
		if err != nil {
			return Error(c, http.StatusBadRequest, "invalid min_rating")
		}
		filter.MinRating = &minRating
	}

	contractors, err := h.service.ListContractors(c.Request().Context(), filter)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to list contractors")
	}

	return Success(c, http.StatusOK, "contractors retrieved", contractors)
}

// Get handles GET /contractors/:id requests.
func (h *ContractorsHandler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return Error(c, http.StatusBadRequest, "invalid contractor id")
	}

	contractor, err := h.service.GetContractorByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrContractorNotFound) {
			return Error(c, http.StatusNotFound, "contractor not found")
		}
		return Error(c, http.StatusInternalServerError, "failed to get contractor")
	}

	return Success(c, http.StatusOK, "contractor retrieved", contractor)
}

func parseIntDefault(input string, fallback int) int {
	if input == "" {
		return fallback
	}
	if value, err := strconv.Atoi(input); err == nil {
		return value
	}
	return fallback
}
