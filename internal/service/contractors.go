// Package service holds the thin read-side logic between the HTTP handlers
// and the repositories.
package service

import (
	"context"

	"github.com/octobees/contractor-intel/internal/dto"
	"github.com/octobees/contractor-intel/internal/entity"
	"github.com/octobees/contractor-intel/internal/normalize"
	"github.com/octobees/contractor-intel/internal/repository"
)

// ContractorsService exposes read operations over the contractor catalogue.
type ContractorsService struct {
	repo repository.ContractorsRepository
}

// NewContractorsService creates a new instance of ContractorsService.
func NewContractorsService(repo repository.ContractorsRepository) *ContractorsService {
	return &ContractorsService{repo: repo}
}

// ListContractors returns contractors respecting pagination defaults. A phone
// filter is normalised to the stored canonical format first, so any input
// format matches.
func (s *ContractorsService) ListContractors(ctx context.Context, filter dto.ListFilter) ([]entity.Contractor, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}
	if filter.Phone != "" {
		if canonical, err := normalize.USPhone(filter.Phone); err == nil {
			filter.Phone = canonical
		} else {
			filter.Phone = normalize.Phone(filter.Phone)
		}
	}
	return s.repo.List(ctx, filter)
}

// GetContractorByID loads a single record by its catalogue id.
func (s *ContractorsService) GetContractorByID(ctx context.Context, id int64) (*entity.Contractor, error) {
	return s.repo.FindByID(ctx, id)
}
