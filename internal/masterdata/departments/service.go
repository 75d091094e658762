package departments

import (
	"context"
	"fmt"
	"strings"

	"github.com/procurio/procurio/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Department, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Department, error) {
	if id <= 0 {
		return Department{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, department Department) (Department, error) {
	if strings.TrimSpace(department.Name) == "" {
		return Department{}, fmt.Errorf("department name is required: %w", shared.ErrValidation)
	}
	return s.repo.Create(ctx, department)
}

func (s *Service) Update(ctx context.Context, id int64, department Department) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if strings.TrimSpace(department.Name) == "" {
		return fmt.Errorf("department name is required: %w", shared.ErrValidation)
	}
	return s.repo.Update(ctx, id, department)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
