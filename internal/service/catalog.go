package service

import (
	"context"
	"fmt"
	"strings"

	"sodaledger/backend/internal/domain"
)

// AddFlavor creates a flavor, or brings back a deleted one under the same
// id with an empty stock.
func (s *Service) AddFlavor(ctx context.Context, actor domain.Actor, name string) (domain.FlavorAddResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.FlavorAddResult{}, fmt.Errorf("%w: flavor name is required", domain.ErrValidation)
	}

	existing, err := s.repo.FindFlavorByName(ctx, name)
	if err != nil {
		return domain.FlavorAddResult{}, err
	}

	switch existing.State() {
	case domain.StateActive:
		return domain.FlavorAddResult{}, domain.ErrAlreadyExists
	case domain.StateInactive:
		flavor, err := s.repo.ReactivateFlavor(ctx, existing.ID)
		if err != nil {
			return domain.FlavorAddResult{}, err
		}
		s.LogActivity(ctx, actor.Username, fmt.Sprintf("Reactivated flavor %s", flavor.Name))
		return domain.FlavorAddResult{Flavor: *flavor, Reactivated: true}, nil
	default:
		flavor, err := s.repo.CreateFlavor(ctx, name)
		if err != nil {
			return domain.FlavorAddResult{}, err
		}
		s.LogActivity(ctx, actor.Username, fmt.Sprintf("Added flavor %s", flavor.Name))
		return domain.FlavorAddResult{Flavor: *flavor}, nil
	}
}

func (s *Service) DeleteFlavor(ctx context.Context, actor domain.Actor, id int64) error {
	flavor, err := s.repo.DeactivateFlavor(ctx, id)
	if err != nil {
		return err
	}
	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Deleted flavor %s", flavor.Name))
	return nil
}

// ListFlavors returns active flavors by name with their current stock.
func (s *Service) ListFlavors(ctx context.Context) ([]domain.FlavorStock, error) {
	flavors, err := s.repo.ListActiveFlavorStock(ctx)
	if err != nil {
		return nil, err
	}
	for i := range flavors {
		flavors[i].Low = flavors[i].Stock < s.lowStockThreshold
	}
	return flavors, nil
}
