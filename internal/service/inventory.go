package service

import (
	"context"
	"fmt"

	"sodaledger/backend/internal/domain"
)

func (s *Service) Restock(ctx context.Context, actor domain.Actor, flavorID int64, qty int) (domain.FlavorStock, error) {
	if qty < 1 || qty > domain.MaxQuantity {
		return domain.FlavorStock{}, domain.ErrInvalidQuantity
	}

	flavor, err := s.activeFlavor(ctx, flavorID)
	if err != nil {
		return domain.FlavorStock{}, err
	}

	stock, err := s.repo.RestockFlavor(ctx, flavorID, qty)
	if err != nil {
		return domain.FlavorStock{}, err
	}

	s.metrics.Restocked(qty)
	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Added %d to %s", qty, flavor.Name))
	return s.flavorStock(flavor, stock), nil
}

// Deduct removes qty from a single flavor. The check and the write happen in
// one storage step so stock can never go below zero.
func (s *Service) Deduct(ctx context.Context, actor domain.Actor, flavorID int64, qty int) (domain.FlavorStock, error) {
	if qty < 1 || qty > domain.MaxQuantity {
		return domain.FlavorStock{}, domain.ErrInvalidQuantity
	}

	flavor, err := s.activeFlavor(ctx, flavorID)
	if err != nil {
		return domain.FlavorStock{}, err
	}

	stock, err := s.repo.DeductStock(ctx, flavorID, qty)
	if err != nil {
		return domain.FlavorStock{}, err
	}

	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Removed %d from %s", qty, flavor.Name))
	return s.flavorStock(flavor, stock), nil
}

func (s *Service) StockOverview(ctx context.Context) (domain.StockOverview, error) {
	flavors, err := s.ListFlavors(ctx)
	if err != nil {
		return domain.StockOverview{}, err
	}

	overview := domain.StockOverview{
		Threshold: s.lowStockThreshold,
		Flavors:   flavors,
		LowStock:  make([]domain.FlavorStock, 0, len(flavors)),
	}
	for _, f := range flavors {
		overview.TotalStock += f.Stock
		if f.Low {
			overview.LowStock = append(overview.LowStock, f)
		}
	}
	overview.LowCount = len(overview.LowStock)

	s.metrics.SetLowStock(overview.LowCount)
	return overview, nil
}

func (s *Service) activeFlavor(ctx context.Context, flavorID int64) (*domain.Flavor, error) {
	flavor, err := s.repo.GetFlavor(ctx, flavorID)
	if err != nil {
		return nil, err
	}
	if !flavor.Active {
		return nil, domain.ErrNotFound
	}
	return flavor, nil
}

func (s *Service) flavorStock(flavor *domain.Flavor, stock int) domain.FlavorStock {
	return domain.FlavorStock{
		ID:    flavor.ID,
		Name:  flavor.Name,
		Stock: stock,
		Low:   stock < s.lowStockThreshold,
	}
}
