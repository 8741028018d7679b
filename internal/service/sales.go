package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sodaledger/backend/internal/domain"
	"sodaledger/backend/internal/logging"
)

// RecordSale stores the sale and decrements stock for every line as a single
// unit. Nothing is written when any line cannot be covered.
func (s *Service) RecordSale(ctx context.Context, actor domain.Actor, req domain.SaleRequest) (domain.Sale, error) {
	if len(req.Items) == 0 {
		s.metrics.SaleRejected("empty")
		return domain.Sale{}, domain.ErrEmptySale
	}
	if req.TotalBoxes < 0 {
		s.metrics.SaleRejected("validation")
		return domain.Sale{}, fmt.Errorf("%w: total boxes cannot be negative", domain.ErrValidation)
	}

	items, lineTotal, err := mergeSaleLines(req.Items)
	if err != nil {
		s.metrics.SaleRejected("validation")
		return domain.Sale{}, err
	}

	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		s.rejectSale(err)
		return domain.Sale{}, err
	}
	if !customer.Active {
		s.metrics.SaleRejected("not_found")
		return domain.Sale{}, domain.ErrNotFound
	}

	if lineTotal != req.TotalBoxes {
		logging.FromContext(ctx, s.logger).Debug("sale total boxes differs from line quantities",
			zap.Int64("customer_id", customer.ID),
			zap.Int("total_boxes", req.TotalBoxes),
			zap.Int("line_total", lineTotal),
		)
	}

	sale, err := s.repo.CreateSale(ctx, domain.Sale{
		CustomerID: customer.ID,
		TotalBoxes: req.TotalBoxes,
		SaleDate:   s.today(),
		CreatedBy:  actor.Username,
		Items:      items,
	})
	if err != nil {
		s.rejectSale(err)
		return domain.Sale{}, err
	}

	s.metrics.SaleRecorded(lineTotal)
	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Sale to %s", customer.Name))
	return *sale, nil
}

func (s *Service) SalesHistory(ctx context.Context, limit int) ([]domain.SaleHistoryRow, error) {
	return s.repo.ListSaleHistory(ctx, clampLimit(limit))
}

func (s *Service) rejectSale(err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.SaleRejected("insufficient_stock")
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.SaleRejected("not_found")
	case errors.Is(err, domain.ErrValidation):
		s.metrics.SaleRejected("validation")
	}
}

// mergeSaleLines folds repeated flavors into one line, keeping first-seen
// order, and returns the total quantity. The total is capped at
// domain.MaxQuantity.
func mergeSaleLines(lines []domain.SaleLine) ([]domain.SaleItem, int, error) {
	items := make([]domain.SaleItem, 0, len(lines))
	index := make(map[int64]int, len(lines))
	total := 0
	for _, line := range lines {
		if line.Quantity < 1 || line.Quantity > domain.MaxQuantity {
			return nil, 0, domain.ErrInvalidQuantity
		}
		if line.FlavorID < 1 {
			return nil, 0, fmt.Errorf("%w: flavor id is required", domain.ErrValidation)
		}
		if total > domain.MaxQuantity-line.Quantity {
			return nil, 0, fmt.Errorf("%w: sale quantity too large", domain.ErrInvalidQuantity)
		}
		total += line.Quantity
		// Every merged line is bounded by total, so it cannot overflow either.
		if i, seen := index[line.FlavorID]; seen {
			items[i].Quantity += line.Quantity
			continue
		}
		index[line.FlavorID] = len(items)
		items = append(items, domain.SaleItem{FlavorID: line.FlavorID, Quantity: line.Quantity})
	}
	return items, total, nil
}
