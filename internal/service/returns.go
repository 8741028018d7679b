package service

import (
	"context"
	"fmt"
	"strings"

	"sodaledger/backend/internal/domain"
)

// RecordReturn logs goods handed back by a customer. Stock is left alone;
// putting returned boxes back on the shelf is a separate restock.
func (s *Service) RecordReturn(ctx context.Context, actor domain.Actor, input domain.ReturnInput) (domain.Return, error) {
	if input.ReturnedBoxes < 0 || input.DamagedBoxes < 0 || input.DamagedBottles < 0 {
		return domain.Return{}, fmt.Errorf("%w: return counts cannot be negative", domain.ErrValidation)
	}

	created, err := s.repo.CreateReturn(ctx, domain.Return{
		CustomerName:   strings.TrimSpace(input.CustomerName),
		ReturnDate:     s.today(),
		ReturnedBoxes:  input.ReturnedBoxes,
		DamagedBoxes:   input.DamagedBoxes,
		DamagedBottles: input.DamagedBottles,
		Note:           strings.TrimSpace(input.Note),
		CreatedBy:      actor.Username,
	})
	if err != nil {
		return domain.Return{}, err
	}

	s.metrics.ReturnRecorded()
	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Return from %s", created.CustomerName))
	return *created, nil
}

func (s *Service) ListReturns(ctx context.Context, limit int) ([]domain.Return, error) {
	return s.repo.ListReturns(ctx, clampLimit(limit))
}
