package service

import (
	"context"
	"fmt"
	"strings"

	"sodaledger/backend/internal/domain"
)

// AddOrReactivateCustomer mirrors AddFlavor: a deleted customer with the same
// name comes back with the new contact details.
func (s *Service) AddOrReactivateCustomer(ctx context.Context, actor domain.Actor, input domain.CustomerInput) (domain.CustomerAddResult, error) {
	customer := domain.Customer{
		Name:  strings.TrimSpace(input.Name),
		Phone: normalizePhone(input.Phone, s.phoneRegion),
		Shop:  strings.TrimSpace(input.Shop),
		Area:  strings.TrimSpace(input.Area),
	}
	if customer.Name == "" {
		return domain.CustomerAddResult{}, fmt.Errorf("%w: customer name is required", domain.ErrValidation)
	}

	existing, err := s.repo.FindCustomerByName(ctx, customer.Name)
	if err != nil {
		return domain.CustomerAddResult{}, err
	}

	switch existing.State() {
	case domain.StateActive:
		return domain.CustomerAddResult{}, domain.ErrAlreadyExists
	case domain.StateInactive:
		customer.ID = existing.ID
		reactivated, err := s.repo.ReactivateCustomer(ctx, customer)
		if err != nil {
			return domain.CustomerAddResult{}, err
		}
		s.LogActivity(ctx, actor.Username, fmt.Sprintf("Reactivated customer %s", reactivated.Name))
		return domain.CustomerAddResult{Customer: *reactivated, Reactivated: true}, nil
	default:
		created, err := s.repo.CreateCustomer(ctx, customer)
		if err != nil {
			return domain.CustomerAddResult{}, err
		}
		s.LogActivity(ctx, actor.Username, fmt.Sprintf("Added customer %s", created.Name))
		return domain.CustomerAddResult{Customer: *created}, nil
	}
}

func (s *Service) UpdateCustomer(ctx context.Context, actor domain.Actor, id int64, req domain.CustomerUpdate) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if !existing.Active {
		return domain.Customer{}, domain.ErrNotFound
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, fmt.Errorf("%w: customer name is required", domain.ErrValidation)
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = normalizePhone(*req.Phone, s.phoneRegion)
	}
	if req.Shop != nil {
		updated.Shop = strings.TrimSpace(*req.Shop)
	}
	if req.Area != nil {
		updated.Area = strings.TrimSpace(*req.Area)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Updated customer %s", saved.Name))
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, actor domain.Actor, id int64) error {
	customer, err := s.repo.DeactivateCustomer(ctx, id)
	if err != nil {
		return err
	}
	s.LogActivity(ctx, actor.Username, fmt.Sprintf("Deleted customer %s", customer.Name))
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListActiveCustomers(ctx)
}
