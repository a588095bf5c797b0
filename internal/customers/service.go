package customers

import (
	"context"
	"errors"
	"strings"

	"github.com/ledgerline/ledgerline/internal/money"
)

// Service handles customer business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get loads one customer.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, errors.New("customer id required")
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Create stores a new customer.
func (s *Service) Create(ctx context.Context, c Customer) (Customer, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Customer{}, errors.New("customer name required")
	}
	if !money.ValidCode(c.Currency) {
		return Customer{}, errors.New("invalid currency code")
	}
	return s.repo.Create(ctx, c)
}

// Update modifies mutable customer fields. Currency is fixed at creation.
func (s *Service) Update(ctx context.Context, c Customer) error {
	if c.ID <= 0 {
		return errors.New("customer id required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("customer name required")
	}
	return s.repo.Update(ctx, c)
}

// GrantCredit adds unapplied credit to the customer balance.
func (s *Service) GrantCredit(ctx context.Context, tenantID, id, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("credit amount must be positive")
	}
	return s.repo.AdjustCredit(ctx, tenantID, id, amount)
}

// ConsumeCredit removes credit from the balance when it is applied to a
// document. The repository rejects overdrafts.
func (s *Service) ConsumeCredit(ctx context.Context, tenantID, id, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("credit amount must be positive")
	}
	return s.repo.AdjustCredit(ctx, tenantID, id, -amount)
}
