package rates

import (
	"context"
	"errors"
)

// Service handles rate masterdata business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the tenant's rates of a kind.
func (s *Service) List(ctx context.Context, tenantID int64, kind Kind) ([]Rate, error) {
	return s.repo.List(ctx, tenantID, kind)
}

// Get loads one rate.
func (s *Service) Get(ctx context.Context, tenantID int64, id string) (Rate, error) {
	if id == "" {
		return Rate{}, errors.New("rate id required")
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Create stores a new rate definition.
func (s *Service) Create(ctx context.Context, rate Rate) (Rate, error) {
	if err := validate(rate); err != nil {
		return Rate{}, err
	}
	return s.repo.Create(ctx, rate)
}

// Update modifies an existing, non-archived rate.
func (s *Service) Update(ctx context.Context, rate Rate) error {
	if err := validate(rate); err != nil {
		return err
	}
	return s.repo.Update(ctx, rate)
}

// Archive retires a rate. Documents referencing it keep resolving its
// last-known snapshot.
func (s *Service) Archive(ctx context.Context, tenantID int64, id string) error {
	if id == "" {
		return errors.New("rate id required")
	}
	return s.repo.Archive(ctx, tenantID, id)
}
