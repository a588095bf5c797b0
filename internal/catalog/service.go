package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/ledgerline/ledgerline/internal/money"
)

// Service handles catalog item business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the tenant's active items.
func (s *Service) List(ctx context.Context, tenantID int64) ([]Item, error) {
	return s.repo.List(ctx, tenantID)
}

// Get loads one item, archived or not.
func (s *Service) Get(ctx context.Context, tenantID int64, id string) (Item, error) {
	if id == "" {
		return Item{}, errors.New("catalog item id required")
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Create stores a new item. Its unit cost is locked from this point on.
func (s *Service) Create(ctx context.Context, item Item) (Item, error) {
	if strings.TrimSpace(item.ID) == "" {
		return Item{}, errors.New("catalog item id required")
	}
	if strings.TrimSpace(item.Name) == "" {
		return Item{}, errors.New("catalog item name required")
	}
	if !money.ValidCode(item.Currency) {
		return Item{}, errors.New("invalid currency code")
	}
	return s.repo.Create(ctx, item)
}

// Rename updates the display name. Unit cost and id are immutable.
func (s *Service) Rename(ctx context.Context, tenantID int64, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("catalog item name required")
	}
	return s.repo.Rename(ctx, tenantID, id, name)
}

// Delete archives the item; destructive deletion is not offered.
func (s *Service) Delete(ctx context.Context, tenantID int64, id string) error {
	if id == "" {
		return errors.New("catalog item id required")
	}
	return s.repo.Archive(ctx, tenantID, id)
}
