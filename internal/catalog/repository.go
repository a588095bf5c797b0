package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository persists catalog items.
type Repository interface {
	List(ctx context.Context, tenantID int64) ([]Item, error)
	Get(ctx context.Context, tenantID int64, id string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Rename(ctx context.Context, tenantID int64, id, name string) error
	Archive(ctx context.Context, tenantID int64, id string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, tenant_id, type, name, currency, unit_cost, taxable, archived, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.TenantID, &it.Type, &it.Name, &it.Currency, &it.UnitCost, &it.Taxable, &it.Archived, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	return it, err
}

func (r *repository) List(ctx context.Context, tenantID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE tenant_id=$1 AND archived=false ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID int64, id string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO catalog_items (id, tenant_id, type, name, currency, unit_cost, taxable, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, now(), now())
		 RETURNING `+itemColumns,
		item.ID, item.TenantID, item.Type, item.Name, item.Currency, item.UnitCost, item.Taxable)
	return scanItem(row)
}

// Rename is the only mutable field after creation; unit cost stays locked.
func (r *repository) Rename(ctx context.Context, tenantID int64, id, name string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE catalog_items SET name=$1, updated_at=now() WHERE tenant_id=$2 AND id=$3 AND archived=false`,
		name, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Archive(ctx context.Context, tenantID int64, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE catalog_items SET archived=true, updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
