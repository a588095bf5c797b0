package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository persists rate definitions.
type Repository interface {
	Resolver
	List(ctx context.Context, tenantID int64, kind Kind) ([]Rate, error)
	Get(ctx context.Context, tenantID int64, id string) (Rate, error)
	Create(ctx context.Context, rate Rate) (Rate, error)
	Update(ctx context.Context, rate Rate) error
	Archive(ctx context.Context, tenantID int64, id string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const rateColumns = `id, tenant_id, kind, name, currency, is_percent, value, archived, created_at, updated_at`

func scanRate(row pgx.Row) (Rate, error) {
	var r Rate
	err := row.Scan(&r.ID, &r.TenantID, &r.Kind, &r.Name, &r.Currency, &r.IsPercent, &r.Value, &r.Archived, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, shared.ErrNotFound
	}
	return r, err
}

func (r *repository) List(ctx context.Context, tenantID int64, kind Kind) ([]Rate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rateColumns+` FROM rates WHERE tenant_id=$1 AND kind=$2 ORDER BY name`, tenantID, kind)
	if err != nil {
		return nil, fmt.Errorf("rates: list: %w", err)
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID int64, id string) (Rate, error) {
	return scanRate(r.pool.QueryRow(ctx,
		`SELECT `+rateColumns+` FROM rates WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

// Snapshot resolves the last-known representation of a rate. Archived rates
// resolve normally; ids that never existed for the tenant return nil without
// error so callers can preserve them by id.
func (r *repository) Snapshot(ctx context.Context, tenantID int64, kind Kind, id string) (*Rate, error) {
	rate, err := scanRate(r.pool.QueryRow(ctx,
		`SELECT `+rateColumns+` FROM rates WHERE tenant_id=$1 AND kind=$2 AND id=$3`, tenantID, kind, id))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *repository) Create(ctx context.Context, rate Rate) (Rate, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO rates (id, tenant_id, kind, name, currency, is_percent, value, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, now(), now())
		 RETURNING `+rateColumns,
		rate.ID, rate.TenantID, rate.Kind, rate.Name, rate.Currency, rate.IsPercent, rate.Value)
	return scanRate(row)
}

func (r *repository) Update(ctx context.Context, rate Rate) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rates SET name=$1, value=$2, is_percent=$3, updated_at=now() WHERE tenant_id=$4 AND id=$5 AND archived=false`,
		rate.Name, rate.Value, rate.IsPercent, rate.TenantID, rate.ID)
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
		`UPDATE rates SET archived=true, updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
