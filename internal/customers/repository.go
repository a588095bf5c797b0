package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository persists customers.
type Repository interface {
	Get(ctx context.Context, tenantID, id int64) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) error
	// AdjustCredit atomically adds delta to the stored credit balance and
	// returns the new balance. Negative results are rejected.
	AdjustCredit(ctx context.Context, tenantID, id, delta int64) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, tenant_id, name, email, currency, credit_balance, auto_apply, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Currency, &c.CreditBalance, &c.AutoApply, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO customers (tenant_id, name, email, currency, credit_balance, auto_apply, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, now(), now())
		 RETURNING `+customerColumns,
		c.TenantID, c.Name, c.Email, c.Currency, c.AutoApply)
	return scanCustomer(row)
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET name=$1, email=$2, auto_apply=$3, updated_at=now() WHERE tenant_id=$4 AND id=$5`,
		c.Name, c.Email, c.AutoApply, c.TenantID, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) AdjustCredit(ctx context.Context, tenantID, id, delta int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`UPDATE customers SET credit_balance = credit_balance + $1, updated_at=now()
		 WHERE tenant_id=$2 AND id=$3 AND credit_balance + $1 >= 0
		 RETURNING credit_balance`,
		delta, tenantID, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("customers: adjust credit by %d: %w", delta, shared.ErrNotFound)
	}
	return balance, err
}
