package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository abstracts API key storage.
type Repository interface {
	Get(ctx context.Context, id int64) (*APIKey, error)
	Insert(ctx context.Context, key *APIKey) error
	Revoke(ctx context.Context, tenantID, id int64) error
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// PGRepository is the postgres-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Get loads an API key by id regardless of tenant; the caller verifies the
// secret before trusting anything else on the row.
func (r *PGRepository) Get(ctx context.Context, id int64) (*APIKey, error) {
	const query = `
		SELECT id, tenant_id, name, secret_hash, scopes, active, last_used_at, created_at
		FROM api_keys
		WHERE id = $1`

	var key APIKey
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&key.ID, &key.TenantID, &key.Name, &key.SecretHash,
		&key.Scopes, &key.Active, &key.LastUsedAt, &key.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get api key: %w", err)
	}
	return &key, nil
}

// Insert stores a new key and fills its id and created_at.
func (r *PGRepository) Insert(ctx context.Context, key *APIKey) error {
	const query = `
		INSERT INTO api_keys (tenant_id, name, secret_hash, scopes, active, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		key.TenantID, key.Name, key.SecretHash, key.Scopes, key.Active,
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("auth: insert api key: %w", err)
	}
	return nil
}

// Revoke deactivates a key within its tenant.
func (r *PGRepository) Revoke(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET active = false WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("auth: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLastUsed records key activity. Best effort; failures are the caller's
// to log, not to fail the request over.
func (r *PGRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("auth: touch api key: %w", err)
	}
	return nil
}
