package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryKeyRepo struct {
	keys   map[int64]*APIKey
	nextID int64
}

func newMemoryKeyRepo() *memoryKeyRepo {
	return &memoryKeyRepo{keys: make(map[int64]*APIKey), nextID: 1}
}

func (r *memoryKeyRepo) Get(_ context.Context, id int64) (*APIKey, error) {
	key, ok := r.keys[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *key
	return &copied, nil
}

func (r *memoryKeyRepo) Insert(_ context.Context, key *APIKey) error {
	key.ID = r.nextID
	key.CreatedAt = time.Now()
	r.nextID++
	stored := *key
	r.keys[key.ID] = &stored
	return nil
}

func (r *memoryKeyRepo) Revoke(_ context.Context, tenantID, id int64) error {
	key, ok := r.keys[id]
	if !ok || key.TenantID != tenantID {
		return shared.ErrNotFound
	}
	key.Active = false
	return nil
}

func (r *memoryKeyRepo) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	if key, ok := r.keys[id]; ok {
		key.LastUsedAt = &at
	}
	return nil
}

func TestCreateAndAuthenticate(t *testing.T) {
	repo := newMemoryKeyRepo()
	service := NewService(repo)
	ctx := context.Background()

	key, token, err := service.CreateKey(ctx, 42, "billing worker", nil)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, shared.ReceivablesScopes(), key.Scopes)

	tenantID, actor, err := service.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), tenantID)
	require.Equal(t, key.ID, actor.ID)
	require.True(t, actor.Can(shared.PermDocumentCreate))
	require.True(t, actor.Can(shared.PermDocumentVoid))

	require.NotNil(t, repo.keys[key.ID].LastUsedAt)
}

func TestAuthenticateScopesLimitActor(t *testing.T) {
	service := NewService(newMemoryKeyRepo())
	ctx := context.Background()

	_, token, err := service.CreateKey(ctx, 1, "readonly importer", []string{shared.PermDocumentCreate})
	require.NoError(t, err)

	_, actor, err := service.Authenticate(ctx, token)
	require.NoError(t, err)
	require.True(t, actor.Can(shared.PermDocumentCreate))
	require.False(t, actor.Can(shared.PermDocumentVoid))
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	repo := newMemoryKeyRepo()
	service := NewService(repo)
	ctx := context.Background()

	_, token, err := service.CreateKey(ctx, 1, "app", nil)
	require.NoError(t, err)

	for _, bad := range []string{
		"",
		"garbage",
		"llk_1",
		"llk_abc_secret",
		token + "tampered",
		"sk_1_secret",
	} {
		_, _, err := service.Authenticate(ctx, bad)
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, "token %q", bad)
	}
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	repo := newMemoryKeyRepo()
	service := NewService(repo)
	ctx := context.Background()

	key, token, err := service.CreateKey(ctx, 1, "app", nil)
	require.NoError(t, err)

	require.NoError(t, service.Revoke(ctx, 1, key.ID))
	_, _, err = service.Authenticate(ctx, token)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Revoking a key from the wrong tenant is a not-found, not a no-op.
	err = service.Revoke(ctx, 2, key.ID)
	require.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestCreateKeyRequiresName(t *testing.T) {
	service := NewService(newMemoryKeyRepo())
	_, _, err := service.CreateKey(context.Background(), 1, "  ", nil)
	require.Error(t, err)
}
