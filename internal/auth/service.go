package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerline/ledgerline/internal/shared"
)

const tokenPrefix = "llk"

// Service wraps API key issuance and verification.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateKey mints a key for the tenant and returns the one-time token. Empty
// scopes default to the full receivables set.
func (s *Service) CreateKey(ctx context.Context, tenantID int64, name string, scopes []string) (*APIKey, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", errors.New("api key name required")
	}
	if len(scopes) == 0 {
		scopes = shared.ReceivablesScopes()
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("auth: hash secret: %w", err)
	}

	key := &APIKey{
		TenantID:   tenantID,
		Name:       name,
		SecretHash: string(hash),
		Scopes:     scopes,
		Active:     true,
	}
	if err := s.repo.Insert(ctx, key); err != nil {
		return nil, "", err
	}
	token := fmt.Sprintf("%s_%d_%s", tokenPrefix, key.ID, secret)
	return key, token, nil
}

// Revoke deactivates a key. Requests presenting it fail from that point on.
func (s *Service) Revoke(ctx context.Context, tenantID, id int64) error {
	return s.repo.Revoke(ctx, tenantID, id)
}

// Authenticate verifies a presented token and returns the owning tenant and
// an actor carrying the key's scopes. Every failure mode collapses to
// ErrInvalidCredentials so the response does not leak which part was wrong.
func (s *Service) Authenticate(ctx context.Context, token string) (int64, *shared.Actor, error) {
	id, secret, ok := splitToken(token)
	if !ok {
		return 0, nil, shared.ErrInvalidCredentials
	}

	key, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, nil, shared.ErrInvalidCredentials
	}
	if !key.Active {
		return 0, nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return 0, nil, shared.ErrInvalidCredentials
	}

	_ = s.repo.TouchLastUsed(ctx, key.ID, s.now())

	perms := make(map[string]bool, len(key.Scopes))
	for _, scope := range key.Scopes {
		perms[scope] = true
	}
	return key.TenantID, &shared.Actor{ID: key.ID, Permissions: perms}, nil
}

func splitToken(token string) (int64, string, bool) {
	parts := strings.SplitN(token, "_", 3)
	if len(parts) != 3 || parts[0] != tokenPrefix || parts[2] == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, parts[2], true
}

func randomSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
