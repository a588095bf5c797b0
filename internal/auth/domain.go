package auth

import "time"

// APIKey is a tenant-scoped credential. Only the bcrypt hash of the secret
// is stored; the full token is shown once at creation.
type APIKey struct {
	ID         int64
	TenantID   int64
	Name       string
	SecretHash string
	Scopes     []string
	Active     bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}
