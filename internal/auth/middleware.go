package auth

import (
	"net/http"
	"strings"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Middleware authenticates the Authorization bearer token and installs the
// tenant id and actor into the request context.
func Middleware(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}

			tenantID, actor, err := service.Authenticate(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}

			ctx := shared.ContextWithTenant(r.Context(), tenantID)
			ctx = shared.ContextWithActor(ctx, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return ""
	}
	return strings.TrimSpace(header[len(scheme):])
}
