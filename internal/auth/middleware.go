package auth

import (
	"context"
	"net/http"
	"strings"

	pkghttp "github.com/stagehub/pinguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

// ActorContextKey is the key for storing the acting staff member in context
const ActorContextKey contextKey = "actor"

// RequireAdmin guards administrative endpoints. The surrounding
// administration app authenticates its staff and forwards a signed
// service token naming them; anything else gets 403.
func RequireAdmin(verifier *ServiceTokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteForbidden(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteForbidden(w, "invalid authorization header format")
				return
			}

			claims, err := verifier.Verify(parts[1])
			if err != nil {
				pkghttp.WriteForbidden(w, "invalid or expired service token")
				return
			}

			if claims.Role != RoleAdmin {
				pkghttp.WriteForbidden(w, "admin privilege required")
				return
			}

			ctx := context.WithValue(r.Context(), ActorContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the acting staff member stored by RequireAdmin
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorContextKey).(string); ok {
		return actor
	}
	return ""
}
