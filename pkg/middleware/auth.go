package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/contextkeys"
	"github.com/marketrow/stallgate/pkg/httputil"
	"github.com/marketrow/stallgate/pkg/policy"
)

// AuthMiddleware resolves bearer tokens into principals
type AuthMiddleware struct {
	resolver *auth.Resolver
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware. With optional
// set, requests without an Authorization header pass through with no
// principal attached; the policy engine then denies them as
// unauthenticated, which keeps the error taxonomy in one place.
func NewAuthMiddleware(resolver *auth.Resolver, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.resolver.Resolve(r.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				httputil.WriteUnauthorized(w, "invalid or expired token")
			} else {
				httputil.WriteInternalError(w, err)
			}
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal extracts the authenticated principal from a request
func GetPrincipal(r *http.Request) *policy.Principal {
	return contextkeys.Principal(r.Context())
}

// RequireRole creates middleware that rejects principals below a role.
// Useful for admin-only surfaces like token administration; the per-document
// rules still run behind it.
func RequireRole(role policy.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if principal.Role != role {
				httputil.WriteForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
