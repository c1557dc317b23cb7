// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined
// here. This prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import (
	"context"

	"github.com/marketrow/stallgate/pkg/policy"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *policy.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints
	PrincipalKey Key = "principal"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: api request middleware
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithPrincipal attaches the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *policy.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// Principal retrieves the authenticated principal, or nil when the request
// is unauthenticated
func Principal(ctx context.Context) *policy.Principal {
	if principal, ok := ctx.Value(PrincipalKey).(*policy.Principal); ok {
		return principal
	}
	return nil
}

// WithRequestID attaches a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID, or "" when none is set
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
