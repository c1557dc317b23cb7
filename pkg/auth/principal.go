package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketrow/stallgate/pkg/policy"
)

// ErrUnauthenticated is returned when no valid principal can be established
// for a request.
var ErrUnauthenticated = errors.New("unauthenticated")

// ProfileLoader resolves a user's stored profile document. Implemented by
// pkg/store (optionally cache-fronted).
type ProfileLoader interface {
	LoadProfile(ctx context.Context, uid string) (policy.Document, error)
}

// Resolver turns a bearer token into a policy.Principal: token -> user id ->
// stored profile -> principal. The resolved value is immutable for the
// duration of a request; role is never re-read mid-request.
type Resolver struct {
	tokens   *TokenManager
	profiles ProfileLoader
}

// NewResolver creates a principal resolver
func NewResolver(tokens *TokenManager, profiles ProfileLoader) *Resolver {
	return &Resolver{tokens: tokens, profiles: profiles}
}

// Resolve validates the token and builds the principal from the stored
// profile. Fails with ErrUnauthenticated for bad tokens and for users whose
// profile document is missing or carries no valid role.
func (r *Resolver) Resolve(ctx context.Context, token string) (*policy.Principal, error) {
	apiToken, err := r.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	profile, err := r.profiles.LoadProfile(ctx, apiToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %s: %w", apiToken.UserID, err)
	}
	if profile == nil {
		return nil, ErrUnauthenticated
	}

	return PrincipalFromProfile(apiToken.UserID, profile)
}

// PrincipalFromProfile maps a stored profile document onto a principal. The
// uid comes from the authentication layer, not from the document, so a
// tampered profile id cannot shift identity.
func PrincipalFromProfile(uid string, profile policy.Document) (*policy.Principal, error) {
	role := policy.Role(profile.GetString(policy.FieldRole))
	if !role.Valid() {
		return nil, ErrUnauthenticated
	}

	p := &policy.Principal{
		UID:            uid,
		Role:           role,
		DefaultSiteID:  profile.GetString(policy.FieldDefaultSiteID),
		DefaultStallID: profile.GetString(policy.FieldDefaultStallID),
	}

	switch sites := profile[policy.FieldManagedSiteIDs].(type) {
	case []string:
		p.ManagedSiteIDs = append(p.ManagedSiteIDs, sites...)
	case []interface{}:
		for _, s := range sites {
			if id, ok := s.(string); ok {
				p.ManagedSiteIDs = append(p.ManagedSiteIDs, id)
			}
		}
	}

	return p, nil
}
