package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenPrefix identifies stallgate tokens
	TokenPrefix = "stall_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenStore persists issued tokens. Implemented by pkg/store.
type TokenStore interface {
	InsertToken(ctx context.Context, token *APIToken) error
	GetTokenByHash(ctx context.Context, tokenHash string) (*APIToken, error)
	TouchToken(ctx context.Context, tokenID string, usedAt time.Time) error
	RevokeToken(ctx context.Context, tokenID, revokedBy, reason string, revokedAt time.Time) error
	ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error)
}

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token.
// Format: stall_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after "stall_" identify the token in listings.
	prefix := TokenPrefix
	if len(encodedToken) >= 8 {
		prefix = TokenPrefix + encodedToken[:8]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the display prefix from a token
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenManager manages the API token lifecycle against a TokenStore
type TokenManager struct {
	generator *TokenGenerator
	store     TokenStore
}

// NewTokenManager creates a new token manager
func NewTokenManager(store TokenStore) *TokenManager {
	return &TokenManager{
		generator: NewTokenGenerator(),
		store:     store,
	}
}

// CreateToken issues a new API token for a user. The plaintext token is
// returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID, name, description string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Description: description,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}

	if err := tm.store.InsertToken(ctx, apiToken); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken validates a bearer token and returns its stored record. An
// unknown, revoked, or expired token fails with ErrUnauthenticated so that
// callers cannot distinguish the cases.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*APIToken, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrUnauthenticated
	}

	stored, err := tm.store.GetTokenByHash(ctx, tm.generator.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	if stored == nil || !stored.Active(time.Now()) {
		return nil, ErrUnauthenticated
	}

	// Best effort; a failed touch must not fail the request.
	_ = tm.store.TouchToken(ctx, stored.ID, time.Now())

	return stored, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID, revokedBy, reason string) error {
	return tm.store.RevokeToken(ctx, tokenID, revokedBy, reason, time.Now())
}

// ListUserTokens lists all tokens for a user, revoked ones included
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	return tm.store.ListUserTokens(ctx, userID)
}
