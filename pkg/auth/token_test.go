package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

// memTokenStore is an in-memory TokenStore for unit tests.
type memTokenStore struct {
	byHash map[string]*APIToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byHash: make(map[string]*APIToken)}
}

func (s *memTokenStore) InsertToken(_ context.Context, token *APIToken) error {
	s.byHash[token.TokenHash] = token
	return nil
}

func (s *memTokenStore) GetTokenByHash(_ context.Context, tokenHash string) (*APIToken, error) {
	return s.byHash[tokenHash], nil
}

func (s *memTokenStore) TouchToken(_ context.Context, tokenID string, usedAt time.Time) error {
	for _, t := range s.byHash {
		if t.ID == tokenID {
			t.LastUsedAt = &usedAt
		}
	}
	return nil
}

func (s *memTokenStore) RevokeToken(_ context.Context, tokenID, revokedBy, reason string, revokedAt time.Time) error {
	for _, t := range s.byHash {
		if t.ID == tokenID {
			t.RevokedAt = &revokedAt
			t.RevokedBy = revokedBy
			t.RevokeReason = reason
		}
	}
	return nil
}

func (s *memTokenStore) ListUserTokens(_ context.Context, userID string) ([]*APIToken, error) {
	var out []*APIToken
	for _, t := range s.byHash {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, tokenPrefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("Token should start with %q, got %q", TokenPrefix, token)
	}

	// SHA256 = 64 hex chars
	if len(tokenHash) != 64 {
		t.Errorf("TokenHash length = %d, want 64", len(tokenHash))
	}

	if !strings.HasPrefix(tokenPrefix, TokenPrefix) {
		t.Errorf("TokenPrefix should start with %q, got %q", TokenPrefix, tokenPrefix)
	}

	if len(token) < len(TokenPrefix)+8 {
		t.Errorf("Token too short: %d chars", len(token))
	}
}

func TestTokenGenerator_GenerateToken_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()

	tokens := make(map[string]bool)
	hashes := make(map[string]bool)

	for i := 0; i < 100; i++ {
		token, tokenHash, _, err := tg.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if tokens[token] {
			t.Errorf("Duplicate token generated: %s", token)
		}
		if hashes[tokenHash] {
			t.Errorf("Duplicate token hash generated: %s", tokenHash)
		}

		tokens[token] = true
		hashes[tokenHash] = true
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: "stall_abc123def456", wantErr: false},
		{name: "missing prefix", token: "abc123def456", wantErr: true},
		{name: "wrong prefix", token: "gate_abc123def456", wantErr: true},
		{name: "prefix only", token: "stall_", wantErr: true},
		{name: "invalid base64url", token: "stall_!!!", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenFormat(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestTokenManager_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	store := newMemTokenStore()
	tm := NewTokenManager(store)

	record, plaintext, err := tm.CreateToken(ctx, "user-1", "ci", "integration tests", nil)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if record.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", record.UserID)
	}

	validated, err := tm.ValidateToken(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if validated.ID != record.ID {
		t.Errorf("validated token ID = %q, want %q", validated.ID, record.ID)
	}
	if validated.LastUsedAt == nil {
		t.Error("expected LastUsedAt to be set after validation")
	}
}

func TestTokenManager_ValidateToken_Unknown(t *testing.T) {
	tm := NewTokenManager(newMemTokenStore())

	if _, err := tm.ValidateToken(context.Background(), "stall_dGVzdHRlc3R0ZXN0"); err != ErrUnauthenticated {
		t.Errorf("unknown token error = %v, want ErrUnauthenticated", err)
	}
	if _, err := tm.ValidateToken(context.Background(), "garbage"); err != ErrUnauthenticated {
		t.Errorf("malformed token error = %v, want ErrUnauthenticated", err)
	}
}

func TestTokenManager_ValidateToken_Revoked(t *testing.T) {
	ctx := context.Background()
	store := newMemTokenStore()
	tm := NewTokenManager(store)

	record, plaintext, err := tm.CreateToken(ctx, "user-1", "ci", "", nil)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	if err := tm.RevokeToken(ctx, record.ID, "admin-1", "rotation"); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}

	if _, err := tm.ValidateToken(ctx, plaintext); err != ErrUnauthenticated {
		t.Errorf("revoked token error = %v, want ErrUnauthenticated", err)
	}
}

func TestTokenManager_ValidateToken_Expired(t *testing.T) {
	ctx := context.Background()
	store := newMemTokenStore()
	tm := NewTokenManager(store)

	past := time.Now().Add(-time.Hour)
	_, plaintext, err := tm.CreateToken(ctx, "user-1", "ci", "", &past)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	if _, err := tm.ValidateToken(ctx, plaintext); err != ErrUnauthenticated {
		t.Errorf("expired token error = %v, want ErrUnauthenticated", err)
	}
}

func TestAPIToken_Active(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name  string
		token APIToken
		want  bool
	}{
		{name: "live token", token: APIToken{}, want: true},
		{name: "future expiry", token: APIToken{ExpiresAt: &future}, want: true},
		{name: "past expiry", token: APIToken{ExpiresAt: &past}, want: false},
		{name: "revoked", token: APIToken{RevokedAt: &past}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Active(now); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}
