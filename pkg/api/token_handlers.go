package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/marketrow/stallgate/pkg/audit"
	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/httputil"
	"github.com/marketrow/stallgate/pkg/middleware"
	"github.com/marketrow/stallgate/pkg/policy"
)

// TokenHandlers serves API token management for the calling principal
type TokenHandlers struct {
	tokens *auth.TokenManager
}

// NewTokenHandlers creates token handlers
func NewTokenHandlers(tokens *auth.TokenManager) *TokenHandlers {
	return &TokenHandlers{tokens: tokens}
}

// RegisterRoutes registers the token routes
func (h *TokenHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tokens", h.createToken).Methods("POST")
	router.HandleFunc("/tokens", h.listTokens).Methods("GET")
	router.HandleFunc("/tokens/{id}", h.revokeToken).Methods("DELETE")
}

type createTokenRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type createTokenResponse struct {
	Token *auth.APIToken `json:"token"`
	// Plaintext is returned exactly once, at creation
	Plaintext string `json:"plaintext"`
}

func (h *TokenHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "token name is required")
		return
	}

	record, plaintext, err := h.tokens.CreateToken(r.Context(), principal.UID, req.Name, req.Description, req.ExpiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	audit.FromContext(r.Context()).LogTokenEvent(r.Context(),
		audit.EventTypeAuthTokenCreate, principal.UID, record.ID,
		audit.EventStatusSuccess, "token created")

	httputil.WriteCreated(w, createTokenResponse{Token: record, Plaintext: plaintext})
}

func (h *TokenHandlers) listTokens(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tokens, err := h.tokens.ListUserTokens(r.Context(), principal.UID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if tokens == nil {
		tokens = []*auth.APIToken{}
	}
	httputil.WriteSuccess(w, tokens)
}

func (h *TokenHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tokenID := mux.Vars(r)["id"]

	// Admins revoke any token; everyone else only their own
	if principal.Role != policy.RoleAdmin {
		owned, err := h.tokens.ListUserTokens(r.Context(), principal.UID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		mine := false
		for _, token := range owned {
			if token.ID == tokenID {
				mine = true
				break
			}
		}
		if !mine {
			httputil.WriteForbidden(w, "token does not belong to you")
			return
		}
	}

	if err := h.tokens.RevokeToken(r.Context(), tokenID, principal.UID, "revoked via API"); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	audit.FromContext(r.Context()).LogTokenEvent(r.Context(),
		audit.EventTypeAuthTokenRevoke, principal.UID, tokenID,
		audit.EventStatusSuccess, "token revoked")

	httputil.WriteNoContent(w)
}
