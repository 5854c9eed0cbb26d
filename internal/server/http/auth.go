package http

import (
	"encoding/json"
	"net/http"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/service"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/httpx"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

// apiKeyHeader carries the raw credential for login and the websocket
// handshake.
const apiKeyHeader = "X-API-Key"

// LoginHandler serves POST /auth/login. The raw key in the X-API-Key
// header resolves either to the bootstrap identity (short-lived
// management token, no refresh) or to a stored credential (access and
// refresh pair).
type LoginHandler struct {
	Gate   *service.AuthorizeService
	Tokens *service.TokenService
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	key, err := h.Gate.CheckAuthorizationKey(ctx, r.Header.Get(apiKeyHeader))
	if err != nil {
		apperr.Write(w, err)
		return
	}

	var resp domain.TokenResponse
	if key.ID == jwtx.BootstrapKeyID {
		resp, err = h.Tokens.CreateBootstrapToken()
	} else {
		resp, err = h.Tokens.CreateTokens(key.ID, key.Owner, key.Scopes)
	}
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "token issuance failed", err))
		return
	}

	log.Info("login succeeded", "key_id", key.ID, "owner", key.Owner)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// CreateKeyHandler serves POST /auth/manage/create. Requires the
// management scope, which only the bootstrap identity holds.
type CreateKeyHandler struct {
	Gate *service.AuthorizeService
	Keys *service.KeysService
}

type createKeyRequest struct {
	Owner  string   `json:"owner"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	APIKey string   `json:"api_key"`
	Scopes []string `json:"scopes"`
}

func (h *CreateKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, jwtx.ScopeKeysManage); err != nil {
		apperr.Write(w, err)
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}

	rawKey, record, err := h.Keys.CreateKey(ctx, req.Owner, req.Scopes)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, createKeyResponse{
		APIKey: rawKey,
		Scopes: record.Scopes,
	})
}

// RevokeKeyHandler serves POST /auth/manage/revoke. The raw key is
// verified before deletion; a key that never existed is 404.
type RevokeKeyHandler struct {
	Gate *service.AuthorizeService
	Keys *service.KeysService
}

type revokeKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (h *RevokeKeyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.Gate.CheckAuthorizationToken(r, jwtx.ScopeKeysManage); err != nil {
		apperr.Write(w, err)
		return
	}

	var req revokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validation("invalid request body"))
		return
	}
	if req.APIKey == "" {
		apperr.Write(w, apperr.Validation("api_key is required"))
		return
	}

	if err := h.Keys.RevokeKey(ctx, req.APIKey); err != nil {
		apperr.Write(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// RefreshHandler serves POST /auth/manage/refresh. The bearer token
// must be a refresh token; it yields a fresh access token only, the
// refresh token itself is reused until expiry.
type RefreshHandler struct {
	Gate   *service.AuthorizeService
	Tokens *service.TokenService
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Gate.CheckAuthorizationToken(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if claims.TokenType != jwtx.TokenTypeRefresh {
		apperr.Write(w, apperr.Unauthorized("refresh token required"))
		return
	}

	access, err := h.Tokens.CreateToken(claims.Owner, claims.KeyID, claims.Scopes, jwtx.TokenTypeAccess)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.KindInternal, "token issuance failed", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, domain.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(jwtx.AccessTokenTTL.Seconds()),
	})
}
