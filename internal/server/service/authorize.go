package service

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/cryptox"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

// AuthorizeService gates every protected operation. It checks either a
// bearer token (REST calls) or a raw API key (login and websocket
// upgrade) and yields the caller's identity.
type AuthorizeService struct {
	Tokens *TokenService
	Store  store.Store

	// BootstrapKey is the statically configured super-credential. It is
	// checked before any persistence lookup and never stored.
	BootstrapKey string
}

// CheckAuthorizationToken extracts the bearer token from the request,
// validates it, rejects blacklisted identities, and requires every
// scope in requiredScopes. All failure modes collapse into a 401 so a
// probing caller learns nothing about which check tripped.
func (s *AuthorizeService) CheckAuthorizationToken(r *http.Request, requiredScopes ...string) (jwtx.Claims, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return jwtx.Claims{}, err
	}

	claims, err := s.Tokens.ValidateToken(raw)
	if err != nil {
		return jwtx.Claims{}, apperr.Unauthorized("invalid or expired token")
	}

	if s.Tokens.IsBlacklisted(claims.KeyID) {
		return jwtx.Claims{}, apperr.Unauthorized("invalid or expired token")
	}

	if !claims.HasScopes(requiredScopes...) {
		return jwtx.Claims{}, apperr.Unauthorized("insufficient scope")
	}

	return claims, nil
}

// CheckAuthorizationKey resolves a raw API key to its credential
// record. The bootstrap secret short-circuits to the reserved identity
// before any store lookup. Prefixes are not unique, so every candidate
// sharing the prefix is verified until one matches.
func (s *AuthorizeService) CheckAuthorizationKey(ctx context.Context, rawKey string) (domain.APIKey, error) {
	log := slogx.FromContext(ctx)

	if rawKey == "" {
		return domain.APIKey{}, apperr.Unauthorized("missing api key")
	}

	if s.BootstrapKey != "" &&
		subtle.ConstantTimeCompare([]byte(rawKey), []byte(s.BootstrapKey)) == 1 {
		return domain.APIKey{
			ID:     jwtx.BootstrapKeyID,
			Owner:  "system",
			Scopes: []string{jwtx.ScopeKeysManage},
		}, nil
	}

	prefix, err := cryptox.ExtractPrefix(rawKey)
	if err != nil {
		return domain.APIKey{}, apperr.Validation("malformed api key")
	}

	candidates, err := s.Store.APIKeys().FindAPIKeys(ctx, store.APIKeyFilter{Prefix: &prefix})
	if err != nil {
		return domain.APIKey{}, apperr.Wrap(apperr.KindInternal, "key lookup failed", err)
	}

	for _, candidate := range candidates {
		ok, err := cryptox.VerifyKey(rawKey, candidate.HashedKey)
		if err != nil {
			// A corrupt hash on one row must not mask a valid sibling
			// sharing the prefix.
			log.Error("skipping credential with malformed hash",
				"key_id", candidate.ID,
				"error", err,
			)
			continue
		}
		if ok {
			return candidate, nil
		}
	}

	return domain.APIKey{}, apperr.Unauthorized("invalid api key")
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperr.Unauthorized("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", apperr.Unauthorized("malformed authorization header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", apperr.Unauthorized("malformed authorization header")
	}
	return token, nil
}
