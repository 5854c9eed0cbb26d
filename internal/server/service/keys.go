package service

import (
	"context"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/cryptox"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

// KeysService creates and revokes machine credentials. The raw key
// exists only in the create response; the store holds its hash.
type KeysService struct {
	Store  store.Store
	Tokens *TokenService
}

// CreateKey mints a credential for owner with the given scopes. The
// management scope can never be delegated to a stored key; it belongs
// exclusively to the bootstrap identity.
func (s *KeysService) CreateKey(ctx context.Context, owner string, scopes []string) (string, domain.APIKey, error) {
	if owner == "" {
		return "", domain.APIKey{}, apperr.Validation("owner is required")
	}
	if len(scopes) == 0 {
		return "", domain.APIKey{}, apperr.Validation("at least one scope is required")
	}
	for _, scope := range scopes {
		if scope == jwtx.ScopeKeysManage {
			return "", domain.APIKey{}, apperr.Validation("scope keys:manage cannot be granted to api keys")
		}
	}

	rawKey, prefix, err := cryptox.GenerateKey()
	if err != nil {
		return "", domain.APIKey{}, apperr.Wrap(apperr.KindInternal, "key generation failed", err)
	}

	hash, err := cryptox.HashKey(rawKey)
	if err != nil {
		return "", domain.APIKey{}, apperr.Wrap(apperr.KindInternal, "key hashing failed", err)
	}

	record, err := s.Store.APIKeys().CreateAPIKey(ctx, domain.APIKey{
		HashedKey: hash,
		KeyPrefix: prefix,
		Owner:     owner,
		Scopes:    scopes,
	})
	if err != nil {
		return "", domain.APIKey{}, apperr.Wrap(apperr.KindInternal, "key persistence failed", err)
	}

	slogx.FromContext(ctx).Info("api key created",
		"key_id", record.ID,
		"owner", owner,
		"scopes", scopes,
	)
	return rawKey, record, nil
}

// RevokeKey verifies the raw key against candidates sharing its
// prefix, deletes the matching record and blacklists its identity so
// outstanding tokens die with it. An unmatched key is NotFound.
func (s *KeysService) RevokeKey(ctx context.Context, rawKey string) error {
	log := slogx.FromContext(ctx)

	prefix, err := cryptox.ExtractPrefix(rawKey)
	if err != nil {
		return apperr.Validation("malformed api key")
	}

	candidates, err := s.Store.APIKeys().FindAPIKeys(ctx, store.APIKeyFilter{Prefix: &prefix})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "key lookup failed", err)
	}

	for _, candidate := range candidates {
		ok, err := cryptox.VerifyKey(rawKey, candidate.HashedKey)
		if err != nil {
			log.Error("skipping credential with malformed hash",
				"key_id", candidate.ID,
				"error", err,
			)
			continue
		}
		if !ok {
			continue
		}

		id := candidate.ID
		if err := s.Store.APIKeys().DeleteAPIKeys(ctx, store.APIKeyFilter{ID: &id}); err != nil {
			return apperr.Wrap(apperr.KindInternal, "key deletion failed", err)
		}
		s.Tokens.BlacklistKey(id, 0)

		log.Info("api key revoked", "key_id", id, "owner", candidate.Owner)
		return nil
	}

	return apperr.NotFound("api key not found")
}
