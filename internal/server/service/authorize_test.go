package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/internal/server/store/drivers/sqlite"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/cryptox"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testBootstrapKey = "bootstrap-super-secret"

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestGate(t *testing.T) (*AuthorizeService, *KeysService) {
	t.Helper()
	tokens := newTestTokenService(t)
	st := newTestStore(t)
	gate := &AuthorizeService{
		Tokens:       tokens,
		Store:        st,
		BootstrapKey: testBootstrapKey,
	}
	keys := &KeysService{Store: st, Tokens: tokens}
	return gate, keys
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestCheckAuthorizationToken(t *testing.T) {
	gate, _ := newTestGate(t)

	resp, err := gate.Tokens.CreateTokens(4, "bot", []string{"events:subscribe", "events:publish"})
	require.NoError(t, err)

	t.Run("valid token with required scopes", func(t *testing.T) {
		claims, err := gate.CheckAuthorizationToken(bearerRequest(resp.AccessToken), "events:subscribe")
		require.NoError(t, err)
		require.Equal(t, 4, claims.KeyID)
		require.Equal(t, "bot", claims.Owner)
	})

	t.Run("all required scopes must be present", func(t *testing.T) {
		_, err := gate.CheckAuthorizationToken(bearerRequest(resp.AccessToken), "events:subscribe", "keys:manage")
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := gate.CheckAuthorizationToken(bearerRequest(""))
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		_, err := gate.CheckAuthorizationToken(r)
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := gate.CheckAuthorizationToken(bearerRequest("not.a.token"))
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("blacklisted identity is refused despite valid token", func(t *testing.T) {
		gate.Tokens.BlacklistKey(4, 0)
		_, err := gate.CheckAuthorizationToken(bearerRequest(resp.AccessToken), "events:subscribe")
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})
}

func TestCheckAuthorizationKeyBootstrap(t *testing.T) {
	gate, _ := newTestGate(t)

	key, err := gate.CheckAuthorizationKey(context.Background(), testBootstrapKey)
	require.NoError(t, err)
	require.Equal(t, jwtx.BootstrapKeyID, key.ID)
	require.Equal(t, "system", key.Owner)
	require.Equal(t, []string{jwtx.ScopeKeysManage}, key.Scopes)
}

func TestCheckAuthorizationKeyStored(t *testing.T) {
	gate, keys := newTestGate(t)
	ctx := context.Background()

	rawKey, record, err := keys.CreateKey(ctx, "scraper", []string{"events:publish"})
	require.NoError(t, err)

	resolved, err := gate.CheckAuthorizationKey(ctx, rawKey)
	require.NoError(t, err)
	require.Equal(t, record.ID, resolved.ID)
	require.Equal(t, "scraper", resolved.Owner)
	require.Equal(t, []string{"events:publish"}, resolved.Scopes)
}

func TestCheckAuthorizationKeyFailures(t *testing.T) {
	gate, keys := newTestGate(t)
	ctx := context.Background()

	_, _, err := keys.CreateKey(ctx, "scraper", []string{"events:publish"})
	require.NoError(t, err)

	t.Run("empty key", func(t *testing.T) {
		_, err := gate.CheckAuthorizationKey(ctx, "")
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := gate.CheckAuthorizationKey(ctx, "no-underscores-here")
		require.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("well-formed but unknown key", func(t *testing.T) {
		unknown, _, err := cryptox.GenerateKey()
		require.NoError(t, err)
		_, err = gate.CheckAuthorizationKey(ctx, unknown)
		require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})
}

func TestCheckAuthorizationKeySkipsCorruptHash(t *testing.T) {
	gate, keys := newTestGate(t)
	ctx := context.Background()

	rawKey, record, err := keys.CreateKey(ctx, "scraper", []string{"events:publish"})
	require.NoError(t, err)

	// Plant a corrupt sibling sharing the prefix; the valid key must
	// still resolve.
	prefix, err := cryptox.ExtractPrefix(rawKey)
	require.NoError(t, err)
	_, err = gate.Store.APIKeys().CreateAPIKey(ctx, domain.APIKey{
		HashedKey: "not-a-real-hash",
		KeyPrefix: prefix,
		Owner:     "corrupt",
		Scopes:    []string{"events:publish"},
	})
	require.NoError(t, err)

	resolved, err := gate.CheckAuthorizationKey(ctx, rawKey)
	require.NoError(t, err)
	require.Equal(t, record.ID, resolved.ID)
}
