package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
func int64Ptr(i int64) *int64 { return &i }

func TestAPIKeysCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.APIKeys().CreateAPIKey(ctx, domain.APIKey{
		HashedKey: "$argon2id$...",
		KeyPrefix: "khk_abc123",
		Owner:     "bot",
		Scopes:    []string{"events:subscribe", "events:publish"},
	})
	require.NoError(t, err)
	require.Positive(t, created.ID)

	// Lookup by id.
	byID, err := s.APIKeys().FindAPIKeys(ctx, store.APIKeyFilter{ID: intPtr(created.ID)})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Equal(t, "bot", byID[0].Owner)
	require.Equal(t, []string{"events:subscribe", "events:publish"}, byID[0].Scopes)

	// Prefixes are not unique: a second record can share one.
	_, err = s.APIKeys().CreateAPIKey(ctx, domain.APIKey{
		HashedKey: "$argon2id$other",
		KeyPrefix: "khk_abc123",
		Owner:     "other",
	})
	require.NoError(t, err)

	byPrefix, err := s.APIKeys().FindAPIKeys(ctx, store.APIKeyFilter{Prefix: strPtr("khk_abc123")})
	require.NoError(t, err)
	require.Len(t, byPrefix, 2)

	// Delete by id leaves the sibling untouched.
	require.NoError(t, s.APIKeys().DeleteAPIKeys(ctx, store.APIKeyFilter{ID: intPtr(created.ID)}))

	remaining, err := s.APIKeys().FindAPIKeys(ctx, store.APIKeyFilter{Prefix: strPtr("khk_abc123")})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "other", remaining[0].Owner)
}

func TestAPIKeysRequireFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.APIKeys().FindAPIKeys(ctx, store.APIKeyFilter{})
	require.ErrorIs(t, err, store.ErrMissingFilter)

	err = s.APIKeys().DeleteAPIKeys(ctx, store.APIKeyFilter{})
	require.ErrorIs(t, err, store.ErrMissingFilter)
}

func TestNotificationCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.NotificationCodes().RegisterCode(ctx, domain.NotificationCode{
		Code:        "game1-news",
		Description: "news scraper updates",
	}))

	code, err := s.NotificationCodes().GetCode(ctx, "game1-news")
	require.NoError(t, err)
	require.Equal(t, "news scraper updates", code.Description)
	require.False(t, code.LastUsed.IsZero())

	_, err = s.NotificationCodes().GetCode(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.NotificationCodes().TouchCode(ctx, "game1-news"))
	require.ErrorIs(t, s.NotificationCodes().TouchCode(ctx, "missing"), store.ErrNotFound)

	codes, err := s.NotificationCodes().ListCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
}

func TestUnregisterCodeCascadesTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.NotificationCodes().RegisterCode(ctx, domain.NotificationCode{Code: "releases"}))

	_, err := s.NotificationTargets().Subscribe(ctx, domain.NotificationTarget{
		Code:      "releases",
		ChannelID: 100,
		GuildID:   200,
		Format:    "New release: {message}",
	})
	require.NoError(t, err)

	require.NoError(t, s.NotificationCodes().UnregisterCode(ctx, "releases"))

	targets, err := s.NotificationTargets().FindTargets(ctx, store.TargetFilter{Code: strPtr("releases")})
	require.NoError(t, err)
	require.Empty(t, targets, "cascade should remove subscriptions with their code")
}

func TestTargetsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.NotificationCodes().RegisterCode(ctx, domain.NotificationCode{Code: "releases"}))

	for _, channel := range []int64{1, 2} {
		_, err := s.NotificationTargets().Subscribe(ctx, domain.NotificationTarget{
			Code:      "releases",
			ChannelID: channel,
			GuildID:   42,
		})
		require.NoError(t, err)
	}

	byChannel, err := s.NotificationTargets().FindTargets(ctx, store.TargetFilter{ChannelID: int64Ptr(1)})
	require.NoError(t, err)
	require.Len(t, byChannel, 1)

	byGuild, err := s.NotificationTargets().FindTargets(ctx, store.TargetFilter{GuildID: int64Ptr(42)})
	require.NoError(t, err)
	require.Len(t, byGuild, 2)

	require.NoError(t, s.NotificationTargets().Unsubscribe(ctx, "releases", 1, 42))
	require.ErrorIs(t, s.NotificationTargets().Unsubscribe(ctx, "releases", 1, 42), store.ErrNotFound)
}

func TestDeleteStaleCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.NotificationCodes().RegisterCode(ctx, domain.NotificationCode{
		Code:     "old",
		LastUsed: time.Now().UTC().Add(-90 * 24 * time.Hour),
	}))
	require.NoError(t, s.NotificationCodes().RegisterCode(ctx, domain.NotificationCode{Code: "fresh"}))

	n, err := s.NotificationCodes().DeleteStaleCodes(ctx, time.Now().UTC().Add(-60*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.NotificationCodes().GetCode(ctx, "old")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.NotificationCodes().GetCode(ctx, "fresh")
	require.NoError(t, err)
}
