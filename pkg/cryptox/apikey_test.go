package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	for range 50 {
		key, prefix, err := GenerateKey()
		require.NoError(t, err)

		require.Len(t, key, FullKeyLength)
		require.Len(t, prefix, PrefixLength)
		require.True(t, strings.HasPrefix(key, prefix), "full key must start with its prefix")
		require.True(t, strings.HasPrefix(key, KeyTag))
		require.Len(t, strings.Split(key, "_"), 3)
	}
}

func TestRandomString(t *testing.T) {
	lengths := []int{0, 1, 6, 31, 128}

	for _, n := range lengths {
		s, err := RandomString(n)
		require.NoError(t, err)
		require.Len(t, s, n)

		for _, c := range s {
			require.Contains(t, Charset, string(c), "character outside the fixed charset")
		}
	}
}

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{"valid key", "khk_abc123_" + strings.Repeat("x", 31), "khk_abc123", false},
		{"prefix only", "khk_abc123", "", true},
		{"no underscores", "khkabc123", "", true},
		{"too many segments", "khk_a_b_c", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPrefix(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPrefixRoundTrip(t *testing.T) {
	key, prefix, err := GenerateKey()
	require.NoError(t, err)

	got, err := ExtractPrefix(key)
	require.NoError(t, err)
	require.Equal(t, prefix, got)
}
