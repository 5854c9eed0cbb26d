package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	httpapi "github.com/kohakuhq/kohaku/internal/server/http"
	"github.com/kohakuhq/kohaku/internal/server/service"
	"github.com/kohakuhq/kohaku/internal/server/store/drivers/sqlite"
	"github.com/kohakuhq/kohaku/internal/server/ws"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
)

const bootstrapKey = "e2e-bootstrap-secret"

// newTestServer wires the full HTTP surface against a throwaway sqlite
// database, the way the application composes it at startup.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	signer, err := jwtx.NewHS256([]byte("e2e-signing-secret"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := service.NewTokenService(signer)
	registry := ws.NewRegistry(logger)

	router := httpapi.NewRouter("e2e", st, logger)
	router.Tokens = tokens
	router.Gate = &service.AuthorizeService{
		Tokens:       tokens,
		Store:        st,
		BootstrapKey: bootstrapKey,
	}
	router.Keys = &service.KeysService{Store: st, Tokens: tokens}
	router.Notify = &service.NotifyService{Store: st, Registry: registry}
	router.Registry = registry
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type errorBody struct {
	Status  int    `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func doJSON(t *testing.T, method, url string, headers map[string]string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func login(t *testing.T, srv *httptest.Server, apiKey string) (tokenResponse, int) {
	t.Helper()
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/auth/login", map[string]string{"X-API-Key": apiKey}, nil)
	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, resp.StatusCode
	}
	var tokens tokenResponse
	require.NoError(t, json.Unmarshal(raw, &tokens))
	return tokens, resp.StatusCode
}

func createKey(t *testing.T, srv *httptest.Server, token, owner string, scopes []string) (string, int) {
	t.Helper()
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/auth/manage/create",
		map[string]string{"Authorization": "Bearer " + token},
		map[string]any{"owner": owner, "scopes": scopes},
	)
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode
	}
	var out struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out.APIKey, resp.StatusCode
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}
