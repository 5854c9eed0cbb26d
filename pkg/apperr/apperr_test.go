package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindTooManyRequests, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
		{KindConnection, http.StatusInternalServerError},
		{KindExternalService, http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			require.Equal(t, tc.status, New(tc.kind, "msg").Status)
		})
	}
}

func TestWriteClientErrorKeepsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Validation("owner is required"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var b struct {
		Status  int    `json:"status"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	require.Equal(t, http.StatusBadRequest, b.Status)
	require.Equal(t, "validation_error", b.Kind)
	require.Equal(t, "owner is required", b.Message)
}

func TestWriteScrubsServerErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Wrap(KindInternal, "sqlite: disk I/O error on /var/db", errors.New("boom")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "sqlite")
	require.NotContains(t, rec.Body.String(), "boom")
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestFromCoercesUnknownErrors(t *testing.T) {
	cause := errors.New("raw failure")
	ae := From(cause)
	require.Equal(t, KindInternal, ae.Kind)
	require.ErrorIs(t, ae, cause)

	// Already-typed errors pass through, even wrapped.
	orig := NotFound("gone")
	require.Same(t, orig, From(orig))
}

func TestIsKind(t *testing.T) {
	require.True(t, IsKind(Unauthorized("nope"), KindUnauthorized))
	require.False(t, IsKind(Unauthorized("nope"), KindNotFound))
	require.False(t, IsKind(errors.New("plain"), KindInternal))
}
