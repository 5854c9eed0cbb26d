package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kohakuhq/kohaku/internal/server/service"
	"github.com/kohakuhq/kohaku/internal/server/ws"
	"github.com/kohakuhq/kohaku/pkg/apperr"
	"github.com/kohakuhq/kohaku/pkg/idx"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are headless services, not browsers; origin checks do
	// not apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

func writeControlDeadline() time.Time {
	return time.Now().Add(5 * time.Second)
}

// UpgradeHandler serves GET /ws. The raw key in X-API-Key must resolve
// before the upgrade; one live session per identity is enforced by the
// registry. The handler blocks for the life of the session.
type UpgradeHandler struct {
	Gate     *service.AuthorizeService
	Registry *ws.Registry
	Logger   *slog.Logger
}

func (h *UpgradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	key, err := h.Gate.CheckAuthorizationKey(ctx, r.Header.Get(apiKeyHeader))
	if err != nil {
		apperr.Write(w, err)
		return
	}

	// Refuse obvious duplicates before committing to the upgrade.
	if h.Registry.Connected(key.ID) {
		apperr.Write(w, apperr.Conflict("identity already has a live session"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure response.
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	identity := ws.Identity{
		ConnectionID: idx.New().String(),
		Owner:        key.Owner,
		KeyID:        key.ID,
	}

	session, err := h.Registry.AddConnection(identity, ws.NewConn(conn))
	if err != nil {
		// Lost the admission race after the upgrade; the existing
		// session stays untouched.
		if errors.Is(err, ws.ErrAlreadyConnected) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session already active"),
				writeControlDeadline())
		}
		_ = conn.Close()
		return
	}

	session.Run()
}
