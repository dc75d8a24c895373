package hub

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/johnkord/sendie/internal/auth"
)

// upgrader accepts cross-origin WebSocket requests; the signaling hub
// itself enforces session membership and host authority, so it does not
// additionally need same-origin enforcement at the transport layer.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns the http.Handler that upgrades incoming requests to
// WebSocket connections and hands them to the hub. Mount this behind
// auth.Middleware so the principal is already attached to the request
// context. Hub connections may authenticate, but anonymous connections
// are accepted for every surface except host commands.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.PrincipalFromContext(r.Context())

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		h.Serve(ws, principal.UserID)
	})
}
