package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/auth"
	"github.com/vedran77/pulseboard/internal/repository"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, users repository.UserDirectory, jwtSecret string, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		identity, err := auth.Parse(tokenStr, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var name string
		if found, err := users.GetByIDs(r.Context(), []uuid.UUID{identity.UserID}); err != nil {
			hub.log.Warn().Err(err).Msg("resolve connecting user")
		} else {
			name = found[identity.UserID].Name
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.log.Error().Err(err).Msg("accept")
			return
		}

		client := NewClient(hub, conn, identity, name)
		if !hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		go client.WritePump(r.Context())
		client.ReadPump(r.Context())
	}
}
