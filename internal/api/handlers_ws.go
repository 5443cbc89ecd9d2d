package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/game-stats/internal/logging"
	ws "github.com/game-stats/internal/websocket"
)

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkWebSocketOrigin,
	}
}

// checkWebSocketOrigin accepts non-browser clients (no Origin) and the configured CORS origins
func (s *Server) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.CORSOrigins) == 0 {
		return true
	}
	for _, allowed := range s.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.FromContext(r.Context()).WithField("origin", origin).Warn("Websocket connection rejected from unauthorized origin")
	return false
}

// handleWebSocket upgrades the request to a push listener. The listener gets
// the current snapshot immediately when one exists.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "push channel is not available", nil)
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		logging.FromContext(r.Context()).WithError(err).Debug("Websocket upgrade failed")
		return
	}

	client := ws.NewClient(s.hub, conn)
	if snapshot := s.engine.CachedSnapshot(r.Context()); snapshot != nil {
		client.Send(ws.NewMessage(ws.MessageTypeInitial, snapshot))
	}
	if !s.hub.Register(client) {
		_ = conn.Close()
		return
	}
	client.Start()
}
