package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/insightlab/reportstream/internal/monitor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer in front of the gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleMonitor attaches a websocket observer to a session's sub-agent
// activity. The connection is push-only; inbound messages are drained solely
// to detect disconnects.
func (s *Server) handleMonitor(c *gin.Context) {
	sessionID := c.Param("session_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed",
			slog.String("session_id", sessionID), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(c.Request.Context(), sessionID)
	defer s.hub.Unsubscribe(sessionID, sub.ID)

	s.log.Info("monitor connected",
		slog.String("session_id", sessionID), slog.String("subscriber_id", sub.ID))

	// Reader whose only job is noticing the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unsubscribe(sessionID, sub.ID)
				return
			}
		}
	}()

	ticker := time.NewTicker(monitor.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case activity, ok := <-sub.Ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(activity); err != nil {
				s.log.Debug("monitor write failed, closing",
					slog.String("subscriber_id", sub.ID), slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(monitor.AgentActivity{
				Type:      "heartbeat",
				SessionID: sessionID,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
		case <-sub.Done():
			return
		}
	}
}
