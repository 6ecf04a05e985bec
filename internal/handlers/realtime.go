package handlers

import (
	"log/slog"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxClientMessageBytes = 4096

type RealtimeHandler struct {
	registry *realtime.Registry
}

func NewRealtimeHandler(registry *realtime.Registry) *RealtimeHandler {
	return &RealtimeHandler{registry: registry}
}

// Tasks godoc
// @Summary      Task change stream
// @Description  WebSocket. Pushes task_created, task_updated and task_deleted events; text frames from a client are relayed to everyone as user_message.
// @Tags         websocket
// @Router       /ws/tasks [get]
func (h *RealtimeHandler) Tasks(c *gin.Context) {
	id, conn, err := h.registry.Accept(c.Writer, c.Request)
	if err != nil {
		slog.Warn("WebSocket handshake failed", "remote", c.ClientIP(), "error", err)
		return
	}
	defer h.registry.Disconnect(id)

	h.registry.SendTo(dom.Connected(id, "WebSocket connection established"), id)

	conn.SetReadLimit(maxClientMessageBytes)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Client closed connection", "client_id", id)
			} else {
				slog.Warn("WebSocket read failed", "client_id", id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.registry.Broadcast(dom.UserMessage(id, string(data), time.Now().UTC()), "")
	}
}
