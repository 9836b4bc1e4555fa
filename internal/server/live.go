package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/avanlaar/glimmer/internal/models"
)

const (
	livePushInterval = 500 * time.Millisecond
	liveSessionMax   = 10 * time.Minute
	liveWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from a UI origin this server does not know.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveUpdate is one frame pushed over the live socket: the in-flight
// assistant message's current content. The final frame carries a terminal
// status.
type liveUpdate struct {
	MessageID  string `json:"message_id"`
	Status     string `json:"status"`
	Content    string `json:"content"`
	TokenCount *int   `json:"token_count,omitempty"`
}

// handleLive upgrades to a websocket and pushes the streaming message's
// content on an interval until the message reaches a terminal state or the
// client disconnects.
func (s *Server) handleLive(c echo.Context) error {
	conversationID := c.Param("id")
	if _, err := s.ownedConversation(c, conversationID); err != nil {
		return jsonError(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Upgrade already wrote the handshake error
	}
	defer conn.Close()

	// Drain client frames so close messages are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	ticker := time.NewTicker(livePushInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(liveSessionMax)

	var trackedID string
	for {
		select {
		case <-clientGone:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return nil
		}

		msg, err := s.currentMessage(c, conversationID, trackedID)
		if err != nil {
			s.deps.Logger.Warn("live poll failed",
				"conversation_id", conversationID, "error", err)
			continue
		}
		if msg == nil {
			continue
		}
		trackedID = models.MustRecordIDString(msg.ID)

		update := liveUpdate{
			MessageID:  trackedID,
			Status:     msg.Status,
			Content:    msg.Content,
			TokenCount: msg.TokenCount,
		}
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(update); err != nil {
			return nil
		}

		if msg.Status != models.MessageStreaming {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteTimeout))
			return nil
		}
	}
}

// currentMessage returns the message to push: the tracked message once one
// is known (so its terminal state is observed), otherwise whatever is
// currently streaming.
func (s *Server) currentMessage(c echo.Context, conversationID, trackedID string) (*models.Message, error) {
	ctx := c.Request().Context()
	if trackedID != "" {
		return s.deps.Store.GetMessage(ctx, trackedID)
	}
	return s.deps.Store.StreamingMessage(ctx, conversationID)
}
