package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

// chatSocket handles GET /api/chat/ws. Each client frame is one chat
// turn; the reply streams back as delta frames followed by a done frame
// carrying the full text, or a single error frame. Turns on one
// connection are served in order.
func (s *Server) chatSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id := conversationID(c)
	s.log.Info("websocket client connected (conversation=%s)", id)

	for {
		var req domain.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket error: %v", err)
			}
			break
		}

		if err := s.streamTurn(c.Request.Context(), conn, id, req.Message); err != nil {
			s.log.Warn("websocket write failed: %v", err)
			break
		}
	}

	s.log.Info("websocket client disconnected (conversation=%s)", id)
}

// streamTurn runs one turn. Only write failures are returned; turn
// failures are reported to the client as error frames.
func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, id, message string) error {
	text, verr := domain.ValidateMessage(message)
	if verr != nil {
		return conn.WriteJSON(domain.StreamFrame{Type: domain.FrameError, Content: verr.Message, Code: verr.Kind})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var writeErr error
	reply, err := s.tutor.Stream(ctx, id, text, func(delta string) {
		if writeErr != nil {
			return
		}
		if writeErr = conn.WriteJSON(domain.StreamFrame{Type: domain.FrameDelta, Content: delta}); writeErr != nil {
			cancel()
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		ce := domain.AsChatError(err)
		return conn.WriteJSON(domain.StreamFrame{Type: domain.FrameError, Content: ce.Message, Code: ce.Kind})
	}
	return conn.WriteJSON(domain.StreamFrame{Type: domain.FrameDone, Content: reply})
}
