package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

// statusFor maps an error kind to the HTTP status of the failed reply.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConfiguration:
		return http.StatusServiceUnavailable
	case domain.KindCapacity:
		return http.StatusTooManyRequests
	case domain.KindSafety:
		return http.StatusUnprocessableEntity
	case domain.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	ce := domain.AsChatError(err)
	c.JSON(statusFor(ce.Kind), domain.ChatResponse{
		Success: false,
		Error:   ce.Message,
		Code:    ce.Kind,
	})
}

// postChat handles POST /api/chat.
func (s *Server) postChat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.log.Debug("bad chat body: %v", err)
		s.fail(c, &domain.ChatError{Kind: domain.KindValidation, Message: "Invalid request body.", Err: err})
		return
	}

	text, verr := domain.ValidateMessage(req.Message)
	if verr != nil {
		s.fail(c, verr)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	reply, err := s.tutor.Reply(ctx, conversationID(c), text)
	if err != nil {
		s.fail(c, err)
		return
	}

	ts := s.now()
	c.JSON(http.StatusOK, domain.ChatResponse{
		Success:   true,
		Message:   reply,
		Timestamp: &ts,
	})
}

// postReset handles POST /api/chat/reset.
func (s *Server) postReset(c *gin.Context) {
	if err := s.tutor.Clear(c.Request.Context(), conversationID(c)); err != nil {
		s.log.Error("reset failed: %v", err)
		s.fail(c, domain.NewChatError(domain.KindGeneric, err))
		return
	}
	c.JSON(http.StatusOK, domain.ChatResponse{Success: true})
}

// getStatus handles GET /api/status.
func (s *Server) getStatus(c *gin.Context) {
	resp := domain.StatusResponse{
		Configured: s.tutor.Configured(),
		Model:      s.tutor.ModelName(),
	}
	id := conversationID(c)
	st, err := s.tutor.Stats(c.Request.Context(), id)
	if err != nil {
		s.log.Warn("stats for %s: %v", id, err)
	} else {
		resp.TotalMessages = st.TotalMessages
		resp.UserMessages = st.UserMessages
		resp.AssistantMessages = st.AssistantMessages
		if !st.StartedAt.IsZero() {
			started := st.StartedAt
			resp.ConversationStarted = &started
		}
	}
	c.JSON(http.StatusOK, resp)
}
