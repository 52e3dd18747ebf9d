package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// requestLogger logs every request as "[method] path?query - status (latency)".
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		if status >= 500 {
			log.Warn("[%s] %s - %d (%v)", c.Request.Method, path, status, latency)
			return
		}
		log.Info("[%s] %s - %d (%v)", c.Request.Method, path, status, latency)
	}
}

// conversationID reads the conversation header, falling back to the
// "conversation_id" query parameter (browsers cannot set websocket
// headers) and then to the default conversation.
func conversationID(c *gin.Context) string {
	if id := c.GetHeader(headerConversation); id != "" {
		return id
	}
	if id := c.Query("conversation_id"); id != "" {
		return id
	}
	return defaultConversation
}
