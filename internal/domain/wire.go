package domain

import "time"

// ConversationHeader carries the conversation id on chat requests.
const ConversationHeader = "X-Conversation-ID"

// DefaultConversationID is used when a request names no conversation.
const DefaultConversationID = "default"

// ChatRequest is the body of POST /api/chat and of websocket frames.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body of every /api/chat reply.
type ChatResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
	Code      ErrorKind  `json:"code,omitempty"`
}

// StatusResponse is the body of GET /api/status. The counts describe the
// conversation named by the request.
type StatusResponse struct {
	Configured          bool       `json:"configured"`
	Model               string     `json:"model,omitempty"`
	TotalMessages       int        `json:"totalMessages"`
	UserMessages        int        `json:"userMessages"`
	AssistantMessages   int        `json:"aiMessages"`
	ConversationStarted *time.Time `json:"conversationStarted,omitempty"`
}

// Stream frame types sent over the chat websocket.
const (
	FrameDelta = "delta"
	FrameDone  = "done"
	FrameError = "error"
)

// StreamFrame is one server message on the chat websocket.
type StreamFrame struct {
	Type    string    `json:"type"`
	Content string    `json:"content,omitempty"`
	Code    ErrorKind `json:"code,omitempty"`
}
