// Package client is the remote chat client: it sends one user message to
// the SecretKeeper server and turns every failure into a classified,
// user-presentable domain.ChatError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ domain.ChatSender = (*Client)(nil)

// DefaultTimeout bounds one chat request.
const DefaultTimeout = 30 * time.Second

// Option configures the Client.
type Option func(*Client)

// WithConversationID sets the conversation the server should file turns
// under.
func WithConversationID(id string) Option {
	return func(c *Client) { c.conversationID = id }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client talks to the chat endpoint. It never retries on its own.
type Client struct {
	baseURL        string
	conversationID string
	http           *http.Client
	log            *logger.Logger
}

// New creates a client for the server at baseURL (e.g.
// "http://localhost:3000").
func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		conversationID: domain.DefaultConversationID,
		http:           &http.Client{Timeout: DefaultTimeout},
		log:            log.With("client"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Send delivers one message and returns the tutor's reply. Every failure
// is a *domain.ChatError.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	text, verr := domain.ValidateMessage(message)
	if verr != nil {
		return "", verr
	}

	body, err := json.Marshal(domain.ChatRequest{Message: text})
	if err != nil {
		return "", domain.NewChatError(domain.KindGeneric, fmt.Errorf("client: marshal request: %w", err))
	}

	var resp domain.ChatResponse
	status, err := c.do(ctx, http.MethodPost, "/api/chat", body, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || !resp.Success {
		return "", responseError(status, resp)
	}
	if strings.TrimSpace(resp.Message) == "" {
		return "", domain.NewChatError(domain.KindGeneric, errors.New("client: empty reply"))
	}

	c.log.Debug("reply (%d chars)", len(resp.Message))
	return resp.Message, nil
}

// Reset asks the server to forget the conversation.
func (c *Client) Reset(ctx context.Context) error {
	var resp domain.ChatResponse
	status, err := c.do(ctx, http.MethodPost, "/api/chat/reset", nil, &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK || !resp.Success {
		return responseError(status, resp)
	}
	return nil
}

// Status reports whether the server has a model configured.
func (c *Client) Status(ctx context.Context) (domain.StatusResponse, error) {
	var resp domain.StatusResponse
	status, err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	if err != nil {
		return resp, err
	}
	if status != http.StatusOK {
		return resp, responseError(status, domain.ChatResponse{})
	}
	return resp, nil
}

// do performs one request and decodes the JSON body into out. Transport
// failures come back as network errors; the status is returned as is.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, domain.NewChatError(domain.KindGeneric, fmt.Errorf("client: create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(domain.ConversationHeader, c.conversationID)

	c.log.Debug("%s %s", method, path)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("%s %s failed: %v", method, path, err)
		return 0, domain.NewChatError(domain.KindNetwork, fmt.Errorf("client: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, domain.NewChatError(domain.KindNetwork, fmt.Errorf("client: read response: %w", err))
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, domain.NewChatError(domain.KindGeneric, fmt.Errorf("client: decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

// responseError classifies a failed reply. The server's code wins over the
// HTTP status; the server's text is kept when present.
func responseError(status int, resp domain.ChatResponse) *domain.ChatError {
	kind := kindForStatus(status)
	if resp.Code != "" {
		kind = domain.ParseErrorKind(string(resp.Code))
	}
	ce := domain.NewChatError(kind, fmt.Errorf("client: server returned %d", status))
	if resp.Error != "" {
		ce.Message = resp.Error
	}
	return ce
}

func kindForStatus(status int) domain.ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable:
		return domain.KindConfiguration
	case http.StatusTooManyRequests:
		return domain.KindCapacity
	case http.StatusUnprocessableEntity:
		return domain.KindSafety
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return domain.KindNetwork
	default:
		return domain.KindGeneric
	}
}
