package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

const providerOpenAI = "openai"

// Compile-time interface check.
var _ Model = (*OpenAI)(nil)

// chatMessage is a single chat-completion message.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatPayload is the request body sent to the chat-completions endpoint.
type chatPayload struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Model       string        `json:"model,omitempty"`
}

// chatResponse is the top-level response envelope.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAI)

// WithOpenAIModel sets the model name. Azure deployments omit it.
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *OpenAI) { c.model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(c *OpenAI) { c.temperature = t }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAI) { c.maxTokens = n }
}

// WithOpenAITimeout sets the HTTP client timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAI) { c.http.Timeout = d }
}

// OpenAI talks to an OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	http        *http.Client
	log         *logger.Logger
}

// NewOpenAI creates a chat-completions client.
//   - endpoint: full URL to the chat/completions resource
//     (e.g. "https://<resource>.openai.azure.com/openai/deployments/<dep>/chat/completions?api-version=2024-02-01")
//   - apiKey:   the subscription / API key
func NewOpenAI(endpoint, apiKey string, log *logger.Logger, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("openai: endpoint required")
	}
	c := &OpenAI{
		endpoint:    endpoint,
		apiKey:      apiKey,
		temperature: 0.7,
		topP:        0.95,
		maxTokens:   400,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         log.With("openai"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Name returns the model name, or "openai" for deployments that omit it.
func (c *OpenAI) Name() string {
	if c.model == "" {
		return providerOpenAI
	}
	return c.model
}

// Generate implements Model.
func (c *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatPayload{
		Messages:    messages,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
		Model:       c.model,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debug("POST %s (%d bytes)", c.endpoint, len(jsonData))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}

	var result chatResponse
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK {
		message := string(respBody)
		if decodeErr == nil && result.Error != nil && result.Error.Message != "" {
			message = result.Error.Message
			if result.Error.Code == "content_filter" {
				return "", fmt.Errorf("openai: %s: %w", message, ErrBlocked)
			}
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: message, Provider: providerOpenAI}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("openai: unmarshal response: %w", decodeErr)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices: %w", ErrEmptyResponse)
	}
	if result.Choices[0].FinishReason == "content_filter" {
		return "", fmt.Errorf("openai: %w", ErrBlocked)
	}

	reply := result.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	c.log.Debug("reply (%d chars): %s", len(reply), truncate(reply, 120))
	return reply, nil
}
