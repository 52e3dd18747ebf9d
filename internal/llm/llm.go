// Package llm provides the hosted model clients the tutor talks to: the
// Gemini REST API and any OpenAI-compatible chat-completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Request is one single-shot generation: a system instruction plus the
// fully assembled user prompt.
type Request struct {
	System string
	Prompt string
}

// Model generates a complete reply.
type Model interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Streamer is a Model that can also deliver the reply incrementally.
// onDelta receives each new fragment; the full text is returned at the end.
type Streamer interface {
	Model
	Stream(ctx context.Context, req Request, onDelta func(string)) (string, error)
}

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when no usable API key is configured.
	ErrNoAPIKey = errors.New("llm: API key required")

	// ErrBlocked is returned when the provider refused the prompt or the
	// reply on safety grounds.
	ErrBlocked = errors.New("llm: blocked by safety filters")

	// ErrEmptyResponse is returned when the provider answered with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// APIError is an error response from a provider.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("llm [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports an HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports an HTTP 401 or 403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
