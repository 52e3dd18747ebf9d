package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

const providerGemini = "gemini"

// Gemini defaults.
const (
	DefaultGeminiModel   = "gemini-1.5-flash"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// GeminiKeyPlaceholder is the value shipped in example env files.
	GeminiKeyPlaceholder = "your_gemini_api_key_here"
)

// Compile-time interface check.
var _ Streamer = (*Gemini)(nil)

// ValidateGeminiKey checks the basic shape of a Gemini API key. It does
// not contact the API.
func ValidateGeminiKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("gemini: %w", ErrNoAPIKey)
	case key == GeminiKeyPlaceholder:
		return fmt.Errorf("gemini: placeholder key, replace it with a real one: %w", ErrNoAPIKey)
	case !strings.HasPrefix(key, "AIza") || len(key) < 30:
		return fmt.Errorf("gemini: key should start with 'AIza' and be at least 30 characters: %w", ErrNoAPIKey)
	}
	return nil
}

// GeminiOption configures the Gemini client.
type GeminiOption func(*Gemini)

// WithGeminiModel overrides the default model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiBaseURL overrides the API base URL. Used by tests.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(url, "/") }
}

// WithGeminiTimeout sets the HTTP client timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) { g.http.Timeout = d }
}

// Gemini talks to Google's Gemini generateContent API.
type Gemini struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	http        *http.Client
	log         *logger.Logger
}

// NewGemini creates a Gemini client. The key must pass ValidateGeminiKey.
func NewGemini(apiKey string, log *logger.Logger, opts ...GeminiOption) (*Gemini, error) {
	if err := ValidateGeminiKey(apiKey); err != nil {
		return nil, err
	}
	g := &Gemini{
		apiKey:      apiKey,
		model:       DefaultGeminiModel,
		baseURL:     DefaultGeminiBaseURL,
		temperature: 0.7,
		maxTokens:   400,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         log.With("gemini"),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Name returns the model name.
func (g *Gemini) Name() string { return g.model }

// Generate implements Model.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.post(ctx, "generateContent", "", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	text, err := result.text()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	g.log.Debug("reply (%d chars): %s", len(text), truncate(text, 120))
	return text, nil
}

// Stream implements Streamer using server-sent events.
func (g *Gemini) Stream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	resp, err := g.post(ctx, "streamGenerateContent", "alt=sse", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("gemini: decode stream chunk: %w", err)
		}
		delta, err := chunk.text()
		if err != nil {
			return full.String(), err
		}
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("gemini: read stream: %w", err)
	}

	if strings.TrimSpace(full.String()) == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return full.String(), nil
}

// post sends the request to the given model method and returns the
// response on HTTP 200.
func (g *Gemini) post(ctx context.Context, method, query string, req Request) (*http.Response, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxTokens,
		},
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s", g.baseURL, g.model, method)
	if query != "" {
		url += "?" + query
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	g.log.Debug("POST %s (%d bytes)", url, len(body))

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseGeminiError(resp)
	}
	return resp, nil
}

// parseGeminiError reads and parses an error response.
func parseGeminiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		if errResp.Error.Status != "" {
			message = errResp.Error.Status + ": " + message
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerGemini,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// geminiResponse is the generateContent response format; streamed chunks
// share it.
type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// text joins the first candidate's parts. A safety block on the prompt or
// the candidate yields ErrBlocked.
func (r *geminiResponse) text() (string, error) {
	if r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt %s: %w", strings.ToLower(r.PromptFeedback.BlockReason), ErrBlocked)
	}
	if len(r.Candidates) == 0 {
		return "", nil
	}
	c := r.Candidates[0]
	if c.FinishReason == "SAFETY" {
		return "", fmt.Errorf("gemini: candidate: %w", ErrBlocked)
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
