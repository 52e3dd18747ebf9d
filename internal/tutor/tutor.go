// Package tutor is the server side of a chat turn: it keeps the recent
// conversation, frames it for the model and classifies model failures
// into user-presentable errors.
package tutor

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/llm"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Option configures the Tutor.
type Option func(*Tutor)

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(t *Tutor) { t.now = now }
}

// Tutor answers student messages through a hosted model.
type Tutor struct {
	model llm.Model // nil when no usable credentials were configured
	store domain.ConversationStore
	log   *logger.Logger
	now   func() time.Time
}

// New creates a tutor. A nil model is allowed; every turn then fails with
// a configuration error.
func New(model llm.Model, store domain.ConversationStore, log *logger.Logger, opts ...Option) *Tutor {
	t := &Tutor{
		model: model,
		store: store,
		log:   log.With("tutor"),
		now:   time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Configured reports whether a model is available.
func (t *Tutor) Configured() bool { return t.model != nil }

// ModelName returns the configured model name, or "" when unconfigured.
func (t *Tutor) ModelName() string {
	if t.model == nil {
		return ""
	}
	return t.model.Name()
}

// Reply answers one message. Failures are *domain.ChatError.
func (t *Tutor) Reply(ctx context.Context, conversationID, message string) (string, error) {
	req, err := t.prepare(ctx, conversationID, message)
	if err != nil {
		return "", err
	}

	reply, err := t.model.Generate(ctx, req)
	if err != nil {
		return "", t.fail(conversationID, err)
	}
	return t.finish(ctx, conversationID, reply), nil
}

// Stream answers one message, delivering fragments to onDelta as they
// arrive. Models without streaming deliver the whole reply as one
// fragment.
func (t *Tutor) Stream(ctx context.Context, conversationID, message string, onDelta func(string)) (string, error) {
	req, err := t.prepare(ctx, conversationID, message)
	if err != nil {
		return "", err
	}

	var reply string
	if s, ok := t.model.(llm.Streamer); ok {
		reply, err = s.Stream(ctx, req, onDelta)
	} else {
		reply, err = t.model.Generate(ctx, req)
		if err == nil && onDelta != nil {
			onDelta(reply)
		}
	}
	if err != nil {
		return "", t.fail(conversationID, err)
	}
	return t.finish(ctx, conversationID, reply), nil
}

// Clear forgets a conversation.
func (t *Tutor) Clear(ctx context.Context, conversationID string) error {
	t.log.Info("conversation %s cleared", conversationID)
	return t.store.Clear(ctx, conversationID)
}

// Stats summarises a conversation.
func (t *Tutor) Stats(ctx context.Context, conversationID string) (domain.ConversationStats, error) {
	return t.store.Stats(ctx, conversationID)
}

// prepare validates the message, records the user turn and builds the
// model request. The recorded turn is part of the replayed window.
func (t *Tutor) prepare(ctx context.Context, conversationID, message string) (llm.Request, error) {
	text, verr := domain.ValidateMessage(message)
	if verr != nil {
		return llm.Request{}, verr
	}
	if t.model == nil {
		t.log.Warn("turn rejected: no model configured")
		return llm.Request{}, domain.NewChatError(domain.KindConfiguration, domain.ErrNotConfigured)
	}

	if err := t.store.Append(ctx, conversationID, domain.Turn{Role: domain.RoleUser, Content: text, Timestamp: t.now()}); err != nil {
		t.log.Error("recording user turn: %v", err)
		return llm.Request{}, domain.NewChatError(domain.KindGeneric, err)
	}
	history, err := t.store.Recent(ctx, conversationID, HistoryWindow)
	if err != nil {
		t.log.Error("loading history: %v", err)
		return llm.Request{}, domain.NewChatError(domain.KindGeneric, err)
	}

	t.log.Debug("conversation %s: sending %d chars with %d turns of context", conversationID, len(text), len(history))
	return llm.Request{System: SystemPrompt, Prompt: BuildPrompt(history, text)}, nil
}

func (t *Tutor) finish(ctx context.Context, conversationID, reply string) string {
	if err := t.store.Append(ctx, conversationID, domain.Turn{Role: domain.RoleAssistant, Content: reply, Timestamp: t.now()}); err != nil {
		t.log.Error("recording tutor turn: %v", err)
	}
	t.log.Info("conversation %s: replied (%d chars)", conversationID, len(reply))
	return reply
}

func (t *Tutor) fail(conversationID string, err error) *domain.ChatError {
	ce := Classify(err)
	t.log.Error("conversation %s: model call failed (%s): %v", conversationID, ce.Kind, err)
	return ce
}

// Classify maps a model failure to a chat error kind and its user text.
func Classify(err error) *domain.ChatError {
	if err == nil {
		return nil
	}
	var ce *domain.ChatError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, llm.ErrNoAPIKey), errors.Is(err, domain.ErrNotConfigured):
		return domain.NewChatError(domain.KindConfiguration, err)
	case errors.Is(err, llm.ErrBlocked):
		return domain.NewChatError(domain.KindSafety, err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewChatError(domain.KindNetwork, err)
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsUnauthorized():
			return domain.NewChatError(domain.KindConfiguration, err)
		case apiErr.IsRateLimited():
			return domain.NewChatError(domain.KindCapacity, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewChatError(domain.KindNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key not valid"), strings.Contains(msg, "api_key_invalid"):
		return domain.NewChatError(domain.KindConfiguration, err)
	case strings.Contains(msg, "quota"), strings.Contains(msg, "limit"):
		return domain.NewChatError(domain.KindCapacity, err)
	case strings.Contains(msg, "network"), strings.Contains(msg, "fetch"), strings.Contains(msg, "timeout"):
		return domain.NewChatError(domain.KindNetwork, err)
	case strings.Contains(msg, "safety"):
		return domain.NewChatError(domain.KindSafety, err)
	}
	return domain.NewChatError(domain.KindGeneric, err)
}
