package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers.
var (
	ErrNoSpeechHost   = errors.New("no speech capabilities available on this host")
	ErrBusy           = errors.New("a reply is already in progress")
	ErrNothingToRetry = errors.New("nothing to retry")
	ErrNotConfigured  = errors.New("chat model is not configured")
)

// MaxMessageLength is the longest accepted user message, in characters,
// after trimming.
const MaxMessageLength = 4000

// ErrorKind classifies a failure for presentation and retry policy.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration" // credential missing or invalid; not user-retryable
	KindCapacity      ErrorKind = "capacity"      // quota or rate limit; retry later
	KindNetwork       ErrorKind = "network"       // transient; retry now
	KindSafety        ErrorKind = "safety"        // model declined; rephrase
	KindSpeech        ErrorKind = "speech"        // speech engine failure; start listening again
	KindValidation    ErrorKind = "validation"    // rejected before any network call
	KindGeneric       ErrorKind = "generic"
)

// Retryable reports whether resubmitting the same input can succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindConfiguration, KindValidation:
		return false
	default:
		return true
	}
}

// ParseErrorKind maps a wire code back to an ErrorKind. Unknown codes
// are generic.
func ParseErrorKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case KindConfiguration, KindCapacity, KindNetwork, KindSafety,
		KindSpeech, KindValidation:
		return k
	default:
		return KindGeneric
	}
}

// User-presentable texts for each kind of chat failure.
const (
	MsgConfiguration = "There's a configuration issue. Please check the setup."
	MsgCapacity      = "I'm at capacity right now. Please try again in a few minutes."
	MsgNetwork       = "I'm having connection issues. Please check your internet and try again."
	MsgSafety        = "Let's try a different topic. What would you like to practice in English?"
	MsgGeneric       = "Sorry, I'm having trouble hearing you right now. Please try speaking again."
	MsgEmptyInput    = "Please say something."
	MsgTooLong       = "Message is too long. Please keep it under 4000 characters."
)

// DefaultMessage returns the canned user text for kind.
func DefaultMessage(kind ErrorKind) string {
	switch kind {
	case KindConfiguration:
		return MsgConfiguration
	case KindCapacity:
		return MsgCapacity
	case KindNetwork:
		return MsgNetwork
	case KindSafety:
		return MsgSafety
	default:
		return MsgGeneric
	}
}

// ChatError is a classified failure of one chat turn. Message is safe to
// show to the user; Err keeps the underlying cause for logs.
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewChatError builds a ChatError with the canned message for kind.
func NewChatError(kind ErrorKind, cause error) *ChatError {
	return &ChatError{Kind: kind, Message: DefaultMessage(kind), Err: cause}
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *ChatError) Unwrap() error { return e.Err }

// AsChatError extracts a ChatError from err, classifying anything else
// as generic.
func AsChatError(err error) *ChatError {
	if err == nil {
		return nil
	}
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce
	}
	return NewChatError(KindGeneric, err)
}
