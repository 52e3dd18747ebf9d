package domain

import "context"

// ChatSender delivers one user utterance to the remote tutor and returns
// its reply. Failures are *ChatError values.
type ChatSender interface {
	Send(ctx context.Context, message string) (string, error)
}

// ConversationStore keeps the per-conversation history the tutor uses as
// model context. Implementations can be in-memory or any other backend.
type ConversationStore interface {
	Append(ctx context.Context, conversationID string, turn Turn) error
	Recent(ctx context.Context, conversationID string, n int) ([]Turn, error)
	Clear(ctx context.Context, conversationID string) error
	Stats(ctx context.Context, conversationID string) (ConversationStats, error)
}

// Hypothesis is one speech recognition result, partial or settled.
type Hypothesis struct {
	Transcript string
	Confidence float64
	IsFinal    bool
}

// ListenHandlers receive capture events. OnEnd fires exactly once per
// capture, whatever ended it.
type ListenHandlers struct {
	OnResult func(Hypothesis)
	OnError  func(message string)
	OnEnd    func()
}

// Voice describes one synthesis voice offered by the host.
type Voice struct {
	Name         string
	Lang         string // BCP-47 tag, e.g. "en-US"
	Gender       string
	LocalService bool // synthesized on this machine rather than over the network
}

// SpeakOptions tune one utterance. Zero values select the defaults.
type SpeakOptions struct {
	Voice  *Voice
	Rate   float64
	Pitch  float64
	Volume float64
	Lang   string
}

// SpeakHandlers receive utterance events. OnEnd fires on completion or
// cancellation; OnError replaces OnEnd when synthesis fails.
type SpeakHandlers struct {
	OnStart func()
	OnEnd   func()
	OnError func(message string)
}

// Task is a running capture or utterance. Cancel only requests a stop;
// Done closes once the engine confirms it.
type Task interface {
	Cancel()
	Done() <-chan struct{}
}

// SpeechService is the speech capability wrapper consumed by the voice
// coordinator.
type SpeechService interface {
	DetectCapabilities(ctx context.Context) Capabilities
	StartListening(h ListenHandlers) (Task, bool)
	StopListening()
	Speak(text string, opts SpeakOptions, h SpeakHandlers) (Task, bool)
	StopSpeaking()
}
