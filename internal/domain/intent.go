package domain

import "context"

// IntentType classifies a line the user typed into the terminal client.
type IntentType int

const (
	IntentUnknown IntentType = iota
	IntentSay                // free text sent to the tutor as a turn
	IntentTalk               // start listening for a spoken turn
	IntentStop               // stop the voice chat (hard reset)
	IntentHush               // stop the reply being spoken
	IntentRetry              // resubmit the last turn after an error
	IntentClear              // empty the conversation
	IntentStatus             // show state and capabilities
	IntentHelp
	IntentQuit
)

// String returns a human-readable intent type.
func (i IntentType) String() string {
	switch i {
	case IntentSay:
		return "say"
	case IntentTalk:
		return "talk"
	case IntentStop:
		return "stop"
	case IntentHush:
		return "hush"
	case IntentRetry:
		return "retry"
	case IntentClear:
		return "clear"
	case IntentStatus:
		return "status"
	case IntentHelp:
		return "help"
	case IntentQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Intent represents a parsed user action.
type Intent struct {
	Type    IntentType
	Payload string // the text to send for IntentSay
}

// intentNames maps snake_case names to IntentType values.
var intentNames = map[string]IntentType{
	"say":     IntentSay,
	"talk":    IntentTalk,
	"stop":    IntentStop,
	"hush":    IntentHush,
	"retry":   IntentRetry,
	"clear":   IntentClear,
	"status":  IntentStatus,
	"help":    IntentHelp,
	"quit":    IntentQuit,
	"unknown": IntentUnknown,
}

// IntentFromString converts a snake_case intent name to an IntentType.
// Returns IntentUnknown for unrecognized names.
func IntentFromString(name string) IntentType {
	if t, ok := intentNames[name]; ok {
		return t
	}
	return IntentUnknown
}

// IntentParser turns a typed line into an intent.
type IntentParser interface {
	Parse(ctx context.Context, input string) (*Intent, error)
}

// Notifier shows out-of-band notices such as error banners.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}
