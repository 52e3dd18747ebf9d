package voice

import "github.com/hammamikhairi/secretkeeper/internal/domain"

// input is an item delivered to the coordinator mailbox. Commands come
// from callers and carry a reply channel; events come from speech
// callbacks, the settle timer and remote completions and carry the
// generation of the activity that produced them.
type input interface {
	isInput()
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStopVoice
	cmdStopSpeaking
	cmdSubmit
	cmdRetry
	cmdClear
	cmdFlush // no-op; returns once everything queued before it was handled
)

func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdStopVoice:
		return "stop-voice"
	case cmdStopSpeaking:
		return "stop-speaking"
	case cmdSubmit:
		return "submit"
	case cmdRetry:
		return "retry"
	case cmdClear:
		return "clear"
	case cmdFlush:
		return "flush"
	default:
		return "unknown"
	}
}

type command struct {
	kind  commandKind
	text  string
	reply chan error
}

// Capture events.
type (
	captureResult struct {
		gen uint64
		hyp domain.Hypothesis
	}
	captureError struct {
		gen uint64
		msg string
	}
	captureEnd struct {
		gen uint64
	}
	// captureReleased resumes a start that waited for the previous
	// capture to finish.
	captureReleased struct {
		gen      uint64
		timedOut bool
	}
)

// settled is the settle timer firing with the held transcript.
type settled struct {
	gen   uint64
	value string
}

// replyDone is the completion of one remote call, canceled or not.
type replyDone struct {
	gen   uint64
	reply string
	err   error
}

// Synthesis events.
type (
	speechEnd struct {
		gen uint64
	}
	speechError struct {
		gen uint64
		msg string
	}
)

func (command) isInput()         {}
func (captureResult) isInput()   {}
func (captureError) isInput()    {}
func (captureEnd) isInput()      {}
func (captureReleased) isInput() {}
func (settled) isInput()         {}
func (replyDone) isInput()       {}
func (speechEnd) isInput()       {}
func (speechError) isInput()     {}
