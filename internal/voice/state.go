package voice

import (
	"context"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/timer"
)

// state is the turn record owned by the loop goroutine.
type state struct {
	voice      domain.VoiceState
	messages   []domain.Message
	banner     string
	bannerKind domain.ErrorKind
	transcript string
	lastUser   string // text of the latest turn sent, for Retry

	// Capture. capture is the latest task and may still be winding down
	// after capturing went false.
	captureGen uint64
	capturing  bool
	capture    domain.Task

	// A start waiting for the previous capture to release. The state
	// already reads Listening.
	startGen uint64
	pending  *pendingStart

	settleGen uint64

	utterGen   uint64
	utterance  domain.Task
	speakingID string

	// Remote calls. awaiting is the generation whose result is wanted and
	// outstanding the one that has not resolved yet; a reset clears the
	// first but not the second.
	reqGen      uint64
	awaiting    uint64
	outstanding uint64
	cancelReq   context.CancelFunc
}

type pendingStart struct {
	gen     uint64
	timeout timer.Stopper
	abort   chan struct{}
}

func (s *state) snapshot() domain.ConversationState {
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	var kind domain.ErrorKind
	if s.banner != "" {
		kind = s.bannerKind
	}
	return domain.ConversationState{
		Messages:          msgs,
		Voice:             s.voice,
		Listening:         s.voice == domain.VoiceListening,
		Speaking:          s.voice == domain.VoiceSpeaking,
		Processing:        s.voice == domain.VoiceProcessing,
		Error:             s.banner,
		ErrorKind:         kind,
		CurrentTranscript: s.transcript,
	}
}

func (s *state) showBanner(kind domain.ErrorKind, msg string) {
	s.banner = msg
	s.bannerKind = kind
}

func (s *state) markNotPlaying(id string) {
	for i := range s.messages {
		if id == "" || s.messages[i].ID == id {
			s.messages[i].IsPlaying = false
		}
	}
}

func (s *state) lastIsError() bool {
	n := len(s.messages)
	return n > 0 && s.messages[n-1].Error
}
