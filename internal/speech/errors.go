package speech

import (
	"errors"
	"fmt"
)

// Recognition error codes, named after the host engine's error events.
const (
	CodeNoSpeech          = "no-speech"
	CodeAudioCapture      = "audio-capture"
	CodeNotAllowed        = "not-allowed"
	CodeNetwork           = "network"
	CodeServiceNotAllowed = "service-not-allowed"
)

// RecognitionError is returned by a RecognitionEngine when capture fails.
type RecognitionError struct {
	Code string
	Err  error
}

func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech recognition %s: %v", e.Code, e.Err)
	}
	return "speech recognition " + e.Code
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// ErrNoSpeech is returned when the capture window passed in silence.
var ErrNoSpeech = &RecognitionError{Code: CodeNoSpeech}

// RecognitionMessage maps a capture failure to the text shown to the user.
func RecognitionMessage(err error) string {
	var re *RecognitionError
	if !errors.As(err, &re) {
		return "Speech recognition error occurred"
	}
	switch re.Code {
	case CodeNoSpeech:
		return "No speech detected. Please try speaking again."
	case CodeAudioCapture:
		return "Microphone not accessible. Please check permissions."
	case CodeNotAllowed:
		return "Microphone permission denied. Please allow microphone access."
	case CodeNetwork:
		return "Network error. Please check your connection."
	default:
		return "Speech recognition error: " + re.Code
	}
}
