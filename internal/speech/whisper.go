package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ RecognitionEngine = (*WhisperRecognizer)(nil)

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)", "[laughter]", "(speaking French)", etc.
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z\s_]*[\)\]]`)

// WhisperOption configures the WhisperRecognizer.
type WhisperOption func(*WhisperRecognizer)

// WithChunkDuration sets how long each recorded chunk lasts.
func WithChunkDuration(d time.Duration) WhisperOption {
	return func(w *WhisperRecognizer) { w.chunkDuration = d }
}

// WithMaxCapture caps one capture session.
func WithMaxCapture(d time.Duration) WhisperOption {
	return func(w *WhisperRecognizer) { w.maxCapture = d }
}

// WithTempDir sets the directory for temporary WAV files.
func WithTempDir(dir string) WhisperOption {
	return func(w *WhisperRecognizer) { w.tempDir = dir }
}

// WithSilenceChunks sets how many empty chunks end the wait for the first
// words (grace) and end an utterance once words were heard (trailing).
func WithSilenceChunks(grace, trailing int) WhisperOption {
	return func(w *WhisperRecognizer) {
		w.graceEmpty = grace
		w.trailingEmpty = trailing
	}
}

// chunkRecorder records one chunk and returns its transcription.
type chunkRecorder func(ctx context.Context, d time.Duration) (string, error)

// WhisperRecognizer is a continuous speech-to-text engine built on a
// local whisper.cpp binary. It records short chunks, reports the growing
// transcript as interim hypotheses, and settles it into a final
// hypothesis once the speaker goes quiet.
//
// Whisper does not report confidence, so hypotheses carry 0 for interim
// and 1 for final results.
type WhisperRecognizer struct {
	whisperBin string
	modelPath  string
	tempDir    string
	log        *logger.Logger

	chunkDuration time.Duration
	maxCapture    time.Duration
	graceEmpty    int // empty chunks tolerated before first speech
	trailingEmpty int // empty chunks that end an utterance

	record chunkRecorder
}

// NewWhisperRecognizer creates a recognizer.
//
//   - whisperBin: path to the whisper-cli executable
//   - modelPath:  path to the GGML model file
func NewWhisperRecognizer(whisperBin, modelPath string, log *logger.Logger, opts ...WhisperOption) *WhisperRecognizer {
	w := &WhisperRecognizer{
		whisperBin:    whisperBin,
		modelPath:     modelPath,
		tempDir:       DefaultTempDir,
		log:           log.With("whisper"),
		chunkDuration: DefaultChunkDuration,
		maxCapture:    DefaultMaxCapture,
		graceEmpty:    5,
		trailingEmpty: 2,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.record = w.recordChunk
	return w
}

// Check verifies the binary and model are reachable.
func (w *WhisperRecognizer) Check() error {
	if _, err := exec.LookPath(w.whisperBin); err != nil {
		return &RecognitionError{Code: CodeServiceNotAllowed, Err: fmt.Errorf("whisper binary %q: %w", w.whisperBin, err)}
	}
	if _, err := os.Stat(w.modelPath); err != nil {
		return &RecognitionError{Code: CodeServiceNotAllowed, Err: fmt.Errorf("whisper model: %w", err)}
	}
	return nil
}

// Recognize implements RecognitionEngine.
func (w *WhisperRecognizer) Recognize(ctx context.Context, cfg RecognitionConfig, onResult func(domain.Hypothesis)) error {
	if err := w.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.tempDir, 0o755); err != nil {
		return &RecognitionError{Code: CodeAudioCapture, Err: err}
	}

	w.log.Info("capture started (chunk=%s, max=%s, lang=%s)", w.chunkDuration, w.maxCapture, cfg.Lang)

	deadline := time.After(w.maxCapture)
	var parts []string
	emptyRuns := 0
	finals := 0

	settle := func() {
		text := strings.TrimSpace(strings.Join(parts, " "))
		parts = parts[:0]
		emptyRuns = 0
		if text == "" {
			return
		}
		finals++
		w.log.Debug("final: %q", text)
		onResult(domain.Hypothesis{Transcript: text, Confidence: 1, IsFinal: true})
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("capture cancelled")
			return nil
		case <-deadline:
			w.log.Debug("capture window reached")
			settle()
			return nil
		default:
		}

		chunk, err := w.record(ctx, w.chunkDuration)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		chunk = cleanTranscription(chunk)

		if chunk == "" {
			emptyRuns++
			if len(parts) > 0 {
				if emptyRuns >= w.trailingEmpty {
					settle()
				}
				continue
			}
			if emptyRuns >= w.graceEmpty {
				if finals > 0 {
					return nil
				}
				return ErrNoSpeech
			}
			continue
		}

		emptyRuns = 0
		parts = append(parts, chunk)
		if cfg.InterimResults {
			onResult(domain.Hypothesis{Transcript: strings.Join(parts, " ")})
		}
	}
}

// recordChunk does one recording cycle with the given duration and
// returns the transcribed text.
func (w *WhisperRecognizer) recordChunk(ctx context.Context, duration time.Duration) (string, error) {
	var result string
	var wg sync.WaitGroup
	wg.Add(1)

	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := w.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(
		w.whisperBin,
		w.modelPath,
		w.tempDir,
		"wav",
		callback,
		verbose,
	)
	if err != nil {
		return "", &RecognitionError{Code: CodeAudioCapture, Err: fmt.Errorf("transcriber init: %w", err)}
	}

	if err := t.Start(); err != nil {
		return "", &RecognitionError{Code: CodeAudioCapture, Err: fmt.Errorf("recording start: %w", err)}
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		t.Stop()
		wg.Wait()
		return "", ctx.Err()
	}

	t.Stop()
	wg.Wait()

	return result, nil
}

// junkPatterns are whisper artifacts stripped from anywhere in the text.
var junkPatterns = []string{
	"[BLANK_AUDIO]",
	"[BLANK AUDIO]",
	"(silence)",
	"[silence]",
	"(no speech)",
	"[no speech]",
	"[Music]",
	"(music)",
	"(inaudible)",
	"(unintelligible)",
}

// hallucinations are whole-transcript outputs whisper produces on silence.
var hallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thanks for watching!",
	"thank you for watching.",
	"bye.",
	"the end.",
}

// cleanTranscription strips whitespace, normalizes newlines, and removes
// whisper artifacts and timestamp prefixes. Known silence hallucinations
// collapse to "".
func cleanTranscription(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)

	for _, j := range junkPatterns {
		s = strings.ReplaceAll(s, j, "")
		s = strings.ReplaceAll(s, strings.ToLower(j), "")
	}

	// Whisper timestamp prefixes like "[00:00:00.000 --> 00:00:05.000]".
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 && strings.Contains(s[:idx], "-->") {
			s = s[idx+1:]
		}
	}

	s = envAnnotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if h == lower {
			return ""
		}
	}
	return s
}
