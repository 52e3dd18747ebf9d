// Package speech wraps the host's speech-to-text and text-to-speech
// engines behind a uniform start/stop contract, and provides the local
// Whisper recognizer and Azure synthesizer used as host engines.
package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ domain.SpeechService = (*Service)(nil)

// RecognitionEngine is a host speech-to-text engine. Recognize captures
// until ctx is cancelled or the engine ends on its own, reporting every
// hypothesis through onResult. A nil return is a natural end.
type RecognitionEngine interface {
	Recognize(ctx context.Context, cfg RecognitionConfig, onResult func(domain.Hypothesis)) error
}

// Utterance is one fully resolved synthesis request.
type Utterance struct {
	Text   string
	Voice  string // empty selects the engine default
	Rate   float64
	Pitch  float64
	Volume float64
	Lang   string
}

// SynthesisEngine is a host text-to-speech engine. Speak blocks until the
// audio has played or ctx is cancelled.
type SynthesisEngine interface {
	Voices(ctx context.Context) ([]domain.Voice, error)
	Speak(ctx context.Context, u Utterance) error
}

// voiceLoadTimeout bounds the voice listing call made on first use.
const voiceLoadTimeout = 5 * time.Second

// Service is the speech capability wrapper. At most one capture and one
// utterance are active at any time.
type Service struct {
	rec RecognitionEngine
	syn SynthesisEngine
	cfg RecognitionConfig
	log *logger.Logger

	mu           sync.Mutex
	capture      *task
	utterance    *task
	voices       []domain.Voice
	voicesLoaded bool
}

// New creates the wrapper. Either engine may be nil, which marks that
// capability unsupported; with neither present there is no speech host
// and New fails with domain.ErrNoSpeechHost.
func New(rec RecognitionEngine, syn SynthesisEngine, log *logger.Logger) (*Service, error) {
	if rec == nil && syn == nil {
		return nil, fmt.Errorf("speech: %w", domain.ErrNoSpeechHost)
	}
	return &Service{
		rec: rec,
		syn: syn,
		cfg: DefaultRecognitionConfig(),
		log: log.With("speech"),
	}, nil
}

// DetectCapabilities reports what the host supports, refreshing the
// voice list. Listing failures count as zero voices.
func (s *Service) DetectCapabilities(ctx context.Context) domain.Capabilities {
	caps := domain.Capabilities{
		SpeechRecognitionSupported: s.rec != nil,
		SpeechSynthesisSupported:   s.syn != nil,
	}
	if s.syn == nil {
		return caps
	}

	voices := s.loadVoices(ctx, true)
	caps.VoiceCount = len(voices)
	caps.EnglishVoiceCount = len(EnglishVoices(voices))
	return caps
}

// StartListening begins a continuous capture with interim results. It
// returns false without side effects when recognition is unsupported or
// a capture is already running.
func (s *Service) StartListening(h domain.ListenHandlers) (domain.Task, bool) {
	s.mu.Lock()
	if s.rec == nil || s.capture != nil {
		s.mu.Unlock()
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(cancel)
	s.capture = t
	s.mu.Unlock()

	s.log.Debug("listening started (lang=%s)", s.cfg.Lang)

	go func() {
		err := s.rec.Recognize(ctx, s.cfg, func(hyp domain.Hypothesis) {
			if h.OnResult != nil {
				h.OnResult(hyp)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("recognition failed: %v", err)
			if h.OnError != nil {
				h.OnError(RecognitionMessage(err))
			}
		}

		s.mu.Lock()
		if s.capture == t {
			s.capture = nil
		}
		s.mu.Unlock()
		t.finish()

		s.log.Debug("listening ended")
		if h.OnEnd != nil {
			h.OnEnd()
		}
	}()

	return t, true
}

// StopListening requests the active capture to stop. OnEnd fires when
// the engine returns, not here. No-op when not listening.
func (s *Service) StopListening() {
	s.mu.Lock()
	t := s.capture
	s.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// Speak synthesizes text, cancelling any utterance already in flight.
// Unsupported synthesis reports through OnError and returns false.
func (s *Service) Speak(text string, opts domain.SpeakOptions, h domain.SpeakHandlers) (domain.Task, bool) {
	if s.syn == nil {
		if h.OnError != nil {
			h.OnError("Speech synthesis not supported")
		}
		return nil, false
	}

	prev := s.cancelUtterance()

	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(cancel)
	s.mu.Lock()
	s.utterance = t
	s.mu.Unlock()

	go func() {
		// The previous utterance must release the audio device first.
		if prev != nil {
			<-prev.Done()
		}
		var err error
		if ctx.Err() == nil {
			u := s.resolve(ctx, text, opts)
			s.log.Debug("speaking (voice=%q, rate=%.2f): %s", u.Voice, u.Rate, truncate(text, 60))

			if h.OnStart != nil {
				h.OnStart()
			}
			err = s.syn.Speak(ctx, u)
		}

		s.mu.Lock()
		if s.utterance == t {
			s.utterance = nil
		}
		s.mu.Unlock()
		t.finish()

		if err != nil && ctx.Err() == nil {
			s.log.Error("synthesis failed: %v", err)
			if h.OnError != nil {
				h.OnError(fmt.Sprintf("Speech synthesis error: %v", err))
			}
			return
		}
		if h.OnEnd != nil {
			h.OnEnd()
		}
	}()

	return t, true
}

// StopSpeaking cancels the active utterance, if any.
func (s *Service) StopSpeaking() {
	s.cancelUtterance()
}

func (s *Service) cancelUtterance() *task {
	s.mu.Lock()
	t := s.utterance
	s.utterance = nil
	s.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
	return t
}

// resolve fills utterance defaults and applies the voice policy.
func (s *Service) resolve(ctx context.Context, text string, opts domain.SpeakOptions) Utterance {
	u := Utterance{
		Text:   text,
		Rate:   orDefault(opts.Rate, DefaultRate),
		Pitch:  orDefault(opts.Pitch, DefaultPitch),
		Volume: orDefault(opts.Volume, DefaultVolume),
		Lang:   opts.Lang,
	}
	if u.Lang == "" {
		u.Lang = DefaultLang
	}

	voice := opts.Voice
	if voice == nil {
		voice = BestEnglishVoice(s.loadVoices(ctx, false))
	}
	if voice != nil {
		u.Voice = voice.Name
	}
	return u
}

// loadVoices returns the cached voice list, fetching it on first use or
// when refresh is set.
func (s *Service) loadVoices(ctx context.Context, refresh bool) []domain.Voice {
	s.mu.Lock()
	if s.voicesLoaded && !refresh {
		v := s.voices
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, voiceLoadTimeout)
	defer cancel()
	voices, err := s.syn.Voices(ctx)
	if err != nil {
		s.log.Warn("listing voices failed: %v", err)
		voices = nil
	}

	s.mu.Lock()
	s.voices = voices
	s.voicesLoaded = err == nil
	s.mu.Unlock()
	return voices
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// truncate shortens a string for logging.
// truncate shortens s to maxLen runes for logging.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
