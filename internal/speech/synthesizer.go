package speech

import (
	"context"
	"strings"
	"unicode"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ SynthesisEngine = (*AzureSynthesizer)(nil)

// synthesizer renders one utterance to WAV bytes.
type synthesizer interface {
	Voices(ctx context.Context) ([]domain.Voice, error)
	Synthesize(ctx context.Context, u Utterance) ([]byte, error)
}

// audioSink plays WAV bytes until done or ctx is cancelled.
type audioSink interface {
	Play(ctx context.Context, wav []byte) error
}

// SynthOption configures the AzureSynthesizer.
type SynthOption func(*AzureSynthesizer)

// WithChunkSize sets the approximate max character count per TTS request.
// Longer text is split at sentence boundaries and synthesized in parallel
// so playback does not stall between sentences. 0 disables chunking.
func WithChunkSize(n int) SynthOption {
	return func(s *AzureSynthesizer) {
		s.chunkSize = n
	}
}

// WithCache sets the audio cache. Without one every chunk is synthesized.
func WithCache(c *AudioCache) SynthOption {
	return func(s *AzureSynthesizer) {
		s.cache = c
	}
}

// AzureSynthesizer is the SynthesisEngine backed by Azure TTS and the
// local audio device: chunk -> synthesize (parallel, cached) -> play
// (sequential).
type AzureSynthesizer struct {
	tts       synthesizer
	player    audioSink
	cache     *AudioCache
	chunkSize int
	log       *logger.Logger
}

// NewAzureSynthesizer wires a TTS client to a player.
func NewAzureSynthesizer(tts *AzureClient, player *Player, log *logger.Logger, opts ...SynthOption) *AzureSynthesizer {
	return newSynthesizer(tts, player, log, opts...)
}

func newSynthesizer(tts synthesizer, player audioSink, log *logger.Logger, opts ...SynthOption) *AzureSynthesizer {
	s := &AzureSynthesizer{
		tts:       tts,
		player:    player,
		chunkSize: 200,
		log:       log.With("synth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Voices implements SynthesisEngine.
func (s *AzureSynthesizer) Voices(ctx context.Context) ([]domain.Voice, error) {
	return s.tts.Voices(ctx)
}

// Speak implements SynthesisEngine. A chunk that fails to synthesize fails
// the whole utterance.
func (s *AzureSynthesizer) Speak(ctx context.Context, u Utterance) error {
	chunks := splitChunks(u.Text, s.chunkSize)
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) == 1 {
		audio, err := s.synthesize(ctx, u)
		if err != nil {
			return err
		}
		return s.player.Play(ctx, audio)
	}

	s.log.Debug("split into %d chunks for parallel synthesis", len(chunks))

	type result struct {
		idx   int
		audio []byte
		err   error
	}
	results := make(chan result, len(chunks))

	for i, chunk := range chunks {
		part := u
		part.Text = chunk
		go func(idx int, part Utterance) {
			audio, err := s.synthesize(ctx, part)
			results <- result{idx: idx, audio: audio, err: err}
		}(i, part)
	}

	audioSlots := make([][]byte, len(chunks))
	var firstErr error
	for range chunks {
		r := <-results
		if r.err != nil {
			s.log.Error("chunk %d synthesis failed: %v", r.idx, r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		audioSlots[r.idx] = r.audio
	}
	if firstErr != nil {
		return firstErr
	}

	for _, audio := range audioSlots {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.player.Play(ctx, audio); err != nil {
			return err
		}
	}
	return nil
}

// synthesize checks the cache first, otherwise calls Azure and stores the
// result.
func (s *AzureSynthesizer) synthesize(ctx context.Context, u Utterance) ([]byte, error) {
	if s.cache != nil {
		if audio, ok := s.cache.Get(u); ok {
			return audio, nil
		}
	}
	audio, err := s.tts.Synthesize(ctx, u)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(u, audio)
	}
	return audio, nil
}

// splitChunks breaks text into sentence-boundary chunks of approximately
// size characters. Text at or below size, or size <= 0, is one chunk.
func splitChunks(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > size {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// splitSentences splits text at sentence boundaries (. ! ?) keeping the
// punctuation attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if isSentenceEnd(runes[i]) {
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
				current.WriteRune(runes[i])
			}
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
