package speech

import "time"

// Default voice for Azure TTS when the voice policy finds nothing better.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// Audio format returned by Azure and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Utterance defaults. Learners get a slightly slower rate.
const (
	DefaultRate   = 0.9
	DefaultPitch  = 1.0
	DefaultVolume = 1.0
	DefaultLang   = "en-US"
)

// Recognition defaults for the whisper recognizer.
const (
	DefaultChunkDuration = 1 * time.Second
	DefaultMaxCapture    = 30 * time.Second
	DefaultTempDir       = ".secretkeeper-stt"
)

// femaleHints are lowercase name fragments used to prefer a
// female-sounding tutor voice.
var femaleHints = []string{
	"female",
	"woman",
	"samantha",
	"karen",
	"susan",
	"ava",
	"jenny",
	"aria",
}

// RecognitionConfig mirrors the knobs of a host recognition session.
type RecognitionConfig struct {
	Lang            string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// DefaultRecognitionConfig is continuous, interim-result, en-US capture
// with a single alternative.
func DefaultRecognitionConfig() RecognitionConfig {
	return RecognitionConfig{
		Lang:            DefaultLang,
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 1,
	}
}
