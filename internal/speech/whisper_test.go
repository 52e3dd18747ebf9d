package speech

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

func TestCleanTranscription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello world  ", "hello world"},
		{"[BLANK_AUDIO]", ""},
		{"hello\nthere", "hello there"},
		{"[00:00:00.000 --> 00:00:02.000]  I like apples", "I like apples"},
		{"(keyboard clicking) can you help me", "can you help me"},
		{"Thank you.", ""},
		{"you", ""},
		{"thank you for the lesson", "thank you for the lesson"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, cleanTranscription(tt.in), "input %q", tt.in)
	}
}

// newScriptedRecognizer returns a recognizer whose chunks come from script.
// Once the script runs out it blocks until ctx is cancelled.
func newScriptedRecognizer(t *testing.T, script []string, opts ...WhisperOption) *WhisperRecognizer {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(model, []byte("x"), 0o644))
	bin, err := os.Executable()
	require.NoError(t, err)

	opts = append([]WhisperOption{WithTempDir(filepath.Join(dir, "tmp")), WithMaxCapture(time.Minute)}, opts...)
	w := NewWhisperRecognizer(bin, model, testLogger(), opts...)
	i := 0
	w.record = func(ctx context.Context, _ time.Duration) (string, error) {
		if i < len(script) {
			s := script[i]
			i++
			return s, nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	return w
}

func TestWhisperInterimThenFinal(t *testing.T) {
	w := newScriptedRecognizer(t, []string{"I want", "to practice", "", ""}, WithSilenceChunks(3, 2))

	ctx, cancel := context.WithCancel(context.Background())
	var got []domain.Hypothesis
	err := w.Recognize(ctx, DefaultRecognitionConfig(), func(h domain.Hypothesis) {
		got = append(got, h)
		if h.IsFinal {
			cancel()
		}
	})
	require.NoError(t, err)
	require.Equal(t, []domain.Hypothesis{
		{Transcript: "I want"},
		{Transcript: "I want to practice"},
		{Transcript: "I want to practice", Confidence: 1, IsFinal: true},
	}, got)
}

func TestWhisperSilenceIsNoSpeech(t *testing.T) {
	w := newScriptedRecognizer(t, []string{"", "[BLANK_AUDIO]", ""}, WithSilenceChunks(3, 2))

	err := w.Recognize(context.Background(), DefaultRecognitionConfig(), func(domain.Hypothesis) {
		t.Error("no hypothesis expected")
	})
	require.ErrorIs(t, err, ErrNoSpeech)
}

func TestWhisperEndsNaturallyAfterFinal(t *testing.T) {
	w := newScriptedRecognizer(t, []string{"hello", "", "", "", ""}, WithSilenceChunks(2, 1))

	var finals int
	err := w.Recognize(context.Background(), DefaultRecognitionConfig(), func(h domain.Hypothesis) {
		if h.IsFinal {
			finals++
		}
	})
	require.NoError(t, err)
	require.Equal(t, 1, finals)
}

func TestWhisperMissingBinary(t *testing.T) {
	w := NewWhisperRecognizer("/nonexistent/whisper-cli", "/nonexistent/model", testLogger())
	err := w.Recognize(context.Background(), DefaultRecognitionConfig(), func(domain.Hypothesis) {})

	var re *RecognitionError
	require.ErrorAs(t, err, &re)
	require.Equal(t, CodeServiceNotAllowed, re.Code)
}
