package display

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the banner art horizontally centred for the
// current terminal width. To change the banner just replace banner.txt.
func RenderBanner() string {
	return renderBanner(termWidth())
}

func renderBanner(width int) string {
	lines := strings.Split(strings.TrimRight(bannerRaw, "\n"), "\n")
	if len(lines) == 0 {
		return ""
	}

	// Find the widest line.
	maxW := 0
	for _, l := range lines {
		if len(l) > maxW {
			maxW = len(l)
		}
	}

	var b strings.Builder
	for _, l := range lines {
		if width > maxW {
			b.WriteString(strings.Repeat(" ", (width-maxW)/2))
		}
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// WelcomeLines describes what the host supports and how to begin.
func WelcomeLines(caps domain.Capabilities) []string {
	lines := []string{"Hi! I'm your English speaking partner. Let's practice together."}

	switch {
	case caps.SpeechRecognitionSupported && caps.SpeechSynthesisSupported:
		lines = append(lines, "Type 'talk' and speak, or just type. I'll answer out loud.")
	case caps.SpeechRecognitionSupported:
		lines = append(lines, "Type 'talk' and speak, or just type. Replies are text only.")
	case caps.SpeechSynthesisSupported:
		lines = append(lines, "No microphone engine found, so type your sentences. I'll answer out loud.")
	default:
		lines = append(lines, "Voice is not available here, so we'll practice in text.")
	}

	if caps.SpeechSynthesisSupported {
		lines = append(lines, fmt.Sprintf("Voices: %d available, %d English.", caps.VoiceCount, caps.EnglishVoiceCount))
	}
	lines = append(lines, "Type /help for commands, 'quit' to exit.")
	return lines
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
