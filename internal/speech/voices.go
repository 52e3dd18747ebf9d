package speech

import (
	"strings"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

// EnglishVoices filters voices whose language tag starts with "en".
func EnglishVoices(voices []domain.Voice) []domain.Voice {
	var out []domain.Voice
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.Lang), "en") {
			out = append(out, v)
		}
	}
	return out
}

// BestEnglishVoice picks the tutor voice: a female-sounding English voice
// by name, then a local English voice, then any English voice. It returns
// nil when there is no English voice and the host default should be used.
func BestEnglishVoice(voices []domain.Voice) *domain.Voice {
	english := EnglishVoices(voices)
	if len(english) == 0 {
		return nil
	}

	for i := range english {
		if looksFemale(english[i].Name) {
			return &english[i]
		}
	}
	for i := range english {
		if english[i].LocalService {
			return &english[i]
		}
	}
	return &english[0]
}

func looksFemale(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range femaleHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
