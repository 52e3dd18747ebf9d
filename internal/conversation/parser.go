// Package conversation parses terminal input into intents and prints
// notices for the terminal client.
package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// Compile-time interface check.
var _ domain.IntentParser = (*KeywordParser)(nil)

// KeywordParser matches terminal commands by keyword. Anything that is
// not a command is practice text for the tutor.
//
// Commands take a "/" prefix. Only "talk" and "quit" also work bare, so
// a learner typing "Bye" or "Help" is practising, not quitting. "/say
// <text>" sends text that would otherwise parse as a command.
type KeywordParser struct {
	log      *logger.Logger
	patterns []patternRule
}

type patternRule struct {
	regex  *regexp.Regexp
	intent domain.IntentType
}

// NewKeywordParser creates a keyword-based intent parser.
func NewKeywordParser(log *logger.Logger) *KeywordParser {
	p := &KeywordParser{log: log.With("parser")}
	p.patterns = []patternRule{
		{regexp.MustCompile(`(?i)^(/(talk|listen|mic|speak|t)|talk)$`), domain.IntentTalk},
		{regexp.MustCompile(`(?i)^/(stop|end|cancel)$`), domain.IntentStop},
		{regexp.MustCompile(`(?i)^/(hush|shh+|quiet|silence|mute)$`), domain.IntentHush},
		{regexp.MustCompile(`(?i)^/(retry|again|r)$`), domain.IntentRetry},
		{regexp.MustCompile(`(?i)^/(clear|reset|new)$`), domain.IntentClear},
		{regexp.MustCompile(`(?i)^/(status|info)$`), domain.IntentStatus},
		{regexp.MustCompile(`(?i)^/(help|h|\?)$`), domain.IntentHelp},
		{regexp.MustCompile(`(?i)^(/(quit|exit|bye|q)|quit)$`), domain.IntentQuit},
	}
	return p
}

// Parse converts user input into an intent.
func (p *KeywordParser) Parse(_ context.Context, input string) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &domain.Intent{Type: domain.IntentUnknown}, nil
	}

	for _, rule := range p.patterns {
		if rule.regex.MatchString(trimmed) {
			p.log.Debug("matched intent: %s", rule.intent)
			return &domain.Intent{Type: rule.intent}, nil
		}
	}

	// "/say <text>" forces a turn even when the text looks like a command.
	if lower := strings.ToLower(trimmed); strings.HasPrefix(lower, "/say ") {
		return &domain.Intent{Type: domain.IntentSay, Payload: strings.TrimSpace(trimmed[5:])}, nil
	}

	if strings.HasPrefix(trimmed, "/") {
		p.log.Debug("unknown command %q", trimmed)
		return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
	}

	return &domain.Intent{Type: domain.IntentSay, Payload: trimmed}, nil
}
