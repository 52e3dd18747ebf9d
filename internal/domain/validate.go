package domain

import (
	"strings"
	"unicode/utf8"
)

// ValidateMessage trims raw user input and checks it against the
// accepted bounds. It returns the trimmed text or a validation error.
func ValidateMessage(raw string) (string, *ChatError) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "", &ChatError{Kind: KindValidation, Message: MsgEmptyInput}
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return "", &ChatError{Kind: KindValidation, Message: MsgTooLong}
	}
	return msg, nil
}
