package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MessageText trims a chat message and checks its length and encoding.
// Empty text passes here; the store rejects it after the participant check.
func MessageText(raw string, maxRunes int) (string, error) {
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("message must be valid UTF-8")
	}
	text := strings.TrimSpace(raw)
	if strings.ContainsRune(text, 0) {
		return "", fmt.Errorf("message must not contain NUL characters")
	}
	if utf8.RuneCountInString(text) > maxRunes {
		return "", fmt.Errorf("message must be at most %d characters", maxRunes)
	}
	return text, nil
}
