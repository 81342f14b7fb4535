package ir

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxBodyRunes bounds post and comment bodies, in code points.
const DefaultMaxBodyRunes = 280

var (
	// ErrEmptyBody is returned for bodies that are empty after trimming.
	ErrEmptyBody = errors.New("body is empty")

	// ErrBodyTooLong is returned for bodies above the code point limit.
	ErrBodyTooLong = errors.New("body is too long")
)

// NormalizeBody trims surrounding whitespace, applies NFC normalization and
// enforces the code point limit. NFC runs first so a composed character is
// counted once regardless of how the client encoded it.
//
// A maxRunes of zero or less selects DefaultMaxBodyRunes.
func NormalizeBody(text string, maxRunes int) (string, error) {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxBodyRunes
	}
	body := norm.NFC.String(strings.TrimSpace(text))
	if body == "" {
		return "", ErrEmptyBody
	}
	if n := utf8.RuneCountInString(body); n > maxRunes {
		return "", fmt.Errorf("%w: %d code points, limit %d", ErrBodyTooLong, n, maxRunes)
	}
	return body, nil
}
