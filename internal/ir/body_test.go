package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBody_Trims(t *testing.T) {
	got, err := NormalizeBody("  hello there \n", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
}

func TestNormalizeBody_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := NormalizeBody(in, 0)
		assert.ErrorIs(t, err, ErrEmptyBody, "input %q", in)
	}
}

func TestNormalizeBody_Limit(t *testing.T) {
	exact := strings.Repeat("a", DefaultMaxBodyRunes)
	got, err := NormalizeBody(exact, 0)
	require.NoError(t, err)
	assert.Equal(t, exact, got)

	_, err = NormalizeBody(exact+"a", 0)
	assert.ErrorIs(t, err, ErrBodyTooLong)

	_, err = NormalizeBody("abcd", 3)
	assert.ErrorIs(t, err, ErrBodyTooLong)
}

func TestNormalizeBody_CountsCodePointsAfterNFC(t *testing.T) {
	// "e" + combining acute accent composes to a single code point.
	decomposed := strings.Repeat("e\u0301", 3)

	got, err := NormalizeBody(decomposed, 3)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("\u00e9", 3), got)
}

func TestNormalizeBody_MultibyteWithinLimit(t *testing.T) {
	// 280 emoji are 280 code points even though they are 1120 bytes.
	body := strings.Repeat("\U0001F600", DefaultMaxBodyRunes)
	_, err := NormalizeBody(body, 0)
	assert.NoError(t, err)
}
