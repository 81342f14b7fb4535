package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/tally"
)

func vp(v ir.VoteValue) *ir.VoteValue { return &v }

func TestEchoLedger_MatchByFinalValue(t *testing.T) {
	l := newEchoLedger()
	k := echoKey{postID: "s1", deviceID: "d1"}

	l.expect(k, 1, vp(ir.VoteUp), tally.Delta{Ups: 1})
	l.expect(k, 2, nil, tally.Delta{Ups: -1})
	require.Equal(t, 2, l.len())

	_, ok := l.match(k, vp(ir.VoteDown))
	assert.False(t, ok)

	e, ok := l.match(k, nil)
	require.True(t, ok)
	assert.Equal(t, int64(2), e.callID)
	assert.Nil(t, l.find(k, 2))
	assert.NotNil(t, l.find(k, 1))

	e, ok = l.match(k, vp(ir.VoteUp))
	require.True(t, ok)
	assert.Equal(t, tally.Delta{Ups: 1}, e.delta)
	assert.Equal(t, 0, l.len())
}

func TestEchoLedger_ExpectCopiesValue(t *testing.T) {
	l := newEchoLedger()
	k := echoKey{postID: "s1", deviceID: "d1"}
	v := ir.VoteUp

	l.expect(k, 1, &v, tally.Delta{})
	v = ir.VoteDown

	_, ok := l.match(k, vp(ir.VoteUp))
	assert.True(t, ok)
}

func TestEchoLedger_DropPostAndReset(t *testing.T) {
	l := newEchoLedger()
	l.expect(echoKey{"s1", "d1"}, 1, nil, tally.Delta{})
	l.expect(echoKey{"s2", "d1"}, 2, nil, tally.Delta{})
	l.expect(echoKey{"s2", "d1"}, 3, nil, tally.Delta{})

	l.dropPost("s2")
	assert.Equal(t, 1, l.len())

	l.drop(echoKey{"s1", "d1"}, 7)
	assert.Equal(t, 1, l.len(), "unknown call id is ignored")

	l.reset()
	assert.Equal(t, 0, l.len())
}
