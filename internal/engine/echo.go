package engine

import (
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/tally"
)

// echoKey identifies the vote row a device writes on a post.
type echoKey struct {
	postID   string
	deviceID string
}

// echoEntry is one own vote write whose change notification has not been
// seen yet. to is the value the write leaves (nil for a delete); delta is
// what the tally already reflects for it.
type echoEntry struct {
	callID int64
	to     *ir.VoteValue
	delta  tally.Delta
}

// echoLedger tracks own vote writes awaiting their echo, oldest first per
// row.
type echoLedger struct {
	entries map[echoKey][]*echoEntry
}

func newEchoLedger() *echoLedger {
	return &echoLedger{entries: make(map[echoKey][]*echoEntry)}
}

// expect records a write issued by call callID.
func (l *echoLedger) expect(k echoKey, callID int64, to *ir.VoteValue, d tally.Delta) {
	var v *ir.VoteValue
	if to != nil {
		cp := *to
		v = &cp
	}
	l.entries[k] = append(l.entries[k], &echoEntry{callID: callID, to: v, delta: d})
}

// match consumes the oldest entry for k whose write leaves the row at to.
func (l *echoLedger) match(k echoKey, to *ir.VoteValue) (*echoEntry, bool) {
	for _, e := range l.entries[k] {
		if sameValue(e.to, to) {
			l.drop(k, e.callID)
			return e, true
		}
	}
	return nil, false
}

// find returns the entry of call callID, or nil once it was matched.
func (l *echoLedger) find(k echoKey, callID int64) *echoEntry {
	for _, e := range l.entries[k] {
		if e.callID == callID {
			return e
		}
	}
	return nil
}

// drop removes the entry of call callID.
func (l *echoLedger) drop(k echoKey, callID int64) {
	q := l.entries[k]
	for i, e := range q {
		if e.callID == callID {
			q = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(l.entries, k)
		return
	}
	l.entries[k] = q
}

// dropPost removes every entry on postID.
func (l *echoLedger) dropPost(postID string) {
	for k := range l.entries {
		if k.postID == postID {
			delete(l.entries, k)
		}
	}
}

// each calls fn for every row with outstanding writes, oldest first.
func (l *echoLedger) each(fn func(k echoKey, q []*echoEntry)) {
	for k, q := range l.entries {
		fn(k, q)
	}
}

func (l *echoLedger) reset() {
	l.entries = make(map[echoKey][]*echoEntry)
}

func (l *echoLedger) len() int {
	n := 0
	for _, q := range l.entries {
		n += len(q)
	}
	return n
}

func sameValue(a, b *ir.VoteValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
