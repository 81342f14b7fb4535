package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/testutil"
)

var errBoom = errors.New("backend unavailable")

const device = "d1"

// fixture drives an engine deterministically: calls park in a
// ManualDispatcher and events are processed with Drain.
type fixture struct {
	t    *testing.T
	ctx  context.Context
	gw   *gateway.Memory
	disp *ManualDispatcher
	eng  *Engine
	city ir.City
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	gw := gateway.NewMemory(gateway.WithMemoryClock(
		testutil.NewDeterministicClockAt(testutil.At(1000), time.Second).Now))
	city := gw.AddCity("sf", "San Francisco")
	disp := NewManualDispatcher()

	base := []Option{
		WithDispatcher(disp),
		WithTempIDs(NewFixedGenerator(testutil.SequenceIDs("t", 16)...)),
		WithNow(testutil.NewDeterministicClockAt(testutil.At(2000), time.Second).Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	eng := New(gw, testutil.StaticIdentity(device), append(base, opts...)...)
	t.Cleanup(eng.Close)

	return &fixture{t: t, ctx: context.Background(), gw: gw, disp: disp, eng: eng, city: city}
}

func (f *fixture) seedPost(id string, sec int) ir.Post {
	p := ir.Post{ID: id, CityID: f.city.ID, Body: "post " + id, CreatedAt: testutil.At(sec)}
	f.gw.PutPost(p)
	return p
}

func (f *fixture) seedVotes(postID string, values ...ir.VoteValue) {
	for i, v := range values {
		f.gw.PutVote(ir.Vote{PostID: postID, DeviceID: "other-" + string(rune('a'+i)), Value: v})
	}
}

func (f *fixture) seedComment(id, postID string, sec int) {
	f.gw.PutComment(ir.Comment{ID: id, PostID: postID, Body: "comment " + id, CreatedAt: testutil.At(sec)})
}

func (f *fixture) submit(in Intent) {
	f.t.Helper()
	require.NoError(f.t, f.eng.Submit(in))
	f.eng.Drain(f.ctx)
}

func (f *fixture) drain() {
	f.eng.Drain(f.ctx)
}

func (f *fixture) settle(op string) {
	f.t.Helper()
	require.NoError(f.t, f.disp.Settle(op))
	f.eng.Drain(f.ctx)
}

func (f *fixture) fail(op string) {
	f.t.Helper()
	require.NoError(f.t, f.disp.Fail(op, errBoom))
	f.eng.Drain(f.ctx)
}

func (f *fixture) settleAll() {
	for f.disp.Len() > 0 {
		f.disp.SettleAll()
		f.eng.Drain(f.ctx)
	}
}

func (f *fixture) load() {
	f.t.Helper()
	f.submit(LoadCity("sf"))
	f.settleAll()
}

// vote submits a vote and settles its read and write.
func (f *fixture) vote(postID string, v ir.VoteValue) {
	f.t.Helper()
	f.submit(VotePost(postID, v))
	f.settle(gateway.OpGetVote)
	f.settle("")
}

func (f *fixture) view() *View {
	return f.eng.Snapshot()
}

func (f *fixture) tally(id string) ir.Tally {
	return f.view().Tallies[id]
}

// eagerDispatcher runs each call as soon as it is dispatched, like
// AsyncDispatcher, and holds the result until the test delivers it. A read
// can then resolve against state that changed after it ran.
type eagerDispatcher struct {
	mu   sync.Mutex
	held []heldResult
}

type heldResult struct {
	s    Settled
	done func(Settled)
}

func (d *eagerDispatcher) Dispatch(ctx context.Context, c Call, done func(Settled)) {
	v, err := c.Run(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = append(d.held, heldResult{s: Settled{CallID: c.ID, Op: c.Op, Value: v, Err: err}, done: done})
}

// deliver hands over the oldest held result of op.
func (d *eagerDispatcher) deliver(op string) bool {
	d.mu.Lock()
	var r heldResult
	found := false
	for i, h := range d.held {
		if h.s.Op == op {
			r, found = h, true
			d.held = append(d.held[:i:i], d.held[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	if found {
		r.done(r.s)
	}
	return found
}

func (d *eagerDispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held)
}

// deliverAll drains held results, including those dispatched meanwhile.
func (f *fixture) deliverAll(d *eagerDispatcher) {
	for d.len() > 0 {
		d.mu.Lock()
		op := d.held[0].s.Op
		d.mu.Unlock()
		d.deliver(op)
		f.eng.Drain(f.ctx)
	}
}
