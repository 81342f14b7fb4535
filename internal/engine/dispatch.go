package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoPendingCall is returned by ManualDispatcher when no parked call
// matches.
var ErrNoPendingCall = errors.New("no pending call")

// Call is one gateway operation issued by the engine.
type Call struct {
	ID  int64
	Op  string
	Run func(ctx context.Context) (any, error)
}

// Settled is the resolution of a Call, fed back into the event loop.
type Settled struct {
	CallID  int64
	Op      string
	Value   any
	Err     error
	Elapsed time.Duration
}

// Dispatcher executes gateway calls off the event loop. done must be
// invoked exactly once per call, from any goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, c Call, done func(Settled))
}

// AsyncDispatcher runs every call on its own goroutine.
type AsyncDispatcher struct {
	wg sync.WaitGroup
}

// NewAsyncDispatcher creates an AsyncDispatcher.
func NewAsyncDispatcher() *AsyncDispatcher {
	return &AsyncDispatcher{}
}

// Dispatch implements Dispatcher.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, c Call, done func(Settled)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		start := time.Now()
		v, err := c.Run(ctx)
		done(Settled{CallID: c.ID, Op: c.Op, Value: v, Err: err, Elapsed: time.Since(start)})
	}()
}

// Wait blocks until every dispatched call has settled.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// ManualDispatcher parks calls until the test settles them.
//
// Settle runs the parked call against the gateway at that moment, so the
// gateway's change notification is delivered before the call result, the
// usual order for a live backend. Combined with gateway.Memory's
// HoldChanges the opposite order can be produced as well.
//
// Thread-safety: ManualDispatcher is safe for concurrent use.
type ManualDispatcher struct {
	mu     sync.Mutex
	parked []parkedCall
}

type parkedCall struct {
	ctx  context.Context
	call Call
	done func(Settled)
}

// NewManualDispatcher creates an empty ManualDispatcher.
func NewManualDispatcher() *ManualDispatcher {
	return &ManualDispatcher{}
}

// Dispatch implements Dispatcher.
func (d *ManualDispatcher) Dispatch(ctx context.Context, c Call, done func(Settled)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parked = append(d.parked, parkedCall{ctx: ctx, call: c, done: done})
}

// Pending returns the operations of parked calls in dispatch order.
func (d *ManualDispatcher) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]string, len(d.parked))
	for i, p := range d.parked {
		ops[i] = p.call.Op
	}
	return ops
}

// Len returns the number of parked calls.
func (d *ManualDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.parked)
}

// Settle runs the oldest parked call of op and delivers its result. An
// empty op selects the oldest parked call of any operation.
func (d *ManualDispatcher) Settle(op string) error {
	p, err := d.take(op)
	if err != nil {
		return err
	}
	v, callErr := p.call.Run(p.ctx)
	p.done(Settled{CallID: p.call.ID, Op: p.call.Op, Value: v, Err: callErr})
	return nil
}

// Fail delivers err as the result of the oldest parked call of op without
// running it.
func (d *ManualDispatcher) Fail(op string, err error) error {
	p, takeErr := d.take(op)
	if takeErr != nil {
		return takeErr
	}
	p.done(Settled{CallID: p.call.ID, Op: p.call.Op, Err: err})
	return nil
}

// SettleAll settles every currently parked call in dispatch order and
// returns how many were settled. Calls dispatched meanwhile stay parked.
func (d *ManualDispatcher) SettleAll() int {
	d.mu.Lock()
	n := len(d.parked)
	d.mu.Unlock()

	for i := 0; i < n; i++ {
		if err := d.Settle(""); err != nil {
			return i
		}
	}
	return n
}

func (d *ManualDispatcher) take(op string) (parkedCall, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.parked {
		if op == "" || p.call.Op == op {
			d.parked = append(d.parked[:i:i], d.parked[i+1:]...)
			return p, nil
		}
	}
	if op == "" {
		return parkedCall{}, ErrNoPendingCall
	}
	return parkedCall{}, fmt.Errorf("%w: %s", ErrNoPendingCall, op)
}
