package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/ranking"
	"github.com/roach88/murmur/internal/testutil"
)

// ErrInjected is the error delivered by fail and fail_next steps.
var ErrInjected = errors.New("injected failure")

const (
	defaultDevice = "d1"
	remoteDevice  = "remote"

	// maxSettleAll bounds settle: all against calls that keep spawning
	// calls.
	maxSettleAll = 100
)

// runner executes one scenario.
type runner struct {
	ctx    context.Context
	sc     *Scenario
	gw     *gateway.Memory
	disp   *engine.ManualDispatcher
	eng    *engine.Engine
	cities map[string]ir.City
	result *Result

	// errs collects event errors reported by the engine during a step.
	errs []error
}

// Run executes a scenario against a fresh engine and in-memory gateway.
//
// Execution flow:
//  1. Seed the gateway
//  2. Execute steps in order, draining the engine after each
//  3. Evaluate the final assertions against the last view
//
// A step that cannot execute, such as settling an operation with no
// parked call, ends the run. Failed assertions and unexpected rejections
// are recorded and the run continues.
func Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario is nil")
	}

	r := newRunner(ctx, sc)
	defer r.eng.Close()

	if err := r.seed(); err != nil {
		return nil, fmt.Errorf("seed %s: %w", sc.Name, err)
	}

	for i := range sc.Steps {
		if err := r.step(i+1, &sc.Steps[i]); err != nil {
			r.result.AddError(fmt.Sprintf("step %d: %v", i+1, err))
			break
		}
		r.checkErrors(i+1, &sc.Steps[i])
	}

	view := r.eng.Snapshot()
	r.result.View = view
	for i, a := range sc.Assertions {
		if err := evaluate(view, r.disp, a); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return r.result, nil
}

func newRunner(ctx context.Context, sc *Scenario) *runner {
	r := &runner{
		ctx:    ctx,
		sc:     sc,
		disp:   engine.NewManualDispatcher(),
		cities: make(map[string]ir.City),
		result: NewResult(),
	}
	r.gw = gateway.NewMemory(gateway.WithMemoryClock(
		testutil.NewDeterministicClockAt(testutil.At(1000), time.Second).Now))

	device := sc.Device
	if device == "" {
		device = defaultDevice
	}
	opts := []engine.Option{
		engine.WithDispatcher(r.disp),
		engine.WithTempIDs(engine.NewFixedGenerator(testutil.SequenceIDs("t", 64)...)),
		engine.WithNow(testutil.NewDeterministicClockAt(testutil.At(2000), time.Second).Now),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithWindows(windows(sc.Windows)),
		engine.WithErrorHook(func(_ engine.Event, err error) {
			r.errs = append(r.errs, err)
		}),
	}
	if sc.Mode != "" {
		mode, _ := ir.ParseMode(sc.Mode)
		opts = append(opts, engine.WithMode(mode))
	}
	r.eng = engine.New(r.gw, testutil.StaticIdentity(device), opts...)
	return r
}

func windows(w *WindowSpec) ranking.Windows {
	out := ranking.DefaultWindows()
	if w == nil {
		return out
	}
	if w.Recent > 0 {
		out.Recent = w.Recent
	}
	if w.HotCandidates > 0 {
		out.HotCandidates = w.HotCandidates
	}
	if w.HotDisplay > 0 {
		out.HotDisplay = w.HotDisplay
	}
	return out
}

func (r *runner) seed() error {
	for i, c := range r.sc.Seed.Cities {
		city := r.gw.AddCity(c.Slug, c.Name)
		r.cities[c.Slug] = city
		if i == 0 {
			r.cities[""] = city
		}
	}
	for _, p := range r.sc.Seed.Posts {
		r.gw.PutPost(ir.Post{
			ID:        p.ID,
			CityID:    r.cities[p.City].ID,
			Body:      p.Body,
			CreatedAt: testutil.At(p.At),
		})
	}
	for _, c := range r.sc.Seed.Comments {
		r.gw.PutComment(ir.Comment{
			ID:        c.ID,
			PostID:    c.Post,
			Body:      c.Body,
			CreatedAt: testutil.At(c.At),
		})
	}
	for _, v := range r.sc.Seed.Votes {
		value, err := ir.ParseVoteValue(v.Value)
		if err != nil {
			return err
		}
		r.gw.PutVote(ir.Vote{PostID: v.Post, DeviceID: v.Device, Value: value})
	}
	return nil
}

// step executes one step and drains the engine.
func (r *runner) step(n int, st *Step) error {
	r.errs = nil

	switch {
	case st.Intent != "":
		in, err := st.intent()
		if err != nil {
			return err
		}
		if err := r.eng.Submit(in); err != nil {
			return err
		}
		r.drain()
		r.result.AddTrace(n, "intent", describeIntent(in, r.errs))

	case st.Settle == SettleAll:
		for i := 0; ; i++ {
			pending := r.disp.Pending()
			if len(pending) == 0 {
				break
			}
			if i == maxSettleAll {
				return fmt.Errorf("calls still parked after %d settlements: %v", maxSettleAll, pending)
			}
			if err := r.disp.Settle(pending[0]); err != nil {
				return err
			}
			r.drain()
			r.result.AddTrace(n, "settle", pending[0])
		}

	case st.Settle != "":
		op, err := r.target(st.Settle)
		if err != nil {
			return err
		}
		if err := r.disp.Settle(op); err != nil {
			return fmt.Errorf("settle %s: %w", op, err)
		}
		r.drain()
		r.result.AddTrace(n, "settle", op)

	case st.Fail != "":
		op, err := r.target(st.Fail)
		if err != nil {
			return err
		}
		if err := r.disp.Fail(op, ErrInjected); err != nil {
			return fmt.Errorf("fail %s: %w", op, err)
		}
		r.drain()
		r.result.AddTrace(n, "fail", op)

	case st.FailNext != "":
		r.gw.FailNext(st.FailNext, ErrInjected)
		r.result.AddTrace(n, "fail_next", st.FailNext)

	case st.HoldChanges:
		r.gw.HoldChanges()
		r.result.AddTrace(n, "hold_changes", "")

	case st.FlushChanges:
		r.gw.FlushChanges()
		r.drain()
		r.result.AddTrace(n, "flush_changes", "")

	case st.Remote != nil:
		detail, err := r.remote(st.Remote)
		if err != nil {
			return fmt.Errorf("remote %s: %w", st.Remote.Action, err)
		}
		r.drain()
		r.result.AddTrace(n, "remote", detail)

	case st.Notify != nil:
		c, err := st.Notify.change(r.cities)
		if err != nil {
			return err
		}
		r.gw.Publish(c)
		r.drain()
		r.result.AddTrace(n, "notify", fmt.Sprintf("%s %s %s", c.Table, c.Kind, c.Row().RowKey()))

	case len(st.Expect) > 0:
		view := r.eng.Snapshot()
		for i, a := range st.Expect {
			if err := evaluate(view, r.disp, a); err != nil {
				r.result.AddError(fmt.Sprintf("step %d: expect[%d]: %v", n, i, err))
			}
		}

	default:
		return fmt.Errorf("step has no action")
	}
	return nil
}

// target maps "any" to the oldest parked call.
func (r *runner) target(op string) (string, error) {
	if op != SettleAny {
		return op, nil
	}
	pending := r.disp.Pending()
	if len(pending) == 0 {
		return "", engine.ErrNoPendingCall
	}
	return pending[0], nil
}

func (r *runner) drain() {
	r.eng.Drain(r.ctx)
}

// checkErrors compares the engine errors of a step with its expected
// rejection.
func (r *runner) checkErrors(n int, st *Step) {
	errs := r.errs
	r.errs = nil

	if st.Reject != "" {
		if len(errs) == 0 {
			r.result.AddError(fmt.Sprintf("step %d: expected rejection %s, intent was accepted", n, st.Reject))
			return
		}
		if code := engine.RejectCodeOf(errs[0]); string(code) != st.Reject {
			r.result.AddError(fmt.Sprintf("step %d: expected rejection %s, got %v", n, st.Reject, errs[0]))
		}
		errs = errs[1:]
	}
	for _, err := range errs {
		r.result.AddError(fmt.Sprintf("step %d: unexpected error: %v", n, err))
	}
}

// remote performs a write as another device and describes it.
func (r *runner) remote(rs *RemoteStep) (string, error) {
	device := rs.Device
	if device == "" {
		device = remoteDevice
	}

	switch rs.Action {
	case RemoteCreatePost:
		city, ok := r.cities[rs.City]
		if !ok {
			return "", fmt.Errorf("unknown city %q", rs.City)
		}
		p, err := r.gw.InsertPost(r.ctx, ir.NewPost{CityID: city.ID, Body: rs.Body})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %q", rs.Action, p.ID, rs.Body), nil

	case RemoteDeletePost:
		if err := r.gw.DeletePost(r.ctx, rs.Post); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", rs.Action, rs.Post), nil

	case RemoteVote:
		value, err := ir.ParseVoteValue(rs.Value)
		if err != nil {
			return "", err
		}
		if _, err := r.gw.InsertVote(r.ctx, ir.Vote{PostID: rs.Post, DeviceID: device, Value: value}); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s %s", rs.Action, rs.Post, device, value), nil

	case RemoteUnvote:
		if err := r.gw.DeleteVote(r.ctx, rs.Post, device); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", rs.Action, rs.Post, device), nil

	case RemoteCreateComment:
		c, err := r.gw.InsertComment(r.ctx, ir.NewComment{PostID: rs.Post, Body: rs.Body})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s %q", rs.Action, rs.Post, c.ID, rs.Body), nil

	case RemoteDeleteComment:
		if err := r.gw.DeleteComment(r.ctx, rs.Comment); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", rs.Action, rs.Comment), nil

	default:
		return "", fmt.Errorf("unknown action %q", rs.Action)
	}
}

// describeIntent renders an intent and, if rejected, its code:
//
//	vote_post post=p1 value=up
//	create_post text="" rejected=INVALID_BODY
func describeIntent(in engine.Intent, errs []error) string {
	parts := []string{string(in.Kind)}
	if in.City != "" {
		parts = append(parts, "city="+in.City)
	}
	if in.PostID != "" {
		parts = append(parts, "post="+in.PostID)
	}
	if in.CommentID != "" {
		parts = append(parts, "comment="+in.CommentID)
	}
	switch in.Kind {
	case engine.IntentCreatePost, engine.IntentAddComment, engine.IntentSetCompose:
		parts = append(parts, fmt.Sprintf("text=%q", in.Text))
	}
	if in.Value != 0 {
		parts = append(parts, "value="+in.Value.String())
	}
	if in.Mode != "" {
		parts = append(parts, "mode="+string(in.Mode))
	}
	for _, err := range errs {
		if code := engine.RejectCodeOf(err); code != "" {
			parts = append(parts, "rejected="+string(code))
			break
		}
	}
	return strings.Join(parts, " ")
}
