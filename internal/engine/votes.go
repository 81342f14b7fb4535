package engine

import (
	"context"
	"fmt"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/tally"
)

func (e *Engine) votePost(in *Intent) error {
	if !in.Value.Valid() {
		return reject(in.Kind, ErrCodeInvalidIntent, in.PostID, fmt.Errorf("invalid vote value %d", in.Value))
	}
	i := e.indexKey(in.PostID)
	if i < 0 {
		return reject(in.Kind, ErrCodeUnknownEntity, in.PostID, nil)
	}
	if e.posts[i].Status == ir.StatusPending {
		return reject(in.Kind, ErrCodePending, in.PostID, nil)
	}

	id := e.posts[i].Post.ID
	if e.voting[id] {
		return reject(in.Kind, ErrCodeInFlight, id, nil)
	}
	e.voting[id] = true

	device := e.identity.DeviceID()
	value := in.Value
	e.call(gateway.OpGetVote, func(ctx context.Context) (any, error) {
		v, found, err := e.gw.GetVote(ctx, id, device)
		if err != nil || !found {
			return (*ir.VoteValue)(nil), err
		}
		return &v.Value, nil
	}, func(s Settled) {
		e.settleVoteRead(id, device, value, s)
	})
	return nil
}

// settleVoteRead picks the branch from the current vote of this device,
// applies its delta optimistically and issues the write.
func (e *Engine) settleVoteRead(id, device string, value ir.VoteValue, s Settled) {
	if s.Err != nil {
		delete(e.voting, id)
		e.logger.Warn("vote read failed, intent dropped", "post_id", id, "error", s.Err)
		return
	}
	if e.indexConfirmed(id) < 0 {
		delete(e.voting, id)
		e.logger.Debug("post left view before vote", "post_id", id)
		return
	}

	current, _ := s.Value.(*ir.VoteValue)
	vote := ir.Vote{PostID: id, DeviceID: device, Value: value}

	var (
		op       string
		from, to *ir.VoteValue
		run      func(ctx context.Context) (any, error)
	)
	switch {
	case current == nil:
		op, to = gateway.OpInsertVote, &value
		run = func(ctx context.Context) (any, error) {
			return e.gw.InsertVote(ctx, vote)
		}
	case *current == value:
		op, from = gateway.OpDeleteVote, current
		run = func(ctx context.Context) (any, error) {
			return nil, e.gw.DeleteVote(ctx, id, device)
		}
	default:
		op, from, to = gateway.OpUpdateVote, current, &value
		run = func(ctx context.Context) (any, error) {
			return nil, e.gw.UpdateVote(ctx, vote)
		}
	}

	delta := tally.Transition(from, to)
	e.applyTally(id, delta)
	e.rerank()

	key := echoKey{postID: id, deviceID: device}
	var callID int64
	callID = e.call(op, run, func(s Settled) {
		e.settleVoteWrite(key, callID, delta, s)
	})
	e.echoes.expect(key, callID, to, delta)
}

func (e *Engine) settleVoteWrite(key echoKey, callID int64, delta tally.Delta, s Settled) {
	delete(e.voting, key.postID)
	entry := e.echoes.find(key, callID)

	if s.Err != nil {
		if entry == nil {
			// The echo arrived, so the write happened.
			e.logger.Debug("vote write reported failure after its echo", "post_id", key.postID, "error", s.Err)
			return
		}
		e.echoes.drop(key, callID)
		if e.indexConfirmed(key.postID) < 0 {
			return
		}
		e.applyTally(key.postID, delta.Neg())
		e.rerank()
		e.metrics.IncrementRollback(s.Op)
		e.logger.Warn("vote write failed, rolled back", "post_id", key.postID, "op", s.Op, "error", s.Err)
		return
	}

	// An insert that met an existing row was applied as an update.
	prev, _ := s.Value.(*ir.VoteValue)
	if prev == nil || entry == nil {
		return
	}
	correction := tally.Transition(prev, nil)
	entry.delta = entry.delta.Add(correction)
	if e.indexConfirmed(key.postID) >= 0 {
		e.applyTally(key.postID, correction)
		e.rerank()
	}
	e.logger.Debug("late duplicate vote reconciled as update", "post_id", key.postID, "previous", prev.String())
}

func (e *Engine) onVoteChange(c *gateway.Change) error {
	v, ok := c.Row().(ir.Vote)
	if !ok {
		return fmt.Errorf("vote change carries %T", c.Row())
	}
	if e.indexConfirmed(v.PostID) < 0 {
		e.metrics.IncrementDiscarded(string(c.Table))
		return nil
	}

	var old, cur *ir.VoteValue
	switch c.Kind {
	case ir.ChangeInsert:
		cur = voteValue(c.New)
	case ir.ChangeUpdate:
		old, cur = voteValue(c.Old), voteValue(c.New)
	case ir.ChangeDelete:
		old = voteValue(c.Old)
	}
	actual := tally.ChangeDelta(c.Kind, old, cur)

	if v.DeviceID == e.identity.DeviceID() {
		if entry, ok := e.echoes.match(echoKey{postID: v.PostID, deviceID: v.DeviceID}, cur); ok {
			e.metrics.IncrementEcho()
			diff := actual.Add(entry.delta.Neg())
			if diff.IsZero() {
				return nil
			}
			e.applyTally(v.PostID, diff)
			e.rerank()
			return nil
		}
	}

	e.applyTally(v.PostID, actual)
	e.rerank()
	return nil
}

func (e *Engine) applyTally(id string, d tally.Delta) {
	if d.IsZero() {
		return
	}
	if drift := e.tallies.Apply(id, d); drift {
		e.metrics.IncrementDrift()
		e.logger.Warn("tally drift clamped at zero", "post_id", id)
	}
}

func voteValue(r ir.Row) *ir.VoteValue {
	v, ok := r.(ir.Vote)
	if !ok {
		return nil
	}
	return &v.Value
}
