// Package tally maintains per-post up/down counts.
//
// Counts are seeded from a full vote snapshot and then moved by signed
// deltas: optimistic adjustments from local intents and row-level changes
// from the subscription. A delta that would push a count below zero clamps
// it at zero and is reported as drift; the next full reload corrects it.
//
// Engine is not safe for concurrent use. It is owned by the reconciliation
// loop.
package tally

import (
	"sort"

	"github.com/roach88/murmur/internal/ir"
)

// Engine holds the tally of every post currently in view.
type Engine struct {
	counts map[string]ir.Tally
}

// New creates an empty tally engine.
func New() *Engine {
	return &Engine{counts: make(map[string]ir.Tally)}
}

// Ensure starts a zero tally for id if none exists.
func (e *Engine) Ensure(id string) {
	if _, ok := e.counts[id]; !ok {
		e.counts[id] = ir.Tally{}
	}
}

// Has reports whether id has a tally.
func (e *Engine) Has(id string) bool {
	_, ok := e.counts[id]
	return ok
}

// Get returns the tally for id, or the zero tally.
func (e *Engine) Get(id string) ir.Tally {
	return e.counts[id]
}

// Set overwrites the tally for id. Negative counts are clamped.
func (e *Engine) Set(id string, t ir.Tally) {
	e.counts[id] = ir.Tally{Ups: max(t.Ups, 0), Downs: max(t.Downs, 0)}
}

// Remove drops the tally for id.
func (e *Engine) Remove(id string) {
	delete(e.counts, id)
}

// Rename moves the tally stored under from to to. If to already has a
// tally the two are summed.
func (e *Engine) Rename(from, to string) {
	if from == to {
		return
	}
	t, ok := e.counts[from]
	if !ok {
		return
	}
	delete(e.counts, from)
	cur := e.counts[to]
	e.counts[to] = ir.Tally{Ups: cur.Ups + t.Ups, Downs: cur.Downs + t.Downs}
}

// Reset drops every tally.
func (e *Engine) Reset() {
	e.counts = make(map[string]ir.Tally)
}

// Len returns the number of posts with a tally.
func (e *Engine) Len() int {
	return len(e.counts)
}

// IDs returns the ids with a tally in ascending order.
func (e *Engine) IDs() []string {
	ids := make([]string, 0, len(e.counts))
	for id := range e.counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every tally.
func (e *Engine) Snapshot() map[string]ir.Tally {
	out := make(map[string]ir.Tally, len(e.counts))
	for id, t := range e.counts {
		out[id] = t
	}
	return out
}

// ApplySnapshot replaces the tallies of ids with counts recomputed from
// votes. Every id gets a tally, zero when it has no votes. Votes for posts
// outside ids are ignored; tallies of posts outside ids are left alone.
func (e *Engine) ApplySnapshot(ids []string, votes []ir.Vote) {
	fresh := make(map[string]ir.Tally, len(ids))
	for _, id := range ids {
		fresh[id] = ir.Tally{}
	}
	for _, v := range votes {
		t, ok := fresh[v.PostID]
		if !ok {
			continue
		}
		switch v.Value {
		case ir.VoteUp:
			t.Ups++
		case ir.VoteDown:
			t.Downs++
		}
		fresh[v.PostID] = t
	}
	for id, t := range fresh {
		e.counts[id] = t
	}
}

// Delta is a signed change to one tally.
type Delta struct {
	Ups   int
	Downs int
}

// IsZero reports whether d changes nothing.
func (d Delta) IsZero() bool {
	return d.Ups == 0 && d.Downs == 0
}

// Neg returns the inverse of d.
func (d Delta) Neg() Delta {
	return Delta{Ups: -d.Ups, Downs: -d.Downs}
}

// Add returns the sum of d and o.
func (d Delta) Add(o Delta) Delta {
	return Delta{Ups: d.Ups + o.Ups, Downs: d.Downs + o.Downs}
}

// Transition returns the delta of a vote moving from one value to another.
// A nil value means no vote.
func Transition(from, to *ir.VoteValue) Delta {
	return contribution(to).Add(contribution(from).Neg())
}

// ChangeDelta returns the delta described by a vote change event.
func ChangeDelta(kind ir.ChangeKind, old, cur *ir.VoteValue) Delta {
	switch kind {
	case ir.ChangeInsert:
		return contribution(cur)
	case ir.ChangeDelete:
		return contribution(old).Neg()
	case ir.ChangeUpdate:
		return Transition(old, cur)
	default:
		return Delta{}
	}
}

func contribution(v *ir.VoteValue) Delta {
	if v == nil {
		return Delta{}
	}
	switch *v {
	case ir.VoteUp:
		return Delta{Ups: 1}
	case ir.VoteDown:
		return Delta{Downs: 1}
	default:
		return Delta{}
	}
}

// Apply adds d to the tally of id, creating it if needed. It reports
// whether a count had to be clamped at zero.
func (e *Engine) Apply(id string, d Delta) (drift bool) {
	t := e.counts[id]
	t.Ups += d.Ups
	t.Downs += d.Downs
	if t.Ups < 0 {
		t.Ups = 0
		drift = true
	}
	if t.Downs < 0 {
		t.Downs = 0
		drift = true
	}
	e.counts[id] = t
	return drift
}

// ApplyDelta applies a vote change event to the tally of id. It reports
// whether a count had to be clamped at zero.
func (e *Engine) ApplyDelta(id string, kind ir.ChangeKind, old, cur *ir.VoteValue) (drift bool) {
	return e.Apply(id, ChangeDelta(kind, old, cur))
}
