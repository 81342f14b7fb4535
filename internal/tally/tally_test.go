package tally

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/ir"
)

func vp(v ir.VoteValue) *ir.VoteValue { return &v }

func TestTransition(t *testing.T) {
	up, down := vp(ir.VoteUp), vp(ir.VoteDown)

	tests := []struct {
		name     string
		from, to *ir.VoteValue
		want     Delta
	}{
		{"none to up", nil, up, Delta{Ups: 1}},
		{"none to down", nil, down, Delta{Downs: 1}},
		{"up to none", up, nil, Delta{Ups: -1}},
		{"down to none", down, nil, Delta{Downs: -1}},
		{"up to down", up, down, Delta{Ups: -1, Downs: 1}},
		{"down to up", down, up, Delta{Ups: 1, Downs: -1}},
		{"up to up", up, up, Delta{}},
		{"none to none", nil, nil, Delta{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.from, tt.to))
		})
	}
}

func TestChangeDelta(t *testing.T) {
	up, down := vp(ir.VoteUp), vp(ir.VoteDown)

	assert.Equal(t, Delta{Ups: 1}, ChangeDelta(ir.ChangeInsert, nil, up))
	assert.Equal(t, Delta{Downs: -1}, ChangeDelta(ir.ChangeDelete, down, nil))
	assert.Equal(t, Delta{Ups: -1, Downs: 1}, ChangeDelta(ir.ChangeUpdate, up, down))

	// Insert ignores old; delete ignores new.
	assert.Equal(t, Delta{Downs: 1}, ChangeDelta(ir.ChangeInsert, up, down))
	assert.Equal(t, Delta{Ups: -1}, ChangeDelta(ir.ChangeDelete, up, down))
}

func TestEngine_ApplySnapshot(t *testing.T) {
	e := New()
	e.Set("stale", ir.Tally{Ups: 9})

	e.ApplySnapshot([]string{"p1", "p2", "p3"}, []ir.Vote{
		{PostID: "p1", DeviceID: "a", Value: ir.VoteUp},
		{PostID: "p1", DeviceID: "b", Value: ir.VoteUp},
		{PostID: "p1", DeviceID: "c", Value: ir.VoteDown},
		{PostID: "p2", DeviceID: "a", Value: ir.VoteDown},
		{PostID: "other", DeviceID: "a", Value: ir.VoteUp},
	})

	assert.Equal(t, ir.Tally{Ups: 2, Downs: 1}, e.Get("p1"))
	assert.Equal(t, ir.Tally{Downs: 1}, e.Get("p2"))
	assert.True(t, e.Has("p3"))
	assert.Equal(t, ir.Tally{}, e.Get("p3"))
	assert.False(t, e.Has("other"))
	assert.Equal(t, ir.Tally{Ups: 9}, e.Get("stale"))
}

func TestEngine_ApplyClampsAndReportsDrift(t *testing.T) {
	e := New()
	e.Ensure("p1")

	drift := e.Apply("p1", Delta{Ups: -1})
	assert.True(t, drift)
	assert.Equal(t, ir.Tally{}, e.Get("p1"))

	drift = e.Apply("p1", Delta{Ups: 2, Downs: 1})
	assert.False(t, drift)
	assert.Equal(t, ir.Tally{Ups: 2, Downs: 1}, e.Get("p1"))
	assert.Equal(t, 3, e.Get("p1").Total())
}

func TestEngine_OptimisticRoundTrip(t *testing.T) {
	e := New()
	e.Set("p1", ir.Tally{Ups: 3, Downs: 2})

	d := Transition(vp(ir.VoteUp), vp(ir.VoteDown))
	e.Apply("p1", d)
	assert.Equal(t, ir.Tally{Ups: 2, Downs: 3}, e.Get("p1"))

	e.Apply("p1", d.Neg())
	assert.Equal(t, ir.Tally{Ups: 3, Downs: 2}, e.Get("p1"))
}

func TestEngine_Rename(t *testing.T) {
	e := New()
	e.Set("tmp-1", ir.Tally{Ups: 1})
	e.Rename("tmp-1", "p1")

	assert.False(t, e.Has("tmp-1"))
	assert.Equal(t, ir.Tally{Ups: 1}, e.Get("p1"))

	e.Set("tmp-2", ir.Tally{Downs: 1})
	e.Rename("tmp-2", "p1")
	assert.Equal(t, ir.Tally{Ups: 1, Downs: 1}, e.Get("p1"))

	e.Rename("missing", "p1")
	assert.Equal(t, ir.Tally{Ups: 1, Downs: 1}, e.Get("p1"))
}

func TestEngine_RemoveAndReset(t *testing.T) {
	e := New()
	e.Ensure("p1")
	e.Ensure("p2")
	assert.Equal(t, []string{"p1", "p2"}, e.IDs())

	e.Remove("p1")
	assert.Equal(t, 1, e.Len())

	snap := e.Snapshot()
	e.Reset()
	assert.Equal(t, 0, e.Len())
	assert.Len(t, snap, 1)
}

func TestEngine_DeltasMatchSnapshot(t *testing.T) {
	posts := []string{"p1", "p2", "p3"}
	devices := []string{"a", "b", "c", "d", "e"}
	values := []ir.VoteValue{ir.VoteUp, ir.VoteDown}

	for _, seed := range []int64{1, 7, 42, 1234, 99991} {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			rows := make(map[string]map[string]ir.VoteValue, len(posts))
			incremental := New()
			for _, p := range posts {
				rows[p] = make(map[string]ir.VoteValue)
				incremental.Ensure(p)
			}

			for step := 0; step < 300; step++ {
				post := posts[rng.Intn(len(posts))]
				device := devices[rng.Intn(len(devices))]
				prev, exists := rows[post][device]

				var drift bool
				switch {
				case !exists:
					v := values[rng.Intn(len(values))]
					rows[post][device] = v
					drift = incremental.ApplyDelta(post, ir.ChangeInsert, nil, vp(v))
				case rng.Intn(2) == 0:
					v := -prev
					rows[post][device] = v
					drift = incremental.ApplyDelta(post, ir.ChangeUpdate, vp(prev), vp(v))
				default:
					delete(rows[post], device)
					drift = incremental.ApplyDelta(post, ir.ChangeDelete, vp(prev), nil)
				}
				require.False(t, drift, "step %d", step)

				snapshot := New()
				snapshot.ApplySnapshot(posts, remainingVotes(posts, devices, rows))
				require.Equal(t, snapshot.Snapshot(), incremental.Snapshot(), "step %d", step)
			}
		})
	}
}

// remainingVotes lists the rows in a stable order.
func remainingVotes(posts, devices []string, rows map[string]map[string]ir.VoteValue) []ir.Vote {
	var votes []ir.Vote
	for _, p := range posts {
		for _, d := range devices {
			if v, ok := rows[p][d]; ok {
				votes = append(votes, ir.Vote{PostID: p, DeviceID: d, Value: v})
			}
		}
	}
	return votes
}
