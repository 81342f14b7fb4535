package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

func TestVote_ToggleScenario(t *testing.T) {
	f := newFixture(t)
	f.load()
	f.submit(CreatePost("A"))
	assert.Equal(t, ir.Tally{}, f.tally("t1"))
	f.settle(gateway.OpInsertPost)
	require.Equal(t, []string{"p1"}, f.view().PostIDs())

	f.vote("p1", ir.VoteUp)
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("p1"))

	f.vote("p1", ir.VoteUp)
	assert.Equal(t, ir.Tally{}, f.tally("p1"), "repeating a vote toggles it off")

	f.vote("p1", ir.VoteDown)
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("p1"))

	f.vote("p1", ir.VoteUp)
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("p1"), "switching sides moves one vote")

	v, found, err := f.gw.GetVote(context.Background(), "p1", device)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.VoteUp, v.Value)
}

func TestVote_OptimisticBeforeWrite(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.submit(VotePost("s1", ir.VoteUp))
	assert.Equal(t, ir.Tally{}, f.tally("s1"), "nothing applied before the read settles")

	f.settle(gateway.OpGetVote)
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"))
	assert.Equal(t, []string{gateway.OpInsertVote}, f.disp.Pending())
}

func TestVote_WriteFailureRevertsExactDelta(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.seedVotes("s1", ir.VoteUp, ir.VoteUp)
	f.gw.PutVote(ir.Vote{PostID: "s1", DeviceID: device, Value: ir.VoteUp})
	f.load()
	require.Equal(t, ir.Tally{Ups: 3}, f.tally("s1"))

	f.submit(VotePost("s1", ir.VoteDown))
	f.settle(gateway.OpGetVote)
	assert.Equal(t, ir.Tally{Ups: 2, Downs: 1}, f.tally("s1"))

	f.fail(gateway.OpUpdateVote)
	assert.Equal(t, ir.Tally{Ups: 3}, f.tally("s1"))
	assert.Equal(t, 0, f.eng.echoes.len())
}

func TestVote_ReadFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.submit(VotePost("s1", ir.VoteUp))
	f.fail(gateway.OpGetVote)

	assert.Equal(t, ir.Tally{}, f.tally("s1"))
	assert.Equal(t, 0, f.disp.Len())

	f.vote("s1", ir.VoteUp)
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"), "a new intent is accepted after the abort")
}

func TestVote_InFlightIntentIgnored(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.submit(VotePost("s1", ir.VoteUp))
	f.submit(VotePost("s1", ir.VoteUp))
	assert.Equal(t, []string{gateway.OpGetVote}, f.disp.Pending())

	f.settleAll()
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"))
}

func TestVote_Rejections(t *testing.T) {
	f := newFixture(t)
	f.load()
	f.submit(CreatePost("pending"))

	f.submit(VotePost("t1", ir.VoteUp))
	f.submit(VotePost("missing", ir.VoteUp))
	f.submit(VotePost("t1", ir.VoteValue(0)))

	assert.Equal(t, []string{gateway.OpInsertPost}, f.disp.Pending())
	assert.Equal(t, ir.Tally{}, f.tally("t1"))
}

func TestVote_LateDuplicateBeforeAck(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.submit(VotePost("s1", ir.VoteDown))
	f.settle(gateway.OpGetVote)
	require.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))

	// Another session of this device inserts first.
	_, err := f.gw.InsertVote(context.Background(), ir.Vote{PostID: "s1", DeviceID: device, Value: ir.VoteUp})
	require.NoError(t, err)
	f.drain()
	assert.Equal(t, ir.Tally{Ups: 1, Downs: 1}, f.tally("s1"))

	// Our insert meets the existing row and is applied as an update.
	f.settle(gateway.OpInsertVote)
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))
	assert.Equal(t, 0, f.eng.echoes.len())
}

func TestVote_LateDuplicateAckBeforeEcho(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.submit(VotePost("s1", ir.VoteDown))
	f.settle(gateway.OpGetVote)
	_, err := f.gw.InsertVote(context.Background(), ir.Vote{PostID: "s1", DeviceID: device, Value: ir.VoteUp})
	require.NoError(t, err)
	f.drain()

	f.gw.HoldChanges()
	f.settle(gateway.OpInsertVote)
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"), "corrected on acknowledgement")

	f.gw.FlushChanges()
	f.drain()
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"), "echo is not applied again")
}

func TestVote_EchoAfterAck(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.submit(VotePost("s1", ir.VoteUp))
	f.settle(gateway.OpGetVote)
	f.gw.HoldChanges()
	f.settle(gateway.OpInsertVote)
	assert.Equal(t, 1, f.eng.echoes.len())

	f.gw.FlushChanges()
	f.drain()
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"))
	assert.Equal(t, 0, f.eng.echoes.len())
}

func TestVote_ReloadDuringWriteKeepsVote(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.seedVotes("s1", ir.VoteDown)
	f.load()

	f.submit(VotePost("s1", ir.VoteUp))
	f.settle(gateway.OpGetVote)
	require.Equal(t, ir.Tally{Ups: 1, Downs: 1}, f.tally("s1"))

	// The snapshot predates the write.
	f.submit(Reload())
	f.settle(gateway.OpListPosts)
	assert.Equal(t, ir.Tally{Ups: 1, Downs: 1}, f.tally("s1"), "in-flight vote survives the snapshot")

	f.settle(gateway.OpInsertVote)
	assert.Equal(t, ir.Tally{Ups: 1, Downs: 1}, f.tally("s1"))
	assert.Zero(t, f.eng.echoes.len())
}

func TestVote_ReloadBeforeEchoCountsOnce(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.gw.HoldChanges()
	f.submit(VotePost("s1", ir.VoteUp))
	f.settle(gateway.OpGetVote)
	f.settle(gateway.OpInsertVote)
	require.Equal(t, 1, f.eng.echoes.len(), "echo still held")

	// The snapshot already holds the write.
	f.submit(Reload())
	f.settle(gateway.OpListPosts)
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"))

	f.gw.FlushChanges()
	f.drain()
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"))
	assert.Zero(t, f.eng.echoes.len())
}

func TestVote_ReloadReplaysOnlyUnreflectedWrites(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.gw.HoldChanges()
	f.vote("s1", ir.VoteUp)
	f.submit(VotePost("s1", ir.VoteDown))
	f.settle(gateway.OpGetVote)
	require.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))

	// Snapshot shows the first write only; the switch is still in flight.
	f.submit(Reload())
	f.settle(gateway.OpListPosts)
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))

	f.settle(gateway.OpUpdateVote)
	f.gw.FlushChanges()
	f.drain()
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))
	assert.Zero(t, f.eng.echoes.len())
}

func TestVoteNotification_OtherDevices(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()
	ctx := context.Background()

	_, err := f.gw.InsertVote(ctx, ir.Vote{PostID: "s1", DeviceID: "d2", Value: ir.VoteUp})
	require.NoError(t, err)
	f.drain()
	assert.Equal(t, ir.Tally{Ups: 1}, f.tally("s1"))

	require.NoError(t, f.gw.UpdateVote(ctx, ir.Vote{PostID: "s1", DeviceID: "d2", Value: ir.VoteDown}))
	f.drain()
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))

	require.NoError(t, f.gw.DeleteVote(ctx, "s1", "d2"))
	f.drain()
	assert.Equal(t, ir.Tally{}, f.tally("s1"))
}

func TestVoteNotification_PostNotInViewDiscarded(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.gw.Publish(gateway.Change{Table: gateway.TableVotes, Kind: ir.ChangeInsert,
		New: ir.Vote{PostID: "elsewhere", DeviceID: "d2", Value: ir.VoteUp}})
	f.drain()

	_, tracked := f.view().Tallies["elsewhere"]
	assert.False(t, tracked)
}

func TestVoteNotification_DriftClamped(t *testing.T) {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.load()

	f.gw.Publish(gateway.Change{Table: gateway.TableVotes, Kind: ir.ChangeDelete,
		Old: ir.Vote{PostID: "s1", DeviceID: "d2", Value: ir.VoteUp}})
	f.drain()
	assert.Equal(t, ir.Tally{}, f.tally("s1"))

	// A full reload corrects the drift.
	f.gw.PutVote(ir.Vote{PostID: "s1", DeviceID: "d3", Value: ir.VoteDown})
	f.submit(Reload())
	f.settleAll()
	assert.Equal(t, ir.Tally{Downs: 1}, f.tally("s1"))
}

func TestVoteNotification_HotRerank(t *testing.T) {
	f := newFixture(t, WithMode(ir.ModeHot))
	f.seedPost("s1", 1)
	f.seedPost("s2", 2)
	f.load()
	require.Equal(t, []string{"s2", "s1"}, f.view().PostIDs())

	_, err := f.gw.InsertVote(context.Background(), ir.Vote{PostID: "s1", DeviceID: "d2", Value: ir.VoteDown})
	require.NoError(t, err)
	f.drain()

	assert.Equal(t, []string{"s1", "s2"}, f.view().PostIDs())
}
