package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

func newThreadFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.seedPost("s1", 1)
	f.seedComment("k1", "s1", 2)
	f.seedComment("k2", "s1", 3)
	f.load()
	return f
}

func TestToggleThread_LazyFetchOnce(t *testing.T) {
	f := newThreadFixture(t)

	f.submit(ToggleThread("s1"))
	assert.Equal(t, []string{"s1"}, f.view().OpenThreads)
	assert.Equal(t, []string{gateway.OpListComments}, f.disp.Pending())

	f.settle(gateway.OpListComments)
	assert.Equal(t, []string{"k1", "k2"}, f.view().CommentIDs("s1"))

	f.submit(ToggleThread("s1"))
	assert.Empty(t, f.view().OpenThreads)
	assert.Equal(t, []string{"k1", "k2"}, f.view().CommentIDs("s1"), "closing keeps the cache")

	f.submit(ToggleThread("s1"))
	assert.True(t, f.view().IsOpen("s1"))
	assert.Equal(t, 0, f.disp.Len(), "reopening does not refetch")
}

func TestToggleThread_FetchFailure(t *testing.T) {
	f := newThreadFixture(t)
	f.gw.FailNext(gateway.OpListComments, errBoom)

	f.submit(ToggleThread("s1"))
	f.settleAll()
	assert.True(t, f.view().IsOpen("s1"))
	assert.Empty(t, f.view().CommentIDs("s1"))

	f.submit(ToggleThread("s1"))
	f.submit(ToggleThread("s1"))
	assert.Equal(t, []string{gateway.OpListComments}, f.disp.Pending())
	f.settleAll()
	assert.Equal(t, []string{"k1", "k2"}, f.view().CommentIDs("s1"))
}

func TestToggleThread_Rejections(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(CreatePost("pending"))

	f.submit(ToggleThread("t1"))
	f.submit(ToggleThread("missing"))

	assert.Empty(t, f.view().OpenThreads)
}

func TestAddComment_PendingThenConfirmed(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()

	f.submit(AddComment("s1", " hi "))
	list := f.view().Comments["s1"]
	require.Len(t, list, 3)
	assert.Equal(t, "t1", list[2].ID)
	assert.Equal(t, ir.StatusPending, list[2].Status)
	assert.Equal(t, "hi", list[2].Body)

	f.settle(gateway.OpInsertComment)
	list = f.view().Comments["s1"]
	require.Len(t, list, 3, "echo and acknowledgement yield one comment")
	assert.Equal(t, "c1", list[2].ID)
	assert.Equal(t, ir.StatusConfirmed, list[2].Status)
}

func TestAddComment_FailureRollsBack(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()

	f.submit(AddComment("s1", "hi"))
	f.fail(gateway.OpInsertComment)

	assert.Equal(t, []string{"k1", "k2"}, f.view().CommentIDs("s1"))
}

func TestAddComment_Rejections(t *testing.T) {
	f := newThreadFixture(t)

	f.submit(AddComment("s1", "   "))
	f.submit(AddComment("missing", "hi"))
	assert.Equal(t, 0, f.disp.Len())
	assert.Empty(t, f.view().Comments)
}

func TestDeleteComment_FailureRestoresPosition(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()

	f.submit(DeleteComment("s1", "k1"))
	assert.Equal(t, []string{"k2"}, f.view().CommentIDs("s1"))

	f.fail(gateway.OpDeleteComment)
	assert.Equal(t, []string{"k1", "k2"}, f.view().CommentIDs("s1"))
}

func TestDeleteComment_Success(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()

	f.submit(DeleteComment("s1", "k1"))
	f.settle(gateway.OpDeleteComment)
	assert.Equal(t, []string{"k2"}, f.view().CommentIDs("s1"))

	remaining, err := f.gw.ListComments(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestDeleteComment_PendingRejected(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()
	f.submit(AddComment("s1", "hi"))

	f.submit(DeleteComment("s1", "t1"))
	f.submit(DeleteComment("s1", "missing"))

	assert.Equal(t, []string{"k1", "k2", "t1"}, f.view().CommentIDs("s1"))
	assert.Equal(t, []string{gateway.OpInsertComment}, f.disp.Pending())
}

func TestCommentNotification_OpenThreadOnly(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()
	ctx := context.Background()

	c, err := f.gw.InsertComment(ctx, ir.NewComment{PostID: "s1", Body: "remote"})
	require.NoError(t, err)
	f.drain()
	assert.Equal(t, []string{"k1", "k2", c.ID}, f.view().CommentIDs("s1"))

	f.gw.Publish(gateway.Change{Table: gateway.TableComments, Kind: ir.ChangeInsert, New: c})
	f.drain()
	assert.Len(t, f.view().CommentIDs("s1"), 3, "duplicate insert ignored")

	// Closing the thread stops its feed.
	f.submit(ToggleThread("s1"))
	_, err = f.gw.InsertComment(ctx, ir.NewComment{PostID: "s1", Body: "unseen"})
	require.NoError(t, err)
	f.drain()
	assert.Len(t, f.view().CommentIDs("s1"), 3)
}

func TestCommentNotification_RemoteDelete(t *testing.T) {
	f := newThreadFixture(t)
	f.submit(ToggleThread("s1"))
	f.settleAll()

	require.NoError(t, f.gw.DeleteComment(context.Background(), "k2"))
	f.drain()

	assert.Equal(t, []string{"k1"}, f.view().CommentIDs("s1"))
}
