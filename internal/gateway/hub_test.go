package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/murmur/internal/ir"
)

func TestHub_PublishMatchesFilter(t *testing.T) {
	h := NewHub()

	var posts, votes []Change
	h.Subscribe(Filter{Table: TablePosts, CityID: 1}, func(c Change) { posts = append(posts, c) })
	h.Subscribe(Filter{Table: TableVotes}, func(c Change) { votes = append(votes, c) })

	h.Publish(Change{Table: TablePosts, Kind: ir.ChangeInsert, New: ir.Post{ID: "p1", CityID: 1}})
	h.Publish(Change{Table: TablePosts, Kind: ir.ChangeInsert, New: ir.Post{ID: "p2", CityID: 2}})
	h.Publish(Change{Table: TableVotes, Kind: ir.ChangeDelete, Old: ir.Vote{PostID: "p1", DeviceID: "d", Value: ir.VoteUp}})

	assert.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].Row().RowKey())
	assert.Len(t, votes, 1)
	assert.Equal(t, "p1/d", votes[0].Row().RowKey())
}

func TestHub_SubscriptionOrder(t *testing.T) {
	h := NewHub()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		h.Subscribe(Filter{}, func(Change) { order = append(order, i) })
	}
	h.Publish(Change{Table: TableComments, Kind: ir.ChangeInsert, New: ir.Comment{ID: "c1"}})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()

	calls := 0
	unsub := h.Subscribe(Filter{}, func(Change) { calls++ })
	assert.Equal(t, 1, h.Len())

	unsub()
	unsub()
	assert.Equal(t, 0, h.Len())

	h.Publish(Change{Table: TablePosts, Kind: ir.ChangeInsert, New: ir.Post{ID: "p1"}})
	assert.Equal(t, 0, calls)
}

func TestHub_CallbackMaySubscribe(t *testing.T) {
	h := NewHub()

	nested := 0
	h.Subscribe(Filter{}, func(Change) {
		h.Subscribe(Filter{}, func(Change) { nested++ })
	})

	h.Publish(Change{Table: TablePosts, Kind: ir.ChangeInsert, New: ir.Post{ID: "p1"}})
	assert.Equal(t, 0, nested)
	assert.Equal(t, 2, h.Len())
}

func TestFilter_Matches(t *testing.T) {
	comment := Change{Table: TableComments, Kind: ir.ChangeInsert, New: ir.Comment{ID: "c1", PostID: "p1"}}
	vote := Change{Table: TableVotes, Kind: ir.ChangeUpdate,
		Old: ir.Vote{PostID: "p2", DeviceID: "d", Value: ir.VoteUp},
		New: ir.Vote{PostID: "p2", DeviceID: "d", Value: ir.VoteDown}}

	tests := []struct {
		name   string
		filter Filter
		change Change
		want   bool
	}{
		{"zero filter matches all", Filter{}, comment, true},
		{"table mismatch", Filter{Table: TablePosts}, comment, false},
		{"comment post match", Filter{Table: TableComments, PostID: "p1"}, comment, true},
		{"comment post mismatch", Filter{Table: TableComments, PostID: "p2"}, comment, false},
		{"vote post match", Filter{PostID: "p2"}, vote, true},
		{"vote post mismatch", Filter{PostID: "p1"}, vote, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.change))
		})
	}
}
