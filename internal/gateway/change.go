package gateway

import "github.com/roach88/murmur/internal/ir"

// Table names as used by the backend.
type Table string

const (
	TablePosts    Table = "posts"
	TableComments Table = "comments"
	TableVotes    Table = "post_votes"
)

// Change describes one row-level change in the backing store.
// Old is set for update and delete, New for insert and update.
type Change struct {
	Table Table
	Kind  ir.ChangeKind
	Old   ir.Row
	New   ir.Row

	// Origin is empty for changes produced by this process and carries the
	// publishing process id for changes relayed from elsewhere.
	Origin string
}

// Row returns New when present, otherwise Old.
func (c Change) Row() ir.Row {
	if c.New != nil {
		return c.New
	}
	return c.Old
}

// Filter scopes a subscription. Zero fields match everything.
type Filter struct {
	Table  Table
	CityID int64  // posts only
	PostID string // comments and votes
}

// Matches reports whether c falls inside the filter.
func (f Filter) Matches(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	switch row := c.Row().(type) {
	case ir.Post:
		return f.CityID == 0 || row.CityID == f.CityID
	case ir.Comment:
		return f.PostID == "" || row.PostID == f.PostID
	case ir.Vote:
		return f.PostID == "" || row.PostID == f.PostID
	default:
		return f.CityID == 0 && f.PostID == ""
	}
}
