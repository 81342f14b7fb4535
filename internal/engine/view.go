package engine

import (
	"time"

	"github.com/roach88/murmur/internal/ir"
)

// View is an immutable snapshot of the reconciled state.
//
// Posts are in display order. Pending posts and comments carry their
// temporary id in ID until confirmed.
type View struct {
	Seq         int64                    `json:"seq"`
	City        *ir.City                 `json:"city,omitempty"`
	Mode        ir.Mode                  `json:"mode"`
	Posts       []PostView               `json:"posts"`
	Tallies     map[string]ir.Tally      `json:"tallies"`
	OpenThreads []string                 `json:"open_threads"`
	Comments    map[string][]CommentView `json:"comments"`
	Compose     string                   `json:"compose"`
}

// PostView is one post as displayed.
type PostView struct {
	ID        string    `json:"id"`
	Status    ir.Status `json:"status"`
	CityID    int64     `json:"city_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Tally     ir.Tally  `json:"tally"`
}

// CommentView is one comment as displayed.
type CommentView struct {
	ID        string    `json:"id"`
	Status    ir.Status `json:"status"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// PostIDs returns the ids of the displayed posts in order.
func (v *View) PostIDs() []string {
	ids := make([]string, len(v.Posts))
	for i, p := range v.Posts {
		ids[i] = p.ID
	}
	return ids
}

// Post returns the displayed post with id.
func (v *View) Post(id string) (PostView, bool) {
	for _, p := range v.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return PostView{}, false
}

// CommentIDs returns the ids of the comments shown under postID.
func (v *View) CommentIDs(postID string) []string {
	list := v.Comments[postID]
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = c.ID
	}
	return ids
}

// IsOpen reports whether the thread of postID is open.
func (v *View) IsOpen(postID string) bool {
	for _, id := range v.OpenThreads {
		if id == postID {
			return true
		}
	}
	return false
}
