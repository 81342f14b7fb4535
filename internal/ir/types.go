package ir

import (
	"fmt"
	"time"
)

// City is a location scope for posts.
type City struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Post is a short message scoped to one city.
type Post struct {
	ID        string    `json:"id"`
	CityID    int64     `json:"city_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPost is the payload of a post insert.
type NewPost struct {
	CityID int64  `json:"city_id"`
	Body   string `json:"body"`
}

// Comment is a reply scoped to one post.
// ParentID is reserved for nesting; replies are currently always top-level.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  *string   `json:"parent_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewComment is the payload of a comment insert.
type NewComment struct {
	PostID   string  `json:"post_id"`
	ParentID *string `json:"parent_id"`
	Body     string  `json:"body"`
}

// VoteValue is the direction of a single vote.
type VoteValue int

const (
	// VoteUp counts toward Tally.Ups.
	VoteUp VoteValue = 1
	// VoteDown counts toward Tally.Downs.
	VoteDown VoteValue = -1
)

// Valid reports whether v is +1 or -1.
func (v VoteValue) Valid() bool {
	return v == VoteUp || v == VoteDown
}

func (v VoteValue) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return fmt.Sprintf("VoteValue(%d)", int(v))
	}
}

// ParseVoteValue accepts "up", "down", "1", "+1" and "-1".
func ParseVoteValue(s string) (VoteValue, error) {
	switch s {
	case "up", "1", "+1":
		return VoteUp, nil
	case "down", "-1":
		return VoteDown, nil
	default:
		return 0, fmt.Errorf("invalid vote value %q", s)
	}
}

// Vote is one client's vote on one post.
// At most one row exists per (PostID, DeviceID).
type Vote struct {
	PostID   string    `json:"post_id"`
	DeviceID string    `json:"device_id"`
	Value    VoteValue `json:"value"`
}

// Tally is the derived up/down count for one post.
type Tally struct {
	Ups   int `json:"ups"`
	Downs int `json:"downs"`
}

// Total is the ranking weight used by hot mode.
func (t Tally) Total() int {
	return t.Ups + t.Downs
}

// Mode selects how the post list is ordered.
type Mode string

const (
	// ModeRecent orders posts newest first.
	ModeRecent Mode = "recent"
	// ModeHot orders posts by total vote activity, newest first on ties.
	ModeHot Mode = "hot"
)

// ParseMode accepts "recent", "new" (the tab name) and "hot".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "recent", "new":
		return ModeRecent, nil
	case "hot":
		return ModeHot, nil
	default:
		return "", fmt.Errorf("invalid ranking mode %q: must be hot or recent", s)
	}
}

// Row is implemented by the backend row types carried in change events.
type Row interface {
	// RowKey returns the row's primary key.
	RowKey() string
}

// RowKey implements Row.
func (p Post) RowKey() string { return p.ID }

// RowKey implements Row.
func (c Comment) RowKey() string { return c.ID }

// RowKey implements Row. Votes are keyed by (post, device).
func (v Vote) RowKey() string { return v.PostID + "/" + v.DeviceID }

// ChangeKind is the kind of a row-level change.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota + 1
	ChangeUpdate
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ParseChangeKind is the inverse of ChangeKind.String.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch s {
	case "insert", "INSERT":
		return ChangeInsert, nil
	case "update", "UPDATE":
		return ChangeUpdate, nil
	case "delete", "DELETE":
		return ChangeDelete, nil
	default:
		return 0, fmt.Errorf("invalid change kind %q", s)
	}
}
