package engine

import (
	"fmt"

	"github.com/roach88/murmur/internal/ir"
)

// IntentKind names a user intent.
type IntentKind string

const (
	IntentLoadCity      IntentKind = "load_city"
	IntentSelectMode    IntentKind = "select_mode"
	IntentSetCompose    IntentKind = "set_compose"
	IntentCreatePost    IntentKind = "create_post"
	IntentDeletePost    IntentKind = "delete_post"
	IntentVotePost      IntentKind = "vote_post"
	IntentToggleThread  IntentKind = "toggle_thread"
	IntentAddComment    IntentKind = "add_comment"
	IntentDeleteComment IntentKind = "delete_comment"
	IntentReload        IntentKind = "reload"
)

var intentKinds = []IntentKind{
	IntentLoadCity, IntentSelectMode, IntentSetCompose, IntentCreatePost, IntentDeletePost,
	IntentVotePost, IntentToggleThread, IntentAddComment, IntentDeleteComment, IntentReload,
}

// ParseIntentKind validates an intent kind name.
func ParseIntentKind(s string) (IntentKind, error) {
	for _, k := range intentKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown intent kind %q", s)
}

// Intent is a request from the presentation layer. Only the fields of its
// kind are read.
type Intent struct {
	Kind      IntentKind
	City      string
	PostID    string
	CommentID string
	Text      string
	Value     ir.VoteValue
	Mode      ir.Mode
}

// LoadCity resolves a city by slug and loads its posts.
func LoadCity(slug string) Intent {
	return Intent{Kind: IntentLoadCity, City: slug}
}

// Reload refetches the posts and tallies of the current city.
func Reload() Intent {
	return Intent{Kind: IntentReload}
}

// SelectMode switches the ranking mode and refetches with its window.
func SelectMode(m ir.Mode) Intent {
	return Intent{Kind: IntentSelectMode, Mode: m}
}

// SetCompose replaces the compose buffer.
func SetCompose(text string) Intent {
	return Intent{Kind: IntentSetCompose, Text: text}
}

// CreatePost publishes text as a new post in the current city.
func CreatePost(text string) Intent {
	return Intent{Kind: IntentCreatePost, Text: text}
}

// DeletePost deletes a confirmed post.
func DeletePost(id string) Intent {
	return Intent{Kind: IntentDeletePost, PostID: id}
}

// VotePost votes on a post. Repeating the current vote removes it.
func VotePost(id string, v ir.VoteValue) Intent {
	return Intent{Kind: IntentVotePost, PostID: id, Value: v}
}

// ToggleThread opens or closes the comment thread of a post.
func ToggleThread(id string) Intent {
	return Intent{Kind: IntentToggleThread, PostID: id}
}

// AddComment replies to a post.
func AddComment(postID, text string) Intent {
	return Intent{Kind: IntentAddComment, PostID: postID, Text: text}
}

// DeleteComment deletes a confirmed comment.
func DeleteComment(postID, commentID string) Intent {
	return Intent{Kind: IntentDeleteComment, PostID: postID, CommentID: commentID}
}
