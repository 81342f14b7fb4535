package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/murmur/internal/ir"
)

// Operation names. The engine labels calls with these, Memory keys fault
// injection on them, and metrics use them as label values.
const (
	OpResolveCity   = "city.resolve"
	OpListPosts     = "posts.list"
	OpInsertPost    = "posts.insert"
	OpDeletePost    = "posts.delete"
	OpListComments  = "comments.list"
	OpInsertComment = "comments.insert"
	OpDeleteComment = "comments.delete"
	OpListVotes     = "votes.list"
	OpGetVote       = "votes.get"
	OpInsertVote    = "votes.insert"
	OpUpdateVote    = "votes.update"
	OpDeleteVote    = "votes.delete"
)

var (
	// ErrNotFound is returned when a row addressed by key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCityNotFound is returned by ResolveCity for unknown slugs.
	ErrCityNotFound = errors.New("city not found")

	// ErrClosed is returned by calls made after the gateway was closed.
	ErrClosed = errors.New("gateway closed")
)

// CallError wraps a failure of a single gateway operation.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// PostQuery selects posts of one city, newest first.
type PostQuery struct {
	CityID int64
	Limit  int // zero means no limit
}

// Gateway is the narrow contract the reconciliation core consumes.
//
// Every method may block on the network and must honour ctx.
// Subscribe returns immediately; fn is invoked from the publisher's
// goroutine and must not block.
type Gateway interface {
	ResolveCity(ctx context.Context, slug string) (ir.City, error)

	ListPosts(ctx context.Context, q PostQuery) ([]ir.Post, error)
	InsertPost(ctx context.Context, p ir.NewPost) (ir.Post, error)
	DeletePost(ctx context.Context, id string) error

	// ListComments returns the comments of one post, oldest first.
	ListComments(ctx context.Context, postID string) ([]ir.Comment, error)
	InsertComment(ctx context.Context, c ir.NewComment) (ir.Comment, error)
	DeleteComment(ctx context.Context, id string) error

	ListVotes(ctx context.Context, postIDs []string) ([]ir.Vote, error)
	GetVote(ctx context.Context, postID, deviceID string) (ir.Vote, bool, error)

	// InsertVote writes a vote. If a row for (post, device) already exists
	// the write is applied as an update and the previous value is returned;
	// uniqueness of the pair is owned by the gateway.
	InsertVote(ctx context.Context, v ir.Vote) (*ir.VoteValue, error)
	UpdateVote(ctx context.Context, v ir.Vote) error
	DeleteVote(ctx context.Context, postID, deviceID string) error

	Subscribe(f Filter, fn func(Change)) (unsubscribe func())
}
