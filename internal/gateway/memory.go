package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/murmur/internal/ir"
)

// Memory is an in-process Gateway.
//
// It behaves like the SQLite store (post deletes cascade, vote inserts
// upsert) and adds two test controls:
//   - FailNext makes the next call of an operation fail
//   - HoldChanges buffers change events until FlushChanges, so a test can
//     deliver a call result before the matching notification
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	cities   map[string]ir.City
	posts    map[string]ir.Post
	comments map[string]ir.Comment
	votes    map[voteKey]ir.VoteValue
	failures map[string][]error
	held     []Change
	holding  bool
	seq      int

	now func() time.Time
	hub *Hub
}

type voteKey struct {
	postID   string
	deviceID string
}

// MemoryOption configures a Memory gateway.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock stamping created_at on inserts.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithMemoryHub publishes changes to an existing hub.
func WithMemoryHub(h *Hub) MemoryOption {
	return func(m *Memory) {
		m.hub = h
	}
}

// NewMemory creates an empty in-memory gateway.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		cities:   make(map[string]ir.City),
		posts:    make(map[string]ir.Post),
		comments: make(map[string]ir.Comment),
		votes:    make(map[voteKey]ir.VoteValue),
		failures: make(map[string][]error),
		now:      func() time.Time { return time.Now().UTC() },
		hub:      NewHub(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hub returns the hub changes are published to.
func (m *Memory) Hub() *Hub {
	return m.hub
}

// FailNext queues err as the result of the next call of op.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// HoldChanges buffers published changes until FlushChanges.
func (m *Memory) HoldChanges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holding = true
}

// FlushChanges stops holding and delivers buffered changes in order.
func (m *Memory) FlushChanges() {
	m.mu.Lock()
	held := m.held
	m.held = nil
	m.holding = false
	m.mu.Unlock()

	for _, c := range held {
		m.hub.Publish(c)
	}
}

// Publish delivers an arbitrary change, bypassing the tables. Tests use it
// to replay duplicate or out-of-order notifications.
func (m *Memory) Publish(c Change) {
	m.emit([]Change{c})
}

// AddCity registers a city and returns it with its assigned id.
func (m *Memory) AddCity(slug, name string) ir.City {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cities[slug]; ok {
		return c
	}
	c := ir.City{ID: int64(len(m.cities) + 1), Slug: slug, Name: name}
	m.cities[slug] = c
	return c
}

// PutPost stores a post without publishing a change.
func (m *Memory) PutPost(p ir.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
}

// PutComment stores a comment without publishing a change.
func (m *Memory) PutComment(c ir.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ID] = c
}

// PutVote stores a vote without publishing a change.
func (m *Memory) PutVote(v ir.Vote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[voteKey{v.PostID, v.DeviceID}] = v.Value
}

// PostCount returns the number of stored posts.
func (m *Memory) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

// ResolveCity implements Gateway.
func (m *Memory) ResolveCity(ctx context.Context, slug string) (ir.City, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, OpResolveCity); err != nil {
		return ir.City{}, err
	}
	c, ok := m.cities[slug]
	if !ok {
		return ir.City{}, &CallError{Op: OpResolveCity, Err: fmt.Errorf("%w: %s", ErrCityNotFound, slug)}
	}
	return c, nil
}

// ListPosts implements Gateway.
func (m *Memory) ListPosts(ctx context.Context, q PostQuery) ([]ir.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, OpListPosts); err != nil {
		return nil, err
	}
	var out []ir.Post
	for _, p := range m.posts {
		if p.CityID == q.CityID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// InsertPost implements Gateway.
func (m *Memory) InsertPost(ctx context.Context, np ir.NewPost) (ir.Post, error) {
	m.mu.Lock()
	if err := m.check(ctx, OpInsertPost); err != nil {
		m.mu.Unlock()
		return ir.Post{}, err
	}
	p := ir.Post{
		ID:        m.nextID("p", func(id string) bool { _, ok := m.posts[id]; return ok }),
		CityID:    np.CityID,
		Body:      np.Body,
		CreatedAt: m.now(),
	}
	m.posts[p.ID] = p
	m.mu.Unlock()

	m.emit([]Change{{Table: TablePosts, Kind: ir.ChangeInsert, New: p}})
	return p, nil
}

// DeletePost implements Gateway. Comments and votes of the post are removed
// with it, without change events of their own.
func (m *Memory) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	if err := m.check(ctx, OpDeletePost); err != nil {
		m.mu.Unlock()
		return err
	}
	p, ok := m.posts[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	for k := range m.votes {
		if k.postID == id {
			delete(m.votes, k)
		}
	}
	m.mu.Unlock()

	m.emit([]Change{{Table: TablePosts, Kind: ir.ChangeDelete, Old: p}})
	return nil
}

// ListComments implements Gateway.
func (m *Memory) ListComments(ctx context.Context, postID string) ([]ir.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, OpListComments); err != nil {
		return nil, err
	}
	var out []ir.Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertComment implements Gateway.
func (m *Memory) InsertComment(ctx context.Context, nc ir.NewComment) (ir.Comment, error) {
	m.mu.Lock()
	if err := m.check(ctx, OpInsertComment); err != nil {
		m.mu.Unlock()
		return ir.Comment{}, err
	}
	if _, ok := m.posts[nc.PostID]; !ok {
		m.mu.Unlock()
		return ir.Comment{}, &CallError{Op: OpInsertComment, Err: fmt.Errorf("%w: post %s", ErrNotFound, nc.PostID)}
	}
	c := ir.Comment{
		ID:        m.nextID("c", func(id string) bool { _, ok := m.comments[id]; return ok }),
		PostID:    nc.PostID,
		ParentID:  nc.ParentID,
		Body:      nc.Body,
		CreatedAt: m.now(),
	}
	m.comments[c.ID] = c
	m.mu.Unlock()

	m.emit([]Change{{Table: TableComments, Kind: ir.ChangeInsert, New: c}})
	return c, nil
}

// DeleteComment implements Gateway.
func (m *Memory) DeleteComment(ctx context.Context, id string) error {
	m.mu.Lock()
	if err := m.check(ctx, OpDeleteComment); err != nil {
		m.mu.Unlock()
		return err
	}
	c, ok := m.comments[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.comments, id)
	m.mu.Unlock()

	m.emit([]Change{{Table: TableComments, Kind: ir.ChangeDelete, Old: c}})
	return nil
}

// ListVotes implements Gateway.
func (m *Memory) ListVotes(ctx context.Context, postIDs []string) ([]ir.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, OpListVotes); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		want[id] = true
	}
	var out []ir.Vote
	for k, v := range m.votes {
		if want[k.postID] {
			out = append(out, ir.Vote{PostID: k.postID, DeviceID: k.deviceID, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RowKey() < out[j].RowKey()
	})
	return out, nil
}

// GetVote implements Gateway.
func (m *Memory) GetVote(ctx context.Context, postID, deviceID string) (ir.Vote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, OpGetVote); err != nil {
		return ir.Vote{}, false, err
	}
	v, ok := m.votes[voteKey{postID, deviceID}]
	if !ok {
		return ir.Vote{}, false, nil
	}
	return ir.Vote{PostID: postID, DeviceID: deviceID, Value: v}, true, nil
}

// InsertVote implements Gateway.
func (m *Memory) InsertVote(ctx context.Context, v ir.Vote) (*ir.VoteValue, error) {
	m.mu.Lock()
	if err := m.check(ctx, OpInsertVote); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if !v.Value.Valid() {
		m.mu.Unlock()
		return nil, &CallError{Op: OpInsertVote, Err: fmt.Errorf("invalid vote value %d", v.Value)}
	}
	k := voteKey{v.PostID, v.DeviceID}
	prev, existed := m.votes[k]
	m.votes[k] = v.Value
	m.mu.Unlock()

	if existed {
		old := ir.Vote{PostID: v.PostID, DeviceID: v.DeviceID, Value: prev}
		m.emit([]Change{{Table: TableVotes, Kind: ir.ChangeUpdate, Old: old, New: v}})
		return &prev, nil
	}
	m.emit([]Change{{Table: TableVotes, Kind: ir.ChangeInsert, New: v}})
	return nil, nil
}

// UpdateVote implements Gateway.
func (m *Memory) UpdateVote(ctx context.Context, v ir.Vote) error {
	m.mu.Lock()
	if err := m.check(ctx, OpUpdateVote); err != nil {
		m.mu.Unlock()
		return err
	}
	k := voteKey{v.PostID, v.DeviceID}
	prev, ok := m.votes[k]
	if !ok {
		m.mu.Unlock()
		return &CallError{Op: OpUpdateVote, Err: ErrNotFound}
	}
	m.votes[k] = v.Value
	m.mu.Unlock()

	old := ir.Vote{PostID: v.PostID, DeviceID: v.DeviceID, Value: prev}
	m.emit([]Change{{Table: TableVotes, Kind: ir.ChangeUpdate, Old: old, New: v}})
	return nil
}

// DeleteVote implements Gateway.
func (m *Memory) DeleteVote(ctx context.Context, postID, deviceID string) error {
	m.mu.Lock()
	if err := m.check(ctx, OpDeleteVote); err != nil {
		m.mu.Unlock()
		return err
	}
	k := voteKey{postID, deviceID}
	prev, ok := m.votes[k]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.votes, k)
	m.mu.Unlock()

	old := ir.Vote{PostID: postID, DeviceID: deviceID, Value: prev}
	m.emit([]Change{{Table: TableVotes, Kind: ir.ChangeDelete, Old: old}})
	return nil
}

// Subscribe implements Gateway.
func (m *Memory) Subscribe(f Filter, fn func(Change)) func() {
	return m.hub.Subscribe(f, fn)
}

// check consumes an injected failure for op. Caller holds m.mu.
func (m *Memory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &CallError{Op: op, Err: err}
	}
	if q := m.failures[op]; len(q) > 0 {
		err := q[0]
		m.failures[op] = q[1:]
		return &CallError{Op: op, Err: err}
	}
	return nil
}

// nextID returns an unused id with the given prefix. Caller holds m.mu.
func (m *Memory) nextID(prefix string, taken func(string) bool) string {
	for {
		m.seq++
		id := fmt.Sprintf("%s%d", prefix, m.seq)
		if !taken(id) {
			return id
		}
	}
}

func (m *Memory) emit(changes []Change) {
	m.mu.Lock()
	if m.holding {
		m.held = append(m.held, changes...)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.hub.Publish(c)
	}
}
