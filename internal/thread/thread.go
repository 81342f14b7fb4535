// Package thread holds the lazily loaded comment lists of posts.
//
// A thread is open or closed. The first open of a thread asks the caller to
// fetch its comments; closing keeps the cache, so reopening is free. Each
// list holds entries in creation order, pending entries (optimistic local
// replies keyed by a temporary id) included.
//
// Store is not safe for concurrent use. It is owned by the reconciliation
// loop.
package thread

import (
	"sort"

	"github.com/roach88/murmur/internal/ir"
)

// Entry is one comment in a thread.
type Entry struct {
	Status  ir.Status  `json:"status"`
	TempID  string     `json:"temp_id,omitempty"`
	Comment ir.Comment `json:"comment"`
}

// Key returns the temporary id of a pending entry and the durable id of a
// confirmed one.
func (e Entry) Key() string {
	if e.Status == ir.StatusPending {
		return e.TempID
	}
	return e.Comment.ID
}

// Removal remembers a removed entry and where it stood, for rollback.
type Removal struct {
	PostID string
	Index  int
	Entry  Entry
}

// Saved is the full state of one thread, captured before its post is
// optimistically deleted.
type Saved struct {
	PostID  string
	Open    bool
	Loaded  bool
	Entries []Entry
}

// Store holds thread state for every post in view.
type Store struct {
	open     map[string]bool
	loaded   map[string]bool
	fetching map[string]bool
	lists    map[string][]Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		open:     make(map[string]bool),
		loaded:   make(map[string]bool),
		fetching: make(map[string]bool),
		lists:    make(map[string][]Entry),
	}
}

// Toggle flips the open flag of postID. needsFetch is true when the thread
// was opened, has never loaded and no fetch is outstanding; the caller is
// expected to fetch and then call Load or FetchFailed.
func (s *Store) Toggle(postID string) (open, needsFetch bool) {
	if s.open[postID] {
		delete(s.open, postID)
		return false, false
	}
	s.open[postID] = true
	if s.loaded[postID] || s.fetching[postID] {
		return true, false
	}
	s.fetching[postID] = true
	return true, true
}

// IsOpen reports whether the thread of postID is open.
func (s *Store) IsOpen(postID string) bool {
	return s.open[postID]
}

// Loaded reports whether comments of postID were fetched.
func (s *Store) Loaded(postID string) bool {
	return s.loaded[postID]
}

// Open returns the ids of open threads in ascending order.
func (s *Store) Open() []string {
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load stores fetched comments for postID, oldest first. Entries already in
// the list and absent from comments (pending replies, or replies confirmed
// while the fetch was in flight) are kept after the fetched ones.
func (s *Store) Load(postID string, comments []ir.Comment) {
	fetched := make(map[string]bool, len(comments))
	list := make([]Entry, 0, len(comments)+len(s.lists[postID]))
	for _, c := range comments {
		if fetched[c.ID] {
			continue
		}
		fetched[c.ID] = true
		list = append(list, Entry{Status: ir.StatusConfirmed, Comment: c})
	}
	for _, e := range s.lists[postID] {
		if e.Status == ir.StatusConfirmed && fetched[e.Comment.ID] {
			continue
		}
		list = append(list, e)
	}
	s.lists[postID] = list
	s.loaded[postID] = true
	delete(s.fetching, postID)
}

// FetchFailed clears the outstanding fetch of postID. The thread stays
// unloaded, so the next open fetches again.
func (s *Store) FetchFailed(postID string) {
	delete(s.fetching, postID)
}

// AddPending appends an optimistic reply keyed by tempID.
func (s *Store) AddPending(postID, tempID string, c ir.Comment) {
	c.ID = tempID
	c.PostID = postID
	s.lists[postID] = append(s.lists[postID], Entry{Status: ir.StatusPending, TempID: tempID, Comment: c})
}

// Confirm swaps the pending entry tempID for the acknowledged comment.
// If c is already present (its change notification arrived first) the
// pending entry is dropped instead, and duplicate is true.
func (s *Store) Confirm(postID, tempID string, c ir.Comment) (duplicate bool) {
	list := s.lists[postID]
	i := s.index(list, ir.StatusPending, tempID)
	if i < 0 {
		return false
	}
	if s.index(list, ir.StatusConfirmed, c.ID) >= 0 {
		s.lists[postID] = append(list[:i:i], list[i+1:]...)
		return true
	}
	list[i] = Entry{Status: ir.StatusConfirmed, Comment: c}
	return false
}

// Rollback drops the pending entry tempID.
func (s *Store) Rollback(postID, tempID string) bool {
	list := s.lists[postID]
	i := s.index(list, ir.StatusPending, tempID)
	if i < 0 {
		return false
	}
	s.lists[postID] = append(list[:i:i], list[i+1:]...)
	return true
}

// Remove drops the confirmed comment commentID and returns what is needed
// to restore it.
func (s *Store) Remove(postID, commentID string) (Removal, bool) {
	list := s.lists[postID]
	i := s.index(list, ir.StatusConfirmed, commentID)
	if i < 0 {
		return Removal{}, false
	}
	r := Removal{PostID: postID, Index: i, Entry: list[i]}
	s.lists[postID] = append(list[:i:i], list[i+1:]...)
	return r, true
}

// Restore puts a removed entry back at its former position. It is a no-op
// if the comment is present again.
func (s *Store) Restore(r Removal) {
	list := s.lists[r.PostID]
	if s.index(list, ir.StatusConfirmed, r.Entry.Comment.ID) >= 0 {
		return
	}
	i := min(max(r.Index, 0), len(list))
	out := make([]Entry, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, r.Entry)
	out = append(out, list[i:]...)
	s.lists[r.PostID] = out
}

// ApplyInsert appends a comment announced by a change notification. Only
// loaded threads track notifications; a comment already present by id is
// ignored. It reports whether the list changed.
func (s *Store) ApplyInsert(c ir.Comment) bool {
	if !s.loaded[c.PostID] {
		return false
	}
	list := s.lists[c.PostID]
	if s.index(list, ir.StatusConfirmed, c.ID) >= 0 {
		return false
	}
	s.lists[c.PostID] = append(list, Entry{Status: ir.StatusConfirmed, Comment: c})
	return true
}

// ApplyDelete drops a comment announced deleted by a change notification.
// It reports whether the list changed.
func (s *Store) ApplyDelete(c ir.Comment) bool {
	_, ok := s.Remove(c.PostID, c.ID)
	return ok
}

// Has reports whether postID's list holds a confirmed comment commentID.
func (s *Store) Has(postID, commentID string) bool {
	return s.index(s.lists[postID], ir.StatusConfirmed, commentID) >= 0
}

// Entries returns a copy of the list of postID.
func (s *Store) Entries(postID string) []Entry {
	list := s.lists[postID]
	if len(list) == 0 {
		return nil
	}
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Posts returns the ids of posts with a non-empty list, in ascending order.
func (s *Store) Posts() []string {
	ids := make([]string, 0, len(s.lists))
	for id, list := range s.lists {
		if len(list) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Save captures the state of postID's thread.
func (s *Store) Save(postID string) Saved {
	return Saved{
		PostID:  postID,
		Open:    s.open[postID],
		Loaded:  s.loaded[postID],
		Entries: s.Entries(postID),
	}
}

// RestoreSaved reinstates a thread captured by Save.
func (s *Store) RestoreSaved(sv Saved) {
	if sv.Open {
		s.open[sv.PostID] = true
	}
	if sv.Loaded {
		s.loaded[sv.PostID] = true
	}
	if len(sv.Entries) > 0 {
		s.lists[sv.PostID] = sv.Entries
	}
}

// Evict forgets everything about postID's thread.
func (s *Store) Evict(postID string) {
	delete(s.open, postID)
	delete(s.loaded, postID)
	delete(s.fetching, postID)
	delete(s.lists, postID)
}

// Reset forgets every thread.
func (s *Store) Reset() {
	s.open = make(map[string]bool)
	s.loaded = make(map[string]bool)
	s.fetching = make(map[string]bool)
	s.lists = make(map[string][]Entry)
}

func (s *Store) index(list []Entry, status ir.Status, key string) int {
	for i, e := range list {
		if e.Status == status && e.Key() == key {
			return i
		}
	}
	return -1
}
