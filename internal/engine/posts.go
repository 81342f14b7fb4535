package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/ranking"
)

const (
	feedPosts = "posts"
	feedVotes = "votes"
)

// feed is the result of one posts.list call: the newest posts of a city
// and the votes on them.
type feed struct {
	posts    []ir.Post
	votes    []ir.Vote
	votesErr error
}

func (e *Engine) loadCity(in *Intent) error {
	slug := strings.TrimSpace(in.City)
	if slug == "" {
		return reject(in.Kind, ErrCodeInvalidIntent, "", fmt.Errorf("empty city slug"))
	}

	e.loadGen++
	gen := e.loadGen
	e.call(gateway.OpResolveCity, func(ctx context.Context) (any, error) {
		return e.gw.ResolveCity(ctx, slug)
	}, func(s Settled) {
		if gen != e.loadGen {
			e.logger.Debug("discarding stale city resolution", "city", slug)
			return
		}
		if s.Err != nil {
			e.logger.Warn("city resolution failed", "city", slug, "error", s.Err)
			e.clearCity()
			return
		}
		e.switchCity(s.Value.(ir.City))
		e.fetchFeed(gen)
	})
	return nil
}

func (e *Engine) reload(in *Intent) error {
	if e.city == nil {
		return reject(in.Kind, ErrCodeNoCity, "", nil)
	}
	e.loadGen++
	e.fetchFeed(e.loadGen)
	return nil
}

func (e *Engine) selectMode(in *Intent) error {
	if in.Mode != ir.ModeRecent && in.Mode != ir.ModeHot {
		return reject(in.Kind, ErrCodeInvalidIntent, "", fmt.Errorf("invalid ranking mode %q", in.Mode))
	}
	e.mode = in.Mode
	e.resort()

	if e.city != nil {
		e.loadGen++
		e.fetchFeed(e.loadGen)
	}
	return nil
}

// clearCity empties the view and closes every feed.
func (e *Engine) clearCity() {
	e.teardown()
	e.city = nil
	e.posts = nil
	e.tallies.Reset()
	e.threads.Reset()
	e.echoes.reset()
	e.deleting = make(map[string]*postDeletion)
	e.deletingComments = make(map[string]*commentDeletion)
	e.tombstones = make(map[string]struct{})
}

// switchCity makes city current. Reloading the current city keeps the
// view, its feeds and its pending entries.
func (e *Engine) switchCity(city ir.City) {
	if e.city != nil && e.city.ID == city.ID {
		return
	}
	e.clearCity()
	e.city = &city
	e.subscribe(feedPosts, gateway.Filter{Table: gateway.TablePosts, CityID: city.ID})
	e.subscribe(feedVotes, gateway.Filter{Table: gateway.TableVotes})
	e.logger.Info("city loaded", "city", city.Slug, "city_id", city.ID)
}

// fetchFeed loads the mode's window of newest posts and their votes.
// A result is discarded if another load was issued meanwhile.
func (e *Engine) fetchFeed(gen int64) {
	q := gateway.PostQuery{CityID: e.city.ID, Limit: e.windows.FetchLimit(e.mode)}

	e.call(gateway.OpListPosts, func(ctx context.Context) (any, error) {
		posts, err := e.gw.ListPosts(ctx, q)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		votes, vErr := e.gw.ListVotes(ctx, ids)
		return feed{posts: posts, votes: votes, votesErr: vErr}, nil
	}, func(s Settled) {
		if gen != e.loadGen {
			e.logger.Debug("discarding stale post fetch", "generation", gen)
			return
		}
		if s.Err != nil {
			e.logger.Warn("post fetch failed", "city_id", q.CityID, "error", s.Err)
			e.replaceConfirmed(nil, nil)
			return
		}
		f := s.Value.(feed)
		if f.votesErr != nil {
			e.logger.Warn("vote fetch failed", "city_id", q.CityID, "error", f.votesErr)
		}
		e.replaceConfirmed(f.posts, f.votes)
	})
}

// replaceConfirmed swaps the confirmed part of the view for a fresh fetch.
// Pending posts stay at the head. Posts with a delete in flight or already
// deleted stay out.
func (e *Engine) replaceConfirmed(posts []ir.Post, votes []ir.Vote) {
	byID := make(map[string]ir.Post, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		if _, ok := e.deleting[p.ID]; ok {
			continue
		}
		if _, dead := e.tombstones[p.ID]; dead {
			continue
		}
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	e.tallies.ApplySnapshot(ids, votes)
	e.reapplyOwnWrites(byID, votes)

	items := make([]ranking.Item, len(ids))
	for i, id := range ids {
		items[i] = ranking.Item{ID: id, CreatedAt: byID[id].CreatedAt, Total: e.tallies.Get(id).Total()}
	}
	selected := ranking.Select(items, e.mode, e.windows)

	keep := make(map[string]bool, len(selected))
	next := make([]*postEntry, 0, len(selected)+len(e.posts))
	for _, pe := range e.posts {
		if pe.Status == ir.StatusPending {
			next = append(next, pe)
		}
	}
	for _, it := range selected {
		keep[it.ID] = true
		next = append(next, &postEntry{Status: ir.StatusConfirmed, Post: byID[it.ID]})
	}

	for _, pe := range e.posts {
		if pe.Status == ir.StatusConfirmed && !keep[pe.Post.ID] {
			e.evictPost(pe.Post.ID)
		}
	}
	for _, id := range ids {
		if !keep[id] {
			e.tallies.Remove(id)
		}
	}

	e.posts = next
	e.rerank()
	e.logger.Debug("post list loaded", "posts", len(selected), "votes", len(votes), "mode", e.mode)
}

// reapplyOwnWrites puts back the optimistic deltas of own vote writes the
// snapshot does not reflect yet. The snapshot holds the row at the value
// left by some entry, or at none; only the entries after it are replayed.
func (e *Engine) reapplyOwnWrites(inView map[string]ir.Post, votes []ir.Vote) {
	device := e.identity.DeviceID()
	own := make(map[string]*ir.VoteValue)
	for _, v := range votes {
		if v.DeviceID == device {
			val := v.Value
			own[v.PostID] = &val
		}
	}

	e.echoes.each(func(k echoKey, q []*echoEntry) {
		if _, ok := inView[k.postID]; !ok || k.deviceID != device {
			return
		}
		from := 0
		for i, entry := range q {
			if sameValue(entry.to, own[k.postID]) {
				from = i + 1
			}
		}
		for _, entry := range q[from:] {
			e.applyTally(k.postID, entry.delta)
		}
		if from < len(q) {
			e.logger.Debug("own vote writes replayed over snapshot", "post_id", k.postID, "writes", len(q)-from)
		}
	})
}

func (e *Engine) createPost(in *Intent) error {
	if e.city == nil {
		return reject(in.Kind, ErrCodeNoCity, "", nil)
	}
	body, err := ir.NormalizeBody(in.Text, e.maxBody)
	if err != nil {
		return reject(in.Kind, ErrCodeInvalidBody, "", err)
	}

	tempID := e.tempIDs.Generate()
	pe := &postEntry{
		Status: ir.StatusPending,
		TempID: tempID,
		Post:   ir.Post{ID: tempID, CityID: e.city.ID, Body: body, CreatedAt: e.now()},
	}
	e.posts = append([]*postEntry{pe}, e.posts...)
	e.tallies.Ensure(tempID)
	e.compose = ""
	e.rerank()

	np := ir.NewPost{CityID: e.city.ID, Body: body}
	e.call(gateway.OpInsertPost, func(ctx context.Context) (any, error) {
		return e.gw.InsertPost(ctx, np)
	}, func(s Settled) {
		e.settleCreatePost(tempID, s)
	})
	return nil
}

func (e *Engine) settleCreatePost(tempID string, s Settled) {
	i := e.indexPending(tempID)

	if s.Err != nil {
		if i >= 0 {
			e.removeAt(i)
			e.tallies.Remove(tempID)
			e.metrics.IncrementRollback(gateway.OpInsertPost)
			e.logger.Warn("post create failed, rolled back", "temp_id", tempID, "error", s.Err)
		}
		return
	}

	p := s.Value.(ir.Post)
	_, tombstoned := e.tombstones[p.ID]
	if e.indexConfirmed(p.ID) >= 0 || tombstoned {
		if i >= 0 {
			e.removeAt(i)
			e.tallies.Remove(tempID)
		}
		e.metrics.IncrementDuplicate("post")
		e.logger.Debug("post already in view, placeholder discarded", "temp_id", tempID, "id", p.ID)
		return
	}
	if i < 0 {
		// The placeholder left with its city.
		return
	}

	pe := e.posts[i]
	pe.Status = ir.StatusConfirmed
	pe.TempID = ""
	pe.Post = p
	e.tallies.Rename(tempID, p.ID)
	e.rerank()
	e.logger.Debug("post confirmed", "temp_id", tempID, "id", p.ID)
}

func (e *Engine) deletePost(in *Intent) error {
	i := e.indexKey(in.PostID)
	if i < 0 {
		return reject(in.Kind, ErrCodeUnknownEntity, in.PostID, nil)
	}
	pe := e.posts[i]
	if pe.Status == ir.StatusPending {
		return reject(in.Kind, ErrCodePending, in.PostID, nil)
	}

	id := pe.Post.ID
	d := &postDeletion{
		index:  i,
		entry:  *pe,
		tally:  e.tallies.Get(id),
		thread: e.threads.Save(id),
	}
	e.deleting[id] = d
	e.removeAt(i)
	e.evictPost(id)

	e.call(gateway.OpDeletePost, func(ctx context.Context) (any, error) {
		return nil, e.gw.DeletePost(ctx, id)
	}, func(s Settled) {
		delete(e.deleting, id)
		if s.Err == nil {
			e.tombstones[id] = struct{}{}
			return
		}
		if d.voided {
			e.logger.Debug("post delete failed after remote delete", "id", id, "error", s.Err)
			return
		}
		if e.city == nil || e.city.ID != d.entry.Post.CityID || e.indexConfirmed(id) >= 0 {
			return
		}
		e.restorePost(d)
		e.metrics.IncrementRollback(gateway.OpDeletePost)
		e.logger.Warn("post delete failed, restored", "id", id, "error", s.Err)
	})
	return nil
}

func (e *Engine) restorePost(d *postDeletion) {
	id := d.entry.Post.ID
	entry := d.entry
	e.insertAt(d.index, &entry)
	e.tallies.Set(id, d.tally)
	e.threads.RestoreSaved(d.thread)
	if d.thread.Open {
		e.subscribeComments(id)
	}
	e.rerank()
}

func (e *Engine) onPostChange(c *gateway.Change) error {
	switch c.Kind {
	case ir.ChangeInsert:
		p, ok := c.New.(ir.Post)
		if !ok {
			return fmt.Errorf("post insert carries %T", c.New)
		}
		if e.city == nil || p.CityID != e.city.ID {
			e.metrics.IncrementDiscarded(string(c.Table))
			return nil
		}
		if _, dead := e.tombstones[p.ID]; dead {
			e.metrics.IncrementDiscarded(string(c.Table))
			return nil
		}
		if _, ok := e.deleting[p.ID]; ok || e.indexConfirmed(p.ID) >= 0 {
			e.metrics.IncrementDuplicate("post")
			e.logger.Debug("duplicate post insert ignored", "id", p.ID)
			return nil
		}
		e.tallies.Ensure(p.ID)
		pe := &postEntry{Status: ir.StatusConfirmed, Post: p}
		if e.mode == ir.ModeHot {
			e.posts = append(e.posts, pe)
			e.rerank()
		} else {
			e.posts = append([]*postEntry{pe}, e.posts...)
		}
		return nil

	case ir.ChangeUpdate:
		p, ok := c.New.(ir.Post)
		if !ok {
			return fmt.Errorf("post update carries %T", c.New)
		}
		if i := e.indexConfirmed(p.ID); i >= 0 {
			e.posts[i].Post = p
			return nil
		}
		e.metrics.IncrementDiscarded(string(c.Table))
		return nil

	case ir.ChangeDelete:
		p, ok := c.Old.(ir.Post)
		if !ok {
			return fmt.Errorf("post delete carries %T", c.Old)
		}
		e.tombstones[p.ID] = struct{}{}
		if d, ok := e.deleting[p.ID]; ok {
			d.voided = true
			return nil
		}
		i := e.indexConfirmed(p.ID)
		if i < 0 {
			e.metrics.IncrementDiscarded(string(c.Table))
			return nil
		}
		e.removeAt(i)
		e.evictPost(p.ID)
		e.logger.Debug("post removed remotely", "id", p.ID)
		return nil

	default:
		return fmt.Errorf("unknown change kind %d", c.Kind)
	}
}

// evictPost drops everything held for a post that left the view.
func (e *Engine) evictPost(id string) {
	e.tallies.Remove(id)
	e.threads.Evict(id)
	e.unsubscribe(commentFeed(id))
	e.echoes.dropPost(id)
}

func (e *Engine) indexKey(key string) int {
	for i, pe := range e.posts {
		if pe.Key() == key {
			return i
		}
	}
	return -1
}

func (e *Engine) indexPending(tempID string) int {
	for i, pe := range e.posts {
		if pe.Status == ir.StatusPending && pe.TempID == tempID {
			return i
		}
	}
	return -1
}

func (e *Engine) indexConfirmed(id string) int {
	for i, pe := range e.posts {
		if pe.Status == ir.StatusConfirmed && pe.Post.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) removeAt(i int) {
	e.posts = append(e.posts[:i:i], e.posts[i+1:]...)
}

func (e *Engine) insertAt(i int, pe *postEntry) {
	i = min(max(i, 0), len(e.posts))
	next := make([]*postEntry, 0, len(e.posts)+1)
	next = append(next, e.posts[:i]...)
	next = append(next, pe)
	next = append(next, e.posts[i:]...)
	e.posts = next
}

// rerank re-derives the order in hot mode. Recent mode keeps insertion
// order, since new posts always sort first.
func (e *Engine) rerank() {
	if e.mode == ir.ModeHot {
		e.resort()
	}
}

// resort orders the view for the current mode.
func (e *Engine) resort() {
	items := make([]ranking.Item, len(e.posts))
	byKey := make(map[string]*postEntry, len(e.posts))
	for i, pe := range e.posts {
		k := pe.Key()
		byKey[k] = pe
		items[i] = ranking.Item{ID: k, CreatedAt: pe.Post.CreatedAt, Total: e.tallies.Get(k).Total()}
	}
	ranking.Sort(items, e.mode)
	for i, it := range items {
		e.posts[i] = byKey[it.ID]
	}
}
