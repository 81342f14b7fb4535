// Package ranking orders posts for display.
//
// Recent mode orders by creation time, newest first. Hot mode orders by
// total vote activity (ups plus downs, so a downvote is still activity),
// newest first among equal totals. Post id ascending breaks any remaining
// tie so the order is total.
//
// Truncation happens only when a list is loaded from the backend; the
// incremental re-rank after a change keeps every post already in view.
package ranking

import (
	"sort"
	"time"

	"github.com/roach88/murmur/internal/ir"
)

// Item is the ranking input for one post.
type Item struct {
	ID        string
	CreatedAt time.Time
	Total     int
}

// Windows bounds the lists fetched and displayed per mode.
type Windows struct {
	// Recent is the number of newest posts fetched and shown in recent mode.
	Recent int
	// HotCandidates is the number of newest posts considered in hot mode.
	HotCandidates int
	// HotDisplay is the number of hot posts shown.
	HotDisplay int
}

// DefaultWindows returns the standard 50 / 100 / 50 windows.
func DefaultWindows() Windows {
	return Windows{Recent: 50, HotCandidates: 100, HotDisplay: 50}
}

// FetchLimit returns how many of the newest posts to load for mode.
func (w Windows) FetchLimit(mode ir.Mode) int {
	if mode == ir.ModeHot {
		return w.HotCandidates
	}
	return w.Recent
}

// Sort orders items in place for mode.
func Sort(items []Item, mode ir.Mode) {
	less := newestFirst
	if mode == ir.ModeHot {
		less = hottestFirst
	}
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})
}

// Order returns the ids of items ranked for mode. items is not modified.
func Order(items []Item, mode ir.Mode) []string {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	Sort(sorted, mode)

	ids := make([]string, len(sorted))
	for i, it := range sorted {
		ids[i] = it.ID
	}
	return ids
}

// Select ranks a freshly loaded candidate list and truncates it to the
// display window of mode. In hot mode only the HotCandidates newest items
// are considered.
func Select(items []Item, mode ir.Mode, w Windows) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	Sort(out, ir.ModeRecent)

	if mode != ir.ModeHot {
		return truncate(out, w.Recent)
	}
	out = truncate(out, w.HotCandidates)
	Sort(out, ir.ModeHot)
	return truncate(out, w.HotDisplay)
}

func truncate(items []Item, n int) []Item {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func newestFirst(a, b Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func hottestFirst(a, b Item) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	return newestFirst(a, b)
}

// Rank returns the ids of posts ordered for mode, using tallies for hot
// mode. Posts without a tally count as zero.
func Rank(posts []ir.Post, tallies map[string]ir.Tally, mode ir.Mode) []string {
	return Order(Items(posts, tallies), mode)
}

// Items builds ranking inputs from posts and their tallies.
func Items(posts []ir.Post, tallies map[string]ir.Tally) []Item {
	items := make([]Item, len(posts))
	for i, p := range posts {
		items[i] = Item{ID: p.ID, CreatedAt: p.CreatedAt, Total: tallies[p.ID].Total()}
	}
	return items
}
