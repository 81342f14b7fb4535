// Package store is the SQLite-backed Backend Gateway.
//
// It persists cities, posts, comments, votes and device settings in a
// single database file and implements gateway.Gateway. Every successful
// write publishes the matching gateway.Change to the store's Hub after the
// transaction commits; failed writes publish nothing.
//
// # Keys and Time
//
//   - Post and comment ids are ULIDs issued at insert, so ids sort by
//     creation time.
//   - created_at is stored as unix nanoseconds (UTC).
//   - post_votes has PRIMARY KEY(post_id, device_id); InsertVote upserts.
//
// # Ordering
//
//   - ListPosts: ORDER BY created_at DESC, id ASC
//   - ListComments: ORDER BY created_at ASC, id ASC
//   - ListVotes: ORDER BY post_id ASC, device_id ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Post deletes cascade to comments and votes
package store
