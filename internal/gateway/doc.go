// Package gateway defines the contract between the reconciliation core and
// the remote data store.
//
// The store exposes row CRUD for three tables (posts, comments, post_votes)
// plus a subscribe-to-changes primitive. Change events are delivered
// asynchronously with no ordering guarantee relative to the subscriber's own
// mutating calls; consumers must de-duplicate by id.
//
// Two implementations live in this module:
//   - Memory (this package): in-process, with fault injection and a change
//     hold/flush switch for reproducing races in tests
//   - store.Store: SQLite-backed, publishing committed writes to a Hub
package gateway
