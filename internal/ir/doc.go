// Package ir provides the shared data model for murmur.
//
// This package contains row and value types only. All other internal
// packages import ir; ir imports nothing internal, so it stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Entity lifecycle is an explicit Status, never inferred from id text
//   - Vote values are exactly +1 or -1
//   - A Tally is derived data; individual vote rows are not kept client-side
//   - All JSON tags use snake_case to match the backend column names
package ir
