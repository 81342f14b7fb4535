// Package harness runs reconciliation scenarios against the engine.
//
// A scenario seeds an in-memory gateway, then drives an engine step by
// step: user intents, settlement or failure of parked gateway calls,
// writes by other devices and raw change notifications. Assertions check
// the published view in between and at the end.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: vote_toggle
//	description: "Voting twice in the same direction removes the vote"
//	seed:
//	  cities:
//	    - { slug: sf, name: San Francisco }
//	  posts:
//	    - { id: p1, body: hello, at: 100 }
//	steps:
//	  - intent: load_city
//	    city: sf
//	  - settle: all
//	  - intent: vote_post
//	    post: p1
//	    value: up
//	  - settle: all
//	  - expect:
//	      - { type: tally, post: p1, ups: 1, downs: 0 }
//	assertions:
//	  - { type: posts, ids: [p1] }
//
// Each step carries exactly one action:
//
//   - intent: submits an intent; reject names the expected rejection code
//   - settle: runs the oldest parked call of an operation ("any" for the
//     oldest call of any operation, "all" until nothing is parked)
//   - fail: fails the oldest parked call of an operation without running it
//   - fail_next: makes the next gateway call of an operation fail
//   - hold_changes, flush_changes: buffer change notifications so a call
//     result can arrive before its notification
//   - remote: a write by another device
//   - notify: delivers a hand-built change notification
//   - expect: assertions evaluated at that point
//
// # Determinism
//
// Gateway timestamps come from a deterministic clock starting at
// testutil.At(1000), the engine clock starts at testutil.At(2000) and
// temporary ids are t1, t2, ... in creation order. Two runs of a scenario
// produce the same trace and view, which RunWithGolden compares against a
// snapshot in testdata/golden.
package harness
