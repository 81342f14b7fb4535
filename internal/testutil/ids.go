package testutil

import "fmt"

// SequenceIDs returns n ids of the form prefix1 .. prefixN.
//
// Used to feed engine.NewFixedGenerator:
//
//	engine.NewFixedGenerator(testutil.SequenceIDs("t", 8)...)
func SequenceIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return ids
}

// StaticIdentity is a device identity with a fixed id.
type StaticIdentity string

// DeviceID implements engine.Identity.
func (s StaticIdentity) DeviceID() string {
	return string(s)
}
