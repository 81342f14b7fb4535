package ir

import "fmt"

// Status is the lifecycle state of a post or comment in the local view.
//
//	Pending   -> optimistic, holds only a temporary id
//	Confirmed -> has a durable backend id
//	Removed   -> evicted from the view
type Status int

const (
	StatusPending Status = iota + 1
	StatusConfirmed
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusRemoved:
		return "removed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText renders the status by name in JSON snapshots.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = StatusPending
	case "confirmed":
		*s = StatusConfirmed
	case "removed":
		*s = StatusRemoved
	default:
		return fmt.Errorf("invalid status %q", b)
	}
	return nil
}
