package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// ParkedCalls lists the operations of calls awaiting settlement.
// engine.ManualDispatcher implements it.
type ParkedCalls interface {
	Pending() []string
}

// evaluate checks one assertion against a view.
func evaluate(v *engine.View, calls ParkedCalls, a Assertion) error {
	switch a.Type {
	case AssertPosts:
		return compareIDs(a.Type, a.IDs, v.PostIDs())

	case AssertAbsent:
		if p, ok := v.Post(a.Post); ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("no post %s", a.Post),
				Actual:   fmt.Sprintf("post %s (%s)", p.ID, p.Status),
			}
		}
		return nil

	case AssertTally:
		p, ok := v.Post(a.Post)
		if !ok {
			return missingPost(a.Type, a.Post)
		}
		want := ir.Tally{Ups: a.Ups, Downs: a.Downs}
		if p.Tally != want {
			return &AssertionError{
				Type:     a.Type,
				Expected: formatTally(a.Post, want),
				Actual:   formatTally(a.Post, p.Tally),
			}
		}
		return nil

	case AssertStatus:
		return assertStatus(v, a)

	case AssertComments:
		return compareIDs(a.Type, a.IDs, v.CommentIDs(a.Post))

	case AssertOpenThreads:
		want := slices.Clone(a.IDs)
		got := slices.Clone(v.OpenThreads)
		sort.Strings(want)
		sort.Strings(got)
		return compareIDs(a.Type, want, got)

	case AssertPendingCalls:
		return compareIDs(a.Type, a.Ops, calls.Pending())

	case AssertCompose:
		if v.Compose != a.Text {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Text), Actual: fmt.Sprintf("%q", v.Compose)}
		}
		return nil

	case AssertCity:
		got := ""
		if v.City != nil {
			got = v.City.Slug
		}
		if got != a.City {
			return &AssertionError{Type: a.Type, Expected: orNone(a.City), Actual: orNone(got)}
		}
		return nil

	case AssertMode:
		want, err := ir.ParseMode(a.Mode)
		if err != nil {
			return err
		}
		if v.Mode != want {
			return &AssertionError{Type: a.Type, Expected: string(want), Actual: string(v.Mode)}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertStatus checks a post's status, or a comment's when Comment is set.
func assertStatus(v *engine.View, a Assertion) error {
	var want ir.Status
	if err := want.UnmarshalText([]byte(a.Status)); err != nil {
		return err
	}

	if a.Comment == "" {
		p, ok := v.Post(a.Post)
		if !ok {
			return missingPost(a.Type, a.Post)
		}
		if p.Status != want {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("post %s %s", a.Post, want),
				Actual:   fmt.Sprintf("post %s %s", a.Post, p.Status),
			}
		}
		return nil
	}

	for _, c := range v.Comments[a.Post] {
		if c.ID != a.Comment {
			continue
		}
		if c.Status != want {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("comment %s %s", a.Comment, want),
				Actual:   fmt.Sprintf("comment %s %s", a.Comment, c.Status),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("comment %s %s", a.Comment, want),
		Actual:   fmt.Sprintf("comments of %s: %s", a.Post, formatIDs(v.CommentIDs(a.Post))),
	}
}

func compareIDs(typ string, want, got []string) error {
	if slices.Equal(want, got) || (len(want) == 0 && len(got) == 0) {
		return nil
	}
	return &AssertionError{Type: typ, Expected: formatIDs(want), Actual: formatIDs(got)}
}

func missingPost(typ, id string) error {
	return &AssertionError{Type: typ, Expected: fmt.Sprintf("post %s in view", id), Actual: "not in view"}
}

func formatIDs(ids []string) string {
	return "[" + strings.Join(ids, " ") + "]"
}

func formatTally(id string, t ir.Tally) string {
	return fmt.Sprintf("%s +%d/-%d", id, t.Ups, t.Downs)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
