package engine

import (
	"fmt"
	"io"
	"strings"
)

// WriteText renders v as plain text, one line per post and per comment of
// an open thread:
//
//	city sf "San Francisco"
//	mode hot
//	compose ""
//	post p2 confirmed +1/-0 "hello"
//	  comment c1 confirmed "reply"
//
// Timestamps and the view sequence are omitted, so equal states render
// identically.
func (v *View) WriteText(w io.Writer) error {
	var b strings.Builder
	if v.City != nil {
		fmt.Fprintf(&b, "city %s %q\n", v.City.Slug, v.City.Name)
	} else {
		b.WriteString("city -\n")
	}
	fmt.Fprintf(&b, "mode %s\n", v.Mode)
	fmt.Fprintf(&b, "compose %q\n", v.Compose)
	for _, p := range v.Posts {
		fmt.Fprintf(&b, "post %s %s +%d/-%d %q\n", p.ID, p.Status, p.Tally.Ups, p.Tally.Downs, p.Body)
		if !v.IsOpen(p.ID) {
			continue
		}
		for _, c := range v.Comments[p.ID] {
			fmt.Fprintf(&b, "  comment %s %s %q\n", c.ID, c.Status, c.Body)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
