package relay

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

// envelope is the wire form of one relayed change.
type envelope struct {
	Origin string          `json:"origin"`
	Table  gateway.Table   `json:"table"`
	Kind   string          `json:"kind"`
	Old    json.RawMessage `json:"old,omitempty"`
	New    json.RawMessage `json:"new,omitempty"`
}

// Encode serializes c as published by the process origin.
func Encode(origin string, c gateway.Change) ([]byte, error) {
	env := envelope{Origin: origin, Table: c.Table, Kind: c.Kind.String()}
	var err error
	if c.Old != nil {
		if env.Old, err = json.Marshal(c.Old); err != nil {
			return nil, fmt.Errorf("encode old row: %w", err)
		}
	}
	if c.New != nil {
		if env.New, err = json.Marshal(c.New); err != nil {
			return nil, fmt.Errorf("encode new row: %w", err)
		}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope. The returned change carries the publisher's
// origin.
func Decode(data []byte) (gateway.Change, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return gateway.Change{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Origin == "" {
		return gateway.Change{}, fmt.Errorf("decode envelope: missing origin")
	}
	kind, err := ir.ParseChangeKind(env.Kind)
	if err != nil {
		return gateway.Change{}, fmt.Errorf("decode envelope: %w", err)
	}

	c := gateway.Change{Table: env.Table, Kind: kind, Origin: env.Origin}
	if c.Old, err = decodeRow(env.Table, env.Old); err != nil {
		return gateway.Change{}, fmt.Errorf("decode old row: %w", err)
	}
	if c.New, err = decodeRow(env.Table, env.New); err != nil {
		return gateway.Change{}, fmt.Errorf("decode new row: %w", err)
	}
	if c.Row() == nil {
		return gateway.Change{}, fmt.Errorf("decode envelope: %s change without row", kind)
	}
	return c, nil
}

func decodeRow(table gateway.Table, raw json.RawMessage) (ir.Row, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch table {
	case gateway.TablePosts:
		var p ir.Post
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case gateway.TableComments:
		var c ir.Comment
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case gateway.TableVotes:
		var v ir.Vote
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
}
