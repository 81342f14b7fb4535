package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

// ListVotes implements gateway.Gateway. Votes are ordered by post, then
// device.
func (s *Store) ListVotes(ctx context.Context, postIDs []string) ([]ir.Vote, error) {
	if err := s.begin(ctx, gateway.OpListVotes); err != nil {
		return nil, err
	}
	votes := []ir.Vote{}
	if len(postIDs) == 0 {
		return votes, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, device_id, value
		FROM post_votes
		WHERE post_id IN (`+placeholders+`)
		ORDER BY post_id COLLATE BINARY ASC, device_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, &gateway.CallError{Op: gateway.OpListVotes, Err: fmt.Errorf("query votes: %w", err)}
	}
	defer rows.Close()

	for rows.Next() {
		var v ir.Vote
		if err := rows.Scan(&v.PostID, &v.DeviceID, &v.Value); err != nil {
			return nil, &gateway.CallError{Op: gateway.OpListVotes, Err: fmt.Errorf("scan vote: %w", err)}
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &gateway.CallError{Op: gateway.OpListVotes, Err: fmt.Errorf("iterate votes: %w", err)}
	}
	return votes, nil
}

// GetVote implements gateway.Gateway.
func (s *Store) GetVote(ctx context.Context, postID, deviceID string) (ir.Vote, bool, error) {
	if err := s.begin(ctx, gateway.OpGetVote); err != nil {
		return ir.Vote{}, false, err
	}
	value, ok, err := readVote(ctx, s.db, postID, deviceID)
	if err != nil {
		return ir.Vote{}, false, &gateway.CallError{Op: gateway.OpGetVote, Err: err}
	}
	if !ok {
		return ir.Vote{}, false, nil
	}
	return ir.Vote{PostID: postID, DeviceID: deviceID, Value: value}, true, nil
}

// InsertVote implements gateway.Gateway. An existing row for the pair is
// overwritten and its previous value returned; the change is then
// published as an update.
func (s *Store) InsertVote(ctx context.Context, v ir.Vote) (*ir.VoteValue, error) {
	if err := s.begin(ctx, gateway.OpInsertVote); err != nil {
		return nil, err
	}
	if !v.Value.Valid() {
		return nil, &gateway.CallError{Op: gateway.OpInsertVote, Err: fmt.Errorf("invalid vote value %d", v.Value)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &gateway.CallError{Op: gateway.OpInsertVote, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	prev, existed, err := readVote(ctx, tx, v.PostID, v.DeviceID)
	if err != nil {
		return nil, &gateway.CallError{Op: gateway.OpInsertVote, Err: err}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO post_votes (post_id, device_id, value) VALUES (?, ?, ?)
		ON CONFLICT(post_id, device_id) DO UPDATE SET value = excluded.value
	`, v.PostID, v.DeviceID, int(v.Value))
	if err != nil {
		return nil, &gateway.CallError{Op: gateway.OpInsertVote, Err: fmt.Errorf("insert vote: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return nil, &gateway.CallError{Op: gateway.OpInsertVote, Err: fmt.Errorf("commit: %w", err)}
	}

	if existed {
		old := ir.Vote{PostID: v.PostID, DeviceID: v.DeviceID, Value: prev}
		s.publish(gateway.Change{Table: gateway.TableVotes, Kind: ir.ChangeUpdate, Old: old, New: v})
		return &prev, nil
	}
	s.publish(gateway.Change{Table: gateway.TableVotes, Kind: ir.ChangeInsert, New: v})
	return nil, nil
}

// UpdateVote implements gateway.Gateway. Updating a missing row fails with
// gateway.ErrNotFound.
func (s *Store) UpdateVote(ctx context.Context, v ir.Vote) error {
	if err := s.begin(ctx, gateway.OpUpdateVote); err != nil {
		return err
	}
	if !v.Value.Valid() {
		return &gateway.CallError{Op: gateway.OpUpdateVote, Err: fmt.Errorf("invalid vote value %d", v.Value)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpUpdateVote, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	prev, ok, err := readVote(ctx, tx, v.PostID, v.DeviceID)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpUpdateVote, Err: err}
	}
	if !ok {
		return &gateway.CallError{Op: gateway.OpUpdateVote, Err: gateway.ErrNotFound}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE post_votes SET value = ? WHERE post_id = ? AND device_id = ?
	`, int(v.Value), v.PostID, v.DeviceID)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpUpdateVote, Err: fmt.Errorf("update vote: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &gateway.CallError{Op: gateway.OpUpdateVote, Err: fmt.Errorf("commit: %w", err)}
	}

	old := ir.Vote{PostID: v.PostID, DeviceID: v.DeviceID, Value: prev}
	s.publish(gateway.Change{Table: gateway.TableVotes, Kind: ir.ChangeUpdate, Old: old, New: v})
	return nil
}

// DeleteVote implements gateway.Gateway. Deleting a missing row succeeds
// and publishes nothing.
func (s *Store) DeleteVote(ctx context.Context, postID, deviceID string) error {
	if err := s.begin(ctx, gateway.OpDeleteVote); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteVote, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	prev, ok, err := readVote(ctx, tx, postID, deviceID)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteVote, Err: err}
	}
	if !ok {
		return nil
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM post_votes WHERE post_id = ? AND device_id = ?
	`, postID, deviceID)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteVote, Err: fmt.Errorf("delete vote: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteVote, Err: fmt.Errorf("commit: %w", err)}
	}

	old := ir.Vote{PostID: postID, DeviceID: deviceID, Value: prev}
	s.publish(gateway.Change{Table: gateway.TableVotes, Kind: ir.ChangeDelete, Old: old})
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readVote(ctx context.Context, q querier, postID, deviceID string) (ir.VoteValue, bool, error) {
	var value ir.VoteValue
	err := q.QueryRowContext(ctx, `
		SELECT value FROM post_votes WHERE post_id = ? AND device_id = ?
	`, postID, deviceID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read vote: %w", err)
	}
	return value, true, nil
}
