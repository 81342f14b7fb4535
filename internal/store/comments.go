package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

// ListComments implements gateway.Gateway.
// Results are ordered oldest first; ties break on id ascending.
func (s *Store) ListComments(ctx context.Context, postID string) ([]ir.Comment, error) {
	if err := s.begin(ctx, gateway.OpListComments); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, parent_id, body, created_at
		FROM comments
		WHERE post_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, postID)
	if err != nil {
		return nil, &gateway.CallError{Op: gateway.OpListComments, Err: fmt.Errorf("query comments: %w", err)}
	}
	defer rows.Close()

	comments := []ir.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, &gateway.CallError{Op: gateway.OpListComments, Err: err}
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &gateway.CallError{Op: gateway.OpListComments, Err: fmt.Errorf("iterate comments: %w", err)}
	}
	return comments, nil
}

// InsertComment implements gateway.Gateway. The parent post must exist.
func (s *Store) InsertComment(ctx context.Context, nc ir.NewComment) (ir.Comment, error) {
	if err := s.begin(ctx, gateway.OpInsertComment); err != nil {
		return ir.Comment{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Comment{}, &gateway.CallError{Op: gateway.OpInsertComment, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, nc.PostID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Comment{}, &gateway.CallError{Op: gateway.OpInsertComment, Err: fmt.Errorf("%w: post %s", gateway.ErrNotFound, nc.PostID)}
	}
	if err != nil {
		return ir.Comment{}, &gateway.CallError{Op: gateway.OpInsertComment, Err: fmt.Errorf("check post: %w", err)}
	}

	now := s.now()
	c := ir.Comment{
		ID:        s.newID(now),
		PostID:    nc.PostID,
		ParentID:  nc.ParentID,
		Body:      nc.Body,
		CreatedAt: now.UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, body, created_at) VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.PostID, nullString(c.ParentID), c.Body, toUnix(c.CreatedAt))
	if err != nil {
		return ir.Comment{}, &gateway.CallError{Op: gateway.OpInsertComment, Err: fmt.Errorf("insert comment: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return ir.Comment{}, &gateway.CallError{Op: gateway.OpInsertComment, Err: fmt.Errorf("commit: %w", err)}
	}

	s.publish(gateway.Change{Table: gateway.TableComments, Kind: ir.ChangeInsert, New: c})
	return c, nil
}

// DeleteComment implements gateway.Gateway. Deleting a missing comment
// succeeds and publishes nothing.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	if err := s.begin(ctx, gateway.OpDeleteComment); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteComment, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	c, err := scanComment(tx.QueryRowContext(ctx, `
		SELECT id, post_id, parent_id, body, created_at FROM comments WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteComment, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteComment, Err: fmt.Errorf("delete comment: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &gateway.CallError{Op: gateway.OpDeleteComment, Err: fmt.Errorf("commit: %w", err)}
	}

	s.publish(gateway.Change{Table: gateway.TableComments, Kind: ir.ChangeDelete, Old: c})
	return nil
}

func scanComment(r rowScanner) (ir.Comment, error) {
	var c ir.Comment
	var parent sql.NullString
	var created int64
	if err := r.Scan(&c.ID, &c.PostID, &parent, &c.Body, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Comment{}, err
		}
		return ir.Comment{}, fmt.Errorf("scan comment: %w", err)
	}
	if parent.Valid {
		p := parent.String
		c.ParentID = &p
	}
	c.CreatedAt = fromUnix(created)
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
