package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

// ListPosts implements gateway.Gateway.
// Results are ordered newest first; ties break on id ascending.
func (s *Store) ListPosts(ctx context.Context, q gateway.PostQuery) ([]ir.Post, error) {
	if err := s.begin(ctx, gateway.OpListPosts); err != nil {
		return nil, err
	}

	query := `
		SELECT id, city_id, body, created_at
		FROM posts
		WHERE city_id = ?
		ORDER BY created_at DESC, id COLLATE BINARY ASC
	`
	args := []any{q.CityID}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &gateway.CallError{Op: gateway.OpListPosts, Err: fmt.Errorf("query posts: %w", err)}
	}
	defer rows.Close()

	posts := []ir.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, &gateway.CallError{Op: gateway.OpListPosts, Err: err}
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &gateway.CallError{Op: gateway.OpListPosts, Err: fmt.Errorf("iterate posts: %w", err)}
	}
	return posts, nil
}

// InsertPost implements gateway.Gateway.
func (s *Store) InsertPost(ctx context.Context, np ir.NewPost) (ir.Post, error) {
	if err := s.begin(ctx, gateway.OpInsertPost); err != nil {
		return ir.Post{}, err
	}

	now := s.now()
	p := ir.Post{ID: s.newID(now), CityID: np.CityID, Body: np.Body, CreatedAt: now.UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, city_id, body, created_at) VALUES (?, ?, ?, ?)
	`, p.ID, p.CityID, p.Body, toUnix(p.CreatedAt))
	if err != nil {
		return ir.Post{}, &gateway.CallError{Op: gateway.OpInsertPost, Err: fmt.Errorf("insert post: %w", err)}
	}

	s.publish(gateway.Change{Table: gateway.TablePosts, Kind: ir.ChangeInsert, New: p})
	return p, nil
}

// DeletePost implements gateway.Gateway. Comments and votes of the post
// are removed by the foreign key cascade; only the post delete is
// published. Deleting a missing post succeeds and publishes nothing.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if err := s.begin(ctx, gateway.OpDeletePost); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeletePost, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	p, err := scanPost(tx.QueryRowContext(ctx, `
		SELECT id, city_id, body, created_at FROM posts WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &gateway.CallError{Op: gateway.OpDeletePost, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return &gateway.CallError{Op: gateway.OpDeletePost, Err: fmt.Errorf("delete post: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &gateway.CallError{Op: gateway.OpDeletePost, Err: fmt.Errorf("commit: %w", err)}
	}

	s.publish(gateway.Change{Table: gateway.TablePosts, Kind: ir.ChangeDelete, Old: p})
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (ir.Post, error) {
	var p ir.Post
	var created int64
	if err := r.Scan(&p.ID, &p.CityID, &p.Body, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Post{}, err
		}
		return ir.Post{}, fmt.Errorf("scan post: %w", err)
	}
	p.CreatedAt = fromUnix(created)
	return p, nil
}
