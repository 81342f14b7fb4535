package engine

import (
	"context"
	"fmt"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

func commentFeed(postID string) string {
	return "comments/" + postID
}

func (e *Engine) subscribeComments(postID string) {
	e.subscribe(commentFeed(postID), gateway.Filter{Table: gateway.TableComments, PostID: postID})
}

// confirmedPost returns the durable id of the post addressed by key, or a
// rejection.
func (e *Engine) confirmedPost(in *Intent) (string, error) {
	i := e.indexKey(in.PostID)
	if i < 0 {
		return "", reject(in.Kind, ErrCodeUnknownEntity, in.PostID, nil)
	}
	if e.posts[i].Status == ir.StatusPending {
		return "", reject(in.Kind, ErrCodePending, in.PostID, nil)
	}
	return e.posts[i].Post.ID, nil
}

func (e *Engine) toggleThread(in *Intent) error {
	id, err := e.confirmedPost(in)
	if err != nil {
		return err
	}

	open, needsFetch := e.threads.Toggle(id)
	if !open {
		e.unsubscribe(commentFeed(id))
		return nil
	}
	e.subscribeComments(id)
	if !needsFetch {
		return nil
	}

	e.call(gateway.OpListComments, func(ctx context.Context) (any, error) {
		return e.gw.ListComments(ctx, id)
	}, func(s Settled) {
		if e.indexConfirmed(id) < 0 {
			e.threads.FetchFailed(id)
			return
		}
		if s.Err != nil {
			e.threads.FetchFailed(id)
			e.logger.Warn("comment fetch failed", "post_id", id, "error", s.Err)
			return
		}
		e.threads.Load(id, s.Value.([]ir.Comment))
	})
	return nil
}

func (e *Engine) addComment(in *Intent) error {
	id, err := e.confirmedPost(in)
	if err != nil {
		return err
	}
	body, err := ir.NormalizeBody(in.Text, e.maxBody)
	if err != nil {
		return reject(in.Kind, ErrCodeInvalidBody, id, err)
	}

	tempID := e.tempIDs.Generate()
	e.threads.AddPending(id, tempID, ir.Comment{Body: body, CreatedAt: e.now()})

	nc := ir.NewComment{PostID: id, Body: body}
	e.call(gateway.OpInsertComment, func(ctx context.Context) (any, error) {
		return e.gw.InsertComment(ctx, nc)
	}, func(s Settled) {
		if s.Err != nil {
			if e.threads.Rollback(id, tempID) {
				e.metrics.IncrementRollback(gateway.OpInsertComment)
				e.logger.Warn("comment create failed, rolled back", "post_id", id, "temp_id", tempID, "error", s.Err)
			}
			return
		}
		c := s.Value.(ir.Comment)
		if e.threads.Confirm(id, tempID, c) {
			e.metrics.IncrementDuplicate("comment")
			e.logger.Debug("comment already in thread, placeholder discarded", "temp_id", tempID, "id", c.ID)
		}
	})
	return nil
}

func (e *Engine) deleteComment(in *Intent) error {
	id, err := e.confirmedPost(in)
	if err != nil {
		return err
	}
	for _, en := range e.threads.Entries(id) {
		if en.Status == ir.StatusPending && en.TempID == in.CommentID {
			return reject(in.Kind, ErrCodePending, in.CommentID, nil)
		}
	}
	r, ok := e.threads.Remove(id, in.CommentID)
	if !ok {
		return reject(in.Kind, ErrCodeUnknownEntity, in.CommentID, nil)
	}

	commentID := in.CommentID
	d := &commentDeletion{removal: r}
	e.deletingComments[commentID] = d

	e.call(gateway.OpDeleteComment, func(ctx context.Context) (any, error) {
		return nil, e.gw.DeleteComment(ctx, commentID)
	}, func(s Settled) {
		delete(e.deletingComments, commentID)
		if s.Err == nil || d.voided || e.indexConfirmed(id) < 0 {
			return
		}
		e.threads.Restore(d.removal)
		e.metrics.IncrementRollback(gateway.OpDeleteComment)
		e.logger.Warn("comment delete failed, restored", "post_id", id, "id", commentID, "error", s.Err)
	})
	return nil
}

func (e *Engine) onCommentChange(c *gateway.Change) error {
	cm, ok := c.Row().(ir.Comment)
	if !ok {
		return fmt.Errorf("comment change carries %T", c.Row())
	}
	if e.indexConfirmed(cm.PostID) < 0 {
		e.metrics.IncrementDiscarded(string(c.Table))
		return nil
	}

	switch c.Kind {
	case ir.ChangeInsert:
		if e.threads.ApplyInsert(cm) {
			return nil
		}
		if e.threads.Has(cm.PostID, cm.ID) {
			e.metrics.IncrementDuplicate("comment")
			return nil
		}
		e.metrics.IncrementDiscarded(string(c.Table))
		return nil

	case ir.ChangeDelete:
		if d, ok := e.deletingComments[cm.ID]; ok {
			d.voided = true
			return nil
		}
		if !e.threads.ApplyDelete(cm) {
			e.metrics.IncrementDiscarded(string(c.Table))
		}
		return nil

	default:
		e.metrics.IncrementDiscarded(string(c.Table))
		return nil
	}
}
