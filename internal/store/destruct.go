package store

import (
	"context"
	"database/sql"
	"time"
)

// ArmDestruction persists a pending self-deletion so a restart can
// re-arm the timer. Arming is best effort overall: a crash between the
// sent transition and this write degrades to "no self-deletion".
func (s *Store) ArmDestruction(ctx context.Context, postID int64, fireAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO destructions (post_id, fire_at) VALUES (?,?)
		 ON CONFLICT(post_id) DO UPDATE SET fire_at = excluded.fire_at`,
		postID, fireAt.UnixMilli())
	return err
}

// ListDestructions returns all armed self-deletions, soonest first.
func (s *Store) ListDestructions(ctx context.Context) ([]Destruction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, fire_at FROM destructions ORDER BY fire_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Destruction
	for rows.Next() {
		var d Destruction
		var fireAt int64
		if err := rows.Scan(&d.PostID, &fireAt); err != nil {
			return nil, err
		}
		d.FireAt = time.UnixMilli(fireAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CompleteDestruction removes the armed record and moves the post from
// sent to self_deleted, atomically.
func (s *Store) CompleteDestruction(ctx context.Context, postID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM destructions WHERE post_id = ?`, postID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE posts SET status = ? WHERE id = ? AND status = ?`,
			string(StatusSelfDeleted), postID, string(StatusSent))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBadTransition
		}
		return nil
	})
}

// DropDestruction discards an armed self-deletion without touching the
// post (used when the post itself is gone).
func (s *Store) DropDestruction(ctx context.Context, postID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM destructions WHERE post_id = ?`, postID)
	return err
}
