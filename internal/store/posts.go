package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AddPost creates a new draft post and assigns the next per-channel index.
func (s *Store) AddPost(ctx context.Context, p Post) (int64, error) {
	if !p.Type.Valid() {
		return 0, fmt.Errorf("store: invalid content type %q", p.Type)
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(post_index), 0) + 1 FROM posts WHERE user_id = ? AND channel_id = ?`,
			p.UserID, p.ChannelID).Scan(&next); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO posts (user_id, channel_id, post_index, content_type, payload, caption,
			                    buttons, reactions, payload_size, status, destruct_seconds, created_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			p.UserID, p.ChannelID, next, string(p.Type), p.Payload, p.Caption,
			p.Buttons, p.Reactions, p.PayloadSize, string(StatusDraft), p.DestructSeconds,
			time.Now().UnixMilli())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	row := s.db.QueryRowContext(ctx, selectPost+` WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) ListPosts(ctx context.Context, userID, channelID int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPost+` WHERE user_id = ? AND channel_id = ? ORDER BY post_index`, userID, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// SchedulePost moves a draft to pending with the given trigger time.
// The trigger must be in the future at the moment the post enters pending.
func (s *Store) SchedulePost(ctx context.Context, id int64, triggerAt, now time.Time) error {
	if !triggerAt.After(now) {
		return ErrPastTrigger
	}
	return s.execGuarded(ctx,
		`UPDATE posts SET status = ?, trigger_at = ? WHERE id = ? AND status = ?`,
		string(StatusPending), triggerAt.UnixMilli(), id, string(StatusDraft))
}

// UpdateStatus applies a lifecycle transition, enforcing the legal
// transition set both in code and in the SQL guard so concurrent writers
// can never observe a post hopping out of a terminal state.
func (s *Store) UpdateStatus(ctx context.Context, id int64, to Status, lastErr string) error {
	from, ok := transitionsInto[to]
	if !ok {
		return fmt.Errorf("%w: no path into %s", ErrBadTransition, to)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := make([]any, 0, len(from)+3)
	args = append(args, string(to), lastErr, id)
	for _, f := range from {
		args = append(args, string(f))
	}
	q := fmt.Sprintf(`UPDATE posts SET status = ?, last_error = ? WHERE id = ? AND status IN (%s)`, placeholders)
	return s.execGuarded(ctx, q, args...)
}

// CancelPost cancels a draft or pending post. Explicit user action only.
func (s *Store) CancelPost(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, StatusCancelled, "")
}

// ListDue returns pending posts whose trigger time has arrived, oldest
// trigger first, ties broken by insertion order. Deterministic so older
// posts are never starved.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectPost+` WHERE status = ? AND trigger_at IS NOT NULL AND trigger_at <= ?
		 ORDER BY trigger_at, id LIMIT ?`,
		string(StatusPending), now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// Claim atomically marks a pending post in-flight, stamping the claim
// token. Exactly one concurrent caller wins; the rest get (false, nil).
func (s *Store) Claim(ctx context.Context, id int64, token string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, claim_token = ?, claimed_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusInFlight), token, now.UnixMilli(), id, string(StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseStale returns abandoned in-flight posts (claimed before the
// staleness cutoff, e.g. by a process that died mid-send) to pending so
// the next tick can re-claim them.
func (s *Store) ReleaseStale(ctx context.Context, now time.Time, maxAge time.Duration) (int64, error) {
	cutoff := now.Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, claim_token = '' WHERE status = ? AND claimed_at < ?`,
		string(StatusPending), string(StatusInFlight), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkSent records a successful delivery: the status transition, the
// delivered message id and the per-day quota decrement commit atomically.
func (s *Store) MarkSent(ctx context.Context, id int64, token string, messageID int64, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE posts SET status = ?, message_id = ?, last_error = ''
			 WHERE id = ? AND status = ? AND claim_token = ?`,
			string(StatusSent), messageID, id, string(StatusInFlight), token)
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
		var userID int64
		if err := tx.QueryRowContext(ctx, `SELECT user_id FROM posts WHERE id = ?`, id).Scan(&userID); err != nil {
			return err
		}
		// A counter stamped with an earlier day restarts at 1 so a missed
		// midnight reset cannot carry yesterday's count into today.
		day := now.UTC().Format("2006-01-02")
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_usage (user_id, daily_posts, last_reset) VALUES (?, 1, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
				daily_posts = CASE WHEN last_reset = excluded.last_reset THEN daily_posts + 1 ELSE 1 END,
				last_reset = excluded.last_reset`,
			userID, day)
		return err
	})
}

// UpdatePayload replaces a post's payload reference after a stale-handle
// rebuild, so a later retry starts from the fresh handle.
func (s *Store) UpdatePayload(ctx context.Context, id int64, payload string, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE posts SET payload = ?, payload_size = ? WHERE id = ?`, payload, size, id)
	return err
}

func (s *Store) execGuarded(ctx context.Context, q string, args ...any) error {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBadTransition
	}
	return nil
}

const selectPost = `
SELECT id, user_id, channel_id, post_index, content_type, payload, caption,
       buttons, reactions, payload_size, status, trigger_at, destruct_seconds,
       message_id, claim_token, claimed_at, last_error, created_at
FROM posts`

func scanPost(r rowScanner) (*Post, error) {
	var p Post
	var ct, st string
	var triggerAt sql.NullInt64
	var claimedAt, createdAt int64
	if err := r.Scan(&p.ID, &p.UserID, &p.ChannelID, &p.Index, &ct, &p.Payload, &p.Caption,
		&p.Buttons, &p.Reactions, &p.PayloadSize, &st, &triggerAt, &p.DestructSeconds,
		&p.MessageID, &p.ClaimToken, &claimedAt, &p.LastError, &createdAt); err != nil {
		return nil, err
	}
	p.Type = ContentType(ct)
	p.Status = Status(st)
	if triggerAt.Valid {
		p.TriggerAt = time.UnixMilli(triggerAt.Int64)
	}
	if claimedAt > 0 {
		p.ClaimedAt = time.UnixMilli(claimedAt)
	}
	if createdAt > 0 {
		p.CreatedAt = time.UnixMilli(createdAt)
	}
	return &p, nil
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
