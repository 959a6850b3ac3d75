package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AddChannel registers a channel for a user. Re-registering the same
// (user, channel) pair updates the display fields in place.
func (s *Store) AddChannel(ctx context.Context, ch Channel) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO channels (user_id, channel_id, display_name, tag, thumbnail, created_at)
			 VALUES (?,?,?,?,?,?)
			 ON CONFLICT(user_id, channel_id) DO UPDATE SET
			   display_name = excluded.display_name,
			   tag = excluded.tag,
			   thumbnail = excluded.thumbnail`,
			ch.UserID, ch.ChannelID, ch.DisplayName, ch.Tag, ch.Thumbnail, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *Store) GetChannel(ctx context.Context, userID, channelID int64) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, channel_id, display_name, tag, thumbnail, created_at
		 FROM channels WHERE user_id = ? AND channel_id = ?`, userID, channelID)
	return scanChannel(row)
}

func (s *Store) ListChannels(ctx context.Context, userID int64) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, channel_id, display_name, tag, thumbnail, created_at
		 FROM channels WHERE user_id = ? ORDER BY display_name, channel_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		ch, err := scanChannelRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// RemoveChannel deletes a channel and cascades to its posts and any armed
// destructions for those posts.
func (s *Store) RemoveChannel(ctx context.Context, userID, channelID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM channels WHERE user_id = ? AND channel_id = ?`, userID, channelID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM destructions WHERE post_id IN
			   (SELECT id FROM posts WHERE user_id = ? AND channel_id = ?)`,
			userID, channelID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM posts WHERE user_id = ? AND channel_id = ?`, userID, channelID)
		return err
	})
}

func (s *Store) SetChannelTag(ctx context.Context, userID, channelID int64, tag string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET tag = ? WHERE user_id = ? AND channel_id = ?`,
		tag, userID, channelID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetChannelThumbnail(ctx context.Context, userID, channelID int64, fileID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET thumbnail = ? WHERE user_id = ? AND channel_id = ?`,
		fileID, userID, channelID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row *sql.Row) (*Channel, error) {
	ch, err := scanChannelRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ch, err
}

func scanChannelRow(r rowScanner) (*Channel, error) {
	var ch Channel
	var createdAt int64
	if err := r.Scan(&ch.ID, &ch.UserID, &ch.ChannelID, &ch.DisplayName, &ch.Tag, &ch.Thumbnail, &createdAt); err != nil {
		return nil, err
	}
	if createdAt > 0 {
		ch.CreatedAt = time.UnixMilli(createdAt)
	}
	return &ch, nil
}
