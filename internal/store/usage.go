package store

import (
	"context"
	"database/sql"
	"errors"
)

// DailyPosts returns how many posts a user has sent on the given UTC day.
func (s *Store) DailyPosts(ctx context.Context, userID int64, day string) (int, error) {
	var n int
	var lastReset string
	err := s.db.QueryRowContext(ctx,
		`SELECT daily_posts, last_reset FROM user_usage WHERE user_id = ?`, userID).
		Scan(&n, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if lastReset != day {
		return 0, nil
	}
	return n, nil
}

// ResetQuotas zeroes counters whose last activity predates the given UTC
// day. Run from the midnight maintenance job.
func (s *Store) ResetQuotas(ctx context.Context, day string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_usage SET daily_posts = 0, last_reset = ? WHERE last_reset < ?`, day, day)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetUserTimezone stores the IANA zone name used to resolve a user's
// relative-day scheduling input.
func (s *Store) SetUserTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_timezones (user_id, timezone) VALUES (?,?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone = excluded.timezone`,
		userID, tz)
	return err
}

// GetUserTimezone returns the stored zone name, or "UTC" when unset.
func (s *Store) GetUserTimezone(ctx context.Context, userID int64) (string, error) {
	var tz string
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone FROM user_timezones WHERE user_id = ?`, userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "UTC", nil
	}
	if err != nil {
		return "", err
	}
	return tz, nil
}
