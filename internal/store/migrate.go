package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	logx "postbot/pkg/logx"
)

// The schema has lived through several deployments. Older stores may:
//   - lack the posts.content_type column entirely,
//   - carry it under the legacy name "type",
//   - carry BOTH "type" and content_type (a half-finished manual rename),
//   - lack the posts.status column.
//
// Migrations are an ordered list of independently idempotent steps: each
// detects whether it applies before touching anything, so running the
// whole list against an up-to-date store is a no-op.

type migration struct {
	name string
	run  func(ctx context.Context, tx *sql.Tx) error
}

const channelsDDL = `
CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	channel_id INTEGER NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	tag TEXT NOT NULL DEFAULT '',
	thumbnail TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0,
	UNIQUE(user_id, channel_id)
)`

const postsDDL = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	channel_id INTEGER NOT NULL,
	post_index INTEGER NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'text',
	payload TEXT NOT NULL DEFAULT '',
	caption TEXT NOT NULL DEFAULT '',
	buttons TEXT NOT NULL DEFAULT '',
	reactions TEXT NOT NULL DEFAULT '',
	payload_size INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'draft',
	trigger_at INTEGER,
	destruct_seconds INTEGER NOT NULL DEFAULT 0,
	message_id INTEGER NOT NULL DEFAULT 0,
	claim_token TEXT NOT NULL DEFAULT '',
	claimed_at INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0,
	UNIQUE(user_id, channel_id, post_index)
)`

const destructionsDDL = `
CREATE TABLE IF NOT EXISTS destructions (
	post_id INTEGER PRIMARY KEY,
	fire_at INTEGER NOT NULL
)`

const usageDDL = `
CREATE TABLE IF NOT EXISTS user_usage (
	user_id INTEGER PRIMARY KEY,
	daily_posts INTEGER NOT NULL DEFAULT 0,
	last_reset TEXT NOT NULL DEFAULT ''
)`

const timezonesDDL = `
CREATE TABLE IF NOT EXISTS user_timezones (
	user_id INTEGER PRIMARY KEY,
	timezone TEXT NOT NULL
)`

// postColumns is the canonical posts column set (minus the rowid PK) with
// the SQL defaults used when adding a missing column or rebuilding.
var postColumns = []struct {
	name string
	ddl  string
	def  string
}{
	{"user_id", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"channel_id", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"post_index", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"content_type", "TEXT NOT NULL DEFAULT 'text'", "'text'"},
	{"payload", "TEXT NOT NULL DEFAULT ''", "''"},
	{"caption", "TEXT NOT NULL DEFAULT ''", "''"},
	{"buttons", "TEXT NOT NULL DEFAULT ''", "''"},
	{"reactions", "TEXT NOT NULL DEFAULT ''", "''"},
	{"payload_size", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"status", "TEXT NOT NULL DEFAULT 'pending'", "'pending'"},
	{"trigger_at", "INTEGER", "NULL"},
	{"destruct_seconds", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"message_id", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"claim_token", "TEXT NOT NULL DEFAULT ''", "''"},
	{"claimed_at", "INTEGER NOT NULL DEFAULT 0", "0"},
	{"last_error", "TEXT NOT NULL DEFAULT ''", "''"},
	{"created_at", "INTEGER NOT NULL DEFAULT 0", "0"},
}

var migrations = []migration{
	{name: "base schema", run: func(ctx context.Context, tx *sql.Tx) error {
		for _, ddl := range []string{channelsDDL, postsDDL, destructionsDDL, usageDDL, timezonesDDL} {
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return err
			}
		}
		return nil
	}},

	{name: "posts: rename legacy type column", run: func(ctx context.Context, tx *sql.Tx) error {
		cols, err := tableColumns(ctx, tx, "posts")
		if err != nil {
			return err
		}
		if cols["type"] && !cols["content_type"] {
			if _, err := tx.ExecContext(ctx, `ALTER TABLE posts RENAME COLUMN "type" TO content_type`); err != nil {
				return err
			}
		}
		return nil
	}},

	{name: "posts: rebuild on duplicate type columns", run: func(ctx context.Context, tx *sql.Tx) error {
		cols, err := tableColumns(ctx, tx, "posts")
		if err != nil {
			return err
		}
		if !cols["type"] || !cols["content_type"] {
			return nil
		}
		// Both the legacy and the current column exist: rebuild the table
		// on the canonical shape. Prefer content_type, fall back to the
		// legacy value, then the default.
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS posts_rebuild`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, strings.Replace(postsDDL, "posts", "posts_rebuild", 1)); err != nil {
			return err
		}
		names := make([]string, 0, len(postColumns)+1)
		exprs := make([]string, 0, len(postColumns)+1)
		names = append(names, "id")
		exprs = append(exprs, "id")
		for _, pc := range postColumns {
			names = append(names, pc.name)
			switch {
			case pc.name == "content_type":
				exprs = append(exprs, `COALESCE(NULLIF(content_type,''), NULLIF("type",''), 'text')`)
			case cols[pc.name]:
				exprs = append(exprs, fmt.Sprintf("COALESCE(%s, %s)", pc.name, pc.def))
			default:
				exprs = append(exprs, pc.def)
			}
		}
		q := fmt.Sprintf("INSERT INTO posts_rebuild (%s) SELECT %s FROM posts",
			strings.Join(names, ", "), strings.Join(exprs, ", "))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE posts`); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `ALTER TABLE posts_rebuild RENAME TO posts`)
		return err
	}},

	{name: "posts: add missing columns", run: func(ctx context.Context, tx *sql.Tx) error {
		cols, err := tableColumns(ctx, tx, "posts")
		if err != nil {
			return err
		}
		for _, pc := range postColumns {
			if cols[pc.name] {
				continue
			}
			q := fmt.Sprintf("ALTER TABLE posts ADD COLUMN %s %s", pc.name, pc.ddl)
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	}},

	{name: "posts: backfill defaults", run: func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE posts SET content_type = 'text' WHERE content_type IS NULL OR content_type = ''`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE posts SET status = 'pending' WHERE status IS NULL OR status = ''`)
		return err
	}},

	{name: "channels: add missing columns", run: func(ctx context.Context, tx *sql.Tx) error {
		cols, err := tableColumns(ctx, tx, "channels")
		if err != nil {
			return err
		}
		for name, ddl := range map[string]string{
			"display_name": "TEXT NOT NULL DEFAULT ''",
			"tag":          "TEXT NOT NULL DEFAULT ''",
			"thumbnail":    "TEXT NOT NULL DEFAULT ''",
		} {
			if cols[name] {
				continue
			}
			q := fmt.Sprintf("ALTER TABLE channels ADD COLUMN %s %s", name, ddl)
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	}},

	{name: "indexes", run: func(ctx context.Context, tx *sql.Tx) error {
		for _, q := range []string{
			`CREATE INDEX IF NOT EXISTS idx_posts_due ON posts(status, trigger_at)`,
			`CREATE INDEX IF NOT EXISTS idx_posts_channel ON posts(user_id, channel_id)`,
			`CREATE INDEX IF NOT EXISTS idx_channels_user ON channels(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_destructions_fire ON destructions(fire_at)`,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	}},
}

// Migrate brings the schema up to date. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	// Table rebuilds must not cascade while rows move between tables.
	_, _ = s.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	defer func() { _, _ = s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON") }()

	for _, m := range migrations {
		if err := s.runTx(ctx, func(tx *sql.Tx) error { return m.run(ctx, tx) }); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
		s.log.Debug("migration step ok", logx.String("step", m.name))
	}
	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notnull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
