package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	logx "postbot/pkg/logx"
)

// seedLegacy creates a database file with a pre-migration schema so Open
// has real legacy shapes to upgrade.
func seedLegacy(t *testing.T, ddl string, inserts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("seed ddl: %v", err)
	}
	for _, q := range inserts {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
	return path
}

func TestMigrateIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "posts.db")

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	addTestChannel(t, s, 1, -100)
	id := addTestPost(t, s, 1, -100)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening replays every migration against an up-to-date schema.
	s, err = Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("extra Migrate: %v", err)
	}

	p, err := s.GetPost(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPost after reopen: %v", err)
	}
	if p.Type != ContentText || p.Payload != "hello" {
		t.Fatalf("post mangled by re-migration: %+v", p)
	}
}

func TestMigrateRenamesLegacyTypeColumn(t *testing.T) {
	t.Parallel()
	path := seedLegacy(t,
		`CREATE TABLE posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			channel_id INTEGER NOT NULL,
			post_index INTEGER NOT NULL,
			"type" TEXT NOT NULL DEFAULT 'text',
			payload TEXT NOT NULL DEFAULT ''
		)`,
		`INSERT INTO posts (user_id, channel_id, post_index, "type", payload)
		 VALUES (1, -100, 1, 'photo', 'file-123')`,
	)

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open over legacy schema: %v", err)
	}
	defer s.Close()

	p, err := s.GetPost(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if p.Type != ContentPhoto {
		t.Fatalf("content type = %q, want photo", p.Type)
	}
	if p.Payload != "file-123" {
		t.Fatalf("payload = %q", p.Payload)
	}
	// Missing columns picked up their defaults.
	if p.Status != StatusPending {
		t.Fatalf("backfilled status = %s, want pending", p.Status)
	}
}

func TestMigrateRebuildsDuplicateTypeColumns(t *testing.T) {
	t.Parallel()
	path := seedLegacy(t,
		`CREATE TABLE posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			channel_id INTEGER NOT NULL,
			post_index INTEGER NOT NULL,
			"type" TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft'
		)`,
		// Current column wins over the legacy one.
		`INSERT INTO posts (user_id, channel_id, post_index, "type", content_type, payload, status)
		 VALUES (1, -100, 1, 'photo', 'video', 'file-a', 'draft')`,
		// Empty current column falls back to the legacy value.
		`INSERT INTO posts (user_id, channel_id, post_index, "type", content_type, payload, status)
		 VALUES (1, -100, 2, 'document', '', 'file-b', 'draft')`,
		// Both empty falls back to text.
		`INSERT INTO posts (user_id, channel_id, post_index, "type", content_type, payload, status)
		 VALUES (1, -100, 3, '', '', 'hi', 'draft')`,
	)

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open over duplicate-column schema: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	wants := map[int64]ContentType{1: ContentVideo, 2: ContentDocument, 3: ContentText}
	for id, want := range wants {
		p, err := s.GetPost(ctx, id)
		if err != nil {
			t.Fatalf("GetPost(%d): %v", id, err)
		}
		if p.Type != want {
			t.Fatalf("post %d content type = %q, want %q", id, p.Type, want)
		}
	}

	// The rebuilt table keeps working for new writes.
	if _, err := s.AddPost(ctx, Post{UserID: 1, ChannelID: -100, Type: ContentText, Payload: "new"}); err != nil {
		t.Fatalf("AddPost after rebuild: %v", err)
	}
}
