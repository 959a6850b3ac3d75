package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const validYAML = `
logging:
  level: debug
  console: true
storage:
  path: /var/lib/postbot/posts.db
  busy_timeout: 10s
scheduler:
  tick_interval: 5s
  workers: 2
delivery:
  retry_max: 4
  retry_base: 500ms
  cooldown: 15m
transports:
  primary:
    rate_per_sec: 20
  secondary:
    api_url: http://127.0.0.1:8081
    size_ceiling: 2147483648
notify:
  enabled: true
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "/var/lib/postbot/posts.db" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Scheduler.Workers != 2 || cfg.Scheduler.TickInterval != "5s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Delivery.RetryMax != 4 || cfg.Delivery.RetryBase != "500ms" {
		t.Fatalf("delivery = %+v", cfg.Delivery)
	}
	if cfg.Transports.Secondary == nil || cfg.Transports.Secondary.APIURL != "http://127.0.0.1:8081" {
		t.Fatalf("transports = %+v", cfg.Transports)
	}
	if cfg.Transports.Secondary.SizeCeiling != 2<<30 {
		t.Fatalf("secondary ceiling = %d", cfg.Transports.Secondary.SizeCeiling)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "./posts.db"},
		"scheduler": {},
		"delivery": {},
		"transports": {"primary": {}}
	}`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transports.Secondary != nil {
		t.Fatalf("secondary = %+v, want nil", cfg.Transports.Secondary)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
storage:
  path: ./posts.db
transports:
  primary: {}
speling_mistake: true
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}

	m = writeConfig(t, "config.yaml", `
storage:
  path: ./posts.db
  pathh: ./typo.db
transports:
  primary: {}
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown nested field accepted")
	}
}

func TestParseRejectsMissingStoragePath(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
logging:
  level: info
transports:
  primary: {}
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("config without storage.path accepted")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
storage:
  path: ./posts.db
scheduler:
  tick_interval: every five seconds
transports:
  primary: {}
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json",
		`{"storage": {"path": "./posts.db"}, "transports": {"primary": {}}} {"again": true}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("trailing JSON document accepted")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	next := &Config{}
	m.publish(next)
	select {
	case got := <-ch:
		if got != next {
			t.Fatal("subscriber got a different config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never notified")
	}

	// A full subscriber buffer never blocks the publisher.
	m.publish(next)
	m.publish(next)
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("BOT_TOKEN", "bot-token")
	t.Setenv("USER_TOKEN", "")

	s, err := LoadSecrets(false)
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	if s.BotToken != "bot-token" {
		t.Fatalf("bot token = %q", s.BotToken)
	}

	if _, err := LoadSecrets(true); err == nil {
		t.Fatal("missing USER_TOKEN accepted with secondary transport configured")
	}

	t.Setenv("USER_TOKEN", "user-token")
	s, err = LoadSecrets(true)
	if err != nil {
		t.Fatalf("LoadSecrets with secondary: %v", err)
	}
	if s.UserToken != "user-token" {
		t.Fatalf("user token = %q", s.UserToken)
	}

	t.Setenv("BOT_TOKEN", "")
	if _, err := LoadSecrets(false); err == nil {
		t.Fatal("missing BOT_TOKEN accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("empty = %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", 3*time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("250ms = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", 0); err == nil {
		t.Fatal("invalid duration accepted")
	}
}
