package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, err := NewService(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: path},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	log := svc.Logger().With(String("comp", "test"))
	log.Info("delivery finished", Int64("post_id", 7), Bool("ok", true))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(b))
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	if rec["message"] != "delivery finished" || rec["comp"] != "test" {
		t.Fatalf("record = %v", rec)
	}
	if rec["post_id"] != float64(7) || rec["ok"] != true {
		t.Fatalf("fields = %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, err := NewService(Config{
		Level: "warn",
		File:  FileConfig{Enabled: true, Path: path},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	log := svc.Logger()

	if log.Enabled(LevelDebug) {
		t.Fatal("debug enabled at warn level")
	}
	log.Debug("invisible")
	log.Warn("visible")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "invisible") {
		t.Fatal("debug record written at warn level")
	}
	if !strings.Contains(string(b), "visible") {
		t.Fatal("warn record missing")
	}
}

func TestApplySwitchesSinksLive(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	svc, err := NewService(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	log := svc.Logger()
	log.Info("one")

	if err := svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// The logger handed out before Apply follows the new sink.
	log.Info("two")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b1, _ := os.ReadFile(first)
	b2, _ := os.ReadFile(second)
	if !strings.Contains(string(b1), "one") || strings.Contains(string(b1), "two") {
		t.Fatalf("first sink = %q", b1)
	}
	if !strings.Contains(string(b2), "two") {
		t.Fatalf("second sink = %q", b2)
	}
}

func TestApplyRejectsFileSinkWithoutPath(t *testing.T) {
	if _, err := NewService(Config{File: FileConfig{Enabled: true}}); err == nil {
		t.Fatal("file sink without path accepted")
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	l := Nop()
	if l.IsZero() {
		t.Fatal("Nop logger reads as zero value")
	}
	if l.Enabled(zerolog.ErrorLevel) {
		t.Fatal("Nop logger claims to be enabled")
	}
	// Must not panic.
	l.Error("dropped", Err(nil))
}
