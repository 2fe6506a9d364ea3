package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		parsed, _ := ParseLevel(lvl)
		if got := LevelString(parsed); got != lvl {
			t.Errorf("LevelString(ParseLevel(%q)) = %q", lvl, got)
		}
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		Output:     "file",
		FilePath:   "/tmp/x.log",
		MaxSizeMB:  3,
		MaxBackups: 2,
		MaxAgeDays: 4,
	}, "gesturectl")

	if cfg.Level != LevelDebug || cfg.Format != FormatJSON {
		t.Errorf("level/format not converted: %+v", cfg)
	}
	if cfg.MaxSize != 3 || cfg.MaxBackups != 2 || cfg.MaxAge != 4 {
		t.Errorf("rotation not converted: %+v", cfg)
	}
	if cfg.Component != "gesturectl" {
		t.Errorf("component = %s", cfg.Component)
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key    string
		redact bool
	}{
		{"password", true},
		{"stored_pattern", true},
		{"sequence", true},
		{"security_answer", true},
		{"verification_code", true},
		{"share_key", true},
		{"failure_count", false},
		{"nodes", false},
		{"component", false},
		{"remaining_ms", false},
	}

	for _, tt := range tests {
		if got := shouldRedact(tt.key); got != tt.redact {
			t.Errorf("shouldRedact(%q) = %v, want %v", tt.key, got, tt.redact)
		}
	}
}

func TestJSONFormatRedacts(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.WithComponent("vault").Info("saved", "pattern", "[1,2,3,6,9]", "nodes", 5)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if entry["pattern"] != "[REDACTED]" {
		t.Errorf("pattern not redacted: %v", entry["pattern"])
	}
	if entry["nodes"] != float64(5) {
		t.Errorf("nodes = %v", entry["nodes"])
	}
	if entry["component"] != "vault" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf

	logger, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	SetDefault(logger)
	if Default() != logger {
		t.Error("Default() did not return the installed logger")
	}
}

func TestFileRotator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 3})
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}

	if _, err := r.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Errorf("got %q", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 5})
	if err != nil {
		t.Fatal(err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := r.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) < 2 {
		t.Errorf("expected rotated files, got %v", files)
	}
}

func TestFileRotatorRollsAtMidnight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "day.log")
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))

	r, err := newFileRotator(&Config{FilePath: path, MaxBackups: 2}, clock)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write([]byte("before\n")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := r.Write([]byte("after\n")); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "after\n" {
		t.Errorf("live file = %q", data)
	}
	backup := filepath.Join(filepath.Dir(path), "day-20260302-000100.000.log")
	if data, err := os.ReadFile(backup); err != nil || string(data) != "before\n" {
		t.Errorf("backup %s = %q, %v", backup, data, err)
	}
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditWriter(&buf, "gesturelock")
	ctx := context.Background()

	session := audit.StartSession(ctx)
	if session == "" {
		t.Fatal("empty session id")
	}

	if err := audit.LogAttempt(ctx, false, 1, 5); err != nil {
		t.Fatal(err)
	}
	if err := audit.LogLock(ctx, 5, time.Unix(1700000000, 0)); err != nil {
		t.Fatal(err)
	}
	if err := audit.LogImport(ctx, "custom", errors.New("bad schema")); err != nil {
		t.Fatal(err)
	}
	if err := audit.EndSession(ctx); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 audit lines, got %d:\n%s", len(lines), buf.String())
	}

	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.EventType != AuditEventAuthentication || ev.Result != ResultFailure {
		t.Errorf("unexpected attempt event: %+v", ev)
	}
	if ev.SessionID != session {
		t.Errorf("session id = %s, want %s", ev.SessionID, session)
	}
	if ev.Component != "gesturelock" {
		t.Errorf("component = %s", ev.Component)
	}

	if err := json.Unmarshal([]byte(lines[3]), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Error != "bad schema" || ev.Result != ResultFailure {
		t.Errorf("unexpected import event: %+v", ev)
	}
}

func TestAuditLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	audit, err := NewAuditLogger(&AuditLoggerConfig{FilePath: path, MaxSize: 1, Component: "test"})
	if err != nil {
		t.Fatal(err)
	}

	if err := audit.LogUnlock(context.Background(), "expired"); err != nil {
		t.Fatal(err)
	}
	if err := audit.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"action":"unlocked"`) {
		t.Errorf("audit file missing event: %s", data)
	}
}

func TestNilAuditLogger(t *testing.T) {
	var audit *AuditLogger
	ctx := context.Background()

	if err := audit.LogAttempt(ctx, true, 0, 4); err != nil {
		t.Errorf("nil logger should discard: %v", err)
	}
	if audit.StartSession(ctx) != "" {
		t.Error("nil logger should not start sessions")
	}
	if err := audit.Close(); err != nil {
		t.Error(err)
	}
}

func TestCrashHandlerRecovery(t *testing.T) {
	dir := t.TempDir()

	var restored bool
	h := NewCrashHandler(dir, "tui", func(CrashReport) { restored = true })
	var stderr bytes.Buffer
	h.stderr = &stderr

	panicked := h.Recover(func() { panic("boom") })
	if !panicked {
		t.Fatal("expected panic to be reported")
	}
	if !restored {
		t.Error("onCrash hook not called")
	}
	if !strings.Contains(stderr.String(), "Panic: boom") {
		t.Errorf("stderr missing report: %s", stderr.String())
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "crash-tui-*.json"))
	if len(matches) != 1 {
		t.Errorf("expected one crash dump, got %v", matches)
	}

	if h.Recover(func() {}) {
		t.Error("no panic expected")
	}
}
