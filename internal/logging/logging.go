// Package logging sets up slog for gesturelock: text or JSON records, file
// output with rotation, and redaction of anything that looks like a secret.
// Authentication events go to a separate audit trail, see AuditLogger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gesturelock/internal/config"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else yields LevelInfo and an error.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// LevelString is the inverse of ParseLevel. Unknown levels print as info.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config describes one logger.
type Config struct {
	Level  Level
	Format Format

	// Output is stdout, stderr, file, both (stderr and file) or discard.
	// Unknown values mean stderr.
	Output   string
	FilePath string

	// Rotation of FilePath: size in MB, age in days, kept backups.
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool
	Component string

	// Writer replaces Output entirely.
	Writer io.Writer
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		MaxSize:    10,
		MaxAge:     30,
		MaxBackups: 5,
		Compress:   true,
		Component:  "gesturelock",
	}
}

// FromConfig converts the [logging] section. A bad level falls back to info;
// the validator reports it separately.
func FromConfig(lc config.LoggingConfig, component string) *Config {
	level, _ := ParseLevel(lc.Level)
	format := FormatText
	if strings.EqualFold(lc.Format, "json") {
		format = FormatJSON
	}
	return &Config{
		Level:      level,
		Format:     format,
		Output:     lc.Output,
		FilePath:   lc.FilePath,
		MaxSize:    int64(lc.MaxSizeMB),
		MaxAge:     lc.MaxAgeDays,
		MaxBackups: lc.MaxBackups,
		Compress:   lc.Compress,
		Component:  component,
	}
}

// Logger is a slog.Logger that owns its log file, if any.
type Logger struct {
	*slog.Logger

	cfg     *Config
	rotator *FileRotator
	closeMu sync.Mutex
}

// New builds a Logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	w, rotator, err := openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redact,
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}

	base := slog.New(h)
	if cfg.Component != "" {
		base = base.With("component", cfg.Component)
	}
	return &Logger{Logger: base, cfg: cfg, rotator: rotator}, nil
}

func openOutput(cfg *Config) (io.Writer, *FileRotator, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil, nil
	}

	out := strings.ToLower(cfg.Output)
	switch out {
	case "stdout":
		return os.Stdout, nil, nil
	case "discard":
		return io.Discard, nil, nil
	case "file", "both":
	default:
		return os.Stderr, nil, nil
	}

	r, err := NewFileRotator(cfg)
	if err != nil {
		return nil, nil, err
	}
	if out == "both" {
		return io.MultiWriter(os.Stderr, r), r, nil
	}
	return r, r, nil
}

// sensitiveKeys are attribute key fragments whose values never reach a log.
var sensitiveKeys = []string{
	"password", "secret", "pattern", "sequence", "gesture",
	"answer", "code", "token", "key", "credential",
}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindGroup && shouldRedact(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// WithComponent returns a Logger tagged with name that shares the output.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With("component", name),
		cfg:     l.cfg,
		rotator: l.rotator,
	}
}

// Close closes the log file. Loggers from WithComponent share it.
func (l *Logger) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the process logger, creating a stderr one on first use.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l, err := New(DefaultConfig())
	if err != nil {
		l = &Logger{Logger: slog.Default(), cfg: DefaultConfig()}
	}
	defaultLogger.CompareAndSwap(nil, l)
	return defaultLogger.Load()
}

// SetDefault installs l as the process logger and as slog's default, so
// packages handed a nil logger write through it too.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
	slog.SetDefault(l.Logger)
}
