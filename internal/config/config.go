// Package config handles configuration loading, validation, and management for gesturelock.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete gesturelock configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Grid configuration for node layout.
	Grid GridConfig `toml:"grid" json:"grid" yaml:"grid"`

	// Lockout configuration for throttling failed attempts.
	Lockout LockoutConfig `toml:"lockout" json:"lockout" yaml:"lockout"`

	// Enrollment configuration for setting a new pattern.
	Enrollment EnrollmentConfig `toml:"enrollment" json:"enrollment" yaml:"enrollment"`

	// VerificationCode configuration for identity proof before a reset.
	VerificationCode VerificationCodeConfig `toml:"verification_code" json:"verification_code" yaml:"verification_code"`

	// Trajectory configuration for recording and playback.
	Trajectory TrajectoryConfig `toml:"trajectory" json:"trajectory" yaml:"trajectory"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Audit configuration.
	Audit AuditConfig `toml:"audit" json:"audit" yaml:"audit"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// GridConfig holds node layout configuration. Sizes are in
// device-independent units on a 750-unit reference width.
type GridConfig struct {
	// Rows is the number of rows and columns.
	Rows int `toml:"rows" json:"rows" yaml:"rows"`

	// ContainerSize is the side of the square container.
	ContainerSize float64 `toml:"container_size" json:"container_size" yaml:"container_size"`

	// NodeRadius is the radius of each node.
	NodeRadius float64 `toml:"node_radius" json:"node_radius" yaml:"node_radius"`

	// WindowWidth is the true window width in pixels.
	WindowWidth float64 `toml:"window_width" json:"window_width" yaml:"window_width"`

	// PeepProof hides the drawn trail while a gesture is in progress.
	PeepProof bool `toml:"peep_proof" json:"peep_proof" yaml:"peep_proof"`
}

// LockoutConfig holds lockout configuration.
type LockoutConfig struct {
	// MaxAttempts is the number of consecutive failures that trigger a lockout.
	MaxAttempts int `toml:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// DurationMs is the lockout duration in milliseconds.
	DurationMs int64 `toml:"duration_ms" json:"duration_ms" yaml:"duration_ms"`

	// TickIntervalMs is the countdown tick interval in milliseconds.
	TickIntervalMs int64 `toml:"tick_interval_ms" json:"tick_interval_ms" yaml:"tick_interval_ms"`
}

// Duration returns the lockout duration.
func (l LockoutConfig) Duration() time.Duration {
	return time.Duration(l.DurationMs) * time.Millisecond
}

// TickInterval returns the countdown tick interval.
func (l LockoutConfig) TickInterval() time.Duration {
	return time.Duration(l.TickIntervalMs) * time.Millisecond
}

// EnrollmentConfig holds pattern enrollment configuration.
type EnrollmentConfig struct {
	// MinNodes is the minimum number of nodes in a new pattern.
	MinNodes int `toml:"min_nodes" json:"min_nodes" yaml:"min_nodes"`
}

// VerificationCodeConfig holds verification code configuration.
type VerificationCodeConfig struct {
	// Length is the number of digits.
	Length int `toml:"length" json:"length" yaml:"length"`

	// TTLSec is how long a code stays valid.
	TTLSec int `toml:"ttl_sec" json:"ttl_sec" yaml:"ttl_sec"`

	// ResendCooldownSec is the minimum time between two sends.
	ResendCooldownSec int `toml:"resend_cooldown_sec" json:"resend_cooldown_sec" yaml:"resend_cooldown_sec"`

	// Channel is the default delivery channel: "sms" or "email".
	Channel string `toml:"channel" json:"channel" yaml:"channel"`
}

// TTL returns the code lifetime.
func (v VerificationCodeConfig) TTL() time.Duration {
	return time.Duration(v.TTLSec) * time.Second
}

// ResendCooldown returns the resend cooldown.
func (v VerificationCodeConfig) ResendCooldown() time.Duration {
	return time.Duration(v.ResendCooldownSec) * time.Second
}

// TrajectoryConfig holds trajectory recording configuration.
type TrajectoryConfig struct {
	// Capacity is the number of points kept in the ring buffer.
	Capacity int `toml:"capacity" json:"capacity" yaml:"capacity"`

	// PlaybackSpeed is the default replay speed factor.
	PlaybackSpeed float64 `toml:"playback_speed" json:"playback_speed" yaml:"playback_speed"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite", "file", or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database or document file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// AuditConfig holds audit log configuration.
type AuditConfig struct {
	// Enabled turns on the authentication audit trail.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// FilePath is the audit log path.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum audit file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated audit files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of audit files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Grid: GridConfig{
			Rows:          3,
			ContainerSize: 600,
			NodeRadius:    50,
			WindowWidth:   375,
		},
		Lockout: LockoutConfig{
			MaxAttempts:    5,
			DurationMs:     60000,
			TickIntervalMs: 1000,
		},
		Enrollment: EnrollmentConfig{
			MinNodes: 4,
		},
		VerificationCode: VerificationCodeConfig{
			Length:            6,
			TTLSec:            300,
			ResendCooldownSec: 60,
			Channel:           "sms",
		},
		Trajectory: TrajectoryConfig{
			Capacity:      100,
			PlaybackSpeed: 1,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: filepath.Join(dir, "gesturelock.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "logs", "gesturelock.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			FilePath:   filepath.Join(dir, "logs", "audit.log"),
			MaxSizeMB:  10,
			MaxBackups: 10,
			MaxAgeDays: 90,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the configuration from path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured paths live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.Audit.FilePath),
	}
	if c.Storage.Type != "memory" && c.Storage.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with GESTURELOCK_. Values that do not
// parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Storage overrides
	if v := os.Getenv("GESTURELOCK_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("GESTURELOCK_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Grid overrides
	if v, ok := envInt("GESTURELOCK_GRID_ROWS"); ok {
		c.Grid.Rows = v
	}

	// Lockout overrides
	if v, ok := envInt("GESTURELOCK_MAX_ATTEMPTS"); ok {
		c.Lockout.MaxAttempts = v
	}
	if v, ok := envInt("GESTURELOCK_LOCKOUT_DURATION_MS"); ok {
		c.Lockout.DurationMs = int64(v)
	}

	// Logging overrides
	if v := os.Getenv("GESTURELOCK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GESTURELOCK_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("GESTURELOCK_AUDIT_PATH"); v != "" {
		c.Audit.FilePath = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:          c.Version,
		Grid:             c.Grid,
		Lockout:          c.Lockout,
		Enrollment:       c.Enrollment,
		VerificationCode: c.VerificationCode,
		Trajectory:       c.Trajectory,
		Storage:          c.Storage,
		Logging:          c.Logging,
		Audit:            c.Audit,
	}
}

// SaveConfig writes cfg to path. The format follows the file extension and
// defaults to TOML.
func SaveConfig(cfg *Config, path string) error {
	data, err := encode(cfg, path)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := tomlCodec.encode(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
