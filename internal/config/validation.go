package config

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig checks every section and returns all problems at once as
// ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateGrid(&c.Grid)...)
	errs = append(errs, validateLockout(&c.Lockout)...)
	errs = append(errs, validateEnrollment(&c.Enrollment, &c.Grid)...)
	errs = append(errs, validateVerificationCode(&c.VerificationCode)...)
	errs = append(errs, validateTrajectory(&c.Trajectory)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateAudit(&c.Audit)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateGrid(g *GridConfig) ValidationErrors {
	var errs ValidationErrors

	if g.Rows < 3 || g.Rows > 6 {
		errs = append(errs, ValidationError{
			Field:   "grid.rows",
			Message: fmt.Sprintf("rows must be between 3 and 6, got %d", g.Rows),
		})
	}

	if !finite(g.ContainerSize) || g.ContainerSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grid.container_size",
			Message: "container size must be a positive number",
		})
	}

	if !finite(g.NodeRadius) || g.NodeRadius <= 0 || g.NodeRadius >= g.ContainerSize/2 {
		errs = append(errs, ValidationError{
			Field:   "grid.node_radius",
			Message: "node radius must be positive and less than half the container size",
		})
	}

	if !finite(g.WindowWidth) || g.WindowWidth <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grid.window_width",
			Message: "window width must be a positive number",
		})
	}

	return errs
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validateLockout(l *LockoutConfig) ValidationErrors {
	var errs ValidationErrors

	if l.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "lockout.max_attempts",
			Message: "max attempts must be at least 1",
		})
	}

	if l.DurationMs < 1000 {
		errs = append(errs, ValidationError{
			Field:   "lockout.duration_ms",
			Message: "lockout duration must be at least 1000ms",
		})
	}

	if l.TickIntervalMs < 10 || l.TickIntervalMs > l.DurationMs {
		errs = append(errs, ValidationError{
			Field:   "lockout.tick_interval_ms",
			Message: "tick interval must be between 10ms and the lockout duration",
		})
	}

	return errs
}

func validateEnrollment(e *EnrollmentConfig, g *GridConfig) ValidationErrors {
	var errs ValidationErrors

	if e.MinNodes < 1 || (g.Rows > 0 && e.MinNodes > g.Rows*g.Rows) {
		errs = append(errs, ValidationError{
			Field:   "enrollment.min_nodes",
			Message: fmt.Sprintf("min nodes must be between 1 and the node count, got %d", e.MinNodes),
		})
	}

	return errs
}

func validateVerificationCode(v *VerificationCodeConfig) ValidationErrors {
	var errs ValidationErrors

	if v.Length < 4 || v.Length > 10 {
		errs = append(errs, ValidationError{
			Field:   "verification_code.length",
			Message: "code length must be between 4 and 10",
		})
	}

	if v.TTLSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "verification_code.ttl_sec",
			Message: "ttl must be at least 1 second",
		})
	}

	if v.ResendCooldownSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "verification_code.resend_cooldown_sec",
			Message: "resend cooldown cannot be negative",
		})
	}

	switch v.Channel {
	case "sms", "email":
	default:
		errs = append(errs, ValidationError{
			Field:   "verification_code.channel",
			Message: fmt.Sprintf("invalid channel: %s (valid: sms, email)", v.Channel),
		})
	}

	return errs
}

func validateTrajectory(t *TrajectoryConfig) ValidationErrors {
	var errs ValidationErrors

	if t.Capacity < 2 {
		errs = append(errs, ValidationError{
			Field:   "trajectory.capacity",
			Message: "capacity must be at least 2",
		})
	}

	if !finite(t.PlaybackSpeed) || t.PlaybackSpeed <= 0 {
		errs = append(errs, ValidationError{
			Field:   "trajectory.playback_speed",
			Message: "playback speed must be positive",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "memory":
	case "sqlite", "file":
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: fmt.Sprintf("path is required for %s storage", s.Type),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: sqlite, file, memory)", s.Type),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output includes a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateAudit(a *AuditConfig) ValidationErrors {
	var errs ValidationErrors

	if !a.Enabled {
		return errs
	}

	if a.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "audit.file_path",
			Message: "file path is required when audit is enabled",
		})
	}

	if a.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "audit.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	return errs
}
