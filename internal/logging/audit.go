package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"gesturelock/internal/config"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventSessionStart   AuditEventType = "session_start"
	AuditEventSessionEnd     AuditEventType = "session_end"
	AuditEventAuthentication AuditEventType = "authentication"
	AuditEventLockout        AuditEventType = "lockout"
	AuditEventEnrollment     AuditEventType = "enrollment"
	AuditEventRecovery       AuditEventType = "recovery"
	AuditEventExport         AuditEventType = "export"
	AuditEventImport         AuditEventType = "import"
	AuditEventConfigChange   AuditEventType = "config_change"
	AuditEventError          AuditEventType = "error"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// AuditEvent represents a security-relevant event. Details must never
// carry a pattern, answer or code.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	SessionID string         `json:"session_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Component is the component name for audit events.
	Component string
}

// AuditConfigFrom converts the [audit] section of the application config.
func AuditConfigFrom(ac config.AuditConfig, component string) *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   ac.FilePath,
		MaxSize:    int64(ac.MaxSizeMB),
		MaxAge:     ac.MaxAgeDays,
		MaxBackups: ac.MaxBackups,
		Component:  component,
	}
}

// AuditLogger writes one JSON object per line to an append-only trail.
// A nil *AuditLogger is valid and discards every event.
type AuditLogger struct {
	config    *AuditLoggerConfig
	out       io.Writer
	rotator   *FileRotator
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// NewAuditLogger creates an AuditLogger writing to a rotated file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	a := NewAuditWriter(rotator, cfg.Component)
	a.config = cfg
	a.rotator = rotator
	return a, nil
}

// NewAuditWriter creates an AuditLogger writing to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	return &AuditLogger{
		config: &AuditLoggerConfig{Component: component},
		out:    w,
		now:    time.Now,
	}
}

// StartSession assigns a fresh session ID to subsequent events and returns it.
func (a *AuditLogger) StartSession(ctx context.Context) string {
	if a == nil {
		return ""
	}
	id := uuid.NewString()
	a.mu.Lock()
	a.sessionID = id
	a.mu.Unlock()
	_ = a.Log(ctx, AuditEvent{
		EventType: AuditEventSessionStart,
		Action:    "session_started",
		Result:    ResultSuccess,
	})
	return id
}

// EndSession logs the end of the current session and clears its ID.
func (a *AuditLogger) EndSession(ctx context.Context) error {
	if a == nil {
		return nil
	}
	err := a.Log(ctx, AuditEvent{
		EventType: AuditEventSessionEnd,
		Action:    "session_ended",
		Result:    ResultSuccess,
	})
	a.mu.Lock()
	a.sessionID = ""
	a.mu.Unlock()
	return err
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.out.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	return nil
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// LogAttempt logs a pattern verification attempt.
func (a *AuditLogger) LogAttempt(ctx context.Context, success bool, failureCount, nodes int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventAuthentication,
		Action:    "pattern_verified",
		Result:    result(success),
		Details: map[string]any{
			"failure_count": failureCount,
			"nodes":         nodes,
		},
	})
}

// LogLock logs entry into the lockout state.
func (a *AuditLogger) LogLock(ctx context.Context, failureCount int, until time.Time) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventLockout,
		Action:    "locked",
		Result:    ResultDenied,
		Details: map[string]any{
			"failure_count": failureCount,
			"locked_until":  until.UTC().Format(time.RFC3339),
		},
	})
}

// LogUnlock logs the end of a lockout. Reason is "expired", "success",
// "manual" or "rehydrate".
func (a *AuditLogger) LogUnlock(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventLockout,
		Action:    "unlocked",
		Result:    ResultSuccess,
		Details:   map[string]any{"reason": reason},
	})
}

// LogEnrollment logs a pattern being set, replaced or removed.
func (a *AuditLogger) LogEnrollment(ctx context.Context, action string, success bool) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventEnrollment,
		Action:    action,
		Result:    result(success),
	})
}

// LogRecovery logs a step of the forgotten-pattern flow.
func (a *AuditLogger) LogRecovery(ctx context.Context, action, resource string, success bool) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventRecovery,
		Action:    action,
		Resource:  resource,
		Result:    result(success),
	})
}

// LogExport logs an export of a pattern record.
func (a *AuditLogger) LogExport(ctx context.Context, resource string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventExport,
		Action:    "pattern_exported",
		Resource:  resource,
		Result:    ResultSuccess,
	})
}

// LogImport logs an import attempt.
func (a *AuditLogger) LogImport(ctx context.Context, resource string, err error) error {
	ev := AuditEvent{
		EventType: AuditEventImport,
		Action:    "pattern_imported",
		Resource:  resource,
		Result:    result(err == nil),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return a.Log(ctx, ev)
}

// LogConfigChange logs a configuration change.
func (a *AuditLogger) LogConfigChange(ctx context.Context, setting, oldValue, newValue string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_changed",
		Resource:  setting,
		Result:    ResultSuccess,
		Details: map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// LogError logs a failed operation.
func (a *AuditLogger) LogError(ctx context.Context, operation string, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventError,
		Action:    operation,
		Result:    ResultFailure,
		Error:     err.Error(),
	})
}

// Close closes the audit file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.rotator == nil {
		return nil
	}
	return a.rotator.Close()
}
