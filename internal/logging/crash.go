package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp  time.Time `json:"timestamp"`
	GOOS       string    `json:"goos"`
	GOARCH     string    `json:"goarch"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	Component  string    `json:"component,omitempty"`
}

// CrashHandler recovers panics, writes a crash dump and runs a cleanup hook.
// The terminal host uses the hook to restore the screen before the report is
// printed.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	component string
	onCrash   func(CrashReport)
	stderr    io.Writer
}

// NewCrashHandler creates a CrashHandler that writes dumps into crashDir.
// An empty crashDir disables dump files.
func NewCrashHandler(crashDir, component string, onCrash func(CrashReport)) *CrashHandler {
	if crashDir != "" {
		os.MkdirAll(crashDir, 0750)
	}
	return &CrashHandler{
		crashDir:  crashDir,
		component: component,
		onCrash:   onCrash,
		stderr:    os.Stderr,
	}
}

// Recover runs fn and turns a panic into a crash report. It reports whether
// fn panicked.
func (h *CrashHandler) Recover(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r)
		}
	}()
	fn()
	return false
}

// HandlePanic processes a recovered panic value.
func (h *CrashHandler) HandlePanic(panicValue any) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:  time.Now().UTC(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		Component:  h.component,
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}

	path, err := h.writeCrashDump(report)

	fmt.Fprintf(h.stderr, "\n=== CRASH REPORT ===\n")
	fmt.Fprintf(h.stderr, "Time: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(h.stderr, "Panic: %s\n", report.PanicValue)
	switch {
	case err != nil:
		fmt.Fprintf(h.stderr, "Crash dump failed: %v\n", err)
	case path != "":
		fmt.Fprintf(h.stderr, "Crash dump written to: %s\n", path)
	}

	return report
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if h.crashDir == "" {
		return "", nil
	}

	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}
