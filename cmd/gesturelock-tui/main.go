// gesturelock-tui draws the pattern lock in a terminal. Drag with the left
// mouse button to draw a pattern.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"

	"gesturelock/internal/config"
	"gesturelock/internal/geometry"
	"gesturelock/internal/gesture"
	"gesturelock/internal/kv"
	"gesturelock/internal/lockout"
	"gesturelock/internal/logging"
	"gesturelock/internal/metrics"
	"gesturelock/internal/security"
	"gesturelock/internal/tracker"
	"gesturelock/internal/trajectory"
	"gesturelock/internal/vault"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	loader := config.NewLoader(path)
	defer loader.Close()
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The terminal is ours, so logs go to a file.
	logCfg := logging.FromConfig(cfg.Logging, "gesturelock-tui")
	if !strings.EqualFold(logCfg.Output, "file") {
		logCfg.Output = "file"
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = filepath.Join(config.DataDir(), "logs", "gesturelock-tui.log")
	}
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logging.SetDefault(log)

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Error("create screen", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	crash := logging.NewCrashHandler(filepath.Join(config.DataDir(), "crashes"), "gesturelock-tui",
		func(logging.CrashReport) { screen.Fini() })

	var runErr error
	if crash.Recover(func() { runErr = run(cfg, loader, screen, log.Logger) }) {
		os.Exit(2)
	}
	if runErr != nil {
		log.Error("exited with error", "error", runErr)
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	screen tcell.Screen
	logger *slog.Logger
	vault  *vault.Vault
	lock   *gesture.Lock
	view   *view
	prefs  vault.Preferences

	enroll *vault.Enrollment // nil once a pattern is stored
	down   bool
	ctx    context.Context
}

func run(cfg *config.Config, loader *config.Loader, screen tcell.Screen, logger *slog.Logger) error {
	store, err := kv.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close(store)

	var audit *logging.AuditLogger
	if cfg.Audit.Enabled {
		if audit, err = logging.NewAuditLogger(logging.AuditConfigFrom(cfg.Audit, "gesturelock-tui")); err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer audit.Close()
	}

	clock := clockwork.NewRealClock()
	v := vault.New(store, clock, logger)
	prefs, err := v.Preferences()
	if err != nil {
		logger.Warn("using default preferences", "error", err)
	}

	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()
	screen.EnableMouse()
	screen.HideCursor()

	w, h := screen.Size()
	spec, col, row := fitGrid(cfg.Grid, w, h)
	grid, err := geometry.Layout(spec)
	if err != nil {
		return fmt.Errorf("grid layout: %w", err)
	}

	lock, err := gesture.New(gesture.Options{
		Grid:               grid,
		Verifier:           v,
		Policy:             lockout.New(lockout.ConfigFrom(cfg.Lockout), store, clock, logger),
		TrajectoryCapacity: cfg.Trajectory.Capacity,
		PlaybackSpeed:      cfg.Trajectory.PlaybackSpeed,
		PeepProof:          cfg.Grid.PeepProof,
		Clock:              clock,
		Logger:             logger,
		Metrics:            metrics.NewLockMetrics(metrics.NewRegistry("gesturelock")),
		Audit:              audit,
	})
	if err != nil {
		return err
	}
	defer lock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &app{
		cfg:    cfg,
		screen: screen,
		logger: logger,
		vault:  v,
		lock:   lock,
		prefs:  prefs,
		ctx:    ctx,
		view: &view{
			screen: screen,
			colors: paletteFor(prefs.Theme),
			col:    col,
			row:    row,
			title:  fmt.Sprintf("gesturelock  %dx%d", cfg.Grid.Rows, cfg.Grid.Rows),
			snap:   lock.Snapshot(),
		},
	}

	events := lock.Subscribe()
	go func() {
		for ev := range events {
			_ = screen.PostEvent(tcell.NewEventInterrupt(ev))
		}
	}()

	// Grid edits in the config file apply live; other sections on restart.
	loader.OnChange(func(c *config.Config) { _ = screen.PostEvent(tcell.NewEventInterrupt(c)) })
	if err := loader.Watch(); err != nil {
		logger.Warn("config reload disabled", "error", err)
	}
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload", "error", err)
		}
	}()

	if _, err := lock.Restore(); err != nil {
		return fmt.Errorf("restore lockout: %w", err)
	}
	a.greet()
	return a.loop()
}

// greet sets the opening prompt.
func (a *app) greet() {
	set, err := a.vault.IsSet()
	switch {
	case err != nil:
		a.say(true, "Storage error: %v", err)
	case !set:
		a.enroll = vault.NewEnrollment(a.vault, a.cfg.Enrollment.MinNodes)
		a.say(false, "No pattern yet. Draw a new pattern (at least %d nodes)", a.enroll.MinNodes())
	default:
		a.say(false, "Draw your pattern to unlock")
	}
}

func (a *app) say(alert bool, format string, args ...any) {
	a.view.message = fmt.Sprintf(format, args...)
	a.view.alert = alert
}

func (a *app) loop() error {
	for {
		a.view.draw()

		switch ev := a.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			a.screen.Sync()
			a.resize()
		case *tcell.EventKey:
			if a.key(ev) {
				return nil
			}
		case *tcell.EventMouse:
			a.mouse(ev)
		case *tcell.EventInterrupt:
			switch data := ev.Data().(type) {
			case gesture.Event:
				a.handle(data)
			case *config.Config:
				a.cfg.Grid = data.Grid
				a.view.title = fmt.Sprintf("gesturelock  %dx%d", data.Grid.Rows, data.Grid.Rows)
				a.resize()
			}
		}
	}
}

func (a *app) resize() {
	w, h := a.screen.Size()
	spec, col, row := fitGrid(a.cfg.Grid, w, h)
	if col == a.view.col && row == a.view.row && spec == a.lock.Grid().Spec() {
		return
	}
	grid, err := geometry.Layout(spec)
	if err != nil {
		a.say(true, "Screen too small")
		return
	}
	a.down = false
	if err := a.lock.SetGrid(grid); err != nil {
		a.logger.Warn("set grid", "error", err)
		return
	}
	a.view.col, a.view.row = col, row
	a.view.snap = a.lock.Snapshot()
}

// key handles a key press and reports whether to quit.
func (a *app) key(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
	default:
		return false
	}

	switch ev.Rune() {
	case 'q':
		return true
	case 'r':
		a.replay()
	case 's':
		a.saveTrajectory()
	}
	return false
}

func (a *app) mouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	p := tracker.Pointer{Position: pagePoint(x, y), Origin: a.view.origin()}
	pressed := ev.Buttons()&tcell.Button1 != 0

	switch {
	case pressed && !a.down:
		a.down = a.lock.PointerDown(p)
	case pressed && a.down:
		a.lock.PointerMove(p)
	case !pressed && a.down:
		a.down = false
		a.lock.PointerUp(p)
	}
}

func (a *app) replay() {
	p, err := a.lock.Replay(0)
	switch {
	case errors.Is(err, gesture.ErrNoTrajectory):
		a.say(false, "Nothing to replay yet")
		return
	case errors.Is(err, gesture.ErrPlaybackActive):
		return
	case err != nil:
		a.say(true, "Replay failed: %v", err)
		return
	}
	a.say(false, "Replaying...")
	go func() {
		outcome := p.Run(a.ctx)
		a.logger.Debug("replay finished", "outcome", outcome.String())
	}()
}

func (a *app) saveTrajectory() {
	points := a.lock.Trajectory()
	if len(points) == 0 {
		a.say(false, "Nothing recorded yet")
		return
	}
	data, err := trajectory.Encode(points)
	if err != nil {
		a.say(true, "Encoding trajectory: %v", err)
		return
	}
	path := filepath.Join(config.DataDir(), "last-trajectory.json")
	if err := security.WriteSecretFile(path, data); err != nil {
		a.say(true, "Saving trajectory: %v", err)
		return
	}
	a.say(false, "Saved %d samples to %s", len(points), path)
}

// handle applies a Lock event to the view.
func (a *app) handle(ev gesture.Event) {
	switch ev.Type {
	case gesture.EventProgress:
		a.view.snap = *ev.Progress
	case gesture.EventComplete:
		a.complete(*ev.Completion)
	case gesture.EventLock:
		a.view.remaining = ev.Lock.Duration
		a.say(true, "Too many wrong attempts")
	case gesture.EventUnlock:
		a.view.remaining = 0
		a.say(false, "Unlocked, draw your pattern")
	case gesture.EventTick:
		a.view.remaining = ev.Remaining
	case gesture.EventFeedback:
		if a.prefs.Sound && ev.Feedback != gesture.FeedbackNodeActivated {
			_ = a.screen.Beep()
		}
	}
}

func (a *app) complete(c gesture.Completion) {
	if c.Outcome != gesture.OutcomeEmpty {
		a.view.detail = fmt.Sprintf("%d nodes, complexity %d (%s)", len(c.Sequence), c.Complexity.Score, c.Complexity.Level)
	}

	switch c.Outcome {
	case gesture.OutcomeEmpty:
	case gesture.OutcomeSuccess:
		a.say(false, "Unlocked")
	case gesture.OutcomeFailure:
		if a.view.remaining == 0 {
			a.say(true, "Wrong pattern, %d attempts left", c.AttemptsLeft)
		}
	case gesture.OutcomeNotEnrolled:
		a.enrollStep(c.Sequence)
	case gesture.OutcomeStorageFailure:
		a.say(true, "Storage error: %v", c.Err)
	}
}

func (a *app) enrollStep(seq []int) {
	if a.enroll == nil {
		a.enroll = vault.NewEnrollment(a.vault, a.cfg.Enrollment.MinNodes)
	}

	step, err := a.enroll.Submit(seq)
	switch {
	case errors.Is(err, vault.ErrTooShort):
		a.say(true, "Connect at least %d nodes", a.enroll.MinNodes())
	case errors.Is(err, vault.ErrMismatch):
		a.say(true, "Patterns did not match, draw a new pattern")
	case err != nil:
		a.say(true, "Saving pattern: %v", err)
	case step == vault.StepConfirm:
		a.say(false, "Draw the pattern again to confirm")
	case step == vault.StepDone:
		a.enroll = nil
		a.say(false, "Pattern saved. Draw it to unlock")
	}
}
