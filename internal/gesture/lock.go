// Package gesture is the pattern lock controller. It routes pointer input
// through the tracker, scores and verifies finished gestures, applies the
// lockout policy, records trajectories and replays them, and reports all of
// it through hooks and an event channel.
package gesture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/complexity"
	"gesturelock/internal/config"
	"gesturelock/internal/geometry"
	"gesturelock/internal/lockout"
	"gesturelock/internal/logging"
	"gesturelock/internal/metrics"
	"gesturelock/internal/tracker"
	"gesturelock/internal/trajectory"
	"gesturelock/internal/vault"
)

var (
	ErrNoGrid         = errors.New("gesture: grid is required")
	ErrPlaybackActive = errors.New("gesture: playback in progress")
	ErrNoTrajectory   = errors.New("gesture: no recorded trajectory")
	ErrClosed         = errors.New("gesture: lock closed")
)

// Verifier checks a sequence against the stored secret. *vault.Vault
// implements it. A missing secret is reported as vault.ErrNotSet.
type Verifier interface {
	Verify(seq []int) (bool, error)
}

// Options configures a Lock. Only Grid is required.
type Options struct {
	Grid *geometry.Grid

	// Verifier is nil in capture mode, where sequences are reported but
	// never checked.
	Verifier Verifier

	// Policy is owned by the Lock once passed in: its hooks are replaced
	// and Close stops it.
	Policy *lockout.Policy

	TrajectoryCapacity int
	PlaybackSpeed      float64
	PeepProof          bool

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.LockMetrics
	Audit   *logging.AuditLogger
}

// SpecFromConfig converts the [grid] section to a layout spec.
func SpecFromConfig(c config.GridConfig) geometry.GridSpec {
	return geometry.GridSpec{
		ContainerSize: c.ContainerSize,
		NodeRadius:    c.NodeRadius,
		Rows:          c.Rows,
		Units:         geometry.Converter{WindowWidthPx: c.WindowWidth, ReferenceWidth: geometry.ReferenceWidth},
	}
}

// Status is a point-in-time view of the Lock.
type Status struct {
	Lockout      lockout.State
	AttemptsLeft int
	Remaining    time.Duration
	Tracking     bool
	Replaying    bool
}

// Lock serialises pointer events, playback steps and lockout transitions.
// Each event is processed to completion under one mutex; hooks and
// subscribers are notified after it is released.
type Lock struct {
	verifier  Verifier
	policy    *lockout.Policy
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *metrics.LockMetrics
	audit     *logging.AuditLogger
	speed     float64
	peepProof bool

	mu        sync.Mutex
	tracker   *tracker.Tracker
	recorder  *trajectory.Recorder
	origin    geometry.Point
	player    *trajectory.Player
	replaying bool
	playGen   uint64
	closed    bool

	hookMu      sync.RWMutex
	hooks       Hooks
	subscribers []*subscriber
	subsClosed  bool
}

// New creates a Lock. Call Restore afterwards to pick up a persisted lock.
func New(opts Options) (*Lock, error) {
	if opts.Grid == nil {
		return nil, ErrNoGrid
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Policy == nil {
		opts.Policy = lockout.New(lockout.DefaultConfig(), nil, opts.Clock, opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewLockMetrics(nil)
	}
	if opts.PlaybackSpeed <= 0 {
		opts.PlaybackSpeed = 1
	}

	l := &Lock{
		verifier:  opts.Verifier,
		policy:    opts.Policy,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "gesture"),
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		speed:     opts.PlaybackSpeed,
		peepProof: opts.PeepProof,
		tracker:   tracker.New(opts.Grid),
		recorder:  trajectory.NewRecorder(opts.TrajectoryCapacity, opts.Clock),
	}

	// Policy hooks fire from its ticker goroutine or from calls made outside
	// l.mu, so they only dispatch. Lock events are derived in evaluate.
	l.policy.SetHooks(lockout.Hooks{
		OnUnlock: func(ev lockout.UnlockEvent) {
			l.metrics.RecordUnlock()
			_ = l.audit.LogUnlock(context.Background(), ev.Reason)
			l.dispatch(l.event(EventUnlock, func(e *Event) { e.Unlock = &ev }))
		},
		OnTick: func(remaining time.Duration) {
			l.dispatch(l.event(EventTick, func(e *Event) { e.Remaining = remaining }))
		},
	})
	return l, nil
}

// SetHooks replaces the hooks.
func (l *Lock) SetHooks(h Hooks) {
	l.hookMu.Lock()
	l.hooks = h
	l.hookMu.Unlock()
}

// Subscribe returns a channel receiving every event. Slow subscribers miss
// progress, tick and feedback events instead of blocking the Lock, but
// completions and lock transitions are kept. The channel is closed by Close.
func (l *Lock) Subscribe() <-chan Event {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()

	sub := newSubscriber()
	if l.subsClosed {
		close(sub.ch)
		return sub.ch
	}
	l.subscribers = append(l.subscribers, sub)
	return sub.ch
}

// Restore loads a persisted lock. When one is still active a lock event is
// emitted with the remaining duration.
func (l *Lock) Restore() (lockout.State, error) {
	st, err := l.policy.Rehydrate()
	if err != nil {
		return st, err
	}
	l.metrics.ConsecutiveFailed.Set(int64(st.FailureCount))
	if st.Locked {
		ev := lockout.LockEvent{
			Duration:     st.LockedUntil.Sub(l.clock.Now()),
			EndTime:      st.LockedUntil,
			FailureCount: st.FailureCount,
		}
		l.metrics.Locked.Set(1)
		l.dispatch(l.event(EventLock, func(e *Event) { e.Lock = &ev }))
	}
	return st, nil
}

// PointerDown starts a gesture. It reports false when input is dropped
// because the Lock is locked or replaying.
func (l *Lock) PointerDown(ev tracker.Pointer) bool {
	l.mu.Lock()
	if l.closed || l.replaying {
		l.mu.Unlock()
		return false
	}
	if l.policy.State().Locked {
		l.mu.Unlock()
		l.dispatch(l.feedback(FeedbackLocked))
		return false
	}

	_, hit := l.tracker.Start(ev)
	l.origin = ev.Origin
	l.recorder.Start(ev.Position.Sub(ev.Origin))
	evs := []Event{l.progress()}
	if hit {
		evs = append(evs, l.feedback(FeedbackNodeActivated))
	}
	l.mu.Unlock()

	l.dispatch(evs...)
	return true
}

// PointerMove continues a gesture. Samples outside a gesture are dropped.
func (l *Lock) PointerMove(ev tracker.Pointer) bool {
	l.mu.Lock()
	if l.replaying || l.tracker.State() != tracker.StateTracking {
		l.mu.Unlock()
		return false
	}

	_, hit := l.tracker.Move(ev)
	l.recorder.Move(ev.Position.Sub(l.origin))
	evs := []Event{l.progress()}
	if hit {
		evs = append(evs, l.feedback(FeedbackNodeActivated))
	}
	l.mu.Unlock()

	l.dispatch(evs...)
	return true
}

// PointerUp ends a gesture, scores it, verifies it and applies the lockout
// policy. It reports false when there was no gesture to end.
func (l *Lock) PointerUp(ev tracker.Pointer) (Completion, bool) {
	l.mu.Lock()
	if l.replaying || l.tracker.State() != tracker.StateTracking {
		l.mu.Unlock()
		return Completion{}, false
	}

	seq := l.tracker.End(ev)
	l.recorder.End(ev.Position.Sub(l.origin), seq)
	c := Completion{Sequence: seq, Trajectory: l.recorder.Points()}
	evs := []Event{l.progress()}
	evs = append(evs, l.evaluate(&c)...)
	done := c
	evs = append(evs, l.event(EventComplete, func(e *Event) { e.Completion = &done }))
	l.mu.Unlock()

	l.dispatch(evs...)
	return c, true
}

// PointerCancel abandons a gesture without counting it.
func (l *Lock) PointerCancel() {
	l.mu.Lock()
	if l.replaying || l.tracker.State() != tracker.StateTracking {
		l.mu.Unlock()
		return
	}
	l.tracker.Reset()
	ev := l.progress()
	l.mu.Unlock()

	l.dispatch(ev)
}

// evaluate fills in c and returns the events it produced. l.mu must be held.
func (l *Lock) evaluate(c *Completion) []Event {
	if len(c.Sequence) == 0 {
		c.Outcome = OutcomeEmpty
		c.AttemptsLeft = l.policy.AttemptsLeft()
		c.FailureCount = l.policy.State().FailureCount
		return nil
	}

	c.Complexity = complexity.Score(c.Sequence, l.tracker.Grid().Rows())
	l.metrics.RecordGesture(len(c.Sequence), c.Complexity.Score)

	if l.verifier == nil {
		c.Outcome = OutcomeCaptured
		return nil
	}

	ctx := context.Background()
	ok, err := l.verifier.Verify(c.Sequence)
	switch {
	case errors.Is(err, vault.ErrNotSet):
		c.Outcome = OutcomeNotEnrolled
		c.Err = err
		c.AttemptsLeft = l.policy.AttemptsLeft()
		return nil

	case err != nil:
		c.Outcome = OutcomeStorageFailure
		c.Err = err
		c.AttemptsLeft = l.policy.AttemptsLeft()
		c.FailureCount = l.policy.State().FailureCount
		l.metrics.RecordStorageFailure()
		l.logger.Error("verify failed", "error", err)
		_ = l.audit.LogError(ctx, "verify", err)
		return nil

	case ok:
		l.policy.RecordSuccess()
		c.Outcome = OutcomeSuccess
		c.Success = true
		c.AttemptsLeft = l.policy.AttemptsLeft()
		l.metrics.RecordAttempt(true, 0)
		_ = l.audit.LogAttempt(ctx, true, 0, len(c.Sequence))
		l.logger.Info("pattern accepted", "nodes", len(c.Sequence))
		return []Event{l.feedback(FeedbackSuccess)}
	}

	st, err := l.policy.RecordFailure()
	c.Outcome = OutcomeFailure
	c.FailureCount = st.FailureCount
	c.AttemptsLeft = l.policy.AttemptsLeft()
	if err != nil {
		c.Err = err
		return []Event{l.feedback(FeedbackLocked)}
	}

	l.metrics.RecordAttempt(false, st.FailureCount)
	_ = l.audit.LogAttempt(ctx, false, st.FailureCount, len(c.Sequence))
	l.logger.Info("pattern rejected", "failure_count", st.FailureCount, "attempts_left", c.AttemptsLeft)

	evs := []Event{l.feedback(FeedbackFailure)}
	if st.Locked {
		lev := lockout.LockEvent{
			Duration:     l.policy.Config().Duration,
			EndTime:      st.LockedUntil,
			FailureCount: st.FailureCount,
		}
		l.metrics.RecordLock()
		_ = l.audit.LogLock(ctx, st.FailureCount, st.LockedUntil)
		evs = append(evs,
			l.event(EventLock, func(e *Event) { e.Lock = &lev }),
			l.feedback(FeedbackLocked))
	}
	return evs
}

// Unlock clears a lock on operator request.
func (l *Lock) Unlock() lockout.State {
	return l.policy.Unlock()
}

// Tick steps the lockout countdown. Hosts driving virtual time call it; the
// policy's own ticker calls it otherwise.
func (l *Lock) Tick() (time.Duration, bool) {
	return l.policy.Tick()
}

// Replay plays back the most recent recorded gesture. A zero speed uses the
// configured playback speed.
func (l *Lock) Replay(speed float64) (*trajectory.Player, error) {
	l.mu.Lock()
	points := l.recorder.Points()
	l.mu.Unlock()

	if len(points) == 0 {
		return nil, ErrNoTrajectory
	}
	return l.Play(points, speed)
}

// Play replays points through the tracker. Real input is dropped until the
// playback finishes or is cancelled, and playback never verifies or counts
// an attempt. The returned Player is driven by Step or Run.
func (l *Lock) Play(points []trajectory.Point, speed float64) (*trajectory.Player, error) {
	if speed == 0 {
		speed = l.speed
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.replaying {
		l.mu.Unlock()
		return nil, ErrPlaybackActive
	}
	l.tracker.Reset()
	l.replaying = true
	l.playGen++
	gen := l.playGen
	l.mu.Unlock()

	p, err := trajectory.NewPlayer(points, speed, &playbackDriver{lock: l, gen: gen, started: l.clock.Now()}, l.clock)

	l.mu.Lock()
	if err != nil {
		if l.playGen == gen {
			l.replaying = false
		}
		l.mu.Unlock()
		return nil, err
	}
	if l.replaying && l.playGen == gen {
		l.player = p
	}
	l.mu.Unlock()

	l.metrics.RecordPlayback()
	l.logger.Debug("playback started", "points", p.Len(), "interval", p.Interval())
	return p, nil
}

// CancelPlayback stops a running playback and restores input.
func (l *Lock) CancelPlayback() {
	l.mu.Lock()
	p := l.player
	l.mu.Unlock()

	if p != nil {
		p.Cancel()
	}
}

// SetGrid swaps the layout. Any gesture in progress and the recorded
// trajectory are discarded.
func (l *Lock) SetGrid(grid *geometry.Grid) error {
	if grid == nil {
		return ErrNoGrid
	}
	l.mu.Lock()
	if l.replaying {
		l.mu.Unlock()
		return ErrPlaybackActive
	}
	l.tracker.SetGrid(grid)
	l.recorder.Clear()
	ev := l.progress()
	l.mu.Unlock()

	l.dispatch(ev)
	return nil
}

// Grid returns the current layout.
func (l *Lock) Grid() *geometry.Grid {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracker.Grid()
}

// Snapshot returns the live gesture view.
func (l *Lock) Snapshot() tracker.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Trajectory returns the recorded samples of the latest gesture.
func (l *Lock) Trajectory() []trajectory.Point {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recorder.Points()
}

// Status returns the current lock and input state.
func (l *Lock) Status() Status {
	l.mu.Lock()
	tracking := l.tracker.State() == tracker.StateTracking
	replaying := l.replaying
	l.mu.Unlock()

	return Status{
		Lockout:      l.policy.State(),
		AttemptsLeft: l.policy.AttemptsLeft(),
		Remaining:    l.policy.Remaining(),
		Tracking:     tracking,
		Replaying:    replaying,
	}
}

// Close cancels playback, stops the lockout ticker and closes subscriber
// channels.
func (l *Lock) Close() {
	l.CancelPlayback()
	l.policy.Close()

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.hookMu.Lock()
	for _, sub := range l.subscribers {
		close(sub.ch)
	}
	l.subscribers = nil
	l.subsClosed = true
	l.hookMu.Unlock()
}

// snapshot hides the trail when peep-proof is on. l.mu must be held.
func (l *Lock) snapshot() tracker.Snapshot {
	s := l.tracker.Snapshot()
	if l.peepProof {
		s.Segments = nil
		s.Live = nil
	}
	return s
}

func (l *Lock) progress() Event {
	s := l.snapshot()
	return l.event(EventProgress, func(e *Event) { e.Progress = &s })
}

func (l *Lock) feedback(f Feedback) Event {
	return l.event(EventFeedback, func(e *Event) { e.Feedback = f })
}

func (l *Lock) event(t EventType, fill func(*Event)) Event {
	e := Event{Type: t, Timestamp: l.clock.Now()}
	fill(&e)
	return e
}

// dispatch calls hooks and feeds subscribers. It must not be called with
// l.mu held.
func (l *Lock) dispatch(evs ...Event) {
	l.hookMu.RLock()
	h := l.hooks
	l.hookMu.RUnlock()

	for _, ev := range evs {
		switch ev.Type {
		case EventProgress:
			if h.OnProgress != nil {
				h.OnProgress(*ev.Progress)
			}
		case EventComplete:
			if h.OnComplete != nil {
				h.OnComplete(*ev.Completion)
			}
		case EventLock:
			if h.OnLock != nil {
				h.OnLock(*ev.Lock)
			}
		case EventUnlock:
			if h.OnUnlock != nil {
				h.OnUnlock(*ev.Unlock)
			}
		case EventTick:
			if h.OnTick != nil {
				h.OnTick(ev.Remaining)
			}
		case EventFeedback:
			if h.OnFeedback != nil {
				h.OnFeedback(ev.Feedback)
			}
		}

		l.hookMu.RLock()
		for _, sub := range l.subscribers {
			sub.send(ev)
		}
		l.hookMu.RUnlock()
	}
}
