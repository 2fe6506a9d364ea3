// Package lockout throttles repeated failed pattern attempts.
//
// A Policy counts consecutive failures. Reaching MaxAttempts locks it for
// Duration; a single owned ticker counts the lock down and unlocks it when
// the window has elapsed. The failure count and any lock are persisted
// through a kv.Store after every failure, so a restarted process (or the
// next CLI invocation) can rehydrate them.
package lockout

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/config"
	"gesturelock/internal/kv"
)

// StorageKey is the key the lock record is persisted under.
const StorageKey = "gesturelock_lock_data"

// ErrLocked is returned by RecordFailure while the policy is locked.
var ErrLocked = errors.New("lockout: locked")

// Unlock reasons.
const (
	ReasonExpired = "expired"
	ReasonSuccess = "success"
	ReasonManual  = "manual"
)

// Config holds the lockout thresholds.
type Config struct {
	MaxAttempts  int
	Duration     time.Duration
	TickInterval time.Duration
}

// DefaultConfig returns 5 attempts, a 60 second lock and a 1 second tick.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		Duration:     60 * time.Second,
		TickInterval: time.Second,
	}
}

// ConfigFrom converts the [lockout] config section.
func ConfigFrom(lc config.LockoutConfig) Config {
	return Config{
		MaxAttempts:  lc.MaxAttempts,
		Duration:     lc.Duration(),
		TickInterval: lc.TickInterval(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Duration <= 0 {
		c.Duration = d.Duration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	return c
}

// State is a snapshot of the policy.
type State struct {
	FailureCount int
	LockedUntil  time.Time
	Locked       bool
}

// LockEvent is emitted on entering the locked state.
type LockEvent struct {
	Duration     time.Duration
	EndTime      time.Time
	FailureCount int
}

// UnlockEvent is emitted on leaving the locked state.
type UnlockEvent struct {
	Reason string
}

// Hooks receive state transitions. They run on the goroutine that caused
// the transition, after the policy's lock has been released, so they may
// call back into the Policy.
type Hooks struct {
	OnLock   func(LockEvent)
	OnUnlock func(UnlockEvent)
	OnTick   func(remaining time.Duration)
}

// record is the persisted policy state. Times are Unix milliseconds and
// LockoutEndTime is 0 while unlocked.
type record struct {
	FailureCount   int   `json:"failureCount"`
	LockoutEndTime int64 `json:"lockoutEndTime"`
	LockedAt       int64 `json:"lockedAt"`
}

// Policy is the lockout state machine. It is safe for concurrent use.
type Policy struct {
	cfg    Config
	store  kv.Store
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.Mutex
	hooks  Hooks
	state  State
	ticker clockwork.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	// ticking is set while the ticker goroutine runs Tick and its hooks.
	ticking atomic.Bool
}

// New creates an unlocked Policy. A nil store disables persistence, a nil
// clock uses the real clock and a nil logger uses slog.Default().
func New(cfg Config, store kv.Store, clock clockwork.Clock, logger *slog.Logger) *Policy {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		cfg:    cfg.withDefaults(),
		store:  store,
		clock:  clock,
		logger: logger.With("component", "lockout"),
	}
}

// SetHooks replaces the transition hooks.
func (p *Policy) SetHooks(h Hooks) {
	p.mu.Lock()
	p.hooks = h
	p.mu.Unlock()
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// RecordFailure counts a failed attempt. Reaching MaxAttempts locks the
// policy. While locked nothing changes and ErrLocked is returned; the lock
// window is never extended.
func (p *Policy) RecordFailure() (State, error) {
	p.mu.Lock()

	if p.state.Locked {
		st := p.state
		p.mu.Unlock()
		return st, ErrLocked
	}

	p.state.FailureCount++
	if p.state.FailureCount < p.cfg.MaxAttempts {
		st := p.state
		p.persist(record{FailureCount: st.FailureCount})
		p.mu.Unlock()
		p.logger.Debug("attempt failed", "failure_count", st.FailureCount)
		return st, nil
	}

	now := p.clock.Now()
	p.state.Locked = true
	p.state.LockedUntil = now.Add(p.cfg.Duration)
	st := p.state
	p.persist(record{
		FailureCount:   st.FailureCount,
		LockoutEndTime: st.LockedUntil.UnixMilli(),
		LockedAt:       now.UnixMilli(),
	})
	p.startTicker()
	onLock := p.hooks.OnLock
	p.mu.Unlock()

	p.logger.Warn("locked out",
		"failure_count", st.FailureCount,
		"duration", p.cfg.Duration,
		"locked_until", st.LockedUntil)

	if onLock != nil {
		onLock(LockEvent{Duration: p.cfg.Duration, EndTime: st.LockedUntil, FailureCount: st.FailureCount})
	}
	return st, nil
}

// RecordSuccess resets the failure count. A lock, which callers should not
// be verifying under, is cleared as well.
func (p *Policy) RecordSuccess() State {
	p.mu.Lock()
	wasLocked := p.state.Locked
	hadFailures := p.state.FailureCount > 0
	p.clearLocked()
	st := p.state
	onUnlock := p.hooks.OnUnlock
	p.mu.Unlock()

	if wasLocked || hadFailures {
		p.logger.Debug("failure count reset")
	}
	if wasLocked && onUnlock != nil {
		onUnlock(UnlockEvent{Reason: ReasonSuccess})
	}
	return st
}

// Unlock clears a lock and the failure count on operator request.
func (p *Policy) Unlock() State {
	p.mu.Lock()
	wasLocked := p.state.Locked
	p.clearLocked()
	st := p.state
	onUnlock := p.hooks.OnUnlock
	p.mu.Unlock()

	if wasLocked {
		p.logger.Info("lock cleared", "reason", ReasonManual)
		if onUnlock != nil {
			onUnlock(UnlockEvent{Reason: ReasonManual})
		}
	}
	return st
}

// Tick recomputes the remaining lock time and unlocks once it reaches zero.
// The owned ticker calls it every TickInterval; hosts and tests may call it
// directly to step virtual time.
func (p *Policy) Tick() (remaining time.Duration, unlocked bool) {
	p.mu.Lock()
	if !p.state.Locked {
		p.mu.Unlock()
		return 0, false
	}

	remaining = p.state.LockedUntil.Sub(p.clock.Now())
	if remaining > 0 {
		onTick := p.hooks.OnTick
		p.mu.Unlock()
		if onTick != nil {
			onTick(remaining)
		}
		return remaining, false
	}

	p.clearLocked()
	onUnlock := p.hooks.OnUnlock
	p.mu.Unlock()

	p.logger.Info("lock expired")
	if onUnlock != nil {
		onUnlock(UnlockEvent{Reason: ReasonExpired})
	}
	return 0, true
}

// Rehydrate restores persisted state. An unlocked record restores its
// failure count. A record that is corrupt or partial is removed and treated
// as no lock. A lock whose end time has passed is removed and leaves the
// policy unlocked with no failures.
func (p *Policy) Rehydrate() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store == nil {
		return p.state, nil
	}

	data, err := p.store.Get(StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return p.state, nil
	}
	if err != nil {
		return p.state, fmt.Errorf("lockout: rehydrate: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.LockoutEndTime < 0 || rec.FailureCount <= 0 {
		p.logger.Warn("discarding unreadable lock record")
		p.remove()
		return p.state, nil
	}

	if rec.LockoutEndTime == 0 {
		if rec.FailureCount >= p.cfg.MaxAttempts {
			p.logger.Warn("discarding lock record without an end time")
			p.remove()
			return p.state, nil
		}
		p.state = State{FailureCount: rec.FailureCount}
		p.logger.Debug("failure count restored", "failure_count", rec.FailureCount)
		return p.state, nil
	}

	end := time.UnixMilli(rec.LockoutEndTime)
	if !end.After(p.clock.Now()) {
		p.logger.Info("persisted lock already expired")
		p.remove()
		return p.state, nil
	}

	p.state = State{FailureCount: rec.FailureCount, LockedUntil: end, Locked: true}
	p.startTicker()
	p.logger.Info("lock restored", "locked_until", end)
	return p.state, nil
}

// Close stops the ticker and waits for it to exit. Called while the ticker
// is running a hook, for example from OnUnlock, it does not wait, and the
// ticker exits once the hook returns.
func (p *Policy) Close() {
	p.mu.Lock()
	p.stopTicker()
	p.mu.Unlock()
	if !p.ticking.Load() {
		p.wg.Wait()
	}
}

// State returns the current state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Remaining returns the time left on the lock, or 0 when unlocked.
func (p *Policy) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Locked {
		return 0
	}
	return max(0, p.state.LockedUntil.Sub(p.clock.Now()))
}

// AttemptsLeft returns how many failures remain before a lock.
func (p *Policy) AttemptsLeft() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Locked {
		return 0
	}
	return max(0, p.cfg.MaxAttempts-p.state.FailureCount)
}

// clearLocked resets state, cancels the ticker and drops the record.
// p.mu must be held.
func (p *Policy) clearLocked() {
	dirty := p.state.Locked || p.state.FailureCount > 0
	p.state = State{}
	p.stopTicker()
	if dirty {
		p.remove()
	}
}

func (p *Policy) persist(rec record) {
	if p.store == nil {
		return
	}
	if err := kv.SetJSON(p.store, StorageKey, rec); err != nil {
		p.logger.Warn("failed to persist lock", "error", err)
	}
}

func (p *Policy) remove() {
	if p.store == nil {
		return
	}
	if err := p.store.Remove(StorageKey); err != nil {
		p.logger.Warn("failed to remove lock record", "error", err)
	}
}

// startTicker replaces any running ticker. p.mu must be held.
func (p *Policy) startTicker() {
	p.stopTicker()

	t := p.clock.NewTicker(p.cfg.TickInterval)
	done := make(chan struct{})
	p.ticker = t
	p.done = done

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-t.Chan():
				p.ticking.Store(true)
				_, unlocked := p.Tick()
				p.ticking.Store(false)
				if unlocked {
					return
				}
			}
		}
	}()
}

// stopTicker cancels the running ticker, if any. p.mu must be held.
func (p *Policy) stopTicker() {
	if p.ticker == nil {
		return
	}
	p.ticker.Stop()
	close(p.done)
	p.ticker = nil
	p.done = nil
}
