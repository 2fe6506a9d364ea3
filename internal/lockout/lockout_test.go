package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gesturelock/internal/kv"
	"gesturelock/internal/logging"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPolicy(t *testing.T, store kv.Store) (*Policy, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	p := New(DefaultConfig(), store, clock, logging.Discard())
	t.Cleanup(p.Close)
	return p, clock
}

func TestLocksAfterMaxAttempts(t *testing.T) {
	store := kv.NewMemory()
	p, _ := newPolicy(t, store)

	var locks []LockEvent
	p.SetHooks(Hooks{OnLock: func(ev LockEvent) { locks = append(locks, ev) }})

	for i := 1; i <= 4; i++ {
		st, err := p.RecordFailure()
		require.NoError(t, err)
		assert.Equal(t, i, st.FailureCount)
		assert.False(t, st.Locked)
		assert.Equal(t, 5-i, p.AttemptsLeft())
	}
	assert.Empty(t, locks)

	st, err := p.RecordFailure()
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, epoch.Add(time.Minute), st.LockedUntil)
	assert.Equal(t, 0, p.AttemptsLeft())
	assert.Equal(t, time.Minute, p.Remaining())

	require.Len(t, locks, 1)
	assert.Equal(t, 60*time.Second, locks[0].Duration)
	assert.Equal(t, epoch.Add(time.Minute), locks[0].EndTime)

	var rec record
	require.NoError(t, kv.GetJSON(store, StorageKey, &rec))
	assert.Equal(t, 5, rec.FailureCount)
	assert.Equal(t, epoch.Add(time.Minute).UnixMilli(), rec.LockoutEndTime)
	assert.Equal(t, epoch.UnixMilli(), rec.LockedAt)
}

func TestFailureWhileLockedDoesNotExtend(t *testing.T) {
	p, clock := newPolicy(t, nil)
	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}
	until := p.State().LockedUntil

	clock.Advance(30 * time.Second)
	st, err := p.RecordFailure()
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, until, st.LockedUntil)
	assert.Equal(t, 5, st.FailureCount)
}

func TestTickUnlocksAfterDuration(t *testing.T) {
	store := kv.NewMemory()
	p, clock := newPolicy(t, store)

	var unlocks []UnlockEvent
	var ticks []time.Duration
	p.SetHooks(Hooks{
		OnUnlock: func(ev UnlockEvent) { unlocks = append(unlocks, ev) },
		OnTick:   func(d time.Duration) { ticks = append(ticks, d) },
	})

	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}
	// Stop the background ticker so only explicit ticks run.
	p.Close()

	remaining, unlocked := p.Tick()
	assert.False(t, unlocked)
	assert.Equal(t, time.Minute, remaining)

	clock.Advance(59 * time.Second)
	remaining, unlocked = p.Tick()
	assert.False(t, unlocked)
	assert.Equal(t, time.Second, remaining)

	clock.Advance(time.Second)
	remaining, unlocked = p.Tick()
	assert.True(t, unlocked)
	assert.Zero(t, remaining)

	st := p.State()
	assert.False(t, st.Locked)
	assert.Zero(t, st.FailureCount)
	assert.Equal(t, 5, p.AttemptsLeft())
	assert.Zero(t, p.Remaining())

	require.Len(t, unlocks, 1)
	assert.Equal(t, ReasonExpired, unlocks[0].Reason)
	assert.Equal(t, []time.Duration{time.Minute, time.Second}, ticks)

	_, err := store.Get(StorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	remaining, unlocked = p.Tick()
	assert.False(t, unlocked, "tick while unlocked is a no-op")
	assert.Zero(t, remaining)
}

func TestBackgroundTickerUnlocks(t *testing.T) {
	p, clock := newPolicy(t, nil)

	unlocked := make(chan UnlockEvent, 1)
	p.SetHooks(Hooks{OnUnlock: func(ev UnlockEvent) { unlocked <- ev }})

	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Minute)

	select {
	case ev := <-unlocked:
		assert.Equal(t, ReasonExpired, ev.Reason)
	case <-ctx.Done():
		t.Fatal("ticker did not unlock")
	}
	assert.False(t, p.State().Locked)
}

func TestCloseFromUnlockHook(t *testing.T) {
	p, clock := newPolicy(t, nil)

	closed := make(chan struct{})
	p.SetHooks(Hooks{OnUnlock: func(UnlockEvent) {
		p.Close()
		close(closed)
	}})
	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("Close inside OnUnlock did not return")
	}
}

func TestRecordSuccessResets(t *testing.T) {
	p, _ := newPolicy(t, nil)
	_, _ = p.RecordFailure()
	_, _ = p.RecordFailure()

	st := p.RecordSuccess()
	assert.Zero(t, st.FailureCount)
	assert.Equal(t, 5, p.AttemptsLeft())
}

func TestRecordSuccessClearsLock(t *testing.T) {
	store := kv.NewMemory()
	p, _ := newPolicy(t, store)

	var reasons []string
	p.SetHooks(Hooks{OnUnlock: func(ev UnlockEvent) { reasons = append(reasons, ev.Reason) }})
	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}

	st := p.RecordSuccess()
	assert.False(t, st.Locked)
	assert.Equal(t, []string{ReasonSuccess}, reasons)
	_, err := store.Get(StorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestManualUnlock(t *testing.T) {
	p, _ := newPolicy(t, nil)
	assert.False(t, p.Unlock().Locked)

	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}
	assert.False(t, p.Unlock().Locked)
	assert.Equal(t, 5, p.AttemptsLeft())
}

func TestRehydrate(t *testing.T) {
	tests := []struct {
		name       string
		value      []byte
		wantLocked bool
		wantKept   bool
		wantCount  int
	}{
		{
			name:       "active lock",
			value:      mustJSON(t, record{FailureCount: 5, LockoutEndTime: epoch.Add(30 * time.Second).UnixMilli(), LockedAt: epoch.Add(-30 * time.Second).UnixMilli()}),
			wantLocked: true,
			wantKept:   true,
			wantCount:  5,
		},
		{
			name:      "failures below threshold",
			value:     []byte(`{"failureCount":3,"lockoutEndTime":0}`),
			wantKept:  true,
			wantCount: 3,
		},
		{
			name:  "unlocked record at threshold",
			value: []byte(`{"failureCount":5,"lockoutEndTime":0}`),
		},
		{
			name:  "negative end time",
			value: []byte(`{"failureCount":2,"lockoutEndTime":-5}`),
		},
		{
			name:  "expired lock",
			value: mustJSON(t, record{FailureCount: 5, LockoutEndTime: epoch.Add(-time.Second).UnixMilli()}),
		},
		{
			name:  "corrupt json",
			value: []byte("{garbage"),
		},
		{
			name:  "missing end time",
			value: []byte(`{"failureCount":5}`),
		},
		{
			name:  "missing failure count",
			value: mustJSON(t, record{LockoutEndTime: epoch.Add(time.Minute).UnixMilli()}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kv.NewMemory()
			require.NoError(t, store.Set(StorageKey, tt.value))
			p, clock := newPolicy(t, store)

			st, err := p.Rehydrate()
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocked, st.Locked)
			assert.Equal(t, tt.wantCount, st.FailureCount)

			_, getErr := store.Get(StorageKey)
			if tt.wantKept {
				assert.NoError(t, getErr)
			} else {
				assert.ErrorIs(t, getErr, kv.ErrNotFound)
			}

			if tt.wantLocked {
				assert.Equal(t, 30*time.Second, p.Remaining())
				p.Close()
				clock.Advance(30 * time.Second)
				_, unlocked := p.Tick()
				assert.True(t, unlocked)
			}
		})
	}
}

func TestFailuresCarryAcrossPolicies(t *testing.T) {
	store := kv.NewMemory()

	first, _ := newPolicy(t, store)
	for i := 0; i < 4; i++ {
		_, err := first.RecordFailure()
		require.NoError(t, err)
	}
	first.Close()

	var rec record
	require.NoError(t, kv.GetJSON(store, StorageKey, &rec))
	assert.Equal(t, 4, rec.FailureCount)
	assert.Zero(t, rec.LockoutEndTime)

	second, _ := newPolicy(t, store)
	st, err := second.Rehydrate()
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Equal(t, 4, st.FailureCount)
	assert.Equal(t, 1, second.AttemptsLeft())

	st, err = second.RecordFailure()
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, epoch.Add(time.Minute), st.LockedUntil)
}

func TestSuccessDropsPersistedFailures(t *testing.T) {
	store := kv.NewMemory()
	p, _ := newPolicy(t, store)
	_, _ = p.RecordFailure()
	_, err := store.Get(StorageKey)
	require.NoError(t, err)

	p.RecordSuccess()
	_, err = store.Get(StorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRehydrateNoRecord(t *testing.T) {
	p, _ := newPolicy(t, kv.NewMemory())
	st, err := p.Rehydrate()
	require.NoError(t, err)
	assert.False(t, st.Locked)
}

func TestRehydrateStorageFailure(t *testing.T) {
	store := kv.NewMemory()
	store.Fail(true)
	p, _ := newPolicy(t, store)

	st, err := p.Rehydrate()
	assert.True(t, errors.Is(err, kv.ErrStorageFailure))
	assert.False(t, st.Locked)
}

func TestPersistFailureStillLocks(t *testing.T) {
	store := kv.NewMemory()
	p, _ := newPolicy(t, store)
	store.Fail(true)

	for i := 0; i < 5; i++ {
		_, _ = p.RecordFailure()
	}
	assert.True(t, p.State().Locked)
}

func TestConfigDefaults(t *testing.T) {
	p := New(Config{MaxAttempts: 3}, nil, clockwork.NewFakeClock(), nil)
	defer p.Close()

	cfg := p.Config()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Duration)
	assert.Equal(t, time.Second, cfg.TickInterval)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
