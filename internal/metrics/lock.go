package metrics

import "time"

// LockMetrics holds the metrics recorded by the gesture lock controller.
type LockMetrics struct {
	registry *Registry

	AttemptsTotal        *Counter
	FailuresTotal        *Counter
	SuccessesTotal       *Counter
	LocksTotal           *Counter
	UnlocksTotal         *Counter
	StorageFailuresTotal *Counter
	PlaybacksTotal       *Counter

	Locked            *Gauge
	ConsecutiveFailed *Gauge

	PatternComplexity *Histogram
	PatternLength     *Histogram
	PlaybackDuration  *Histogram
}

// NewLockMetrics registers the lock metrics on registry. A nil registry gets
// a fresh one in the "gesturelock" namespace.
func NewLockMetrics(registry *Registry) *LockMetrics {
	if registry == nil {
		registry = NewRegistry("gesturelock")
	}

	return &LockMetrics{
		registry: registry,

		AttemptsTotal: registry.RegisterCounter(
			"attempts_total", "Completed gestures compared against the stored pattern", nil),
		FailuresTotal: registry.RegisterCounter(
			"failures_total", "Gestures that did not match the stored pattern", nil),
		SuccessesTotal: registry.RegisterCounter(
			"successes_total", "Gestures that matched the stored pattern", nil),
		LocksTotal: registry.RegisterCounter(
			"locks_total", "Times the lockout threshold was reached", nil),
		UnlocksTotal: registry.RegisterCounter(
			"unlocks_total", "Times a lockout ended", nil),
		StorageFailuresTotal: registry.RegisterCounter(
			"storage_failures_total", "Attempts aborted by a storage fault", nil),
		PlaybacksTotal: registry.RegisterCounter(
			"playbacks_total", "Trajectory replays started", nil),

		Locked: registry.RegisterGauge(
			"locked", "1 while input is locked out", nil),
		ConsecutiveFailed: registry.RegisterGauge(
			"consecutive_failures", "Failures since the last success or unlock", nil),

		PatternComplexity: registry.RegisterHistogram(
			"pattern_complexity", "Complexity score of completed gestures", nil, ScoreBuckets),
		PatternLength: registry.RegisterHistogram(
			"pattern_nodes", "Node count of completed gestures", nil,
			[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 12, 16, 25, 36}),
		PlaybackDuration: registry.RegisterHistogram(
			"playback_duration_seconds", "Wall time of finished trajectory replays", nil, DurationBuckets),
	}
}

// Registry returns the registry the metrics live on.
func (m *LockMetrics) Registry() *Registry {
	return m.registry
}

// RecordGesture records the shape of a completed gesture.
func (m *LockMetrics) RecordGesture(nodes, score int) {
	m.PatternLength.Observe(float64(nodes))
	m.PatternComplexity.Observe(float64(score))
}

// RecordAttempt records a verification result and the running failure count.
func (m *LockMetrics) RecordAttempt(success bool, failureCount int) {
	m.AttemptsTotal.Inc()
	if success {
		m.SuccessesTotal.Inc()
	} else {
		m.FailuresTotal.Inc()
	}
	m.ConsecutiveFailed.Set(int64(failureCount))
}

// RecordLock records entry into the lockout state.
func (m *LockMetrics) RecordLock() {
	m.LocksTotal.Inc()
	m.Locked.Set(1)
}

// RecordUnlock records the end of a lockout.
func (m *LockMetrics) RecordUnlock() {
	m.UnlocksTotal.Inc()
	m.Locked.Set(0)
	m.ConsecutiveFailed.Set(0)
}

// RecordStorageFailure records an attempt that could not be verified.
func (m *LockMetrics) RecordStorageFailure() {
	m.StorageFailuresTotal.Inc()
}

// RecordPlayback records the start of a trajectory replay.
func (m *LockMetrics) RecordPlayback() {
	m.PlaybacksTotal.Inc()
}

// RecordPlaybackDone records how long a replay ran, cancelled or not.
func (m *LockMetrics) RecordPlaybackDone(d time.Duration) {
	m.PlaybackDuration.ObserveDuration(d)
}
