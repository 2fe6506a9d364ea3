package gesture

import (
	"time"

	"gesturelock/internal/geometry"
	"gesturelock/internal/tracker"
)

// playbackDriver feeds replayed samples into the Lock's tracker. gen ties it
// to one Play call so a stale player cannot touch a newer playback.
//
// The player calls these methods with its own lock held, so the Lock must
// never call into a Player while holding l.mu.
type playbackDriver struct {
	lock    *Lock
	gen     uint64
	started time.Time
}

func (d *playbackDriver) Start(ev tracker.Pointer) (geometry.Node, bool) {
	return d.apply(func(t *tracker.Tracker) (geometry.Node, bool) { return t.Start(ev) })
}

func (d *playbackDriver) Move(ev tracker.Pointer) (geometry.Node, bool) {
	return d.apply(func(t *tracker.Tracker) (geometry.Node, bool) { return t.Move(ev) })
}

func (d *playbackDriver) End(ev tracker.Pointer) []int {
	var seq []int
	d.apply(func(t *tracker.Tracker) (geometry.Node, bool) {
		seq = t.End(ev)
		return geometry.Node{}, false
	})
	return seq
}

// Reset is called once when the player finishes. It hands input back.
func (d *playbackDriver) Reset() {
	l := d.lock
	l.mu.Lock()
	if l.playGen != d.gen {
		l.mu.Unlock()
		return
	}
	l.tracker.Reset()
	l.replaying = false
	l.player = nil
	ev := l.progress()
	l.mu.Unlock()

	l.metrics.RecordPlaybackDone(l.clock.Since(d.started))
	l.dispatch(ev)
}

func (d *playbackDriver) apply(fn func(*tracker.Tracker) (geometry.Node, bool)) (geometry.Node, bool) {
	l := d.lock
	l.mu.Lock()
	if !l.replaying || l.playGen != d.gen {
		l.mu.Unlock()
		return geometry.Node{}, false
	}
	n, ok := fn(l.tracker)
	ev := l.progress()
	l.mu.Unlock()

	l.dispatch(ev)
	return n, ok
}
