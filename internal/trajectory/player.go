package trajectory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/geometry"
	"gesturelock/internal/tracker"
)

// ErrInvalidSpeed is returned by NewPlayer for a non-positive speed.
var ErrInvalidSpeed = errors.New("trajectory: playback speed must be positive")

// MinInterval is the shortest delay between replayed samples.
const MinInterval = time.Millisecond

// Driver receives replayed samples. *tracker.Tracker implements it.
type Driver interface {
	Start(tracker.Pointer) (geometry.Node, bool)
	Move(tracker.Pointer) (geometry.Node, bool)
	End(tracker.Pointer) []int
	Reset()
}

// Outcome is how a playback finished.
type Outcome int

const (
	OutcomeRunning Outcome = iota
	OutcomeCompleted
	OutcomeCancelled
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Player replays one gesture from a recorded log. The played window runs
// from the first start sample to the first end sample after it. A log with
// no start is played from its first sample and one with no end to its
// tail; both finish as OutcomeMalformed. Every finish resets the driver.
//
// Driver methods run with the player's lock held and must not call back
// into the Player.
type Player struct {
	driver   Driver
	clock    clockwork.Clock
	interval time.Duration

	mu        sync.Mutex
	points    []Point
	next      int
	malformed bool
	outcome   Outcome
	sequence  []int
	done      chan struct{}
}

// NewPlayer prepares a replay of points at speed, where 2 plays twice as
// fast as recorded. A log with fewer than two playable samples finishes
// immediately.
func NewPlayer(points []Point, speed float64, driver Driver, clock clockwork.Clock) (*Player, error) {
	if speed <= 0 {
		return nil, ErrInvalidSpeed
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	window, malformed := playable(points)
	p := &Player{
		driver:    driver,
		clock:     clock,
		points:    window,
		malformed: malformed,
		done:      make(chan struct{}),
	}

	if len(window) < 2 {
		p.malformed = true
		p.mu.Lock()
		p.finish(OutcomeMalformed)
		p.mu.Unlock()
		return p, nil
	}

	total := float64(window[len(window)-1].TimestampMs - window[0].TimestampMs)
	perPoint := time.Duration(total / speed / float64(len(window)) * float64(time.Millisecond))
	p.interval = max(perPoint, MinInterval)
	return p, nil
}

// playable cuts the replay window out of a log.
func playable(points []Point) ([]Point, bool) {
	if len(points) == 0 {
		return nil, true
	}

	start, malformed := -1, false
	for i, pt := range points {
		if pt.Kind == KindStart {
			start = i
			break
		}
	}
	if start < 0 {
		start, malformed = 0, true
	}

	end := len(points) - 1
	found := false
	for i := start + 1; i < len(points); i++ {
		if points[i].Kind == KindEnd {
			end, found = i, true
			break
		}
	}
	if !found {
		malformed = true
	}

	return append([]Point(nil), points[start:end+1]...), malformed
}

// Interval returns the delay between samples.
func (p *Player) Interval() time.Duration { return p.interval }

// Len returns the number of samples in the replay window.
func (p *Player) Len() int { return len(p.points) }

// Step feeds the next sample to the driver. Once every sample has been fed,
// the following Step resets the driver and finishes. It reports whether the
// playback is still running.
func (p *Player) Step() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outcome != OutcomeRunning {
		return false
	}

	if p.next >= len(p.points) {
		if p.malformed {
			p.finish(OutcomeMalformed)
		} else {
			p.finish(OutcomeCompleted)
		}
		return false
	}

	pt := p.points[p.next]
	ev := tracker.Pointer{Position: pt.Position()}
	switch {
	case p.next == 0 || pt.Kind == KindStart:
		p.driver.Start(ev)
	case pt.Kind == KindEnd:
		p.sequence = p.driver.End(ev)
	default:
		p.driver.Move(ev)
	}
	p.next++
	return true
}

// Run steps the playback on a ticker until it finishes or ctx is done, and
// returns the outcome.
func (p *Player) Run(ctx context.Context) Outcome {
	if p.Outcome() != OutcomeRunning {
		return p.Outcome()
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Cancel()
			return p.Outcome()
		case <-p.done:
			return p.Outcome()
		case <-ticker.Chan():
			if !p.Step() {
				return p.Outcome()
			}
		}
	}
}

// Cancel stops a running playback and resets the driver.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcome == OutcomeRunning {
		p.finish(OutcomeCancelled)
	}
}

// Done is closed when the playback finishes.
func (p *Player) Done() <-chan struct{} { return p.done }

// Outcome returns OutcomeRunning until the playback finishes.
func (p *Player) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Sequence returns the sequence produced by the replayed end sample, if any.
func (p *Player) Sequence() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.sequence...)
}

// finish must be called with p.mu held.
func (p *Player) finish(o Outcome) {
	p.outcome = o
	if p.driver != nil {
		p.driver.Reset()
	}
	close(p.done)
}
