// Package trajectory records raw pointer samples of a gesture in a bounded
// ring buffer and replays them through a tracker.
package trajectory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/geometry"
)

// DefaultCapacity is the number of samples kept before the oldest is evicted.
const DefaultCapacity = 100

// ErrUnknownKind is returned when decoding a point with an unrecognised kind.
var ErrUnknownKind = errors.New("trajectory: unknown point kind")

// Kind marks where a sample sits in the gesture.
type Kind int

const (
	KindStart Kind = iota
	KindMove
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindMove:
		return "move"
	case KindEnd:
		return "end"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindStart, KindMove, KindEnd:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "start":
		*k = KindStart
	case "move":
		*k = KindMove
	case "end":
		*k = KindEnd
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, b)
	}
	return nil
}

// Point is one recorded sample in grid-local coordinates. End samples carry
// the sequence the gesture produced.
type Point struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMs int64   `json:"timestamp"`
	Kind        Kind    `json:"type"`
	Sequence    []int   `json:"sequence,omitempty"`
}

// Position returns the sample as a geometry point.
func (p Point) Position() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y}
}

// Recorder keeps the most recent samples of the current gesture in a fixed
// arena. When full, each append overwrites the oldest sample.
type Recorder struct {
	clock clockwork.Clock

	mu    sync.Mutex
	buf   []Point
	head  int // index of the oldest sample
	count int
}

// NewRecorder creates a recorder holding up to capacity samples. A
// non-positive capacity uses DefaultCapacity and a nil clock the real one.
func NewRecorder(capacity int, clock clockwork.Clock) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{clock: clock, buf: make([]Point, capacity)}
}

// Start clears the log and records the first sample of a gesture.
func (r *Recorder) Start(p geometry.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.count = 0, 0
	r.push(r.sample(p, KindStart, nil))
}

// Move records an intermediate sample.
func (r *Recorder) Move(p geometry.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push(r.sample(p, KindMove, nil))
}

// End records the release sample with the resulting sequence.
func (r *Recorder) End(p geometry.Point, seq []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push(r.sample(p, KindEnd, append([]int(nil), seq...)))
}

// Append adds a pre-built sample, evicting the oldest when full.
func (r *Recorder) Append(pt Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.push(pt)
}

func (r *Recorder) sample(p geometry.Point, kind Kind, seq []int) Point {
	return Point{X: p.X, Y: p.Y, TimestampMs: r.clock.Now().UnixMilli(), Kind: kind, Sequence: seq}
}

func (r *Recorder) push(pt Point) {
	n := len(r.buf)
	if r.count < n {
		r.buf[(r.head+r.count)%n] = pt
		r.count++
		return
	}
	r.buf[r.head] = pt
	r.head = (r.head + 1) % n
}

// Points returns the retained samples, oldest first.
func (r *Recorder) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Point, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of retained samples.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the arena size.
func (r *Recorder) Cap() int { return len(r.buf) }

// Clear drops every sample.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.count = 0, 0
}

// Encode serialises samples as a JSON array.
func Encode(points []Point) ([]byte, error) {
	if points == nil {
		points = []Point{}
	}
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("trajectory: encode: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array produced by Encode.
func Decode(data []byte) ([]Point, error) {
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("trajectory: decode: %w", err)
	}
	return points, nil
}
