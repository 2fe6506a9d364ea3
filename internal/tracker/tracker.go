// Package tracker turns a stream of pointer events into an ordered sequence of
// activated grid nodes, plus the connecting segments a renderer draws.
//
// A Tracker is not safe for concurrent use. Its owner serialises every event
// so that each one is processed to completion before the next.
package tracker

import (
	"math"

	"gesturelock/internal/geometry"
)

// State is the tracker's gesture state.
type State int

const (
	StateIdle State = iota
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// Pointer is one raw pointer sample.
type Pointer struct {
	// Position is the pointer in page coordinates.
	Position geometry.Point

	// Origin is the page position of the grid's top-left corner. It is only
	// read on Start; later samples reuse the recorded origin.
	Origin geometry.Point
}

// NodeState pairs a grid node with its activation flag.
type NodeState struct {
	geometry.Node
	Activated bool `json:"activated"`
}

// Segment is a line between two points, as drawn by a renderer that rotates
// a line element around its start point.
type Segment struct {
	From         geometry.Point `json:"from"`
	To           geometry.Point `json:"to"`
	Length       float64        `json:"length"`
	AngleDegrees float64        `json:"angle"`
}

// NewSegment builds the segment from a to b.
func NewSegment(a, b geometry.Point) Segment {
	return Segment{
		From:         a,
		To:           b,
		Length:       geometry.Distance(a, b),
		AngleDegrees: Angle(a, b),
	}
}

// Angle returns the rotation of the line from a to b in degrees.
//
// For dx >= 0 the angle is 360*atan(dy/dx)/(2*pi); for dx < 0 it is 180 plus
// the same expression. This is not a four-quadrant atan2: vertical lines come
// out at +90 or -90 depending on the sign of dy, and straight-left lines at
// 180. A zero-length segment has angle 0.
func Angle(a, b geometry.Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	deg := 360 * math.Atan(dy/dx) / (2 * math.Pi)
	if dx < 0 {
		deg += 180
	}
	return deg
}

// Snapshot is the live view of a gesture in progress.
type Snapshot struct {
	State    State          `json:"state"`
	Nodes    []NodeState    `json:"nodes"`
	Segments []Segment      `json:"segments"`
	Live     *Segment       `json:"live,omitempty"`
	Sequence []int          `json:"sequence"`
	Pointer  geometry.Point `json:"pointer"`
}

// Tracker is the touch-tracking state machine: Idle -> Tracking -> Idle.
type Tracker struct {
	grid      *geometry.Grid
	activated []bool

	state    State
	origin   geometry.Point
	pointer  geometry.Point
	sequence []int
	segments []Segment
	live     *Segment
}

// New creates a tracker for grid.
func New(grid *geometry.Grid) *Tracker {
	t := &Tracker{}
	t.SetGrid(grid)
	return t
}

// SetGrid replaces the node set. Any gesture in progress is discarded.
func (t *Tracker) SetGrid(grid *geometry.Grid) {
	t.grid = grid
	n := 0
	if grid != nil {
		n = grid.Len()
	}
	t.activated = make([]bool, n)
	t.Reset()
}

// Grid returns the current grid.
func (t *Tracker) Grid() *geometry.Grid { return t.grid }

// State returns the gesture state.
func (t *Tracker) State() State { return t.state }

// Len returns the number of nodes activated so far.
func (t *Tracker) Len() int { return len(t.sequence) }

// Start begins a gesture. It records the grid origin, then hit-tests the
// translated point. The returned node is the one activated by this sample,
// if any.
func (t *Tracker) Start(ev Pointer) (geometry.Node, bool) {
	t.Reset()
	t.state = StateTracking
	t.origin = ev.Origin
	return t.track(ev.Position)
}

// Move continues a gesture. Samples that arrive while Idle are ignored.
func (t *Tracker) Move(ev Pointer) (geometry.Node, bool) {
	if t.state != StateTracking {
		return geometry.Node{}, false
	}
	return t.track(ev.Position)
}

// End finishes the gesture and returns the activated sequence. The release
// point is not hit-tested. All gesture state is reset whatever the outcome.
func (t *Tracker) End(Pointer) []int {
	if t.state != StateTracking {
		return nil
	}
	seq := make([]int, len(t.sequence))
	copy(seq, t.sequence)
	t.Reset()
	return seq
}

// Reset clears activation flags, segments and the sequence, and returns to Idle.
func (t *Tracker) Reset() {
	for i := range t.activated {
		t.activated[i] = false
	}
	t.state = StateIdle
	t.origin = geometry.Point{}
	t.pointer = geometry.Point{}
	t.sequence = t.sequence[:0]
	t.segments = t.segments[:0]
	t.live = nil
}

// Snapshot returns a copy of the current gesture state.
func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		State:    t.state,
		Sequence: append([]int{}, t.sequence...),
		Segments: append([]Segment{}, t.segments...),
		Pointer:  t.pointer,
	}
	if t.live != nil {
		live := *t.live
		s.Live = &live
	}
	if t.grid != nil {
		nodes := t.grid.Nodes()
		s.Nodes = make([]NodeState, len(nodes))
		for i, n := range nodes {
			s.Nodes[i] = NodeState{Node: n, Activated: t.activated[i]}
		}
	}
	return s
}

func (t *Tracker) track(page geometry.Point) (geometry.Node, bool) {
	p := page.Sub(t.origin)
	t.pointer = p

	hit, ok := t.hit(p)
	if ok {
		t.activate(hit)
	}

	if last, ok := t.last(); ok {
		live := NewSegment(last.Center, p)
		t.live = &live
	}
	return hit, ok
}

// hit scans nodes in index order. The first node whose circle contains p
// decides the result: if it is already active, nothing further is tested.
func (t *Tracker) hit(p geometry.Point) (geometry.Node, bool) {
	if t.grid == nil {
		return geometry.Node{}, false
	}
	for i, n := range t.grid.Nodes() {
		if !n.Contains(p) {
			continue
		}
		if t.activated[i] {
			return geometry.Node{}, false
		}
		return n, true
	}
	return geometry.Node{}, false
}

func (t *Tracker) activate(n geometry.Node) {
	if prev, ok := t.last(); ok {
		t.segments = append(t.segments, NewSegment(prev.Center, n.Center))
	}
	t.activated[n.Index-1] = true
	t.sequence = append(t.sequence, n.Index)
}

func (t *Tracker) last() (geometry.Node, bool) {
	if len(t.sequence) == 0 {
		return geometry.Node{}, false
	}
	return t.grid.Node(t.sequence[len(t.sequence)-1])
}
