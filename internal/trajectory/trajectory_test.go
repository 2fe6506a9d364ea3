package trajectory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gesturelock/internal/geometry"
	"gesturelock/internal/tracker"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTracker lays out rows 3 on a 600-unit container with radius 60 in a
// 750px window, so node centers sit at 120, 300 and 480.
func newTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	grid, err := geometry.Layout(geometry.GridSpec{
		ContainerSize: 600,
		NodeRadius:    60,
		Rows:          3,
		Units:         geometry.Converter{WindowWidthPx: 750},
	})
	require.NoError(t, err)
	return tracker.New(grid)
}

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

func TestRecorderOrderAndEviction(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	r := NewRecorder(4, clock)
	assert.Equal(t, 4, r.Cap())

	r.Start(pt(0, 0))
	for i := 1; i <= 4; i++ {
		clock.Advance(10 * time.Millisecond)
		r.Move(pt(float64(i), 0))
	}
	clock.Advance(10 * time.Millisecond)
	r.End(pt(5, 0), []int{1, 2})

	points := r.Points()
	require.Len(t, points, 4)
	// Start and the first move were evicted.
	assert.Equal(t, []float64{2, 3, 4, 5}, []float64{points[0].X, points[1].X, points[2].X, points[3].X})
	assert.Equal(t, KindEnd, points[3].Kind)
	assert.Equal(t, []int{1, 2}, points[3].Sequence)
	assert.Equal(t, epoch.Add(50*time.Millisecond).UnixMilli(), points[3].TimestampMs)
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].TimestampMs, points[i-1].TimestampMs)
	}
}

func TestRecorderStartClears(t *testing.T) {
	r := NewRecorder(0, clockwork.NewFakeClock())
	assert.Equal(t, DefaultCapacity, r.Cap())

	r.Start(pt(1, 1))
	r.Move(pt(2, 2))
	r.Start(pt(3, 3))

	points := r.Points()
	require.Len(t, points, 1)
	assert.Equal(t, KindStart, points[0].Kind)
	assert.Equal(t, 3.0, points[0].X)

	r.Clear()
	assert.Zero(t, r.Len())
}

func TestRecorderCapsAtHundred(t *testing.T) {
	r := NewRecorder(DefaultCapacity, clockwork.NewFakeClock())
	r.Start(pt(0, 0))
	for i := 1; i < 250; i++ {
		r.Move(pt(float64(i), 0))
	}
	points := r.Points()
	require.Len(t, points, 100)
	assert.Equal(t, 150.0, points[0].X)
	assert.Equal(t, 249.0, points[99].X)
}

func TestEndCopiesSequence(t *testing.T) {
	r := NewRecorder(4, clockwork.NewFakeClock())
	seq := []int{1, 2, 3}
	r.End(pt(0, 0), seq)
	seq[0] = 9
	assert.Equal(t, []int{1, 2, 3}, r.Points()[0].Sequence)
}

func TestEncodeDecode(t *testing.T) {
	points := []Point{
		{X: 120, Y: 120, TimestampMs: 1000, Kind: KindStart},
		{X: 300, Y: 120, TimestampMs: 1100, Kind: KindMove},
		{X: 300, Y: 120, TimestampMs: 1200, Kind: KindEnd, Sequence: []int{1, 2}},
	}
	data, err := Encode(points)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type": "start"`)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, points, got)

	_, err = Decode([]byte(`[{"x":1,"y":1,"timestamp":1,"type":"hover"}]`))
	assert.True(t, errors.Is(err, ErrUnknownKind), "got %v", err)

	empty, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

// recordGesture draws 1 -> 2 -> 3 along the top row.
func recordGesture() []Point {
	return []Point{
		{X: 120, Y: 120, TimestampMs: 0, Kind: KindStart},
		{X: 210, Y: 120, TimestampMs: 100, Kind: KindMove},
		{X: 300, Y: 120, TimestampMs: 200, Kind: KindMove},
		{X: 480, Y: 120, TimestampMs: 300, Kind: KindMove},
		{X: 480, Y: 120, TimestampMs: 400, Kind: KindEnd, Sequence: []int{1, 2, 3}},
	}
}

func TestPlayerSteps(t *testing.T) {
	tr := newTracker(t)
	p, err := NewPlayer(recordGesture(), 2, tr, clockwork.NewFakeClock())
	require.NoError(t, err)

	// 400ms / 2 / 5 samples
	assert.Equal(t, 40*time.Millisecond, p.Interval())
	assert.Equal(t, 5, p.Len())

	require.True(t, p.Step())
	assert.Equal(t, tracker.StateTracking, tr.State())
	assert.Equal(t, 1, tr.Len())

	for i := 0; i < 3; i++ {
		require.True(t, p.Step())
	}
	assert.Equal(t, 3, tr.Len())

	require.True(t, p.Step()) // end sample
	assert.Equal(t, []int{1, 2, 3}, p.Sequence())
	assert.Equal(t, OutcomeRunning, p.Outcome())

	assert.False(t, p.Step())
	assert.Equal(t, OutcomeCompleted, p.Outcome())
	assert.Equal(t, tracker.StateIdle, tr.State())
	select {
	case <-p.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.False(t, p.Step())
}

func TestPlayerCancelResets(t *testing.T) {
	tr := newTracker(t)
	p, err := NewPlayer(recordGesture(), 1, tr, clockwork.NewFakeClock())
	require.NoError(t, err)

	p.Step()
	p.Step()
	p.Step()
	require.Equal(t, 2, tr.Len())

	p.Cancel()
	assert.Equal(t, OutcomeCancelled, p.Outcome())
	assert.Equal(t, tracker.StateIdle, tr.State())
	assert.Zero(t, tr.Len())
	assert.Empty(t, tr.Snapshot().Segments)

	p.Cancel()
	assert.Equal(t, OutcomeCancelled, p.Outcome())
}

func TestPlayerMalformed(t *testing.T) {
	log := recordGesture()

	tests := []struct {
		name   string
		points []Point
		steps  int
		seq    []int
	}{
		{"missing end", log[:4], 4, nil},
		{"missing start", log[1:], 4, []int{2, 3}},
		{"single point", log[:1], 0, nil},
		{"empty", nil, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t)
			p, err := NewPlayer(tt.points, 1, tr, clockwork.NewFakeClock())
			require.NoError(t, err)

			steps := 0
			for p.Step() {
				steps++
			}
			assert.Equal(t, tt.steps, steps)
			assert.Equal(t, OutcomeMalformed, p.Outcome())
			assert.Equal(t, tracker.StateIdle, tr.State())
			assert.Zero(t, tr.Len())
			if tt.seq != nil {
				assert.Equal(t, tt.seq, p.Sequence())
			}
		})
	}
}

func TestPlayerWindow(t *testing.T) {
	// Leading noise and a trailing second gesture are outside the window.
	points := append([]Point{{X: 1, Y: 1, TimestampMs: -50, Kind: KindMove}}, recordGesture()...)
	points = append(points, Point{X: 120, Y: 120, TimestampMs: 900, Kind: KindStart})

	p, err := NewPlayer(points, 1, newTracker(t), clockwork.NewFakeClock())
	require.NoError(t, err)
	assert.Equal(t, 5, p.Len())
	assert.Equal(t, 80*time.Millisecond, p.Interval())
}

func TestPlayerMinimumInterval(t *testing.T) {
	points := recordGesture()
	for i := range points {
		points[i].TimestampMs = 0
	}
	p, err := NewPlayer(points, 1, newTracker(t), clockwork.NewFakeClock())
	require.NoError(t, err)
	assert.Equal(t, MinInterval, p.Interval())
}

func TestPlayerInvalidSpeed(t *testing.T) {
	_, err := NewPlayer(recordGesture(), 0, newTracker(t), nil)
	assert.ErrorIs(t, err, ErrInvalidSpeed)
	_, err = NewPlayer(recordGesture(), -1, newTracker(t), nil)
	assert.ErrorIs(t, err, ErrInvalidSpeed)
}

func TestPlayerRun(t *testing.T) {
	tr := newTracker(t)
	clock := clockwork.NewFakeClock()
	p, err := NewPlayer(recordGesture(), 1, tr, clock)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := make(chan Outcome, 1)
	go func() { result <- p.Run(ctx) }()

	for {
		select {
		case o := <-result:
			assert.Equal(t, OutcomeCompleted, o)
			assert.Equal(t, []int{1, 2, 3}, p.Sequence())
			assert.Equal(t, tracker.StateIdle, tr.State())
			return
		case <-ctx.Done():
			t.Fatal("playback did not finish")
		case <-time.After(time.Millisecond):
			clock.Advance(p.Interval())
		}
	}
}

func TestPlayerRunCancelledByContext(t *testing.T) {
	tr := newTracker(t)
	p, err := NewPlayer(recordGesture(), 1, tr, clockwork.NewFakeClock())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, OutcomeCancelled, p.Run(ctx))
	assert.Equal(t, tracker.StateIdle, tr.State())
}
