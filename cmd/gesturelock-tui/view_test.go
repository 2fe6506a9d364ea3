package main

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gesturelock/internal/config"
	"gesturelock/internal/geometry"
	"gesturelock/internal/gesture"
	"gesturelock/internal/logging"
	"gesturelock/internal/tracker"
)

var testGrid = config.GridConfig{Rows: 3, ContainerSize: 600, NodeRadius: 60, WindowWidth: 750}

func TestFitGrid(t *testing.T) {
	spec, col, row := fitGrid(testGrid, 80, 25)
	g, err := geometry.Layout(spec)
	require.NoError(t, err)

	// 20 usable rows are 40 pixels tall, narrower than 78 columns.
	assert.InDelta(t, 40, g.Size(), 1e-9)
	assert.Equal(t, 20, col)
	assert.Equal(t, 2, row)

	n, _ := g.Node(1)
	assert.InDelta(t, 8, n.Center.X, 1e-9)
	assert.InDelta(t, 8, n.Center.Y, 1e-9)
}

func TestFitGridWideLimitedByWidth(t *testing.T) {
	spec, col, _ := fitGrid(testGrid, 30, 60)
	g, err := geometry.Layout(spec)
	require.NoError(t, err)
	assert.InDelta(t, 28, g.Size(), 1e-9)
	assert.Equal(t, 1, col)
}

func TestScreenCellsHitNodes(t *testing.T) {
	spec, col, row := fitGrid(testGrid, 80, 25)
	g, err := geometry.Layout(spec)
	require.NoError(t, err)

	lock, err := gesture.New(gesture.Options{Grid: g, Logger: logging.Discard()})
	require.NoError(t, err)
	defer lock.Close()

	origin := pagePoint(col, row)
	at := func(c, r int) tracker.Pointer {
		return tracker.Pointer{Position: pagePoint(c, r), Origin: origin}
	}

	// Node centers sit 8, 20 and 32 pixels in, which is 4, 10 and 16 rows.
	require.True(t, lock.PointerDown(at(col+8, row+4)))
	lock.PointerMove(at(col+20, row+4))
	lock.PointerMove(at(col+32, row+4))
	lock.PointerMove(at(col+32, row+10))
	c, ok := lock.PointerUp(at(col+32, row+10))
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3, 6}, c.Sequence)
	assert.Equal(t, gesture.OutcomeCaptured, c.Outcome)
}

func TestDrawPlacesNodes(t *testing.T) {
	s := tcell.NewSimulationScreen("")
	require.NoError(t, s.Init())
	defer s.Fini()
	s.SetSize(80, 25)

	spec, col, row := fitGrid(testGrid, 80, 25)
	g, err := geometry.Layout(spec)
	require.NoError(t, err)

	tr := tracker.New(g)
	origin := pagePoint(col, row)
	tr.Start(tracker.Pointer{Position: pagePoint(col+8, row+4), Origin: origin})

	v := &view{
		screen:  s,
		colors:  paletteFor("tech"),
		col:     col,
		row:     row,
		title:   "gesturelock",
		snap:    tr.Snapshot(),
		message: "Draw your pattern",
	}
	v.draw()

	cells, w, _ := s.GetContents()
	at := func(c, r int) rune {
		runes := cells[r*w+c].Runes
		if len(runes) == 0 {
			return ' '
		}
		return runes[0]
	}

	assert.Equal(t, 'o', at(col+8, row+4))
	assert.Equal(t, 'o', at(col+20, row+10))
	assert.Equal(t, '█', at(col+9, row+4), "node 1 is active")
	assert.Equal(t, '·', at(col+21, row+10), "node 5 is not")
	assert.Equal(t, 'g', at(0, 0))
	assert.Equal(t, 'D', at(0, 22))
}

func TestDrawLockedCountdown(t *testing.T) {
	s := tcell.NewSimulationScreen("")
	require.NoError(t, s.Init())
	defer s.Fini()
	s.SetSize(60, 20)

	v := &view{screen: s, colors: paletteFor("simple"), remaining: 42e9}
	v.draw()

	cells, w, _ := s.GetContents()
	var line []rune
	for c := 0; c < len("Locked, try again in 42s"); c++ {
		line = append(line, cells[17*w+c].Runes...)
	}
	assert.Equal(t, "Locked, try again in 42s", string(line))
}
