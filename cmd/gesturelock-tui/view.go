package main

import (
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"gesturelock/internal/config"
	"gesturelock/internal/geometry"
	"gesturelock/internal/gesture"
	"gesturelock/internal/tracker"
)

// cellAspect is how many pixels tall a cell is per pixel of width. Pointer
// positions are expressed in this pixel space so the grid stays square.
const cellAspect = 2.0

const (
	headerRows = 2
	footerRows = 3
)

type palette struct {
	base    tcell.Style
	node    tcell.Style
	active  tcell.Style
	trail   tcell.Style
	live    tcell.Style
	message tcell.Style
	alert   tcell.Style
}

func paletteFor(theme string) palette {
	p := palette{
		base:    tcell.StyleDefault,
		node:    tcell.StyleDefault.Foreground(tcell.ColorGray),
		active:  tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true),
		trail:   tcell.StyleDefault.Foreground(tcell.ColorWhite),
		live:    tcell.StyleDefault.Foreground(tcell.ColorGray),
		message: tcell.StyleDefault,
		alert:   tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true),
	}
	switch theme {
	case "tech":
		p.node = p.node.Foreground(tcell.ColorTeal)
		p.active = p.active.Foreground(tcell.ColorAqua)
		p.trail = p.trail.Foreground(tcell.ColorLime)
		p.live = p.live.Foreground(tcell.ColorGreen)
		p.message = p.message.Foreground(tcell.ColorAqua)
	case "cartoon":
		p.node = p.node.Foreground(tcell.ColorPurple)
		p.active = p.active.Foreground(tcell.ColorYellow)
		p.trail = p.trail.Foreground(tcell.ColorFuchsia)
		p.live = p.live.Foreground(tcell.ColorPink)
		p.message = p.message.Foreground(tcell.ColorYellow)
	}
	return p
}

// fitGrid sizes the grid to the largest square that fits a w x h screen
// below the header and above the footer. It returns the spec and the cell
// holding the grid's top-left corner.
func fitGrid(gc config.GridConfig, w, h int) (geometry.GridSpec, int, int) {
	rows := max(h-headerRows-footerRows, 1)
	side := math.Min(float64(w-2), float64(rows)*cellAspect)
	side = math.Max(side, 1)

	spec := gesture.SpecFromConfig(gc)
	spec.Units = geometry.Converter{
		WindowWidthPx:  side * geometry.ReferenceWidth / gc.ContainerSize,
		ReferenceWidth: geometry.ReferenceWidth,
	}

	col := (w - int(side)) / 2
	row := headerRows + (rows-int(side/cellAspect))/2
	return spec, col, row
}

// pagePoint converts a screen cell to the pixel space the tracker sees.
func pagePoint(col, row int) geometry.Point {
	return geometry.Point{X: float64(col), Y: float64(row) * cellAspect}
}

// view holds what is on screen. It is only touched by the event loop.
type view struct {
	screen tcell.Screen
	colors palette

	col, row int // grid origin cell
	title    string

	snap      tracker.Snapshot
	message   string
	detail    string
	alert     bool
	remaining time.Duration
}

func (v *view) origin() geometry.Point { return pagePoint(v.col, v.row) }

func (v *view) draw() {
	s := v.screen
	s.Clear()
	_, h := s.Size()

	v.text(0, 0, v.title, v.colors.message)

	for _, seg := range v.snap.Segments {
		v.line(seg.From, seg.To, '*', v.colors.trail)
	}
	if v.snap.Live != nil {
		v.line(v.snap.Live.From, v.snap.Live.To, '.', v.colors.live)
	}
	for _, n := range v.snap.Nodes {
		v.node(n)
	}

	status := v.message
	style := v.colors.message
	if v.remaining > 0 {
		status = fmt.Sprintf("Locked, try again in %s", v.remaining.Round(time.Second))
		style = v.colors.alert
	} else if v.alert {
		style = v.colors.alert
	}
	v.text(0, h-3, status, style)
	v.text(0, h-2, v.detail, v.colors.base)
	v.text(0, h-1, "drag to draw   r replay   s save trajectory   q quit", v.colors.node)

	s.Show()
}

// node fills the cells inside a node's circle.
func (v *view) node(n tracker.NodeState) {
	glyph, style := '·', v.colors.node
	if n.Activated {
		glyph, style = '█', v.colors.active
	}
	r := n.Radius
	for dy := -r; dy <= r; dy += cellAspect {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			v.set(n.Center.X+dx, n.Center.Y+dy, glyph, style)
		}
	}
	v.set(n.Center.X, n.Center.Y, 'o', style)
}

// line rasterizes a segment given in grid-local pixels.
func (v *view) line(a, b geometry.Point, glyph rune, style tcell.Style) {
	dx := b.X - a.X
	dy := (b.Y - a.Y) / cellAspect
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		v.set(a.X, a.Y, glyph, style)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		v.set(a.X+(b.X-a.X)*t, a.Y+(b.Y-a.Y)*t, glyph, style)
	}
}

// set draws at a grid-local pixel position.
func (v *view) set(x, y float64, glyph rune, style tcell.Style) {
	col := v.col + int(math.Round(x))
	row := v.row + int(math.Round(y/cellAspect))
	v.screen.SetContent(col, row, glyph, nil, style)
}

func (v *view) text(col, row int, s string, style tcell.Style) {
	for _, r := range s {
		v.screen.SetContent(col, row, r, nil, style)
		col++
	}
}
