// Package geometry lays out the node grid of a pattern lock.
//
// All sizes handed to Layout are in device-independent units, where the
// reference design width is 750 units. Every center and radius is converted
// to true pixels before it is used for hit-testing or rendering, so a Grid
// only ever answers questions in pixel space.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ReferenceWidth is the design width, in device-independent units, that maps
// onto the full window width.
const ReferenceWidth = 750.0

// Layout errors. They are caller contract violations and are reported at
// configuration time instead of producing a degenerate grid.
var (
	ErrInvalidContainer = errors.New("geometry: container size must be positive")
	ErrInvalidRadius    = errors.New("geometry: node radius must be positive and smaller than half the container")
	ErrInvalidRows      = errors.New("geometry: rows must be at least 1")
	ErrInvalidWindow    = errors.New("geometry: window width must be positive")
)

// Point is a position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Converter maps device-independent units to true pixels.
type Converter struct {
	// WindowWidthPx is the true pixel width of the window.
	WindowWidthPx float64

	// ReferenceWidth is the design width in units. Zero means 750.
	ReferenceWidth float64
}

// ToPx converts a length in units to pixels.
func (c Converter) ToPx(units float64) float64 {
	ref := c.ReferenceWidth
	if ref == 0 {
		ref = ReferenceWidth
	}
	return units / ref * c.WindowWidthPx
}

// Box is a node's placement in device-independent units, as a renderer that
// positions circle elements by their top-left corner needs it.
type Box struct {
	Left  float64 `json:"left"`
	Top   float64 `json:"top"`
	Width float64 `json:"width"`
}

// Node is one selectable point of the grid.
type Node struct {
	// Index is the 1-based, row-major position of the node.
	Index int `json:"index"`

	// Center is the node center in pixels, relative to the grid origin.
	Center Point `json:"center"`

	// Radius is the hit radius in pixels.
	Radius float64 `json:"radius"`

	// Box is the placement in device-independent units.
	Box Box `json:"box"`
}

// Contains reports whether p lies strictly inside the node's circle.
func (n Node) Contains(p Point) bool {
	return Distance(p, n.Center) < n.Radius
}

// Row returns the zero-based row of the node in a grid with the given row count.
func (n Node) Row(rows int) int { return (n.Index - 1) / rows }

// Col returns the zero-based column of the node in a grid with the given row count.
func (n Node) Col(rows int) int { return (n.Index - 1) % rows }

// GridSpec holds the inputs of a layout. Changing any of ContainerSize,
// NodeRadius or Rows requires a new Grid.
type GridSpec struct {
	// ContainerSize is the side of the square container, in units.
	ContainerSize float64

	// NodeRadius is the radius of every node, in units.
	NodeRadius float64

	// Rows is the number of rows (and columns).
	Rows int

	// Units converts units to pixels.
	Units Converter
}

// Validate checks the spec for contract violations. NaN and infinite
// inputs are rejected along with out-of-range ones.
func (s GridSpec) Validate() error {
	if !finite(s.ContainerSize) || s.ContainerSize <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidContainer, s.ContainerSize)
	}
	if !finite(s.NodeRadius) || s.NodeRadius <= 0 || s.NodeRadius >= s.ContainerSize/2 {
		return fmt.Errorf("%w: got %v for container %v", ErrInvalidRadius, s.NodeRadius, s.ContainerSize)
	}
	if s.Rows < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRows, s.Rows)
	}
	if !finite(s.Units.WindowWidthPx) || s.Units.WindowWidthPx <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWindow, s.Units.WindowWidthPx)
	}
	if !finite(s.Units.ReferenceWidth) || s.Units.ReferenceWidth < 0 {
		return fmt.Errorf("%w: reference width %v", ErrInvalidWindow, s.Units.ReferenceWidth)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Grid is an immutable node layout.
type Grid struct {
	spec  GridSpec
	nodes []Node
}

// Layout computes the node placements for spec.
//
// Nodes are spaced by margin = (container - 2*rows*radius) / (rows + 1), and
// the grid is centered so that the leftover margin is equal on all four sides.
// A very large radius may make the margin negative, which yields overlapping
// circles; that is allowed and hit-testing stays deterministic.
func Layout(spec GridSpec) (*Grid, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	rows := spec.Rows
	r := spec.NodeRadius
	margin := (spec.ContainerSize - 2*float64(rows)*r) / float64(rows+1)
	gridWidth := float64(rows)*2*r + float64(rows-1)*margin
	edge := (spec.ContainerSize - gridWidth) / 2
	pitch := 2*r + margin

	nodes := make([]Node, 0, rows*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < rows; col++ {
			left := edge + pitch*float64(col)
			top := edge + pitch*float64(row)
			nodes = append(nodes, Node{
				Index: row*rows + col + 1,
				Center: Point{
					X: spec.Units.ToPx(left + r),
					Y: spec.Units.ToPx(top + r),
				},
				Radius: spec.Units.ToPx(r),
				Box:    Box{Left: left, Top: top, Width: 2 * r},
			})
		}
	}

	return &Grid{spec: spec, nodes: nodes}, nil
}

// Spec returns the inputs the grid was built from.
func (g *Grid) Spec() GridSpec { return g.spec }

// Rows returns the row count.
func (g *Grid) Rows() int { return g.spec.Rows }

// Len returns the number of nodes.
func (g *Grid) Len() int { return len(g.nodes) }

// Size returns the container side in pixels.
func (g *Grid) Size() float64 { return g.spec.Units.ToPx(g.spec.ContainerSize) }

// Nodes returns a copy of the nodes in index order.
func (g *Grid) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Node returns the node with the given 1-based index.
func (g *Grid) Node(index int) (Node, bool) {
	if index < 1 || index > len(g.nodes) {
		return Node{}, false
	}
	return g.nodes[index-1], true
}

// Contains reports whether p lies inside the node with the given index.
func (g *Grid) Contains(p Point, index int) bool {
	n, ok := g.Node(index)
	return ok && n.Contains(p)
}

// NodeAt returns the first node, in index order, whose circle contains p.
func (g *Grid) NodeAt(p Point) (Node, bool) {
	for _, n := range g.nodes {
		if n.Contains(p) {
			return n, true
		}
	}
	return Node{}, false
}
