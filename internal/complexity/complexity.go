// Package complexity rates how hard a pattern sequence is to guess.
package complexity

import "math"

// Level is the qualitative rating of a score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Guidance text shown next to each level.
const (
	GuidanceLow    = "Low complexity, easy to crack. Use at least 6 nodes and include diagonals."
	GuidanceMedium = "Medium complexity. Consider a longer or more intricate pattern."
	GuidanceHigh   = "High complexity, good security."
)

// Raw points per step kind, before normalisation.
const (
	diagonalPoints = 10
	longPoints     = 8
	adjacentPoints = 5
)

// Breakdown itemises a score.
type Breakdown struct {
	LengthPoints     float64 `json:"lengthPoints"`
	UniquenessPoints float64 `json:"uniquenessPoints"`
	PatternPoints    float64 `json:"patternPoints"`

	Diagonal int `json:"diagonal"`
	Long     int `json:"long"`
	Adjacent int `json:"adjacent"`
}

// Result is the rating of one sequence.
type Result struct {
	Score     int       `json:"score"`
	Level     Level     `json:"level"`
	Guidance  string    `json:"guidance"`
	Breakdown Breakdown `json:"breakdown"`
}

// Score rates seq on a grid with the given row count. It is pure: arbitrary
// sequences are accepted, including ones with repeated nodes. A rows value
// of zero or less is a caller error and scores no pattern points.
func Score(seq []int, rows int) Result {
	if len(seq) == 0 {
		return result(0, 0, Breakdown{})
	}

	var b Breakdown
	b.LengthPoints = lengthPoints(len(seq))

	distinct := make(map[int]struct{}, len(seq))
	for _, n := range seq {
		distinct[n] = struct{}{}
	}
	b.UniquenessPoints = float64(len(distinct)) / float64(len(seq)) * 30

	if rows > 0 {
		raw := 0
		for i := 1; i < len(seq); i++ {
			switch classify(seq[i-1], seq[i], rows) {
			case stepDiagonal:
				b.Diagonal++
				raw += diagonalPoints
			case stepLong:
				b.Long++
				raw += longPoints
			default:
				b.Adjacent++
				raw += adjacentPoints
			}
		}
		b.PatternPoints = math.Min(40, float64(raw)/float64(len(seq)*10)*40)
	}

	total := b.LengthPoints + b.UniquenessPoints + b.PatternPoints
	return result(int(math.Round(total)), total, b)
}

// LevelFor maps a score to its level.
func LevelFor(score float64) Level {
	switch {
	case score >= 80:
		return LevelHigh
	case score >= 50:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Guidance returns the fixed guidance text for l.
func Guidance(l Level) string {
	switch l {
	case LevelHigh:
		return GuidanceHigh
	case LevelMedium:
		return GuidanceMedium
	default:
		return GuidanceLow
	}
}

// result classifies on the unrounded total, so 79.6 is still medium.
func result(score int, total float64, b Breakdown) Result {
	l := LevelFor(total)
	return Result{Score: score, Level: l, Guidance: Guidance(l), Breakdown: b}
}

func lengthPoints(n int) float64 {
	switch {
	case n >= 8:
		return 30
	case n >= 6:
		return 20
	case n >= 4:
		return 10
	default:
		return 0
	}
}

type step int

const (
	stepAdjacent step = iota
	stepLong
	stepDiagonal
)

// classify looks at the zero-based row/col change between two 1-based
// indices. Diagonal takes precedence over long.
func classify(from, to, rows int) step {
	dr := abs((from-1)/rows - (to-1)/rows)
	dc := abs((from-1)%rows - (to-1)%rows)
	switch {
	case dr != 0 && dc != 0:
		return stepDiagonal
	case dr >= 2 || dc >= 2:
		return stepLong
	default:
		return stepAdjacent
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
