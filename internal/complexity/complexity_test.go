package complexity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreEmpty(t *testing.T) {
	r := Score(nil, 3)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, LevelLow, r.Level)
	assert.Equal(t, GuidanceLow, r.Guidance)
	assert.Equal(t, Breakdown{}, r.Breakdown)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		seq       []int
		rows      int
		score     int
		level     Level
		breakdown Breakdown
	}{
		{
			name:  "edge walk",
			seq:   []int{1, 2, 3, 6, 9},
			rows:  3,
			score: 56,
			level: LevelMedium,
			breakdown: Breakdown{
				LengthPoints: 10, UniquenessPoints: 30, PatternPoints: 16,
				Adjacent: 4,
			},
		},
		{
			name:  "mostly diagonal",
			seq:   []int{1, 5, 3, 7, 9, 4, 2, 6},
			rows:  3,
			score: 94,
			level: LevelHigh,
			breakdown: Breakdown{
				LengthPoints: 30, UniquenessPoints: 30, PatternPoints: 34,
				Diagonal: 6, Long: 1,
			},
		},
		{
			name:  "single long step",
			seq:   []int{1, 3},
			rows:  3,
			score: 46,
			level: LevelLow,
			breakdown: Breakdown{
				UniquenessPoints: 30, PatternPoints: 16,
				Long: 1,
			},
		},
		{
			name:  "repeated node",
			seq:   []int{1, 1, 1, 1},
			rows:  3,
			score: 33,
			level: LevelLow,
			breakdown: Breakdown{
				LengthPoints: 10, UniquenessPoints: 7.5, PatternPoints: 15,
				Adjacent: 3,
			},
		},
		{
			name:  "no rows",
			seq:   []int{1, 2, 3, 4},
			rows:  0,
			score: 40,
			level: LevelLow,
			breakdown: Breakdown{
				LengthPoints: 10, UniquenessPoints: 30,
			},
		},
		{
			name:  "four by four diagonal",
			seq:   []int{1, 6, 11, 16},
			rows:  4,
			score: 70,
			level: LevelMedium,
			breakdown: Breakdown{
				LengthPoints: 10, UniquenessPoints: 30, PatternPoints: 30,
				Diagonal: 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Score(tt.seq, tt.rows)
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.level, r.Level)
			assert.Equal(t, Guidance(tt.level), r.Guidance)
			assert.InDelta(t, tt.breakdown.LengthPoints, r.Breakdown.LengthPoints, 1e-9)
			assert.InDelta(t, tt.breakdown.UniquenessPoints, r.Breakdown.UniquenessPoints, 1e-9)
			assert.InDelta(t, tt.breakdown.PatternPoints, r.Breakdown.PatternPoints, 1e-9)
			assert.Equal(t, tt.breakdown.Diagonal, r.Breakdown.Diagonal)
			assert.Equal(t, tt.breakdown.Long, r.Breakdown.Long)
			assert.Equal(t, tt.breakdown.Adjacent, r.Breakdown.Adjacent)
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	seq := []int{7, 5, 3, 6, 9, 8}
	first := Score(seq, 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(seq, 3))
	}
	assert.Equal(t, []int{7, 5, 3, 6, 9, 8}, seq, "input must not be modified")
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelHigh, LevelFor(80))
	assert.Equal(t, LevelMedium, LevelFor(79.6))
	assert.Equal(t, LevelMedium, LevelFor(50))
	assert.Equal(t, LevelLow, LevelFor(49.9))
}

func TestScoreBounds(t *testing.T) {
	seqs := [][]int{
		{1},
		{1, 9},
		{1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 9, 7, 3, 8, 4, 6, 2},
		{36, 1, 36, 1, 22, 15},
	}
	for _, seq := range seqs {
		for rows := 1; rows <= 6; rows++ {
			r := Score(seq, rows)
			assert.GreaterOrEqual(t, r.Score, 0)
			assert.LessOrEqual(t, r.Score, 100)
			assert.LessOrEqual(t, r.Breakdown.PatternPoints, 40.0)
		}
	}
}
