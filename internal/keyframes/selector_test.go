package keyframes

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelector(strategy Strategy, offset, interval float64) *Selector {
	return NewSelector(zerolog.Nop(), Options{
		Strategy:       strategy,
		BoundaryOffset: offset,
		FixedInterval:  interval,
	})
}

func TestSelectBoundaryStrategy(t *testing.T) {
	s := newSelector(StrategyBoundary, 0.1, 0)
	got := s.Select([]float64{0.0, 3.2, 7.9}, 12.0, 25)
	assert.Equal(t, []float64{0.0, 3.2, 7.9, 12.0}, got)
}

func TestMiddleStrategyTimestamps(t *testing.T) {
	got := StrategyTimestamps(StrategyMiddle, []float64{0.0, 4.0, 10.0}, 10, 25, 0.1)
	assert.Equal(t, []float64{2.0, 7.0}, got)
}

func TestSelectMiddleIncludesVideoEnds(t *testing.T) {
	s := newSelector(StrategyMiddle, 0.1, 0)
	got := s.Select([]float64{0.0, 4.0, 10.0}, 10, 25)
	assert.Equal(t, []float64{0, 2, 7, 10}, got)
}

func TestIntervalTimestamps(t *testing.T) {
	assert.Equal(t, []float64{5, 10}, IntervalTimestamps(5, 11, 25))
	assert.Nil(t, IntervalTimestamps(0, 11, 25))
	assert.Nil(t, IntervalTimestamps(5, 0, 25))

	// the last multiple may land up to half a frame past the end
	assert.Equal(t, []float64{5, 10}, IntervalTimestamps(5, 9.99, 25))
}

func TestSelectWithInterval(t *testing.T) {
	s := newSelector(StrategyBoundary, 0.1, 5)
	got := s.Select([]float64{0}, 11, 25)
	assert.Equal(t, []float64{0, 5, 10, 11}, got)
}

func TestSelectInvalidFPS(t *testing.T) {
	s := newSelector(StrategyMiddle, 0.1, 30)
	assert.Equal(t, []float64{0, 8.5}, s.Select([]float64{0, 2, 4}, 8.5, 0))
	assert.Equal(t, []float64{0, 8.5}, s.Select(nil, 8.5, -3))
	assert.Empty(t, s.Select(nil, 0, 0))
	assert.Empty(t, s.Select(nil, -1, 25))
}

func TestSelectTinyVideoMiddleIsEmpty(t *testing.T) {
	s := newSelector(StrategyMiddle, 0.1, 0)
	// a single frame leaves no segment longer than one frame period
	assert.Empty(t, s.Select([]float64{0}, 0.03, 30))
}

func TestSelectStartStrategy(t *testing.T) {
	s := newSelector(StrategyStart, 0.1, 0)
	got := s.Select([]float64{0, 3, 6}, 9, 25)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 3.1, got[1], 1e-9)
	assert.InDelta(t, 6.1, got[2], 1e-9)
	assert.Equal(t, 9.0, got[3])
}

func TestStartOffsetDoesNotPassNextBoundary(t *testing.T) {
	got := StrategyTimestamps(StrategyStart, []float64{0, 3, 3.05, 9}, 9, 25, 0.5)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0])
	assert.Equal(t, 3.05, got[1])
	assert.InDelta(t, 3.55, got[2], 1e-9)
	assert.Equal(t, 9.0, got[3])
}

func TestSelectEndStrategy(t *testing.T) {
	s := newSelector(StrategyEnd, 0.1, 0)
	got := s.Select([]float64{0, 3, 6}, 9, 25)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 2.9, got[1], 1e-9)
	assert.InDelta(t, 5.9, got[2], 1e-9)
	assert.Equal(t, 9.0, got[3])
}

func TestEndOffsetDoesNotPrecedePreviousBoundary(t *testing.T) {
	got := StrategyTimestamps(StrategyEnd, []float64{0, 3, 3.05, 9}, 9, 25, 0.5)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, 2.5, got[1], 1e-9)
	assert.Equal(t, 3.0, got[2])
	assert.Equal(t, 9.0, got[3])
}

func TestSelectAllStrategy(t *testing.T) {
	s := newSelector(StrategyAll, 0.1, 0)
	got := s.Select([]float64{0, 4}, 10, 25)
	assert.Equal(t, []float64{0, 2, 4, 7, 10}, got)
}

func TestSelectUnknownStrategyFallsBackToMiddle(t *testing.T) {
	unknown := newSelector(Strategy("sideways"), 0.1, 0)
	middle := newSelector(StrategyMiddle, 0.1, 0)
	b := []float64{0, 1.5, 6, 6.5}
	assert.Equal(t, middle.Select(b, 12, 30), unknown.Select(b, 12, 30))
}

func TestNormalizeBoundaries(t *testing.T) {
	// 0.01 is within half a frame of 0 at 25fps, 9.99 within half a frame of 10
	got := NormalizeBoundaries([]float64{5, 0.01, 9.99, math.NaN()}, 10, 25)
	assert.Equal(t, []float64{0.01, 5, 9.99}, got)

	got = NormalizeBoundaries([]float64{5}, 10, 25)
	assert.Equal(t, []float64{0, 5, 10}, got)

	got = NormalizeBoundaries([]float64{-0.5, 3}, 10, 25)
	assert.Equal(t, []float64{0, 3, 10}, got)
}

func TestSelectMiddleIgnoresNegativeBoundaries(t *testing.T) {
	s := newSelector(StrategyMiddle, 0.1, 0)
	got := s.Select([]float64{-0.5, 3}, 10, 25)
	assert.Equal(t, []float64{0, 1.5, 6.5, 10}, got)
	assert.True(t, sort.Float64sAreSorted(got))
}

func TestSelectCollapsesNearDuplicates(t *testing.T) {
	s := newSelector(StrategyBoundary, 0.1, 0)
	got := s.Select([]float64{0, 2, 2.01, 2.015, 5}, 8, 25)
	assert.Equal(t, []float64{0, 2, 5, 8}, got)
}

func TestSelectDropsOutOfRange(t *testing.T) {
	s := newSelector(StrategyBoundary, 0.1, 0)
	got := s.Select([]float64{-1, 0, 4, 30}, 10, 25)
	assert.Equal(t, []float64{0, 4, 10}, got)
}

func TestSelectDeterministic(t *testing.T) {
	s := newSelector(StrategyAll, 0.2, 7)
	b := []float64{0, 1.1, 4.4, 4.41, 9}
	assert.Equal(t, s.Select(b, 20, 29.97), s.Select(b, 20, 29.97))
}

func TestSelectProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	strategies := []Strategy{StrategyMiddle, StrategyStart, StrategyEnd, StrategyBoundary, StrategyAll}

	for i := 0; i < 500; i++ {
		duration := 0.1 + rng.Float64()*120
		fps := []float64{1, 12, 23.976, 25, 30, 60}[rng.Intn(6)]
		n := rng.Intn(12)
		boundaries := make([]float64, n)
		for j := range boundaries {
			boundaries[j] = rng.Float64() * duration
		}
		strategy := strategies[rng.Intn(len(strategies))]
		offset := rng.Float64() * 0.5
		interval := 0.0
		if rng.Intn(2) == 0 {
			interval = 1 + rng.Float64()*20
		}

		got := newSelector(strategy, offset, interval).Select(boundaries, duration, fps)

		minGap := 1 / fps / 2
		for k, ts := range got {
			assert.GreaterOrEqual(t, ts, 0.0)
			assert.LessOrEqual(t, ts, duration+minGap+1e-9)
			if k > 0 {
				assert.Greater(t, ts-got[k-1], minGap,
					"strategy=%s fps=%v duration=%v got=%v", strategy, fps, duration, got)
			}
		}
	}
}
