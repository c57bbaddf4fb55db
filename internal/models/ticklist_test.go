package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-trader/internal/analysis"
)

const day = 86400

func ticksFromHighLow(highs, lows []int) []Tick {
	ticks := make([]Tick, len(highs))
	for i := range highs {
		ticks[i] = Tick{
			Timestamp: int64((i + 1) * day),
			High:      float64(highs[i]),
			Low:       float64(lows[i]),
			Open:      float64(lows[i]),
			Close:     float64(highs[i]),
			Volume:    100,
		}
	}
	return ticks
}

// bruteDistance returns the distance to the nearest tick in direction step
// whose value dominates v[i], or len(v) when there is none.
func bruteDistance(v []int, i, step int, dominates func(other, own int) bool) int {
	for j := i + step; j >= 0 && j < len(v); j += step {
		if dominates(v[j], v[i]) {
			if step > 0 {
				return j - i
			}
			return i - j
		}
	}
	return len(v)
}

// Feature: pattern-trader, Property 1: Distance columns match a brute force scan
//
// For any series, HigherBefore/HigherAfter/LowerBefore/LowerAfter equal the
// distance to the nearest dominating tick, with the earlier tick winning ties.
func TestProperty_DistanceColumns(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("distance columns match brute force", prop.ForAll(
		func(highs []int) bool {
			lows := make([]int, len(highs))
			for i, h := range highs {
				lows[i] = h - 1 - i%3
			}
			list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, 3)

			geq := func(o, own int) bool { return o >= own }
			gt := func(o, own int) bool { return o > own }
			leq := func(o, own int) bool { return o <= own }
			lt := func(o, own int) bool { return o < own }

			for i, tk := range list.Ticks() {
				if tk.HigherBefore != bruteDistance(highs, i, -1, geq) ||
					tk.HigherAfter != bruteDistance(highs, i, 1, gt) ||
					tk.LowerBefore != bruteDistance(lows, i, -1, leq) ||
					tk.LowerAfter != bruteDistance(lows, i, 1, lt) {
					t.Logf("mismatch at %d: %+v", i, tk)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 12)),
	))

	properties.Property("local extrema flags follow the distance columns", prop.ForAll(
		func(highs []int, window int) bool {
			lows := make([]int, len(highs))
			for i, h := range highs {
				lows[i] = h - 2
			}
			list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, window)
			for _, tk := range list.Ticks() {
				if tk.IsLocalMax != (tk.HigherBefore > window && tk.HigherAfter > window) {
					return false
				}
				if tk.IsLocalMin != (tk.LowerBefore > window && tk.LowerAfter > window) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 50)),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestNewTickList_PositionsAndFVar(t *testing.T) {
	list := NewTickList(ticksFromHighLow([]int{3, 4, 5}, []int{1, 2, 3}), analysis.PeriodDaily, 1)

	require.Equal(t, 3, list.Len())
	for i, tk := range list.Ticks() {
		assert.Equal(t, i, tk.Position)
		assert.InDelta(t, float64(i+1), tk.FVar, 1e-9)
	}

	intraday := NewTickList([]Tick{{Timestamp: 1000, High: 1, Low: 1}}, analysis.PeriodIntraday, 1)
	assert.InDelta(t, 1000.0, intraday.First().FVar, 1e-9)
}

func TestNewTickList_LocalExtrema(t *testing.T) {
	highs := []int{10, 11, 12, 20, 12, 11, 10, 9, 10, 11, 12}
	lows := []int{9, 10, 11, 19, 11, 10, 9, 1, 9, 10, 11}
	list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, 2)

	positions := func(l *TickList) []int {
		var out []int
		for _, tk := range l.Ticks() {
			out = append(out, tk.Position)
		}
		return out
	}

	// The series ends are extrema whenever nothing dominates them within the window.
	assert.Equal(t, []int{3, 10}, positions(list.MaxTicks()))
	assert.Equal(t, []int{0, 7}, positions(list.MinTicks()))
	assert.Equal(t, []int{0, 3, 7, 10}, positions(list.MinMaxTicks()))

	top, _ := list.ByPosition(3)
	assert.True(t, top.IsGlobalMax)

	// Views keep series positions.
	tk, ok := list.MinMaxTicks().ByPosition(7)
	require.True(t, ok)
	assert.Equal(t, 1.0, tk.Low)
	_, ok = list.MinMaxTicks().ByPosition(1)
	assert.False(t, ok)
}

func TestTickList_EqualHighsEarlierWins(t *testing.T) {
	highs := []int{1, 2, 5, 2, 1, 2, 5, 2, 1}
	lows := []int{0, 1, 4, 1, 0, 1, 4, 1, 0}
	list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, 1)

	first, _ := list.ByPosition(2)
	second, _ := list.ByPosition(6)
	assert.Equal(t, 9, first.HigherBefore)
	assert.Equal(t, 9, first.HigherAfter)
	assert.Equal(t, 4, second.HigherBefore)
	assert.Equal(t, 9, second.HigherAfter)
}

func TestTickList_WithoutHiddenTicks(t *testing.T) {
	highs := []int{1, 2, 6, 2, 5, 2, 1, 1, 1, 1, 1}
	lows := []int{0, 1, 5, 1, 4, 1, 0, 0, 0, 0, 0}
	list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, 1)

	maxPositions := func(l *TickList) []int {
		var out []int
		for _, tk := range l.Ticks() {
			if tk.IsLocalMax {
				out = append(out, tk.Position)
			}
		}
		return out
	}
	assert.Equal(t, []int{2, 4}, maxPositions(list.MaxTicks()))
	assert.Equal(t, []int{2}, maxPositions(list.WithoutHiddenTicks(3)))
	assert.Equal(t, []int{2, 4}, maxPositions(list.WithoutHiddenTicks(1)))
}

func TestTickList_SimpleMovingAverage(t *testing.T) {
	highs := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	lows := make([]int, len(highs))
	list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, 1)

	sma := list.SimpleMovingAverage(3)
	require.Len(t, sma, 10)
	assert.Equal(t, 0.0, sma[0])
	assert.Equal(t, 0.0, sma[1])
	assert.InDelta(t, 2.0, sma[2], 1e-9)
	assert.InDelta(t, 9.0, sma[9], 1e-9)

	short := list.Slice(0, 1).SimpleMovingAverage(3)
	assert.Equal(t, []float64{0, 0}, short)
}

func TestTickList_RangeQueries(t *testing.T) {
	highs := []int{5, 7, 9, 7, 5, 7, 9, 7, 5}
	lows := []int{4, 6, 8, 6, 1, 6, 8, 6, 4}
	list := NewTickList(ticksFromHighLow(highs, lows), analysis.PeriodDaily, 1)

	hi, ok := list.MaxHighTick(0, 8)
	require.True(t, ok)
	assert.Equal(t, 2, hi.Position)

	lo, ok := list.MinLowTick(3, 8)
	require.True(t, ok)
	assert.Equal(t, 4, lo.Position)

	assert.Len(t, list.Between(2, 4), 3)
	assert.Len(t, list.MaxTicksForRange(0, 8, 8), 2)
	assert.Len(t, list.MinTicksForRange(0, 8, 2), 1)
	assert.InDelta(t, 100.0, list.MeanVolume(0, 8), 1e-9)

	minLow, maxHigh := list.ValueRange()
	assert.Equal(t, 1.0, minLow)
	assert.Equal(t, 9.0, maxHigh)
}
