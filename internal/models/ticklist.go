package models

import (
	"math"

	"github.com/markcheno/go-talib"

	"pattern-trader/internal/analysis"
)

// DefaultLocalWindow is the number of ticks on each side a local extremum must dominate.
const DefaultLocalWindow = 3

// TickList is an ordered, read-only sequence of ticks with positional access.
// Views returned by the filter methods share tick values with their source and
// keep the original positions.
type TickList struct {
	ticks       []Tick
	byPosition  map[int]int
	byTimestamp map[int64]int
}

// NewTickList assigns positions and f_var to raw ticks and computes the
// distance columns and extremum flags.
func NewTickList(raw []Tick, period analysis.Period, localWindow int) *TickList {
	if localWindow <= 0 {
		localWindow = DefaultLocalWindow
	}
	ticks := make([]Tick, len(raw))
	copy(ticks, raw)
	for i := range ticks {
		ticks[i].Position = i
		ticks[i].FVar = period.FVar(ticks[i].Timestamp)
	}
	computeDistances(ticks)

	n := len(ticks)
	globalWindow := n / 2
	for i := range ticks {
		t := &ticks[i]
		t.IsLocalMax = t.HigherBefore > localWindow && t.HigherAfter > localWindow
		t.IsLocalMin = t.LowerBefore > localWindow && t.LowerAfter > localWindow
		t.IsGlobalMax = t.HigherBefore > globalWindow && t.HigherAfter > globalWindow
		t.IsGlobalMin = t.LowerBefore > globalWindow && t.LowerAfter > globalWindow
	}
	return newView(ticks)
}

// computeDistances fills the four distance columns with one monotonic stack
// pass per column. On equal values the earlier tick dominates.
func computeDistances(ticks []Tick) {
	n := len(ticks)
	stack := make([]int, 0, n)

	for i := 0; i < n; i++ {
		for len(stack) > 0 && ticks[stack[len(stack)-1]].High < ticks[i].High {
			stack = stack[:len(stack)-1]
		}
		ticks[i].HigherBefore = n
		if len(stack) > 0 {
			ticks[i].HigherBefore = i - stack[len(stack)-1]
		}
		stack = append(stack, i)
	}

	stack = stack[:0]
	for i := n - 1; i >= 0; i-- {
		for len(stack) > 0 && ticks[stack[len(stack)-1]].High <= ticks[i].High {
			stack = stack[:len(stack)-1]
		}
		ticks[i].HigherAfter = n
		if len(stack) > 0 {
			ticks[i].HigherAfter = stack[len(stack)-1] - i
		}
		stack = append(stack, i)
	}

	stack = stack[:0]
	for i := 0; i < n; i++ {
		for len(stack) > 0 && ticks[stack[len(stack)-1]].Low > ticks[i].Low {
			stack = stack[:len(stack)-1]
		}
		ticks[i].LowerBefore = n
		if len(stack) > 0 {
			ticks[i].LowerBefore = i - stack[len(stack)-1]
		}
		stack = append(stack, i)
	}

	stack = stack[:0]
	for i := n - 1; i >= 0; i-- {
		for len(stack) > 0 && ticks[stack[len(stack)-1]].Low >= ticks[i].Low {
			stack = stack[:len(stack)-1]
		}
		ticks[i].LowerAfter = n
		if len(stack) > 0 {
			ticks[i].LowerAfter = stack[len(stack)-1] - i
		}
		stack = append(stack, i)
	}
}

func newView(ticks []Tick) *TickList {
	l := &TickList{
		ticks:       ticks,
		byPosition:  make(map[int]int, len(ticks)),
		byTimestamp: make(map[int64]int, len(ticks)),
	}
	for i, t := range ticks {
		l.byPosition[t.Position] = i
		if _, ok := l.byTimestamp[t.Timestamp]; !ok {
			l.byTimestamp[t.Timestamp] = i
		}
	}
	return l
}

// Len returns the number of ticks.
func (l *TickList) Len() int {
	return len(l.ticks)
}

// Ticks returns the underlying ticks. Callers must not modify them.
func (l *TickList) Ticks() []Tick {
	return l.ticks
}

// At returns the i-th tick of the list (not the tick at series position i).
func (l *TickList) At(i int) Tick {
	return l.ticks[i]
}

// First returns the first tick.
func (l *TickList) First() Tick {
	return l.ticks[0]
}

// Last returns the last tick.
func (l *TickList) Last() Tick {
	return l.ticks[len(l.ticks)-1]
}

// ByPosition returns the tick at series position pos.
func (l *TickList) ByPosition(pos int) (Tick, bool) {
	i, ok := l.byPosition[pos]
	if !ok {
		return Tick{}, false
	}
	return l.ticks[i], true
}

// ByTimestamp returns the first tick with the given timestamp.
func (l *TickList) ByTimestamp(ts int64) (Tick, bool) {
	i, ok := l.byTimestamp[ts]
	if !ok {
		return Tick{}, false
	}
	return l.ticks[i], true
}

// Slice returns the ticks with from <= position <= to.
func (l *TickList) Slice(from, to int) *TickList {
	return l.filter(func(t Tick) bool {
		return t.Position >= from && t.Position <= to
	})
}

// Between returns the ticks with from <= position <= to as a plain slice.
func (l *TickList) Between(from, to int) []Tick {
	var out []Tick
	for _, t := range l.ticks {
		if t.Position < from {
			continue
		}
		if t.Position > to {
			break
		}
		out = append(out, t)
	}
	return out
}

func (l *TickList) filter(keep func(Tick) bool) *TickList {
	out := make([]Tick, 0)
	for _, t := range l.ticks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return newView(out)
}

// MinTicks returns the local minima.
func (l *TickList) MinTicks() *TickList {
	return l.filter(func(t Tick) bool { return t.IsLocalMin })
}

// MaxTicks returns the local maxima.
func (l *TickList) MaxTicks() *TickList {
	return l.filter(func(t Tick) bool { return t.IsLocalMax })
}

// MinMaxTicks returns the ticks that are a local minimum or maximum.
func (l *TickList) MinMaxTicks() *TickList {
	return l.filter(func(t Tick) bool { return t.IsLocalMin || t.IsLocalMax })
}

// WithoutHiddenTicks returns the local extrema that are not dominated by a
// stronger extremum of the same kind within window positions.
func (l *TickList) WithoutHiddenTicks(window int) *TickList {
	maxima := l.MaxTicks().ticks
	minima := l.MinTicks().ticks
	hiddenMax := make(map[int]bool)
	hiddenMin := make(map[int]bool)

	for i, a := range maxima {
		for j, b := range maxima {
			if i == j || absInt(a.Position-b.Position) > window {
				continue
			}
			if b.High > a.High || (b.High == a.High && b.Position < a.Position) {
				hiddenMax[a.Position] = true
				break
			}
		}
	}
	for i, a := range minima {
		for j, b := range minima {
			if i == j || absInt(a.Position-b.Position) > window {
				continue
			}
			if b.Low < a.Low || (b.Low == a.Low && b.Position < a.Position) {
				hiddenMin[a.Position] = true
				break
			}
		}
	}

	return l.filter(func(t Tick) bool {
		return (t.IsLocalMax && !hiddenMax[t.Position]) || (t.IsLocalMin && !hiddenMin[t.Position])
	})
}

// SimpleMovingAverage returns the n-period SMA of the closes. The first n-1
// values are zero.
func (l *TickList) SimpleMovingAverage(n int) []float64 {
	closes := make([]float64, len(l.ticks))
	for i, t := range l.ticks {
		closes[i] = t.Close
	}
	if n <= 1 || len(closes) < n {
		out := make([]float64, len(closes))
		if n <= 1 {
			copy(out, closes)
		}
		return out
	}
	return talib.Sma(closes, n)
}

// XYForPlot returns f_var and close columns for a plotting collaborator.
func (l *TickList) XYForPlot() ([]float64, []float64) {
	x := make([]float64, len(l.ticks))
	y := make([]float64, len(l.ticks))
	for i, t := range l.ticks {
		x[i] = t.FVar
		y[i] = t.Close
	}
	return x, y
}

// MaxTicksForRange returns the local maxima in [from, to] whose high is
// strictly above limit.
func (l *TickList) MaxTicksForRange(from, to int, limit float64) []Tick {
	var out []Tick
	for _, t := range l.Between(from, to) {
		if t.IsLocalMax && t.High > limit {
			out = append(out, t)
		}
	}
	return out
}

// MinTicksForRange returns the local minima in [from, to] whose low is
// strictly below limit.
func (l *TickList) MinTicksForRange(from, to int, limit float64) []Tick {
	var out []Tick
	for _, t := range l.Between(from, to) {
		if t.IsLocalMin && t.Low < limit {
			out = append(out, t)
		}
	}
	return out
}

// MaxHighTick returns the tick with the highest high in [from, to]; the
// earlier tick wins ties.
func (l *TickList) MaxHighTick(from, to int) (Tick, bool) {
	var best Tick
	found := false
	for _, t := range l.Between(from, to) {
		if !found || t.High > best.High {
			best, found = t, true
		}
	}
	return best, found
}

// MinLowTick returns the tick with the lowest low in [from, to]; the earlier
// tick wins ties.
func (l *TickList) MinLowTick(from, to int) (Tick, bool) {
	var best Tick
	found := false
	for _, t := range l.Between(from, to) {
		if !found || t.Low < best.Low {
			best, found = t, true
		}
	}
	return best, found
}

// MeanVolume returns the average volume in [from, to].
func (l *TickList) MeanVolume(from, to int) float64 {
	ticks := l.Between(from, to)
	if len(ticks) == 0 {
		return 0
	}
	var sum float64
	for _, t := range ticks {
		sum += t.Volume
	}
	return sum / float64(len(ticks))
}

// ValueRange returns the lowest low and highest high of the list.
func (l *TickList) ValueRange() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, t := range l.ticks {
		lo = math.Min(lo, t.Low)
		hi = math.Max(hi, t.High)
	}
	return lo, hi
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
