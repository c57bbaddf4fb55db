package patterns

import (
	"fmt"
	"math"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/fibonacci"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/models"
)

// RangeKind identifies the detector that produced a range.
type RangeKind int

const (
	RangeMax RangeKind = iota
	RangeMin
	RangeHeadShoulder
	RangeHeadShoulderBottom
	RangeFibonacci
)

func (k RangeKind) String() string {
	switch k {
	case RangeMax:
		return "max"
	case RangeMin:
		return "min"
	case RangeHeadShoulder:
		return "head-shoulder"
	case RangeHeadShoulderBottom:
		return "head-shoulder-bottom"
	case RangeFibonacci:
		return "fibonacci"
	}
	return "unknown"
}

var (
	genericCovered = []analysis.PatternType{
		analysis.Triangle, analysis.TriangleTop, analysis.TriangleBottom, analysis.TriangleUp, analysis.TriangleDown,
		analysis.Channel, analysis.ChannelUp, analysis.ChannelDown,
		analysis.TKETop, analysis.TKEBottom,
	}
	headShoulderCovered       = []analysis.PatternType{analysis.HeadShoulder, analysis.HeadShoulderAsc}
	headShoulderBottomCovered = []analysis.PatternType{analysis.HeadShoulderBottom, analysis.HeadShoulderBottomDesc}
)

// Range is a candidate support or resistance: co-linear same-kind extrema
// on FParam, or the landmark ticks of a dedicated formation.
type Range struct {
	Kind              RangeKind
	Ticks             []models.Tick
	FParam            linear.Fn
	BreakoutSuccessor *models.Tick

	ComplementList []linear.Fn
	Parallel       linear.Fn
	Constant       linear.Fn

	Covered []analysis.PatternType

	HeadShoulder *HeadShoulderFormation
	Wave         *fibonacci.Wave
}

// First returns the first tick of the range.
func (r *Range) First() models.Tick {
	return r.Ticks[0]
}

// Last returns the last tick of the range.
func (r *Range) Last() models.Tick {
	return r.Ticks[len(r.Ticks)-1]
}

// Span returns the number of positions between first and last tick.
func (r *Range) Span() int {
	return r.Last().Position - r.First().Position
}

// Covers reports whether the range can carry a pattern of type pt.
func (r *Range) Covers(pt analysis.PatternType) bool {
	for _, c := range r.Covered {
		if c == pt {
			return true
		}
	}
	return false
}

// Key identifies the range for logs and ids.
func (r *Range) Key() string {
	return fmt.Sprintf("%s:%d-%d", r.Kind, r.First().Position, r.Last().Position)
}

// Value returns the side value of t used by this range (high for resistances).
func (r *Range) Value(t models.Tick) float64 {
	if r.Kind == RangeMax {
		return t.High
	}
	return t.Low
}

// ComplementaryFunctions returns the candidate opposite boundaries for pt.
func (r *Range) ComplementaryFunctions(pt analysis.PatternType) []linear.Fn {
	switch {
	case pt.IsChannel():
		return append([]linear.Fn{r.Parallel}, r.ComplementList...)
	case pt.IsTriangle():
		return r.ComplementList
	case pt.IsTKE():
		return []linear.Fn{r.Constant}
	case pt.IsHeadShoulder(), pt.IsHeadShoulderBottom():
		return []linear.Fn{r.Parallel}
	case pt.IsFibonacci():
		return []linear.Fn{r.FParam}
	}
	return nil
}

// containsPositions reports whether every member of r is a member of other.
func (r *Range) containsPositions(other *Range) bool {
	set := make(map[int]bool, len(other.Ticks))
	for _, t := range other.Ticks {
		set[t.Position] = true
	}
	for _, t := range r.Ticks {
		if !set[t.Position] {
			return false
		}
	}
	return true
}

// overlap returns the share of r's span covered by other's span.
func (r *Range) overlap(other *Range) float64 {
	lo := maxInt(r.First().Position, other.First().Position)
	hi := minInt(r.Last().Position, other.Last().Position)
	if hi <= lo || r.Span() == 0 {
		return 0
	}
	return float64(hi-lo) / float64(r.Span())
}

// finalize computes the breakout successor and the complementary functions.
func (r *Range) finalize(ctx *series.Context) {
	tol := ctx.Config.TolerancePct
	first, last := r.First().Position, r.Last().Position

	for pos := last + 1; pos < ctx.Len(); pos++ {
		t, _ := ctx.Tick(pos)
		f := r.FParam.Eval(t.FVar)
		if (r.Kind == RangeMax && t.High > f*(1+tol)) || (r.Kind == RangeMin && t.Low < f*(1-tol)) {
			successor := t
			r.BreakoutSuccessor = &successor
			break
		}
	}

	var outer models.Tick
	var enclosed []models.Tick
	if r.Kind == RangeMax {
		outer, _ = ctx.Ticks.MinLowTick(first, last)
		enclosed = ctx.Minima.Between(first, last)
		r.Constant = linear.Constant(outer.Low)
		r.Parallel = r.FParam.ParallelThrough(outer.FVar, outer.Low)
	} else {
		outer, _ = ctx.Ticks.MaxHighTick(first, last)
		enclosed = ctx.Maxima.Between(first, last)
		r.Constant = linear.Constant(outer.High)
		r.Parallel = r.FParam.ParallelThrough(outer.FVar, outer.High)
	}
	r.ComplementList = r.complementLines(enclosed, tol)
	if len(r.ComplementList) == 0 {
		r.ComplementList = []linear.Fn{r.Constant}
	}
}

// complementLines returns every line through two enclosed extrema that keeps
// all enclosed extrema on the inner side.
func (r *Range) complementLines(enclosed []models.Tick, tol float64) []linear.Fn {
	value := func(t models.Tick) float64 {
		if r.Kind == RangeMax {
			return t.Low
		}
		return t.High
	}
	var out []linear.Fn
	for i := 0; i < len(enclosed); i++ {
		for j := i + 1; j < len(enclosed); j++ {
			a, b := enclosed[i], enclosed[j]
			f, err := linear.Through(a.FVar, value(a), b.FVar, value(b))
			if err != nil {
				continue
			}
			ok := true
			for _, t := range enclosed {
				fv := f.Eval(t.FVar)
				if r.Kind == RangeMax && value(t) < fv*(1-tol) {
					ok = false
				}
				if r.Kind == RangeMin && value(t) > fv*(1+tol) {
					ok = false
				}
			}
			if ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	return math.Abs(v)
}
