package patterns

import (
	"fmt"
	"math"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/errors"
	"pattern-trader/internal/models"
)

// Band is an inclusive numeric interval.
type Band struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Scaled divides both ends by div.
func (b Band) Scaled(div float64) Band {
	if div == 0 || div == 1 {
		return b
	}
	return Band{Min: b.Min / div, Max: b.Max / div}
}

func (b Band) String() string {
	return fmt.Sprintf("[%.3f, %.3f]", b.Min, b.Max)
}

var (
	anyBand  = Band{Min: math.Inf(-1), Max: math.Inf(1)}
	flat     = Band{Min: -0.1, Max: 0.1}
	rising   = Band{Min: 0.1, Max: 5}
	falling  = Band{Min: -5, Max: -0.1}
	narrower = Band{Min: 0, Max: 0.9}
	parallel = Band{Min: 0.8, Max: 1.25}
	notAbove = Band{Min: math.Inf(-1), Max: 0}

	insideCategories = []analysis.ValueCategory{
		analysis.UpperOn, analysis.UpperIn, analysis.MiddleIn, analysis.LowerIn, analysis.LowerOn,
		analysis.HelperUpperOn, analysis.HelperLowerOn,
	}
	touchCounts = []CountRule{
		{Category: analysis.UpperOn, Cmp: GreaterOrEqual, N: 2},
		{Category: analysis.LowerOn, Cmp: GreaterOrEqual, N: 1},
	}
	zigZag = [][]analysis.ValueCategory{
		{analysis.UpperOn, analysis.LowerOn, analysis.UpperOn},
		{analysis.LowerOn, analysis.UpperOn, analysis.LowerOn},
	}
)

// ConstraintsSpec is the rule set of one pattern type. Slope bands are in
// percent per position for daily series.
type ConstraintsSpec struct {
	Type                       analysis.PatternType
	UpperSlope                 Band
	LowerSlope                 Band
	RegressionSlope            Band
	HeightEndOverStart         Band
	PreviousTopOut             Band // percent of height above f_upper before the pattern
	PreviousBottomOut          Band // percent of height below f_lower before the pattern
	AllIn                      []analysis.ValueCategory
	CountConjunction           Conjunction
	Counts                     []CountRule
	SeriesConjunction          Conjunction
	Series                     [][]analysis.ValueCategory
	BreakoutRequiredAfterTicks int // 0 means the formation length
}

func generic(pt analysis.PatternType, upper, lower, ratio Band) ConstraintsSpec {
	return ConstraintsSpec{
		Type:               pt,
		UpperSlope:         upper,
		LowerSlope:         lower,
		RegressionSlope:    anyBand,
		HeightEndOverStart: ratio,
		PreviousTopOut:     anyBand,
		PreviousBottomOut:  anyBand,
		AllIn:              insideCategories,
		CountConjunction:   And,
		Counts:             touchCounts,
		SeriesConjunction:  Or,
		Series:             zigZag,
	}
}

func landmark(pt analysis.PatternType, neckline Band, topOut, bottomOut Band) ConstraintsSpec {
	return ConstraintsSpec{
		Type:               pt,
		UpperSlope:         anyBand,
		LowerSlope:         neckline,
		RegressionSlope:    anyBand,
		HeightEndOverStart: anyBand,
		PreviousTopOut:     topOut,
		PreviousBottomOut:  bottomOut,
	}
}

// constraintsTable holds one spec per pattern type.
var constraintsTable = map[analysis.PatternType]ConstraintsSpec{
	analysis.Triangle:       generic(analysis.Triangle, falling, rising, narrower),
	analysis.TriangleTop:    generic(analysis.TriangleTop, flat, rising, narrower),
	analysis.TriangleBottom: generic(analysis.TriangleBottom, falling, flat, narrower),
	analysis.TriangleUp:     generic(analysis.TriangleUp, rising, rising, narrower),
	analysis.TriangleDown:   generic(analysis.TriangleDown, falling, falling, narrower),
	analysis.Channel:        generic(analysis.Channel, flat, flat, parallel),
	analysis.ChannelUp:      generic(analysis.ChannelUp, rising, rising, parallel),
	analysis.ChannelDown:    generic(analysis.ChannelDown, falling, falling, parallel),
	analysis.TKETop: func() ConstraintsSpec {
		s := generic(analysis.TKETop, flat, rising, narrower)
		s.Counts = []CountRule{{Category: analysis.LowerOn, Cmp: GreaterOrEqual, N: 2}}
		s.Series = nil
		return s
	}(),
	analysis.TKEBottom: func() ConstraintsSpec {
		s := generic(analysis.TKEBottom, falling, flat, narrower)
		s.Counts = []CountRule{{Category: analysis.UpperOn, Cmp: GreaterOrEqual, N: 2}}
		s.Series = nil
		return s
	}(),
	analysis.HeadShoulder:           landmark(analysis.HeadShoulder, Band{-0.5, 0.5}, notAbove, anyBand),
	analysis.HeadShoulderAsc:        landmark(analysis.HeadShoulderAsc, Band{0.5, 3}, notAbove, anyBand),
	analysis.HeadShoulderBottom:     landmark(analysis.HeadShoulderBottom, Band{-0.5, 0.5}, anyBand, notAbove),
	analysis.HeadShoulderBottomDesc: landmark(analysis.HeadShoulderBottomDesc, Band{-3, -0.5}, anyBand, notAbove),
	analysis.FibonacciAsc:           landmark(analysis.FibonacciAsc, anyBand, anyBand, anyBand),
	analysis.FibonacciDesc:          landmark(analysis.FibonacciDesc, anyBand, anyBand, anyBand),
}

// SpecFor returns the constraints of pt.
func SpecFor(pt analysis.PatternType) (ConstraintsSpec, bool) {
	s, ok := constraintsTable[pt]
	return s, ok
}

// Evaluation is the measured data of a candidate that passed the constraints.
type Evaluation struct {
	Categories           []analysis.ValueCategory
	Counts               map[analysis.ValueCategory]int
	PreviousTopOutPct    float64
	PreviousBottomOutPct float64
}

// ConstraintEvaluator checks a (range, container) pair against the table.
type ConstraintEvaluator struct {
	ctx *series.Context
}

// NewConstraintEvaluator creates an evaluator for ctx.
func NewConstraintEvaluator(ctx *series.Context) *ConstraintEvaluator {
	return &ConstraintEvaluator{ctx: ctx}
}

// Evaluate returns a ConstraintError naming the first failed rule.
func (e *ConstraintEvaluator) Evaluate(fc *FunctionContainer) (*Evaluation, error) {
	spec, ok := constraintsTable[fc.Type]
	if !ok {
		return nil, errors.NewUnknownPatternTypeError(string(fc.Type))
	}
	pt := string(fc.Type)
	div := e.ctx.SlopeDivisor()

	if v := fc.UpperSlopePct(); !spec.UpperSlope.Scaled(div).Contains(v) {
		return nil, errors.NewConstraintError(pt, "upper_slope_pct", v)
	}
	if v := fc.LowerSlopePct(); !spec.LowerSlope.Scaled(div).Contains(v) {
		return nil, errors.NewConstraintError(pt, "lower_slope_pct", v)
	}
	if v := fc.RegressionSlopePct(); !spec.RegressionSlope.Scaled(div).Contains(v) {
		return nil, errors.NewConstraintError(pt, "regression_slope_pct", v)
	}
	heightStart := fc.HeightStart()
	if v := fc.HeightEnd() / heightStart; !spec.HeightEndOverStart.Contains(v) {
		return nil, errors.NewConstraintError(pt, "height_end_over_start", v)
	}

	ev := &Evaluation{}
	ev.PreviousTopOutPct, ev.PreviousBottomOutPct = e.previousPeriod(fc)
	if !spec.PreviousTopOut.Contains(ev.PreviousTopOutPct) {
		return nil, errors.NewConstraintError(pt, "previous_period_top_out_pct", ev.PreviousTopOutPct)
	}
	if !spec.PreviousBottomOut.Contains(ev.PreviousBottomOutPct) {
		return nil, errors.NewConstraintError(pt, "previous_period_bottom_out_pct", ev.PreviousBottomOutPct)
	}

	entry := e.ctx.Ticks.Between(fc.TickFirst.Position, fc.TickLast.Position)
	for _, t := range entry {
		if t.Close < fc.LowerBound(t.FVar) || t.Close > fc.UpperBound(t.FVar) {
			return nil, errors.NewConstraintError(pt, "close_inside_envelope", t.Position)
		}
	}

	vc := NewValueCategorizer(fc, e.ctx.Config.ValueCategorizerTolerancePct, e.ctx.Config.ValueCategorizerTolerancePctEqual)
	ev.Categories = vc.CategorizeAll(entry)
	ev.Counts = make(map[analysis.ValueCategory]int)
	for _, c := range ev.Categories {
		ev.Counts[c]++
	}

	if len(spec.AllIn) > 0 {
		allowed := make(map[analysis.ValueCategory]bool, len(spec.AllIn))
		for _, c := range spec.AllIn {
			allowed[c] = true
		}
		for i, c := range ev.Categories {
			if !allowed[c] {
				return nil, errors.NewConstraintError(pt, "global_all_in", fmt.Sprintf("%s at %d", c, entry[i].Position))
			}
		}
	}

	results := make([]bool, len(spec.Counts))
	for i, r := range spec.Counts {
		results[i] = r.Holds(ev.Counts)
	}
	if !combine(spec.CountConjunction, results) {
		return nil, errors.NewConstraintError(pt, "global_count", nil)
	}

	results = make([]bool, len(spec.Series))
	for i, s := range spec.Series {
		results[i] = MatchesSeries(ev.Categories, s)
	}
	if !combine(spec.SeriesConjunction, results) {
		return nil, errors.NewConstraintError(pt, "global_series", nil)
	}
	return ev, nil
}

// previousPeriod measures how far the ticks before the pattern (one formation
// length) went beyond the envelope, in percent of the height.
func (e *ConstraintEvaluator) previousPeriod(fc *FunctionContainer) (float64, float64) {
	length := fc.TickLast.Position - fc.TickFirst.Position
	from := maxInt(0, fc.TickFirst.Position-length)
	prev := e.ctx.Ticks.Between(from, fc.TickFirst.Position-1)
	height := fc.HeightStart()
	if len(prev) == 0 || height <= 0 {
		return 0, 0
	}
	topOut, bottomOut := math.Inf(-1), math.Inf(-1)
	for _, t := range prev {
		topOut = math.Max(topOut, (t.High-fc.Upper.Eval(t.FVar))/height*100)
		bottomOut = math.Max(bottomOut, (fc.Lower.Eval(t.FVar)-t.Low)/height*100)
	}
	return topOut, bottomOut
}

// breakoutHorizon returns the number of ticks the forward scan may look at.
func (s ConstraintsSpec) breakoutHorizon(fc *FunctionContainer) int {
	if s.BreakoutRequiredAfterTicks > 0 {
		return s.BreakoutRequiredAfterTicks
	}
	return maxInt(1, fc.TickLast.Position-fc.TickFirst.Position)
}

// entryTicks returns the formation body of fc.
func entryTicks(ctx *series.Context, fc *FunctionContainer) []models.Tick {
	return ctx.Ticks.Between(fc.TickFirst.Position, fc.TickLast.Position)
}
