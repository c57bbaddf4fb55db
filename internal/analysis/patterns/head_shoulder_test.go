package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/logging"
)

// hsBars is a head-shoulder top over a neckline at 100: previous breakout at
// 6, left shoulder 110 at 9, neckline ticks at 14 and 22, head 120 at 18,
// right shoulder 109 at 25 and the breakdown close at 29.
func hsBars() []bar {
	bars := []bar{
		{96, 92, 94, 100},
		{97, 93, 95, 100},
		{98, 94, 96, 100},
		{97, 93, 95, 100},
		{96, 92, 94, 100},
		{97, 93, 96, 100},
		{98, 95, 97, 100},
		{102, 98, 101, 100},
		{106, 101, 105, 100},
		{110, 105, 109, 100},
		{108, 104, 105, 100},
		{105, 102, 103, 100},
		{103, 101, 102, 100},
		{102, 100.5, 101, 100},
		{101, 100, 100.5, 100},
		{106, 101, 105, 100},
		{112, 105, 111, 100},
		{117, 110, 116, 100},
		{120, 114, 115, 100},
		{116, 110, 111, 100},
		{111, 105, 106, 100},
		{105, 101, 102, 100},
		{102, 100, 101, 100},
		{105, 101, 104, 100},
		{108, 103, 107, 100},
		{109, 105, 106, 100},
		{107, 103, 104, 100},
		{104, 101, 102, 100},
		{102, 100.5, 101, 100},
		{101, 96, 97, 250},
	}
	low := 93.0
	for _, step := range []float64{0, 3, 2, 2, 1, 1, 1, 1, 1, 1} {
		low -= step
		bars = append(bars, bar{low + 5, low, low + 1, 100})
	}
	return bars
}

// mirrored reflects bars at 100 so that tops become bottoms.
func mirrored(bars []bar) []bar {
	out := make([]bar, len(bars))
	for i, b := range bars {
		out[i] = bar{200 - b.low, 200 - b.high, 200 - b.close, b.volume}
	}
	return out
}

func hsContext(types ...analysis.PatternType) *series.Context {
	return contextOf("HS", hsBars(), types...)
}

func TestHeadShoulderDetector_Top(t *testing.T) {
	ctx := hsContext(analysis.HeadShoulder)
	tracer := &logging.RecordingTracer{}
	ranges := NewHeadShoulderDetector(ctx, false, tracer).Detect()

	require.Len(t, ranges, 1)
	r := ranges[0]
	assert.Equal(t, RangeHeadShoulder, r.Kind)
	assert.True(t, r.Covers(analysis.HeadShoulder))
	assert.False(t, r.Covers(analysis.Channel))

	f := r.HeadShoulder
	require.NotNil(t, f)
	positions := []int{}
	for _, tk := range f.Ticks() {
		positions = append(positions, tk.Position)
	}
	assert.Equal(t, []int{6, 9, 14, 18, 22, 25}, positions)
	assert.Equal(t, linear.Constant(100), f.Neckline)
	assert.Equal(t, 8, f.NecklineSpan())
	assert.InDelta(t, 10.0, f.ExpectedWin(), 1e-9)
	assert.True(t, f.IsLeftShoulderHeightCompliant())
	assert.True(t, f.IsPreviousBreakoutDistanceCompliant())

	require.NotNil(t, r.BreakoutSuccessor)
	assert.Equal(t, 29, r.BreakoutSuccessor.Position)
	assert.Equal(t, linear.Constant(120), r.Parallel)

	// Wider neckline pairs exceed 30% of the series.
	assert.Positive(t, tracer.Count("head_shoulder_rejected"))

	assert.Empty(t, NewHeadShoulderDetector(ctx, true, nil).Detect())
}

func TestDetector_HeadShoulderBreakdown(t *testing.T) {
	found := detect(t, hsContext(analysis.HeadShoulder))
	require.Len(t, found, 1)
	p := found[0]

	assert.Equal(t, analysis.HeadShoulder, p.Type)
	assert.Equal(t, 9, p.PositionFirst())
	assert.Equal(t, 25, p.PositionLast())
	assert.InDelta(t, 10.0, p.ExpectedWin, 1e-9)
	assert.LessOrEqual(t, p.PreviousTopOutPct, 0.0)

	require.True(t, p.HasBreakout())
	assert.Equal(t, 29, p.Breakout.Tick.Position)
	assert.Equal(t, analysis.DirectionDown, p.Breakout.Direction)
	assert.InDelta(t, 100.0, p.Breakout.Boundary, 1e-9)

	// Target 87 is undercut at position 33.
	assert.Equal(t, 1, p.Outcome.TradeResult)
	assert.InDelta(t, 110.0, p.Outcome.TradeReachedPct, 1e-9)

	// The helper rail through the left shoulder stays below the head line.
	require.NotNil(t, p.Container.HelperUpper)
	assert.Equal(t, linear.Constant(110), *p.Container.HelperUpper)
	assert.Equal(t, 120.0, p.Container.UpperBound(p.Container.TickFirst.FVar))
}

func TestDetector_HeadShoulderBottomBreakout(t *testing.T) {
	ctx := contextOf("HS", mirrored(hsBars()), analysis.HeadShoulderBottom)

	ranges := NewHeadShoulderDetector(ctx, true, nil).Detect()
	require.Len(t, ranges, 1)
	assert.Equal(t, RangeHeadShoulderBottom, ranges[0].Kind)
	assert.Equal(t, linear.Constant(80), ranges[0].Parallel)
	assert.Empty(t, NewHeadShoulderDetector(ctx, false, nil).Detect())

	found := detect(t, ctx)
	require.Len(t, found, 1)
	p := found[0]

	assert.Equal(t, analysis.HeadShoulderBottom, p.Type)
	assert.Equal(t, 9, p.PositionFirst())
	assert.Equal(t, 25, p.PositionLast())
	assert.InDelta(t, 10.0, p.ExpectedWin, 1e-9)
	assert.LessOrEqual(t, p.PreviousBottomOutPct, 0.0)

	require.True(t, p.HasBreakout())
	assert.Equal(t, 29, p.Breakout.Tick.Position)
	assert.Equal(t, analysis.DirectionUp, p.Breakout.Direction)
	assert.InDelta(t, 100.0, p.Breakout.Boundary, 1e-9)

	// Target 113 is exceeded at position 33.
	assert.Equal(t, 1, p.Outcome.TradeResult)
	assert.InDelta(t, 110.0, p.Outcome.TradeReachedPct, 1e-9)

	// The head line bounds the body; the shoulder rail lies inside it.
	require.NotNil(t, p.Container.HelperLower)
	assert.Equal(t, linear.Constant(90), *p.Container.HelperLower)
	assert.Equal(t, 80.0, p.Container.LowerBound(p.Container.TickFirst.FVar))
}

func TestHeadShoulderDetector_ShouldersAreLocalExtrema(t *testing.T) {
	bars := hsBars()
	// The right shoulder at 24 is followed by a higher tick at 28 that is
	// topped by the breakdown bar right after it, so 28 is no local maximum.
	copy(bars[23:30], []bar{
		{105, 101, 104, 100},
		{109, 105, 106, 100},
		{107, 103, 104, 100},
		{104, 101, 102, 100},
		{106, 101, 103, 100},
		{110, 101, 102, 100},
		{111, 96, 97, 250},
	})

	ranges := NewHeadShoulderDetector(contextOf("HS", bars, analysis.HeadShoulder), false, nil).Detect()
	require.Len(t, ranges, 1)
	f := ranges[0].HeadShoulder
	assert.Equal(t, 9, f.ShoulderLeft.Position)
	assert.Equal(t, 24, f.ShoulderRight.Position)
	require.NotNil(t, ranges[0].BreakoutSuccessor)
	assert.Equal(t, 29, ranges[0].BreakoutSuccessor.Position)
}

func TestNecklineDistanceCompliant(t *testing.T) {
	left, head := fvTick(10, 0, 0, 0), fvTick(14, 0, 0, 0)
	assert.True(t, necklineDistanceCompliant(left, head, fvTick(24, 0, 0, 0)))
	assert.False(t, necklineDistanceCompliant(left, head, fvTick(25, 0, 0, 0)))
	assert.False(t, necklineDistanceCompliant(head, head, fvTick(16, 0, 0, 0)))
}
