package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/errors"
)

func TestNewFunctionContainer_Errors(t *testing.T) {
	first, last := fvTick(0, 110, 100, 105), fvTick(10, 110, 100, 105)

	_, err := NewFunctionContainer(analysis.Channel, linear.Constant(100), linear.Constant(100), first, last, 0.01)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidGeometry))

	_, err = NewFunctionContainer(analysis.PatternType("Wedge"), linear.Constant(110), linear.Constant(100), first, last, 0.01)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownPatternType))
}

func TestFunctionContainer_Cross(t *testing.T) {
	first, last := fvTick(0, 110, 100, 105), fvTick(4, 106, 104, 105)
	fc, err := NewFunctionContainer(analysis.Triangle, linear.Fn{Slope: -1, Intercept: 110}, linear.Fn{Slope: 1, Intercept: 100}, first, last, 0.01)
	require.NoError(t, err)

	require.True(t, fc.HasCross)
	assert.InDelta(t, 5.0, fc.CrossX, 1e-9)
	assert.InDelta(t, 10.0, fc.HeightStart(), 1e-9)
	assert.InDelta(t, 2.0, fc.HeightEnd(), 1e-9)
	assert.Equal(t, analysis.DirectionEither, fc.ExpectedDirection())

	channel, err := NewFunctionContainer(analysis.Channel, linear.Constant(110), linear.Constant(100), first, last, 0.01)
	require.NoError(t, err)
	assert.False(t, channel.HasCross)
}

func TestFunctionContainer_BreakoutAndWrongSide(t *testing.T) {
	first, last := fvTick(0, 110, 100, 105), fvTick(4, 114, 104, 109)
	fc, err := NewFunctionContainer(analysis.ChannelUp, linear.Fn{Slope: 1, Intercept: 110}, linear.Fn{Slope: 1, Intercept: 100}, first, last, 0.01)
	require.NoError(t, err)
	assert.Equal(t, analysis.DirectionDown, fc.ExpectedDirection())

	dir, bound := fc.BreakoutOf(fvTick(5, 106, 103, 104))
	assert.Equal(t, analysis.DirectionDown, dir)
	assert.InDelta(t, 105.0, bound, 1e-9)

	// A rising channel only breaks downwards; closing above is the wrong side.
	above := fvTick(5, 117, 114, 116)
	dir, _ = fc.BreakoutOf(above)
	assert.Equal(t, analysis.DirectionNone, dir)
	assert.True(t, fc.IsWrongSide(above))
	assert.False(t, fc.IsWrongSide(fvTick(5, 114, 106, 110)))

	fc.SetBreakout(fvTick(5, 106, 103, 104), analysis.DirectionDown)
	require.NotNil(t, fc.Breakout)
	assert.Equal(t, fc.Lower, *fc.Breakout)
	assert.Equal(t, 5, fc.TickForBreakout.Position)
}

func TestFunctionContainer_Bounds(t *testing.T) {
	first, last := fvTick(0, 110, 100, 105), fvTick(10, 110, 100, 105)

	tke, err := NewFunctionContainer(analysis.TKETop, linear.Constant(110), linear.Constant(100), first, last, 0.1)
	require.NoError(t, err)
	low := linear.Constant(95)
	tke.SetHelpers(nil, &low, nil)
	assert.Equal(t, 95.0, tke.LowerBound(3))

	channel, err := NewFunctionContainer(analysis.Channel, linear.Constant(110), linear.Constant(100), first, last, 0.1)
	require.NoError(t, err)
	inner := linear.Constant(105)
	channel.SetHelpers(nil, &inner, nil)
	assert.Equal(t, 105.0, channel.LowerBound(3))
	assert.Equal(t, 110.0, channel.UpperBound(3))

	fib, err := NewFunctionContainer(analysis.FibonacciDesc, linear.Constant(110), linear.Constant(100), first, last, 0.1)
	require.NoError(t, err)
	w2 := linear.Constant(108)
	fib.SetHelpers(&w2, nil, nil)
	assert.Equal(t, 108.0, fib.UpperBound(3))
}

func TestFunctionContainer_AdjustTKETop(t *testing.T) {
	first, last := fvTick(0, 110, 90, 100), fvTick(10, 110, 100, 105)
	fc, err := NewFunctionContainer(analysis.TKETop, linear.Constant(110), linear.Fn{Slope: 1, Intercept: 90}, first, last, 0.1)
	require.NoError(t, err)
	original := fc.Clone()

	// 1 above the top is within 10% of the height of 20.
	require.True(t, fc.Adjust(fvTick(12, 111, 108, 109)))
	assert.Equal(t, linear.Constant(111), fc.Upper)
	require.NotNil(t, fc.HelperLower)
	assert.Equal(t, linear.Constant(108), *fc.HelperLower)
	require.NotNil(t, fc.TickForHelper)
	assert.Equal(t, 12, fc.TickForHelper.Position)

	high := fvTick(13, 115, 110, 114)
	assert.False(t, fc.Adjust(high))
	assert.True(t, fc.IsWrongSide(high))

	// The clone taken before the adjustment keeps the old envelope.
	assert.Equal(t, linear.Constant(110), original.Upper)
	assert.Nil(t, original.HelperLower)
}

func TestFunctionContainer_AdjustTKEBottom(t *testing.T) {
	first, last := fvTick(0, 110, 100, 105), fvTick(10, 105, 100, 102)
	fc, err := NewFunctionContainer(analysis.TKEBottom, linear.Fn{Slope: -0.5, Intercept: 110}, linear.Constant(100), first, last, 0.1)
	require.NoError(t, err)

	require.True(t, fc.Adjust(fvTick(11, 102, 99.5, 101)))
	assert.Equal(t, linear.Constant(99.5), fc.Lower)
	require.NotNil(t, fc.HelperUpper)
	assert.Equal(t, linear.Constant(102), *fc.HelperUpper)

	assert.False(t, fc.Adjust(fvTick(12, 101, 100, 100.5)))
}

func TestValueCategorizer(t *testing.T) {
	first, last := fvTick(0, 110, 100, 105), fvTick(10, 110, 100, 105)
	fc, err := NewFunctionContainer(analysis.Channel, linear.Constant(110), linear.Constant(100), first, last, 0.01)
	require.NoError(t, err)
	vc := NewValueCategorizer(fc, 0.01, 0.001)

	tests := []struct {
		name             string
		high, low, close float64
		expectedCategory analysis.ValueCategory
	}{
		{"above the tolerance", 112, 105, 106, analysis.UpperOut},
		{"touching the top", 110.5, 105, 106, analysis.UpperOn},
		{"below the tolerance", 108, 98, 104, analysis.LowerOut},
		{"touching the bottom", 108, 100.5, 104, analysis.LowerOn},
		{"upper third", 108, 102, 108, analysis.UpperIn},
		{"middle third", 108, 102, 105, analysis.MiddleIn},
		{"lower third", 108, 102, 102.5, analysis.LowerIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedCategory, vc.Categorize(fvTick(5, tt.high, tt.low, tt.close)))
		})
	}

	helper := linear.Constant(105)
	fc.SetHelpers(&helper, nil, nil)
	assert.Equal(t, analysis.HelperUpperOn, vc.Categorize(fvTick(5, 105.5, 102, 104)))
}

func TestCountRule_Holds(t *testing.T) {
	counts := map[analysis.ValueCategory]int{analysis.UpperOn: 2, analysis.LowerOn: 1}

	tests := []struct {
		rule     CountRule
		expected bool
	}{
		{CountRule{analysis.UpperOn, Equal, 2}, true},
		{CountRule{analysis.UpperOn, Less, 2}, false},
		{CountRule{analysis.UpperOn, LessOrEqual, 2}, true},
		{CountRule{analysis.LowerOn, Greater, 1}, false},
		{CountRule{analysis.LowerOn, GreaterOrEqual, 1}, true},
		{CountRule{analysis.UpperOut, Equal, 0}, true},
		{CountRule{analysis.UpperOn, Comparator("!="), 1}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.rule.Holds(counts), "%s %s %d", tt.rule.Category, tt.rule.Cmp, tt.rule.N)
	}

	assert.True(t, combine(And, nil))
	assert.True(t, combine(Or, []bool{false, true}))
	assert.False(t, combine(And, []bool{true, false}))
}

func TestMatchesSeries(t *testing.T) {
	u, l, m := analysis.UpperOn, analysis.LowerOn, analysis.MiddleIn
	zig := []analysis.ValueCategory{u, l, u}

	assert.True(t, MatchesSeries([]analysis.ValueCategory{u, m, m, l, m, u}, zig))
	assert.True(t, MatchesSeries([]analysis.ValueCategory{m, u, u, l, l, u, m}, zig))
	assert.False(t, MatchesSeries([]analysis.ValueCategory{u, m, u, l}, zig))
	assert.False(t, MatchesSeries(nil, zig))
	assert.True(t, MatchesSeries([]analysis.ValueCategory{m}, nil))
}

func TestConstraintsTable(t *testing.T) {
	for _, pt := range analysis.AllPatternTypes {
		spec, ok := SpecFor(pt)
		require.True(t, ok, string(pt))
		assert.Equal(t, pt, spec.Type)
	}

	channel, _ := SpecFor(analysis.Channel)
	assert.True(t, channel.UpperSlope.Contains(0))
	assert.False(t, channel.UpperSlope.Contains(0.2))
	assert.True(t, channel.UpperSlope.Scaled(10).Contains(0.005))
	assert.False(t, channel.UpperSlope.Scaled(10).Contains(0.02))

	hs, _ := SpecFor(analysis.HeadShoulder)
	assert.True(t, hs.PreviousTopOut.Contains(0))
	assert.False(t, hs.PreviousTopOut.Contains(0.5))
}
