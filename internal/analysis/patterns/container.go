package patterns

import (
	"fmt"
	"math"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/errors"
	"pattern-trader/internal/models"
)

// FunctionContainer bundles the linear functions describing a pattern's
// envelope. Its behaviour (breakout, wrong side, adjustment) is looked up by
// pattern type in the behaviour table.
type FunctionContainer struct {
	Type analysis.PatternType

	Upper       linear.Fn
	Lower       linear.Fn
	HelperUpper *linear.Fn
	HelperLower *linear.Fn
	Regression  linear.Fn

	TickFirst       models.Tick
	TickLast        models.Tick
	TickForHelper   *models.Tick
	TickForBreakout *models.Tick
	Breakout        *linear.Fn

	CrossX   float64
	HasCross bool

	breakoutRangePct float64
	behaviour        behaviour
}

// behaviour is the per-type row of the function table.
type behaviour struct {
	expected    analysis.Direction
	isBreakout  func(fc *FunctionContainer, t models.Tick) (analysis.Direction, float64)
	isWrongSide func(fc *FunctionContainer, t models.Tick) bool
	adjust      func(fc *FunctionContainer, t models.Tick) bool
}

func breakoutBoth(fc *FunctionContainer, t models.Tick) (analysis.Direction, float64) {
	if d, b := breakoutUp(fc, t); d != analysis.DirectionNone {
		return d, b
	}
	return breakoutDown(fc, t)
}

func breakoutUp(fc *FunctionContainer, t models.Tick) (analysis.Direction, float64) {
	u := fc.Upper.Eval(t.FVar)
	if t.Close > u {
		return analysis.DirectionUp, u
	}
	return analysis.DirectionNone, 0
}

func breakoutDown(fc *FunctionContainer, t models.Tick) (analysis.Direction, float64) {
	l := fc.Lower.Eval(t.FVar)
	if t.Close < l {
		return analysis.DirectionDown, l
	}
	return analysis.DirectionNone, 0
}

func closeAboveUpper(fc *FunctionContainer, t models.Tick) bool {
	return t.Close > fc.Upper.Eval(t.FVar)
}

func closeBelowLower(fc *FunctionContainer, t models.Tick) bool {
	return t.Close < fc.Lower.Eval(t.FVar)
}

func never(*FunctionContainer, models.Tick) bool { return false }

// breakoutDownHelper uses the higher of f_lower and h_lower as the boundary.
func breakoutDownHelper(fc *FunctionContainer, t models.Tick) (analysis.Direction, float64) {
	l := fc.LowerBound(t.FVar)
	if t.Close < l {
		return analysis.DirectionDown, l
	}
	return analysis.DirectionNone, 0
}

// breakoutUpHelper uses the lower of f_upper and h_upper for Fibonacci and
// the higher one for TKE, as provided by UpperBound.
func breakoutUpHelper(fc *FunctionContainer, t models.Tick) (analysis.Direction, float64) {
	u := fc.UpperBound(t.FVar)
	if t.Close > u {
		return analysis.DirectionUp, u
	}
	return analysis.DirectionNone, 0
}

// adjustTKETop raises the constant top when a tick exceeds it by less than
// the breakout range.
func adjustTKETop(fc *FunctionContainer, t models.Tick) bool {
	u := fc.Upper.Eval(t.FVar)
	if t.High <= u || t.High-u > fc.breakoutRangePct*fc.Height() {
		return false
	}
	fc.Upper = linear.Constant(t.High)
	helper := t
	fc.TickForHelper = &helper
	h := linear.Constant(t.Low)
	fc.HelperLower = &h
	fc.updateCross()
	return true
}

// adjustTKEBottom lowers the constant bottom when a tick undercuts it by less
// than the breakout range.
func adjustTKEBottom(fc *FunctionContainer, t models.Tick) bool {
	l := fc.Lower.Eval(t.FVar)
	if t.Low >= l || l-t.Low > fc.breakoutRangePct*fc.Height() {
		return false
	}
	fc.Lower = linear.Constant(t.Low)
	helper := t
	fc.TickForHelper = &helper
	h := linear.Constant(t.High)
	fc.HelperUpper = &h
	fc.updateCross()
	return true
}

func noAdjust(*FunctionContainer, models.Tick) bool { return false }

var behaviours = map[analysis.PatternType]behaviour{
	analysis.Channel:     {analysis.DirectionEither, breakoutBoth, never, noAdjust},
	analysis.ChannelUp:   {analysis.DirectionDown, breakoutDown, closeAboveUpper, noAdjust},
	analysis.ChannelDown: {analysis.DirectionUp, breakoutUp, closeBelowLower, noAdjust},

	analysis.Triangle:       {analysis.DirectionEither, breakoutBoth, never, noAdjust},
	analysis.TriangleTop:    {analysis.DirectionDown, breakoutDown, closeAboveUpper, noAdjust},
	analysis.TriangleBottom: {analysis.DirectionUp, breakoutUp, closeBelowLower, noAdjust},
	analysis.TriangleUp:     {analysis.DirectionDown, breakoutDown, closeAboveUpper, noAdjust},
	analysis.TriangleDown:   {analysis.DirectionUp, breakoutUp, closeBelowLower, noAdjust},

	analysis.TKETop: {analysis.DirectionDown, breakoutDownHelper, func(fc *FunctionContainer, t models.Tick) bool {
		return t.High > fc.Upper.Eval(t.FVar)
	}, adjustTKETop},
	analysis.TKEBottom: {analysis.DirectionUp, breakoutUpHelper, func(fc *FunctionContainer, t models.Tick) bool {
		return t.Low < fc.Lower.Eval(t.FVar)
	}, adjustTKEBottom},

	analysis.HeadShoulder:           {analysis.DirectionDown, breakoutDown, closeAboveUpper, noAdjust},
	analysis.HeadShoulderAsc:        {analysis.DirectionDown, breakoutDown, closeAboveUpper, noAdjust},
	analysis.HeadShoulderBottom:     {analysis.DirectionUp, breakoutUp, closeBelowLower, noAdjust},
	analysis.HeadShoulderBottomDesc: {analysis.DirectionUp, breakoutUp, closeBelowLower, noAdjust},

	analysis.FibonacciAsc: {analysis.DirectionDown, breakoutDownHelper, func(fc *FunctionContainer, t models.Tick) bool {
		return fc.HelperUpper != nil && t.Close > fc.HelperUpper.Eval(t.FVar)
	}, noAdjust},
	analysis.FibonacciDesc: {analysis.DirectionUp, breakoutUpHelper, func(fc *FunctionContainer, t models.Tick) bool {
		return fc.HelperLower != nil && t.Close < fc.HelperLower.Eval(t.FVar)
	}, noAdjust},
}

// NewFunctionContainer builds a container of type pt with the given
// boundaries over [first, last]. It fails with a geometry error when the upper
// boundary is not above the lower one at the first tick.
func NewFunctionContainer(pt analysis.PatternType, upper, lower linear.Fn, first, last models.Tick, breakoutRangePct float64) (*FunctionContainer, error) {
	b, ok := behaviours[pt]
	if !ok {
		return nil, errors.NewUnknownPatternTypeError(string(pt))
	}
	if upper.Eval(first.FVar) <= lower.Eval(first.FVar) {
		return nil, errors.NewGeometryError(string(pt), fmt.Sprintf("upper %.4f not above lower %.4f at position %d",
			upper.Eval(first.FVar), lower.Eval(first.FVar), first.Position))
	}
	fc := &FunctionContainer{
		Type:             pt,
		Upper:            upper,
		Lower:            lower,
		TickFirst:        first,
		TickLast:         last,
		breakoutRangePct: breakoutRangePct,
		behaviour:        b,
	}
	fc.updateCross()
	return fc, nil
}

// ExpectedDirection returns the breakout direction the pattern type anticipates.
func (fc *FunctionContainer) ExpectedDirection() analysis.Direction {
	return fc.behaviour.expected
}

// SetRegression fits the regression line through the closes of ticks.
func (fc *FunctionContainer) SetRegression(ticks []models.Tick) {
	xs := make([]float64, len(ticks))
	ys := make([]float64, len(ticks))
	for i, t := range ticks {
		xs[i] = t.FVar
		ys[i] = t.Close
	}
	fc.Regression = linear.Regression(xs, ys)
}

// SetHelpers assigns the helper rails.
func (fc *FunctionContainer) SetHelpers(upper, lower *linear.Fn, helperTick *models.Tick) {
	fc.HelperUpper = upper
	fc.HelperLower = lower
	fc.TickForHelper = helperTick
}

func (fc *FunctionContainer) updateCross() {
	fc.HasCross = false
	if fc.Upper.Slope < fc.Lower.Slope {
		if x, ok := fc.Upper.Intersect(fc.Lower); ok {
			fc.CrossX, fc.HasCross = x, true
		}
	}
}

// UpperBound returns the effective upper boundary at x including helper rails.
func (fc *FunctionContainer) UpperBound(x float64) float64 {
	u := fc.Upper.Eval(x)
	if fc.HelperUpper == nil {
		return u
	}
	h := fc.HelperUpper.Eval(x)
	if fc.Type == analysis.FibonacciDesc {
		return math.Min(u, h)
	}
	return math.Max(u, h)
}

// LowerBound returns the effective lower boundary at x including helper rails.
func (fc *FunctionContainer) LowerBound(x float64) float64 {
	l := fc.Lower.Eval(x)
	if fc.HelperLower == nil {
		return l
	}
	h := fc.HelperLower.Eval(x)
	switch fc.Type {
	case analysis.TKETop, analysis.FibonacciDesc, analysis.HeadShoulderBottom, analysis.HeadShoulderBottomDesc:
		return math.Min(l, h)
	}
	return math.Max(l, h)
}

// BreakoutOf returns the breakout direction of t (DirectionNone when t is no
// breakout) and the boundary value it broke.
func (fc *FunctionContainer) BreakoutOf(t models.Tick) (analysis.Direction, float64) {
	return fc.behaviour.isBreakout(fc, t)
}

// IsWrongSide reports whether t leaves the envelope on the unexpected side.
func (fc *FunctionContainer) IsWrongSide(t models.Tick) bool {
	return fc.behaviour.isWrongSide(fc, t)
}

// Adjust widens a TKE envelope for t when required and reports whether it did.
func (fc *FunctionContainer) Adjust(t models.Tick) bool {
	return fc.behaviour.adjust(fc, t)
}

// SetBreakout records the breakout tick and the boundary it broke.
func (fc *FunctionContainer) SetBreakout(t models.Tick, dir analysis.Direction) {
	tick := t
	fc.TickForBreakout = &tick
	f := fc.Lower
	if dir == analysis.DirectionUp {
		f = fc.Upper
	}
	fc.Breakout = &f
}

// Height returns the envelope height at the first tick.
func (fc *FunctionContainer) Height() float64 {
	return fc.HeightStart()
}

// HeightStart returns f_upper - f_lower at the first tick.
func (fc *FunctionContainer) HeightStart() float64 {
	return fc.Upper.Eval(fc.TickFirst.FVar) - fc.Lower.Eval(fc.TickFirst.FVar)
}

// HeightEnd returns f_upper - f_lower at the last tick.
func (fc *FunctionContainer) HeightEnd() float64 {
	return fc.Upper.Eval(fc.TickLast.FVar) - fc.Lower.Eval(fc.TickLast.FVar)
}

// HeightAt returns the envelope height at x.
func (fc *FunctionContainer) HeightAt(x float64) float64 {
	return fc.Upper.Eval(x) - fc.Lower.Eval(x)
}

func (fc *FunctionContainer) positions() int {
	return fc.TickLast.Position - fc.TickFirst.Position
}

// UpperSlopePct returns the upper slope in percent per position.
func (fc *FunctionContainer) UpperSlopePct() float64 {
	return fc.Upper.SlopePct(fc.TickFirst.FVar, fc.TickLast.FVar, fc.positions())
}

// LowerSlopePct returns the lower slope in percent per position.
func (fc *FunctionContainer) LowerSlopePct() float64 {
	return fc.Lower.SlopePct(fc.TickFirst.FVar, fc.TickLast.FVar, fc.positions())
}

// RegressionSlopePct returns the regression slope in percent per position.
func (fc *FunctionContainer) RegressionSlopePct() float64 {
	return fc.Regression.SlopePct(fc.TickFirst.FVar, fc.TickLast.FVar, fc.positions())
}

// Clone returns a deep copy so that adjustments stay local to one pattern.
func (fc *FunctionContainer) Clone() *FunctionContainer {
	c := *fc
	if fc.HelperUpper != nil {
		h := *fc.HelperUpper
		c.HelperUpper = &h
	}
	if fc.HelperLower != nil {
		h := *fc.HelperLower
		c.HelperLower = &h
	}
	if fc.TickForHelper != nil {
		t := *fc.TickForHelper
		c.TickForHelper = &t
	}
	if fc.TickForBreakout != nil {
		t := *fc.TickForBreakout
		c.TickForBreakout = &t
	}
	if fc.Breakout != nil {
		f := *fc.Breakout
		c.Breakout = &f
	}
	return &c
}
