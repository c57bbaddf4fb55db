package patterns

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/models"
)

// patternNamespace scopes the deterministic pattern ids.
var patternNamespace = uuid.MustParse("6f1c2b7e-3d4a-4c59-9a8e-5b0f3e2d1c7a")

// Termination tells why the forward scan stopped.
type Termination string

const (
	TerminationBreakout  Termination = "breakout"
	TerminationWrongSide Termination = "wrong_side"
	TerminationApex      Termination = "apex"
	TerminationHorizon   Termination = "horizon"
	TerminationEndOfData Termination = "end_of_data"
)

// Part is one window of a pattern with its own envelope.
type Part struct {
	Name      string
	First     int
	Last      int
	Container *FunctionContainer
}

// Length returns the number of ticks in the part.
func (p *Part) Length() int {
	return p.Last - p.First + 1
}

// Breakout describes an accepted breakout tick.
type Breakout struct {
	Tick            models.Tick
	Previous        models.Tick
	Direction       analysis.Direction
	Boundary        float64
	VolumeChangePct float64
	ExcessPct       float64 // excess over the boundary in percent of the height
}

// Outcome records what happened in the trade window.
type Outcome struct {
	TradeResult      int
	TradeReachedPct  float64
	TouchPointsUpper int
	TouchPointsLower int
}

// Pattern is a confirmed formation.
type Pattern struct {
	ID        string
	Symbol    string
	Type      analysis.PatternType
	Range     *Range
	Container *FunctionContainer

	Entry *Part
	Buy   *Part
	Trade *Part

	Breakout    *Breakout
	Termination Termination
	ExpectedWin float64
	Outcome     Outcome

	Categories           []analysis.ValueCategory
	PreviousTopOutPct    float64
	PreviousBottomOutPct float64

	FibonacciDirection analysis.Direction
	Predictions        map[string]float64

	equityTypeID int
	periodID     int
}

func newPatternID(symbol string, pt analysis.PatternType, r *Range, fc *FunctionContainer) string {
	key := fmt.Sprintf("%s|%s|%s|%d|%d|%.8f|%.8f|%.8f|%.8f", symbol, pt, r.Kind, fc.TickFirst.Timestamp, fc.TickLast.Timestamp,
		fc.Upper.Slope, fc.Upper.Intercept, fc.Lower.Slope, fc.Lower.Intercept)
	return uuid.NewSHA1(patternNamespace, []byte(key)).String()
}

// HasBreakout reports whether the forward scan accepted a breakout.
func (p *Pattern) HasBreakout() bool {
	return p.Breakout != nil
}

// PositionFirst returns the first position of the formation body.
func (p *Pattern) PositionFirst() int {
	return p.Container.TickFirst.Position
}

// PositionLast returns the last position of the formation body.
func (p *Pattern) PositionLast() int {
	return p.Container.TickLast.Position
}

// BreakoutDirection returns the accepted breakout direction or DirectionNone.
func (p *Pattern) BreakoutDirection() analysis.Direction {
	if p.Breakout == nil {
		return analysis.DirectionNone
	}
	return p.Breakout.Direction
}

// BuyLevel returns the boundary a ticker must clear at x to confirm the
// breakout side, and WrongLevel the opposite boundary.
func (p *Pattern) BuyLevel(x float64) float64 {
	if p.BreakoutDirection() == analysis.DirectionDown {
		return p.Container.LowerBound(x)
	}
	return p.Container.UpperBound(x)
}

// WrongLevel returns the boundary on the opposite side of the breakout.
func (p *Pattern) WrongLevel(x float64) float64 {
	if p.BreakoutDirection() == analysis.DirectionDown {
		return p.Container.UpperBound(x)
	}
	return p.Container.LowerBound(x)
}

// HighLow returns the highest high and lowest low of the formation body.
func (p *Pattern) HighLow(ticks []models.Tick) (float64, float64) {
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, t := range ticks {
		if t.Position < p.PositionFirst() || t.Position > p.PositionLast() {
			continue
		}
		hi = math.Max(hi, t.High)
		lo = math.Min(lo, t.Low)
	}
	return hi, lo
}

// Record returns the flat persistence record.
func (p *Pattern) Record() models.PatternRecord {
	fc := p.Container
	rec := models.PatternRecord{
		PatternID:                  p.ID,
		EquityTypeID:               p.equityTypeID,
		PeriodID:                   p.periodID,
		TickerID:                   p.Symbol,
		PatternType:                string(p.Type),
		TsPatternTickFirst:         fc.TickFirst.Timestamp,
		TsPatternTickLast:          fc.TickLast.Timestamp,
		PositionFirst:              fc.TickFirst.Position,
		PositionLast:               fc.TickLast.Position,
		SlopeUpperPct:              round(fc.UpperSlopePct()),
		SlopeLowerPct:              round(fc.LowerSlopePct()),
		SlopeRegressionPct:         round(fc.RegressionSlopePct()),
		HeightStart:                round(fc.HeightStart()),
		HeightEnd:                  round(fc.HeightEnd()),
		TouchPointsUpper:           p.Outcome.TouchPointsUpper,
		TouchPointsLower:           p.Outcome.TouchPointsLower,
		PreviousPeriodTopOutPct:    round(p.PreviousTopOutPct),
		PreviousPeriodBottomOutPct: round(p.PreviousBottomOutPct),
		ExpectedWin:                round(p.ExpectedWin),
		BreakoutDirection:          p.BreakoutDirection().String(),
		TradeReachedPct:            round(p.Outcome.TradeReachedPct),
		TradeResult:                p.Outcome.TradeResult,
		FibonacciDirection:         p.FibonacciDirection.String(),
		CreatedAt:                  time.Now().UTC(),
	}
	if p.Breakout != nil {
		rec.TsBreakout = p.Breakout.Tick.Timestamp
		rec.VolumeChangePct = round(p.Breakout.VolumeChangePct)
	}
	return rec
}

// FeatureValues returns the named values the predictor vectors are built from.
func (p *Pattern) FeatureValues() map[string]float64 {
	fc := p.Container
	values := map[string]float64{
		"slope_upper_pct":                fc.UpperSlopePct(),
		"slope_lower_pct":                fc.LowerSlopePct(),
		"slope_regression_pct":           fc.RegressionSlopePct(),
		"height_start":                   fc.HeightStart(),
		"height_end":                     fc.HeightEnd(),
		"touch_points_upper":             float64(p.Outcome.TouchPointsUpper),
		"touch_points_lower":             float64(p.Outcome.TouchPointsLower),
		"previous_period_top_out_pct":    p.PreviousTopOutPct,
		"previous_period_bottom_out_pct": p.PreviousBottomOutPct,
		"expected_win":                   p.ExpectedWin,
		"breakout_direction":             p.BreakoutDirection().Sign(),
	}
	if p.Breakout != nil {
		values["volume_change_pct"] = p.Breakout.VolumeChangePct
		values["breakout_excess_pct"] = p.Breakout.ExcessPct
	}
	return values
}

// tradeFunctions returns the envelope of the trade part: the broken boundary
// and its shift by the expected win.
func (p *Pattern) tradeFunctions() (upper, lower linear.Fn) {
	broken := *p.Container.Breakout
	if p.Breakout.Direction == analysis.DirectionUp {
		return broken.Shift(p.ExpectedWin), broken
	}
	return broken, broken.Shift(-p.ExpectedWin)
}

func round(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return math.Round(v*10000) / 10000
}
