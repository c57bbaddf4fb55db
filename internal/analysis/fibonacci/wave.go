// Package fibonacci parses five-component Fibonacci waves out of the
// min/max tick list and forecasts the end of unfinished waves.
package fibonacci

import (
	"fmt"
	"math"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/models"
)

// Fibonacci rungs.
var (
	RetracementRungs = []float64{0.236, 0.382, 0.5, 0.618, 0.764}
	RegressionRungs  = []float64{1.0, 1.382, 1.618, 2.0, 2.618}
)

// Structure classifies the relative sizes of w1, w3 and w5.
type Structure string

const (
	ShortMediumLong Structure = "S-M-L"
	LongMediumShort Structure = "L-M-S"
	ShortLongShort  Structure = "S-L-S"
	Irregular       Structure = ""
)

// Wave is a five-component path w1..w5 through six extrema.
type Wave struct {
	Direction analysis.Direction
	Points    [6]models.Tick
	Values    [6]float64
	Structure Structure
}

// Component returns the absolute length of component i (1..5).
func (w *Wave) Component(i int) float64 {
	return math.Abs(w.Values[i] - w.Values[i-1])
}

// RetracementRatios returns w2/w1 and w4/w3.
func (w *Wave) RetracementRatios() (float64, float64) {
	return w.Component(2) / w.Component(1), w.Component(4) / w.Component(3)
}

// RegressionRatios returns w3/w1 and w5/w3.
func (w *Wave) RegressionRatios() (float64, float64) {
	return w.Component(3) / w.Component(1), w.Component(5) / w.Component(3)
}

// PositionFirst returns the position of the wave start.
func (w *Wave) PositionFirst() int {
	return w.Points[0].Position
}

// PositionLast returns the position of the w5 end.
func (w *Wave) PositionLast() int {
	return w.Points[5].Position
}

// Intersects reports whether the wave overlaps positions [first, last].
func (w *Wave) Intersects(first, last int) bool {
	return w.PositionFirst() <= last && w.PositionLast() >= first
}

// PatternType returns the pattern type carried by the wave.
func (w *Wave) PatternType() analysis.PatternType {
	if w.Direction == analysis.DirectionUp {
		return analysis.FibonacciAsc
	}
	return analysis.FibonacciDesc
}

func (w *Wave) String() string {
	return fmt.Sprintf("%s %s %d-%d", w.PatternType(), w.Structure, w.PositionFirst(), w.PositionLast())
}

// Forecast is the projected w5 end of a four-component prefix.
type Forecast struct {
	Direction analysis.Direction
	Points    [5]models.Tick
	Values    [5]float64
	Min       float64
	Mean      float64
	Max       float64
}

// PositionLast returns the position of the w4 end.
func (f *Forecast) PositionLast() int {
	return f.Points[4].Position
}

// ratioEpsilon absorbs rounding so that a ratio on the tolerance edge passes.
const ratioEpsilon = 1e-9

// Compliant reports whether ratio matches one of the rungs within a relative
// tolerance; the edge of the tolerance is included.
func Compliant(ratio float64, rungs []float64, tol float64) bool {
	for _, r := range rungs {
		if math.Abs(ratio-r) <= tol*r+ratioEpsilon {
			return true
		}
	}
	return false
}

// regressionCompliant accepts a ratio or its reciprocal.
func regressionCompliant(ratio, tol float64) bool {
	if ratio <= 0 {
		return false
	}
	return Compliant(ratio, RegressionRungs, tol) || Compliant(1/ratio, RegressionRungs, tol)
}

// classify returns the structure of w1, w3, w5.
func classify(w1, w3, w5 float64) Structure {
	switch {
	case w1 < w3 && w3 < w5:
		return ShortMediumLong
	case w1 > w3 && w3 > w5:
		return LongMediumShort
	case w3 > w1 && w3 > w5 && w1/w5 >= 0.8 && w1/w5 <= 1.2:
		return ShortLongShort
	}
	return Irregular
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
