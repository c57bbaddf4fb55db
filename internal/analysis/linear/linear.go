// Package linear provides the straight-line functions used for pattern boundaries.
package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pattern-trader/internal/errors"
)

// Epsilon is the tolerance used for slope and value comparisons.
const Epsilon = 1e-9

// Fn is f(x) = Slope*x + Intercept.
type Fn struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Through returns the line through (x1, y1) and (x2, y2).
func Through(x1, y1, x2, y2 float64) (Fn, error) {
	if math.Abs(x2-x1) < Epsilon {
		return Fn{}, errors.NewGeometryError("linear", fmt.Sprintf("vertical line at x=%.4f", x1))
	}
	slope := (y2 - y1) / (x2 - x1)
	return Fn{Slope: slope, Intercept: y1 - slope*x1}, nil
}

// Constant returns the horizontal line f(x) = y.
func Constant(y float64) Fn {
	return Fn{Intercept: y}
}

// Regression fits a least squares line through the points.
func Regression(xs, ys []float64) Fn {
	if len(xs) < 2 {
		if len(ys) == 1 {
			return Constant(ys[0])
		}
		return Fn{}
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return Fn{Slope: beta, Intercept: alpha}
}

// Eval returns f(x).
func (f Fn) Eval(x float64) float64 {
	return f.Slope*x + f.Intercept
}

// ParallelThrough returns the line with the same slope through (x, y).
func (f Fn) ParallelThrough(x, y float64) Fn {
	return Fn{Slope: f.Slope, Intercept: y - f.Slope*x}
}

// Intersect returns the abscissa where f and g cross. ok is false for parallel lines.
func (f Fn) Intersect(g Fn) (x float64, ok bool) {
	ds := f.Slope - g.Slope
	if math.Abs(ds) < Epsilon {
		return 0, false
	}
	return (g.Intercept - f.Intercept) / ds, true
}

// IsHorizontal reports whether the slope is zero within Epsilon.
func (f Fn) IsHorizontal() bool {
	return math.Abs(f.Slope) < Epsilon
}

// Shift returns f moved vertically by dy.
func (f Fn) Shift(dy float64) Fn {
	return Fn{Slope: f.Slope, Intercept: f.Intercept + dy}
}

// SlopePct returns the percentage change of f per tick position between
// xFirst and xLast, which lie positions apart.
func (f Fn) SlopePct(xFirst, xLast float64, positions int) float64 {
	start := f.Eval(xFirst)
	if positions <= 0 || math.Abs(start) < Epsilon {
		return 0
	}
	return (f.Eval(xLast) - start) / math.Abs(start) * 100 / float64(positions)
}

// Distance returns the absolute vertical distance between f and g at x.
func (f Fn) Distance(g Fn, x float64) float64 {
	return math.Abs(f.Eval(x) - g.Eval(x))
}

func (f Fn) String() string {
	return fmt.Sprintf("%.6f*x%+.4f", f.Slope, f.Intercept)
}

// WithinPct reports whether value lies within pct (a fraction) of reference.
func WithinPct(value, reference, pct float64) bool {
	return math.Abs(value-reference) <= pct*math.Abs(reference)+Epsilon
}
