package fibonacci

import (
	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
)

// Tree runs the depth-first wave search over the visible extrema of a series.
type Tree struct {
	ctx         *series.Context
	extrema     []models.Tick
	tol         float64
	forecastTol float64
	maxLength   int
	tracer      logging.Tracer

	waves     []Wave
	forecasts []Forecast
}

// NewTree creates a wave tree for ctx.
func NewTree(ctx *series.Context, tracer logging.Tracer) *Tree {
	if tracer == nil {
		tracer = logging.NopTracer{}
	}
	return &Tree{
		ctx:         ctx,
		extrema:     ctx.Visible.Ticks(),
		tol:         ctx.Config.FibonacciTolerancePct,
		forecastTol: ctx.Config.FibonacciForecastTolerancePct,
		maxLength:   ctx.Config.MaxPatternRangeLength,
		tracer:      tracer,
	}
}

// Parse returns the accepted waves (ascending first) and the forecasts.
func (t *Tree) Parse() ([]Wave, []Forecast) {
	t.waves, t.forecasts = nil, nil
	for _, dir := range []analysis.Direction{analysis.DirectionUp, analysis.DirectionDown} {
		for i, start := range t.extrema {
			if !t.fits(start, 0, dir) {
				continue
			}
			var path [6]models.Tick
			path[0] = start
			t.extend(dir, &path, 1, i)
		}
	}
	return t.waves, t.forecasts
}

// isPeak reports whether the point at depth is a maximum for dir.
func isPeak(depth int, dir analysis.Direction) bool {
	return (dir == analysis.DirectionUp) == (depth%2 == 1)
}

func value(tick models.Tick, depth int, dir analysis.Direction) float64 {
	if isPeak(depth, dir) {
		return tick.High
	}
	return tick.Low
}

// fits reports whether tick has the extremum kind required at depth.
func (t *Tree) fits(tick models.Tick, depth int, dir analysis.Direction) bool {
	if isPeak(depth, dir) {
		return tick.IsLocalMax
	}
	return tick.IsLocalMin
}

// extend chooses the point at depth and recurses. It reports whether an
// accepted wave was completed below this node.
func (t *Tree) extend(dir analysis.Direction, path *[6]models.Tick, depth, idx int) bool {
	if depth == 6 {
		return t.accept(dir, path)
	}
	s := dir.Sign()
	x := func(d int) float64 { return s * value(path[d], d, dir) }

	found := false
	for j := idx + 1; j < len(t.extrema); j++ {
		c := t.extrema[j]
		if c.Position-path[0].Position > t.maxLength {
			break
		}
		if !t.fits(c, depth, dir) {
			continue
		}
		xc := s * value(c, depth, dir)
		ok := false
		switch depth {
		case 1:
			ok = xc > x(0) && t.w1End(c, dir)
		case 2:
			ok = xc > x(0) && xc < x(1)
		case 3:
			ok = xc > x(1)
		case 4:
			ok = xc > x(2) && xc < x(3)
		case 5:
			ok = xc > x(3)
		}
		if !ok || !t.monotone(path[depth-1], c, isPeak(depth, dir)) {
			continue
		}
		path[depth] = c
		if t.extend(dir, path, depth+1, j) {
			found = true
		}
	}
	if depth == 5 && !found {
		t.forecast(dir, path)
	}
	return found
}

// w1End reports whether c may end the first component: a global extremum,
// or the series extremum over the maxLength ticks up to c.
func (t *Tree) w1End(c models.Tick, dir analysis.Direction) bool {
	from := c.Position - t.maxLength
	if from < 0 {
		from = 0
	}
	if dir == analysis.DirectionUp {
		if c.IsGlobalMax {
			return true
		}
		highest, _ := t.ctx.Ticks.MaxHighTick(from, c.Position)
		return highest.High <= c.High
	}
	if c.IsGlobalMin {
		return true
	}
	lowest, _ := t.ctx.Ticks.MinLowTick(from, c.Position)
	return lowest.Low >= c.Low
}

// monotone reports whether the segment from a to b runs from one extreme to
// the other: for a rising segment a holds the lowest low and b the highest high.
func (t *Tree) monotone(a, b models.Tick, rising bool) bool {
	lowest, ok := t.ctx.Ticks.MinLowTick(a.Position, b.Position)
	if !ok {
		return false
	}
	highest, _ := t.ctx.Ticks.MaxHighTick(a.Position, b.Position)
	if rising {
		return lowest.Low >= a.Low && highest.High <= b.High
	}
	return highest.High <= a.High && lowest.Low >= b.Low
}

func (t *Tree) build(dir analysis.Direction, path *[6]models.Tick) Wave {
	w := Wave{Direction: dir, Points: *path}
	for d := 0; d < 6; d++ {
		w.Values[d] = value(path[d], d, dir)
	}
	return w
}

// accept applies the acceptance predicates to a complete path.
func (t *Tree) accept(dir analysis.Direction, path *[6]models.Tick) bool {
	w := t.build(dir, path)
	for i := 1; i <= 5; i++ {
		if w.Component(i) == 0 {
			return false
		}
	}

	r2, r4 := w.RetracementRatios()
	if !Compliant(r2, RetracementRungs, t.tol) && !Compliant(r4, RetracementRungs, t.tol) {
		return false
	}
	g3, g5 := w.RegressionRatios()
	if !regressionCompliant(g3, t.tol) && !regressionCompliant(g5, t.tol) {
		return false
	}

	w1, w3, w5 := w.Component(1), w.Component(3), w.Component(5)
	if w3 < w1 && w3 < w5 {
		return false
	}
	w.Structure = classify(w1, w3, w5)
	if w.Structure == Irregular {
		return false
	}

	t.waves = append(t.waves, w)
	t.tracer.Trace("fibonacci_wave", map[string]interface{}{
		"direction": dir.String(),
		"first":     w.PositionFirst(),
		"last":      w.PositionLast(),
		"structure": string(w.Structure),
	})
	return true
}

// forecast emits a w5 projection for a four-component prefix whose w4 end is
// still intact at the end of the series.
func (t *Tree) forecast(dir analysis.Direction, path *[6]models.Tick) {
	s := dir.Sign()
	p3, p4 := path[3], path[4]
	for pos := p4.Position + 1; pos < t.ctx.Len(); pos++ {
		tick, _ := t.ctx.Tick(pos)
		if s*value(tick, 4, dir) < s*value(p4, 4, dir) || s*value(tick, 3, dir) > s*value(p3, 3, dir) {
			return
		}
	}

	f := Forecast{Direction: dir}
	copy(f.Points[:], path[:5])
	for d := 0; d < 5; d++ {
		f.Values[d] = value(path[d], d, dir)
	}
	w1 := abs(f.Values[1] - f.Values[0])
	w2 := abs(f.Values[1] - f.Values[2])
	w3 := abs(f.Values[3] - f.Values[2])
	w4 := abs(f.Values[3] - f.Values[4])
	if w1 == 0 || w3 == 0 || w2 == 0 || w4 == 0 {
		return
	}
	if !Compliant(w2/w1, RetracementRungs, t.forecastTol) && !Compliant(w4/w3, RetracementRungs, t.forecastTol) {
		return
	}
	if !regressionCompliant(w3/w1, t.forecastTol) {
		return
	}

	base := f.Values[4]
	f.Min = base + s*RegressionRungs[0]*w3
	f.Mean = base + s*mean(RegressionRungs)*w3
	f.Max = base + s*RegressionRungs[len(RegressionRungs)-1]*w3
	t.forecasts = append(t.forecasts, f)
	t.tracer.Trace("fibonacci_forecast", map[string]interface{}{
		"direction": dir.String(),
		"w4_end":    p4.Position,
		"min":       f.Min,
		"max":       f.Max,
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
