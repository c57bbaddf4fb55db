package patterns

import (
	"context"
	"fmt"
	"math"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/fibonacci"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/errors"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
	"pattern-trader/internal/predictor"
)

// Detector orchestrates range detection, container construction,
// constraint evaluation and the forward scan for one series.
type Detector struct {
	ctx       *series.Context
	types     []analysis.PatternType
	evaluator *ConstraintEvaluator
	tracer    logging.Tracer
	predictor predictor.Predictor

	waves     []fibonacci.Wave
	forecasts []fibonacci.Forecast
}

// Option configures a Detector.
type Option func(*Detector)

// WithTracer sets the observability sink.
func WithTracer(t logging.Tracer) Option {
	return func(d *Detector) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithPredictor sets the predictor queried for every emitted pattern.
func WithPredictor(p predictor.Predictor) Option {
	return func(d *Detector) {
		d.predictor = p
	}
}

// NewDetector creates a detector for ctx. It fails when the configuration
// names an unknown pattern type.
func NewDetector(ctx *series.Context, opts ...Option) (*Detector, error) {
	types, err := ctx.Config.PatternTypes()
	if err != nil {
		return nil, err
	}
	d := &Detector{
		ctx:       ctx,
		types:     types,
		evaluator: NewConstraintEvaluator(ctx),
		tracer:    logging.NopTracer{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Waves returns the Fibonacci waves parsed by the last Detect call.
func (d *Detector) Waves() []fibonacci.Wave {
	return d.waves
}

// Forecasts returns the Fibonacci forecasts parsed by the last Detect call.
func (d *Detector) Forecasts() []fibonacci.Forecast {
	return d.forecasts
}

// Ranges returns every candidate range in detection order: max, min,
// head-shoulder, head-shoulder-bottom, Fibonacci.
func (d *Detector) Ranges() []*Range {
	ranges := NewRangeDetector(d.ctx, RangeMax, d.tracer).Detect()
	ranges = append(ranges, NewRangeDetector(d.ctx, RangeMin, d.tracer).Detect()...)
	ranges = Deduplicate(ranges)
	ranges = append(ranges, NewHeadShoulderDetector(d.ctx, false, d.tracer).Detect()...)
	ranges = append(ranges, NewHeadShoulderDetector(d.ctx, true, d.tracer).Detect()...)
	for i := range d.waves {
		ranges = append(ranges, fibonacciRange(&d.waves[i]))
	}
	return ranges
}

func fibonacciRange(w *fibonacci.Wave) *Range {
	upper, lower := waveLines(w)
	f := upper
	if w.Direction == analysis.DirectionDown {
		f = lower
	}
	return &Range{
		Kind:    RangeFibonacci,
		Ticks:   w.Points[:],
		FParam:  f,
		Covered: []analysis.PatternType{w.PatternType()},
		Wave:    w,
	}
}

// waveLines returns the upper and lower boundary of a wave body: the line
// through the w3 and w5 ends on the trend side and the w4 end level on the
// other side.
func waveLines(w *fibonacci.Wave) (linear.Fn, linear.Fn) {
	p := w.Points
	v := w.Values
	outer, err := linear.Through(p[3].FVar, v[3], p[5].FVar, v[5])
	if err != nil {
		outer = linear.Constant(v[5])
	}
	support := linear.Constant(v[4])
	if w.Direction == analysis.DirectionUp {
		return outer, support
	}
	return support, outer
}

// Detect runs the full pipeline and returns the emitted patterns in
// generation order.
func (d *Detector) Detect(ctx context.Context) ([]*Pattern, error) {
	if d.ctx.Len() == 0 {
		return nil, nil
	}
	d.waves, d.forecasts = fibonacci.NewTree(d.ctx, d.tracer).Parse()
	ranges := d.Ranges()

	var out []*Pattern
	seen := make(map[string]bool)
	for _, pt := range d.types {
		for _, r := range ranges {
			if !r.Covers(pt) {
				continue
			}
			for _, f := range r.ComplementaryFunctions(pt) {
				if err := ctx.Err(); err != nil {
					return out, err
				}
				p, err := d.candidate(pt, r, f)
				if err != nil {
					d.tracer.Trace("candidate_rejected", map[string]interface{}{
						"type":  string(pt),
						"range": r.Key(),
						"error": err.Error(),
					})
					continue
				}
				if seen[p.ID] {
					continue
				}
				seen[p.ID] = true

				d.scan(p)
				if !d.established(p) {
					continue
				}
				d.attachTrade(p)
				d.predict(ctx, p)
				out = append(out, p)
				d.tracer.Trace("pattern_emitted", map[string]interface{}{
					"id":          p.ID,
					"type":        string(p.Type),
					"first":       p.PositionFirst(),
					"last":        p.PositionLast(),
					"termination": string(p.Termination),
				})
			}
		}
	}
	d.intersectFibonacci(out)
	return out, nil
}

// candidate builds the container and evaluates the constraints.
func (d *Detector) candidate(pt analysis.PatternType, r *Range, f linear.Fn) (*Pattern, error) {
	fc, err := d.container(pt, r, f)
	if err != nil {
		return nil, err
	}
	ev, err := d.evaluator.Evaluate(fc)
	if err != nil {
		return nil, err
	}

	p := &Pattern{
		ID:                   newPatternID(d.ctx.Symbol, pt, r, fc),
		Symbol:               d.ctx.Symbol,
		Type:                 pt,
		Range:                r,
		Container:            fc,
		Entry:                &Part{Name: "entry", First: fc.TickFirst.Position, Last: fc.TickLast.Position, Container: fc},
		Categories:           ev.Categories,
		PreviousTopOutPct:    ev.PreviousTopOutPct,
		PreviousBottomOutPct: ev.PreviousBottomOutPct,
		equityTypeID:         d.ctx.Config.EquityTypeID,
		periodID:             d.ctx.PeriodID(),
	}
	p.Outcome.TouchPointsUpper = ev.Counts[analysis.UpperOn]
	p.Outcome.TouchPointsLower = ev.Counts[analysis.LowerOn]

	switch {
	case r.HeadShoulder != nil:
		p.ExpectedWin = r.HeadShoulder.ExpectedWin()
	case r.Wave != nil:
		p.ExpectedWin = r.Wave.Component(5) * fibonacci.RetracementRungs[1]
	default:
		p.ExpectedWin = fc.HeightStart()
	}
	return p, nil
}

// container dispatches on the range kind.
func (d *Detector) container(pt analysis.PatternType, r *Range, f linear.Fn) (*FunctionContainer, error) {
	pct := d.ctx.Config.BreakoutRangePct
	var (
		fc  *FunctionContainer
		err error
	)

	switch r.Kind {
	case RangeMax:
		if pt == analysis.TKETop {
			return nil, errors.NewGeometryError(string(pt), "requires a support range")
		}
		fc, err = NewFunctionContainer(pt, r.FParam, f, r.First(), r.Last(), pct)
		if err == nil && pt == analysis.TKEBottom {
			helper, _ := d.ctx.Ticks.MinLowTick(r.First().Position, r.Last().Position)
			h := linear.Constant(helper.High)
			fc.SetHelpers(&h, nil, &helper)
		}

	case RangeMin:
		if pt == analysis.TKEBottom {
			return nil, errors.NewGeometryError(string(pt), "requires a resistance range")
		}
		fc, err = NewFunctionContainer(pt, f, r.FParam, r.First(), r.Last(), pct)
		if err == nil && pt == analysis.TKETop {
			helper, _ := d.ctx.Ticks.MaxHighTick(r.First().Position, r.Last().Position)
			h := linear.Constant(helper.Low)
			fc.SetHelpers(nil, &h, &helper)
		}

	case RangeHeadShoulder, RangeHeadShoulderBottom:
		hs := r.HeadShoulder
		sl := hs.ShoulderLeft
		if r.Kind == RangeHeadShoulder {
			fc, err = NewFunctionContainer(pt, f, hs.Neckline, sl, hs.ShoulderRight, pct)
			if err == nil {
				h := hs.Neckline.ParallelThrough(sl.FVar, sl.High)
				fc.SetHelpers(&h, nil, nil)
			}
		} else {
			fc, err = NewFunctionContainer(pt, hs.Neckline, f, sl, hs.ShoulderRight, pct)
			if err == nil {
				h := hs.Neckline.ParallelThrough(sl.FVar, sl.Low)
				fc.SetHelpers(nil, &h, nil)
			}
		}

	case RangeFibonacci:
		w := r.Wave
		upper, lower := waveLines(w)
		fc, err = NewFunctionContainer(pt, upper, lower, w.Points[3], w.Points[5], pct)
		if err == nil {
			w2 := linear.Constant(w.Values[2])
			w5 := linear.Constant(w.Values[5])
			if w.Direction == analysis.DirectionUp {
				fc.SetHelpers(&w5, &w2, nil)
			} else {
				fc.SetHelpers(&w2, &w5, nil)
			}
		}

	default:
		return nil, errors.NewGeometryError(string(pt), fmt.Sprintf("unsupported range kind %s", r.Kind))
	}
	if err != nil {
		return nil, err
	}
	fc.SetRegression(entryTicks(d.ctx, fc))
	return fc, nil
}

// scan walks the ticks after the formation until a breakout or a
// terminating condition. Per tick the breakout check runs first, then the
// envelope adjustment and the wrong side check. The apex check runs last and
// also after a rejected breakout.
func (d *Detector) scan(p *Pattern) {
	fc := p.Container
	spec := constraintsTable[p.Type]
	start := fc.TickLast.Position + 1
	end := start + spec.breakoutHorizon(fc) - 1
	p.Termination = TerminationHorizon
	if end > d.ctx.LastPosition() {
		end = d.ctx.LastPosition()
		p.Termination = TerminationEndOfData
	}
	meanVolume := d.ctx.Ticks.MeanVolume(fc.TickFirst.Position, fc.TickLast.Position)

	for pos := start; pos <= end; pos++ {
		t, _ := d.ctx.Tick(pos)
		if dir, bound := fc.BreakoutOf(t); dir != analysis.DirectionNone {
			if b := d.signal(p, t, dir, bound, meanVolume); b != nil {
				fc.SetBreakout(t, dir)
				p.Breakout = b
				p.Termination = TerminationBreakout
				return
			}
		} else if fc.Adjust(t) {
			d.tracer.Trace("container_adjusted", map[string]interface{}{
				"id":       p.ID,
				"position": t.Position,
			})
			continue
		} else if fc.IsWrongSide(t) {
			p.Termination = TerminationWrongSide
			return
		}
		if fc.HasCross && t.FVar >= fc.CrossX {
			p.Termination = TerminationApex
			return
		}
	}
}

// signal applies the breakout signal test: expected direction, volume
// change and excess over the boundary.
func (d *Detector) signal(p *Pattern, t models.Tick, dir analysis.Direction, bound, meanVolume float64) *Breakout {
	cfg := d.ctx.Config
	fc := p.Container
	reject := func(reason string) *Breakout {
		d.tracer.Trace("breakout_rejected", map[string]interface{}{
			"id":       p.ID,
			"position": t.Position,
			"reason":   reason,
		})
		return nil
	}

	if !fc.ExpectedDirection().Allows(dir) {
		return reject("direction")
	}
	factor := 1.0
	if meanVolume > 0 {
		factor = t.Volume / meanVolume
		if factor < cfg.BreakoutVolumeFactor {
			return reject("volume")
		}
	}
	height := fc.Height()
	excess := math.Abs(t.Close - bound)
	if excess < cfg.BreakoutRangePct*height {
		return reject("range")
	}

	previous, _ := d.ctx.Tick(t.Position - 1)
	return &Breakout{
		Tick:            t,
		Previous:        previous,
		Direction:       dir,
		Boundary:        bound,
		VolumeChangePct: (factor - 1) * 100,
		ExcessPct:       excess / height * 100,
	}
}

func (d *Detector) established(p *Pattern) bool {
	if p.Entry.Length() < d.ctx.Config.MinLengthOfAFormationPart {
		return false
	}
	height := p.Container.Height()
	if height <= 0 {
		return false
	}
	return p.ExpectedWin/height >= d.ctx.Config.ExpectedWinPctThreshold
}

// attachTrade builds the buy and trade parts and the outcome of a pattern
// with an accepted breakout.
func (d *Detector) attachTrade(p *Pattern) {
	if p.Breakout == nil {
		return
	}
	fc := p.Container
	bt := p.Breakout.Tick
	last := minInt(d.ctx.LastPosition(), bt.Position+d.ctx.Config.MaxTradePositionSize/2)

	p.Buy = &Part{Name: "buy", First: maxInt(0, bt.Position-1), Last: minInt(d.ctx.LastPosition(), bt.Position+1), Container: fc}

	upper, lower := p.tradeFunctions()
	lastTick, _ := d.ctx.Tick(last)
	tfc, err := NewFunctionContainer(p.Type, upper, lower, bt, lastTick, d.ctx.Config.BreakoutRangePct)
	if err == nil {
		tfc.SetRegression(d.ctx.Ticks.Between(bt.Position, last))
	}
	p.Trade = &Part{Name: "trade", First: bt.Position, Last: last, Container: tfc}

	s := p.Breakout.Direction.Sign()
	target := bt.Close + s*p.ExpectedWin
	stop := bt.Close - s*p.ExpectedWin
	best := 0.0
	for _, t := range d.ctx.Ticks.Between(bt.Position+1, last) {
		favourable, adverse := t.High, t.Low
		if s < 0 {
			favourable, adverse = t.Low, t.High
		}
		best = math.Max(best, s*(favourable-bt.Close))
		if s*(adverse-stop) <= 0 {
			p.Outcome.TradeResult = -1
			break
		}
		if s*(favourable-target) >= 0 {
			p.Outcome.TradeResult = 1
			break
		}
	}
	if p.ExpectedWin > 0 {
		p.Outcome.TradeReachedPct = best / p.ExpectedWin * 100
	}
}

// predict stores the predictor labels; a missing predictor or answer
// leaves the defaults in place.
func (d *Detector) predict(ctx context.Context, p *Pattern) {
	if d.predictor == nil {
		d.tracer.Trace("predictor_unavailable", map[string]interface{}{"id": p.ID})
		return
	}
	kinds := []predictor.Kind{predictor.KindTouchPoints, predictor.KindBeforeBreakout}
	if p.Breakout != nil {
		kinds = append(kinds, predictor.KindAfterBreakout, predictor.KindForTrade)
	}
	values := p.FeatureValues()
	for _, kind := range kinds {
		labels, err := d.predictor.Predict(ctx, p.Type, kind, predictor.Vector(kind, values))
		if err != nil || labels == nil {
			reason := "empty"
			if err != nil {
				reason = err.Error()
			}
			d.tracer.Trace("predictor_unavailable", map[string]interface{}{
				"id":     p.ID,
				"kind":   string(kind),
				"reason": reason,
			})
			continue
		}
		if p.Predictions == nil {
			p.Predictions = make(map[string]float64)
		}
		for label, v := range labels {
			p.Predictions[string(kind)+"."+label] = v
		}
	}
}

// intersectFibonacci flags every non-Fibonacci pattern with the direction of
// the latest ending wave that overlaps its body.
func (d *Detector) intersectFibonacci(patterns []*Pattern) {
	for _, p := range patterns {
		if p.Type.IsFibonacci() {
			continue
		}
		lastEnd := -1
		for i := range d.waves {
			w := &d.waves[i]
			if w.Intersects(p.PositionFirst(), p.PositionLast()) && w.PositionLast() > lastEnd {
				p.FibonacciDirection = w.Direction
				lastEnd = w.PositionLast()
			}
		}
	}
}
