package patterns

import (
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
)

// Head-shoulder geometry limits.
const (
	maxNecklineDistanceRatio = 2.5
	minShoulderHeightShare   = 0.2
	maxNecklineSpanShare     = 0.3
)

// HeadShoulderFormation holds the six landmark ticks of a (bottom) head-shoulder.
type HeadShoulderFormation struct {
	Bottom           bool
	PreviousBreakout models.Tick
	ShoulderLeft     models.Tick
	NecklineLeft     models.Tick
	Head             models.Tick
	NecklineRight    models.Tick
	ShoulderRight    models.Tick
	Neckline         linear.Fn
}

// Ticks returns the landmarks in position order.
func (f *HeadShoulderFormation) Ticks() []models.Tick {
	return []models.Tick{f.PreviousBreakout, f.ShoulderLeft, f.NecklineLeft, f.Head, f.NecklineRight, f.ShoulderRight}
}

func (f *HeadShoulderFormation) extreme(t models.Tick) float64 {
	if f.Bottom {
		return t.Low
	}
	return t.High
}

// heightOver returns the distance of t's extreme from the neckline.
func (f *HeadShoulderFormation) heightOver(t models.Tick) float64 {
	return absFloat(f.extreme(t) - f.Neckline.Eval(t.FVar))
}

// NecklineSpan returns the distance in positions between the neckline ticks.
func (f *HeadShoulderFormation) NecklineSpan() int {
	return f.NecklineRight.Position - f.NecklineLeft.Position
}

// IsLeftShoulderHeightCompliant reports whether the left shoulder rises at
// least 20% of the head height over the neckline.
func (f *HeadShoulderFormation) IsLeftShoulderHeightCompliant() bool {
	return f.heightOver(f.ShoulderLeft) >= minShoulderHeightShare*f.heightOver(f.Head)
}

// IsNecklineDistanceCompliant reports whether the two neckline halves are
// within 1:2.5 of each other.
func (f *HeadShoulderFormation) IsNecklineDistanceCompliant() bool {
	return necklineDistanceCompliant(f.NecklineLeft, f.Head, f.NecklineRight)
}

// IsPreviousBreakoutDistanceCompliant reports whether the previous breakout
// lies within one neckline span of the left neckline tick.
func (f *HeadShoulderFormation) IsPreviousBreakoutDistanceCompliant() bool {
	return f.NecklineLeft.Position-f.PreviousBreakout.Position <= f.NecklineSpan()
}

// IsNecklineNotTooLarge reports whether the neckline spans at most 30% of the series.
func (f *HeadShoulderFormation) IsNecklineNotTooLarge(seriesLength int) bool {
	return float64(f.NecklineSpan()) <= maxNecklineSpanShare*float64(seriesLength)
}

// ExpectedWin is the distance of the left shoulder from the neckline.
func (f *HeadShoulderFormation) ExpectedWin() float64 {
	return f.heightOver(f.ShoulderLeft)
}

func necklineDistanceCompliant(left, head, right models.Tick) bool {
	dl := float64(head.Position - left.Position)
	dr := float64(right.Position - head.Position)
	if dl <= 0 || dr <= 0 {
		return false
	}
	if dl > dr {
		return dl/dr <= maxNecklineDistanceRatio
	}
	return dr/dl <= maxNecklineDistanceRatio
}

// HeadShoulderDetector finds head-shoulder tops (or bottoms) with the global
// maxima (minima) as heads.
type HeadShoulderDetector struct {
	ctx    *series.Context
	bottom bool
	tracer logging.Tracer
}

// NewHeadShoulderDetector creates a detector; bottom selects inverse formations.
func NewHeadShoulderDetector(ctx *series.Context, bottom bool, tracer logging.Tracer) *HeadShoulderDetector {
	if tracer == nil {
		tracer = logging.NopTracer{}
	}
	return &HeadShoulderDetector{ctx: ctx, bottom: bottom, tracer: tracer}
}

func (d *HeadShoulderDetector) isHead(t models.Tick) bool {
	if d.bottom {
		return t.IsGlobalMin
	}
	return t.IsGlobalMax
}

func (d *HeadShoulderDetector) necklineCandidates() []models.Tick {
	if d.bottom {
		return d.ctx.Maxima.Ticks()
	}
	return d.ctx.Minima.Ticks()
}

func (d *HeadShoulderDetector) isNecklineStop(t models.Tick) bool {
	if d.bottom {
		return t.IsGlobalMax
	}
	return t.IsGlobalMin
}

// extreme returns the head-side value of t (high for tops).
func (d *HeadShoulderDetector) extreme(t models.Tick) float64 {
	if d.bottom {
		return t.Low
	}
	return t.High
}

// exceeds reports whether a is more extreme than b on the head side.
func (d *HeadShoulderDetector) exceeds(a, b float64) bool {
	if d.bottom {
		return a < b
	}
	return a > b
}

// crossed reports whether the close of t lies on the far side of the neckline.
func (d *HeadShoulderDetector) crossed(t models.Tick, neckline linear.Fn) bool {
	if d.bottom {
		return t.Close > neckline.Eval(t.FVar)
	}
	return t.Close < neckline.Eval(t.FVar)
}

// Detect returns one range per compliant formation.
func (d *HeadShoulderDetector) Detect() []*Range {
	var ranges []*Range
	candidates := d.necklineCandidates()

	for _, head := range d.ctx.Ticks.Ticks() {
		if !d.isHead(head) {
			continue
		}

		var lefts, rights []models.Tick
		for i := len(candidates) - 1; i >= 0; i-- {
			c := candidates[i]
			if c.Position >= head.Position {
				continue
			}
			lefts = append(lefts, c)
			if d.isNecklineStop(c) {
				break
			}
		}
		for _, c := range candidates {
			if c.Position <= head.Position {
				continue
			}
			rights = append(rights, c)
			if d.isNecklineStop(c) {
				break
			}
		}

		for _, left := range lefts {
			for _, right := range rights {
				if !necklineDistanceCompliant(left, head, right) {
					continue
				}
				if f := d.build(head, left, right); f != nil {
					ranges = append(ranges, d.toRange(f))
				}
			}
		}
	}
	return ranges
}

// build locates the shoulders and the previous breakout for one neckline pair.
func (d *HeadShoulderDetector) build(head, left, right models.Tick) *HeadShoulderFormation {
	var value func(models.Tick) float64
	if d.bottom {
		value = func(t models.Tick) float64 { return t.High }
	} else {
		value = func(t models.Tick) float64 { return t.Low }
	}
	neckline, err := linear.Through(left.FVar, value(left), right.FVar, value(right))
	if err != nil {
		return nil
	}

	f := &HeadShoulderFormation{
		Bottom:        d.bottom,
		NecklineLeft:  left,
		Head:          head,
		NecklineRight: right,
		Neckline:      neckline,
	}
	span := f.NecklineSpan()
	if !f.IsNecklineNotTooLarge(d.ctx.Len()) {
		d.reject(head, "neckline_too_large")
		return nil
	}

	// previous breakout: last close beyond the neckline before the left neckline tick
	found := false
	for pos := left.Position - 1; pos >= 0; pos-- {
		t, _ := d.ctx.Tick(pos)
		if d.crossed(t, neckline) {
			f.PreviousBreakout, found = t, true
			break
		}
	}
	if !found || !f.IsPreviousBreakoutDistanceCompliant() {
		d.reject(head, "previous_breakout")
		return nil
	}

	// left shoulder: most extreme local extremum between previous breakout and left neckline
	shoulderLeft, ok := d.mostExtreme(f.PreviousBreakout.Position+1, left.Position-1)
	if !ok {
		d.reject(head, "no_left_shoulder")
		return nil
	}
	f.ShoulderLeft = shoulderLeft

	// right shoulder: most extreme local extremum after the right neckline up
	// to the first close beyond the neckline
	end := right.Position + span
	for pos := right.Position + 1; pos <= minInt(end, d.ctx.LastPosition()); pos++ {
		t, _ := d.ctx.Tick(pos)
		if d.crossed(t, neckline) {
			end = pos - 1
			break
		}
	}
	shoulderRight, ok := d.mostExtreme(right.Position+1, minInt(end, d.ctx.LastPosition()))
	if !ok {
		d.reject(head, "no_right_shoulder")
		return nil
	}
	f.ShoulderRight = shoulderRight

	for _, t := range d.ctx.Ticks.Between(f.ShoulderLeft.Position, f.ShoulderRight.Position) {
		if t.Position != head.Position && d.exceeds(d.extreme(t), d.extreme(head)) {
			d.reject(head, "tick_beyond_head")
			return nil
		}
	}
	for _, s := range []models.Tick{f.ShoulderLeft, f.ShoulderRight} {
		if !d.exceeds(d.extreme(s), neckline.Eval(s.FVar)) {
			d.reject(head, "shoulder_below_neckline")
			return nil
		}
	}
	if !f.IsLeftShoulderHeightCompliant() {
		d.reject(head, "left_shoulder_height")
		return nil
	}
	return f
}

// mostExtreme returns the highest local maximum (lowest local minimum for
// bottoms) in [from, to].
func (d *HeadShoulderDetector) mostExtreme(from, to int) (models.Tick, bool) {
	if to < from {
		return models.Tick{}, false
	}
	if d.bottom {
		return d.ctx.Minima.MinLowTick(from, to)
	}
	return d.ctx.Maxima.MaxHighTick(from, to)
}

func (d *HeadShoulderDetector) reject(head models.Tick, reason string) {
	d.tracer.Trace("head_shoulder_rejected", map[string]interface{}{
		"head":   head.Position,
		"bottom": d.bottom,
		"reason": reason,
	})
}

func (d *HeadShoulderDetector) toRange(f *HeadShoulderFormation) *Range {
	r := &Range{
		Kind:         RangeHeadShoulder,
		Ticks:        f.Ticks(),
		FParam:       f.Neckline,
		HeadShoulder: f,
		Covered:      headShoulderCovered,
	}
	if d.bottom {
		r.Kind = RangeHeadShoulderBottom
		r.Covered = headShoulderBottomCovered
		r.Parallel = f.Neckline.ParallelThrough(f.Head.FVar, f.Head.Low)
	} else {
		r.Parallel = f.Neckline.ParallelThrough(f.Head.FVar, f.Head.High)
	}
	r.Constant = linear.Constant(d.extreme(f.Head))
	r.ComplementList = []linear.Fn{r.Parallel}

	for pos := f.ShoulderRight.Position + 1; pos < d.ctx.Len(); pos++ {
		t, _ := d.ctx.Tick(pos)
		if d.crossed(t, f.Neckline) {
			successor := t
			r.BreakoutSuccessor = &successor
			break
		}
	}
	return r
}
