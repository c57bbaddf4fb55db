package patterns

import (
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
)

// minSpacing is the minimal distance in positions between two range members.
const minSpacing = 3

// RangeDetector enumerates support (min) or resistance (max) ranges.
type RangeDetector struct {
	ctx    *series.Context
	kind   RangeKind
	tracer logging.Tracer
}

// NewRangeDetector creates a detector for RangeMax or RangeMin.
func NewRangeDetector(ctx *series.Context, kind RangeKind, tracer logging.Tracer) *RangeDetector {
	if tracer == nil {
		tracer = logging.NopTracer{}
	}
	return &RangeDetector{ctx: ctx, kind: kind, tracer: tracer}
}

func (d *RangeDetector) value(t models.Tick) float64 {
	if d.kind == RangeMax {
		return t.High
	}
	return t.Low
}

// beyond reports whether v lies outside the current line (above a resistance,
// below a support) by more than the tolerance.
func (d *RangeDetector) beyond(v, fv float64) bool {
	tol := d.ctx.Config.TolerancePct
	if d.kind == RangeMax {
		return v > fv*(1+tol)
	}
	return v < fv*(1-tol)
}

// Detect returns the ranges in anchor order.
func (d *RangeDetector) Detect() []*Range {
	var extrema []models.Tick
	if d.kind == RangeMax {
		extrema = d.ctx.Maxima.Ticks()
	} else {
		extrema = d.ctx.Minima.Ticks()
	}

	cfg := d.ctx.Config
	minLen := cfg.MinRangeLength
	if minLen < 2 {
		minLen = 2
	}

	var ranges []*Range
	emit := func(members []models.Tick, f linear.Fn) {
		candidate := &Range{
			Kind:   d.kind,
			Ticks:  append([]models.Tick(nil), members...),
			FParam: f,
		}
		for _, r := range ranges {
			if candidate.containsPositions(r) {
				return
			}
		}
		candidate.Covered = genericCovered
		candidate.finalize(d.ctx)
		ranges = append(ranges, candidate)
		d.tracer.Trace("range_emitted", map[string]interface{}{
			"kind":  d.kind.String(),
			"first": candidate.First().Position,
			"last":  candidate.Last().Position,
			"size":  len(candidate.Ticks),
		})
	}

	for i := 0; i+minLen <= len(extrema); i++ {
		anchor := extrema[i]
		members := []models.Tick{anchor}
		var f linear.Fn
		hasLine := false

		for k := i + 1; k < len(extrema); k++ {
			candidate := extrema[k]
			if candidate.Position-anchor.Position > cfg.MaxPatternRangeLength {
				break
			}
			if candidate.Position-members[len(members)-1].Position < minSpacing {
				continue
			}
			fik, err := linear.Through(anchor.FVar, d.value(anchor), candidate.FVar, d.value(candidate))
			if err != nil {
				continue
			}
			if !hasLine {
				members = append(members, candidate)
				f, hasLine = fik, true
				continue
			}

			v := d.value(candidate)
			fv := f.Eval(candidate.FVar)
			switch {
			case linear.WithinPct(v, fv, cfg.TolerancePct):
				members = append(members, candidate)
			case d.beyond(v, fv):
				// The candidate breaks the current line: close the range and
				// restart from the anchor with the tilted line.
				if len(members) >= minLen {
					emit(members, f)
				}
				members = []models.Tick{anchor, candidate}
				f = fik
			}
		}
		if len(members) >= minLen {
			emit(members, f)
		}
	}
	return ranges
}

// Deduplicate drops every max (min) range whose span is covered by more than
// half by a shorter range of the opposite kind. Other kinds pass unchanged.
func Deduplicate(ranges []*Range) []*Range {
	out := make([]*Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Kind != RangeMax && r.Kind != RangeMin {
			out = append(out, r)
			continue
		}
		dropped := false
		for _, o := range ranges {
			if o == r || (o.Kind != RangeMax && o.Kind != RangeMin) || o.Kind == r.Kind {
				continue
			}
			if o.Span() < r.Span() && r.overlap(o) > 0.5 {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, r)
		}
	}
	return out
}
