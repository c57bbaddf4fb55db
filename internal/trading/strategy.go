package trading

import (
	"math"

	"pattern-trader/internal/analysis"
)

// exitStrategy keeps the stop (and for LIMIT_FIX the limit) a strategy adds
// on top of the trading box.
type exitStrategy struct {
	kind      StrategyKind
	direction analysis.Direction
	offSet    float64
	trail     float64
	step      float64
	stop      float64
	hasStop   bool
	fixLimit  float64
}

// newExitStrategy prepares the strategy for a trade bought at offSet. A zero
// trail distance or step size falls back to the expected win.
func newExitStrategy(kind StrategyKind, dir analysis.Direction, offSet, expectedWin, trail, step, limitFixPct float64) *exitStrategy {
	if trail <= 0 {
		trail = expectedWin
	}
	if step <= 0 {
		step = expectedWin
	}
	s := dir.Sign()
	es := &exitStrategy{
		kind:      kind,
		direction: dir,
		offSet:    offSet,
		trail:     trail,
		step:      step,
	}
	switch kind {
	case StrategyTrailingStop:
		es.stop, es.hasStop = offSet-s*trail, true
	case StrategyTrailingSteppedStop:
		es.stop, es.hasStop = offSet-s*step, true
	case StrategyLimitFix:
		es.fixLimit = offSet * (1 + s*limitFixPct)
	}
	return es
}

// update moves the strategy stop for price and reports whether it moved.
// Stops only move in the trade direction.
func (es *exitStrategy) update(price float64) bool {
	s := es.direction.Sign()
	var candidate float64
	switch es.kind {
	case StrategyTrailingStop:
		candidate = price - s*es.trail
	case StrategyTrailingSteppedStop:
		n := math.Floor(s * (price - es.offSet) / es.step)
		if n < 1 {
			return false
		}
		candidate = es.offSet + s*(n-1)*es.step
	default:
		return false
	}
	if s*(candidate-es.stop) > 0 {
		es.stop = candidate
		return true
	}
	return false
}

// effectiveStop returns the better of the box stop and the strategy stop.
func (es *exitStrategy) effectiveStop(box *TradingBox) float64 {
	if !es.hasStop {
		return box.Stop
	}
	if es.direction == analysis.DirectionDown {
		return math.Min(box.Stop, es.stop)
	}
	return math.Max(box.Stop, es.stop)
}

// effectiveLimit returns the level a limit sell is placed at.
func (es *exitStrategy) effectiveLimit(box *TradingBox) float64 {
	if es.kind == StrategyLimitFix {
		return es.fixLimit
	}
	return box.Limit
}
