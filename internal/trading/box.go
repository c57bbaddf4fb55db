package trading

import (
	"pattern-trader/internal/analysis"
)

// TradingBox is the (stop, limit) envelope of an executed trade. When the
// price reaches the limit both sides move by the expected win.
type TradingBox struct {
	Kind        BoxKind
	Direction   analysis.Direction
	OffSet      float64
	ExpectedWin float64
	Stop        float64
	Limit       float64

	MaxTickerLastPrice    float64
	MaxTickerLastPricePct float64
	Shifts                int
}

// NewTradingBox builds a box around the buy price offSet. high and low are the
// extremes of the formation and only used by the touch-point box.
func NewTradingBox(kind BoxKind, dir analysis.Direction, offSet, expectedWin, high, low float64) *TradingBox {
	s := dir.Sign()
	b := &TradingBox{
		Kind:               kind,
		Direction:          dir,
		OffSet:             offSet,
		ExpectedWin:        expectedWin,
		MaxTickerLastPrice: offSet,
		Stop:               offSet - s*expectedWin,
		Limit:              offSet + s*expectedWin,
	}
	if kind == BoxTouchPoint {
		stop, limit := low, high
		if s < 0 {
			stop, limit = high, low
		}
		// the touch points only serve when they enclose the buy price
		if s*(offSet-stop) > 0 {
			b.Stop = stop
		}
		if s*(limit-offSet) > 0 {
			b.Limit = limit
		}
	}
	return b
}

// Update records price and shifts the box while the price is at or beyond
// the limit. It reports whether the box moved.
func (b *TradingBox) Update(price float64) bool {
	s := b.Direction.Sign()
	if s*(price-b.MaxTickerLastPrice) > 0 {
		b.MaxTickerLastPrice = price
	}
	if b.OffSet != 0 {
		b.MaxTickerLastPricePct = s * (b.MaxTickerLastPrice - b.OffSet) / b.OffSet * 100
	}

	if b.ExpectedWin <= 0 {
		return false
	}
	moved := false
	for s*(price-b.Limit) >= 0 {
		b.Stop += s * b.ExpectedWin
		b.Limit += s * b.ExpectedWin
		b.Shifts++
		moved = true
	}
	return moved
}

// LimitReached reports whether price is at or beyond the limit.
func (b *TradingBox) LimitReached(price float64) bool {
	return b.Direction.Sign()*(price-b.Limit) >= 0
}
