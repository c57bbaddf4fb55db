// Package models provides domain models for the pattern detector and the trading engine.
package models

import (
	"time"
)

// Tick represents one OHLCV sample of a price series.
// Position, FVar and the distance columns are assigned by NewTickList; a Tick
// is not modified after that.
type Tick struct {
	Symbol    string  `csv:"-" json:"symbol"`
	Timestamp int64   `csv:"timestamp" json:"timestamp"`
	Open      float64 `csv:"open" json:"open"`
	High      float64 `csv:"high" json:"high"`
	Low       float64 `csv:"low" json:"low"`
	Close     float64 `csv:"close" json:"close"`
	Volume    float64 `csv:"volume" json:"volume"`

	Position int     `csv:"-" json:"position"`
	FVar     float64 `csv:"-" json:"f_var"`

	// Distances in ticks to the nearest earlier/later tick with a higher high
	// (resp. lower low). The series length stands for "none".
	HigherBefore int `csv:"-" json:"-"`
	HigherAfter  int `csv:"-" json:"-"`
	LowerBefore  int `csv:"-" json:"-"`
	LowerAfter   int `csv:"-" json:"-"`

	IsLocalMin  bool `csv:"-" json:"is_local_min"`
	IsLocalMax  bool `csv:"-" json:"is_local_max"`
	IsGlobalMin bool `csv:"-" json:"is_global_min"`
	IsGlobalMax bool `csv:"-" json:"is_global_max"`
}

// Time returns the tick timestamp as time.Time.
func (t Tick) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// Mid returns the middle of the tick's range.
func (t Tick) Mid() float64 {
	return (t.High + t.Low) / 2
}

// Ticker represents one real-time quote as delivered by an exchange.
type Ticker struct {
	TickerID  string
	Bid       float64
	Ask       float64
	LastPrice float64
	Timestamp int64
}

// WaveTick is a tick aggregated from tickers within one aggregation window.
type WaveTick struct {
	TickerID  string
	Timestamp int64 // window start
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Count     int
}

// ToTick converts the wave tick into a raw tick (without derived columns).
func (w WaveTick) ToTick() Tick {
	return Tick{
		Symbol:    w.TickerID,
		Timestamp: w.Timestamp,
		Open:      w.Open,
		High:      w.High,
		Low:       w.Low,
		Close:     w.Close,
		Volume:    float64(w.Count),
	}
}

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// Order statuses reported by an exchange.
const (
	OrderStatusComplete  = "COMPLETE"
	OrderStatusOpen      = "OPEN"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"
)
