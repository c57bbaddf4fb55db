package models

import "time"

// Order represents an order submitted to the (simulated) exchange.
type Order struct {
	ID           string
	TradeID      string
	Symbol       string
	Side         OrderSide
	Type         OrderType
	Quantity     float64
	Price        float64 // limit price
	TriggerPrice float64 // stop price
	Tag          string
	Status       string
	FilledQty    float64
	AveragePrice float64
	PlacedAt     time.Time
	FilledAt     time.Time
}

// IsOpen reports whether the order is still waiting for execution.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// Value returns the notional value of the order at the given price.
func (o *Order) Value(price float64) float64 {
	return o.Quantity * price
}

// Position represents an open position held at the exchange.
type Position struct {
	Symbol       string
	Quantity     float64
	AveragePrice float64
	LTP          float64
	PnL          float64
	PnLPercent   float64
	Value        float64
}

// Balance represents the account balance of the exchange.
type Balance struct {
	AvailableCash float64
	UsedMargin    float64
	TotalEquity   float64
}
