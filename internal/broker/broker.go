// Package broker provides the exchange interface the trade engine submits
// orders to, and a simulated paper exchange.
package broker

import (
	"context"

	"pattern-trader/internal/models"
)

// Exchange defines the order operations used by pattern trades.
type Exchange interface {
	// Orders
	PlaceOrder(ctx context.Context, order *models.Order, lastPrice float64) (*OrderResult, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error

	// Account
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetBalance(ctx context.Context) (*models.Balance, error)
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	OrderID string
	Status  string
	Message string
}

// Tag values distinguishing position opening and closing orders.
const (
	TagEntry = "entry"
	TagExit  = "exit"
)
