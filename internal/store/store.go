// Package store provides persistence of pattern and trade records.
package store

import (
	"context"

	"pattern-trader/internal/models"
)

// DataStore defines the interface for record persistence. Inserts are
// deduplicated by (equity_type_id, period_id, ticker_id,
// ts_pattern_tick_first, ts_pattern_tick_last) plus the pattern type or
// trade id.
type DataStore interface {
	// Patterns
	SavePatterns(ctx context.Context, records []models.PatternRecord) (int, error)
	GetPatterns(ctx context.Context, filter PatternFilter) ([]models.PatternRecord, error)
	PatternExists(ctx context.Context, rec models.PatternRecord) (bool, error)

	// Trades
	SaveTrades(ctx context.Context, records []models.TradeRecord) (int, error)
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)

	// Lifecycle
	Close() error
}

// PatternFilter represents filters for querying patterns.
type PatternFilter struct {
	TickerID     string
	PatternType  string
	EquityTypeID int
	PeriodID     *int
	Limit        int
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	TickerID  string
	PatternID string
	Status    string
	Limit     int
}
