package models

import "time"

// Equity types used in the persistence dedup key.
const (
	EquityTypeShare  = 1
	EquityTypeCrypto = 2
	EquityTypeIndex  = 3
)

// Period ids used in the persistence dedup key.
const (
	PeriodIDDaily    = 0
	PeriodIDIntraday = 1
)

// PatternRecord is the flat row stored for each detected pattern.
type PatternRecord struct {
	PatternID                  string    `db:"pattern_id" json:"pattern_id"`
	EquityTypeID               int       `db:"equity_type_id" json:"equity_type_id"`
	PeriodID                   int       `db:"period_id" json:"period_id"`
	TickerID                   string    `db:"ticker_id" json:"ticker_id"`
	PatternType                string    `db:"pattern_type" json:"pattern_type"`
	TsPatternTickFirst         int64     `db:"ts_pattern_tick_first" json:"ts_pattern_tick_first"`
	TsPatternTickLast          int64     `db:"ts_pattern_tick_last" json:"ts_pattern_tick_last"`
	TsBreakout                 int64     `db:"ts_breakout" json:"ts_breakout"`
	PositionFirst              int       `db:"position_first" json:"position_first"`
	PositionLast               int       `db:"position_last" json:"position_last"`
	SlopeUpperPct              float64   `db:"slope_upper_pct" json:"slope_upper_pct"`
	SlopeLowerPct              float64   `db:"slope_lower_pct" json:"slope_lower_pct"`
	SlopeRegressionPct         float64   `db:"slope_regression_pct" json:"slope_regression_pct"`
	HeightStart                float64   `db:"height_start" json:"height_start"`
	HeightEnd                  float64   `db:"height_end" json:"height_end"`
	TouchPointsUpper           int       `db:"touch_points_upper" json:"touch_points_upper"`
	TouchPointsLower           int       `db:"touch_points_lower" json:"touch_points_lower"`
	PreviousPeriodTopOutPct    float64   `db:"previous_period_top_out_pct" json:"previous_period_top_out_pct"`
	PreviousPeriodBottomOutPct float64   `db:"previous_period_bottom_out_pct" json:"previous_period_bottom_out_pct"`
	ExpectedWin                float64   `db:"expected_win" json:"expected_win"`
	BreakoutDirection          string    `db:"breakout_direction" json:"breakout_direction"`
	VolumeChangePct            float64   `db:"volume_change_pct" json:"volume_change_pct"`
	TradeReachedPct            float64   `db:"trade_reached_pct" json:"trade_reached_pct"`
	TradeResult                int       `db:"trade_result" json:"trade_result"`
	FibonacciDirection         string    `db:"fibonacci_direction" json:"fibonacci_direction"`
	CreatedAt                  time.Time `db:"created_at" json:"created_at"`
}

// TradeRecord is the flat row stored for each pattern trade.
type TradeRecord struct {
	TradeID               string    `db:"trade_id" json:"trade_id"`
	PatternID             string    `db:"pattern_id" json:"pattern_id"`
	EquityTypeID          int       `db:"equity_type_id" json:"equity_type_id"`
	PeriodID              int       `db:"period_id" json:"period_id"`
	TickerID              string    `db:"ticker_id" json:"ticker_id"`
	PatternType           string    `db:"pattern_type" json:"pattern_type"`
	BuyTrigger            string    `db:"buy_trigger" json:"buy_trigger"`
	TradeStrategy         string    `db:"trade_strategy" json:"trade_strategy"`
	TradeBox              string    `db:"trade_box" json:"trade_box"`
	Status                string    `db:"status" json:"status"`
	Side                  string    `db:"side" json:"side"`
	TsPatternTickFirst    int64     `db:"ts_pattern_tick_first" json:"ts_pattern_tick_first"`
	TsPatternTickLast     int64     `db:"ts_pattern_tick_last" json:"ts_pattern_tick_last"`
	TsBuy                 int64     `db:"ts_buy" json:"ts_buy"`
	BuyPrice              float64   `db:"buy_price" json:"buy_price"`
	TsSell                int64     `db:"ts_sell" json:"ts_sell"`
	SellPrice             float64   `db:"sell_price" json:"sell_price"`
	ExpectedWin           float64   `db:"expected_win" json:"expected_win"`
	MaxTickerLastPrice    float64   `db:"max_ticker_last_price" json:"max_ticker_last_price"`
	MaxTickerLastPricePct float64   `db:"max_ticker_last_price_pct" json:"max_ticker_last_price_pct"`
	RealisedPct           float64   `db:"realised_pct" json:"realised_pct"`
	TradeResult           int       `db:"trade_result" json:"trade_result"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}
