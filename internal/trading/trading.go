// Package trading manages pattern trades: the state machine that buys on a
// confirmed breakout and sells against a trading box, the handler that feeds
// tickers to every open trade, and the replay engine.
package trading

import (
	"fmt"
	"strings"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/errors"
)

// State is the life-cycle state of a pattern trade.
type State string

const (
	StateNew         State = "NEW"
	StateInExecution State = "IN_EXECUTION"
	StateExecuted    State = "EXECUTED"
	StatePending     State = "PENDING"
	StateFinished    State = "FINISHED"
)

// Result of a finished trade.
const (
	ResultLoser   = -1
	ResultNeutral = 0
	ResultWinner  = 1
)

// BuyTrigger selects the precondition for the buy order.
type BuyTrigger string

const (
	BuyTriggerBreakout BuyTrigger = "BREAKOUT"
	BuyTriggerSMA      BuyTrigger = "SMA"
)

// StrategyKind selects how the exit is managed.
type StrategyKind string

const (
	StrategyLimit               StrategyKind = "LIMIT"
	StrategyLimitFix            StrategyKind = "LIMIT_FIX"
	StrategyTrailingStop        StrategyKind = "TRAILING_STOP"
	StrategyTrailingSteppedStop StrategyKind = "TRAILING_STEPPED_STOP"
)

// sellsAtLimit reports whether the strategy exits when the limit is reached.
func (s StrategyKind) sellsAtLimit() bool {
	return s == StrategyLimit || s == StrategyLimitFix
}

// BoxKind selects the trading box.
type BoxKind string

const (
	BoxExpectedWin BoxKind = "EXPECTED_WIN"
	BoxTouchPoint  BoxKind = "TOUCH_POINT"
)

// Action names the order or decision attached to a transition.
type Action string

const (
	ActionBreakoutCount      Action = "breakout_count"
	ActionWrongBreakoutCount Action = "wrong_breakout_count"
	ActionBuy                Action = "buy"
	ActionBuyFilled          Action = "buy_filled"
	ActionSellLimit          Action = "sell_limit"
	ActionSellStop           Action = "sell_stop"
	ActionSellMarket         Action = "sell_market"
	ActionSellFilled         Action = "sell_filled"
	ActionWrongBreakout      Action = "wrong_breakout"
	ActionVanished           Action = "vanished"
	ActionStopUpdate         Action = "stop_update"
	ActionBoxShift           Action = "box_shift"
)

// TradeEvent is one observable step of a pattern trade.
type TradeEvent struct {
	TradeID   string  `json:"trade_id"`
	Timestamp int64   `json:"timestamp"`
	From      State   `json:"from"`
	To        State   `json:"to"`
	Action    Action  `json:"action"`
	Price     float64 `json:"price"`
	Stop      float64 `json:"stop,omitempty"`
	Limit     float64 `json:"limit,omitempty"`
}

func (e TradeEvent) String() string {
	return fmt.Sprintf("%s %d %s->%s %s %.4f", e.TradeID, e.Timestamp, e.From, e.To, e.Action, e.Price)
}

// ParseStrategy resolves a strategy name.
func ParseStrategy(s string) (StrategyKind, error) {
	k := StrategyKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case StrategyLimit, StrategyLimitFix, StrategyTrailingStop, StrategyTrailingSteppedStop:
		return k, nil
	}
	return "", errors.NewValidationError("trade_strategy", s, "unknown strategy")
}

// ParseBoxKind resolves a trading box name.
func ParseBoxKind(s string) (BoxKind, error) {
	k := BoxKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case BoxExpectedWin, BoxTouchPoint:
		return k, nil
	}
	return "", errors.NewValidationError("trade_box", s, "unknown trading box")
}

// ParseBuyTrigger resolves a buy trigger name.
func ParseBuyTrigger(s string) (BuyTrigger, error) {
	k := BuyTrigger(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case BuyTriggerBreakout, BuyTriggerSMA:
		return k, nil
	}
	return "", errors.NewValidationError("buy_trigger", s, "unknown buy trigger")
}

// tradeDirection returns the side a trade takes for a pattern: the accepted
// breakout direction, else the anticipated one, long when either is possible.
func tradeDirection(breakout, expected analysis.Direction) analysis.Direction {
	if breakout == analysis.DirectionUp || breakout == analysis.DirectionDown {
		return breakout
	}
	if expected == analysis.DirectionDown {
		return analysis.DirectionDown
	}
	return analysis.DirectionUp
}
