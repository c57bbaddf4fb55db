package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/markcheno/go-talib"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/patterns"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/broker"
	"pattern-trader/internal/config"
	"pattern-trader/internal/errors"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
)

var tradeNamespace = uuid.MustParse("2c8e4a91-7b5d-4f0e-8c3a-d91f6b2e7a40")

// PatternTrade drives one pattern through NEW, IN_EXECUTION, EXECUTED,
// PENDING and FINISHED.
type PatternTrade struct {
	ID        string
	Pattern   *patterns.Pattern
	Direction analysis.Direction
	State     State
	Result    int

	Trigger  BuyTrigger
	Strategy StrategyKind
	BoxKind  BoxKind
	Box      *TradingBox

	BuyPrice     float64
	BuyTs        int64
	SellPrice    float64
	SellTs       int64
	Quantity     float64
	BreakoutHits int
	WrongHits    int

	cfg      config.TradeConfig
	series   *series.Context
	exchange broker.Exchange
	tracer   logging.Tracer
	exit     *exitStrategy

	closes        []float64
	ticksNew      int
	ticksExecuted int
	orderID       string
	pendingAction Action
	lastTs        int64
}

// NewPatternTrade creates a NEW trade for p. The series context supplies the
// closes for the SMA precondition and the period for ticker f_var values.
func NewPatternTrade(p *patterns.Pattern, sctx *series.Context, cfg config.TradeConfig, exchange broker.Exchange, tracer logging.Tracer) (*PatternTrade, error) {
	trigger, err := ParseBuyTrigger(cfg.BuyTrigger)
	if err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	box, err := ParseBoxKind(cfg.Box)
	if err != nil {
		return nil, err
	}
	if tracer == nil {
		tracer = logging.NopTracer{}
	}

	key := fmt.Sprintf("%s|%s|%s|%s", p.ID, trigger, strategy, box)
	t := &PatternTrade{
		ID:        uuid.NewSHA1(tradeNamespace, []byte(key)).String(),
		Pattern:   p,
		Direction: tradeDirection(p.BreakoutDirection(), p.Container.ExpectedDirection()),
		State:     StateNew,
		Trigger:   trigger,
		Strategy:  strategy,
		BoxKind:   box,
		cfg:       cfg,
		series:    sctx,
		exchange:  exchange,
		tracer:    tracer,
		lastTs:    p.Container.TickLast.Timestamp,
	}
	for _, tick := range sctx.Ticks.Between(0, p.PositionLast()) {
		t.closes = append(t.closes, tick.Close)
	}
	return t, nil
}

// IsOpen reports whether the trade still reacts to tickers.
func (t *PatternTrade) IsOpen() bool {
	return t.State != StateFinished
}

// RealisedPct returns the realised return in percent in the trade direction.
func (t *PatternTrade) RealisedPct() float64 {
	if t.BuyPrice == 0 || t.SellPrice == 0 {
		return 0
	}
	return t.Direction.Sign() * (t.SellPrice - t.BuyPrice) / t.BuyPrice * 100
}

// PnL returns the realised profit of the trade.
func (t *PatternTrade) PnL() float64 {
	if t.BuyPrice == 0 || t.SellPrice == 0 {
		return 0
	}
	return t.Direction.Sign() * (t.SellPrice - t.BuyPrice) * t.Quantity
}

// Stop returns the effective stop of an executed trade.
func (t *PatternTrade) Stop() float64 {
	if t.Box == nil {
		return 0
	}
	return t.exit.effectiveStop(t.Box)
}

// Limit returns the effective limit of an executed trade.
func (t *PatternTrade) Limit() float64 {
	if t.Box == nil {
		return 0
	}
	return t.exit.effectiveLimit(t.Box)
}

func (t *PatternTrade) fVar(ts int64) float64 {
	return t.series.Period.FVar(ts)
}

func (t *PatternTrade) event(tk models.Ticker, from State, action Action, price float64) TradeEvent {
	return TradeEvent{
		TradeID:   t.ID,
		Timestamp: tk.Timestamp,
		From:      from,
		To:        t.State,
		Action:    action,
		Price:     price,
		Stop:      t.Stop(),
		Limit:     t.Limit(),
	}
}

// OnTicker advances the state machine by one ticker. Tickers at or before the
// end of the formation are ignored.
func (t *PatternTrade) OnTicker(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	if !t.IsOpen() || tk.Timestamp <= t.lastTs {
		return nil, nil
	}
	t.lastTs = tk.Timestamp
	t.closes = append(t.closes, tk.LastPrice)

	switch t.State {
	case StateNew:
		return t.onNew(ctx, tk)
	case StateInExecution:
		return t.onInExecution(ctx, tk)
	case StateExecuted:
		return t.onExecuted(ctx, tk)
	case StatePending:
		return t.onPending(ctx, tk)
	}
	return nil, nil
}

func (t *PatternTrade) levels(x float64) (buy, wrong float64) {
	fc := t.Pattern.Container
	if t.Direction == analysis.DirectionDown {
		return fc.LowerBound(x), fc.UpperBound(x)
	}
	return fc.UpperBound(x), fc.LowerBound(x)
}

func (t *PatternTrade) onNew(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	t.ticksNew++
	s := t.Direction.Sign()
	x := t.fVar(tk.Timestamp)
	price := tk.LastPrice
	level, wrong := t.levels(x)
	var events []TradeEvent

	if s*(price-wrong) < 0 {
		t.WrongHits++
		events = append(events, t.event(tk, StateNew, ActionWrongBreakoutCount, price))
		if t.WrongHits >= t.cfg.WrongBreakoutCount {
			t.finish(ResultLoser)
			events = append(events, t.event(tk, StateNew, ActionWrongBreakout, price))
		}
		return events, nil
	}

	band := level * (1 + s*t.cfg.BreakoutMarginPct)
	if s*(price-level) >= 0 && s*(price-band) < 0 {
		t.BreakoutHits++
		events = append(events, t.event(tk, StateNew, ActionBreakoutCount, price))
	}

	if t.BreakoutHits >= t.cfg.BreakoutCount && t.smaHolds(x) {
		ev, err := t.buy(ctx, tk)
		if err != nil {
			return events, err
		}
		return append(events, ev...), nil
	}

	if t.vanished(x, price, band) {
		t.finish(ResultNeutral)
		events = append(events, t.event(tk, StateNew, ActionVanished, price))
	}
	return events, nil
}

// vanished reports whether a NEW trade outlived its validity or the apex of
// its formation, or whether price left the envelope beyond the buy band.
func (t *PatternTrade) vanished(x, price, band float64) bool {
	if t.cfg.ValidityTicks > 0 && t.ticksNew >= t.cfg.ValidityTicks {
		return true
	}
	if t.Direction.Sign()*(price-band) >= 0 {
		return true
	}
	fc := t.Pattern.Container
	return fc.HasCross && x >= fc.CrossX
}

// smaHolds evaluates the SMA precondition of the SMA buy trigger.
func (t *PatternTrade) smaHolds(x float64) bool {
	if t.Trigger != BuyTriggerSMA {
		return true
	}
	n := t.series.Config.SimpleMovingAverageNumber
	if n <= 1 || len(t.closes) < n {
		return false
	}
	sma := talib.Sma(t.closes, n)
	last := sma[len(sma)-1]
	fc := t.Pattern.Container
	if t.Direction == analysis.DirectionDown {
		return last <= fc.UpperBound(x)
	}
	return last >= fc.LowerBound(x)
}

func (t *PatternTrade) side(entry bool) models.OrderSide {
	long := t.Direction != analysis.DirectionDown
	if long == entry {
		return models.OrderSideBuy
	}
	return models.OrderSideSell
}

func (t *PatternTrade) buy(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	price := tk.LastPrice
	qty := 1.0
	if t.cfg.OrderValue > 0 && price > 0 {
		qty = t.cfg.OrderValue / price
	}
	order := &models.Order{
		TradeID:  t.ID,
		Symbol:   t.Pattern.Symbol,
		Side:     t.side(true),
		Type:     models.OrderTypeMarket,
		Quantity: qty,
		Tag:      broker.TagEntry,
		PlacedAt: time.Unix(tk.Timestamp, 0).UTC(),
	}
	res, err := t.exchange.PlaceOrder(ctx, order, price)
	if err != nil {
		if errors.Is(err, errors.ErrTradeGuard) {
			t.tracer.Trace("trade_guard", map[string]interface{}{
				"trade_id": t.ID,
				"price":    price,
				"reason":   err.Error(),
			})
			return nil, nil
		}
		return nil, errors.Wrapf(err, "placing buy order for trade %s", t.ID)
	}

	t.Quantity = qty
	t.BuyTs = tk.Timestamp
	if res.Status == models.OrderStatusOpen {
		t.orderID = res.OrderID
		t.State = StateInExecution
		return []TradeEvent{t.event(tk, StateNew, ActionBuy, price)}, nil
	}
	t.execute(price)
	return []TradeEvent{t.event(tk, StateNew, ActionBuy, price)}, nil
}

// execute builds the box and the exit strategy around the fill price.
func (t *PatternTrade) execute(price float64) {
	p := t.Pattern
	t.BuyPrice = price
	high, low := p.HighLow(t.series.Ticks.Ticks())
	t.Box = NewTradingBox(t.BoxKind, t.Direction, price, p.ExpectedWin, high, low)
	t.exit = newExitStrategy(t.Strategy, t.Direction, price, p.ExpectedWin,
		t.cfg.TrailDistance, t.cfg.StepSize, t.cfg.LimitFixPct)
	t.State = StateExecuted
	t.tracer.Trace("trade_executed", map[string]interface{}{
		"trade_id": t.ID,
		"price":    price,
		"stop":     t.Stop(),
		"limit":    t.Limit(),
	})
}

func (t *PatternTrade) onInExecution(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	order, err := t.exchange.GetOrder(ctx, t.orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "polling buy order for trade %s", t.ID)
	}
	if order.IsOpen() {
		return nil, nil
	}
	if order.Status != models.OrderStatusComplete {
		t.finish(ResultNeutral)
		return []TradeEvent{t.event(tk, StateInExecution, ActionVanished, tk.LastPrice)}, nil
	}
	t.orderID = ""
	t.execute(order.AveragePrice)
	return []TradeEvent{t.event(tk, StateInExecution, ActionBuyFilled, order.AveragePrice)}, nil
}

func (t *PatternTrade) onExecuted(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	t.ticksExecuted++
	price := tk.LastPrice
	s := t.Direction.Sign()
	var events []TradeEvent

	if t.Strategy.sellsAtLimit() {
		if limit := t.exit.effectiveLimit(t.Box); s*(price-limit) >= 0 {
			ev, err := t.sell(ctx, tk, ActionSellLimit, models.OrderTypeLimit, limit)
			return append(events, ev...), err
		}
	}

	stopBefore := t.Stop()
	if t.Box.Update(price) {
		events = append(events, t.event(tk, StateExecuted, ActionBoxShift, price))
	}
	t.exit.update(price)
	if stop := t.Stop(); stop != stopBefore {
		events = append(events, t.event(tk, StateExecuted, ActionStopUpdate, stop))
	}

	if s*(price-t.Stop()) < 0 {
		ev, err := t.sell(ctx, tk, ActionSellStop, models.OrderTypeMarket, 0)
		return append(events, ev...), err
	}
	if t.cfg.ForecastTicks > 0 && t.ticksExecuted >= t.cfg.ForecastTicks {
		ev, err := t.sell(ctx, tk, ActionSellMarket, models.OrderTypeMarket, 0)
		return append(events, ev...), err
	}
	return events, nil
}

func (t *PatternTrade) sell(ctx context.Context, tk models.Ticker, action Action, typ models.OrderType, limit float64) ([]TradeEvent, error) {
	order := &models.Order{
		TradeID:  t.ID,
		Symbol:   t.Pattern.Symbol,
		Side:     t.side(false),
		Type:     typ,
		Quantity: t.Quantity,
		Price:    limit,
		Tag:      broker.TagExit,
		PlacedAt: time.Unix(tk.Timestamp, 0).UTC(),
	}
	res, err := t.exchange.PlaceOrder(ctx, order, tk.LastPrice)
	if err != nil {
		return nil, errors.Wrapf(err, "placing sell order for trade %s", t.ID)
	}
	t.SellTs = tk.Timestamp
	if res.Status == models.OrderStatusOpen {
		t.orderID = res.OrderID
		t.pendingAction = action
		t.State = StatePending
		return []TradeEvent{t.event(tk, StateExecuted, action, tk.LastPrice)}, nil
	}
	fill, err := t.exchange.GetOrder(ctx, res.OrderID)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sell order for trade %s", t.ID)
	}
	t.close(fill.AveragePrice)
	return []TradeEvent{t.event(tk, StateExecuted, action, fill.AveragePrice)}, nil
}

func (t *PatternTrade) onPending(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	order, err := t.exchange.GetOrder(ctx, t.orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "polling sell order for trade %s", t.ID)
	}
	if order.IsOpen() {
		return nil, nil
	}
	t.orderID = ""
	t.close(order.AveragePrice)
	return []TradeEvent{t.event(tk, StatePending, ActionSellFilled, order.AveragePrice)}, nil
}

// close finishes an executed trade at the sell price.
func (t *PatternTrade) close(price float64) {
	t.SellPrice = price
	switch pct := t.RealisedPct(); {
	case pct > 0:
		t.finish(ResultWinner)
	case pct < 0:
		t.finish(ResultLoser)
	default:
		t.finish(ResultNeutral)
	}
}

func (t *PatternTrade) finish(result int) {
	t.State = StateFinished
	t.Result = result
	t.tracer.Trace("trade_finished", map[string]interface{}{
		"trade_id": t.ID,
		"result":   result,
		"realised": t.RealisedPct(),
	})
}

// ForceClose sells an executed trade at price, e.g. at the end of a replay.
func (t *PatternTrade) ForceClose(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	switch t.State {
	case StateExecuted:
		return t.sell(ctx, tk, ActionSellMarket, models.OrderTypeMarket, 0)
	case StateNew, StateInExecution:
		if t.orderID != "" {
			_ = t.exchange.CancelOrder(ctx, t.orderID)
		}
		from := t.State
		t.finish(ResultNeutral)
		return []TradeEvent{t.event(tk, from, ActionVanished, tk.LastPrice)}, nil
	}
	return nil, nil
}

// Record returns the flat persistence record of the trade.
func (t *PatternTrade) Record() models.TradeRecord {
	p := t.Pattern.Record()
	rec := models.TradeRecord{
		TradeID:            t.ID,
		PatternID:          p.PatternID,
		EquityTypeID:       p.EquityTypeID,
		PeriodID:           p.PeriodID,
		TickerID:           p.TickerID,
		PatternType:        p.PatternType,
		BuyTrigger:         string(t.Trigger),
		TradeStrategy:      string(t.Strategy),
		TradeBox:           string(t.BoxKind),
		Status:             string(t.State),
		Side:               string(t.side(true)),
		TsPatternTickFirst: p.TsPatternTickFirst,
		TsPatternTickLast:  p.TsPatternTickLast,
		TsBuy:              t.BuyTs,
		BuyPrice:           t.BuyPrice,
		TsSell:             t.SellTs,
		SellPrice:          t.SellPrice,
		ExpectedWin:        p.ExpectedWin,
		RealisedPct:        math.Round(t.RealisedPct()*10000) / 10000,
		TradeResult:        t.Result,
		CreatedAt:          time.Now().UTC(),
	}
	if t.Box != nil {
		rec.MaxTickerLastPrice = t.Box.MaxTickerLastPrice
		rec.MaxTickerLastPricePct = math.Round(t.Box.MaxTickerLastPricePct*10000) / 10000
	}
	return rec
}
