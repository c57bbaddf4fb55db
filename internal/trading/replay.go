package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"pattern-trader/internal/analysis/patterns"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/broker"
	"pattern-trader/internal/config"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
)

// ReplayEngine replays a series as tickers against the trades of its
// detected patterns on a paper exchange. The exchange is reset at the start
// of every Run, so a single engine must not run concurrently.
type ReplayEngine struct {
	cfg      config.TradeConfig
	tracer   logging.Tracer
	logger   zerolog.Logger
	exchange *broker.PaperExchange
}

// ReplayResult represents the outcome of a replay.
type ReplayResult struct {
	Symbol        string            `json:"symbol"`
	TotalReturn   float64           `json:"total_return"`
	WinRate       float64           `json:"win_rate"`
	MaxDrawdown   float64           `json:"max_drawdown"`
	SharpeRatio   float64           `json:"sharpe_ratio"`
	TotalTrades   int               `json:"total_trades"`
	WinningTrades int               `json:"winning_trades"`
	LosingTrades  int               `json:"losing_trades"`
	AvgWin        float64           `json:"avg_win"`
	AvgLoss       float64           `json:"avg_loss"`
	ProfitFactor  float64           `json:"profit_factor"`
	EquityCurve   []EquityPoint     `json:"equity_curve"`
	Trades        []*PatternTrade   `json:"-"`
	Events        []TradeEvent      `json:"events"`
	WaveTicks     []models.WaveTick `json:"wave_ticks"`
}

// EquityPoint represents a point on the equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// replayState holds the state during a replay.
type replayState struct {
	equity      float64
	peakEquity  float64
	maxDrawdown float64
}

// NewReplayEngine creates a replay engine.
func NewReplayEngine(cfg config.TradeConfig, tracer logging.Tracer, logger zerolog.Logger) *ReplayEngine {
	if tracer == nil {
		tracer = logging.NopTracer{}
	}
	exchange := broker.NewPaperExchange(broker.PaperConfig{
		InitialBalance: cfg.InitialBalance,
		HodlAmount:     cfg.HodlAmount,
		MaxOrderValue:  cfg.MaxOrderValue,
		Clock:          func() time.Time { return time.Unix(0, 0).UTC() },
	})
	return &ReplayEngine{cfg: cfg, tracer: tracer, logger: logger, exchange: exchange}
}

// Run replays every tick after the earliest formation end. Trades still open
// at the last tick are closed at its price.
func (re *ReplayEngine) Run(ctx context.Context, sctx *series.Context, pats []*patterns.Pattern) (*ReplayResult, error) {
	if re.cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive")
	}
	result := &ReplayResult{Symbol: sctx.Symbol}
	if len(pats) == 0 || sctx.Len() == 0 {
		return result, nil
	}

	exchange := re.exchange
	exchange.Reset(re.cfg.InitialBalance)
	handler := NewHandler(re.cfg, exchange, WithHandlerTracer(re.tracer), WithHandlerLogger(re.logger))

	start := sctx.LastPosition()
	for _, p := range pats {
		if _, err := handler.AddPattern(p, sctx); err != nil {
			return nil, err
		}
		if p.PositionLast() < start {
			start = p.PositionLast()
		}
	}

	state := &replayState{
		equity:     re.cfg.InitialBalance,
		peakEquity: re.cfg.InitialBalance,
	}
	aggregator := NewWaveTickAggregator(re.cfg.WaveTickWindowSecond)

	var last models.Ticker
	for _, tick := range sctx.Ticks.Between(start+1, sctx.LastPosition()) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tk := models.Ticker{
			TickerID:  sctx.Symbol,
			Bid:       tick.Close,
			Ask:       tick.Close,
			LastPrice: tick.Close,
			Timestamp: tick.Timestamp,
		}
		last = tk
		aggregator.Add(tk)
		exchange.UpdatePrice(tk.TickerID, tk.LastPrice)
		if _, err := handler.OnTicker(ctx, tk); err != nil {
			return nil, err
		}
		if err := re.mark(ctx, exchange, state, result, tick.Time()); err != nil {
			return nil, err
		}
	}

	if last.Timestamp != 0 {
		if _, err := handler.CloseAll(ctx, last); err != nil {
			return nil, err
		}
		if err := re.mark(ctx, exchange, state, result, time.Unix(last.Timestamp, 0).UTC()); err != nil {
			return nil, err
		}
	}

	result.Trades = handler.Trades()
	result.Events = handler.Events()
	result.WaveTicks = aggregator.Flush()
	re.calculateMetrics(result, state)
	return result, nil
}

// mark appends the current equity to the curve and tracks the drawdown.
func (re *ReplayEngine) mark(ctx context.Context, exchange broker.Exchange, state *replayState, result *ReplayResult, ts time.Time) error {
	balance, err := exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("reading balance: %w", err)
	}
	state.equity = balance.TotalEquity
	if state.equity > state.peakEquity {
		state.peakEquity = state.equity
	}
	drawdown := (state.peakEquity - state.equity) / state.peakEquity
	if drawdown > state.maxDrawdown {
		state.maxDrawdown = drawdown
	}
	result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: ts, Equity: state.equity})
	return nil
}

// calculateMetrics calculates replay performance metrics over the trades that
// were bought and sold.
func (re *ReplayEngine) calculateMetrics(result *ReplayResult, state *replayState) {
	result.TotalReturn = (state.equity - re.cfg.InitialBalance) / re.cfg.InitialBalance * 100
	result.MaxDrawdown = state.maxDrawdown * 100

	var wins, losses []float64
	for _, t := range result.Trades {
		if t.BuyPrice == 0 || t.SellPrice == 0 {
			continue
		}
		result.TotalTrades++
		if pnl := t.PnL(); pnl > 0 {
			result.WinningTrades++
			wins = append(wins, pnl)
		} else {
			result.LosingTrades++
			losses = append(losses, pnl)
		}
	}
	if result.TotalTrades == 0 {
		return
	}

	result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100

	if len(wins) > 0 {
		for _, w := range wins {
			result.AvgWin += w
		}
		result.AvgWin /= float64(len(wins))
	}
	if len(losses) > 0 {
		for _, l := range losses {
			result.AvgLoss += l
		}
		result.AvgLoss /= float64(len(losses))
	}

	if result.AvgLoss != 0 && len(losses) > 0 {
		totalWins := result.AvgWin * float64(len(wins))
		totalLosses := math.Abs(result.AvgLoss) * float64(len(losses))
		if totalLosses > 0 {
			result.ProfitFactor = totalWins / totalLosses
		}
	}

	result.SharpeRatio = sharpeRatio(result.EquityCurve)
}

// sharpeRatio annualises the mean excess return per tick over its sample
// standard deviation, assuming 252 ticks a year.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 3 {
		return 0
	}

	returns := make([]float64, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		returns[i-1] = (curve[i].Equity - curve[i-1].Equity) / curve[i-1].Equity
	}

	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (mean - 0.05/252) / std * math.Sqrt(252)
}
