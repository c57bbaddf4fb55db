package trading

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"pattern-trader/internal/analysis/patterns"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/broker"
	"pattern-trader/internal/config"
	"pattern-trader/internal/errors"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
)

// Handler owns the pattern trades of one run and feeds them tickers in
// creation order.
type Handler struct {
	cfg      config.TradeConfig
	exchange broker.Exchange
	tracer   logging.Tracer
	logger   zerolog.Logger

	trades []*PatternTrade
	byID   map[string]*PatternTrade
	events []TradeEvent
	lastTs int64

	mu sync.RWMutex
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerTracer sets the observability sink passed to every trade.
func WithHandlerTracer(t logging.Tracer) HandlerOption {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithHandlerLogger sets the logger used for finished trades.
func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates a trade handler placing orders on exchange.
func NewHandler(cfg config.TradeConfig, exchange broker.Exchange, opts ...HandlerOption) *Handler {
	h := &Handler{
		cfg:      cfg,
		exchange: exchange,
		tracer:   logging.NopTracer{},
		logger:   zerolog.Nop(),
		byID:     make(map[string]*PatternTrade),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddPattern creates a trade for p. Adding the same pattern twice returns the
// existing trade.
func (h *Handler) AddPattern(p *patterns.Pattern, sctx *series.Context) (*PatternTrade, error) {
	t, err := NewPatternTrade(p, sctx, h.cfg, h.exchange, h.tracer)
	if err != nil {
		return nil, fmt.Errorf("creating trade for pattern %s: %w", p.ID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.byID[t.ID]; ok {
		return existing, nil
	}
	h.trades = append(h.trades, t)
	h.byID[t.ID] = t
	return t, nil
}

// OnTicker feeds tk to every open trade and returns the resulting events.
// A ticker older than the last one seen is rejected with ErrOutOfOrderTicker.
func (h *Handler) OnTicker(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if tk.Timestamp < h.lastTs {
		return nil, fmt.Errorf("%w: %d before %d", errors.ErrOutOfOrderTicker, tk.Timestamp, h.lastTs)
	}
	h.lastTs = tk.Timestamp

	var out []TradeEvent
	for _, t := range h.trades {
		if !t.IsOpen() || t.Pattern.Symbol != tk.TickerID {
			continue
		}
		events, err := t.OnTicker(ctx, tk)
		out = append(out, events...)
		if err != nil {
			h.events = append(h.events, out...)
			return out, err
		}
		if !t.IsOpen() {
			logging.LogTrade(h.logger, t.ID, t.Pattern.Symbol, t.BuyPrice, t.SellPrice, t.Result)
		}
	}
	h.events = append(h.events, out...)
	return out, nil
}

// CloseAll force-closes every open trade at tk.
func (h *Handler) CloseAll(ctx context.Context, tk models.Ticker) ([]TradeEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []TradeEvent
	for _, t := range h.trades {
		if !t.IsOpen() || t.Pattern.Symbol != tk.TickerID {
			continue
		}
		events, err := t.ForceClose(ctx, tk)
		out = append(out, events...)
		if err != nil {
			h.events = append(h.events, out...)
			return out, err
		}
	}
	h.events = append(h.events, out...)
	return out, nil
}

// Trades returns the trades in creation order.
func (h *Handler) Trades() []*PatternTrade {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*PatternTrade, len(h.trades))
	copy(out, h.trades)
	return out
}

// Open returns the trades that are not finished.
func (h *Handler) Open() []*PatternTrade {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*PatternTrade
	for _, t := range h.trades {
		if t.IsOpen() {
			out = append(out, t)
		}
	}
	return out
}

// Events returns every event emitted so far.
func (h *Handler) Events() []TradeEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TradeEvent, len(h.events))
	copy(out, h.events)
	return out
}
