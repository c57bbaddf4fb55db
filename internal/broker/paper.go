package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"pattern-trader/internal/errors"
	"pattern-trader/internal/models"
)

// PaperExchange implements the Exchange interface for simulated trading.
type PaperExchange struct {
	cfg PaperConfig

	positions map[string]*models.Position
	orders    map[string]*models.Order
	sequence  []string
	waiting   map[string]int // order id -> polls left until fill
	fillPrice map[string]float64
	balance   *models.Balance

	orderCounter int
	priceCache   map[string]float64
	clock        func() time.Time

	mu sync.RWMutex
}

// PaperConfig holds configuration for the paper exchange.
type PaperConfig struct {
	InitialBalance float64
	HodlAmount     float64 // cash that entry orders must leave untouched
	MaxOrderValue  float64 // 0 disables the check
	FillAfterPolls int     // orders stay OPEN for this many GetOrder calls
	Clock          func() time.Time
}

// NewPaperExchange creates a new paper exchange.
func NewPaperExchange(cfg PaperConfig) *PaperExchange {
	if cfg.InitialBalance == 0 {
		cfg.InitialBalance = 10000
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PaperExchange{
		cfg:        cfg,
		positions:  make(map[string]*models.Position),
		orders:     make(map[string]*models.Order),
		waiting:    make(map[string]int),
		fillPrice:  make(map[string]float64),
		balance:    &models.Balance{AvailableCash: cfg.InitialBalance, TotalEquity: cfg.InitialBalance},
		priceCache: make(map[string]float64),
		clock:      clock,
	}
}

// PlaceOrder simulates order placement at lastPrice. Entry orders are
// checked against the trade guards first.
func (p *PaperExchange) PlaceOrder(ctx context.Context, order *models.Order, lastPrice float64) (*OrderResult, error) {
	if order.Quantity <= 0 {
		return nil, errors.NewValidationError("quantity", order.Quantity, "must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if lastPrice > 0 {
		p.priceCache[order.Symbol] = lastPrice
	}
	execPrice := p.priceCache[order.Symbol]
	if order.Type == models.OrderTypeLimit && order.Price > 0 {
		execPrice = order.Price
	}
	if execPrice <= 0 {
		return nil, errors.NewValidationError("price", execPrice, fmt.Sprintf("no price for %s", order.Symbol))
	}

	if p.opensExposure(order) {
		if err := p.checkGuards(order, execPrice); err != nil {
			return nil, err
		}
	}

	p.orderCounter++
	orderID := fmt.Sprintf("PAPER_%d", p.orderCounter)
	newOrder := &models.Order{
		ID:           orderID,
		TradeID:      order.TradeID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		Type:         order.Type,
		Quantity:     order.Quantity,
		Price:        order.Price,
		TriggerPrice: order.TriggerPrice,
		Tag:          order.Tag,
		PlacedAt:     p.clock(),
	}
	p.orders[orderID] = newOrder
	p.sequence = append(p.sequence, orderID)

	if p.cfg.FillAfterPolls > 0 {
		newOrder.Status = models.OrderStatusOpen
		p.waiting[orderID] = p.cfg.FillAfterPolls
		p.fillPrice[orderID] = execPrice
	} else {
		p.fill(newOrder, execPrice)
	}

	return &OrderResult{
		OrderID: orderID,
		Status:  newOrder.Status,
		Message: "Paper order placed",
	}, nil
}

// opensExposure reports whether order increases the absolute position.
func (p *PaperExchange) opensExposure(order *models.Order) bool {
	if order.Tag == TagExit {
		return false
	}
	pos, ok := p.positions[order.Symbol]
	if !ok || pos.Quantity == 0 {
		return true
	}
	return (pos.Quantity > 0) == (order.Side == models.OrderSideBuy)
}

func (p *PaperExchange) checkGuards(order *models.Order, price float64) error {
	value := order.Value(price)
	if p.cfg.MaxOrderValue > 0 && value > p.cfg.MaxOrderValue {
		return errors.NewTradeGuardError(order.TradeID,
			fmt.Sprintf("order value %.2f exceeds max %.2f", value, p.cfg.MaxOrderValue), nil)
	}
	if p.balance.AvailableCash < value {
		return errors.NewTradeGuardError(order.TradeID,
			fmt.Sprintf("need %.2f, have %.2f", value, p.balance.AvailableCash), errors.ErrInsufficientFunds)
	}
	if p.balance.AvailableCash-value < p.cfg.HodlAmount {
		return errors.NewTradeGuardError(order.TradeID,
			fmt.Sprintf("order would touch the hodl amount %.2f", p.cfg.HodlAmount), errors.ErrInsufficientFunds)
	}
	return nil
}

// fill completes order at price and books it against cash and positions.
func (p *PaperExchange) fill(order *models.Order, price float64) {
	order.Status = models.OrderStatusComplete
	order.FilledQty = order.Quantity
	order.AveragePrice = price
	order.FilledAt = p.clock()
	p.updatePosition(order.Symbol, order.Side, order.Quantity, price)
}

// GetOrder returns a copy of the order. Each call on an open order counts as
// one poll towards its fill.
func (p *PaperExchange) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}
	if left, waiting := p.waiting[orderID]; waiting && order.IsOpen() {
		left--
		if left <= 0 {
			delete(p.waiting, orderID)
			p.fill(order, p.fillPrice[orderID])
		} else {
			p.waiting[orderID] = left
		}
	}
	o := *order
	return &o, nil
}

// CancelOrder simulates order cancellation.
func (p *PaperExchange) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}
	if !order.IsOpen() {
		return fmt.Errorf("cannot cancel order with status: %s", order.Status)
	}
	order.Status = models.OrderStatusCancelled
	delete(p.waiting, orderID)
	return nil
}

// GetPositions returns simulated positions marked at the last known price.
func (p *PaperExchange) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if price := p.priceCache[pos.Symbol]; price > 0 {
			mark(pos, price)
		}
		positions = append(positions, *pos)
	}
	return positions, nil
}

// GetBalance returns the simulated balance. Equity includes the margin held
// by open positions and their unrealised profit.
func (p *PaperExchange) GetBalance(ctx context.Context) (*models.Balance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	used := 0.0
	equity := p.balance.AvailableCash
	for _, pos := range p.positions {
		margin := math.Abs(pos.Quantity) * pos.AveragePrice
		used += margin
		equity += margin
		if price := p.priceCache[pos.Symbol]; price > 0 {
			equity += (price - pos.AveragePrice) * pos.Quantity
		}
	}
	return &models.Balance{
		AvailableCash: p.balance.AvailableCash,
		UsedMargin:    used,
		TotalEquity:   equity,
	}, nil
}

// updatePosition books a fill. Opening quantity consumes cash as margin;
// closing quantity releases the margin plus the realised profit.
func (p *PaperExchange) updatePosition(symbol string, side models.OrderSide, qty, price float64) {
	signed := qty
	if side == models.OrderSideSell {
		signed = -qty
	}

	pos, exists := p.positions[symbol]
	if !exists {
		pos = &models.Position{Symbol: symbol}
		p.positions[symbol] = pos
	}

	if pos.Quantity != 0 && (pos.Quantity > 0) != (signed > 0) {
		closed := math.Min(qty, math.Abs(pos.Quantity))
		direction := 1.0
		if pos.Quantity < 0 {
			direction = -1
		}
		p.balance.AvailableCash += closed*pos.AveragePrice + closed*(price-pos.AveragePrice)*direction
		pos.Quantity += direction * -closed
		qty -= closed
		if qty <= 0 {
			if pos.Quantity == 0 {
				delete(p.positions, symbol)
				return
			}
			mark(pos, price)
			return
		}
		// position flipped
		pos.AveragePrice = 0
		pos.Quantity = 0
	}

	totalValue := pos.AveragePrice*math.Abs(pos.Quantity) + price*qty
	if signed > 0 {
		pos.Quantity += qty
	} else {
		pos.Quantity -= qty
	}
	pos.AveragePrice = totalValue / math.Abs(pos.Quantity)
	p.balance.AvailableCash -= price * qty
	mark(pos, price)
}

func mark(pos *models.Position, price float64) {
	pos.LTP = price
	pos.Value = price * pos.Quantity
	pos.PnL = (price - pos.AveragePrice) * pos.Quantity
	if pos.AveragePrice > 0 {
		pos.PnLPercent = (price - pos.AveragePrice) / pos.AveragePrice * 100
		if pos.Quantity < 0 {
			pos.PnLPercent = -pos.PnLPercent
		}
	}
}

// UpdatePrice updates the cached price for a symbol.
func (p *PaperExchange) UpdatePrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceCache[symbol] = price
}

// Reset resets the paper exchange to its initial state.
func (p *PaperExchange) Reset(initialBalance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.positions = make(map[string]*models.Position)
	p.orders = make(map[string]*models.Order)
	p.waiting = make(map[string]int)
	p.fillPrice = make(map[string]float64)
	p.sequence = nil
	p.balance = &models.Balance{
		AvailableCash: initialBalance,
		TotalEquity:   initialBalance,
	}
	p.orderCounter = 0
	p.priceCache = make(map[string]float64)
}

// GetTrades returns all filled orders in placement order.
func (p *PaperExchange) GetTrades() []models.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()

	trades := make([]models.Order, 0, len(p.sequence))
	for _, id := range p.sequence {
		if o := p.orders[id]; o.Status == models.OrderStatusComplete {
			trades = append(trades, *o)
		}
	}
	return trades
}

// Ensure PaperExchange implements Exchange interface
var _ Exchange = (*PaperExchange)(nil)
