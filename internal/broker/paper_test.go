package broker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-trader/internal/errors"
	"pattern-trader/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
}

func entry(side models.OrderSide, qty float64) *models.Order {
	return &models.Order{TradeID: "t1", Symbol: "ABC", Side: side, Type: models.OrderTypeMarket, Quantity: qty, Tag: TagEntry}
}

func exit(side models.OrderSide, qty float64) *models.Order {
	o := entry(side, qty)
	o.Tag = TagExit
	return o
}

func TestPaperExchange_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialBalance: 10000, Clock: fixedClock})

	res, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, 10), 100)
	require.NoError(t, err)
	assert.Equal(t, "PAPER_1", res.OrderID)
	assert.Equal(t, models.OrderStatusComplete, res.Status)

	p.UpdatePrice("ABC", 110)
	balance, err := p.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9000.0, balance.AvailableCash, 1e-9)
	assert.InDelta(t, 1000.0, balance.UsedMargin, 1e-9)
	assert.InDelta(t, 10100.0, balance.TotalEquity, 1e-9)

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 100.0, positions[0].PnL, 1e-9)
	assert.InDelta(t, 10.0, positions[0].PnLPercent, 1e-9)

	_, err = p.PlaceOrder(ctx, exit(models.OrderSideSell, 10), 110)
	require.NoError(t, err)
	balance, err = p.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10100.0, balance.AvailableCash, 1e-9)
	assert.Zero(t, balance.UsedMargin)

	positions, err = p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	trades := p.GetTrades()
	require.Len(t, trades, 2)
	assert.Equal(t, fixedClock(), trades[0].FilledAt)
	assert.Equal(t, 110.0, trades[1].AveragePrice)
}

func TestPaperExchange_ShortPosition(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialBalance: 10000})

	_, err := p.PlaceOrder(ctx, entry(models.OrderSideSell, 10), 100)
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, exit(models.OrderSideBuy, 10), 90)
	require.NoError(t, err)

	balance, err := p.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10100.0, balance.TotalEquity, 1e-9)
}

func TestPaperExchange_Guards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     PaperConfig
		qty     float64
		wantErr error
	}{
		{"order value above max", PaperConfig{InitialBalance: 10000, MaxOrderValue: 500}, 10, errors.ErrTradeGuard},
		{"not enough cash", PaperConfig{InitialBalance: 500}, 10, errors.ErrInsufficientFunds},
		{"hodl amount", PaperConfig{InitialBalance: 1500, HodlAmount: 600}, 10, errors.ErrInsufficientFunds},
		{"within limits", PaperConfig{InitialBalance: 1500, HodlAmount: 500, MaxOrderValue: 1000}, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaperExchange(tt.cfg)
			_, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, tt.qty), 100)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), err.Error())
			assert.True(t, errors.Is(err, errors.ErrTradeGuard))
			assert.Empty(t, p.GetTrades())
		})
	}

	// Exit orders are never guarded.
	p := NewPaperExchange(PaperConfig{InitialBalance: 1000, MaxOrderValue: 1000})
	_, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, 10), 100)
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, exit(models.OrderSideSell, 10), 200)
	assert.NoError(t, err)
}

func TestPaperExchange_Validation(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{})

	_, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, 0), 100)
	assert.True(t, errors.Is(err, errors.ErrInputValidation))

	_, err = p.PlaceOrder(ctx, entry(models.OrderSideBuy, 1), 0)
	assert.True(t, errors.Is(err, errors.ErrInputValidation))

	_, err = p.GetOrder(ctx, "PAPER_99")
	assert.True(t, errors.Is(err, errors.ErrOrderNotFound))
}

func TestPaperExchange_DelayedFill(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialBalance: 10000, FillAfterPolls: 2})

	res, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, 5), 100)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOpen, res.Status)

	// Price moves do not change the fill price of a placed order.
	p.UpdatePrice("ABC", 104)
	o, err := p.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.True(t, o.IsOpen())

	o, err = p.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusComplete, o.Status)
	assert.Equal(t, 100.0, o.AveragePrice)
	assert.Equal(t, 5.0, o.FilledQty)

	assert.Error(t, p.CancelOrder(ctx, res.OrderID))
}

func TestPaperExchange_Cancel(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialBalance: 10000, FillAfterPolls: 1})

	res, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, 5), 100)
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, res.OrderID))

	o, err := p.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.Empty(t, p.GetTrades())

	balance, err := p.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, balance.AvailableCash)

	p.Reset(5000)
	balance, err = p.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, balance.TotalEquity)
}

// Feature: pattern-trader, Property 8: Closed round trips conserve equity
//
// For any sequence of buy prices, quantities and exit prices, once every
// position is closed the cash equals the initial balance plus the realised
// profit of each round trip.
func TestProperty_RoundTripsConserveEquity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("cash = initial + realised", prop.ForAll(
		func(buys, sells, qtys []float64) bool {
			ctx := context.Background()
			p := NewPaperExchange(PaperConfig{InitialBalance: 1e6})
			expected := 1e6
			for i := range buys {
				if i >= len(sells) || i >= len(qtys) {
					break
				}
				if _, err := p.PlaceOrder(ctx, entry(models.OrderSideBuy, qtys[i]), buys[i]); err != nil {
					return false
				}
				if _, err := p.PlaceOrder(ctx, exit(models.OrderSideSell, qtys[i]), sells[i]); err != nil {
					return false
				}
				expected += (sells[i] - buys[i]) * qtys[i]
			}
			balance, err := p.GetBalance(ctx)
			if err != nil {
				return false
			}
			return math.Abs(balance.AvailableCash-expected) < 1e-6 && balance.UsedMargin == 0
		},
		gen.SliceOfN(10, gen.Float64Range(10, 200)),
		gen.SliceOfN(10, gen.Float64Range(10, 200)),
		gen.SliceOfN(10, gen.Float64Range(0.5, 20)),
	))

	properties.TestingRun(t)
}
