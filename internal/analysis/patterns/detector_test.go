package patterns

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/linear"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/config"
	"pattern-trader/internal/errors"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
	"pattern-trader/internal/predictor"
)

func detect(t *testing.T, ctx *series.Context, opts ...Option) []*Pattern {
	t.Helper()
	d, err := NewDetector(ctx, opts...)
	require.NoError(t, err)
	found, err := d.Detect(context.Background())
	require.NoError(t, err)
	return found
}

func byRangeKind(found []*Pattern, kind RangeKind) *Pattern {
	for _, p := range found {
		if p.Range.Kind == kind {
			return p
		}
	}
	return nil
}

func TestDetector_ChannelBreakout(t *testing.T) {
	tracer := &logging.RecordingTracer{}
	found := detect(t, channelContext(analysis.Channel), WithTracer(tracer))

	// One channel hangs off the resistance range, one off the support range.
	require.Len(t, found, 2)
	assert.Equal(t, 2, tracer.Count("pattern_emitted"))

	p := byRangeKind(found, RangeMax)
	require.NotNil(t, p)
	assert.Equal(t, analysis.Channel, p.Type)
	assert.Equal(t, 3, p.PositionFirst())
	assert.Equal(t, 27, p.PositionLast())
	assert.Equal(t, 5, p.Outcome.TouchPointsUpper)
	assert.Equal(t, 4, p.Outcome.TouchPointsLower)
	assert.InDelta(t, 10.0, p.ExpectedWin, 1e-9)

	require.True(t, p.HasBreakout())
	assert.Equal(t, TerminationBreakout, p.Termination)
	assert.Equal(t, 31, p.Breakout.Tick.Position)
	assert.Equal(t, analysis.DirectionUp, p.Breakout.Direction)
	assert.InDelta(t, 110.0, p.Breakout.Boundary, 1e-9)
	assert.InDelta(t, 200.0, p.Breakout.VolumeChangePct, 1e-9)
	assert.InDelta(t, 40.0, p.Breakout.ExcessPct, 1e-9)

	require.NotNil(t, p.Buy)
	assert.Equal(t, 30, p.Buy.First)
	assert.Equal(t, 32, p.Buy.Last)
	require.NotNil(t, p.Trade)
	assert.Equal(t, 31, p.Trade.First)
	assert.Equal(t, 35, p.Trade.Last)

	// Target 124 is reached at position 34 where the high is 125.
	assert.Equal(t, 1, p.Outcome.TradeResult)
	assert.InDelta(t, 110.0, p.Outcome.TradeReachedPct, 1e-9)

	support := byRangeKind(found, RangeMin)
	require.NotNil(t, support)
	assert.Equal(t, 0, support.PositionFirst())
	assert.Equal(t, 24, support.PositionLast())
	assert.Equal(t, 4, support.Outcome.TouchPointsUpper)
	assert.Equal(t, 5, support.Outcome.TouchPointsLower)
	require.True(t, support.HasBreakout())
	assert.Equal(t, 31, support.Breakout.Tick.Position)
	assert.NotEqual(t, p.ID, support.ID)

	rec := p.Record()
	assert.Equal(t, p.ID, rec.PatternID)
	assert.Equal(t, "TEST", rec.TickerID)
	assert.Equal(t, "Channel", rec.PatternType)
	assert.Equal(t, "up", rec.BreakoutDirection)
	assert.Equal(t, int64(32*day), rec.TsBreakout)
	assert.Equal(t, int64(4*day), rec.TsPatternTickFirst)
	assert.Equal(t, models.PeriodIDDaily, rec.PeriodID)
	assert.Equal(t, 0.0, rec.SlopeUpperPct)
}

func TestDetector_NoBreakoutWithoutVolume(t *testing.T) {
	bars := channelBars()
	bars[31].volume = 100
	ctx := series.New("TEST", ticksFromBars(bars), channelContext(analysis.Channel).Config)
	tracer := &logging.RecordingTracer{}
	found := detect(t, ctx, WithTracer(tracer))

	require.NotEmpty(t, found)
	for _, p := range found {
		assert.False(t, p.HasBreakout())
		assert.Equal(t, TerminationEndOfData, p.Termination)
		assert.Nil(t, p.Trade)
	}
	assert.Positive(t, tracer.Count("breakout_rejected"))
}

func TestDetector_Predictions(t *testing.T) {
	static := predictor.NewStatic(map[predictor.Kind]map[string]float64{
		predictor.KindTouchPoints: {"upper": 4, "lower": 3},
	})
	tracer := &logging.RecordingTracer{}
	found := detect(t, channelContext(analysis.Channel), WithPredictor(static), WithTracer(tracer))
	require.Len(t, found, 2)

	for _, p := range found {
		assert.Equal(t, 4.0, p.Predictions["touch_points.upper"])
		assert.Equal(t, 3.0, p.Predictions["touch_points.lower"])
	}
	// Both patterns broke out, so four kinds were asked for each.
	assert.Equal(t, 8, static.Calls())
	assert.Equal(t, 6, tracer.Count("predictor_unavailable"))
}

func TestDetector_Errors(t *testing.T) {
	cfg := config.DefaultPatternConfig()
	cfg.PatternTypeList = []string{"Channel", "Wedge"}
	_, err := NewDetector(series.New("TEST", ticksFromBars(channelBars()), cfg))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownPatternType))

	d, err := NewDetector(series.New("EMPTY", nil, config.DefaultPatternConfig()))
	require.NoError(t, err)
	found, err := d.Detect(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, found)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	d, err = NewDetector(channelContext(analysis.Channel))
	require.NoError(t, err)
	_, err = d.Detect(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetector_Idempotent(t *testing.T) {
	ctx := channelContext()
	first := detect(t, ctx)
	second := detect(t, ctx)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Termination, second[i].Termination)
		assert.Equal(t, first[i].Outcome, second[i].Outcome)
	}
}

func triangleUpper(p float64) float64 { return 110 - 0.25*p }
func triangleLower(p float64) float64 { return 90 + 0.25*p }

// triangleBars converges from 90..110 towards an apex at 100 on position 40
// and breaks out upwards at position 31 on triple volume.
func triangleBars() []bar {
	return append(envelopeBars(30, triangleUpper, triangleLower),
		bar{101, 99, 100, 100},
		bar{106, 100, 105, 300},
		bar{108, 104, 107, 100},
		bar{110, 106, 109, 100},
		bar{111, 108, 110, 100},
	)
}

// apexBars runs the triangle into its apex at position 40 without volume.
func apexBars() []bar {
	bars := envelopeBars(28, triangleUpper, triangleLower)
	for pos := 28; pos < 40; pos++ {
		bars = append(bars, bar{100.5, 99.5, 100, 100})
	}
	return append(bars, bar{100.5, 99.5, 100.5, 100})
}

// risingChannelBars climbs between 100 and 110 by a quarter per tick and
// closes above the resistance at position 31.
func risingChannelBars() []bar {
	bars := envelopeBars(30, func(p float64) float64 { return 110 + 0.25*p }, func(p float64) float64 { return 100 + 0.25*p })
	return append(bars,
		bar{112.5, 110, 111.25, 100},
		bar{120, 116, 119, 100},
		bar{121, 118, 120, 100},
	)
}

// tkeBottomBars has falling highs and slowly falling lows down to 84 at
// position 24 and breaks the resistance at position 31.
func tkeBottomBars() []bar {
	bars := envelopeBars(30, func(p float64) float64 { return 110 - 0.5*p }, func(p float64) float64 { return 90 - 0.25*p })
	return append(bars,
		bar{89, 86, 88, 100},
		bar{98, 90, 97, 300},
		bar{101, 96, 100, 100},
		bar{104, 99, 103, 100},
		bar{106, 102, 105, 100},
	)
}

// fibonacciBars draws the ascending wave 100-110-105-121-113-139 with mid
// prices one below the highs and falls through the w4 level at position 45.
func fibonacciBars() []bar {
	pivots := [][2]float64{{0, 101}, {8, 109}, {16, 106}, {24, 120}, {32, 114}, {40, 138}, {45, 108}}
	var bars []bar
	for i := 0; i+1 < len(pivots); i++ {
		a, b := pivots[i], pivots[i+1]
		for pos := a[0]; pos < b[0]; pos++ {
			mid := a[1] + (b[1]-a[1])*(pos-a[0])/(b[0]-a[0])
			bars = append(bars, bar{mid + 1, mid - 1, mid, 100})
		}
	}
	last := pivots[len(pivots)-1][1]
	return append(bars, bar{last + 1, last - 1, last, 300})
}

func TestDetector_Formations(t *testing.T) {
	tests := []struct {
		name  string
		bars  []bar
		types []analysis.PatternType
		check func(t *testing.T, found []*Pattern)
	}{
		{
			name:  "triangle breaks out upwards",
			bars:  triangleBars(),
			types: []analysis.PatternType{analysis.Triangle},
			check: func(t *testing.T, found []*Pattern) {
				require.Len(t, found, 2)
				p := byRangeKind(found, RangeMax)
				require.NotNil(t, p)
				assert.Equal(t, 3, p.PositionFirst())
				assert.Equal(t, 27, p.PositionLast())
				assert.True(t, p.Container.HasCross)
				assert.InDelta(t, 41.0, p.Container.CrossX, 1e-9)
				for _, p := range found {
					assert.Equal(t, analysis.Triangle, p.Type)
					require.True(t, p.HasBreakout())
					assert.Equal(t, TerminationBreakout, p.Termination)
					assert.Equal(t, 31, p.Breakout.Tick.Position)
					assert.Equal(t, analysis.DirectionUp, p.Breakout.Direction)
					assert.InDelta(t, 102.25, p.Breakout.Boundary, 1e-9)
					require.NotNil(t, p.Trade)
				}
			},
		},
		{
			name:  "triangle runs into its apex",
			bars:  apexBars(),
			types: []analysis.PatternType{analysis.Triangle},
			check: func(t *testing.T, found []*Pattern) {
				require.Len(t, found, 2)
				for _, p := range found {
					assert.Equal(t, TerminationApex, p.Termination)
					assert.False(t, p.HasBreakout())
					assert.Nil(t, p.Trade)
				}
			},
		},
		{
			name:  "rising channel leaves on the wrong side",
			bars:  risingChannelBars(),
			types: []analysis.PatternType{analysis.ChannelUp},
			check: func(t *testing.T, found []*Pattern) {
				require.Len(t, found, 2)
				for _, p := range found {
					assert.Equal(t, analysis.ChannelUp, p.Type)
					assert.Equal(t, analysis.DirectionDown, p.Container.ExpectedDirection())
					assert.Equal(t, TerminationWrongSide, p.Termination)
					assert.False(t, p.HasBreakout())
					assert.Nil(t, p.Buy)
					assert.Nil(t, p.Trade)
				}
			},
		},
		{
			name:  "TKE bottom breaks above the resistance",
			bars:  tkeBottomBars(),
			types: []analysis.PatternType{analysis.TKEBottom},
			check: func(t *testing.T, found []*Pattern) {
				require.Len(t, found, 1)
				p := found[0]
				assert.Equal(t, analysis.TKEBottom, p.Type)
				assert.Equal(t, RangeMax, p.Range.Kind)
				assert.Equal(t, 3, p.PositionFirst())
				assert.Equal(t, 27, p.PositionLast())
				assert.Equal(t, linear.Constant(84), p.Container.Lower)

				require.NotNil(t, p.Container.TickForHelper)
				assert.Equal(t, 24, p.Container.TickForHelper.Position)
				require.NotNil(t, p.Container.HelperUpper)
				assert.Equal(t, linear.Constant(87.5), *p.Container.HelperUpper)

				require.True(t, p.HasBreakout())
				assert.Equal(t, 31, p.Breakout.Tick.Position)
				assert.Equal(t, analysis.DirectionUp, p.Breakout.Direction)
				assert.InDelta(t, 94.5, p.Breakout.Boundary, 1e-9)
				assert.InDelta(t, 24.5, p.ExpectedWin, 1e-9)
			},
		},
		{
			name:  "Fibonacci wave breaks below the w4 level",
			bars:  fibonacciBars(),
			types: []analysis.PatternType{analysis.FibonacciAsc},
			check: func(t *testing.T, found []*Pattern) {
				require.Len(t, found, 1)
				p := found[0]
				assert.Equal(t, analysis.FibonacciAsc, p.Type)
				assert.Equal(t, RangeFibonacci, p.Range.Kind)
				require.NotNil(t, p.Range.Wave)
				assert.Equal(t, [6]float64{100, 110, 105, 121, 113, 139}, p.Range.Wave.Values)
				assert.Equal(t, 24, p.PositionFirst())
				assert.Equal(t, 40, p.PositionLast())
				assert.InDelta(t, 26*0.382, p.ExpectedWin, 1e-9)
				assert.Equal(t, linear.Constant(113), p.Container.Lower)

				require.True(t, p.HasBreakout())
				assert.Equal(t, 45, p.Breakout.Tick.Position)
				assert.Equal(t, analysis.DirectionDown, p.Breakout.Direction)
				assert.InDelta(t, 113.0, p.Breakout.Boundary, 1e-9)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, detect(t, contextOf("FORM", tt.bars, tt.types...)))
		})
	}
}

func randomWalkTicks(steps []int) []models.Tick {
	ticks := make([]models.Tick, len(steps))
	price := 100.0
	for i, s := range steps {
		price = math.Max(20, price+float64(s))
		ticks[i] = models.Tick{
			Timestamp: int64((i + 1) * day),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    float64(100 + (i%5)*40),
		}
	}
	return ticks
}

// Feature: pattern-trader, Property 2: Accepted patterns respect their envelope
//
// For any series, every emitted pattern keeps its entry closes inside the
// envelope, every accepted breakout closes beyond the broken boundary by at
// least the breakout range, and a second run yields the same pattern ids.
func TestProperty_DetectorInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	cfg := config.DefaultPatternConfig()

	properties.Property("detector output honours the envelope", prop.ForAll(
		func(steps []int) bool {
			ctx := series.New("RND", randomWalkTicks(steps), cfg)
			d, err := NewDetector(ctx)
			if err != nil {
				return false
			}
			found, err := d.Detect(context.Background())
			if err != nil {
				return false
			}

			for _, p := range found {
				fc := p.Container
				if !p.Type.IsTKE() {
					for _, tk := range ctx.Ticks.Between(p.Entry.First, p.Entry.Last) {
						if tk.Close < fc.LowerBound(tk.FVar)-1e-9 || tk.Close > fc.UpperBound(tk.FVar)+1e-9 {
							t.Logf("%s close %.2f outside at %d", p.Type, tk.Close, tk.Position)
							return false
						}
					}
				}
				if b := p.Breakout; b != nil {
					excess := b.Direction.Sign() * (b.Tick.Close - b.Boundary)
					if excess <= 0 || excess < cfg.BreakoutRangePct*fc.Height()-1e-9 {
						t.Logf("%s breakout excess %.4f", p.Type, excess)
						return false
					}
					if !fc.ExpectedDirection().Allows(b.Direction) {
						return false
					}
				}
			}

			again, err := d.Detect(context.Background())
			if err != nil || len(again) != len(found) {
				return false
			}
			for i := range found {
				if found[i].ID != again[i].ID {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(90, gen.IntRange(-3, 3)),
	))

	properties.TestingRun(t)
}
