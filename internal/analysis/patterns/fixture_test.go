package patterns

import (
	"pattern-trader/internal/analysis"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/config"
	"pattern-trader/internal/models"
)

const day = 86400

// bar is one OHLCV row of a fixture; the timestamp follows from its index.
type bar struct {
	high, low, close, volume float64
}

func ticksFromBars(bars []bar) []models.Tick {
	ticks := make([]models.Tick, len(bars))
	for i, b := range bars {
		ticks[i] = models.Tick{
			Timestamp: int64((i + 1) * day),
			Open:      b.low,
			High:      b.high,
			Low:       b.low,
			Close:     b.close,
			Volume:    b.volume,
		}
	}
	return ticks
}

// channelBars oscillates between a resistance at 110 and a support at 100
// with a period of six ticks (troughs at 0, 6, ..., peaks at 3, 9, ..., 27),
// drifts sideways below 110 for two ticks so that the peak at 27 stays a
// local maximum, then breaks out upwards at position 31 on triple volume and
// runs to 126.
func channelBars() []bar {
	cycle := []bar{
		{103, 100, 101.5, 100},
		{105, 102, 103.5, 100},
		{108, 105, 106.5, 100},
		{110, 107, 108.5, 100},
		{108, 105, 106.5, 100},
		{105, 102, 103.5, 100},
	}
	var bars []bar
	for pos := 0; pos <= 28; pos++ {
		bars = append(bars, cycle[pos%6])
	}
	return append(bars,
		bar{108, 106, 107, 100},
		bar{109, 106.5, 108, 100},
		bar{115, 107, 114, 300},
		bar{118, 113, 117, 100},
		bar{122, 116, 121, 100},
		bar{125, 120, 124, 100},
		bar{126, 123, 125, 100},
	)
}

func channelContext(types ...analysis.PatternType) *series.Context {
	cfg := config.DefaultPatternConfig()
	if len(types) > 0 {
		cfg.PatternTypeList = nil
		for _, pt := range types {
			cfg.PatternTypeList = append(cfg.PatternTypeList, string(pt))
		}
	}
	return series.New("TEST", ticksFromBars(channelBars()), cfg)
}

// envelopeBars fills positions [0, n) with six-tick zigzags between the
// upper and lower line: troughs at multiples of six touch lower, peaks three
// ticks later touch upper.
func envelopeBars(n int, upper, lower func(pos float64) float64) []bar {
	bars := make([]bar, 0, n)
	for pos := 0; pos < n; pos++ {
		u, l := upper(float64(pos)), lower(float64(pos))
		h := u - l
		switch pos % 6 {
		case 0:
			bars = append(bars, bar{l + 0.25*h, l, l + 0.125*h, 100})
		case 1, 5:
			bars = append(bars, bar{l + 0.5*h, l + 0.25*h, l + 0.375*h, 100})
		case 2, 4:
			bars = append(bars, bar{l + 0.75*h, l + 0.5*h, l + 0.625*h, 100})
		case 3:
			bars = append(bars, bar{u, l + 0.75*h, l + 0.875*h, 100})
		}
	}
	return bars
}

// contextOf builds a daily series context restricted to types.
func contextOf(symbol string, bars []bar, types ...analysis.PatternType) *series.Context {
	cfg := config.DefaultPatternConfig()
	cfg.PatternTypeList = nil
	for _, pt := range types {
		cfg.PatternTypeList = append(cfg.PatternTypeList, string(pt))
	}
	return series.New(symbol, ticksFromBars(bars), cfg)
}

// fvTick builds a tick whose abscissa equals its position.
func fvTick(pos int, high, low, close float64) models.Tick {
	return models.Tick{
		Position:  pos,
		Timestamp: int64((pos + 1) * day),
		FVar:      float64(pos),
		Open:      low,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    100,
	}
}
