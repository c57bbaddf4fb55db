package trading

import (
	"pattern-trader/internal/models"
)

// WaveTickAggregator folds tickers into wave ticks of a fixed window.
type WaveTickAggregator struct {
	window  int64
	current *models.WaveTick
	done    []models.WaveTick
}

// NewWaveTickAggregator creates an aggregator with a window in seconds.
func NewWaveTickAggregator(windowSeconds int) *WaveTickAggregator {
	if windowSeconds <= 0 {
		windowSeconds = 900
	}
	return &WaveTickAggregator{window: int64(windowSeconds)}
}

// Add folds tk into the current wave tick. When tk opens a new window the
// previous wave tick is completed and returned.
func (a *WaveTickAggregator) Add(tk models.Ticker) (models.WaveTick, bool) {
	start := tk.Timestamp - tk.Timestamp%a.window
	price := tk.LastPrice

	if a.current != nil && a.current.Timestamp == start {
		c := a.current
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Count++
		return models.WaveTick{}, false
	}

	var completed models.WaveTick
	hasCompleted := false
	if a.current != nil {
		completed = *a.current
		a.done = append(a.done, completed)
		hasCompleted = true
	}
	a.current = &models.WaveTick{
		TickerID:  tk.TickerID,
		Timestamp: start,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Count:     1,
	}
	return completed, hasCompleted
}

// Current returns the partial wave tick of the open window.
func (a *WaveTickAggregator) Current() (models.WaveTick, bool) {
	if a.current == nil {
		return models.WaveTick{}, false
	}
	return *a.current, true
}

// Completed returns every closed wave tick.
func (a *WaveTickAggregator) Completed() []models.WaveTick {
	out := make([]models.WaveTick, len(a.done))
	copy(out, a.done)
	return out
}

// Flush closes the open window and returns all wave ticks.
func (a *WaveTickAggregator) Flush() []models.WaveTick {
	if a.current != nil {
		a.done = append(a.done, *a.current)
		a.current = nil
	}
	return a.Completed()
}
