// Package series holds the read-only view of one price series that every
// detector, function container and trade receives at construction.
package series

import (
	"sort"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/config"
	"pattern-trader/internal/models"
)

// Context bundles the tick list and its derived views with the detector options.
type Context struct {
	Symbol string
	Period analysis.Period
	Config config.PatternConfig

	Ticks   *models.TickList
	Minima  *models.TickList
	Maxima  *models.TickList
	MinMax  *models.TickList
	Visible *models.TickList // min/max without hidden extrema
}

// New sorts the raw ticks by timestamp and derives every view.
func New(symbol string, raw []models.Tick, cfg config.PatternConfig) *Context {
	ticks := make([]models.Tick, len(raw))
	copy(ticks, raw)
	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].Timestamp < ticks[j].Timestamp
	})
	for i := range ticks {
		ticks[i].Symbol = symbol
	}

	period := cfg.Period()
	list := models.NewTickList(ticks, period, cfg.LocalWindow)
	hidden := cfg.HiddenWindow
	if hidden <= 0 {
		hidden = cfg.LocalWindow
	}
	return &Context{
		Symbol:  symbol,
		Period:  period,
		Config:  cfg,
		Ticks:   list,
		Minima:  list.MinTicks(),
		Maxima:  list.MaxTicks(),
		MinMax:  list.MinMaxTicks(),
		Visible: list.WithoutHiddenTicks(hidden),
	}
}

// Len returns the number of ticks in the series.
func (c *Context) Len() int {
	return c.Ticks.Len()
}

// LastPosition returns the position of the last tick, or -1 for an empty series.
func (c *Context) LastPosition() int {
	return c.Ticks.Len() - 1
}

// Tick returns the tick at position pos.
func (c *Context) Tick(pos int) (models.Tick, bool) {
	return c.Ticks.ByPosition(pos)
}

// SlopeDivisor is applied to every slope band of the constraint table.
func (c *Context) SlopeDivisor() float64 {
	return c.Config.SlopeDivisor()
}

// PeriodID returns the persistence id of the series period.
func (c *Context) PeriodID() int {
	if c.Period == analysis.PeriodIntraday {
		return models.PeriodIDIntraday
	}
	return models.PeriodIDDaily
}
