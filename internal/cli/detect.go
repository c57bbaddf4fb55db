package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pattern-trader/internal/analysis/fibonacci"
	"pattern-trader/internal/analysis/patterns"
	"pattern-trader/internal/analysis/series"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
	"pattern-trader/internal/store"
	"pattern-trader/pkg/utils"
)

// fileResult is the detection outcome of one CSV file.
type fileResult struct {
	Path      string                 `json:"path"`
	Symbol    string                 `json:"symbol"`
	Ticks     int                    `json:"ticks"`
	Patterns  []models.PatternRecord `json:"patterns"`
	Waves     []string               `json:"waves"`
	Forecasts []forecastView         `json:"forecasts"`

	series   *series.Context
	detected []*patterns.Pattern
}

type forecastView struct {
	Direction     string  `json:"direction"`
	PositionFirst int     `json:"position_first"`
	PositionLast  int     `json:"position_last"`
	Min           float64 `json:"min"`
	Mean          float64 `json:"mean"`
	Max           float64 `json:"max"`
}

// analyzeFiles runs detection for every path concurrently. Results keep the
// argument order.
func (app *App) analyzeFiles(ctx context.Context, paths []string) ([]*fileResult, error) {
	results := make([]*fileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := app.analyzeFile(gctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (app *App) analyzeFile(ctx context.Context, path string) (*fileResult, error) {
	symbol, ticks, err := store.LoadTicksFile(path)
	if err != nil {
		return nil, err
	}

	sctx := series.New(symbol, ticks, app.Config.Pattern)
	detector, err := patterns.NewDetector(sctx, patterns.WithTracer(app.Tracer))
	if err != nil {
		return nil, err
	}
	detected, err := detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	res := &fileResult{
		Path:     path,
		Symbol:   symbol,
		Ticks:    sctx.Len(),
		series:   sctx,
		detected: detected,
	}
	logger := logging.WithSymbol(app.Logger, symbol)
	for _, p := range detected {
		res.Patterns = append(res.Patterns, p.Record())
		logging.LogPattern(logger, symbol, string(p.Type), p.PositionFirst(), p.PositionLast(), p.ExpectedWin)
	}
	waves := detector.Waves()
	for i := range waves {
		res.Waves = append(res.Waves, waves[i].String())
	}
	for _, f := range detector.Forecasts() {
		res.Forecasts = append(res.Forecasts, newForecastView(f))
	}
	logger.Debug().
		Int("ticks", res.Ticks).
		Int("patterns", len(detected)).
		Int("waves", len(waves)).
		Msg("Series analysed")
	return res, nil
}

func newForecastView(f fibonacci.Forecast) forecastView {
	return forecastView{
		Direction:     f.Direction.String(),
		PositionFirst: f.Points[0].Position,
		PositionLast:  f.PositionLast(),
		Min:           f.Min,
		Mean:          f.Mean,
		Max:           f.Max,
	}
}

func newDetectCmd(app *App) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "detect <csv>...",
		Short: "Detect chart patterns in one or more series",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			results, err := app.analyzeFiles(cmd.Context(), args)
			if err != nil {
				return err
			}

			if save {
				if err := app.savePatterns(cmd.Context(), output, results); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(results)
			}
			for _, res := range results {
				printPatterns(output, res, app.Config.Pattern.Intraday)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store detected patterns in the SQLite database")
	return cmd
}

func (app *App) savePatterns(ctx context.Context, output *Output, results []*fileResult) error {
	db, err := app.openStore()
	if err != nil {
		return err
	}
	for _, res := range results {
		n, err := db.SavePatterns(ctx, res.Patterns)
		if err != nil {
			return err
		}
		if !output.IsJSON() {
			output.Dim("%s: %d new of %d patterns stored", res.Symbol, n, len(res.Patterns))
		}
	}
	return nil
}

func printPatterns(output *Output, res *fileResult, intraday bool) {
	if len(res.detected) == 0 {
		output.Warning("%s: no patterns in %d ticks", res.Symbol, res.Ticks)
		return
	}

	t := output.NewTable(fmt.Sprintf("%s - %d patterns", res.Symbol, len(res.detected)),
		"Type", "From", "To", "Ticks", "Exp. Win", "Breakout", "End", "Result", "Reached")
	for _, p := range res.detected {
		rec := p.Record()
		t.AppendRow([]interface{}{
			p.Type,
			utils.FormatTimestamp(rec.TsPatternTickFirst, intraday),
			utils.FormatTimestamp(rec.TsPatternTickLast, intraday),
			rec.PositionLast - rec.PositionFirst + 1,
			utils.FormatPrice(rec.ExpectedWin, 2),
			output.Direction(rec.BreakoutDirection),
			string(p.Termination),
			output.Result(rec.TradeResult),
			output.FormatPercent(rec.TradeReachedPct),
		})
	}
	t.Render()
}

func newWavesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "waves <csv>",
		Short: "Print Fibonacci waves and forecasts of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			results, err := app.analyzeFiles(cmd.Context(), args)
			if err != nil {
				return err
			}
			res := results[0]
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    res.Symbol,
					"waves":     res.Waves,
					"forecasts": res.Forecasts,
				})
			}

			if len(res.Waves) == 0 {
				output.Warning("%s: no Fibonacci waves", res.Symbol)
			} else {
				output.Bold("%s Fibonacci waves", res.Symbol)
				for _, w := range res.Waves {
					output.Printf("  %s\n", w)
				}
			}

			if len(res.Forecasts) > 0 {
				t := output.NewTable("Forecasts", "Direction", "From", "W4 End", "Min", "Mean", "Max")
				for _, f := range res.Forecasts {
					t.AppendRow([]interface{}{
						output.Direction(f.Direction),
						f.PositionFirst,
						f.PositionLast,
						utils.FormatPrice(f.Min, 2),
						utils.FormatPrice(f.Mean, 2),
						utils.FormatPrice(f.Max, 2),
					})
				}
				t.Render()
			}
			return nil
		},
	}
}
