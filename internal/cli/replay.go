package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pattern-trader/internal/models"
	"pattern-trader/internal/store"
	"pattern-trader/internal/trading"
	"pattern-trader/pkg/utils"
)

type replayView struct {
	*trading.ReplayResult
	Records []models.TradeRecord `json:"trades"`
}

func newReplayCmd(app *App) *cobra.Command {
	var (
		save     bool
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "replay <csv>...",
		Short: "Detect patterns and replay their trades on a paper exchange",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if strategy != "" {
				kind, err := trading.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				app.Config.Trade.Strategy = string(kind)
			}

			results, err := app.analyzeFiles(cmd.Context(), args)
			if err != nil {
				return err
			}

			engine := trading.NewReplayEngine(app.Config.Trade, app.Tracer, app.Logger)
			var views []replayView
			for _, res := range results {
				replayed, err := engine.Run(cmd.Context(), res.series, res.detected)
				if err != nil {
					return fmt.Errorf("replaying %s: %w", res.Symbol, err)
				}
				view := replayView{ReplayResult: replayed}
				for _, t := range replayed.Trades {
					view.Records = append(view.Records, t.Record())
				}
				views = append(views, view)
			}

			if save {
				db, err := app.openStore()
				if err != nil {
					return err
				}
				for i, res := range results {
					if _, err := db.SavePatterns(cmd.Context(), res.Patterns); err != nil {
						return err
					}
					if _, err := db.SaveTrades(cmd.Context(), views[i].Records); err != nil {
						return err
					}
				}
			}

			if output.IsJSON() {
				return output.JSON(views)
			}
			for _, v := range views {
				printReplay(output, v, app.Config.Pattern.Intraday)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store patterns and trades in the SQLite database")
	cmd.Flags().StringVar(&strategy, "strategy", "", "override the trade strategy (LIMIT, LIMIT_FIX, TRAILING_STOP, TRAILING_STEPPED_STOP)")
	return cmd
}

func printReplay(output *Output, v replayView, intraday bool) {
	r := v.ReplayResult
	output.Bold("%s replay", r.Symbol)
	output.Printf("  Total return:   %s\n", output.FormatPercent(r.TotalReturn))
	output.Printf("  Trades:         %d (%d won, %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	output.Printf("  Win rate:       %.1f%%\n", r.WinRate)
	output.Printf("  Max drawdown:   %.2f%%\n", r.MaxDrawdown)
	output.Printf("  Profit factor:  %.2f\n", r.ProfitFactor)
	output.Printf("  Sharpe ratio:   %.2f\n", r.SharpeRatio)
	output.Printf("  Wave ticks:     %s\n", utils.FormatQuantity(int64(len(r.WaveTicks))))
	if len(r.Trades) > 0 {
		var pnl, turnover float64
		for _, t := range r.Trades {
			pnl += t.PnL()
			turnover += t.Quantity * (t.BuyPrice + t.SellPrice)
		}
		output.Printf("  Net PnL:        %s\n", output.FormatPnL(pnl))
		output.Printf("  Turnover:       %s\n", utils.FormatCompact(turnover))
	}

	if len(v.Records) == 0 {
		return
	}
	t := output.NewTable("", "Pattern", "Side", "Status", "Buy", "Sell", "Bought", "Sold", "Realised", "Result")
	for _, rec := range v.Records {
		t.AppendRow([]interface{}{
			rec.PatternType,
			rec.Side,
			rec.Status,
			utils.FormatPrice(rec.BuyPrice, 2),
			utils.FormatPrice(rec.SellPrice, 2),
			tsOrDash(rec.TsBuy, intraday),
			tsOrDash(rec.TsSell, intraday),
			output.FormatPercent(rec.RealisedPct),
			output.Result(rec.TradeResult),
		})
	}
	t.Render()
}

func tsOrDash(ts int64, intraday bool) string {
	if ts == 0 {
		return "-"
	}
	return utils.FormatTimestamp(ts, intraday)
}

func newHistoryCmd(app *App) *cobra.Command {
	var (
		patternType string
		limit       int
		trades      bool
	)

	cmd := &cobra.Command{
		Use:   "history [symbol]",
		Short: "List stored patterns or trades",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			db, err := app.openStore()
			if err != nil {
				return err
			}
			symbol := ""
			if len(args) == 1 {
				symbol = store.SymbolFromPath(args[0])
			}

			if trades {
				records, err := db.GetTrades(cmd.Context(), store.TradeFilter{TickerID: symbol, Limit: limit})
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(records)
				}
				printReplay(output, replayView{ReplayResult: &trading.ReplayResult{Symbol: symbol}, Records: records}, app.Config.Pattern.Intraday)
				return nil
			}

			records, err := db.GetPatterns(cmd.Context(), store.PatternFilter{
				TickerID:    symbol,
				PatternType: patternType,
				Limit:       limit,
			})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Warning("No stored patterns")
				return nil
			}
			t := output.NewTable("Stored patterns", "Symbol", "Type", "From", "To", "Exp. Win", "Breakout", "Result")
			for _, rec := range records {
				t.AppendRow([]interface{}{
					rec.TickerID,
					rec.PatternType,
					utils.FormatTimestamp(rec.TsPatternTickFirst, rec.PeriodID == models.PeriodIDIntraday),
					utils.FormatTimestamp(rec.TsPatternTickLast, rec.PeriodID == models.PeriodIDIntraday),
					utils.FormatPrice(rec.ExpectedWin, 2),
					output.Direction(rec.BreakoutDirection),
					output.Result(rec.TradeResult),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&patternType, "type", "", "filter by pattern type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of rows")
	cmd.Flags().BoolVar(&trades, "trades", false, "list trades instead of patterns")
	return cmd
}
