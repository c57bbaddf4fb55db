// Package cli provides the command-line interface for the pattern trader.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pattern-trader/internal/config"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-01-01"
)

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
	Tracer    logging.Tracer
	Store     store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{
		Logger: logger,
		Tracer: logging.NopTracer{},
	}

	rootCmd := &cobra.Command{
		Use:   "patterntrader",
		Short: "Chart pattern detection and pattern trade replay",
		Long: `patterntrader detects chart patterns (triangles, channels, TKE,
head-shoulder and Fibonacci waves) in OHLCV series and replays the
trades they imply on a paper exchange.

Series are CSV files with the header timestamp,open,high,low,close,volume.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			if cmd.Name() == "init" {
				return nil
			}

			cfg, err := config.Load(app.ConfigDir)
			if err != nil {
				return err
			}
			app.Config = cfg

			if intraday, _ := cmd.Flags().GetBool("intraday"); intraday {
				app.Config.Pattern.Intraday = true
			}

			opts := logging.DefaultOptions()
			opts.Level = cfg.Log.Level
			opts.Console = cfg.Log.Console
			opts.File = cfg.Log.File
			if cfg.Log.FilePath != "" {
				opts.FilePath = cfg.Log.FilePath
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				opts.Level = "debug"
				app.Logger = logging.New(opts)
				app.Tracer = logging.NewZerologTracer(app.Logger)
				return nil
			}
			app.Logger = logging.New(opts)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.Store != nil {
				return app.Store.Close()
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/pattern-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging and trace events")
	rootCmd.PersistentFlags().Bool("intraday", false, "treat series as intraday")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newDetectCmd(app))
	rootCmd.AddCommand(newWavesCmd(app))
	rootCmd.AddCommand(newReplayCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))

	return rootCmd
}

// openStore opens the configured SQLite store once.
func (app *App) openStore() (store.DataStore, error) {
	if app.Store != nil {
		return app.Store, nil
	}
	path := app.Config.Store.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(path, app.Logger)
	if err != nil {
		return nil, err
	}
	app.Store = s
	app.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("patterntrader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a template config.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path, err := config.WriteTemplate(app.ConfigDir)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("✓ Configuration written to %s", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	p := cfg.Pattern
	output.Bold("Pattern Detection")
	output.Printf("  Pattern types:       %v\n", p.PatternTypeList)
	output.Printf("  Max range length:    %d\n", p.MaxPatternRangeLength)
	output.Printf("  Min formation part:  %d\n", p.MinLengthOfAFormationPart)
	output.Printf("  Tolerance:           %.3f\n", p.TolerancePct)
	output.Printf("  Breakout range:      %.3f\n", p.BreakoutRangePct)
	output.Printf("  Breakout volume:     x%.2f\n", p.BreakoutVolumeFactor)
	output.Printf("  SMA number:          %d\n", p.SimpleMovingAverageNumber)
	output.Printf("  Intraday:            %v\n", p.Intraday)
	output.Println()

	t := cfg.Trade
	output.Bold("Trading")
	output.Printf("  Buy trigger:         %s\n", t.BuyTrigger)
	output.Printf("  Strategy:            %s\n", t.Strategy)
	output.Printf("  Box:                 %s\n", t.Box)
	output.Printf("  Breakout count:      %d\n", t.BreakoutCount)
	output.Printf("  Order value:         %.2f\n", t.OrderValue)
	output.Printf("  Initial balance:     %.2f\n", t.InitialBalance)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:                %s\n", cfg.Store.Path)
}
