// Package config provides configuration management for the pattern trader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Pattern PatternConfig `mapstructure:"pattern"`
	Trade   TradeConfig   `mapstructure:"trade"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogSettings   `mapstructure:"log"`
}

// PatternConfig holds the detector options.
type PatternConfig struct {
	PatternTypeList                   []string `mapstructure:"pattern_type_list"`
	MaxPatternRangeLength             int      `mapstructure:"max_pattern_range_length"`
	MinLengthOfAFormationPart         int      `mapstructure:"min_length_of_a_formation_part"`
	MinRangeLength                    int      `mapstructure:"min_range_length"`
	LocalWindow                       int      `mapstructure:"local_window"`
	HiddenWindow                      int      `mapstructure:"hidden_window"`
	TolerancePct                      float64  `mapstructure:"tolerance_pct"`
	ValueCategorizerTolerancePct      float64  `mapstructure:"value_categorizer_tolerance_pct"`
	ValueCategorizerTolerancePctEqual float64  `mapstructure:"value_categorizer_tolerance_pct_equal"`
	BreakoutRangePct                  float64  `mapstructure:"breakout_range_pct"`
	BreakoutVolumeFactor              float64  `mapstructure:"breakout_volume_factor"`
	SimpleMovingAverageNumber         int      `mapstructure:"simple_moving_average_number"`
	ExpectedWinPctThreshold           float64  `mapstructure:"expected_win_pct_threshold"`
	MaxTradePositionSize              int      `mapstructure:"max_trade_position_size"`
	FibonacciTolerancePct             float64  `mapstructure:"fibonacci_tolerance_pct"`
	FibonacciForecastTolerancePct     float64  `mapstructure:"fibonacci_forecast_tolerance_pct"`
	Intraday                          bool     `mapstructure:"intraday"`
	PeriodRelatedDivisor              float64  `mapstructure:"period_related_divisor"`
	EquityTypeID                      int      `mapstructure:"equity_type_id"`

	PlotVolume           bool `mapstructure:"plot_volume"`
	PlotClose            bool `mapstructure:"plot_close"`
	PlotBreakouts        bool `mapstructure:"plot_breakouts"`
	PlotMinMax           bool `mapstructure:"plot_min_max"`
	FibonacciDetailPrint bool `mapstructure:"fibonacci_detail_print"`
}

// TradeConfig holds the trading engine options.
type TradeConfig struct {
	BuyTrigger           string  `mapstructure:"buy_trigger"`    // BREAKOUT, SMA
	Strategy             string  `mapstructure:"trade_strategy"` // LIMIT, LIMIT_FIX, TRAILING_STOP, TRAILING_STEPPED_STOP
	Box                  string  `mapstructure:"trade_box"`      // EXPECTED_WIN, TOUCH_POINT
	TrailDistance        float64 `mapstructure:"trail_distance"`
	StepSize             float64 `mapstructure:"step_size"`
	LimitFixPct          float64 `mapstructure:"limit_fix_pct"`
	BreakoutMarginPct    float64 `mapstructure:"breakout_margin_pct"`
	BreakoutCount        int     `mapstructure:"breakout_count"`
	WrongBreakoutCount   int     `mapstructure:"wrong_breakout_count"`
	ForecastTicks        int     `mapstructure:"forecast_ticks"`
	ValidityTicks        int     `mapstructure:"validity_ticks"`
	WaveTickWindowSecond int     `mapstructure:"wave_tick_window_seconds"`
	InitialBalance       float64 `mapstructure:"initial_balance"`
	HodlAmount           float64 `mapstructure:"hodl_amount"`
	OrderValue           float64 `mapstructure:"order_value"`
	MaxOrderValue        float64 `mapstructure:"max_order_value"`
}

// StoreConfig holds persistence options.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogSettings holds logging options as read from config.toml.
type LogSettings struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// Known option values.
var (
	BuyTriggers = []string{"BREAKOUT", "SMA"}
	Strategies  = []string{"LIMIT", "LIMIT_FIX", "TRAILING_STOP", "TRAILING_STEPPED_STOP"}
	TradeBoxes  = []string{"EXPECTED_WIN", "TOUCH_POINT"}
)

// DefaultPatternConfig returns the detector defaults.
func DefaultPatternConfig() PatternConfig {
	names := make([]string, 0, len(analysis.AllPatternTypes))
	for _, pt := range analysis.AllPatternTypes {
		names = append(names, string(pt))
	}
	return PatternConfig{
		PatternTypeList:                   names,
		MaxPatternRangeLength:             50,
		MinLengthOfAFormationPart:         5,
		MinRangeLength:                    3,
		LocalWindow:                       3,
		HiddenWindow:                      6,
		TolerancePct:                      0.01,
		ValueCategorizerTolerancePct:      0.01,
		ValueCategorizerTolerancePctEqual: 0.001,
		BreakoutRangePct:                  0.01,
		BreakoutVolumeFactor:              1.1,
		SimpleMovingAverageNumber:         8,
		ExpectedWinPctThreshold:           0,
		MaxTradePositionSize:              20,
		FibonacciTolerancePct:             0.10,
		FibonacciForecastTolerancePct:     0.05,
		PeriodRelatedDivisor:              10,
		EquityTypeID:                      1,
	}
}

// DefaultTradeConfig returns the trading engine defaults.
func DefaultTradeConfig() TradeConfig {
	return TradeConfig{
		BuyTrigger:           "BREAKOUT",
		Strategy:             "TRAILING_STOP",
		Box:                  "EXPECTED_WIN",
		BreakoutMarginPct:    0.02,
		BreakoutCount:        2,
		WrongBreakoutCount:   2,
		ValidityTicks:        10,
		WaveTickWindowSecond: 900,
		InitialBalance:       10000,
		OrderValue:           1000,
		MaxOrderValue:        5000,
		LimitFixPct:          0.05,
	}
}

// Default returns a complete configuration with defaults.
func Default() *Config {
	return &Config{
		Pattern: DefaultPatternConfig(),
		Trade:   DefaultTradeConfig(),
		Store:   StoreConfig{Path: filepath.Join(DefaultConfigDir(), "patterns.db")},
		Log:     LogSettings{Level: "info", Console: true},
	}
}

// PatternTypes resolves PatternTypeList.
func (c PatternConfig) PatternTypes() ([]analysis.PatternType, error) {
	return analysis.ParsePatternTypes(c.PatternTypeList)
}

// Period returns the series period implied by Intraday.
func (c PatternConfig) Period() analysis.Period {
	if c.Intraday {
		return analysis.PeriodIntraday
	}
	return analysis.PeriodDaily
}

// SlopeDivisor returns the divisor applied to slope bounds.
func (c PatternConfig) SlopeDivisor() float64 {
	if c.Intraday && c.PeriodRelatedDivisor > 0 {
		return c.PeriodRelatedDivisor
	}
	return 1
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/pattern-trader"
	}
	return filepath.Join(home, ".config", "pattern-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A missing .env is not an error.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := Default()
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and read it back
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	// mapstructure decodes into existing slices element by element, so a
	// shorter configured list would keep the tail of the default one.
	cfg.Pattern.PatternTypeList = nil
	return v.Unmarshal(cfg)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	p := cfg.Pattern
	v.SetDefault("pattern.pattern_type_list", p.PatternTypeList)
	v.SetDefault("pattern.max_pattern_range_length", p.MaxPatternRangeLength)
	v.SetDefault("pattern.min_length_of_a_formation_part", p.MinLengthOfAFormationPart)
	v.SetDefault("pattern.min_range_length", p.MinRangeLength)
	v.SetDefault("pattern.local_window", p.LocalWindow)
	v.SetDefault("pattern.hidden_window", p.HiddenWindow)
	v.SetDefault("pattern.tolerance_pct", p.TolerancePct)
	v.SetDefault("pattern.value_categorizer_tolerance_pct", p.ValueCategorizerTolerancePct)
	v.SetDefault("pattern.value_categorizer_tolerance_pct_equal", p.ValueCategorizerTolerancePctEqual)
	v.SetDefault("pattern.breakout_range_pct", p.BreakoutRangePct)
	v.SetDefault("pattern.breakout_volume_factor", p.BreakoutVolumeFactor)
	v.SetDefault("pattern.simple_moving_average_number", p.SimpleMovingAverageNumber)
	v.SetDefault("pattern.expected_win_pct_threshold", p.ExpectedWinPctThreshold)
	v.SetDefault("pattern.max_trade_position_size", p.MaxTradePositionSize)
	v.SetDefault("pattern.fibonacci_tolerance_pct", p.FibonacciTolerancePct)
	v.SetDefault("pattern.fibonacci_forecast_tolerance_pct", p.FibonacciForecastTolerancePct)
	v.SetDefault("pattern.period_related_divisor", p.PeriodRelatedDivisor)
	v.SetDefault("pattern.equity_type_id", p.EquityTypeID)

	t := cfg.Trade
	v.SetDefault("trade.buy_trigger", t.BuyTrigger)
	v.SetDefault("trade.trade_strategy", t.Strategy)
	v.SetDefault("trade.trade_box", t.Box)
	v.SetDefault("trade.breakout_margin_pct", t.BreakoutMarginPct)
	v.SetDefault("trade.breakout_count", t.BreakoutCount)
	v.SetDefault("trade.wrong_breakout_count", t.WrongBreakoutCount)
	v.SetDefault("trade.validity_ticks", t.ValidityTicks)
	v.SetDefault("trade.wave_tick_window_seconds", t.WaveTickWindowSecond)
	v.SetDefault("trade.initial_balance", t.InitialBalance)
	v.SetDefault("trade.order_value", t.OrderValue)
	v.SetDefault("trade.max_order_value", t.MaxOrderValue)
	v.SetDefault("trade.limit_fix_pct", t.LimitFixPct)

	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.console", cfg.Log.Console)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PATTERN_TRADER_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("PATTERN_TRADER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PATTERN_TRADER_STRATEGY"); v != "" {
		cfg.Trade.Strategy = v
	}
	if v := os.Getenv("PATTERN_TRADER_INTRADAY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pattern.Intraday = b
		}
	}
}

// Validate validates the configuration and reports every violation.
func (c *Config) Validate() error {
	var err error

	if _, perr := c.Pattern.PatternTypes(); perr != nil {
		err = multierr.Append(err, perr)
	}
	if c.Pattern.MaxPatternRangeLength <= 0 {
		err = multierr.Append(err, errors.NewValidationError("max_pattern_range_length", c.Pattern.MaxPatternRangeLength, "must be positive"))
	}
	if c.Pattern.MinRangeLength < 2 {
		err = multierr.Append(err, errors.NewValidationError("min_range_length", c.Pattern.MinRangeLength, "must be at least 2"))
	}
	if c.Pattern.LocalWindow <= 0 {
		err = multierr.Append(err, errors.NewValidationError("local_window", c.Pattern.LocalWindow, "must be positive"))
	}
	if c.Pattern.TolerancePct <= 0 || c.Pattern.TolerancePct >= 1 {
		err = multierr.Append(err, errors.NewValidationError("tolerance_pct", c.Pattern.TolerancePct, "must be in (0, 1)"))
	}
	if c.Pattern.ValueCategorizerTolerancePctEqual > c.Pattern.ValueCategorizerTolerancePct {
		err = multierr.Append(err, errors.NewValidationError("value_categorizer_tolerance_pct_equal", c.Pattern.ValueCategorizerTolerancePctEqual, "must not exceed value_categorizer_tolerance_pct"))
	}
	if c.Pattern.BreakoutRangePct < 0 {
		err = multierr.Append(err, errors.NewValidationError("breakout_range_pct", c.Pattern.BreakoutRangePct, "must be non-negative"))
	}

	if !contains(BuyTriggers, c.Trade.BuyTrigger) {
		err = multierr.Append(err, errors.NewValidationError("buy_trigger", c.Trade.BuyTrigger, "unknown buy trigger"))
	}
	if !contains(Strategies, c.Trade.Strategy) {
		err = multierr.Append(err, errors.NewValidationError("trade_strategy", c.Trade.Strategy, "unknown trade strategy"))
	}
	if !contains(TradeBoxes, c.Trade.Box) {
		err = multierr.Append(err, errors.NewValidationError("trade_box", c.Trade.Box, "unknown trade box"))
	}
	if c.Trade.OrderValue <= 0 {
		err = multierr.Append(err, errors.NewValidationError("order_value", c.Trade.OrderValue, "must be positive"))
	}
	if c.Trade.HodlAmount < 0 {
		err = multierr.Append(err, errors.NewValidationError("hodl_amount", c.Trade.HodlAmount, "must be non-negative"))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
