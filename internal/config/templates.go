package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Pattern Trader Configuration

[pattern]
# Pattern types to detect (see "patterntrader config show" for the full list)
pattern_type_list = ["Triangle", "Triangle-top", "Triangle-bottom", "Triangle-up", "Triangle-down",
  "Channel", "Channel-up", "Channel-down", "TKE-top", "TKE-bottom",
  "Head-Shoulder", "Head-Shoulder-asc", "Head-Shoulder-bottom", "Head-Shoulder-bottom-desc",
  "Fibonacci-asc", "Fibonacci-desc"]
# Hard cap on the span of a range in ticks
max_pattern_range_length = 50
# Minimum ticks of a compound formation part
min_length_of_a_formation_part = 5
# Minimum number of co-linear extrema in a range
min_range_length = 3
# Ticks on each side a local extremum must dominate
local_window = 3
# Window for removing hidden extrema
hidden_window = 6
# Co-linearity tolerance (fraction)
tolerance_pct = 0.01
value_categorizer_tolerance_pct = 0.01
value_categorizer_tolerance_pct_equal = 0.001
# Required breakout excess as fraction of formation height
breakout_range_pct = 0.01
# Required volume change at breakout
breakout_volume_factor = 1.1
simple_moving_average_number = 8
expected_win_pct_threshold = 0.0
max_trade_position_size = 20
fibonacci_tolerance_pct = 0.10
fibonacci_forecast_tolerance_pct = 0.05
# Intraday series use raw timestamps and divide slope bounds by period_related_divisor
intraday = false
period_related_divisor = 10
# 1 = shares, 2 = crypto, 3 = index
equity_type_id = 1
plot_volume = false
plot_close = true
plot_breakouts = true
plot_min_max = false
fibonacci_detail_print = false

[trade]
# BREAKOUT or SMA
buy_trigger = "BREAKOUT"
# LIMIT, LIMIT_FIX, TRAILING_STOP, TRAILING_STEPPED_STOP
trade_strategy = "TRAILING_STOP"
# EXPECTED_WIN or TOUCH_POINT
trade_box = "EXPECTED_WIN"
# Absolute trailing distance (0 = expected win)
trail_distance = 0.0
# Stepped stop size (0 = expected win)
step_size = 0.0
limit_fix_pct = 0.05
breakout_margin_pct = 0.02
breakout_count = 2
wrong_breakout_count = 2
# Sell after this many tickers in position (0 = never)
forecast_ticks = 0
# Tickers a NEW trade waits for its buy trigger
validity_ticks = 10
wave_tick_window_seconds = 900
initial_balance = 10000.0
hodl_amount = 0.0
order_value = 1000.0
max_order_value = 5000.0

[store]
# SQLite database (defaults to patterns.db in the config directory)
# path = "/path/to/patterns.db"

[log]
level = "info"
console = true
file = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// WriteTemplate writes the template config into configDir unless a config already exists.
func WriteTemplate(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	return path, createTemplateConfig(configDir, "config")
}
