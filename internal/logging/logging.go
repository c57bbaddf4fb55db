// Package logging provides the zerolog loggers of the command line and the
// Tracer sink the detection and trading core report to.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the outputs of a logger.
type Options struct {
	Level      string
	Console    bool
	Out        io.Writer // console destination, stderr when nil
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultOptions logs info and above to the console only.
func DefaultOptions() Options {
	home, _ := os.UserHomeDir()
	return Options{
		Level:      "info",
		Console:    true,
		FilePath:   filepath.Join(home, ".config", "pattern-trader", "logs", "patterntrader.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}
}

// New builds a logger for opts. The file output rotates with lumberjack;
// a log directory that cannot be created disables it.
func New(opts Options) zerolog.Logger {
	var writers []io.Writer

	if opts.Console {
		out := opts.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stderr,
		})
	}

	if opts.File && opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    opts.MaxSize,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAge,
				Compress:   true,
			})
		}
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level; unknown names yield info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// LogPattern logs a detected pattern.
func LogPattern(logger zerolog.Logger, symbol, patternType string, first, last int, expectedWin float64) {
	logger.Info().
		Str("event", "pattern").
		Str("symbol", symbol).
		Str("pattern_type", patternType).
		Int("position_first", first).
		Int("position_last", last).
		Float64("expected_win", expectedWin).
		Msg("Pattern detected")
}

// LogTrade logs a finished pattern trade.
func LogTrade(logger zerolog.Logger, tradeID, symbol string, buyPrice, sellPrice float64, result int) {
	logger.Info().
		Str("event", "trade").
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Float64("buy_price", buyPrice).
		Float64("sell_price", sellPrice).
		Int("result", result).
		Msg("Trade finished")
}

// LogStore logs a persistence call.
func LogStore(logger zerolog.Logger, table string, rows int, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "store").
		Str("table", table).
		Int("rows", rows).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Store call failed")
	} else {
		event.Msg("Store call completed")
	}
}
