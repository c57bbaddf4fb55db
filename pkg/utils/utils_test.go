package utils

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1,234,567.89", FormatPrice(1234567.891, 2))
	assert.Equal(t, "-999.5", FormatPrice(-999.5, 1))
	assert.Equal(t, "12", FormatPrice(12, 0))
	assert.Equal(t, "+3.50%", FormatPercent(3.5))
	assert.Equal(t, "-1.25%", FormatPercent(-1.25))
	assert.Equal(t, "+35.00", FormatPnL(35))
	assert.Equal(t, "-1,000.00", FormatPnL(-1000))
	assert.Equal(t, "-12,345", FormatQuantity(-12345))
	assert.Equal(t, "2.50M", FormatCompact(2.5e6))
	assert.Equal(t, "-1.20K", FormatCompact(-1200))
	assert.Equal(t, "1970-01-02", FormatTimestamp(86400, false))
	assert.Equal(t, "1970-01-02 00:15", FormatTimestamp(86400+900, true))
}

// Feature: pattern-trader, Property 10: Grouped prices keep their digits
//
// For any amount, removing the separators from FormatPrice yields the plain
// fixed-point rendering, and every group after the first has three digits.
func TestProperty_FormatPriceGrouping(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("separators only", prop.ForAll(
		func(amount float64, decimals int) bool {
			out := FormatPrice(amount, decimals)
			if strings.ReplaceAll(out, ",", "") != strconv.FormatFloat(amount, 'f', decimals, 64) {
				return false
			}
			intPart, _, _ := strings.Cut(strings.TrimPrefix(out, "-"), ".")
			groups := strings.Split(intPart, ",")
			for i, g := range groups {
				if len(g) == 0 || len(g) > 3 || (i > 0 && len(g) != 3) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	busy := errors.New("busy")
	fatal := errors.New("fatal")
	cfg := RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		Retryable:     func(err error) bool { return errors.Is(err, busy) },
	}

	calls := 0
	err := Retry(ctx, cfg, func() error {
		calls++
		if calls < 3 {
			return busy
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, cfg, func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Retry(ctx, cfg, func() error {
		calls++
		return busy
	})
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, 3, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = Retry(cancelled, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error { return busy })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 10*time.Millisecond, Backoff(0, cfg))
	assert.Equal(t, 40*time.Millisecond, Backoff(2, cfg))
	assert.Equal(t, 50*time.Millisecond, Backoff(5, cfg))
}
