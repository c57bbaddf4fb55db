// Package predictor defines the interface to the models that forecast
// pattern outcomes, together with the feature lists they consume.
package predictor

import (
	"context"
	"sync"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/errors"
)

// Kind selects which prediction is requested.
type Kind string

const (
	KindTouchPoints    Kind = "touch_points"
	KindBeforeBreakout Kind = "before_breakout"
	KindAfterBreakout  Kind = "after_breakout"
	KindForTrade       Kind = "for_trade"
)

// Kinds lists every prediction kind.
var Kinds = []Kind{KindTouchPoints, KindBeforeBreakout, KindAfterBreakout, KindForTrade}

// Feature names in the order the models expect them.
var features = map[Kind][]string{
	KindTouchPoints: {
		"slope_upper_pct", "slope_lower_pct", "slope_regression_pct",
		"height_start", "height_end", "touch_points_upper", "touch_points_lower",
	},
	KindBeforeBreakout: {
		"slope_upper_pct", "slope_lower_pct", "slope_regression_pct",
		"height_start", "height_end", "previous_period_top_out_pct", "previous_period_bottom_out_pct",
		"touch_points_upper", "touch_points_lower",
	},
	KindAfterBreakout: {
		"slope_upper_pct", "slope_lower_pct", "height_start", "height_end",
		"breakout_direction", "volume_change_pct", "breakout_excess_pct",
	},
	KindForTrade: {
		"height_start", "expected_win", "breakout_direction", "volume_change_pct",
	},
}

// Features returns the ordered feature names of kind.
func Features(kind Kind) []string {
	return features[kind]
}

// Vector assembles the feature vector of kind from named values. Missing
// values are zero.
func Vector(kind Kind, values map[string]float64) []float64 {
	names := features[kind]
	out := make([]float64, len(names))
	for i, n := range names {
		out[i] = values[n]
	}
	return out
}

// Predictor returns label values for a feature vector. A nil map means no
// prediction is available.
type Predictor interface {
	Predict(ctx context.Context, pt analysis.PatternType, kind Kind, vector []float64) (map[string]float64, error)
}

// Static returns fixed labels per kind; useful for replays and tests.
type Static struct {
	mu     sync.RWMutex
	labels map[Kind]map[string]float64
	calls  int
}

// NewStatic creates a predictor answering with labels.
func NewStatic(labels map[Kind]map[string]float64) *Static {
	return &Static{labels: labels}
}

// Predict implements Predictor.
func (s *Static) Predict(_ context.Context, _ analysis.PatternType, kind Kind, vector []float64) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(vector) != len(features[kind]) {
		return nil, errors.NewValidationError("vector", len(vector), "feature count mismatch")
	}
	labels, ok := s.labels[kind]
	if !ok {
		return nil, errors.ErrPredictorUnavailable
	}
	out := make(map[string]float64, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out, nil
}

// Calls returns the number of Predict calls.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}
