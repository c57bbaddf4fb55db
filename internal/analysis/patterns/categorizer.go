package patterns

import (
	"math"

	"pattern-trader/internal/analysis"
	"pattern-trader/internal/models"
)

// ValueCategorizer labels ticks relative to a function container.
type ValueCategorizer struct {
	fc       *FunctionContainer
	tol      float64
	tolEqual float64
}

// NewValueCategorizer creates a categorizer; tol decides on/out, tolEqual
// detects a collapsed envelope.
func NewValueCategorizer(fc *FunctionContainer, tol, tolEqual float64) *ValueCategorizer {
	return &ValueCategorizer{fc: fc, tol: tol, tolEqual: tolEqual}
}

// Categorize returns the category of t. Checks run in order: upper out/on,
// lower out/on, helper rails, then the thirds of the envelope by close.
func (vc *ValueCategorizer) Categorize(t models.Tick) analysis.ValueCategory {
	u := vc.fc.Upper.Eval(t.FVar)
	l := vc.fc.Lower.Eval(t.FVar)

	switch {
	case t.High > u*(1+vc.tol):
		return analysis.UpperOut
	case math.Abs(t.High-u) <= math.Abs(u)*vc.tol:
		return analysis.UpperOn
	case t.Low < l*(1-vc.tol):
		return analysis.LowerOut
	case math.Abs(t.Low-l) <= math.Abs(l)*vc.tol:
		return analysis.LowerOn
	}

	if h := vc.fc.HelperUpper; h != nil {
		hv := h.Eval(t.FVar)
		if math.Abs(t.High-hv) <= math.Abs(hv)*vc.tol {
			return analysis.HelperUpperOn
		}
	}
	if h := vc.fc.HelperLower; h != nil {
		hv := h.Eval(t.FVar)
		if math.Abs(t.Low-hv) <= math.Abs(hv)*vc.tol {
			return analysis.HelperLowerOn
		}
	}

	height := u - l
	if height <= math.Abs(u)*vc.tolEqual {
		return analysis.MiddleIn
	}
	share := (t.Close - l) / height
	switch {
	case share >= 2.0/3:
		return analysis.UpperIn
	case share >= 1.0/3:
		return analysis.MiddleIn
	}
	return analysis.LowerIn
}

// CategorizeAll labels every tick in order.
func (vc *ValueCategorizer) CategorizeAll(ticks []models.Tick) []analysis.ValueCategory {
	out := make([]analysis.ValueCategory, len(ticks))
	for i, t := range ticks {
		out[i] = vc.Categorize(t)
	}
	return out
}

// Comparator of a count rule.
type Comparator string

const (
	Equal          Comparator = "="
	Less           Comparator = "<"
	LessOrEqual    Comparator = "<="
	Greater        Comparator = ">"
	GreaterOrEqual Comparator = ">="
)

// Conjunction combines several rules.
type Conjunction string

const (
	And Conjunction = "and"
	Or  Conjunction = "or"
)

// CountRule requires the number of ticks in Category to compare to N.
type CountRule struct {
	Category analysis.ValueCategory
	Cmp      Comparator
	N        int
}

// Holds evaluates the rule against the category counts.
func (r CountRule) Holds(counts map[analysis.ValueCategory]int) bool {
	c := counts[r.Category]
	switch r.Cmp {
	case Equal:
		return c == r.N
	case Less:
		return c < r.N
	case LessOrEqual:
		return c <= r.N
	case Greater:
		return c > r.N
	case GreaterOrEqual:
		return c >= r.N
	}
	return false
}

// MatchesSeries reports whether series appears as a subsequence of stream.
// The walker is a finite state machine whose state is the number of series
// elements matched so far.
func MatchesSeries(stream, series []analysis.ValueCategory) bool {
	state := 0
	for _, c := range stream {
		if state == len(series) {
			break
		}
		if c == series[state] {
			state++
		}
	}
	return state == len(series)
}

func combine(conj Conjunction, results []bool) bool {
	if len(results) == 0 {
		return true
	}
	if conj == Or {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}
