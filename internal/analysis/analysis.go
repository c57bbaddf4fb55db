// Package analysis provides the vocabulary shared by the pattern detector,
// the Fibonacci wave tree and the trading engine.
package analysis

import (
	"strings"

	"pattern-trader/internal/errors"
)

// PatternType identifies a chart formation.
type PatternType string

const (
	Triangle               PatternType = "Triangle"
	TriangleTop            PatternType = "Triangle-top"
	TriangleBottom         PatternType = "Triangle-bottom"
	TriangleUp             PatternType = "Triangle-up"
	TriangleDown           PatternType = "Triangle-down"
	Channel                PatternType = "Channel"
	ChannelUp              PatternType = "Channel-up"
	ChannelDown            PatternType = "Channel-down"
	TKETop                 PatternType = "TKE-top"
	TKEBottom              PatternType = "TKE-bottom"
	HeadShoulder           PatternType = "Head-Shoulder"
	HeadShoulderAsc        PatternType = "Head-Shoulder-asc"
	HeadShoulderBottom     PatternType = "Head-Shoulder-bottom"
	HeadShoulderBottomDesc PatternType = "Head-Shoulder-bottom-desc"
	FibonacciAsc           PatternType = "Fibonacci-asc"
	FibonacciDesc          PatternType = "Fibonacci-desc"
)

// AllPatternTypes lists every known pattern type in detection order.
var AllPatternTypes = []PatternType{
	Triangle, TriangleTop, TriangleBottom, TriangleUp, TriangleDown,
	Channel, ChannelUp, ChannelDown,
	TKETop, TKEBottom,
	HeadShoulder, HeadShoulderAsc, HeadShoulderBottom, HeadShoulderBottomDesc,
	FibonacciAsc, FibonacciDesc,
}

// ParsePatternType resolves a configured name (case-insensitive, '_' and '-'
// are interchangeable).
func ParsePatternType(name string) (PatternType, error) {
	norm := normalize(name)
	for _, pt := range AllPatternTypes {
		if normalize(string(pt)) == norm {
			return pt, nil
		}
	}
	return "", errors.NewUnknownPatternTypeError(name)
}

// ParsePatternTypes resolves a list of names, failing on the first unknown one.
func ParsePatternTypes(names []string) ([]PatternType, error) {
	out := make([]PatternType, 0, len(names))
	for _, n := range names {
		pt, err := ParsePatternType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
}

// IsTriangle reports whether pt belongs to the triangle family.
func (pt PatternType) IsTriangle() bool {
	switch pt {
	case Triangle, TriangleTop, TriangleBottom, TriangleUp, TriangleDown:
		return true
	}
	return false
}

// IsChannel reports whether pt belongs to the channel family.
func (pt PatternType) IsChannel() bool {
	return pt == Channel || pt == ChannelUp || pt == ChannelDown
}

// IsTKE reports whether pt is a trend-channel-end formation.
func (pt PatternType) IsTKE() bool {
	return pt == TKETop || pt == TKEBottom
}

// IsHeadShoulder reports whether pt is a head-shoulder top formation.
func (pt PatternType) IsHeadShoulder() bool {
	return pt == HeadShoulder || pt == HeadShoulderAsc
}

// IsHeadShoulderBottom reports whether pt is an inverse head-shoulder formation.
func (pt PatternType) IsHeadShoulderBottom() bool {
	return pt == HeadShoulderBottom || pt == HeadShoulderBottomDesc
}

// IsFibonacci reports whether pt is produced from a Fibonacci wave.
func (pt PatternType) IsFibonacci() bool {
	return pt == FibonacciAsc || pt == FibonacciDesc
}

// Direction is the expected or observed direction of a breakout or wave.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
	DirectionEither
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionEither:
		return "either"
	default:
		return "none"
	}
}

// Allows reports whether an observed direction satisfies an expected one.
func (d Direction) Allows(observed Direction) bool {
	if d == DirectionEither {
		return observed == DirectionUp || observed == DirectionDown
	}
	return d == observed
}

// Sign returns +1 for up, -1 for down and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	}
	return 0
}

// ValueCategory is the label the value categorizer assigns to a tick
// relative to a pattern envelope.
type ValueCategory string

const (
	UpperOut      ValueCategory = "upper-out"
	UpperOn       ValueCategory = "upper-on"
	UpperIn       ValueCategory = "upper-in"
	MiddleIn      ValueCategory = "middle-in"
	LowerIn       ValueCategory = "lower-in"
	LowerOn       ValueCategory = "lower-on"
	LowerOut      ValueCategory = "lower-out"
	HelperUpperOn ValueCategory = "helper-upper-on"
	HelperLowerOn ValueCategory = "helper-lower-on"
)

// Period distinguishes daily from intraday series.
type Period string

const (
	PeriodDaily    Period = "daily"
	PeriodIntraday Period = "intraday"
)

// SecondsPerDay converts a unix timestamp into a day number.
const SecondsPerDay = 86400

// FVar returns the abscissa used by every linear function for a timestamp.
func (p Period) FVar(timestamp int64) float64 {
	if p == PeriodIntraday {
		return float64(timestamp)
	}
	return float64(timestamp) / SecondsPerDay
}
