package models

import "encoding/json"

// IndicatorCategory groups indicators for weighting purposes.
type IndicatorCategory string

const (
	CategoryTrend             IndicatorCategory = "TREND"
	CategoryMomentum          IndicatorCategory = "MOMENTUM"
	CategoryVolume            IndicatorCategory = "VOLUME"
	CategoryVolatility        IndicatorCategory = "VOLATILITY"
	CategorySupportResistance IndicatorCategory = "SUPPORT_RESISTANCE"
	CategoryPatterns          IndicatorCategory = "PATTERNS"
)

// Categories lists the categories fed into the combiner, in stable order.
var Categories = []IndicatorCategory{
	CategoryTrend,
	CategoryMomentum,
	CategoryVolume,
	CategoryVolatility,
	CategorySupportResistance,
	CategoryPatterns,
}

// Direction is the directional vote of a single indicator.
type Direction string

const (
	DirectionBuy     Direction = "BUY"
	DirectionSell    Direction = "SELL"
	DirectionNeutral Direction = "NEUTRAL"
)

// Strength is the ordinal strength tier of an indicator reading.
type Strength string

const (
	StrengthVeryWeak   Strength = "VERY_WEAK"
	StrengthWeak       Strength = "WEAK"
	StrengthModerate   Strength = "MODERATE"
	StrengthStrong     Strength = "STRONG"
	StrengthVeryStrong Strength = "VERY_STRONG"
)

// StrengthFromScore maps an absolute score in [0,100] to a strength tier.
func StrengthFromScore(absScore float64) Strength {
	switch {
	case absScore >= 80:
		return StrengthVeryStrong
	case absScore >= 60:
		return StrengthStrong
	case absScore >= 40:
		return StrengthModerate
	case absScore >= 20:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}

// ErrorKind classifies recoverable evaluation failures. Indicator errors are
// absorbed into the result; they never surface as Go errors.
type ErrorKind string

const (
	ErrInsufficientData ErrorKind = "INSUFFICIENT_DATA"
	ErrFetchFailed      ErrorKind = "FETCH_FAILED"
	ErrFetchTimeout     ErrorKind = "FETCH_TIMEOUT"
	ErrInvariant        ErrorKind = "INVARIANT_VIOLATION"
	ErrStoreFailed      ErrorKind = "STORE_FAILED"
	ErrClockUnknown     ErrorKind = "CLOCK_UNKNOWN"
)

// IndicatorResult is the uniform output of every indicator evaluation.
// Score > 0 is bullish, score < 0 bearish; sign and magnitude are the only
// fields the combiner consumes.
type IndicatorResult struct {
	Name       string            `json:"name"`
	Category   IndicatorCategory `json:"category"`
	RawValue   json.RawMessage   `json:"raw_value,omitempty"`
	Direction  Direction         `json:"direction"`
	Score      float64           `json:"score"`      // [-100, +100]
	Strength   Strength          `json:"strength"`
	Confidence float64           `json:"confidence"` // [0, 100]
	ErrorKind  ErrorKind         `json:"error_kind,omitempty"`
}

// Failed reports whether the evaluation produced an error-kind result.
func (r IndicatorResult) Failed() bool { return r.ErrorKind != "" }
