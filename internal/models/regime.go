package models

// RegimeType is the three-way market structure classification.
type RegimeType string

const (
	RegimeStrongTrending RegimeType = "STRONG_TRENDING"
	RegimeWeakTrending   RegimeType = "WEAK_TRENDING"
	RegimeRanging        RegimeType = "RANGING"
	RegimeUnknown        RegimeType = "UNKNOWN"
)

// VolatilityLevel bands realized volatility by its rolling percentile.
type VolatilityLevel string

const (
	VolatilityVeryHigh VolatilityLevel = "VERY_HIGH"
	VolatilityHigh     VolatilityLevel = "HIGH"
	VolatilityElevated VolatilityLevel = "ELEVATED"
	VolatilityNormal   VolatilityLevel = "NORMAL"
	VolatilityLow      VolatilityLevel = "LOW"
	VolatilityVeryLow  VolatilityLevel = "VERY_LOW"
	VolatilityUnknown  VolatilityLevel = "UNKNOWN"
)

// MarketRegime is the output of the regime detector.
type MarketRegime struct {
	Regime          RegimeType      `json:"regime"`
	Volatility      VolatilityLevel `json:"volatility"`
	ADX             float64         `json:"adx"`
	ChoppinessIndex float64         `json:"choppiness_index"`
	Confidence      float64         `json:"confidence"` // [0, 100]
	Interpretation  string          `json:"interpretation"`
}

// IsTrending reports whether the regime favors trend-following categories.
func (m MarketRegime) IsTrending() bool {
	return m.Regime == RegimeStrongTrending || m.Regime == RegimeWeakTrending
}
