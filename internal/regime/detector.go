// Package regime classifies the market into trending and ranging states and
// grades current volatility. The classification drives the combiner's dynamic
// category weights.
package regime

import (
	"fmt"
	"math"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/models"
)

const (
	adxPeriod        = 14
	choppinessPeriod = 14
	volatilityWindow = 50

	adxStrong  = 30.0
	adxWeak    = 20.0
	chopTrend  = 50.0
	chopRange  = 61.8
	minCandles = 30

	// A strong-band ADX that has shed this many points over the trailing
	// lookback marks a trend losing force before the level itself leaves
	// the band. Classic Wilder ADX decays slowly, so a sharp reversal can
	// sit above adxStrong for many bars while the move is already broken.
	adxCollapseLookback = 5
	adxCollapseDrop     = 10.0
)

// Detector computes a MarketRegime from a candle window. It is stateless and
// safe for concurrent use.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Detect classifies the window. Windows shorter than 30 candles yield
// UNKNOWN with zero confidence.
func (d *Detector) Detect(candles []models.Candle) models.MarketRegime {
	if len(candles) < minCandles {
		return models.MarketRegime{
			Regime:         models.RegimeUnknown,
			Volatility:     models.VolatilityUnknown,
			Interpretation: "insufficient data for regime classification",
		}
	}

	adx, _, _ := indicators.ADX(candles, adxPeriod)
	chop := Choppiness(candles, choppinessPeriod)
	volatility := classifyVolatility(candles)

	regime := classify(adx, chop)
	confidence := boundaryDepth(regime, adx, chop)
	if regime == models.RegimeStrongTrending && len(candles) > minCandles+adxCollapseLookback {
		prior, _, _ := indicators.ADX(candles[:len(candles)-adxCollapseLookback], adxPeriod)
		if drop := prior - adx; drop >= adxCollapseDrop {
			regime = models.RegimeWeakTrending
			confidence = clamp(drop*4, 0, 100)
		}
	}

	return models.MarketRegime{
		Regime:          regime,
		Volatility:      volatility,
		ADX:             adx,
		ChoppinessIndex: chop,
		Confidence:      confidence,
		Interpretation:  interpret(regime, volatility, adx, chop),
	}
}

func classify(adx, chop float64) models.RegimeType {
	switch {
	case adx >= adxStrong && chop < chopTrend:
		return models.RegimeStrongTrending
	case adx < adxWeak && chop >= chopRange:
		return models.RegimeRanging
	default:
		// Disagreeing or intermediate readings default to the weak band.
		return models.RegimeWeakTrending
	}
}

// boundaryDepth measures how far inside its classifying box the (adx, chop)
// pair sits, scaled to [0, 100]. Readings on a boundary score near zero.
func boundaryDepth(regime models.RegimeType, adx, chop float64) float64 {
	var depth float64
	switch regime {
	case models.RegimeStrongTrending:
		depth = math.Min((adx-adxStrong)/20, (chopTrend-chop)/20)
	case models.RegimeRanging:
		depth = math.Min((adxWeak-adx)/20, (chop-chopRange)/20)
	case models.RegimeWeakTrending:
		// Distance from both neighbouring boxes.
		toStrong := math.Max((adxStrong-adx)/20, (chop-chopTrend)/20)
		toRanging := math.Max((adx-adxWeak)/20, (chopRange-chop)/20)
		depth = math.Min(toStrong, toRanging)
	default:
		return 0
	}
	return clamp(depth*100, 0, 100)
}

// Choppiness is the choppiness index over the trailing period: 100 means pure
// sideways noise, 0 a perfectly directional move.
func Choppiness(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50
	}
	window := candles[len(candles)-period:]

	var trSum float64
	trs := indicators.TrueRanges(candles)
	for _, tr := range trs[len(trs)-period:] {
		trSum += tr
	}
	high := indicators.HighestHigh(window, period)
	low := indicators.LowestLow(window, period)
	if trSum == 0 || high == low {
		return 50
	}
	return 100 * math.Log10(trSum/(high-low)) / math.Log10(float64(period))
}

// classifyVolatility ranks the current ATR against its own rolling window and
// maps the percentile to the six volatility bands.
func classifyVolatility(candles []models.Candle) models.VolatilityLevel {
	atrSeries := indicators.ATRSeries(candles, adxPeriod)
	n := len(atrSeries)
	if n < volatilityWindow {
		return models.VolatilityUnknown
	}
	history := atrSeries[n-volatilityWindow:]
	current := atrSeries[n-1]
	if current == 0 {
		return models.VolatilityVeryLow
	}
	rank := indicators.PercentileRank(history, current)

	switch {
	case rank >= 95:
		return models.VolatilityVeryHigh
	case rank >= 80:
		return models.VolatilityHigh
	case rank >= 60:
		return models.VolatilityElevated
	case rank >= 30:
		return models.VolatilityNormal
	case rank >= 10:
		return models.VolatilityLow
	default:
		return models.VolatilityVeryLow
	}
}

func interpret(regime models.RegimeType, vol models.VolatilityLevel, adx, chop float64) string {
	var base string
	switch regime {
	case models.RegimeStrongTrending:
		base = "strong directional trend"
	case models.RegimeWeakTrending:
		base = "weak, developing or fading trend"
	case models.RegimeRanging:
		base = "sideways range"
	default:
		base = "unclassified"
	}
	return fmt.Sprintf("%s (ADX %.1f, choppiness %.1f), volatility %s", base, adx, chop, vol)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
