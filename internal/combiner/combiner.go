// Package combiner fuses per-indicator results into a single directional
// decision. Category weights start from a fixed baseline, are tilted by the
// detected market regime, and are renormalized to sum to one before
// aggregation.
package combiner

import (
	"fmt"
	"math"
	"sort"

	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/models"
)

// Baseline category weights. They sum to 1.0.
var baselineWeights = map[models.IndicatorCategory]float64{
	models.CategoryTrend:             0.28,
	models.CategoryMomentum:          0.25,
	models.CategoryVolume:            0.15,
	models.CategoryVolatility:        0.10,
	models.CategorySupportResistance: 0.15,
	models.CategoryPatterns:          0.07,
}

// Regime multipliers applied to the baseline before renormalization.
var regimeMultipliers = map[models.RegimeType]map[models.IndicatorCategory]float64{
	models.RegimeStrongTrending: {
		models.CategoryTrend:             1.25,
		models.CategoryMomentum:          1.12,
		models.CategoryVolume:            1.20,
		models.CategoryVolatility:        0.60,
		models.CategorySupportResistance: 0.67,
		models.CategoryPatterns:          0.85,
	},
	models.RegimeWeakTrending: {
		models.CategoryTrend:             1.10,
		models.CategoryMomentum:          1.05,
		models.CategoryVolume:            1.00,
		models.CategoryVolatility:        1.00,
		models.CategorySupportResistance: 1.10,
		models.CategoryPatterns:          1.00,
	},
	models.RegimeRanging: {
		models.CategoryTrend:             0.71,
		models.CategoryMomentum:          1.12,
		models.CategoryVolume:            0.67,
		models.CategoryVolatility:        1.50,
		models.CategorySupportResistance: 1.67,
		models.CategoryPatterns:          1.14,
	},
}

const (
	strongBuyThreshold = 70.0
	buyThreshold       = 30.0
	agreementEpsilon   = 1e-9
	topReasonCount     = 5
)

// Combiner aggregates indicator results under regime-adjusted weights.
type Combiner struct {
	registry *indicators.Registry

	// minContributors is the minimum count of usable results a category needs
	// before the decision is considered well-founded.
	minContributors int
}

func New(registry *indicators.Registry, minContributors int) *Combiner {
	if minContributors <= 0 {
		minContributors = 2
	}
	return &Combiner{registry: registry, minContributors: minContributors}
}

// Decision is the combiner's output, consumed by the levels calculator and
// assembled into a Signal by the generator.
type Decision struct {
	Action          models.SignalAction
	TotalScore      float64 // [-100, +100]
	NormalizedScore float64 // [0, 100]
	Confidence      float64 // [0, 100]
	Strength        models.Strength
	CategoryScores  []models.CategoryScore
	DynamicWeights  map[models.IndicatorCategory]float64
	Reasoning       []string
	Alerts          []string
}

// Combine fuses results under the given regime. Indicator failures have
// already been absorbed upstream; results with a non-empty errorKind are
// treated as absent.
func (c *Combiner) Combine(results []models.IndicatorResult, regime models.MarketRegime) Decision {
	weights := DynamicWeights(regime.Regime)
	byCategory := groupUsable(results)

	categoryScores := make([]models.CategoryScore, 0, len(models.Categories))
	shortfall := false
	for _, category := range models.Categories {
		cs := c.aggregateCategory(category, byCategory[category])
		categoryScores = append(categoryScores, cs)
		if cs.ContributorCount < c.minContributors {
			shortfall = true
		}
	}

	if shortfall {
		return Decision{
			Action:         models.ActionHold,
			Strength:       models.StrengthVeryWeak,
			CategoryScores: categoryScores,
			DynamicWeights: weights,
			Alerts:         []string{"insufficient usable indicators in one or more categories"},
		}
	}

	var totalScore float64
	for _, cs := range categoryScores {
		totalScore += weights[cs.Category] * cs.WeightedScore
	}
	totalScore = clamp(totalScore, -100, 100)

	confidence := normalizeConfidence(totalScore, categoryScores, regime)
	action := mapAction(totalScore)
	reasoning := buildReasoning(results, weights, totalScore)
	alerts := buildAlerts(action, regime)

	return Decision{
		Action:          action,
		TotalScore:      totalScore,
		NormalizedScore: math.Abs(totalScore),
		Confidence:      confidence,
		Strength:        models.StrengthFromScore(math.Abs(totalScore)),
		CategoryScores:  categoryScores,
		DynamicWeights:  weights,
		Reasoning:       reasoning,
		Alerts:          alerts,
	}
}

// DynamicWeights returns the regime-tilted category weights, renormalized to
// sum to 1.0. An unknown regime keeps the baseline.
func DynamicWeights(regime models.RegimeType) map[models.IndicatorCategory]float64 {
	multipliers, ok := regimeMultipliers[regime]
	out := make(map[models.IndicatorCategory]float64, len(baselineWeights))

	var sum float64
	for category, base := range baselineWeights {
		w := base
		if ok {
			w *= multipliers[category]
		}
		out[category] = w
		sum += w
	}
	for category := range out {
		out[category] /= sum
	}
	return out
}

// Power is the per-indicator multiplier derived from the indicator's own
// reported confidence, strength and score magnitude.
func Power(r models.IndicatorResult) float64 {
	power := 0.5
	switch {
	case r.Confidence >= 80:
		power += 0.3
	case r.Confidence >= 60:
		power += 0.2
	case r.Confidence >= 50:
		power += 0.1
	}
	switch r.Strength {
	case models.StrengthVeryStrong:
		power += 0.2
	case models.StrengthStrong:
		power += 0.1
	}
	if math.Abs(r.Score) >= 60 {
		power += 0.1
	}
	return clamp(power, 0.5, 1.0)
}

func groupUsable(results []models.IndicatorResult) map[models.IndicatorCategory][]models.IndicatorResult {
	grouped := make(map[models.IndicatorCategory][]models.IndicatorResult)
	for _, r := range results {
		if r.Failed() {
			continue
		}
		grouped[r.Category] = append(grouped[r.Category], r)
	}
	return grouped
}

func (c *Combiner) aggregateCategory(category models.IndicatorCategory, results []models.IndicatorResult) models.CategoryScore {
	cs := models.CategoryScore{Category: category, AveragePower: 0.5}
	if len(results) == 0 {
		return cs
	}

	var weightedSum, weightSum, powerSum float64
	var buys, sells, neutrals int
	for _, r := range results {
		p := Power(r)
		w := c.registry.LookupImportance(r.Name) * p
		weightedSum += r.Score * w
		weightSum += w
		powerSum += p
		switch r.Direction {
		case models.DirectionBuy:
			buys++
		case models.DirectionSell:
			sells++
		default:
			neutrals++
		}
	}

	if weightSum > 0 {
		cs.WeightedScore = clamp(weightedSum/weightSum, -100, 100)
	}
	cs.AveragePower = powerSum / float64(len(results))
	cs.ContributorCount = len(results)
	dominant := buys
	if sells > dominant {
		dominant = sells
	}
	cs.AgreementRatio = float64(dominant) / (float64(buys+sells+neutrals) + agreementEpsilon)
	return cs
}

func normalizeConfidence(totalScore float64, categoryScores []models.CategoryScore, regime models.MarketRegime) float64 {
	base := math.Min(100, math.Abs(totalScore))

	var agreementSum, powerSum float64
	for _, cs := range categoryScores {
		agreementSum += cs.AgreementRatio
		powerSum += cs.AveragePower
	}
	n := float64(len(categoryScores))
	agreement := 20 * (agreementSum / n)
	regimeFit := 10 * regimeAlignment(totalScore, regime.Regime)
	meanPower := powerSum / n

	// Power in [0.5, 1.0] scales the sum by [0.8, 1.2].
	scale := lerp(0.8, 1.2, (meanPower-0.5)/0.5)
	return clamp((base+agreement+regimeFit)*scale, 0, 100)
}

// fullAlignmentScore is the |totalScore| at which a trending regime counts as
// fully aligned with the direction of the score.
const fullAlignmentScore = 50.0

// regimeAlignment grades how well a total score fits the regime: a strong
// score in a strong trend is fully aligned, the same score in a ranging
// market is discounted to zero.
func regimeAlignment(totalScore float64, regime models.RegimeType) float64 {
	magnitude := math.Min(math.Abs(totalScore)/fullAlignmentScore, 1.0)
	switch regime {
	case models.RegimeStrongTrending:
		return magnitude
	case models.RegimeWeakTrending:
		return magnitude * 0.5
	case models.RegimeRanging:
		return 0
	default:
		return 0
	}
}

func mapAction(totalScore float64) models.SignalAction {
	switch {
	case totalScore >= strongBuyThreshold:
		return models.ActionStrongBuy
	case totalScore >= buyThreshold:
		return models.ActionBuy
	case totalScore <= -strongBuyThreshold:
		return models.ActionStrongSell
	case totalScore <= -buyThreshold:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// buildReasoning lists the strongest contributors in the winning direction,
// ranked by score magnitude times power times category weight.
func buildReasoning(results []models.IndicatorResult, weights map[models.IndicatorCategory]float64, totalScore float64) []string {
	sign := 1.0
	if totalScore < 0 {
		sign = -1
	}
	type contribution struct {
		r      models.IndicatorResult
		weight float64
	}
	var contributors []contribution
	for _, r := range results {
		if r.Failed() || r.Score*sign <= 0 {
			continue
		}
		contributors = append(contributors, contribution{
			r:      r,
			weight: math.Abs(r.Score) * Power(r) * weights[r.Category],
		})
	}
	sort.Slice(contributors, func(i, j int) bool {
		if contributors[i].weight != contributors[j].weight {
			return contributors[i].weight > contributors[j].weight
		}
		return contributors[i].r.Name < contributors[j].r.Name
	})

	n := topReasonCount
	if len(contributors) < n {
		n = len(contributors)
	}
	reasoning := make([]string, 0, n)
	for _, cb := range contributors[:n] {
		reasoning = append(reasoning, fmt.Sprintf("%s (%s): %s, score %.1f, confidence %.0f",
			cb.r.Name, cb.r.Category, cb.r.Direction, cb.r.Score, cb.r.Confidence))
	}
	return reasoning
}

func buildAlerts(action models.SignalAction, regime models.MarketRegime) []string {
	var alerts []string
	if regime.Regime == models.RegimeRanging &&
		(action == models.ActionStrongBuy || action == models.ActionStrongSell) {
		alerts = append(alerts, "strong signal in a ranging market, reduced reliability")
	}
	if regime.Regime == models.RegimeRanging && action == models.ActionHold {
		alerts = append(alerts, "ranging market with no directional edge, stand aside")
	}
	if regime.Volatility == models.VolatilityVeryHigh {
		alerts = append(alerts, "very high volatility, wider stops advised")
	}
	return alerts
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*clamp(t, 0, 1)
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
