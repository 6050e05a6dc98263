// Package indicators implements the indicator evaluation framework: a uniform
// contract every indicator conforms to, and a registry that evaluates them
// over a candle window.
//
// Evaluators are pure functions of their inputs. They never perform I/O, keep
// no state between calls, and absorb their own failures: a window shorter than
// the indicator's minimum yields an INSUFFICIENT_DATA result with a zero
// score, never an error.
package indicators

import (
	"encoding/json"
	"math"

	"index-signal-engine/internal/models"
)

// DefaultImportance is the importance weight of indicators without an explicit
// override.
const DefaultImportance = 0.85

// Params is an integer parameter map passed to evaluations. Missing keys fall
// back to the indicator's defaults.
type Params map[string]int

// Get returns the parameter value or def when absent or non-positive.
func (p Params) Get(key string, def int) int {
	if v, ok := p[key]; ok && v > 0 {
		return v
	}
	return def
}

// Spec statically describes an indicator.
type Spec struct {
	Name          string
	Category      models.IndicatorCategory
	MinCandles    int
	DefaultParams Params
	Importance    float64 // [0.5, 1.2]
}

// Evaluator is the uniform evaluation contract.
type Evaluator interface {
	Spec() Spec
	Evaluate(candles []models.Candle, params Params) models.IndicatorResult
}

// evalFunc computes a result from a window already checked against MinCandles.
type evalFunc func(candles []models.Candle, p Params) models.IndicatorResult

// indicator is the built-in Evaluator implementation wrapping an evalFunc with
// the shared precondition and normalization steps.
type indicator struct {
	spec Spec
	fn   evalFunc
}

func newIndicator(spec Spec, fn evalFunc) Evaluator {
	if spec.Importance == 0 {
		spec.Importance = DefaultImportance
	}
	return indicator{spec: spec, fn: fn}
}

func (i indicator) Spec() Spec { return i.spec }

func (i indicator) Evaluate(candles []models.Candle, params Params) models.IndicatorResult {
	p := i.mergedParams(params)
	if len(candles) < i.minCandlesFor(p) {
		return Insufficient(i.spec)
	}
	res := i.fn(candles, p)
	res.Name = i.spec.Name
	res.Category = i.spec.Category
	normalize(&res)
	return res
}

// minCandlesFor scales the static candle minimum when an override extends a
// lookback beyond its default. MinCandles is declared for the default
// parameters; growing it by the largest single excess preserves the margin
// the declaration built in, so no evaluator reaches past the window.
func (i indicator) minCandlesFor(p Params) int {
	min := i.spec.MinCandles
	for key, def := range i.spec.DefaultParams {
		if v := p.Get(key, def); v > def {
			if grown := i.spec.MinCandles + v - def; grown > min {
				min = grown
			}
		}
	}
	return min
}

func (i indicator) mergedParams(overrides Params) Params {
	if len(overrides) == 0 {
		return i.spec.DefaultParams
	}
	merged := make(Params, len(i.spec.DefaultParams)+len(overrides))
	for k, v := range i.spec.DefaultParams {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Insufficient is the canonical short-window result.
func Insufficient(spec Spec) models.IndicatorResult {
	return models.IndicatorResult{
		Name:      spec.Name,
		Category:  spec.Category,
		Direction: models.DirectionNeutral,
		Strength:  models.StrengthVeryWeak,
		ErrorKind: models.ErrInsufficientData,
	}
}

// insufficientResult is the in-evaluator form of Insufficient, for evaluators
// whose candle minimum is met but whose structural inputs (swing points,
// clustered zones) are absent from the window. Name and category are filled
// by the Evaluate wrapper.
func insufficientResult() models.IndicatorResult {
	return models.IndicatorResult{
		Direction: models.DirectionNeutral,
		Strength:  models.StrengthVeryWeak,
		ErrorKind: models.ErrInsufficientData,
	}
}

// result assembles an IndicatorResult from a score, a confidence and the
// indicator's raw numeric state. Direction, strength and clamping are derived
// here so every evaluator reports consistently.
func result(score, confidence float64, raw any) models.IndicatorResult {
	res := models.IndicatorResult{Score: score, Confidence: confidence}
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			res.RawValue = b
		}
	}
	normalize(&res)
	return res
}

// neutralBand is the |score| below which an indicator votes NEUTRAL.
const neutralBand = 10.0

func normalize(res *models.IndicatorResult) {
	res.Score = clamp(res.Score, -100, 100)
	res.Confidence = clamp(res.Confidence, 0, 100)
	if math.IsNaN(res.Score) {
		res.Score = 0
	}
	if math.IsNaN(res.Confidence) {
		res.Confidence = 0
	}
	switch {
	case res.Score >= neutralBand:
		res.Direction = models.DirectionBuy
	case res.Score <= -neutralBand:
		res.Direction = models.DirectionSell
	default:
		res.Direction = models.DirectionNeutral
	}
	res.Strength = models.StrengthFromScore(math.Abs(res.Score))
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
