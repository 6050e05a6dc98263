package generator

import (
	"math"
	"testing"
	"time"

	"index-signal-engine/internal/combiner"
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/levels"
	"index-signal-engine/internal/models"
	"index-signal-engine/internal/regime"
)

// candlesFromCloses builds a tape where each bar opens at the prior close and
// carries small wicks, so the direction of the closes alone drives the shape.
// Volume rises with the tape to keep volume studies confirming.
func candlesFromCloses(closes []float64) []models.Candle {
	base := time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	prev := closes[0]
	for i, close := range closes {
		open := prev
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      math.Max(open, close) + 0.05,
			Low:       math.Min(open, close) - 0.05,
			Close:     close,
			Volume:    1000 + 25*float64(i),
			Symbol:    "NIFTY50",
			Timeframe: models.Timeframe5m,
		}
		prev = close
	}
	return out
}

// runPipeline evaluates one window end to end, the same way a generator tick
// does: indicators, regime, combiner, levels.
func runPipeline(candles []models.Candle) (models.MarketRegime, combiner.Decision, levels.Result) {
	registry := indicators.NewDefaultRegistry()
	results := registry.EvaluateAll(candles, nil)
	marketRegime := regime.NewDetector().Detect(candles)
	decision := combiner.New(registry, 2).Combine(results, marketRegime)
	calc := levels.NewCalculator(1.5, 0.005, 1.0)
	lv := calc.Compute(candles[len(candles)-1].Close, indicators.ATR(candles, 14), decision.Action)
	return marketRegime, decision, lv
}

func checkWeightsSum(t *testing.T, weights map[models.IndicatorCategory]float64) {
	t.Helper()
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("dynamic weights sum to %v, want 1.0", sum)
	}
}

func TestScenarioStrongUptrend(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	candles := candlesFromCloses(closes)

	marketRegime, decision, lv := runPipeline(candles)

	if marketRegime.Regime != models.RegimeStrongTrending {
		t.Fatalf("regime = %s (ADX %.1f, chop %.1f), want STRONG_TRENDING",
			marketRegime.Regime, marketRegime.ADX, marketRegime.ChoppinessIndex)
	}
	if !decision.Action.IsBuy() {
		t.Fatalf("action = %s, want BUY or STRONG_BUY (total score %.1f)",
			decision.Action, decision.TotalScore)
	}
	if decision.Confidence < 70 {
		t.Errorf("confidence = %.1f, want >= 70", decision.Confidence)
	}
	checkWeightsSum(t, decision.DynamicWeights)

	last := closes[len(closes)-1]
	if lv.Levels.Entry != last {
		t.Errorf("entry = %v, want last close %v", lv.Levels.Entry, last)
	}
	if lv.Levels.StopLoss >= last {
		t.Errorf("stop loss %v not below entry %v", lv.Levels.StopLoss, last)
	}
	if !(lv.Levels.Target3 > lv.Levels.Target1 && lv.Levels.Target1 > last) {
		t.Errorf("target ladder %v / %v must ascend above entry %v",
			lv.Levels.Target1, lv.Levels.Target3, last)
	}
	if lv.Levels.RiskRewardRatio < 1.0 {
		t.Errorf("risk reward = %v, want >= 1.0", lv.Levels.RiskRewardRatio)
	}
}

func TestScenarioStrongDowntrend(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	candles := candlesFromCloses(closes)

	marketRegime, decision, lv := runPipeline(candles)

	if marketRegime.Regime != models.RegimeStrongTrending {
		t.Fatalf("regime = %s (ADX %.1f, chop %.1f), want STRONG_TRENDING",
			marketRegime.Regime, marketRegime.ADX, marketRegime.ChoppinessIndex)
	}
	if !decision.Action.IsSell() {
		t.Fatalf("action = %s, want SELL or STRONG_SELL (total score %.1f)",
			decision.Action, decision.TotalScore)
	}
	checkWeightsSum(t, decision.DynamicWeights)

	last := closes[len(closes)-1]
	if lv.Levels.Entry != last {
		t.Errorf("entry = %v, want last close %v", lv.Levels.Entry, last)
	}
	if lv.Levels.StopLoss <= last {
		t.Errorf("stop loss %v not above entry %v", lv.Levels.StopLoss, last)
	}
	if !(lv.Levels.Target3 < lv.Levels.Target1 && lv.Levels.Target1 < last) {
		t.Errorf("target ladder %v / %v must descend below entry %v",
			lv.Levels.Target1, lv.Levels.Target3, last)
	}
	if lv.Levels.RiskRewardRatio < 1.0 {
		t.Errorf("risk reward = %v, want >= 1.0", lv.Levels.RiskRewardRatio)
	}
}

func TestScenarioFlatRange(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + 0.5*math.Sin(float64(i)*1.7)
	}
	candles := candlesFromCloses(closes)

	marketRegime, decision, lv := runPipeline(candles)

	if marketRegime.Regime != models.RegimeRanging {
		t.Fatalf("regime = %s (ADX %.1f, chop %.1f), want RANGING",
			marketRegime.Regime, marketRegime.ADX, marketRegime.ChoppinessIndex)
	}
	if decision.Action != models.ActionHold {
		t.Fatalf("action = %s, want HOLD (total score %.1f)", decision.Action, decision.TotalScore)
	}
	if decision.Confidence > 20 {
		t.Errorf("confidence = %.1f, want <= 20 in a dead range", decision.Confidence)
	}
	if len(decision.Alerts) == 0 {
		t.Error("ranging HOLD must carry at least one alert")
	}
	if lv.Action != models.ActionHold {
		t.Errorf("levels action = %s, want HOLD", lv.Action)
	}
	checkWeightsSum(t, decision.DynamicWeights)
}

// TestScenarioUptrendSharpReversal walks a window through a trend break: fifty
// bars up one point each, then ten bars down three points each. The regime
// must downgrade from strong to weak trending and the buy must not survive the
// break, with every structural invariant holding at each step in between.
func TestScenarioUptrendSharpReversal(t *testing.T) {
	closes := make([]float64, 0, 61)
	for i := 0; i <= 50; i++ {
		closes = append(closes, 100+float64(i))
	}
	for k := 1; k <= 10; k++ {
		closes = append(closes, 150-3*float64(k))
	}
	candles := candlesFromCloses(closes)

	peakRegime, peakDecision, _ := runPipeline(candles[:51])
	if peakRegime.Regime != models.RegimeStrongTrending {
		t.Fatalf("peak regime = %s (ADX %.1f, chop %.1f), want STRONG_TRENDING",
			peakRegime.Regime, peakRegime.ADX, peakRegime.ChoppinessIndex)
	}
	if !peakDecision.Action.IsBuy() {
		t.Fatalf("peak action = %s, want BUY family (total score %.1f)",
			peakDecision.Action, peakDecision.TotalScore)
	}

	endRegime, endDecision, _ := runPipeline(candles)
	if endRegime.Regime != models.RegimeWeakTrending {
		t.Errorf("post-reversal regime = %s (ADX %.1f, chop %.1f), want WEAK_TRENDING",
			endRegime.Regime, endRegime.ADX, endRegime.ChoppinessIndex)
	}
	if endDecision.Action.IsBuy() {
		t.Errorf("post-reversal action = %s, want HOLD or a sell", endDecision.Action)
	}

	// Every intermediate window must stay structurally sound.
	for n := 51; n <= len(candles); n++ {
		_, decision, lv := runPipeline(candles[:n])
		if decision.Confidence < 0 || decision.Confidence > 100 {
			t.Errorf("window %d: confidence %v out of [0, 100]", n, decision.Confidence)
		}
		if decision.TotalScore < -100 || decision.TotalScore > 100 {
			t.Errorf("window %d: total score %v out of [-100, 100]", n, decision.TotalScore)
		}
		checkWeightsSum(t, decision.DynamicWeights)
		if lv.Action != models.ActionHold {
			if !levels.Valid(lv.Levels, lv.Action) {
				t.Errorf("window %d: invalid level ladder %+v for %s", n, lv.Levels, lv.Action)
			}
			if lv.Levels.RiskRewardRatio < 1.0 {
				t.Errorf("window %d: risk reward %v below 1.0", n, lv.Levels.RiskRewardRatio)
			}
		}
	}
}

// TestScenarioDeterministic evaluates the same window twice through the full
// pipeline and requires identical output.
func TestScenarioDeterministic(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + 8*math.Sin(float64(i)/6) + 0.3*float64(i)
	}
	candles := candlesFromCloses(closes)

	regimeA, decisionA, lvA := runPipeline(candles)
	regimeB, decisionB, lvB := runPipeline(candles)

	if regimeA != regimeB {
		t.Errorf("regime differs across runs: %+v vs %+v", regimeA, regimeB)
	}
	if decisionA.Action != decisionB.Action ||
		decisionA.TotalScore != decisionB.TotalScore ||
		decisionA.Confidence != decisionB.Confidence {
		t.Errorf("decision differs across runs: %+v vs %+v", decisionA, decisionB)
	}
	if lvA.Levels != lvB.Levels {
		t.Errorf("levels differ across runs: %+v vs %+v", lvA.Levels, lvB.Levels)
	}
}
