package indicators

import (
	"math"

	"index-signal-engine/internal/models"
)

// Bounded oscillators score from zone tests against canonical thresholds,
// slope against the previous value, signal-line crossovers and basic
// divergence. Rising out of the oversold zone is the canonical BUY; falling
// out of overbought the canonical SELL. An oscillator holding an extreme
// zone without turning reads as trend persistence, not an imminent reversal:
// RSI parked above 70 is what a sustained advance looks like.

func momentumIndicators() []Evaluator {
	return []Evaluator{
		newIndicator(Spec{
			Name: "RSI_14", Category: models.CategoryMomentum,
			MinCandles: 30, DefaultParams: Params{"period": 14}, Importance: 1.0,
		}, evalRSI),
		newIndicator(Spec{
			Name: "STOCHASTIC", Category: models.CategoryMomentum,
			MinCandles: 30, DefaultParams: Params{"k": 14, "d": 3}, Importance: 0.95,
		}, evalStochastic),
		newIndicator(Spec{
			Name: "STOCH_RSI", Category: models.CategoryMomentum,
			MinCandles: 40, DefaultParams: Params{"rsi": 14, "stoch": 14, "d": 3},
		}, evalStochRSI),
		newIndicator(Spec{
			Name: "MFI_14", Category: models.CategoryMomentum,
			MinCandles: 30, DefaultParams: Params{"period": 14}, Importance: 0.9,
		}, evalMFI),
		newIndicator(Spec{
			Name: "WILLIAMS_R", Category: models.CategoryMomentum,
			MinCandles: 30, DefaultParams: Params{"period": 14},
		}, evalWilliamsR),
		newIndicator(Spec{
			Name: "CCI_20", Category: models.CategoryMomentum,
			MinCandles: 30, DefaultParams: Params{"period": 20},
		}, evalCCI),
		newIndicator(Spec{
			Name: "TSI", Category: models.CategoryMomentum,
			MinCandles: 45, DefaultParams: Params{"long": 25, "short": 13, "signal": 7},
		}, evalTSI),
		newIndicator(Spec{
			Name: "WAVETREND", Category: models.CategoryMomentum,
			MinCandles: 40, DefaultParams: Params{"channel": 10, "average": 21},
		}, evalWaveTrend),
		newIndicator(Spec{
			Name: "SCHAFF_TREND_CYCLE", Category: models.CategoryMomentum,
			MinCandles: 50, DefaultParams: Params{"fast": 23, "slow": 50, "cycle": 10},
		}, evalSchaff),
		newIndicator(Spec{
			Name: "ROC_12", Category: models.CategoryMomentum,
			MinCandles: 20, DefaultParams: Params{"period": 12},
		}, evalROC),
		newIndicator(Spec{
			Name: "MOMENTUM_10", Category: models.CategoryMomentum,
			MinCandles: 20, DefaultParams: Params{"period": 10},
		}, evalMomentum),
		newIndicator(Spec{
			Name: "ULTIMATE_OSC", Category: models.CategoryMomentum,
			MinCandles: 40, DefaultParams: Params{"short": 7, "medium": 14, "long": 28},
		}, evalUltimateOsc),
	}
}

// oscillatorScore is the shared zone/slope/divergence rule for oscillators
// normalized to [0,100] with standard 30/70-style thresholds.
func oscillatorScore(series, closes []float64, oversold, overbought float64) (score, conf float64) {
	n := len(series)
	value := series[n-1]
	prev := series[n-2]
	rising := value > prev
	falling := value < prev

	mid := (oversold + overbought) / 2
	switch {
	case value <= oversold && rising:
		score = 65 // rising out of the oversold zone
	case value <= oversold:
		score = -60 // pinned in the oversold zone, sellers still in control
	case value >= overbought && falling:
		score = -65
	case value >= overbought:
		score = 60 // holding the overbought zone, trend intact
	default:
		// Inside the band: mild bias from distance to midline plus slope.
		score = (mid - value) / (overbought - oversold) * 30
		if rising {
			score += 10
		} else if falling {
			score -= 10
		}
	}

	if div := Divergence(closes, series, 14); div != 0 {
		score = clamp(score+float64(div)*25, -95, 95)
	}

	depth := math.Max(oversold-value, value-overbought)
	conf = 40.0
	if depth > 0 {
		conf += math.Min(depth*2.5, 35)
	}
	if math.Abs(score) >= 60 {
		conf += 10
	}
	return score, conf
}

func evalRSI(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	closes := Closes(candles)
	rsi := RSISeries(closes, period)
	score, conf := oscillatorScore(rsi, closes, 30, 70)
	return result(score, conf, map[string]float64{"rsi": rsi[len(rsi)-1]})
}

func stochasticSeries(candles []models.Candle, kPeriod int) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		lo := i - kPeriod + 1
		if lo < 0 {
			lo = 0
		}
		hh, ll := candles[lo].High, candles[lo].Low
		for _, c := range candles[lo : i+1] {
			if c.High > hh {
				hh = c.High
			}
			if c.Low < ll {
				ll = c.Low
			}
		}
		if hh == ll {
			out[i] = 50 // flat range, neutral by contract
			continue
		}
		out[i] = (candles[i].Close - ll) / (hh - ll) * 100
	}
	return out
}

func evalStochastic(candles []models.Candle, p Params) models.IndicatorResult {
	kPeriod := p.Get("k", 14)
	dPeriod := p.Get("d", 3)
	closes := Closes(candles)
	k := stochasticSeries(candles, kPeriod)
	d := SMASeries(k, dPeriod)

	score, conf := oscillatorScore(k, closes, 20, 80)
	if cross := Crossover(k, d); cross != 0 {
		score = clamp(score+float64(cross)*15, -95, 95)
		conf += 10
	}
	last := len(k) - 1
	return result(score, conf, map[string]float64{"k": k[last], "d": d[last]})
}

func evalStochRSI(candles []models.Candle, p Params) models.IndicatorResult {
	rsiPeriod := p.Get("rsi", 14)
	stochPeriod := p.Get("stoch", 14)
	dPeriod := p.Get("d", 3)
	closes := Closes(candles)
	rsi := RSISeries(closes, rsiPeriod)

	k := make([]float64, len(rsi))
	for i := range rsi {
		lo := i - stochPeriod + 1
		if lo < 0 {
			lo = 0
		}
		hh, ll := maxOver(rsi[lo:i+1]), minOver(rsi[lo:i+1])
		if hh == ll {
			k[i] = 50
			continue
		}
		k[i] = (rsi[i] - ll) / (hh - ll) * 100
	}
	d := SMASeries(k, dPeriod)

	score, conf := oscillatorScore(k, closes, 20, 80)
	if cross := Crossover(k, d); cross != 0 {
		score = clamp(score+float64(cross)*12, -95, 95)
	}
	last := len(k) - 1
	return result(score, conf, map[string]float64{"k": k[last], "d": d[last]})
}

func mfiSeries(candles []models.Candle, period int) []float64 {
	tp := TypicalPrices(candles)
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = 50
	}
	for i := period; i < len(candles); i++ {
		var posFlow, negFlow float64
		for j := i - period + 1; j <= i; j++ {
			flow := tp[j] * candles[j].Volume
			if tp[j] > tp[j-1] {
				posFlow += flow
			} else if tp[j] < tp[j-1] {
				negFlow += flow
			}
		}
		if posFlow+negFlow == 0 {
			out[i] = 50 // zero volume window, neutral by contract
			continue
		}
		out[i] = 100 * posFlow / (posFlow + negFlow)
	}
	return out
}

func evalMFI(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	closes := Closes(candles)
	mfi := mfiSeries(candles, period)
	score, conf := oscillatorScore(mfi, closes, 20, 80)
	return result(score, conf, map[string]float64{"mfi": mfi[len(mfi)-1]})
}

func evalWilliamsR(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	closes := Closes(candles)
	// Williams %R is the stochastic %K shifted to [-100, 0]; reuse the
	// oscillator rule on the shifted scale.
	k := stochasticSeries(candles, period)
	score, conf := oscillatorScore(k, closes, 20, 80)
	last := len(k) - 1
	return result(score, conf, map[string]float64{"williams_r": k[last] - 100})
}

func evalCCI(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	tp := TypicalPrices(candles)
	closes := Closes(candles)

	cci := make([]float64, len(tp))
	for i := period - 1; i < len(tp); i++ {
		window := tp[i-period+1 : i+1]
		mean := Mean(window)
		meanDev := 0.0
		for _, v := range window {
			meanDev += math.Abs(v - mean)
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			cci[i] = 0 // flat window, neutral by contract
			continue
		}
		cci[i] = (tp[i] - mean) / (0.015 * meanDev)
	}

	n := len(cci)
	value, prev := cci[n-1], cci[n-2]
	score := 0.0
	switch {
	case value <= -100 && value > prev:
		score = 60 // turning up from the oversold extreme
	case value <= -100:
		score = -45
	case value >= 100 && value < prev:
		score = -60
	case value >= 100:
		score = 45
	default:
		score = value / 100 * 25
	}
	if div := Divergence(closes, cci, 14); div != 0 {
		score = clamp(score+float64(div)*25, -95, 95)
	}
	conf := 40 + math.Min(math.Abs(value)/4, 40)
	return result(score, conf, map[string]float64{"cci": value})
}

func evalTSI(candles []models.Candle, p Params) models.IndicatorResult {
	long := p.Get("long", 25)
	short := p.Get("short", 13)
	signalPeriod := p.Get("signal", 7)
	closes := Closes(candles)

	n := len(closes)
	momentum := make([]float64, n)
	absMomentum := make([]float64, n)
	for i := 1; i < n; i++ {
		momentum[i] = closes[i] - closes[i-1]
		absMomentum[i] = math.Abs(momentum[i])
	}
	num := EMASeries(EMASeries(momentum, long), short)
	den := EMASeries(EMASeries(absMomentum, long), short)

	tsi := make([]float64, n)
	for i := range tsi {
		if den[i] != 0 {
			tsi[i] = 100 * num[i] / den[i]
		}
	}
	signal := EMASeries(tsi, signalPeriod)

	value := tsi[n-1]
	score := clamp(value*1.8, -60, 60)
	if cross := Crossover(tsi, signal); cross != 0 {
		score = clamp(score+float64(cross)*25, -90, 90)
	}
	conf := 40 + math.Min(math.Abs(value)*1.5, 40)
	return result(score, conf, map[string]float64{"tsi": value, "signal": signal[n-1]})
}

func evalWaveTrend(candles []models.Candle, p Params) models.IndicatorResult {
	channel := p.Get("channel", 10)
	average := p.Get("average", 21)
	tp := TypicalPrices(candles)
	closes := Closes(candles)
	n := len(tp)

	esa := EMASeries(tp, channel)
	dev := make([]float64, n)
	for i := range dev {
		dev[i] = math.Abs(tp[i] - esa[i])
	}
	d := EMASeries(dev, channel)

	ci := make([]float64, n)
	for i := range ci {
		if d[i] != 0 {
			ci[i] = (tp[i] - esa[i]) / (0.015 * d[i])
		}
	}
	wt1 := EMASeries(ci, average)
	wt2 := SMASeries(wt1, 4)

	score, conf := oscillatorScoreUnbounded(wt1, closes, -60, 60)
	if cross := Crossover(wt1, wt2); cross != 0 {
		score = clamp(score+float64(cross)*20, -95, 95)
		conf += 10
	}
	return result(score, conf, map[string]float64{"wt1": wt1[n-1], "wt2": wt2[n-1]})
}

// oscillatorScoreUnbounded handles oscillators on open scales with symmetric
// extreme thresholds.
func oscillatorScoreUnbounded(series, closes []float64, oversold, overbought float64) (score, conf float64) {
	n := len(series)
	value, prev := series[n-1], series[n-2]
	switch {
	case value <= oversold && value > prev:
		score = 60
	case value <= oversold:
		score = -45
	case value >= overbought && value < prev:
		score = -60
	case value >= overbought:
		score = 45
	default:
		score = -value / overbought * 25
		if value > prev {
			score += 10
		} else if value < prev {
			score -= 10
		}
	}
	if div := Divergence(closes, series, 14); div != 0 {
		score = clamp(score+float64(div)*25, -95, 95)
	}
	conf = 40 + math.Min(math.Abs(value-((oversold+overbought)/2))/2, 40)
	return score, conf
}

func evalSchaff(candles []models.Candle, p Params) models.IndicatorResult {
	fast := p.Get("fast", 23)
	slow := p.Get("slow", 50)
	cycle := p.Get("cycle", 10)
	closes := Closes(candles)
	n := len(closes)

	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	macd := make([]float64, n)
	for i := range macd {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	stochOf := func(src []float64) []float64 {
		out := make([]float64, len(src))
		for i := range src {
			lo := i - cycle + 1
			if lo < 0 {
				lo = 0
			}
			hh, ll := maxOver(src[lo:i+1]), minOver(src[lo:i+1])
			if hh == ll {
				out[i] = 50
				continue
			}
			out[i] = (src[i] - ll) / (hh - ll) * 100
		}
		return EMASeries(out, 3)
	}
	stc := stochOf(stochOf(macd))

	value, prev := stc[n-1], stc[n-2]
	score := 0.0
	switch {
	case value <= 25 && value > prev:
		score = 60
	case value >= 75 && value < prev:
		score = -60
	case value > 50:
		score = 20
	case value < 50:
		score = -20
	}
	if value == 50 && prev == 50 {
		score = 0
	}
	conf := 40 + math.Min(math.Abs(value-50), 40)
	return result(score, conf, map[string]float64{"stc": value})
}

func evalROC(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 12)
	closes := Closes(candles)
	n := len(closes)
	if n < period+1 || closes[n-period-1] == 0 {
		return result(0, 0, nil)
	}
	roc := (closes[n-1] - closes[n-period-1]) / closes[n-period-1] * 100

	score := clamp(roc*15, -80, 80)
	conf := 35 + math.Min(math.Abs(roc)*10, 45)
	return result(score, conf, map[string]float64{"roc": roc})
}

func evalMomentum(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 10)
	closes := Closes(candles)
	n := len(closes)
	if n < period+1 || closes[n-period-1] == 0 {
		return result(0, 0, nil)
	}
	mom := (closes[n-1]/closes[n-period-1] - 1) * 100

	score := clamp(mom*18, -75, 75)
	conf := 35 + math.Min(math.Abs(mom)*12, 45)
	return result(score, conf, map[string]float64{"momentum_pct": mom})
}

func evalUltimateOsc(candles []models.Candle, p Params) models.IndicatorResult {
	short := p.Get("short", 7)
	medium := p.Get("medium", 14)
	long := p.Get("long", 28)
	n := len(candles)
	if n < long+1 {
		return result(0, 0, nil)
	}

	bp := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		trueLow := math.Min(candles[i].Low, candles[i-1].Close)
		trueHigh := math.Max(candles[i].High, candles[i-1].Close)
		bp[i] = candles[i].Close - trueLow
		tr[i] = trueHigh - trueLow
	}
	avg := func(period int) float64 {
		var bpSum, trSum float64
		for i := n - period; i < n; i++ {
			bpSum += bp[i]
			trSum += tr[i]
		}
		if trSum == 0 {
			return 0.5 // flat window, neutral midpoint by contract
		}
		return bpSum / trSum
	}
	uo := 100 * (4*avg(short) + 2*avg(medium) + avg(long)) / 7

	closeRising := candles[n-1].Close > candles[n-2].Close
	score := 0.0
	switch {
	case uo <= 30 && closeRising:
		score = 55
	case uo <= 30:
		score = -45
	case uo >= 70 && !closeRising:
		score = -55
	case uo >= 70:
		score = 45
	default:
		score = (50 - uo) * 1.2
	}
	conf := 40 + math.Min(math.Abs(uo-50)*1.2, 40)
	return result(score, conf, map[string]float64{"ultimate_osc": uo})
}
