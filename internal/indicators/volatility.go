package indicators

import (
	"math"

	"index-signal-engine/internal/models"
)

// Volatility indicators fall in two groups. Band systems (Bollinger, Keltner,
// Donchian) are directional: price location inside or beyond the bands drives
// the score. Pure dispersion measures (ATR, NATR, Ulcer, historical vol,
// standard deviation, Mass Index) carry no direction of their own, so the
// score is the short-term price direction scaled by how stretched or
// compressed volatility currently is.

func volatilityIndicators() []Evaluator {
	return []Evaluator{
		newIndicator(Spec{
			Name: "ATR_14", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 14, "lookback": 50}, Importance: 0.9,
		}, evalATRIndicator),
		newIndicator(Spec{
			Name: "NATR_14", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 14, "lookback": 50},
		}, evalNATR),
		newIndicator(Spec{
			Name: "BOLLINGER", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 20, "mult": 2}, Importance: 1.0,
		}, evalBollinger),
		newIndicator(Spec{
			Name: "BB_PERCENT_B", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 20, "mult": 2},
		}, evalPercentB),
		newIndicator(Spec{
			Name: "BB_BANDWIDTH", Category: models.CategoryVolatility,
			MinCandles: 50, DefaultParams: Params{"period": 20, "mult": 2, "lookback": 30},
		}, evalBandwidth),
		newIndicator(Spec{
			Name: "KELTNER", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 20, "atr_period": 10, "mult": 2},
		}, evalKeltner),
		newIndicator(Spec{
			Name: "DONCHIAN", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 20},
		}, evalDonchian),
		newIndicator(Spec{
			Name: "ULCER_INDEX", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 14},
		}, evalUlcer),
		newIndicator(Spec{
			Name: "HIST_VOLATILITY", Category: models.CategoryVolatility,
			MinCandles: 40, DefaultParams: Params{"period": 20, "lookback": 50},
		}, evalHistVolatility),
		newIndicator(Spec{
			Name: "STDDEV_20", Category: models.CategoryVolatility,
			MinCandles: 30, DefaultParams: Params{"period": 20, "lookback": 50},
		}, evalStdDevIndicator),
		newIndicator(Spec{
			Name: "MASS_INDEX", Category: models.CategoryVolatility,
			MinCandles: 60, DefaultParams: Params{"period": 25},
		}, evalMassIndex),
	}
}

// dispersionScore turns a non-directional volatility reading into a signed
// score: the sign comes from the recent price slope, the magnitude from where
// the reading sits in its own recent history. Expanding volatility in the
// direction of the move strengthens the signal, compressed volatility mutes
// it toward neutral.
func dispersionScore(closes []float64, value float64, history []float64) (float64, float64) {
	slope := Slope(closes, 10)
	direction := 0.0
	if slope > 0 {
		direction = 1
	} else if slope < 0 {
		direction = -1
	}
	rank := PercentileRank(history, value) // [0, 100]
	score := clamp(direction*(rank/100)*40, -40, 40)
	conf := 30 + math.Min(rank/3, 30)
	return score, conf
}

func evalATRIndicator(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	lookback := p.Get("lookback", 50)
	atrSeries := ATRSeries(candles, period)
	n := len(atrSeries)
	value := atrSeries[n-1]
	history := atrSeries[maxInt(0, n-lookback):]

	score, conf := dispersionScore(Closes(candles), value, history)
	return result(score, conf, map[string]float64{"atr": value})
}

func evalNATR(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	lookback := p.Get("lookback", 50)
	price := candles[len(candles)-1].Close
	if price == 0 {
		return result(0, 0, map[string]float64{"natr": 0})
	}
	atrSeries := ATRSeries(candles, period)
	n := len(atrSeries)
	natr := atrSeries[n-1] / price * 100

	closes := Closes(candles)
	history := make([]float64, 0, lookback)
	for i := maxInt(0, n-lookback); i < n; i++ {
		if closes[i] != 0 {
			history = append(history, atrSeries[i]/closes[i]*100)
		}
	}
	score, conf := dispersionScore(closes, natr, history)
	return result(score, conf, map[string]float64{"natr": natr})
}

func bollingerBands(closes []float64, period int, mult float64) (middle, upper, lower float64) {
	tail := closes[len(closes)-period:]
	middle = Mean(tail)
	sd := StdDev(tail)
	return middle, middle + mult*sd, middle - mult*sd
}

func evalBollinger(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	mult := float64(p.Get("mult", 2))
	closes := Closes(candles)
	middle, upper, lower := bollingerBands(closes, period, mult)
	price := closes[len(closes)-1]

	width := upper - lower
	if width == 0 {
		return result(0, 0, map[string]float64{"middle": middle, "upper": upper, "lower": lower})
	}
	// Position in [-1, 1]: -1 at the lower band, +1 at the upper band.
	position := (price - middle) / (width / 2)

	var score float64
	switch {
	case position > 1:
		// Close beyond the upper band: breakout if the band is expanding,
		// otherwise overextension.
		if bandExpanding(closes, period, mult) {
			score = 55
		} else {
			score = -35
		}
	case position < -1:
		if bandExpanding(closes, period, mult) {
			score = -55
		} else {
			score = 35
		}
	default:
		score = clamp(position*35, -35, 35)
	}
	conf := 40 + math.Min(math.Abs(position)*25, 40)
	return result(score, conf, map[string]float64{
		"middle": middle, "upper": upper, "lower": lower, "position": position,
	})
}

func bandExpanding(closes []float64, period int, mult float64) bool {
	if len(closes) < period+5 {
		return false
	}
	_, upNow, loNow := bollingerBands(closes, period, mult)
	_, upPrev, loPrev := bollingerBands(closes[:len(closes)-5], period, mult)
	return upNow-loNow > upPrev-loPrev
}

func evalPercentB(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	mult := float64(p.Get("mult", 2))
	closes := Closes(candles)
	_, upper, lower := bollingerBands(closes, period, mult)
	price := closes[len(closes)-1]

	width := upper - lower
	if width == 0 {
		return result(0, 0, map[string]float64{"percent_b": 0.5})
	}
	pb := (price - lower) / width // 0 at lower band, 1 at upper band
	rising := len(closes) > 1 && price > closes[len(closes)-2]

	var score float64
	switch {
	case pb < 0.2 && rising:
		score = 45 + (0.2-pb)*75 // rejected off the lower band
	case pb < 0.2:
		score = -45 // riding the lower band down
	case pb > 0.8 && !rising:
		score = -45 - (pb-0.8)*75
	case pb > 0.8:
		score = 45 // walking the upper band
	default:
		score = (pb - 0.5) * 40
	}
	score = clamp(score, -70, 70)
	conf := 40 + math.Min(math.Abs(pb-0.5)*80, 40)
	return result(score, conf, map[string]float64{"percent_b": pb})
}

func evalBandwidth(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	mult := float64(p.Get("mult", 2))
	lookback := p.Get("lookback", 30)
	closes := Closes(candles)

	history := make([]float64, 0, lookback)
	for i := len(closes) - lookback; i <= len(closes); i++ {
		if i < period {
			continue
		}
		middle, upper, lower := bollingerBands(closes[:i], period, mult)
		if middle != 0 {
			history = append(history, (upper-lower)/middle*100)
		}
	}
	if len(history) == 0 {
		return result(0, 0, map[string]float64{"bandwidth": 0})
	}
	bandwidth := history[len(history)-1]
	score, conf := dispersionScore(closes, bandwidth, history)

	// A squeeze (bandwidth in its bottom decile) precedes expansion; mute the
	// directional read since the break can go either way.
	if PercentileRank(history, bandwidth) < 10 {
		score = 0
		conf = 30
	}
	return result(score, conf, map[string]float64{"bandwidth": bandwidth})
}

func evalKeltner(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	atrPeriod := p.Get("atr_period", 10)
	mult := float64(p.Get("mult", 2))
	closes := Closes(candles)

	middle := EMA(closes, period)
	atr := ATR(candles, atrPeriod)
	upper := middle + mult*atr
	lower := middle - mult*atr
	price := closes[len(closes)-1]

	width := upper - lower
	if width == 0 {
		return result(0, 0, map[string]float64{"middle": middle})
	}
	position := (price - middle) / (width / 2)

	var score float64
	switch {
	case position > 1:
		score = 50 // close above the channel signals trend continuation
	case position < -1:
		score = -50
	default:
		score = clamp(position*30, -30, 30)
	}
	conf := 40 + math.Min(math.Abs(position)*25, 40)
	return result(score, conf, map[string]float64{
		"middle": middle, "upper": upper, "lower": lower, "position": position,
	})
}

func evalDonchian(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	window := candles[len(candles)-1-period : len(candles)-1]
	upper := HighestHigh(window, period)
	lower := LowestLow(window, period)
	price := candles[len(candles)-1].Close

	width := upper - lower
	if width == 0 {
		return result(0, 0, map[string]float64{"upper": upper, "lower": lower})
	}
	var score float64
	switch {
	case price > upper:
		score = 60 // breakout above the prior channel high
	case price < lower:
		score = -60
	default:
		position := (price - (upper+lower)/2) / (width / 2)
		score = clamp(position*25, -25, 25)
	}
	conf := 40 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"upper": upper, "lower": lower})
}

func evalUlcer(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	closes := Closes(candles)
	tail := closes[len(closes)-period:]

	var sumSq float64
	peak := tail[0]
	for _, c := range tail {
		if c > peak {
			peak = c
		}
		if peak != 0 {
			dd := (c - peak) / peak * 100
			sumSq += dd * dd
		}
	}
	ulcer := math.Sqrt(sumSq / float64(period))

	// High ulcer readings mean deep recent drawdowns; bias bearish in
	// proportion, flat tape scores neutral.
	score := clamp(-ulcer*12, -50, 0)
	conf := 35 + math.Min(ulcer*10, 35)
	if ulcer == 0 {
		conf = 30
	}
	return result(score, conf, map[string]float64{"ulcer": ulcer})
}

func evalHistVolatility(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	lookback := p.Get("lookback", 50)
	closes := Closes(candles)
	n := len(closes)

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] != 0 && closes[i] != 0 {
			returns = append(returns, math.Log(closes[i]/closes[i-1]))
		}
	}
	if len(returns) < period {
		return result(0, 0, map[string]float64{"hist_vol": 0})
	}
	// Annualized from daily-equivalent bars.
	hv := StdDev(returns[len(returns)-period:]) * math.Sqrt(252) * 100

	history := make([]float64, 0, lookback)
	for i := period; i <= len(returns); i++ {
		if i < len(returns)-lookback {
			continue
		}
		history = append(history, StdDev(returns[i-period:i])*math.Sqrt(252)*100)
	}
	score, conf := dispersionScore(closes, hv, history)
	return result(score, conf, map[string]float64{"hist_vol": hv})
}

func evalStdDevIndicator(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	lookback := p.Get("lookback", 50)
	closes := Closes(candles)
	n := len(closes)

	sd := StdDev(closes[n-period:])
	history := make([]float64, 0, lookback)
	for i := period; i <= n; i++ {
		if i < n-lookback {
			continue
		}
		history = append(history, StdDev(closes[i-period:i]))
	}
	score, conf := dispersionScore(closes, sd, history)
	return result(score, conf, map[string]float64{"stddev": sd})
}

func evalMassIndex(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 25)
	n := len(candles)

	ranges := make([]float64, n)
	for i, c := range candles {
		ranges[i] = c.High - c.Low
	}
	ema1 := EMASeries(ranges, 9)
	ema2 := EMASeries(ema1, 9)

	ratio := make([]float64, n)
	for i := range ratio {
		if ema2[i] != 0 {
			ratio[i] = ema1[i] / ema2[i]
		}
	}
	var mass float64
	for i := n - period; i < n; i++ {
		mass += ratio[i]
	}
	if mass == 0 {
		return result(0, 0, map[string]float64{"mass_index": 0})
	}

	// The reversal bulge: mass above 27 then falling back through 26.5 warns
	// of a trend reversal against the current direction.
	slope := Slope(Closes(candles), 10)
	var score float64
	if mass > 26.5 {
		if slope > 0 {
			score = clamp(-(mass-26.5)*20, -50, 0)
		} else if slope < 0 {
			score = clamp((mass-26.5)*20, 0, 50)
		}
	}
	conf := 35 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"mass_index": mass})
}
