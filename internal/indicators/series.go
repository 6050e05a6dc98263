package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"index-signal-engine/internal/models"
)

// Series extraction. All series are aligned with the input candles; positions
// that cannot be computed yet hold the earliest computable value so callers can
// index the tail without bounds gymnastics.

// Closes extracts closing prices.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices.
func Lows(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts volumes.
func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// TypicalPrices extracts (H+L+C)/3.
func TypicalPrices(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = (c.High + c.Low + c.Close) / 3
	}
	return out
}

// SMA returns the simple moving average of the last period values, or 0 when
// the series is too short.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// SMASeries returns the rolling SMA aligned with values. Indices before
// period-1 hold the first computable average.
func SMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	first := sum / float64(period)
	for i := 0; i < period-1; i++ {
		out[i] = first
	}
	out[period-1] = first
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		out[i] = sum / float64(period)
	}
	return out
}

// EMASeries returns the rolling EMA aligned with values, seeded with the SMA
// of the first period values.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	k := 2.0 / float64(period+1)
	for i := 0; i < period; i++ {
		out[i] = seed
	}
	ema := seed
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out[i] = ema
	}
	return out
}

// EMA returns the last exponential moving average value.
func EMA(values []float64, period int) float64 {
	s := EMASeries(values, period)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// WilderSeries applies Wilder smoothing (RMA) aligned with values.
func WilderSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	for i := 0; i < period; i++ {
		out[i] = seed
	}
	rma := seed
	for i := period; i < len(values); i++ {
		rma = (rma*float64(period-1) + values[i]) / float64(period)
		out[i] = rma
	}
	return out
}

// RSISeries returns the Wilder RSI aligned with values. Positions before the
// first computable RSI hold 50 (neutral).
func RSISeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = 50
	}
	if period <= 0 || len(values) < period+1 {
		return out
	}
	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if change > 0 {
			up = change
		} else {
			down = -change
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // flat window, neutral by contract
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRanges returns the true range series; index 0 uses high-low only.
func TrueRanges(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr := c.High - c.Low
		if d := math.Abs(c.High - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(c.Low - prevClose); d > tr {
			tr = d
		}
		out[i] = tr
	}
	return out
}

// ATRSeries returns the Wilder-smoothed average true range aligned with
// candles.
func ATRSeries(candles []models.Candle, period int) []float64 {
	return WilderSeries(TrueRanges(candles), period)
}

// ATR returns the last average true range value, or 0 when the window is too
// short. The levels calculator consumes this directly.
func ATR(candles []models.Candle, period int) float64 {
	s := ATRSeries(candles, period)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// ADX computes the last ADX, +DI and -DI values (Wilder, classic smoothing).
func ADX(candles []models.Candle, period int) (adx, plusDI, minusDI float64) {
	if len(candles) < 2*period+1 {
		return 0, 0, 0
	}
	n := len(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}
	atr := WilderSeries(TrueRanges(candles), period)
	plusSm := WilderSeries(plusDM, period)
	minusSm := WilderSeries(minusDM, period)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if atr[i] == 0 {
			continue
		}
		p := 100 * plusSm[i] / atr[i]
		m := 100 * minusSm[i] / atr[i]
		if p+m > 0 {
			dx[i] = 100 * math.Abs(p-m) / (p + m)
		}
	}
	adxSeries := WilderSeries(dx[period:], period)
	adx = adxSeries[len(adxSeries)-1]
	if atr[n-1] > 0 {
		plusDI = 100 * plusSm[n-1] / atr[n-1]
		minusDI = 100 * minusSm[n-1] / atr[n-1]
	}
	return adx, plusDI, minusDI
}

// HighestHigh returns the maximum high over the last period candles.
func HighestHigh(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if period > len(candles) {
		period = len(candles)
	}
	max := candles[len(candles)-period].High
	for _, c := range candles[len(candles)-period:] {
		if c.High > max {
			max = c.High
		}
	}
	return max
}

// LowestLow returns the minimum low over the last period candles.
func LowestLow(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if period > len(candles) {
		period = len(candles)
	}
	min := candles[len(candles)-period].Low
	for _, c := range candles[len(candles)-period:] {
		if c.Low < min {
			min = c.Low
		}
	}
	return min
}

// Mean is the arithmetic mean of values (0 for an empty slice).
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev is the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.PopStdDev(values, nil)
}

// PercentileRank returns the percentage of values ≤ x, in [0,100].
func PercentileRank(values []float64, x float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v <= x {
			count++
		}
	}
	return 100 * float64(count) / float64(len(values))
}

// Slope fits an ordinary least squares line over the last period values and
// returns its slope per bar.
func Slope(values []float64, period int) float64 {
	if period < 2 || len(values) < period {
		return 0
	}
	tail := values[len(values)-period:]
	xs := make([]float64, period)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, tail, nil, false)
	return slope
}

// Crossover reports whether series a crossed above (+1) or below (-1) series b
// on the last bar, or 0 when no cross occurred.
func Crossover(a, b []float64) int {
	n := len(a)
	if n < 2 || len(b) != n {
		return 0
	}
	prevDiff := a[n-2] - b[n-2]
	currDiff := a[n-1] - b[n-1]
	if prevDiff <= 0 && currDiff > 0 {
		return 1
	}
	if prevDiff >= 0 && currDiff < 0 {
		return -1
	}
	return 0
}

// Divergence inspects the last window bars for a simple price/oscillator
// divergence: price making a lower low while the oscillator makes a higher low
// (bullish, +1), or price making a higher high while the oscillator makes a
// lower high (bearish, -1).
func Divergence(closes, osc []float64, window int) int {
	n := len(closes)
	if n < window || len(osc) != n || window < 4 {
		return 0
	}
	half := window / 2
	firstLowPrice, firstLowOsc := minOver(closes[n-window:n-half]), minOver(osc[n-window:n-half])
	lastLowPrice, lastLowOsc := minOver(closes[n-half:]), minOver(osc[n-half:])
	if lastLowPrice < firstLowPrice && lastLowOsc > firstLowOsc {
		return 1
	}
	firstHighPrice, firstHighOsc := maxOver(closes[n-window:n-half]), maxOver(osc[n-window:n-half])
	lastHighPrice, lastHighOsc := maxOver(closes[n-half:]), maxOver(osc[n-half:])
	if lastHighPrice > firstHighPrice && lastHighOsc < firstHighOsc {
		return -1
	}
	return 0
}

func minOver(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxOver(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
