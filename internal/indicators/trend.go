package indicators

import (
	"math"

	"index-signal-engine/internal/models"
)

// Trend followers score from price position relative to the line, slope sign
// and crossovers. ADX amplifies rather than directs.

func trendIndicators() []Evaluator {
	return []Evaluator{
		newIndicator(Spec{
			Name: "SMA_50", Category: models.CategoryTrend,
			MinCandles: 55, DefaultParams: Params{"period": 50}, Importance: 1.0,
		}, evalPriceVsMA(smaLine)),
		newIndicator(Spec{
			Name: "SMA_200", Category: models.CategoryTrend,
			MinCandles: 205, DefaultParams: Params{"period": 200}, Importance: 1.1,
		}, evalPriceVsMA(smaLine)),
		newIndicator(Spec{
			Name: "EMA_CROSS_9_21", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{"fast": 9, "slow": 21}, Importance: 1.0,
		}, evalEMACross),
		newIndicator(Spec{
			Name: "EMA_50", Category: models.CategoryTrend,
			MinCandles: 55, DefaultParams: Params{"period": 50}, Importance: 0.95,
		}, evalPriceVsMA(emaLine)),
		newIndicator(Spec{
			Name: "DEMA_21", Category: models.CategoryTrend,
			MinCandles: 45, DefaultParams: Params{"period": 21},
		}, evalPriceVsMA(demaLine)),
		newIndicator(Spec{
			Name: "TEMA_21", Category: models.CategoryTrend,
			MinCandles: 66, DefaultParams: Params{"period": 21},
		}, evalPriceVsMA(temaLine)),
		newIndicator(Spec{
			Name: "HMA_21", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{"period": 21},
		}, evalPriceVsMA(hmaLine)),
		newIndicator(Spec{
			Name: "MACD", Category: models.CategoryTrend,
			MinCandles: 40, DefaultParams: Params{"fast": 12, "slow": 26, "signal": 9}, Importance: 1.05,
		}, evalMACD),
		newIndicator(Spec{
			Name: "ADX_14", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{"period": 14}, Importance: 1.0,
		}, evalADX),
		newIndicator(Spec{
			Name: "PARABOLIC_SAR", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{},
		}, evalParabolicSAR),
		newIndicator(Spec{
			Name: "SUPERTREND", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{"period": 10, "multiplier": 3}, Importance: 1.0,
		}, evalSupertrend),
		newIndicator(Spec{
			Name: "AROON_25", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{"period": 25},
		}, evalAroon),
		newIndicator(Spec{
			Name: "ICHIMOKU", Category: models.CategoryTrend,
			MinCandles: 60, DefaultParams: Params{"tenkan": 9, "kijun": 26, "senkou": 52}, Importance: 0.95,
		}, evalIchimoku),
		newIndicator(Spec{
			Name: "VORTEX_14", Category: models.CategoryTrend,
			MinCandles: 30, DefaultParams: Params{"period": 14},
		}, evalVortex),
		newIndicator(Spec{
			Name: "TRIX_15", Category: models.CategoryTrend,
			MinCandles: 50, DefaultParams: Params{"period": 15},
		}, evalTRIX),
	}
}

type maLine func(closes []float64, period int) []float64

func smaLine(closes []float64, period int) []float64 { return SMASeries(closes, period) }
func emaLine(closes []float64, period int) []float64 { return EMASeries(closes, period) }

func demaLine(closes []float64, period int) []float64 {
	ema1 := EMASeries(closes, period)
	ema2 := EMASeries(ema1, period)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = 2*ema1[i] - ema2[i]
	}
	return out
}

func temaLine(closes []float64, period int) []float64 {
	ema1 := EMASeries(closes, period)
	ema2 := EMASeries(ema1, period)
	ema3 := EMASeries(ema2, period)
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = 3*ema1[i] - 3*ema2[i] + ema3[i]
	}
	return out
}

// hmaLine is the Hull moving average: WMA(2·WMA(n/2) − WMA(n), sqrt(n)).
func hmaLine(closes []float64, period int) []float64 {
	half := period / 2
	if half < 1 {
		half = 1
	}
	sqrtN := int(math.Round(math.Sqrt(float64(period))))
	if sqrtN < 1 {
		sqrtN = 1
	}
	wmaHalf := wmaSeries(closes, half)
	wmaFull := wmaSeries(closes, period)
	diff := make([]float64, len(closes))
	for i := range diff {
		diff[i] = 2*wmaHalf[i] - wmaFull[i]
	}
	return wmaSeries(diff, sqrtN)
}

func wmaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	denom := float64(period*(period+1)) / 2
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		for j := 0; j < period; j++ {
			sum += values[i-j] * float64(period-j)
		}
		out[i] = sum / denom
	}
	first := out[period-1]
	for i := 0; i < period-1; i++ {
		out[i] = first
	}
	return out
}

// evalPriceVsMA scores from price distance to the line, the line's slope and a
// price/line crossover on the latest bar.
func evalPriceVsMA(line maLine) evalFunc {
	return func(candles []models.Candle, p Params) models.IndicatorResult {
		period := p.Get("period", 50)
		closes := Closes(candles)
		ma := line(closes, period)
		last := ma[len(ma)-1]
		price := closes[len(closes)-1]
		if last == 0 {
			return result(0, 0, nil)
		}

		distance := (price - last) / last * 100
		score := clamp(distance*12, -60, 60)

		// Slope in basis points per bar, so low-lag lines that hug price
		// still register the advance through their steepness.
		slope := Slope(ma, minInt(period, 10))
		slopeBps := slope / last * 10000
		score += clamp(slopeBps*0.7, -35, 35)

		if cross := Crossover(closes, ma); cross != 0 {
			score += float64(cross) * 20
		}

		// Price stacked on the same side as the line's slope is the cleanest
		// statement a moving average can make.
		if (distance > 0 && slope > 0) || (distance < 0 && slope < 0) {
			score = clamp(score*1.15, -95, 95)
		}

		conf := 40 + math.Min(math.Abs(distance)*20+math.Abs(slopeBps)*0.5, 42)
		return result(score, conf, map[string]float64{
			"line": last, "price": price, "distance_pct": distance, "slope": slope,
		})
	}
}

func evalEMACross(candles []models.Candle, p Params) models.IndicatorResult {
	fast := p.Get("fast", 9)
	slow := p.Get("slow", 21)
	closes := Closes(candles)
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	last := len(closes) - 1
	if slowEMA[last] == 0 {
		return result(0, 0, nil)
	}

	spread := (fastEMA[last] - slowEMA[last]) / slowEMA[last] * 100
	score := clamp(spread*25, -75, 75)
	cross := Crossover(fastEMA, slowEMA)
	if cross != 0 {
		score += float64(cross) * 35
	}

	conf := 45 + math.Min(math.Abs(spread)*25, 35)
	if cross != 0 {
		conf += 15
	}
	return result(score, conf, map[string]float64{
		"fast": fastEMA[last], "slow": slowEMA[last], "spread_pct": spread, "cross": float64(cross),
	})
}

func evalMACD(candles []models.Candle, p Params) models.IndicatorResult {
	fast := p.Get("fast", 12)
	slow := p.Get("slow", 26)
	signalPeriod := p.Get("signal", 9)
	closes := Closes(candles)
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	macd := make([]float64, len(closes))
	for i := range macd {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signal := EMASeries(macd, signalPeriod)
	last := len(closes) - 1
	hist := macd[last] - signal[last]
	price := closes[last]
	if price == 0 {
		return result(0, 0, nil)
	}

	// Histogram magnitude normalized by price keeps index-scale symbols
	// comparable. The zero-line term scales with how far the MACD line sits
	// from zero: in a steady trend the histogram decays to nothing while the
	// line itself stays well clear of the axis.
	score := clamp(hist/price*100*40, -50, 50)
	score += clamp(macd[last]/price*100*12, -30, 30)
	if cross := Crossover(macd, signal); cross != 0 {
		score += float64(cross) * 30
	}

	prevHist := macd[last-1] - signal[last-1]
	conf := 45.0
	if (hist > 0 && hist > prevHist) || (hist < 0 && hist < prevHist) {
		conf += 20 // histogram expanding in its own direction
	}
	conf += math.Min(math.Abs(score)/3, 25)
	return result(score, conf, map[string]float64{
		"macd": macd[last], "signal": signal[last], "histogram": hist,
	})
}

// evalADX directs weakly from DI dominance and amplifies with trend strength;
// a high ADX with balanced DI lines stays neutral.
func evalADX(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	adx, plusDI, minusDI := ADX(candles, period)
	if plusDI+minusDI == 0 {
		return result(0, 0, map[string]float64{"adx": adx})
	}

	diBias := (plusDI - minusDI) / (plusDI + minusDI) // [-1, 1]
	amplifier := 1.0
	switch {
	case adx >= 40:
		amplifier = 1.6
	case adx >= 30:
		amplifier = 1.4
	case adx >= 20:
		amplifier = 1.1
	default:
		amplifier = 0.6 // weak trend, discount the DI bias
	}
	score := clamp(diBias*55*amplifier, -95, 95)

	conf := clamp(adx*2, 0, 85)
	return result(score, conf, map[string]float64{
		"adx": adx, "plus_di": plusDI, "minus_di": minusDI,
	})
}

func evalParabolicSAR(candles []models.Candle, p Params) models.IndicatorResult {
	const accelStep, accelMax = 0.02, 0.2
	sar, uptrend, flipped := parabolicSAR(candles, accelStep, accelMax)
	price := candles[len(candles)-1].Close
	if price == 0 {
		return result(0, 0, nil)
	}

	distance := math.Abs(price-sar) / price * 100
	if distance == 0 {
		return result(0, 0, map[string]any{"sar": sar})
	}
	score := clamp(distance*20+25, 25, 70)
	if !uptrend {
		score = -score
	}
	if flipped {
		// Fresh flip is the strongest SAR statement.
		score = clamp(score*1.3, -90, 90)
	}

	conf := 40 + math.Min(distance*25, 40)
	return result(score, conf, map[string]any{
		"sar": sar, "uptrend": uptrend, "flipped": flipped,
	})
}

func parabolicSAR(candles []models.Candle, step, max float64) (sar float64, uptrend, flipped bool) {
	uptrend = candles[1].Close > candles[0].Close
	af := step
	var ep float64
	if uptrend {
		sar = candles[0].Low
		ep = candles[0].High
	} else {
		sar = candles[0].High
		ep = candles[0].Low
	}

	for i := 1; i < len(candles); i++ {
		flipped = false
		sar = sar + af*(ep-sar)
		c := candles[i]
		if uptrend {
			if c.Low < sar {
				uptrend = false
				flipped = true
				sar = ep
				ep = c.Low
				af = step
			} else {
				if c.High > ep {
					ep = c.High
					af = math.Min(af+step, max)
				}
			}
		} else {
			if c.High > sar {
				uptrend = true
				flipped = true
				sar = ep
				ep = c.High
				af = step
			} else {
				if c.Low < ep {
					ep = c.Low
					af = math.Min(af+step, max)
				}
			}
		}
	}
	return sar, uptrend, flipped
}

func evalSupertrend(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 10)
	multiplier := float64(p.Get("multiplier", 3))
	atr := ATRSeries(candles, period)
	n := len(candles)

	upper := make([]float64, n)
	lower := make([]float64, n)
	for i, c := range candles {
		mid := (c.High + c.Low) / 2
		upper[i] = mid + multiplier*atr[i]
		lower[i] = mid - multiplier*atr[i]
	}
	// Band ratchet: in an uptrend the lower band only rises, and vice versa.
	uptrend := true
	line := lower[0]
	flipped := false
	for i := 1; i < n; i++ {
		flipped = false
		if uptrend {
			if lower[i] > line {
				line = lower[i]
			}
			if candles[i].Close < line {
				uptrend = false
				flipped = true
				line = upper[i]
			}
		} else {
			if upper[i] < line {
				line = upper[i]
			}
			if candles[i].Close > line {
				uptrend = true
				flipped = true
				line = lower[i]
			}
		}
	}

	price := candles[n-1].Close
	if price == 0 || atr[n-1] == 0 {
		return result(0, 0, nil)
	}
	distance := math.Abs(price-line) / price * 100
	score := clamp(30+distance*15, 30, 75)
	if !uptrend {
		score = -score
	}
	if flipped {
		score = clamp(score*1.25, -90, 90)
	}
	conf := 50 + math.Min(distance*20, 35)
	return result(score, conf, map[string]any{
		"line": line, "uptrend": uptrend, "flipped": flipped,
	})
}

func evalAroon(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 25)
	window := candles[len(candles)-period:]

	highIdx, lowIdx := 0, 0
	for i, c := range window {
		if c.High >= window[highIdx].High {
			highIdx = i
		}
		if c.Low <= window[lowIdx].Low {
			lowIdx = i
		}
	}
	up := float64(highIdx+1) / float64(period) * 100
	down := float64(lowIdx+1) / float64(period) * 100
	osc := up - down // [-100, 100]

	score := clamp(osc*0.8, -80, 80)
	conf := 35 + math.Abs(osc)/2
	return result(score, conf, map[string]float64{"aroon_up": up, "aroon_down": down, "oscillator": osc})
}

func evalIchimoku(candles []models.Candle, p Params) models.IndicatorResult {
	tenkanP := p.Get("tenkan", 9)
	kijunP := p.Get("kijun", 26)
	senkouP := p.Get("senkou", 52)

	mid := func(period int) float64 {
		return (HighestHigh(candles, period) + LowestLow(candles, period)) / 2
	}
	tenkan := mid(tenkanP)
	kijun := mid(kijunP)
	spanA := (tenkan + kijun) / 2
	spanB := mid(senkouP)
	price := candles[len(candles)-1].Close
	if price == 0 {
		return result(0, 0, nil)
	}

	cloudTop := math.Max(spanA, spanB)
	cloudBottom := math.Min(spanA, spanB)

	score := 0.0
	switch {
	case price > cloudTop:
		score += 35
	case price < cloudBottom:
		score -= 35
	}
	if tenkan > kijun {
		score += 25
	} else if tenkan < kijun {
		score -= 25
	}
	if spanA > spanB {
		score += 15
	} else if spanA < spanB {
		score -= 15
	}

	conf := 40.0
	if cloudTop > cloudBottom {
		outside := math.Max(price-cloudTop, cloudBottom-price)
		if outside > 0 {
			conf += math.Min(outside/price*100*30, 40)
		}
	}
	return result(score, conf, map[string]float64{
		"tenkan": tenkan, "kijun": kijun, "span_a": spanA, "span_b": spanB,
	})
}

func evalVortex(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	n := len(candles)
	if n < period+1 {
		return result(0, 0, nil)
	}

	var vmPlus, vmMinus, trSum float64
	trs := TrueRanges(candles)
	for i := n - period; i < n; i++ {
		vmPlus += math.Abs(candles[i].High - candles[i-1].Low)
		vmMinus += math.Abs(candles[i].Low - candles[i-1].High)
		trSum += trs[i]
	}
	if trSum == 0 {
		return result(0, 0, nil)
	}
	viPlus := vmPlus / trSum
	viMinus := vmMinus / trSum

	spread := viPlus - viMinus
	score := clamp(spread*200, -75, 75)
	if viPlus+viMinus > 0 {
		// Agreement between the lines dampens conviction.
		conf := 35 + math.Min(math.Abs(spread)/(viPlus+viMinus)*250, 50)
		return result(score, conf, map[string]float64{"vi_plus": viPlus, "vi_minus": viMinus})
	}
	return result(score, 35, map[string]float64{"vi_plus": viPlus, "vi_minus": viMinus})
}

func evalTRIX(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 15)
	closes := Closes(candles)
	ema3 := EMASeries(EMASeries(EMASeries(closes, period), period), period)
	last := len(ema3) - 1
	if ema3[last-1] == 0 {
		return result(0, 0, nil)
	}

	trix := (ema3[last] - ema3[last-1]) / ema3[last-1] * 10000 // basis points per bar
	score := clamp(trix*8, -70, 70)
	prevTrix := 0.0
	if last >= 2 && ema3[last-2] != 0 {
		prevTrix = (ema3[last-1] - ema3[last-2]) / ema3[last-2] * 10000
	}
	if (trix > 0 && trix > prevTrix) || (trix < 0 && trix < prevTrix) {
		score = clamp(score*1.2, -85, 85)
	}
	conf := 35 + math.Min(math.Abs(trix)*6, 45)
	return result(score, conf, map[string]float64{"trix": trix})
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
