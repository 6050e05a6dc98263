package indicators

import (
	"math"

	"index-signal-engine/internal/models"
)

// Volume indicators score from zero-line or signal-line crossovers, divergence
// against price, and position relative to their own moving average. Zero
// volume yields the documented neutral values, never NaN.

func volumeIndicators() []Evaluator {
	return []Evaluator{
		newIndicator(Spec{
			Name: "OBV", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"ma": 20}, Importance: 1.0,
		}, evalOBV),
		newIndicator(Spec{
			Name: "KLINGER", Category: models.CategoryVolume,
			MinCandles: 60, DefaultParams: Params{"fast": 34, "slow": 55, "signal": 13},
		}, evalKlinger),
		newIndicator(Spec{
			Name: "PVT", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"ma": 20},
		}, evalPVT),
		newIndicator(Spec{
			Name: "NVI", Category: models.CategoryVolume,
			MinCandles: 40, DefaultParams: Params{"ma": 20},
		}, evalNVI),
		newIndicator(Spec{
			Name: "PVI", Category: models.CategoryVolume,
			MinCandles: 40, DefaultParams: Params{"ma": 20},
		}, evalPVI),
		newIndicator(Spec{
			Name: "CMF_20", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"period": 20}, Importance: 0.9,
		}, evalCMF),
		newIndicator(Spec{
			Name: "AD_LINE", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"ma": 20},
		}, evalADLine),
		newIndicator(Spec{
			Name: "VWAP", Category: models.CategoryVolume,
			MinCandles: 20, DefaultParams: Params{}, Importance: 0.95,
		}, evalVWAP),
		newIndicator(Spec{
			Name: "CHAIKIN_OSC", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"fast": 3, "slow": 10},
		}, evalChaikinOsc),
		newIndicator(Spec{
			Name: "FORCE_INDEX", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"period": 13},
		}, evalForceIndex),
		newIndicator(Spec{
			Name: "EASE_OF_MOVEMENT", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"period": 14},
		}, evalEaseOfMovement),
		newIndicator(Spec{
			Name: "VOLUME_OSC", Category: models.CategoryVolume,
			MinCandles: 30, DefaultParams: Params{"fast": 5, "slow": 20},
		}, evalVolumeOsc),
	}
}

func obvSeries(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1] // unchanged close keeps the previous value
		}
	}
	return out
}

// cumulativeVsMA is the shared rule for cumulative volume lines: position and
// crossover against the line's own moving average, plus price divergence.
func cumulativeVsMA(line, closes []float64, maPeriod int) (score, conf float64, raw map[string]float64) {
	ma := SMASeries(line, maPeriod)
	n := len(line)
	value, avg := line[n-1], ma[n-1]

	scale := StdDev(line[maxInt(0, n-maPeriod):])
	if scale > 0 {
		score = clamp((value-avg)/scale*30, -55, 55)
	}
	if cross := Crossover(line, ma); cross != 0 {
		score = clamp(score+float64(cross)*25, -90, 90)
	}
	if div := Divergence(closes, line, 14); div != 0 {
		score = clamp(score+float64(div)*25, -95, 95)
	}
	conf = 40 + math.Min(math.Abs(score)/2, 35)
	return score, conf, map[string]float64{"value": value, "ma": avg}
}

func evalOBV(candles []models.Candle, p Params) models.IndicatorResult {
	maPeriod := p.Get("ma", 20)
	obv := obvSeries(candles)
	score, conf, raw := cumulativeVsMA(obv, Closes(candles), maPeriod)
	return result(score, conf, raw)
}

func evalKlinger(candles []models.Candle, p Params) models.IndicatorResult {
	fast := p.Get("fast", 34)
	slow := p.Get("slow", 55)
	signalPeriod := p.Get("signal", 13)
	n := len(candles)

	// Volume force: signed volume weighted by intrabar positioning.
	vf := make([]float64, n)
	for i := 1; i < n; i++ {
		c := candles[i]
		trendUp := c.High+c.Low+c.Close > candles[i-1].High+candles[i-1].Low+candles[i-1].Close
		rng := c.High - c.Low
		if rng == 0 {
			continue // flat bar contributes no force
		}
		dm := rng
		force := c.Volume * dm
		if !trendUp {
			force = -force
		}
		vf[i] = force
	}
	fastEMA := EMASeries(vf, fast)
	slowEMA := EMASeries(vf, slow)
	kvo := make([]float64, n)
	for i := range kvo {
		kvo[i] = fastEMA[i] - slowEMA[i]
	}
	signal := EMASeries(kvo, signalPeriod)

	value := kvo[n-1]
	scale := StdDev(kvo[maxInt(0, n-slow):])
	score := 0.0
	if scale > 0 {
		score = clamp(value/scale*25, -50, 50)
	}
	if cross := Crossover(kvo, signal); cross != 0 {
		score = clamp(score+float64(cross)*30, -90, 90)
	}
	conf := 40 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"kvo": value, "signal": signal[n-1]})
}

func evalPVT(candles []models.Candle, p Params) models.IndicatorResult {
	maPeriod := p.Get("ma", 20)
	n := len(candles)
	pvt := make([]float64, n)
	for i := 1; i < n; i++ {
		if candles[i-1].Close == 0 {
			pvt[i] = pvt[i-1]
			continue
		}
		change := (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
		pvt[i] = pvt[i-1] + change*candles[i].Volume
	}
	score, conf, raw := cumulativeVsMA(pvt, Closes(candles), maPeriod)
	return result(score, conf, raw)
}

func volumeIndexSeries(candles []models.Candle, onVolumeUp bool) []float64 {
	n := len(candles)
	out := make([]float64, n)
	out[0] = 1000
	for i := 1; i < n; i++ {
		out[i] = out[i-1]
		volumeUp := candles[i].Volume > candles[i-1].Volume
		if volumeUp == onVolumeUp && candles[i-1].Close != 0 {
			change := (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
			out[i] = out[i-1] * (1 + change)
		}
	}
	return out
}

func evalNVI(candles []models.Candle, p Params) models.IndicatorResult {
	maPeriod := p.Get("ma", 20)
	nvi := volumeIndexSeries(candles, false)
	score, conf, raw := cumulativeVsMA(nvi, Closes(candles), maPeriod)
	return result(score, conf, raw)
}

func evalPVI(candles []models.Candle, p Params) models.IndicatorResult {
	maPeriod := p.Get("ma", 20)
	pvi := volumeIndexSeries(candles, true)
	score, conf, raw := cumulativeVsMA(pvi, Closes(candles), maPeriod)
	return result(score, conf, raw)
}

func evalCMF(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	n := len(candles)

	var mfvSum, volSum float64
	for _, c := range candles[n-period:] {
		rng := c.High - c.Low
		if rng == 0 || c.Volume == 0 {
			continue
		}
		multiplier := ((c.Close - c.Low) - (c.High - c.Close)) / rng
		mfvSum += multiplier * c.Volume
		volSum += c.Volume
	}
	if volSum == 0 {
		return result(0, 0, map[string]float64{"cmf": 0})
	}
	cmf := mfvSum / volSum // [-1, 1]

	score := clamp(cmf*250, -75, 75)
	conf := 40 + math.Min(math.Abs(cmf)*150, 40)
	return result(score, conf, map[string]float64{"cmf": cmf})
}

func adSeries(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		prev := 0.0
		if i > 0 {
			prev = out[i-1]
		}
		rng := c.High - c.Low
		if rng == 0 || c.Volume == 0 {
			out[i] = prev
			continue
		}
		multiplier := ((c.Close - c.Low) - (c.High - c.Close)) / rng
		out[i] = prev + multiplier*c.Volume
	}
	return out
}

func evalADLine(candles []models.Candle, p Params) models.IndicatorResult {
	maPeriod := p.Get("ma", 20)
	ad := adSeries(candles)
	score, conf, raw := cumulativeVsMA(ad, Closes(candles), maPeriod)
	return result(score, conf, raw)
}

func evalVWAP(candles []models.Candle, p Params) models.IndicatorResult {
	var pvSum, volSum float64
	for _, c := range candles {
		tp := (c.High + c.Low + c.Close) / 3
		pvSum += tp * c.Volume
		volSum += c.Volume
	}
	price := candles[len(candles)-1].Close
	if volSum == 0 || price == 0 {
		return result(0, 0, map[string]float64{"vwap": 0})
	}
	vwap := pvSum / volSum

	distance := (price - vwap) / vwap * 100
	score := clamp(distance*20, -65, 65)
	conf := 40 + math.Min(math.Abs(distance)*25, 40)
	return result(score, conf, map[string]float64{"vwap": vwap, "distance_pct": distance})
}

func evalChaikinOsc(candles []models.Candle, p Params) models.IndicatorResult {
	fast := p.Get("fast", 3)
	slow := p.Get("slow", 10)
	ad := adSeries(candles)
	fastEMA := EMASeries(ad, fast)
	slowEMA := EMASeries(ad, slow)
	n := len(ad)

	osc := make([]float64, n)
	for i := range osc {
		osc[i] = fastEMA[i] - slowEMA[i]
	}
	value := osc[n-1]
	scale := StdDev(osc[maxInt(0, n-slow*2):])
	score := 0.0
	if scale > 0 {
		score = clamp(value/scale*30, -55, 55)
	}
	if cross := Crossover(osc, make([]float64, n)); cross != 0 { // zero-line cross
		score = clamp(score+float64(cross)*25, -85, 85)
	}
	conf := 40 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"chaikin_osc": value})
}

func evalForceIndex(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 13)
	n := len(candles)
	fi := make([]float64, n)
	for i := 1; i < n; i++ {
		fi[i] = (candles[i].Close - candles[i-1].Close) * candles[i].Volume
	}
	smoothed := EMASeries(fi, period)

	value := smoothed[n-1]
	scale := StdDev(smoothed[maxInt(0, n-period*2):])
	score := 0.0
	if scale > 0 {
		score = clamp(value/scale*35, -65, 65)
	} else if value > 0 {
		score = 20
	} else if value < 0 {
		score = -20
	}
	conf := 40 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"force_index": value})
}

func evalEaseOfMovement(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 14)
	n := len(candles)
	emv := make([]float64, n)
	for i := 1; i < n; i++ {
		c := candles[i]
		prev := candles[i-1]
		midMove := (c.High+c.Low)/2 - (prev.High+prev.Low)/2
		rng := c.High - c.Low
		if c.Volume == 0 || rng == 0 {
			continue // neutral contribution by contract
		}
		boxRatio := c.Volume / 100000000 / rng
		if boxRatio != 0 {
			emv[i] = midMove / boxRatio
		}
	}
	smoothed := SMASeries(emv, period)

	value := smoothed[n-1]
	scale := StdDev(smoothed[maxInt(0, n-period*2):])
	score := 0.0
	if scale > 0 {
		score = clamp(value/scale*30, -60, 60)
	}
	conf := 35 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"emv": value})
}

// evalVolumeOsc has no direction of its own; expanding volume amplifies the
// short-term price direction, contracting volume mutes it.
func evalVolumeOsc(candles []models.Candle, p Params) models.IndicatorResult {
	fast := p.Get("fast", 5)
	slow := p.Get("slow", 20)
	volumes := Volumes(candles)
	closes := Closes(candles)

	fastMA := SMA(volumes, fast)
	slowMA := SMA(volumes, slow)
	if slowMA == 0 {
		return result(0, 0, map[string]float64{"volume_osc": 0})
	}
	osc := (fastMA - slowMA) / slowMA * 100

	priceSlope := Slope(closes, fast)
	direction := 0.0
	if priceSlope > 0 {
		direction = 1
	} else if priceSlope < 0 {
		direction = -1
	}
	score := clamp(direction*math.Max(osc, 0)*1.5, -55, 55)
	conf := 35 + math.Min(math.Abs(osc), 40)
	return result(score, conf, map[string]float64{"volume_osc": osc})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
