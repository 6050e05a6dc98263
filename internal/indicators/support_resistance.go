package indicators

import (
	"math"
	"sort"

	"index-signal-engine/internal/models"
)

// Support/resistance evaluators read market structure: pivot levels, swing
// highs and lows, unfilled gaps, and structural breaks. Scores favour longs
// near demand and shorts near supply, and flip on confirmed breaks.

func supportResistanceIndicators() []Evaluator {
	return []Evaluator{
		newIndicator(Spec{
			Name: "PIVOT_POINTS", Category: models.CategorySupportResistance,
			MinCandles: 30, DefaultParams: Params{"period": 20}, Importance: 0.95,
		}, evalPivotPoints),
		newIndicator(Spec{
			Name: "SR_ZONES", Category: models.CategorySupportResistance,
			MinCandles: 50, DefaultParams: Params{"swing": 3, "tolerance_bp": 30}, Importance: 1.0,
		}, evalSRZones),
		newIndicator(Spec{
			Name: "DEMAND_SUPPLY_ZONES", Category: models.CategorySupportResistance,
			MinCandles: 50, DefaultParams: Params{"impulse_pct": 1.0},
		}, evalDemandSupplyZones),
		newIndicator(Spec{
			Name: "FAIR_VALUE_GAP", Category: models.CategorySupportResistance,
			MinCandles: 30, DefaultParams: Params{"min_gap_bp": 10},
		}, evalFairValueGap),
		newIndicator(Spec{
			Name: "CHOCH", Category: models.CategorySupportResistance,
			MinCandles: 50, DefaultParams: Params{"swing": 3},
		}, evalCHoCH),
		newIndicator(Spec{
			Name: "BOS", Category: models.CategorySupportResistance,
			MinCandles: 50, DefaultParams: Params{"swing": 3},
		}, evalBOS),
		newIndicator(Spec{
			Name: "PREV_RANGE_HL", Category: models.CategorySupportResistance,
			MinCandles: 40, DefaultParams: Params{"period": 20},
		}, evalPrevRangeHL),
		newIndicator(Spec{
			Name: "FIBONACCI", Category: models.CategorySupportResistance,
			MinCandles: 50, DefaultParams: Params{"lookback": 50},
		}, evalFibonacci),
	}
}

type swingPoint struct {
	index int
	price float64
	high  bool
}

// swingPoints finds fractal pivots: a bar whose high (low) exceeds the highs
// (lows) of the `width` bars on each side.
func swingPoints(candles []models.Candle, width int) []swingPoint {
	var points []swingPoint
	for i := width; i < len(candles)-width; i++ {
		isHigh, isLow := true, true
		for j := i - width; j <= i+width; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			points = append(points, swingPoint{index: i, price: candles[i].High, high: true})
		}
		if isLow {
			points = append(points, swingPoint{index: i, price: candles[i].Low, high: false})
		}
	}
	return points
}

func lastSwings(points []swingPoint, high bool, n int) []swingPoint {
	var out []swingPoint
	for i := len(points) - 1; i >= 0 && len(out) < n; i-- {
		if points[i].high == high {
			out = append(out, points[i])
		}
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func evalPivotPoints(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	window := candles[len(candles)-1-period : len(candles)-1]
	high := HighestHigh(window, period)
	low := LowestLow(window, period)
	prevClose := window[len(window)-1].Close
	price := candles[len(candles)-1].Close

	pivot := (high + low + prevClose) / 3
	r1 := 2*pivot - low
	s1 := 2*pivot - high
	r2 := pivot + (high - low)
	s2 := pivot - (high - low)
	if pivot == 0 || high == low {
		return result(0, 0, map[string]float64{"pivot": pivot})
	}

	var score float64
	switch {
	case price > r2:
		score = 45 // extended above R2, strength with stretch risk
	case price > r1:
		score = 55
	case price > pivot:
		score = clamp((price-pivot)/(r1-pivot)*35, 0, 35)
	case price < s2:
		score = -45
	case price < s1:
		score = -55
	default:
		score = clamp((price-pivot)/(pivot-s1)*35, -35, 0)
	}
	conf := 40 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{
		"pivot": pivot, "r1": r1, "r2": r2, "s1": s1, "s2": s2,
	})
}

// srZone is a price band formed by clustered swing points.
type srZone struct {
	low, high float64
	touches   int
	support   bool
}

func clusterSwings(points []swingPoint, tolerancePct float64) []srZone {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]swingPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].price < sorted[j].price })

	var zones []srZone
	current := srZone{low: sorted[0].price, high: sorted[0].price, touches: 1, support: !sorted[0].high}
	for _, pt := range sorted[1:] {
		tol := current.high * tolerancePct / 100
		if pt.price-current.high <= tol {
			current.high = pt.price
			current.touches++
			if !pt.high {
				current.support = true
			}
		} else {
			zones = append(zones, current)
			current = srZone{low: pt.price, high: pt.price, touches: 1, support: !pt.high}
		}
	}
	return append(zones, current)
}

func evalSRZones(candles []models.Candle, p Params) models.IndicatorResult {
	swing := p.Get("swing", 3)
	tolerance := float64(p.Get("tolerance_bp", 30)) / 100 // basis points to percent
	points := swingPoints(candles, swing)
	zones := clusterSwings(points, tolerance)
	price := candles[len(candles)-1].Close
	if len(zones) == 0 {
		// No fractal pivots in the window: structure cannot be read.
		return insufficientResult()
	}
	if price == 0 {
		return result(0, 0, map[string]float64{"zones": float64(len(zones))})
	}

	// Nearest zone below (support) and above (resistance).
	var below, above *srZone
	for i := range zones {
		z := &zones[i]
		if z.high <= price && (below == nil || z.high > below.high) {
			below = z
		}
		if z.low >= price && (above == nil || z.low < above.low) {
			above = z
		}
	}

	var score float64
	raw := map[string]float64{"price": price}
	if below != nil {
		distPct := (price - below.high) / price * 100
		raw["support"] = below.high
		if distPct < 0.5 {
			// Sitting on support with multiple touches strengthens the bounce.
			score += clamp(float64(below.touches)*12, 0, 45)
		}
	}
	if above != nil {
		distPct := (above.low - price) / price * 100
		raw["resistance"] = above.low
		if distPct < 0.5 {
			score -= clamp(float64(above.touches)*12, 0, 45)
		}
	}
	score = clamp(score, -60, 60)
	conf := 35 + math.Min(math.Abs(score)/2, 40)
	return result(score, conf, raw)
}

// evalDemandSupplyZones marks bases that preceded an impulsive move. Price
// returning to a demand base favours longs, a supply base favours shorts.
func evalDemandSupplyZones(candles []models.Candle, p Params) models.IndicatorResult {
	impulsePct := float64(p.Get("impulse_pct", 1))
	n := len(candles)
	price := candles[n-1].Close
	if price == 0 {
		return result(0, 0, nil)
	}

	var score float64
	raw := map[string]float64{"price": price}
	for i := 1; i < n-3; i++ {
		base := candles[i]
		if base.Open == 0 {
			continue
		}
		movePct := (candles[i+3].Close - base.Close) / base.Close * 100
		if movePct >= impulsePct {
			// Demand zone around the base candle body.
			if price >= base.Low && price <= math.Max(base.Open, base.Close) {
				score += 30
				raw["demand_low"] = base.Low
			}
		} else if movePct <= -impulsePct {
			if price <= base.High && price >= math.Min(base.Open, base.Close) {
				score -= 30
				raw["supply_high"] = base.High
			}
		}
	}
	score = clamp(score, -55, 55)
	conf := 35 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, raw)
}

// evalFairValueGap scans three-candle windows for price gaps and scores price
// trading inside the most recent unfilled gap in the gap's direction.
func evalFairValueGap(candles []models.Candle, p Params) models.IndicatorResult {
	minGapPct := float64(p.Get("min_gap_bp", 10)) / 100
	n := len(candles)
	price := candles[n-1].Close

	type gap struct {
		top, bottom float64
		bullish     bool
		index       int
	}
	var gaps []gap
	for i := 0; i < n-2; i++ {
		c1, c3 := candles[i], candles[i+2]
		if c1.High < c3.Low && c1.High > 0 {
			if (c3.Low-c1.High)/c1.High*100 >= minGapPct {
				gaps = append(gaps, gap{top: c3.Low, bottom: c1.High, bullish: true, index: i})
			}
		}
		if c1.Low > c3.High && c3.High > 0 {
			if (c1.Low-c3.High)/c3.High*100 >= minGapPct {
				gaps = append(gaps, gap{top: c1.Low, bottom: c3.High, bullish: false, index: i})
			}
		}
	}

	var score float64
	raw := map[string]float64{"gaps": float64(len(gaps))}
	for i := len(gaps) - 1; i >= 0; i-- {
		g := gaps[i]
		// A gap is filled once any later candle wicks back into it.
		filled := false
		for j := g.index + 3; j < n; j++ {
			if g.bullish && candles[j].Low <= g.top && candles[j].Low >= g.bottom {
				filled = true
				break
			}
			if !g.bullish && candles[j].High >= g.bottom && candles[j].High <= g.top {
				filled = true
				break
			}
		}
		if filled {
			continue
		}
		if price >= g.bottom && price <= g.top {
			if g.bullish {
				score = 50 // unfilled bullish gap acting as demand
			} else {
				score = -50
			}
			raw["gap_top"], raw["gap_bottom"] = g.top, g.bottom
			break
		}
	}
	conf := 35 + math.Min(math.Abs(score)/2, 40)
	if score == 0 {
		conf = 30
	}
	return result(score, conf, raw)
}

// evalCHoCH detects a change of character: after a sequence of higher highs
// and higher lows, price closing below the last higher low (or the mirror for
// a downtrend) marks a likely reversal.
func evalCHoCH(candles []models.Candle, p Params) models.IndicatorResult {
	swing := p.Get("swing", 3)
	points := swingPoints(candles, swing)
	highs := lastSwings(points, true, 3)
	lows := lastSwings(points, false, 3)
	price := candles[len(candles)-1].Close
	if len(highs) < 2 || len(lows) < 2 {
		return insufficientResult()
	}

	upStructure := highs[len(highs)-1].price > highs[len(highs)-2].price &&
		lows[len(lows)-1].price > lows[len(lows)-2].price
	downStructure := highs[len(highs)-1].price < highs[len(highs)-2].price &&
		lows[len(lows)-1].price < lows[len(lows)-2].price

	var score float64
	raw := map[string]float64{
		"last_swing_high": highs[len(highs)-1].price,
		"last_swing_low":  lows[len(lows)-1].price,
	}
	switch {
	case upStructure && price < lows[len(lows)-1].price:
		score = -60 // bullish structure broken to the downside
	case downStructure && price > highs[len(highs)-1].price:
		score = 60
	}
	conf := 35 + math.Min(math.Abs(score)/2, 40)
	if score == 0 {
		conf = 30
	}
	return result(score, conf, raw)
}

// evalBOS detects a break of structure: price closing beyond the last swing
// extreme in the direction of the prevailing structure, continuation rather
// than reversal.
func evalBOS(candles []models.Candle, p Params) models.IndicatorResult {
	swing := p.Get("swing", 3)
	points := swingPoints(candles, swing)
	highs := lastSwings(points, true, 3)
	lows := lastSwings(points, false, 3)
	price := candles[len(candles)-1].Close
	if len(highs) < 2 || len(lows) < 2 {
		return insufficientResult()
	}

	upStructure := lows[len(lows)-1].price > lows[len(lows)-2].price
	downStructure := highs[len(highs)-1].price < highs[len(highs)-2].price

	var score float64
	raw := map[string]float64{
		"last_swing_high": highs[len(highs)-1].price,
		"last_swing_low":  lows[len(lows)-1].price,
	}
	switch {
	case upStructure && price > highs[len(highs)-1].price:
		score = 55
	case downStructure && price < lows[len(lows)-1].price:
		score = -55
	}
	conf := 35 + math.Min(math.Abs(score)/2, 40)
	if score == 0 {
		conf = 30
	}
	return result(score, conf, raw)
}

// evalPrevRangeHL compares price to the high and low of the previous
// completed range of `period` bars, a session-high/low proxy on intraday
// windows.
func evalPrevRangeHL(candles []models.Candle, p Params) models.IndicatorResult {
	period := p.Get("period", 20)
	n := len(candles)
	if n < 2*period {
		period = n / 2
	}
	prev := candles[n-2*period : n-period]
	prevHigh := HighestHigh(prev, period)
	prevLow := LowestLow(prev, period)
	price := candles[n-1].Close
	if prevHigh == prevLow {
		return result(0, 0, map[string]float64{"prev_high": prevHigh, "prev_low": prevLow})
	}

	var score float64
	switch {
	case price > prevHigh:
		score = 50 // trading above the prior range high
	case price < prevLow:
		score = -50
	default:
		position := (price - (prevHigh+prevLow)/2) / ((prevHigh - prevLow) / 2)
		score = clamp(position*25, -25, 25)
	}
	conf := 40 + math.Min(math.Abs(score)/2, 35)
	return result(score, conf, map[string]float64{"prev_high": prevHigh, "prev_low": prevLow})
}

// evalFibonacci anchors retracement levels on the dominant swing of the
// lookback window and scores proximity to the golden-pocket levels.
func evalFibonacci(candles []models.Candle, p Params) models.IndicatorResult {
	lookback := p.Get("lookback", 50)
	n := len(candles)
	window := candles[n-lookback:]
	high := HighestHigh(window, lookback)
	low := LowestLow(window, lookback)
	price := candles[n-1].Close
	if high == low {
		return result(0, 0, map[string]float64{"high": high, "low": low})
	}

	// Direction of the dominant swing: which extreme came later.
	highIdx, lowIdx := 0, 0
	for i, c := range window {
		if c.High == high {
			highIdx = i
		}
		if c.Low == low {
			lowIdx = i
		}
	}
	upswing := highIdx > lowIdx
	span := high - low

	// Retracement depth measured from the swing end.
	var depth float64
	if upswing {
		depth = (high - price) / span
	} else {
		depth = (price - low) / span
	}

	var score float64
	switch {
	case depth < 0:
		// Beyond the swing extreme, continuation.
		if upswing {
			score = 45
		} else {
			score = -45
		}
	case depth >= 0.5 && depth <= 0.705:
		// Golden pocket: the retracement zone most likely to hold.
		if upswing {
			score = 55
		} else {
			score = -55
		}
	case depth > 1:
		// Full retracement negates the swing.
		if upswing {
			score = -40
		} else {
			score = 40
		}
	case depth <= 0.382:
		if upswing {
			score = 30
		} else {
			score = -30
		}
	}
	conf := 35 + math.Min(math.Abs(score)/2, 40)
	if score == 0 {
		conf = 30
	}
	return result(score, conf, map[string]float64{
		"high": high, "low": low, "retracement": depth,
	})
}
