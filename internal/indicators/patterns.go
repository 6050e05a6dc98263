package indicators

import (
	"math"

	"index-signal-engine/internal/models"
)

// Candlestick pattern evaluators. Each recognizer is a pure predicate over the
// last one to three candles; the score carries the pattern's direction and the
// short-term trend context (a reversal pattern against the recent move scores
// stronger than one with no move to reverse).

func patternIndicators() []Evaluator {
	return []Evaluator{
		newIndicator(Spec{
			Name: "ENGULFING", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{}, Importance: 1.0,
		}, evalEngulfing),
		newIndicator(Spec{
			Name: "HAMMER", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalHammer),
		newIndicator(Spec{
			Name: "SHOOTING_STAR", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalShootingStar),
		newIndicator(Spec{
			Name: "DOJI", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalDoji),
		newIndicator(Spec{
			Name: "MORNING_EVENING_STAR", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalStar),
		newIndicator(Spec{
			Name: "THREE_SOLDIERS_CROWS", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalThreeSoldiersCrows),
		newIndicator(Spec{
			Name: "HARAMI", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalHarami),
		newIndicator(Spec{
			Name: "PIERCING_DARK_CLOUD", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalPiercingDarkCloud),
		newIndicator(Spec{
			Name: "MARUBOZU", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalMarubozu),
		newIndicator(Spec{
			Name: "TWEEZER", Category: models.CategoryPatterns,
			MinCandles: 12, DefaultParams: Params{},
		}, evalTweezer),
	}
}

func body(c models.Candle) float64      { return math.Abs(c.Close - c.Open) }
func upperWick(c models.Candle) float64 { return c.High - math.Max(c.Open, c.Close) }
func lowerWick(c models.Candle) float64 { return math.Min(c.Open, c.Close) - c.Low }

// trendContext reports the short-term move into the last candle: +1 rising,
// -1 falling, 0 flat. Reversal patterns need a move to reverse.
func trendContext(candles []models.Candle) int {
	slope := Slope(Closes(candles[:len(candles)-1]), 8)
	if slope > 0 {
		return 1
	}
	if slope < 0 {
		return -1
	}
	return 0
}

// patternScore converts a detected pattern direction into a score, boosted
// when the preceding trend runs against the pattern.
func patternScore(direction, trend int, base float64) float64 {
	if direction == 0 {
		return 0
	}
	score := float64(direction) * base
	if trend == -direction {
		score *= 1.3 // reversal with a move behind it
	} else if trend == direction {
		score *= 0.7 // continuation reading of a reversal shape
	}
	return clamp(score, -80, 80)
}

func patternResult(direction, trend int, base float64) models.IndicatorResult {
	score := patternScore(direction, trend, base)
	conf := 30.0
	if direction != 0 {
		conf = 55 + math.Min(math.Abs(score)/4, 25)
	}
	return result(score, conf, map[string]float64{
		"detected": float64(direction),
		"trend":    float64(trend),
	})
}

func isBullishEngulfing(c1, c2 models.Candle) bool {
	return c1.Close < c1.Open && c2.Close > c2.Open &&
		c2.Open <= c1.Close && c2.Close >= c1.Open
}

func isBearishEngulfing(c1, c2 models.Candle) bool {
	return c1.Close > c1.Open && c2.Close < c2.Open &&
		c2.Open >= c1.Close && c2.Close <= c1.Open
}

func evalEngulfing(candles []models.Candle, p Params) models.IndicatorResult {
	n := len(candles)
	c1, c2 := candles[n-2], candles[n-1]
	trend := trendContext(candles)

	direction := 0
	if isBullishEngulfing(c1, c2) {
		direction = 1
	} else if isBearishEngulfing(c1, c2) {
		direction = -1
	}
	return patternResult(direction, trend, 55)
}

func evalHammer(candles []models.Candle, p Params) models.IndicatorResult {
	c := candles[len(candles)-1]
	trend := trendContext(candles)
	rng := c.Range()

	direction := 0
	// Small body near the top with a lower wick at least twice the body.
	if rng > 0 && body(c) > 0 &&
		lowerWick(c) >= 2*body(c) && upperWick(c) <= body(c)*0.5 {
		direction = 1
	}
	return patternResult(direction, trend, 50)
}

func evalShootingStar(candles []models.Candle, p Params) models.IndicatorResult {
	c := candles[len(candles)-1]
	trend := trendContext(candles)
	rng := c.Range()

	direction := 0
	if rng > 0 && body(c) > 0 &&
		upperWick(c) >= 2*body(c) && lowerWick(c) <= body(c)*0.5 {
		direction = -1
	}
	return patternResult(direction, trend, 50)
}

// evalDoji scores indecision: a doji after a directional move leans against
// that move, a doji in a flat tape is neutral.
func evalDoji(candles []models.Candle, p Params) models.IndicatorResult {
	c := candles[len(candles)-1]
	trend := trendContext(candles)
	rng := c.Range()

	isDoji := rng > 0 && body(c)/rng < 0.10
	direction := 0
	if isDoji {
		direction = -trend // fade the move that stalled
	}
	score := float64(direction) * 25
	conf := 30.0
	if isDoji {
		conf = 45
	}
	return result(score, conf, map[string]float64{
		"detected": boolToFloat(isDoji),
		"trend":    float64(trend),
	})
}

func evalStar(candles []models.Candle, p Params) models.IndicatorResult {
	n := len(candles)
	c1, c2, c3 := candles[n-3], candles[n-2], candles[n-1]
	trend := trendContext(candles)

	smallMiddle := c2.Range() > 0 && body(c2)/c2.Range() < 0.35

	direction := 0
	// Morning star: long bearish, small middle, bullish close above the
	// midpoint of the first body.
	if c1.Close < c1.Open && smallMiddle && c3.Close > c3.Open &&
		c3.Close > (c1.Open+c1.Close)/2 {
		direction = 1
	}
	// Evening star mirrors it.
	if c1.Close > c1.Open && smallMiddle && c3.Close < c3.Open &&
		c3.Close < (c1.Open+c1.Close)/2 {
		direction = -1
	}
	return patternResult(direction, trend, 60)
}

func evalThreeSoldiersCrows(candles []models.Candle, p Params) models.IndicatorResult {
	n := len(candles)
	c1, c2, c3 := candles[n-3], candles[n-2], candles[n-1]
	trend := trendContext(candles)

	soldiers := c1.IsBullish() && c2.IsBullish() && c3.IsBullish() &&
		c2.Close > c1.Close && c3.Close > c2.Close &&
		c2.Open > c1.Open && c3.Open > c2.Open
	crows := c1.IsBearish() && c2.IsBearish() && c3.IsBearish() &&
		c2.Close < c1.Close && c3.Close < c2.Close &&
		c2.Open < c1.Open && c3.Open < c2.Open

	direction := 0
	if soldiers {
		direction = 1
	} else if crows {
		direction = -1
	}
	// Continuation pattern: no reversal boost.
	score := clamp(float64(direction)*60, -80, 80)
	conf := 30.0
	if direction != 0 {
		conf = 60
	}
	return result(score, conf, map[string]float64{
		"detected": float64(direction),
		"trend":    float64(trend),
	})
}

func evalHarami(candles []models.Candle, p Params) models.IndicatorResult {
	n := len(candles)
	c1, c2 := candles[n-2], candles[n-1]
	trend := trendContext(candles)

	largeFirst := c1.Range() > 0 && body(c1)/c1.Range() >= 0.6
	inside := math.Max(c2.Open, c2.Close) < math.Max(c1.Open, c1.Close) &&
		math.Min(c2.Open, c2.Close) > math.Min(c1.Open, c1.Close)

	direction := 0
	if largeFirst && inside {
		if c1.IsBearish() && c2.IsBullish() {
			direction = 1
		} else if c1.IsBullish() && c2.IsBearish() {
			direction = -1
		}
	}
	return patternResult(direction, trend, 40)
}

func evalPiercingDarkCloud(candles []models.Candle, p Params) models.IndicatorResult {
	n := len(candles)
	c1, c2 := candles[n-2], candles[n-1]
	trend := trendContext(candles)

	direction := 0
	// Piercing line: bearish candle then a bullish one opening below its low
	// and closing above the midpoint of its body.
	if c1.IsBearish() && c2.IsBullish() &&
		c2.Open < c1.Low && c2.Close > (c1.Open+c1.Close)/2 && c2.Close < c1.Open {
		direction = 1
	}
	// Dark cloud cover mirrors it.
	if c1.IsBullish() && c2.IsBearish() &&
		c2.Open > c1.High && c2.Close < (c1.Open+c1.Close)/2 && c2.Close > c1.Open {
		direction = -1
	}
	return patternResult(direction, trend, 50)
}

func evalMarubozu(candles []models.Candle, p Params) models.IndicatorResult {
	c := candles[len(candles)-1]
	trend := trendContext(candles)
	rng := c.Range()

	direction := 0
	// Body covers nearly the full range: conviction in one direction.
	if rng > 0 && body(c)/rng >= 0.95 {
		if c.IsBullish() {
			direction = 1
		} else if c.IsBearish() {
			direction = -1
		}
	}
	score := clamp(float64(direction)*45, -80, 80)
	conf := 30.0
	if direction != 0 {
		conf = 55
	}
	return result(score, conf, map[string]float64{
		"detected": float64(direction),
		"trend":    float64(trend),
	})
}

func evalTweezer(candles []models.Candle, p Params) models.IndicatorResult {
	n := len(candles)
	c1, c2 := candles[n-2], candles[n-1]
	trend := trendContext(candles)
	price := c2.Close
	if price == 0 {
		return result(0, 0, nil)
	}
	tolerance := price * 0.0005

	direction := 0
	// Tweezer bottom: matching lows, second candle bullish.
	if math.Abs(c1.Low-c2.Low) <= tolerance && c1.IsBearish() && c2.IsBullish() && c1.Low != c1.High {
		direction = 1
	}
	// Tweezer top: matching highs, second candle bearish.
	if math.Abs(c1.High-c2.High) <= tolerance && c1.IsBullish() && c2.IsBearish() && c1.Low != c1.High {
		direction = -1
	}
	return patternResult(direction, trend, 45)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
