package regime

import (
	"math"
	"testing"
	"time"

	"index-signal-engine/internal/models"
)

func makeCandles(n int, price func(i int) float64) []models.Candle {
	start := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	prev := price(0)
	for i := 0; i < n; i++ {
		close := price(i)
		open := prev
		high := math.Max(open, close) + 0.2
		low := math.Min(open, close) - 0.2
		candles[i] = models.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open, High: high, Low: low, Close: close,
			Volume: 1000,
			Symbol: "NIFTY50", Timeframe: models.Timeframe5m,
		}
		prev = close
	}
	return candles
}

func TestDetectShortWindowIsUnknown(t *testing.T) {
	d := NewDetector()
	r := d.Detect(makeCandles(10, func(i int) float64 { return 100 + float64(i) }))
	if r.Regime != models.RegimeUnknown {
		t.Errorf("got regime %s, want UNKNOWN", r.Regime)
	}
	if r.Confidence != 0 {
		t.Errorf("UNKNOWN regime confidence = %v, want 0", r.Confidence)
	}
}

func TestDetectStrongUptrend(t *testing.T) {
	d := NewDetector()
	r := d.Detect(makeCandles(100, func(i int) float64 { return 100 + float64(i) }))
	if r.Regime != models.RegimeStrongTrending {
		t.Errorf("monotone uptrend classified %s, want STRONG_TRENDING (ADX %.1f, chop %.1f)",
			r.Regime, r.ADX, r.ChoppinessIndex)
	}
	if r.Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", r.Confidence)
	}
	if !r.IsTrending() {
		t.Error("IsTrending() should be true")
	}
}

func TestDetectRangingMarket(t *testing.T) {
	d := NewDetector()
	// Tight oscillation around 100.
	r := d.Detect(makeCandles(100, func(i int) float64 {
		return 100 + 0.5*math.Sin(float64(i)*2.1)
	}))
	if r.Regime != models.RegimeRanging {
		t.Errorf("oscillating window classified %s, want RANGING (ADX %.1f, chop %.1f)",
			r.Regime, r.ADX, r.ChoppinessIndex)
	}
}

func TestCollapsingADXDowngradesStrongTrend(t *testing.T) {
	d := NewDetector()
	// Fifty bars up one point, then ten bars down three. Wilder ADX is still
	// far above the strong threshold at the end, but it is falling hard.
	r := d.Detect(makeCandles(61, func(i int) float64 {
		if i <= 50 {
			return 100 + float64(i)
		}
		return 150 - 3*float64(i-50)
	}))
	if r.Regime != models.RegimeWeakTrending {
		t.Errorf("broken trend classified %s, want WEAK_TRENDING (ADX %.1f, chop %.1f)",
			r.Regime, r.ADX, r.ChoppinessIndex)
	}
}

func TestConfidenceBounds(t *testing.T) {
	d := NewDetector()
	windows := []func(i int) float64{
		func(i int) float64 { return 100 + float64(i) },
		func(i int) float64 { return 200 - float64(i) },
		func(i int) float64 { return 100 + 0.5*math.Sin(float64(i)*2.1) },
		func(i int) float64 { return 100 + 5*math.Sin(float64(i)/7) + float64(i)*0.2 },
	}
	for _, fn := range windows {
		r := d.Detect(makeCandles(120, fn))
		if r.Confidence < 0 || r.Confidence > 100 {
			t.Errorf("confidence %v out of [0, 100]", r.Confidence)
		}
		if r.Interpretation == "" {
			t.Error("interpretation must not be empty")
		}
	}
}

func TestChoppinessBounds(t *testing.T) {
	trend := makeCandles(60, func(i int) float64 { return 100 + float64(i) })
	rng := makeCandles(60, func(i int) float64 { return 100 + 0.5*math.Sin(float64(i)*2.1) })

	chopTrendVal := Choppiness(trend, 14)
	chopRangeVal := Choppiness(rng, 14)
	for _, v := range []float64{chopTrendVal, chopRangeVal} {
		if v < 0 || v > 100 {
			t.Errorf("choppiness %v out of [0, 100]", v)
		}
	}
	if chopTrendVal >= chopRangeVal {
		t.Errorf("trending choppiness (%v) should be below ranging choppiness (%v)",
			chopTrendVal, chopRangeVal)
	}
}

func TestVolatilityBandPresent(t *testing.T) {
	d := NewDetector()
	r := d.Detect(makeCandles(120, func(i int) float64 { return 100 + float64(i)*0.3 }))
	if r.Volatility == models.VolatilityUnknown {
		t.Errorf("volatility band UNKNOWN on a 120-candle window")
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector()
	candles := makeCandles(100, func(i int) float64 {
		return 100 + 8*math.Sin(float64(i)/6) + float64(i)*0.15
	})
	a, b := d.Detect(candles), d.Detect(candles)
	if a != b {
		t.Errorf("repeated detection differs: %+v vs %+v", a, b)
	}
}
