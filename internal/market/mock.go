package market

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"index-signal-engine/internal/models"
)

// MockSource synthesizes plausible index candles without an upstream feed.
// Each (symbol, timeframe) pair walks a seeded random path, so repeated runs
// of the same binary see the same history while distinct symbols diverge.
type MockSource struct {
	mu    sync.Mutex
	paths map[string]*mockPath
	clock func() time.Time
}

type mockPath struct {
	rng   *rand.Rand
	price float64
	drift float64
}

// Reference price levels so synthesized series resemble the real instruments.
var basePrices = map[string]float64{
	"NIFTY50":   22500,
	"BANKNIFTY": 48000,
	"DOWJONES":  39000,
}

func NewMockSource() *MockSource {
	return &MockSource{
		paths: make(map[string]*mockPath),
		clock: time.Now,
	}
}

// NewMockSourceAt pins the mock's notion of "now"; used by tests.
func NewMockSourceAt(clock func() time.Time) *MockSource {
	return &MockSource{paths: make(map[string]*mockPath), clock: clock}
}

func (m *MockSource) Fetch(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(ctx, err)
	}
	if limit <= 0 {
		limit = 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := symbol + ":" + string(timeframe)
	path, ok := m.paths[key]
	if !ok {
		path = newMockPath(key)
		m.paths[key] = path
	}

	bar := timeframe.Duration()
	end := m.clock().Truncate(bar)
	candles := make([]models.Candle, 0, limit)
	for i := limit; i > 0; i-- {
		candles = append(candles, path.next(symbol, timeframe, end.Add(-time.Duration(i)*bar)))
	}
	return candles, nil
}

func newMockPath(key string) *mockPath {
	h := fnv.New64a()
	h.Write([]byte(key))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 10000.0
	for prefix, base := range basePrices {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			price = base
		}
	}
	return &mockPath{rng: rng, price: price}
}

// next advances the walk one bar. Drift mean-reverts slowly so the series
// alternates between trending and ranging stretches.
func (p *mockPath) next(symbol string, timeframe models.Timeframe, ts time.Time) models.Candle {
	p.drift = p.drift*0.98 + p.rng.NormFloat64()*0.0004
	ret := p.drift + p.rng.NormFloat64()*0.0015

	open := p.price
	close := open * (1 + ret)
	span := math.Abs(close-open) + open*0.0005*(0.5+p.rng.Float64())
	high := math.Max(open, close) + span*p.rng.Float64()*0.5
	low := math.Min(open, close) - span*p.rng.Float64()*0.5
	p.price = close

	return models.Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    50000 + p.rng.Float64()*150000,
		Symbol:    symbol,
		Timeframe: timeframe,
	}
}
