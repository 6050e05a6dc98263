package generator

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/combiner"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/levels"
	"index-signal-engine/internal/models"
	"index-signal-engine/internal/monitoring"
	"index-signal-engine/internal/regime"
	"index-signal-engine/internal/store"
)

// scriptedSource returns canned candles or a canned error and records calls.
// The optional started/release channels let tests observe and hold an
// in-flight fetch.
type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	candles []models.Candle
	err     error

	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func (s *scriptedSource) Fetch(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	s.mu.Lock()
	s.calls++
	candles, err := s.candles, s.err
	s.mu.Unlock()

	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return candles, nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// testClock is a settable clock shared by the generator and the test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		EngineConfig: config.EngineConfig{
			Symbols:             []string{"NIFTY50"},
			Timeframes:          []string{"5m"},
			MinCandlesRequired:  50,
			MinConfidenceToEmit: 0,
			StopMultiplier:      1.5,
			MinStopPercent:      0.005,
			RiskRewardFloor:     1.0,
			CandleFetchLimit:    300,
		},
		GeneratorConfig: config.GeneratorConfig{
			PeriodSeconds:          30,
			FetchTimeoutSeconds:    5,
			RefreshIntervalSeconds: 300,
			ConfidenceEpsilon:      5,
			ExpirySeconds:          3600,
			WorkerPoolSize:         2,
			CooldownBaseSeconds:    60,
			CooldownMaxSeconds:     600,
		},
	}
}

type testHarness struct {
	gen     *Generator
	source  *scriptedSource
	signals *store.MemoryStore
	metrics *monitoring.Metrics
	clock   *testClock
	cfg     *config.Config
}

func newHarness(t *testing.T, source *scriptedSource) *testHarness {
	t.Helper()
	cfg := testConfig()
	clock := &testClock{t: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)}
	signals := store.NewMemoryStore()
	metrics := monitoring.New(prometheus.NewRegistry())
	registry := indicators.NewDefaultRegistry()

	gen := New(
		cfg,
		source,
		signals,
		registry,
		regime.NewDetector(),
		combiner.New(registry, 2),
		levels.NewCalculator(cfg.EngineConfig.StopMultiplier, cfg.EngineConfig.MinStopPercent, cfg.EngineConfig.RiskRewardFloor),
		events.NewBus(),
		metrics,
		clock,
		zerolog.Nop(),
	)
	return &testHarness{gen: gen, source: source, signals: signals, metrics: metrics, clock: clock, cfg: cfg}
}

// trendCandles is an uptrend with a mild oscillation so oscillators are not
// pinned at their ceilings.
func trendCandles(n int) []models.Candle {
	base := time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	prev := 100.0
	for i := range out {
		close := 100 + 0.6*float64(i) + 3*math.Sin(float64(i)/4)
		high := math.Max(prev, close) + 0.3
		low := math.Min(prev, close) - 0.3
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      prev,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + float64(i%5)*40,
			Symbol:    "NIFTY50",
			Timeframe: models.Timeframe5m,
		}
		prev = close
	}
	return out
}

// expectedOutcome mirrors the evaluation pipeline on the same window so the
// test does not hard-code indicator polarity.
func expectedOutcome(candles []models.Candle) (combiner.Decision, levels.Result) {
	registry := indicators.NewDefaultRegistry()
	results := registry.EvaluateAll(candles, nil)
	marketRegime := regime.NewDetector().Detect(candles)
	decision := combiner.New(registry, 2).Combine(results, marketRegime)
	calc := levels.NewCalculator(1.5, 0.005, 1.0)
	lv := calc.Compute(candles[len(candles)-1].Close, indicators.ATR(candles, 14), decision.Action)
	return decision, lv
}

func TestTickEmitsSignalMatchingPipeline(t *testing.T) {
	candles := trendCandles(250)
	h := newHarness(t, &scriptedSource{candles: candles})

	decision, lv := expectedOutcome(candles)
	wantEmit := lv.Action != models.ActionHold

	h.gen.tick(context.Background())

	active, err := h.signals.FindActive(context.Background())
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if !wantEmit {
		if len(active) != 0 {
			t.Fatalf("pipeline decided HOLD but %d signals were persisted", len(active))
		}
		return
	}
	if len(active) != 1 {
		t.Fatalf("got %d active signals, want 1", len(active))
	}
	got := active[0]
	if got.Action != lv.Action {
		t.Errorf("action = %s, want %s", got.Action, lv.Action)
	}
	if got.Confidence != decision.Confidence {
		t.Errorf("confidence = %.2f, want %.2f", got.Confidence, decision.Confidence)
	}
	if got.Levels != lv.Levels {
		t.Errorf("levels = %+v, want %+v", got.Levels, lv.Levels)
	}
	if got.Status != models.StatusActive {
		t.Errorf("status = %s, want ACTIVE", got.Status)
	}
	if got.Timestamp != candles[len(candles)-1].Timestamp {
		t.Errorf("timestamp = %v, want last bar %v", got.Timestamp, candles[len(candles)-1].Timestamp)
	}
	if !got.ExpiresAt.Equal(got.CreatedAt.Add(time.Hour)) {
		t.Errorf("expiry = %v, want created+1h", got.ExpiresAt)
	}
}

func TestRepeatedTickDoesNotDuplicate(t *testing.T) {
	candles := trendCandles(250)
	h := newHarness(t, &scriptedSource{candles: candles})

	h.gen.tick(context.Background())
	first, _ := h.signals.FindActive(context.Background())

	h.gen.tick(context.Background())
	second, _ := h.signals.FindActive(context.Background())

	if len(second) != len(first) {
		t.Fatalf("second tick changed active count from %d to %d", len(first), len(second))
	}
	if len(first) == 1 {
		skips := testutil.ToFloat64(h.metrics.DedupSkips.WithLabelValues("NIFTY50", "5m"))
		if skips != 1 {
			t.Errorf("dedup skips = %v, want 1", skips)
		}
	}
}

func TestReconcileActiveRules(t *testing.T) {
	h := newHarness(t, &scriptedSource{})
	ctx := context.Background()
	now := h.clock.Now()

	seed := models.Signal{
		ID:         "seed",
		Symbol:     "NIFTY50",
		Timeframe:  models.Timeframe5m,
		Timestamp:  now.Add(-5 * time.Minute),
		Action:     models.ActionBuy,
		Confidence: 72,
		Status:     models.StatusActive,
		CreatedAt:  now.Add(-time.Minute),
	}
	if _, err := h.signals.UpsertSignal(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	candidate := func(action models.SignalAction, conf float64) models.Signal {
		return models.Signal{
			Symbol:     "NIFTY50",
			Timeframe:  models.Timeframe5m,
			Action:     action,
			Confidence: conf,
		}
	}

	// Inside the refresh window the live signal holds the slot outright, even
	// against a flipped action or a very different confidence.
	cases := []struct {
		name   string
		signal models.Signal
		want   bool
	}{
		{"same action near confidence", candidate(models.ActionBuy, 74), false},
		{"confidence beyond epsilon", candidate(models.ActionBuy, 80), false},
		{"flipped action", candidate(models.ActionSell, 72), false},
		{"other symbol slot", models.Signal{Symbol: "BANKNIFTY", Timeframe: models.Timeframe5m, Action: models.ActionBuy, Confidence: 72}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.gen.reconcileActive(ctx, tc.signal, zerolog.Nop()); got != tc.want {
				t.Errorf("reconcileActive = %v, want %v", got, tc.want)
			}
		})
	}

	// Past the refresh window an equivalent signal still defers to the live
	// one; a materially different one expires it and takes the slot.
	h.clock.Advance(10 * time.Minute)
	if h.gen.reconcileActive(ctx, candidate(models.ActionBuy, 73), zerolog.Nop()) {
		t.Error("equivalent live signal must keep holding the slot past the refresh window")
	}
	if !h.gen.reconcileActive(ctx, candidate(models.ActionSell, 80), zerolog.Nop()) {
		t.Fatal("materially different signal must be allowed to replace a stale live one")
	}
	prior, err := h.signals.FindActiveBySlot(ctx, "NIFTY50", models.Timeframe5m)
	if err != nil {
		t.Fatalf("FindActiveBySlot: %v", err)
	}
	if prior != nil {
		t.Errorf("superseded signal still ACTIVE: %+v", prior)
	}
}

// TestSlotNeverHoldsTwoActive seeds a young live BUY and pushes a SELL
// evaluation through reconcile and persist for the same slot. The store must
// end the sequence with at most one ACTIVE signal for the slot.
func TestSlotNeverHoldsTwoActive(t *testing.T) {
	h := newHarness(t, &scriptedSource{})
	ctx := context.Background()
	now := h.clock.Now()

	seed := models.Signal{
		ID:         "live-buy",
		Symbol:     "NIFTY50",
		Timeframe:  models.Timeframe5m,
		Timestamp:  now.Add(-5 * time.Minute),
		Action:     models.ActionBuy,
		Confidence: 75,
		Status:     models.StatusActive,
		CreatedAt:  now.Add(-time.Minute),
	}
	if _, err := h.signals.UpsertSignal(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	flipped := models.Signal{
		ID:         "flipped-sell",
		Symbol:     "NIFTY50",
		Timeframe:  models.Timeframe5m,
		Timestamp:  now,
		Action:     models.ActionSell,
		Confidence: 80,
		Status:     models.StatusActive,
		CreatedAt:  now,
	}
	if h.gen.reconcileActive(ctx, flipped, zerolog.Nop()) {
		t.Fatal("flipped signal inside the refresh window must be suppressed")
	}

	active, err := h.signals.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("slot holds %d ACTIVE signals, want 1", len(active))
	}

	// Once the live signal ages out, the flip replaces it: the old one is
	// expired first, so the count never exceeds one.
	h.clock.Advance(h.cfg.RefreshInterval() + time.Second)
	if !h.gen.reconcileActive(ctx, flipped, zerolog.Nop()) {
		t.Fatal("stale live signal must yield the slot to a flipped evaluation")
	}
	if _, err := h.signals.UpsertSignal(ctx, flipped); err != nil {
		t.Fatalf("upsert replacement: %v", err)
	}

	active, err = h.signals.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("slot holds %d ACTIVE signals after replacement, want 1", len(active))
	}
	if active[0].ID != "flipped-sell" {
		t.Errorf("surviving ACTIVE is %s, want the replacement", active[0].ID)
	}
}

func TestFetchFailureEntersCooldown(t *testing.T) {
	src := &scriptedSource{err: errors.New("feed unavailable")}
	h := newHarness(t, src)
	ctx := context.Background()

	h.gen.tick(ctx)
	if src.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", src.callCount())
	}
	if got := testutil.ToFloat64(h.metrics.Cooldowns.WithLabelValues("NIFTY50", "5m")); got != 1 {
		t.Fatalf("cooldown transitions = %v, want 1", got)
	}

	// Still inside the cooldown window, the slot must not refetch.
	h.gen.tick(ctx)
	if src.callCount() != 1 {
		t.Errorf("fetch attempted during cooldown, calls = %d", src.callCount())
	}

	// Past the backoff cap the slot retries.
	h.clock.Advance(time.Duration(h.cfg.GeneratorConfig.CooldownMaxSeconds) * time.Second)
	h.gen.tick(ctx)
	if src.callCount() != 2 {
		t.Errorf("fetch calls after cooldown = %d, want 2", src.callCount())
	}
}

func TestTickOverrunSkipsBusySlot(t *testing.T) {
	src := &scriptedSource{
		candles: trendCandles(250),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, src)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		h.gen.tick(ctx)
		close(done)
	}()

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never reached the source")
	}

	h.gen.tick(ctx)
	if got := testutil.ToFloat64(h.metrics.TickOverruns.WithLabelValues("NIFTY50", "5m")); got != 1 {
		t.Errorf("overruns = %v, want 1", got)
	}
	if src.callCount() != 1 {
		t.Errorf("overlapping tick fetched anyway, calls = %d", src.callCount())
	}

	close(src.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never finished")
	}
}

func TestConfidenceFloorBlocksEmission(t *testing.T) {
	src := &scriptedSource{candles: trendCandles(250)}
	h := newHarness(t, src)
	h.cfg.EngineConfig.MinConfidenceToEmit = 101

	h.gen.tick(context.Background())

	active, _ := h.signals.FindActive(context.Background())
	if len(active) != 0 {
		t.Fatalf("floor of 101 must block every emission, got %d signals", len(active))
	}
}

func TestShortWindowIsSkipped(t *testing.T) {
	src := &scriptedSource{candles: trendCandles(10)}
	h := newHarness(t, src)

	h.gen.tick(context.Background())

	active, _ := h.signals.FindActive(context.Background())
	if len(active) != 0 {
		t.Fatalf("short window must not produce signals, got %d", len(active))
	}
	if got := testutil.ToFloat64(h.metrics.Cooldowns.WithLabelValues("NIFTY50", "5m")); got != 0 {
		t.Errorf("short window is not a fetch failure, cooldowns = %v", got)
	}
}
