package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/models"
	"index-signal-engine/internal/monitoring"
	"index-signal-engine/internal/session"
	"index-signal-engine/internal/store"
)

// Wednesday 11:00 IST, well inside the NSE session.
var sessionOpen = time.Date(2026, 3, 4, 5, 30, 0, 0, time.UTC)

// Wednesday 20:00 IST, after the NSE close.
var sessionClosed = time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

type singleCandleSource struct {
	mu     sync.Mutex
	candle models.Candle
}

func (s *singleCandleSource) Fetch(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.candle
	c.Symbol = symbol
	c.Timeframe = tf
	return []models.Candle{c}, nil
}

type harness struct {
	tracker *Tracker
	source  *singleCandleSource
	signals *store.MemoryStore
	metrics *monitoring.Metrics
	events  chan models.SignalEvent
	cfg     *config.Config
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	cfg := &config.Config{
		TrackerConfig: config.TrackerConfig{
			PeriodSeconds:        60,
			FetchTimeoutSeconds:  5,
			StopVsTargetTieBreak: config.TieBreakConservative,
		},
	}
	clock := session.FixedClock{Time: now}
	calendar, err := session.NewCalendar(clock, map[string]string{
		"NIFTY50":  "NSE",
		"DOWJONES": "US",
	})
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}

	source := &singleCandleSource{}
	signals := store.NewMemoryStore()
	metrics := monitoring.New(prometheus.NewRegistry())
	bus := events.NewBus()
	eventCh := make(chan models.SignalEvent, 8)
	bus.SubscribeAll(func(e models.SignalEvent) { eventCh <- e })

	tr := New(cfg, source, signals, calendar, bus, metrics, clock, zerolog.Nop())
	return &harness{tracker: tr, source: source, signals: signals, metrics: metrics, events: eventCh, cfg: cfg}
}

func (h *harness) seed(t *testing.T, signal models.Signal) {
	t.Helper()
	if _, err := h.signals.UpsertSignal(context.Background(), signal); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (h *harness) waitEvent(t *testing.T) models.SignalEvent {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return models.SignalEvent{}
	}
}

func buySignal(now time.Time) models.Signal {
	return models.Signal{
		ID:           "sig-1",
		Symbol:       "NIFTY50",
		Timeframe:    models.Timeframe5m,
		Timestamp:    now.Add(-30 * time.Minute),
		CurrentPrice: 100,
		Action:       models.ActionBuy,
		Confidence:   75,
		Levels: models.TradeLevels{
			Entry:           100,
			StopLoss:        98,
			Target1:         102,
			Target2:         104,
			Target3:         106,
			RiskRewardRatio: 1,
		},
		Status:    models.StatusActive,
		CreatedAt: now.Add(-30 * time.Minute),
		ExpiresAt: now.Add(4 * time.Hour),
	}
}

func bar(open, high, low, close float64, ts time.Time) models.Candle {
	return models.Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: close, Volume: 1000}
}

func TestHighestTargetWins(t *testing.T) {
	h := newHarness(t, sessionOpen)
	h.seed(t, buySignal(sessionOpen))
	h.source.candle = bar(103, 107, 102.5, 106.5, sessionOpen)

	h.tracker.tick(context.Background())

	event := h.waitEvent(t)
	if event.Kind != models.EventTerminated {
		t.Fatalf("event kind = %s, want TERMINATED", event.Kind)
	}
	got := event.Signal
	if got.Status != models.StatusHitTarget {
		t.Fatalf("status = %s, want HIT_TARGET", got.Status)
	}
	perf := got.Performance
	if perf.TargetHit != models.TargetHit3 {
		t.Errorf("target hit = %s, want TARGET3", perf.TargetHit)
	}
	if perf.Outcome != models.OutcomeWin {
		t.Errorf("outcome = %s, want WIN", perf.Outcome)
	}
	if perf.ProfitLoss != 6 {
		t.Errorf("profit = %.2f, want 6", perf.ProfitLoss)
	}
	if perf.ProfitLossPercent != 6 {
		t.Errorf("profit%% = %.2f, want 6", perf.ProfitLossPercent)
	}

	active, _ := h.signals.FindActive(context.Background())
	if len(active) != 0 {
		t.Errorf("signal still active after transition")
	}
}

func TestStopTargetTieBreaks(t *testing.T) {
	// One bar spans both the stop at 98 and target1 at 102.
	ambiguous := bar(100, 103, 97, 100, sessionOpen)

	cases := []struct {
		name   string
		policy config.TieBreakPolicy
		open   float64
		want   models.SignalStatus
	}{
		{"conservative prefers stop", config.TieBreakConservative, 100, models.StatusHitSL},
		{"aggressive prefers target", config.TieBreakAggressive, 100, models.StatusHitTarget},
		{"timestamp order near target", config.TieBreakTimestampOrder, 101.5, models.StatusHitTarget},
		{"timestamp order near stop", config.TieBreakTimestampOrder, 98.5, models.StatusHitSL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, sessionOpen)
			h.cfg.TrackerConfig.StopVsTargetTieBreak = tc.policy
			h.seed(t, buySignal(sessionOpen))
			candle := ambiguous
			candle.Open = tc.open
			h.source.candle = candle

			h.tracker.tick(context.Background())

			event := h.waitEvent(t)
			if event.Signal.Status != tc.want {
				t.Errorf("status = %s, want %s", event.Signal.Status, tc.want)
			}
		})
	}
}

func TestStopLossRecordsLoss(t *testing.T) {
	h := newHarness(t, sessionOpen)
	h.seed(t, buySignal(sessionOpen))
	h.source.candle = bar(99, 99.5, 97.5, 97.8, sessionOpen)

	h.tracker.tick(context.Background())

	event := h.waitEvent(t)
	got := event.Signal
	if got.Status != models.StatusHitSL {
		t.Fatalf("status = %s, want HIT_SL", got.Status)
	}
	if got.Performance.Outcome != models.OutcomeLoss {
		t.Errorf("outcome = %s, want LOSS", got.Performance.Outcome)
	}
	if got.Performance.ExitPrice != 98 {
		t.Errorf("exit = %.2f, want the stop level 98", got.Performance.ExitPrice)
	}
}

func TestCloseBasedStopsIgnoreWicks(t *testing.T) {
	h := newHarness(t, sessionOpen)
	h.cfg.TrackerConfig.UseCloseForStops = true
	h.seed(t, buySignal(sessionOpen))
	// The wick pierces the stop but the bar closes back above it.
	h.source.candle = bar(99, 100, 97.5, 99.2, sessionOpen)

	h.tracker.tick(context.Background())

	active, _ := h.signals.FindActive(context.Background())
	if len(active) != 1 {
		t.Fatalf("signal should stay active under close-based stops, got %d active", len(active))
	}
}

func TestSessionCloseFlattens(t *testing.T) {
	cases := []struct {
		name  string
		close float64
		want  models.SignalStatus
	}{
		{"in profit", 101, models.StatusClosedProfit},
		{"at a loss", 99, models.StatusClosedLoss},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, sessionClosed)
			h.seed(t, buySignal(sessionClosed))
			h.source.candle = bar(100, 101.2, 98.9, tc.close, sessionClosed)

			h.tracker.tick(context.Background())

			event := h.waitEvent(t)
			got := event.Signal
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			if got.Performance.TargetHit != models.TargetHitClose {
				t.Errorf("target hit = %s, want MARKET_CLOSE", got.Performance.TargetHit)
			}
			if got.Performance.ExitPrice != tc.close {
				t.Errorf("exit = %.2f, want latest close %.2f", got.Performance.ExitPrice, tc.close)
			}
		})
	}
}

func TestExpiryDuringOpenSession(t *testing.T) {
	h := newHarness(t, sessionOpen)
	signal := buySignal(sessionOpen)
	signal.ExpiresAt = sessionOpen.Add(-time.Minute)
	h.seed(t, signal)
	h.source.candle = bar(100, 100.5, 99.5, 100.2, sessionOpen)

	h.tracker.tick(context.Background())

	event := h.waitEvent(t)
	if event.Kind != models.EventExpired {
		t.Fatalf("event kind = %s, want EXPIRED", event.Kind)
	}
	got := event.Signal
	if got.Status != models.StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", got.Status)
	}
	if got.Performance.Outcome != models.OutcomePending {
		t.Errorf("outcome = %s, want PENDING", got.Performance.Outcome)
	}
}

func TestUnknownVenueHoldsSignal(t *testing.T) {
	h := newHarness(t, sessionClosed)
	signal := buySignal(sessionClosed)
	signal.Symbol = "FTSE100"
	h.seed(t, signal)
	h.source.candle = bar(100, 100.5, 99.5, 100.2, sessionClosed)

	h.tracker.tick(context.Background())

	active, _ := h.signals.FindActive(context.Background())
	if len(active) != 1 {
		t.Fatalf("unknown venue must defer close decisions, got %d active", len(active))
	}
	if got := testutil.ToFloat64(h.metrics.ClockUnknownHolds.WithLabelValues("FTSE100")); got != 1 {
		t.Errorf("clock unknown holds = %v, want 1", got)
	}
}

func TestUnknownVenuePriceExitsStillFire(t *testing.T) {
	h := newHarness(t, sessionClosed)
	signal := buySignal(sessionClosed)
	signal.Symbol = "FTSE100"
	h.seed(t, signal)
	h.source.candle = bar(99, 99.5, 97.5, 97.8, sessionClosed)

	h.tracker.tick(context.Background())

	event := h.waitEvent(t)
	if event.Signal.Status != models.StatusHitSL {
		t.Fatalf("status = %s, want HIT_SL even without a session schedule", event.Signal.Status)
	}
}

func TestSellSignalMirrors(t *testing.T) {
	h := newHarness(t, sessionOpen)
	signal := buySignal(sessionOpen)
	signal.Action = models.ActionSell
	signal.Levels = models.TradeLevels{
		Entry:           100,
		StopLoss:        102,
		Target1:         98,
		Target2:         96,
		Target3:         94,
		RiskRewardRatio: 1,
	}
	h.seed(t, signal)
	h.source.candle = bar(97, 97.5, 95.5, 96, sessionOpen)

	h.tracker.tick(context.Background())

	event := h.waitEvent(t)
	got := event.Signal
	if got.Status != models.StatusHitTarget {
		t.Fatalf("status = %s, want HIT_TARGET", got.Status)
	}
	if got.Performance.TargetHit != models.TargetHit2 {
		t.Errorf("target hit = %s, want TARGET2", got.Performance.TargetHit)
	}
	if got.Performance.ProfitLoss != 4 {
		t.Errorf("profit = %.2f, want 4 on the short side", got.Performance.ProfitLoss)
	}
}
