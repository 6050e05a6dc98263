// Package tracker walks every ACTIVE signal on a fixed cadence and moves it
// to a terminal state when its stop, a target, the session close or its
// expiry is reached. Transitions are irreversible; the store rejects a second
// transition for the same signal.
package tracker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/models"
	"index-signal-engine/internal/monitoring"
	"index-signal-engine/internal/session"
	"index-signal-engine/internal/store"
)

// Tracker owns the lifecycle loop.
type Tracker struct {
	cfg      *config.Config
	source   market.CandleSource
	signals  store.SignalStore
	calendar *session.Calendar
	bus      *events.Bus
	metrics  *monitoring.Metrics
	clock    session.Clock
	logger   zerolog.Logger

	stopChan chan struct{}
	doneChan chan struct{}
}

func New(
	cfg *config.Config,
	source market.CandleSource,
	signals store.SignalStore,
	calendar *session.Calendar,
	bus *events.Bus,
	metrics *monitoring.Metrics,
	clock session.Clock,
	logger zerolog.Logger,
) *Tracker {
	return &Tracker{
		cfg:      cfg,
		source:   source,
		signals:  signals,
		calendar: calendar,
		bus:      bus,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	defer close(t.doneChan)

	ticker := time.NewTicker(t.cfg.TrackerPeriod())
	defer ticker.Stop()

	t.logger.Info().Dur("period", t.cfg.TrackerPeriod()).Msg("tracker started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("tracker stopped by context")
			return
		case <-t.stopChan:
			t.logger.Info().Msg("tracker stopped")
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// Stop terminates the loop at the next safe point.
func (t *Tracker) Stop() {
	close(t.stopChan)
	<-t.doneChan
}

// tick walks the ACTIVE set once.
func (t *Tracker) tick(ctx context.Context) {
	t.metrics.TrackerTicks.Inc()

	active, err := t.signals.FindActive(ctx)
	if err != nil {
		t.metrics.StoreFailures.Inc()
		t.logger.Error().Err(err).Msg("listing active signals failed")
		return
	}
	t.metrics.ActiveSignals.Set(float64(len(active)))

	for _, signal := range active {
		t.track(ctx, signal)
	}
}

// transition is a resolved terminal decision for one signal.
type transition struct {
	status    models.SignalStatus
	outcome   models.Outcome
	targetHit models.TargetHit
	exitPrice float64
	remarks   string
}

// track fetches the latest bar for one signal and applies the first matching
// terminal condition: stop, target, market close, expiry.
func (t *Tracker) track(ctx context.Context, signal models.Signal) {
	logger := t.logger.With().
		Str("id", signal.ID).
		Str("symbol", signal.Symbol).
		Str("timeframe", string(signal.Timeframe)).
		Logger()

	candle, ok := t.latestCandle(ctx, signal, logger)
	if !ok {
		return
	}

	decided, tr := t.decide(signal, candle)
	if !decided {
		return
	}
	t.apply(ctx, signal, tr, logger)
}

func (t *Tracker) latestCandle(ctx context.Context, signal models.Signal, logger zerolog.Logger) (models.Candle, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.TrackerConfig.FetchTimeoutSeconds)*time.Second)
	defer cancel()

	candles, err := t.source.Fetch(fetchCtx, signal.Symbol, signal.Timeframe, 2)
	if err != nil {
		kind := models.ErrFetchFailed
		var fe *market.FetchError
		if errors.As(market.Classify(fetchCtx, err), &fe) {
			kind = fe.Kind
		}
		t.metrics.FetchFailures.WithLabelValues(signal.Symbol, string(kind)).Inc()
		logger.Warn().Err(err).Msg("latest candle unavailable, signal held")
		return models.Candle{}, false
	}
	candles = market.Normalize(candles)
	if len(candles) == 0 {
		logger.Warn().Msg("no valid candles returned, signal held")
		return models.Candle{}, false
	}
	return candles[len(candles)-1], true
}

// decide resolves the terminal condition for the signal against one bar.
// It reports false when the signal stays ACTIVE.
func (t *Tracker) decide(signal models.Signal, candle models.Candle) (bool, transition) {
	stopHit := t.stopTouched(signal, candle)
	targetHit, targetPrice := highestTarget(signal, candle)

	if stopHit && targetHit != models.TargetHitNone {
		if t.preferTarget(signal, candle, targetPrice) {
			stopHit = false
		} else {
			targetHit = models.TargetHitNone
		}
	}

	switch {
	case stopHit:
		return true, transition{
			status:    models.StatusHitSL,
			outcome:   models.OutcomeLoss,
			targetHit: models.TargetHitSL,
			exitPrice: t.stopExit(signal, candle),
		}
	case targetHit != models.TargetHitNone:
		return true, transition{
			status:    models.StatusHitTarget,
			outcome:   models.OutcomeWin,
			targetHit: targetHit,
			exitPrice: targetPrice,
		}
	}

	open, err := t.calendar.IsOpenAt(signal.Symbol, t.clock.Now())
	if err != nil {
		// Unknown venue: price exits above still fire, but close and expiry
		// decisions are deferred until the schedule is known.
		t.metrics.ClockUnknownHolds.WithLabelValues(signal.Symbol).Inc()
		return false, transition{}
	}

	if !open {
		pl := (candle.Close - signal.Levels.Entry) * signal.Action.DirectionSign()
		status, outcome := models.StatusClosedProfit, models.OutcomeWin
		if pl < 0 {
			status, outcome = models.StatusClosedLoss, models.OutcomeLoss
		}
		return true, transition{
			status:    status,
			outcome:   outcome,
			targetHit: models.TargetHitClose,
			exitPrice: candle.Close,
			remarks:   "position closed at end of session",
		}
	}

	if t.clock.Now().After(signal.ExpiresAt) {
		return true, transition{
			status:    models.StatusExpired,
			outcome:   models.OutcomePending,
			targetHit: models.TargetHitNone,
			exitPrice: candle.Close,
			remarks:   "signal lifetime exceeded",
		}
	}
	return false, transition{}
}

// stopTouched checks the protective stop against the bar. The close-based
// policy ignores intrabar wicks.
func (t *Tracker) stopTouched(signal models.Signal, candle models.Candle) bool {
	stop := signal.Levels.StopLoss
	if t.cfg.TrackerConfig.UseCloseForStops {
		if signal.Action.IsBuy() {
			return candle.Close <= stop
		}
		return candle.Close >= stop
	}
	if signal.Action.IsBuy() {
		return candle.Low <= stop
	}
	return candle.High >= stop
}

// stopExit is the recorded exit price for a stop-loss transition.
func (t *Tracker) stopExit(signal models.Signal, candle models.Candle) float64 {
	if t.cfg.TrackerConfig.UseCloseForStops {
		return candle.Close
	}
	return signal.Levels.StopLoss
}

// highestTarget returns the strongest target the bar reached in the
// favorable direction, checking target3 first.
func highestTarget(signal models.Signal, candle models.Candle) (models.TargetHit, float64) {
	levels := signal.Levels
	reached := func(target float64) bool {
		if signal.Action.IsBuy() {
			return candle.High >= target
		}
		return candle.Low <= target
	}
	switch {
	case reached(levels.Target3):
		return models.TargetHit3, levels.Target3
	case reached(levels.Target2):
		return models.TargetHit2, levels.Target2
	case reached(levels.Target1):
		return models.TargetHit1, levels.Target1
	}
	return models.TargetHitNone, 0
}

// preferTarget breaks the tie when one bar's range covers both the stop and
// a target. CONSERVATIVE credits the stop, AGGRESSIVE the target, and
// TIMESTAMP_ORDER whichever level lies closer to the bar's open.
func (t *Tracker) preferTarget(signal models.Signal, candle models.Candle, targetPrice float64) bool {
	switch t.cfg.TrackerConfig.StopVsTargetTieBreak {
	case config.TieBreakAggressive:
		return true
	case config.TieBreakTimestampOrder:
		toStop := math.Abs(candle.Open - signal.Levels.StopLoss)
		toTarget := math.Abs(candle.Open - targetPrice)
		return toTarget < toStop
	default:
		return false
	}
}

// apply persists the transition and publishes the event. A concurrent
// transition that already won is not an error.
func (t *Tracker) apply(ctx context.Context, signal models.Signal, tr transition, logger zerolog.Logger) {
	now := t.clock.Now()
	entry := signal.Levels.Entry
	pl := (tr.exitPrice - entry) * signal.Action.DirectionSign()
	plPercent := 0.0
	if entry != 0 {
		plPercent = pl / entry * 100
	}

	performance := models.SignalPerformance{
		Outcome:           tr.outcome,
		ExitPrice:         tr.exitPrice,
		ExitTime:          &now,
		TargetHit:         tr.targetHit,
		ProfitLoss:        pl,
		ProfitLossPercent: plPercent,
		Remarks:           tr.remarks,
	}

	err := t.signals.UpdateStatus(ctx, signal.ID, tr.status, performance)
	if errors.Is(err, store.ErrNotActive) {
		logger.Debug().Msg("signal already terminal, transition dropped")
		return
	}
	if err != nil {
		t.metrics.StoreFailures.Inc()
		logger.Error().Err(err).Str("status", string(tr.status)).Msg("transition persist failed")
		return
	}

	t.metrics.Transitions.WithLabelValues(string(tr.status)).Inc()
	signal.Status = tr.status
	signal.Performance = &performance
	t.bus.PublishTerminated(signal)
	logger.Info().
		Str("status", string(tr.status)).
		Str("target_hit", string(tr.targetHit)).
		Float64("exit", tr.exitPrice).
		Float64("pl", pl).
		Msg("signal closed")
}
