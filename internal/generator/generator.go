// Package generator drives periodic signal creation. Each configured
// (symbol, timeframe) pair owns a slot that moves through a small state
// machine per tick: fetch candles, evaluate indicators, combine, attach
// levels, persist. Fetch failures push the slot into an exponential-backoff
// cooldown; overlapping ticks are skipped and counted.
package generator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/combiner"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/levels"
	"index-signal-engine/internal/market"
	"index-signal-engine/internal/models"
	"index-signal-engine/internal/monitoring"
	"index-signal-engine/internal/regime"
	"index-signal-engine/internal/session"
	"index-signal-engine/internal/store"
)

type slotState string

const (
	stateIdle       slotState = "IDLE"
	stateFetching   slotState = "FETCHING"
	stateEvaluating slotState = "EVALUATING"
	statePersisting slotState = "PERSISTING"
	stateCooldown   slotState = "COOLDOWN"
)

// slot serializes work for one (symbol, timeframe) pair.
type slot struct {
	symbol    string
	timeframe models.Timeframe

	mu            sync.Mutex
	state         slotState
	busy          bool
	cooldownUntil time.Time
	backoff       *backoff.ExponentialBackOff
}

// tryAcquire claims the slot for one tick. A slot still busy from the
// previous tick or cooling down refuses the claim.
func (s *slot) tryAcquire(now time.Time) (ok, cooling bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false, false
	}
	if now.Before(s.cooldownUntil) {
		return false, true
	}
	s.busy = true
	s.state = stateFetching
	return true, false
}

func (s *slot) release() {
	s.mu.Lock()
	s.busy = false
	s.state = stateIdle
	s.mu.Unlock()
}

func (s *slot) setState(state slotState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// enterCooldown schedules the next allowed attempt and returns the wait.
func (s *slot) enterCooldown(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	wait := s.backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = s.backoff.MaxInterval
	}
	s.state = stateCooldown
	s.cooldownUntil = now.Add(wait)
	return wait
}

func (s *slot) resetBackoff() {
	s.mu.Lock()
	s.backoff.Reset()
	s.mu.Unlock()
}

// Generator owns the generation loop and its worker pool.
type Generator struct {
	cfg      *config.Config
	source   market.CandleSource
	signals  store.SignalStore
	registry *indicators.Registry
	detector *regime.Detector
	combiner *combiner.Combiner
	levels   *levels.Calculator
	bus      *events.Bus
	metrics  *monitoring.Metrics
	clock    session.Clock
	logger   zerolog.Logger

	slots    []*slot
	poolSize int
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(
	cfg *config.Config,
	source market.CandleSource,
	signals store.SignalStore,
	registry *indicators.Registry,
	detector *regime.Detector,
	comb *combiner.Combiner,
	calc *levels.Calculator,
	bus *events.Bus,
	metrics *monitoring.Metrics,
	clock session.Clock,
	logger zerolog.Logger,
) *Generator {
	var slots []*slot
	for _, symbol := range cfg.EngineConfig.Symbols {
		for _, tf := range cfg.EngineConfig.Timeframes {
			slots = append(slots, &slot{
				symbol:    symbol,
				timeframe: models.ParseTimeframe(tf),
				state:     stateIdle,
				backoff:   newSlotBackoff(cfg),
			})
		}
	}

	poolSize := cfg.GeneratorConfig.WorkerPoolSize
	if poolSize <= 0 || poolSize > len(slots) {
		poolSize = len(slots)
	}
	if poolSize == 0 {
		poolSize = 1
	}

	return &Generator{
		cfg:      cfg,
		source:   source,
		signals:  signals,
		registry: registry,
		detector: detector,
		combiner: comb,
		levels:   calc,
		bus:      bus,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
		slots:    slots,
		poolSize: poolSize,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func newSlotBackoff(cfg *config.Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.GeneratorConfig.CooldownBaseSeconds) * time.Second
	b.MaxInterval = time.Duration(cfg.GeneratorConfig.CooldownMaxSeconds) * time.Second
	b.MaxElapsedTime = 0 // never give up, the cap bounds each wait
	b.Reset()
	return b
}

// Run blocks until Stop is called or ctx is cancelled, ticking at the
// configured cadence.
func (g *Generator) Run(ctx context.Context) {
	defer close(g.doneChan)

	ticker := time.NewTicker(g.cfg.GeneratorPeriod())
	defer ticker.Stop()

	g.logger.Info().
		Int("slots", len(g.slots)).
		Int("workers", g.poolSize).
		Dur("period", g.cfg.GeneratorPeriod()).
		Msg("generator started")

	g.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			g.logger.Info().Msg("generator stopped by context")
			return
		case <-g.stopChan:
			g.logger.Info().Msg("generator stopped")
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

// Stop terminates the loop at the next safe point.
func (g *Generator) Stop() {
	close(g.stopChan)
	<-g.doneChan
}

// tick dispatches every eligible slot onto the bounded worker pool and waits
// for the pool to drain.
func (g *Generator) tick(ctx context.Context) {
	g.metrics.GeneratorTicks.Inc()
	now := g.clock.Now()

	sem := make(chan struct{}, g.poolSize)
	var wg sync.WaitGroup
	for _, s := range g.slots {
		ok, cooling := s.tryAcquire(now)
		if !ok {
			if !cooling {
				g.metrics.TickOverruns.WithLabelValues(s.symbol, string(s.timeframe)).Inc()
				g.logger.Warn().
					Str("symbol", s.symbol).
					Str("timeframe", string(s.timeframe)).
					Msg("tick overrun, slot skipped")
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(s *slot) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.release()
			g.processSlot(ctx, s)
		}(s)
	}
	wg.Wait()
}

// processSlot runs one slot through fetch, evaluate and persist.
func (g *Generator) processSlot(ctx context.Context, s *slot) {
	started := time.Now()
	defer func() {
		g.metrics.EvaluationDuration.Observe(time.Since(started).Seconds())
	}()

	logger := g.logger.With().
		Str("symbol", s.symbol).
		Str("timeframe", string(s.timeframe)).
		Logger()

	candles, err := g.fetch(ctx, s)
	if err != nil {
		kind := models.ErrFetchFailed
		var fe *market.FetchError
		if errors.As(err, &fe) {
			kind = fe.Kind
		}
		g.metrics.FetchFailures.WithLabelValues(s.symbol, string(kind)).Inc()
		g.metrics.Cooldowns.WithLabelValues(s.symbol, string(s.timeframe)).Inc()
		wait := s.enterCooldown(g.clock.Now())
		logger.Warn().Err(err).Dur("cooldown", wait).Msg("fetch failed, slot cooling down")
		return
	}
	s.resetBackoff()

	candles = market.Normalize(candles)
	if len(candles) < g.cfg.EngineConfig.MinCandlesRequired {
		logger.Debug().Int("candles", len(candles)).Msg("window below minimum, skipping")
		return
	}

	s.setState(stateEvaluating)
	signal, emit := g.evaluate(ctx, s, candles, logger)
	if !emit {
		return
	}

	s.setState(statePersisting)
	g.persist(ctx, s, signal, logger)
}

func (g *Generator) fetch(ctx context.Context, s *slot) ([]models.Candle, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout())
	defer cancel()

	candles, err := g.source.Fetch(fetchCtx, s.symbol, s.timeframe, g.cfg.EngineConfig.CandleFetchLimit)
	if err != nil {
		return nil, market.Classify(fetchCtx, err)
	}
	return candles, nil
}

// evaluate runs C1 through C4 and assembles the Signal. The boolean reports
// whether the signal should be persisted.
func (g *Generator) evaluate(ctx context.Context, s *slot, candles []models.Candle, logger zerolog.Logger) (models.Signal, bool) {
	results := g.registry.EvaluateAll(candles, nil)
	marketRegime := g.detector.Detect(candles)
	decision := g.combiner.Combine(results, marketRegime)

	currentPrice := candles[len(candles)-1].Close
	atr := indicators.ATR(candles, 14)
	levelsResult := g.levels.Compute(currentPrice, atr, decision.Action)
	action := levelsResult.Action
	alerts := append(decision.Alerts, levelsResult.Alerts...)

	if action == models.ActionHold {
		logger.Debug().
			Float64("score", decision.TotalScore).
			Str("regime", string(marketRegime.Regime)).
			Msg("decision is HOLD, nothing to emit")
		return models.Signal{}, false
	}
	if decision.Confidence < g.cfg.EngineConfig.MinConfidenceToEmit {
		g.metrics.ConfidenceRejects.WithLabelValues(s.symbol, string(s.timeframe)).Inc()
		logger.Debug().
			Float64("confidence", decision.Confidence).
			Float64("floor", g.cfg.EngineConfig.MinConfidenceToEmit).
			Msg("confidence below emission floor")
		return models.Signal{}, false
	}
	now := g.clock.Now()
	signal := models.Signal{
		ID:              uuid.New().String(),
		Symbol:          s.symbol,
		Timeframe:       s.timeframe,
		Timestamp:       candles[len(candles)-1].Timestamp,
		CurrentPrice:    currentPrice,
		Action:          action,
		Confidence:      decision.Confidence,
		Strength:        decision.Strength,
		Levels:          levelsResult.Levels,
		CategoryScores:  decision.CategoryScores,
		TotalScore:      decision.TotalScore,
		NormalizedScore: decision.NormalizedScore,
		MarketRegime:    marketRegime,
		DynamicWeights:  decision.DynamicWeights,
		Reasoning:       decision.Reasoning,
		Alerts:          alerts,
		Status:          models.StatusActive,
		Performance: &models.SignalPerformance{
			Outcome:   models.OutcomePending,
			TargetHit: models.TargetHitNone,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(g.cfg.Expiry()),
	}

	if !g.reconcileActive(ctx, signal, logger) {
		return models.Signal{}, false
	}
	return signal, true
}

// reconcileActive enforces at most one ACTIVE signal per (symbol, timeframe).
// Inside the refresh window any live signal holds the slot and suppresses the
// new one. Past the window, an equivalent live signal (same action, confidence
// within epsilon) still suppresses; a materially different one is expired
// before the replacement is persisted, so the slot never carries two ACTIVEs.
func (g *Generator) reconcileActive(ctx context.Context, signal models.Signal, logger zerolog.Logger) bool {
	existing, err := g.signals.FindActiveBySlot(ctx, signal.Symbol, signal.Timeframe)
	if err != nil {
		g.metrics.StoreFailures.Inc()
		logger.Error().Err(err).Msg("active-signal lookup failed, emitting anyway")
		return true
	}
	if existing == nil {
		return true
	}

	age := g.clock.Now().Sub(existing.CreatedAt)
	epsilon := g.cfg.GeneratorConfig.ConfidenceEpsilon
	unchanged := existing.Action == signal.Action &&
		math.Abs(existing.Confidence-signal.Confidence) <= epsilon
	if age < g.cfg.RefreshInterval() || unchanged {
		g.metrics.DedupSkips.WithLabelValues(signal.Symbol, string(signal.Timeframe)).Inc()
		logger.Debug().
			Str("action", string(signal.Action)).
			Str("live_id", existing.ID).
			Msg("live signal holds the slot, skipped")
		return false
	}

	now := g.clock.Now()
	performance := models.SignalPerformance{
		Outcome:   models.OutcomePending,
		TargetHit: models.TargetHitNone,
		ExitPrice: signal.CurrentPrice,
		ExitTime:  &now,
		Remarks:   "superseded by a fresh signal",
	}
	err = g.signals.UpdateStatus(ctx, existing.ID, models.StatusExpired, performance)
	if err != nil && !errors.Is(err, store.ErrNotActive) {
		g.metrics.StoreFailures.Inc()
		logger.Error().Err(err).Msg("superseded signal not expired, emission skipped")
		return false
	}
	if err == nil {
		existing.Status = models.StatusExpired
		existing.Performance = &performance
		g.bus.PublishTerminated(*existing)
	}
	return true
}

func (g *Generator) persist(ctx context.Context, s *slot, signal models.Signal, logger zerolog.Logger) {
	inserted, err := g.signals.UpsertSignal(ctx, signal)
	if err != nil {
		g.metrics.StoreFailures.Inc()
		logger.Error().Err(err).Msg("signal persist failed, tick lost")
		return
	}
	if !inserted {
		logger.Debug().Msg("signal already persisted for this bar")
		return
	}

	g.metrics.SignalsEmitted.WithLabelValues(s.symbol, string(signal.Action)).Inc()
	g.bus.PublishCreated(signal)
	logger.Info().
		Str("id", signal.ID).
		Str("action", string(signal.Action)).
		Float64("confidence", signal.Confidence).
		Float64("entry", signal.Levels.Entry).
		Float64("stop", signal.Levels.StopLoss).
		Msg("signal created")
}
