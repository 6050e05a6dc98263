// Package monitoring exposes the engine's Prometheus metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and gauge the loops report into. A single
// instance is created at startup and shared.
type Metrics struct {
	GeneratorTicks     prometheus.Counter
	TickOverruns       *prometheus.CounterVec
	FetchFailures      *prometheus.CounterVec
	Cooldowns          *prometheus.CounterVec
	SignalsEmitted     *prometheus.CounterVec
	DedupSkips         *prometheus.CounterVec
	ConfidenceRejects  *prometheus.CounterVec
	TrackerTicks       prometheus.Counter
	Transitions        *prometheus.CounterVec
	StoreFailures      prometheus.Counter
	ClockUnknownHolds  *prometheus.CounterVec
	ActiveSignals      prometheus.Gauge
	EvaluationDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GeneratorTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_generator_ticks_total",
			Help: "Generator loop ticks.",
		}),
		TickOverruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_tick_overruns_total",
			Help: "Ticks skipped because the previous tick for the slot was still running.",
		}, []string{"symbol", "timeframe"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_fetch_failures_total",
			Help: "Candle fetch failures by error kind.",
		}, []string{"symbol", "kind"}),
		Cooldowns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_slot_cooldowns_total",
			Help: "Slot transitions into COOLDOWN.",
		}, []string{"symbol", "timeframe"}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_emitted_total",
			Help: "Signals persisted, by action.",
		}, []string{"symbol", "action"}),
		DedupSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_dedup_skips_total",
			Help: "Evaluations skipped by the duplicate-signal rule.",
		}, []string{"symbol", "timeframe"}),
		ConfidenceRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_confidence_rejects_total",
			Help: "Decisions below the emission confidence floor.",
		}, []string{"symbol", "timeframe"}),
		TrackerTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_tracker_ticks_total",
			Help: "Tracker loop ticks.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signal_transitions_total",
			Help: "Terminal signal transitions by status.",
		}, []string{"status"}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_store_failures_total",
			Help: "Signal store operations that failed.",
		}),
		ClockUnknownHolds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_clock_unknown_holds_total",
			Help: "Tracker holds caused by an unknown venue session.",
		}, []string{"symbol"}),
		ActiveSignals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signal_engine_active_signals",
			Help: "Signals currently in ACTIVE state.",
		}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_engine_evaluation_duration_seconds",
			Help:    "Duration of one full slot evaluation (fetch through persist).",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewDefault registers against the default global registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
