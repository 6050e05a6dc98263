package models

import "time"

// SignalAction is the five-way directional decision.
type SignalAction string

const (
	ActionStrongBuy  SignalAction = "STRONG_BUY"
	ActionBuy        SignalAction = "BUY"
	ActionHold       SignalAction = "HOLD"
	ActionSell       SignalAction = "SELL"
	ActionStrongSell SignalAction = "STRONG_SELL"
)

// IsBuy reports whether the action is in the long family.
func (a SignalAction) IsBuy() bool { return a == ActionBuy || a == ActionStrongBuy }

// IsSell reports whether the action is in the short family.
func (a SignalAction) IsSell() bool { return a == ActionSell || a == ActionStrongSell }

// DirectionSign returns +1 for the buy family, -1 for the sell family, 0 for HOLD.
func (a SignalAction) DirectionSign() float64 {
	switch {
	case a.IsBuy():
		return 1
	case a.IsSell():
		return -1
	default:
		return 0
	}
}

// SignalStatus is the lifecycle state of a signal. ACTIVE is the only mutable
// state; every other status is terminal and irreversible.
type SignalStatus string

const (
	StatusActive       SignalStatus = "ACTIVE"
	StatusHitTarget    SignalStatus = "HIT_TARGET"
	StatusHitSL        SignalStatus = "HIT_SL"
	StatusClosedProfit SignalStatus = "CLOSED_PROFIT"
	StatusClosedLoss   SignalStatus = "CLOSED_LOSS"
	StatusExpired      SignalStatus = "EXPIRED"
)

// IsTerminal reports whether the status is a lifecycle sink.
func (s SignalStatus) IsTerminal() bool { return s != StatusActive }

// TargetHit records which level closed the signal.
type TargetHit string

const (
	TargetHit1     TargetHit = "TARGET1"
	TargetHit2     TargetHit = "TARGET2"
	TargetHit3     TargetHit = "TARGET3"
	TargetHitSL    TargetHit = "STOPLOSS"
	TargetHitClose TargetHit = "MARKET_CLOSE"
	TargetHitNone  TargetHit = "NONE"
)

// Outcome is the realized result of a tracked signal.
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomePending Outcome = "PENDING"
)

// TradeLevels carries entry, protective stop and profit targets.
type TradeLevels struct {
	Entry           float64 `json:"entry"`
	StopLoss        float64 `json:"stop_loss"`
	Target1         float64 `json:"target1"`
	Target2         float64 `json:"target2"`
	Target3         float64 `json:"target3"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

// CategoryScore is the aggregated contribution of one indicator category.
type CategoryScore struct {
	Category         IndicatorCategory `json:"category"`
	WeightedScore    float64           `json:"weighted_score"`    // [-100, +100]
	AveragePower     float64           `json:"average_power"`     // [0.5, 1.0]
	ContributorCount int               `json:"contributor_count"`
	AgreementRatio   float64           `json:"agreement_ratio"` // [0, 1]
}

// SignalPerformance records the realized outcome of a signal.
type SignalPerformance struct {
	Outcome           Outcome    `json:"outcome"`
	ExitPrice         float64    `json:"exit_price,omitempty"`
	ExitTime          *time.Time `json:"exit_time,omitempty"`
	TargetHit         TargetHit  `json:"target_hit"`
	ProfitLoss        float64    `json:"profit_loss,omitempty"`
	ProfitLossPercent float64    `json:"profit_loss_percent,omitempty"`
	Remarks           string     `json:"remarks,omitempty"`
}

// Signal is a directional trading decision with levels and a lifecycle.
type Signal struct {
	ID              string                        `json:"id"`
	Symbol          string                        `json:"symbol"`
	Timeframe       Timeframe                     `json:"timeframe"`
	Timestamp       time.Time                     `json:"timestamp"`
	CurrentPrice    float64                       `json:"current_price"`
	Action          SignalAction                  `json:"action"`
	Confidence      float64                       `json:"confidence"` // [0, 100]
	Strength        Strength                      `json:"strength"`
	Levels          TradeLevels                   `json:"levels"`
	CategoryScores  []CategoryScore               `json:"category_scores"`
	TotalScore      float64                       `json:"total_score"`      // [-100, +100]
	NormalizedScore float64                       `json:"normalized_score"` // [0, 100]
	MarketRegime    MarketRegime                  `json:"market_regime"`
	DynamicWeights  map[IndicatorCategory]float64 `json:"dynamic_weights"`
	Reasoning       []string                      `json:"reasoning"`
	Alerts          []string                      `json:"alerts,omitempty"`
	Status          SignalStatus                  `json:"status"`
	Performance     *SignalPerformance            `json:"performance,omitempty"`
	CreatedAt       time.Time                     `json:"created_at"`
	ExpiresAt       time.Time                     `json:"expires_at"`
}

// EventKind classifies lifecycle events published on the event bus.
type EventKind string

const (
	EventCreated    EventKind = "CREATED"
	EventTerminated EventKind = "TERMINATED"
	EventExpired    EventKind = "EXPIRED"
)

// SignalEvent mirrors the signal record on creation and terminal transitions.
type SignalEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Signal    Signal    `json:"signal"`
}
