// Package levels derives entry, stop-loss and target prices from the current
// price, the ATR and the signal action.
package levels

import (
	"math"

	"index-signal-engine/internal/models"
)

// Calculator computes trade levels. Stop distance is the larger of
// stopMultiplier times ATR and minStopPercent of price, so a dead-flat ATR
// still yields a usable stop. A computed risk-reward ratio below
// riskRewardFloor raises an alert on the result.
type Calculator struct {
	stopMultiplier  float64
	minStopPercent  float64
	riskRewardFloor float64
}

func NewCalculator(stopMultiplier, minStopPercent, riskRewardFloor float64) *Calculator {
	if stopMultiplier <= 0 {
		stopMultiplier = 1.5
	}
	if minStopPercent <= 0 {
		minStopPercent = 0.005
	}
	if riskRewardFloor <= 0 {
		riskRewardFloor = 1.0
	}
	return &Calculator{
		stopMultiplier:  stopMultiplier,
		minStopPercent:  minStopPercent,
		riskRewardFloor: riskRewardFloor,
	}
}

// Result carries the computed levels plus the possibly-downgraded action and
// any alert raised during computation.
type Result struct {
	Levels models.TradeLevels
	Action models.SignalAction
	Alerts []string
}

// Compute builds levels for a market entry at currentPrice. HOLD actions and
// degenerate inputs yield zero levels; a degenerate price downgrades the
// action to HOLD with an alert.
func (c *Calculator) Compute(currentPrice, atr float64, action models.SignalAction) Result {
	if action == models.ActionHold {
		return Result{Action: models.ActionHold}
	}
	if currentPrice <= 0 || math.IsNaN(currentPrice) || math.IsNaN(atr) {
		return Result{
			Action: models.ActionHold,
			Alerts: []string{"degenerate price input, signal downgraded to HOLD"},
		}
	}

	stopDistance := math.Max(c.stopMultiplier*atr, c.minStopPercent*currentPrice)

	var alerts []string
	if atr <= 0 {
		alerts = append(alerts, "ATR unavailable, stop distance from percent floor")
	}

	entry := currentPrice
	levels := models.TradeLevels{Entry: entry}
	if action.IsBuy() {
		levels.StopLoss = entry - stopDistance
		levels.Target1 = entry + stopDistance
		levels.Target2 = entry + 2*stopDistance
		levels.Target3 = entry + 3*stopDistance
	} else {
		levels.StopLoss = entry + stopDistance
		levels.Target1 = entry - stopDistance
		levels.Target2 = entry - 2*stopDistance
		levels.Target3 = entry - 3*stopDistance
	}
	levels.RiskRewardRatio = math.Abs(levels.Target1-entry) / math.Abs(entry-levels.StopLoss)
	if levels.RiskRewardRatio < c.riskRewardFloor {
		alerts = append(alerts, "risk reward below the configured floor")
	}

	if !Valid(levels, action) {
		// Stop distance exceeded the price itself on the sell side, or the
		// inputs produced a non-monotone ladder.
		return Result{
			Action: models.ActionHold,
			Alerts: append(alerts, "level invariant violated, signal downgraded to HOLD"),
		}
	}
	return Result{Levels: levels, Action: action, Alerts: alerts}
}

// Valid reports whether the level ladder is strictly monotone in the action's
// direction with a positive risk-reward ratio.
func Valid(l models.TradeLevels, action models.SignalAction) bool {
	if l.RiskRewardRatio <= 0 || math.IsNaN(l.RiskRewardRatio) {
		return false
	}
	if action.IsBuy() {
		return l.StopLoss > 0 && l.StopLoss < l.Entry &&
			l.Entry < l.Target1 && l.Target1 < l.Target2 && l.Target2 < l.Target3
	}
	if action.IsSell() {
		return l.Target3 > 0 && l.StopLoss > l.Entry &&
			l.Entry > l.Target1 && l.Target1 > l.Target2 && l.Target2 > l.Target3
	}
	return false
}
