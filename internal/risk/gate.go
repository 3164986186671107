// Package risk gates new entries against the per-bot limits. The gate
// only ever reads RiskState; every mutation happens in the lifecycle
// manager on position close.
package risk

import (
	"math"

	"go.uber.org/zap"

	"intraday-bot/internal/models"
)

// Limit names, logged and alerted verbatim when a gate check trips.
const (
	LimitDailyLoss         = "max_daily_loss"
	LimitConsecutiveLosses = "max_consecutive_losses"
	LimitTradesPerDay      = "max_trades_per_day"
	LimitOpenPositions     = "max_concurrent_positions"
)

// Gate evaluates the four entry limits. Evaluation is O(1) and
// side-effect-free apart from logging the limit that tripped.
type Gate struct {
	limits models.RiskConfig
	log    *zap.SugaredLogger
}

// NewGate builds a gate over a validated limit set.
func NewGate(limits models.RiskConfig, log *zap.SugaredLogger) *Gate {
	return &Gate{limits: limits, log: log}
}

// Check reports whether a new entry may proceed. The checks
// short-circuit: the returned limit names the first one that failed, and
// is empty when the trade is allowed. Check never logs; strategies poll
// it every tick.
func (g *Gate) Check(state models.RiskState) (bool, string) {
	if math.Abs(state.DailyPnL) >= g.limits.MaxDailyLoss {
		return false, LimitDailyLoss
	}
	if state.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses {
		return false, LimitConsecutiveLosses
	}
	if state.TradesToday >= g.limits.MaxTradesPerDay {
		return false, LimitTradesPerDay
	}
	if state.ActivePositions >= g.limits.MaxConcurrentPositions {
		return false, LimitOpenPositions
	}
	return true, ""
}

// AllowNewTrade is Check plus the observability requirement: a denial is
// logged with the specific limit that tripped.
func (g *Gate) AllowNewTrade(state models.RiskState) (bool, string) {
	ok, limit := g.Check(state)
	if !ok {
		g.log.Warnf("entry denied by %s: daily_pnl=%.2f losses_in_a_row=%d trades_today=%d open_positions=%d",
			limit, state.DailyPnL, state.ConsecutiveLosses, state.TradesToday, state.ActivePositions)
	}
	return ok, limit
}

// WithinLimits is the boolean view used by strategies deciding whether
// signal generation is worth attempting at all.
func (g *Gate) WithinLimits(state models.RiskState) bool {
	ok, _ := g.Check(state)
	return ok
}
