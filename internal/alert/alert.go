// Package alert notifies on risk-limit breaches and position closes.
// Delivery is fire-and-forget: an alerter that cannot deliver swallows
// the failure, because alerting must never stall or crash trading.
package alert

import (
	"go.uber.org/zap"

	"intraday-bot/internal/models"
)

// Alerter is the consumed notification collaborator.
type Alerter interface {
	RiskLimitBreach(botID, limit string, state models.RiskState)
	PositionClosed(botID string, trade models.ClosedTrade)
}

// LogAlerter writes alerts to the structured log. It is the default
// sink and the fallback when no external channel is configured.
type LogAlerter struct {
	log *zap.SugaredLogger
}

// NewLogAlerter builds a log-backed alerter.
func NewLogAlerter(log *zap.SugaredLogger) *LogAlerter {
	return &LogAlerter{log: log}
}

func (a *LogAlerter) RiskLimitBreach(botID, limit string, state models.RiskState) {
	a.log.Warnf("ALERT [%s] risk limit breached: %s (daily_pnl=%.2f losses=%d trades=%d open=%d)",
		botID, limit, state.DailyPnL, state.ConsecutiveLosses, state.TradesToday, state.ActivePositions)
}

func (a *LogAlerter) PositionClosed(botID string, trade models.ClosedTrade) {
	a.log.Infof("ALERT [%s] position %s closed: %s %s %d @ %.4f -> %.4f pnl=%.2f reason=%s",
		botID, trade.PositionID, trade.Direction, trade.Symbol, trade.Quantity,
		trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.Reason)
}

// NopAlerter discards everything; used in tests.
type NopAlerter struct{}

func (NopAlerter) RiskLimitBreach(string, string, models.RiskState) {}
func (NopAlerter) PositionClosed(string, models.ClosedTrade)        {}
