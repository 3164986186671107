package models

import "time"

// PositionStatus tracks a position through its lifecycle. A position
// never returns to an earlier status, and CLOSED is terminal.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionClosing PositionStatus = "CLOSING"
	PositionClosed  PositionStatus = "CLOSED"
)

// Position is an open holding. It is owned exclusively by the lifecycle
// manager once opened; strategies only ever see copies.
type Position struct {
	ID           string
	Symbol       string
	Strategy     string
	Direction    Direction
	EntryPrice   float64
	Quantity     int
	StopPrice    float64
	TargetPrice  float64
	TrailingStop float64 // 0 until the trailing stop activates
	EntryTime    time.Time
	Status       PositionStatus

	// EntryOrderID correlates the position back to the broker order that
	// opened it. CloseOrderID is set while a close is in flight.
	EntryOrderID int64
	CloseOrderID int64
	CloseReason  CloseReason
}

// InitialRisk is the entry-to-stop distance at open, the "1R" used for
// trailing-stop activation.
func (p *Position) InitialRisk() float64 {
	r := (p.EntryPrice - p.StopPrice) * p.Direction.Sign()
	if r < 0 {
		return 0
	}
	return r
}

// EffectiveStop returns the trailing stop when active, else the original
// stop price.
func (p *Position) EffectiveStop() float64 {
	if p.TrailingStop != 0 {
		return p.TrailingStop
	}
	return p.StopPrice
}

// UnrealizedPnL values the position at the given price with a contract
// multiplier of 1.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * float64(p.Quantity) * p.Direction.Sign()
}

// RiskState holds the per-bot counters read by the entry gate. It is
// reset at the start of each trading day and mutated only when a
// position closes.
type RiskState struct {
	DailyPnL          float64 `json:"daily_pnl"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	TradesToday       int     `json:"trades_today"`
	ActivePositions   int     `json:"active_positions"`
}

// ApplyClose books a realized P&L into the counters. Any profitable
// close resets the consecutive-loss streak; everything else extends it.
func (r *RiskState) ApplyClose(pnl float64) {
	r.DailyPnL += pnl
	r.TradesToday++
	if r.ActivePositions > 0 {
		r.ActivePositions--
	}
	if pnl > 0 {
		r.ConsecutiveLosses = 0
	} else {
		r.ConsecutiveLosses++
	}
}

// ResetForNewDay clears the daily counters. Open-position count survives:
// positions held overnight are still active.
func (r *RiskState) ResetForNewDay() {
	r.DailyPnL = 0
	r.ConsecutiveLosses = 0
	r.TradesToday = 0
}
