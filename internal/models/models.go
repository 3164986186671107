package models

import "time"

// Direction is the side of a trade or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// CloseReason names the condition that forced a position out.
// The reason string is logged verbatim so downstream monitoring can
// distinguish cause.
type CloseReason string

const (
	CloseStopLoss     CloseReason = "STOP_LOSS"
	CloseProfitTarget CloseReason = "PROFIT_TARGET"
	CloseTimeStop     CloseReason = "TIME_STOP"
	CloseTrailingStop CloseReason = "TRAILING_STOP"
	CloseShutdown     CloseReason = "SHUTDOWN"
)

// Bar is a single OHLCV bar returned by the market data provider.
type Bar struct {
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"time"`
}

// Quote is a top-of-book quote from the market data provider.
type Quote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

// Trigger is the unit published by the market data manager into the
// pipeline. It carries only the freshest price; everything else is
// recomputed by the snapshot stage.
type Trigger struct {
	Price float64
	Time  time.Time
}

// MarketSnapshot is the state-queue item consumed by the strategy stage.
// It is produced once per pipeline tick and superseded by the next one;
// the pipeline keeps no history. PortfolioDelta is a constant 0 for
// stock-only strategies (pass-through mode).
type MarketSnapshot struct {
	Price          float64
	VWAP           float64
	Volatility     float64
	Volume         float64
	Timestamp      time.Time
	PortfolioDelta float64
}

// TradeCommand instructs the execution stage to open a new position.
type TradeCommand struct {
	Signal     Signal
	Quantity   int
	EntryPrice float64
	StopLoss   float64
	Target     float64
	IssuedAt   time.Time
}

// TradeAction is the trade-action queue item. The snapshot rides along on
// every tick so the lifecycle manager can evaluate exits even when no
// entry was signaled.
type TradeAction struct {
	Snapshot MarketSnapshot
	Entry    *TradeCommand
}

// ClosedTrade is the archived record of a finished position.
type ClosedTrade struct {
	PositionID string        `json:"position_id"`
	Symbol     string        `json:"symbol"`
	Strategy   string        `json:"strategy"`
	Direction  Direction     `json:"direction"`
	Quantity   int           `json:"quantity"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	HoldTime   time.Duration `json:"hold_time"`
	PnL        float64       `json:"pnl"`
	Reason     CloseReason   `json:"reason"`
}
