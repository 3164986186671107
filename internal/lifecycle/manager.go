// Package lifecycle owns every open position from fill to close. It is
// the only writer of position state; strategies and the engine see
// copies. Exit rules are evaluated in a fixed order on every tick, and
// shutdown force-closes whatever is still open.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"intraday-bot/internal/alert"
	"intraday-bot/internal/broker"
	"intraday-bot/internal/ident"
	"intraday-bot/internal/models"
	"intraday-bot/internal/persistence"
	"intraday-bot/internal/strategy"
)

// ErrUnknownPosition is returned when a position id is not live.
var ErrUnknownPosition = errors.New("unknown position")

// Manager tracks open positions and applies the exit rules. All methods
// are safe for concurrent use, though in practice the engine drives it
// from a single goroutine.
type Manager struct {
	mu sync.Mutex

	botID      string
	symbol     string
	multiplier float64
	exitCfg    models.ExitConfig

	broker  broker.Broker
	strat   strategy.Strategy
	repo    persistence.Repository
	alerter alert.Alerter
	log     *zap.SugaredLogger

	positions map[string]*models.Position
	seenIDs   map[string]struct{}
	closed    []models.ClosedTrade
	risk      models.RiskState
	lastPrice float64
}

// NewManager wires the lifecycle manager to its collaborators. repo and
// alerter may not be nil; pass the in-memory repository and NopAlerter
// in tests.
func NewManager(cfg *models.Config, b broker.Broker, strat strategy.Strategy,
	repo persistence.Repository, alerter alert.Alerter, log *zap.SugaredLogger) *Manager {
	mult := cfg.ContractMultiplier
	if mult <= 0 {
		mult = 1
	}
	return &Manager{
		botID:      cfg.BotID,
		symbol:     cfg.Symbol,
		multiplier: mult,
		exitCfg:    cfg.Exit,
		broker:     b,
		strat:      strat,
		repo:       repo,
		alerter:    alerter,
		log:        log,
		positions:  make(map[string]*models.Position),
		seenIDs:    make(map[string]struct{}),
	}
}

// RestoreRiskState seeds the risk counters from a previous session.
// Positions themselves are not persisted, so a saved ActivePositions
// count refers to positions that no longer exist after a restart; it is
// clamped to the live count here. Carrying the stale count would leave
// the concurrency limit occupied by phantoms with nothing left to
// decrement it, halting entries for good.
func (m *Manager) RestoreRiskState(state models.RiskState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.ActivePositions = len(m.positions)
	m.risk = state
}

// RiskState returns a copy of the current counters.
func (m *Manager) RiskState() models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.risk
}

// ResetForNewDay clears the daily risk counters and persists them.
func (m *Manager) ResetForNewDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risk.ResetForNewDay()
	m.persistRisk()
}

// OpenCount reports how many positions are not yet finalized.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// Positions returns copies of every live position, ordered by entry
// time. Mutating a copy has no effect on the manager's state.
func (m *Manager) Positions() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// ClosedTrades returns a copy of the session's finalized trades.
func (m *Manager) ClosedTrades() []models.ClosedTrade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ClosedTrade, len(m.closed))
	copy(out, m.closed)
	return out
}

// Open executes an entry command: places the order, confirms the fill
// and registers the position. The protective levels must already
// bracket the entry; a command that does not is a bug upstream and is
// rejected here rather than sent to the broker.
func (m *Manager) Open(cmd models.TradeCommand, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cmd.Quantity <= 0 {
		return fmt.Errorf("open rejected: quantity %d", cmd.Quantity)
	}
	sign := cmd.Signal.Direction.Sign()
	if (cmd.EntryPrice-cmd.StopLoss)*sign <= 0 || (cmd.Target-cmd.EntryPrice)*sign <= 0 {
		return fmt.Errorf("open rejected: levels do not bracket entry (stop=%.4f entry=%.4f target=%.4f dir=%s)",
			cmd.StopLoss, cmd.EntryPrice, cmd.Target, cmd.Signal.Direction)
	}

	side := broker.Buy
	if cmd.Signal.Direction == models.Short {
		side = broker.Sell
	}
	orderID, err := m.broker.PlaceOrder(m.symbol, side, cmd.Quantity, "MARKET")
	if err != nil {
		return fmt.Errorf("entry order failed: %w", err)
	}

	entryPrice := cmd.EntryPrice
	if ord, err := m.broker.GetOrderStatus(orderID); err == nil && ord.Status == broker.StatusFilled && ord.FillPrice > 0 {
		entryPrice = ord.FillPrice
	}

	pos := &models.Position{
		ID:           ident.NewPositionID(),
		Symbol:       m.symbol,
		Strategy:     cmd.Signal.Strategy,
		Direction:    cmd.Signal.Direction,
		EntryPrice:   entryPrice,
		Quantity:     cmd.Quantity,
		StopPrice:    cmd.StopLoss,
		TargetPrice:  cmd.Target,
		EntryTime:    now,
		Status:       models.PositionOpen,
		EntryOrderID: orderID,
	}
	if err := m.register(pos); err != nil {
		return err
	}

	m.risk.ActivePositions++
	m.persistRisk()
	m.log.Infof("opened %s %s %d @ %.4f (stop=%.4f target=%.4f id=%s)",
		pos.Direction, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.StopPrice, pos.TargetPrice, pos.ID)
	return nil
}

// register inserts the position, refusing any id seen before. Ids are
// never reused, even after a close.
func (m *Manager) register(pos *models.Position) error {
	if _, dup := m.seenIDs[pos.ID]; dup {
		return fmt.Errorf("duplicate position id %s", pos.ID)
	}
	m.seenIDs[pos.ID] = struct{}{}
	m.positions[pos.ID] = pos
	return nil
}

// EvaluateExits runs the shared exit rules against every live position.
// The rules are checked in a fixed order and the first breach wins:
// stop loss, then profit target, then time stop, then trailing stop.
// Trailing-stop adjustment is a side effect applied before the breach
// checks, never a replacement for them. Positions stuck in CLOSING are
// retried here as well.
func (m *Manager) EvaluateExits(snap models.MarketSnapshot, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPrice = snap.Price

	for _, pos := range m.ordered() {
		if pos.Status == models.PositionClosing {
			m.retryClose(pos, snap.Price, now)
			continue
		}

		m.adjustTrailing(pos, snap.Price)

		if hit, reason := m.exitReason(pos, snap.Price, now); hit {
			m.close(pos, snap.Price, reason, now)
		}
	}
}

// ordered returns live positions in deterministic evaluation order.
func (m *Manager) ordered() []*models.Position {
	out := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// adjustTrailing arms and tightens the trailing stop. The stop only
// ever moves in the position's favor; a price retreat never loosens it.
func (m *Manager) adjustTrailing(pos *models.Position, price float64) {
	if m.exitCfg.TrailingActivationR <= 0 || m.exitCfg.TrailingDistanceR <= 0 {
		return
	}
	r := pos.InitialRisk()
	if r <= 0 {
		return
	}
	sign := pos.Direction.Sign()
	openProfit := (price - pos.EntryPrice) * sign
	if openProfit < m.exitCfg.TrailingActivationR*r {
		return
	}
	candidate := price - sign*m.exitCfg.TrailingDistanceR*r
	if pos.TrailingStop == 0 || (candidate-pos.TrailingStop)*sign > 0 {
		if pos.TrailingStop == 0 {
			m.log.Infof("trailing stop armed for %s at %.4f", pos.ID, candidate)
		}
		pos.TrailingStop = candidate
	}
}

func (m *Manager) exitReason(pos *models.Position, price float64, now time.Time) (bool, models.CloseReason) {
	sign := pos.Direction.Sign()

	if (price-pos.StopPrice)*sign <= 0 {
		return true, models.CloseStopLoss
	}
	if (pos.TargetPrice-price)*sign <= 0 {
		return true, models.CloseProfitTarget
	}
	if m.exitCfg.TimeStopMinutes > 0 &&
		now.Sub(pos.EntryTime) >= time.Duration(m.exitCfg.TimeStopMinutes)*time.Minute {
		return true, models.CloseTimeStop
	}
	if pos.TrailingStop != 0 && (price-pos.TrailingStop)*sign <= 0 {
		return true, models.CloseTrailingStop
	}
	return m.strat.CheckExitConditions(*pos, price, now)
}

// close places the closing order. A broker failure leaves the position
// in CLOSING so the next tick retries; the position is never silently
// dropped.
func (m *Manager) close(pos *models.Position, price float64, reason models.CloseReason, now time.Time) {
	pos.Status = models.PositionClosing
	pos.CloseReason = reason

	side := broker.Sell
	if pos.Direction == models.Short {
		side = broker.Buy
	}
	orderID, err := m.broker.PlaceOrder(pos.Symbol, side, pos.Quantity, "MARKET")
	if err != nil {
		m.log.Warnf("close order for %s failed, will retry: %v", pos.ID, err)
		return
	}
	pos.CloseOrderID = orderID
	m.settle(pos, price, now)
}

// retryClose drives a CLOSING position forward: confirm an in-flight
// order or place a fresh one.
func (m *Manager) retryClose(pos *models.Position, price float64, now time.Time) {
	if pos.CloseOrderID == 0 {
		m.close(pos, price, pos.CloseReason, now)
		return
	}
	m.settle(pos, price, now)
}

// settle finalizes the position once its closing order has filled. A
// rejected order is re-placed on the next tick.
func (m *Manager) settle(pos *models.Position, price float64, now time.Time) {
	ord, err := m.broker.GetOrderStatus(pos.CloseOrderID)
	if err != nil {
		m.log.Warnf("close order %d status for %s unavailable: %v", pos.CloseOrderID, pos.ID, err)
		return
	}
	switch ord.Status {
	case broker.StatusFilled:
		exit := ord.FillPrice
		if exit <= 0 {
			exit = price
		}
		m.finalize(pos, exit, now)
	case broker.StatusRejected:
		m.log.Warnf("close order %d for %s rejected, re-placing", pos.CloseOrderID, pos.ID)
		pos.CloseOrderID = 0
	}
}

// finalize books the realized P&L, updates the risk counters, journals
// the trade and notifies the strategy. Journal and alert failures are
// logged but never block the close.
func (m *Manager) finalize(pos *models.Position, exitPrice float64, now time.Time) {
	pnl := (exitPrice - pos.EntryPrice) * float64(pos.Quantity) * m.multiplier * pos.Direction.Sign()

	trade := models.ClosedTrade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Direction:  pos.Direction,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  pos.EntryTime,
		ExitTime:   now,
		HoldTime:   now.Sub(pos.EntryTime),
		PnL:        pnl,
		Reason:     pos.CloseReason,
	}

	pos.Status = models.PositionClosed
	delete(m.positions, pos.ID)

	m.risk.ApplyClose(pnl)
	m.persistRisk()
	m.closed = append(m.closed, trade)

	m.strat.OnPositionClosed(trade)
	if err := m.repo.LogTradeExit(m.botID, trade); err != nil {
		m.log.Errorf("journaling trade %s failed: %v", trade.PositionID, err)
	}
	m.alerter.PositionClosed(m.botID, trade)

	m.log.Infof("closed %s %s %d @ %.4f pnl=%.2f reason=%s hold=%s",
		trade.Direction, trade.Symbol, trade.Quantity, trade.ExitPrice, trade.PnL, trade.Reason, trade.HoldTime)
}

// ClosePosition force-closes a single position by id, the manual
// flatten operation. The close follows the same retry machinery as a
// rule-driven exit.
func (m *Manager) ClosePosition(id string, reason models.CloseReason, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrUnknownPosition)
	}
	if pos.Status == models.PositionClosing {
		m.retryClose(pos, m.lastPrice, now)
		return nil
	}
	m.close(pos, m.lastPrice, reason, now)
	return nil
}

// CloseAll force-closes every live position with the given reason. Each
// position is attempted independently: one broker failure must not stop
// the liquidation of the rest. Positions whose close fails stay in
// CLOSING and are reported back to the caller.
func (m *Manager) CloseAll(reason models.CloseReason, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := 0
	for _, pos := range m.ordered() {
		if pos.Status != models.PositionClosing {
			pos.CloseReason = reason
		}
		if pos.CloseOrderID != 0 {
			m.settle(pos, m.lastPrice, now)
		} else {
			m.close(pos, m.lastPrice, pos.CloseReason, now)
		}
		if _, live := m.positions[pos.ID]; live {
			remaining++
		}
	}
	if remaining > 0 {
		m.log.Errorf("%d position(s) could not be closed during liquidation", remaining)
	}
	return remaining
}

func (m *Manager) persistRisk() {
	if err := m.repo.SaveRiskState(m.botID, m.risk); err != nil {
		m.log.Errorf("persisting risk state failed: %v", err)
	}
}
