package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"intraday-bot/internal/alert"
	"intraday-bot/internal/broker"
	"intraday-bot/internal/marketdata"
	"intraday-bot/internal/models"
	"intraday-bot/internal/persistence"
	"intraday-bot/internal/strategy"
)

// mockBroker records orders and fills everything immediately at
// fillPrice, unless failPlace is set.
type mockBroker struct {
	nextID    int64
	orders    map[int64]*broker.Order
	fillPrice float64
	failPlace bool
	placed    int
}

func newMockBroker() *mockBroker {
	return &mockBroker{orders: make(map[int64]*broker.Order)}
}

func (b *mockBroker) Connect() error    { return nil }
func (b *mockBroker) Disconnect() error { return nil }

func (b *mockBroker) PlaceOrder(symbol string, side broker.Side, quantity int, orderType string) (int64, error) {
	if b.failPlace {
		return 0, errors.New("exchange unavailable")
	}
	b.nextID++
	b.placed++
	b.orders[b.nextID] = &broker.Order{
		ID:        b.nextID,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Type:      orderType,
		Status:    broker.StatusFilled,
		FillPrice: b.fillPrice,
		FilledQty: quantity,
		PlacedAt:  time.Now(),
	}
	return b.nextID, nil
}

func (b *mockBroker) GetOrderStatus(orderID int64) (*broker.Order, error) {
	ord, ok := b.orders[orderID]
	if !ok {
		return nil, broker.ErrUnknownOrder
	}
	cp := *ord
	return &cp, nil
}

func (b *mockBroker) GetAccountBalance() (float64, error) { return 100000, nil }

// stubStrategy satisfies the strategy interface with inert behavior and
// lets tests request a discretionary exit.
type stubStrategy struct {
	wantExit   bool
	exitReason models.CloseReason
	closedSeen []models.ClosedTrade
}

func (s *stubStrategy) Name() string                                           { return "stub" }
func (s *stubStrategy) Initialize(marketdata.Provider) error                   { return nil }
func (s *stubStrategy) ShouldGenerateSignals(time.Time, models.RiskState) bool { return true }
func (s *stubStrategy) GenerateSignals(models.MarketSnapshot, int) []models.Signal {
	return nil
}
func (s *stubStrategy) CalculatePositionSize(models.Signal, float64) int { return 1 }
func (s *stubStrategy) GetExitLevels(models.Signal, float64) strategy.ExitLevels {
	return strategy.ExitLevels{}
}
func (s *stubStrategy) CheckExitConditions(models.Position, float64, time.Time) (bool, models.CloseReason) {
	if s.wantExit {
		return true, s.exitReason
	}
	return false, ""
}
func (s *stubStrategy) OnPositionClosed(trade models.ClosedTrade) {
	s.closedSeen = append(s.closedSeen, trade)
}

type fixture struct {
	mgr    *Manager
	broker *mockBroker
	strat  *stubStrategy
	repo   persistence.Repository
	now    time.Time
}

func newFixture(t *testing.T, mult float64) *fixture {
	t.Helper()
	repo, err := persistence.NewInMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	cfg := &models.Config{
		BotID:              "bot-test",
		Symbol:             "BTCUSDT",
		ContractMultiplier: mult,
		Exit: models.ExitConfig{
			TimeStopMinutes:     120,
			TrailingActivationR: 1.0,
			TrailingDistanceR:   0.5,
		},
	}
	b := newMockBroker()
	s := &stubStrategy{}
	mgr := NewManager(cfg, b, s, repo, alert.NopAlerter{}, zap.NewNop().Sugar())
	return &fixture{
		mgr:    mgr,
		broker: b,
		strat:  s,
		repo:   repo,
		now:    time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
}

func longCmd(qty int, entry, stop, target float64) models.TradeCommand {
	return models.TradeCommand{
		Signal:     models.NewSignal("stub", models.Long, 0.8, nil),
		Quantity:   qty,
		EntryPrice: entry,
		StopLoss:   stop,
		Target:     target,
	}
}

func shortCmd(qty int, entry, stop, target float64) models.TradeCommand {
	return models.TradeCommand{
		Signal:     models.NewSignal("stub", models.Short, 0.8, nil),
		Quantity:   qty,
		EntryPrice: entry,
		StopLoss:   stop,
		Target:     target,
	}
}

func (f *fixture) tick(price float64, at time.Time) {
	f.mgr.EvaluateExits(models.MarketSnapshot{Price: price, Timestamp: at}, at)
}

func TestOpen_RegistersPosition(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00

	require.NoError(t, f.mgr.Open(longCmd(100, 50.00, 49.00, 52.00), f.now))

	assert.Equal(t, 1, f.mgr.OpenCount())
	positions := f.mgr.Positions()
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, models.PositionOpen, pos.Status)
	assert.Equal(t, 50.00, pos.EntryPrice)
	assert.Equal(t, 49.00, pos.StopPrice)
	assert.Equal(t, 52.00, pos.TargetPrice)
	assert.Zero(t, pos.TrailingStop)
	assert.Equal(t, 1, f.mgr.RiskState().ActivePositions)
}

func TestOpen_RejectsInvalidCommands(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00

	assert.Error(t, f.mgr.Open(longCmd(0, 50, 49, 52), f.now), "zero quantity")
	assert.Error(t, f.mgr.Open(longCmd(10, 50, 50.5, 52), f.now), "stop above long entry")
	assert.Error(t, f.mgr.Open(longCmd(10, 50, 49, 49.5), f.now), "target below long entry")
	assert.Error(t, f.mgr.Open(shortCmd(10, 50, 49, 48), f.now), "stop below short entry")
	assert.Equal(t, 0, f.mgr.OpenCount())
	assert.Equal(t, 0, f.broker.placed, "invalid commands must never reach the broker")
}

func TestStopLossExit(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(100, 50.00, 49.00, 52.00), f.now))

	f.broker.fillPrice = 48.90
	f.tick(48.90, f.now.Add(5*time.Minute))

	assert.Equal(t, 0, f.mgr.OpenCount())
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseStopLoss, trades[0].Reason)
	assert.InDelta(t, -110.0, trades[0].PnL, 1e-9)

	state := f.mgr.RiskState()
	assert.Equal(t, 0, state.ActivePositions)
	assert.Equal(t, 1, state.TradesToday)
	assert.Equal(t, 1, state.ConsecutiveLosses)
	assert.InDelta(t, -110.0, state.DailyPnL, 1e-9)
}

func TestProfitTargetBeatsTimeStop(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))

	// Both the target and the time stop are breached; the target is
	// checked first and must name the close.
	f.broker.fillPrice = 52.00
	f.tick(52.00, f.now.Add(3*time.Hour))

	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseProfitTarget, trades[0].Reason)
	assert.Equal(t, 0, f.mgr.RiskState().ConsecutiveLosses, "winner resets the loss streak")
}

func TestTimeStopExit(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))

	f.broker.fillPrice = 50.30
	f.tick(50.30, f.now.Add(119*time.Minute))
	assert.Equal(t, 1, f.mgr.OpenCount(), "one minute early, still open")

	f.tick(50.30, f.now.Add(120*time.Minute))
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseTimeStop, trades[0].Reason)
}

func TestTrailingStop_ArmTightenBreach(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	// Initial risk is 1.00: activation at 51.00, trail distance 0.50.
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 55.00), f.now))

	// Below activation: nothing arms.
	f.tick(50.80, f.now.Add(time.Minute))
	assert.Zero(t, f.mgr.Positions()[0].TrailingStop)

	// 51.20 is 1.2R of open profit: trailing arms at 51.20-0.50=50.70.
	f.tick(51.20, f.now.Add(2*time.Minute))
	require.Equal(t, 1, f.mgr.OpenCount())
	assert.InDelta(t, 50.70, f.mgr.Positions()[0].TrailingStop, 1e-9)

	// Retreat to 50.95: below activation again, the stop must not move.
	f.tick(50.95, f.now.Add(3*time.Minute))
	require.Equal(t, 1, f.mgr.OpenCount())
	assert.InDelta(t, 50.70, f.mgr.Positions()[0].TrailingStop, 1e-9)

	// New high tightens it; a later lower price may not loosen it.
	f.tick(51.60, f.now.Add(4*time.Minute))
	assert.InDelta(t, 51.10, f.mgr.Positions()[0].TrailingStop, 1e-9)
	f.tick(51.30, f.now.Add(5*time.Minute))
	require.Equal(t, 1, f.mgr.OpenCount())
	assert.InDelta(t, 51.10, f.mgr.Positions()[0].TrailingStop, 1e-9)

	// Breach.
	f.broker.fillPrice = 51.05
	f.tick(51.05, f.now.Add(6*time.Minute))
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseTrailingStop, trades[0].Reason)
	assert.True(t, trades[0].PnL > 0, "trailing exit locks in profit")
}

func TestTrailingAdjustmentDoesNotSkipStopCheck(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 55.00), f.now))

	f.tick(51.20, f.now.Add(time.Minute)) // arms trailing at 50.70

	// A gap straight through the original stop must still close as a
	// stop loss, not a trailing stop.
	f.broker.fillPrice = 48.50
	f.tick(48.50, f.now.Add(2*time.Minute))
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseStopLoss, trades[0].Reason)
}

func TestShortPnLUsesMultiplierAndSign(t *testing.T) {
	f := newFixture(t, 2)
	f.broker.fillPrice = 100.00
	require.NoError(t, f.mgr.Open(shortCmd(5, 100.00, 102.00, 95.00), f.now))

	f.broker.fillPrice = 95.00
	f.tick(95.00, f.now.Add(10*time.Minute))

	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseProfitTarget, trades[0].Reason)
	assert.InDelta(t, 50.0, trades[0].PnL, 1e-9) // (95-100)*5*2*(-1)
}

func TestFailedCloseRetriesNextTick(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))

	f.broker.failPlace = true
	f.tick(48.90, f.now.Add(time.Minute))

	require.Equal(t, 1, f.mgr.OpenCount(), "position must survive a failed close")
	pos := f.mgr.Positions()[0]
	assert.Equal(t, models.PositionClosing, pos.Status)
	assert.Equal(t, models.CloseStopLoss, pos.CloseReason)

	f.broker.failPlace = false
	f.broker.fillPrice = 48.85
	f.tick(48.85, f.now.Add(2*time.Minute))

	assert.Equal(t, 0, f.mgr.OpenCount())
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseStopLoss, trades[0].Reason)
	assert.Equal(t, 48.85, trades[0].ExitPrice)
}

func TestStrategyExitConsultedAfterSharedRules(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))

	f.strat.wantExit = true
	f.strat.exitReason = models.CloseTimeStop

	// Price sits inside the stop/target band, so only the strategy's
	// own rule can fire.
	f.broker.fillPrice = 50.50
	f.tick(50.50, f.now.Add(time.Minute))

	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseTimeStop, trades[0].Reason)
	require.Len(t, f.strat.closedSeen, 1, "on-close hook must run")
	assert.Equal(t, trades[0].PositionID, f.strat.closedSeen[0].PositionID)
}

func TestCloseAll_Shutdown(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))
	f.broker.fillPrice = 100.00
	require.NoError(t, f.mgr.Open(shortCmd(5, 100.00, 102.00, 95.00), f.now.Add(time.Second)))

	f.broker.fillPrice = 50.40
	remaining := f.mgr.CloseAll(models.CloseShutdown, f.now.Add(2*time.Minute))

	assert.Equal(t, 0, remaining)
	assert.Equal(t, 0, f.mgr.OpenCount())
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 2)
	for _, trade := range trades {
		assert.Equal(t, models.CloseShutdown, trade.Reason)
	}
	assert.Equal(t, 0, f.mgr.RiskState().ActivePositions)
}

func TestCloseAll_IndependentFailures(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now.Add(time.Second)))

	f.broker.failPlace = true
	remaining := f.mgr.CloseAll(models.CloseShutdown, f.now.Add(time.Minute))

	assert.Equal(t, 2, remaining, "failed closes are reported, not dropped")
	for _, pos := range f.mgr.Positions() {
		assert.Equal(t, models.PositionClosing, pos.Status)
		assert.Equal(t, models.CloseShutdown, pos.CloseReason)
	}

	// A later attempt completes the liquidation.
	f.broker.failPlace = false
	f.broker.fillPrice = 50.10
	remaining = f.mgr.CloseAll(models.CloseShutdown, f.now.Add(2*time.Minute))
	assert.Equal(t, 0, remaining)
	assert.Len(t, f.mgr.ClosedTrades(), 2)
}

func TestClosePositionByID(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))
	id := f.mgr.Positions()[0].ID

	assert.ErrorIs(t, f.mgr.ClosePosition("nope", models.CloseShutdown, f.now), ErrUnknownPosition)

	f.broker.fillPrice = 50.20
	require.NoError(t, f.mgr.ClosePosition(id, models.CloseShutdown, f.now.Add(time.Minute)))
	assert.Equal(t, 0, f.mgr.OpenCount())
	trades := f.mgr.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.CloseShutdown, trades[0].Reason)
	assert.Equal(t, 50.20, trades[0].ExitPrice)
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	f := newFixture(t, 1)

	pos := &models.Position{ID: "dup", Status: models.PositionOpen}
	require.NoError(t, f.mgr.register(pos))
	assert.Error(t, f.mgr.register(&models.Position{ID: "dup"}))

	// Ids are retired forever: closing does not free them for reuse.
	delete(f.mgr.positions, "dup")
	assert.Error(t, f.mgr.register(&models.Position{ID: "dup"}))
}

func TestPositionsReturnsCopies(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))

	snapshot := f.mgr.Positions()
	snapshot[0].StopPrice = 1.0

	assert.Equal(t, 49.00, f.mgr.Positions()[0].StopPrice)
}

func TestClosedTradesJournaled(t *testing.T) {
	f := newFixture(t, 1)
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))
	f.broker.fillPrice = 52.00
	f.tick(52.00, f.now.Add(time.Minute))

	journaled, err := f.repo.ListTrades("bot-test")
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, models.CloseProfitTarget, journaled[0].Reason)

	saved, err := f.repo.LoadRiskState("bot-test")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 1, saved.TradesToday)
}

// A saved ActivePositions count from a session that died holding a
// position is stale after restart: the position is gone and nothing
// would ever decrement the counter, blocking entries permanently once
// the concurrency limit is reached.
func TestRestoreRiskStateClampsActivePositions(t *testing.T) {
	f := newFixture(t, 1)

	f.mgr.RestoreRiskState(models.RiskState{
		DailyPnL:          -120.50,
		ConsecutiveLosses: 2,
		TradesToday:       3,
		ActivePositions:   1,
	})

	state := f.mgr.RiskState()
	assert.Equal(t, -120.50, state.DailyPnL, "daily counters must survive the restore")
	assert.Equal(t, 2, state.ConsecutiveLosses)
	assert.Equal(t, 3, state.TradesToday)
	assert.Zero(t, state.ActivePositions, "no live position backs the saved count")

	// Day rollover keeps ActivePositions untouched, so a phantom would
	// otherwise outlive even the daily reset.
	f.mgr.ResetForNewDay()
	assert.Zero(t, f.mgr.RiskState().ActivePositions)

	// A genuinely open position is still counted after a restore.
	f.broker.fillPrice = 50.00
	require.NoError(t, f.mgr.Open(longCmd(10, 50.00, 49.00, 52.00), f.now))
	f.mgr.RestoreRiskState(models.RiskState{ActivePositions: 5})
	assert.Equal(t, 1, f.mgr.RiskState().ActivePositions)
}
