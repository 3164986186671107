package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"intraday-bot/internal/models"
)

func testLimits() models.RiskConfig {
	return models.RiskConfig{
		MaxDailyLoss:           500,
		MaxConsecutiveLosses:   3,
		MaxTradesPerDay:        10,
		MaxConcurrentPositions: 2,
	}
}

func newTestGate() *Gate {
	return NewGate(testLimits(), zap.NewNop().Sugar())
}

func TestGateAllowsCleanState(t *testing.T) {
	ok, limit := newTestGate().AllowNewTrade(models.RiskState{})
	assert.True(t, ok)
	assert.Empty(t, limit)
}

// TestGateBoundaries exercises each threshold at one unit either side.
func TestGateBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		state     models.RiskState
		wantOK    bool
		wantLimit string
	}{
		{"daily loss just under", models.RiskState{DailyPnL: -499.99}, true, ""},
		{"daily loss at limit", models.RiskState{DailyPnL: -500}, false, LimitDailyLoss},
		{"daily loss past limit", models.RiskState{DailyPnL: -500.01}, false, LimitDailyLoss},
		{"daily gain at limit also halts", models.RiskState{DailyPnL: 500}, false, LimitDailyLoss},
		{"losses just under", models.RiskState{ConsecutiveLosses: 2}, true, ""},
		{"losses at limit", models.RiskState{ConsecutiveLosses: 3}, false, LimitConsecutiveLosses},
		{"losses past limit", models.RiskState{ConsecutiveLosses: 4}, false, LimitConsecutiveLosses},
		{"trades just under", models.RiskState{TradesToday: 9}, true, ""},
		{"trades at limit", models.RiskState{TradesToday: 10}, false, LimitTradesPerDay},
		{"positions just under", models.RiskState{ActivePositions: 1}, true, ""},
		{"positions at limit", models.RiskState{ActivePositions: 2}, false, LimitOpenPositions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, limit := newTestGate().AllowNewTrade(tt.state)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

// TestGateShortCircuits verifies that with several limits breached the
// reported limit is the first one in evaluation order.
func TestGateShortCircuits(t *testing.T) {
	state := models.RiskState{
		DailyPnL:          -1000,
		ConsecutiveLosses: 5,
		TradesToday:       20,
		ActivePositions:   5,
	}
	ok, limit := newTestGate().AllowNewTrade(state)
	assert.False(t, ok)
	assert.Equal(t, LimitDailyLoss, limit)
}

func TestGateIsReadOnly(t *testing.T) {
	state := models.RiskState{DailyPnL: -100, ConsecutiveLosses: 1, TradesToday: 4, ActivePositions: 1}
	before := state
	newTestGate().AllowNewTrade(state)
	assert.Equal(t, before, state, "gate must not mutate risk state")
}

func TestRiskStateApplyClose(t *testing.T) {
	var s models.RiskState
	s.ActivePositions = 3

	s.ApplyClose(-50)
	s.ApplyClose(-25)
	assert.Equal(t, 2, s.ConsecutiveLosses)
	assert.Equal(t, 2, s.TradesToday)
	assert.Equal(t, 1, s.ActivePositions)
	assert.InDelta(t, -75, s.DailyPnL, 1e-9)

	s.ApplyClose(10)
	assert.Equal(t, 0, s.ConsecutiveLosses, "one winning close resets the streak")

	// A scratch (zero) close counts as a loss for the streak.
	s.ApplyClose(0)
	assert.Equal(t, 1, s.ConsecutiveLosses)
}

func TestRiskStateResetForNewDay(t *testing.T) {
	s := models.RiskState{DailyPnL: -300, ConsecutiveLosses: 2, TradesToday: 7, ActivePositions: 1}
	s.ResetForNewDay()
	assert.Zero(t, s.DailyPnL)
	assert.Zero(t, s.ConsecutiveLosses)
	assert.Zero(t, s.TradesToday)
	assert.Equal(t, 1, s.ActivePositions, "overnight positions stay active across the reset")
}
