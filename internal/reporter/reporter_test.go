package reporter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"intraday-bot/internal/models"
)

func sessionTrades() []models.ClosedTrade {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	mk := func(i int, pnl float64, reason models.CloseReason) models.ClosedTrade {
		entry := base.Add(time.Duration(i) * time.Hour)
		exit := entry.Add(30 * time.Minute)
		return models.ClosedTrade{
			PositionID: string(rune('a' + i)),
			Symbol:     "BTCUSDT",
			Direction:  models.Long,
			Quantity:   10,
			EntryPrice: 100,
			ExitPrice:  100 + pnl/10,
			EntryTime:  entry,
			ExitTime:   exit,
			HoldTime:   exit.Sub(entry),
			PnL:        pnl,
			Reason:     reason,
		}
	}
	return []models.ClosedTrade{
		mk(0, 50, models.CloseProfitTarget),
		mk(1, -30, models.CloseStopLoss),
		mk(2, -20, models.CloseStopLoss),
		mk(3, 80, models.CloseTrailingStop),
	}
}

func TestCalculate(t *testing.T) {
	m := Calculate(sessionTrades())

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	assert.InDelta(t, 80.0, m.TotalPnL, 1e-9)
	assert.InDelta(t, 65.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -25.0, m.AvgLoss, 1e-9)
	assert.InDelta(t, 130.0/50.0, m.ProfitFactor, 1e-9)
	// Equity path 50, 20, 0, 80: worst decline is 50 down to 0.
	assert.InDelta(t, 50.0, m.MaxDrawdown, 1e-9)
	assert.Equal(t, 30*time.Minute, m.AvgHold)
	assert.Equal(t, 2, m.ByReason[models.CloseStopLoss])
	assert.Equal(t, 1, m.ByReason[models.CloseProfitTarget])
	assert.Equal(t, 1, m.ByReason[models.CloseTrailingStop])
}

func TestCalculate_Empty(t *testing.T) {
	m := Calculate(nil)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.MaxDrawdown)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, "bot-1", "BTCUSDT", "momentum_breakout", sessionTrades())

	out := buf.String()
	assert.Contains(t, out, "Session Report")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "Win rate")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "STOP_LOSS")

	buf.Reset()
	Render(&buf, "bot-1", "BTCUSDT", "momentum_breakout", nil)
	assert.Contains(t, buf.String(), "Trades")
}
