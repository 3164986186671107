// Package reporter renders the end-of-session performance report from
// the journaled trades.
package reporter

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"intraday-bot/internal/models"
)

// Metrics holds the performance figures computed from a trade list.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent
	TotalPnL      float64
	AvgWin        float64
	AvgLoss       float64 // negative
	ProfitFactor  float64 // gross profit / gross loss, 0 when no losses
	MaxDrawdown   float64 // worst peak-to-trough of the cumulative P&L
	AvgHold       time.Duration
	ByReason      map[models.CloseReason]int
	Start         time.Time
	End           time.Time
}

// Calculate derives the session metrics from the closed trades.
func Calculate(trades []models.ClosedTrade) Metrics {
	m := Metrics{
		TotalTrades: len(trades),
		ByReason:    make(map[models.CloseReason]int),
	}
	if len(trades) == 0 {
		return m
	}

	var grossProfit, grossLoss float64
	var totalHold time.Duration
	for _, trade := range trades {
		m.TotalPnL += trade.PnL
		totalHold += trade.HoldTime
		m.ByReason[trade.Reason]++
		if trade.PnL > 0 {
			m.WinningTrades++
			grossProfit += trade.PnL
		} else {
			m.LosingTrades++
			grossLoss += trade.PnL
		}
		if m.Start.IsZero() || trade.EntryTime.Before(m.Start) {
			m.Start = trade.EntryTime
		}
		if trade.ExitTime.After(m.End) {
			m.End = trade.ExitTime
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	m.AvgHold = totalHold / time.Duration(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLoss / float64(m.LosingTrades)
	}
	if grossLoss != 0 {
		m.ProfitFactor = grossProfit / math.Abs(grossLoss)
	}
	m.MaxDrawdown = maxDrawdown(trades)
	return m
}

// maxDrawdown walks the cumulative P&L in exit order and returns the
// worst peak-to-trough decline, as a positive number.
func maxDrawdown(trades []models.ClosedTrade) float64 {
	ordered := make([]models.ClosedTrade, len(trades))
	copy(ordered, trades)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	var equity, peak, worst float64
	for _, trade := range ordered {
		equity += trade.PnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > worst {
			worst = dd
		}
	}
	return worst
}

// Render writes the full session report: a summary table followed by
// the trade-by-trade breakdown.
func Render(w io.Writer, botID, symbol, strategyName string, trades []models.ClosedTrade) {
	m := Calculate(trades)

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle("Session Report  %s  %s (%s)", botID, symbol, strategyName)
	summary.AppendRows([]table.Row{
		{"Trades", m.TotalTrades},
		{"Winners", m.WinningTrades},
		{"Losers", m.LosingTrades},
		{"Win rate", fmt.Sprintf("%.1f%%", m.WinRate)},
		{"Total P&L", fmt.Sprintf("%.2f", m.TotalPnL)},
		{"Avg win", fmt.Sprintf("%.2f", m.AvgWin)},
		{"Avg loss", fmt.Sprintf("%.2f", m.AvgLoss)},
		{"Profit factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Max drawdown", fmt.Sprintf("%.2f", m.MaxDrawdown)},
		{"Avg hold", m.AvgHold.Round(time.Second).String()},
	})
	for _, reason := range []models.CloseReason{
		models.CloseStopLoss, models.CloseProfitTarget, models.CloseTimeStop,
		models.CloseTrailingStop, models.CloseShutdown,
	} {
		if n := m.ByReason[reason]; n > 0 {
			summary.AppendRow(table.Row{"Exits: " + string(reason), n})
		}
	}
	summary.Render()

	if len(trades) == 0 {
		return
	}

	detail := table.NewWriter()
	detail.SetOutputMirror(w)
	detail.AppendHeader(table.Row{"#", "Dir", "Qty", "Entry", "Exit", "P&L", "Reason", "Hold"})
	for i, trade := range trades {
		detail.AppendRow(table.Row{
			i + 1,
			trade.Direction,
			trade.Quantity,
			fmt.Sprintf("%.4f", trade.EntryPrice),
			fmt.Sprintf("%.4f", trade.ExitPrice),
			fmt.Sprintf("%.2f", trade.PnL),
			trade.Reason,
			trade.HoldTime.Round(time.Second).String(),
		})
	}
	detail.Render()
}
