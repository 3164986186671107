package strategy

import (
	"fmt"
	"time"

	"intraday-bot/internal/models"
)

// catastrophe stop for the scalp: the strategy has no price-based stop
// of its own, but every position still needs a protective level.
const scalpStopFraction = 0.05

// TimeBoxedScalp buys a single share unconditionally inside a fixed
// morning window and exits on one tick of profit, or at a fixed
// late-window time if the position is not losing.
type TimeBoxedScalp struct {
	core
	cfg models.ScalpConfig

	entryOpen  minuteOfDay
	entryClose minuteOfDay
	exitBy     minuteOfDay
}

func newScalp(c core, cfg models.ScalpConfig) (*TimeBoxedScalp, error) {
	open, err := parseMinute(cfg.WindowOpen)
	if err != nil {
		return nil, fmt.Errorf("scalp window_open: %w", err)
	}
	closeM, err := parseMinute(cfg.WindowClose)
	if err != nil {
		return nil, fmt.Errorf("scalp window_close: %w", err)
	}
	exitBy, err := parseMinute(cfg.ExitBy)
	if err != nil {
		return nil, fmt.Errorf("scalp exit_by: %w", err)
	}
	return &TimeBoxedScalp{core: c, cfg: cfg, entryOpen: open, entryClose: closeM, exitBy: exitBy}, nil
}

// ShouldGenerateSignals narrows the session window to the scalp's own
// entry window.
func (s *TimeBoxedScalp) ShouldGenerateSignals(now time.Time, state models.RiskState) bool {
	m := s.exchangeMinute(now)
	return m >= s.entryOpen && m < s.entryClose && s.gate.WithinLimits(state)
}

func (s *TimeBoxedScalp) GenerateSignals(snap models.MarketSnapshot, maxSignals int) []models.Signal {
	if maxSignals <= 0 || snap.Price <= 0 {
		return nil
	}
	// Unconditional single entry; maxSignals already accounts for any
	// open position.
	return []models.Signal{models.NewSignal(s.name, models.Long, 1.0, map[string]float64{
		models.MetaEntryPrice: snap.Price,
		models.MetaStopLoss:   snap.Price * (1 - scalpStopFraction),
		models.MetaTarget1:    snap.Price + s.cfg.ProfitTick,
		models.MetaTarget2:    snap.Price + 2*s.cfg.ProfitTick,
	})}
}

// CalculatePositionSize is always one share for the scalp.
func (s *TimeBoxedScalp) CalculatePositionSize(sig models.Signal, entryPrice float64) int {
	if entryPrice <= 0 {
		return 0
	}
	return 1
}

func (s *TimeBoxedScalp) GetExitLevels(sig models.Signal, entryPrice float64) ExitLevels {
	return ExitLevels{
		StopLoss: entryPrice * (1 - scalpStopFraction),
		Target1:  entryPrice + s.cfg.ProfitTick,
		Target2:  entryPrice + 2*s.cfg.ProfitTick,
	}
}

// CheckExitConditions flattens at the late-window time stop, but only
// when the position is not losing; a losing scalp keeps waiting for the
// tick back.
func (s *TimeBoxedScalp) CheckExitConditions(pos models.Position, price float64, now time.Time) (bool, models.CloseReason) {
	if s.exchangeMinute(now) < s.exitBy {
		return false, ""
	}
	if price >= pos.EntryPrice {
		return true, models.CloseTimeStop
	}
	return false, ""
}
