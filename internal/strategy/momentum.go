package strategy

import (
	"math"

	"intraday-bot/internal/indicators"
	"intraday-bot/internal/models"
)

// MomentumBreakout trades fast directional moves: a price change over
// the last few bars beyond a threshold, confirmed by volume and
// optionally filtered by the EMA trend.
type MomentumBreakout struct {
	core
	cfg models.MomentumConfig
}

func (s *MomentumBreakout) GenerateSignals(snap models.MarketSnapshot, maxSignals int) []models.Signal {
	if maxSignals <= 0 {
		return nil
	}
	bars, ok := s.bars()
	if !ok || len(bars) <= s.cfg.MoveBars {
		return nil
	}

	last := bars[len(bars)-1]
	ref := bars[len(bars)-1-s.cfg.MoveBars]
	if ref.Close <= 0 {
		return nil
	}
	move := (last.Close - ref.Close) / ref.Close
	if math.Abs(move) < s.cfg.MoveThreshold {
		return nil
	}

	avgVol, err := indicators.AverageVolume(bars[:len(bars)-1], min(20, len(bars)-1))
	if err != nil || avgVol <= 0 {
		return nil
	}
	volRatio := last.Volume / avgVol
	if volRatio < s.cfg.VolumeConfirmation {
		return nil
	}

	dir := models.Long
	if move < 0 {
		dir = models.Short
	}

	if s.cfg.TrendFilter {
		ema, err := indicators.EMA(bars, s.cfg.TrendEMAPeriod)
		if err != nil {
			return nil
		}
		if dir == models.Long && snap.Price < ema {
			return nil
		}
		if dir == models.Short && snap.Price > ema {
			return nil
		}
	}

	atr, err := indicators.ATR(bars, 14)
	if err != nil || atr <= 0 {
		return nil
	}

	sign := dir.Sign()
	stop := snap.Price - sign*s.cfg.StopATRMult*atr
	target1 := snap.Price + sign*s.cfg.TargetATRMult*atr
	target2 := snap.Price + sign*2*s.cfg.TargetATRMult*atr

	// Strength grows with how far the move and volume exceed their
	// thresholds; a bare trigger scores 0.5.
	strength := clampStrength(0.5 +
		0.25*(math.Abs(move)/s.cfg.MoveThreshold-1) +
		0.1*(volRatio/s.cfg.VolumeConfirmation-1))

	s.log.Infof("momentum breakout: move=%.4f volx=%.2f dir=%s strength=%.2f", move, volRatio, dir, strength)
	return []models.Signal{models.NewSignal(s.name, dir, strength, map[string]float64{
		models.MetaEntryPrice: snap.Price,
		models.MetaStopLoss:   stop,
		models.MetaTarget1:    target1,
		models.MetaTarget2:    target2,
	})}
}

func (s *MomentumBreakout) CalculatePositionSize(sig models.Signal, entryPrice float64) int {
	stop := sig.MetaOr(models.MetaStopLoss, 0)
	return s.positionSize(entryPrice, stop, sig.Direction)
}

func (s *MomentumBreakout) GetExitLevels(sig models.Signal, entryPrice float64) ExitLevels {
	return exitLevelsFromMeta(sig, entryPrice)
}

// exitLevelsFromMeta lifts the levels a signal already carries,
// translating them relative to the actual entry price when it drifted
// from the proposed one.
func exitLevelsFromMeta(sig models.Signal, entryPrice float64) ExitLevels {
	proposed := sig.MetaOr(models.MetaEntryPrice, entryPrice)
	shift := entryPrice - proposed
	return ExitLevels{
		StopLoss: sig.MetaOr(models.MetaStopLoss, 0) + shift,
		Target1:  sig.MetaOr(models.MetaTarget1, 0) + shift,
		Target2:  sig.MetaOr(models.MetaTarget2, 0) + shift,
	}
}
