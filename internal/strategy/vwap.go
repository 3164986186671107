package strategy

import (
	"math"

	"intraday-bot/internal/models"
)

// VWAPReversion fades stretched moves back toward VWAP: when price sits
// a configured distance away from VWAP (far enough to matter, near
// enough to still be noise), it enters in the reversion direction with
// VWAP itself as the target.
type VWAPReversion struct {
	core
	cfg models.VWAPConfig
}

func (s *VWAPReversion) GenerateSignals(snap models.MarketSnapshot, maxSignals int) []models.Signal {
	if maxSignals <= 0 {
		return nil
	}
	if snap.VWAP <= 0 || snap.Price <= 0 {
		return nil
	}

	dist := (snap.Price - snap.VWAP) / snap.VWAP
	abs := math.Abs(dist)
	if abs < s.cfg.MinDistance || abs > s.cfg.MaxDistance {
		return nil
	}

	// Price below VWAP reverts up, above reverts down.
	dir := models.Long
	if dist > 0 {
		dir = models.Short
	}
	sign := dir.Sign()

	stop := snap.Price * (1 - sign*s.cfg.StopBuffer)
	target1 := snap.VWAP
	// Runner target: half the reversion distance beyond VWAP.
	target2 := snap.VWAP + sign*math.Abs(snap.VWAP-snap.Price)/2

	// Strength scales linearly across the [min,max] distance band.
	strength := clampStrength(0.5 + 0.5*(abs-s.cfg.MinDistance)/(s.cfg.MaxDistance-s.cfg.MinDistance))

	s.log.Infof("vwap reversion: dist=%.4f dir=%s strength=%.2f target=%.4f", dist, dir, strength, target1)
	return []models.Signal{models.NewSignal(s.name, dir, strength, map[string]float64{
		models.MetaEntryPrice: snap.Price,
		models.MetaStopLoss:   stop,
		models.MetaTarget1:    target1,
		models.MetaTarget2:    target2,
		models.MetaVWAP:       snap.VWAP,
	})}
}

func (s *VWAPReversion) CalculatePositionSize(sig models.Signal, entryPrice float64) int {
	stop := sig.MetaOr(models.MetaStopLoss, 0)
	return s.positionSize(entryPrice, stop, sig.Direction)
}

func (s *VWAPReversion) GetExitLevels(sig models.Signal, entryPrice float64) ExitLevels {
	// The target stays pinned to VWAP: it is a level, not an offset from
	// the fill.
	levels := exitLevelsFromMeta(sig, entryPrice)
	if vwap, ok := sig.Meta(models.MetaVWAP); ok {
		levels.Target1 = vwap
	}
	return levels
}
