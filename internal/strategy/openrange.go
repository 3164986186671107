package strategy

import (
	"time"

	"intraday-bot/internal/indicators"
	"intraday-bot/internal/models"
)

// OpeningRangeBreakout trades the break of the high/low band built in
// the first minutes of the session, with volume and trend confirmation
// and a fixed re-entry cooldown after every signal.
type OpeningRangeBreakout struct {
	core
	cfg models.OpeningRangeConfig

	lastSignalAt time.Time
	rangeDay     int // yearday the cached range belongs to
	rangeHigh    float64
	rangeLow     float64
	rangeReady   bool
}

func newOpeningRange(c core, cfg models.OpeningRangeConfig) *OpeningRangeBreakout {
	return &OpeningRangeBreakout{core: c, cfg: cfg}
}

func (s *OpeningRangeBreakout) GenerateSignals(snap models.MarketSnapshot, maxSignals int) []models.Signal {
	if maxSignals <= 0 {
		return nil
	}
	now := snap.Timestamp
	if !s.lastSignalAt.IsZero() && now.Sub(s.lastSignalAt) < time.Duration(s.cfg.CooldownSec)*time.Second {
		return nil
	}

	bars, ok := s.bars()
	if !ok || len(bars) == 0 {
		return nil
	}
	if !s.resolveRange(bars, now) {
		return nil
	}
	if s.rangeHigh-s.rangeLow < s.cfg.MinRange {
		return nil
	}

	var dir models.Direction
	switch {
	case snap.Price > s.rangeHigh*(1+s.cfg.BreakoutThreshold):
		dir = models.Long
	case snap.Price < s.rangeLow*(1-s.cfg.BreakoutThreshold):
		dir = models.Short
	default:
		return nil
	}

	avgVol, err := indicators.AverageVolume(bars[:len(bars)-1], min(20, len(bars)-1))
	if err != nil || avgVol <= 0 {
		return nil
	}
	volRatio := bars[len(bars)-1].Volume / avgVol
	if volRatio < s.cfg.VolumeRatio {
		return nil
	}

	fast, err1 := indicators.EMA(bars, s.cfg.FastEMAPeriod)
	slow, err2 := indicators.EMA(bars, s.cfg.SlowEMAPeriod)
	if err1 != nil || err2 != nil {
		return nil
	}
	if dir == models.Long && fast <= slow {
		return nil
	}
	if dir == models.Short && fast >= slow {
		return nil
	}

	// Stop at the far edge of the range; targets in R-multiples of it.
	var stop float64
	if dir == models.Long {
		stop = s.rangeLow
	} else {
		stop = s.rangeHigh
	}
	sign := dir.Sign()
	riskDist := (snap.Price - stop) * sign
	if riskDist <= 0 {
		return nil
	}
	target1 := snap.Price + sign*2*riskDist
	target2 := snap.Price + sign*3*riskDist

	// A confirmed breakout starts at 0.6 and climbs with excess volume.
	strength := clampStrength(0.6 + 0.2*(volRatio/s.cfg.VolumeRatio-1))

	s.lastSignalAt = now
	s.log.Infof("opening range breakout: range=[%.2f, %.2f] dir=%s volx=%.2f strength=%.2f",
		s.rangeLow, s.rangeHigh, dir, volRatio, strength)
	return []models.Signal{models.NewSignal(s.name, dir, strength, map[string]float64{
		models.MetaEntryPrice: snap.Price,
		models.MetaStopLoss:   stop,
		models.MetaTarget1:    target1,
		models.MetaTarget2:    target2,
		models.MetaRangeHigh:  s.rangeHigh,
		models.MetaRangeLow:   s.rangeLow,
	})}
}

// resolveRange computes (and caches per day) the high/low of the bars
// inside the opening window. The range is only usable once the window
// has fully elapsed.
func (s *OpeningRangeBreakout) resolveRange(bars []models.Bar, now time.Time) bool {
	local := now.In(s.loc)
	if s.rangeReady && s.rangeDay == local.YearDay() {
		return true
	}

	rangeEnd := s.open + minuteOfDay(s.cfg.RangeMinutes)
	if s.exchangeMinute(now) < rangeEnd {
		return false // window still forming
	}

	high, low := 0.0, 0.0
	found := false
	for _, b := range bars {
		bt := b.Time.In(s.loc)
		if bt.YearDay() != local.YearDay() {
			continue
		}
		m := minuteOfDay(bt.Hour()*60 + bt.Minute())
		if m < s.open || m >= rangeEnd {
			continue
		}
		if !found || b.High > high {
			high = b.High
		}
		if !found || b.Low < low {
			low = b.Low
		}
		found = true
	}
	if !found {
		return false
	}

	s.rangeHigh = high
	s.rangeLow = low
	s.rangeDay = local.YearDay()
	s.rangeReady = true
	return true
}

// SetRange pins the opening range directly, bypassing bar scanning.
// Used by tests and replay tooling.
func (s *OpeningRangeBreakout) SetRange(low, high float64, day time.Time) {
	s.rangeLow = low
	s.rangeHigh = high
	s.rangeDay = day.In(s.loc).YearDay()
	s.rangeReady = true
}

func (s *OpeningRangeBreakout) CalculatePositionSize(sig models.Signal, entryPrice float64) int {
	stop := sig.MetaOr(models.MetaStopLoss, 0)
	return s.positionSize(entryPrice, stop, sig.Direction)
}

func (s *OpeningRangeBreakout) GetExitLevels(sig models.Signal, entryPrice float64) ExitLevels {
	// The stop stays pinned to the range edge; only targets shift with
	// the fill.
	proposed := sig.MetaOr(models.MetaEntryPrice, entryPrice)
	shift := entryPrice - proposed
	return ExitLevels{
		StopLoss: sig.MetaOr(models.MetaStopLoss, 0),
		Target1:  sig.MetaOr(models.MetaTarget1, 0) + shift,
		Target2:  sig.MetaOr(models.MetaTarget2, 0) + shift,
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
