// Package indicators provides pure functions over bounded bar windows.
// All functions return an error when the window is too short; callers
// treat that as "no data this tick", never as a reason to trade.
package indicators

import (
	"fmt"
	"math"

	"intraday-bot/internal/models"
)

// SMA is the simple moving average of closes over the last period bars.
func SMA(bars []models.Bar, period int) (float64, error) {
	if err := checkWindow(len(bars), period, period); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), nil
}

// EMA is the exponential moving average of closes, seeded with the SMA
// of the first period bars.
func EMA(bars []models.Bar, period int) (float64, error) {
	if err := checkWindow(len(bars), period, period); err != nil {
		return 0, err
	}
	multiplier := 2.0 / float64(period+1)

	ema := 0.0
	for i := 0; i < period; i++ {
		ema += bars[i].Close
	}
	ema /= float64(period)

	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close-ema)*multiplier + ema
	}
	return ema, nil
}

// ATR is Wilder's average true range over the last period bars.
func ATR(bars []models.Bar, period int) (float64, error) {
	if err := checkWindow(len(bars), period, period+1); err != nil {
		return 0, err
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1]))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
	}
	atr /= float64(period)

	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr, nil
}

// RSI is the relative strength index over the last period bars, in
// [0,100]. All-gain windows return 100, all-loss windows 0.
func RSI(bars []models.Bar, period int) (float64, error) {
	if err := checkWindow(len(bars), period, period+1); err != nil {
		return 0, err
	}
	var gains, losses float64
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := gains / losses
	return 100 - 100/(1+rs), nil
}

// VWAP is the volume-weighted average of typical prices over the whole
// window. With zero total volume it falls back to the last close.
func VWAP(bars []models.Bar) (float64, error) {
	if len(bars) == 0 {
		return 0, fmt.Errorf("vwap: empty window")
	}
	var pv, vol float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return bars[len(bars)-1].Close, nil
	}
	return pv / vol, nil
}

// AverageVolume is the mean bar volume over the last period bars.
func AverageVolume(bars []models.Bar, period int) (float64, error) {
	if err := checkWindow(len(bars), period, period); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Volume
	}
	return sum / float64(period), nil
}

// PivotPoints are the classic floor-trader levels from a prior session.
type PivotPoints struct {
	Pivot float64
	R1    float64
	R2    float64
	S1    float64
	S2    float64
}

// Pivots derives pivot levels from the high/low/close of the window.
func Pivots(bars []models.Bar) (PivotPoints, error) {
	if len(bars) == 0 {
		return PivotPoints{}, fmt.Errorf("pivots: empty window")
	}
	high := bars[0].High
	low := bars[0].Low
	for _, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	closeV := bars[len(bars)-1].Close

	p := (high + low + closeV) / 3
	return PivotPoints{
		Pivot: p,
		R1:    2*p - low,
		R2:    p + (high - low),
		S1:    2*p - high,
		S2:    p - (high - low),
	}, nil
}

func trueRange(cur, prev models.Bar) float64 {
	a := cur.High - cur.Low
	b := math.Abs(cur.High - prev.Close)
	c := math.Abs(cur.Low - prev.Close)
	return math.Max(a, math.Max(b, c))
}

func checkWindow(have, period, need int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if have < need {
		return fmt.Errorf("not enough bars: need %d, got %d", need, have)
	}
	return nil
}
