package models

import "time"

// Metadata keys set by the strategies. Values are prices unless noted.
const (
	MetaEntryPrice = "entry_price"
	MetaStopLoss   = "stop_loss"
	MetaTarget1    = "target_1"
	MetaTarget2    = "target_2"
	MetaVWAP       = "vwap"
	MetaRangeHigh  = "range_high"
	MetaRangeLow   = "range_low"
)

// Signal is an immutable proposal to trade, produced by a strategy.
// Strength must reach the configured minimum before the engine will act
// on it.
type Signal struct {
	Strategy  string
	Direction Direction
	Strength  float64
	CreatedAt time.Time
	metadata  map[string]float64
}

// NewSignal timestamps the signal and copies the metadata so later edits
// by the caller cannot leak in.
func NewSignal(strategy string, dir Direction, strength float64, meta map[string]float64) Signal {
	m := make(map[string]float64, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	return Signal{
		Strategy:  strategy,
		Direction: dir,
		Strength:  strength,
		CreatedAt: time.Now(),
		metadata:  m,
	}
}

// Meta returns a metadata value and whether it was set.
func (s Signal) Meta(key string) (float64, bool) {
	v, ok := s.metadata[key]
	return v, ok
}

// MetaOr returns a metadata value, falling back to def when unset.
func (s Signal) MetaOr(key string, def float64) float64 {
	if v, ok := s.metadata[key]; ok {
		return v
	}
	return def
}
