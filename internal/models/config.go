package models

import "time"

// Config is the full bot configuration, decoded from JSON and validated
// by the config package before the engine is constructed.
type Config struct {
	BotID    string `json:"bot_id,omitempty"` // generated when empty
	Symbol   string `json:"symbol"`           // e.g. "SPY" or "BTCUSDT"
	Strategy string `json:"strategy"`         // momentum_breakout | vwap_reversion | opening_range | time_boxed_scalp

	ExchangeTimeZone   string  `json:"exchange_time_zone"` // trading-window checks always use this zone
	HeartbeatSec       int     `json:"heartbeat_sec"`      // pipeline tick interval
	BarTimeframe       string  `json:"bar_timeframe"`      // provider timeframe, e.g. "1m"
	BarLookback        int     `json:"bar_lookback"`       // bars fetched per tick
	ContractMultiplier float64 `json:"contract_multiplier"`

	DBPath string `json:"db_path"` // journal database directory

	Window  WindowConfig  `json:"window"`
	Risk    RiskConfig    `json:"risk"`
	Exit    ExitConfig    `json:"exit"`
	Binance BinanceConfig `json:"binance"`
	Log     LogConfig     `json:"log"`

	Momentum     MomentumConfig     `json:"momentum"`
	VWAP         VWAPConfig         `json:"vwap_reversion"`
	OpeningRange OpeningRangeConfig `json:"opening_range"`
	Scalp        ScalpConfig        `json:"scalp"`
}

// WindowConfig is the daily trading window in exchange time, "HH:MM".
type WindowConfig struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// RiskConfig holds the per-bot limits enforced by the entry gate plus
// the sizing budget.
type RiskConfig struct {
	MaxDailyLoss           float64 `json:"max_daily_loss"`
	MaxConsecutiveLosses   int     `json:"max_consecutive_losses"`
	MaxTradesPerDay        int     `json:"max_trades_per_day"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	RiskPerTrade           float64 `json:"risk_per_trade"` // dollar risk budget per position
	MaxNotional            float64 `json:"max_notional"`
	MinSignalStrength      float64 `json:"min_signal_strength"`
}

// ExitConfig parameterizes the shared exit state machine.
type ExitConfig struct {
	TimeStopMinutes     int     `json:"time_stop_minutes"`
	TrailingActivationR float64 `json:"trailing_activation_r"` // R-multiples of open profit before trailing arms
	TrailingDistanceR   float64 `json:"trailing_distance_r"`   // trail distance in R-multiples
}

// BinanceConfig selects the live data endpoints.
type BinanceConfig struct {
	APIURL  string `json:"api_url"`
	WSURL   string `json:"ws_url"`
	Testnet bool   `json:"testnet"`
}

// LogConfig configures zap output and lumberjack rotation.
type LogConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Output     string `json:"output"`      // "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // MB per file
	MaxBackups int    `json:"max_backups"` // rotated files kept
	MaxAge     int    `json:"max_age"`     // days
	Compress   bool   `json:"compress"`
}

// MomentumConfig parameterizes the momentum breakout strategy.
type MomentumConfig struct {
	MoveBars           int     `json:"move_bars"`           // bars the move is measured over
	MoveThreshold      float64 `json:"move_threshold"`      // fractional price change that counts as a breakout
	VolumeConfirmation float64 `json:"volume_confirmation"` // required multiple of average volume
	TrendFilter        bool    `json:"trend_filter"`        // require price on the EMA side of the move
	TrendEMAPeriod     int     `json:"trend_ema_period"`
	StopATRMult        float64 `json:"stop_atr_mult"`
	TargetATRMult      float64 `json:"target_atr_mult"`
}

// VWAPConfig parameterizes VWAP mean reversion.
type VWAPConfig struct {
	MinDistance float64 `json:"min_distance"` // fractional distance from VWAP to act on
	MaxDistance float64 `json:"max_distance"` // beyond this the move is momentum, not noise
	StopBuffer  float64 `json:"stop_buffer"`  // fractional stop distance past the entry extreme
}

// OpeningRangeConfig parameterizes the opening range breakout.
type OpeningRangeConfig struct {
	RangeMinutes      int     `json:"range_minutes"`
	MinRange          float64 `json:"min_range"`          // absolute minimum high-low span
	BreakoutThreshold float64 `json:"breakout_threshold"` // fraction beyond the range edge
	VolumeRatio       float64 `json:"volume_ratio"`
	FastEMAPeriod     int     `json:"fast_ema_period"`
	SlowEMAPeriod     int     `json:"slow_ema_period"`
	CooldownSec       int     `json:"cooldown_sec"` // re-entry cooldown after a signal
}

// ScalpConfig parameterizes the time-boxed scalp.
type ScalpConfig struct {
	WindowOpen  string  `json:"window_open"`  // "HH:MM" exchange time
	WindowClose string  `json:"window_close"` // latest entry time
	ExitBy      string  `json:"exit_by"`      // flat-if-not-losing time
	ProfitTick  float64 `json:"profit_tick"`  // absolute profit that exits, one tick
}

// Heartbeat returns the pipeline tick interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}
