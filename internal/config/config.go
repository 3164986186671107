package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"intraday-bot/internal/models"
)

// Known strategy names accepted in the "strategy" field.
const (
	StrategyMomentum     = "momentum_breakout"
	StrategyVWAP         = "vwap_reversion"
	StrategyOpeningRange = "opening_range"
	StrategyScalp        = "time_boxed_scalp"
)

// Load reads and decodes the JSON config at path, applies defaults and
// validates it. A config error is fatal to startup by design: the engine
// must not run with a half-specified risk policy.
func Load(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.ExchangeTimeZone == "" {
		cfg.ExchangeTimeZone = "America/New_York"
	}
	if cfg.HeartbeatSec <= 0 {
		cfg.HeartbeatSec = 5
	}
	if cfg.BarTimeframe == "" {
		cfg.BarTimeframe = "1m"
	}
	if cfg.BarLookback <= 0 {
		cfg.BarLookback = 50
	}
	if cfg.ContractMultiplier <= 0 {
		cfg.ContractMultiplier = 1
	}
	if cfg.Window.Open == "" {
		cfg.Window.Open = "09:30"
	}
	if cfg.Window.Close == "" {
		cfg.Window.Close = "15:55"
	}
	if cfg.Exit.TimeStopMinutes <= 0 {
		cfg.Exit.TimeStopMinutes = 120
	}
	if cfg.OpeningRange.CooldownSec <= 0 {
		cfg.OpeningRange.CooldownSec = 300
	}
	if cfg.Scalp.ProfitTick <= 0 {
		cfg.Scalp.ProfitTick = 0.01
	}
	if cfg.Binance.WSURL == "" {
		if cfg.Binance.Testnet {
			cfg.Binance.WSURL = "wss://stream.binancefuture.com"
		} else {
			cfg.Binance.WSURL = "wss://stream.binance.com:9443"
		}
	}
	if cfg.Binance.APIURL == "" && cfg.Binance.Testnet {
		cfg.Binance.APIURL = "https://testnet.binance.vision"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/journal"
	}
}

// Validate rejects configs the engine cannot safely run with.
func Validate(cfg *models.Config) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	switch cfg.Strategy {
	case StrategyMomentum, StrategyVWAP, StrategyOpeningRange, StrategyScalp:
	case "":
		return fmt.Errorf("config: strategy is required")
	default:
		return fmt.Errorf("config: unknown strategy %q", cfg.Strategy)
	}

	if _, err := time.LoadLocation(cfg.ExchangeTimeZone); err != nil {
		return fmt.Errorf("config: invalid exchange_time_zone %q: %w", cfg.ExchangeTimeZone, err)
	}
	for _, w := range []struct{ name, v string }{
		{"window.open", cfg.Window.Open},
		{"window.close", cfg.Window.Close},
	} {
		if _, err := time.Parse("15:04", w.v); err != nil {
			return fmt.Errorf("config: %s must be HH:MM, got %q", w.name, w.v)
		}
	}

	r := cfg.Risk
	if r.MaxDailyLoss <= 0 {
		return fmt.Errorf("config: risk.max_daily_loss must be positive")
	}
	if r.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("config: risk.max_consecutive_losses must be positive")
	}
	if r.MaxTradesPerDay <= 0 {
		return fmt.Errorf("config: risk.max_trades_per_day must be positive")
	}
	if r.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("config: risk.max_concurrent_positions must be positive")
	}
	if r.RiskPerTrade <= 0 {
		return fmt.Errorf("config: risk.risk_per_trade must be positive")
	}
	if r.MinSignalStrength < 0 || r.MinSignalStrength > 1 {
		return fmt.Errorf("config: risk.min_signal_strength must be in [0,1]")
	}

	if cfg.Exit.TrailingDistanceR < 0 || cfg.Exit.TrailingActivationR < 0 {
		return fmt.Errorf("config: exit trailing parameters must not be negative")
	}

	return validateStrategy(cfg)
}

func validateStrategy(cfg *models.Config) error {
	switch cfg.Strategy {
	case StrategyMomentum:
		m := cfg.Momentum
		if m.MoveBars <= 0 || m.MoveThreshold <= 0 {
			return fmt.Errorf("config: momentum.move_bars and momentum.move_threshold must be positive")
		}
		if m.VolumeConfirmation <= 0 {
			return fmt.Errorf("config: momentum.volume_confirmation must be positive")
		}
		if m.TrendFilter && m.TrendEMAPeriod <= 0 {
			return fmt.Errorf("config: momentum.trend_ema_period required when trend_filter is on")
		}
		if m.StopATRMult <= 0 || m.TargetATRMult <= 0 {
			return fmt.Errorf("config: momentum ATR multiples must be positive")
		}
	case StrategyVWAP:
		v := cfg.VWAP
		if v.MinDistance <= 0 || v.MaxDistance <= v.MinDistance {
			return fmt.Errorf("config: vwap_reversion requires 0 < min_distance < max_distance")
		}
		if v.StopBuffer <= 0 {
			return fmt.Errorf("config: vwap_reversion.stop_buffer must be positive")
		}
	case StrategyOpeningRange:
		o := cfg.OpeningRange
		if o.RangeMinutes <= 0 {
			return fmt.Errorf("config: opening_range.range_minutes must be positive")
		}
		if o.BreakoutThreshold <= 0 {
			return fmt.Errorf("config: opening_range.breakout_threshold must be positive")
		}
		if o.FastEMAPeriod <= 0 || o.SlowEMAPeriod <= o.FastEMAPeriod {
			return fmt.Errorf("config: opening_range EMA periods must satisfy 0 < fast < slow")
		}
	case StrategyScalp:
		s := cfg.Scalp
		for _, w := range []struct{ name, v string }{
			{"scalp.window_open", s.WindowOpen},
			{"scalp.window_close", s.WindowClose},
			{"scalp.exit_by", s.ExitBy},
		} {
			if _, err := time.Parse("15:04", w.v); err != nil {
				return fmt.Errorf("config: %s must be HH:MM, got %q", w.name, w.v)
			}
		}
	}
	return nil
}
