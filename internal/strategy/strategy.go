// Package strategy defines the trading-strategy contract and the four
// concrete algorithms that plug into the engine: momentum breakout,
// VWAP mean reversion, opening range breakout and the time-boxed scalp.
package strategy

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"intraday-bot/internal/config"
	"intraday-bot/internal/marketdata"
	"intraday-bot/internal/models"
	"intraday-bot/internal/risk"
)

// ExitLevels are the protective levels computed for a new entry.
type ExitLevels struct {
	StopLoss float64
	Target1  float64
	Target2  float64
}

// Strategy is the contract every algorithm implements. Implementations
// must be fail-open to "no trade": GenerateSignals never panics and
// returns an empty slice on any internal failure.
type Strategy interface {
	// Name identifies the strategy in logs, signals and journal records.
	Name() string

	// Initialize binds the market data provider. It fails when the
	// provider cannot be reached, which aborts startup.
	Initialize(provider marketdata.Provider) error

	// ShouldGenerateSignals is true only inside the trading window with
	// no daily risk limit breached.
	ShouldGenerateSignals(now time.Time, state models.RiskState) bool

	// GenerateSignals evaluates the entry rules against the snapshot and
	// returns at most maxSignals proposals.
	GenerateSignals(snap models.MarketSnapshot, maxSignals int) []models.Signal

	// CalculatePositionSize converts a signal into a share quantity.
	// Zero means no trade.
	CalculatePositionSize(sig models.Signal, entryPrice float64) int

	// GetExitLevels computes the protective levels for an entry.
	GetExitLevels(sig models.Signal, entryPrice float64) ExitLevels

	// CheckExitConditions lets the strategy request an exit beyond the
	// engine's shared stop/target/time/trailing rules.
	CheckExitConditions(pos models.Position, price float64, now time.Time) (bool, models.CloseReason)

	// OnPositionClosed is invoked after the lifecycle manager finalizes
	// a close.
	OnPositionClosed(trade models.ClosedTrade)
}

// New constructs the strategy selected in the config.
func New(cfg *models.Config, gate *risk.Gate, log *zap.SugaredLogger) (Strategy, error) {
	c, err := newCore(cfg, gate, log)
	if err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case config.StrategyMomentum:
		return &MomentumBreakout{core: c, cfg: cfg.Momentum}, nil
	case config.StrategyVWAP:
		return &VWAPReversion{core: c, cfg: cfg.VWAP}, nil
	case config.StrategyOpeningRange:
		return newOpeningRange(c, cfg.OpeningRange), nil
	case config.StrategyScalp:
		return newScalp(c, cfg.Scalp)
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// core carries the pieces every strategy shares: the provider binding,
// the exchange-time trading window, sizing limits and the gate.
type core struct {
	name     string
	symbol   string
	tf       string
	lookback int
	limits   models.RiskConfig
	loc      *time.Location
	open     minuteOfDay
	close    minuteOfDay
	gate     *risk.Gate
	provider marketdata.Provider
	log      *zap.SugaredLogger
}

type minuteOfDay int

func parseMinute(v string) (minuteOfDay, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return minuteOfDay(t.Hour()*60 + t.Minute()), nil
}

func newCore(cfg *models.Config, gate *risk.Gate, log *zap.SugaredLogger) (core, error) {
	loc, err := time.LoadLocation(cfg.ExchangeTimeZone)
	if err != nil {
		return core{}, fmt.Errorf("load exchange time zone: %w", err)
	}
	open, err := parseMinute(cfg.Window.Open)
	if err != nil {
		return core{}, fmt.Errorf("parse window open: %w", err)
	}
	closeM, err := parseMinute(cfg.Window.Close)
	if err != nil {
		return core{}, fmt.Errorf("parse window close: %w", err)
	}
	return core{
		name:     cfg.Strategy,
		symbol:   cfg.Symbol,
		tf:       cfg.BarTimeframe,
		lookback: cfg.BarLookback,
		limits:   cfg.Risk,
		loc:      loc,
		open:     open,
		close:    closeM,
		gate:     gate,
		log:      log,
	}, nil
}

func (c *core) Name() string { return c.name }

func (c *core) Initialize(provider marketdata.Provider) error {
	if provider == nil {
		return fmt.Errorf("%s: nil market data provider", c.name)
	}
	if _, err := provider.GetQuote(c.symbol); err != nil {
		return fmt.Errorf("%s: market data provider unreachable: %w", c.name, err)
	}
	c.provider = provider
	return nil
}

// exchangeMinute converts now to the exchange zone and flattens it to a
// minute of day. All window comparisons go through this; wall-clock
// local time is never consulted.
func (c *core) exchangeMinute(now time.Time) minuteOfDay {
	t := now.In(c.loc)
	return minuteOfDay(t.Hour()*60 + t.Minute())
}

func (c *core) inWindow(now time.Time) bool {
	m := c.exchangeMinute(now)
	return m >= c.open && m < c.close
}

func (c *core) ShouldGenerateSignals(now time.Time, state models.RiskState) bool {
	return c.inWindow(now) && c.gate.WithinLimits(state)
}

// bars fetches the strategy's working window; any failure means no data
// this tick.
func (c *core) bars() ([]models.Bar, bool) {
	if c.provider == nil {
		return nil, false
	}
	bars, err := c.provider.GetBars(c.symbol, c.tf, c.lookback)
	if err != nil {
		c.log.Warnf("%s: no bars this tick: %v", c.name, err)
		return nil, false
	}
	return bars, true
}

// positionSize is the shared sizing rule: floor(risk budget / stop
// distance), capped by the notional limit. A non-positive stop distance
// yields zero, meaning no trade.
func (c *core) positionSize(entryPrice, stopPrice float64, dir models.Direction) int {
	dist := (entryPrice - stopPrice) * dir.Sign()
	if dist <= 0 || entryPrice <= 0 {
		return 0
	}
	qty := int(math.Floor(c.limits.RiskPerTrade / dist))
	if c.limits.MaxNotional > 0 {
		if maxQty := int(math.Floor(c.limits.MaxNotional / entryPrice)); qty > maxQty {
			qty = maxQty
		}
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}

// CheckExitConditions defaults to no opinion; the engine's shared exit
// rules still apply.
func (c *core) CheckExitConditions(models.Position, float64, time.Time) (bool, models.CloseReason) {
	return false, ""
}

// OnPositionClosed logs the result. Variants that keep per-session
// state override this.
func (c *core) OnPositionClosed(trade models.ClosedTrade) {
	c.log.Infof("%s: position %s closed (%s) pnl=%.2f", c.name, trade.PositionID, trade.Reason, trade.PnL)
}

func clampStrength(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
