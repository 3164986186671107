// Package engine runs the trading pipeline: market data ticks flow
// through the trigger queue into the snapshot stage, enriched snapshots
// flow through the state queue into the strategy stage, and trade
// actions flow through the action queue into the execution stage. Each
// queue holds a single item and replaces stale content, so a slow stage
// always wakes up to the freshest market state instead of a backlog.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"intraday-bot/internal/alert"
	"intraday-bot/internal/indicators"
	"intraday-bot/internal/lifecycle"
	"intraday-bot/internal/marketdata"
	"intraday-bot/internal/models"
	"intraday-bot/internal/queue"
	"intraday-bot/internal/risk"
	"intraday-bot/internal/strategy"
)

// Engine owns the pipeline goroutines and the shutdown sequence.
type Engine struct {
	cfg      *models.Config
	loc      *time.Location
	provider marketdata.Provider
	md       *marketdata.Manager
	strat    strategy.Strategy
	gate     *risk.Gate
	life     *lifecycle.Manager
	alerter  alert.Alerter
	log      *zap.SugaredLogger

	triggerQ *queue.Slot[models.Trigger]
	stateQ   *queue.Slot[models.MarketSnapshot]
	actionQ  *queue.Slot[models.TradeAction]

	tradingDay int // year*1000+yday of the last tick, for daily resets
}

// New assembles the pipeline. The config must already be validated.
func New(cfg *models.Config, provider marketdata.Provider, strat strategy.Strategy,
	gate *risk.Gate, life *lifecycle.Manager, alerter alert.Alerter, log *zap.SugaredLogger) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.ExchangeTimeZone)
	if err != nil {
		return nil, err
	}

	triggerQ := queue.NewSlot[models.Trigger]()
	return &Engine{
		cfg:      cfg,
		loc:      loc,
		provider: provider,
		md:       marketdata.NewManager(provider, cfg.Symbol, cfg.Heartbeat(), triggerQ, log.Named("marketdata")),
		strat:    strat,
		gate:     gate,
		life:     life,
		alerter:  alerter,
		log:      log,
		triggerQ: triggerQ,
		stateQ:   queue.NewSlot[models.MarketSnapshot](),
		actionQ:  queue.NewSlot[models.TradeAction](),
	}, nil
}

// Run drives the pipeline until ctx is cancelled, then force-closes
// every open position. The liquidation always runs, even when a stage
// exits uncleanly: no position may outlive the engine.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		e.md.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.snapshotStage(ctx)
	}()
	go func() {
		defer wg.Done()
		e.strategyStage(ctx)
	}()
	go func() {
		defer wg.Done()
		e.executionStage(ctx)
	}()
	wg.Wait()

	e.triggerQ.Close()
	e.stateQ.Close()
	e.actionQ.Close()

	if remaining := e.life.CloseAll(models.CloseShutdown, time.Now()); remaining > 0 {
		e.log.Errorf("shutdown liquidation left %d position(s) unconfirmed", remaining)
	}
	return nil
}

// snapshotStage consumes triggers, enriches each one into a full
// market snapshot and publishes it on the state queue.
func (e *Engine) snapshotStage(ctx context.Context) {
	timeout := e.cfg.Heartbeat()
	for {
		trigger, ok, err := e.triggerQ.Get(ctx, timeout)
		if err != nil {
			e.log.Info("snapshot stage stopped")
			return
		}
		if !ok {
			continue
		}
		e.stateQ.Put(e.buildSnapshot(trigger))
	}
}

// strategyStage consumes snapshots and publishes a trade action on
// every one. The action always carries the snapshot; an entry command
// rides along only when the strategy produced one, so the execution
// stage can evaluate exits even on signal-free ticks.
func (e *Engine) strategyStage(ctx context.Context) {
	timeout := e.cfg.Heartbeat()
	for {
		snap, ok, err := e.stateQ.Get(ctx, timeout)
		if err != nil {
			e.log.Info("strategy stage stopped")
			return
		}
		if !ok {
			continue
		}

		action := models.TradeAction{Snapshot: snap}
		if cmd := e.propose(snap, snap.Timestamp); cmd != nil {
			action.Entry = cmd
		}
		e.actionQ.Put(action)
	}
}

// buildSnapshot enriches the raw trigger with bar-derived context. Bar
// fetch failures degrade the snapshot rather than drop the tick: exits
// must still be evaluated against the trigger price.
func (e *Engine) buildSnapshot(trigger models.Trigger) models.MarketSnapshot {
	snap := models.MarketSnapshot{
		Price:          trigger.Price,
		Timestamp:      trigger.Time,
		PortfolioDelta: e.portfolioDelta(),
	}

	bars, err := e.provider.GetBars(e.cfg.Symbol, e.cfg.BarTimeframe, e.cfg.BarLookback)
	if err != nil {
		e.log.Warnf("snapshot degraded, bar fetch failed: %v", err)
		return snap
	}
	if len(bars) == 0 {
		return snap
	}

	if vwap, err := indicators.VWAP(bars); err == nil {
		snap.VWAP = vwap
	}
	if atr, err := indicators.ATR(bars, 14); err == nil {
		snap.Volatility = atr
	}
	snap.Volume = bars[len(bars)-1].Volume
	return snap
}

// portfolioDelta is the net signed exposure of the open positions in
// contract units.
func (e *Engine) portfolioDelta() float64 {
	var delta float64
	for _, pos := range e.life.Positions() {
		delta += float64(pos.Quantity) * pos.Direction.Sign()
	}
	return delta
}

// propose asks the strategy for entries and converts the strongest
// acceptable signal into a sized trade command. Strategy code is fenced
// with a recover: a panicking strategy loses its tick, not the process.
func (e *Engine) propose(snap models.MarketSnapshot, now time.Time) *models.TradeCommand {
	state := e.life.RiskState()
	if !e.strat.ShouldGenerateSignals(now, state) {
		return nil
	}

	capacity := e.cfg.Risk.MaxConcurrentPositions - e.life.OpenCount()
	if capacity <= 0 {
		return nil
	}

	signals := e.safeSignals(snap, capacity)
	for _, sig := range signals {
		if sig.Strength < e.cfg.Risk.MinSignalStrength {
			e.log.Debugf("signal below strength floor: %.2f < %.2f", sig.Strength, e.cfg.Risk.MinSignalStrength)
			continue
		}
		qty := e.strat.CalculatePositionSize(sig, snap.Price)
		if qty <= 0 {
			continue
		}
		levels := e.strat.GetExitLevels(sig, snap.Price)
		return &models.TradeCommand{
			Signal:     sig,
			Quantity:   qty,
			EntryPrice: snap.Price,
			StopLoss:   levels.StopLoss,
			Target:     levels.Target1,
			IssuedAt:   now,
		}
	}
	return nil
}

func (e *Engine) safeSignals(snap models.MarketSnapshot, maxSignals int) (signals []models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("strategy %s panicked, tick skipped: %v", e.strat.Name(), r)
			signals = nil
		}
	}()
	return e.strat.GenerateSignals(snap, maxSignals)
}

// executionStage consumes trade actions. Every action evaluates exits;
// entries additionally pass the risk gate immediately before the order
// is placed, so limits crossed since the signal was generated still
// block it.
func (e *Engine) executionStage(ctx context.Context) {
	timeout := e.cfg.Heartbeat()
	for {
		action, ok, err := e.actionQ.Get(ctx, timeout)
		if err != nil {
			e.log.Info("execution stage stopped")
			return
		}
		if !ok {
			continue
		}

		now := action.Snapshot.Timestamp
		if now.IsZero() {
			now = time.Now()
		}
		e.rollTradingDay(now)

		e.life.EvaluateExits(action.Snapshot, now)

		if action.Entry == nil {
			continue
		}
		state := e.life.RiskState()
		allowed, limit := e.gate.AllowNewTrade(state)
		if !allowed {
			e.alerter.RiskLimitBreach(e.cfg.BotID, limit, state)
			continue
		}
		if err := e.life.Open(*action.Entry, now); err != nil {
			e.log.Errorf("entry not executed: %v", err)
		}
	}
}

// rollTradingDay resets the daily risk counters on the first tick of a
// new exchange-timezone day.
func (e *Engine) rollTradingDay(now time.Time) {
	local := now.In(e.loc)
	day := local.Year()*1000 + local.YearDay()
	if e.tradingDay == 0 {
		e.tradingDay = day
		return
	}
	if day != e.tradingDay {
		e.log.Infof("new trading day %s, daily risk counters reset", local.Format("2006-01-02"))
		e.tradingDay = day
		e.life.ResetForNewDay()
	}
}
