package marketdata

import (
	"context"
	"time"

	"go.uber.org/zap"

	"intraday-bot/internal/models"
	"intraday-bot/internal/queue"
)

// Streamer is implemented by providers that also push prices over a
// persistent stream. The manager prefers stream prices over quotes when
// they are fresh.
type Streamer interface {
	StreamPrice() (price float64, at time.Time, ok bool)
}

// Manager is the first pipeline stage. Once per heartbeat it resolves
// the freshest price and publishes a trigger into the trigger queue. A
// tick with no obtainable price is skipped; the next heartbeat retries.
type Manager struct {
	provider  Provider
	symbol    string
	heartbeat time.Duration
	out       *queue.Slot[models.Trigger]
	log       *zap.SugaredLogger
}

// NewManager wires a manager to its trigger queue.
func NewManager(provider Provider, symbol string, heartbeat time.Duration, out *queue.Slot[models.Trigger], log *zap.SugaredLogger) *Manager {
	return &Manager{
		provider:  provider,
		symbol:    symbol,
		heartbeat: heartbeat,
		out:       out,
		log:       log,
	}
}

// Run publishes triggers until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("market data manager stopped")
			return
		case <-ticker.C:
			price, at, ok := m.resolvePrice()
			if !ok {
				continue
			}
			m.out.Put(models.Trigger{Price: price, Time: at})
		}
	}
}

// resolvePrice prefers a fresh stream price; stale or absent streams fall
// back to a REST quote.
func (m *Manager) resolvePrice() (float64, time.Time, bool) {
	if s, ok := m.provider.(Streamer); ok {
		if price, at, ok := s.StreamPrice(); ok && time.Since(at) < 3*m.heartbeat {
			return price, at, true
		}
	}

	quote, err := m.provider.GetQuote(m.symbol)
	if err != nil {
		m.log.Warnf("no price this tick: %v", err)
		return 0, time.Time{}, false
	}
	if quote.Last <= 0 {
		m.log.Warnf("no price this tick: quote last is %v", quote.Last)
		return 0, time.Time{}, false
	}
	return quote.Last, time.Now(), true
}
