// Package marketdata supplies prices to the pipeline: a Provider
// abstraction over the venue's REST data, a live Binance implementation
// with a websocket price stream, and the Manager stage that publishes
// triggers on every heartbeat.
package marketdata

import "intraday-bot/internal/models"

// Provider is the consumed market-data collaborator. Any failure is
// treated by the core as "no data this tick"; the next tick retries.
type Provider interface {
	// GetBars returns up to limit bars of the given timeframe, oldest
	// first.
	GetBars(symbol, timeframe string, limit int) ([]models.Bar, error)

	// GetQuote returns the current top of book.
	GetQuote(symbol string) (models.Quote, error)
}
