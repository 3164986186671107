package persistence

import "intraday-bot/internal/models"

// BotRecord is the registration entry written once per bot at startup.
type BotRecord struct {
	BotID     string `json:"bot_id"`
	Symbol    string `json:"symbol"`
	Strategy  string `json:"strategy"`
	StartedAt int64  `json:"started_at"`
}

// Repository defines the interface for the trade journal and risk state
// persistence. It abstracts the underlying storage mechanism
// (e.g., BadgerDB, in-memory) from the rest of the application.
type Repository interface {
	// RegisterBot records the bot's identity and configuration at startup.
	RegisterBot(rec BotRecord) error

	// LogTradeExit appends a closed trade to the journal.
	LogTradeExit(botID string, trade models.ClosedTrade) error

	// ListTrades returns every journaled trade for the given bot,
	// in insertion order.
	ListTrades(botID string) ([]models.ClosedTrade, error)

	// SaveRiskState atomically saves the bot's risk counters.
	SaveRiskState(botID string, state models.RiskState) error

	// LoadRiskState loads the bot's risk counters.
	// If no state is found, it returns (nil, nil).
	LoadRiskState(botID string) (*models.RiskState, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
