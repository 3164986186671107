package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"

	"intraday-bot/internal/models"
)

// badgerRepository is the BadgerDB implementation of the Repository.
type badgerRepository struct {
	db       *badger.DB
	tradeSeq uint64
}

// NewBadgerRepository creates and returns a new repository instance connected
// to a BadgerDB database at the given path.
func NewBadgerRepository(dbPath string) (Repository, error) {
	return open(badger.DefaultOptions(dbPath))
}

// NewInMemoryRepository returns a repository backed by an in-memory Badger
// instance. Nothing survives Close; intended for tests and dry runs.
func NewInMemoryRepository() (Repository, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (Repository, error) {
	// Badger's own logging is disabled to keep the app's logs clean.
	// Errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

func botKey(botID string) []byte {
	return []byte("bot/" + botID)
}

func riskKey(botID string) []byte {
	return []byte("risk/" + botID)
}

func tradePrefix(botID string) []byte {
	return []byte("trade/" + botID + "/")
}

// RegisterBot records the bot's identity under its own key, overwriting any
// previous registration for the same bot ID.
func (r *badgerRepository) RegisterBot(rec BotRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(botKey(rec.BotID), data)
	})
}

// LogTradeExit appends a closed trade under a monotonically increasing
// sequence key so that ListTrades iterates in insertion order.
func (r *badgerRepository) LogTradeExit(botID string, trade models.ClosedTrade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	seq := atomic.AddUint64(&r.tradeSeq, 1)
	key := append(tradePrefix(botID), []byte(fmt.Sprintf("%016x", seq))...)
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// ListTrades returns every journaled trade for the bot in insertion order.
func (r *badgerRepository) ListTrades(botID string) ([]models.ClosedTrade, error) {
	var trades []models.ClosedTrade

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := tradePrefix(botID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var trade models.ClosedTrade
				if err := json.Unmarshal(val, &trade); err != nil {
					return err
				}
				trades = append(trades, trade)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// SaveRiskState atomically saves the bot's risk counters.
func (r *badgerRepository) SaveRiskState(botID string, state models.RiskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(riskKey(botID), data)
	})
}

// LoadRiskState loads the bot's risk counters.
// If the key is not found, it returns (nil, nil) to indicate no saved state.
func (r *badgerRepository) LoadRiskState(botID string) (*models.RiskState, error) {
	var state models.RiskState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(riskKey(botID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("risk state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
