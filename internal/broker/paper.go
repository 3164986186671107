package broker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PaperBroker fills every market order immediately at the current mark
// price. Order placement is serialized behind a mutex, matching the
// shared-connection policy of a real broker session.
type PaperBroker struct {
	mu        sync.Mutex
	connected bool
	balance   float64
	markPrice func() (float64, error)
	orders    map[int64]*Order
	nextID    int64
	log       *zap.SugaredLogger
}

// NewPaperBroker builds a paper broker. markPrice supplies the fill
// price for market orders, usually the provider's current quote.
func NewPaperBroker(balance float64, markPrice func() (float64, error), log *zap.SugaredLogger) *PaperBroker {
	return &PaperBroker{
		balance:   balance,
		markPrice: markPrice,
		orders:    make(map[int64]*Order),
		nextID:    1,
		log:       log,
	}
}

func (b *PaperBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.log.Info("paper broker connected")
	return nil
}

func (b *PaperBroker) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.log.Info("paper broker disconnected")
	return nil
}

// PlaceOrder fills at the mark price and books the order. A missing
// mark price rejects the order rather than inventing a fill.
func (b *PaperBroker) PlaceOrder(symbol string, side Side, quantity int, orderType string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return 0, fmt.Errorf("paper broker not connected")
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	price, err := b.markPrice()
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("no mark price for %s: %v", symbol, err)
	}

	id := b.nextID
	b.nextID++
	b.orders[id] = &Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Type:      orderType,
		Status:    StatusFilled,
		FillPrice: price,
		FilledQty: quantity,
		PlacedAt:  time.Now(),
	}

	notional := price * float64(quantity)
	if side == Buy {
		b.balance -= notional
	} else {
		b.balance += notional
	}

	b.log.Infof("paper fill: %s %d %s @ %.4f (order %d)", side, quantity, symbol, price, id)
	return id, nil
}

func (b *PaperBroker) GetOrderStatus(orderID int64) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrUnknownOrder)
	}
	cp := *o
	return &cp, nil
}

func (b *PaperBroker) GetAccountBalance() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}
