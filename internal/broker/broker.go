// Package broker defines the order-execution collaborator consumed by
// the lifecycle manager, and a deterministic paper implementation used
// in dry-run mode and tests.
package broker

import (
	"errors"
	"time"
)

// ErrUnknownOrder is returned when an order id has never been seen.
var ErrUnknownOrder = errors.New("unknown order")

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order status values.
const (
	StatusNew      = "NEW"
	StatusFilled   = "FILLED"
	StatusRejected = "REJECTED"
)

// Order is the broker's view of a placed order.
type Order struct {
	ID        int64
	Symbol    string
	Side      Side
	Quantity  int
	Type      string
	Status    string
	FillPrice float64
	FilledQty int
	PlacedAt  time.Time
}

// Broker is the consumed execution collaborator. Fill confirmation can
// be asynchronous; callers correlate fills back to positions by order
// id through GetOrderStatus.
type Broker interface {
	Connect() error
	Disconnect() error
	PlaceOrder(symbol string, side Side, quantity int, orderType string) (int64, error)
	GetOrderStatus(orderID int64) (*Order, error)
	GetAccountBalance() (float64, error)
}
