package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrTicketNotFound   = errors.New("station ticket not found")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrMenuItemNotFound = errors.New("menu item not found")
)

// Store runs fn while holding an exclusive lock on the order row. Everything
// fn writes through tx commits together when fn returns nil and is rolled
// back otherwise.
type Store interface {
	WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, tx Tx, o *Order) error) error
}

// Tx is the set of mutations allowed while an order is locked.
type Tx interface {
	SaveOrder(ctx context.Context, o *Order) error

	ListItems(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error)
	// FindItemByLineKey returns nil, nil when no item has the line key.
	FindItemByLineKey(ctx context.Context, orderID uuid.UUID, lineKey string) (*OrderItem, error)
	// GetItem returns nil, nil when the item does not belong to the order.
	GetItem(ctx context.Context, orderID, itemID uuid.UUID) (*OrderItem, error)
	// ItemIDTaken reports whether any order already has an item with the id.
	ItemIDTaken(ctx context.Context, itemID uuid.UUID) (bool, error)
	CreateItem(ctx context.Context, item *OrderItem) error
	SaveItem(ctx context.Context, item *OrderItem) error

	ListTickets(ctx context.Context, orderID uuid.UUID) ([]*StationTicket, error)
	// GetTicket returns nil, nil when the ticket does not belong to the order.
	GetTicket(ctx context.Context, orderID, ticketID uuid.UUID) (*StationTicket, error)
	MaxTicketSequence(ctx context.Context, orderID uuid.UUID, station string) (int, error)
	CreateTicket(ctx context.Context, ticket *StationTicket) error
	SaveTicket(ctx context.Context, ticket *StationTicket) error
	// DeleteTickets detaches every item from its ticket and deletes all
	// tickets of the order, returning the deleted tickets.
	DeleteTickets(ctx context.Context, orderID uuid.UUID) ([]*StationTicket, error)

	EventReader
}

// EventReader reads the per-order event log in ascending sequence order.
type EventReader interface {
	EventsAfter(ctx context.Context, orderID uuid.UUID, after int64) ([]*OrderEvent, error)
}

// OrderReader reads the projected aggregate without taking the order lock.
// Results may be stale by the time they are used.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error)
	ListTickets(ctx context.Context, orderID uuid.UUID) ([]*StationTicket, error)
	EventReader
}

// OrderLister selects orders for background reconciliation.
type OrderLister interface {
	ListLaggingOrders(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// OrderListerFunc adapts a function to OrderLister.
type OrderListerFunc func(ctx context.Context, limit int) ([]uuid.UUID, error)

func (f OrderListerFunc) ListLaggingOrders(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return f(ctx, limit)
}
