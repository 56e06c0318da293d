package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const appendAttempts = 5

var ErrDuplicateSequence = errors.New("event sequence already taken")

// Store persists orders, items, tickets and the event log in one SQL
// database. It implements order.Store, order.OrderReader and order.OrderLister.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  aqm.Logger
}

func New(db *sql.DB, dialect Dialect, logger aqm.Logger) *Store {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Migrate applies the dialect schema.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dialect.Schema == "" {
		return fmt.Errorf("%s dialect has no schema", s.dialect.Name)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("cannot apply %s schema: %w", s.dialect.Name, err)
	}
	s.logger.Debug("schema applied", "dialect", s.dialect.Name)
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stop closes the database. It satisfies the micro lifecycle.
func (s *Store) Stop(context.Context) error {
	return s.Close()
}

func (s *Store) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, tx order.Tx, o *order.Order) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	o, err := getOrder(ctx, tx, s.dialect, orderID, s.dialect.LockClause)
	if err != nil {
		return err
	}

	if err := fn(ctx, &sqlTx{tx: tx, d: s.dialect}, o); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit order %s: %w", orderID, err)
	}
	committed = true
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	o.EnsureID()
	if o.CreatedAt.IsZero() {
		o.BeforeCreate()
	}

	q := s.dialect.Rebind(`INSERT INTO orders (id, restaurant_id, table_number, status, ordered_at, bill_requested_at, paid_at, last_projected_sequence, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		o.ID.String(), o.RestaurantID, o.TableNumber, o.Status,
		nullMillis(o.OrderedAt), nullMillis(o.BillRequestedAt), nullMillis(o.PaidAt),
		o.LastProjectedSequence, toMillis(o.CreatedAt), toMillis(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, s.db, s.dialect, id, "")
}

// ListItems reads the order's items without locking the order.
func (s *Store) ListItems(ctx context.Context, orderID uuid.UUID) ([]*order.OrderItem, error) {
	return listItems(ctx, s.db, s.dialect, orderID)
}

// ListTickets reads the order's tickets without locking the order.
func (s *Store) ListTickets(ctx context.Context, orderID uuid.UUID) ([]*order.StationTicket, error) {
	return listTickets(ctx, s.db, s.dialect, orderID)
}

// AppendEvent adds ev to the order's log. A zero sequence is replaced by the
// next free one; an explicit sequence that is already taken fails with
// ErrDuplicateSequence.
func (s *Store) AppendEvent(ctx context.Context, ev *order.OrderEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if ev.ID == uuid.Nil {
		ev.ID = aqm.GenerateNewID()
	}
	now := time.Now().UTC()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}

	assign := ev.Sequence == 0
	var err error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		err = s.appendEvent(ctx, ev, assign)
		if err == nil {
			return nil
		}
		if !assign || !(s.dialect.conflict(err) || s.dialect.busy(err)) {
			break
		}
		s.logger.Debug("retrying event append", "order_id", ev.OrderID.String(), "attempt", attempt, "error", err.Error())
	}

	if s.dialect.conflict(err) {
		return fmt.Errorf("order %s sequence %d: %w", ev.OrderID, ev.Sequence, ErrDuplicateSequence)
	}
	return fmt.Errorf("cannot append event: %w", err)
}

func (s *Store) appendEvent(ctx context.Context, ev *order.OrderEvent, assign bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if assign {
		var last sql.NullInt64
		q := s.dialect.Rebind(`SELECT MAX(sequence) FROM order_events WHERE order_id = ?`)
		if err := tx.QueryRowContext(ctx, q, ev.OrderID.String()).Scan(&last); err != nil {
			return err
		}
		ev.Sequence = last.Int64 + 1
	}

	var entity sql.NullString
	if ev.EntityID != nil {
		entity = sql.NullString{String: ev.EntityID.String(), Valid: true}
	}

	q := s.dialect.Rebind(`INSERT INTO order_events (id, order_id, sequence, event_type, payload, entity_id, occurred_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, q,
		ev.ID.String(), ev.OrderID.String(), ev.Sequence, ev.EventType,
		string(ev.Payload), entity, toMillis(ev.OccurredAt), toMillis(ev.CreatedAt),
	); err != nil {
		if assign {
			ev.Sequence = 0
		}
		return err
	}

	return tx.Commit()
}

func (s *Store) EventsAfter(ctx context.Context, orderID uuid.UUID, after int64) ([]*order.OrderEvent, error) {
	return eventsAfter(ctx, s.db, s.dialect, orderID, after)
}

// ListLaggingOrders returns orders with events past their cursor, oldest first.
func (s *Store) ListLaggingOrders(ctx context.Context, limit int) ([]uuid.UUID, error) {
	q := s.dialect.Rebind(`SELECT o.id FROM orders o
WHERE EXISTS (SELECT 1 FROM order_events e WHERE e.order_id = o.id AND e.sequence > o.last_projected_sequence)
ORDER BY o.updated_at ASC, o.id ASC
LIMIT ?`)
	return s.listIDs(ctx, q, limit)
}

// ListActiveOrders returns orders that have not reached a terminal status.
// It is used when events live outside this database and lag cannot be
// computed with a join.
func (s *Store) ListActiveOrders(ctx context.Context, limit int) ([]uuid.UUID, error) {
	q := s.dialect.Rebind(`SELECT id FROM orders
WHERE status NOT IN ('delivered', 'billrequested', 'paid', 'closed')
ORDER BY updated_at ASC, id ASC
LIMIT ?`)
	return s.listIDs(ctx, q, limit)
}

func (s *Store) listIDs(ctx context.Context, q string, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("cannot scan order id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid order id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reset deletes every row. Used by the utilities and tests.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"order_events", "order_items", "station_tickets", "orders"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("cannot clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// CountRestaurantOrders returns how many orders belong to the restaurant.
func (s *Store) CountRestaurantOrders(ctx context.Context, restaurantID string) (int, error) {
	var n int
	q := s.dialect.Rebind(`SELECT COUNT(*) FROM orders WHERE restaurant_id = ?`)
	if err := s.db.QueryRowContext(ctx, q, restaurantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("cannot count orders: %w", err)
	}
	return n, nil
}

// DeleteRestaurantOrders removes the restaurant's orders with their items,
// tickets and events, returning the deleted order ids.
func (s *Store) DeleteRestaurantOrders(ctx context.Context, restaurantID string) ([]uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, s.dialect.Rebind(`SELECT id FROM orders WHERE restaurant_id = ?`), restaurantID)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("cannot scan order id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid order id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sub := `SELECT id FROM orders WHERE restaurant_id = ?`
	for _, table := range []string{"order_events", "order_items", "station_tickets"} {
		q := s.dialect.Rebind(`DELETE FROM ` + table + ` WHERE order_id IN (` + sub + `)`)
		if _, err := tx.ExecContext(ctx, q, restaurantID); err != nil {
			return nil, fmt.Errorf("cannot clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM orders WHERE restaurant_id = ?`), restaurantID); err != nil {
		return nil, fmt.Errorf("cannot delete orders: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cannot commit delete: %w", err)
	}
	return ids, nil
}
