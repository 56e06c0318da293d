package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const (
	orderColumns  = `id, restaurant_id, table_number, status, ordered_at, bill_requested_at, paid_at, last_projected_sequence, created_at, updated_at`
	itemColumns   = `id, order_id, menu_item_id, line_key, name, item_type, notes, price, status, station_ticket_id, created_at, updated_at`
	ticketColumns = `id, order_id, station, status, sequence, submitted_at, updated_at`
	eventColumns  = `id, order_id, sequence, event_type, payload, entity_id, occurred_at, created_at`
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// sqlTx implements order.Tx on top of a database transaction.
type sqlTx struct {
	tx *sql.Tx
	d  Dialect
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.d.Rebind(query), args...)
}

func (t *sqlTx) SaveOrder(ctx context.Context, o *order.Order) error {
	res, err := t.exec(ctx, `UPDATE orders SET status = ?, ordered_at = ?, bill_requested_at = ?, paid_at = ?, last_projected_sequence = ?, updated_at = ?
WHERE id = ?`,
		o.Status, nullMillis(o.OrderedAt), nullMillis(o.BillRequestedAt), nullMillis(o.PaidAt),
		o.LastProjectedSequence, toMillis(o.UpdatedAt), o.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("cannot save order: %w", err)
	}
	return expectOne(res, order.ErrOrderNotFound)
}

func (t *sqlTx) ListItems(ctx context.Context, orderID uuid.UUID) ([]*order.OrderItem, error) {
	return listItems(ctx, t.tx, t.d, orderID)
}

func (t *sqlTx) FindItemByLineKey(ctx context.Context, orderID uuid.UUID, lineKey string) (*order.OrderItem, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+itemColumns+` FROM order_items WHERE order_id = ? AND line_key = ?`), orderID.String(), lineKey)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (t *sqlTx) GetItem(ctx context.Context, orderID, itemID uuid.UUID) (*order.OrderItem, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+itemColumns+` FROM order_items WHERE order_id = ? AND id = ?`), orderID.String(), itemID.String())
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (t *sqlTx) ItemIDTaken(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var n int
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT COUNT(*) FROM order_items WHERE id = ?`), itemID.String())
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("cannot check item id: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) CreateItem(ctx context.Context, item *order.OrderItem) error {
	if item.CreatedAt.IsZero() {
		item.BeforeCreate()
	}
	_, err := t.exec(ctx, `INSERT INTO order_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.OrderID.String(), item.MenuItemID.String(), item.LineKey,
		item.Name, item.ItemType, item.Notes, item.Price, item.Status,
		nullUUID(item.StationTicketID), toMillis(item.CreatedAt), toMillis(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("cannot create item %s: %w", item.LineKey, err)
	}
	return nil
}

func (t *sqlTx) SaveItem(ctx context.Context, item *order.OrderItem) error {
	res, err := t.exec(ctx, `UPDATE order_items SET name = ?, item_type = ?, notes = ?, price = ?, status = ?, station_ticket_id = ?, updated_at = ?
WHERE id = ? AND order_id = ?`,
		item.Name, item.ItemType, item.Notes, item.Price, item.Status,
		nullUUID(item.StationTicketID), toMillis(item.UpdatedAt),
		item.ID.String(), item.OrderID.String(),
	)
	if err != nil {
		return fmt.Errorf("cannot save item %s: %w", item.ID, err)
	}
	return expectOne(res, fmt.Errorf("item %s not found", item.ID))
}

func (t *sqlTx) ListTickets(ctx context.Context, orderID uuid.UUID) ([]*order.StationTicket, error) {
	return listTickets(ctx, t.tx, t.d, orderID)
}

func (t *sqlTx) GetTicket(ctx context.Context, orderID, ticketID uuid.UUID) (*order.StationTicket, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+ticketColumns+` FROM station_tickets WHERE order_id = ? AND id = ?`), orderID.String(), ticketID.String())
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func (t *sqlTx) MaxTicketSequence(ctx context.Context, orderID uuid.UUID, station string) (int, error) {
	var highest sql.NullInt64
	err := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT MAX(sequence) FROM station_tickets WHERE order_id = ? AND station = ?`), orderID.String(), station).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("cannot read ticket sequence: %w", err)
	}
	return int(highest.Int64), nil
}

func (t *sqlTx) CreateTicket(ctx context.Context, ticket *order.StationTicket) error {
	_, err := t.exec(ctx, `INSERT INTO station_tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID.String(), ticket.OrderID.String(), ticket.Station, ticket.Status,
		ticket.Sequence, toMillis(ticket.SubmittedAt), toMillis(ticket.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("cannot create %s ticket %d: %w", ticket.Station, ticket.Sequence, err)
	}
	return nil
}

func (t *sqlTx) SaveTicket(ctx context.Context, ticket *order.StationTicket) error {
	res, err := t.exec(ctx, `UPDATE station_tickets SET status = ?, updated_at = ? WHERE id = ? AND order_id = ?`,
		ticket.Status, toMillis(ticket.UpdatedAt), ticket.ID.String(), ticket.OrderID.String(),
	)
	if err != nil {
		return fmt.Errorf("cannot save ticket %s: %w", ticket.ID, err)
	}
	return expectOne(res, order.ErrTicketNotFound)
}

func (t *sqlTx) DeleteTickets(ctx context.Context, orderID uuid.UUID) ([]*order.StationTicket, error) {
	tickets, err := t.ListTickets(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	now := toMillis(time.Now().UTC())
	if _, err := t.exec(ctx, `UPDATE order_items SET station_ticket_id = NULL, updated_at = ? WHERE order_id = ? AND station_ticket_id IS NOT NULL`, now, orderID.String()); err != nil {
		return nil, fmt.Errorf("cannot detach items: %w", err)
	}
	if _, err := t.exec(ctx, `DELETE FROM station_tickets WHERE order_id = ?`, orderID.String()); err != nil {
		return nil, fmt.Errorf("cannot delete tickets: %w", err)
	}
	return tickets, nil
}

func (t *sqlTx) EventsAfter(ctx context.Context, orderID uuid.UUID, after int64) ([]*order.OrderEvent, error) {
	return eventsAfter(ctx, t.tx, t.d, orderID, after)
}

func getOrder(ctx context.Context, q querier, d Dialect, id uuid.UUID, lock string) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if lock != "" {
		query += " " + lock
	}
	o, err := scanOrder(q.QueryRowContext(ctx, d.Rebind(query), id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, order.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot load order %s: %w", id, err)
	}
	return o, nil
}

func listItems(ctx context.Context, q querier, d Dialect, orderID uuid.UUID) ([]*order.OrderItem, error) {
	rows, err := q.QueryContext(ctx, d.Rebind(`SELECT `+itemColumns+` FROM order_items WHERE order_id = ? ORDER BY created_at ASC, line_key ASC`), orderID.String())
	if err != nil {
		return nil, fmt.Errorf("cannot list items: %w", err)
	}
	defer rows.Close()

	var items []*order.OrderItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func listTickets(ctx context.Context, q querier, d Dialect, orderID uuid.UUID) ([]*order.StationTicket, error) {
	rows, err := q.QueryContext(ctx, d.Rebind(`SELECT `+ticketColumns+` FROM station_tickets WHERE order_id = ? ORDER BY station ASC, sequence ASC`), orderID.String())
	if err != nil {
		return nil, fmt.Errorf("cannot list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*order.StationTicket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func eventsAfter(ctx context.Context, q querier, d Dialect, orderID uuid.UUID, after int64) ([]*order.OrderEvent, error) {
	rows, err := q.QueryContext(ctx, d.Rebind(`SELECT `+eventColumns+` FROM order_events WHERE order_id = ? AND sequence > ? ORDER BY sequence ASC`), orderID.String(), after)
	if err != nil {
		return nil, fmt.Errorf("cannot read events: %w", err)
	}
	defer rows.Close()

	var events []*order.OrderEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanOrder(s scanner) (*order.Order, error) {
	var (
		o                            order.Order
		id                           string
		ordered, billRequested, paid sql.NullInt64
		createdAt, updatedAt         int64
	)
	if err := s.Scan(&id, &o.RestaurantID, &o.TableNumber, &o.Status,
		&ordered, &billRequested, &paid, &o.LastProjectedSequence, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if o.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", id, err)
	}
	o.OrderedAt = fromNullMillis(ordered)
	o.BillRequestedAt = fromNullMillis(billRequested)
	o.PaidAt = fromNullMillis(paid)
	o.CreatedAt = fromMillis(createdAt)
	o.UpdatedAt = fromMillis(updatedAt)
	return &o, nil
}

func scanItem(s scanner) (*order.OrderItem, error) {
	var (
		item                    order.OrderItem
		id, orderID, menuItemID string
		ticketID                sql.NullString
		createdAt, updatedAt    int64
	)
	if err := s.Scan(&id, &orderID, &menuItemID, &item.LineKey, &item.Name, &item.ItemType,
		&item.Notes, &item.Price, &item.Status, &ticketID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if item.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid item id %q: %w", id, err)
	}
	if item.OrderID, err = uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	if item.MenuItemID, err = uuid.Parse(menuItemID); err != nil {
		return nil, fmt.Errorf("invalid menu item id %q: %w", menuItemID, err)
	}
	if item.StationTicketID, err = parseNullUUID(ticketID); err != nil {
		return nil, err
	}
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return &item, nil
}

func scanTicket(s scanner) (*order.StationTicket, error) {
	var (
		ticket                 order.StationTicket
		id, orderID            string
		submittedAt, updatedAt int64
	)
	if err := s.Scan(&id, &orderID, &ticket.Station, &ticket.Status, &ticket.Sequence, &submittedAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if ticket.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid ticket id %q: %w", id, err)
	}
	if ticket.OrderID, err = uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	ticket.SubmittedAt = fromMillis(submittedAt)
	ticket.UpdatedAt = fromMillis(updatedAt)
	return &ticket, nil
}

func scanEvent(s scanner) (*order.OrderEvent, error) {
	var (
		ev                    order.OrderEvent
		id, orderID           string
		payload, entityID     sql.NullString
		occurredAt, createdAt int64
	)
	if err := s.Scan(&id, &orderID, &ev.Sequence, &ev.EventType, &payload, &entityID, &occurredAt, &createdAt); err != nil {
		return nil, fmt.Errorf("cannot scan event: %w", err)
	}

	var err error
	if ev.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", id, err)
	}
	if ev.OrderID, err = uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	if payload.Valid && payload.String != "" {
		ev.Payload = json.RawMessage(payload.String)
	}
	if ev.EntityID, err = parseNullUUID(entityID); err != nil {
		return nil, err
	}
	ev.OccurredAt = fromMillis(occurredAt)
	ev.CreatedAt = fromMillis(createdAt)
	return &ev, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cannot read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(v sql.NullString) (*uuid.UUID, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v.String)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", v.String, err)
	}
	return &id, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
