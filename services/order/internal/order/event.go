package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
)

const (
	EventStatusChanged = "status_changed"
	EventItemAdded     = "item_added"
	EventItemRemoved   = "item_removed"
	EventBillRequested = "bill_requested"
	EventPaid          = "paid"
	EventClosed        = "closed"
)

// OrderEvent is an immutable entry of the per-order event log.
type OrderEvent struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order_id"`
	Sequence   int64           `json:"sequence"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

type statusPayload struct {
	To     string `json:"to"`
	Status string `json:"status"`
}

type itemAddedPayload struct {
	LineKey    string   `json:"line_key"`
	MenuItemID string   `json:"menu_item_id"`
	Price      *float64 `json:"price,omitempty"`
	Name       string   `json:"name,omitempty"`
	ItemType   string   `json:"item_type,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type itemRemovedPayload struct {
	LineKey string `json:"line_key"`
	ItemID  string `json:"item_id"`
}

// itemAdded is the decoded form of an item_added payload.
type itemAdded struct {
	LineKey    string
	MenuItemID uuid.UUID
	Price      *float64
	Name       string
	ItemType   string
	Notes      string
}

// itemRef identifies the target of an item_removed event.
type itemRef struct {
	LineKey string
	ItemID  *uuid.UUID
}

var statusEvents = map[string]string{
	EventBillRequested: orderstatus.Statuses.BillRequested.Code(),
	EventPaid:          orderstatus.Statuses.Paid.Code(),
	EventClosed:        orderstatus.Statuses.Closed.Code(),
}

// IsStatusEvent reports whether the event type moves the order status.
func IsStatusEvent(eventType string) bool {
	if eventType == EventStatusChanged {
		return true
	}
	_, ok := statusEvents[eventType]
	return ok
}

// TargetStatus resolves the order status a status event moves to.
func (e *OrderEvent) TargetStatus() (string, error) {
	if status, ok := statusEvents[e.EventType]; ok {
		return status, nil
	}
	if e.EventType != EventStatusChanged {
		return "", fmt.Errorf("event %s is not a status event: %w", e.EventType, ErrMalformedPayload)
	}

	var p statusPayload
	if err := e.decode(&p); err != nil {
		return "", err
	}

	target := strings.TrimSpace(p.To)
	if target == "" {
		target = strings.TrimSpace(p.Status)
	}
	if target == "" {
		return "", fmt.Errorf("status_changed without target: %w", ErrMalformedPayload)
	}
	if orderstatus.ByName(target) == nil {
		return "", fmt.Errorf("status %q: %w", target, ErrInvalidStatus)
	}
	return target, nil
}

func (e *OrderEvent) itemAdded() (itemAdded, error) {
	var p itemAddedPayload
	if err := e.decode(&p); err != nil {
		return itemAdded{}, err
	}

	if strings.TrimSpace(p.LineKey) == "" {
		return itemAdded{}, fmt.Errorf("item_added without line_key: %w", ErrMalformedPayload)
	}

	menuItemID, err := uuid.Parse(p.MenuItemID)
	if err != nil {
		return itemAdded{}, fmt.Errorf("item_added menu_item_id %q: %w", p.MenuItemID, ErrMalformedPayload)
	}

	if p.Price != nil && *p.Price < 0 {
		return itemAdded{}, fmt.Errorf("item_added negative price: %w", ErrMalformedPayload)
	}

	return itemAdded{
		LineKey:    p.LineKey,
		MenuItemID: menuItemID,
		Price:      p.Price,
		Name:       p.Name,
		ItemType:   p.ItemType,
		Notes:      p.Notes,
	}, nil
}

func (e *OrderEvent) itemRemoved() (itemRef, error) {
	var p itemRemovedPayload
	if len(e.Payload) > 0 {
		if err := e.decode(&p); err != nil {
			return itemRef{}, err
		}
	}

	ref := itemRef{LineKey: strings.TrimSpace(p.LineKey)}
	if p.ItemID != "" {
		id, err := uuid.Parse(p.ItemID)
		if err != nil {
			return itemRef{}, fmt.Errorf("item_removed item_id %q: %w", p.ItemID, ErrMalformedPayload)
		}
		ref.ItemID = &id
	} else if e.EntityID != nil {
		id := *e.EntityID
		ref.ItemID = &id
	}

	if ref.LineKey == "" && ref.ItemID == nil {
		return itemRef{}, fmt.Errorf("item_removed without line_key or item id: %w", ErrMalformedPayload)
	}
	return ref, nil
}

func (e *OrderEvent) decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload: %w", e.EventType, ErrMalformedPayload)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("cannot decode %s payload: %v: %w", e.EventType, err, ErrMalformedPayload)
	}
	return nil
}
