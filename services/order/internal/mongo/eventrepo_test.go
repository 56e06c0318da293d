package mongo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

func TestEventDocumentConversion(t *testing.T) {
	entity := uuid.New()
	at := time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ev   *order.OrderEvent
	}{
		{
			name: "itemAdded",
			ev: &order.OrderEvent{
				ID:         uuid.New(),
				OrderID:    uuid.New(),
				Sequence:   3,
				EventType:  order.EventItemAdded,
				Payload:    json.RawMessage(`{"line_key":"a","menu_item_id":"6f1c2b1e-4d7a-4a55-9a3e-2f0c1d9b7a01"}`),
				EntityID:   &entity,
				OccurredAt: at,
				CreatedAt:  at.Add(time.Second),
			},
		},
		{
			name: "emptyPayload",
			ev: &order.OrderEvent{
				ID:         uuid.New(),
				OrderID:    uuid.New(),
				Sequence:   1,
				EventType:  order.EventPaid,
				OccurredAt: at,
				CreatedAt:  at,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toDocument(tt.ev).toEvent()
			if err != nil {
				t.Fatalf("toEvent() error = %v", err)
			}
			if got.ID != tt.ev.ID || got.OrderID != tt.ev.OrderID || got.Sequence != tt.ev.Sequence || got.EventType != tt.ev.EventType {
				t.Errorf("event = %+v, want %+v", got, tt.ev)
			}
			if string(got.Payload) != string(tt.ev.Payload) {
				t.Errorf("payload = %s, want %s", got.Payload, tt.ev.Payload)
			}
			if (got.EntityID == nil) != (tt.ev.EntityID == nil) {
				t.Errorf("entity id = %v, want %v", got.EntityID, tt.ev.EntityID)
			}
			if !got.OccurredAt.Equal(tt.ev.OccurredAt) || !got.CreatedAt.Equal(tt.ev.CreatedAt) {
				t.Errorf("times = %v/%v, want %v/%v", got.OccurredAt, got.CreatedAt, tt.ev.OccurredAt, tt.ev.CreatedAt)
			}
		})
	}
}

func TestEventDocumentInvalidIDs(t *testing.T) {
	valid := uuid.NewString()

	tests := []struct {
		name string
		doc  eventDocument
	}{
		{name: "badID", doc: eventDocument{ID: "nope", OrderID: valid}},
		{name: "badOrderID", doc: eventDocument{ID: valid, OrderID: "nope"}},
		{name: "badEntityID", doc: eventDocument{ID: valid, OrderID: valid, EntityID: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.doc.toEvent(); err == nil {
				t.Error("toEvent() should fail")
			}
		})
	}
}
