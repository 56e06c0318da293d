package order

import (
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
)

// Order is the projected aggregate for a dine-in order.
type Order struct {
	ID           uuid.UUID `json:"id" bson:"_id"`
	RestaurantID string    `json:"restaurant_id" bson:"restaurant_id"`
	TableNumber  string    `json:"table_number" bson:"table_number"`
	Status       string    `json:"status" bson:"status"`

	OrderedAt       *time.Time `json:"ordered_at,omitempty" bson:"ordered_at,omitempty"`
	BillRequestedAt *time.Time `json:"bill_requested_at,omitempty" bson:"bill_requested_at,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`

	// LastProjectedSequence is the highest event sequence already applied.
	LastProjectedSequence int64 `json:"last_projected_sequence" bson:"last_projected_sequence"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func NewOrder(restaurantID, tableNumber string) *Order {
	o := &Order{
		ID:           aqm.GenerateNewID(),
		RestaurantID: restaurantID,
		TableNumber:  tableNumber,
		Status:       orderstatus.Statuses.Opened.Code(),
	}
	o.BeforeCreate()
	return o
}

func (o *Order) GetID() uuid.UUID {
	return o.ID
}

func (o *Order) ResourceType() string {
	return "order"
}

func (o *Order) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = aqm.GenerateNewID()
	}
}

func (o *Order) BeforeCreate() {
	o.EnsureID()
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
}

func (o *Order) BeforeUpdate() {
	o.UpdatedAt = time.Now().UTC()
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID         uuid.UUID `json:"id" bson:"_id"`
	OrderID    uuid.UUID `json:"order_id" bson:"order_id"`
	MenuItemID uuid.UUID `json:"menu_item_id" bson:"menu_item_id"`
	LineKey    string    `json:"line_key" bson:"line_key"`
	Name       string    `json:"name" bson:"name"`
	ItemType   string    `json:"item_type" bson:"item_type"`
	Notes      string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Price      float64   `json:"price" bson:"price"`
	Status     string    `json:"status" bson:"status"`

	StationTicketID *uuid.UUID `json:"station_ticket_id,omitempty" bson:"station_ticket_id,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (i *OrderItem) EnsureID() {
	if i.ID == uuid.Nil {
		i.ID = aqm.GenerateNewID()
	}
}

func (i *OrderItem) BeforeCreate() {
	i.EnsureID()
	now := time.Now().UTC()
	i.CreatedAt = now
	i.UpdatedAt = now
}

func (i *OrderItem) BeforeUpdate() {
	i.UpdatedAt = time.Now().UTC()
}

func (i *OrderItem) IsRemoved() bool {
	return i.Status == orderstatus.Statuses.Removed.Code()
}

// IsUnsubmitted reports whether the item still needs a station ticket.
func (i *OrderItem) IsUnsubmitted() bool {
	return i.StationTicketID == nil && orderstatus.IsSubmittable(i.Status)
}
