package seeding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const DemoRestaurant = "demo"

// Step is one event appended to a demo order.
type Step struct {
	EventType string
	Payload   map[string]any
}

// Scenario is a demo table: the events it receives and how far its station
// tickets have progressed.
type Scenario struct {
	Table       string
	Description string
	Steps       []Step
	// TicketStatus is reported for every ticket once items are submitted.
	// Empty leaves tickets as ordered.
	TicketStatus string
}

// DemoOrder links a created order to its scenario.
type DemoOrder struct {
	OrderID  uuid.UUID
	Scenario Scenario
}

// OrderStore is what seeding needs from the storage.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	AppendEvent(ctx context.Context, ev *order.OrderEvent) error
}

var (
	aperolSpritzID    = uuid.MustParse("3d5a4b0e-8f1c-4c7a-9a2e-000000000001")
	espressoMartiniID = uuid.MustParse("3d5a4b0e-8f1c-4c7a-9a2e-000000000002")
	burgerID          = uuid.MustParse("3d5a4b0e-8f1c-4c7a-9a2e-000000000003")
	pastaID           = uuid.MustParse("3d5a4b0e-8f1c-4c7a-9a2e-000000000004")
	lemonadeID        = uuid.MustParse("3d5a4b0e-8f1c-4c7a-9a2e-000000000005")
	tiramisuID        = uuid.MustParse("3d5a4b0e-8f1c-4c7a-9a2e-000000000006")
)

func item(lineKey string, menuItemID uuid.UUID, name, itemType string, price float64, notes string) Step {
	payload := map[string]any{
		"line_key":     lineKey,
		"menu_item_id": menuItemID.String(),
		"name":         name,
		"item_type":    itemType,
		"price":        price,
	}
	if notes != "" {
		payload["notes"] = notes
	}
	return Step{EventType: order.EventItemAdded, Payload: payload}
}

// DemoScenarios covers drinks only, a mixed dinner in preparation, a table
// asking for the bill and a table with a removed line.
var DemoScenarios = []Scenario{
	{
		Table:       "1",
		Description: "Couple having drinks",
		Steps: []Step{
			item("t1-spritz", aperolSpritzID, "Aperol Spritz", "beverage", 11, ""),
			item("t1-martini", espressoMartiniID, "Espresso Martini", "beverage", 12.5, "less sugar"),
		},
		TicketStatus: "ready",
	},
	{
		Table:       "2",
		Description: "Family dinner in preparation",
		Steps: []Step{
			item("t2-burger", burgerID, "Classic Burger", "food", 14, "no onions\nmedium rare"),
			item("t2-pasta", pastaID, "Pasta Pomodoro", "food", 12, ""),
			item("t2-lemonade", lemonadeID, "Lemonade", "beverage", 4.5, ""),
		},
		TicketStatus: "preparing",
	},
	{
		Table:       "3",
		Description: "Table asking for the bill",
		Steps: []Step{
			item("t3-burger", burgerID, "Classic Burger", "food", 14, ""),
			item("t3-tiramisu", tiramisuID, "Tiramisu", "food", 7, ""),
			{EventType: order.EventStatusChanged, Payload: map[string]any{"to": "delivered"}},
			{EventType: order.EventBillRequested},
		},
	},
	{
		Table:       "4",
		Description: "Table that changed its mind",
		Steps: []Step{
			item("t4-pasta", pastaID, "Pasta Pomodoro", "food", 12, ""),
			item("t4-lemonade", lemonadeID, "Lemonade", "beverage", 4.5, ""),
			{EventType: order.EventItemRemoved, Payload: map[string]any{"line_key": "t4-lemonade"}},
		},
	},
}

// Events builds the scenario's events for orderID, one minute apart from start.
func Events(orderID uuid.UUID, s Scenario, start time.Time) ([]*order.OrderEvent, error) {
	evts := make([]*order.OrderEvent, 0, len(s.Steps))
	for i, step := range s.Steps {
		ev := &order.OrderEvent{
			OrderID:    orderID,
			EventType:  step.EventType,
			OccurredAt: start.Add(time.Duration(i) * time.Minute).UTC(),
		}
		if step.Payload != nil {
			raw, err := json.Marshal(step.Payload)
			if err != nil {
				return nil, fmt.Errorf("cannot encode %s payload: %w", step.EventType, err)
			}
			ev.Payload = raw
		}
		evts = append(evts, ev)
	}
	return evts, nil
}

// SeedOrders creates one order per scenario and appends its events.
func SeedOrders(ctx context.Context, store OrderStore, scenarios []Scenario, now time.Time) ([]DemoOrder, error) {
	var created []DemoOrder
	for i, s := range scenarios {
		o := order.NewOrder(DemoRestaurant, s.Table)
		if err := store.CreateOrder(ctx, o); err != nil {
			return created, fmt.Errorf("cannot create demo order for table %s: %w", s.Table, err)
		}

		start := now.Add(-time.Duration(len(scenarios)-i) * 10 * time.Minute)
		evts, err := Events(o.ID, s, start)
		if err != nil {
			return created, err
		}
		for _, ev := range evts {
			if err := store.AppendEvent(ctx, ev); err != nil {
				return created, fmt.Errorf("cannot append %s for table %s: %w", ev.EventType, s.Table, err)
			}
		}
		created = append(created, DemoOrder{OrderID: o.ID, Scenario: s})
	}
	return created, nil
}
