// Package storetest runs the same behavioural checks against every SQL
// backend. Drivers call Run from their own tests with a function that opens a
// fresh, migrated store.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/event"
	"github.com/appetiteclub/orderflow/services/order/internal/order"
	"github.com/appetiteclub/orderflow/services/order/internal/sqlstore"
)

// OpenFunc returns an empty, migrated store. It registers its own cleanup.
type OpenFunc func(t *testing.T) *sqlstore.Store

var (
	burgerID = uuid.MustParse("6f1c2b1e-4d7a-4a55-9a3e-2f0c1d9b7a01")
	colaID   = uuid.MustParse("6f1c2b1e-4d7a-4a55-9a3e-2f0c1d9b7a02")
)

// Run executes the store suite.
func Run(t *testing.T, open OpenFunc) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, store *sqlstore.Store)
	}{
		{name: "orderLockNotFound", fn: testOrderLockNotFound},
		{name: "orderLockRollback", fn: testOrderLockRollback},
		{name: "appendEventSequences", fn: testAppendEventSequences},
		{name: "lineKeyUnique", fn: testLineKeyUnique},
		{name: "ticketSequenceUnique", fn: testTicketSequenceUnique},
		{name: "unlockedReads", fn: testUnlockedReads},
		{name: "entityIDCollision", fn: testEntityIDCollision},
		{name: "deleteTicketsDetachesItems", fn: testDeleteTicketsDetachesItems},
		{name: "listLaggingOrders", fn: testListLaggingOrders},
		{name: "orderLifecycle", fn: testOrderLifecycle},
		{name: "concurrentSubmission", fn: testConcurrentSubmission},
		{name: "deleteRestaurantOrders", fn: testDeleteRestaurantOrders},
		{name: "reset", fn: testReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// Recorder is a TicketBroadcaster that keeps every broadcast.
type Recorder struct {
	mu    sync.Mutex
	items []order.TicketBroadcast
}

func (r *Recorder) Broadcast(_ context.Context, b order.TicketBroadcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, b)
}

func (r *Recorder) Count(evt string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.items {
		if b.Event == evt {
			n++
		}
	}
	return n
}

func newOrder(t *testing.T, store *sqlstore.Store) *order.Order {
	t.Helper()
	o := order.NewOrder("rest-1", "T4")
	if err := store.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	return o
}

func appendEvent(t *testing.T, store *sqlstore.Store, orderID uuid.UUID, eventType string, payload map[string]any) *order.OrderEvent {
	t.Helper()
	ev := &order.OrderEvent{OrderID: orderID, EventType: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		ev.Payload = raw
	}
	if err := store.AppendEvent(context.Background(), ev); err != nil {
		t.Fatalf("AppendEvent(%s) error = %v", eventType, err)
	}
	return ev
}

func addItem(t *testing.T, store *sqlstore.Store, orderID uuid.UUID, lineKey, itemType string, menuItemID uuid.UUID, price float64) {
	t.Helper()
	appendEvent(t, store, orderID, order.EventItemAdded, map[string]any{
		"line_key":     lineKey,
		"menu_item_id": menuItemID.String(),
		"name":         lineKey,
		"item_type":    itemType,
		"price":        price,
	})
}

type snapshot struct {
	order   *order.Order
	items   []*order.OrderItem
	tickets []*order.StationTicket
}

func read(t *testing.T, store *sqlstore.Store, orderID uuid.UUID) snapshot {
	t.Helper()
	var s snapshot
	err := store.WithOrderLock(context.Background(), orderID, func(ctx context.Context, tx order.Tx, o *order.Order) error {
		s.order = o
		var err error
		if s.items, err = tx.ListItems(ctx, orderID); err != nil {
			return err
		}
		s.tickets, err = tx.ListTickets(ctx, orderID)
		return err
	})
	if err != nil {
		t.Fatalf("read order %s: %v", orderID, err)
	}
	return s
}

func testOrderLockNotFound(t *testing.T, store *sqlstore.Store) {
	err := store.WithOrderLock(context.Background(), uuid.New(), func(context.Context, order.Tx, *order.Order) error {
		t.Error("fn must not run for a missing order")
		return nil
	})
	if !errors.Is(err, order.ErrOrderNotFound) {
		t.Errorf("WithOrderLock() error = %v, want ErrOrderNotFound", err)
	}
}

func testOrderLockRollback(t *testing.T, store *sqlstore.Store) {
	o := newOrder(t, store)
	boom := errors.New("boom")

	err := store.WithOrderLock(context.Background(), o.ID, func(ctx context.Context, tx order.Tx, locked *order.Order) error {
		item := &order.OrderItem{OrderID: o.ID, MenuItemID: burgerID, LineKey: "a", Status: "opened"}
		item.BeforeCreate()
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		locked.Status = "ordered"
		locked.LastProjectedSequence = 9
		if err := tx.SaveOrder(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithOrderLock() error = %v, want boom", err)
	}

	s := read(t, store, o.ID)
	if len(s.items) != 0 {
		t.Errorf("items = %d, want 0 after rollback", len(s.items))
	}
	if s.order.Status != "opened" || s.order.LastProjectedSequence != 0 {
		t.Errorf("order = %s@%d, want opened@0", s.order.Status, s.order.LastProjectedSequence)
	}
}

func testAppendEventSequences(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	o := newOrder(t, store)
	entity := uuid.New()

	for i := 0; i < 3; i++ {
		ev := &order.OrderEvent{OrderID: o.ID, EventType: order.EventItemRemoved, EntityID: &entity}
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
		if ev.Sequence != int64(i+1) {
			t.Errorf("sequence = %d, want %d", ev.Sequence, i+1)
		}
	}

	dup := &order.OrderEvent{OrderID: o.ID, Sequence: 2, EventType: order.EventPaid}
	if err := store.AppendEvent(ctx, dup); !errors.Is(err, sqlstore.ErrDuplicateSequence) {
		t.Errorf("AppendEvent() duplicate error = %v, want ErrDuplicateSequence", err)
	}

	evts, err := store.EventsAfter(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("EventsAfter() error = %v", err)
	}
	if len(evts) != 2 || evts[0].Sequence != 2 || evts[1].Sequence != 3 {
		t.Fatalf("EventsAfter(1) = %d events, want sequences 2,3", len(evts))
	}
	if evts[0].EntityID == nil || *evts[0].EntityID != entity {
		t.Errorf("entity id = %v, want %s", evts[0].EntityID, entity)
	}
	if evts[0].Payload != nil {
		t.Errorf("payload = %s, want empty", evts[0].Payload)
	}
}

func testLineKeyUnique(t *testing.T, store *sqlstore.Store) {
	o := newOrder(t, store)

	err := store.WithOrderLock(context.Background(), o.ID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		for i := 0; i < 2; i++ {
			item := &order.OrderItem{OrderID: o.ID, MenuItemID: burgerID, LineKey: "dup", Status: "opened"}
			item.BeforeCreate()
			if err := tx.CreateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		t.Fatal("second item with the same line key should fail")
	}
	if !store.Dialect().IsConflict(err) {
		t.Errorf("error = %v, want a unique violation", err)
	}
}

func testTicketSequenceUnique(t *testing.T, store *sqlstore.Store) {
	o := newOrder(t, store)

	err := store.WithOrderLock(context.Background(), o.ID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		if err := tx.CreateTicket(ctx, order.NewStationTicket(o.ID, "kitchen", 1)); err != nil {
			return err
		}
		if err := tx.CreateTicket(ctx, order.NewStationTicket(o.ID, "bar", 1)); err != nil {
			t.Errorf("bar ticket 1 should not collide with kitchen ticket 1: %v", err)
			return err
		}
		return tx.CreateTicket(ctx, order.NewStationTicket(o.ID, "kitchen", 1))
	})
	if err == nil {
		t.Fatal("duplicate (order, station, sequence) should fail")
	}
}

func testUnlockedReads(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	o := newOrder(t, store)
	other := newOrder(t, store)

	item := &order.OrderItem{OrderID: o.ID, MenuItemID: burgerID, LineKey: "a", ItemType: "food", Status: "opened"}
	ticket := order.NewStationTicket(o.ID, "kitchen", 1)
	err := store.WithOrderLock(ctx, o.ID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		item.BeforeCreate()
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		return tx.CreateTicket(ctx, ticket)
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	got, err := store.GetOrder(ctx, o.ID)
	if err != nil || got.ID != o.ID {
		t.Fatalf("GetOrder() = %v, %v", got, err)
	}
	if _, err := store.GetOrder(ctx, uuid.New()); !errors.Is(err, order.ErrOrderNotFound) {
		t.Errorf("GetOrder() unknown error = %v, want ErrOrderNotFound", err)
	}

	items, err := store.ListItems(ctx, o.ID)
	if err != nil || len(items) != 1 || items[0].ID != item.ID {
		t.Errorf("ListItems() = %v, %v, want the seeded item", items, err)
	}
	tickets, err := store.ListTickets(ctx, o.ID)
	if err != nil || len(tickets) != 1 || tickets[0].ID != ticket.ID {
		t.Errorf("ListTickets() = %v, %v, want the seeded ticket", tickets, err)
	}

	err = store.WithOrderLock(ctx, other.ID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		taken, err := tx.ItemIDTaken(ctx, item.ID)
		if err != nil {
			return err
		}
		if !taken {
			t.Errorf("ItemIDTaken(%s) = false, want true across orders", item.ID)
		}
		free, err := tx.ItemIDTaken(ctx, uuid.New())
		if err != nil {
			return err
		}
		if free {
			t.Error("ItemIDTaken(random) = true, want false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithOrderLock() error = %v", err)
	}
}

func testEntityIDCollision(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	o := newOrder(t, store)
	other := newOrder(t, store)

	addItem(t, store, other.ID, "z", "food", burgerID, 5)
	p := order.NewProjector(order.ProjectorDeps{Store: store}, nil)
	if _, err := p.Project(ctx, other.ID); err != nil {
		t.Fatalf("Project(other) error = %v", err)
	}
	taken := read(t, store, other.ID).items[0].ID

	ev := &order.OrderEvent{
		OrderID:   o.ID,
		EventType: order.EventItemAdded,
		EntityID:  &taken,
		Payload:   json.RawMessage(`{"line_key":"a","menu_item_id":"` + colaID.String() + `","item_type":"beverage","price":3}`),
	}
	if err := store.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}
	addItem(t, store, o.ID, "b", "beverage", colaID, 3)

	result, err := p.Project(ctx, o.ID)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if result.Skipped != 1 || result.Applied != 1 || result.Cursor != 2 {
		t.Errorf("result = %+v, want 1 skipped 1 applied cursor 2", result)
	}

	snap := read(t, store, o.ID)
	if len(snap.items) != 1 || snap.items[0].LineKey != "b" {
		t.Errorf("items = %+v, want only line b", snap.items)
	}
}

func testDeleteTicketsDetachesItems(t *testing.T, store *sqlstore.Store) {
	o := newOrder(t, store)
	ticket := order.NewStationTicket(o.ID, "kitchen", 1)

	err := store.WithOrderLock(context.Background(), o.ID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			return err
		}
		item := &order.OrderItem{OrderID: o.ID, MenuItemID: burgerID, LineKey: "a", Status: "ordered", StationTicketID: &ticket.ID}
		item.BeforeCreate()
		return tx.CreateItem(ctx, item)
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	var removed []*order.StationTicket
	err = store.WithOrderLock(context.Background(), o.ID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		var err error
		removed, err = tx.DeleteTickets(ctx, o.ID)
		return err
	})
	if err != nil {
		t.Fatalf("DeleteTickets() error = %v", err)
	}
	if len(removed) != 1 || removed[0].ID != ticket.ID {
		t.Errorf("removed = %v, want ticket %s", removed, ticket.ID)
	}

	s := read(t, store, o.ID)
	if len(s.tickets) != 0 {
		t.Errorf("tickets = %d, want 0", len(s.tickets))
	}
	if len(s.items) != 1 || s.items[0].StationTicketID != nil {
		t.Errorf("item should be detached: %+v", s.items)
	}
}

func testListLaggingOrders(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	idle := newOrder(t, store)
	busy := newOrder(t, store)
	addItem(t, store, busy.ID, "a", "food", burgerID, 10)

	ids, err := store.ListLaggingOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListLaggingOrders() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != busy.ID {
		t.Fatalf("lagging = %v, want only %s (not %s)", ids, busy.ID, idle.ID)
	}

	projector := order.NewProjector(order.ProjectorDeps{Store: store}, nil)
	if _, err := projector.Project(ctx, busy.ID); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	ids, err = store.ListLaggingOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListLaggingOrders() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("lagging after projection = %v, want none", ids)
	}

	active, err := store.ListActiveOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListActiveOrders() error = %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active = %d, want 2", len(active))
	}
}

func testOrderLifecycle(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	rec := &Recorder{}
	projector := order.NewProjector(order.ProjectorDeps{Store: store, Broadcaster: rec}, nil)
	router := order.NewRouter(store, rec, nil)

	o := newOrder(t, store)
	addItem(t, store, o.ID, "burger", "food", burgerID, 12.5)
	addItem(t, store, o.ID, "cola", "beverage", colaID, 3)
	addItem(t, store, o.ID, "burger", "food", burgerID, 99)

	res, err := projector.Project(ctx, o.ID)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if res.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", res.Cursor)
	}

	if again, err := projector.Project(ctx, o.ID); err != nil || again.Applied != 0 {
		t.Errorf("second Project() = %+v, %v, want no-op", again, err)
	}

	submitted, err := router.SubmitUnsubmittedItems(ctx, o.ID)
	if err != nil || !submitted {
		t.Fatalf("SubmitUnsubmittedItems() = %v, %v", submitted, err)
	}

	s := read(t, store, o.ID)
	if s.order.Status != "ordered" || s.order.OrderedAt == nil {
		t.Errorf("order = %s ordered_at=%v, want ordered with timestamp", s.order.Status, s.order.OrderedAt)
	}
	if len(s.items) != 2 {
		t.Fatalf("items = %d, want 2 (duplicate line key suppressed)", len(s.items))
	}
	if len(s.tickets) != 2 {
		t.Fatalf("tickets = %d, want 2", len(s.tickets))
	}
	for _, item := range s.items {
		if item.StationTicketID == nil || item.Status != "ordered" {
			t.Errorf("item %s = %s ticket=%v, want ordered and attached", item.LineKey, item.Status, item.StationTicketID)
		}
	}
	if got := rec.Count(event.EventTicketCreated); got != 2 {
		t.Errorf("ticket.created broadcasts = %d, want 2", got)
	}

	for i, ticket := range s.tickets {
		if _, err := router.UpdateTicketStatus(ctx, o.ID, ticket.ID, "ready"); err != nil {
			t.Fatalf("UpdateTicketStatus() error = %v", err)
		}
		want := "ordered"
		if i == len(s.tickets)-1 {
			want = "ready"
		}
		if got := read(t, store, o.ID).order.Status; got != want {
			t.Errorf("after %d ready tickets order = %s, want %s", i+1, got, want)
		}
	}

	appendEvent(t, store, o.ID, order.EventPaid, nil)
	res, err = projector.Project(ctx, o.ID)
	if err != nil {
		t.Fatalf("Project(paid) error = %v", err)
	}
	if len(res.RemovedTickets) != 2 {
		t.Errorf("removed tickets = %d, want 2", len(res.RemovedTickets))
	}

	s = read(t, store, o.ID)
	if s.order.Status != "paid" || s.order.PaidAt == nil {
		t.Errorf("order = %s paid_at=%v, want paid with timestamp", s.order.Status, s.order.PaidAt)
	}
	if len(s.tickets) != 0 {
		t.Errorf("tickets = %d, want 0 after paid", len(s.tickets))
	}
	for _, item := range s.items {
		if item.Status != "paid" || item.StationTicketID != nil {
			t.Errorf("item %s = %s ticket=%v, want paid and detached", item.LineKey, item.Status, item.StationTicketID)
		}
	}
	if got := rec.Count(event.EventTicketRemoved); got != 2 {
		t.Errorf("ticket.removed broadcasts = %d, want 2", got)
	}
}

func testConcurrentSubmission(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	projector := order.NewProjector(order.ProjectorDeps{Store: store}, nil)
	router := order.NewRouter(store, nil, nil)

	o := newOrder(t, store)
	addItem(t, store, o.ID, "a", "food", burgerID, 10)
	addItem(t, store, o.ID, "b", "beverage", colaID, 2)
	if _, err := projector.Project(ctx, o.ID); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	const workers = 4
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		fails []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := router.SubmitUnsubmittedItems(ctx, o.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fails = append(fails, err)
			}
			if ok {
				wins++
			}
		}()
	}
	wg.Wait()

	if len(fails) > 0 {
		t.Fatalf("concurrent submissions failed: %v", fails)
	}
	if wins != 1 {
		t.Errorf("successful submissions = %d, want 1", wins)
	}

	addItem(t, store, o.ID, "c", "food", burgerID, 10)
	if _, err := projector.Project(ctx, o.ID); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if ok, err := router.SubmitUnsubmittedItems(ctx, o.ID); err != nil || !ok {
		t.Fatalf("second submission = %v, %v", ok, err)
	}

	seen := make(map[string]map[int]bool)
	for _, ticket := range read(t, store, o.ID).tickets {
		if seen[ticket.Station] == nil {
			seen[ticket.Station] = make(map[int]bool)
		}
		if seen[ticket.Station][ticket.Sequence] {
			t.Errorf("duplicate %s ticket sequence %d", ticket.Station, ticket.Sequence)
		}
		seen[ticket.Station][ticket.Sequence] = true
	}
	if !seen["kitchen"][1] || !seen["kitchen"][2] || !seen["bar"][1] || len(seen["bar"]) != 1 {
		t.Errorf("ticket sequences = %v, want kitchen {1,2} bar {1}", seen)
	}
}

func testReset(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	o := newOrder(t, store)
	addItem(t, store, o.ID, "a", "food", burgerID, 10)

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := store.GetOrder(ctx, o.ID); !errors.Is(err, order.ErrOrderNotFound) {
		t.Errorf("GetOrder() after reset error = %v, want ErrOrderNotFound", err)
	}
	evts, err := store.EventsAfter(ctx, o.ID, 0)
	if err != nil || len(evts) != 0 {
		t.Errorf("EventsAfter() after reset = %d, %v, want none", len(evts), err)
	}
}

func testDeleteRestaurantOrders(t *testing.T, store *sqlstore.Store) {
	ctx := context.Background()
	keep := newOrder(t, store)

	demo := order.NewOrder("demo", "T9")
	if err := store.CreateOrder(ctx, demo); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	addItem(t, store, demo.ID, "a", "food", burgerID, 10)
	projector := order.NewProjector(order.ProjectorDeps{Store: store}, nil)
	if _, err := projector.Project(ctx, demo.ID); err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if _, err := order.NewRouter(store, nil, nil).SubmitUnsubmittedItems(ctx, demo.ID); err != nil {
		t.Fatalf("SubmitUnsubmittedItems() error = %v", err)
	}

	if n, err := store.CountRestaurantOrders(ctx, "demo"); err != nil || n != 1 {
		t.Fatalf("CountRestaurantOrders() = %d, %v, want 1", n, err)
	}

	ids, err := store.DeleteRestaurantOrders(ctx, "demo")
	if err != nil {
		t.Fatalf("DeleteRestaurantOrders() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != demo.ID {
		t.Errorf("deleted = %v, want %s", ids, demo.ID)
	}
	if _, err := store.GetOrder(ctx, demo.ID); !errors.Is(err, order.ErrOrderNotFound) {
		t.Errorf("demo order still present: %v", err)
	}
	if _, err := store.GetOrder(ctx, keep.ID); err != nil {
		t.Errorf("other restaurant order removed: %v", err)
	}
}
