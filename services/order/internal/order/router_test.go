package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/event"
)

func TestRouterOrderLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	broadcaster := NewMockBroadcaster()
	o := newTestOrder(store)

	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "A", Name: "Burger", ItemType: "food", Price: 12, Status: "opened"})
	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "B", Name: "Cola", ItemType: "beverage", Price: 3, Status: "opened"})

	router := NewRouter(store, broadcaster, nil)
	projector := NewProjector(ProjectorDeps{Store: store, Broadcaster: broadcaster}, nil)

	submitted, err := router.SubmitUnsubmittedItems(ctx, o.ID)
	if err != nil {
		t.Fatalf("SubmitUnsubmittedItems() error = %v", err)
	}
	if !submitted {
		t.Fatal("SubmitUnsubmittedItems() = false, want true")
	}

	tickets := store.Tickets(o.ID)
	if len(tickets) != 2 {
		t.Fatalf("tickets = %d, want 2", len(tickets))
	}
	byStation := map[string]*StationTicket{}
	for _, tk := range tickets {
		byStation[tk.Station] = tk
		if tk.Sequence != 1 || tk.Status != "ordered" {
			t.Errorf("%s ticket = seq %d status %q, want seq 1 ordered", tk.Station, tk.Sequence, tk.Status)
		}
	}
	for _, item := range store.Items(o.ID) {
		want := byStation["bar"].ID
		if item.LineKey == "A" {
			want = byStation["kitchen"].ID
		}
		if item.StationTicketID == nil || *item.StationTicketID != want {
			t.Errorf("item %s ticket = %v, want %s", item.LineKey, item.StationTicketID, want)
		}
		if item.Status != "ordered" {
			t.Errorf("item %s status = %q, want ordered", item.LineKey, item.Status)
		}
	}
	if got := store.Order(o.ID); got.Status != "ordered" || got.OrderedAt == nil {
		t.Errorf("order = %q orderedAt %v, want ordered with timestamp", got.Status, got.OrderedAt)
	}
	if n := broadcaster.Count(event.EventTicketCreated); n != 2 {
		t.Errorf("created broadcasts = %d, want 2", n)
	}

	for _, tk := range tickets {
		tk.Status = "ready"
		store.AddTicket(tk)
	}

	advanced, err := router.RollupOrderStatusIfReady(ctx, o.ID)
	if err != nil {
		t.Fatalf("RollupOrderStatusIfReady() error = %v", err)
	}
	if !advanced || store.Order(o.ID).Status != "ready" {
		t.Errorf("rollup advanced = %v status %q, want ready", advanced, store.Order(o.ID).Status)
	}

	store.AppendEvent(statusEvent(o.ID, "paid"))
	if _, err := projector.Project(ctx, o.ID); err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	got := store.Order(o.ID)
	if got.Status != "paid" || got.PaidAt == nil {
		t.Errorf("order = %q paidAt %v, want paid with timestamp", got.Status, got.PaidAt)
	}
	if n := len(store.Tickets(o.ID)); n != 0 {
		t.Errorf("tickets = %d, want 0", n)
	}
	for _, item := range store.Items(o.ID) {
		if item.Status != "paid" {
			t.Errorf("item %s status = %q, want paid", item.LineKey, item.Status)
		}
	}
}

func TestRouterSubmitNothing(t *testing.T) {
	store := NewMockStore()
	broadcaster := NewMockBroadcaster()
	o := newTestOrder(store)
	ticketID := uuid.New()

	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "gone", ItemType: "food", Status: "removed"})
	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "sent", ItemType: "food", Status: "ordered", StationTicketID: &ticketID})

	router := NewRouter(store, broadcaster, nil)
	submitted, err := router.SubmitUnsubmittedItems(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("SubmitUnsubmittedItems() error = %v", err)
	}
	if submitted {
		t.Error("SubmitUnsubmittedItems() = true, want false")
	}
	if len(store.Tickets(o.ID)) != 0 || len(broadcaster.Broadcasts()) != 0 {
		t.Error("nothing should be created or broadcast")
	}
	if store.Order(o.ID).Status != "opened" {
		t.Errorf("status = %q, want opened", store.Order(o.ID).Status)
	}
}

func TestRouterSubmitIsAllOrNothing(t *testing.T) {
	store := NewMockStore()
	broadcaster := NewMockBroadcaster()
	o := newTestOrder(store)

	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "A", ItemType: "food", Status: "opened"})
	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "B", ItemType: "beverage", Status: "opened"})

	creates := 0
	store.FailFunc = func(method string) error {
		if method == "CreateTicket" {
			creates++
			if creates == 2 {
				return errors.New("disk full")
			}
		}
		return nil
	}

	router := NewRouter(store, broadcaster, nil)
	if _, err := router.SubmitUnsubmittedItems(context.Background(), o.ID); err == nil {
		t.Fatal("SubmitUnsubmittedItems() error = nil, want failure")
	}

	if n := len(store.Tickets(o.ID)); n != 0 {
		t.Errorf("tickets = %d, want 0", n)
	}
	for _, item := range store.Items(o.ID) {
		if item.StationTicketID != nil || item.Status != "opened" {
			t.Errorf("item %s = %+v, want untouched", item.LineKey, item)
		}
	}
	if store.Order(o.ID).Status != "opened" {
		t.Errorf("status = %q, want opened", store.Order(o.ID).Status)
	}
	if len(broadcaster.Broadcasts()) != 0 {
		t.Errorf("broadcasts = %d, want 0", len(broadcaster.Broadcasts()))
	}
}

func TestRouterTicketSequencesUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	o := newTestOrder(store)
	router := NewRouter(store, nil, nil)

	const workers = 12
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := store.WithOrderLock(ctx, o.ID, func(ctx context.Context, tx Tx, _ *Order) error {
				item := &OrderItem{OrderID: o.ID, LineKey: uuid.NewString(), ItemType: "food", Status: "opened"}
				item.BeforeCreate()
				return tx.CreateItem(ctx, item)
			})
			if err == nil {
				_, err = router.SubmitUnsubmittedItems(ctx, o.ID)
			}
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent submit error = %v", err)
	}

	seen := map[int]bool{}
	for _, tk := range store.Tickets(o.ID) {
		if seen[tk.Sequence] {
			t.Errorf("duplicate kitchen ticket sequence %d", tk.Sequence)
		}
		seen[tk.Sequence] = true
	}
	for seq := 1; seq <= len(seen); seq++ {
		if !seen[seq] {
			t.Errorf("missing kitchen ticket sequence %d", seq)
		}
	}
	for _, item := range store.Items(o.ID) {
		if item.StationTicketID == nil {
			t.Errorf("item %s was never submitted", item.LineKey)
		}
	}
}

func TestRouterRollupBarrier(t *testing.T) {
	tests := []struct {
		name         string
		orderStatus  string
		tickets      []string
		wantAdvanced bool
		wantStatus   string
	}{
		{name: "oneOfTwoReady", orderStatus: "ordered", tickets: []string{"ready", "preparing"}, wantAdvanced: false, wantStatus: "ordered"},
		{name: "bothReady", orderStatus: "ordered", tickets: []string{"ready", "ready"}, wantAdvanced: true, wantStatus: "ready"},
		{name: "readyAndCollected", orderStatus: "preparing", tickets: []string{"collected", "ready"}, wantAdvanced: true, wantStatus: "ready"},
		{name: "noTickets", orderStatus: "ordered", tickets: nil, wantAdvanced: false, wantStatus: "ordered"},
		{name: "alreadyReady", orderStatus: "ready", tickets: []string{"ready"}, wantAdvanced: false, wantStatus: "ready"},
		{name: "pastPrep", orderStatus: "delivered", tickets: []string{"ready"}, wantAdvanced: false, wantStatus: "delivered"},
	}

	stations := []string{"kitchen", "bar"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMockStore()
			o := NewOrder("rest-1", "T1")
			o.Status = tt.orderStatus
			store.AddOrder(o)
			for i, status := range tt.tickets {
				tk := NewStationTicket(o.ID, stations[i%2], 1)
				tk.Status = status
				store.AddTicket(tk)
			}

			router := NewRouter(store, nil, nil)
			advanced, err := router.RollupOrderStatusIfReady(context.Background(), o.ID)
			if err != nil {
				t.Fatalf("RollupOrderStatusIfReady() error = %v", err)
			}
			if advanced != tt.wantAdvanced {
				t.Errorf("RollupOrderStatusIfReady() = %v, want %v", advanced, tt.wantAdvanced)
			}
			if got := store.Order(o.ID).Status; got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestRouterUpdateTicketStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	broadcaster := NewMockBroadcaster()
	o := NewOrder("rest-1", "T7")
	o.Status = "ordered"
	store.AddOrder(o)

	kitchen := NewStationTicket(o.ID, "kitchen", 1)
	bar := NewStationTicket(o.ID, "bar", 1)
	store.AddTicket(kitchen)
	store.AddTicket(bar)
	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "A", Name: "Steak", Notes: "medium rare\nno salt", Status: "ordered", StationTicketID: &kitchen.ID})

	router := NewRouter(store, broadcaster, nil)

	if _, err := router.UpdateTicketStatus(ctx, o.ID, kitchen.ID, "burnt"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("UpdateTicketStatus() invalid error = %v, want ErrInvalidStatus", err)
	}
	if _, err := router.UpdateTicketStatus(ctx, o.ID, uuid.New(), "ready"); !errors.Is(err, ErrTicketNotFound) {
		t.Errorf("UpdateTicketStatus() unknown error = %v, want ErrTicketNotFound", err)
	}

	got, err := router.UpdateTicketStatus(ctx, o.ID, kitchen.ID, "ready")
	if err != nil {
		t.Fatalf("UpdateTicketStatus() error = %v", err)
	}
	if got.Status != "ready" {
		t.Errorf("ticket status = %q, want ready", got.Status)
	}
	if store.Order(o.ID).Status != "ordered" {
		t.Errorf("order advanced with one ticket pending")
	}

	bs := broadcaster.Broadcasts()
	if len(bs) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(bs))
	}
	if bs[0].Event != event.EventTicketStatusChanged || bs[0].OldStatus != "ordered" || bs[0].NewStatus != "ready" {
		t.Errorf("broadcast = %+v, want status change ordered -> ready", bs[0])
	}
	if len(bs[0].Items) != 1 || bs[0].Items[0].Name != "Steak" || bs[0].Table != "T7" {
		t.Errorf("broadcast items = %+v, want the steak for T7", bs[0].Items)
	}

	if _, err := router.UpdateTicketStatus(ctx, o.ID, kitchen.ID, "ready"); err != nil {
		t.Fatalf("UpdateTicketStatus() repeat error = %v", err)
	}
	if len(broadcaster.Broadcasts()) != 1 {
		t.Errorf("repeated status should not broadcast")
	}

	if _, err := router.UpdateTicketStatus(ctx, o.ID, bar.ID, "ready"); err != nil {
		t.Fatalf("UpdateTicketStatus() bar error = %v", err)
	}
	if store.Order(o.ID).Status != "ready" {
		t.Errorf("status = %q, want ready once both tickets are ready", store.Order(o.ID).Status)
	}
}

func TestRouterSecondSubmissionIncrementsSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	o := newTestOrder(store)
	router := NewRouter(store, nil, nil)

	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "A", ItemType: "food", Status: "opened"})
	if _, err := router.SubmitUnsubmittedItems(ctx, o.ID); err != nil {
		t.Fatalf("first submit error = %v", err)
	}

	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "B", ItemType: "food", Status: "opened"})
	if _, err := router.SubmitUnsubmittedItems(ctx, o.ID); err != nil {
		t.Fatalf("second submit error = %v", err)
	}

	tickets := store.Tickets(o.ID)
	if len(tickets) != 2 || tickets[0].Sequence != 1 || tickets[1].Sequence != 2 {
		t.Errorf("tickets = %+v, want kitchen #1 and #2", tickets)
	}
}

func TestRouterRollupKeepsUnsubmittedItemsRoutable(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	broadcaster := NewMockBroadcaster()
	o := NewOrder("rest-1", "T2")
	o.Status = "ordered"
	store.AddOrder(o)

	kitchen := NewStationTicket(o.ID, "kitchen", 1)
	store.AddTicket(kitchen)
	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "A", Name: "Soup", ItemType: "food", Status: "ordered", StationTicketID: &kitchen.ID})
	store.AddItem(&OrderItem{OrderID: o.ID, LineKey: "B", Name: "Pie", ItemType: "food", Status: "opened"})

	router := NewRouter(store, broadcaster, nil)

	if _, err := router.UpdateTicketStatus(ctx, o.ID, kitchen.ID, "ready"); err != nil {
		t.Fatalf("UpdateTicketStatus() error = %v", err)
	}
	if store.Order(o.ID).Status != "ready" {
		t.Fatalf("status = %q, want ready", store.Order(o.ID).Status)
	}

	for _, item := range store.Items(o.ID) {
		want := "ready"
		if item.LineKey == "B" {
			want = "opened"
		}
		if item.Status != want {
			t.Errorf("item %s status = %q, want %q", item.LineKey, item.Status, want)
		}
	}

	submitted, err := router.SubmitUnsubmittedItems(ctx, o.ID)
	if err != nil {
		t.Fatalf("SubmitUnsubmittedItems() error = %v", err)
	}
	if !submitted {
		t.Fatal("SubmitUnsubmittedItems() = false, want the pending item routed")
	}

	var second *StationTicket
	for _, tk := range store.Tickets(o.ID) {
		if tk.Sequence == 2 {
			second = tk
		}
	}
	if second == nil || second.Station != "kitchen" {
		t.Fatalf("tickets = %+v, want kitchen #2", store.Tickets(o.ID))
	}
	for _, item := range store.Items(o.ID) {
		if item.LineKey == "B" && (item.StationTicketID == nil || *item.StationTicketID != second.ID) {
			t.Errorf("item B ticket = %v, want %s", item.StationTicketID, second.ID)
		}
	}
}
