package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"
)

// MockStore is an in-memory Store. Each order has its own mutex and every
// locked section works on copies that are only written back on success.
type MockStore struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
	orders  map[uuid.UUID]*Order
	items   map[uuid.UUID]*OrderItem
	tickets map[uuid.UUID]*StationTicket
	events  map[uuid.UUID][]*OrderEvent

	// FailFunc lets a test fail a named Tx method.
	FailFunc        func(method string) error
	EventsAfterFunc func(ctx context.Context, orderID uuid.UUID, after int64) ([]*OrderEvent, error)

	commits int
}

func NewMockStore() *MockStore {
	return &MockStore{
		locks:   make(map[uuid.UUID]*sync.Mutex),
		orders:  make(map[uuid.UUID]*Order),
		items:   make(map[uuid.UUID]*OrderItem),
		tickets: make(map[uuid.UUID]*StationTicket),
		events:  make(map[uuid.UUID][]*OrderEvent),
	}
}

func (s *MockStore) AddOrder(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	s.orders[o.ID] = &c
}

func (s *MockStore) AddItem(item *OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.EnsureID()
	s.items[item.ID] = cloneItem(item)
}

func (s *MockStore) AddTicket(t *StationTicket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.tickets[t.ID] = &c
}

// AppendEvent stores an event, assigning the next sequence when it has none.
func (s *MockStore) AppendEvent(ev *OrderEvent) *OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Sequence == 0 {
		var last int64
		for _, e := range s.events[ev.OrderID] {
			if e.Sequence > last {
				last = e.Sequence
			}
		}
		ev.Sequence = last + 1
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = ev.OccurredAt
	}
	s.events[ev.OrderID] = append(s.events[ev.OrderID], ev)
	return ev
}

func (s *MockStore) Order(id uuid.UUID) *Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	c := *o
	return &c
}

func (s *MockStore) Items(orderID uuid.UUID) []*OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedItems(s.items, orderID)
}

func (s *MockStore) Tickets(orderID uuid.UUID) []*StationTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedTickets(s.tickets, orderID)
}

func (s *MockStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MockStore) EventsAfter(ctx context.Context, orderID uuid.UUID, after int64) ([]*OrderEvent, error) {
	if s.EventsAfterFunc != nil {
		return s.EventsAfterFunc(ctx, orderID, after)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*OrderEvent
	for _, ev := range s.events[orderID] {
		if ev.Sequence > after {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MockStore) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	if o := s.Order(id); o != nil {
		return o, nil
	}
	return nil, ErrOrderNotFound
}

func (s *MockStore) ListItems(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error) {
	return s.Items(orderID), nil
}

func (s *MockStore) ListTickets(ctx context.Context, orderID uuid.UUID) ([]*StationTicket, error) {
	return s.Tickets(orderID), nil
}

func (s *MockStore) ListLaggingOrders(ctx context.Context, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, o := range s.orders {
		for _, ev := range s.events[id] {
			if ev.Sequence > o.LastProjectedSequence {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MockStore) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MockStore) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context, tx Tx, o *Order) error) error {
	l := s.lockFor(orderID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	stored, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	o := *stored
	tx := &mockTx{
		store:   s,
		orderID: orderID,
		items:   make(map[uuid.UUID]*OrderItem),
		tickets: make(map[uuid.UUID]*StationTicket),
	}
	for id, item := range s.items {
		if item.OrderID == orderID {
			tx.items[id] = cloneItem(item)
		}
	}
	for id, t := range s.tickets {
		if t.OrderID == orderID {
			c := *t
			tx.tickets[id] = &c
		}
	}
	s.mu.Unlock()

	if err := fn(ctx, tx, &o); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.order != nil {
		s.orders[orderID] = tx.order
	}
	for id, item := range s.items {
		if item.OrderID == orderID {
			delete(s.items, id)
		}
	}
	for id, item := range tx.items {
		s.items[id] = item
	}
	for id, t := range s.tickets {
		if t.OrderID == orderID {
			delete(s.tickets, id)
		}
	}
	for id, t := range tx.tickets {
		s.tickets[id] = t
	}
	s.commits++
	return nil
}

type mockTx struct {
	store   *MockStore
	orderID uuid.UUID
	order   *Order
	items   map[uuid.UUID]*OrderItem
	tickets map[uuid.UUID]*StationTicket
}

func (tx *mockTx) fail(method string) error {
	if tx.store.FailFunc != nil {
		return tx.store.FailFunc(method)
	}
	return nil
}

func (tx *mockTx) SaveOrder(ctx context.Context, o *Order) error {
	if err := tx.fail("SaveOrder"); err != nil {
		return err
	}
	c := *o
	tx.order = &c
	return nil
}

func (tx *mockTx) ListItems(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error) {
	if err := tx.fail("ListItems"); err != nil {
		return nil, err
	}
	return sortedItems(tx.items, orderID), nil
}

func (tx *mockTx) FindItemByLineKey(ctx context.Context, orderID uuid.UUID, lineKey string) (*OrderItem, error) {
	if err := tx.fail("FindItemByLineKey"); err != nil {
		return nil, err
	}
	for _, item := range tx.items {
		if item.OrderID == orderID && item.LineKey == lineKey {
			return cloneItem(item), nil
		}
	}
	return nil, nil
}

func (tx *mockTx) GetItem(ctx context.Context, orderID, itemID uuid.UUID) (*OrderItem, error) {
	if err := tx.fail("GetItem"); err != nil {
		return nil, err
	}
	item, ok := tx.items[itemID]
	if !ok || item.OrderID != orderID {
		return nil, nil
	}
	return cloneItem(item), nil
}

func (tx *mockTx) ItemIDTaken(ctx context.Context, itemID uuid.UUID) (bool, error) {
	if err := tx.fail("ItemIDTaken"); err != nil {
		return false, err
	}
	if _, ok := tx.items[itemID]; ok {
		return true, nil
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	item, ok := tx.store.items[itemID]
	return ok && item.OrderID != tx.orderID, nil
}

func (tx *mockTx) CreateItem(ctx context.Context, item *OrderItem) error {
	if err := tx.fail("CreateItem"); err != nil {
		return err
	}
	for _, existing := range tx.items {
		if existing.LineKey == item.LineKey {
			return fmt.Errorf("duplicate line key %q", item.LineKey)
		}
	}
	if _, ok := tx.items[item.ID]; ok {
		return fmt.Errorf("duplicate item id %s", item.ID)
	}
	tx.items[item.ID] = cloneItem(item)
	return nil
}

func (tx *mockTx) SaveItem(ctx context.Context, item *OrderItem) error {
	if err := tx.fail("SaveItem"); err != nil {
		return err
	}
	if _, ok := tx.items[item.ID]; !ok {
		return fmt.Errorf("item %s not found", item.ID)
	}
	tx.items[item.ID] = cloneItem(item)
	return nil
}

func (tx *mockTx) ListTickets(ctx context.Context, orderID uuid.UUID) ([]*StationTicket, error) {
	if err := tx.fail("ListTickets"); err != nil {
		return nil, err
	}
	return sortedTickets(tx.tickets, orderID), nil
}

func (tx *mockTx) GetTicket(ctx context.Context, orderID, ticketID uuid.UUID) (*StationTicket, error) {
	if err := tx.fail("GetTicket"); err != nil {
		return nil, err
	}
	t, ok := tx.tickets[ticketID]
	if !ok || t.OrderID != orderID {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (tx *mockTx) MaxTicketSequence(ctx context.Context, orderID uuid.UUID, station string) (int, error) {
	if err := tx.fail("MaxTicketSequence"); err != nil {
		return 0, err
	}
	highest := 0
	for _, t := range tx.tickets {
		if t.OrderID == orderID && t.Station == station && t.Sequence > highest {
			highest = t.Sequence
		}
	}
	return highest, nil
}

func (tx *mockTx) CreateTicket(ctx context.Context, ticket *StationTicket) error {
	if err := tx.fail("CreateTicket"); err != nil {
		return err
	}
	for _, t := range tx.tickets {
		if t.OrderID == ticket.OrderID && t.Station == ticket.Station && t.Sequence == ticket.Sequence {
			return fmt.Errorf("duplicate %s ticket sequence %d", ticket.Station, ticket.Sequence)
		}
	}
	c := *ticket
	tx.tickets[ticket.ID] = &c
	return nil
}

func (tx *mockTx) SaveTicket(ctx context.Context, ticket *StationTicket) error {
	if err := tx.fail("SaveTicket"); err != nil {
		return err
	}
	if _, ok := tx.tickets[ticket.ID]; !ok {
		return fmt.Errorf("ticket %s not found", ticket.ID)
	}
	c := *ticket
	tx.tickets[ticket.ID] = &c
	return nil
}

func (tx *mockTx) DeleteTickets(ctx context.Context, orderID uuid.UUID) ([]*StationTicket, error) {
	if err := tx.fail("DeleteTickets"); err != nil {
		return nil, err
	}
	for _, item := range tx.items {
		if item.OrderID == orderID {
			item.StationTicketID = nil
		}
	}
	removed := sortedTickets(tx.tickets, orderID)
	for _, t := range removed {
		delete(tx.tickets, t.ID)
	}
	return removed, nil
}

func (tx *mockTx) EventsAfter(ctx context.Context, orderID uuid.UUID, after int64) ([]*OrderEvent, error) {
	if err := tx.fail("EventsAfter"); err != nil {
		return nil, err
	}
	return tx.store.EventsAfter(ctx, orderID, after)
}

func cloneItem(item *OrderItem) *OrderItem {
	c := *item
	if item.StationTicketID != nil {
		id := *item.StationTicketID
		c.StationTicketID = &id
	}
	return &c
}

func sortedItems(items map[uuid.UUID]*OrderItem, orderID uuid.UUID) []*OrderItem {
	var out []*OrderItem
	for _, item := range items {
		if item.OrderID == orderID {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LineKey != out[j].LineKey {
			return out[i].LineKey < out[j].LineKey
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func sortedTickets(tickets map[uuid.UUID]*StationTicket, orderID uuid.UUID) []*StationTicket {
	var out []*StationTicket
	for _, t := range tickets {
		if t.OrderID == orderID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Station != out[j].Station {
			return out[i].Station < out[j].Station
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// MockPublisher is a mock implementation of events.Publisher for testing
type MockPublisher struct {
	mu          sync.Mutex
	messages    []publishedMessage
	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

type publishedMessage struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{Topic: topic, Data: msg})
	return nil
}

func (m *MockPublisher) Messages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.messages...)
}

// MockSubscriber is a mock implementation of events.Subscriber for testing
type MockSubscriber struct {
	mu            sync.Mutex
	handlers      map[string]events.HandlerFunc
	SubscribeFunc func(ctx context.Context, topic string, handler events.HandlerFunc) error
}

func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{handlers: make(map[string]events.HandlerFunc)}
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic, handler)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockSubscriber) Deliver(ctx context.Context, topic string, msg []byte) error {
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for %s", topic)
	}
	return h(ctx, msg)
}

// MockMenuCatalog is a mock implementation of MenuCatalog for testing
type MockMenuCatalog struct {
	items      map[uuid.UUID]*MenuItem
	calls      int
	LookupFunc func(ctx context.Context, menuItemID uuid.UUID) (*MenuItem, error)
}

func NewMockMenuCatalog(items ...*MenuItem) *MockMenuCatalog {
	m := &MockMenuCatalog{items: make(map[uuid.UUID]*MenuItem)}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

func (m *MockMenuCatalog) Lookup(ctx context.Context, menuItemID uuid.UUID) (*MenuItem, error) {
	m.calls++
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, menuItemID)
	}
	item, ok := m.items[menuItemID]
	if !ok {
		return nil, ErrMenuItemNotFound
	}
	c := *item
	return &c, nil
}

// MockBroadcaster records broadcasts in the order they were sent.
type MockBroadcaster struct {
	mu  sync.Mutex
	got []TicketBroadcast
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, b TicketBroadcast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, b)
}

func (m *MockBroadcaster) Broadcasts() []TicketBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TicketBroadcast(nil), m.got...)
}

func (m *MockBroadcaster) Count(evt string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.got {
		if b.Event == evt {
			n++
		}
	}
	return n
}

func payload(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func price(v float64) *float64 {
	return &v
}
