package order

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"

	"github.com/appetiteclub/orderflow/pkg/event"
)

// TicketBroadcast is a committed ticket change ready to be sent to displays.
type TicketBroadcast struct {
	Event        string
	RestaurantID string
	Table        string
	Ticket       StationTicket
	Items        []OrderItem
	OldStatus    string
	NewStatus    string
}

// TicketBroadcaster delivers ticket changes to station displays. Delivery is
// best effort; implementations never fail the caller.
type TicketBroadcaster interface {
	Broadcast(ctx context.Context, b TicketBroadcast)
}

// NATSTicketBroadcaster publishes ticket events on per-station subjects.
type NATSTicketBroadcaster struct {
	publisher         events.Publisher
	defaultRestaurant string
	logger            aqm.Logger
}

func NewNATSTicketBroadcaster(publisher events.Publisher, defaultRestaurant string, logger aqm.Logger) *NATSTicketBroadcaster {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &NATSTicketBroadcaster{
		publisher:         publisher,
		defaultRestaurant: defaultRestaurant,
		logger:            logger,
	}
}

func (b *NATSTicketBroadcaster) Broadcast(ctx context.Context, msg TicketBroadcast) {
	if b.publisher == nil {
		return
	}

	restaurant := msg.RestaurantID
	if restaurant == "" {
		restaurant = b.defaultRestaurant
	}
	topic := event.TicketTopic(restaurant, msg.Ticket.Station)

	data, err := json.Marshal(buildTicketEvent(msg, time.Now().UTC()))
	if err != nil {
		b.log().Error("cannot encode ticket event", "ticket_id", msg.Ticket.ID, "error", err)
		return
	}

	if err := b.publisher.Publish(ctx, topic, data); err != nil {
		b.log().Error("cannot publish ticket event",
			"topic", topic,
			"event", msg.Event,
			"ticket_id", msg.Ticket.ID,
			"error", err,
		)
		return
	}

	b.log().Debug("ticket event published", "topic", topic, "event", msg.Event, "ticket_id", msg.Ticket.ID)
}

func (b *NATSTicketBroadcaster) log() aqm.Logger {
	return b.logger.With("component", "NATSTicketBroadcaster")
}

func buildTicketEvent(msg TicketBroadcast, now time.Time) event.TicketEvent {
	items := make([]event.TicketItem, 0, len(msg.Items))
	for _, item := range msg.Items {
		items = append(items, event.TicketItem{
			ID:    item.ID.String(),
			Name:  item.Name,
			Notes: splitNotes(item.Notes),
		})
	}

	evt := event.TicketEvent{
		Event: msg.Event,
		Ticket: event.TicketPayload{
			ID:        msg.Ticket.ID.String(),
			Station:   msg.Ticket.Station,
			Status:    msg.Ticket.Status,
			Sequence:  msg.Ticket.Sequence,
			OrderID:   msg.Ticket.OrderID.String(),
			Table:     msg.Table,
			CreatedAt: msg.Ticket.SubmittedAt,
			Items:     items,
		},
		Timestamp: now,
	}

	if msg.Event == event.EventTicketStatusChanged {
		evt.OldStatus = msg.OldStatus
		evt.NewStatus = msg.NewStatus
	}
	return evt
}

func splitNotes(notes string) []string {
	out := []string{}
	for _, line := range strings.Split(notes, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// pendingBroadcasts collects ticket changes made inside a locked section so
// they can be sent once the transaction has committed.
type pendingBroadcasts struct {
	items []TicketBroadcast
}

func (p *pendingBroadcasts) add(evt string, o *Order, t *StationTicket, items []*OrderItem, oldStatus, newStatus string) {
	b := TicketBroadcast{
		Event:        evt,
		RestaurantID: o.RestaurantID,
		Table:        o.TableNumber,
		Ticket:       *t,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
	}
	for _, item := range items {
		if item.StationTicketID != nil && *item.StationTicketID == t.ID {
			b.Items = append(b.Items, *item)
		}
	}
	p.items = append(p.items, b)
}

func (p *pendingBroadcasts) reset() {
	p.items = nil
}

func (p *pendingBroadcasts) flush(ctx context.Context, b TicketBroadcaster) {
	if b == nil {
		return
	}
	for _, msg := range p.items {
		b.Broadcast(ctx, msg)
	}
}
