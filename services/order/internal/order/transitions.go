package order

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/pkg/event"
)

// transition carries the state touched while moving an order to a new status.
type transition struct {
	tx       Tx
	order    *Order
	at       time.Time
	changed  bool
	removed  []*StationTicket
	detached []*OrderItem
}

// sideEffect is one consequence of entering a status.
type sideEffect struct {
	name  string
	apply func(ctx context.Context, t *transition) error
}

var (
	stampOrdered = sideEffect{name: "stamp_ordered", apply: func(_ context.Context, t *transition) error {
		if t.order.OrderedAt == nil {
			t.order.OrderedAt = stamp(t.at)
		}
		return nil
	}}

	stampBillRequested = sideEffect{name: "stamp_bill_requested", apply: func(_ context.Context, t *transition) error {
		if t.order.BillRequestedAt == nil {
			t.order.BillRequestedAt = stamp(t.at)
		}
		return nil
	}}

	stampPaid = sideEffect{name: "stamp_paid", apply: func(_ context.Context, t *transition) error {
		if t.order.PaidAt == nil {
			t.order.PaidAt = stamp(t.at)
		}
		return nil
	}}

	// syncItems mirrors the order status onto every item that is still on the order.
	syncItems = sideEffect{name: "sync_items", apply: func(ctx context.Context, t *transition) error {
		items, err := t.tx.ListItems(ctx, t.order.ID)
		if err != nil {
			return fmt.Errorf("cannot list items: %w", err)
		}
		for _, item := range items {
			if item.IsRemoved() || item.Status == t.order.Status {
				continue
			}
			item.Status = t.order.Status
			item.BeforeUpdate()
			if err := t.tx.SaveItem(ctx, item); err != nil {
				return fmt.Errorf("cannot save item %s: %w", item.ID, err)
			}
		}
		return nil
	}}

	// syncTicketedItems mirrors the order status onto items already sent to a
	// station. Unsubmitted items keep their status so they can still be routed.
	syncTicketedItems = sideEffect{name: "sync_ticketed_items", apply: func(ctx context.Context, t *transition) error {
		items, err := t.tx.ListItems(ctx, t.order.ID)
		if err != nil {
			return fmt.Errorf("cannot list items: %w", err)
		}
		for _, item := range items {
			if item.StationTicketID == nil || item.IsRemoved() || item.Status == t.order.Status {
				continue
			}
			item.Status = t.order.Status
			item.BeforeUpdate()
			if err := t.tx.SaveItem(ctx, item); err != nil {
				return fmt.Errorf("cannot save item %s: %w", item.ID, err)
			}
		}
		return nil
	}}

	clearTickets = sideEffect{name: "clear_tickets", apply: func(ctx context.Context, t *transition) error {
		items, err := t.tx.ListItems(ctx, t.order.ID)
		if err != nil {
			return fmt.Errorf("cannot list items: %w", err)
		}
		for _, item := range items {
			if item.StationTicketID != nil {
				t.detached = append(t.detached, item)
			}
		}

		removed, err := t.tx.DeleteTickets(ctx, t.order.ID)
		if err != nil {
			return fmt.Errorf("cannot delete tickets: %w", err)
		}
		t.removed = append(t.removed, removed...)
		return nil
	}}
)

var statusEffects = map[string][]sideEffect{
	orderstatus.Statuses.Opened.Code():        {syncItems},
	orderstatus.Statuses.Ordered.Code():       {stampOrdered, syncItems},
	orderstatus.Statuses.Preparing.Code():     {syncItems},
	orderstatus.Statuses.Ready.Code():         {syncItems},
	orderstatus.Statuses.Delivered.Code():     {syncItems, clearTickets},
	orderstatus.Statuses.BillRequested.Code(): {stampBillRequested, syncItems, clearTickets},
	orderstatus.Statuses.Paid.Code():          {stampPaid, syncItems, clearTickets},
	orderstatus.Statuses.Closed.Code():        {syncItems, clearTickets},
}

// rollupEffects replace the ready effects when the order reaches ready
// because its tickets are done.
var rollupEffects = []sideEffect{syncTicketedItems}

// sideEffectsFor returns the ordered consequences of entering status.
func sideEffectsFor(status string) []sideEffect {
	return statusEffects[status]
}

// applyTransition moves the locked order to target and runs its side effects.
// It does not persist the order itself.
func applyTransition(ctx context.Context, tx Tx, o *Order, target string, at time.Time) (*transition, error) {
	return applyTransitionWith(ctx, tx, o, target, at, sideEffectsFor(target))
}

// applyTransitionWith is applyTransition with an explicit side effect list.
func applyTransitionWith(ctx context.Context, tx Tx, o *Order, target string, at time.Time, effects []sideEffect) (*transition, error) {
	t := &transition{tx: tx, order: o, at: at}
	if orderstatus.ByName(target) == nil {
		return t, fmt.Errorf("status %q: %w", target, ErrInvalidStatus)
	}
	if o.Status == target {
		return t, nil
	}

	o.Status = target
	o.BeforeUpdate()
	t.changed = true

	for _, effect := range effects {
		if err := effect.apply(ctx, t); err != nil {
			return t, fmt.Errorf("%s: %w", effect.name, err)
		}
	}
	return t, nil
}

// queueRemovals records a ticket.removed broadcast for every deleted ticket.
func (t *transition) queueRemovals(p *pendingBroadcasts) {
	for _, ticket := range t.removed {
		p.add(event.EventTicketRemoved, t.order, ticket, t.detached, ticket.Status, "")
	}
}

func stamp(at time.Time) *time.Time {
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC()
	return &ts
}
