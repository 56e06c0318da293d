package order

import (
	"context"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
	"github.com/appetiteclub/orderflow/pkg/enums/station"
	"github.com/appetiteclub/orderflow/pkg/enums/ticketstatus"
	"github.com/appetiteclub/orderflow/pkg/event"
)

// Router turns submitted items into station tickets and folds ticket
// completion back into the order status.
type Router struct {
	store       Store
	broadcaster TicketBroadcaster
	logger      aqm.Logger
}

func NewRouter(store Store, broadcaster TicketBroadcaster, logger aqm.Logger) *Router {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Router{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// SubmitUnsubmittedItems cuts one ticket per station for every item that is
// not on a ticket yet. It reports false when there was nothing to submit.
func (r *Router) SubmitUnsubmittedItems(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var submitted bool
	pending := &pendingBroadcasts{}

	err := r.store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, o *Order) error {
		submitted = false
		pending.reset()

		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return fmt.Errorf("cannot list items: %w", err)
		}

		groups := map[string][]*OrderItem{}
		for _, item := range items {
			if !item.IsUnsubmitted() {
				continue
			}
			st := station.ForItemType(item.ItemType)
			groups[st.Code()] = append(groups[st.Code()], item)
		}
		if len(groups) == 0 {
			return nil
		}

		var tickets []*StationTicket
		for _, st := range station.All {
			group := groups[st.Code()]
			if len(group) == 0 {
				continue
			}

			last, err := tx.MaxTicketSequence(ctx, orderID, st.Code())
			if err != nil {
				return fmt.Errorf("cannot read %s ticket sequence: %w", st.Code(), err)
			}

			ticket := NewStationTicket(orderID, st.Code(), last+1)
			if err := tx.CreateTicket(ctx, ticket); err != nil {
				return fmt.Errorf("cannot create %s ticket: %w", st.Code(), err)
			}

			for _, item := range group {
				id := ticket.ID
				item.StationTicketID = &id
				if item.Status == orderstatus.Statuses.Opened.Code() {
					item.Status = orderstatus.Statuses.Ordered.Code()
				}
				item.BeforeUpdate()
				if err := tx.SaveItem(ctx, item); err != nil {
					return fmt.Errorf("cannot attach item %s: %w", item.ID, err)
				}
			}
			tickets = append(tickets, ticket)
		}

		if o.Status == orderstatus.Statuses.Opened.Code() {
			if _, err := applyTransition(ctx, tx, o, orderstatus.Statuses.Ordered.Code(), time.Now()); err != nil {
				return err
			}
			if err := tx.SaveOrder(ctx, o); err != nil {
				return fmt.Errorf("cannot save order: %w", err)
			}
		}

		for _, ticket := range tickets {
			pending.add(event.EventTicketCreated, o, ticket, items, "", "")
		}
		submitted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	pending.flush(ctx, r.broadcaster)

	if submitted {
		r.log().Info("items submitted to stations", "order_id", orderID, "tickets", len(pending.items))
	}
	return submitted, nil
}

// RollupOrderStatusIfReady moves the order to ready once every ticket is done.
func (r *Router) RollupOrderStatusIfReady(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var advanced bool
	err := r.store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, o *Order) error {
		var err error
		advanced, err = rollup(ctx, tx, o)
		return err
	})
	if err != nil {
		return false, err
	}
	if advanced {
		r.log().Info("order ready", "order_id", orderID)
	}
	return advanced, nil
}

// UpdateTicketStatus records a station report for a ticket and re-evaluates
// the order rollup under the same lock.
func (r *Router) UpdateTicketStatus(ctx context.Context, orderID, ticketID uuid.UUID, status string) (*StationTicket, error) {
	if ticketstatus.ByName(status) == nil {
		return nil, fmt.Errorf("ticket status %q: %w", status, ErrInvalidStatus)
	}

	var updated *StationTicket
	var advanced bool
	pending := &pendingBroadcasts{}

	err := r.store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, o *Order) error {
		pending.reset()
		advanced = false

		ticket, err := tx.GetTicket(ctx, orderID, ticketID)
		if err != nil {
			return fmt.Errorf("cannot get ticket: %w", err)
		}
		if ticket == nil {
			return ErrTicketNotFound
		}
		updated = ticket

		if ticket.Status == status {
			return nil
		}

		old := ticket.Status
		ticket.Status = status
		ticket.UpdatedAt = time.Now().UTC()
		if err := tx.SaveTicket(ctx, ticket); err != nil {
			return fmt.Errorf("cannot save ticket: %w", err)
		}

		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return fmt.Errorf("cannot list items: %w", err)
		}
		pending.add(event.EventTicketStatusChanged, o, ticket, items, old, status)

		advanced, err = rollup(ctx, tx, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	pending.flush(ctx, r.broadcaster)

	if advanced {
		r.log().Info("order ready", "order_id", orderID, "ticket_id", ticketID)
	}
	return updated, nil
}

// BroadcastTicketEvent sends a ticket event to the displays of its station.
func (r *Router) BroadcastTicketEvent(ctx context.Context, o *Order, ticket *StationTicket, items []*OrderItem, evt, oldStatus, newStatus string) {
	if r.broadcaster == nil || o == nil || ticket == nil {
		return
	}
	p := &pendingBroadcasts{}
	p.add(evt, o, ticket, items, oldStatus, newStatus)
	p.flush(ctx, r.broadcaster)
}

// rollup is the fan-in barrier between station tickets and the order. A
// ticket passes the barrier once it is ready or already collected.
func rollup(ctx context.Context, tx Tx, o *Order) (bool, error) {
	if !orderstatus.IsActivePrep(o.Status) {
		return false, nil
	}

	tickets, err := tx.ListTickets(ctx, o.ID)
	if err != nil {
		return false, fmt.Errorf("cannot list tickets: %w", err)
	}
	if len(tickets) == 0 {
		return false, nil
	}
	for _, t := range tickets {
		if !t.IsDone() {
			return false, nil
		}
	}

	if _, err := applyTransitionWith(ctx, tx, o, orderstatus.Statuses.Ready.Code(), time.Now(), rollupEffects); err != nil {
		return false, err
	}
	if err := tx.SaveOrder(ctx, o); err != nil {
		return false, fmt.Errorf("cannot save order: %w", err)
	}
	return true, nil
}

func (r *Router) log() aqm.Logger {
	return r.logger.With("component", "Router")
}
