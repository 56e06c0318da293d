package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
)

// ProjectionResult summarizes one Project call.
type ProjectionResult struct {
	Applied int   `json:"applied"`
	Skipped int   `json:"skipped"`
	Ignored int   `json:"ignored"`
	Cursor  int64 `json:"cursor"`

	RemovedTickets []uuid.UUID `json:"removed_tickets,omitempty"`
}

type ProjectorDeps struct {
	Store Store
	// Events is optional. When nil the event log is read through the locked
	// transaction.
	Events      EventReader
	Menu        MenuCatalog
	Broadcaster TicketBroadcaster
}

// Projector replays unapplied events onto the persisted order aggregate.
type Projector struct {
	store       Store
	events      EventReader
	menu        MenuCatalog
	broadcaster TicketBroadcaster
	handlers    map[string]eventHandler
	logger      aqm.Logger
}

// projection is the state shared by handlers during a single Project call.
type projection struct {
	tx      Tx
	order   *Order
	pending *pendingBroadcasts
}

type eventHandler func(ctx context.Context, p *projection, ev *OrderEvent) error

func NewProjector(deps ProjectorDeps, logger aqm.Logger) *Projector {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	p := &Projector{
		store:       deps.Store,
		events:      deps.Events,
		menu:        deps.Menu,
		broadcaster: deps.Broadcaster,
		logger:      logger,
	}
	p.handlers = map[string]eventHandler{
		EventStatusChanged: p.applyStatus,
		EventBillRequested: p.applyStatus,
		EventPaid:          p.applyStatus,
		EventClosed:        p.applyStatus,
		EventItemAdded:     p.applyItemAdded,
		EventItemRemoved:   p.applyItemRemoved,
	}
	return p
}

// Project applies every event after the order's cursor and advances the
// cursor in the same transaction. Any error rolls everything back.
func (p *Projector) Project(ctx context.Context, orderID uuid.UUID) (ProjectionResult, error) {
	var result ProjectionResult
	pending := &pendingBroadcasts{}

	err := p.store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx Tx, o *Order) error {
		result = ProjectionResult{Cursor: o.LastProjectedSequence}
		pending.reset()

		evts, err := p.load(ctx, tx, orderID, o.LastProjectedSequence)
		if err != nil {
			return err
		}
		if len(evts) == 0 {
			return nil
		}

		proj := &projection{tx: tx, order: o, pending: pending}
		cursor := o.LastProjectedSequence

		for _, ev := range evts {
			if ev.Sequence <= o.LastProjectedSequence {
				continue
			}

			handler, ok := p.handlers[ev.EventType]
			if !ok {
				p.log().Info("ignoring unsupported event",
					"order_id", orderID,
					"sequence", ev.Sequence,
					"event_type", ev.EventType,
				)
				result.Ignored++
			} else if err := handler(ctx, proj, ev); err != nil {
				if !errors.Is(err, ErrMalformedPayload) {
					return fmt.Errorf("cannot apply %s at sequence %d: %w", ev.EventType, ev.Sequence, err)
				}
				p.log().Info("skipping malformed event",
					"order_id", orderID,
					"sequence", ev.Sequence,
					"event_type", ev.EventType,
					"error", err,
				)
				result.Skipped++
			} else {
				result.Applied++
			}

			if ev.Sequence > cursor {
				cursor = ev.Sequence
			}
		}

		if cursor == o.LastProjectedSequence {
			return nil
		}

		o.LastProjectedSequence = cursor
		o.BeforeUpdate()
		if err := tx.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("cannot save order: %w", err)
		}

		result.Cursor = cursor
		for _, b := range pending.items {
			result.RemovedTickets = append(result.RemovedTickets, b.Ticket.ID)
		}
		return nil
	})
	if err != nil {
		return ProjectionResult{}, err
	}

	pending.flush(ctx, p.broadcaster)

	if result.Applied+result.Skipped+result.Ignored > 0 {
		p.log().Debug("order projected",
			"order_id", orderID,
			"applied", result.Applied,
			"skipped", result.Skipped,
			"ignored", result.Ignored,
			"cursor", result.Cursor,
		)
	}
	return result, nil
}

func (p *Projector) load(ctx context.Context, tx Tx, orderID uuid.UUID, after int64) ([]*OrderEvent, error) {
	var reader EventReader = tx
	if p.events != nil {
		reader = p.events
	}
	evts, err := reader.EventsAfter(ctx, orderID, after)
	if err != nil {
		return nil, fmt.Errorf("cannot read events: %w", err)
	}
	return evts, nil
}

func (p *Projector) applyStatus(ctx context.Context, proj *projection, ev *OrderEvent) error {
	target, err := ev.TargetStatus()
	if err != nil {
		return err
	}

	t, err := applyTransition(ctx, proj.tx, proj.order, target, ev.OccurredAt)
	if err != nil {
		return err
	}
	if !t.changed {
		return nil
	}

	t.queueRemovals(proj.pending)
	return proj.tx.SaveOrder(ctx, proj.order)
}

func (p *Projector) applyItemAdded(ctx context.Context, proj *projection, ev *OrderEvent) error {
	added, err := ev.itemAdded()
	if err != nil {
		return err
	}

	existing, err := proj.tx.FindItemByLineKey(ctx, proj.order.ID, added.LineKey)
	if err != nil {
		return fmt.Errorf("cannot find item by line key: %w", err)
	}
	if existing != nil {
		return nil
	}

	item := &OrderItem{
		OrderID:    proj.order.ID,
		MenuItemID: added.MenuItemID,
		LineKey:    added.LineKey,
		Name:       added.Name,
		ItemType:   added.ItemType,
		Notes:      added.Notes,
		Status:     orderstatus.Statuses.Opened.Code(),
	}
	if ev.EntityID != nil {
		taken, err := proj.tx.ItemIDTaken(ctx, *ev.EntityID)
		if err != nil {
			return fmt.Errorf("cannot check item id: %w", err)
		}
		if taken {
			return fmt.Errorf("item_added entity_id %s already used by another line: %w", *ev.EntityID, ErrMalformedPayload)
		}
		item.ID = *ev.EntityID
	}
	if added.Price != nil {
		item.Price = *added.Price
	}

	if added.Price == nil || item.Name == "" || item.ItemType == "" {
		if err := p.fillFromMenu(ctx, item, added.Price == nil); err != nil {
			return err
		}
	}

	item.BeforeCreate()
	if err := proj.tx.CreateItem(ctx, item); err != nil {
		return fmt.Errorf("cannot create item: %w", err)
	}
	return nil
}

// fillFromMenu completes an item from the menu. A missing price is only
// fatal to the event when the menu cannot supply one; a menu outage aborts
// the projection only when the price depends on it.
func (p *Projector) fillFromMenu(ctx context.Context, item *OrderItem, needPrice bool) error {
	if p.menu == nil {
		if needPrice {
			return fmt.Errorf("item_added without price and no menu: %w", ErrMalformedPayload)
		}
		return nil
	}

	menuItem, err := p.menu.Lookup(ctx, item.MenuItemID)
	if err != nil {
		if !needPrice {
			p.log().Info("menu lookup failed, keeping item as sent",
				"menu_item_id", item.MenuItemID,
				"line_key", item.LineKey,
				"error", err,
			)
			return nil
		}
		if !isMenuMiss(err) {
			return err
		}
		return fmt.Errorf("item_added without price: %v: %w", err, ErrMalformedPayload)
	}

	if needPrice {
		if !menuItem.HasPrice {
			return fmt.Errorf("menu item %s has no price: %w", item.MenuItemID, ErrMalformedPayload)
		}
		item.Price = menuItem.Price
	}
	if item.Name == "" {
		item.Name = menuItem.Name
	}
	if item.ItemType == "" {
		item.ItemType = menuItem.ItemType
	}
	return nil
}

func (p *Projector) applyItemRemoved(ctx context.Context, proj *projection, ev *OrderEvent) error {
	ref, err := ev.itemRemoved()
	if err != nil {
		return err
	}

	var item *OrderItem
	if ref.LineKey != "" {
		item, err = proj.tx.FindItemByLineKey(ctx, proj.order.ID, ref.LineKey)
		if err != nil {
			return fmt.Errorf("cannot find item by line key: %w", err)
		}
	}
	if item == nil && ref.ItemID != nil {
		item, err = proj.tx.GetItem(ctx, proj.order.ID, *ref.ItemID)
		if err != nil {
			return fmt.Errorf("cannot get item: %w", err)
		}
	}
	if item == nil {
		p.log().Info("item to remove not found",
			"order_id", proj.order.ID,
			"sequence", ev.Sequence,
			"line_key", ref.LineKey,
		)
		return nil
	}

	item.Status = orderstatus.Statuses.Removed.Code()
	item.Price = 0
	item.BeforeUpdate()
	if err := proj.tx.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("cannot save item: %w", err)
	}
	return nil
}

func (p *Projector) log() aqm.Logger {
	return p.logger.With("component", "Projector")
}
