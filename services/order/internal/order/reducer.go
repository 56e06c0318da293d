package order

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/appetiteclub/orderflow/pkg/enums/orderstatus"
)

// State is an in-memory snapshot folded from an event list.
type State struct {
	Status          string                `json:"status"`
	OrderedAt       *time.Time            `json:"ordered_at,omitempty"`
	BillRequestedAt *time.Time            `json:"bill_requested_at,omitempty"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	Items           map[string]*ItemState `json:"items"`
	LastSequence    int64                 `json:"last_sequence"`
}

type ItemState struct {
	Key        string   `json:"key"`
	LineKey    string   `json:"line_key"`
	MenuItemID string   `json:"menu_item_id"`
	Name       string   `json:"name,omitempty"`
	ItemType   string   `json:"item_type,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Status     string   `json:"status"`
}

type ReduceResult struct {
	State       State         `json:"state"`
	Unsupported []*OrderEvent `json:"unsupported_events"`
	Malformed   []*OrderEvent `json:"malformed_events,omitempty"`
}

// Reduce folds events into a State. The input is not modified and the output
// does not depend on its order. Reduce never fails: events it cannot
// interpret are reported in the result.
func Reduce(evts []*OrderEvent) ReduceResult {
	sorted := make([]*OrderEvent, 0, len(evts))
	for _, ev := range evts {
		if ev != nil {
			sorted = append(sorted, ev)
		}
	}
	slices.SortStableFunc(sorted, compareEvents)

	r := &reducer{
		state: State{
			Status: orderstatus.Statuses.Opened.Code(),
			Items:  map[string]*ItemState{},
		},
	}
	for _, ev := range sorted {
		r.apply(ev)
		if ev.Sequence > r.state.LastSequence {
			r.state.LastSequence = ev.Sequence
		}
	}

	return ReduceResult{
		State:       r.state,
		Unsupported: r.unsupported,
		Malformed:   r.malformed,
	}
}

func compareEvents(a, b *OrderEvent) int {
	if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
		return c
	}
	if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

type reducer struct {
	state       State
	unsupported []*OrderEvent
	malformed   []*OrderEvent
}

func (r *reducer) apply(ev *OrderEvent) {
	var err error
	switch {
	case IsStatusEvent(ev.EventType):
		err = r.applyStatus(ev)
	case ev.EventType == EventItemAdded:
		err = r.applyItemAdded(ev)
	case ev.EventType == EventItemRemoved:
		err = r.applyItemRemoved(ev)
	default:
		r.unsupported = append(r.unsupported, ev)
		return
	}
	if err != nil {
		r.malformed = append(r.malformed, ev)
	}
}

func (r *reducer) applyStatus(ev *OrderEvent) error {
	target, err := ev.TargetStatus()
	if err != nil {
		return err
	}
	if r.state.Status == target {
		return nil
	}
	r.state.Status = target

	switch target {
	case orderstatus.Statuses.Ordered.Code():
		if r.state.OrderedAt == nil {
			r.state.OrderedAt = stamp(ev.OccurredAt)
		}
	case orderstatus.Statuses.BillRequested.Code():
		if r.state.BillRequestedAt == nil {
			r.state.BillRequestedAt = stamp(ev.OccurredAt)
		}
	case orderstatus.Statuses.Paid.Code():
		if r.state.PaidAt == nil {
			r.state.PaidAt = stamp(ev.OccurredAt)
		}
	}

	for _, item := range r.state.Items {
		if item.Status != orderstatus.Statuses.Removed.Code() {
			item.Status = target
		}
	}
	return nil
}

func (r *reducer) applyItemAdded(ev *OrderEvent) error {
	added, err := ev.itemAdded()
	if err != nil {
		return err
	}
	if r.findByLineKey(added.LineKey) != nil {
		return nil
	}

	key := itemKey(ev)
	item := &ItemState{
		Key:        key,
		LineKey:    added.LineKey,
		MenuItemID: added.MenuItemID.String(),
		Name:       added.Name,
		ItemType:   added.ItemType,
		Status:     orderstatus.Statuses.Opened.Code(),
	}
	if added.Price != nil {
		price := *added.Price
		item.Price = &price
	}
	r.state.Items[key] = item
	return nil
}

func (r *reducer) applyItemRemoved(ev *OrderEvent) error {
	ref, err := ev.itemRemoved()
	if err != nil {
		return err
	}

	var item *ItemState
	if ref.LineKey != "" {
		item = r.findByLineKey(ref.LineKey)
	}
	if item == nil && ref.ItemID != nil {
		item = r.state.Items[ref.ItemID.String()]
	}
	if item == nil {
		return nil
	}

	zero := 0.0
	item.Status = orderstatus.Statuses.Removed.Code()
	item.Price = &zero
	return nil
}

func (r *reducer) findByLineKey(lineKey string) *ItemState {
	for _, item := range r.state.Items {
		if item.LineKey == lineKey {
			return item
		}
	}
	return nil
}

// itemKey is the entity id when present, else derived from the sequence.
func itemKey(ev *OrderEvent) string {
	if ev.EntityID != nil {
		return ev.EntityID.String()
	}
	return fmt.Sprintf("seq-%d", ev.Sequence)
}
