package seeding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/enums/ticketstatus"
	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

// AdvanceTickets reports status for every open ticket of the order, walking
// through the intermediate statuses the way a station display would.
func AdvanceTickets(ctx context.Context, store order.Store, router *order.Router, orderID uuid.UUID, status string) error {
	if status == "" {
		return nil
	}
	path, err := statusPath(status)
	if err != nil {
		return err
	}

	var ids []uuid.UUID
	err = store.WithOrderLock(ctx, orderID, func(ctx context.Context, tx order.Tx, _ *order.Order) error {
		tickets, err := tx.ListTickets(ctx, orderID)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			ids = append(ids, t.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot list tickets: %w", err)
	}

	for _, id := range ids {
		for _, step := range path {
			if _, err := router.UpdateTicketStatus(ctx, orderID, id, step); err != nil {
				return fmt.Errorf("cannot move ticket %s to %s: %w", id, step, err)
			}
		}
	}
	return nil
}

// statusPath lists the statuses after ordered up to and including target.
func statusPath(target string) ([]string, error) {
	steps := []string{
		ticketstatus.Statuses.Preparing.Code(),
		ticketstatus.Statuses.Ready.Code(),
		ticketstatus.Statuses.Collected.Code(),
	}
	for i, s := range steps {
		if s == target {
			return steps[:i+1], nil
		}
	}
	return nil, fmt.Errorf("unsupported ticket status %q", target)
}
