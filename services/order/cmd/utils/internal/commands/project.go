package commands

import (
	"context"
	"fmt"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

// Project runs one reconciliation pass, or projects a single order when an
// id is given.
func Project(ctx context.Context, config *aqm.Config, logger aqm.Logger, orderID string) error {
	core, release, err := openCore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer release()

	if orderID == "" {
		report, err := core.Reconciler.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		logger.Infof("Reconciled %d orders (%d failed)", report.Orders, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d orders failed to reconcile", report.Failed)
		}
		return nil
	}

	id, err := uuid.Parse(orderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	result, err := core.Projector.Project(ctx, id)
	if err != nil {
		return fmt.Errorf("project %s: %w", id, err)
	}
	submitted, err := core.Router.SubmitUnsubmittedItems(ctx, id)
	if err != nil {
		return fmt.Errorf("submit %s: %w", id, err)
	}

	logger.Infof("Order %s: applied=%d skipped=%d ignored=%d cursor=%d submitted=%t",
		id, result.Applied, result.Skipped, result.Ignored, result.Cursor, submitted)
	return nil
}
