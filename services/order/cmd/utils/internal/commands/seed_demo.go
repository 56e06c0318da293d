package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm"

	"github.com/appetiteclub/orderflow/services/order/cmd/utils/internal/seeding"
)

// SeedDemo creates demo orders, projects them and moves their tickets along.
func SeedDemo(ctx context.Context, config *aqm.Config, logger aqm.Logger) error {
	logger.Info("Starting demo seeding process...")

	core, release, err := openCore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer release()

	count, err := core.Storage.SQL.CountRestaurantOrders(ctx, seeding.DemoRestaurant)
	if err != nil {
		return fmt.Errorf("check seed status: %w", err)
	}
	if count > 0 {
		logger.Info("Order demo seeds already applied, skipping")
		return nil
	}

	demo, err := seeding.SeedOrders(ctx, core.Storage, seeding.DemoScenarios, time.Now())
	if err != nil {
		return fmt.Errorf("seed orders: %w", err)
	}

	for _, d := range demo {
		if _, err := core.Projector.Project(ctx, d.OrderID); err != nil {
			return fmt.Errorf("project table %s: %w", d.Scenario.Table, err)
		}
		if _, err := core.Router.SubmitUnsubmittedItems(ctx, d.OrderID); err != nil {
			return fmt.Errorf("submit table %s: %w", d.Scenario.Table, err)
		}
		if err := seeding.AdvanceTickets(ctx, core.Storage.SQL, core.Router, d.OrderID, d.Scenario.TicketStatus); err != nil {
			return fmt.Errorf("advance table %s: %w", d.Scenario.Table, err)
		}
		logger.Infof("Seeded table %s: %s", d.Scenario.Table, d.Scenario.Description)
	}

	logger.Infof("Order demo seeds applied successfully (%d orders)", len(demo))
	return nil
}
