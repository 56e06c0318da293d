package commands

import (
	"context"
	"fmt"

	"github.com/aquamarinepk/aqm"

	"github.com/appetiteclub/orderflow/services/order/cmd/utils/internal/seeding"
)

// ClearDemo removes the demo orders and their events.
func ClearDemo(ctx context.Context, config *aqm.Config, logger aqm.Logger) error {
	logger.Info("Clearing demo data...")

	core, release, err := openCore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer release()

	n, err := core.Storage.DeleteRestaurantOrders(ctx, seeding.DemoRestaurant)
	if err != nil {
		return fmt.Errorf("clear demo orders: %w", err)
	}

	logger.Infof("Removed %d demo orders", n)
	return nil
}
