package commands

import (
	"context"
	"fmt"

	"github.com/aquamarinepk/aqm"
)

// Migrate applies the schema of the configured SQL driver.
func Migrate(ctx context.Context, config *aqm.Config, logger aqm.Logger) error {
	core, release, err := openCore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer release()

	// Opening already migrates; running it again checks the schema is idempotent.
	if err := core.Storage.SQL.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Infof("Schema applied for %s", core.Storage.SQL.Dialect().Name)
	return nil
}
