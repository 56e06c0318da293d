package commands

import (
	"context"
	"fmt"

	"github.com/aquamarinepk/aqm"
)

// ResetDB deletes every order, item, ticket and event - USE WITH CAUTION
func ResetDB(ctx context.Context, config *aqm.Config, logger aqm.Logger) error {
	logger.Infof("⚠️  DANGER: This will delete ALL orders and events!")
	logger.Infof("⚠️  This action cannot be undone!")

	core, release, err := openCore(ctx, config, logger)
	if err != nil {
		return err
	}
	defer release()

	if err := core.Storage.Reset(ctx); err != nil {
		return fmt.Errorf("reset storage: %w", err)
	}
	return nil
}
