package commands

import (
	"context"
	"fmt"

	"github.com/aquamarinepk/aqm"

	"github.com/appetiteclub/orderflow/services/order/internal/app"
)

// openCore opens the configured storage and wires the order core without a
// broadcaster. The returned func releases the storage.
func openCore(ctx context.Context, config *aqm.Config, logger aqm.Logger) (*app.Core, func(), error) {
	settings, err := app.LoadSettings(config)
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}

	storage, err := app.OpenStorage(ctx, config, settings, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	core := app.NewCore(app.CoreDeps{
		Storage:  storage,
		Menu:     app.MenuCatalog(settings),
		Settings: settings,
	}, logger)

	release := func() {
		if err := storage.Stop(context.Background()); err != nil {
			logger.Errorf("cannot close storage: %v", err)
		}
	}
	return core, release, nil
}
