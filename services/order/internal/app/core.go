package app

import (
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

// Core is the wired order lifecycle: projector, router and reconciler over
// one storage.
type Core struct {
	Storage    *Storage
	Projector  *order.Projector
	Router     *order.Router
	Reconciler *order.Reconciler
}

type CoreDeps struct {
	Storage *Storage
	// Publisher is optional. Without it ticket changes are not broadcast.
	Publisher events.Publisher
	// Menu is optional. Without it item_added events must carry a price.
	Menu     order.MenuCatalog
	Settings Settings
}

func NewCore(d CoreDeps, logger aqm.Logger) *Core {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}

	var broadcaster order.TicketBroadcaster
	if d.Publisher != nil {
		broadcaster = order.NewNATSTicketBroadcaster(d.Publisher, d.Settings.RestaurantID, logger)
	}

	projector := order.NewProjector(order.ProjectorDeps{
		Store:       d.Storage.SQL,
		Events:      d.Storage.ExternalEvents(),
		Menu:        d.Menu,
		Broadcaster: broadcaster,
	}, logger)
	router := order.NewRouter(d.Storage.SQL, broadcaster, logger)
	reconciler := order.NewReconciler(d.Storage.Lister(), projector, router, d.Settings.Reconcile, logger)

	return &Core{
		Storage:    d.Storage,
		Projector:  projector,
		Router:     router,
		Reconciler: reconciler,
	}
}

// MenuCatalog returns the menu service catalog, or nil when no menu service
// is configured.
func MenuCatalog(s Settings) order.MenuCatalog {
	if s.MenuURL == "" {
		return nil
	}
	return order.NewMenuServiceCatalog(aqm.NewServiceClient(s.MenuURL))
}
