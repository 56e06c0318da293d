package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/services/order/internal/mongo"
	"github.com/appetiteclub/orderflow/services/order/internal/order"
	"github.com/appetiteclub/orderflow/services/order/internal/postgres"
	"github.com/appetiteclub/orderflow/services/order/internal/sqlite"
	"github.com/appetiteclub/orderflow/services/order/internal/sqlstore"
)

// Storage bundles the aggregate store with the configured event log.
type Storage struct {
	SQL *sqlstore.Store

	mongoBase   *mongo.BaseRepo
	mongoEvents *mongo.EventRepo
}

// OpenStorage opens the SQL store for the configured driver and, when events
// live in MongoDB, connects the event repository.
func OpenStorage(ctx context.Context, config *aqm.Config, s Settings, logger aqm.Logger) (*Storage, error) {
	var (
		store *sqlstore.Store
		err   error
	)
	switch s.Driver {
	case DriverPostgres:
		store, err = postgres.Open(ctx, s.PostgresDSN, logger)
	case DriverSQLite:
		store, err = sqlite.Open(ctx, s.SQLitePath, logger)
	default:
		err = fmt.Errorf("unsupported db.driver %q", s.Driver)
	}
	if err != nil {
		return nil, err
	}

	st := &Storage{SQL: store}
	if s.EventsSource != EventsMongo {
		return st, nil
	}

	base := mongo.NewBaseRepo(config, logger)
	if err := base.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	events := mongo.NewEventRepo(base.GetDatabase(), logger)
	if err := events.EnsureIndexes(ctx); err != nil {
		_ = base.Stop(ctx)
		_ = store.Close()
		return nil, err
	}
	st.mongoBase = base
	st.mongoEvents = events
	return st, nil
}

// ExternalEvents returns the event reader the projector should use instead of
// the locked transaction, or nil when events share the SQL database.
func (s *Storage) ExternalEvents() order.EventReader {
	if s.mongoEvents == nil {
		return nil
	}
	return s.mongoEvents
}

// Lister picks orders for reconciliation. Lag cannot be computed across
// databases, so with an external log every active order is revisited.
func (s *Storage) Lister() order.OrderLister {
	if s.mongoEvents != nil {
		return order.OrderListerFunc(s.SQL.ListActiveOrders)
	}
	return s.SQL
}

func (s *Storage) AppendEvent(ctx context.Context, ev *order.OrderEvent) error {
	if s.mongoEvents != nil {
		return s.mongoEvents.Append(ctx, ev)
	}
	return s.SQL.AppendEvent(ctx, ev)
}

func (s *Storage) CreateOrder(ctx context.Context, o *order.Order) error {
	return s.SQL.CreateOrder(ctx, o)
}

func (s *Storage) ListLaggingOrders(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.Lister().ListLaggingOrders(ctx, limit)
}

// DeleteRestaurantOrders removes a restaurant's orders and their events.
func (s *Storage) DeleteRestaurantOrders(ctx context.Context, restaurantID string) (int, error) {
	ids, err := s.SQL.DeleteRestaurantOrders(ctx, restaurantID)
	if err != nil {
		return 0, err
	}
	if s.mongoEvents != nil {
		if err := s.mongoEvents.DeleteOrders(ctx, ids); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Reset removes every order and event.
func (s *Storage) Reset(ctx context.Context) error {
	if s.mongoEvents != nil {
		if err := s.mongoEvents.DeleteAll(ctx); err != nil {
			return err
		}
	}
	return s.SQL.Reset(ctx)
}

func (s *Storage) Stop(ctx context.Context) error {
	var errs []error
	if s.mongoBase != nil {
		errs = append(errs, s.mongoBase.Stop(ctx))
	}
	errs = append(errs, s.SQL.Close())
	return errors.Join(errs...)
}
