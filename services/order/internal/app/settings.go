package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EventsSQL   = "sql"
	EventsMongo = "mongo"
)

// Settings is the typed view of the service configuration.
type Settings struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string

	EventsSource string

	NATSURL       string
	StreamEnabled bool

	MenuURL      string
	RestaurantID string

	Reconcile order.ReconcilerConfig
}

// LoadSettings reads and validates the keys used by the order core.
func LoadSettings(config *aqm.Config) (Settings, error) {
	s := Settings{
		Driver:        strings.ToLower(config.GetStringOrDef("db.driver", DriverSQLite)),
		PostgresDSN:   config.GetStringOrDef("db.postgres.dsn", ""),
		SQLitePath:    config.GetStringOrDef("db.sqlite.path", "data/orderflow.db"),
		EventsSource:  strings.ToLower(config.GetStringOrDef("events.source", EventsSQL)),
		NATSURL:       config.GetStringOrDef("nats.url", "nats://localhost:4222"),
		StreamEnabled: parseBool(config.GetStringOrDef("nats.stream.enabled", "false")),
		MenuURL:       config.GetStringOrDef("services.menu.url", ""),
		RestaurantID:  config.GetStringOrDef("restaurant.id", "default"),
	}

	var err error
	if s.Reconcile.Interval, err = time.ParseDuration(config.GetStringOrDef("reconcile.interval", "5s")); err != nil {
		return s, fmt.Errorf("invalid reconcile.interval: %w", err)
	}
	if s.Reconcile.Workers, err = strconv.Atoi(config.GetStringOrDef("reconcile.workers", "4")); err != nil {
		return s, fmt.Errorf("invalid reconcile.workers: %w", err)
	}
	if s.Reconcile.BatchSize, err = strconv.Atoi(config.GetStringOrDef("reconcile.batch", "100")); err != nil {
		return s, fmt.Errorf("invalid reconcile.batch: %w", err)
	}

	return s, s.Validate()
}

func (s Settings) Validate() error {
	switch s.Driver {
	case DriverPostgres:
		if strings.TrimSpace(s.PostgresDSN) == "" {
			return fmt.Errorf("db.postgres.dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("db.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", s.Driver)
	}

	switch s.EventsSource {
	case EventsSQL, EventsMongo:
	default:
		return fmt.Errorf("unsupported events.source %q", s.EventsSource)
	}
	return nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
