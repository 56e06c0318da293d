package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(aqm.NewConfig())
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	if s.Driver != DriverSQLite {
		t.Errorf("Driver = %q, want sqlite", s.Driver)
	}
	if s.EventsSource != EventsSQL {
		t.Errorf("EventsSource = %q, want sql", s.EventsSource)
	}
	if s.StreamEnabled {
		t.Error("StreamEnabled should default to false")
	}
	if s.Reconcile.Interval != 5*time.Second || s.Reconcile.Workers != 4 || s.Reconcile.BatchSize != 100 {
		t.Errorf("Reconcile = %+v, want 5s/4/100", s.Reconcile)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{name: "sqlite", s: Settings{Driver: DriverSQLite, SQLitePath: "x.db", EventsSource: EventsSQL}},
		{name: "postgres", s: Settings{Driver: DriverPostgres, PostgresDSN: "postgres://localhost/orders", EventsSource: EventsMongo}},
		{name: "postgresWithoutDSN", s: Settings{Driver: DriverPostgres, EventsSource: EventsSQL}, wantErr: true},
		{name: "sqliteWithoutPath", s: Settings{Driver: DriverSQLite, EventsSource: EventsSQL}, wantErr: true},
		{name: "unknownDriver", s: Settings{Driver: "mysql", EventsSource: EventsSQL}, wantErr: true},
		{name: "unknownEvents", s: Settings{Driver: DriverSQLite, SQLitePath: "x.db", EventsSource: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "true", want: true},
		{in: " 1 ", want: true},
		{in: "false", want: false},
		{in: "yes", want: false},
		{in: "", want: false},
	}
	for _, tt := range tests {
		if got := parseBool(tt.in); got != tt.want {
			t.Errorf("parseBool(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMenuCatalog(t *testing.T) {
	if MenuCatalog(Settings{}) != nil {
		t.Error("MenuCatalog() without url should be nil")
	}
	if MenuCatalog(Settings{MenuURL: "http://menu:8080"}) == nil {
		t.Error("MenuCatalog() with url should not be nil")
	}
}

func TestCoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	settings := Settings{
		Driver:       DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "orderflow.db"),
		EventsSource: EventsSQL,
		RestaurantID: "rest-1",
		Reconcile:    order.ReconcilerConfig{Workers: 2, BatchSize: 10},
	}

	storage, err := OpenStorage(ctx, aqm.NewConfig(), settings, nil)
	if err != nil {
		t.Fatalf("OpenStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = storage.Stop(context.Background()) })

	if storage.ExternalEvents() != nil {
		t.Error("sql event source should not use an external reader")
	}

	core := NewCore(CoreDeps{Storage: storage, Settings: settings}, nil)

	o := order.NewOrder("rest-1", "T1")
	if err := storage.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	payload, _ := json.Marshal(map[string]any{
		"line_key":     "burger",
		"menu_item_id": uuid.NewString(),
		"item_type":    "food",
		"price":        12.0,
	})
	if err := storage.AppendEvent(ctx, &order.OrderEvent{OrderID: o.ID, EventType: order.EventItemAdded, Payload: payload}); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	report, err := core.Reconciler.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Orders != 1 || report.Failed != 0 {
		t.Errorf("report = %+v, want 1 order without failures", report)
	}

	got, err := storage.SQL.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got.Status != "ordered" || got.LastProjectedSequence != 1 {
		t.Errorf("order = %s@%d, want ordered@1", got.Status, got.LastProjectedSequence)
	}

	lagging, err := storage.ListLaggingOrders(ctx, 10)
	if err != nil || len(lagging) != 0 {
		t.Errorf("lagging = %v, %v, want none", lagging, err)
	}
}
