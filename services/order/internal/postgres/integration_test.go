// Integration tests for the PostgreSQL store. They require a running
// PostgreSQL instance.
//
// Run with: go test -tags=integration ./services/order/internal/postgres/...
//
//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/appetiteclub/orderflow/services/order/internal/sqlstore"
	"github.com/appetiteclub/orderflow/services/order/internal/sqlstore/storetest"
)

func testDSN() string {
	if dsn := os.Getenv("ORDERFLOW_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}
	dbname := os.Getenv("POSTGRES_DB")
	if dbname == "" {
		dbname = "orderflow_test"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func openTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := Open(ctx, testDSN(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Reset(context.Background())
		_ = store.Close()
	})
	return store
}

func TestStoreIntegration(t *testing.T) {
	storetest.Run(t, openTestStore)
}
