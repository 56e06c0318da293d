package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/lib/pq"

	"github.com/appetiteclub/orderflow/services/order/internal/sqlstore"
)

//go:embed schema.sql
var schema string

// Dialect locks the order row with SELECT ... FOR UPDATE so that different
// orders proceed in parallel.
var Dialect = sqlstore.Dialect{
	Name:       "postgres",
	Schema:     schema,
	LockClause: "FOR UPDATE",
	Numbered:   true,
	IsConflict: IsUniqueViolation,
	IsBusy:     isSerializationFailure,
}

// Open connects to PostgreSQL, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string, logger aqm.Logger) (*sqlstore.Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}

	store := sqlstore.New(db, Dialect, logger)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// serialization_failure and deadlock_detected are safe to retry.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
