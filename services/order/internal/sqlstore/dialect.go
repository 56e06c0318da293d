package sqlstore

import "github.com/jmoiron/sqlx"

// Dialect carries the driver specific parts of the store.
type Dialect struct {
	Name string
	// Schema is the DDL applied by Migrate. It must be idempotent.
	Schema string
	// LockClause is appended to the order select inside WithOrderLock.
	LockClause string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// IsConflict reports unique or primary key violations.
	IsConflict func(error) bool
	// IsBusy reports lock contention worth retrying.
	IsBusy func(error) bool
}

// Rebind rewrites '?' placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func (d Dialect) conflict(err error) bool {
	return err != nil && d.IsConflict != nil && d.IsConflict(err)
}

func (d Dialect) busy(err error) bool {
	return err != nil && d.IsBusy != nil && d.IsBusy(err)
}
