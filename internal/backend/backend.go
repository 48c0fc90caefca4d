// Package backend defines the storage adapter contract that
// internal/session drives: open a database, run a fire-and-forget batch of
// statements, run a query and materialize its result set, or run an
// all-or-nothing transaction. Exactly one concrete backend ships today
// (internal/backend/sqlitebackend), but sessions only ever see this
// interface — a second backend (e.g. attached/in-memory variants for
// tests) only needs to satisfy it.
package backend

import (
	"context"

	"echolite/internal/wire"
)

// Backend is owned exclusively by one session; it is not safe for
// concurrent use (spec.md §4.6/§5).
type Backend interface {
	// ExecuteBatch runs sql as a batch of zero or more statements, stopping
	// at and reporting the first error.
	ExecuteBatch(ctx context.Context, sql string) error

	// Query runs a single SQL query and materializes every row.
	Query(ctx context.Context, sql string) (wire.Query, error)

	// Transaction runs sqls atomically: all statements commit together, or
	// the first failure rolls back everything. An empty slice is a no-op.
	Transaction(ctx context.Context, sqls []string) error

	// Close releases the underlying connection. Any transaction left open
	// by an abruptly-closed session is rolled back by the driver.
	Close() error
}

// ErrInvalidFlags is returned by an Open implementation when the
// negotiated wire.Flags value carries a bit combination the backend can't
// translate into its own open mode.
type ErrInvalidFlags struct {
	Flags wire.Flags
}

func (e ErrInvalidFlags) Error() string {
	return "backend: invalid open flags"
}
