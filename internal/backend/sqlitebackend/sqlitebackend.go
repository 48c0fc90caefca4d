// Package sqlitebackend implements backend.Backend atop modernc.org/sqlite,
// a pure-Go SQLite driver for database/sql. Grounded on
// original_source/src/sqlite.rs's rusqlite-based Sqlite type: the same
// four operations (connect/query/execute/transaction), translated onto
// Go's database/sql idiom instead of rusqlite's direct API.
package sqlitebackend

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"echolite/internal/backend"
	"echolite/internal/wire"
)

// SQLite wraps a single database/sql.Conn pinned to one backing
// connection, mirroring rusqlite::Connection's single-handle model. It
// implements backend.Backend and is owned by exactly one session.
type SQLite struct {
	db   *sql.DB
	conn *sql.Conn
}

var _ backend.Backend = (*SQLite)(nil)

// Open translates flags into a modernc.org/sqlite DSN and opens path.
// Unrecognized bits are rejected with backend.ErrInvalidFlags; mode is
// derived from the READONLY/READWRITE/CREATE/MEMORY bits the same way
// rusqlite's OpenFlags does.
func Open(ctx context.Context, path string, flags wire.Flags) (*SQLite, error) {
	if !flags.Valid() {
		return nil, backend.ErrInvalidFlags{Flags: flags}
	}

	dsn, err := dsnFor(path, flags)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: open %q: %w", path, err)
	}
	// A single pinned *sql.Conn gives us SQLite's single-connection
	// semantics (PRAGMAs, transactions, and last_insert_rowid/changes()
	// all scoped to one physical connection) while still speaking
	// database/sql.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitebackend: acquiring connection: %w", err)
	}

	return &SQLite{db: db, conn: conn}, nil
}

func dsnFor(path string, flags wire.Flags) (string, error) {
	if flags.Has(wire.FlagMemory) {
		path = ":memory:"
	}

	mode := "rwc"
	switch {
	case flags.Has(wire.FlagReadOnly):
		mode = "ro"
	case flags.Has(wire.FlagReadWrite) && !flags.Has(wire.FlagCreate):
		mode = "rw"
	case flags.Has(wire.FlagReadWrite) && flags.Has(wire.FlagCreate):
		mode = "rwc"
	default:
		return "", backend.ErrInvalidFlags{Flags: flags}
	}

	q := url.Values{}
	q.Set("mode", mode)
	if flags.Has(wire.FlagSharedCache) {
		q.Set("cache", "shared")
	}
	return fmt.Sprintf("file:%s?%s", path, q.Encode()), nil
}

// ExecuteBatch splits sql on statement boundaries and runs each in order,
// stopping at the first error — rusqlite's execute_batch semantics.
func (s *SQLite) ExecuteBatch(ctx context.Context, sql string) error {
	for _, stmt := range splitStatements(sql) {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitebackend: executing statement: %w", err)
		}
	}
	return nil
}

// Query runs sql and materializes every row into wire.Value, along with
// the connection-wide total_changes() counter (spec.md §9: a
// connection-level change count, not a result row count) and elapsed wall
// time.
func (s *SQLite) Query(ctx context.Context, query string) (wire.Query, error) {
	start := time.Now()

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return wire.Query{}, fmt.Errorf("sqlitebackend: query: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return wire.Query{}, fmt.Errorf("sqlitebackend: reading column types: %w", err)
	}
	columns := make([]wire.Column, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = wire.Column{Name: ct.Name(), Datatype: strings.ToUpper(ct.DatabaseTypeName())}
	}

	scanDest := make([]any, len(columns))
	scanBuf := make([]any, len(columns))
	for i := range scanBuf {
		scanDest[i] = &scanBuf[i]
	}

	var values []wire.Value
	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return wire.Query{}, fmt.Errorf("sqlitebackend: scanning row: %w", err)
		}
		for i, col := range columns {
			values = append(values, toValue(scanBuf[i], col.Datatype))
		}
	}
	if err := rows.Err(); err != nil {
		return wire.Query{}, fmt.Errorf("sqlitebackend: iterating rows: %w", err)
	}

	var changes uint64
	if err := s.conn.QueryRowContext(ctx, "SELECT total_changes()").Scan(&changes); err != nil {
		return wire.Query{}, fmt.Errorf("sqlitebackend: reading total_changes(): %w", err)
	}

	return wire.Query{
		Columns:      columns,
		Values:       values,
		RowsAffected: changes,
		DurationMs:   uint64(time.Since(start).Milliseconds()),
	}, nil
}

// toValue maps a database/sql scan result onto a wire.Value, using the
// declared column affinity to distinguish Text from Bytes when the driver
// hands back a raw []byte.
func toValue(v any, datatype string) wire.Value {
	switch x := v.(type) {
	case nil:
		return wire.NullValue()
	case int64:
		return wire.I64Value(x)
	case float64:
		return wire.F64Value(x)
	case string:
		return wire.TextValue([]byte(x))
	case []byte:
		if strings.Contains(datatype, "CHAR") || strings.Contains(datatype, "TEXT") || strings.Contains(datatype, "CLOB") {
			return wire.TextValue(x)
		}
		return wire.BytesValue(x)
	default:
		return wire.TextValue([]byte(fmt.Sprint(x)))
	}
}

// Transaction runs sqls atomically: all-or-nothing, no bound parameters
// (each sql is a complete statement), matching
// original_source/src/sqlite.rs's transaction method.
func (s *SQLite) Transaction(ctx context.Context, sqls []string) error {
	if len(sqls) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitebackend: beginning transaction: %w", err)
	}

	for _, stmt := range sqls {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("sqlitebackend: statement failed (%w) and rollback failed: %v", err, rbErr)
			}
			return fmt.Errorf("sqlitebackend: transaction statement failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitebackend: committing transaction: %w", err)
	}
	return nil
}

// Pinger is a dedicated, lightweight handle the health checker owns
// separately from any session's Backend, so a slow client query can never
// starve the self-check. It runs PRAGMA quick_check (or, against
// :memory:, a trivial SELECT 1, since a fresh in-memory database has no
// pages to check).
type Pinger struct {
	db     *sql.DB
	memory bool
}

// OpenPinger opens an independent connection to path for health checks.
func OpenPinger(path string) (*Pinger, error) {
	memory := path == ":memory:"
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	if memory {
		dsn = "file::memory:?mode=memory"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: opening pinger: %w", err)
	}
	return &Pinger{db: db, memory: memory}, nil
}

// Ping runs the self-check query.
func (p *Pinger) Ping(ctx context.Context) error {
	if p.memory {
		var one int
		return p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}
	var result string
	if err := p.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("sqlitebackend: quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("sqlitebackend: quick_check reported: %s", result)
	}
	return nil
}

// Close releases the pinger's connection.
func (p *Pinger) Close() error {
	return p.db.Close()
}

// Close releases the pinned connection and its pool. Any transaction left
// open is rolled back by the driver when the connection closes.
func (s *SQLite) Close() error {
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	if connErr != nil {
		return fmt.Errorf("sqlitebackend: closing connection: %w", connErr)
	}
	if dbErr != nil {
		return fmt.Errorf("sqlitebackend: closing pool: %w", dbErr)
	}
	return nil
}

// splitStatements splits a batch of semicolon-terminated SQL statements,
// skipping empty segments produced by trailing/duplicate separators. It
// does not attempt to parse string literals containing semicolons — batch
// bodies are expected to be simple DDL/DML sequences, matching how
// rusqlite's execute_batch is used in practice by this server.
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
