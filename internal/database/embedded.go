package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // Register duckdb driver
	_ "modernc.org/sqlite"              // Register sqlite driver
)

const memoryPath = ":memory:"

// SQLiteDSN builds a modernc sqlite DSN. Pragmas are set per connection so
// every pooled connection enforces foreign keys.
func SQLiteDSN(path string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
	}
	if path != memoryPath {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// OpenSQLite opens a SQLite database at path. In-memory databases are
// per-connection, so they are limited to one connection.
func OpenSQLite(ctx context.Context, path string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if path == memoryPath {
		maxConns = 1
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// OpenDuckDB opens a DuckDB database file. An empty path or ":memory:" opens
// an in-memory database shared by all connections of the handle.
func OpenDuckDB(ctx context.Context, path string, maxConns int) (*sql.DB, error) {
	if path == memoryPath {
		path = ""
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}
