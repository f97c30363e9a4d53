package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rickgao/stock-data/internal/model"
)

// SQLGateway writes through database/sql for the embedded engines. Each call
// checks out a dedicated *sql.Conn and closes it before returning.
type SQLGateway struct {
	db        *sql.DB
	dialect   Dialect
	qb        queryBuilder
	batchSize int
	logger    *slog.Logger
	retryable retryableFunc
	metrics   counters
}

// NewSQL wraps an open database handle. The gateway owns the handle and
// closes it.
func NewSQL(db *sql.DB, dialect Dialect, opts Options) *SQLGateway {
	opts = opts.withDefaults()
	retryable := sqliteRetryable
	if dialect == DuckDB {
		retryable = duckdbRetryable
	}
	return &SQLGateway{
		db:        db,
		dialect:   dialect,
		qb:        newQueryBuilder(dialect),
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		retryable: retryable,
	}
}

// DB returns the underlying handle.
func (g *SQLGateway) DB() *sql.DB { return g.db }

// EnsureCompany inserts symbol if absent.
func (g *SQLGateway) EnsureCompany(ctx context.Context, symbol string) error {
	query, args, err := g.qb.insertCompany(symbol)
	if err != nil {
		return g.fail(StageExec, model.TableCompanies, err)
	}

	conn, err := g.db.Conn(ctx)
	if err != nil {
		return g.fail(StageCheckout, model.TableCompanies, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return g.fail(StageExec, model.TableCompanies, err)
	}

	g.metrics.companies.Add(1)
	return nil
}

// UpsertRows writes rows in one transaction, one statement per chunk.
func (g *SQLGateway) UpsertRows(ctx context.Context, rows model.Rows) (int, error) {
	tbl, values, err := flatten(rows)
	if err != nil {
		return 0, g.fail(StageExec, rows.Kind.Table(), err)
	}
	if len(values) == 0 {
		return 0, nil
	}

	start := time.Now()

	conn, err := g.db.Conn(ctx)
	if err != nil {
		return 0, g.fail(StageCheckout, tbl.table, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, g.fail(StageBegin, tbl.table, err)
	}
	// No-op after a successful commit.
	defer tx.Rollback()

	chunks := chunk(values, g.batchSize)
	for _, c := range chunks {
		query, args, err := g.qb.upsert(tbl, c)
		if err != nil {
			return 0, g.fail(StageExec, tbl.table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, g.fail(StageExec, tbl.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, g.fail(StageCommit, tbl.table, err)
	}

	g.metrics.rows.Add(int64(len(values)))
	g.metrics.batches.Add(1)
	g.logger.Debug("upserted rows",
		"table", tbl.table.Name(),
		"dialect", g.dialect,
		"count", len(values),
		"statements", len(chunks),
		"duration", time.Since(start),
	)
	return len(values), nil
}

// Migrate creates the tables if absent.
func (g *SQLGateway) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements(g.dialect)
	if err != nil {
		return g.fail(StageMigrate, model.TableCompanies, err)
	}
	for _, s := range stmts {
		if _, err := g.db.ExecContext(ctx, s); err != nil {
			return g.fail(StageMigrate, model.TableCompanies, err)
		}
	}
	return nil
}

// Ping verifies the handle is usable.
func (g *SQLGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close closes the handle.
func (g *SQLGateway) Close() error {
	return g.db.Close()
}

// Stats returns current counters.
func (g *SQLGateway) Stats() Stats {
	return g.metrics.snapshot()
}

func (g *SQLGateway) fail(stage Stage, table model.Table, err error) error {
	g.metrics.errors.Add(1)
	return newPersistenceError(stage, table, err, g.retryable)
}

// sqliteRetryable treats busy and locked as retryable; constraint, type and
// other engine errors are final. Non-engine errors are transport-level.
func sqliteRetryable(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return !errors.Is(err, sql.ErrTxDone)
	}
	switch e.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_PROTOCOL:
		return true
	default:
		return false
	}
}

// duckdbRetryable treats transaction conflicts and I/O failures as retryable.
func duckdbRetryable(err error) bool {
	var e *duckdb.Error
	if !errors.As(err, &e) {
		return !errors.Is(err, sql.ErrTxDone)
	}
	switch e.Type {
	case duckdb.ErrorTypeTransaction, duckdb.ErrorTypeIO, duckdb.ErrorTypeConnection, duckdb.ErrorTypeInterrupt:
		return true
	default:
		return false
	}
}
