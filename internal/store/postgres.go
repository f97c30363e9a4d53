package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/stock-data/internal/model"
)

// PostgresGateway writes through a pgxpool. Each call acquires its own
// connection and releases it before returning.
type PostgresGateway struct {
	pool      *pgxpool.Pool
	qb        queryBuilder
	batchSize int
	logger    *slog.Logger
	metrics   counters
}

// NewPostgres wraps an open pool. The gateway owns the pool and closes it.
func NewPostgres(pool *pgxpool.Pool, opts Options) *PostgresGateway {
	opts = opts.withDefaults()
	return &PostgresGateway{
		pool:      pool,
		qb:        newQueryBuilder(Postgres),
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}
}

// EnsureCompany inserts symbol if absent.
func (g *PostgresGateway) EnsureCompany(ctx context.Context, symbol string) error {
	sql, args, err := g.qb.insertCompany(symbol)
	if err != nil {
		return g.fail(StageExec, model.TableCompanies, err)
	}

	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return g.fail(StageCheckout, model.TableCompanies, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, sql, args...); err != nil {
		return g.fail(StageExec, model.TableCompanies, err)
	}

	g.metrics.companies.Add(1)
	return nil
}

// UpsertRows writes rows in one transaction using a pgx.Batch of chunked inserts.
func (g *PostgresGateway) UpsertRows(ctx context.Context, rows model.Rows) (int, error) {
	tbl, values, err := flatten(rows)
	if err != nil {
		return 0, g.fail(StageExec, rows.Kind.Table(), err)
	}
	if len(values) == 0 {
		return 0, nil
	}

	batch, err := upsertBatch(g.qb, tbl, values, g.batchSize)
	if err != nil {
		return 0, g.fail(StageExec, tbl.table, err)
	}

	start := time.Now()

	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return 0, g.fail(StageCheckout, tbl.table, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, g.fail(StageBegin, tbl.table, err)
	}
	// No-op after a successful commit.
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, g.fail(StageExec, tbl.table, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, g.fail(StageExec, tbl.table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, g.fail(StageCommit, tbl.table, err)
	}

	g.metrics.rows.Add(int64(len(values)))
	g.metrics.batches.Add(1)
	g.logger.Debug("upserted rows",
		"table", tbl.table.Name(),
		"count", len(values),
		"statements", batch.Len(),
		"duration", time.Since(start),
	)
	return len(values), nil
}

// upsertBatch queues one upsert statement per chunk of values.
func upsertBatch(qb queryBuilder, tbl tableSpec, values [][]any, size int) (*pgx.Batch, error) {
	batch := &pgx.Batch{}
	for _, c := range chunk(values, size) {
		sql, args, err := qb.upsert(tbl, c)
		if err != nil {
			return nil, err
		}
		batch.Queue(sql, args...)
	}
	return batch, nil
}

// Migrate creates the tables if absent.
func (g *PostgresGateway) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements(Postgres)
	if err != nil {
		return g.fail(StageMigrate, model.TableCompanies, err)
	}
	for _, s := range stmts {
		if _, err := g.pool.Exec(ctx, s); err != nil {
			return g.fail(StageMigrate, model.TableCompanies, err)
		}
	}
	return nil
}

// Ping verifies the pool can reach the server.
func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// Close closes the pool.
func (g *PostgresGateway) Close() error {
	g.pool.Close()
	return nil
}

// Stats returns current counters.
func (g *PostgresGateway) Stats() Stats {
	return g.metrics.snapshot()
}

func (g *PostgresGateway) fail(stage Stage, table model.Table, err error) error {
	g.metrics.errors.Add(1)
	return newPersistenceError(stage, table, err, pgRetryable)
}

// pgRetryable classifies by SQLSTATE class. Errors without a SQLSTATE are
// transport failures and retryable.
func pgRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return true
	}
	switch {
	case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
		return true
	case strings.HasPrefix(pgErr.Code, "08"), // connection exception
		strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
		strings.HasPrefix(pgErr.Code, "57"): // operator intervention
		return true
	default:
		// 23 integrity, 22 data, 42 syntax and the rest will fail again.
		return false
	}
}
