package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/stock-data/internal/config"
	"github.com/rickgao/stock-data/internal/database"
)

// Open connects to the backend named by cfg.Driver. maxWorkers sizes the
// embedded engines' connection limit the same way the postgres pool is sized.
func Open(ctx context.Context, cfg config.StorageConfig, maxWorkers int, logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := Options{BatchSize: cfg.BatchSize, Logger: logger}
	maxConns := maxWorkers + 2

	switch Dialect(cfg.Driver) {
	case Postgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("storage connected",
			"driver", cfg.Driver,
			"dsn", database.Redact(database.BuildConnString(cfg.Postgres)),
			"max_conns", cfg.Postgres.MaxConns,
		)
		return NewPostgres(pool, opts), nil

	case DuckDB:
		db, err := database.OpenDuckDB(ctx, cfg.Path, maxConns)
		if err != nil {
			return nil, err
		}
		logger.Info("storage connected", "driver", cfg.Driver, "path", cfg.Path)
		return NewSQL(db, DuckDB, opts), nil

	case SQLite:
		db, err := database.OpenSQLite(ctx, cfg.Path, maxConns)
		if err != nil {
			return nil, err
		}
		logger.Info("storage connected", "driver", cfg.Driver, "path", cfg.Path)
		return NewSQL(db, SQLite, opts), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
