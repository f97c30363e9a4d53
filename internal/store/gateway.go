package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/stock-data/internal/model"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 500

// Gateway is the persistence interface used by the scheduler.
type Gateway interface {
	// EnsureCompany inserts symbol into companies if absent.
	EnsureCompany(ctx context.Context, symbol string) error

	// UpsertRows writes rows to the table for rows.Kind and returns the number
	// of distinct rows written. Either every row is written or an error is
	// returned.
	UpsertRows(ctx context.Context, rows model.Rows) (int, error)

	// Migrate creates the tables if they do not exist.
	Migrate(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Options configures a gateway.
type Options struct {
	BatchSize int
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Stage names the step of a write that failed.
type Stage string

const (
	StageCheckout Stage = "checkout"
	StageBegin    Stage = "begin"
	StageExec     Stage = "exec"
	StageCommit   Stage = "commit"
	StageMigrate  Stage = "migrate"
)

// PersistenceError is returned by every Gateway write.
type PersistenceError struct {
	Stage     Stage
	Table     model.Table
	Err       error
	Retryable bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Table.Name(), e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsRetryable reports whether the write may succeed if attempted again.
// Constraint violations and bad data are not retryable; connection, lock and
// serialization failures are.
func (e *PersistenceError) IsRetryable() bool { return e.Retryable }

// IsPersistenceError reports whether err carries a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// retryableFunc classifies a driver error.
type retryableFunc func(error) bool

func newPersistenceError(stage Stage, table model.Table, err error, retryable retryableFunc) *PersistenceError {
	r := false
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		r = retryable(err)
	}
	return &PersistenceError{Stage: stage, Table: table, Err: err, Retryable: r}
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

// Stats holds gateway counters.
type Stats struct {
	Rows      int64 // rows written by UpsertRows
	Batches   int64 // committed UpsertRows transactions
	Companies int64 // EnsureCompany calls that succeeded
	Errors    int64
}

type counters struct {
	rows      atomic.Int64
	batches   atomic.Int64
	companies atomic.Int64
	errors    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Rows:      c.rows.Load(),
		Batches:   c.batches.Load(),
		Companies: c.companies.Load(),
		Errors:    c.errors.Load(),
	}
}
