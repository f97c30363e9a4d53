package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/stock-data/internal/api"
	"github.com/rickgao/stock-data/internal/company"
	"github.com/rickgao/stock-data/internal/model"
	"github.com/rickgao/stock-data/internal/report"
	"github.com/rickgao/stock-data/internal/store"
)

// Fetcher retrieves one raw payload from the upstream API.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, endpoint model.EndpointKind) (api.RawPayload, error)
}

// Normalizer turns a raw payload into typed rows.
type Normalizer interface {
	NormalizeFor(symbol string, kind model.EndpointKind, payload map[string]json.RawMessage) (model.Rows, error)
}

// Limiter gates upstream calls.
type Limiter interface {
	Acquire(ctx context.Context) error
	Pause(d time.Duration)
}

// Registry is the company barrier run before dispatch.
type Registry interface {
	EnsureAll(ctx context.Context, symbols []string) error
	Ready(symbol string) bool
	Err(symbol string) error
}

// Config holds scheduler configuration.
type Config struct {
	MaxWorkers int // worker goroutines per run
	Retry      RetryPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 3,
		Retry:      DefaultRetryPolicy(),
	}
}

// reasonCancelled is the failure reason for units stopped by shutdown.
const reasonCancelled = "cancelled"

// Scheduler runs the fetch, normalize and persist pipeline for every
// (symbol, endpoint) unit of a run over a fixed pool of workers.
type Scheduler struct {
	cfg        Config
	fetcher    Fetcher
	limiter    Limiter
	normalizer Normalizer
	gateway    store.Gateway
	registry   Registry
	sink       report.Sink
	logger     *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSink adds a sink that receives every outcome in addition to the
// returned report.
func WithSink(s report.Sink) Option {
	return func(sc *Scheduler) {
		sc.sink = s
	}
}

// WithRegistry replaces the company registry built from the gateway.
func WithRegistry(r Registry) Option {
	return func(sc *Scheduler) {
		sc.registry = r
	}
}

// New creates a Scheduler.
func New(cfg Config, fetcher Fetcher, limiter Limiter, normalizer Normalizer, gateway store.Gateway, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.Retry.FetchAttempts <= 0 {
		cfg.Retry.FetchAttempts = 1
	}
	if cfg.Retry.PersistAttempts <= 0 {
		cfg.Retry.PersistAttempts = 1
	}

	s := &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		limiter:    limiter,
		normalizer: normalizer,
		gateway:    gateway,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = company.NewRegistry(company.Config{
			MaxWorkers: cfg.MaxWorkers,
			Attempts:   cfg.Retry.PersistAttempts,
			Backoff:    cfg.Retry.BaseBackoff,
		}, gateway, logger)
	}
	return s
}

// Run processes every unit in symbols x endpoints and returns once each unit
// has a terminal outcome. Unit failures are reported, not returned; the error
// is non-nil only for empty or invalid input.
//
// Cancelling ctx stops dispatch. Units not yet dispatched fail with reason
// "cancelled"; units in flight finish the step they are in.
func (s *Scheduler) Run(ctx context.Context, symbols []string, endpoints []model.EndpointKind) (*report.Report, error) {
	units, err := BuildUnits(symbols, endpoints)
	if err != nil {
		return nil, err
	}

	rep := report.New()
	r := &run{
		Scheduler: s,
		table:     newStateTable(units),
		sink:      report.MultiSink{rep, s.sink},
		logger:    s.logger.With("run_id", rep.RunID.String()),
	}

	r.logger.Info("run started",
		"units", len(units),
		"workers", s.cfg.MaxWorkers,
	)

	if err := s.registry.EnsureAll(ctx, distinctSymbols(symbols)); err != nil {
		r.logger.Warn("company registration interrupted", "err", err)
	}

	queue := make(chan model.WorkUnit)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range queue {
				r.process(ctx, u)
			}
		}()
	}

	r.dispatch(ctx, units, queue)
	close(queue)
	wg.Wait()

	rep.Finish()

	counts := r.table.counts()
	r.logger.Info("run complete",
		"succeeded", counts[model.StateSucceeded],
		"failed", counts[model.StateFailed],
		"rows", rep.RowsWritten(),
		"duration", rep.Duration(),
	)
	if n := counts[model.StatePending] + counts[model.StateInFlight]; n > 0 {
		r.logger.Error("units left without outcome", "count", n)
	}

	return rep, nil
}

// run is the state of one Run call.
type run struct {
	*Scheduler
	table  *stateTable
	sink   report.Sink
	logger *slog.Logger
}

// dispatch sends runnable units to the workers. Units that cannot run are
// failed here without being sent.
func (r *run) dispatch(ctx context.Context, units []model.WorkUnit, queue chan<- model.WorkUnit) {
	for _, u := range units {
		if !r.registry.Ready(u.Symbol) {
			reason := reasonCancelled
			if err := r.registry.Err(u.Symbol); err != nil && !isCancel(err) {
				reason = fmt.Sprintf("company registration failed: %v", err)
			}
			r.finish(failedOutcome(u, model.StageRegister, reason, 0))
			continue
		}

		if ctx.Err() != nil {
			r.finish(failedOutcome(u, model.StageDispatch, reasonCancelled, 0))
			continue
		}

		select {
		case queue <- u:
		case <-ctx.Done():
			r.finish(failedOutcome(u, model.StageDispatch, reasonCancelled, 0))
		}
	}
}

// attempt tracks the progress of one unit for outcome reporting.
type attempt struct {
	stage    model.Stage
	attempts int
}

// process runs one unit to a terminal outcome.
func (r *run) process(ctx context.Context, u model.WorkUnit) {
	if err := r.table.transition(u, model.StateInFlight); err != nil {
		r.logger.Error("unit not dispatchable", "unit", u.String(), "err", err)
		return
	}

	start := time.Now()
	a := &attempt{stage: model.StageRateLimit}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("unit panicked", "unit", u.String(), "stage", a.stage, "panic", p)
			o := failedOutcome(u, a.stage, fmt.Sprintf("panic: %v", p), a.attempts)
			o.Duration = time.Since(start)
			r.finish(o)
		}
	}()

	o := r.execute(ctx, u, a)
	o.Duration = time.Since(start)
	r.finish(o)
}

// execute runs acquire, fetch, normalize and persist for u.
func (r *run) execute(ctx context.Context, u model.WorkUnit, a *attempt) model.RunOutcome {
	payload, err := r.fetch(ctx, u, a)
	if err != nil {
		return r.failure(u, a, err)
	}

	a.stage = model.StageNormalize
	rows, err := r.normalizer.NormalizeFor(u.Symbol, u.Endpoint, payload)
	if err != nil {
		r.logger.Warn("normalization failed",
			"unit", u.String(),
			"payload_keys", payload.Keys(),
			"err", err,
		)
		return r.failure(u, a, err)
	}

	if ctx.Err() != nil {
		return r.failure(u, a, ctx.Err())
	}

	a.stage = model.StagePersist
	written, err := r.persist(ctx, u, rows)
	if err != nil {
		return r.failure(u, a, err)
	}

	return model.RunOutcome{
		Unit:        u,
		Status:      model.StatusSuccess,
		Stage:       model.StageDone,
		RowsWritten: written,
		Attempts:    a.attempts,
	}
}

// fetch acquires a limiter slot and fetches, retrying per the policy. Every
// attempt takes its own slot.
func (r *run) fetch(ctx context.Context, u model.WorkUnit, a *attempt) (api.RawPayload, error) {
	for {
		a.stage = model.StageRateLimit
		if err := r.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		a.stage = model.StageFetch
		a.attempts++
		// An issued request completes even if the run is cancelled meanwhile.
		payload, err := r.fetcher.Fetch(context.WithoutCancel(ctx), u.Symbol, u.Endpoint)
		if err == nil {
			return payload, nil
		}

		d := r.cfg.Retry.Classify(err, a.attempts)
		if d.Action == ActionPauseFetch {
			// Throttling applies to the key, so every worker backs off.
			r.limiter.Pause(r.cfg.Retry.RateLimitedBackoff)
		}
		if d.Action != ActionRetryFetch && d.Action != ActionPauseFetch {
			return nil, err
		}
		if a.attempts >= r.cfg.Retry.FetchAttempts {
			return nil, fmt.Errorf("giving up after %d attempts: %w", a.attempts, err)
		}

		r.logger.Warn("fetch failed, retrying",
			"unit", u.String(),
			"attempt", a.attempts,
			"action", d.Action,
			"backoff", d.Backoff,
			"err", err,
		)
		if err := sleep(ctx, d.Backoff); err != nil {
			return nil, err
		}
	}
}

// persist writes rows, retrying only the write on retryable storage errors.
func (r *run) persist(ctx context.Context, u model.WorkUnit, rows model.Rows) (int, error) {
	if rows.Len() == 0 {
		r.logger.Debug("no rows to persist", "unit", u.String())
		return 0, nil
	}

	for try := 1; ; try++ {
		// A started transaction completes even if the run is cancelled meanwhile.
		n, err := r.gateway.UpsertRows(context.WithoutCancel(ctx), rows)
		if err == nil {
			return n, nil
		}

		d := r.cfg.Retry.Classify(err, try)
		if d.Action != ActionRetryPersist {
			return 0, err
		}
		if try >= r.cfg.Retry.PersistAttempts {
			return 0, fmt.Errorf("giving up after %d attempts: %w", try, err)
		}

		r.logger.Warn("persist failed, retrying",
			"unit", u.String(),
			"attempt", try,
			"backoff", d.Backoff,
			"err", err,
		)
		if err := sleep(ctx, d.Backoff); err != nil {
			return 0, err
		}
	}
}

func (r *run) failure(u model.WorkUnit, a *attempt, err error) model.RunOutcome {
	reason := err.Error()
	if isCancel(err) {
		reason = reasonCancelled
	}
	return failedOutcome(u, a.stage, reason, a.attempts)
}

// finish moves u to its terminal state and records the outcome. An outcome
// for a unit that is already terminal is dropped.
func (r *run) finish(o model.RunOutcome) {
	to := model.StateFailed
	if o.Succeeded() {
		to = model.StateSucceeded
	}
	if err := r.table.transition(o.Unit, to); err != nil {
		r.logger.Error("outcome dropped", "unit", o.Unit.String(), "err", err)
		return
	}
	r.sink.Record(o)
}

func failedOutcome(u model.WorkUnit, stage model.Stage, reason string, attempts int) model.RunOutcome {
	return model.RunOutcome{
		Unit:     u,
		Status:   model.StatusFailed,
		Stage:    stage,
		Reason:   reason,
		Attempts: attempts,
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
