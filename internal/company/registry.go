package company

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stock-data/internal/store"
)

// Storage is the subset of store.Gateway the registry needs.
type Storage interface {
	EnsureCompany(ctx context.Context, symbol string) error
}

// Config holds registry configuration.
type Config struct {
	MaxWorkers int           // concurrent registrations
	Attempts   int           // tries per symbol for retryable storage errors
	Backoff    time.Duration // wait between tries
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 3,
		Attempts:   3,
		Backoff:    time.Second,
	}
}

type entry struct {
	ready bool
	err   error
}

// Registry makes sure each symbol exists in the companies table before any
// price or indicator row referencing it is written. A symbol that registered
// successfully is never sent to storage again.
type Registry struct {
	cfg    Config
	store  Storage
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates a registry writing through s.
func NewRegistry(cfg Config, s Storage, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &Registry{
		cfg:     cfg,
		store:   s,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// EnsureAll registers every distinct symbol not yet registered. Per-symbol
// failures are recorded and reported through Err; they do not stop the
// other registrations. The returned error is non-nil only when ctx ends
// before every symbol was attempted.
func (r *Registry) EnsureAll(ctx context.Context, symbols []string) error {
	pending := r.pending(symbols)
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxWorkers)

	for _, symbol := range pending {
		if ctx.Err() != nil {
			r.record(symbol, ctx.Err())
			continue
		}
		g.Go(func() error {
			r.record(symbol, r.ensure(ctx, symbol))
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, symbol := range pending {
		if r.Err(symbol) != nil {
			failed++
		}
	}
	r.logger.Info("companies registered",
		"requested", len(pending),
		"failed", failed,
		"duration", time.Since(start),
	)

	return ctx.Err()
}

// ensure inserts one symbol, retrying storage errors marked retryable.
func (r *Registry) ensure(ctx context.Context, symbol string) error {
	var err error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if err = r.store.EnsureCompany(ctx, symbol); err == nil {
			return nil
		}

		var pe *store.PersistenceError
		if !errors.As(err, &pe) || !pe.IsRetryable() || attempt == r.cfg.Attempts {
			break
		}

		r.logger.Warn("company registration failed, retrying",
			"symbol", symbol,
			"attempt", attempt,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.Backoff):
		}
	}

	r.logger.Error("company registration failed", "symbol", symbol, "err", err)
	return err
}

// pending returns the distinct, trimmed symbols that are not yet ready.
func (r *Registry) pending(symbols []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || r.entries[s].ready {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (r *Registry) record(symbol string, err error) {
	r.mu.Lock()
	r.entries[symbol] = entry{ready: err == nil, err: err}
	r.mu.Unlock()
}

// Ready reports whether symbol has been registered.
func (r *Registry) Ready(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[symbol].ready
}

// Err returns the last registration error for symbol, or nil.
func (r *Registry) Err(symbol string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[symbol].err
}

// Registered returns the registered symbols in sorted order.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for s, e := range r.entries {
		if e.ready {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
