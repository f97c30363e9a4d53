package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rickgao/stock-data/internal/api"
	"github.com/rickgao/stock-data/internal/normalize"
	"github.com/rickgao/stock-data/internal/store"
)

// RetryPolicy bounds per-unit retries.
type RetryPolicy struct {
	FetchAttempts      int           // total fetch tries per unit
	PersistAttempts    int           // total persist tries per unit
	BaseBackoff        time.Duration // first transient backoff, doubled per attempt
	MaxBackoff         time.Duration
	RateLimitedBackoff time.Duration // global pause after an upstream throttle
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		FetchAttempts:      3,
		PersistAttempts:    3,
		BaseBackoff:        time.Second,
		MaxBackoff:         30 * time.Second,
		RateLimitedBackoff: time.Minute,
	}
}

// Action is what the scheduler does after a failed step.
type Action int

const (
	ActionFail         Action = iota // give up on the unit
	ActionRetryFetch                 // back off, then fetch again
	ActionPauseFetch                 // pause the limiter for everyone, then fetch again
	ActionRetryPersist               // back off, then persist the same rows again
	ActionCancel                     // the run is shutting down
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionRetryFetch:
		return "retry_fetch"
	case ActionPauseFetch:
		return "pause_fetch"
	case ActionRetryPersist:
		return "retry_persist"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Decision is the result of classifying an error.
type Decision struct {
	Action  Action
	Backoff time.Duration // wait before the next attempt; zero for pauses
}

// Classify maps a step error to an action. attempt is the 1-based number of
// the attempt that failed and only affects the backoff.
func (p RetryPolicy) Classify(err error, attempt int) Decision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Decision{Action: ActionCancel}
	}

	var fe *api.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case api.RateLimited:
			return Decision{Action: ActionPauseFetch}
		case api.Transient:
			return Decision{Action: ActionRetryFetch, Backoff: p.backoff(attempt)}
		default:
			return Decision{Action: ActionFail}
		}
	}

	if normalize.IsNormalizationError(err) {
		return Decision{Action: ActionFail}
	}

	var pe *store.PersistenceError
	if errors.As(err, &pe) && pe.IsRetryable() {
		return Decision{Action: ActionRetryPersist, Backoff: p.backoff(attempt)}
	}

	return Decision{Action: ActionFail}
}

// backoff returns base * 2^(attempt-1) capped at MaxBackoff, with jitter in
// [0.5, 1.5) of that value.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	jittered := d/2 + time.Duration(rand.Int64N(int64(d)))
	if p.MaxBackoff > 0 && jittered > p.MaxBackoff {
		jittered = p.MaxBackoff
	}
	return jittered
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
