// Package decider turns the resource usage and database connection signals
// into a throttling decision for a single worker type.
package decider

import (
	"context"

	"github.com/pkg/errors"

	"github.com/you/throttler/internal/domain"
)

// UsageLimiter reports whether a worker type went over its resource quota.
type UsageLimiter interface {
	ExceededLimits(ctx context.Context, worker string) (bool, error)
}

// Census reports non-idle database connections, keyed by database shard and
// then by worker type.
type Census interface {
	NonIdleConnectionsByDB(ctx context.Context) (map[string]map[string]int, error)
}

type Decider struct {
	worker  string
	limiter UsageLimiter
	census  Census
}

func New(worker string, limiter UsageLimiter, census Census) *Decider {
	return &Decider{worker: worker, limiter: limiter, census: census}
}

// Execute evaluates the worker against the current telemetry snapshot. A
// worker over quota is hard throttled when it holds strictly more non-idle
// connections than every other worker type, and soft throttled otherwise.
func (d *Decider) Execute(ctx context.Context) (domain.ThrottleDecision, error) {
	exceeded, err := d.limiter.ExceededLimits(ctx, d.worker)
	if err != nil {
		return domain.ThrottleDecision{}, errors.Wrap(err, "resource usage")
	}
	if !exceeded {
		return domain.ThrottleDecision{NeedsThrottle: false, Strategy: domain.StrategyNone}, nil
	}

	byDB, err := d.census.NonIdleConnectionsByDB(ctx)
	if err != nil {
		return domain.ThrottleDecision{}, errors.Wrap(err, "connection census")
	}

	if Dominant(d.worker, Aggregate(byDB)) {
		return domain.ThrottleDecision{NeedsThrottle: true, Strategy: domain.StrategyHardThrottle}, nil
	}
	return domain.ThrottleDecision{NeedsThrottle: true, Strategy: domain.StrategySoftThrottle}, nil
}

// Aggregate sums connection counts per worker type across all databases.
func Aggregate(byDB map[string]map[string]int) map[string]int {
	out := map[string]int{}
	for _, counts := range byDB {
		for worker, n := range counts {
			out[worker] += n
		}
	}
	return out
}

// Dominant is true when worker's count is strictly greater than every other
// worker's. Ties, an empty census and an absent worker are not dominant.
func Dominant(worker string, counts map[string]int) bool {
	own, ok := counts[worker]
	if !ok {
		return false
	}
	for other, n := range counts {
		if other != worker && n >= own {
			return false
		}
	}
	return true
}
