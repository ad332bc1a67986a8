// Package usage tracks database time consumed by each worker type in fixed
// windows and reports when a worker went over its quota.
package usage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/you/throttler/internal/kv"
)

type Config struct {
	Window       time.Duration
	DefaultQuota float64
	// Quotas overrides DefaultQuota per worker type. A quota <= 0 never
	// trips.
	Quotas map[string]float64
	Now    func() time.Time
}

type Redis struct {
	rdb r.UniversalClient
	cfg Config
}

func NewRedis(rdb r.UniversalClient, cfg Config) *Redis {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Redis{rdb: rdb, cfg: cfg}
}

// Track adds dbSeconds to the worker's usage in the current window.
func (u *Redis) Track(ctx context.Context, worker string, dbSeconds float64) error {
	if dbSeconds < 0 {
		return errors.Errorf("negative db duration %f", dbSeconds)
	}
	key := u.key(worker)
	pipe := u.rdb.TxPipeline()
	pipe.IncrByFloat(ctx, key, dbSeconds)
	pipe.Expire(ctx, key, 2*u.cfg.Window)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "track usage of %s", worker)
}

func (u *Redis) Usage(ctx context.Context, worker string) (float64, error) {
	v, err := u.rdb.Get(ctx, u.key(worker)).Float64()
	if errors.Is(err, r.Nil) {
		return 0, nil
	}
	return v, errors.Wrapf(err, "usage of %s", worker)
}

func (u *Redis) ExceededLimits(ctx context.Context, worker string) (bool, error) {
	quota := u.Quota(worker)
	if quota <= 0 {
		return false, nil
	}
	used, err := u.Usage(ctx, worker)
	if err != nil {
		return false, err
	}
	return used > quota, nil
}

func (u *Redis) Quota(worker string) float64 {
	if q, ok := u.cfg.Quotas[worker]; ok {
		return q
	}
	return u.cfg.DefaultQuota
}

func (u *Redis) key(worker string) string {
	window := u.cfg.Now().UnixNano() / int64(u.cfg.Window)
	return kv.Prefix + "usage:" + worker + ":" + strconv.FormatInt(window, 10)
}
