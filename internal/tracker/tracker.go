// Package tracker records which worker types are throttled.
//
// "Currently throttled" is scoped to a time bucket: a marker is written under
// a key that embeds floor(now / bucketLength), so once the bucket advances the
// worker reads as not throttled even if the previous marker has not expired
// yet. A separate, longer-lived lookup set lists every worker that may still
// need recovery.
package tracker

import (
	"context"
	"strconv"
	"time"

	"github.com/you/throttler/internal/kv"
)

const (
	markerPrefix = kv.Prefix + "throttled:"
	lookupSetKey = kv.Prefix + "throttled_workers"
)

type Config struct {
	BucketLength time.Duration
	LookupSetTTL time.Duration
	// Now is the clock used to compute buckets. Defaults to time.Now.
	Now func() time.Time
}

type Tracker struct {
	store kv.Store
	cfg   Config
}

func New(store kv.Store, cfg Config) *Tracker {
	if cfg.BucketLength <= 0 {
		cfg.BucketLength = time.Minute
	}
	if cfg.LookupSetTTL <= 0 {
		cfg.LookupSetTTL = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{store: store, cfg: cfg}
}

// Record marks worker as throttled for the current bucket and adds it to the
// lookup set.
func (t *Tracker) Record(ctx context.Context, worker string) error {
	if err := t.store.SetEX(ctx, t.markerKey(worker), t.cfg.BucketLength); err != nil {
		return err
	}
	return t.store.SAddWithTTL(ctx, lookupSetKey, worker, t.cfg.LookupSetTTL)
}

func (t *Tracker) CurrentlyThrottled(ctx context.Context, worker string) (bool, error) {
	return t.store.Exists(ctx, t.markerKey(worker))
}

// ThrottledWorkers lists the lookup set regardless of bucket.
func (t *Tracker) ThrottledWorkers(ctx context.Context) ([]string, error) {
	return t.store.SMembers(ctx, lookupSetKey)
}

// RemoveFromThrottledList leaves the bucket marker alone.
func (t *Tracker) RemoveFromThrottledList(ctx context.Context, worker string) error {
	return t.store.SRem(ctx, lookupSetKey, worker)
}

func (t *Tracker) Bucket() int64 {
	return t.cfg.Now().UnixNano() / int64(t.cfg.BucketLength)
}

func (t *Tracker) markerKey(worker string) string {
	return markerPrefix + worker + ":" + strconv.FormatInt(t.Bucket(), 10)
}
