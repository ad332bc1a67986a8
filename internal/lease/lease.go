// Package lease provides short-lived, non-queuing exclusive leases. Failing
// to obtain a lease is an expected outcome and is reported as false, never as
// an error. Leases are not released; they lapse when their TTL runs out.
package lease

import (
	"context"
	"time"

	"github.com/you/throttler/internal/kv"
)

type Manager interface {
	TryObtain(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

func AdmissionKey(worker string) string { return kv.Prefix + "lease:admission:" + worker }

func RecoveryKey(queue string) string { return kv.Prefix + "lease:recovery:" + queue }
