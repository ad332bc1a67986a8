// Package kv is the fleet-shared key/value store used for throttling state.
// Every value it holds expires on its own; there are no transactions.
package kv

import (
	"context"
	"time"
)

// Prefix namespaces every key written by the throttler.
const Prefix = "throttler:"

type Store interface {
	// SetEX writes a presence marker under key that expires after ttl.
	SetEX(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	// SAddWithTTL adds member to set and (re)sets the whole set's expiry.
	SAddWithTTL(ctx context.Context, set, member string, ttl time.Duration) error
	SMembers(ctx context.Context, set string) ([]string, error)
	SRem(ctx context.Context, set, member string) error
}
