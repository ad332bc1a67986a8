package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/throttler/internal/kv"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// storeCase lets the same behaviour run against both implementations.
type storeCase struct {
	name    string
	store   kv.Store
	advance func(time.Duration)
}

func stores(t *testing.T) []storeCase {
	mr := miniredis.RunT(t)
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	return []storeCase{
		{name: "memory", store: kv.NewMemory(c.now), advance: c.advance},
		{name: "redis", store: kv.NewRedis(rdb), advance: mr.FastForward},
	}
}

func TestSetEXExpires(t *testing.T) {
	ctx := context.Background()
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			ok, err := sc.store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, sc.store.SetEX(ctx, "k", time.Minute))
			ok, err = sc.store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			sc.advance(61 * time.Second)
			ok, err = sc.store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSetMembership(t *testing.T) {
	ctx := context.Background()
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			require.NoError(t, sc.store.SAddWithTTL(ctx, "s", "b", time.Minute))
			require.NoError(t, sc.store.SAddWithTTL(ctx, "s", "a", time.Minute))
			require.NoError(t, sc.store.SAddWithTTL(ctx, "s", "a", time.Minute))

			got, err := sc.store.SMembers(ctx, "s")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a", "b"}, got)

			require.NoError(t, sc.store.SRem(ctx, "s", "a"))
			got, err = sc.store.SMembers(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, got)

			sc.advance(2 * time.Minute)
			got, err = sc.store.SMembers(ctx, "s")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestSAddRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			require.NoError(t, sc.store.SAddWithTTL(ctx, "s", "a", time.Minute))
			sc.advance(50 * time.Second)
			require.NoError(t, sc.store.SAddWithTTL(ctx, "s", "b", time.Minute))
			sc.advance(50 * time.Second)

			got, err := sc.store.SMembers(ctx, "s")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a", "b"}, got)
		})
	}
}

func TestSRemMissing(t *testing.T) {
	ctx := context.Background()
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			assert.NoError(t, sc.store.SRem(ctx, "nope", "a"))
		})
	}
}
