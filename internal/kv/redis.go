package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

type Redis struct{ rdb r.UniversalClient }

func NewRedis(rdb r.UniversalClient) *Redis { return &Redis{rdb} }

func (s *Redis) SetEX(ctx context.Context, key string, ttl time.Duration) error {
	return errors.Wrapf(s.rdb.Set(ctx, key, "1", ttl).Err(), "set %s", key)
}

func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrapf(err, "exists %s", key)
	}
	return n > 0, nil
}

func (s *Redis) SAddWithTTL(ctx context.Context, set, member string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, set, member)
	pipe.Expire(ctx, set, ttl)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "sadd %s", set)
}

func (s *Redis) SMembers(ctx context.Context, set string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, set).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "smembers %s", set)
	}
	return members, nil
}

func (s *Redis) SRem(ctx context.Context, set, member string) error {
	return errors.Wrapf(s.rdb.SRem(ctx, set, member).Err(), "srem %s", set)
}
