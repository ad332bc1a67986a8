package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
)

// Redis obtains leases with SET NX. The value identifies the holder so
// operators can tell which process owns a key.
type Redis struct {
	rdb    r.UniversalClient
	holder string
}

func NewRedis(rdb r.UniversalClient) *Redis {
	return &Redis{rdb: rdb, holder: uuid.NewString()}
}

func (l *Redis) TryObtain(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, l.holder, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "obtain lease %s", key)
	}
	return ok, nil
}
