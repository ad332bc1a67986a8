package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Postgres keeps leases as rows in the leases table. An insert wins when no
// row exists for the key or the existing one has expired.
type Postgres struct {
	db     *pgxpool.Pool
	holder string
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db, holder: uuid.NewString()}
}

func (l *Postgres) TryObtain(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := l.db.Exec(ctx, `insert into leases(key, holder, expires_at)
values ($1, $2, now() + make_interval(secs => $3))
on conflict (key) do update
   set holder = excluded.holder,
       expires_at = excluded.expires_at
 where leases.expires_at < now()`, key, l.holder, ttl.Seconds())
	if err != nil {
		return false, errors.Wrapf(err, "obtain lease %s", key)
	}
	return tag.RowsAffected() == 1, nil
}
