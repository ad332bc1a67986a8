// Package census counts non-idle database connections per worker type.
//
// Jobs tag their SQL with a marginalia comment such as
// /*worker_type:ExportWorker*/; backends without one are not attributed.
package census

import (
	"context"

	"github.com/grafana/regexp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var marginalia = regexp.MustCompile(`/\*[^*]*\bworker_type:([A-Za-z0-9_:.]+)`)

const activityQuery = `select query
  from pg_stat_activity
 where state is not null
   and state <> 'idle'
   and pid <> pg_backend_pid()`

// Postgres samples pg_stat_activity on every configured shard.
type Postgres struct {
	shards map[string]*pgxpool.Pool
}

func NewPostgres(shards map[string]*pgxpool.Pool) *Postgres {
	return &Postgres{shards: shards}
}

func (c *Postgres) NonIdleConnectionsByDB(ctx context.Context) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int, len(c.shards))
	for shard, db := range c.shards {
		counts, err := sample(ctx, db)
		if err != nil {
			return nil, errors.Wrapf(err, "census of %s", shard)
		}
		out[shard] = counts
	}
	return out, nil
}

func sample(ctx context.Context, db *pgxpool.Pool) (map[string]int, error) {
	rows, err := db.Query(ctx, activityQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return nil, err
		}
		if worker := WorkerFromQuery(query); worker != "" {
			counts[worker]++
		}
	}
	return counts, rows.Err()
}

// WorkerFromQuery extracts the worker type from a marginalia comment, or ""
// when the query carries none.
func WorkerFromQuery(query string) string {
	m := marginalia.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return m[1]
}
