package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose"

	"github.com/you/throttler/internal/domain"
)

var ErrWorkerNotFound = errors.New("worker not found")

// Store is the worker registry and the source of truth for concurrency
// limits.
type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

// Migrate applies the SQL migrations in dir.
func Migrate(db *pgxpool.Pool, dir string) error {
	sqlDB := stdlib.OpenDBFromPool(db)
	defer sqlDB.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return errors.Wrap(goose.Up(sqlDB, dir), "migrate")
}

// A worker whose limit was never lowered runs at its maximum.
const workerColumns = `name, feature_category, max_concurrency_limit,
coalesce(current_limit, max_concurrency_limit), updated_at`

func (s *Store) Worker(ctx context.Context, name string) (domain.Worker, error) {
	var w domain.Worker
	err := s.db.QueryRow(ctx, `select `+workerColumns+` from worker_types where name = $1`, name).
		Scan(&w.Name, &w.FeatureCategory, &w.MaxConcurrencyLimit, &w.CurrentLimit, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, errors.Wrap(ErrWorkerNotFound, name)
	}
	return w, errors.Wrapf(err, "load worker %s", name)
}

func (s *Store) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := s.db.Query(ctx, `select `+workerColumns+` from worker_types order by name`)
	if err != nil {
		return nil, errors.Wrap(err, "list workers")
	}
	defer rows.Close()
	var out []domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.Name, &w.FeatureCategory, &w.MaxConcurrencyLimit, &w.CurrentLimit, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type UpsertWorkerParams struct {
	Name                string
	FeatureCategory     string
	MaxConcurrencyLimit int
}

// UpsertWorker registers a worker or updates its metadata. The current
// limit is left untouched.
func (s *Store) UpsertWorker(ctx context.Context, p UpsertWorkerParams) error {
	if p.MaxConcurrencyLimit < 0 {
		return errors.Errorf("max concurrency limit %d is negative", p.MaxConcurrencyLimit)
	}
	_, err := s.db.Exec(ctx, `insert into worker_types(name, feature_category, max_concurrency_limit)
values ($1, $2, $3)
on conflict (name) do update
   set feature_category = excluded.feature_category,
       max_concurrency_limit = excluded.max_concurrency_limit,
       updated_at = now()`, p.Name, p.FeatureCategory, p.MaxConcurrencyLimit)
	return errors.Wrapf(err, "upsert worker %s", p.Name)
}

func (s *Store) CurrentLimit(ctx context.Context, name string) (int, error) {
	w, err := s.Worker(ctx, name)
	return w.CurrentLimit, err
}

func (s *Store) SetCurrentLimit(ctx context.Context, name string, limit int) error {
	if limit < 0 {
		return errors.Errorf("concurrency limit %d is negative", limit)
	}
	tag, err := s.db.Exec(ctx, `update worker_types
   set current_limit = $2, updated_at = now()
 where name = $1`, name, limit)
	if err != nil {
		return errors.Wrapf(err, "set limit of %s", name)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(ErrWorkerNotFound, name)
	}
	return nil
}
