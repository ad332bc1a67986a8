// Package app wires the throttler's components from configuration. Both
// binaries build on it.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/throttler/internal/admission"
	"github.com/you/throttler/internal/census"
	"github.com/you/throttler/internal/config"
	"github.com/you/throttler/internal/decider"
	"github.com/you/throttler/internal/flags"
	"github.com/you/throttler/internal/kv"
	"github.com/you/throttler/internal/lease"
	"github.com/you/throttler/internal/metrics"
	"github.com/you/throttler/internal/recovery"
	"github.com/you/throttler/internal/routing"
	"github.com/you/throttler/internal/storage"
	"github.com/you/throttler/internal/tracker"
	"github.com/you/throttler/internal/usage"
)

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Recorder metrics.Recorder

	DB     *pgxpool.Pool
	Shards map[string]*pgxpool.Pool
	Redis  *r.Client

	Store   *storage.Store
	Tracker *tracker.Tracker
	Leases  lease.Manager
	Usage   *usage.Redis
	Census  *census.Postgres
	Flags   *flags.Static
	Router  *routing.Router
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	t := cfg.Throttling
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry(), Shards: map[string]*pgxpool.Pool{}}
	a.Recorder = metrics.NewPrometheusRecorder(a.Registry)

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	a.DB = db

	// The main database is always part of the census.
	a.Shards["main"] = db
	for shard, dsn := range cfg.ShardDSNs {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			a.Close()
			return nil, errors.Wrapf(err, "connect shard %s", shard)
		}
		a.Shards[shard] = pool
	}

	a.Redis = r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	a.Store = storage.New(db)
	a.Tracker = tracker.New(kv.NewRedis(a.Redis), tracker.Config{BucketLength: t.BucketLength, LookupSetTTL: t.LookupSetTTL})
	a.Usage = usage.NewRedis(a.Redis, usage.Config{Window: t.UsageWindow, DefaultQuota: t.DefaultDBDurationQuota, Quotas: t.DBDurationQuotas})
	a.Census = census.NewPostgres(a.Shards)
	a.Flags = flags.NewStatic(t.Enabled, t.DisabledWorkers)
	a.Router = routing.New(t.Queues, t.WorkerRoutes)

	switch t.LeaseBackend {
	case "postgres":
		a.Leases = lease.NewPostgres(db)
	default:
		a.Leases = lease.NewRedis(a.Redis)
	}
	return a, nil
}

func (a *App) Decider(worker string) *decider.Decider {
	return decider.New(worker, a.Usage, a.Census)
}

func (a *App) Gate() (*admission.Gate, error) {
	return admission.New(admission.Config{
		Flags:      a.Flags,
		Leases:     a.Leases,
		Tracker:    a.Tracker,
		Limits:     a.Store,
		NewDecider: func(worker string) admission.Decider { return a.Decider(worker) },
		LeaseTTL:   a.Config.Throttling.AdmissionLeaseTTL,
		Logger:     a.Logger,
		Recorder:   a.Recorder,
	})
}

func (a *App) Scheduler(queue string) (*recovery.Scheduler, error) {
	t := a.Config.Throttling
	return recovery.NewScheduler(recovery.SchedulerConfig{
		Queue:      queue,
		Flags:      a.Flags,
		Leases:     a.Leases,
		LeaseTTL:   t.RecoveryLeaseTTL,
		Router:     a.Router,
		Registry:   a.Store,
		NewDecider: func(worker string) recovery.Decider { return a.Decider(worker) },
		Service: recovery.ServiceConfig{
			Limits:   a.Store,
			Tracker:  a.Tracker,
			Logger:   a.Logger,
			Recorder: a.Recorder,
		},
		MinInterval: t.SweepMinInterval,
		MaxInterval: t.SweepMaxInterval,
	})
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	for _, pool := range a.Shards {
		pool.Close()
	}
}
