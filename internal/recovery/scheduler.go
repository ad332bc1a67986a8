package recovery

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/you/throttler/internal/domain"
	"github.com/you/throttler/internal/lease"
	"github.com/you/throttler/internal/metrics"
	"github.com/you/throttler/internal/storage"
)

type Flags interface {
	Enabled() bool
}

type Router interface {
	Route(worker string) string
}

type Registry interface {
	Worker(ctx context.Context, name string) (domain.Worker, error)
}

type SchedulerConfig struct {
	Queue      string
	Flags      Flags
	Leases     lease.Manager
	LeaseTTL   time.Duration
	Router     Router
	Registry   Registry
	NewDecider func(worker string) Decider
	Service    ServiceConfig

	MinInterval time.Duration
	MaxInterval time.Duration
	// Sleep waits between iterations. It is not interrupted by cancellation;
	// the stop signal is only observed at the top of each iteration.
	Sleep func(time.Duration)
	// Jitter returns a value in [0, n). Defaults to rand.Int64N.
	Jitter func(n int64) int64
}

func (c *SchedulerConfig) defaults() error {
	switch {
	case c.Queue == "":
		return errors.New("queue is required")
	case c.Flags == nil || c.Leases == nil || c.Router == nil || c.Registry == nil || c.NewDecider == nil:
		return errors.New("flags, leases, router, registry and decider factory are required")
	case c.Service.Tracker == nil || c.Service.Limits == nil:
		return errors.New("tracker and limit store are required")
	case c.MinInterval <= 0 || c.MaxInterval < c.MinInterval:
		return errors.Errorf("invalid sweep interval [%s, %s]", c.MinInterval, c.MaxInterval)
	case c.LeaseTTL > c.MinInterval:
		return errors.Errorf("lease ttl %s outlives the %s minimum interval", c.LeaseTTL, c.MinInterval)
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = c.MinInterval
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.Jitter == nil {
		c.Jitter = rand.Int64N
	}
	if c.Service.Logger == nil {
		c.Service.Logger = zap.NewNop()
	}
	if c.Service.Recorder == nil {
		c.Service.Recorder = metrics.Dummy
	}
	return nil
}

// Scheduler periodically sweeps the throttled workers routed to one queue.
// Many processes may run a scheduler for the same queue; the per-queue lease
// lets at most one of them sweep per lease window.
type Scheduler struct {
	cfg SchedulerConfig
	log *zap.Logger
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Scheduler{cfg: cfg, log: cfg.Service.Logger.Named("recovery").With(zap.String("queue", cfg.Queue))}, nil
}

// Run sweeps until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("recovery scheduler started")
	for ctx.Err() == nil {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("recovery sweep failed", zap.Error(err))
		}
		s.cfg.Sleep(s.Interval())
	}
	s.log.Info("recovery scheduler stopped")
	return nil
}

// Sweep runs one iteration and reports its metrics result.
func (s *Scheduler) Sweep(ctx context.Context) (string, error) {
	result, err := s.sweep(ctx)
	if err != nil {
		result = metrics.SweepFailed
	}
	s.cfg.Service.Recorder.IncSweep(s.cfg.Queue, result)
	return result, err
}

func (s *Scheduler) sweep(ctx context.Context) (string, error) {
	if !s.cfg.Flags.Enabled() {
		return metrics.SweepSkippedDisabled, nil
	}

	ok, err := s.cfg.Leases.TryObtain(ctx, lease.RecoveryKey(s.cfg.Queue), s.cfg.LeaseTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return metrics.SweepSkippedLease, nil
	}

	workers, err := s.cfg.Service.Tracker.ThrottledWorkers(ctx)
	if err != nil {
		return "", err
	}

	// One worker failing does not stop the others from recovering.
	var errs error
	for _, name := range workers {
		if s.cfg.Router.Route(name) != s.cfg.Queue {
			continue
		}
		errs = multierr.Append(errs, s.recover(ctx, name))
	}
	return metrics.SweepSwept, errs
}

func (s *Scheduler) recover(ctx context.Context, name string) error {
	worker, err := s.cfg.Registry.Worker(ctx, name)
	if errors.Is(err, storage.ErrWorkerNotFound) {
		s.log.Warn("dropping unregistered worker from throttled list", zap.String("worker", name))
		return s.cfg.Service.Tracker.RemoveFromThrottledList(ctx, name)
	}
	if err != nil {
		return err
	}

	result, err := NewService(worker, s.cfg.NewDecider(name), s.cfg.Service).Execute(ctx)
	if err != nil {
		return errors.Wrapf(err, "recover %s", name)
	}
	s.log.Debug("worker swept", zap.String("worker", name), zap.String("result", string(result)))
	return nil
}

// Interval is a random duration in [MinInterval, MaxInterval] so that
// processes across the fleet do not sweep in lockstep.
func (s *Scheduler) Interval() time.Duration {
	spread := int64(s.cfg.MaxInterval - s.cfg.MinInterval)
	if spread == 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(s.cfg.Jitter(spread+1))
}
