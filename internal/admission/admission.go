// Package admission wraps job execution with the throttling pass.
//
// Every job of a worker type passes through the Gate before it runs. The
// gate may lower the worker's fleet-wide concurrency limit for later jobs,
// but it never blocks, delays or fails the job it wraps: every skip branch
// and every error falls through to running the job.
//
// Job runners wrap each job body with Run:
//
//	err := gate.Run(ctx, worker, func(ctx context.Context) error { return export(ctx, payload) })
package admission

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/throttler/internal/domain"
	"github.com/you/throttler/internal/lease"
	"github.com/you/throttler/internal/metrics"
	"github.com/you/throttler/internal/strategy"
)

// Job is the unit of work guarded by the gate.
type Job func(ctx context.Context) error

type Flags interface {
	Enabled() bool
	EnabledFor(worker string) bool
}

type Tracker interface {
	CurrentlyThrottled(ctx context.Context, worker string) (bool, error)
	Record(ctx context.Context, worker string) error
}

type LimitStore interface {
	CurrentLimit(ctx context.Context, worker string) (int, error)
	SetCurrentLimit(ctx context.Context, worker string, limit int) error
}

type Decider interface {
	Execute(ctx context.Context) (domain.ThrottleDecision, error)
}

// DeciderFactory binds a Decider to a worker type.
type DeciderFactory func(worker string) Decider

// Outcome names the branch a throttling pass ended on.
type Outcome string

const (
	OutcomeDisabled         Outcome = "disabled"
	OutcomeLeaseTaken       Outcome = "lease_taken"
	OutcomeAlreadyThrottled Outcome = "already_throttled"
	OutcomeNoThrottle       Outcome = "no_throttle"
	OutcomeZeroLimit        Outcome = "zero_limit"
	OutcomeThrottled        Outcome = "throttled"
)

type Config struct {
	Flags      Flags
	Leases     lease.Manager
	Tracker    Tracker
	Limits     LimitStore
	NewDecider DeciderFactory
	// LeaseTTL bounds how often one worker type is evaluated fleet-wide.
	LeaseTTL time.Duration
	Logger   *zap.Logger
	Recorder metrics.Recorder
}

func (c *Config) defaults() error {
	switch {
	case c.Flags == nil:
		return errors.New("flags are required")
	case c.Leases == nil:
		return errors.New("lease manager is required")
	case c.Tracker == nil:
		return errors.New("tracker is required")
	case c.Limits == nil:
		return errors.New("limit store is required")
	case c.NewDecider == nil:
		return errors.New("decider factory is required")
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Recorder == nil {
		c.Recorder = metrics.Dummy
	}
	return nil
}

type Gate struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config) (*Gate, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg, log: cfg.Logger.Named("admission")}, nil
}

// Run evaluates worker and then runs job. The returned error is the job's;
// a failed evaluation is logged and counted only.
func (g *Gate) Run(ctx context.Context, worker domain.Worker, job Job) error {
	if _, err := g.Evaluate(ctx, worker); err != nil {
		g.log.Warn("throttling pass failed", zap.String("worker", worker.Name), zap.Error(err))
		g.cfg.Recorder.IncAdmissionError(worker.Name)
	}
	return job(ctx)
}

// Evaluate runs a single throttling pass for worker without running a job.
func (g *Gate) Evaluate(ctx context.Context, worker domain.Worker) (Outcome, error) {
	name := worker.Name
	if !g.cfg.Flags.Enabled() || !g.cfg.Flags.EnabledFor(name) {
		return OutcomeDisabled, nil
	}

	ok, err := g.cfg.Leases.TryObtain(ctx, lease.AdmissionKey(name), g.cfg.LeaseTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return OutcomeLeaseTaken, nil
	}

	throttled, err := g.cfg.Tracker.CurrentlyThrottled(ctx, name)
	if err != nil {
		return "", err
	}
	if throttled {
		return OutcomeAlreadyThrottled, nil
	}

	decision, err := g.cfg.NewDecider(name).Execute(ctx)
	if err != nil {
		return "", err
	}
	if !decision.NeedsThrottle {
		return OutcomeNoThrottle, nil
	}

	current, err := g.cfg.Limits.CurrentLimit(ctx, name)
	if err != nil {
		return "", err
	}
	if current == 0 {
		return OutcomeZeroLimit, nil
	}

	next, ok := strategy.Apply(decision.Strategy, current)
	if !ok {
		return "", errors.Errorf("decision for %s carries no strategy", name)
	}
	if err := g.cfg.Limits.SetCurrentLimit(ctx, name, next); err != nil {
		return "", err
	}
	if err := g.cfg.Tracker.Record(ctx, name); err != nil {
		return "", err
	}

	g.log.Info("concurrency limit throttled",
		zap.String("worker", name),
		zap.String("strategy", string(decision.Strategy)),
		zap.Int("previous_limit", current),
		zap.Int("new_limit", next),
	)
	g.cfg.Recorder.IncThrottled(name, string(decision.Strategy), worker.FeatureCategory)
	return OutcomeThrottled, nil
}
