// Package recovery raises throttled concurrency limits back to their maximum
// once the pressure that caused the throttling is gone.
package recovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/you/throttler/internal/domain"
	"github.com/you/throttler/internal/metrics"
	"github.com/you/throttler/internal/strategy"
)

type Decider interface {
	Execute(ctx context.Context) (domain.ThrottleDecision, error)
}

type LimitStore interface {
	CurrentLimit(ctx context.Context, worker string) (int, error)
	SetCurrentLimit(ctx context.Context, worker string, limit int) error
}

type Tracker interface {
	ThrottledWorkers(ctx context.Context) ([]string, error)
	RemoveFromThrottledList(ctx context.Context, worker string) error
}

type Result string

const (
	ResultStillThrottled Result = "still_throttled"
	ResultZeroLimit      Result = "zero_limit"
	ResultStepped        Result = "stepped"
	ResultRecovered      Result = "recovered"
)

type ServiceConfig struct {
	Limits   LimitStore
	Tracker  Tracker
	Logger   *zap.Logger
	Recorder metrics.Recorder
}

// Service moves one worker's limit a single step towards its maximum.
type Service struct {
	worker  domain.Worker
	decider Decider
	cfg     ServiceConfig
}

func NewService(worker domain.Worker, decider Decider, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Dummy
	}
	return &Service{worker: worker, decider: decider, cfg: cfg}
}

func (s *Service) Execute(ctx context.Context) (Result, error) {
	name, maxLimit := s.worker.Name, s.worker.MaxConcurrencyLimit

	decision, err := s.decider.Execute(ctx)
	if err != nil {
		return "", err
	}
	if decision.NeedsThrottle {
		return ResultStillThrottled, nil
	}

	current, err := s.cfg.Limits.CurrentLimit(ctx, name)
	if err != nil {
		return "", err
	}
	if current == 0 {
		return ResultZeroLimit, nil
	}

	next := min(strategy.GradualRecovery(current), maxLimit)
	if err := s.cfg.Limits.SetCurrentLimit(ctx, name, next); err != nil {
		return "", err
	}

	recovered := next >= maxLimit
	s.cfg.Logger.Info("concurrency limit recovering",
		zap.String("worker", name),
		zap.Int("previous_limit", current),
		zap.Int("new_limit", next),
		zap.Int("max_limit", maxLimit),
	)
	s.cfg.Recorder.IncRecoveryStep(name, s.worker.FeatureCategory, recovered)

	if !recovered {
		return ResultStepped, nil
	}
	if err := s.cfg.Tracker.RemoveFromThrottledList(ctx, name); err != nil {
		return "", err
	}
	return ResultRecovered, nil
}
