package domain

import "time"

// Worker is a registered class of recurring background job. All jobs of one
// worker type share a single fleet-wide concurrency limit.
type Worker struct {
	Name                string
	FeatureCategory     string
	MaxConcurrencyLimit int
	CurrentLimit        int
	UpdatedAt           time.Time
}

type Strategy string

const (
	StrategyNone            Strategy = "none"
	StrategySoftThrottle    Strategy = "soft_throttle"
	StrategyHardThrottle    Strategy = "hard_throttle"
	StrategyGradualRecovery Strategy = "gradual_recovery"
)

// ThrottleDecision is built fresh for every evaluation and never stored.
type ThrottleDecision struct {
	NeedsThrottle bool
	Strategy      Strategy
}
