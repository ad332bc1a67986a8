// Package strategy holds the pure limit transforms used when throttling a
// worker type down and recovering it back up.
package strategy

import "github.com/you/throttler/internal/domain"

// Apply computes the new concurrency limit for current under s. ok is false
// for StrategyNone and unknown strategies, which never change a limit.
// current must be >= 1.
func Apply(s domain.Strategy, current int) (limit int, ok bool) {
	switch s {
	case domain.StrategySoftThrottle:
		return SoftThrottle(current), true
	case domain.StrategyHardThrottle:
		return HardThrottle(current), true
	case domain.StrategyGradualRecovery:
		return GradualRecovery(current), true
	}
	return current, false
}

// SoftThrottle returns ceil(0.8 * x).
func SoftThrottle(x int) int { return ceilDiv(8*x, 10) }

// HardThrottle returns max(1, ceil(0.5 * x)).
func HardThrottle(x int) int { return max(1, ceilDiv(x, 2)) }

// GradualRecovery returns ceil(1.1 * x).
func GradualRecovery(x int) int { return ceilDiv(11*x, 10) }

// Integer ceiling keeps 1.1*10 at 11; float64 math lands on 11.000000000000002.
func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
