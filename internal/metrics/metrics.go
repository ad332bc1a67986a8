package metrics

// Recorder knows how to measure the throttling controller.
type Recorder interface {
	// IncThrottled counts a limit reduction applied by the admission gate.
	IncThrottled(worker, strategy, featureCategory string)
	// IncAdmissionError counts admission passes aborted by an error.
	IncAdmissionError(worker string)
	// IncRecoveryStep counts a limit increase made by the recovery service.
	IncRecoveryStep(worker, featureCategory string, recovered bool)
	// IncSweep counts recovery scheduler iterations by outcome.
	IncSweep(queue, result string)
}

// Sweep results.
const (
	SweepSkippedDisabled = "skipped_disabled"
	SweepSkippedLease    = "skipped_lease"
	SweepSwept           = "swept"
	SweepFailed          = "failed"
)

// Dummy is a Recorder that does nothing.
var Dummy Recorder = dummy{}

type dummy struct{}

func (dummy) IncThrottled(string, string, string) {}
func (dummy) IncAdmissionError(string) {}
func (dummy) IncRecoveryStep(string, string, bool) {}
func (dummy) IncSweep(string, string) {}
