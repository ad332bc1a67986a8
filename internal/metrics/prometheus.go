package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "throttler"

	promAdmissionSubsystem = "admission"
	promRecoverySubsystem  = "recovery"
)

type prometheusRec struct {
	throttled       *prometheus.CounterVec
	admissionErrors *prometheus.CounterVec
	recoverySteps   *prometheus.CounterVec
	sweeps          *prometheus.CounterVec
}

// NewPrometheusRecorder returns a Recorder backed by Prometheus counters
// registered on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	p := &prometheusRec{}
	p.registerMetrics(reg)
	return p
}

func (p *prometheusRec) registerMetrics(reg prometheus.Registerer) {
	p.throttled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promAdmissionSubsystem,
		Name:      "throttled_total",
		Help:      "Total number of concurrency limit reductions.",
	}, []string{"worker", "strategy", "feature_category"})

	p.admissionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promAdmissionSubsystem,
		Name:      "errors_total",
		Help:      "Total number of admission passes that failed.",
	}, []string{"worker"})

	p.recoverySteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promRecoverySubsystem,
		Name:      "steps_total",
		Help:      "Total number of concurrency limit increases made while recovering.",
	}, []string{"worker", "feature_category", "recovered"})

	p.sweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promRecoverySubsystem,
		Name:      "sweeps_total",
		Help:      "Total number of recovery scheduler iterations by result.",
	}, []string{"queue", "result"})

	reg.MustRegister(p.throttled, p.admissionErrors, p.recoverySteps, p.sweeps)
}

func (p *prometheusRec) IncThrottled(worker, strategy, featureCategory string) {
	p.throttled.WithLabelValues(worker, strategy, featureCategory).Inc()
}

func (p *prometheusRec) IncAdmissionError(worker string) {
	p.admissionErrors.WithLabelValues(worker).Inc()
}

func (p *prometheusRec) IncRecoveryStep(worker, featureCategory string, recovered bool) {
	p.recoverySteps.WithLabelValues(worker, featureCategory, strconv.FormatBool(recovered)).Inc()
}

func (p *prometheusRec) IncSweep(queue, result string) {
	p.sweeps.WithLabelValues(queue, result).Inc()
}
