package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/you/throttler/internal/admission"
	"github.com/you/throttler/internal/domain"
	"github.com/you/throttler/internal/flags"
	"github.com/you/throttler/internal/kv"
	"github.com/you/throttler/internal/lease"
	"github.com/you/throttler/internal/storage"
	"github.com/you/throttler/internal/tracker"
)

var exportWorker = domain.Worker{Name: "ExportWorker", FeatureCategory: "importers", MaxConcurrencyLimit: 20, CurrentLimit: 10}

type stubDecider struct {
	decision domain.ThrottleDecision
	err      error
	calls    *int
}

func (d stubDecider) Execute(context.Context) (domain.ThrottleDecision, error) {
	if d.calls != nil {
		*d.calls++
	}
	return d.decision, d.err
}

type throttledCall struct{ worker, strategy, featureCategory string }

type spyRecorder struct {
	throttled []throttledCall
	errors    []string
}

func (s *spyRecorder) IncThrottled(worker, strategy, featureCategory string) {
	s.throttled = append(s.throttled, throttledCall{worker, strategy, featureCategory})
}
func (s *spyRecorder) IncAdmissionError(worker string) { s.errors = append(s.errors, worker) }
func (s *spyRecorder) IncRecoveryStep(string, string, bool) {}
func (s *spyRecorder) IncSweep(string, string) {}

type fixture struct {
	gate     *admission.Gate
	limits   *storage.Memory
	tracker  *tracker.Tracker
	leases   *lease.Memory
	recorder *spyRecorder
	logs     *observer.ObservedLogs
	calls    int
	now      time.Time
}

type fixtureOpts struct {
	enabled  bool
	disabled []string
	decider  stubDecider
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	f := &fixture{now: time.Unix(1_700_000_040, 0), recorder: &spyRecorder{}}
	clock := func() time.Time { return f.now }

	f.limits = storage.NewMemory(exportWorker)
	f.tracker = tracker.New(kv.NewMemory(clock), tracker.Config{BucketLength: time.Minute, Now: clock})
	f.leases = lease.NewMemory(clock)

	core, logs := observer.New(zap.InfoLevel)
	f.logs = logs

	d := opts.decider
	d.calls = &f.calls
	gate, err := admission.New(admission.Config{
		Flags:      flags.NewStatic(opts.enabled, opts.disabled),
		Leases:     f.leases,
		Tracker:    f.tracker,
		Limits:     f.limits,
		NewDecider: func(string) admission.Decider { return d },
		LeaseTTL:   5 * time.Second,
		Logger:     zap.New(core),
		Recorder:   f.recorder,
	})
	require.NoError(t, err)
	f.gate = gate
	return f
}

func (f *fixture) limit(t *testing.T) int {
	l, err := f.limits.CurrentLimit(context.Background(), exportWorker.Name)
	require.NoError(t, err)
	return l
}

var (
	hard = domain.ThrottleDecision{NeedsThrottle: true, Strategy: domain.StrategyHardThrottle}
	soft = domain.ThrottleDecision{NeedsThrottle: true, Strategy: domain.StrategySoftThrottle}
	none = domain.ThrottleDecision{NeedsThrottle: false, Strategy: domain.StrategyNone}
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		opts       fixtureOpts
		exp        admission.Outcome
		expLimit   int
		expRecord  bool
		expDecided bool
	}{
		{
			name:     "Globally disabled skips everything.",
			opts:     fixtureOpts{enabled: false, decider: stubDecider{decision: hard}},
			exp:      admission.OutcomeDisabled,
			expLimit: 10,
		},
		{
			name:     "Disabled for the worker skips everything.",
			opts:     fixtureOpts{enabled: true, disabled: []string{"ExportWorker"}, decider: stubDecider{decision: hard}},
			exp:      admission.OutcomeDisabled,
			expLimit: 10,
		},
		{
			name:       "No throttle needed leaves the limit alone.",
			opts:       fixtureOpts{enabled: true, decider: stubDecider{decision: none}},
			exp:        admission.OutcomeNoThrottle,
			expLimit:   10,
			expDecided: true,
		},
		{
			name:       "Dominant worker is hard throttled.",
			opts:       fixtureOpts{enabled: true, decider: stubDecider{decision: hard}},
			exp:        admission.OutcomeThrottled,
			expLimit:   5,
			expRecord:  true,
			expDecided: true,
		},
		{
			name:       "Non-dominant worker is soft throttled.",
			opts:       fixtureOpts{enabled: true, decider: stubDecider{decision: soft}},
			exp:        admission.OutcomeThrottled,
			expLimit:   8,
			expRecord:  true,
			expDecided: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, test.opts)

			got, err := f.gate.Evaluate(ctx, exportWorker)
			require.NoError(t, err)
			assert.Equal(t, test.exp, got)
			assert.Equal(t, test.expLimit, f.limit(t))
			assert.Equal(t, test.expDecided, f.calls == 1)

			throttled, err := f.tracker.CurrentlyThrottled(ctx, exportWorker.Name)
			require.NoError(t, err)
			assert.Equal(t, test.expRecord, throttled)

			workers, err := f.tracker.ThrottledWorkers(ctx)
			require.NoError(t, err)
			if test.expRecord {
				assert.Equal(t, []string{"ExportWorker"}, workers)
			} else {
				assert.Empty(t, workers)
			}
		})
	}
}

func TestThrottleIsLoggedAndCounted(t *testing.T) {
	f := newFixture(t, fixtureOpts{enabled: true, decider: stubDecider{decision: hard}})

	_, err := f.gate.Evaluate(context.Background(), exportWorker)
	require.NoError(t, err)

	require.Equal(t, 1, f.logs.Len())
	entry := f.logs.All()[0]
	assert.Equal(t, "concurrency limit throttled", entry.Message)
	assert.Equal(t, map[string]interface{}{
		"worker":         "ExportWorker",
		"strategy":       "hard_throttle",
		"previous_limit": int64(10),
		"new_limit":      int64(5),
	}, entry.ContextMap())

	assert.Equal(t, []throttledCall{{"ExportWorker", "hard_throttle", "importers"}}, f.recorder.throttled)
}

func TestLeaseHeldElsewhereSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{enabled: true, decider: stubDecider{decision: hard}})

	ok, err := f.leases.TryObtain(ctx, lease.AdmissionKey(exportWorker.Name), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, admission.OutcomeLeaseTaken, got)
	assert.Equal(t, 0, f.calls)
	assert.Equal(t, 10, f.limit(t))
}

func TestOnePassPerLeaseWindowAndBucket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{enabled: true, decider: stubDecider{decision: hard}})

	got, err := f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, admission.OutcomeThrottled, got)

	got, err = f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, admission.OutcomeLeaseTaken, got)

	// Lease lapsed, bucket unchanged.
	f.now = f.now.Add(10 * time.Second)
	got, err = f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, admission.OutcomeAlreadyThrottled, got)
	assert.Equal(t, 5, f.limit(t))

	// Next bucket forces a fresh decision.
	f.now = f.now.Add(time.Minute)
	got, err = f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, admission.OutcomeThrottled, got)
	assert.Equal(t, 3, f.limit(t))
	assert.Equal(t, 2, f.calls)
}

func TestZeroLimitIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{enabled: true, decider: stubDecider{decision: hard}})
	require.NoError(t, f.limits.SetCurrentLimit(ctx, exportWorker.Name, 0))

	got, err := f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, admission.OutcomeZeroLimit, got)
	assert.Equal(t, 0, f.limit(t))

	throttled, err := f.tracker.CurrentlyThrottled(ctx, exportWorker.Name)
	require.NoError(t, err)
	assert.False(t, throttled)
}

func TestLimitOfOneStaysAtOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{enabled: true, decider: stubDecider{decision: hard}})
	require.NoError(t, f.limits.SetCurrentLimit(ctx, exportWorker.Name, 1))

	_, err := f.gate.Evaluate(ctx, exportWorker)
	require.NoError(t, err)
	assert.Equal(t, 1, f.limit(t))
}

func TestMissingStrategyIsAnError(t *testing.T) {
	f := newFixture(t, fixtureOpts{enabled: true, decider: stubDecider{decision: domain.ThrottleDecision{NeedsThrottle: true, Strategy: domain.StrategyNone}}})

	_, err := f.gate.Evaluate(context.Background(), exportWorker)
	assert.Error(t, err)
	assert.Equal(t, 10, f.limit(t))
}

func TestRunAlwaysRunsTheJob(t *testing.T) {
	tests := []struct {
		name    string
		opts    fixtureOpts
		jobErr  error
		expErrs []string
	}{
		{name: "disabled", opts: fixtureOpts{enabled: false}},
		{name: "throttled", opts: fixtureOpts{enabled: true, decider: stubDecider{decision: hard}}},
		{name: "decider failure", opts: fixtureOpts{enabled: true, decider: stubDecider{err: errors.New("census down")}}, expErrs: []string{"ExportWorker"}},
		{name: "job failure is returned", opts: fixtureOpts{enabled: true, decider: stubDecider{decision: none}}, jobErr: errors.New("boom")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, test.opts)
			ran := false
			err := f.gate.Run(context.Background(), exportWorker, func(context.Context) error {
				ran = true
				return test.jobErr
			})
			assert.True(t, ran)
			assert.Equal(t, test.jobErr, err)
			assert.Equal(t, test.expErrs, f.recorder.errors)
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := admission.New(admission.Config{})
	assert.Error(t, err)
}
