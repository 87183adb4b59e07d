package monitor

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/alert"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/sink"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

type fakeSource struct {
	errs  []error // consumed one per call; nil entries succeed
	calls int
}

func (f *fakeSource) Acquire(ctx context.Context) (*types.Frame, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &types.Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), SourceTag: "frame.jpg"}, nil
}

type fakeDetector struct {
	results []*types.DetectionResult
	errs    []error
	panicAt int
	calls   int
	onCall  func(n int)
}

func (f *fakeDetector) Detect(ctx context.Context, frame *types.Frame) (*types.DetectionResult, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if f.panicAt == f.calls {
		panic("model exploded")
	}
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	if len(f.results) >= f.calls {
		return f.results[f.calls-1], nil
	}
	return met(), nil
}

type fakeSink struct {
	mu  sync.Mutex
	got []*types.DetectionResult
}

func (f *fakeSink) Emit(_ context.Context, result *types.DetectionResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, result)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeEvidence struct {
	captures, detections int
}

func (f *fakeEvidence) Save(_ *types.Frame, result *types.DetectionResult) (string, error) {
	if result == nil {
		f.captures++
		return "current.jpg", nil
	}
	f.detections++
	return "detection.jpg", nil
}

type recordingObserver struct {
	reports []CycleReport
}

func (r *recordingObserver) Observe(report CycleReport) {
	r.reports = append(r.reports, report)
}

func met() *types.DetectionResult {
	return &types.DetectionResult{
		ConditionMet: true,
		OverlapRatio: 0.9,
		Confidences:  map[string]float64{"dog": 0.9, "couch": 0.8},
	}
}

func notMet() *types.DetectionResult {
	return &types.DetectionResult{Confidences: map[string]float64{}}
}

// clockAt returns a clock that yields the given unix seconds in order and
// then sticks at the last one.
func clockAt(secs ...float64) func() time.Time {
	i := 0
	return func() time.Time {
		s := secs[i]
		if i < len(secs)-1 {
			i++
		}
		return time.Unix(0, 0).Add(time.Duration(s * float64(time.Second)))
	}
}

func opts() Options {
	return Options{Target: "dog", Reference: "couch", Bystander: "person"}
}

func TestRunEndToEndCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := &fakeDetector{onCall: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	alerts := &fakeSink{}
	m := New(&fakeSource{}, det, alerts, alert.NewEngine(300*time.Second), opts(),
		WithClock(clockAt(1000, 1100, 1401)))

	require.NoError(t, m.Run(ctx))

	assert.Equal(t, 3, det.calls)
	assert.Equal(t, 2, alerts.count())
	assert.Equal(t, uint64(2), m.Metrics().AlertsEmitted.Load())
	assert.Equal(t, uint64(1), m.Metrics().AlertsSuppressed.Load())
	assert.Equal(t, uint64(3), m.Metrics().Cycles.Load())
}

type countingPublisher struct {
	mu        sync.Mutex
	published int
}

func (p *countingPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published++
	return nil
}

func TestRunFinishesCycleInProgressAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &countingPublisher{}
	sinks := sink.NewMulti(time.Second, sink.NewMQTT(pub, "couch-monitor/alerts", 1, "dog", "couch"))
	var sinkErrs int
	sinks.OnError(func(string, error) { sinkErrs++ })

	var detectCtxErr error
	det := &fakeDetector{onCall: func(int) { cancel() }}
	src := &ctxSource{}
	m := New(src, &ctxDetector{inner: det, seen: &detectCtxErr}, sinks, alert.NewEngine(300*time.Second), opts())

	require.NoError(t, m.Run(ctx))

	assert.Equal(t, 1, det.calls)
	assert.NoError(t, detectCtxErr)
	assert.Equal(t, 0, sinkErrs)
	assert.Equal(t, 1, pub.published)
	assert.Equal(t, uint64(1), m.Metrics().AlertsEmitted.Load())
	_, alerted := m.engine.LastAlert()
	assert.True(t, alerted)
}

// ctxSource fails like a real source would if handed a cancelled context.
type ctxSource struct{ fakeSource }

func (s *ctxSource) Acquire(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fakeSource.Acquire(ctx)
}

// ctxDetector records whether the context was cancelled after inner ran.
type ctxDetector struct {
	inner *fakeDetector
	seen  *error
}

func (d *ctxDetector) Detect(ctx context.Context, frame *types.Frame) (*types.DetectionResult, error) {
	result, err := d.inner.Detect(ctx, frame)
	*d.seen = ctx.Err()
	return result, err
}

func TestRunStopsBeforeNewCycleWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	det := &fakeDetector{}
	m := New(&fakeSource{}, det, &fakeSink{}, alert.NewEngine(0), opts())
	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 0, det.calls)
}

func TestRunSleepIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := opts()
	o.Interval = time.Hour

	m := New(&fakeSource{}, &fakeDetector{onCall: func(int) { cancel() }}, &fakeSink{}, alert.NewEngine(0), o)

	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunCycleCooldownBoundary(t *testing.T) {
	alerts := &fakeSink{}
	m := New(&fakeSource{}, &fakeDetector{}, alerts, alert.NewEngine(300*time.Second), opts(),
		WithClock(clockAt(1000, 1300, 1300.001)))

	assert.Equal(t, alert.Alert, m.RunCycle(context.Background()).Decision.Action)
	r := m.RunCycle(context.Background())
	assert.Equal(t, alert.Suppressed, r.Decision.Action)
	assert.Equal(t, time.Duration(0), r.Decision.Remaining)
	assert.Equal(t, alert.Alert, m.RunCycle(context.Background()).Decision.Action)
	assert.Equal(t, 2, alerts.count())
}

func TestRunCycleAcquisitionFailureThenSuccess(t *testing.T) {
	alerts := &fakeSink{}
	src := &fakeSource{errs: []error{errors.New("camera busy"), nil}}
	det := &fakeDetector{}
	m := New(src, det, alerts, alert.NewEngine(300*time.Second), opts(), WithClock(clockAt(1000, 1010)))

	r := m.RunCycle(context.Background())
	var acqErr *types.AcquisitionError
	require.ErrorAs(t, r.Err, &acqErr)
	assert.Equal(t, StageAcquire, r.Stage)
	assert.Equal(t, 0, det.calls)

	r = m.RunCycle(context.Background())
	require.NoError(t, r.Err)
	assert.Equal(t, alert.Alert, r.Decision.Action)
	assert.Equal(t, 1, alerts.count())
	assert.Equal(t, uint64(1), m.Metrics().AcquisitionErrors.Load())
}

func TestRunCycleDetectionFailureThenSuccess(t *testing.T) {
	alerts := &fakeSink{}
	det := &fakeDetector{errs: []error{errors.New("inference timeout")}}
	m := New(&fakeSource{}, det, alerts, alert.NewEngine(300*time.Second), opts(), WithClock(clockAt(1000, 1010)))

	r := m.RunCycle(context.Background())
	var detErr *types.DetectionError
	require.ErrorAs(t, r.Err, &detErr)
	assert.Equal(t, 0, alerts.count())

	r = m.RunCycle(context.Background())
	assert.Equal(t, alert.Alert, r.Decision.Action)
	assert.Equal(t, 1, alerts.count())
}

func TestRunCycleKeepsTypedErrors(t *testing.T) {
	typed := &types.AcquisitionError{Source: "shm", Err: errors.New("no frame")}
	m := New(&fakeSource{errs: []error{typed}}, &fakeDetector{}, &fakeSink{}, alert.NewEngine(0), opts())

	r := m.RunCycle(context.Background())
	assert.Same(t, typed, r.Err)
}

func TestRunCycleRecoversPanics(t *testing.T) {
	alerts := &fakeSink{}
	m := New(&fakeSource{}, &fakeDetector{panicAt: 1}, alerts, alert.NewEngine(0), opts(),
		WithClock(clockAt(1000, 1001)))

	var r CycleReport
	assert.NotPanics(t, func() { r = m.RunCycle(context.Background()) })
	assert.ErrorContains(t, r.Err, "panic during detect")
	assert.Equal(t, uint64(1), m.Metrics().CyclePanics.Load())

	r = m.RunCycle(context.Background())
	assert.Equal(t, alert.Alert, r.Decision.Action)
}

func TestRunCycleNoAlertWhenConditionFalse(t *testing.T) {
	alerts := &fakeSink{}
	det := &fakeDetector{results: []*types.DetectionResult{notMet()}}
	m := New(&fakeSource{}, det, alerts, alert.NewEngine(0), opts())

	r := m.RunCycle(context.Background())
	assert.Equal(t, alert.NoAlert, r.Decision.Action)
	assert.Equal(t, 0, alerts.count())
}

func TestRunCycleBystanderNeverAlertsByItself(t *testing.T) {
	alerts := &fakeSink{}
	result := notMet()
	result.BystanderOnReference = true
	m := New(&fakeSource{}, &fakeDetector{results: []*types.DetectionResult{result}}, alerts, alert.NewEngine(0), opts())

	m.RunCycle(context.Background())
	assert.Equal(t, 0, alerts.count())
	assert.Equal(t, uint64(1), m.Metrics().BystanderSeen.Load())
}

func TestTestModeEmitsSyntheticAlerts(t *testing.T) {
	alerts := &fakeSink{}
	o := opts()
	o.TestAlertEveryN = 2
	det := &fakeDetector{results: []*types.DetectionResult{notMet(), notMet(), notMet(), notMet()}}
	m := New(&fakeSource{}, det, alerts, alert.NewEngine(time.Hour), o)

	var flagged int
	for i := 0; i < 4; i++ {
		if m.RunCycle(context.Background()).TestAlert {
			flagged++
		}
	}

	assert.Equal(t, 2, flagged)
	require.Equal(t, 2, alerts.count())
	assert.Equal(t, types.TestSourceTag, alerts.got[0].SourceTag)
	assert.True(t, alerts.got[0].ConditionMet)
	assert.Equal(t, uint64(2), m.Metrics().TestAlerts.Load())
	assert.Equal(t, uint64(0), m.Metrics().AlertsEmitted.Load())
}

func TestEvidenceAndObservers(t *testing.T) {
	ev := &fakeEvidence{}
	obs := &recordingObserver{}
	o := opts()
	o.SaveCaptures = true
	o.SaveDetections = true

	src := &fakeSource{errs: []error{nil, errors.New("gone")}}
	m := New(src, &fakeDetector{}, &fakeSink{}, alert.NewEngine(0), o,
		WithEvidence(ev), WithObserver(obs))

	m.RunCycle(context.Background())
	m.RunCycle(context.Background())

	assert.Equal(t, 1, ev.captures)
	assert.Equal(t, 1, ev.detections)
	require.Len(t, obs.reports, 2)
	assert.Equal(t, "detection.jpg", obs.reports[0].Evidence)
	assert.Equal(t, StageDone, obs.reports[0].Stage)
	assert.NotNil(t, obs.reports[0].Frame)
	assert.True(t, obs.reports[1].Failed())
	assert.Equal(t, uint64(2), m.Metrics().EvidenceSaved.Load())
}
