// Package monitor runs the sample, classify, decide, alert loop.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/alert"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Options tunes the loop.
type Options struct {
	Interval  time.Duration // sleep between cycles; 0 runs back to back
	Target    string
	Reference string
	Bystander string

	// TestAlertEveryN sends a synthetic alert every N cycles, bypassing the
	// cooldown. 0 disables it.
	TestAlertEveryN int

	SaveCaptures   bool // raw frame every cycle
	SaveDetections bool // annotated frame every successful detection
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock used for alert decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithMetrics records counters into mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// WithEvidence saves captures and detection images through s.
func WithEvidence(s EvidenceSaver) Option {
	return func(m *Monitor) { m.evidence = s }
}

// WithObserver adds an observer notified after every cycle.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observers = append(m.observers, o) }
}

// Monitor owns the loop. RunCycle and Run must not be called concurrently.
type Monitor struct {
	source   FrameSource
	detector Detector
	sink     AlertSink
	engine   *alert.Engine
	opts     Options

	metrics   *metrics.Metrics
	evidence  EvidenceSaver
	observers []Observer
	now       func() time.Time

	cycle uint64
}

// New creates a Monitor.
func New(source FrameSource, detector Detector, sink AlertSink, engine *alert.Engine, opts Options, options ...Option) *Monitor {
	m := &Monitor{
		source:   source,
		detector: detector,
		sink:     sink,
		engine:   engine,
		opts:     opts,
		metrics:  metrics.New(),
		now:      time.Now,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Metrics returns the metrics the monitor records into.
func (m *Monitor) Metrics() *metrics.Metrics {
	return m.metrics
}

// Run loops until ctx is cancelled. A cycle in progress finishes first; no
// new cycle starts after cancellation. Cycles run on a context that keeps
// ctx's values but not its cancellation, so an alert the engine has
// recorded is still delivered; sinks and backends bound themselves with
// their own timeouts.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Info("Monitor", "Starting: watching for %s on %s, interval=%s cooldown=%s",
		m.opts.Target, m.opts.Reference, m.opts.Interval, m.engine.Cooldown())

	for {
		if ctx.Err() != nil {
			break
		}
		m.RunCycle(context.WithoutCancel(ctx))
		if !m.sleep(ctx) {
			break
		}
	}

	logger.Info("Monitor", "Stopped after %d cycles", m.cycle)
	return nil
}

func (m *Monitor) sleep(ctx context.Context) bool {
	if m.opts.Interval <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(m.opts.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunCycle performs one acquire, detect, decide, alert pass. It never
// panics and never returns an error: failures end the cycle and are recorded
// in the report.
func (m *Monitor) RunCycle(ctx context.Context) (report CycleReport) {
	m.cycle++
	started := time.Now()
	report = CycleReport{Cycle: m.cycle, Time: m.now(), Stage: StageAcquire}

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("panic during %s: %v", report.Stage, r)
			m.metrics.CyclePanics.Add(1)
			logger.Error("Monitor", "Cycle %d: %v", report.Cycle, report.Err)
		}
		report.Duration = time.Since(started)
		m.metrics.Cycles.Add(1)
		m.metrics.UpdateCycleLatency(report.Duration)
		m.notify(report)
	}()

	if m.opts.TestAlertEveryN > 0 && report.Cycle%uint64(m.opts.TestAlertEveryN) == 0 {
		m.emitTestAlert(ctx, &report)
	}

	frame, err := m.source.Acquire(ctx)
	if err == nil && frame == nil {
		err = errors.New("source returned no frame")
	}
	if err != nil {
		report.Err = asAcquisitionError(err)
		m.metrics.AcquisitionErrors.Add(1)
		logger.Warn("Monitor", "Cycle %d: %v", report.Cycle, report.Err)
		return report
	}
	report.Frame = frame
	imageInfo := frame.SourceTag
	if imageInfo == "" {
		imageInfo = "live_camera"
	}

	if m.opts.SaveCaptures {
		m.saveEvidence(frame, nil)
	}

	report.Stage = StageDetect
	result, err := m.detector.Detect(ctx, frame)
	if err == nil && result == nil {
		err = errors.New("detector returned no result")
	}
	if err != nil {
		report.Err = asDetectionError(err)
		m.metrics.DetectionErrors.Add(1)
		logger.Warn("Monitor", "Cycle %d: image=%s | %v", report.Cycle, imageInfo, report.Err)
		return report
	}
	report.Result = result
	m.metrics.SetOverlapRatio(result.OverlapRatio)

	logger.Info("Monitor", "image=%s | %s_on_%s=%v | overlap=%.3f | confidences: %s=%.3f, %s=%.3f, %s=%.3f",
		imageInfo, m.opts.Target, m.opts.Reference, result.ConditionMet, result.OverlapRatio,
		m.opts.Target, result.Confidence(m.opts.Target),
		m.opts.Bystander, result.Confidence(m.opts.Bystander),
		m.opts.Reference, result.Confidence(m.opts.Reference))

	if result.BystanderOnReference {
		m.metrics.BystanderSeen.Add(1)
		logger.Info("Monitor", "image=%s | %s detected on %s (no alert triggered). %s confidence: %.3f",
			imageInfo, m.opts.Bystander, m.opts.Reference, m.opts.Bystander, result.Confidence(m.opts.Bystander))
	}

	if m.opts.SaveDetections {
		report.Evidence = m.saveEvidence(frame, result)
	}

	report.Stage = StageDecide
	if result.ConditionMet {
		m.metrics.ConditionMet.Add(1)
	}
	report.Decision = m.engine.Decide(result, report.Time)

	switch report.Decision.Action {
	case alert.Alert:
		logger.Info("Monitor", "image=%s | %s detected on %s! Triggering alert. %s confidence: %.3f",
			imageInfo, m.opts.Target, m.opts.Reference, m.opts.Target, result.Confidence(m.opts.Target))
		report.Stage = StageEmit
		m.sink.Emit(ctx, result)
		m.metrics.RecordAlert(report.Time)
	case alert.Suppressed:
		m.metrics.AlertsSuppressed.Add(1)
		logger.Info("Monitor", "image=%s | %s on %s, but alert is on cooldown (%ds remaining). %s confidence: %.3f",
			imageInfo, m.opts.Target, m.opts.Reference, int(report.Decision.Remaining.Seconds()),
			m.opts.Target, result.Confidence(m.opts.Target))
	}

	report.Stage = StageDone
	return report
}

func (m *Monitor) emitTestAlert(ctx context.Context, report *CycleReport) {
	synthetic := &types.DetectionResult{
		ConditionMet: true,
		Confidences:  map[string]float64{},
		Boxes:        map[string][]types.Box{},
		SourceTag:    types.TestSourceTag,
		DetectedAt:   report.Time,
	}
	logger.Info("Monitor", "Test mode: sending synthetic alert (cycle %d)", report.Cycle)
	m.sink.Emit(ctx, synthetic)
	m.metrics.TestAlerts.Add(1)
	report.TestAlert = true
}

func (m *Monitor) saveEvidence(frame *types.Frame, result *types.DetectionResult) string {
	if m.evidence == nil {
		return ""
	}
	path, err := m.evidence.Save(frame, result)
	if err != nil {
		m.metrics.EvidenceErrors.Add(1)
		logger.Warn("Monitor", "Failed to save evidence: %v", err)
		return ""
	}
	if path != "" {
		m.metrics.EvidenceSaved.Add(1)
	}
	return path
}

func (m *Monitor) notify(report CycleReport) {
	for _, o := range m.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Monitor", "Observer panic: %v", r)
				}
			}()
			o.Observe(report)
		}()
	}
}

func asAcquisitionError(err error) error {
	var acqErr *types.AcquisitionError
	if errors.As(err, &acqErr) {
		return err
	}
	return &types.AcquisitionError{Err: err}
}

func asDetectionError(err error) error {
	var detErr *types.DetectionError
	if errors.As(err, &detErr) {
		return err
	}
	return &types.DetectionError{Err: err}
}
