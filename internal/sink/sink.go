// Package sink delivers alerts to the outside world.
//
// Each Sink handles one channel (speaker, MQTT, Redis, browsers). Multi fans
// an alert out to all of them and never lets one failing channel block or
// break the others.
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Sink delivers one alert. Failures are reported, never retried.
type Sink interface {
	Name() string
	Send(ctx context.Context, result *types.DetectionResult) error
}

// Multi sends each alert to every sink concurrently and waits for all of
// them. It implements the monitor's AlertSink port.
type Multi struct {
	sinks   []Sink
	timeout time.Duration
	onError func(name string, err error)
}

// NewMulti creates a fan-out over sinks. timeout bounds each delivery; zero
// means no bound beyond the caller's context.
func NewMulti(timeout time.Duration, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, timeout: timeout}
}

// OnError registers a callback invoked for every failed delivery.
func (m *Multi) OnError(fn func(name string, err error)) {
	m.onError = fn
}

// Add appends a sink. Not safe to call concurrently with Emit.
func (m *Multi) Add(s Sink) {
	m.sinks = append(m.sinks, s)
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Emit delivers result to all sinks. It returns once every sink finished.
func (m *Multi) Emit(ctx context.Context, result *types.DetectionResult) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	for _, s := range m.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := safeSend(ctx, s, result); err != nil {
				logger.Warn("Sink", "%s delivery failed: %v", s.Name(), err)
				if m.onError != nil {
					m.onError(s.Name(), err)
				}
			}
		}(s)
	}
	wg.Wait()
}

func safeSend(ctx context.Context, s Sink, result *types.DetectionResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Send(ctx, result)
}

// Log writes alerts to the application log.
type Log struct {
	Target    string
	Reference string
}

// Name implements Sink.
func (l Log) Name() string { return "log" }

// Send implements Sink.
func (l Log) Send(_ context.Context, result *types.DetectionResult) error {
	if result.SourceTag == types.TestSourceTag {
		logger.Warn("Alert", "TEST ALERT: synthetic alert fired")
		return nil
	}
	logger.Warn("Alert", "ALERT: %s on %s (overlap %.2f, %s=%.2f, %s=%.2f) [%s]",
		l.Target, l.Reference, result.OverlapRatio,
		l.Target, result.Confidence(l.Target),
		l.Reference, result.Confidence(l.Reference),
		result.SourceTag)
	return nil
}
