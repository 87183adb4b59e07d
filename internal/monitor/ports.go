package monitor

import (
	"context"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/alert"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// FrameSource produces one frame per call.
type FrameSource interface {
	Acquire(ctx context.Context) (*types.Frame, error)
}

// Detector classifies a frame.
type Detector interface {
	Detect(ctx context.Context, frame *types.Frame) (*types.DetectionResult, error)
}

// AlertSink receives alerts. Delivery is best-effort; sinks handle their own
// failures.
type AlertSink interface {
	Emit(ctx context.Context, result *types.DetectionResult)
}

// EvidenceSaver persists frames. A nil result asks for the raw capture.
type EvidenceSaver interface {
	Save(frame *types.Frame, result *types.DetectionResult) (string, error)
}

// Observer is notified after every cycle.
type Observer interface {
	Observe(report CycleReport)
}

// Stage names the step a cycle reached.
type Stage string

const (
	StageAcquire Stage = "acquire"
	StageDetect  Stage = "detect"
	StageDecide  Stage = "decide"
	StageEmit    Stage = "emit"
	StageDone    Stage = "done"
)

// CycleReport describes one sampling cycle.
type CycleReport struct {
	Cycle     uint64                 `json:"cycle"`
	Time      time.Time              `json:"time"`
	Duration  time.Duration          `json:"duration"`
	Stage     Stage                  `json:"stage"`
	Frame     *types.Frame           `json:"-"`
	Result    *types.DetectionResult `json:"result,omitempty"`
	Decision  alert.Decision         `json:"decision"`
	TestAlert bool                   `json:"test_alert,omitempty"`
	Evidence  string                 `json:"evidence,omitempty"`
	Err       error                  `json:"-"`
}

// Failed reports whether the cycle was abandoned.
func (r CycleReport) Failed() bool {
	return r.Err != nil
}
