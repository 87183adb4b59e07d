package types

import (
	"time"

	"github.com/google/uuid"
)

// AlertEvent is the wire payload pushed to remote alert sinks.
type AlertEvent struct {
	ID           string             `json:"id"`
	Time         time.Time          `json:"time"`
	Target       string             `json:"target"`
	Reference    string             `json:"reference"`
	OverlapRatio float64            `json:"overlap_ratio"`
	Confidences  map[string]float64 `json:"confidences"`
	SourceTag    string             `json:"source_tag,omitempty"`
	Test         bool               `json:"test,omitempty"`
}

// NewAlertEvent builds an event for result. Synthetic test-mode results are
// flagged so receivers can tell them apart.
func NewAlertEvent(result *DetectionResult, target, reference string, now time.Time) AlertEvent {
	ev := AlertEvent{
		ID:        uuid.NewString(),
		Time:      now,
		Target:    target,
		Reference: reference,
	}
	if result == nil {
		return ev
	}
	ev.OverlapRatio = result.OverlapRatio
	ev.SourceTag = result.SourceTag
	ev.Test = result.SourceTag == TestSourceTag
	ev.Confidences = make(map[string]float64, len(result.Confidences))
	for k, v := range result.Confidences {
		ev.Confidences[k] = v
	}
	return ev
}

// TestSourceTag marks synthetic results injected in test mode.
const TestSourceTag = "test-mode"
