package types

import (
	"sort"
	"time"
)

// DetectionResult is the verdict for a single sampling cycle.
//
// A result is built once by a detector and handed to the decision engine; it
// must not be mutated afterwards. Maps may be shared with observers that only
// read them.
type DetectionResult struct {
	// ConditionMet is the containment verdict the rest of the system acts on.
	ConditionMet bool `json:"condition_met"`
	// Confidences holds the highest confidence seen per label in this frame.
	Confidences map[string]float64 `json:"confidences"`
	// Boxes holds boxes per label in detection order.
	Boxes map[string][]Box `json:"boxes"`
	// OverlapRatio is the maximum target-on-reference ratio in [0,1].
	OverlapRatio float64 `json:"overlap_ratio"`
	// BystanderOnReference is set when a bystander box overlaps a reference box.
	BystanderOnReference bool `json:"bystander_on_reference"`
	// SourceTag identifies the frame that produced this result.
	SourceTag string `json:"source_tag,omitempty"`
	// DetectedAt is when the detector finished.
	DetectedAt time.Time `json:"detected_at"`
}

// Confidence returns the confidence for label, 0 when the label is absent.
func (r *DetectionResult) Confidence(label string) float64 {
	if r == nil || r.Confidences == nil {
		return 0
	}
	return r.Confidences[label]
}

// BoxesFor returns the boxes recorded for label, nil when absent.
func (r *DetectionResult) BoxesFor(label string) []Box {
	if r == nil || r.Boxes == nil {
		return nil
	}
	return r.Boxes[label]
}

// Labels returns the labels that have at least one box, sorted.
func (r *DetectionResult) Labels() []string {
	if r == nil {
		return nil
	}
	labels := make([]string, 0, len(r.Boxes))
	for label, boxes := range r.Boxes {
		if len(boxes) > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}
