// Package detector turns frames into detection results.
//
// A Backend finds labeled boxes in an image. The Classifier applies the
// confidence thresholds and the containment rule to those boxes, and Detector
// glues the two together behind the monitor's Detector port.
package detector

import (
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/geometry"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// BystanderPolicy controls how a bystander on the reference affects the verdict.
type BystanderPolicy string

const (
	// BystanderLog flags the result but leaves the verdict alone.
	BystanderLog BystanderPolicy = "log"
	// BystanderAlert treats any bystander overlap as the condition being met.
	BystanderAlert BystanderPolicy = "alert"
	// BystanderSuppress vetoes the condition while a bystander is on the reference.
	BystanderSuppress BystanderPolicy = "suppress"
)

// Classifier reduces raw backend objects to a DetectionResult.
type Classifier struct {
	Target    string
	Reference string
	Bystander string // empty disables bystander tracking

	MinConfidence          float64
	BystanderMinConfidence float64
	MinOverlapRatio        float64
	Policy                 BystanderPolicy
}

// DefaultClassifier returns the dog / couch / person setup.
func DefaultClassifier() Classifier {
	return Classifier{
		Target:                 "dog",
		Reference:              "couch",
		Bystander:              "person",
		MinConfidence:          0.20,
		BystanderMinConfidence: 0.25,
		MinOverlapRatio:        0.3,
		Policy:                 BystanderLog,
	}
}

// ClassifierFor builds a Classifier from the model and detection settings.
func ClassifierFor(model config.ModelConfig, det config.DetectionConfig) Classifier {
	return Classifier{
		Target:                 det.TargetLabel,
		Reference:              det.ReferenceLabel,
		Bystander:              det.BystanderLabel,
		MinConfidence:          model.ConfidenceThreshold,
		BystanderMinConfidence: model.PersonConfidenceThreshold,
		MinOverlapRatio:        det.MinOverlapThreshold,
		Policy:                 BystanderPolicy(det.BystanderPolicy),
	}
}

// Classify builds the result for one frame. Objects with other labels or
// below their label's threshold are ignored. The tracked labels always have
// a confidence entry, 0 when nothing was seen.
func (c Classifier) Classify(objects []types.Object, sourceTag string, now time.Time) *types.DetectionResult {
	result := &types.DetectionResult{
		Confidences: map[string]float64{c.Target: 0, c.Reference: 0},
		Boxes:       make(map[string][]types.Box),
		SourceTag:   sourceTag,
		DetectedAt:  now,
	}
	if c.Bystander != "" {
		result.Confidences[c.Bystander] = 0
	}

	for _, obj := range objects {
		if !c.tracked(obj.Label) {
			continue
		}
		threshold := c.MinConfidence
		if obj.Label == c.Bystander {
			threshold = c.BystanderMinConfidence
		}
		if obj.Confidence < threshold {
			continue
		}
		if obj.Confidence > result.Confidences[obj.Label] {
			result.Confidences[obj.Label] = obj.Confidence
		}
		result.Boxes[obj.Label] = append(result.Boxes[obj.Label], obj.Box)
	}

	targets := result.Boxes[c.Target]
	refs := result.Boxes[c.Reference]
	result.OverlapRatio = geometry.MaxOverlapRatio(targets, refs)
	result.ConditionMet = geometry.ContainmentDecision(targets, refs, c.MinOverlapRatio)

	if c.Bystander != "" {
		result.BystanderOnReference = geometry.AnyOverlap(result.Boxes[c.Bystander], refs)
		switch c.Policy {
		case BystanderAlert:
			result.ConditionMet = result.ConditionMet || result.BystanderOnReference
		case BystanderSuppress:
			if result.BystanderOnReference {
				result.ConditionMet = false
			}
		}
	}

	return result
}

func (c Classifier) tracked(label string) bool {
	return label == c.Target || label == c.Reference || (c.Bystander != "" && label == c.Bystander)
}
