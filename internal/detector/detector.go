package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Backend finds labeled boxes in an image. Box coordinates are in pixels of
// the image passed in.
type Backend interface {
	Name() string
	Objects(ctx context.Context, img image.Image) ([]types.Object, error)
}

// Detector runs a Backend and classifies its output.
type Detector struct {
	backend    Backend
	classifier Classifier
	now        func() time.Time
}

// New creates a Detector.
func New(backend Backend, classifier Classifier) *Detector {
	return &Detector{
		backend:    backend,
		classifier: classifier,
		now:        time.Now,
	}
}

// Open creates a Detector for the named backend. endpoint is the inference
// server URL for "remote" and the Ollama base URL for "ollama", where model
// names the vision model.
func Open(kind, endpoint, model string, timeout time.Duration, classifier Classifier) (*Detector, error) {
	switch kind {
	case "remote":
		return New(NewRemote(endpoint, timeout), classifier), nil
	case "ollama":
		labels := []string{classifier.Target, classifier.Reference}
		if classifier.Bystander != "" {
			labels = append(labels, classifier.Bystander)
		}
		backend, err := NewOllama(endpoint, model, labels, timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama backend: %w", err)
		}
		return New(backend, classifier), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", kind)
	}
}

// Backend returns the backend name.
func (d *Detector) Backend() string {
	return d.backend.Name()
}

// Classifier returns the classification settings in use.
func (d *Detector) Classifier() Classifier {
	return d.classifier
}

// Detect runs one detection. Every failure is returned as a
// *types.DetectionError.
func (d *Detector) Detect(ctx context.Context, frame *types.Frame) (*types.DetectionResult, error) {
	if frame == nil || frame.Image == nil {
		return nil, &types.DetectionError{Backend: d.backend.Name(), Err: errors.New("empty frame")}
	}

	objects, err := d.backend.Objects(ctx, frame.Image)
	if err != nil {
		var detErr *types.DetectionError
		if errors.As(err, &detErr) {
			return nil, err
		}
		return nil, &types.DetectionError{Backend: d.backend.Name(), Err: err}
	}

	result := d.classifier.Classify(objects, frame.SourceTag, d.now())
	logger.Debug("Detector", "%s: %d objects, %s=%.2f %s=%.2f overlap=%.2f met=%v",
		frame.SourceTag, len(objects),
		d.classifier.Target, result.Confidence(d.classifier.Target),
		d.classifier.Reference, result.Confidence(d.classifier.Reference),
		result.OverlapRatio, result.ConditionMet)
	return result, nil
}

// clampBox limits b to the image bounds w x h.
func clampBox(b types.Box, w, h float64) types.Box {
	return types.Box{
		X1: clamp(b.X1, 0, w),
		Y1: clamp(b.Y1, 0, h),
		X2: clamp(b.X2, 0, w),
		Y2: clamp(b.Y2, 0, h),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func statusError(backend string, code int, body string) error {
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%s returned HTTP %d: %s", backend, code, body)
}
