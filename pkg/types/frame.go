package types

import (
	"image"
	"time"
)

// Frame is one captured still from a frame source.
type Frame struct {
	Image      image.Image // Decoded pixels, never modified by detectors
	SourceTag  string      // File path, URL or sample id identifying the capture
	CapturedAt time.Time   // Capture timestamp
}

// Size returns the frame dimensions, or 0,0 when there is no image.
func (f *Frame) Size() (int, int) {
	if f == nil || f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}
