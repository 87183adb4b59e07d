package types

import "fmt"

// Box is an axis-aligned bounding box in pixel coordinates.
// By convention X1 <= X2 and Y1 <= Y2, but this is not enforced: detectors may
// hand us inverted or degenerate boxes and consumers must cope.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// BoxFromXYWH converts a top-left + size box into corner form.
func BoxFromXYWH(x, y, w, h float64) Box {
	return Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Width returns X2-X1, which is negative for an inverted box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns Y2-Y1, which is negative for an inverted box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate and inverted boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b Box) String() string {
	return fmt.Sprintf("[%.0f,%.0f,%.0f,%.0f]", b.X1, b.Y1, b.X2, b.Y2)
}

// Object is one labeled box produced by a detection backend.
type Object struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}
