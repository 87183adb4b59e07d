// Package geometry computes spatial relationships between bounding boxes.
package geometry

import "github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"

// Overlaps reports whether a and b strictly intersect on both axes.
// Boxes that only share an edge do not overlap.
func Overlaps(a, b types.Box) bool {
	if a.X2 <= b.X1 || b.X2 <= a.X1 {
		return false
	}
	if a.Y2 <= b.Y1 || b.Y2 <= a.Y1 {
		return false
	}
	return true
}

// OverlapRatio returns the fraction of subject's area covered by reference.
//
// The ratio is asymmetric: it measures how much of the subject (the moving
// target) sits on the reference (the static surface), so swapping the
// arguments generally changes the result. Edge-touching boxes, degenerate
// subjects and inverted coordinates all yield 0.
func OverlapRatio(subject, reference types.Box) float64 {
	ix1 := max(subject.X1, reference.X1)
	iy1 := max(subject.Y1, reference.Y1)
	ix2 := min(subject.X2, reference.X2)
	iy2 := min(subject.Y2, reference.Y2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}

	subjectArea := (subject.X2 - subject.X1) * (subject.Y2 - subject.Y1)
	if subjectArea <= 0 {
		return 0
	}

	return (ix2 - ix1) * (iy2 - iy1) / subjectArea
}

// MaxOverlapRatio returns the largest OverlapRatio over every
// subject x reference pair, or 0 when either slice is empty.
func MaxOverlapRatio(subjects, references []types.Box) float64 {
	best := 0.0
	for _, s := range subjects {
		for _, r := range references {
			ratio := OverlapRatio(s, r)
			if ratio > best {
				best = ratio
			}
			if best == 1 {
				return best
			}
		}
	}
	return best
}

// ContainmentDecision reports whether any subject covers at least minRatio
// of its area with a reference. The comparison is inclusive. With no subject
// or no reference there is nothing resting on anything, so the answer is
// false even for a zero threshold.
func ContainmentDecision(subjects, references []types.Box, minRatio float64) bool {
	if len(subjects) == 0 || len(references) == 0 {
		return false
	}
	return MaxOverlapRatio(subjects, references) >= minRatio
}

// AnyOverlap reports whether any subject strictly intersects any reference.
func AnyOverlap(subjects, references []types.Box) bool {
	for _, s := range subjects {
		for _, r := range references {
			if Overlaps(s, r) {
				return true
			}
		}
	}
	return false
}
