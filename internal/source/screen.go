package source

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/vova616/screenshot"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Screen grabs the desktop, for example a camera viewer window.
type Screen struct {
	region *image.Rectangle
	now    func() time.Time
}

// NewScreenRegion creates a Screen source. region is empty for the whole
// screen or "x,y,w,h" for a region.
func NewScreenRegion(region string) (*Screen, error) {
	s := &Screen{now: time.Now}
	if strings.TrimSpace(region) == "" {
		return s, nil
	}
	rect, err := parseRegion(region)
	if err != nil {
		return nil, err
	}
	s.region = &rect
	return s, nil
}

// Name implements Source.
func (s *Screen) Name() string { return "screen" }

// Acquire implements Source.
func (s *Screen) Acquire(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, acquisitionError("screen", err)
	}

	var (
		img *image.RGBA
		err error
	)
	if s.region != nil {
		img, err = screenshot.CaptureRect(*s.region)
	} else {
		img, err = screenshot.CaptureScreen()
	}
	if err != nil {
		return nil, acquisitionError("screen", err)
	}
	return &types.Frame{Image: img, SourceTag: "screen", CapturedAt: s.now()}, nil
}

func parseRegion(region string) (image.Rectangle, error) {
	parts := strings.Split(region, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("screen region %q: want x,y,w,h", region)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("screen region %q: %w", region, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("screen region %q: size must be positive", region)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}
