// Package source provides frame sources for the monitor.
//
// Every source returns decoded stills and reports failures as
// *types.AcquisitionError so the monitor can skip the cycle.
package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Source captures one frame per call.
type Source interface {
	Name() string
	Acquire(ctx context.Context) (*types.Frame, error)
}

// Open creates the source named by kind. path is interpreted per kind: an
// image file, a directory, a snapshot URL, a shm name, or an optional
// "x,y,w,h" screen region.
func Open(kind, path string, timeout time.Duration) (Source, error) {
	switch kind {
	case "file":
		if path == "" {
			return nil, fmt.Errorf("file source needs a path")
		}
		return NewFile(path), nil
	case "dir":
		if path == "" {
			return nil, fmt.Errorf("dir source needs a directory")
		}
		return NewDir(path), nil
	case "snapshot":
		if path == "" {
			return nil, fmt.Errorf("snapshot source needs a URL")
		}
		return NewSnapshot(path, timeout), nil
	case "screen":
		src, err := NewScreenRegion(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "shm":
		src, err := NewSharedMemory(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown frame source %q", kind)
	}
}

// Resized fits frames from an inner source into width x height.
type Resized struct {
	Source
	width, height int
}

// NewResized wraps src. Frames that already fit are passed through.
func NewResized(src Source, width, height int) *Resized {
	return &Resized{Source: src, width: width, height: height}
}

// Acquire implements Source.
func (r *Resized) Acquire(ctx context.Context) (*types.Frame, error) {
	frame, err := r.Source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	w, h := frame.Size()
	if w <= r.width && h <= r.height {
		return frame, nil
	}
	frame.Image = imaging.Fit(frame.Image, r.width, r.height, imaging.Lanczos)
	return frame, nil
}

// Close releases the inner source when it holds resources, such as the
// shared-memory mapping.
func (r *Resized) Close() error {
	if c, ok := r.Source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

func isImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

func acquisitionError(source string, err error) error {
	return &types.AcquisitionError{Source: source, Err: err}
}
