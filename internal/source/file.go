package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// File rereads a single image every cycle. Handy when another process keeps
// overwriting the same still.
type File struct {
	path string
	now  func() time.Time
}

// NewFile creates a File source.
func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

// Name implements Source.
func (f *File) Name() string { return "file" }

// Acquire implements Source.
func (f *File) Acquire(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, acquisitionError(f.path, err)
	}
	img, err := imaging.Open(f.path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, acquisitionError(f.path, err)
	}
	return &types.Frame{Image: img, SourceTag: f.path, CapturedAt: f.now()}, nil
}

// Dir walks the images of a directory in name order, wrapping around at the
// end. The listing is refreshed on every call.
type Dir struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	next int
}

// NewDir creates a Dir source.
func NewDir(dir string) *Dir {
	return &Dir{dir: dir, now: time.Now}
}

// Name implements Source.
func (d *Dir) Name() string { return "dir" }

// Acquire implements Source.
func (d *Dir) Acquire(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, acquisitionError(d.dir, err)
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, acquisitionError(d.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, acquisitionError(d.dir, fmt.Errorf("no images found"))
	}
	sort.Strings(names)

	d.mu.Lock()
	idx := d.next % len(names)
	d.next = idx + 1
	d.mu.Unlock()

	path := filepath.Join(d.dir, names[idx])
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, acquisitionError(path, err)
	}
	return &types.Frame{Image: img, SourceTag: path, CapturedAt: d.now()}, nil
}
