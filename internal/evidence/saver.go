package evidence

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Saver writes raw captures to captureDir and annotated detection images to
// detectionDir. An empty directory disables that kind of image.
type Saver struct {
	mu           sync.RWMutex
	captureDir   string
	detectionDir string
	reference    string
	quality      int
	now          func() time.Time

	saved        uint64
	bytesWritten uint64
	lastFile     string
	lastSavedAt  time.Time
	lastImage    []byte
}

// NewSaver creates the output directories and returns a Saver.
func NewSaver(captureDir, detectionDir, reference string) (*Saver, error) {
	for _, dir := range []string{captureDir, detectionDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if detectionDir != "" {
		logger.Info("Evidence", "Detection images will be saved to %s", detectionDir)
	}
	return &Saver{
		captureDir:   captureDir,
		detectionDir: detectionDir,
		reference:    reference,
		quality:      90,
		now:          time.Now,
	}, nil
}

// Save writes frame. With a nil result the raw frame goes to the capture
// directory as current_<ts>.jpg; otherwise an annotated copy goes to the
// detection directory as detection_<ts>.jpg. It returns the written path,
// or "" when that kind of image is disabled.
func (s *Saver) Save(frame *types.Frame, result *types.DetectionResult) (string, error) {
	if frame == nil || frame.Image == nil {
		return "", fmt.Errorf("no image to save")
	}

	dir, prefix := s.captureDir, "current"
	img := frame.Image
	if result != nil {
		dir, prefix = s.detectionDir, "detection"
		img = Annotate(frame.Image, result, s.reference)
	}
	if dir == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return "", fmt.Errorf("failed to encode %s image: %w", prefix, err)
	}

	now := s.now()
	path := filepath.Join(dir, Filename(prefix, now))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.mu.Lock()
	s.saved++
	s.bytesWritten += uint64(buf.Len())
	s.lastFile = path
	s.lastSavedAt = now
	if result != nil {
		s.lastImage = buf.Bytes()
	}
	s.mu.Unlock()

	logger.Debug("Evidence", "Saved %s image: %s", prefix, path)
	return path, nil
}

// Filename builds <prefix>_YYYYmmdd_HHMMSS_micro.jpg.
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%06d.jpg", prefix, t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// LatestDetection returns the JPEG bytes of the last annotated image.
func (s *Saver) LatestDetection() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lastImage) == 0 {
		return nil, false
	}
	return s.lastImage, true
}

// Status returns the current saver status.
func (s *Saver) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		CaptureDir:   s.captureDir,
		DetectionDir: s.detectionDir,
		Saved:        s.saved,
		BytesWritten: s.bytesWritten,
		LastFile:     s.lastFile,
		LastSavedAt:  s.lastSavedAt,
	}
}

// Status holds saver counters for the status API.
type Status struct {
	CaptureDir   string    `json:"capture_dir,omitempty"`
	DetectionDir string    `json:"detection_dir,omitempty"`
	Saved        uint64    `json:"saved"`
	BytesWritten uint64    `json:"bytes_written"`
	LastFile     string    `json:"last_file,omitempty"`
	LastSavedAt  time.Time `json:"last_saved_at"`
}
