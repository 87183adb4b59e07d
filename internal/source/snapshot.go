package source

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// Snapshot fetches a still from an HTTP camera endpoint, e.g. the pet
// camera's /api/snapshot or an IP camera's snapshot.jpg.
type Snapshot struct {
	url    string
	client *resty.Client
	now    func() time.Time
}

// NewSnapshot creates a Snapshot source.
func NewSnapshot(url string, timeout time.Duration) *Snapshot {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Snapshot{
		url:    url,
		client: resty.New().SetTimeout(timeout).SetHeader("Accept", "image/*"),
		now:    time.Now,
	}
}

// Name implements Source.
func (s *Snapshot) Name() string { return "snapshot" }

// Acquire implements Source.
func (s *Snapshot) Acquire(ctx context.Context) (*types.Frame, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, acquisitionError(s.url, err)
	}
	if resp.IsError() {
		return nil, acquisitionError(s.url, fmt.Errorf("HTTP %d", resp.StatusCode()))
	}

	img, err := imaging.Decode(bytes.NewReader(resp.Body()), imaging.AutoOrientation(true))
	if err != nil {
		return nil, acquisitionError(s.url, fmt.Errorf("failed to decode snapshot: %w", err))
	}
	return &types.Frame{Image: img, SourceTag: s.url, CapturedAt: s.now()}, nil
}
