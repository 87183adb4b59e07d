package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// remoteDetection is one entry of the inference server response.
type remoteDetection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"bbox"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// Remote posts frames as JPEG to an inference server that answers with
// {"detections":[{"class_name","confidence","bbox":{"x","y","w","h"}}]}.
type Remote struct {
	endpoint    string
	client      *resty.Client
	jpegQuality int
}

// NewRemote creates a Remote backend for endpoint.
func NewRemote(endpoint string, timeout time.Duration) *Remote {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Remote{
		endpoint:    endpoint,
		client:      client,
		jpegQuality: 85,
	}
}

// Name implements Backend.
func (r *Remote) Name() string { return "remote" }

// Objects implements Backend.
func (r *Remote) Objects(ctx context.Context, img image.Image) ([]types.Object, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	var body remoteResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetBody(buf.Bytes()).
		SetResult(&body).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call inference server: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("inference server", resp.StatusCode(), resp.String())
	}

	objects := make([]types.Object, 0, len(body.Detections))
	for _, d := range body.Detections {
		objects = append(objects, types.Object{
			Label:      d.ClassName,
			Confidence: d.Confidence,
			Box:        types.BoxFromXYWH(d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H),
		})
	}
	return objects, nil
}
