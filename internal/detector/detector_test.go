package detector

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

func obj(label string, conf, x1, y1, x2, y2 float64) types.Object {
	return types.Object{Label: label, Confidence: conf, Box: types.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

func TestClassifyDogOnCouch(t *testing.T) {
	c := DefaultClassifier()
	now := time.Unix(1000, 0)

	result := c.Classify([]types.Object{
		obj("couch", 0.8, 0, 0, 100, 100),
		obj("dog", 0.9, 50, 50, 150, 150), // quarter inside
		obj("dog", 0.6, 10, 10, 30, 30),   // fully inside
		obj("cat", 0.99, 0, 0, 10, 10),
	}, "frame-1", now)

	assert.True(t, result.ConditionMet)
	assert.Equal(t, 1.0, result.OverlapRatio)
	assert.Equal(t, 0.9, result.Confidence("dog"))
	assert.Equal(t, 0.8, result.Confidence("couch"))
	assert.Equal(t, 0.0, result.Confidence("person"))
	assert.Len(t, result.BoxesFor("dog"), 2)
	assert.Nil(t, result.BoxesFor("cat"))
	assert.Equal(t, "frame-1", result.SourceTag)
	assert.Equal(t, now, result.DetectedAt)
}

func TestClassifyTrackedLabelsDefaultToZero(t *testing.T) {
	result := DefaultClassifier().Classify(nil, "", time.Time{})
	assert.False(t, result.ConditionMet)
	assert.Equal(t, map[string]float64{"dog": 0, "couch": 0, "person": 0}, result.Confidences)
}

func TestClassifyDropsLowConfidence(t *testing.T) {
	c := DefaultClassifier()
	result := c.Classify([]types.Object{
		obj("couch", 0.8, 0, 0, 100, 100),
		obj("dog", 0.19, 10, 10, 30, 30),
		obj("person", 0.22, 10, 10, 30, 30), // below the person threshold
	}, "", time.Time{})

	assert.False(t, result.ConditionMet)
	assert.Equal(t, 0.0, result.Confidence("dog"))
	assert.False(t, result.BystanderOnReference)
}

func TestClassifyThresholdInclusive(t *testing.T) {
	c := DefaultClassifier()
	// 30% of the dog is on the couch.
	result := c.Classify([]types.Object{
		obj("couch", 0.8, 0, 0, 30, 100),
		obj("dog", 0.9, 0, 0, 100, 100),
	}, "", time.Time{})
	assert.InDelta(t, 0.3, result.OverlapRatio, 1e-9)
	assert.True(t, result.ConditionMet)

	c.MinOverlapRatio = 0.31
	result = c.Classify([]types.Object{
		obj("couch", 0.8, 0, 0, 30, 100),
		obj("dog", 0.9, 0, 0, 100, 100),
	}, "", time.Time{})
	assert.False(t, result.ConditionMet)
}

func TestClassifyBystanderPolicies(t *testing.T) {
	objects := []types.Object{
		obj("couch", 0.8, 0, 0, 100, 100),
		obj("person", 0.9, 50, 50, 150, 150),
	}
	withDog := append([]types.Object{obj("dog", 0.9, 10, 10, 30, 30)}, objects...)

	tests := []struct {
		name    string
		policy  BystanderPolicy
		objects []types.Object
		want    bool
	}{
		{"log person only", BystanderLog, objects, false},
		{"log with dog", BystanderLog, withDog, true},
		{"alert person only", BystanderAlert, objects, true},
		{"suppress with dog", BystanderSuppress, withDog, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultClassifier()
			c.Policy = tt.policy
			result := c.Classify(tt.objects, "", time.Time{})
			assert.True(t, result.BystanderOnReference)
			assert.Equal(t, tt.want, result.ConditionMet)
		})
	}
}

type fakeBackend struct {
	objects []types.Object
	err     error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Objects(context.Context, image.Image) ([]types.Object, error) {
	return f.objects, f.err
}

func testFrame() *types.Frame {
	return &types.Frame{Image: image.NewRGBA(image.Rect(0, 0, 200, 100)), SourceTag: "test.jpg"}
}

func TestDetectorWrapsBackendErrors(t *testing.T) {
	boom := errors.New("boom")
	d := New(&fakeBackend{err: boom}, DefaultClassifier())

	_, err := d.Detect(context.Background(), testFrame())
	var detErr *types.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.Equal(t, "fake", detErr.Backend)
	assert.ErrorIs(t, err, boom)
}

func TestDetectorRejectsEmptyFrame(t *testing.T) {
	d := New(&fakeBackend{}, DefaultClassifier())
	_, err := d.Detect(context.Background(), &types.Frame{})
	var detErr *types.DetectionError
	assert.ErrorAs(t, err, &detErr)
}

func TestDetectorClassifies(t *testing.T) {
	d := New(&fakeBackend{objects: []types.Object{
		obj("couch", 0.8, 0, 0, 100, 100),
		obj("dog", 0.9, 10, 10, 30, 30),
	}}, DefaultClassifier())
	d.now = func() time.Time { return time.Unix(42, 0) }

	result, err := d.Detect(context.Background(), testFrame())
	require.NoError(t, err)
	assert.True(t, result.ConditionMet)
	assert.Equal(t, "test.jpg", result.SourceTag)
	assert.Equal(t, time.Unix(42, 0), result.DetectedAt)
}

func TestRemoteObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class_name": "dog", "confidence": 0.91, "bbox": map[string]int{"x": 10, "y": 20, "w": 30, "h": 40}},
			},
		})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL+"/detect", 5*time.Second)
	objects, err := r.Objects(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 48)))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "dog", objects[0].Label)
	assert.Equal(t, 0.91, objects[0].Confidence)
	assert.Equal(t, types.Box{X1: 10, Y1: 20, X2: 40, Y2: 60}, objects[0].Box)
}

func TestRemoteHTTPError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, 5*time.Second)
	_, err := r.Objects(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.ErrorContains(t, err, "503")
	// Failures are left to the monitor's per-cycle handling.
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteDoesNotRetryTransportErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		if !assert.True(t, ok) {
			return
		}
		conn, _, err := hj.Hijack()
		if assert.NoError(t, err) {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, 5*time.Second)
	_, err := r.Objects(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseOllamaObjects(t *testing.T) {
	raw := "```json\n{\"objects\": [\n  {\"label\": \"Dog\", \"confidence\": 1.2, \"box\": {\"x\": 0.5, \"y\": 0.25, \"w\": 0.75, \"h\": 0.5}},\n]}\n```"

	objects, err := parseOllamaObjects(raw, 200, 100)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "dog", objects[0].Label)
	assert.Equal(t, 1.0, objects[0].Confidence)
	// x2 clamped from 1.25 to 1
	assert.Equal(t, types.Box{X1: 100, Y1: 25, X2: 200, Y2: 75}, objects[0].Box)
}

func TestParseOllamaObjectsProse(t *testing.T) {
	objects, err := parseOllamaObjects(`Sure! {"objects": []} Hope that helps.`, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, objects)

	_, err = parseOllamaObjects("I cannot see anything", 10, 10)
	assert.Error(t, err)
}

func TestOllamaObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llava",
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"objects":[{"label":"couch","confidence":0.7,"box":{"x":0,"y":0,"w":0.5,"h":1}}]}`,
			},
			"done": true,
		})
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL+"/api/chat", "llava", []string{"dog", "couch"}, 5*time.Second)
	require.NoError(t, err)
	objects, err := o.Objects(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 50)))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, types.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, objects[0].Box)
}

func TestNewOllamaRejectsBadURL(t *testing.T) {
	_, err := NewOllama("localhost", "llava", nil, 0)
	assert.Error(t, err)
}

func TestOpenBackends(t *testing.T) {
	d, err := Open("remote", "http://localhost:8000/detect", "", time.Second, DefaultClassifier())
	require.NoError(t, err)
	assert.Equal(t, "remote", d.Backend())

	d, err = Open("ollama", "http://localhost:11434", "llava", time.Second, DefaultClassifier())
	require.NoError(t, err)
	assert.Equal(t, "ollama", d.Backend())

	_, err = Open("ollama", "localhost", "llava", time.Second, DefaultClassifier())
	assert.Error(t, err)

	_, err = Open("tflite", "", "", time.Second, DefaultClassifier())
	assert.ErrorContains(t, err, "unknown detector backend")
}

func TestClassifierForDefaultsMatchDefaultClassifier(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, DefaultClassifier(), ClassifierFor(cfg.Model, cfg.Detection))
}
