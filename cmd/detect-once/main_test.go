package main

import (
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/config"
)

func TestDetectContextZeroTimeoutHasNoDeadline(t *testing.T) {
	ctx, cancel := detectContext(0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	assert.NoError(t, ctx.Err())

	ctx, cancel = detectContext(time.Minute)
	defer cancel()
	_, ok = ctx.Deadline()
	assert.True(t, ok)
}

func TestDetectImageWithZeroTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	require.NoError(t, imaging.Save(imaging.New(640, 480, image.Black.C), path))

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[
			{"class_name":"dog","confidence":0.9,"bbox":{"x":100,"y":100,"w":100,"h":100}},
			{"class_name":"couch","confidence":0.8,"bbox":{"x":50,"y":50,"w":400,"h":300}}
		]}`))
	}))
	defer backend.Close()

	cfg := config.DefaultConfig()
	cfg.Model.Endpoint = backend.URL
	cfg.Model.Timeout = 0
	require.NoError(t, cfg.Validate())

	ctx, cancel := detectContext(cfg.Model.Timeout)
	defer cancel()

	out, err := detectImage(ctx, cfg, path, filepath.Join(dir, "annotated"))
	require.NoError(t, err)
	assert.Equal(t, "remote", out.Backend)
	assert.True(t, out.Result.ConditionMet)
	assert.Contains(t, out.Status, "ON COUCH")
	assert.NotEmpty(t, out.Annotated)
	assert.FileExists(t, out.Annotated)
}
