//go:build !(cgo && linux)

package source

import (
	"context"
	"errors"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

// SharedMemory is unavailable without cgo on Linux.
type SharedMemory struct {
	name string
}

// NewSharedMemory always fails on this platform.
func NewSharedMemory(name string) (*SharedMemory, error) {
	return nil, errors.New("shared memory source requires cgo on linux")
}

// Name implements Source.
func (s *SharedMemory) Name() string { return "shm" }

// Acquire implements Source.
func (s *SharedMemory) Acquire(context.Context) (*types.Frame, error) {
	return nil, acquisitionError(s.name, errors.New("shared memory source not supported"))
}

// Close is a no-op.
func (s *SharedMemory) Close() error { return nil }
