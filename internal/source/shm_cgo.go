//go:build cgo && linux

package source

/*
#cgo LDFLAGS: -lrt -lpthread

#include <stdlib.h>
#include <stdint.h>
#include <time.h>
#include <sys/mman.h>
#include <fcntl.h>
#include <unistd.h>
#include <string.h>

#define RING_BUFFER_SIZE 30
#define MAX_FRAME_SIZE (1920 * 1080 * 3 / 2)

typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int camera_id;
    int width;
    int height;
    int format;
    size_t data_size;
    uint8_t data[MAX_FRAME_SIZE];
} Frame;

typedef struct {
    volatile uint32_t write_index;
    volatile uint32_t frame_interval_ms;
    Frame frames[RING_BUFFER_SIZE];
} SharedFrameBuffer;

static SharedFrameBuffer* open_frame_shm(const char* name) {
    int fd = shm_open(name, O_RDONLY, 0666);
    if (fd == -1) {
        return NULL;
    }

    SharedFrameBuffer* shm = (SharedFrameBuffer*)mmap(
        NULL,
        sizeof(SharedFrameBuffer),
        PROT_READ,
        MAP_SHARED,
        fd,
        0
    );

    close(fd);

    if (shm == MAP_FAILED) {
        return NULL;
    }

    return shm;
}

static void close_frame_shm(SharedFrameBuffer* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(SharedFrameBuffer));
    }
}

// Copies the newest frame whose format is not H.264 into out.
static int read_latest_still(SharedFrameBuffer* shm, Frame* out) {
    if (!shm || !out) {
        return -1;
    }

    uint32_t write_idx = __atomic_load_n(&shm->write_index, __ATOMIC_ACQUIRE);
    if (write_idx == 0) {
        return -1;
    }

    for (uint32_t back = 1; back <= RING_BUFFER_SIZE && back <= write_idx; back++) {
        uint32_t idx = (write_idx - back) % RING_BUFFER_SIZE;
        if (shm->frames[idx].format != 3) {
            memcpy(out, &shm->frames[idx], sizeof(Frame));
            return 0;
        }
    }
    return -1;
}
*/
import "C"
import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"
	"unsafe"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/couch-monitor/pkg/types"
)

const (
	// Frame formats written by the pet-camera capture daemon.
	shmFormatJPEG = 0
	shmFormatNV12 = 1

	maxShmFrameSize = 1920 * 1080 * 3 / 2
)

// SharedMemory reads the newest still from the pet-camera capture ring buffer.
type SharedMemory struct {
	name string

	mu        sync.Mutex
	shm       *C.SharedFrameBuffer
	lastFrame uint64
}

// NewSharedMemory opens the ring buffer lazily so the monitor can start
// before the capture daemon.
func NewSharedMemory(name string) (*SharedMemory, error) {
	if name == "" {
		name = DefaultShmName
	}
	return &SharedMemory{name: name}, nil
}

// Name implements Source.
func (s *SharedMemory) Name() string { return "shm" }

func (s *SharedMemory) open() error {
	if s.shm != nil {
		return nil
	}
	cName := C.CString(s.name)
	defer C.free(unsafe.Pointer(cName))

	shm := C.open_frame_shm(cName)
	if shm == nil {
		return fmt.Errorf("failed to open shared memory %s", s.name)
	}
	s.shm = shm
	logger.Info("Source", "Opened shared memory: %s", s.name)
	return nil
}

// Acquire implements Source.
func (s *SharedMemory) Acquire(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, acquisitionError(s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(); err != nil {
		return nil, acquisitionError(s.name, err)
	}

	var cFrame C.Frame
	if C.read_latest_still(s.shm, &cFrame) != 0 {
		return nil, acquisitionError(s.name, fmt.Errorf("no frame written yet"))
	}

	frameNum := uint64(cFrame.frame_number)
	if frameNum == s.lastFrame {
		logger.Debug("Source", "Frame #%d unchanged since last cycle", frameNum)
	}
	s.lastFrame = frameNum

	dataSize := int(cFrame.data_size)
	if dataSize <= 0 || dataSize > maxShmFrameSize {
		return nil, acquisitionError(s.name, fmt.Errorf("frame #%d has invalid size %d", frameNum, dataSize))
	}
	data := C.GoBytes(unsafe.Pointer(&cFrame.data[0]), C.int(dataSize))

	img, err := decodeShmFrame(int(cFrame.format), int(cFrame.width), int(cFrame.height), data)
	if err != nil {
		return nil, acquisitionError(s.name, fmt.Errorf("frame #%d: %w", frameNum, err))
	}

	return &types.Frame{
		Image:      img,
		SourceTag:  fmt.Sprintf("%s#%d", s.name, frameNum),
		CapturedAt: time.Unix(int64(cFrame.timestamp.tv_sec), int64(cFrame.timestamp.tv_nsec)),
	}, nil
}

// Close unmaps the ring buffer.
func (s *SharedMemory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shm != nil {
		C.close_frame_shm(s.shm)
		s.shm = nil
	}
	return nil
}

func decodeShmFrame(format, width, height int, data []byte) (image.Image, error) {
	switch format {
	case shmFormatJPEG:
		return imaging.Decode(bytes.NewReader(data))
	case shmFormatNV12:
		return nv12ToYCbCr(data, width, height)
	default:
		return nil, fmt.Errorf("unsupported frame format %d", format)
	}
}
