package source

import (
	"fmt"
	"image"
)

// DefaultShmName is the MJPEG/NV12 ring written by the pet-camera capture daemon.
const DefaultShmName = "/pet_camera_mjpeg_frame"

// nv12ToYCbCr converts an NV12 buffer (Y plane, then interleaved CbCr at
// half resolution) to a 4:2:0 image.
func nv12ToYCbCr(data []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid NV12 size %dx%d", width, height)
	}
	ySize := width * height
	cw, ch := (width+1)/2, (height+1)/2
	if len(data) < ySize+2*cw*ch {
		return nil, fmt.Errorf("NV12 buffer too short: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for y := 0; y < height; y++ {
		copy(img.Y[y*img.YStride:y*img.YStride+width], data[y*width:(y+1)*width])
	}
	uv := data[ySize:]
	for y := 0; y < ch; y++ {
		row := uv[y*cw*2 : (y+1)*cw*2]
		for x := 0; x < cw; x++ {
			img.Cb[y*img.CStride+x] = row[2*x]
			img.Cr[y*img.CStride+x] = row[2*x+1]
		}
	}
	return img, nil
}
