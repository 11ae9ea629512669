// Package media provides the frame transform applied between the service's
// raw frames and the broadcast channel. The transform runs on the session's
// pump goroutine, never inside the service's frame callback.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/avisser/pulseframe-api/internal/gen"
)

// ErrBadFrame is returned when a frame's pixel data does not match its
// declared dimensions.
var ErrBadFrame = errors.New("media: frame data does not match dimensions")

// Encoder turns a raw frame into the base64 payload carried by frame events.
type Encoder interface {
	// Encode renders the frame as a base64 JPEG. turbo trades quality for
	// size: quarter-scale nearest-neighbour downscale and a lower JPEG
	// quality setting.
	Encode(f gen.Frame, turbo bool) (string, error)
}

// JPEGEncoder is the default Encoder.
type JPEGEncoder struct {
	// Quality is the JPEG quality used in normal mode.
	Quality int
	// TurboQuality is the JPEG quality used in turbo mode.
	TurboQuality int
	// TurboDivisor is the per-axis downscale factor in turbo mode.
	TurboDivisor int
}

// NewJPEGEncoder creates an encoder with quality 80 normally and
// quarter-scale quality 50 in turbo mode.
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{
		Quality:      80,
		TurboQuality: 50,
		TurboDivisor: 4,
	}
}

// Encode implements Encoder.
func (e *JPEGEncoder) Encode(f gen.Frame, turbo bool) (string, error) {
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) != f.Width*f.Height*3 {
		return "", fmt.Errorf("%w: %dx%d with %d bytes", ErrBadFrame, f.Width, f.Height, len(f.Data))
	}

	img := rgbToImage(f)
	quality := e.Quality
	if turbo {
		img = downscale(img, e.TurboDivisor)
		quality = e.TurboQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("media: jpeg encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// rgbToImage copies packed RGB pixels into an RGBA image.
func rgbToImage(f gen.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		srcRow := f.Data[y*f.Width*3:]
		dstRow := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			dstRow[x*4+0] = srcRow[x*3+0]
			dstRow[x*4+1] = srcRow[x*3+1]
			dstRow[x*4+2] = srcRow[x*3+2]
			dstRow[x*4+3] = 0xff
		}
	}
	return img
}

// downscale shrinks the image by the divisor on each axis using
// nearest-neighbour sampling. Speed matters more than fidelity here.
func downscale(src *image.RGBA, divisor int) *image.RGBA {
	if divisor <= 1 {
		return src
	}
	bounds := src.Bounds()
	w := bounds.Dx() / divisor
	h := bounds.Dy() / divisor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcY := y * divisor
		for x := 0; x < w; x++ {
			srcOff := srcY*src.Stride + x*divisor*4
			dstOff := y*dst.Stride + x*4
			copy(dst.Pix[dstOff:dstOff+4], src.Pix[srcOff:srcOff+4])
		}
	}
	return dst
}
