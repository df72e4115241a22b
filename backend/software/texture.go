package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
)

// Texture is a CPU-resident texture. Pixels are stored tightly packed in the
// texture's format.
type Texture struct {
	dev    *Device
	label  string
	width  int
	height int
	format gputypes.TextureFormat
	usage  gpucore.TextureUsage
	bpp    int

	mu  sync.RWMutex
	pix []byte
}

var _ gpucore.Texture = (*Texture)(nil)

func newTexture(dev *Device, desc gpucore.TextureDescriptor) (*Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	bpp := gpucore.BytesPerPixel(desc.Format)
	return &Texture{
		dev:    dev,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
		bpp:    bpp,
		pix:    make([]byte, desc.Width*desc.Height*bpp),
	}, nil
}

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the height in pixels.
func (t *Texture) Height() int { return t.height }

// Format returns the pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Usage returns the usage flags.
func (t *Texture) Usage() gpucore.TextureUsage { return t.usage }

// WritePixels replaces the texture contents.
func (t *Texture) WritePixels(pix []byte, bytesPerRow int) error {
	row := t.width * t.bpp
	if bytesPerRow == 0 {
		bytesPerRow = row
	}
	if bytesPerRow < row || len(pix) < bytesPerRow*(t.height-1)+row {
		return fmt.Errorf("%w: %d bytes with stride %d for %dx%d texture %q",
			gpucore.ErrPixelDataSize, len(pix), bytesPerRow, t.width, t.height, t.label)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for y := range t.height {
		copy(t.pix[y*row:(y+1)*row], pix[y*bytesPerRow:y*bytesPerRow+row])
	}
	return nil
}

// ReadPixels returns a copy of the texture contents.
func (t *Texture) ReadPixels() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]byte, len(t.pix))
	copy(out, t.pix)
	return out, nil
}

// texel returns the normalized RGBA value at (x, y). Single-channel formats
// read as (r, 0, 0, 1). Callers hold at least a read lock.
func (t *Texture) texel(x, y int) [4]float32 {
	i := (y*t.width + x) * t.bpp
	p := t.pix[i : i+t.bpp : i+t.bpp]
	switch t.format {
	case gputypes.TextureFormatBGRA8Unorm:
		return [4]float32{unorm(p[2]), unorm(p[1]), unorm(p[0]), unorm(p[3])}
	case gputypes.TextureFormatR8Unorm:
		return [4]float32{unorm(p[0]), 0, 0, 1}
	default:
		return [4]float32{unorm(p[0]), unorm(p[1]), unorm(p[2]), unorm(p[3])}
	}
}

// setTexel quantizes c into the texel at (x, y). Callers hold the write lock
// or own the pixel exclusively for the duration of a dispatch.
func (t *Texture) setTexel(x, y int, c [4]float32) {
	i := (y*t.width + x) * t.bpp
	p := t.pix[i : i+t.bpp : i+t.bpp]
	switch t.format {
	case gputypes.TextureFormatBGRA8Unorm:
		p[0], p[1], p[2], p[3] = quantize(c[2]), quantize(c[1]), quantize(c[0]), quantize(c[3])
	case gputypes.TextureFormatR8Unorm:
		p[0] = quantize(c[0])
	default:
		p[0], p[1], p[2], p[3] = quantize(c[0]), quantize(c[1]), quantize(c[2]), quantize(c[3])
	}
}

func unorm(b byte) float32 {
	return float32(b) / 255
}

// quantize converts a unorm float to 8 bits, rounding to nearest.
func quantize(v float32) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(float32(v*255) + 0.5)
}
