//go:build !nogpu

package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the required BytesPerRow alignment for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// Texture is a native texture.
//
// Textures with shader usage and no render target usage are storage buffers
// of packed texels. Render targets are HAL textures and cannot be bound to
// kernels or sampled by fragment functions.
type Texture struct {
	dev    *Device
	label  string
	width  int
	height int
	format gputypes.TextureFormat
	usage  gpucore.TextureUsage

	buf  hal.Buffer
	tex  hal.Texture
	view hal.TextureView

	mu       sync.Mutex
	msaa     hal.Texture
	msaaView hal.TextureView
}

var _ gpucore.Texture = (*Texture)(nil)

func newTexture(d *Device, desc gpucore.TextureDescriptor) (*Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	t := &Texture{
		dev:    d,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
	}

	if !desc.Usage.Has(gpucore.TextureUsageRenderTarget) {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  t.texelBytes(),
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
		})
		if err != nil {
			return nil, fmt.Errorf("native: create texel buffer %q: %w", desc.Label, err)
		}
		t.buf = buf
		return t, nil
	}

	if !gpucore.IsColorRenderable(desc.Format) {
		return nil, fmt.Errorf("%w: render target %q format %v", gpucore.ErrUnsupportedFormat, desc.Label, desc.Format)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          t.extent(),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: desc.Label + "_view",
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create texture view %q: %w", desc.Label, err)
	}
	t.tex, t.view = tex, view
	return t, nil
}

func (t *Texture) extent() hal.Extent3D {
	return hal.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: 1} //nolint:gosec // dimensions validated positive
}

// texelBytes is the storage size of the packed texels, one u32 per texel.
func (t *Texture) texelBytes() uint64 {
	return uint64(t.width) * uint64(t.height) * 4 //nolint:gosec // dimensions validated positive
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

// WritePixels uploads the texture contents through the queue.
func (t *Texture) WritePixels(pix []byte, bytesPerRow int) error {
	bpp := gpucore.BytesPerPixel(t.format)
	row := t.width * bpp
	if bytesPerRow == 0 {
		bytesPerRow = row
	}
	if bytesPerRow < row || len(pix) < bytesPerRow*(t.height-1)+row {
		return fmt.Errorf("%w: %d bytes with stride %d for %dx%d texture %q",
			gpucore.ErrPixelDataSize, len(pix), bytesPerRow, t.width, t.height, t.label)
	}
	if err := t.dev.usable(); err != nil {
		return err
	}

	if t.buf != nil {
		t.dev.queue.WriteBuffer(t.buf, 0, packTexels(t.format, pix, t.width, t.height, bytesPerRow))
		return nil
	}

	tight := make([]byte, row*t.height)
	for y := range t.height {
		copy(tight[y*row:(y+1)*row], pix[y*bytesPerRow:y*bytesPerRow+row])
	}
	size := t.extent()
	t.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		tight,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(row), RowsPerImage: size.Height}, //nolint:gosec // row fits uint32
		&size,
	)
	return nil
}

// ReadPixels copies the texture into a staging buffer, waits for the copy
// and returns the contents tightly packed.
func (t *Texture) ReadPixels() ([]byte, error) {
	if err := t.dev.usable(); err != nil {
		return nil, err
	}
	if t.buf != nil {
		raw, err := t.dev.readback(t.label, t.texelBytes(), func(enc hal.CommandEncoder, staging hal.Buffer) {
			enc.CopyBufferToBuffer(t.buf, staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: t.texelBytes()}})
		})
		if err != nil {
			return nil, err
		}
		return unpackTexels(t.format, raw, t.width*t.height), nil
	}

	w, h := uint32(t.width), uint32(t.height) //nolint:gosec // dimensions validated positive
	aligned := (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	raw, err := t.dev.readback(t.label, uint64(aligned)*uint64(h), func(enc hal.CommandEncoder, staging hal.Buffer) {
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: aligned, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
			Size:         t.extent(),
		}})
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	})
	if err != nil {
		return nil, err
	}
	row := t.width * 4
	out := make([]byte, row*t.height)
	for y := range t.height {
		copy(out[y*row:(y+1)*row], raw[y*int(aligned):])
	}
	return out, nil
}

// multisampleView returns the transient MSAA color view used when a
// multisampled pipeline renders into t.
func (t *Texture) multisampleView(samples int) (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.msaaView != nil {
		return t.msaaView, nil
	}
	d := t.dev.device
	msaa, err := d.CreateTexture(&hal.TextureDescriptor{
		Label:         t.label + "_msaa",
		Size:          t.extent(),
		MipLevelCount: 1,
		SampleCount:   uint32(samples), //nolint:gosec // 1 or 4
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.format,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("create MSAA texture: %w", err)
	}
	view, err := d.CreateTextureView(msaa, &hal.TextureViewDescriptor{Label: t.label + "_msaa_view"})
	if err != nil {
		d.DestroyTexture(msaa)
		return nil, fmt.Errorf("create MSAA view: %w", err)
	}
	t.msaa, t.msaaView = msaa, view
	return view, nil
}

func (t *Texture) destroy() {
	d := t.dev.device
	t.mu.Lock()
	if t.msaaView != nil {
		d.DestroyTextureView(t.msaaView)
		d.DestroyTexture(t.msaa)
		t.msaa, t.msaaView = nil, nil
	}
	t.mu.Unlock()
	if t.view != nil {
		d.DestroyTextureView(t.view)
		d.DestroyTexture(t.tex)
	}
	if t.buf != nil {
		d.DestroyBuffer(t.buf)
	}
}

// readback records a copy into a fresh staging buffer, submits it and reads
// the staging buffer once the fence signals.
func (d *Device) readback(label string, size uint64, record func(hal.CommandEncoder, hal.Buffer)) ([]byte, error) {
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + "_staging", Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	d.submitMu.Lock()
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_readback"})
	if err != nil {
		d.submitMu.Unlock()
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label + "_readback"); err != nil {
		d.submitMu.Unlock()
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	record(encoder, staging)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.submitMu.Unlock()
		return nil, fmt.Errorf("native: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		d.submitMu.Unlock()
		return nil, fmt.Errorf("native: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	err = d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1)
	d.submitMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("native: submit readback: %w", err)
	}

	ok, err := d.device.Wait(fence, 1, d.opts.FenceTimeout)
	if err != nil || !ok {
		d.markLost(err)
		return nil, fmt.Errorf("%w: readback %q: ok=%v err=%v", gpucore.ErrDeviceLost, label, ok, err)
	}
	out := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("native: read staging buffer: %w", err)
	}
	return out, nil
}

// packTexels converts rows in format to one little-endian RGBA8 u32 per
// texel. Single-channel texels keep their value in the red byte.
func packTexels(format gputypes.TextureFormat, pix []byte, width, height, bytesPerRow int) []byte {
	out := make([]byte, width*height*4)
	for y := range height {
		src := pix[y*bytesPerRow:]
		dst := out[y*width*4:]
		for x := range width {
			o := dst[x*4 : x*4+4 : x*4+4]
			switch format {
			case gputypes.TextureFormatR8Unorm:
				o[0] = src[x]
			case gputypes.TextureFormatBGRA8Unorm:
				p := src[x*4 : x*4+4 : x*4+4]
				o[0], o[1], o[2], o[3] = p[2], p[1], p[0], p[3]
			default:
				copy(o, src[x*4:x*4+4])
			}
		}
	}
	return out
}

// unpackTexels is the inverse of packTexels for n texels.
func unpackTexels(format gputypes.TextureFormat, raw []byte, n int) []byte {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		out := make([]byte, n)
		for i := range n {
			out[i] = raw[i*4]
		}
		return out
	case gputypes.TextureFormatBGRA8Unorm:
		out := make([]byte, n*4)
		for i := range n {
			p := raw[i*4 : i*4+4 : i*4+4]
			out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = p[2], p[1], p[0], p[3]
		}
		return out
	default:
		return raw[:n*4:n*4]
	}
}
