// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package textures moves pixels between Go images and gpucore textures.
package textures

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"
)

// ErrNilImage is returned by FromImage for a nil image.
var ErrNilImage = errors.New("textures: nil image")

// Descriptor describes the texture FromImage creates. Zero Width and Height
// take the image size; a different size resamples the image.
type Descriptor struct {
	Label  string
	Width  int
	Height int
	Format gputypes.TextureFormat
	Usage  gpucore.TextureUsage
}

// FromImage creates a texture holding img. Single-channel formats store the
// image's luminance.
func FromImage(dev gpucore.Device, img image.Image, desc Descriptor) (gpucore.Texture, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	b := img.Bounds()
	w, h := desc.Width, desc.Height
	if w == 0 {
		w = b.Dx()
	}
	if h == 0 {
		h = b.Dy()
	}
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if desc.Usage == 0 {
		desc.Usage = gpucore.TextureUsageShaderRead
	}

	tex, err := dev.NewTexture(gpucore.TextureDescriptor{
		Label:  desc.Label,
		Width:  w,
		Height: h,
		Format: desc.Format,
		Usage:  desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("textures: %s: %w", desc.Label, err)
	}

	pix, stride := encode(img, w, h, desc.Format)
	if err := tex.WritePixels(pix, stride); err != nil {
		return nil, fmt.Errorf("textures: upload %s: %w", desc.Label, err)
	}
	return tex, nil
}

// encode resamples img to w x h and lays the pixels out in format f.
func encode(img image.Image, w, h int, f gputypes.TextureFormat) ([]byte, int) {
	dst := image.Rect(0, 0, w, h)
	scale := img.Bounds().Dx() != w || img.Bounds().Dy() != h

	if f == gputypes.TextureFormatR8Unorm {
		gray := image.NewGray(dst)
		if scale {
			xdraw.CatmullRom.Scale(gray, dst, img, img.Bounds(), xdraw.Src, nil)
		} else {
			xdraw.Draw(gray, dst, img, img.Bounds().Min, xdraw.Src)
		}
		return gray.Pix, gray.Stride
	}

	rgba := image.NewRGBA(dst)
	if scale {
		xdraw.CatmullRom.Scale(rgba, dst, img, img.Bounds(), xdraw.Src, nil)
	} else {
		xdraw.Draw(rgba, dst, img, img.Bounds().Min, xdraw.Src)
	}
	if f == gputypes.TextureFormatBGRA8Unorm {
		swapRB(rgba.Pix)
	}
	return rgba.Pix, rgba.Stride
}

// ToImage reads a texture back into an RGBA image. Single-channel textures
// become gray.
func ToImage(tex gpucore.Texture) (*image.RGBA, error) {
	pix, err := tex.ReadPixels()
	if err != nil {
		return nil, fmt.Errorf("textures: read %s: %w", tex.Label(), err)
	}
	w, h := tex.Width(), tex.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	switch tex.Format() {
	case gputypes.TextureFormatRGBA8Unorm:
		copy(img.Pix, pix)
	case gputypes.TextureFormatBGRA8Unorm:
		copy(img.Pix, pix)
		swapRB(img.Pix)
	case gputypes.TextureFormatR8Unorm:
		for i, v := range pix[:w*h] {
			img.Pix[i*4+0] = v
			img.Pix[i*4+1] = v
			img.Pix[i*4+2] = v
			img.Pix[i*4+3] = 255
		}
	default:
		return nil, fmt.Errorf("%w: %v", gpucore.ErrUnsupportedFormat, tex.Format())
	}
	return img, nil
}

func swapRB(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
