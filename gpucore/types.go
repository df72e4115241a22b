// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Size is a 3D extent used for dispatch grids and threadgroup sizes.
type Size struct {
	Width  int
	Height int
	Depth  int
}

// Count returns Width*Height*Depth.
func (s Size) Count() int {
	return s.Width * s.Height * s.Depth
}

// String returns the string representation of Size.
func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageShaderRead allows shaders to read the texture.
	TextureUsageShaderRead TextureUsage = 1 << iota

	// TextureUsageShaderWrite allows compute kernels to write the texture.
	TextureUsageShaderWrite

	// TextureUsageRenderTarget allows the texture to be a color attachment.
	TextureUsageRenderTarget
)

// Has reports whether all bits in flag are set.
func (u TextureUsage) Has(flag TextureUsage) bool {
	return u&flag == flag
}

// String returns the string representation of TextureUsage.
func (u TextureUsage) String() string {
	if u == 0 {
		return "none"
	}
	var parts []string
	if u.Has(TextureUsageShaderRead) {
		parts = append(parts, "read")
	}
	if u.Has(TextureUsageShaderWrite) {
		parts = append(parts, "write")
	}
	if u.Has(TextureUsageRenderTarget) {
		parts = append(parts, "render-target")
	}
	return strings.Join(parts, "|")
}

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width  int
	Height int

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Usage specifies how the texture will be used.
	Usage TextureUsage
}

// Validate checks the descriptor for obvious errors.
func (d *TextureDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidTextureSize, d.Width, d.Height)
	}
	if BytesPerPixel(d.Format) == 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, d.Format)
	}
	if d.Usage == 0 {
		return fmt.Errorf("%w: texture %q has no usage", ErrTextureUsage, d.Label)
	}
	return nil
}

// BytesPerPixel returns the size of one texel for formats the backends
// support, or 0 for unsupported formats.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 0
	}
}

// IsColorRenderable reports whether a format can be a render pass color attachment.
func IsColorRenderable(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatRGBA8Unorm || f == gputypes.TextureFormatBGRA8Unorm
}

// LoadAction specifies how a color attachment is initialized at the start of a pass.
type LoadAction uint8

const (
	// LoadActionDontCare leaves the previous contents undefined.
	LoadActionDontCare LoadAction = iota

	// LoadActionLoad preserves the previous contents.
	LoadActionLoad

	// LoadActionClear fills the attachment with the clear color.
	LoadActionClear
)

// String returns the string representation of LoadAction.
func (a LoadAction) String() string {
	switch a {
	case LoadActionDontCare:
		return "DontCare"
	case LoadActionLoad:
		return "Load"
	case LoadActionClear:
		return "Clear"
	default:
		return fmt.Sprintf("LoadAction(%d)", int(a))
	}
}

// StoreAction specifies what happens to a color attachment at the end of a pass.
type StoreAction uint8

const (
	// StoreActionStore keeps the rendered contents.
	StoreActionStore StoreAction = iota

	// StoreActionDontCare discards the rendered contents.
	StoreActionDontCare
)

// ClearColor is an RGBA color with components in [0, 1].
type ClearColor struct {
	R, G, B, A float64
}

// ColorAttachment describes the single color target of a render pass.
type ColorAttachment struct {
	Texture     Texture
	LoadAction  LoadAction
	StoreAction StoreAction
	ClearColor  ClearColor
}

// RenderPassDescriptor describes the target of a render pass.
type RenderPassDescriptor struct {
	Label           string
	ColorAttachment ColorAttachment
}

// CommandBufferStatus is the state of a command buffer.
type CommandBufferStatus int

const (
	// CommandBufferRecording means commands are still being encoded.
	CommandBufferRecording CommandBufferStatus = iota

	// CommandBufferCommitted means the buffer was submitted and has not retired yet.
	CommandBufferCommitted

	// CommandBufferCompleted means the device finished executing the buffer.
	CommandBufferCompleted

	// CommandBufferError means encoding or execution failed.
	CommandBufferError
)

// String returns the string representation of CommandBufferStatus.
func (s CommandBufferStatus) String() string {
	switch s {
	case CommandBufferRecording:
		return "Recording"
	case CommandBufferCommitted:
		return "Committed"
	case CommandBufferCompleted:
		return "Completed"
	case CommandBufferError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsRetired reports whether the buffer reached a terminal state.
func (s CommandBufferStatus) IsRetired() bool {
	return s == CommandBufferCompleted || s == CommandBufferError
}
