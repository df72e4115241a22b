// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gputypes"
)

// Device is the handle to a GPU. It creates every other GPU object and
// owns them for its lifetime.
type Device interface {
	// Name returns a human readable device name.
	Name() string

	// NewTexture allocates a texture. Contents start zeroed.
	NewTexture(desc TextureDescriptor) (Texture, error)

	// NewComputePipeline builds a compute pipeline from a kernel function.
	NewComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)

	// NewRenderPipeline builds a render pipeline from vertex and fragment
	// functions and fixed-function state.
	NewRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)

	// NewCommandQueue creates a queue for submitting command buffers.
	NewCommandQueue() (CommandQueue, error)

	// WaitIdle blocks until every committed command buffer has retired.
	WaitIdle() error

	// Close waits for outstanding work and releases the device.
	Close() error
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label    string
	Library  *shader.Library
	Function string
}

// RenderPipelineDescriptor describes a render pipeline.
type RenderPipelineDescriptor struct {
	Label            string
	Library          *shader.Library
	VertexFunction   string
	FragmentFunction string

	// ColorFormat must match the format of the drawables rendered into.
	ColorFormat gputypes.TextureFormat

	// SampleCount is the rasterization sample count (1 or 4).
	SampleCount int
}

// ComputePipeline is an immutable compiled kernel.
type ComputePipeline interface {
	Label() string

	// Function returns the kernel entry point name.
	Function() string

	// ThreadExecutionWidth is the preferred threadgroup width.
	ThreadExecutionWidth() int

	// MaxTotalThreadsPerThreadgroup is the largest allowed threadgroup.
	MaxTotalThreadsPerThreadgroup() int
}

// RenderPipeline is an immutable compiled vertex/fragment pair.
type RenderPipeline interface {
	Label() string
	ColorFormat() gputypes.TextureFormat
	SampleCount() int
}

// Texture is a GPU-resident 2D image.
type Texture interface {
	Label() string
	Width() int
	Height() int
	Format() gputypes.TextureFormat
	Usage() TextureUsage

	// WritePixels replaces the whole texture. pix is tightly packed rows in
	// the texture's format; bytesPerRow may exceed Width*BytesPerPixel.
	WritePixels(pix []byte, bytesPerRow int) error

	// ReadPixels returns the texture contents, tightly packed. Callers must
	// make sure no committed command buffer is still writing the texture.
	ReadPixels() ([]byte, error)
}

// Drawable is a presentable image valid for one frame.
type Drawable interface {
	Texture() Texture

	// Present shows the drawable. Backends call it once the command buffer
	// that rendered into the drawable has completed.
	Present() error
}

// CommandQueue hands out command buffers.
type CommandQueue interface {
	Label() string

	// NewCommandBuffer returns a fresh command buffer in Recording state.
	NewCommandBuffer() (CommandBuffer, error)
}

// CommandBuffer is a single-use unit of recorded GPU work.
type CommandBuffer interface {
	Label() string
	SetLabel(label string)

	// BeginComputePass starts a compute pass. Only one pass may be open.
	BeginComputePass(label string) (ComputeEncoder, error)

	// BeginRenderPass starts a render pass targeting desc.ColorAttachment.
	BeginRenderPass(desc *RenderPassDescriptor) (RenderEncoder, error)

	// Present schedules d to be presented after the buffer completes.
	Present(d Drawable) error

	// AddCompletedHandler registers fn to run after the buffer retires.
	AddCompletedHandler(fn func(CommandBuffer))

	// Commit submits the buffer for asynchronous execution and returns
	// without waiting. A buffer can be committed once.
	Commit() error

	Status() CommandBufferStatus

	// Err returns the encoding or execution error, if any.
	Err() error

	// WaitUntilCompleted blocks until the buffer retires and returns Err.
	WaitUntilCompleted() error
}

// ComputeEncoder records compute commands.
type ComputeEncoder interface {
	PushDebugGroup(name string)
	PopDebugGroup()
	SetPipeline(p ComputePipeline)

	// SetTexture binds a texture at a kernel texture index.
	SetTexture(t Texture, index int)

	// SetBytes copies a small parameter block by value to a buffer index.
	SetBytes(b []byte, index int)

	// DispatchThreadgroups runs groups threadgroups of threadsPerGroup threads each.
	DispatchThreadgroups(groups, threadsPerGroup Size)

	// End finishes the pass and reports the first recording error.
	End() error
}

// RenderEncoder records render commands.
type RenderEncoder interface {
	PushDebugGroup(name string)
	PopDebugGroup()
	SetPipeline(p RenderPipeline)

	// SetFragmentTexture binds a texture at a fragment texture index.
	SetFragmentTexture(t Texture, index int)

	// Draw draws vertexCount vertices as a triangle list. Positions are
	// generated by the vertex function from the vertex index.
	Draw(vertexStart, vertexCount int)

	// End finishes the pass and reports the first recording error.
	End() error
}

// RenderDestination is the host surface contract.
//
// CurrentRenderPassDescriptor and CurrentDrawable may return nil while the
// surface is unavailable (for example during a resize). That is a normal
// condition, not an error.
type RenderDestination interface {
	CurrentRenderPassDescriptor() *RenderPassDescriptor
	CurrentDrawable() Drawable
	ColorPixelFormat() gputypes.TextureFormat
	SampleCount() int
}
