package computeview

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/computeview/textures"
	"github.com/gogpu/gputypes"
)

// Renderer is a ready-to-draw demo application: a pipeline cache, the
// textures its program needs and a frame orchestrator.
type Renderer struct {
	*FrameOrchestrator

	program shader.Program
	device  gpucore.Device
	inputs  []gpucore.Texture
	output  gpucore.Texture
}

// NewNormalMapRenderer builds the normal-map viewer. Every frame the
// tangentSpaceNormals kernel turns heightmap into a normal map scaled by the
// strength, and the render pass draws the normal map.
func NewNormalMapRenderer(dev gpucore.Device, dest RenderDestination, heightmap image.Image, opts ...OrchestratorOption) (*Renderer, error) {
	if dev == nil {
		return nil, &ConfigError{Op: "normalmap", Err: ErrNilDevice}
	}
	if heightmap == nil {
		return nil, &ConfigError{Op: "normalmap", Err: errors.New("nil heightmap")}
	}
	program := shader.NormalMapProgram()

	height, err := textures.FromImage(dev, heightmap, textures.Descriptor{
		Label:  "heightmap",
		Format: gputypes.TextureFormatR8Unorm,
		Usage:  gpucore.TextureUsageShaderRead,
	})
	if err != nil {
		return nil, &ConfigError{Op: "normalmap", Name: "heightmap", Err: err}
	}
	normal, err := dev.NewTexture(gpucore.TextureDescriptor{
		Label:  "normalmap",
		Width:  height.Width(),
		Height: height.Height(),
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageShaderRead | gpucore.TextureUsageShaderWrite,
	})
	if err != nil {
		return nil, &ConfigError{Op: "normalmap", Name: "normalmap", Err: err}
	}

	r := &Renderer{program: program, device: dev, inputs: []gpucore.Texture{height}, output: normal}
	base := []OrchestratorOption{
		WithLabel(program.Name),
		WithInputs(height),
		WithOutput(normal),
		WithComputeEnabled(program.ComputeByDefault),
	}
	if err := r.init(dest, append(base, opts...)); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRaytraceRenderer builds the raytracing template. The render pass draws
// a full-screen quad. The gradient kernel fills a canvas texture the size of
// the destination, but it only runs once enabled with SetComputeEnabled or
// WithComputeEnabled; the strength is the gradient's blue component.
func NewRaytraceRenderer(dev gpucore.Device, dest RenderDestination, width, height int, opts ...OrchestratorOption) (*Renderer, error) {
	if dev == nil {
		return nil, &ConfigError{Op: "raytrace", Err: ErrNilDevice}
	}
	program := shader.RaytraceProgram()

	r := &Renderer{program: program, device: dev}
	canvas, err := r.newCanvas(width, height)
	if err != nil {
		return nil, err
	}
	r.output = canvas

	base := []OrchestratorOption{
		WithLabel(program.Name),
		WithOutput(canvas),
		WithStrength(0.5),
		WithComputeEnabled(program.ComputeByDefault),
		WithResizeHandler(r.resizeCanvas),
	}
	if err := r.init(dest, append(base, opts...)); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init(dest RenderDestination, opts []OrchestratorOption) error {
	cache, err := BuildPipelineCacheFor(r.device, r.program, dest)
	if err != nil {
		return err
	}
	orch, err := NewFrameOrchestrator(cache, opts...)
	if err != nil {
		_ = cache.Close()
		return err
	}
	r.FrameOrchestrator = orch
	return nil
}

func (r *Renderer) newCanvas(width, height int) (gpucore.Texture, error) {
	canvas, err := r.device.NewTexture(gpucore.TextureDescriptor{
		Label:  "canvas",
		Width:  width,
		Height: height,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageShaderRead | gpucore.TextureUsageShaderWrite,
	})
	if err != nil {
		return nil, &ConfigError{Op: "raytrace", Name: "canvas", Err: err}
	}
	return canvas, nil
}

// resizeCanvas reallocates the raytracing canvas at the new viewport size.
func (r *Renderer) resizeCanvas(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", gpucore.ErrInvalidTextureSize, width, height)
	}
	if width == r.output.Width() && height == r.output.Height() {
		return nil
	}
	canvas, err := r.newCanvas(width, height)
	if err != nil {
		return err
	}
	r.output = canvas
	r.setTextures(nil, canvas, canvas)
	return nil
}

// Program returns the bundled program the renderer draws.
func (r *Renderer) Program() shader.Program { return r.program }

// Output returns the texture the kernel writes.
func (r *Renderer) Output() gpucore.Texture { return r.output }

// Inputs returns the kernel's read-only textures.
func (r *Renderer) Inputs() []gpucore.Texture { return r.inputs }

// Close waits for in-flight frames and releases the pipeline cache. The
// device is left open.
func (r *Renderer) Close() error {
	if r.FrameOrchestrator == nil {
		return nil
	}
	return r.Cache().Close()
}
