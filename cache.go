package computeview

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gputypes"
)

// RenderDestination is the host surface a frame is drawn into.
type RenderDestination = gpucore.RenderDestination

// PipelineCache holds the long-lived GPU objects a frame loop needs: an
// optional compute pipeline, the render pipeline and the command queue.
//
// A PipelineCache is built once at startup and never mutated afterwards.
// Close it only after every command buffer that references its pipelines
// has retired.
type PipelineCache struct {
	device      gpucore.Device
	library     *shader.Library
	entryPoints shader.EntryPoints
	colorFormat gputypes.TextureFormat
	sampleCount int

	compute    gpucore.ComputePipeline
	render     gpucore.RenderPipeline
	standalone gpucore.RenderPipeline
	queue      gpucore.CommandQueue

	closed atomic.Bool
}

// BuildPipelineCache compiles the named entry points of library into
// pipelines for device. colorFormat and sampleCount must match the surface
// the render pipeline draws into. A Kernel entry point is optional; without
// it the cache has no compute pipeline.
//
// Missing entry points, stage mismatches and fixed-function state the device
// cannot build are returned as a *ConfigError.
func BuildPipelineCache(device gpucore.Device, library *shader.Library, entryPoints shader.EntryPoints,
	colorFormat gputypes.TextureFormat, sampleCount int) (*PipelineCache, error) {
	return buildPipelineCache(device, library, entryPoints, "", colorFormat, sampleCount)
}

// BuildPipelineCacheFor builds the pipelines of a bundled program using the
// pixel format and sample count of dest.
func BuildPipelineCacheFor(device gpucore.Device, program shader.Program, dest RenderDestination) (*PipelineCache, error) {
	if dest == nil {
		return nil, &ConfigError{Op: "build", Name: program.Name, Err: fmt.Errorf("nil render destination")}
	}
	return buildPipelineCache(device, program.Library, program.EntryPoints, program.StandaloneFragment,
		dest.ColorPixelFormat(), dest.SampleCount())
}

func buildPipelineCache(device gpucore.Device, library *shader.Library, eps shader.EntryPoints, standalone string,
	colorFormat gputypes.TextureFormat, sampleCount int) (*PipelineCache, error) {
	if device == nil {
		return nil, &ConfigError{Op: "build", Err: ErrNilDevice}
	}
	if library == nil {
		return nil, &ConfigError{Op: "build", Err: fmt.Errorf("nil shader library")}
	}
	name := library.Label()

	type check struct {
		fn    string
		stage shader.Stage
	}
	checks := []check{
		{eps.Vertex, shader.StageVertex},
		{eps.Fragment, shader.StageFragment},
	}
	if eps.Kernel != "" {
		checks = append(checks, check{eps.Kernel, shader.StageCompute})
	}
	if standalone != "" {
		checks = append(checks, check{standalone, shader.StageFragment})
	}
	for _, c := range checks {
		if _, err := library.Function(c.fn, c.stage); err != nil {
			return nil, &ConfigError{Op: "build", Name: name, Err: err}
		}
	}

	c := &PipelineCache{
		device:      device,
		library:     library,
		entryPoints: eps,
		colorFormat: colorFormat,
		sampleCount: sampleCount,
	}

	if eps.Kernel != "" {
		cp, err := device.NewComputePipeline(gpucore.ComputePipelineDescriptor{
			Label:    name + " " + eps.Kernel,
			Library:  library,
			Function: eps.Kernel,
		})
		if err != nil {
			return nil, &ConfigError{Op: "build compute pipeline", Name: eps.Kernel, Err: err}
		}
		c.compute = cp
	}

	rp, err := c.newRenderPipeline(eps.Fragment)
	if err != nil {
		return nil, err
	}
	c.render = rp
	c.standalone = rp

	if standalone != "" && standalone != eps.Fragment {
		sp, err := c.newRenderPipeline(standalone)
		if err != nil {
			return nil, err
		}
		c.standalone = sp
	}

	q, err := device.NewCommandQueue()
	if err != nil {
		return nil, &ConfigError{Op: "build command queue", Name: name, Err: err}
	}
	c.queue = q

	attachDevice(device)
	Logger().Info("pipeline cache built",
		"library", name,
		"device", device.Name(),
		"kernel", eps.Kernel,
		"format", colorFormat,
		"samples", sampleCount)
	return c, nil
}

func (c *PipelineCache) newRenderPipeline(fragment string) (gpucore.RenderPipeline, error) {
	rp, err := c.device.NewRenderPipeline(gpucore.RenderPipelineDescriptor{
		Label:            c.library.Label() + " " + fragment,
		Library:          c.library,
		VertexFunction:   c.entryPoints.Vertex,
		FragmentFunction: fragment,
		ColorFormat:      c.colorFormat,
		SampleCount:      c.sampleCount,
	})
	if err != nil {
		return nil, &ConfigError{Op: "build render pipeline", Name: fragment, Err: err}
	}
	return rp, nil
}

// Device returns the device the pipelines were built on.
func (c *PipelineCache) Device() gpucore.Device { return c.device }

// Library returns the shader library.
func (c *PipelineCache) Library() *shader.Library { return c.library }

// EntryPoints returns the entry points the cache was built from.
func (c *PipelineCache) EntryPoints() shader.EntryPoints { return c.entryPoints }

// ComputePipeline returns the compute pipeline, or nil when no kernel was named.
func (c *PipelineCache) ComputePipeline() gpucore.ComputePipeline { return c.compute }

// RenderPipeline returns the render pipeline used when the compute pass runs.
func (c *PipelineCache) RenderPipeline() gpucore.RenderPipeline { return c.render }

// StandaloneRenderPipeline returns the render pipeline used when the compute
// pass is disabled. It is the same as RenderPipeline unless the program has a
// standalone fragment function.
func (c *PipelineCache) StandaloneRenderPipeline() gpucore.RenderPipeline { return c.standalone }

// CommandQueue returns the queue frames are submitted to.
func (c *PipelineCache) CommandQueue() gpucore.CommandQueue { return c.queue }

// ColorFormat returns the color format the render pipelines target.
func (c *PipelineCache) ColorFormat() gputypes.TextureFormat { return c.colorFormat }

// SampleCount returns the sample count the render pipelines use.
func (c *PipelineCache) SampleCount() int { return c.sampleCount }

// Close waits for the device to finish outstanding work and drops the
// pipelines. The device itself stays open. Close is safe to call more than once.
func (c *PipelineCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.device.WaitIdle()
	detachDevice(c.device)
	c.compute, c.render, c.standalone, c.queue = nil, nil, nil, nil
	if err != nil {
		Logger().Warn("pipeline cache close", "library", c.library.Label(), "err", err)
		return fmt.Errorf("computeview: close pipeline cache: %w", err)
	}
	return nil
}
