package computeview

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/computeview/gpucore"
)

// DefaultStrength is the initial strength of a FrameOrchestrator.
const DefaultStrength = 0.01

// OrchestratorOption configures a FrameOrchestrator.
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	label          string
	inputs         []gpucore.Texture
	output         gpucore.Texture
	sampled        gpucore.Texture
	strength       float32
	computeEnabled *bool
	onResize       func(width, height int) error
}

func defaultOrchestratorOptions() orchestratorOptions {
	return orchestratorOptions{
		label:    "frame",
		strength: DefaultStrength,
	}
}

// WithLabel sets the prefix of command buffer and pass labels.
func WithLabel(label string) OrchestratorOption {
	return func(o *orchestratorOptions) { o.label = label }
}

// WithInputs sets the read-only textures bound to the kernel at indices 0..n-1.
func WithInputs(textures ...gpucore.Texture) OrchestratorOption {
	return func(o *orchestratorOptions) { o.inputs = textures }
}

// WithOutput sets the texture the kernel writes. It is bound after the inputs.
func WithOutput(t gpucore.Texture) OrchestratorOption {
	return func(o *orchestratorOptions) { o.output = t }
}

// WithSampledTexture sets the texture the fragment function samples.
// It defaults to the compute output.
func WithSampledTexture(t gpucore.Texture) OrchestratorOption {
	return func(o *orchestratorOptions) { o.sampled = t }
}

// WithStrength sets the initial kernel parameter.
func WithStrength(v float32) OrchestratorOption {
	return func(o *orchestratorOptions) { o.strength = v }
}

// WithComputeEnabled sets whether the compute pass runs. By default it runs
// whenever the cache has a compute pipeline.
func WithComputeEnabled(enabled bool) OrchestratorOption {
	return func(o *orchestratorOptions) { o.computeEnabled = &enabled }
}

// WithResizeHandler sets a function called at the start of the first frame
// after Resize, with the new viewport size.
func WithResizeHandler(fn func(width, height int) error) OrchestratorOption {
	return func(o *orchestratorOptions) { o.onResize = fn }
}

// FrameOrchestrator encodes one frame per RenderFrame call: an optional
// compute pass writing the output texture, then a render pass drawing a
// full-screen quad into the destination's drawable, both in a single
// command buffer that is committed without waiting.
//
// RenderFrame is meant to be called from a single host goroutine. The
// setters may be called from any goroutine; their values are read once per
// frame.
type FrameOrchestrator struct {
	cache    *PipelineCache
	label    string
	onResize func(width, height int) error

	mu             sync.Mutex
	inputs         []gpucore.Texture
	output         gpucore.Texture
	sampled        gpucore.Texture
	strength       float32
	computeEnabled bool
	viewport       [2]int
	pending        *[2]int

	frames atomic.Uint64
}

// NewFrameOrchestrator creates an orchestrator drawing with the pipelines of cache.
func NewFrameOrchestrator(cache *PipelineCache, opts ...OrchestratorOption) (*FrameOrchestrator, error) {
	if cache == nil || cache.closed.Load() {
		return nil, &ConfigError{Op: "orchestrator", Err: ErrClosed}
	}
	o := defaultOrchestratorOptions()
	for _, opt := range opts {
		opt(&o)
	}

	enabled := cache.compute != nil
	if o.computeEnabled != nil {
		enabled = *o.computeEnabled
	}
	if cache.compute != nil && o.output == nil {
		return nil, &ConfigError{Op: "orchestrator", Name: cache.compute.Function(), Err: ErrNoOutput}
	}
	if enabled && cache.compute == nil {
		return nil, &ConfigError{Op: "orchestrator", Name: cache.library.Label(),
			Err: fmt.Errorf("compute enabled without a kernel")}
	}
	if o.sampled == nil {
		o.sampled = o.output
	}

	return &FrameOrchestrator{
		cache:          cache,
		label:          o.label,
		onResize:       o.onResize,
		inputs:         append([]gpucore.Texture(nil), o.inputs...),
		output:         o.output,
		sampled:        o.sampled,
		strength:       o.strength,
		computeEnabled: enabled,
	}, nil
}

// Cache returns the pipeline cache.
func (f *FrameOrchestrator) Cache() *PipelineCache { return f.cache }

// SetStrength sets the kernel parameter used by frames encoded from now on.
func (f *FrameOrchestrator) SetStrength(v float32) {
	f.mu.Lock()
	f.strength = v
	f.mu.Unlock()
}

// Strength returns the kernel parameter.
func (f *FrameOrchestrator) Strength() float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strength
}

// SetComputeEnabled toggles the compute pass. Enabling it has no effect
// when the cache has no compute pipeline.
func (f *FrameOrchestrator) SetComputeEnabled(enabled bool) {
	f.mu.Lock()
	f.computeEnabled = enabled && f.cache.compute != nil
	f.mu.Unlock()
}

// ComputeEnabled reports whether frames include the compute pass.
func (f *FrameOrchestrator) ComputeEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computeEnabled
}

// Frames returns the number of committed frames.
func (f *FrameOrchestrator) Frames() uint64 { return f.frames.Load() }

// Resize records a new viewport size. It takes effect at the start of the
// next frame. An empty size, as reported by a minimised window, keeps the
// current viewport.
func (f *FrameOrchestrator) Resize(width, height int) {
	f.mu.Lock()
	f.pending = &[2]int{width, height}
	f.mu.Unlock()
}

// Viewport returns the viewport size applied by the latest frame.
func (f *FrameOrchestrator) Viewport() (width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewport[0], f.viewport[1]
}

// setTextures replaces the bound textures. Frames already committed keep
// the textures they were encoded with.
func (f *FrameOrchestrator) setTextures(inputs []gpucore.Texture, output, sampled gpucore.Texture) {
	f.mu.Lock()
	f.inputs = inputs
	f.output = output
	f.sampled = sampled
	f.mu.Unlock()
}

// frameState is the per-frame snapshot of the orchestrator's settings.
type frameState struct {
	inputs   []gpucore.Texture
	output   gpucore.Texture
	sampled  gpucore.Texture
	strength float32
	compute  bool
}

func (f *FrameOrchestrator) updateState() (frameState, error) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	if pending != nil && (pending[0] <= 0 || pending[1] <= 0) {
		Logger().Debug("resize skipped: empty viewport", "label", f.label, "width", pending[0], "height", pending[1])
		pending = nil
	}
	if pending != nil {
		if f.onResize != nil {
			if err := f.onResize(pending[0], pending[1]); err != nil {
				return frameState{}, fmt.Errorf("computeview: resize to %dx%d: %w", pending[0], pending[1], err)
			}
		}
		Logger().Debug("viewport resized", "label", f.label, "width", pending[0], "height", pending[1])
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if pending != nil {
		f.viewport = *pending
	}
	return frameState{
		inputs:   f.inputs,
		output:   f.output,
		sampled:  f.sampled,
		strength: f.strength,
		compute:  f.computeEnabled,
	}, nil
}

// RenderFrame encodes and commits one frame.
//
// The compute pass runs whenever it is enabled. The render pass and the
// present run only when dest supplies both a pass descriptor and a
// drawable; a nil dest, descriptor or drawable skips them without error.
// RenderFrame returns after Commit without waiting for the device.
func (f *FrameOrchestrator) RenderFrame(dest RenderDestination) error {
	if f.cache.closed.Load() {
		return ErrClosed
	}
	st, err := f.updateState()
	if err != nil {
		return err
	}

	n := f.frames.Load() + 1
	cb, err := f.cache.queue.NewCommandBuffer()
	if err != nil {
		return fmt.Errorf("computeview: frame %d: %w", n, err)
	}
	cb.SetLabel(fmt.Sprintf("%s %d", f.label, n))
	// Error returns below drop cb uncommitted. Backends encode device work
	// at Commit, so an abandoned buffer never reaches the device and the
	// next frame starts from a fresh one.

	if st.compute {
		if err := f.encodeCompute(cb, st); err != nil {
			return fmt.Errorf("computeview: frame %d: %w", n, err)
		}
	}

	var pass *gpucore.RenderPassDescriptor
	var drawable gpucore.Drawable
	if dest != nil {
		pass = dest.CurrentRenderPassDescriptor()
		if pass != nil {
			drawable = dest.CurrentDrawable()
		}
	}

	if pass != nil && drawable != nil {
		if dest.ColorPixelFormat() != f.cache.colorFormat || dest.SampleCount() != f.cache.sampleCount {
			return &ConfigError{
				Op:   "render",
				Name: f.label,
				Err: fmt.Errorf("%w: destination %v x%d, pipelines %v x%d", gpucore.ErrIncompatiblePipeline,
					dest.ColorPixelFormat(), dest.SampleCount(), f.cache.colorFormat, f.cache.sampleCount),
			}
		}
		if err := f.encodeRender(cb, pass, st); err != nil {
			return fmt.Errorf("computeview: frame %d: %w", n, err)
		}
		if err := cb.Present(drawable); err != nil {
			return fmt.Errorf("computeview: frame %d: %w", n, err)
		}
	} else {
		Logger().Debug("render pass skipped: destination unavailable", "frame", n)
	}

	if err := cb.Commit(); err != nil {
		return fmt.Errorf("computeview: commit frame %d: %w", n, err)
	}
	f.frames.Add(1)
	return nil
}

func (f *FrameOrchestrator) encodeCompute(cb gpucore.CommandBuffer, st frameState) error {
	cp := f.cache.compute
	if st.output == nil {
		return ErrNoOutput
	}

	enc, err := cb.BeginComputePass(f.label + " compute")
	if err != nil {
		return err
	}
	enc.PushDebugGroup(cp.Function())
	enc.SetPipeline(cp)
	for i, t := range st.inputs {
		enc.SetTexture(t, i)
	}
	enc.SetTexture(st.output, len(st.inputs))
	enc.SetBytes(float32Bytes(st.strength), 0)

	group := gpucore.ThreadgroupSize(cp)
	groups := gpucore.ThreadgroupsFor(st.output.Width(), st.output.Height(), group)
	enc.DispatchThreadgroups(groups, group)
	enc.PopDebugGroup()

	Logger().Debug("compute pass encoded",
		"kernel", cp.Function(),
		"threadgroup", group.String(),
		"threadgroups", groups.String(),
		"strength", st.strength)
	return enc.End()
}

func (f *FrameOrchestrator) encodeRender(cb gpucore.CommandBuffer, pass *gpucore.RenderPassDescriptor, st frameState) error {
	rp := f.cache.render
	if !st.compute {
		rp = f.cache.standalone
	}

	enc, err := cb.BeginRenderPass(pass)
	if err != nil {
		return err
	}
	enc.PushDebugGroup("quad")
	enc.SetPipeline(rp)
	if st.sampled != nil {
		enc.SetFragmentTexture(st.sampled, 0)
	}
	enc.Draw(0, 6)
	enc.PopDebugGroup()
	return enc.End()
}

func float32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}
