//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// debugGroups is a stack of debug group names folded into HAL labels.
type debugGroups []string

func (g *debugGroups) push(name string) { *g = append(*g, name) }

func (g *debugGroups) pop() {
	if n := len(*g); n > 0 {
		*g = (*g)[:n-1]
	}
}

func (g debugGroups) label(base string) string {
	if len(g) == 0 {
		return base
	}
	return strings.Join(g, "/") + "/" + base
}

// dispatchCall is one recorded dispatch with the bindings captured at record time.
type dispatchCall struct {
	pipeline *computePipeline
	input    *Texture
	output   *Texture
	param    uint32
	groups   gpucore.Size
	label    string
}

type computePass struct {
	label      string
	dispatches []dispatchCall
}

func (p *computePass) name() string { return "compute pass " + p.label }

func (p *computePass) encode(d *Device, enc hal.CommandEncoder, fr *frameResources) error {
	bindGroups := make([]hal.BindGroup, len(p.dispatches))
	for i, dc := range p.dispatches {
		params := make([]byte, paramsSize)
		binary.LittleEndian.PutUint32(params[0:], uint32(dc.output.width))  //nolint:gosec // validated positive
		binary.LittleEndian.PutUint32(params[4:], uint32(dc.output.height)) //nolint:gosec // validated positive
		binary.LittleEndian.PutUint32(params[8:], dc.param)
		ub, err := d.uniform(fr, dc.label+"_params", params)
		if err != nil {
			return err
		}

		input, inputSize := d.dummy, uint64(paramsSize)
		if dc.input != nil {
			input, inputSize = dc.input.buf, dc.input.texelBytes()
		}
		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  dc.label + "_bind",
			Layout: d.computeLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: bindingFrameParams, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize}},
				{Binding: bindingInput, Resource: gputypes.BufferBinding{Buffer: input.NativeHandle(), Offset: 0, Size: inputSize}},
				{Binding: bindingOutput, Resource: gputypes.BufferBinding{Buffer: dc.output.buf.NativeHandle(), Offset: 0, Size: dc.output.texelBytes()}},
			},
		})
		if err != nil {
			return fmt.Errorf("create bind group: %w", err)
		}
		fr.bindGroups = append(fr.bindGroups, bg)
		bindGroups[i] = bg
	}

	cp := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
	for i, dc := range p.dispatches {
		cp.SetPipeline(dc.pipeline.pipeline)
		cp.SetBindGroup(0, bindGroups[i], nil)
		cp.Dispatch(uint32(dc.groups.Width), uint32(dc.groups.Height), 1) //nolint:gosec // validated positive
	}
	cp.End()
	return nil
}

type computeEncoder struct {
	cb       *commandBuffer
	label    string
	groups   debugGroups
	pipeline *computePipeline
	textures map[int]*Texture
	params   map[int][]byte
	calls    []dispatchCall
	err      error
	ended    bool
}

var _ gpucore.ComputeEncoder = (*computeEncoder)(nil)

func (e *computeEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	e.cb.fail(err)
}

func (e *computeEncoder) PushDebugGroup(name string) { e.groups.push(name) }
func (e *computeEncoder) PopDebugGroup()             { e.groups.pop() }

func (e *computeEncoder) SetPipeline(p gpucore.ComputePipeline) {
	cp, ok := p.(*computePipeline)
	if !ok {
		e.fail(fmt.Errorf("%w: compute pipeline %T is not a native pipeline", gpucore.ErrIncompatiblePipeline, p))
		return
	}
	e.pipeline = cp
}

func (e *computeEncoder) SetTexture(t gpucore.Texture, index int) {
	tex, ok := t.(*Texture)
	if !ok || tex.dev != e.cb.dev || index < 0 {
		e.fail(fmt.Errorf("%w: texture index %d", gpucore.ErrMissingBinding, index))
		return
	}
	if tex.buf == nil {
		e.fail(fmt.Errorf("%w: render target %q cannot be bound to a kernel", gpucore.ErrTextureUsage, tex.label))
		return
	}
	e.textures[index] = tex
}

func (e *computeEncoder) SetBytes(b []byte, index int) {
	e.params[index] = append([]byte(nil), b...)
}

// DispatchThreadgroups records a dispatch. The highest bound texture index
// is the kernel output; texture 0, when distinct, is its input. The
// threadgroup must equal the kernel's compiled workgroup size.
func (e *computeEncoder) DispatchThreadgroups(groups, threads gpucore.Size) {
	if e.ended {
		e.fail(gpucore.ErrEncoderEnded)
		return
	}
	p := e.pipeline
	if p == nil {
		e.fail(fmt.Errorf("%w: dispatch in pass %q", gpucore.ErrNoPipeline, e.label))
		return
	}
	if threads.Width != int(p.workgroup[0]) || threads.Height != int(p.workgroup[1]) ||
		threads.Depth > 1 || groups.Depth > 1 {
		e.fail(fmt.Errorf("%w: threadgroup %v, kernel %q is compiled for %dx%d",
			gpucore.ErrIncompatiblePipeline, threads, p.function, p.workgroup[0], p.workgroup[1]))
		return
	}
	if groups.Width < 1 || groups.Height < 1 {
		return
	}

	outIndex := -1
	for i := range e.textures {
		outIndex = max(outIndex, i)
	}
	if outIndex < 0 {
		e.fail(fmt.Errorf("%w: %s output texture", gpucore.ErrMissingBinding, p.function))
		return
	}
	dc := dispatchCall{
		pipeline: p,
		output:   e.textures[outIndex],
		groups:   groups,
		label:    e.groups.label(p.function),
	}
	if !dc.output.usage.Has(gpucore.TextureUsageShaderWrite) {
		e.fail(fmt.Errorf("%w: %q is not shader-writable", gpucore.ErrTextureUsage, dc.output.label))
		return
	}
	if in, ok := e.textures[0]; ok && outIndex > 0 {
		if !in.usage.Has(gpucore.TextureUsageShaderRead) {
			e.fail(fmt.Errorf("%w: %q is not shader-readable", gpucore.ErrTextureUsage, in.label))
			return
		}
		dc.input = in
	}
	if b, ok := e.params[0]; ok && len(b) >= 4 {
		dc.param = binary.LittleEndian.Uint32(b)
	}
	e.calls = append(e.calls, dc)
}

func (e *computeEncoder) End() error {
	if e.ended {
		return gpucore.ErrEncoderEnded
	}
	e.ended = true
	if e.err != nil || len(e.calls) == 0 {
		e.cb.endPass(nil)
		return e.err
	}
	e.cb.endPass(&computePass{label: e.groups.label(e.label), dispatches: e.calls})
	return nil
}

// drawCall is one recorded Draw with the state bound at record time.
type drawCall struct {
	pipeline *renderPipeline
	sampled  *Texture
	start    int
	count    int
}

type renderPass struct {
	label  string
	att    gpucore.ColorAttachment
	target *Texture
	draws  []drawCall
}

func (p *renderPass) name() string { return "render pass " + p.label }

func (p *renderPass) encode(d *Device, enc hal.CommandEncoder, fr *frameResources) error {
	bindGroups := make([]hal.BindGroup, len(p.draws))
	for i, dc := range p.draws {
		sampled, sampledSize := d.dummy, uint64(paramsSize)
		view := make([]byte, paramsSize)
		if dc.sampled != nil {
			sampled, sampledSize = dc.sampled.buf, dc.sampled.texelBytes()
			binary.LittleEndian.PutUint32(view[0:], uint32(dc.sampled.width))  //nolint:gosec // validated positive
			binary.LittleEndian.PutUint32(view[4:], uint32(dc.sampled.height)) //nolint:gosec // validated positive
		}
		binary.LittleEndian.PutUint32(view[8:], uint32(p.target.width))   //nolint:gosec // validated positive
		binary.LittleEndian.PutUint32(view[12:], uint32(p.target.height)) //nolint:gosec // validated positive
		ub, err := d.uniform(fr, p.label+"_view", view)
		if err != nil {
			return err
		}
		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  p.label + "_bind",
			Layout: d.renderLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: bindingViewParams, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize}},
				{Binding: bindingTexels, Resource: gputypes.BufferBinding{Buffer: sampled.NativeHandle(), Offset: 0, Size: sampledSize}},
			},
		})
		if err != nil {
			return fmt.Errorf("create bind group: %w", err)
		}
		fr.bindGroups = append(fr.bindGroups, bg)
		bindGroups[i] = bg
	}

	color := hal.RenderPassColorAttachment{
		View:       p.target.view,
		LoadOp:     loadOp(p.att.LoadAction),
		StoreOp:    storeOp(p.att.StoreAction),
		ClearValue: gputypes.Color{R: p.att.ClearColor.R, G: p.att.ClearColor.G, B: p.att.ClearColor.B, A: p.att.ClearColor.A},
	}
	if len(p.draws) > 0 && p.draws[0].pipeline.sampleCount > 1 {
		msaa, err := p.target.multisampleView(p.draws[0].pipeline.sampleCount)
		if err != nil {
			return err
		}
		color.View = msaa
		color.ResolveTarget = p.target.view
	}

	rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            p.label,
		ColorAttachments: []hal.RenderPassColorAttachment{color},
	})
	for i, dc := range p.draws {
		rp.SetPipeline(dc.pipeline.pipeline)
		rp.SetBindGroup(0, bindGroups[i], nil)
		rp.Draw(uint32(dc.count), 1, uint32(dc.start), 0) //nolint:gosec // validated non-negative
	}
	rp.End()
	return nil
}

// loadOp maps a load action to the HAL op. DontCare clears.
func loadOp(a gpucore.LoadAction) gputypes.LoadOp {
	if a == gpucore.LoadActionLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func storeOp(a gpucore.StoreAction) gputypes.StoreOp {
	if a == gpucore.StoreActionDontCare {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}

type renderEncoder struct {
	cb       *commandBuffer
	label    string
	groups   debugGroups
	att      gpucore.ColorAttachment
	target   *Texture
	pipeline *renderPipeline
	textures map[int]*Texture
	draws    []drawCall
	err      error
	ended    bool
}

var _ gpucore.RenderEncoder = (*renderEncoder)(nil)

func (e *renderEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	e.cb.fail(err)
}

func (e *renderEncoder) PushDebugGroup(name string) { e.groups.push(name) }
func (e *renderEncoder) PopDebugGroup()             { e.groups.pop() }

func (e *renderEncoder) SetPipeline(p gpucore.RenderPipeline) {
	rp, ok := p.(*renderPipeline)
	if !ok {
		e.fail(fmt.Errorf("%w: render pipeline %T is not a native pipeline", gpucore.ErrIncompatiblePipeline, p))
		return
	}
	e.pipeline = rp
}

func (e *renderEncoder) SetFragmentTexture(t gpucore.Texture, index int) {
	tex, ok := t.(*Texture)
	if !ok || tex.dev != e.cb.dev || index < 0 {
		e.fail(fmt.Errorf("%w: fragment texture index %d", gpucore.ErrMissingBinding, index))
		return
	}
	if tex.buf == nil || !tex.usage.Has(gpucore.TextureUsageShaderRead) {
		e.fail(fmt.Errorf("%w: %q cannot be sampled in pass %q", gpucore.ErrTextureUsage, tex.label, e.label))
		return
	}
	e.textures[index] = tex
}

func (e *renderEncoder) Draw(vertexStart, vertexCount int) {
	if e.ended {
		e.fail(gpucore.ErrEncoderEnded)
		return
	}
	p := e.pipeline
	if p == nil {
		e.fail(fmt.Errorf("%w: draw in pass %q", gpucore.ErrNoPipeline, e.label))
		return
	}
	if p.format != e.target.format {
		e.fail(fmt.Errorf("%w: pipeline %q format %v, attachment format %v",
			gpucore.ErrIncompatiblePipeline, p.label, p.format, e.target.format))
		return
	}
	if len(e.draws) > 0 && e.draws[0].pipeline.sampleCount != p.sampleCount {
		e.fail(fmt.Errorf("%w: sample count %d differs within pass %q",
			gpucore.ErrIncompatiblePipeline, p.sampleCount, e.label))
		return
	}
	if vertexStart < 0 || vertexCount < 0 {
		e.fail(fmt.Errorf("native: draw range %d+%d in pass %q", vertexStart, vertexCount, e.label))
		return
	}
	e.draws = append(e.draws, drawCall{
		pipeline: p,
		sampled:  e.textures[0],
		start:    vertexStart,
		count:    vertexCount,
	})
}

func (e *renderEncoder) End() error {
	if e.ended {
		return gpucore.ErrEncoderEnded
	}
	e.ended = true
	if e.err != nil {
		e.cb.endPass(nil)
		return e.err
	}
	e.cb.endPass(&renderPass{
		label:  e.groups.label(e.label),
		att:    e.att,
		target: e.target,
		draws:  e.draws,
	})
	return nil
}
