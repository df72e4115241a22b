package software

import (
	"fmt"

	"github.com/gogpu/computeview/gpucore"
)

type computeEncoder struct {
	cb       *commandBuffer
	label    string
	groups   debugGroups
	pipeline *computePipeline
	textures map[int]*Texture
	params   map[int][]byte
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
		e.fail(fmt.Errorf("%w: compute pipeline %T is not a software pipeline", gpucore.ErrIncompatiblePipeline, p))
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
	e.textures[index] = tex
}

func (e *computeEncoder) SetBytes(b []byte, index int) {
	e.params[index] = append([]byte(nil), b...)
}

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
	if threads.Width < 1 || threads.Height < 1 || threads.Depth > 1 || groups.Depth > 1 ||
		threads.Width*threads.Height > p.maxTotal {
		e.fail(fmt.Errorf("%w: threadgroup %v exceeds %d threads", gpucore.ErrIncompatiblePipeline, threads, p.maxTotal))
		return
	}
	if groups.Width < 1 || groups.Height < 1 {
		return
	}

	k := p.kernel
	args := &dispatchArgs{inputs: make([]*Texture, k.inputs)}
	for i := range k.inputs {
		in, ok := e.textures[i]
		if !ok {
			e.fail(fmt.Errorf("%w: %s texture %d", gpucore.ErrMissingBinding, p.function, i))
			return
		}
		if !in.usage.Has(gpucore.TextureUsageShaderRead) {
			e.fail(fmt.Errorf("%w: %q is not shader-readable", gpucore.ErrTextureUsage, in.label))
			return
		}
		args.inputs[i] = in
	}
	out, ok := e.textures[k.inputs]
	if !ok {
		e.fail(fmt.Errorf("%w: %s output texture %d", gpucore.ErrMissingBinding, p.function, k.inputs))
		return
	}
	if !out.usage.Has(gpucore.TextureUsageShaderWrite) {
		e.fail(fmt.Errorf("%w: %q is not shader-writable", gpucore.ErrTextureUsage, out.label))
		return
	}
	args.output = out

	param, ok := e.params[0]
	if k.needsParam && (!ok || len(param) < 4) {
		e.fail(fmt.Errorf("%w: %s parameter buffer 0", gpucore.ErrMissingBinding, p.function))
		return
	}
	args.param = decodeParam(param)

	dev := e.cb.dev
	e.cb.mu.Lock()
	e.cb.ops = append(e.cb.ops, op{
		name:  "dispatch " + p.function,
		group: e.groups.String(),
		exec:  func() error { return dev.dispatch(k, args, groups, threads) },
	})
	e.cb.mu.Unlock()
}

func (e *computeEncoder) End() error {
	if e.ended {
		return gpucore.ErrEncoderEnded
	}
	e.ended = true
	e.cb.endPass(nil)
	return e.err
}

// drawCall is one recorded Draw with the state bound at record time.
type drawCall struct {
	pipeline *renderPipeline
	sampled  *Texture
	start    int
	count    int
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
		e.fail(fmt.Errorf("%w: render pipeline %T is not a software pipeline", gpucore.ErrIncompatiblePipeline, p))
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

	dc := drawCall{pipeline: p, start: vertexStart, count: vertexCount}
	if p.fragment.sampled {
		tex, ok := e.textures[0]
		if !ok {
			e.fail(fmt.Errorf("%w: %s fragment texture 0", gpucore.ErrMissingBinding, p.label))
			return
		}
		if !tex.usage.Has(gpucore.TextureUsageShaderRead) || tex == e.target {
			e.fail(fmt.Errorf("%w: %q cannot be sampled in pass %q", gpucore.ErrTextureUsage, tex.label, e.label))
			return
		}
		dc.sampled = tex
	}
	e.draws = append(e.draws, dc)
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

	dev, att, target, draws := e.cb.dev, e.att, e.target, e.draws
	e.cb.endPass(&op{
		name:  "render pass " + e.label,
		group: e.groups.String(),
		exec:  func() error { return dev.renderPass(att, target, draws) },
	})
	return nil
}
