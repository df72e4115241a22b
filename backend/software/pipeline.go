package software

import (
	"fmt"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gputypes"
)

type computePipeline struct {
	label    string
	function string
	kernel   kernel
	width    int
	maxTotal int
}

var _ gpucore.ComputePipeline = (*computePipeline)(nil)

func (p *computePipeline) Label() string                      { return p.label }
func (p *computePipeline) Function() string                   { return p.function }
func (p *computePipeline) ThreadExecutionWidth() int          { return p.width }
func (p *computePipeline) MaxTotalThreadsPerThreadgroup() int { return p.maxTotal }

type renderPipeline struct {
	label       string
	vertex      vertexFunc
	fragment    fragment
	format      gputypes.TextureFormat
	sampleCount int
}

var _ gpucore.RenderPipeline = (*renderPipeline)(nil)

func (p *renderPipeline) Label() string                       { return p.label }
func (p *renderPipeline) ColorFormat() gputypes.TextureFormat { return p.format }
func (p *renderPipeline) SampleCount() int                    { return p.sampleCount }

func newComputePipeline(opts *Options, desc gpucore.ComputePipelineDescriptor) (*computePipeline, error) {
	if desc.Library == nil {
		return nil, fmt.Errorf("software: compute pipeline %q: nil library", desc.Label)
	}
	if _, err := desc.Library.Function(desc.Function, shader.StageCompute); err != nil {
		return nil, err
	}
	k, ok := kernels[desc.Function]
	if !ok {
		return nil, fmt.Errorf("%w: kernel %q", ErrNoImplementation, desc.Function)
	}
	return &computePipeline{
		label:    desc.Label,
		function: desc.Function,
		kernel:   k,
		width:    opts.ThreadExecutionWidth,
		maxTotal: opts.MaxThreadsPerThreadgroup,
	}, nil
}

func newRenderPipeline(desc gpucore.RenderPipelineDescriptor) (*renderPipeline, error) {
	if desc.Library == nil {
		return nil, fmt.Errorf("software: render pipeline %q: nil library", desc.Label)
	}
	if _, err := desc.Library.Function(desc.VertexFunction, shader.StageVertex); err != nil {
		return nil, err
	}
	if _, err := desc.Library.Function(desc.FragmentFunction, shader.StageFragment); err != nil {
		return nil, err
	}
	if !gpucore.IsColorRenderable(desc.ColorFormat) {
		return nil, fmt.Errorf("%w: color format %v is not renderable", gpucore.ErrIncompatiblePipeline, desc.ColorFormat)
	}
	if desc.SampleCount != 1 && desc.SampleCount != 4 {
		return nil, fmt.Errorf("%w: sample count %d", gpucore.ErrIncompatiblePipeline, desc.SampleCount)
	}

	v, ok := vertexFuncs[desc.VertexFunction]
	if !ok {
		return nil, fmt.Errorf("%w: vertex function %q", ErrNoImplementation, desc.VertexFunction)
	}
	f, ok := fragments[desc.FragmentFunction]
	if !ok {
		return nil, fmt.Errorf("%w: fragment function %q", ErrNoImplementation, desc.FragmentFunction)
	}
	return &renderPipeline{
		label:       desc.Label,
		vertex:      v,
		fragment:    f,
		format:      desc.ColorFormat,
		sampleCount: desc.SampleCount,
	}, nil
}
