//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

type computePipeline struct {
	label     string
	function  string
	workgroup [3]uint32
	pipeline  hal.ComputePipeline
}

var _ gpucore.ComputePipeline = (*computePipeline)(nil)

func (p *computePipeline) Label() string    { return p.label }
func (p *computePipeline) Function() string { return p.function }

// ThreadExecutionWidth is the kernel's declared workgroup width.
func (p *computePipeline) ThreadExecutionWidth() int { return int(p.workgroup[0]) }

// MaxTotalThreadsPerThreadgroup is the declared workgroup width times height,
// so ThreadgroupSize derives exactly the compiled workgroup.
func (p *computePipeline) MaxTotalThreadsPerThreadgroup() int {
	return int(p.workgroup[0] * p.workgroup[1])
}

type renderPipeline struct {
	label       string
	fragment    string
	format      gputypes.TextureFormat
	sampleCount int
	pipeline    hal.RenderPipeline
}

var _ gpucore.RenderPipeline = (*renderPipeline)(nil)

func (p *renderPipeline) Label() string                       { return p.label }
func (p *renderPipeline) ColorFormat() gputypes.TextureFormat { return p.format }
func (p *renderPipeline) SampleCount() int                    { return p.sampleCount }

func (d *Device) newComputePipeline(desc gpucore.ComputePipelineDescriptor) (*computePipeline, error) {
	if desc.Library == nil {
		return nil, fmt.Errorf("native: compute pipeline %q: nil library", desc.Label)
	}
	ep, err := desc.Library.Function(desc.Function, shader.StageCompute)
	if err != nil {
		return nil, err
	}
	if ep.WorkgroupSize[2] > 1 {
		return nil, fmt.Errorf("%w: kernel %q has a 3D workgroup %v", gpucore.ErrIncompatiblePipeline, desc.Function, ep.WorkgroupSize)
	}
	module, err := d.module(desc.Library)
	if err != nil {
		return nil, err
	}
	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  d.computePipeline,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.Function},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create compute pipeline %q: %w", desc.Label, err)
	}

	wg := ep.WorkgroupSize
	wg[0], wg[1] = max(wg[0], 1), max(wg[1], 1)
	return &computePipeline{
		label:     desc.Label,
		function:  desc.Function,
		workgroup: wg,
		pipeline:  pipeline,
	}, nil
}

func (d *Device) newRenderPipeline(desc gpucore.RenderPipelineDescriptor) (*renderPipeline, error) {
	if desc.Library == nil {
		return nil, fmt.Errorf("native: render pipeline %q: nil library", desc.Label)
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
	module, err := d.module(desc.Library)
	if err != nil {
		return nil, err
	}

	pipeline, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: d.renderPipeline,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: desc.VertexFunction,
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentFunction,
			Targets: []gputypes.ColorTargetState{{
				Format:    desc.ColorFormat,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: uint32(desc.SampleCount), //nolint:gosec // 1 or 4
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create render pipeline %q: %w", desc.Label, err)
	}
	return &renderPipeline{
		label:       desc.Label,
		fragment:    desc.FragmentFunction,
		format:      desc.ColorFormat,
		sampleCount: desc.SampleCount,
		pipeline:    pipeline,
	}, nil
}
