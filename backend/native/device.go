// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/shader"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Device errors.
var (
	// ErrNoAdapter is returned when no GPU adapter can be found.
	ErrNoAdapter = errors.New("native: no GPU adapter found")

	// ErrProviderUnsupported is returned when a device provider does not
	// expose its HAL device and queue.
	ErrProviderUnsupported = errors.New("native: provider does not expose a HAL device")
)

// Bind group slots shared by every bundled program.
const (
	bindingFrameParams = 0
	bindingInput       = 1
	bindingOutput      = 2
	bindingViewParams  = 3
	bindingTexels      = 4

	paramsSize = 16
)

// Device is a gpucore.Device backed by a HAL device.
//
// Device is safe for concurrent use.
type Device struct {
	opts     Options
	name     string
	logger   atomic.Pointer[slog.Logger]
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	owned    bool

	computeLayout   hal.BindGroupLayout
	computePipeline hal.PipelineLayout
	renderLayout    hal.BindGroupLayout
	renderPipeline  hal.PipelineLayout
	dummy           hal.Buffer

	modMu   sync.Mutex
	modules map[*shader.Library]hal.ShaderModule

	// submitMu serializes encoding and queue submission so the completion
	// queue stays in submission order.
	submitMu sync.Mutex

	mu        sync.Mutex
	cond      *sync.Cond
	inflight  []*commandBuffer
	pending   int
	closed    bool
	exited    chan struct{}
	resources []func()

	lost atomic.Bool
}

var _ gpucore.Device = (*Device)(nil)

// Open creates a device on the first discrete or integrated Vulkan adapter.
func Open(opts ...Option) (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("native: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	d, err := newDevice(openDev.Device, openDev.Queue, selected.Info.Name, opts)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	return d, nil
}

// NewFromHAL wraps an existing HAL device and queue. The caller keeps
// ownership; Close releases only what the Device created.
func NewFromHAL(device hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("native: nil HAL device or queue")
	}
	return newDevice(device, queue, "hal", opts)
}

// NewFromProvider shares the device of a host application. The provider
// must implement HalDevice() and HalQueue() returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Device, error) {
	hp, ok := provider.(interface {
		HalDevice() any
		HalQueue() any
	})
	if !ok {
		return nil, ErrProviderUnsupported
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrProviderUnsupported, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrProviderUnsupported, hp.HalQueue())
	}
	d, err := newDevice(device, queue, "shared", opts)
	if err != nil {
		return nil, err
	}
	d.log().Debug("native device shares host device", "surface_format", provider.SurfaceFormat())
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, name string, opts []Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Name != "" {
		name = o.Name
	}

	d := &Device{
		opts:    o,
		name:    name,
		device:  device,
		queue:   queue,
		modules: make(map[*shader.Library]hal.ShaderModule),
		exited:  make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	d.SetLogger(o.Logger)

	if err := d.createLayouts(); err != nil {
		d.destroyLayouts()
		return nil, err
	}

	go d.run()

	d.log().Info("native device created", "name", name)
	return d, nil
}

// createLayouts builds the compute and render bind group layouts. The
// compute layout holds params, one input and the output; the render layout
// holds view params and the sampled texels.
func (d *Device) createLayouts() error {
	var err error
	d.computeLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "compute_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: bindingFrameParams, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: bindingInput, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: bindingOutput, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("native: create compute bind group layout: %w", err)
	}
	d.computePipeline, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "compute_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.computeLayout},
	})
	if err != nil {
		return fmt.Errorf("native: create compute pipeline layout: %w", err)
	}

	stages := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	d.renderLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "render_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: bindingViewParams, Visibility: stages, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: bindingTexels, Visibility: stages, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("native: create render bind group layout: %w", err)
	}
	d.renderPipeline, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "render_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.renderLayout},
	})
	if err != nil {
		return fmt.Errorf("native: create render pipeline layout: %w", err)
	}

	d.dummy, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "unbound_texels", Size: paramsSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create placeholder buffer: %w", err)
	}
	return nil
}

func (d *Device) destroyLayouts() {
	if d.dummy != nil {
		d.device.DestroyBuffer(d.dummy)
		d.dummy = nil
	}
	if d.renderPipeline != nil {
		d.device.DestroyPipelineLayout(d.renderPipeline)
		d.renderPipeline = nil
	}
	if d.renderLayout != nil {
		d.device.DestroyBindGroupLayout(d.renderLayout)
		d.renderLayout = nil
	}
	if d.computePipeline != nil {
		d.device.DestroyPipelineLayout(d.computePipeline)
		d.computePipeline = nil
	}
	if d.computeLayout != nil {
		d.device.DestroyBindGroupLayout(d.computeLayout)
		d.computeLayout = nil
	}
}

// SetLogger sets the device logger. Nil silences the device.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// NewTexture allocates a zeroed texture.
func (d *Device) NewTexture(desc gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	t, err := newTexture(d, desc)
	if err != nil {
		return nil, err
	}
	d.track(t.destroy)
	return t, nil
}

// NewComputePipeline compiles a kernel. The pipeline reports the kernel's
// declared workgroup size as its threadgroup limits.
func (d *Device) NewComputePipeline(desc gpucore.ComputePipelineDescriptor) (gpucore.ComputePipeline, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	p, err := d.newComputePipeline(desc)
	if err != nil {
		return nil, err
	}
	d.track(func() { d.device.DestroyComputePipeline(p.pipeline) })
	d.log().Debug("compute pipeline created", "label", desc.Label, "function", desc.Function, "workgroup", p.workgroup)
	return p, nil
}

// NewRenderPipeline compiles a vertex/fragment pair.
func (d *Device) NewRenderPipeline(desc gpucore.RenderPipelineDescriptor) (gpucore.RenderPipeline, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	p, err := d.newRenderPipeline(desc)
	if err != nil {
		return nil, err
	}
	d.track(func() { d.device.DestroyRenderPipeline(p.pipeline) })
	d.log().Debug("render pipeline created",
		"label", desc.Label,
		"vertex", desc.VertexFunction,
		"fragment", desc.FragmentFunction,
		"format", desc.ColorFormat,
		"samples", desc.SampleCount)
	return p, nil
}

// NewCommandQueue returns a queue submitting to the HAL queue.
func (d *Device) NewCommandQueue() (gpucore.CommandQueue, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	return &commandQueue{dev: d, label: d.name + " queue"}, nil
}

// WaitIdle blocks until every committed command buffer has retired.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.cond.Wait()
	}
	return nil
}

// Close waits for in-flight work and releases every object the device
// created. An owned HAL device and instance are destroyed as well.
// Close is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	<-d.exited

	d.mu.Lock()
	resources := d.resources
	d.resources = nil
	d.mu.Unlock()
	for i := len(resources) - 1; i >= 0; i-- {
		resources[i]()
	}

	d.modMu.Lock()
	for lib, m := range d.modules {
		d.device.DestroyShaderModule(m)
		delete(d.modules, lib)
	}
	d.modMu.Unlock()

	d.destroyLayouts()

	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
			d.instance = nil
		}
	}
	d.log().Info("native device closed", "name", d.name)
	return nil
}

// track registers a release function run by Close.
func (d *Device) track(release func()) {
	d.mu.Lock()
	d.resources = append(d.resources, release)
	d.mu.Unlock()
}

func (d *Device) usable() error {
	if d.lost.Load() {
		return gpucore.ErrDeviceLost
	}
	return d.open()
}

func (d *Device) open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	return nil
}

func (d *Device) markLost(reason error) {
	if d.lost.CompareAndSwap(false, true) {
		d.log().Error("native device lost", "name", d.name, "err", reason)
	}
}

// module returns the shader module for lib, compiling it on first use.
func (d *Device) module(lib *shader.Library) (hal.ShaderModule, error) {
	d.modMu.Lock()
	defer d.modMu.Unlock()
	if m, ok := d.modules[lib]; ok {
		return m, nil
	}
	m, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  lib.Label(),
		Source: hal.ShaderSource{WGSL: lib.Source()},
	})
	if err != nil {
		return nil, fmt.Errorf("native: compile %s: %w", lib.Label(), err)
	}
	d.modules[lib] = m
	return m, nil
}

type commandQueue struct {
	dev   *Device
	label string
}

func (q *commandQueue) Label() string { return q.label }

// NewCommandBuffer succeeds on a lost device; the loss surfaces at Commit.
func (q *commandQueue) NewCommandBuffer() (gpucore.CommandBuffer, error) {
	if err := q.dev.open(); err != nil {
		return nil, err
	}
	return &commandBuffer{dev: q.dev, done: make(chan struct{})}, nil
}
