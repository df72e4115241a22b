package software

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/computeview/gpucore"
	"github.com/gogpu/computeview/internal/parallel"
)

// ErrNoImplementation is returned when a shader function has no CPU implementation.
var ErrNoImplementation = errors.New("software: no CPU implementation for shader function")

// Device is a CPU implementation of gpucore.Device.
//
// Device is safe for concurrent use.
type Device struct {
	opts   Options
	logger atomic.Pointer[slog.Logger]
	pool   *parallel.WorkerPool

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*commandBuffer
	pending int
	closed  bool
	exited  chan struct{}

	lost atomic.Bool
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device and starts its queue goroutine.
func New(opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.ThreadExecutionWidth < 1 {
		o.ThreadExecutionWidth = 1
	}
	if o.MaxThreadsPerThreadgroup < o.ThreadExecutionWidth {
		o.MaxThreadsPerThreadgroup = o.ThreadExecutionWidth
	}

	d := &Device{
		opts:   o,
		pool:   parallel.NewWorkerPool(o.Workers),
		exited: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	d.SetLogger(o.Logger)

	go d.run()

	d.log().Info("software device created",
		"name", o.Name,
		"workers", d.pool.Workers(),
		"thread_execution_width", o.ThreadExecutionWidth,
		"max_threads_per_threadgroup", o.MaxThreadsPerThreadgroup)
	return d
}

// SetLogger sets the device logger. Nil silences the device.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// Name returns the device name.
func (d *Device) Name() string { return d.opts.Name }

// NewTexture allocates a zeroed texture.
func (d *Device) NewTexture(desc gpucore.TextureDescriptor) (gpucore.Texture, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	return newTexture(d, desc)
}

// NewComputePipeline builds a compute pipeline for a kernel with a CPU implementation.
func (d *Device) NewComputePipeline(desc gpucore.ComputePipelineDescriptor) (gpucore.ComputePipeline, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	p, err := newComputePipeline(&d.opts, desc)
	if err != nil {
		return nil, err
	}
	d.log().Debug("compute pipeline created", "label", desc.Label, "function", desc.Function)
	return p, nil
}

// NewRenderPipeline builds a render pipeline.
func (d *Device) NewRenderPipeline(desc gpucore.RenderPipelineDescriptor) (gpucore.RenderPipeline, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	p, err := newRenderPipeline(desc)
	if err != nil {
		return nil, err
	}
	d.log().Debug("render pipeline created",
		"label", desc.Label,
		"vertex", desc.VertexFunction,
		"fragment", desc.FragmentFunction,
		"format", desc.ColorFormat,
		"samples", desc.SampleCount)
	return p, nil
}

// NewCommandQueue returns a queue feeding the device's executor.
func (d *Device) NewCommandQueue() (gpucore.CommandQueue, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	return &commandQueue{dev: d, label: d.opts.Name + " queue"}, nil
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

// Lose simulates device loss. Queued and future command buffers fail with
// gpucore.ErrDeviceLost.
func (d *Device) Lose() {
	if d.lost.CompareAndSwap(false, true) {
		d.log().Warn("software device lost", "name", d.opts.Name)
	}
}

// Close drains the queue, stops the executor and the worker pool.
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
	d.pool.Close()
	d.log().Info("software device closed", "name", d.opts.Name)
	return nil
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

// submit appends a committed buffer to the execution queue.
func (d *Device) submit(cb *commandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.ErrDeviceClosed
	}
	d.pending++
	d.queue = append(d.queue, cb)
	d.cond.Broadcast()
	return nil
}

// run executes command buffers in commit order until the device closes.
func (d *Device) run() {
	defer close(d.exited)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		cb := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.execute(cb)

		d.mu.Lock()
		d.pending--
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (d *Device) execute(cb *commandBuffer) {
	if d.lost.Load() {
		cb.retire(fmt.Errorf("%w: command buffer %q", gpucore.ErrDeviceLost, cb.Label()))
		return
	}

	for _, o := range cb.ops {
		if o.group != "" {
			d.log().Debug("execute", "command_buffer", cb.Label(), "op", o.name, "group", o.group)
		}
		if err := o.exec(); err != nil {
			d.log().Warn("command buffer failed", "command_buffer", cb.Label(), "op", o.name, "err", err)
			cb.retire(fmt.Errorf("software: %s: %w", o.name, err))
			return
		}
	}

	for _, dr := range cb.presents {
		if err := dr.Present(); err != nil {
			d.log().Warn("present failed", "command_buffer", cb.Label(), "err", err)
		}
	}
	cb.retire(nil)
}

// dispatch runs every thread of a compute grid. The output texture is locked
// for writing and distinct inputs for reading while threadgroups run.
func (d *Device) dispatch(k kernel, a *dispatchArgs, groups, threads gpucore.Size) error {
	a.output.mu.Lock()
	defer a.output.mu.Unlock()

	seen := map[*Texture]bool{a.output: true}
	for _, in := range a.inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		in.mu.RLock()
		defer in.mu.RUnlock()
	}

	total := groups.Width * groups.Height
	return d.pool.For(total, 1, func(g int) {
		gx := g % groups.Width
		gy := g / groups.Width
		x0 := gx * threads.Width
		y0 := gy * threads.Height
		for ty := range threads.Height {
			for tx := range threads.Width {
				k.run(a, x0+tx, y0+ty)
			}
		}
	})
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
